package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockHeld means another process is running the same scan.
var ErrLockHeld = errors.New("scan lock held by another process")

const lockKeyPrefix = "service-desk:lock:"

// releaseScript deletes the key only when it still carries our token, so an
// expired lock taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker serialises scheduled scans across processes.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), err error)
}

// ScanLock is a Redis SET NX PX lock keyed by job name.
type ScanLock struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewScanLock returns a lock backed by client. A nil client yields a lock
// that always succeeds.
func NewScanLock(client redis.UniversalClient, logger *zap.Logger) *ScanLock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanLock{client: client, logger: logger.Named("scan_lock")}
}

// Acquire takes the lock for name. ErrLockHeld is returned when another
// holder exists. When Redis itself fails the scan proceeds unlocked and the
// failure is logged.
func (l *ScanLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	noop := func() {}
	if l == nil || l.client == nil {
		return noop, nil
	}

	key := lockKeyPrefix + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		l.logger.Warn("scan lock unavailable; running unlocked", zap.String("job", name), zap.Error(err))
		return noop, nil
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrLockHeld)
	}

	release := func() {
		// The caller's context may already be cancelled when the scan ends.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("failed to release scan lock", zap.String("job", name), zap.Error(err))
		}
	}
	return release, nil
}
