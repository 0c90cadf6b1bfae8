package sla

import (
	"context"
	"sync"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
)

// policyCache memoises policy lookups for the duration of one job run.
type policyCache struct {
	repo    repository.SlaPolicyRepository
	mu      sync.Mutex
	entries map[string]*domain.SlaPolicy
}

func newPolicyCache(repo repository.SlaPolicyRepository) *policyCache {
	return &policyCache{repo: repo, entries: make(map[string]*domain.SlaPolicy)}
}

func (c *policyCache) get(ctx context.Context, id string) (*domain.SlaPolicy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if policy, ok := c.entries[id]; ok {
		return policy, nil
	}
	policy, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.entries[id] = policy
	return policy, nil
}
