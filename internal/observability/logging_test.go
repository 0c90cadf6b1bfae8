package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/service-desk/internal/config"
)

func TestLoggerConfig_DevelopmentFollowsEnv(t *testing.T) {
	cases := []struct {
		env  string
		want bool
	}{
		{"development", true},
		{"Local", true},
		{"production", false},
		{"staging", false},
		{"", false},
	}
	for _, tc := range cases {
		t.Run(tc.env, func(t *testing.T) {
			cfg := loggerConfig(config.AppConfig{Env: tc.env}, config.LoggerConfig{Level: "info"})
			assert.Equal(t, tc.want, cfg.Development)
		})
	}
}

func TestLoggerConfig_InitialFieldsAndLevel(t *testing.T) {
	app := config.AppConfig{Name: "service-desk", Env: "production", Version: "1.4.0"}

	cfg := loggerConfig(app, config.LoggerConfig{Level: "DEBUG"})

	assert.Equal(t, map[string]interface{}{"app": "service-desk", "env": "production", "version": "1.4.0"}, cfg.InitialFields)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level.Level())

	fallback := loggerConfig(app, config.LoggerConfig{Level: "chatty"})
	assert.Equal(t, zapcore.InfoLevel, fallback.Level.Level())
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.AppConfig{Name: "service-desk", Env: "production"}, config.LoggerConfig{Level: "warn"})
	require.NoError(t, err)

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}
