package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/service-desk/internal/config"
)

// NewLogger builds the process logger. Every entry carries the app name,
// environment and version; callers name it per binary (api, slactl).
func NewLogger(app config.AppConfig, cfg config.LoggerConfig) (*zap.Logger, error) {
	return loggerConfig(app, cfg).Build()
}

func loggerConfig(app config.AppConfig, cfg config.LoggerConfig) zap.Config {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	return zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: isDevelopment(app.Env),
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			LevelKey:      "level",
			TimeKey:       "ts",
			NameKey:       "logger",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			EncodeLevel:   zapcore.LowercaseLevelEncoder,
			EncodeTime:    zapcore.ISO8601TimeEncoder,
			EncodeCaller:  zapcore.ShortCallerEncoder,
		},
		InitialFields: map[string]interface{}{
			"app":     app.Name,
			"env":     app.Env,
			"version": app.Version,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
}

func isDevelopment(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}
