package obs

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogConfig struct {
	Level  string
	Pretty bool
	App    string
	Env    string
	Ver    string
}

// NewLogger returns a JSON logger with sampling, or an unsampled console
// logger when Pretty is set. An unknown level is an error.
func NewLogger(c LogConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", c.Level, err)
		}
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder

	cfg := zap.Config{
		Level:            level,
		Encoding:         "json",
		EncoderConfig:    enc,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		Sampling:         &zap.SamplingConfig{Initial: 100, Thereafter: 100},
	}
	if c.Pretty {
		cfg.Encoding = "console"
		cfg.Development = true
		cfg.Sampling = nil
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var fields []zap.Field
	for _, f := range []struct{ k, v string }{{"service", c.App}, {"env", c.Env}, {"version", c.Ver}} {
		if f.v != "" {
			fields = append(fields, zap.String(f.k, f.v))
		}
	}
	return cfg.Build(zap.Fields(fields...))
}

// Email logs an address with its local part masked: "a***@example.com".
func Email(key, email string) zap.Field {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return zap.String(key, "***")
	}
	return zap.String(key, local[:1]+"***@"+domain)
}
