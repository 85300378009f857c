package main

import (
	config "github.com/NordCoder/Passport/internal/config/passport"
	"github.com/NordCoder/Passport/internal/obs"
	"go.uber.org/zap"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(cfg.AsLoggerConfig())
}
