package main

import (
	"context"

	config "github.com/NordCoder/Passport/internal/config/passport"
	"github.com/NordCoder/Passport/internal/obs"
)

func initOTel(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	o, err := obs.SetupOTel(ctx, cfg.AsOTELConfig())
	if err != nil {
		return nil, err
	}
	return o.Shutdown, nil
}
