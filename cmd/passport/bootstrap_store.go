package main

import (
	"context"

	"github.com/NordCoder/Passport/internal/auth"
	config "github.com/NordCoder/Passport/internal/config/passport"
	"github.com/NordCoder/Passport/internal/domain/account"
	"github.com/NordCoder/Passport/internal/repository/memory"
	pg "github.com/NordCoder/Passport/internal/repository/postgres"
	"github.com/NordCoder/Passport/internal/repository/sqlite"
	"go.uber.org/zap"
)

type store struct {
	Accounts account.Store
	Health   account.HealthChecker
	// PG is set only for the postgres driver; the outbox needs it.
	PG    *pg.DB
	close func()
}

func (s *store) Close() {
	if s.close != nil {
		s.close()
	}
}

func initStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store, error) {
	switch cfg.DB.Driver {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.DB.AsSQLiteConfig())
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store ready", zap.String("path", cfg.DB.DSN))
		return &store{Accounts: s, Health: s, close: func() { _ = s.Close() }}, nil

	case config.DriverMemory:
		logger.Warn("memory store in use; accounts are lost on restart")
		s := memory.NewAccountStore()
		return &store{Accounts: s, Health: s}, nil

	default:
		db, err := pg.New(ctx, cfg.DB.AsPostgresConfig())
		if err != nil {
			return nil, err
		}
		var opts []pg.AccountRepoOption
		if cfg.Events.Enable {
			opts = append(opts, pg.WithEvents(pg.NewTransactor(db, logger), pg.NewOutboxRepo(db)))
		}
		repo := pg.NewAccountRepo(db, opts...)
		logger.Info("postgres store ready", zap.Bool("events", cfg.Events.Enable))
		return &store{Accounts: repo, Health: repo, PG: db, close: db.Close}, nil
	}
}

func initCrypto(cfg *config.Config) (*auth.Argon2Hasher, *auth.TokenCodec, error) {
	hasher, err := auth.NewArgon2Hasher(cfg.Hash)
	if err != nil {
		return nil, nil, err
	}
	codec, err := auth.NewTokenCodec([]byte(cfg.Auth.Secret), auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return nil, nil, err
	}
	return hasher, codec, nil
}
