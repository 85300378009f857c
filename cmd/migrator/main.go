package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/NordCoder/Passport/internal/config/passport"
	"github.com/NordCoder/Passport/internal/obs"
	"github.com/NordCoder/Passport/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func main() {
	driver := flag.String("driver", env("PASSPORT_DB_DRIVER", config.DriverPostgres), "postgres or sqlite")
	dsn := flag.String("dsn", env("PASSPORT_DB_DSN", ""), "database DSN (sqlite: file path)")
	cmd := flag.String("cmd", "up", "up, down or status")
	flag.Parse()

	log, err := obs.NewLogger(obs.LogConfig{Level: env("PASSPORT_LOG_LEVEL", "info"), App: "passport-migrator"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if err := run(ctx, log, *driver, *dsn, *cmd); err != nil {
		log.Fatal("migrate failed", zap.String("driver", *driver), zap.String("cmd", *cmd), zap.Error(err))
	}
}

func run(ctx context.Context, log *zap.Logger, driver, dsn, cmd string) error {
	if dsn == "" {
		return errors.New("dsn is empty")
	}

	var (
		sqlDriver string
		dialect   goose.Dialect
		fsys      fs.FS
	)
	switch driver {
	case config.DriverPostgres:
		sqlDriver, dialect, fsys = "pgx", goose.DialectPostgres, migrations.Postgres()
	case config.DriverSQLite:
		sqlDriver, dialect, fsys = "sqlite", goose.DialectSQLite3, migrations.SQLite()
		dsn = "file:" + dsn + "?_pragma=busy_timeout(5000)"
	default:
		return fmt.Errorf("unknown driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	switch cmd {
	case "up":
		res, err := p.Up(ctx)
		if err != nil {
			return err
		}
		for _, r := range res {
			log.Info("migration applied", zap.String("source", r.Source.Path), zap.Duration("took", r.Duration))
		}
		log.Info("migrations up ok", zap.Int("applied", len(res)))
	case "down":
		r, err := p.Down(ctx)
		if err != nil {
			return err
		}
		log.Info("migration rolled back", zap.String("source", r.Source.Path))
	case "status":
		st, err := p.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range st {
			log.Info("migration",
				zap.Int64("version", s.Source.Version),
				zap.String("source", s.Source.Path),
				zap.String("state", string(s.State)),
			)
		}
	default:
		return fmt.Errorf("unknown cmd %q", cmd)
	}
	return nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
