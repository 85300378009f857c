package main

import (
	"context"
	"time"

	config "github.com/NordCoder/Passport/internal/config/passport"
	"github.com/NordCoder/Passport/internal/obs/retry"
	"github.com/NordCoder/Passport/internal/outbox"
	kafkax "github.com/NordCoder/Passport/internal/repository/kafka"
	pg "github.com/NordCoder/Passport/internal/repository/postgres"
	"go.uber.org/zap"
)

// initEvents starts the outbox relay when account events are enabled. The
// returned runner is nil otherwise.
func initEvents(ctx context.Context, cfg *config.Config, logger *zap.Logger, st *store) (*outbox.Runner, func(), error) {
	if !cfg.Events.Enable || st.PG == nil {
		return nil, func() {}, nil
	}

	ensureCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := kafkax.EnsureTopic(ensureCtx, cfg.Events.Brokers, kafkax.TopicSpec{Name: cfg.Events.Topic}, logger); err != nil {
		// The relay keeps retrying; registration never depends on kafka.
		logger.Warn("ensure topic", zap.String("topic", cfg.Events.Topic), zap.Error(err))
	}

	producer := kafkax.NewProducer(cfg.Events.Brokers, cfg.Events.Topic, logger)
	pub := kafkax.NewAccountEventsKafka(producer)

	runner := outbox.NewOutboxRunner(
		logger,
		pg.NewOutboxRepo(st.PG),
		outbox.NewDispatch(pub, retry.PublishPolicy("outbox_account_registered", logger)),
		cfg.Events.AsRunnerConfig(),
	)
	runner.Start(ctx)
	logger.Info("outbox relay started", zap.String("topic", cfg.Events.Topic), zap.Int("workers", cfg.Events.Workers))

	return runner, func() { _ = producer.Close() }, nil
}
