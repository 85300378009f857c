// Package grpchealth mirrors store health into the standard gRPC health
// service so orchestrators can probe the gRPC port.
package grpchealth

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name reported alongside the overall ("") status.
const Service = "passport.Identity"

type Watcher struct {
	srv      *health.Server
	check    func(context.Context) error
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

func NewWatcher(srv *health.Server, check func(context.Context) error, interval time.Duration, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Watcher{srv: srv, check: check, interval: interval, timeout: time.Second, log: log.Named("health")}
}

// Run probes until ctx is done, then marks everything NOT_SERVING.
func (w *Watcher) Run(ctx context.Context) {
	w.probe(ctx)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.srv.Shutdown()
			return
		case <-t.C:
			w.probe(ctx)
		}
	}
}

func (w *Watcher) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := w.check(pctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		w.log.Warn("store unhealthy", zap.Error(err))
	}
	w.srv.SetServingStatus("", status)
	w.srv.SetServingStatus(Service, status)
}
