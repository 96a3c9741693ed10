package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arzzra/astproxy/pkg/ami/eventbus"
	"github.com/arzzra/astproxy/pkg/ami/frame"
	"github.com/arzzra/astproxy/pkg/ami/metrics"
	"github.com/arzzra/astproxy/pkg/ami/proxy"
)

// errConnectionLost соединение с АТС потеряно; переподключение - забота супервизора процесса
var errConnectionLost = errors.New("connection to PBX lost")

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to the PBX and serve metrics and health endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	logger := a.logger

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mcfg := metrics.DefaultConfig()
	mcfg.Registerer = reg

	p, err := proxy.New(a.cfg.Transport(),
		proxy.WithLogger(logger),
		proxy.WithMetrics(metrics.New(mcfg)))
	if err != nil {
		return err
	}

	if a.cfg.Redis.Enabled {
		client := backend.NewClient(&backend.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		pub := eventbus.NewRedisPublisher(client,
			eventbus.WithPrefix(a.cfg.Redis.Prefix),
			eventbus.WithSession(p.SessionID),
			eventbus.WithRedisLogger(logger))
		defer pub.Close()

		if err := pub.Ping(ctx); err != nil {
			logger.Warn("Redis недоступен, события будут теряться", slog.Any("error", err))
		}
		pub.Attach(p.Bus())
	}

	p.On(eventbus.Wildcard, func(f frame.Frame) {
		logger.Debug("событие АТС", slog.String("event", f.Event()))
	})

	lost := make(chan struct{})
	var lostOnce sync.Once
	p.On(eventbus.EventDisconnected, func(frame.Frame) {
		lostOnce.Do(func() { close(lost) })
	})

	if err := p.Start(ctx); err != nil {
		return err
	}
	defer p.Close()

	srv := &http.Server{
		Addr:              a.cfg.Metrics.Listen,
		Handler:           newRouter(p, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP сервер запущен", slog.String("listen", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-lost:
			return errConnectionLost
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("остановка", slog.Any("error", err))
	return err
}
