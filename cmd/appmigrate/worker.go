package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"go.kirha.ai/appmigrate"
	"go.kirha.ai/appmigrate/metrics"
)

func newWorkerCmd(load func() (Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume dispatch and status messages and serve metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = rt.Close()
			}()

			if rt.local != nil {
				rt.logger.Warn("worker uses the in-memory queue and only sees its own messages")
			}

			return runWorker(ctx, rt, cfg.Metrics.Addr)
		},
	}
}

func runWorker(ctx context.Context, rt *runtime, metricsAddr string) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rt.subscriber.Subscribe(ctx, appmigrate.TopicDispatch, rt.engine.HandleDispatch)
	})
	g.Go(func() error {
		return rt.subscriber.Subscribe(ctx, appmigrate.TopicStatus, rt.engine.HandleStatus)
	})

	if metricsAddr != "" {
		server := metrics.NewServer(metricsAddr)
		g.Go(func() error {
			if err := server.Run(ctx); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		rt.logger.Info("serving metrics", "addr", metricsAddr)
	}

	rt.logger.Info("worker started")
	err := g.Wait()
	rt.logger.Info("worker stopped")
	return err
}
