package main

import (
	"context"
	"time"

	"alcyxob/notes-app/internal/metrics"
	"alcyxob/notes-app/internal/watermark"

	"github.com/spf13/cobra"
)

func workerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume watermark jobs from Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return runWorker(a)
		},
	}
}

func runWorker(a *app) error {
	ctx, stop := signalContext()
	defer stop()

	if err := a.openDatabases(); err != nil {
		return err
	}
	if err := a.openStorage(ctx); err != nil {
		return err
	}
	if err := a.openProducer(); err != nil {
		return err
	}
	w, err := a.newWorker(watermark.NewEngine())
	if err != nil {
		return err
	}

	if a.cfg.Metrics.Enabled && a.cfg.Worker.MetricsAddress != "" {
		srv := metrics.StartMetricsServer(a.cfg.Worker.MetricsAddress, func(err error) {
			a.log.WithError(err).Error("metrics listener stopped")
		})
		a.onClose(func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		a.log.WithField("address", a.cfg.Worker.MetricsAddress).Info("worker metrics listening")
	}

	return w.Run(ctx)
}
