package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"alcyxob/notes-app/internal/api"
	"alcyxob/notes-app/internal/repository/mongo"
	"alcyxob/notes-app/internal/service"
	"alcyxob/notes-app/internal/watermark"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd(configPath *string) *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API.

With --with-worker the watermark worker pool runs in the same process. The
memory queue driver only works in this mode.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return runServe(a, withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also consume watermark jobs in this process")
	return cmd
}

func runServe(a *app, withWorker bool) error {
	log := a.log
	log.WithField("version", Version).Info("starting notes server")

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

	// --- Ensure Indexes ---
	go func() {
		if err := mongo.EnsureIndexes(ctx, a.docDB); err != nil {
			log.WithError(err).Warn("could not ensure MongoDB indexes")
		}
	}()

	// --- Initialize Services ---
	engine := watermark.NewEngine()
	notifier := service.NewFavoriteNotifier(a.store.Favorites(), mongo.NewMongoNotificationRepository(a.docDB), log.WithField("component", "notifier"))
	pipeline := service.NewPipeline(a.store, a.objects, engine, a.producer, a.cfg.Upload, a.cfg.Watermark, log)
	views := service.NewViewService(
		a.store,
		a.objects,
		engine,
		service.NewAccessPolicy(a.store.Users(), a.cfg.Access),
		mongo.NewMongoViewLogRepository(a.docDB),
		a.cfg.Watermark,
		a.cfg.View,
		a.loadLogo(),
		log.WithField("component", "view"),
	)
	svc := api.Services{
		Auth:        service.NewAuthService(a.store.Users(), a.cfg.JWT.Secret, a.cfg.JWT.Expiration),
		Documents:   service.NewDocumentService(pipeline, notifier),
		Versions:    service.NewVersionService(pipeline, notifier),
		Views:       views,
		DeadLetters: service.NewDeadLetterService(a.deadLetters(), a.store.Versions(), a.producer, log),
	}

	// --- Initialize Gin Engine ---
	gin.SetMode(a.cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, a.cfg.JWT.Secret, a.cfg.Upload.MaxBytes, svc, log)

	server := &http.Server{
		Addr:         a.cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if withWorker {
		w, err := a.newWorker(engine)
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(gctx) })
	}
	g.Go(func() error {
		log.WithField("address", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	// --- Graceful Shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		views.Wait()
		notifier.Wait()
		return nil
	})

	err := g.Wait()
	log.Info("server exiting")
	return err
}
