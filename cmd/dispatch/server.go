package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/config"
	"github.com/Netflix/dispatch-sub003/internal/cost"
	"github.com/Netflix/dispatch-sub003/internal/events"
	"github.com/Netflix/dispatch-sub003/internal/handlers"
	"github.com/Netflix/dispatch-sub003/internal/lifecycle"
	"github.com/Netflix/dispatch-sub003/internal/middleware"
	"github.com/Netflix/dispatch-sub003/internal/notifications"
	"github.com/Netflix/dispatch-sub003/internal/orchestrator"
	"github.com/Netflix/dispatch-sub003/internal/plugins"
	"github.com/Netflix/dispatch-sub003/internal/resolver"
	"github.com/Netflix/dispatch-sub003/internal/signals"
)

// services is the wired object graph shared by the server and the
// one-shot commands.
type services struct {
	registry     *plugins.Registry
	events       *events.Service
	notifier     *notifications.Dispatcher
	incidents    *lifecycle.IncidentService
	cases        *lifecycle.CaseService
	participants *lifecycle.Participants
	cost         *cost.Service
	mfa          *lifecycle.MfaService
	processor    *signals.Processor
	queue        *signals.Queue
	consumer     *signals.Consumer
}

func buildServices(cfg *config.Config, db *gorm.DB) *services {
	registry := newRegistry(db)
	ev := events.NewService(db)
	res := resolver.NewService(db, registry)
	orch := orchestrator.New(db, ev)
	notifier := notifications.NewDispatcher(registry)
	costSvc := cost.NewService(db, registry)
	participants := lifecycle.NewParticipants(db, ev)

	incidents := lifecycle.NewIncidentService(db, registry, res, orch, ev, notifier, costSvc, participants)
	cases := lifecycle.NewCaseService(db, registry, res, orch, ev, notifier, costSvc, participants, incidents)

	depth := cfg.SignalQueueDepth
	if depth <= 0 {
		depth = signals.DefaultQueueDepth
	}
	processor := signals.NewProcessor(db, cases, ev)
	queue := signals.NewQueue(processor, depth)

	return &services{
		registry:     registry,
		events:       ev,
		notifier:     notifier,
		incidents:    incidents,
		cases:        cases,
		participants: participants,
		cost:         costSvc,
		mfa:          lifecycle.NewMfaService(db, registry),
		processor:    processor,
		queue:        queue,
		consumer:     signals.NewConsumer(registry, queue),
	}
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := connect()
		if err != nil {
			return err
		}
		svc := buildServices(cfg, db)

		jwtAuth := middleware.NewJWTAuthMiddleware(db, &middleware.JWTAuthConfig{
			Enabled:           cfg.AuthEnabled,
			JWTSecret:         cfg.JWTSecret,
			JWTExpiryHours:    cfg.JWTExpiryHours,
			AllowRegistration: cfg.AllowRegistration,
			SkipPaths: []string{
				"/health",
				"/auth/login",
				"/webhook/*",
			},
		})
		if cfg.AuthEnabled {
			log.Printf("JWT authentication enabled")
		} else {
			log.Printf("JWT authentication DISABLED")
		}

		timeline := handlers.NewTimelineHub()
		apiHandler := handlers.NewAPIHandler(db, svc.incidents, svc.cases,
			svc.participants, svc.events, svc.cost, svc.queue, svc.mfa, timeline)

		ingestAuth := middleware.NewAPIKeyMiddleware(&middleware.APIKeyConfig{
			Keys:    cfg.IngestAPIKeys,
			Enabled: len(cfg.IngestAPIKeys) > 0,
		})

		mux := http.NewServeMux()
		handlers.NewHTTPHandler().SetupRoutes(mux)
		handlers.NewAuthHandler(jwtAuth).SetupRoutes(mux)
		apiHandler.SetupRoutes(mux)
		apiHandler.SetupWebhookRoutes(mux, ingestAuth)

		corsMiddleware := middleware.NewCORSMiddleware(cfg.CORSOrigins...)
		handler := corsMiddleware.Wrap(middleware.RequestIDMiddleware(jwtAuth.Wrap(mux)))

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		workers := cfg.SignalWorkers
		if workers <= 0 {
			workers = signals.DefaultWorkers
		}
		svc.queue.Start(ctx, workers)
		log.Printf("Signal queue started with %d workers", workers)

		httpServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
			Handler: handler,
		}
		serveErr := make(chan error, 1)
		go func() {
			log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()

		select {
		case err := <-serveErr:
			return err
		case <-ctx.Done():
		}

		log.Println("Received shutdown signal, cleaning up...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down HTTP server: %v", err)
		}
		svc.queue.Stop()
		log.Println("Shutdown complete")
		return nil
	},
}
