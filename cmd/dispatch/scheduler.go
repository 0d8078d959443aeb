package main

import (
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Netflix/dispatch-sub003/internal/scheduler"
	"github.com/Netflix/dispatch-sub003/internal/signals"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the periodic background jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := connect()
		if err != nil {
			return err
		}
		svc := buildServices(cfg, db)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// The scheduler process runs its own signal workers so consumed
		// signals are processed here, not shipped to the API server.
		workers := cfg.SignalWorkers
		if workers <= 0 {
			workers = signals.DefaultWorkers
		}
		svc.queue.Start(ctx, workers)

		sched := scheduler.New(db)
		jobs := []scheduler.Job{
			&scheduler.SignalConsumeJob{Consumer: svc.consumer},
			&scheduler.MonitorSyncJob{DB: db, Registry: svc.registry, Events: svc.events},
			&scheduler.EvergreenJob{DB: db, Notifier: svc.notifier},
			&scheduler.ShiftFeedbackJob{DB: db, Notifier: svc.notifier},
			&scheduler.TagSyncJob{DB: db},
			&scheduler.SourceSyncJob{DB: db, Registry: svc.registry},
			&scheduler.CostRollupJob{DB: db, Cost: svc.cost},
		}
		for _, job := range jobs {
			if err := sched.Register(job); err != nil {
				return err
			}
		}
		sched.Start()

		<-ctx.Done()
		log.Println("Received shutdown signal, stopping scheduler...")
		sched.Stop()
		svc.queue.Stop()
		log.Println("Shutdown complete")
		return nil
	},
}
