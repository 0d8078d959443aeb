package main

import (
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/signals"
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Signal pipeline commands",
}

// signalsConsumeCmd drains each project's consumer plugin once and
// processes everything it pulled, then exits. Useful for backfills and
// for deployments that run consumption from an external cron.
var signalsConsumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Pull and process pending signals once",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := connect()
		if err != nil {
			return err
		}
		svc := buildServices(cfg, db)

		workers := cfg.SignalWorkers
		if workers <= 0 {
			workers = signals.DefaultWorkers
		}
		svc.queue.Start(cmd.Context(), workers)

		var projects []database.Project
		if err := db.Where("enabled = ?", true).Find(&projects).Error; err != nil {
			return err
		}
		total := 0
		for i := range projects {
			n, err := svc.consumer.ConsumeProject(cmd.Context(), projects[i].ID, 0)
			if err != nil {
				log.Printf("Consume failed for project %s: %v", projects[i].Name, err)
				continue
			}
			total += n
		}
		log.Printf("Consumed %d signals across %d projects", total, len(projects))

		for svc.queue.Len() > 0 {
			time.Sleep(100 * time.Millisecond)
		}
		svc.queue.Stop()
		return database.Close()
	},
}

func init() {
	signalsCmd.AddCommand(signalsConsumeCmd)
}
