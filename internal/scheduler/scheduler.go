// Package scheduler runs the periodic background jobs. Every job fans out
// across enabled projects, never overlaps itself, and one project's
// failure never stops the sweep.
package scheduler

import (
	"context"
	"log"
	"sync"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/database"
)

// Job is one periodic task, invoked once per enabled project per tick.
type Job interface {
	Name() string
	Schedule() string // cron spec, e.g. "@every 1m"
	Run(ctx context.Context, project *database.Project) error
}

// Scheduler drives registered jobs on their cron schedules.
type Scheduler struct {
	db   *gorm.DB
	cron *cron.Cron
	jobs []Job
}

// New creates a scheduler.
func New(db *gorm.DB) *Scheduler {
	return &Scheduler{
		db:   db,
		cron: cron.New(),
	}
}

// Register adds a job. Must be called before Start.
func (s *Scheduler) Register(job Job) error {
	s.jobs = append(s.jobs, job)
	var running sync.Mutex
	_, err := s.cron.AddFunc(job.Schedule(), func() {
		// Skip the tick when the previous run is still going.
		if !running.TryLock() {
			log.Printf("Job %s still running, skipping tick", job.Name())
			return
		}
		defer running.Unlock()
		s.sweep(job)
	})
	return err
}

// sweep runs the job against every enabled project, isolating failures.
func (s *Scheduler) sweep(job Job) {
	var projects []database.Project
	if err := s.db.Where("enabled = ?", true).Find(&projects).Error; err != nil {
		log.Printf("Job %s could not list projects: %v", job.Name(), err)
		return
	}
	for i := range projects {
		func(project *database.Project) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Job %s panicked on project %s: %v", job.Name(), project.Name, r)
				}
			}()
			if err := job.Run(context.Background(), project); err != nil {
				log.Printf("Job %s failed on project %s: %v", job.Name(), project.Name, err)
			}
		}(&projects[i])
	}
}

// Start begins scheduling. Returns immediately; jobs run on the cron's
// goroutine.
func (s *Scheduler) Start() {
	for _, job := range s.jobs {
		log.Printf("Scheduled job %s (%s)", job.Name(), job.Schedule())
	}
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
