package main

import (
	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"feedcast/internal/config"
	"feedcast/internal/logging"
	"feedcast/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		&asynq.SchedulerOpts{},
	)

	if err := register(scheduler, cfg.Worker); err != nil {
		log.Fatalf("could not register task: %v", err)
	}

	log.Printf("Scheduler starting (commit: %s)", CommitSHA)
	if err := scheduler.Run(); err != nil {
		log.Fatalf("could not run scheduler: %v", err)
	}
}

type registrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// register adds the periodic scan and reconcile tasks.
func register(s registrar, cfg config.WorkerConfig) error {
	periodic := []struct {
		spec string
		task func() (*asynq.Task, error)
	}{
		{cfg.ScanInterval, tasks.NewScanJobsTask},
		{cfg.ReconcileInterval, tasks.NewReconcileTask},
	}
	for _, p := range periodic {
		task, err := p.task()
		if err != nil {
			return err
		}
		id, err := s.Register(p.spec, task, asynq.MaxRetry(1))
		if err != nil {
			return err
		}
		log.Printf("Registered %s at %q (entry %s)", task.Type(), p.spec, id)
	}
	return nil
}
