package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/timoknapp/gulfer/pkg/backup"
	"github.com/timoknapp/gulfer/pkg/config"
	"github.com/timoknapp/gulfer/pkg/logger"
)

type Scheduler struct {
	mu     sync.Mutex
	c      *cron.Cron
	config config.BackupConfig
	job    *backup.Job
	load   func() (config.BackupConfig, error)
}

// FromEnv reads the backup settings from the environment.
func FromEnv() (config.BackupConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.BackupConfig{}, err
	}
	return cfg.Backup, nil
}

// New prepares a scheduler for the backup job. The job's directory follows
// the configuration.
func New(cfg config.BackupConfig, job *backup.Job) (*Scheduler, error) {
	s := &Scheduler{config: cfg, job: job, load: FromEnv}
	c, err := s.build(cfg)
	if err != nil {
		return nil, err
	}
	s.c = c
	return s, nil
}

func (s *Scheduler) build(cfg config.BackupConfig) (*cron.Cron, error) {
	c := cron.New() // standard 5-field spec, runs in server local time
	if !cfg.Enabled {
		return c, nil
	}
	_, err := c.AddFunc(cfg.CronSpec, func() {
		logger.Info("Scheduler tick: running backup job")
		if _, err := s.RunNow(context.Background()); err != nil {
			logger.Error("Scheduled backup failed: %v", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RunNow runs the backup job outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (backup.Result, error) {
	s.mu.Lock()
	job := *s.job
	job.Dir = s.config.Dir
	s.mu.Unlock()
	return job.Run(ctx)
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.config.Enabled {
		logger.Info("Backup scheduler disabled")
		return
	}
	logger.Info("Starting scheduler (cron=%s, dir=%s)", s.config.CronSpec, s.config.Dir)
	s.c.Start()
}

// Stop halts the schedule and waits for a running backup to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()
	<-c.Stop().Done()
}

// Reload re-reads the backup configuration and restarts the schedule if it
// changed.
func (s *Scheduler) Reload() error {
	newConfig, err := s.load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config == newConfig {
		logger.Info("Scheduler configuration unchanged, no restart needed")
		return nil
	}

	c, err := s.build(newConfig)
	if err != nil {
		return err
	}
	s.c.Stop()
	logger.Info("Stopped scheduler for configuration reload")

	s.c = c
	s.config = newConfig
	if newConfig.Enabled {
		s.c.Start()
		logger.Info("Scheduler restarted with new configuration (cron=%s, dir=%s)", newConfig.CronSpec, newConfig.Dir)
	} else {
		logger.Info("Scheduler disabled via configuration reload")
	}
	return nil
}

// GetConfig returns the current scheduler configuration
func (s *Scheduler) GetConfig() config.BackupConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}
