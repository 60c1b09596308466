// Package jobs runs the background maintenance schedules: the stale
// puppet handler cleanup and the bot presence idle sweep.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/emberian/tulip/internal/config"
	"github.com/emberian/tulip/internal/presence"
	"github.com/emberian/tulip/internal/puppets"
)

// Service owns the cron scheduler for background maintenance.
type Service struct {
	cron     *cron.Cron
	logger   *slog.Logger
	cfg      config.JobsConfig
	puppets  *puppets.Service
	presence *presence.Service
}

// NewService creates the jobs service.
func NewService(log *slog.Logger, cfg config.JobsConfig, puppetsSvc *puppets.Service, presenceSvc *presence.Service) *Service {
	if log == nil {
		log = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Service{
		cron:     cron.New(cron.WithParser(parser)),
		logger:   log.With(slog.String("service", "jobs")),
		cfg:      cfg,
		puppets:  puppetsSvc,
		presence: presenceSvc,
	}
}

// Start registers the schedules and starts the cron loop.
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.PuppetHandlerCleanupCron, s.runHandlerCleanup); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.PresenceSweepCron, s.runPresenceSweep); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("background jobs scheduled",
		slog.String("handler_cleanup", s.cfg.PuppetHandlerCleanupCron),
		slog.String("presence_sweep", s.cfg.PresenceSweepCron))
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (s *Service) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) runHandlerCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	removed, err := s.puppets.CleanupStaleHandlers(ctx, false)
	if err != nil {
		s.logger.Error("stale handler cleanup", slog.String("err", err.Error()))
		return
	}
	if removed > 0 {
		s.logger.Info("stale puppet handlers removed", slog.Int64("count", removed))
	}
}

func (s *Service) runPresenceSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	marked, err := s.presence.SweepIdle(ctx, s.cfg.PresenceIdleTimeout())
	if err != nil {
		s.logger.Error("presence sweep", slog.String("err", err.Error()))
		return
	}
	if marked > 0 {
		s.logger.Info("idle bots marked disconnected", slog.Int("count", marked))
	}
}
