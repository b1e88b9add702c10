package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Runner ticks the scheduler: each tick sweeps expired records and then
// dispatches due ones. One Runner per process is enough; the conditional
// sending claim makes overlapping runners across replicas safe.
type Runner struct {
	svc      Service
	interval time.Duration
	stopChan chan struct{}
	logger   *slog.Logger
}

func NewRunner(svc Service, interval time.Duration, logger *slog.Logger) *Runner {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Runner{
		svc:      svc,
		interval: interval,
		stopChan: make(chan struct{}),
		logger:   logger.With("component", "scheduler-runner"),
	}
}

func (r *Runner) Start() {
	go r.run()
	r.logger.Info("scheduler runner started", "interval", r.interval)
}

func (r *Runner) Stop() {
	close(r.stopChan)
	r.logger.Info("scheduler runner stopped")
}

func (r *Runner) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.tick()
		case <-r.stopChan:
			return
		}
	}
}

func (r *Runner) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()

	now := time.Now().UTC()
	swept, err := r.svc.SweepExpired(ctx, now)
	if err != nil {
		r.logger.Error("expiry sweep failed", "error", err)
	} else if swept > 0 {
		r.logger.Info("expired notifications swept", "count", swept)
	}

	sent, err := r.svc.DispatchDue(ctx, now)
	if err != nil {
		r.logger.Error("due dispatch failed", "error", err)
	} else if sent > 0 {
		r.logger.Info("scheduled notifications dispatched", "count", sent)
	}
}
