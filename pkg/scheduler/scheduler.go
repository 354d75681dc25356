// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package scheduler runs the periodic consolidation pass.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Scheduler triggers a maintenance function at a fixed interval.
type Scheduler struct {
	run      func(ctx context.Context) error
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
	running  atomic.Bool
}

// NewScheduler creates a new scheduler around the maintenance function.
// A non-positive interval disables it: Start becomes a no-op.
func NewScheduler(run func(ctx context.Context) error, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		run:      run,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the scheduler loop in a background goroutine.
func (s *Scheduler) Start() {
	if s.interval <= 0 {
		s.logger.Info("consolidation scheduler disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.runOnce()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()
	s.logger.Info("consolidation scheduler started", "interval", s.interval)
}

// Stop stops the scheduler. Safe to call only once.
func (s *Scheduler) Stop() {
	if s.interval <= 0 {
		return
	}
	close(s.stopChan)
}

// runOnce runs one pass, skipping the tick when the previous pass is
// still in flight.
func (s *Scheduler) runOnce() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("skipping consolidation tick, previous pass still running")
		return
	}
	defer s.running.Store(false)

	if err := s.run(context.Background()); err != nil {
		s.logger.Error("scheduled consolidation failed", "error", err)
	}
}
