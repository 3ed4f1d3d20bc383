// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smc

import "log/slog"

// Option customizes a run.
type Option func(*config)

type config struct {
	logger   *slog.Logger
	maxSteps int
	workers  int
	split    func(worker int) Source
	runID    string
}

func newConfig(opts []Option) *config {
	cfg := &config{
		logger:  slog.New(slog.DiscardHandler),
		workers: 1,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithLogger sets the logger for run and generation events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxSteps bounds the number of effect operations a particle may perform
// between two checkpoints. A particle that exceeds it fails with
// ErrRunawayComputation. Zero disables the guard.
func WithMaxSteps(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxSteps = n
		}
	}
}

// WithWorkers runs each generation on n worker goroutines.
// Worker w draws from split(w); with a nil split all workers share the run
// source behind a mutex, which keeps draws safe but not reproducible.
// n <= 1 runs sequentially on the calling goroutine.
func WithWorkers(n int, split func(worker int) Source) Option {
	return func(c *config) {
		c.workers = max(n, 1)
		c.split = split
	}
}

func (c *config) newContext(rng Source, suspend bool) *particleContext {
	return &particleContext{
		weight:   1,
		rng:      rng,
		suspend:  suspend,
		record:   suspend,
		maxSteps: c.maxSteps,
	}
}
