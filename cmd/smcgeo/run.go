// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math"
	"math/rand/v2"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"
	slogmulti "github.com/samber/slog-multi"

	"code.hybscloud.com/smc"
	"code.hybscloud.com/smc/internal/models"
	"code.hybscloud.com/smc/measure"
	"code.hybscloud.com/smc/measure/sqlitestore"
)

// newLogger fans records out to a text handler on stderr and, when
// logFile is set, a JSON handler appending to that file. The returned
// close function releases the file.
func newLogger(stderr io.Writer, cfg Config) (*slog.Logger, func() error, error) {
	level, err := cfg.level()
	if err != nil {
		return nil, nil, err
	}
	handlers := []slog.Handler{
		slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}),
	}
	closeFn := func() error { return nil }
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
		closeFn = f.Close
	}
	return slog.New(slogmulti.Fanout(handlers...)), closeFn, nil
}

func count(n int) float64 { return float64(n) }

// run executes one configured run of the geometric model, reports the
// summary to out, and returns the run id.
func run(cfg Config, log *slog.Logger, out io.Writer) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}
	resample, _ := cfg.resampler()
	runID := uuid.NewString()

	var c measure.Collector[int]
	sinks := []smc.Sink[int]{c.Add}

	var store *sqlitestore.Store
	var rec *sqlitestore.Recorder[int]
	if cfg.DB != "" {
		var err error
		store, err = sqlitestore.Open(cfg.DB)
		if err != nil {
			return runID, fmt.Errorf("open db: %w", err)
		}
		defer store.Close()
		if err := store.Init(); err != nil {
			return runID, fmt.Errorf("init db: %w", err)
		}
		err = store.InsertRun(sqlitestore.Run{ID: runID, Mode: cfg.Mode, Particles: cfg.Particles, Seed: cfg.Seed})
		if err != nil {
			return runID, fmt.Errorf("insert run: %w", err)
		}
		rec, err = sqlitestore.NewRecorder(store, runID, count)
		if err != nil {
			return runID, fmt.Errorf("start recorder: %w", err)
		}
		sinks = append(sinks, rec.Record)
	}

	opts := []smc.Option{smc.WithLogger(log), smc.WithRunID(runID), smc.WithMaxSteps(cfg.MaxSteps)}
	if cfg.Workers > 1 {
		seed := cfg.Seed
		opts = append(opts, smc.WithWorkers(cfg.Workers, func(w int) smc.Source {
			return rand.New(rand.NewPCG(seed, uint64(w)+1))
		}))
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, 0))
	program := models.Geometric(1-cfg.ContinueProb, cfg.Factor)
	sink := measure.Tee(sinks...)

	var err error
	switch cfg.Mode {
	case "importance":
		err = smc.RunImportance(program, cfg.Particles, rng, sink, opts...)
	case "smc":
		err = smc.RunSMC(program, cfg.Particles, resample, rng, sink, opts...)
	}

	if rec != nil {
		if err != nil {
			err = errors.Join(err, rec.Rollback(), store.FinishRun(runID, "failed", 0))
		} else if err = rec.Commit(); err == nil {
			err = store.FinishRun(runID, "done", rec.Len())
		}
	}
	if err != nil {
		return runID, err
	}
	report(out, runID, cfg, &c)
	return runID, nil
}

// report prints the run summary and a weighted histogram of the counts.
func report(out io.Writer, runID string, cfg Config, c *measure.Collector[int]) {
	fmt.Fprintf(out, "run:            %s (%s)\n", runID, cfg.Mode)
	fmt.Fprintf(out, "measurements:   %d\n", c.Len())
	fmt.Fprintf(out, "total weight:   %.6g\n", c.TotalWeight())
	fmt.Fprintf(out, "weighted mean:  %.6g\n", c.WeightedMean(count))
	if m := models.GeometricMean(1-cfg.ContinueProb, cfg.Factor); !math.IsInf(m, 1) {
		fmt.Fprintf(out, "analytic mean:  %.6g\n", m)
	} else {
		fmt.Fprintf(out, "analytic mean:  diverges\n")
	}
	fmt.Fprintf(out, "mean count:     %.6g\n", c.Mean(count))
	fmt.Fprintf(out, "ess:            %.6g\n", c.EffectiveSampleSize())

	h := measure.Histogram(c, func(n int) int { return n })
	for _, k := range slices.Sorted(maps.Keys(h)) {
		fmt.Fprintf(out, "%4d %6.4f %s\n", k, h[k], strings.Repeat("#", int(h[k]*60)))
	}
}
