// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smc

import (
	"errors"
	"fmt"
	"log/slog"

	"code.hybscloud.com/kont"
)

// Sink receives one measurement per completed particle.
// It is called on the scheduler goroutine and must not resume, discard, or
// otherwise touch particle state.
type Sink[R any] func(weight float64, result R)

// RunSMC runs n particles of a Cont-world program under Sequential Monte
// Carlo. Each particle runs until it completes or performs Resample; the
// suspended population is handed to resample, and the selected particles
// are resumed for the next generation until none are left.
//
// Completed particles are reported to sink in generation-major order, and
// within a generation in the order of the resampled population.
// A nil resample selects Multinomial with DefaultBucketMultiplier.
//
// Extinction (resample returns no particles or ErrEmptyResamplePool) ends
// the run without error. Invalid weights, runaway particles, replay
// divergence, and other resampler errors end the run with that error.
// Panics raised by the program propagate to the caller.
func RunSMC[R any](program func() kont.Eff[R], n int, resample Resampler[R], rng Source, sink Sink[R], opts ...Option) error {
	return runSMC(contStarter(program), n, resample, rng, sink, opts)
}

// RunSMCExpr runs n particles of an Expr-world program under Sequential
// Monte Carlo. See RunSMC.
func RunSMCExpr[R any](program func() kont.Expr[R], n int, resample Resampler[R], rng Source, sink Sink[R], opts ...Option) error {
	return runSMC(exprStarter(program), n, resample, rng, sink, opts)
}

// jobKind selects how a particle is executed within a generation.
type jobKind uint8

const (
	jobStart  jobKind = iota // fresh execution
	jobResume                // resume the particle's own checkpoint
	jobFork                  // replay a duplicate, then resume it
)

type job[R any] struct {
	index    int
	kind     jobKind
	particle Particle[R]
}

type jobResult[R any] struct {
	index    int
	out      Outcome[R]
	err      error
	panicked bool
	panicVal any
}

// scheduler holds the per-run state of an SMC run.
type scheduler[R any] struct {
	start starter[R]
	rng   Source
	cfg   *config
	log   *slog.Logger
	sink  Sink[R]
	pool  *workerPool[R]

	completed int
}

func runSMC[R any](start starter[R], n int, resample Resampler[R], rng Source, sink Sink[R], opts []Option) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidParticleCount, n)
	}
	if resample == nil {
		resample = Multinomial[R](DefaultBucketMultiplier)
	}
	cfg := newConfig(opts)
	s := &scheduler[R]{
		start: start,
		rng:   rng,
		cfg:   cfg,
		log:   cfg.runLogger(),
		sink:  sink,
	}
	if cfg.workers > 1 {
		if cfg.split == nil {
			s.rng = Locked(rng)
		}
		sources := make([]Source, cfg.workers)
		for w := range sources {
			if cfg.split != nil {
				sources[w] = cfg.split(w)
			} else {
				sources[w] = s.rng
			}
		}
		s.pool = newWorkerPool(sources, s.exec)
		defer s.pool.close()
	}
	s.log.Info("smc run started", "particles", n, "workers", cfg.workers)

	jobs := make([]job[R], n)
	for i := range jobs {
		jobs[i] = job[R]{index: i, kind: jobStart}
	}
	live, err := s.generation(jobs)
	if err != nil {
		return fmt.Errorf("smc: generation 0: %w", err)
	}
	gen := 0
	for len(live) > 0 {
		gen++
		s.log.Debug("smc generation",
			"generation", gen,
			"population", len(live),
			"total_weight", TotalWeight(live),
			"ess", EffectiveSampleSize(live),
		)
		selected, err := resample(live, s.rng)
		if err != nil {
			discardParticles(live)
			if errors.Is(err, ErrEmptyResamplePool) {
				s.log.Warn("smc population extinct", "generation", gen, "error", err)
				break
			}
			return fmt.Errorf("smc: resample generation %d: %w", gen, err)
		}
		if len(selected) == 0 {
			discardParticles(live)
			s.log.Warn("smc population extinct", "generation", gen)
			break
		}
		var seen map[*Checkpoint[R]]struct{}
		jobs, seen = s.claim(selected)
		for _, p := range live {
			if _, ok := seen[p.cont]; !ok {
				p.cont.Discard()
			}
		}
		live, err = s.generation(jobs)
		if err != nil {
			return fmt.Errorf("smc: generation %d: %w", gen, err)
		}
	}
	s.log.Info("smc run finished", "generations", gen, "completed", s.completed)
	return nil
}

// claim turns the resampled population into jobs. The first occurrence of a
// checkpoint resumes it; every later occurrence is forked by replay.
// Particles without a live checkpoint are dropped.
func (s *scheduler[R]) claim(selected []Particle[R]) ([]job[R], map[*Checkpoint[R]]struct{}) {
	jobs := make([]job[R], 0, len(selected))
	seen := make(map[*Checkpoint[R]]struct{}, len(selected))
	for _, p := range selected {
		if p.cont == nil || p.cont.used.Load() != 0 {
			s.log.Warn("smc dropped particle without a live checkpoint")
			continue
		}
		kind := jobResume
		if _, dup := seen[p.cont]; dup {
			kind = jobFork
		} else {
			seen[p.cont] = struct{}{}
		}
		jobs = append(jobs, job[R]{index: len(jobs), kind: kind, particle: p})
	}
	return jobs, seen
}

// generation executes one round of jobs and collects the particles that
// reached a checkpoint. Completed particles are reported to the sink.
func (s *scheduler[R]) generation(jobs []job[R]) ([]Particle[R], error) {
	var live []Particle[R]
	if s.pool == nil {
		for i, j := range jobs {
			var err error
			live, err = s.collect(live, s.exec(j, s.rng))
			if err != nil {
				discardParticles(live)
				discardJobs(jobs[i+1:])
				return nil, err
			}
		}
		return live, nil
	}

	results := make([]jobResult[R], len(jobs))
	s.pool.run(jobs, results)
	for i, r := range results {
		var err error
		live, err = s.collect(live, r)
		if err != nil {
			discardParticles(live)
			discardResults(results[i+1:])
			return nil, err
		}
	}
	return live, nil
}

// collect routes one job result to the sink or to the next population.
func (s *scheduler[R]) collect(live []Particle[R], r jobResult[R]) ([]Particle[R], error) {
	if r.panicked {
		panic(r.panicVal)
	}
	if r.err != nil {
		if errors.Is(r.err, ErrUseAfterResume) {
			s.log.Warn("smc dropped particle", "particle", r.index, "error", r.err)
			return live, nil
		}
		return live, fmt.Errorf("particle %d: %w", r.index, r.err)
	}
	if r.out.Done() {
		s.completed++
		if s.sink != nil {
			s.sink(r.out.Weight, r.out.Result)
		}
		return live, nil
	}
	cp := r.out.Checkpoint
	return append(live, Particle[R]{Weight: cp.weight, Age: cp.age, cont: cp}), nil
}

// exec runs one job with src as the particle's source.
func (s *scheduler[R]) exec(j job[R], src Source) jobResult[R] {
	r := jobResult[R]{index: j.index}
	p := j.particle
	switch j.kind {
	case jobStart:
		ctx := s.cfg.newContext(src, true)
		result, susp := s.start()
		r.out, r.err = settle(ctx, result, susp)
	case jobResume:
		r.out, r.err = p.cont.resumeWith(p.Weight, p.Age, src)
	case jobFork:
		cp, err := p.cont.fork(s.start, s.cfg.maxSteps)
		if err != nil {
			r.err = err
			break
		}
		r.out, r.err = cp.resumeWith(p.Weight, p.Age, src)
	}
	return r
}

func discardParticles[R any](particles []Particle[R]) {
	for _, p := range particles {
		if p.cont != nil {
			p.cont.Discard()
		}
	}
}

func discardJobs[R any](jobs []job[R]) {
	for _, j := range jobs {
		if j.kind == jobResume {
			j.particle.cont.Discard()
		}
	}
}

func discardResults[R any](results []jobResult[R]) {
	for _, r := range results {
		if !r.panicked && r.err == nil && !r.out.Done() {
			r.out.Checkpoint.Discard()
		}
	}
}
