// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smc

import (
	"fmt"
	"slices"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/kont"
)

// particleContext is the execution context of the running particle.
// It is owned by exactly one particle and touched only by the goroutine
// currently executing that particle's body.
type particleContext struct {
	weight float64
	age    uint
	rng    Source

	// suspend binds Resample to a checkpoint (SMC) or a no-op (importance).
	suspend bool
	// passed counts the checkpoints this trajectory has reached.
	passed int

	// record keeps every Uniform draw in trace for replay.
	record bool
	trace  []float64

	// replaying feeds Uniform from replay and skips checkpoints
	// until the fork point is reached.
	replaying bool
	replay    []float64
	cursor    int
	skip      int

	steps    int
	maxSteps int
}

// particleDispatcher is the structural interface for particle effects.
// DispatchParticle returns iox.ErrWouldBlock at a checkpoint.
type particleDispatcher interface {
	DispatchParticle(ctx *particleContext) (kont.Resumed, error)
}

// tick counts one effect operation against the runaway guard.
func (ctx *particleContext) tick() error {
	ctx.steps++
	if ctx.maxSteps > 0 && ctx.steps > ctx.maxSteps {
		return fmt.Errorf("%w: more than %d effects without a checkpoint", ErrRunawayComputation, ctx.maxSteps)
	}
	return nil
}

// Particle is one weighted trajectory suspended at a checkpoint.
// Resampling strategies may copy, select, and reweight particles;
// the continuation is owned by the scheduler and resumed at most once.
type Particle[R any] struct {
	Weight float64
	Age    uint

	cont *Checkpoint[R]
}

// Checkpoint returns the particle's suspended computation.
func (p Particle[R]) Checkpoint() *Checkpoint[R] { return p.cont }

// Outcome is the result of running a particle until it completes or
// reaches a checkpoint. Checkpoint is nil when the program completed with
// Result; Weight is the running weight at that point in both cases.
type Outcome[R any] struct {
	Result     R
	Weight     float64
	Checkpoint *Checkpoint[R]
}

// Done reports whether the program completed.
func (o Outcome[R]) Done() bool { return o.Checkpoint == nil }

// Checkpoint is a one-shot resumption handle for a computation suspended
// on Resample. Resume may succeed at most once; later calls return
// ErrUseAfterResume and leave the computation untouched.
type Checkpoint[R any] struct {
	used atomix.Uint32
	ctx  *particleContext
	susp *kont.Suspension[R]

	// Snapshot at capture time. The trace prefix is immutable.
	weight float64
	age    uint
	passed int
	trace  []float64
}

func newCheckpoint[R any](ctx *particleContext, susp *kont.Suspension[R]) *Checkpoint[R] {
	n := len(ctx.trace)
	return &Checkpoint[R]{
		ctx:    ctx,
		susp:   susp,
		weight: ctx.weight,
		age:    ctx.age,
		passed: ctx.passed,
		trace:  ctx.trace[:n:n],
	}
}

// Weight returns the particle weight captured at the checkpoint.
func (c *Checkpoint[R]) Weight() float64 { return c.weight }

// Age returns the number of generations the particle has survived.
func (c *Checkpoint[R]) Age() uint { return c.age }

// Resume continues the computation with its captured weight until the
// next checkpoint or completion.
func (c *Checkpoint[R]) Resume() (Outcome[R], error) {
	return c.resumeWith(c.weight, c.age, nil)
}

// Discard drops the computation without resuming it.
func (c *Checkpoint[R]) Discard() {
	if c.used.Add(1) != 1 {
		return
	}
	c.susp.Discard()
}

// resumeWith continues the computation with the given weight and age as the
// active particle state. A non-nil src replaces the particle's source.
func (c *Checkpoint[R]) resumeWith(weight float64, age uint, src Source) (Outcome[R], error) {
	if c.used.Add(1) != 1 {
		return Outcome[R]{}, ErrUseAfterResume
	}
	ctx := c.ctx
	ctx.weight = weight
	ctx.age = age + 1
	ctx.steps = 0
	if src != nil {
		ctx.rng = src
	}
	result, next := c.susp.Resume(struct{}{})
	return settle(ctx, result, next)
}

// fork materializes an independent copy of the suspended trajectory by
// re-running the program from scratch, feeding back the recorded draws
// and passing the checkpoints already reached. The receiver is not touched.
func (c *Checkpoint[R]) fork(start starter[R], maxSteps int) (*Checkpoint[R], error) {
	ctx := &particleContext{
		weight:    1,
		suspend:   true,
		record:    true,
		replaying: true,
		replay:    c.trace,
		skip:      c.passed - 1,
		maxSteps:  maxSteps,
	}
	result, susp := start()
	out, err := settle(ctx, result, susp)
	if err != nil {
		return nil, err
	}
	if out.Done() || ctx.passed != c.passed || ctx.cursor != len(c.trace) {
		if !out.Done() {
			out.Checkpoint.Discard()
		}
		return nil, ErrReplayDiverged
	}
	ctx.replaying = false
	ctx.replay = nil
	ctx.trace = slices.Clone(c.trace)
	ctx.weight = c.weight
	ctx.age = c.age

	cp := out.Checkpoint
	cp.weight = c.weight
	cp.age = c.age
	cp.trace = c.trace
	return cp, nil
}
