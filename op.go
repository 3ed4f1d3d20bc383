// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smc

import (
	"fmt"
	"math"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// Resample is the checkpoint effect.
// Perform(Resample{}) hands the particle back to the scheduler at the next
// generation barrier. Under importance sampling it returns immediately.
type Resample struct {
	kont.Phantom[struct{}]
}

// DispatchParticle handles Resample on the particle context.
// Returns iox.ErrWouldBlock when the particle must wait for the generation
// barrier; the suspension stays unconsumed and becomes the continuation.
func (Resample) DispatchParticle(ctx *particleContext) (kont.Resumed, error) {
	if !ctx.suspend {
		ctx.steps = 0
		return struct{}{}, nil
	}
	if ctx.skip > 0 {
		// Replaying a fork: this checkpoint was already passed.
		ctx.skip--
		ctx.passed++
		ctx.steps = 0
		return struct{}{}, nil
	}
	return nil, iox.ErrWouldBlock
}

// Uniform is the effect operation for drawing a float64 in [0, 1).
// Perform(Uniform{}) never suspends.
type Uniform struct {
	kont.Phantom[float64]
}

// DispatchParticle draws from the particle's source, recording the draw
// so that the trajectory can be replayed. While replaying, draws come from
// the recorded trace instead.
func (Uniform) DispatchParticle(ctx *particleContext) (kont.Resumed, error) {
	if ctx.replaying {
		if ctx.cursor >= len(ctx.replay) {
			return nil, ErrReplayDiverged
		}
		u := ctx.replay[ctx.cursor]
		ctx.cursor++
		return u, nil
	}
	u := ctx.rng.Float64()
	if ctx.record {
		ctx.trace = append(ctx.trace, u)
	}
	return u, nil
}

// Score is the effect operation for weighting the running particle.
// Perform(Score{Factor: d}) multiplies the particle weight by d.
type Score struct {
	kont.Phantom[struct{}]
	Factor float64
}

// DispatchParticle multiplies the running weight by the factor.
// Negative, NaN, and infinite factors fail with ErrInvalidWeight, and so does
// a product that overflows to +Inf.
func (s Score) DispatchParticle(ctx *particleContext) (kont.Resumed, error) {
	if !validWeight(s.Factor) {
		return nil, fmt.Errorf("%w: score factor %v", ErrInvalidWeight, s.Factor)
	}
	w := ctx.weight * s.Factor
	if !validWeight(w) {
		return nil, fmt.Errorf("%w: weight overflow %v * %v", ErrInvalidWeight, ctx.weight, s.Factor)
	}
	ctx.weight = w
	return struct{}{}, nil
}

func validWeight(d float64) bool {
	return d >= 0 && !math.IsInf(d, 1)
}
