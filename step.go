// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smc

import (
	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// starter begins a fresh execution of a program and evaluates it until the
// first effect suspension.
type starter[R any] func() (R, *kont.Suspension[R])

func contStarter[R any](program func() kont.Eff[R]) starter[R] {
	return func() (R, *kont.Suspension[R]) {
		return kont.Step(program())
	}
}

func exprStarter[R any](program func() kont.Expr[R]) starter[R] {
	return func() (R, *kont.Suspension[R]) {
		return kont.StepExpr(program())
	}
}

// advance dispatches effects on ctx until the computation completes or
// blocks on a checkpoint. On a checkpoint the suspension is returned
// unconsumed. On error the suspension is discarded.
func advance[R any](ctx *particleContext, result R, susp *kont.Suspension[R]) (R, *kont.Suspension[R], error) {
	var zero R
	for susp != nil {
		pop, ok := susp.Op().(particleDispatcher)
		if !ok {
			panic("smc: unhandled effect in particle")
		}
		if err := ctx.tick(); err != nil {
			susp.Discard()
			return zero, nil, err
		}
		v, err := pop.DispatchParticle(ctx)
		if err != nil {
			if iox.IsWouldBlock(err) {
				ctx.passed++
				return zero, susp, nil
			}
			susp.Discard()
			return zero, nil, err
		}
		result, susp = susp.Resume(v)
	}
	return result, nil, nil
}

// settle advances the computation and packages the result as an Outcome.
func settle[R any](ctx *particleContext, result R, susp *kont.Suspension[R]) (Outcome[R], error) {
	result, susp, err := advance(ctx, result, susp)
	if err != nil {
		return Outcome[R]{}, err
	}
	if susp == nil {
		return Outcome[R]{Result: result, Weight: ctx.weight}, nil
	}
	return Outcome[R]{Weight: ctx.weight, Checkpoint: newCheckpoint(ctx, susp)}, nil
}

// Start runs a Cont-world program as a fresh particle with weight 1 until it
// completes or reaches its first checkpoint.
//
// Example:
//
//	out, err := smc.Start(program, rand.New(rand.NewPCG(1, 2)))
//	for err == nil && !out.Done() {
//		out, err = out.Checkpoint.Resume()
//	}
func Start[R any](program kont.Eff[R], rng Source, opts ...Option) (Outcome[R], error) {
	return start(func() (R, *kont.Suspension[R]) { return kont.Step(program) }, rng, opts)
}

// StartExpr runs an Expr-world program as a fresh particle with weight 1
// until it completes or reaches its first checkpoint.
func StartExpr[R any](program kont.Expr[R], rng Source, opts ...Option) (Outcome[R], error) {
	return start(func() (R, *kont.Suspension[R]) { return kont.StepExpr(program) }, rng, opts)
}

func start[R any](s starter[R], rng Source, opts []Option) (Outcome[R], error) {
	cfg := newConfig(opts)
	ctx := cfg.newContext(rng, true)
	result, susp := s()
	return settle(ctx, result, susp)
}
