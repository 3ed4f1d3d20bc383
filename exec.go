// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smc

import (
	"fmt"

	"code.hybscloud.com/kont"
)

// importanceHandler implements kont.Handler for importance sampling.
// Resample never suspends. Dispatch errors short-circuit with Left.
// Value type: passed to the trampoline on the stack, avoiding heap allocation.
type importanceHandler[R any] struct {
	ctx *particleContext
}

// Dispatch implements kont.Handler via structural interface assertion.
func (h importanceHandler[R]) Dispatch(op kont.Operation) (kont.Resumed, bool) {
	pop, ok := op.(particleDispatcher)
	if !ok {
		panic("smc: unhandled effect in importanceHandler")
	}
	if err := h.ctx.tick(); err != nil {
		return kont.Left[error, R](err), false
	}
	v, err := pop.DispatchParticle(h.ctx)
	if err != nil {
		return kont.Left[error, R](err), false
	}
	return v, true
}

// Exec runs one execution of a Cont-world program to completion with
// Resample bound to a no-op. Returns the result and its importance weight.
func Exec[R any](program kont.Eff[R], rng Source, opts ...Option) (R, float64, error) {
	cfg := newConfig(opts)
	ctx := cfg.newContext(rng, false)
	wrapped := kont.Map[kont.Resumed, R, kont.Either[error, R]](program, func(r R) kont.Either[error, R] {
		return kont.Right[error, R](r)
	})
	h := importanceHandler[R]{ctx: ctx}
	return unwrap(kont.Handle(wrapped, h), ctx.weight)
}

// ExecExpr runs one execution of an Expr-world program to completion with
// Resample bound to a no-op. Returns the result and its importance weight.
func ExecExpr[R any](program kont.Expr[R], rng Source, opts ...Option) (R, float64, error) {
	cfg := newConfig(opts)
	ctx := cfg.newContext(rng, false)
	wrapped := kont.ExprMap(program, func(r R) kont.Either[error, R] {
		return kont.Right[error, R](r)
	})
	h := importanceHandler[R]{ctx: ctx}
	return unwrap(kont.HandleExpr(wrapped, h), ctx.weight)
}

func unwrap[R any](e kont.Either[error, R], weight float64) (R, float64, error) {
	if err, ok := e.GetLeft(); ok {
		var zero R
		return zero, 0, err
	}
	r, _ := e.GetRight()
	return r, weight, nil
}

// RunImportance runs n independent executions of a Cont-world program with
// Resample bound to a no-op, reporting each (weight, result) to sink in
// execution order. The first failing execution ends the run.
func RunImportance[R any](program func() kont.Eff[R], n int, rng Source, sink Sink[R], opts ...Option) error {
	return runImportance(n, sink, opts, func(opts []Option) (R, float64, error) {
		return Exec(program(), rng, opts...)
	})
}

// RunImportanceExpr runs n independent executions of an Expr-world program.
// See RunImportance.
func RunImportanceExpr[R any](program func() kont.Expr[R], n int, rng Source, sink Sink[R], opts ...Option) error {
	return runImportance(n, sink, opts, func(opts []Option) (R, float64, error) {
		return ExecExpr(program(), rng, opts...)
	})
}

func runImportance[R any](n int, sink Sink[R], opts []Option, exec func([]Option) (R, float64, error)) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidParticleCount, n)
	}
	log := newConfig(opts).runLogger()
	log.Info("importance run started", "particles", n)
	for i := range n {
		r, w, err := exec(opts)
		if err != nil {
			return fmt.Errorf("smc: importance execution %d: %w", i, err)
		}
		if sink != nil {
			sink(w, r)
		}
	}
	log.Info("importance run finished", "completed", n)
	return nil
}
