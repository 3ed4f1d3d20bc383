// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smc

import (
	"code.hybscloud.com/kont"
)

// Loop runs a recursive program (Cont-world).
// step returns Left(nextState) to continue or Right(result) to finish.
// Iterations are bound lazily, so a step that performs Resample suspends
// the particle between iterations.
func Loop[S, A any](initial S, step func(S) kont.Eff[kont.Either[S, A]]) kont.Eff[A] {
	var next func(kont.Either[S, A]) kont.Eff[A]
	next = func(e kont.Either[S, A]) kont.Eff[A] {
		s, more := e.GetLeft()
		if !more {
			a, _ := e.GetRight()
			return kont.Pure(a)
		}
		return kont.Bind(step(s), next)
	}
	return kont.Bind(step(initial), next)
}

// ExprLoop runs a recursive program (Expr-world).
// step returns Left(nextState) to continue or Right(result) to finish.
// Steps that return without performing an effect are unrolled in place.
func ExprLoop[S, A any](initial S, step func(S) kont.Expr[kont.Either[S, A]]) kont.Expr[A] {
	s := initial
	for {
		m := step(s)
		if _, pure := m.Frame.(kont.ReturnFrame); !pure {
			return exprLoopBind(m, step)
		}
		left, more := m.Value.GetLeft()
		if !more {
			right, _ := m.Value.GetRight()
			return kont.ExprReturn(right)
		}
		s = left
	}
}

// exprLoopBind chains the rest of the loop after an effectful step.
func exprLoopBind[S, A any](m kont.Expr[kont.Either[S, A]], step func(S) kont.Expr[kont.Either[S, A]]) kont.Expr[A] {
	bf := kont.AcquireBindFrame()
	bf.F = func(v kont.Erased) kont.Expr[kont.Erased] {
		e := v.(kont.Either[S, A])
		if left, more := e.GetLeft(); more {
			next := ExprLoop(left, step)
			return kont.Expr[kont.Erased]{Value: kont.Erased(next.Value), Frame: next.Frame}
		}
		right, _ := e.GetRight()
		return kont.Expr[kont.Erased]{Value: kont.Erased(right), Frame: exprReturnFrame}
	}
	bf.Next = exprReturnFrame
	var zero A
	return kont.Expr[A]{Value: zero, Frame: kont.ChainFrames(m.Frame, bf)}
}

type scanCursor[S any] struct {
	state S
	next  int
}

// Scan folds step over observations and returns the final state.
// Every observation is followed by a checkpoint, which makes Scan the shape
// of a particle filter: step proposes and scores, the scheduler resamples
// between observations.
func Scan[S, O any](initial S, observations []O, step func(S, O) kont.Eff[S]) kont.Eff[S] {
	return Loop(scanCursor[S]{state: initial}, func(c scanCursor[S]) kont.Eff[kont.Either[scanCursor[S], S]] {
		if c.next == len(observations) {
			return kont.Pure(kont.Right[scanCursor[S], S](c.state))
		}
		return kont.Bind(step(c.state, observations[c.next]), func(s S) kont.Eff[kont.Either[scanCursor[S], S]] {
			return ResampleThen(kont.Pure(kont.Left[scanCursor[S], S](scanCursor[S]{state: s, next: c.next + 1})))
		})
	})
}

// ExprScan is the Expr-world form of Scan.
func ExprScan[S, O any](initial S, observations []O, step func(S, O) kont.Expr[S]) kont.Expr[S] {
	return ExprLoop(scanCursor[S]{state: initial}, func(c scanCursor[S]) kont.Expr[kont.Either[scanCursor[S], S]] {
		if c.next == len(observations) {
			return kont.ExprReturn(kont.Right[scanCursor[S], S](c.state))
		}
		return kont.ExprBind(step(c.state, observations[c.next]), func(s S) kont.Expr[kont.Either[scanCursor[S], S]] {
			return ExprResampleThen(kont.ExprReturn(kont.Left[scanCursor[S], S](scanCursor[S]{state: s, next: c.next + 1})))
		})
	})
}
