// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package models holds sample stochastic programs used by tests and tools.
package models

import (
	"math"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/smc"
)

// Geometric returns a program that counts trials until the first failure.
// Each trial reaches a checkpoint, draws u, and continues while u > p,
// scoring every continuation by factor:
//
//	resample(); if uniform() > p { score(factor); 1 + recurse() } else { 1 }
func Geometric(p, factor float64) func() kont.Eff[int] {
	var trial func() kont.Eff[int]
	trial = func() kont.Eff[int] {
		return smc.ResampleThen(smc.UniformBind(func(u float64) kont.Eff[int] {
			if u > p {
				return smc.ScoreThen(factor, kont.Map(trial(), inc))
			}
			return kont.Pure(1)
		}))
	}
	return trial
}

func inc(n int) int { return n + 1 }

// GeometricExpr is the Expr-world form of Geometric, written as a loop over
// the running count.
func GeometricExpr(p, factor float64) func() kont.Expr[int] {
	step := func(n int) kont.Expr[kont.Either[int, int]] {
		return smc.ExprResampleThen(smc.ExprUniformBind(func(u float64) kont.Expr[kont.Either[int, int]] {
			if u > p {
				return smc.ExprScoreThen(factor, kont.ExprReturn(kont.Left[int, int](n+1)))
			}
			return kont.ExprReturn(kont.Right[int, int](n))
		}))
	}
	return func() kont.Expr[int] {
		return smc.ExprLoop(1, step)
	}
}

// GeometricMean returns the weighted expectation of the count produced by
// Geometric(p, factor): the count is geometric with success probability
// 1 - (1-p)·factor under the importance weights. It is +Inf when
// (1-p)·factor >= 1, where the weighted count has no finite mean.
func GeometricMean(p, factor float64) float64 {
	q := (1 - p) * factor
	if q >= 1 {
		return math.Inf(1)
	}
	return 1 / (1 - q)
}
