// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smc

import (
	"code.hybscloud.com/kont"
)

// Reify converts a single Cont-world execution to Expr-world.
// It evaluates m up to its first effect immediately; use ReifyProgram to
// convert a particle factory.
func Reify[A any](m kont.Eff[A]) kont.Expr[A] {
	return kont.Reify(m)
}

// Reflect converts a single Expr-world execution to Cont-world.
func Reflect[A any](m kont.Expr[A]) kont.Eff[A] {
	return kont.Reflect(m)
}

// ReifyProgram converts a Cont-world particle factory for RunSMCExpr and
// RunImportanceExpr. Each call of the result builds a fresh execution, so
// duplicates forked by replay never share evaluated state.
func ReifyProgram[R any](program func() kont.Eff[R]) func() kont.Expr[R] {
	return func() kont.Expr[R] { return kont.Reify(program()) }
}

// ReflectProgram converts an Expr-world particle factory for RunSMC and
// RunImportance.
func ReflectProgram[R any](program func() kont.Expr[R]) func() kont.Eff[R] {
	return func() kont.Eff[R] { return kont.Reflect(program()) }
}
