// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smc

import (
	"code.hybscloud.com/kont"
)

// Boxed once: Resample and Uniform carry no data, so every Expr program
// shares the same erased operation values.
var (
	exprReturnFrame kont.Frame  = kont.ReturnFrame{}
	exprResample    kont.Erased = Resample{}
	exprUniform     kont.Erased = Uniform{}
)

// identityResume passes the dispatched value through unchanged.
func identityResume(v kont.Erased) kont.Erased { return v }

// ExprResampleThen reaches a checkpoint and then continues with next.
// Fuses ExprPerform(Resample{}) + ExprThen.
func ExprResampleThen[B any](next kont.Expr[B]) kont.Expr[B] {
	tf := kont.AcquireThenFrame()
	tf.Second = kont.Expr[kont.Erased]{Value: kont.Erased(next.Value), Frame: next.Frame}
	tf.Next = exprReturnFrame
	ef := kont.AcquireEffectFrame()
	ef.Operation = exprResample
	ef.Resume = identityResume
	ef.Next = tf
	return kont.ExprSuspend[B](ef)
}

// ExprScoreThen multiplies the particle weight by factor and continues with next.
// Fuses ExprPerform(Score{Factor: factor}) + ExprThen.
func ExprScoreThen[B any](factor float64, next kont.Expr[B]) kont.Expr[B] {
	tf := kont.AcquireThenFrame()
	tf.Second = kont.Expr[kont.Erased]{Value: kont.Erased(next.Value), Frame: next.Frame}
	tf.Next = exprReturnFrame
	ef := kont.AcquireEffectFrame()
	ef.Operation = Score{Factor: factor}
	ef.Resume = identityResume
	ef.Next = tf
	return kont.ExprSuspend[B](ef)
}

func uniformBindUnwind[B any](data, _, _ kont.Erased, current kont.Erased) (kont.Erased, kont.Frame) {
	f := data.(func(float64) kont.Expr[B])
	result := f(current.(float64))
	return kont.Erased(result.Value), result.Frame
}

// ExprUniformBind draws a uniform float64 in [0, 1) and passes it to f.
// Fuses ExprPerform(Uniform{}) + ExprBind.
func ExprUniformBind[B any](f func(float64) kont.Expr[B]) kont.Expr[B] {
	bf := kont.AcquireUnwindFrame()
	bf.Data1 = f
	bf.Unwind = uniformBindUnwind[B]
	ef := kont.AcquireEffectFrame()
	ef.Operation = exprUniform
	ef.Resume = identityResume
	ef.Next = bf
	return kont.ExprSuspend[B](ef)
}
