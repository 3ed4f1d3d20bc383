// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smc

import (
	"math"

	"code.hybscloud.com/kont"
)

// ResampleThen reaches a checkpoint and then continues with next.
// Fuses Perform(Resample{}) + Then.
func ResampleThen[B any](next kont.Eff[B]) kont.Eff[B] {
	return kont.Then(kont.Perform(Resample{}), next)
}

// UniformBind draws a uniform float64 in [0, 1) and passes it to f.
// Fuses Perform(Uniform{}) + Bind.
func UniformBind[B any](f func(float64) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Uniform{}), f)
}

// ScoreThen multiplies the particle weight by factor and continues with next.
// Fuses Perform(Score{Factor: factor}) + Then.
func ScoreThen[B any](factor float64, next kont.Eff[B]) kont.Eff[B] {
	return kont.Then(kont.Perform(Score{Factor: factor}), next)
}

// ScoreLogThen multiplies the particle weight by exp(logFactor) and
// continues with next.
func ScoreLogThen[B any](logFactor float64, next kont.Eff[B]) kont.Eff[B] {
	return ScoreThen(math.Exp(logFactor), next)
}
