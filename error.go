// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smc

import "errors"

var (
	// ErrUseAfterResume reports a continuation resumed more than once.
	ErrUseAfterResume = errors.New("smc: continuation resumed twice")

	// ErrInvalidWeight reports a score factor that is negative, NaN, or infinite.
	ErrInvalidWeight = errors.New("smc: invalid weight")

	// ErrEmptyResamplePool reports a population that resampling cannot draw from.
	// The scheduler treats it as extinction, not as a failure.
	ErrEmptyResamplePool = errors.New("smc: empty resample pool")

	// ErrRunawayComputation reports a particle that exceeded the step bound.
	ErrRunawayComputation = errors.New("smc: runaway computation")

	// ErrReplayDiverged reports a forked trajectory that did not reproduce its
	// recorded draws and checkpoints. Programs must draw randomness only
	// through Uniform for duplicated particles to be replayable.
	ErrReplayDiverged = errors.New("smc: replay diverged")

	// ErrInvalidParticleCount reports a non-positive particle count.
	ErrInvalidParticleCount = errors.New("smc: particle count must be positive")
)
