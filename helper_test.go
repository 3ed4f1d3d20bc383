// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smc_test

import (
	"math/rand/v2"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/smc"
)

// newRand returns the seeded source used throughout the tests.
func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 0))
}

// splitRand partitions a run into per-worker streams derived from seed.
func splitRand(seed uint64) func(int) smc.Source {
	return func(w int) smc.Source {
		return rand.New(rand.NewPCG(seed, uint64(w)+1))
	}
}

type measurement[R any] struct {
	weight float64
	result R
}

// record returns a sink that appends to *out.
func record[R any](out *[]measurement[R]) smc.Sink[R] {
	return func(w float64, r R) {
		*out = append(*out, measurement[R]{weight: w, result: r})
	}
}

// drive resumes a single particle until it completes.
func drive[R any](out smc.Outcome[R], err error) (smc.Outcome[R], int, error) {
	checkpoints := 0
	for err == nil && !out.Done() {
		checkpoints++
		out, err = out.Checkpoint.Resume()
	}
	return out, checkpoints, err
}

type walk struct {
	i   int
	sum float64
}

// checkpoints returns a program that passes k checkpoints, scoring factor
// before each one, and returns the sum of k draws.
func checkpoints(k int, factor float64) func() kont.Eff[float64] {
	return func() kont.Eff[float64] {
		return smc.Loop(walk{}, func(s walk) kont.Eff[kont.Either[walk, float64]] {
			if s.i == k {
				return kont.Pure(kont.Right[walk, float64](s.sum))
			}
			return smc.ScoreThen(factor, smc.ResampleThen(smc.UniformBind(func(u float64) kont.Eff[kont.Either[walk, float64]] {
				return kont.Pure(kont.Left[walk, float64](walk{i: s.i + 1, sum: s.sum + u}))
			})))
		})
	}
}
