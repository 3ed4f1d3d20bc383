// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smc

import (
	"math"
	"slices"
	"sort"
)

// DefaultBucketMultiplier is the pool resolution used by Multinomial when
// no multiplier is given.
const DefaultBucketMultiplier = 100

// Resampler maps a weighted population to the population of the next
// generation. It must not resume or discard any particle's checkpoint.
// It may change the population size and may rewrite weights.
// Returning ErrEmptyResamplePool or an empty population ends the run.
type Resampler[R any] func(particles []Particle[R], rng Source) ([]Particle[R], error)

// TotalWeight returns the sum of the particle weights.
func TotalWeight[R any](particles []Particle[R]) float64 {
	var total float64
	for _, p := range particles {
		total += p.Weight
	}
	return total
}

// EffectiveSampleSize returns (Σw)² / Σw², or 0 for a weightless population.
func EffectiveSampleSize[R any](particles []Particle[R]) float64 {
	var sum, sumSq float64
	for _, p := range particles {
		sum += p.Weight
		sumSq += p.Weight * p.Weight
	}
	if sumSq == 0 {
		return 0
	}
	return sum * sum / sumSq
}

// maxPool caps the bucket pool so every bucket count fits an int exactly.
const maxPool = 1 << 52

// ResampleUniform performs discretized multinomial resampling.
//
// Each particle is given floor(w/total * len(particles)*bucketMultiplier)
// buckets in a pool, and len(particles) buckets are drawn uniformly with
// replacement. Selected particles keep their weight and age unchanged.
// Truncation biases each particle by at most one bucket; a larger
// bucketMultiplier shrinks the bias. The pool is capped at 2^52 buckets.
//
// Returns ErrEmptyResamplePool when the population is empty, the total
// weight is zero, or every particle quantizes to zero buckets.
func ResampleUniform[R any](particles []Particle[R], bucketMultiplier int, rng Source) ([]Particle[R], error) {
	scale, total := weightScale(particles)
	if !(total > 0) {
		return nil, ErrEmptyResamplePool
	}
	target := min(float64(len(particles))*float64(max(bucketMultiplier, 0)), maxPool)

	// cum[i] is the pool size after the buckets of particles[0..i].
	cum := make([]int64, len(particles))
	var size int64
	for i, p := range particles {
		size += buckets(p.Weight/scale, total, target)
		cum[i] = size
	}
	if size == 0 {
		return nil, ErrEmptyResamplePool
	}

	out := make([]Particle[R], len(particles))
	for j := range out {
		r := int64(drawIndex(rng, int(size)))
		i := sort.Search(len(cum), func(i int) bool { return cum[i] > r })
		out[j] = particles[i]
	}
	return out, nil
}

// buckets returns floor(w*target/total) clamped to [0, target].
func buckets(w, total, target float64) int64 {
	x := w * target / total
	if math.IsInf(x, 1) {
		x = w / total * target
	}
	return int64(math.Floor(min(max(x, 0), target)))
}

// weightScale returns a divisor for the weights and the total of the scaled
// weights. The divisor is 1 unless the plain sum of finite weights
// overflows, in which case weights are scaled by the largest one.
// total is 0 for an empty population and NaN if any weight is invalid.
func weightScale[R any](particles []Particle[R]) (scale, total float64) {
	total = TotalWeight(particles)
	if !math.IsInf(total, 1) {
		return 1, total
	}
	for _, p := range particles {
		if !validWeight(p.Weight) {
			return 1, math.NaN()
		}
		scale = max(scale, p.Weight)
	}
	total = 0
	for _, p := range particles {
		total += p.Weight / scale
	}
	return scale, total
}

// Multinomial returns ResampleUniform as a Resampler with the given bucket
// multiplier. A non-positive multiplier selects DefaultBucketMultiplier.
func Multinomial[R any](bucketMultiplier int) Resampler[R] {
	if bucketMultiplier <= 0 {
		bucketMultiplier = DefaultBucketMultiplier
	}
	return func(particles []Particle[R], rng Source) ([]Particle[R], error) {
		return ResampleUniform(particles, bucketMultiplier, rng)
	}
}

// Systematic returns a systematic resampler: one uniform offset positions a
// comb of len(particles) evenly spaced pointers over the cumulative weights.
// Selection uses exact weights; selected particles keep weight and age.
func Systematic[R any]() Resampler[R] {
	return func(particles []Particle[R], rng Source) ([]Particle[R], error) {
		n := len(particles)
		scale, total := weightScale(particles)
		if !(total > 0) {
			return nil, ErrEmptyResamplePool
		}
		out := make([]Particle[R], n)
		u := rng.Float64()
		i := 0
		acc := particles[0].Weight / scale / total
		for j := range out {
			pos := (float64(j) + u) / float64(n)
			for pos >= acc && i < n-1 {
				i++
				acc += particles[i].Weight / scale / total
			}
			out[j] = particles[i]
		}
		return out, nil
	}
}

// Identity returns a Resampler that passes the population through unchanged.
func Identity[R any]() Resampler[R] {
	return func(particles []Particle[R], _ Source) ([]Particle[R], error) {
		return particles, nil
	}
}

// Normalized wraps r so that every selected particle carries the average
// weight of the input population. The total weight is preserved when r
// keeps the population size.
func Normalized[R any](r Resampler[R]) Resampler[R] {
	return func(particles []Particle[R], rng Source) ([]Particle[R], error) {
		scale, total := weightScale(particles)
		out, err := r(particles, rng)
		if err != nil || len(out) == 0 {
			return out, err
		}
		out = slices.Clone(out)
		w := scale * (total / float64(len(out)))
		for i := range out {
			out[i].Weight = w
		}
		return out, nil
	}
}
