// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package measure aggregates the (weight, result) measurements reported by
// smc runners.
package measure

import (
	"math"

	"code.hybscloud.com/smc"
)

// Measurement is one completed particle.
type Measurement[R any] struct {
	Weight float64
	Result R
}

// Collector records every measurement it receives.
// Add has the smc.Sink signature. Collector is not safe for concurrent use;
// runners call their sink from a single goroutine.
type Collector[R any] struct {
	items []Measurement[R]
}

// Add records one measurement.
func (c *Collector[R]) Add(weight float64, result R) {
	c.items = append(c.items, Measurement[R]{Weight: weight, Result: result})
}

// Measurements returns the recorded measurements in arrival order.
func (c *Collector[R]) Measurements() []Measurement[R] { return c.items }

// Len returns the number of measurements.
func (c *Collector[R]) Len() int { return len(c.items) }

// Reset drops all measurements.
func (c *Collector[R]) Reset() { c.items = c.items[:0] }

// TotalWeight returns the sum of the weights.
func (c *Collector[R]) TotalWeight() float64 {
	var total float64
	for _, m := range c.items {
		total += m.Weight
	}
	return total
}

// WeightedMean returns Σ w·f(r) / Σ w, or NaN when the total weight is zero.
func (c *Collector[R]) WeightedMean(f func(R) float64) float64 {
	var num, den float64
	for _, m := range c.items {
		num += m.Weight * f(m.Result)
		den += m.Weight
	}
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// Mean returns the unweighted mean of f(r), or NaN when empty.
func (c *Collector[R]) Mean(f func(R) float64) float64 {
	if len(c.items) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, m := range c.items {
		sum += f(m.Result)
	}
	return sum / float64(len(c.items))
}

// EffectiveSampleSize returns (Σw)² / Σw², or 0 when weightless.
func (c *Collector[R]) EffectiveSampleSize() float64 {
	var sum, sumSq float64
	for _, m := range c.items {
		sum += m.Weight
		sumSq += m.Weight * m.Weight
	}
	if sumSq == 0 {
		return 0
	}
	return sum * sum / sumSq
}

// Histogram returns the normalized weight of each key. The values sum to 1
// unless the collector is weightless, in which case the map is empty.
func Histogram[R any, K comparable](c *Collector[R], key func(R) K) map[K]float64 {
	h := make(map[K]float64)
	total := c.TotalWeight()
	if total == 0 {
		return h
	}
	for _, m := range c.items {
		h[key(m.Result)] += m.Weight / total
	}
	return h
}

// Tee returns a sink that forwards each measurement to every non-nil sink
// in order.
func Tee[R any](sinks ...smc.Sink[R]) smc.Sink[R] {
	return func(weight float64, result R) {
		for _, s := range sinks {
			if s != nil {
				s(weight, result)
			}
		}
	}
}
