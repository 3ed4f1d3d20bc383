// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smc

import "sync"

// Source is a pseudo-random source of float64 values in [0, 1).
// *math/rand/v2.Rand satisfies Source.
type Source interface {
	Float64() float64
}

// lockedSource serializes access to a shared Source.
type lockedSource struct {
	mu  sync.Mutex
	src Source
}

// Locked returns a Source safe for concurrent use that draws from src.
func Locked(src Source) Source {
	if l, ok := src.(*lockedSource); ok {
		return l
	}
	return &lockedSource{src: src}
}

func (l *lockedSource) Float64() float64 {
	l.mu.Lock()
	u := l.src.Float64()
	l.mu.Unlock()
	return u
}

// drawIndex draws a uniform index in [0, n).
func drawIndex(rng Source, n int) int {
	i := int(rng.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}
