// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smc

import (
	"log/slog"

	"code.hybscloud.com/atomix"
)

// Serial numbers runs within a process. Runs started without WithRunID
// are logged under the next serial.
type Serial = uint32

var runCounter atomix.Uint32

func nextSerial() Serial {
	return runCounter.Add(1)
}

// WithRunID labels the run's log records with id instead of a serial.
func WithRunID(id string) Option {
	return func(c *config) {
		c.runID = id
	}
}

// runLogger returns the logger scoped to one run.
func (c *config) runLogger() *slog.Logger {
	if c.runID != "" {
		return c.logger.With("run", c.runID)
	}
	return c.logger.With("run", nextSerial())
}
