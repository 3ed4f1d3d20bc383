// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command smcgeo runs the geometric model under importance sampling or
// Sequential Monte Carlo and prints a summary of the weighted results.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

func main() {
	def := defaultConfig()
	var fl Config
	configFile := flag.String("config-file", "", "path to YAML file with run settings")
	flag.StringVar(&fl.Mode, "mode", def.Mode, "runner: importance or smc")
	flag.IntVar(&fl.Particles, "particles", def.Particles, "number of particles")
	flag.Uint64Var(&fl.Seed, "seed", def.Seed, "PCG seed")
	flag.StringVar(&fl.Resampler, "resampler", def.Resampler, "smc resampler: multinomial, systematic, or identity")
	flag.IntVar(&fl.BucketMultiplier, "bucket-multiplier", def.BucketMultiplier, "multinomial pool resolution")
	flag.BoolVar(&fl.Normalize, "normalize", def.Normalize, "reset weights to the population average after resampling")
	flag.Float64Var(&fl.ContinueProb, "continue-prob", def.ContinueProb, "probability of another trial")
	flag.Float64Var(&fl.Factor, "factor", def.Factor, "score factor per extra trial")
	flag.IntVar(&fl.Workers, "workers", def.Workers, "worker goroutines per smc generation")
	flag.IntVar(&fl.MaxSteps, "max-steps", def.MaxSteps, "effects allowed between checkpoints (0 = unbounded)")
	flag.StringVar(&fl.LogLevel, "log-level", def.LogLevel, "debug, info, warn, or error")
	flag.StringVar(&fl.LogFile, "log-file", def.LogFile, "append JSON logs to this file")
	flag.StringVar(&fl.DB, "db", def.DB, "record measurements in this SQLite database")
	flag.Parse()

	cfg := def
	if path := strings.TrimSpace(*configFile); path != "" {
		var err error
		cfg, err = loadConfig(path)
		if err != nil {
			die("load config: %v", err)
		}
	}
	flag.Visit(func(f *flag.Flag) { override(&cfg, fl, f.Name) })

	log, closeLog, err := newLogger(os.Stderr, cfg)
	if err != nil {
		die("logger: %v", err)
	}
	defer closeLog()

	if _, err := run(cfg, log, os.Stdout); err != nil {
		closeLog()
		die("run: %v", err)
	}
}

// override copies the flag named name from fl into cfg.
func override(cfg *Config, fl Config, name string) {
	switch name {
	case "mode":
		cfg.Mode = fl.Mode
	case "particles":
		cfg.Particles = fl.Particles
	case "seed":
		cfg.Seed = fl.Seed
	case "resampler":
		cfg.Resampler = fl.Resampler
	case "bucket-multiplier":
		cfg.BucketMultiplier = fl.BucketMultiplier
	case "normalize":
		cfg.Normalize = fl.Normalize
	case "continue-prob":
		cfg.ContinueProb = fl.ContinueProb
	case "factor":
		cfg.Factor = fl.Factor
	case "workers":
		cfg.Workers = fl.Workers
	case "max-steps":
		cfg.MaxSteps = fl.MaxSteps
	case "log-level":
		cfg.LogLevel = fl.LogLevel
	case "log-file":
		cfg.LogFile = fl.LogFile
	case "db":
		cfg.DB = fl.DB
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
