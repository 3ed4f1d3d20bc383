// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"code.hybscloud.com/smc"
)

// Config is the run configuration. Fields map to the YAML config file;
// command-line flags override them.
type Config struct {
	Mode             string  `yaml:"mode"`
	Particles        int     `yaml:"particles"`
	Seed             uint64  `yaml:"seed"`
	Resampler        string  `yaml:"resampler"`
	BucketMultiplier int     `yaml:"bucket_multiplier"`
	Normalize        bool    `yaml:"normalize"`
	ContinueProb     float64 `yaml:"continue_prob"`
	Factor           float64 `yaml:"factor"`
	Workers          int     `yaml:"workers"`
	MaxSteps         int     `yaml:"max_steps"`
	LogLevel         string  `yaml:"log_level"`
	LogFile          string  `yaml:"log_file"`
	DB               string  `yaml:"db"`
}

func defaultConfig() Config {
	return Config{
		Mode:             "importance",
		Particles:        1000,
		Seed:             42,
		Resampler:        "multinomial",
		BucketMultiplier: smc.DefaultBucketMultiplier,
		ContinueProb:     0.5,
		Factor:           math.Log(1.5),
		Workers:          1,
		LogLevel:         "info",
	}
}

// loadConfig reads a YAML config file over the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	info, err := os.Stat(path)
	if err != nil {
		return cfg, fmt.Errorf("open config file %s: %w", path, err)
	}
	if info.IsDir() {
		return cfg, fmt.Errorf("%s is a directory, expected a file", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Mode {
	case "importance", "smc":
	default:
		return fmt.Errorf("unknown mode %q (want importance or smc)", c.Mode)
	}
	if c.Particles <= 0 {
		return fmt.Errorf("particles must be positive, got %d", c.Particles)
	}
	if !(c.ContinueProb >= 0 && c.ContinueProb < 1) {
		return fmt.Errorf("continue_prob must be in [0, 1), got %v", c.ContinueProb)
	}
	if !(c.Factor >= 0) || math.IsInf(c.Factor, 1) {
		return fmt.Errorf("factor must be finite and non-negative, got %v", c.Factor)
	}
	if _, err := c.resampler(); err != nil {
		return err
	}
	if _, err := c.level(); err != nil {
		return err
	}
	return nil
}

// resampler builds the resampling strategy named by the config.
func (c Config) resampler() (smc.Resampler[int], error) {
	var r smc.Resampler[int]
	switch strings.ToLower(c.Resampler) {
	case "", "multinomial":
		r = smc.Multinomial[int](c.BucketMultiplier)
	case "systematic":
		r = smc.Systematic[int]()
	case "identity":
		r = smc.Identity[int]()
	default:
		return nil, fmt.Errorf("unknown resampler %q", c.Resampler)
	}
	if c.Normalize {
		r = smc.Normalized(r)
	}
	return r, nil
}

func (c Config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
