// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config reads the YAML description of an optimization run.
package config

// Config is the run configuration of the command.
type Config struct {
	Variant       string   `yaml:"variant"`
	RelTol        float64  `yaml:"rel_tol"`
	MaxIters      int      `yaml:"max_iters"`
	MinIters      int      `yaml:"min_iters"`
	MoveLimit     float64  `yaml:"move_limit"`
	Scaling       Scaling  `yaml:"scaling"`
	Filter        Filter   `yaml:"filter"`
	GCMMA         GCMMA    `yaml:"gcmma"`
	KKTCheck      bool     `yaml:"kkt_check"`
	GradientCheck bool     `yaml:"gradient_check"`
	GradientTol   float64  `yaml:"gradient_tol"`
	Log           Log      `yaml:"log"`
	Metrics       Metrics  `yaml:"metrics"`
	Problems      []string `yaml:"problems"` // benchmark names run by default
}

// Scaling holds the subproblem parameters a₀, aᵢ, cᵢ and dᵢ.
// The constraint parameters are shared by every constraint.
type Scaling struct {
	A0 float64 `yaml:"a0"`
	A  float64 `yaml:"a"`
	C  float64 `yaml:"c"`
	D  float64 `yaml:"d"`
}

// Filter selects the sensitivity filter. The design variables are laid out
// on a unit spaced line and weighted within Radius of each other.
type Filter struct {
	Type   string  `yaml:"type"` // none, sensitivity or density
	Radius float64 `yaml:"radius"`
}

// GCMMA holds the conservative variant parameters.
type GCMMA struct {
	MaxInner int     `yaml:"max_inner"`
	Raa0Eps  float64 `yaml:"raa0_eps"`
	RaaEps   float64 `yaml:"raa_eps"`
}

// Log configures the logger of the command.
type Log struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// Metrics configures the prometheus endpoint. Empty Listen disables it.
type Metrics struct {
	Listen string `yaml:"listen"`
}

// Default returns the configuration used for every key missing from a file.
func Default() *Config {
	return &Config{
		Variant:     "mma",
		RelTol:      1e-6,
		MaxIters:    200,
		MoveLimit:   0.5,
		Scaling:     Scaling{A0: 1, A: 0, C: 1000, D: 1},
		Filter:      Filter{Type: "none", Radius: 1.5},
		GCMMA:       GCMMA{MaxInner: 15, Raa0Eps: 1e-5, RaaEps: 1e-5},
		KKTCheck:    true,
		GradientTol: 1e-4,
		Log:         Log{Level: "info", Format: "text"},
	}
}
