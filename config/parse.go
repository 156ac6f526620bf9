// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"io"
	"strings"

	"github.com/curioloop/mma/driver"
	"github.com/curioloop/mma/filter"
	"github.com/curioloop/mma/mma"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Parse decodes YAML data over Default and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseString is Parse for YAML text.
func ParseString(text string) (*Config, error) {
	return Parse([]byte(text))
}

// Validate checks the ranges of every setting.
func (c *Config) Validate() (err error) {

	switch {
	case !(c.RelTol >= 0):
		err = errors.New("rel_tol must not less than 0")
	case c.MaxIters <= 0:
		err = errors.New("max_iters must greater than 0")
	case c.MinIters < 0:
		err = errors.New("min_iters must not less than 0")
	case !(c.MoveLimit > 0) || c.MoveLimit > 1:
		err = errors.New("move_limit must in (0,1]")
	case !(c.Scaling.A0 > 0):
		err = errors.New("scaling.a0 must greater than 0")
	case c.Scaling.A < 0 || c.Scaling.C < 0 || c.Scaling.D < 0:
		err = errors.New("scaling.a, scaling.c and scaling.d must not less than 0")
	case c.Scaling.C+c.Scaling.D <= 0:
		err = errors.New("scaling.c + scaling.d must greater than 0")
	case c.GCMMA.MaxInner < 0:
		err = errors.New("gcmma.max_inner must not less than 0")
	case !(c.GCMMA.Raa0Eps > 0) || !(c.GCMMA.RaaEps > 0):
		err = errors.New("gcmma regularization floors must greater than 0")
	case !(c.GradientTol > 0):
		err = errors.New("gradient_tol must greater than 0")
	case c.Log.Format != "text" && c.Log.Format != "json":
		err = errors.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if err != nil {
		return
	}

	if _, err = mma.ParseVariant(c.Variant); err != nil {
		return errors.Wrap(err, "variant")
	}
	t, err := filter.ParseType(c.Filter.Type)
	if err != nil {
		return errors.Wrap(err, "filter")
	}
	if t != filter.None && !(c.Filter.Radius > 0) {
		return errors.New("filter.radius must greater than 0")
	}
	if _, err = logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	return nil
}

// Options converts the configuration into driver options for a problem with
// n design variables and m constraints. Logger and Recorder are left to the caller.
func (c *Config) Options(n, m int) (driver.Options, error) {

	variant, err := mma.ParseVariant(c.Variant)
	if err != nil {
		return driver.Options{}, err
	}

	scaling := mma.Scaling{
		A0: c.Scaling.A0,
		A:  make([]float64, m),
		C:  make([]float64, m),
		D:  make([]float64, m),
	}
	for i := 0; i < m; i++ {
		scaling.A[i], scaling.C[i], scaling.D[i] = c.Scaling.A, c.Scaling.C, c.Scaling.D
	}

	opts := driver.Options{
		Variant:       variant,
		RelTol:        c.RelTol,
		MinIters:      c.MinIters,
		MaxIters:      c.MaxIters,
		Move:          c.MoveLimit,
		Scaling:       scaling,
		MaxInner:      c.GCMMA.MaxInner,
		Raa0Eps:       c.GCMMA.Raa0Eps,
		RaaEps:        c.GCMMA.RaaEps,
		KKTCheck:      c.KKTCheck,
		GradientCheck: c.GradientCheck,
		GradientTol:   c.GradientTol,
	}

	t, err := filter.ParseType(c.Filter.Type)
	if err != nil {
		return driver.Options{}, err
	}
	if t != filter.None {
		centers := make([][]float64, n)
		for j := range centers {
			centers[j] = []float64{float64(j)}
		}
		if opts.Filter, err = filter.New(t, filter.Radial(centers, c.Filter.Radius)); err != nil {
			return driver.Options{}, errors.Wrap(err, "filter")
		}
	}
	return opts, nil
}

// ProblemList splits comma separated problem names, dropping blanks.
func ProblemList(names ...string) []string {
	var list []string
	for _, s := range names {
		for _, name := range strings.Split(s, ",") {
			if name = strings.TrimSpace(name); name != "" {
				list = append(list, name)
			}
		}
	}
	return list
}
