// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mma

import (
	"fmt"
	"io"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var discard logrus.FieldLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}()

// Problem specifies the problem for the MMA optimizer:
//
//	minimize   f₀(x)
//	subject to fᵢ(x) ≤ 0,  i = 1,...,m
//	           xmin ≤ x ≤ xmax
type Problem struct {
	N, M       int       // Number of design variables and constraints
	Xmin, Xmax []float64 // Box bounds, fixed for the run
	Scaling    Scaling   // Auxiliary variable constants (DefaultScaling when empty)
	Variant    Variant   // MMA or GCMMA
	// Move limit of the MMA trust region as a fraction of xmax - xmin (default 0.5).
	Move float64
	// Maximum number of conservative re-solves per GCMMA step (default 15).
	MaxInner int
	// Lower bounds of the GCMMA regularization (default 10⁻⁵).
	Raa0Eps float64
	RaaEps  []float64
}

// New creates an optimizer for the problem. A nil logger discards all output.
func (p *Problem) New(log logrus.FieldLogger) (optimizer *Optimizer, err error) {

	if log == nil {
		log = discard
	}

	n, m := p.N, p.M
	switch {
	case n <= 0:
		return nil, errors.New("problem dimension must greater than 0")
	case m < 0:
		return nil, errors.New("constraint number must not less than 0")
	}

	sc := p.Scaling
	if sc.A == nil && sc.C == nil && sc.D == nil && sc.A0 == zero {
		sc = DefaultScaling(m)
	}

	move := p.Move
	if move == zero {
		move = half
	}
	inner := p.MaxInner
	if inner == 0 {
		inner = maxInner
	}
	raa0eps := p.Raa0Eps
	if raa0eps == zero {
		raa0eps = raaMMA
	}
	raaeps := p.RaaEps
	if raaeps == nil {
		raaeps = fill(m, raaMMA)
	}

	switch {
	case len(p.Xmin) != n || len(p.Xmax) != n:
		err = errors.New("bound size must equal to n")
	case len(sc.A) != m || len(sc.C) != m || len(sc.D) != m:
		err = errors.New("scaling size must equal to m")
	case !(sc.A0 > zero):
		err = errors.New("scaling a0 must greater than 0")
	case p.Variant != MMA && p.Variant != GCMMA:
		err = errors.New("unknown variant")
	case !(move > zero) || move > one:
		err = errors.New("move limit must in (0,1]")
	case inner < 0:
		err = errors.New("inner iteration must not less than 0")
	case !(raa0eps > zero):
		err = errors.New("objective regularization bound must greater than 0")
	case len(raaeps) != m:
		err = errors.New("constraint regularization bound size must equal to m")
	}
	if err != nil {
		return
	}

	for j := 0; j < n; j++ {
		if math.IsNaN(p.Xmin[j]) || math.IsNaN(p.Xmax[j]) || p.Xmin[j] > p.Xmax[j] {
			return nil, errors.New(fmt.Sprintf("bound range at %d has no feasible solution", j))
		}
		if p.Xmin[j] == p.Xmax[j] {
			return nil, errors.Wrapf(ErrInfeasibleBounds, "variable %d is fixed at %g", j, p.Xmin[j])
		}
		if math.IsInf(p.Xmin[j], 0) || math.IsInf(p.Xmax[j], 0) {
			return nil, errors.New(fmt.Sprintf("bound range at %d must be finite", j))
		}
	}
	for i := 0; i < m; i++ {
		switch {
		case sc.A[i] < zero, sc.D[i] < zero:
			err = errors.New(fmt.Sprintf("scaling at %d must not less than 0", i))
		case sc.C[i] < zero:
			err = errors.New(fmt.Sprintf("scaling c at %d must not less than 0", i))
		case !(raaeps[i] > zero):
			err = errors.New(fmt.Sprintf("constraint regularization bound at %d must greater than 0", i))
		}
		if err != nil {
			return
		}
	}

	optimizer = &Optimizer{
		n:       n, m: m,
		xmin:    clone(p.Xmin), xmax: clone(p.Xmax),
		scaling: sc.clone(),
		variant: p.Variant,
		move:    move,
		inner:   inner,
		raa0eps: raa0eps,
		raaeps:  clone(raaeps),
		log:     log,
	}
	return
}

// Optimizer implemented using the method of moving asymptotes.
// It is immutable and may be shared between goroutines.
type Optimizer struct {
	n, m       int
	xmin, xmax []float64
	scaling    Scaling
	variant    Variant
	move       float64
	inner      int
	raa0eps    float64
	raaeps     []float64
	log        logrus.FieldLogger
}

// N returns the number of design variables.
func (o *Optimizer) N() int { return o.n }

// M returns the number of constraints.
func (o *Optimizer) M() int { return o.m }

// Variant returns the configured subproblem variant.
func (o *Optimizer) Variant() Variant { return o.variant }

// Scaling returns a copy of the auxiliary variable constants.
func (o *Optimizer) Scaling() Scaling { return o.scaling.clone() }

// Bounds returns copies of xmin and xmax.
func (o *Optimizer) Bounds() (xmin, xmax []float64) { return clone(o.xmin), clone(o.xmax) }

// KKT evaluates the optimality residual of the original problem at a step result.
func (o *Optimizer) KKT(r *Result, ev *Evaluation) (*Residual, error) {
	return KKT(&r.Point, o.xmin, o.xmax, ev, o.scaling)
}
