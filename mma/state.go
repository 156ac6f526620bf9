// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mma

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrEvaluation a user supplied function panicked.
var ErrEvaluation = errors.New("mma: evaluation panic")

// State is the iterate history carried between outer iterations.
// A State is never modified: every step returns a new one.
type State struct {
	Iter     int       // Number of accepted steps
	X        []float64 // Current design xᵏ
	Xold1    []float64 // xᵏ⁻¹
	Xold2    []float64 // xᵏ⁻²
	Low, Upp []float64 // Asymptotes of the last step
	Raa0     float64   // GCMMA regularization of the last step
	Raa      []float64
}

// Result of one outer step.
type Result struct {
	Point                    // Subproblem solution: new design, multipliers and slack
	Sub          *Subproblem // Last solved subproblem
	F0App        float64     // Approximated objective at the new design
	FApp         []float64   // Approximated constraints at the new design
	F0New        float64     // True objective at the new design (GCMMA only)
	FNew         []float64   // True constraints at the new design (GCMMA only)
	Inner        int         // Conservative re-solves performed (GCMMA only)
	Conservative bool        // Whether the accepted approximation was conservative
	Stats                    // Interior-point statistics accumulated over the step
}

// ValueFunc evaluates the true functions (values only) at x, writing the constraints into f.
type ValueFunc func(x []float64, f []float64) (f0 float64)

// Init returns the starting state for x0: xᵏ⁻¹ = xᵏ⁻² = x0 and asymptotes at the box.
func (o *Optimizer) Init(x0 []float64) (State, error) {
	if len(x0) != o.n {
		return State{}, errors.Wrapf(ErrDimension, "initial x has %d entries, want %d", len(x0), o.n)
	}
	for j, v := range x0 {
		if v < o.xmin[j] || v > o.xmax[j] {
			return State{}, errors.New(fmt.Sprintf("initial x at %d violates bound constraints", j))
		}
	}
	return State{
		X:    clone(x0), Xold1: clone(x0), Xold2: clone(x0),
		Low:  clone(o.xmin), Upp: clone(o.xmax),
		Raa0: o.raa0eps, Raa: clone(o.raaeps),
	}, nil
}

func (o *Optimizer) checkState(s *State) error {
	if len(s.X) != o.n || len(s.Xold1) != o.n || len(s.Xold2) != o.n || len(s.Low) != o.n || len(s.Upp) != o.n {
		return errors.Wrap(ErrDimension, "state")
	}
	return nil
}

// next builds the successor state around the accepted design x.
func (s *State) next(iter int, x, low, upp []float64, raa0 float64, raa []float64) State {
	return State{
		Iter: iter,
		X:    clone(x), Xold1: clone(s.X), Xold2: clone(s.Xold1),
		Low:  clone(low), Upp: clone(upp),
		Raa0: raa0, Raa: clone(raa),
	}
}

// Step performs one outer MMA iteration from s, given the true values and
// derivatives at s.X, and returns the successor state.
func (o *Optimizer) Step(s State, ev *Evaluation) (State, *Result, error) {

	if err := o.checkState(&s); err != nil {
		return s, nil, err
	}
	if err := ev.check(o.n, o.m); err != nil {
		return s, nil, err
	}

	iter := s.Iter + 1
	low, upp := Asymptotes(iter, s.X, s.Xold1, s.Xold2, o.xmin, o.xmax, s.Low, s.Upp)

	sp, err := BuildMMA(s.X, o.xmin, o.xmax, low, upp, ev, o.move, o.scaling)
	if err != nil {
		return s, nil, errors.Wrapf(err, "outer iteration %d", iter)
	}
	sol, err := Solve(sp, o.log.WithField("iter", iter))
	if err != nil {
		return s, nil, errors.Wrapf(err, "outer iteration %d", iter)
	}

	res := &Result{Point: sol.Point, Sub: sp, Stats: sol.Stats, Conservative: true}
	res.F0App, res.FApp = sp.Approx(sol.X)

	o.log.WithFields(logrus.Fields{
		"iter": iter, "newton": sol.Newton, "halvings": sol.Halvings,
	}).Debug("mma step")

	return s.next(iter, sol.X, low, upp, sp.Raa0, sp.Raa), res, nil
}

// StepConservative performs one outer GCMMA iteration from s. The subproblem is
// re-solved with inflated regularization, at most MaxInner times, until its
// solution satisfies the conservativeness check against values.
func (o *Optimizer) StepConservative(s State, ev *Evaluation, values ValueFunc) (State, *Result, error) {

	if err := o.checkState(&s); err != nil {
		return s, nil, err
	}
	if err := ev.check(o.n, o.m); err != nil {
		return s, nil, err
	}
	if values == nil {
		return s, nil, errors.New("value function is required")
	}

	iter := s.Iter + 1
	log := o.log.WithField("iter", iter)
	low, upp := Asymptotes(iter, s.X, s.Xold1, s.Xold2, o.xmin, o.xmax, s.Low, s.Upp)
	raa0, raa := InitRegularization(ev.DF0, ev.DF, o.xmin, o.xmax, o.raa0eps, o.raaeps)

	res := &Result{FNew: make([]float64, o.m)}
	for {
		sp, err := BuildGCMMA(s.X, o.xmin, o.xmax, low, upp, ev, raa0, raa, o.scaling)
		if err != nil {
			return s, nil, errors.Wrapf(err, "outer iteration %d inner %d", iter, res.Inner)
		}
		sol, err := Solve(sp, log)
		if err != nil {
			return s, nil, errors.Wrapf(err, "outer iteration %d inner %d", iter, res.Inner)
		}

		res.Point, res.Sub = sol.Point, sp
		res.Barrier += sol.Barrier
		res.Newton += sol.Newton
		res.Halvings += sol.Halvings
		res.CapHits += sol.CapHits
		res.F0App, res.FApp = sp.Approx(sol.X)

		if res.F0New, err = o.call(values, sol.X, res.FNew); err != nil {
			return s, nil, errors.Wrapf(err, "outer iteration %d inner %d", iter, res.Inner)
		}

		res.Conservative = Conservative(res.F0App, res.FApp, res.F0New, res.FNew)
		if res.Conservative || res.Inner >= o.inner {
			break
		}

		res.Inner++
		raa0, raa = UpdateRegularization(sol.X, s.X, o.xmin, o.xmax, low, upp,
			res.F0New, res.FNew, res.F0App, res.FApp, raa0, raa)
		log.WithFields(logrus.Fields{"inner": res.Inner, "raa0": raa0}).Trace("approximation not conservative")
	}

	if !res.Conservative {
		log.WithField("inner", res.Inner).Warn("accepting non-conservative approximation")
	}
	log.WithFields(logrus.Fields{
		"inner": res.Inner, "newton": res.Newton, "halvings": res.Halvings,
	}).Debug("gcmma step")

	return s.next(iter, res.X, low, upp, raa0, raa), res, nil
}

func (o *Optimizer) call(values ValueFunc, x, f []float64) (f0 float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrEvaluation, "%v", r)
		}
	}()
	return values(clone(x), f), nil
}
