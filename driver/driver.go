// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package driver runs the outer loop of a moving asymptotes optimization:
// evaluate, filter, step, and stop on the design change.
package driver

import (
	"context"
	"math"
	"time"

	"github.com/curioloop/mma/filter"
	"github.com/curioloop/mma/mma"
	"github.com/curioloop/mma/numdiff"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// Objective evaluates f₀(x) and writes its gradient into grad.
type Objective func(x, grad []float64) float64

// Constraint evaluates 𝐟(x) into f and its row-major m×n Jacobian into df.
// iter is the outer iteration (starting at 1) the evaluation belongs to.
type Constraint func(x []float64, iter int, f, df []float64)

// Problem is the design problem handed to Run.
type Problem struct {
	Name       string
	N, M       int
	Xmin, Xmax []float64
	X0         []float64
	Objective  Objective
	Constraint Constraint // may be nil when M = 0
}

// Status describes why Run stopped.
type Status int

const (
	// ConvChange the largest design change dropped to the tolerance.
	ConvChange Status = iota
	// OverIterLimit the number of outer iterations reached the limit.
	OverIterLimit
	// Canceled the context was done before the loop finished.
	Canceled
)

func (s Status) String() string {
	switch s {
	case ConvChange:
		return "CONVERGENCE: MAX_CHANGE_OF_X_<=_RELTOL"
	case OverIterLimit:
		return "STOP: TOTAL NO. of ITERATIONS REACHED LIMIT"
	case Canceled:
		return "STOP: CANCELED"
	}
	return "UNKNOWN"
}

// Recorder observes every completed outer iteration.
type Recorder interface {
	Observe(problem string, it Iteration)
}

// Options controls the outer loop.
type Options struct {
	Variant mma.Variant
	// Stop once max|xᵏ⁺¹ - xᵏ| ≤ RelTol, after at least MinIters and at most MaxIters iterations.
	RelTol             float64
	MinIters, MaxIters int
	Move               float64     // MMA move limit (default 0.5)
	Scaling            mma.Scaling // DefaultScaling when empty
	MaxInner           int         // GCMMA re-solve cap (default 15)
	Raa0Eps, RaaEps    float64     // GCMMA regularization floors (default 10⁻⁵)
	Filter             *filter.Filter
	// Evaluate the KKT residual of every accepted design.
	KKTCheck bool
	// Compare the analytic derivatives at X0 against central differences,
	// and fail when the mismatch exceeds GradientTol (default 10⁻⁴).
	GradientCheck bool
	GradientTol   float64
	Logger        logrus.FieldLogger
	Recorder      Recorder
}

// Iteration summarizes one outer iteration.
type Iteration struct {
	Iter         int
	F0           float64   // objective at the design the step started from
	F            []float64 // constraints at the design the step started from
	Change       float64   // max|xᵏ⁺¹ - xᵏ|
	KKT          float64   // ‖res‖∞ at the accepted design, NaN when not checked
	Inner        int
	Conservative bool
	mma.Stats
	Elapsed time.Duration
}

// Result of an optimization run.
type Result struct {
	ID        uuid.UUID
	Status    Status
	X         []float64 // final design
	F0        float64   // objective at X
	F         []float64 // constraints at X
	KKT       float64   // ‖res‖∞ at X, NaN when not checked
	Iters     int
	History   []Iteration
	Low, Upp  []float64         // asymptotes of the last step
	Last      *mma.Result       // last step, holding the multipliers and slack
	Gradient  *numdiff.Mismatch // derivative check at X0, nil when disabled

	observed int
}

func (p *Problem) check() (err error) {
	switch {
	case p.N <= 0:
		err = errors.New("problem dimension must greater than 0")
	case p.M < 0:
		err = errors.New("constraint number must not less than 0")
	case len(p.X0) != p.N:
		err = errors.New("initial x size must equal to n")
	case p.Objective == nil:
		err = errors.New("objective function is required")
	case p.M > 0 && p.Constraint == nil:
		err = errors.New("constraint function is required")
	}
	return
}

// evaluator calls the problem functions into reusable buffers.
type evaluator struct {
	p      *Problem
	filter *filter.Filter
	grad   []float64 // scratch for value-only calls
	jac    []float64
}

// eval evaluates the true functions at x and returns the filtered evaluation
// handed to the optimizer together with the unfiltered one.
func (e *evaluator) eval(x []float64, iter int) (ev, raw *mma.Evaluation, err error) {
	p := e.p
	raw = &mma.Evaluation{
		DF0: make([]float64, p.N),
		F:   make([]float64, p.M),
		DF:  make([]float64, p.M*p.N),
	}

	defer func() {
		if r := recover(); r != nil {
			ev, raw, err = nil, nil, errors.Wrapf(mma.ErrEvaluation, "iteration %d: %v", iter, r)
		}
	}()

	raw.F0 = p.Objective(clone(x), raw.DF0)
	if p.M > 0 {
		p.Constraint(clone(x), iter, raw.F, raw.DF)
	}

	ev = raw
	if e.filter != nil && e.filter.Type != filter.None {
		ev = &mma.Evaluation{F0: raw.F0, F: raw.F}
		if ev.DF0, ev.DF, err = e.filter.Apply(x, raw.DF0, raw.DF); err != nil {
			return nil, nil, errors.Wrap(err, "sensitivity filter")
		}
	}
	return
}

// values evaluates the true functions only; it drives the GCMMA conservativeness check.
func (e *evaluator) values(iter int) mma.ValueFunc {
	return func(x []float64, f []float64) float64 {
		p := e.p
		f0 := p.Objective(x, e.grad)
		if p.M > 0 {
			p.Constraint(x, iter, f, e.jac)
		}
		return f0
	}
}

// gradientCheck compares the analytic derivatives in raw against central differences at x.
func (e *evaluator) gradientCheck(x []float64, raw *mma.Evaluation) (mm numdiff.Mismatch, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(mma.ErrEvaluation, "gradient check: %v", r)
		}
	}()
	p := e.p
	spec := &numdiff.Spec{
		N:      p.N, M: p.M,
		Func:   e.values(1),
		Method: numdiff.Central,
		Xmin:   p.Xmin, Xmax: p.Xmax,
	}
	return numdiff.Check(spec, clone(x), raw.DF0, raw.DF)
}

// Run optimizes the problem with the outer loop
//
//	while (change > RelTol and iter < MaxIters) or iter < MinIters
//
// where change = max|xᵏ⁺¹ - xᵏ|. The context is checked once per iteration;
// on cancellation the partial result is returned together with the context error.
func Run(ctx context.Context, p *Problem, opts Options) (*Result, error) {

	if err := p.check(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	id := uuid.New()
	log = log.WithFields(logrus.Fields{"run": id.String(), "problem": p.Name, "variant": opts.Variant})

	var raaeps []float64
	if opts.RaaEps != 0 {
		raaeps = make([]float64, p.M)
		for i := range raaeps {
			raaeps[i] = opts.RaaEps
		}
	}
	prob := mma.Problem{
		N:        p.N, M: p.M,
		Xmin:     p.Xmin, Xmax: p.Xmax,
		Scaling:  opts.Scaling,
		Variant:  opts.Variant,
		Move:     opts.Move,
		MaxInner: opts.MaxInner,
		Raa0Eps:  opts.Raa0Eps,
		RaaEps:   raaeps,
	}
	optimizer, err := prob.New(log)
	if err != nil {
		return nil, errors.Wrap(err, "invalid problem")
	}
	if opts.Filter != nil && opts.Filter.N() != p.N {
		return nil, errors.Errorf("filter has %d variables, want %d", opts.Filter.N(), p.N)
	}
	if opts.MaxIters <= 0 {
		return nil, errors.New("max iterations must greater than 0")
	}

	state, err := optimizer.Init(p.X0)
	if err != nil {
		return nil, errors.Wrap(err, "invalid initial design")
	}

	e := &evaluator{
		p:    p, filter: opts.Filter,
		grad: make([]float64, p.N),
		jac:  make([]float64, p.M*p.N),
	}
	res := &Result{ID: id, KKT: math.NaN()}

	var (
		last   *mma.Result
		change = math.Inf(1)
	)
	for (change > opts.RelTol && state.Iter < opts.MaxIters) || state.Iter < opts.MinIters {

		if err = ctx.Err(); err != nil {
			res.Status = Canceled
			break
		}

		iter := state.Iter + 1
		start := time.Now()

		ev, raw, err := e.eval(state.X, iter)
		if err != nil {
			return nil, err
		}
		if last != nil && opts.KKTCheck {
			if err = res.kkt(optimizer, last, raw); err != nil {
				return nil, err
			}
		}
		res.observe(opts.Recorder, p.Name)

		if iter == 1 && opts.GradientCheck {
			mm, err := e.gradientCheck(state.X, raw)
			if err != nil {
				return nil, err
			}
			res.Gradient = &mm
			tol := opts.GradientTol
			if tol == 0 {
				tol = 1e-4
			}
			fields := logrus.Fields{"objective": mm.Objective, "variable": mm.Variable, "constraint": mm.Constraint}
			if mm.Max() > tol {
				log.WithFields(fields).Error("analytic derivatives disagree with finite differences")
				return nil, errors.Errorf("gradient check failed: mismatch %.3e exceeds %.3e", mm.Max(), tol)
			}
			log.WithFields(fields).Debug("gradient check passed")
		}

		var next mma.State
		if opts.Variant == mma.GCMMA {
			next, last, err = optimizer.StepConservative(state, ev, e.values(iter))
		} else {
			next, last, err = optimizer.Step(state, ev)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "%s", p.Name)
		}

		dx := make([]float64, p.N)
		floats.SubTo(dx, next.X, state.X)
		change = floats.Norm(dx, math.Inf(1))

		res.History = append(res.History, Iteration{
			Iter:   iter, F0: raw.F0, F: raw.F,
			Change: change, KKT: math.NaN(),
			Inner:  last.Inner, Conservative: last.Conservative,
			Stats:  last.Stats, Elapsed: time.Since(start),
		})
		state = next

		log.WithFields(logrus.Fields{
			"iter": iter, "f0": raw.F0, "change": change, "inner": last.Inner, "newton": last.Newton,
		}).Info("outer iteration")
	}

	// evaluate the final design once more for the reported values and residual
	_, raw, evalErr := e.eval(state.X, state.Iter+1)
	if evalErr != nil {
		return nil, evalErr
	}
	if last != nil && opts.KKTCheck {
		if kerr := res.kkt(optimizer, last, raw); kerr != nil {
			return nil, kerr
		}
	}
	res.observe(opts.Recorder, p.Name)

	res.X, res.F0, res.F = state.X, raw.F0, raw.F
	res.Low, res.Upp = state.Low, state.Upp
	res.Iters, res.Last = state.Iter, last
	if res.Status != Canceled {
		res.Status = OverIterLimit
		if change <= opts.RelTol {
			res.Status = ConvChange
		}
	}

	log.WithFields(logrus.Fields{
		"iters": res.Iters, "f0": res.F0, "kkt": res.KKT, "status": res.Status.String(),
	}).Info("optimization finished")

	if res.Status == Canceled {
		return res, errors.Wrap(err, "optimization canceled")
	}
	return res, nil
}

// kkt records the residual of the previous step at the design ev was evaluated at.
func (r *Result) kkt(o *mma.Optimizer, last *mma.Result, ev *mma.Evaluation) error {
	residual, err := o.KKT(last, ev)
	if err != nil {
		return errors.Wrap(err, "kkt check")
	}
	r.KKT = residual.Max
	if k := len(r.History); k > 0 {
		r.History[k-1].KKT = residual.Max
	}
	return nil
}

// observe hands the latest iteration to the recorder once its residual is known.
func (r *Result) observe(rec Recorder, name string) {
	if k := len(r.History); rec != nil && k > r.observed {
		rec.Observe(name, r.History[k-1])
		r.observed = k
	}
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
