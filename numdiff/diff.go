// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package numdiff

import (
	"math"

	"github.com/pkg/errors"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use central difference in interior points and the second order accuracy
	// forward or backward difference near the boundary.
	Central
)

func (m Method) String() string {
	switch m {
	case Forward:
		return "forward"
	case Central:
		return "central"
	}
	return "unknown"
}

// Spec estimates the derivatives of an objective and its constraints by finite differences:
//   - f₀(𝐱) : ℝⁿ → ℝ    estimated gradient stored in an n-vector
//   - 𝐟(𝐱) : ℝⁿ → ℝᵐ    estimated Jacobian stored row-major in an m×n matrix
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
type Spec struct {
	N, M int
	// Func writes the constraint values at x into f and returns the objective value.
	// It must not retain or modify x.
	Func func(x, f []float64) float64
	// Finite difference method to use.
	Method Method
	// Box of the design variables. Steps that would leave the box are
	// reversed or made one-sided. Both may be nil.
	Xmin, Xmax []float64
	// Relative step size. The absolute step is h = RelStep·sign(x)·|x|, or
	// h = ε·sign(x)·max(1,|x|) when RelStep is zero, where ε is √eps (Forward) or ∛eps (Central).
	RelStep float64

	step    []float64
	oneSide []bool
	f0      []float64 // m+1
	f1, f2  []float64 // m+1
}

func (s *Spec) check(x0, df0, df []float64) (err error) {

	switch {
	case s.N <= 0 || s.M < 0:
		err = errors.New("negative dimensions")
	case s.Method != Forward && s.Method != Central:
		err = errors.New("unknown method")
	case s.Func == nil:
		err = errors.New("function is required")
	case s.N != len(x0):
		err = errors.New("invalid x0 dimensions")
	case s.N != len(df0):
		err = errors.New("invalid gradient dimensions")
	case s.N*s.M != len(df):
		err = errors.New("invalid jacobian dimensions")
	case s.Xmin != nil && len(s.Xmin) != s.N, s.Xmax != nil && len(s.Xmax) != s.N:
		err = errors.New("invalid bound dimensions")
	}
	if err != nil {
		return
	}

	for i, x := range x0 {
		lb, ub := s.bound(i)
		if lb > ub {
			return errors.Errorf("invalid bound range at %d", i)
		}
		if x < lb || x > ub {
			return errors.Errorf("x0 violates bound constraints at %d", i)
		}
	}

	if len(s.step) != s.N {
		s.step = make([]float64, s.N)
		s.oneSide = make([]bool, s.N)
	}
	if len(s.f0) != s.M+1 {
		s.f0 = make([]float64, s.M+1)
		s.f1 = make([]float64, s.M+1)
		s.f2 = make([]float64, s.M+1)
	}
	return
}

// bound returns the box of variable i, unbounded when missing or NaN.
func (s *Spec) bound(i int) (lb, ub float64) {
	lb, ub = math.Inf(-1), math.Inf(1)
	if s.Xmin != nil && !math.IsNaN(s.Xmin[i]) {
		lb = s.Xmin[i]
	}
	if s.Xmax != nil && !math.IsNaN(s.Xmax[i]) {
		ub = s.Xmax[i]
	}
	return
}

// Diff estimates the objective gradient into df0 (n) and the constraint Jacobian into df (m×n).
// x0 is restored before returning.
func (s *Spec) Diff(x0, df0, df []float64) error {

	if err := s.check(x0, df0, df); err != nil {
		return err
	}

	s.absoluteStep(x0)
	s.adjustToBounds(x0)

	if s.Method == Central {
		s.approxCentral(x0, df0, df)
	} else {
		s.approxForward(x0, df0, df)
	}
	return nil
}

// eval stores [f₀(x), 𝐟(x)] into out.
func (s *Spec) eval(x, out []float64) {
	out[0] = s.Func(x, out[1:])
}

func (s *Spec) absoluteStep(x0 []float64) {
	eps := sqrtEps
	if s.Method == Central {
		eps = cubeEps
	}

	h := s.step
	for i, v := range x0 {
		if s.RelStep == 0 {
			h[i] = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
			continue
		}
		d := math.Copysign(s.RelStep, v) * math.Abs(v)
		if (v+d)-v == 0 {
			d = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
		}
		h[i] = d
	}
}

func (s *Spec) adjustToBounds(x0 []float64) {
	h, o := s.step, s.oneSide
	for i := range o {
		o[i] = false
	}

	for i, x := range x0 {
		lb, ub := s.bound(i)
		ld, ud := x-lb, ub-x

		if s.Method == Forward {
			t := x + h[i]
			fitting := math.Abs(h[i]) < math.Max(ld, ud)
			switch {
			case fitting && (t < lb || t > ub):
				h[i] = -h[i]
			case !fitting && ud >= ld:
				h[i] = ud
			case !fitting:
				h[i] = -ld
			}
			continue
		}

		h[i] = math.Abs(h[i])
		if ld >= h[i] && ud >= h[i] {
			continue
		}
		if ud >= ld {
			h[i] = math.Min(h[i], 0.5*ud)
		} else {
			h[i] = -math.Min(h[i], 0.5*ld)
		}
		o[i] = true
		if d := math.Min(ud, ld); math.Abs(h[i]) <= d {
			h[i], o[i] = d, false
		}
	}
}

// store writes column i of the stacked derivative into df0 and df.
func (s *Spec) store(i int, df0, df []float64, col func(k int) float64) {
	df0[i] = col(0)
	for k := 1; k <= s.M; k++ {
		df[(k-1)*s.N+i] = col(k)
	}
}

func (s *Spec) approxForward(x0, df0, df []float64) {
	f0, f1 := s.f0, s.f1
	s.eval(x0, f0)
	for i, h := range s.step {
		x := x0[i]
		x0[i] = x + h
		s.eval(x0, f1)
		x0[i] = x
		s.store(i, df0, df, func(k int) float64 { return (f1[k] - f0[k]) / h })
	}
}

func (s *Spec) approxCentral(x0, df0, df []float64) {
	f0, f1, f2 := s.f0, s.f1, s.f2
	s.eval(x0, f0)
	for i, h := range s.step {
		x := x0[i]
		if s.oneSide[i] {
			x0[i] = x + h
			s.eval(x0, f1)
			x0[i] = x + 2*h
			s.eval(x0, f2)
			x0[i] = x
			s.store(i, df0, df, func(k int) float64 { return (4*f1[k] - 3*f0[k] - f2[k]) / (2 * h) })
		} else {
			x0[i] = x - h
			s.eval(x0, f1)
			x0[i] = x + h
			s.eval(x0, f2)
			x0[i] = x
			s.store(i, df0, df, func(k int) float64 { return (f2[k] - f1[k]) / (2 * h) })
		}
	}
}
