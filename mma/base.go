// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mma

import "github.com/pkg/errors"

const (
	zero = 0.0
	half = 0.5
	one  = 1.0
	ten  = 10.0
)

const (
	// epsimin is the final barrier level of the interior-point solve.
	epsimin = 1e-7
	// raaMMA is the fixed regularization used by the plain MMA subproblem.
	raaMMA = 1e-5
	// albefa shrinks the asymptote interval to the trust region [α,β].
	albefa = 0.1
	// asyinit, asyincr and asydecr control the asymptote adaptation.
	asyinit = 0.5
	asyincr = 1.2
	asydecr = 0.7
	// asymin and asymax bound |x - asymptote| relative to the variable range.
	asymin = 0.01
	asymax = 10.0
	// xmamieps floors xmax - xmin.
	xmamieps = 1e-5
	// raacofmin floors the curvature estimate of the regularization update.
	raacofmin = 1e-12
	// raaGrowth and raaCap limit a single regularization update.
	raaGrowth = 1.1
	raaCap    = 10.0
	// pqShift is the fraction of |∇f| added to both p and q.
	pqShift = 0.001
)

const (
	// maxNewton is the Newton step cap for one barrier level.
	maxNewton = 200
	// maxHalving is the backtracking cap for one Newton step.
	maxHalving = 50
	// stepSafety is the fraction-to-boundary safety factor.
	stepSafety = 1.01
	// maxInner is the default cap on GCMMA conservative re-solves.
	maxInner = 15
)

var (
	// ErrSingular reduced Newton system is not invertible.
	ErrSingular = errors.New("mma: singular reduced newton system")
	// ErrLineSearch backtracking exhausted without residual decrease.
	ErrLineSearch = errors.New("mma: line search exhausted")
	// ErrInfeasibleBounds empty trust region (α ≥ β) for some variable.
	ErrInfeasibleBounds = errors.New("mma: infeasible subproblem bounds")
	// ErrDimension input vectors do not match the problem dimension.
	ErrDimension = errors.New("mma: dimension mismatch")
)

// Variant selects the subproblem approximation.
type Variant int

const (
	// MMA the original method of moving asymptotes with fixed regularization and move limit.
	MMA Variant = iota
	// GCMMA the globally convergent variant with adaptive regularization
	// and conservative re-solves.
	GCMMA
)

func (v Variant) String() string {
	switch v {
	case MMA:
		return "mma"
	case GCMMA:
		return "gcmma"
	}
	return "unknown"
}

// ParseVariant converts the name printed by String back to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "mma":
		return MMA, nil
	case "gcmma":
		return GCMMA, nil
	}
	return MMA, errors.Errorf("unknown variant %q", s)
}

// Scaling holds the constants of the auxiliary variables y and z:
//
//	minimize   f₀(x) + a₀z + Σ(cᵢyᵢ + ½dᵢyᵢ²)
//	subject to fᵢ(x) - aᵢz - yᵢ ≤ 0,  yᵢ ≥ 0,  z ≥ 0
type Scaling struct {
	A0      float64
	A, C, D []float64 // m
}

// DefaultScaling returns the scaling that makes the auxiliary problem
// equivalent to the original one for reasonably scaled constraints:
// a₀ = 1, aᵢ = 0, cᵢ = 1000, dᵢ = 1.
func DefaultScaling(m int) Scaling {
	s := Scaling{A0: one, A: make([]float64, m), C: make([]float64, m), D: make([]float64, m)}
	for i := 0; i < m; i++ {
		s.C[i] = 1000
		s.D[i] = one
	}
	return s
}

func (s Scaling) clone() Scaling {
	return Scaling{A0: s.A0, A: clone(s.A), C: clone(s.C), D: clone(s.D)}
}

func clone(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append(make([]float64, 0, len(v)), v...)
}

func fill(n int, v float64) []float64 {
	r := make([]float64, n)
	for i := range r {
		r[i] = v
	}
	return r
}
