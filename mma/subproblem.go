// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mma

import (
	"math"

	"github.com/pkg/errors"
)

// Evaluation holds the true function values and derivatives at a design point.
//   - f₀(𝐱) : ℝⁿ → ℝ       (F0)
//   - f₀′(𝐱) : ℝⁿ → ℝⁿ     (DF0)
//   - 𝐟(𝐱) : ℝⁿ → ℝᵐ       (F)
//   - 𝐟′(𝐱) : ℝⁿ → ℝᵐˣⁿ    (DF, row-major)
type Evaluation struct {
	F0  float64
	DF0 []float64
	F   []float64
	DF  []float64
}

func (ev *Evaluation) check(n, m int) error {
	switch {
	case len(ev.DF0) != n:
		return errors.Wrapf(ErrDimension, "objective gradient has %d entries, want %d", len(ev.DF0), n)
	case len(ev.F) != m:
		return errors.Wrapf(ErrDimension, "constraint values have %d entries, want %d", len(ev.F), m)
	case len(ev.DF) != m*n:
		return errors.Wrapf(ErrDimension, "constraint jacobian has %d entries, want %d×%d", len(ev.DF), m, n)
	}
	return nil
}

// Subproblem is the separable convex approximation built around xᵏ:
//
//	minimize   r₀ + Σⱼ(p₀ⱼ/(Uⱼ-xⱼ) + q₀ⱼ/(xⱼ-Lⱼ)) + a₀z + Σᵢ(cᵢyᵢ + ½dᵢyᵢ²)
//	subject to Σⱼ(pᵢⱼ/(Uⱼ-xⱼ) + qᵢⱼ/(xⱼ-Lⱼ)) - aᵢz - yᵢ ≤ bᵢ
//	           αⱼ ≤ xⱼ ≤ βⱼ,  y ≥ 0,  z ≥ 0
//
// with bᵢ = -rᵢ. All of P0, Q0, P, Q, Raa0 and Raa are non-negative.
type Subproblem struct {
	N, M       int
	Low, Upp   []float64 // n
	Alfa, Beta []float64 // n
	P0, Q0     []float64 // n
	P, Q       []float64 // m×n (row-major)
	B          []float64 // m
	R0         float64
	R          []float64 // m
	Raa0       float64
	Raa        []float64 // m
	Scaling
}

// BuildMMA builds the MMA subproblem around x with asymptotes (low, upp).
// The trust region is the tightest of the asymptote margin, the move limit
// ±move·(xmax-xmin) and the global box.
func BuildMMA(x, xmin, xmax, low, upp []float64, ev *Evaluation, move float64, sc Scaling) (*Subproblem, error) {
	m := len(ev.F)
	raa := fill(m, raaMMA)
	return build(x, xmin, xmax, low, upp, ev, move, raaMMA, raa, sc)
}

// BuildGCMMA builds the GCMMA subproblem around x with asymptotes (low, upp)
// and the adaptive regularization raa0 (objective) and raa (constraints).
// There is no move limit: conservativeness is enforced by the regularization.
func BuildGCMMA(x, xmin, xmax, low, upp []float64, ev *Evaluation, raa0 float64, raa []float64, sc Scaling) (*Subproblem, error) {
	if len(raa) != len(ev.F) {
		return nil, errors.Wrapf(ErrDimension, "regularization has %d entries, want %d", len(raa), len(ev.F))
	}
	return build(x, xmin, xmax, low, upp, ev, math.NaN(), raa0, raa, sc)
}

// build assembles the coefficients; a NaN move disables the move limit.
func build(x, xmin, xmax, low, upp []float64, ev *Evaluation, move, raa0 float64, raa []float64, sc Scaling) (*Subproblem, error) {

	n, m := len(x), len(ev.F)
	switch {
	case len(xmin) != n || len(xmax) != n:
		return nil, errors.Wrap(ErrDimension, "bounds")
	case len(low) != n || len(upp) != n:
		return nil, errors.Wrap(ErrDimension, "asymptotes")
	case len(sc.A) != m || len(sc.C) != m || len(sc.D) != m:
		return nil, errors.Wrap(ErrDimension, "scaling")
	}
	if err := ev.check(n, m); err != nil {
		return nil, err
	}

	sp := &Subproblem{
		N:       n, M: m,
		Low:     clone(low), Upp: clone(upp),
		Alfa:    make([]float64, n), Beta: make([]float64, n),
		P0:      make([]float64, n), Q0: make([]float64, n),
		P:       make([]float64, m*n), Q: make([]float64, m*n),
		B:       make([]float64, m), R: make([]float64, m),
		Raa0:    raa0, Raa: clone(raa),
		Scaling: sc.clone(),
	}

	// trust region [α,β]:
	//   αⱼ = 𝚖𝚊𝚡(Lⱼ + 0.1(xⱼ-Lⱼ), xⱼ - 𝚖𝚘𝚟𝚎·(xmaxⱼ-xminⱼ), xminⱼ)
	//   βⱼ = 𝚖𝚒𝚗(Uⱼ - 0.1(Uⱼ-xⱼ), xⱼ + 𝚖𝚘𝚟𝚎·(xmaxⱼ-xminⱼ), xmaxⱼ)
	limited := !math.IsNaN(move)
	for j := 0; j < n; j++ {
		a := math.Max(low[j]+albefa*(x[j]-low[j]), xmin[j])
		b := math.Min(upp[j]-albefa*(upp[j]-x[j]), xmax[j])
		if limited {
			a = math.Max(a, x[j]-move*(xmax[j]-xmin[j]))
			b = math.Min(b, x[j]+move*(xmax[j]-xmin[j]))
		}
		if !(a < b) {
			return nil, errors.Wrapf(ErrInfeasibleBounds, "variable %d: α=%g β=%g", j, a, b)
		}
		sp.Alfa[j], sp.Beta[j] = a, b
	}

	rng := xRange(xmin, xmax)
	ux2, xl2 := make([]float64, n), make([]float64, n)
	for j := 0; j < n; j++ {
		ux, xl := upp[j]-x[j], x[j]-low[j]
		ux2[j], xl2[j] = ux*ux, xl*xl
	}

	// split ∂f/∂xⱼ into p = 𝚖𝚊𝚡(∂f/∂xⱼ,0) and q = 𝚖𝚊𝚡(-∂f/∂xⱼ,0), shift both by
	// 0.001(p+q) + ρ/𝚛𝚊𝚗𝚐𝚎ⱼ and scale by (Uⱼ-xⱼ)² and (xⱼ-Lⱼ)².
	split := func(g []float64, raa float64, p, q []float64) {
		for j, d := range g {
			pj, qj := math.Max(d, zero), math.Max(-d, zero)
			pq := pqShift*(pj+qj) + raa/rng[j]
			p[j] = (pj + pq) * ux2[j]
			q[j] = (qj + pq) * xl2[j]
		}
	}

	split(ev.DF0, raa0, sp.P0, sp.Q0)
	sp.R0 = ev.F0 - sp.sep(x, sp.P0, sp.Q0)

	for i := 0; i < m; i++ {
		p, q := sp.P[i*n:(i+1)*n], sp.Q[i*n:(i+1)*n]
		split(ev.DF[i*n:(i+1)*n], raa[i], p, q)
		sp.R[i] = ev.F[i] - sp.sep(x, p, q)
		sp.B[i] = -sp.R[i]
	}

	return sp, nil
}

// sep evaluates Σⱼ(pⱼ/(Uⱼ-xⱼ) + qⱼ/(xⱼ-Lⱼ)).
func (sp *Subproblem) sep(x, p, q []float64) (v float64) {
	for j := range x {
		v += p[j]/(sp.Upp[j]-x[j]) + q[j]/(x[j]-sp.Low[j])
	}
	return
}

// Approx evaluates the approximating functions at x, typically the subproblem solution.
func (sp *Subproblem) Approx(x []float64) (f0app float64, fapp []float64) {
	n := sp.N
	f0app = sp.R0 + sp.sep(x, sp.P0, sp.Q0)
	fapp = make([]float64, sp.M)
	for i := range fapp {
		fapp[i] = sp.R[i] + sp.sep(x, sp.P[i*n:(i+1)*n], sp.Q[i*n:(i+1)*n])
	}
	return
}
