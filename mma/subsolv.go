// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mma

import (
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// Point is a primal-dual point of the subproblem.
// y, z, λ, ξ, η, μ, ζ, s are strictly positive and α < x < β.
type Point struct {
	X   []float64 // n
	Y   []float64 // m
	Z   float64
	Lam []float64 // m
	Xsi []float64 // n
	Eta []float64 // n
	Mu  []float64 // m
	Zet float64
	S   []float64 // m
}

func newPoint(n, m int) *Point {
	return &Point{
		X:   make([]float64, n), Y: make([]float64, m), Lam: make([]float64, m),
		Xsi: make([]float64, n), Eta: make([]float64, n),
		Mu:  make([]float64, m), S: make([]float64, m),
	}
}

// step sets p = o + t·d.
func (p *Point) step(o *Point, t float64, d *Point) {
	floats.AddScaledTo(p.X, o.X, t, d.X)
	floats.AddScaledTo(p.Y, o.Y, t, d.Y)
	floats.AddScaledTo(p.Lam, o.Lam, t, d.Lam)
	floats.AddScaledTo(p.Xsi, o.Xsi, t, d.Xsi)
	floats.AddScaledTo(p.Eta, o.Eta, t, d.Eta)
	floats.AddScaledTo(p.Mu, o.Mu, t, d.Mu)
	floats.AddScaledTo(p.S, o.S, t, d.S)
	p.Z = o.Z + t*d.Z
	p.Zet = o.Zet + t*d.Zet
}

func (p *Point) copyFrom(o *Point) {
	copy(p.X, o.X)
	copy(p.Y, o.Y)
	copy(p.Lam, o.Lam)
	copy(p.Xsi, o.Xsi)
	copy(p.Eta, o.Eta)
	copy(p.Mu, o.Mu)
	copy(p.S, o.S)
	p.Z, p.Zet = o.Z, o.Zet
}

// Stats summarizes one interior-point solve.
type Stats struct {
	Barrier  int // barrier levels visited
	Newton   int // total Newton steps
	Halvings int // total step halvings in the backtracking
	CapHits  int // barrier levels that stopped at the Newton step cap
}

// Solution of a subproblem.
type Solution struct {
	Point
	Stats
}

// subSolver holds the subproblem and the scratch space of one solve.
type subSolver struct {
	sp   *Subproblem
	log  logrus.FieldLogger
	epsi float64

	ux1, xl1     []float64 // Uⱼ-xⱼ, xⱼ-Lⱼ
	uxinv, xlinv []float64 // 1/(Uⱼ-xⱼ), 1/(xⱼ-Lⱼ)
	plam, qlam   []float64 // p₀ + Pᵀλ, q₀ + Qᵀλ
	gvec         []float64 // P·(1/(U-x)) + Q·(1/(x-L))
	res          []float64 // 3n + 4m + 2
}

// Solve solves the subproblem by a primal-dual Newton method on the perturbed
// KKT conditions, driving the barrier level ε from 1 to 10⁻⁷ by factors of 10.
// For each ε Newton steps are taken while ‖res‖∞ > 0.9ε (at most 200).
func Solve(sp *Subproblem, log logrus.FieldLogger) (*Solution, error) {

	if log == nil {
		log = discard
	}

	n, m := sp.N, sp.M
	for j := 0; j < n; j++ {
		if !(sp.Alfa[j] < sp.Beta[j]) {
			return nil, errors.Wrapf(ErrInfeasibleBounds, "variable %d: α=%g β=%g", j, sp.Alfa[j], sp.Beta[j])
		}
	}

	s := &subSolver{
		sp:    sp, log: log, epsi: one,
		ux1:   make([]float64, n), xl1: make([]float64, n),
		uxinv: make([]float64, n), xlinv: make([]float64, n),
		plam:  make([]float64, n), qlam: make([]float64, n),
		gvec:  make([]float64, m),
		res:   make([]float64, 3*n+4*m+2),
	}

	sol := &Solution{Point: *s.start()}
	pt := &sol.Point
	old, dir := newPoint(n, m), newPoint(n, m)
	sys := newNewtonSys(n, m)
	reduce := reduction(n, m)

	for s.epsi > epsimin {
		sol.Barrier++
		norm, rmax := s.residual(pt)

		iter := 0
		for rmax > 0.9*s.epsi && iter < maxNewton {
			iter++

			s.assemble(pt, sys)
			if err := reduce(s, pt, sys, dir); err != nil {
				return nil, errors.Wrapf(err, "barrier ε=%.1e newton step %d", s.epsi, iter)
			}
			s.complete(pt, sys, dir)

			old.copyFrom(pt)
			t := s.maxStep(pt, dir)

			// halve the step until the residual norm does not grow
			halving, next := 0, 2*norm
			for next > norm && halving < maxHalving {
				halving++
				pt.step(old, t, dir)
				next, rmax = s.residual(pt)
				t /= 2
			}
			sol.Halvings += halving - 1
			if next > norm {
				log.WithFields(logrus.Fields{
					"epsi": s.epsi, "newton": iter, "residual": next, "previous": norm,
				}).Warn("line search exhausted")
				return nil, errors.Wrapf(ErrLineSearch, "barrier ε=%.1e newton step %d", s.epsi, iter)
			}
			norm = next
		}

		sol.Newton += iter
		if stalled(iter, rmax, s.epsi) {
			sol.CapHits++
			log.WithFields(logrus.Fields{"epsi": s.epsi, "residual": rmax}).Warn("newton step cap reached")
		}
		log.WithFields(logrus.Fields{"epsi": s.epsi, "newton": iter, "residual": rmax}).Trace("barrier level solved")

		s.epsi *= 0.1
	}

	return sol, nil
}

// start returns the interior starting point:
//
//	x = ½(α+β),  y = z = λ = s = ζ = 1
//	ξ = 𝚖𝚊𝚡(1/(x-α), 1),  η = 𝚖𝚊𝚡(1/(β-x), 1),  μ = 𝚖𝚊𝚡(1, ½c)
func (s *subSolver) start() *Point {
	sp := s.sp
	p := newPoint(sp.N, sp.M)
	for j := range p.X {
		x := half * (sp.Alfa[j] + sp.Beta[j])
		p.X[j] = x
		p.Xsi[j] = math.Max(one/(x-sp.Alfa[j]), one)
		p.Eta[j] = math.Max(one/(sp.Beta[j]-x), one)
	}
	for i := range p.Y {
		p.Y[i], p.Lam[i], p.S[i] = one, one, one
		p.Mu[i] = math.Max(one, half*sp.C[i])
	}
	p.Z, p.Zet = one, one
	return p
}

// update refreshes the x-dependent quantities and the λ-weighted coefficients.
func (s *subSolver) update(p *Point) {
	sp := s.sp
	n := sp.N
	for j, x := range p.X {
		s.ux1[j] = sp.Upp[j] - x
		s.xl1[j] = x - sp.Low[j]
		s.uxinv[j] = one / s.ux1[j]
		s.xlinv[j] = one / s.xl1[j]
	}
	copy(s.plam, sp.P0)
	copy(s.qlam, sp.Q0)
	for i, l := range p.Lam {
		pi, qi := sp.P[i*n:(i+1)*n], sp.Q[i*n:(i+1)*n]
		floats.AddScaled(s.plam, l, pi)
		floats.AddScaled(s.qlam, l, qi)
		s.gvec[i] = floats.Dot(pi, s.uxinv) + floats.Dot(qi, s.xlinv)
	}
}

// residual evaluates the perturbed KKT residual at p and returns its 2-norm and ∞-norm:
//
//	∂ψ/∂x - ξ + η,  c + dy - μ - λ,  a₀ - ζ - aᵀλ,  g(x) - az - y + s - b,
//	ξ(x-α) - ε,  η(β-x) - ε,  μy - ε,  ζz - ε,  λs - ε
func (s *subSolver) residual(p *Point) (norm, max float64) {
	sp, e := s.sp, s.epsi
	n, m := sp.N, sp.M
	s.update(p)

	r := s.res
	rex, r := r[:n], r[n:]
	rey, r := r[:m], r[m:]
	rez, r := r[:1], r[1:]
	relam, r := r[:m], r[m:]
	rexsi, r := r[:n], r[n:]
	reeta, r := r[:n], r[n:]
	remu, r := r[:m], r[m:]
	rezet, res := r[:1], r[1:]

	for j, x := range p.X {
		dpsidx := s.plam[j]*s.uxinv[j]*s.uxinv[j] - s.qlam[j]*s.xlinv[j]*s.xlinv[j]
		rex[j] = dpsidx - p.Xsi[j] + p.Eta[j]
		rexsi[j] = p.Xsi[j]*(x-sp.Alfa[j]) - e
		reeta[j] = p.Eta[j]*(sp.Beta[j]-x) - e
	}
	for i, l := range p.Lam {
		rey[i] = sp.C[i] + sp.D[i]*p.Y[i] - p.Mu[i] - l
		relam[i] = s.gvec[i] - sp.A[i]*p.Z - p.Y[i] + p.S[i] - sp.B[i]
		remu[i] = p.Mu[i]*p.Y[i] - e
		res[i] = l*p.S[i] - e
	}
	rez[0] = sp.A0 - p.Zet - floats.Dot(sp.A, p.Lam)
	rezet[0] = p.Zet*p.Z - e

	return floats.Norm(s.res, 2), floats.Norm(s.res, math.Inf(1))
}

// complete recovers the remaining components of the direction from (Δx, Δz, Δλ):
//
//	Δy = (Δλ - δy)/Dy
//	Δξ = -ξ + ε/(x-α) - ξΔx/(x-α)
//	Δη = -η + ε/(β-x) + ηΔx/(β-x)
//	Δμ = -μ + ε/y - μΔy/y
//	Δζ = -ζ + ε/z - ζΔz/z
//	Δs = -s + ε/λ - sΔλ/λ
func (s *subSolver) complete(p *Point, sys *newtonSys, d *Point) {
	sp, e := s.sp, s.epsi
	for i := range d.Y {
		d.Y[i] = (d.Lam[i] - sys.dely[i]) / sys.diagy[i]
		d.Mu[i] = -p.Mu[i] + e/p.Y[i] - p.Mu[i]*d.Y[i]/p.Y[i]
		d.S[i] = -p.S[i] + e/p.Lam[i] - p.S[i]*d.Lam[i]/p.Lam[i]
	}
	for j, x := range p.X {
		xa, bx := x-sp.Alfa[j], sp.Beta[j]-x
		d.Xsi[j] = -p.Xsi[j] + e/xa - p.Xsi[j]*d.X[j]/xa
		d.Eta[j] = -p.Eta[j] + e/bx + p.Eta[j]*d.X[j]/bx
	}
	d.Zet = -p.Zet + e/p.Z - p.Zet*d.Z/p.Z
}

// maxStep applies the fraction-to-boundary rule: the largest t ≤ 1 such that
// every positive variable v stays positive (t·1.01·(-Δv/v) ≤ 1) and x stays in (α,β).
func (s *subSolver) maxStep(p, d *Point) float64 {
	sp := s.sp
	inv := one
	ratio := func(v, dv []float64) {
		for k, x := range v {
			inv = math.Max(inv, -stepSafety*dv[k]/x)
		}
	}
	ratio(p.Y, d.Y)
	ratio(p.Lam, d.Lam)
	ratio(p.Xsi, d.Xsi)
	ratio(p.Eta, d.Eta)
	ratio(p.Mu, d.Mu)
	ratio(p.S, d.S)
	inv = math.Max(inv, -stepSafety*d.Z/p.Z)
	inv = math.Max(inv, -stepSafety*d.Zet/p.Zet)
	for j, x := range p.X {
		inv = math.Max(inv, -stepSafety*d.X[j]/(x-sp.Alfa[j]))
		inv = math.Max(inv, stepSafety*d.X[j]/(sp.Beta[j]-x))
	}
	return one / inv
}

// stalled reports whether a barrier level stopped at the Newton step cap
// with its residual still above the level tolerance.
func stalled(iter int, rmax, epsi float64) bool {
	return iter >= maxNewton && rmax > 0.9*epsi
}
