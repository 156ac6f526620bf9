// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mma

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Residual is the first-order optimality residual of the original problem.
type Residual struct {
	Vector []float64 // 3n + 4m + 2 entries, same block order as the subproblem residual
	Norm   float64   // ‖res‖₂
	Max    float64   // ‖res‖∞
}

// KKT evaluates the KKT conditions of the original problem at the primal-dual point p
// using the true values and derivatives in ev:
//
//	∇f₀ + ∇𝐟ᵀλ - ξ + η,  c + dy - μ - λ,  a₀ - ζ - aᵀλ,  𝐟 - az - y + s,
//	ξ(x-xmin),  η(xmax-x),  μy,  ζz,  λs
//
// It is a diagnostic only and never feeds back into the solver.
func KKT(p *Point, xmin, xmax []float64, ev *Evaluation, sc Scaling) (*Residual, error) {

	n, m := len(p.X), len(p.Lam)
	if len(xmin) != n || len(xmax) != n {
		return nil, errors.Wrap(ErrDimension, "bounds")
	}
	if err := ev.check(n, m); err != nil {
		return nil, err
	}

	r := make([]float64, 3*n+4*m+2)
	rex, rest := r[:n], r[n:]
	rey, rest := rest[:m], rest[m:]
	rez, rest := rest[:1], rest[1:]
	relam, rest := rest[:m], rest[m:]
	rexsi, rest := rest[:n], rest[n:]
	reeta, rest := rest[:n], rest[n:]
	remu, rest := rest[:m], rest[m:]
	rezet, res := rest[:1], rest[1:]

	copy(rex, ev.DF0)
	for i, l := range p.Lam {
		floats.AddScaled(rex, l, ev.DF[i*n:(i+1)*n])
	}
	for j, x := range p.X {
		rex[j] += p.Eta[j] - p.Xsi[j]
		rexsi[j] = p.Xsi[j] * (x - xmin[j])
		reeta[j] = p.Eta[j] * (xmax[j] - x)
	}
	for i, l := range p.Lam {
		rey[i] = sc.C[i] + sc.D[i]*p.Y[i] - p.Mu[i] - l
		relam[i] = ev.F[i] - sc.A[i]*p.Z - p.Y[i] + p.S[i]
		remu[i] = p.Mu[i] * p.Y[i]
		res[i] = l * p.S[i]
	}
	rez[0] = sc.A0 - p.Zet - floats.Dot(sc.A, p.Lam)
	rezet[0] = p.Zet * p.Z

	return &Residual{
		Vector: r,
		Norm:   floats.Norm(r, 2),
		Max:    floats.Norm(r, math.Inf(1)),
	}, nil
}
