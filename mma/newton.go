// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mma

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// newtonSys holds the condensed Newton system after eliminating ξ, η, μ, ζ and s:
//
//	δx = ∂ψ/∂x - ε/(x-α) + ε/(β-x)        Dx = 2(pλ/(U-x)³ + qλ/(x-L)³) + ξ/(x-α) + η/(β-x)
//	δy = c + dy - λ - ε/y                  Dy = d + μ/y
//	δz = a₀ - aᵀλ - ε/z                    Dλy = s/λ + 1/Dy
//	δλ = g(x) - az - y - b + ε/λ           G = P/(U-x)² - Q/(x-L)²
type newtonSys struct {
	delx, diagx       []float64 // n
	dely, diagy       []float64 // m
	dellam, diaglamyi []float64 // m
	delz              float64
	gg                []float64 // m×n
	mat               []float64 // scratch for the reduced matrix
	rhs               []float64
}

func newNewtonSys(n, m int) *newtonSys {
	k := min(m, n) + 1
	return &newtonSys{
		delx:   make([]float64, n), diagx: make([]float64, n),
		dely:   make([]float64, m), diagy: make([]float64, m),
		dellam: make([]float64, m), diaglamyi: make([]float64, m),
		gg:     make([]float64, m*n),
		mat:    make([]float64, k*k),
		rhs:    make([]float64, k),
	}
}

// assemble fills the condensed system at p.
func (s *subSolver) assemble(p *Point, sys *newtonSys) {
	sp, e := s.sp, s.epsi
	n := sp.N
	s.update(p)

	for j, x := range p.X {
		uxinv2 := s.uxinv[j] * s.uxinv[j]
		xlinv2 := s.xlinv[j] * s.xlinv[j]
		xa, bx := x-sp.Alfa[j], sp.Beta[j]-x
		sys.delx[j] = s.plam[j]*uxinv2 - s.qlam[j]*xlinv2 - e/xa + e/bx
		sys.diagx[j] = 2*(s.plam[j]*uxinv2*s.uxinv[j]+s.qlam[j]*xlinv2*s.xlinv[j]) + p.Xsi[j]/xa + p.Eta[j]/bx
	}
	for i, l := range p.Lam {
		y := p.Y[i]
		sys.dely[i] = sp.C[i] + sp.D[i]*y - l - e/y
		sys.dellam[i] = s.gvec[i] - sp.A[i]*p.Z - y - sp.B[i] + e/l
		sys.diagy[i] = sp.D[i] + p.Mu[i]/y
		sys.diaglamyi[i] = p.S[i]/l + one/sys.diagy[i]

		g, pi, qi := sys.gg[i*n:(i+1)*n], sp.P[i*n:(i+1)*n], sp.Q[i*n:(i+1)*n]
		for j := range g {
			g[j] = pi[j]*s.uxinv[j]*s.uxinv[j] - qi[j]*s.xlinv[j]*s.xlinv[j]
		}
	}
	sys.delz = sp.A0 - floats.Dot(sp.A, p.Lam) - e/p.Z
}

// reducer computes Δx, Δz and Δλ of the condensed system into d.
type reducer func(s *subSolver, p *Point, sys *newtonSys, d *Point) error

// reduction picks the cheaper elimination order once per solve:
// the (m+1)-system when m < n, the (n+1)-system otherwise.
func reduction(n, m int) reducer {
	if m < n {
		return reduceX
	}
	return reduceLam
}

// reduceX eliminates Δx and solves for (Δλ, Δz):
//
//	⎡ Dλy + G·Dx⁻¹·Gᵀ   a    ⎤ ⎡Δλ⎤   ⎡ δλ + δy/Dy - G·Dx⁻¹·δx ⎤
//	⎣       aᵀ        -ζ/z  ⎦ ⎣Δz⎦ = ⎣          δz            ⎦
//
//	Δx = -Dx⁻¹(δx + GᵀΔλ)
func reduceX(s *subSolver, p *Point, sys *newtonSys, d *Point) error {
	n, m := s.sp.N, s.sp.M
	k := m + 1
	a, b := sys.mat[:k*k], sys.rhs[:k]
	clear(a)

	gg, dx := sys.gg, sys.diagx
	for i := 0; i < m; i++ {
		gi := gg[i*n : (i+1)*n]
		for l := 0; l <= i; l++ {
			gl, sum := gg[l*n:(l+1)*n], zero
			for j, v := range gi {
				sum += v * gl[j] / dx[j]
			}
			a[i*k+l], a[l*k+i] = sum, sum
		}
		a[i*k+i] += sys.diaglamyi[i]
		a[i*k+m], a[m*k+i] = s.sp.A[i], s.sp.A[i]

		sum := zero
		for j, v := range gi {
			sum += v * sys.delx[j] / dx[j]
		}
		b[i] = sys.dellam[i] + sys.dely[i]/sys.diagy[i] - sum
	}
	a[m*k+m] = -p.Zet / p.Z
	b[m] = sys.delz

	sol, err := solveDense(k, a, b)
	if err != nil {
		return err
	}
	copy(d.Lam, sol[:m])
	d.Z = sol[m]

	for j := 0; j < n; j++ {
		sum := sys.delx[j]
		for i := 0; i < m; i++ {
			sum += gg[i*n+j] * d.Lam[i]
		}
		d.X[j] = -sum / dx[j]
	}
	return nil
}

// reduceLam eliminates (Δλ, Δy) and solves for (Δx, Δz):
//
//	⎡ Dx + Gᵀ·Dλy⁻¹·G    -Gᵀ·Dλy⁻¹·a      ⎤ ⎡Δx⎤     ⎡ δx + Gᵀ·Dλy⁻¹·δλy ⎤
//	⎣ -aᵀ·Dλy⁻¹·G      ζ/z + aᵀ·Dλy⁻¹·a  ⎦ ⎣Δz⎦ = - ⎣ δz - aᵀ·Dλy⁻¹·δλy ⎦
//
//	Δλ = Dλy⁻¹(G·Δx - aΔz + δλy),  δλy = δλ + δy/Dy
func reduceLam(s *subSolver, p *Point, sys *newtonSys, d *Point) error {
	sp := s.sp
	n, m := sp.N, sp.M
	k := n + 1
	a, b := sys.mat[:k*k], sys.rhs[:k]
	clear(a)

	gg := sys.gg
	dlyi := make([]float64, m)
	for i := 0; i < m; i++ {
		dlyi[i] = sys.dellam[i] + sys.dely[i]/sys.diagy[i]
	}

	azz, bz := p.Zet/p.Z, sys.delz
	for j := 0; j < n; j++ {
		a[j*k+j] = sys.diagx[j]
		b[j] = sys.delx[j]
	}
	for i := 0; i < m; i++ {
		gi, w := gg[i*n:(i+1)*n], one/sys.diaglamyi[i]
		ai := sp.A[i]
		for j, gj := range gi {
			for l := 0; l <= j; l++ {
				v := gj * gi[l] * w
				a[j*k+l] += v
				if l != j {
					a[l*k+j] += v
				}
			}
			a[j*k+n] -= gj * ai * w
			b[j] += gj * dlyi[i] * w
		}
		azz += ai * ai * w
		bz -= ai * dlyi[i] * w
	}
	for j := 0; j < n; j++ {
		a[n*k+j] = a[j*k+n]
		b[j] = -b[j]
	}
	a[n*k+n] = azz
	b[n] = -bz

	sol, err := solveDense(k, a, b)
	if err != nil {
		return err
	}
	copy(d.X, sol[:n])
	d.Z = sol[n]

	for i := 0; i < m; i++ {
		gi := gg[i*n : (i+1)*n]
		d.Lam[i] = (floats.Dot(gi, d.X) - d.Z*sp.A[i] + dlyi[i]) / sys.diaglamyi[i]
	}
	return nil
}

// solveDense solves the k×k row-major system a·x = b with a dense LU factorization.
// An exactly singular matrix yields ErrSingular. An ill-conditioned but finite
// solution is accepted: the condensed matrices become badly scaled as ε → 0.
func solveDense(k int, a, b []float64) ([]float64, error) {
	var lu mat.LU
	lu.Factorize(mat.NewDense(k, k, a))
	if c := lu.Cond(); math.IsInf(c, 1) || math.IsNaN(c) {
		return nil, ErrSingular
	}

	x := mat.NewVecDense(k, nil)
	if err := lu.SolveVecTo(x, false, mat.NewVecDense(k, b)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, errors.Wrap(ErrSingular, err.Error())
		}
	}

	sol := x.RawVector().Data
	for _, v := range sol {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrSingular
		}
	}
	return sol, nil
}
