// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mma

import "math"

// xRange returns max(xmax - xmin, 1e-5) for every variable.
func xRange(xmin, xmax []float64) []float64 {
	r := make([]float64, len(xmin))
	for j := range r {
		r[j] = math.Max(xmax[j]-xmin[j], xmamieps)
	}
	return r
}

// AsymptoteFactors returns the per-variable adaptation factor used by Asymptotes
// from the sign of (xⱼ - xⱼ⁽¹⁾)(xⱼ⁽¹⁾ - xⱼ⁽²⁾):
//   - positive (monotone progress) : 1.2, the asymptote is relaxed
//   - negative (oscillation)       : 0.7, the asymptote is tightened
//   - zero                         : 1.0
func AsymptoteFactors(x, xold1, xold2 []float64) []float64 {
	f := make([]float64, len(x))
	for j := range f {
		switch s := (x[j] - xold1[j]) * (xold1[j] - xold2[j]); {
		case s > zero:
			f[j] = asyincr
		case s < zero:
			f[j] = asydecr
		default:
			f[j] = one
		}
	}
	return f
}

// Asymptotes computes the moving asymptotes Lⱼ < xⱼ < Uⱼ of outer iteration iter.
//
// The first two iterations place them symmetrically at ½𝚛𝚊𝚗𝚐𝚎ⱼ from xⱼ,
// where 𝚛𝚊𝚗𝚐𝚎ⱼ = 𝚖𝚊𝚡(xmaxⱼ - xminⱼ, 10⁻⁵).
// Later ones move the previous gap by the adaptation factor:
//
//	Lⱼ = xⱼ - 𝚏𝚊𝚌𝚝𝚘𝚛ⱼ(xⱼ⁽¹⁾ - Lⱼ⁽¹⁾)
//	Uⱼ = xⱼ + 𝚏𝚊𝚌𝚝𝚘𝚛ⱼ(Uⱼ⁽¹⁾ - xⱼ⁽¹⁾)
//
// clamped to 0.01 ≤ |xⱼ - asymptote| / 𝚛𝚊𝚗𝚐𝚎ⱼ ≤ 10.
// The inputs are never modified.
func Asymptotes(iter int, x, xold1, xold2, xmin, xmax, low, upp []float64) (lowNew, uppNew []float64) {
	n := len(x)
	lowNew, uppNew = make([]float64, n), make([]float64, n)
	rng := xRange(xmin, xmax)

	if iter <= 2 {
		for j := 0; j < n; j++ {
			lowNew[j] = x[j] - asyinit*rng[j]
			uppNew[j] = x[j] + asyinit*rng[j]
		}
		return
	}

	factor := AsymptoteFactors(x, xold1, xold2)
	for j := 0; j < n; j++ {
		l := x[j] - factor[j]*(xold1[j]-low[j])
		u := x[j] + factor[j]*(upp[j]-xold1[j])
		l = math.Max(l, x[j]-asymax*rng[j])
		l = math.Min(l, x[j]-asymin*rng[j])
		u = math.Min(u, x[j]+asymax*rng[j])
		u = math.Max(u, x[j]+asymin*rng[j])
		lowNew[j], uppNew[j] = l, u
	}
	return
}

// InitRegularization returns the GCMMA starting regularization of an outer iteration:
//
//	ρ₀ = 𝚖𝚊𝚡(ρ₀ᵉᵖˢ, 0.1/n · Σⱼ|∂f₀/∂xⱼ|·𝚛𝚊𝚗𝚐𝚎ⱼ)
//	ρᵢ = 𝚖𝚊𝚡(ρᵢᵉᵖˢ, 0.1/n · Σⱼ|∂fᵢ/∂xⱼ|·𝚛𝚊𝚗𝚐𝚎ⱼ)
//
// df is the row-major m×n constraint Jacobian.
func InitRegularization(df0, df, xmin, xmax []float64, raa0eps float64, raaeps []float64) (raa0 float64, raa []float64) {
	n, m := len(df0), len(raaeps)
	rng := xRange(xmin, xmax)
	w := 0.1 / float64(n)

	for j := 0; j < n; j++ {
		raa0 += math.Abs(df0[j]) * rng[j]
	}
	raa0 = math.Max(raa0eps, w*raa0)

	raa = make([]float64, m)
	for i := 0; i < m; i++ {
		row, sum := df[i*n:(i+1)*n], zero
		for j, g := range row {
			sum += math.Abs(g) * rng[j]
		}
		raa[i] = math.Max(raaeps[i], w*sum)
	}
	return
}
