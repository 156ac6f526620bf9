// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mma

import "math"

// Conservative reports whether the approximation upper-bounds the true functions at
// the subproblem solution: f₀ ≤ f̃₀ + ε and fᵢ ≤ f̃ᵢ + ε for every constraint (ε = 10⁻⁷).
func Conservative(f0app float64, fapp []float64, f0new float64, fnew []float64) bool {
	if f0new > f0app+epsimin {
		return false
	}
	for i, v := range fnew {
		if v > fapp[i]+epsimin {
			return false
		}
	}
	return true
}

// UpdateRegularization inflates the GCMMA regularization of the functions whose
// approximation underestimated the true value at xnew:
//
//	𝚛𝚊𝚊𝚌𝚘𝚏 = 𝚖𝚊𝚡(Σⱼ (xnewⱼ-xⱼ)²/((Uⱼ-xnewⱼ)(xnewⱼ-Lⱼ)) · (Uⱼ-Lⱼ)/𝚛𝚊𝚗𝚐𝚎ⱼ, 10⁻¹²)
//	ρ ← 𝚖𝚒𝚗(1.1(ρ + (f - f̃)/𝚛𝚊𝚊𝚌𝚘𝚏), 10ρ)     when f > f̃ + ½ε
//
// The inputs are left untouched.
func UpdateRegularization(xnew, x, xmin, xmax, low, upp []float64,
	f0new float64, fnew []float64, f0app float64, fapp []float64,
	raa0 float64, raa []float64) (float64, []float64) {

	rng := xRange(xmin, xmax)
	raacof := zero
	for j := range x {
		dx := xnew[j] - x[j]
		raacof += dx / (upp[j] - xnew[j]) * (dx / (xnew[j] - low[j])) * ((upp[j] - low[j]) / rng[j])
	}
	raacof = math.Max(raacof, raacofmin)

	inflate := func(rho, fv, fa float64) float64 {
		if fv <= fa+half*epsimin {
			return rho
		}
		return math.Min(raaGrowth*(rho+(fv-fa)/raacof), raaCap*rho)
	}

	raaNew := make([]float64, len(raa))
	for i := range raa {
		raaNew[i] = inflate(raa[i], fnew[i], fapp[i])
	}
	return inflate(raa0, f0new, f0app), raaNew
}
