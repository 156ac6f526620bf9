// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package filter smooths design sensitivities over neighbouring design variables
// before they are handed to the optimizer.
package filter

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Type selects how the weighting matrix is applied.
type Type int

const (
	// None leaves the sensitivities untouched.
	None Type = iota
	// Sensitivity filters the objective sensitivity only:
	//
	//	∂f₀ ← H·(x∘∂f₀ / Hs / 𝚖𝚊𝚡(10⁻³, x))
	Sensitivity
	// Density filters both the objective and the constraint sensitivities:
	//
	//	∂f ← H·(∂f / Hs)
	Density
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Sensitivity:
		return "sensitivity"
	case Density:
		return "density"
	}
	return "unknown"
}

// ParseType converts the configuration name of a filter type.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "none":
		return None, nil
	case "sensitivity":
		return Sensitivity, nil
	case "density":
		return Density, nil
	}
	return None, errors.Errorf("unknown filter type %q", s)
}

// Filter holds the n×n weighting matrix H and its row sums Hs.
type Filter struct {
	Type Type
	H    mat.Matrix
	Hs   []float64
}

// New creates a filter from the weighting matrix h.
func New(t Type, h mat.Matrix) (*Filter, error) {
	if t != None && t != Sensitivity && t != Density {
		return nil, errors.Errorf("unknown filter type %d", t)
	}
	r, c := h.Dims()
	if r != c {
		return nil, errors.Errorf("weighting matrix must be square, got %d×%d", r, c)
	}

	hs := make([]float64, r)
	for i := range hs {
		for j := 0; j < c; j++ {
			hs[i] += h.At(i, j)
		}
		if !(hs[i] > 0) {
			return nil, errors.Errorf("weighting row %d has non-positive sum %g", i, hs[i])
		}
	}
	return &Filter{Type: t, H: h, Hs: hs}, nil
}

// Radial builds the weighting matrix Hᵢⱼ = 𝚖𝚊𝚡(0, rmin - ‖cᵢ - cⱼ‖) over the element centers.
func Radial(centers [][]float64, rmin float64) *mat.Dense {
	n := len(centers)
	h := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			w := math.Max(0, rmin-floats.Distance(centers[i], centers[j], 2))
			h.Set(i, j, w)
			h.Set(j, i, w)
		}
	}
	return h
}

// N returns the number of filtered design variables.
func (f *Filter) N() int {
	return len(f.Hs)
}

// Apply filters the objective sensitivity df0 (n) and the row-major constraint
// sensitivities df (m×n) at the design x. The inputs are not modified.
func (f *Filter) Apply(x, df0, df []float64) ([]float64, []float64, error) {

	n := f.N()
	switch {
	case len(x) != n || len(df0) != n:
		return nil, nil, errors.Errorf("filter expects %d design variables, got %d", n, len(x))
	case len(df)%n != 0:
		return nil, nil, errors.Errorf("constraint sensitivities of length %d are not a multiple of %d", len(df), n)
	}

	out0 := append([]float64(nil), df0...)
	out := append([]float64(nil), df...)

	switch f.Type {
	case Sensitivity:
		for j := range out0 {
			out0[j] = x[j] * out0[j] / f.Hs[j] / math.Max(1e-3, x[j])
		}
		f.mul(out0)
	case Density:
		floats.Div(out0, f.Hs)
		f.mul(out0)
		for i := 0; i < len(out)/n; i++ {
			row := out[i*n : (i+1)*n]
			floats.Div(row, f.Hs)
			f.mul(row)
		}
	}
	return out0, out, nil
}

// mul replaces v by H·v.
func (f *Filter) mul(v []float64) {
	var r mat.VecDense
	r.MulVec(f.H, mat.NewVecDense(len(v), v))
	copy(v, r.RawVector().Data)
}
