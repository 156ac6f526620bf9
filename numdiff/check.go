// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package numdiff

import (
	"math"

	"github.com/pkg/errors"
)

// Mismatch is the largest relative disagreement |a - e| / max(1, |a|, |e|)
// between analytic derivatives a and finite-difference estimates e.
type Mismatch struct {
	Objective  float64 // worst entry of ∂f₀/∂x
	Variable   int     // its variable index
	Constraint float64 // worst entry of ∂𝐟/∂x
	Row, Col   int     // its position in the m×n Jacobian (-1 when m = 0)
}

// Max returns the worst of the objective and constraint mismatch.
func (m Mismatch) Max() float64 {
	return math.Max(m.Objective, m.Constraint)
}

func relErr(a, e float64) float64 {
	return math.Abs(a-e) / math.Max(1, math.Max(math.Abs(a), math.Abs(e)))
}

// Compare returns the worst relative error between analytic and estimated and its index.
func Compare(analytic, estimated []float64) (worst float64, at int) {
	at = -1
	for k, a := range analytic {
		if r := relErr(a, estimated[k]); r > worst || at < 0 {
			worst, at = r, k
		}
	}
	return
}

// Check estimates the derivatives at x with spec and compares them against the
// analytic objective gradient df0 (n) and constraint Jacobian df (m×n).
func Check(spec *Spec, x, df0, df []float64) (Mismatch, error) {
	if len(df0) != spec.N || len(df) != spec.N*spec.M {
		return Mismatch{}, errors.New("invalid analytic derivative dimensions")
	}
	est0 := make([]float64, spec.N)
	est := make([]float64, spec.N*spec.M)
	if err := spec.Diff(x, est0, est); err != nil {
		return Mismatch{}, errors.Wrap(err, "finite difference")
	}

	mm := Mismatch{Row: -1, Col: -1}
	mm.Objective, mm.Variable = Compare(df0, est0)
	if spec.M > 0 {
		var k int
		mm.Constraint, k = Compare(df, est)
		mm.Row, mm.Col = k/spec.N, k%spec.N
	}
	return mm, nil
}
