// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package numdiff

import (
	"math"
	"reflect"
	"testing"
)

// f₀ = x₀·sin(x₁),  f = (x₁·cos(x₀), x₀³·x₁^-½)
func funcV2(x, f []float64) float64 {
	f[0] = x[1] * math.Cos(x[0])
	f[1] = math.Pow(x[0], 3) * math.Pow(x[1], -0.5)
	return x[0] * math.Sin(x[1])
}

func gradV2(x []float64) (df0, df []float64) {
	df0 = []float64{math.Sin(x[1]), x[0] * math.Cos(x[1])}
	df = []float64{
		-x[1] * math.Sin(x[0]), math.Cos(x[0]),
		3 * math.Pow(x[0], 2) * math.Pow(x[1], -0.5), -0.5 * math.Pow(x[0], 3) * math.Pow(x[1], -1.5),
	}
	return
}

func diffV2(t *testing.T, s *Spec, x0 []float64) (df0, df []float64) {
	df0, df = make([]float64, 2), make([]float64, 4)
	if err := s.Diff(x0, df0, df); err != nil {
		t.Fatal("approx failed", err)
	}
	return
}

func TestAdjustToBnd(t *testing.T) {

	dummy := func(x, f []float64) float64 { return 0 }
	prepare := func(s *Spec, x0, h0 []float64) {
		if err := s.check(x0, make([]float64, s.N), nil); err != nil {
			t.Fatal("unexpected check failure", err)
		}
		copy(s.step, h0)
		s.adjustToBounds(x0)
	}

	// no bounds
	{
		x0 := []float64{0, 0, 0}
		h0 := []float64{0.01, -0.01, 0.01}

		s := Spec{N: 3, Func: dummy, Method: Forward}
		prepare(&s, x0, h0)
		if !reflect.DeepEqual(s.step, h0) {
			t.Fatal("unexpected adjust step")
		}

		s = Spec{N: 3, Func: dummy, Method: Central}
		prepare(&s, x0, h0)
		switch {
		case !reflect.DeepEqual(s.step, []float64{0.01, 0.01, 0.01}):
			t.Fatal("unexpected adjust step")
		case !reflect.DeepEqual(s.oneSide, []bool{false, false, false}):
			t.Fatal("unexpected side flag")
		}
	}

	// steps with room
	{
		x0 := []float64{0, 0.85, -0.85}
		h0 := []float64{0.1, 0.1, -0.1}
		lb, ub := []float64{-1, -1, -1}, []float64{1, 1, 1}

		s := Spec{N: 3, Func: dummy, Method: Forward, Xmin: lb, Xmax: ub}
		prepare(&s, x0, h0)
		if !reflect.DeepEqual(s.step, h0) {
			t.Fatal("unexpected adjust step")
		}

		s = Spec{N: 3, Func: dummy, Method: Central, Xmin: lb, Xmax: ub}
		prepare(&s, x0, h0)
		switch {
		case !reflect.DeepEqual(s.step, []float64{0.1, 0.1, 0.1}):
			t.Fatal("unexpected adjust step")
		case !reflect.DeepEqual(s.oneSide, []bool{false, false, false}):
			t.Fatal("unexpected side flag")
		}
	}

	// tight bounds
	{
		x0 := []float64{0.0, 0.03}
		h0 := []float64{-0.1, -0.1}
		lb, ub := []float64{-0.03, -0.03}, []float64{0.05, 0.05}

		s := Spec{N: 2, Func: dummy, Method: Forward, Xmin: lb, Xmax: ub}
		prepare(&s, x0, h0)
		if !relativeEqual(s.step, []float64{0.05, -0.06}, 1e-15) {
			t.Fatal("unexpected adjust step")
		}

		s = Spec{N: 2, Func: dummy, Method: Central, Xmin: lb, Xmax: ub}
		prepare(&s, x0, h0)
		switch {
		case !relativeEqual(s.step, []float64{0.03, -0.03}, 1e-15):
			t.Fatal("unexpected adjust step")
		case !reflect.DeepEqual(s.oneSide, []bool{false, true}):
			t.Fatal("unexpected side flag")
		}
	}
}

func TestAbsoluteStep(t *testing.T) {

	x0 := []float64{1e-5, 0, 1, 1e5}
	dummy := func(x, f []float64) float64 { return 0 }

	for method, eps := range map[Method]float64{Forward: sqrtEps, Central: cubeEps} {
		s := Spec{N: 4, Func: dummy, Method: method}
		if err := s.check(x0, make([]float64, 4), nil); err != nil {
			t.Fatal(err)
		}
		s.absoluteStep(x0)
		if !relativeEqual(s.step, []float64{eps, eps, eps, eps * 1e5}, 1e-12) {
			t.Fatal("unexpected abs step", method)
		}

		neg := []float64{-1e-5, -1, -1e5}
		s.absoluteStep(append(neg, 2))
		if !relativeEqual(s.step, []float64{-eps, -eps, -eps * 1e5, eps * 2}, 1e-12) {
			t.Fatal("unexpected abs step sign", method)
		}
	}

	for _, rel := range []float64{0.1, 1, 10, 100} {
		s := Spec{N: 4, Func: dummy, Method: Forward, RelStep: rel}
		if err := s.check(x0, make([]float64, 4), nil); err != nil {
			t.Fatal(err)
		}
		s.absoluteStep(x0)
		// x = 0 falls back to the automatic step
		if !relativeEqual(s.step, []float64{rel * x0[0], sqrtEps, rel * x0[2], rel * x0[3]}, 1e-12) {
			t.Fatal("unexpected relative step", rel)
		}
	}
}

func TestDiffVector(t *testing.T) {

	x0 := []float64{-100.0, 0.2}
	gf0, gf := gradV2(x0)

	s := Spec{N: 2, M: 2, Func: funcV2, Method: Forward}
	df0, df := diffV2(t, &s, x0)
	switch {
	case !relativeEqual(df0, gf0, 1e-5):
		t.Fatal("unexpected forward gradient")
	case !relativeEqual(df, gf, 1e-5):
		t.Fatal("unexpected forward jacobian")
	case !reflect.DeepEqual(x0, []float64{-100.0, 0.2}):
		t.Fatal("x0 not restored")
	}

	s = Spec{N: 2, M: 2, Func: funcV2, Method: Central}
	df0, df = diffV2(t, &s, x0)
	switch {
	case !relativeEqual(df0, gf0, 1e-6):
		t.Fatal("unexpected central gradient")
	case !relativeEqual(df, gf, 1e-6):
		t.Fatal("unexpected central jacobian")
	}
}

func TestDiffBounds(t *testing.T) {

	s := Spec{N: 2, M: 2, Func: funcV2, Xmin: []float64{-1, -1}, Xmax: []float64{1, 1}}
	if err := s.Diff([]float64{-2.0, 0.2}, make([]float64, 2), make([]float64, 4)); err == nil {
		t.Fatal("unexpected approx bound status")
	}

	x0 := []float64{-1.0, 1.0}
	gf0, gf := gradV2(x0)
	df0, df := diffV2(t, &s, x0)
	if !relativeEqual(df0, gf0, 1e-6) || !relativeEqual(df, gf, 1e-6) {
		t.Fatal("unexpected forward bound result")
	}

	x0 = []float64{1.0, 2.0}
	gf0, gf = gradV2(x0)
	for _, bnd := range [][2][]float64{
		{nil, nil},
		{{1, 1}, nil},
		{nil, {2, 2}},
		{{1, 1}, {2, 2}},
	} {
		s = Spec{N: 2, M: 2, Func: funcV2, Method: Central, Xmin: bnd[0], Xmax: bnd[1]}
		df0, df = diffV2(t, &s, x0)
		if !relativeEqual(df0, gf0, 1e-9) || !relativeEqual(df, gf, 1e-9) {
			t.Fatal("unexpected central bound result", bnd)
		}
	}
}

func TestDiffTightBounds(t *testing.T) {

	x0 := []float64{10.0, 10.0}
	lb := []float64{x0[0] - 3e-9, x0[1] - 3e-9}
	ub := []float64{x0[0] + 3e-9, x0[1] + 3e-9}
	gf0, gf := gradV2(x0)

	for _, method := range []Method{Forward, Central} {
		for _, rel := range []float64{0, 1e-6} {
			s := Spec{N: 2, M: 2, Func: funcV2, Method: method, Xmin: lb, Xmax: ub, RelStep: rel}
			df0, df := diffV2(t, &s, x0)
			if !relativeEqual(df0, gf0, 1e-6) || !relativeEqual(df, gf, 1e-6) {
				t.Fatal("unexpected tight bound result", method, rel)
			}
		}
	}
}

func TestDiffUnconstrained(t *testing.T) {
	s := Spec{N: 1, Func: func(x, f []float64) float64 { return math.Sinh(x[0]) }, Method: Central}
	df0 := []float64{0}
	if err := s.Diff([]float64{1}, df0, nil); err != nil {
		t.Fatal(err)
	}
	if !relativeEqual(df0[0], math.Cosh(1), 1e-9) {
		t.Fatal("unexpected scalar derivative")
	}
}

func TestCheck(t *testing.T) {

	x0 := []float64{-10.0, 10}
	gf0, gf := gradV2(x0)

	s := Spec{N: 2, M: 2, Func: funcV2, Method: Central}
	mm, err := Check(&s, x0, gf0, gf)
	switch {
	case err != nil:
		t.Fatal("check failed", err)
	case mm.Max() > 1e-8:
		t.Fatal("approx accuracy not enough", mm)
	}

	gf[3] *= 1.1
	mm, err = Check(&s, x0, gf0, gf)
	switch {
	case err != nil:
		t.Fatal("check failed", err)
	case mm.Constraint < 0.09:
		t.Fatal("mismatch not detected", mm)
	case mm.Row != 1 || mm.Col != 1:
		t.Fatal("mismatch not located", mm)
	}

	if _, err = Check(&s, x0, gf0, gf[:2]); err == nil {
		t.Fatal("unexpected check status")
	}
}

func relativeEqual[T float64 | []float64](a, b T, tol float64) bool {
	equalWithinRel := func(a, b float64) bool {
		if a == b {
			return true
		}
		delta := math.Abs(a - b)
		return delta/math.Max(math.Abs(a), math.Abs(b)) <= tol
	}
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Float64:
		return equalWithinRel(any(a).(float64), any(b).(float64))
	case reflect.Slice:
		a, b := any(a).([]float64), any(b).([]float64)
		if len(a) != len(b) {
			return false
		}
		for i, a := range a {
			if !equalWithinRel(a, b[i]) {
				return false
			}
		}
		return true
	default:
		panic("unknown type")
	}
}
