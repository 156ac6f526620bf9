// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package benchmark provides small problems with known optima.
package benchmark

import (
	"math"
	"sort"

	"github.com/curioloop/mma/driver"
	"github.com/pkg/errors"
)

// Benchmark is a problem factory with its known solution.
type Benchmark struct {
	Name        string
	Description string
	New         func() *driver.Problem
	X           []float64 // optimal design
	F0          float64   // optimal objective
}

var registry = map[string]Benchmark{}

func register(b Benchmark) {
	registry[b.Name] = b
}

// Lookup returns the benchmark registered under name.
func Lookup(name string) (Benchmark, error) {
	b, ok := registry[name]
	if !ok {
		return Benchmark{}, errors.Errorf("unknown problem %q", name)
	}
	return b, nil
}

// Names returns the registered benchmark names in lexical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func repeat(n int, v float64) []float64 {
	r := make([]float64, n)
	for i := range r {
		r[i] = v
	}
	return r
}

func init() {
	register(Benchmark{
		Name:        "parabola",
		Description: "minimize (x-0.7)² on [0,1]",
		New:         Parabola,
		X:           []float64{0.7},
		F0:          0,
	})
	register(Benchmark{
		Name:        "halfplane",
		Description: "minimize (x₁-1)² + (x₂-2)² subject to x₁ + x₂ ≤ 2 on [0,3]²",
		New:         HalfPlane,
		X:           []float64{0.5, 1.5},
		F0:          0.5,
	})
	register(Benchmark{
		Name:        "toy",
		Description: "minimize ‖x‖² outside of two spheres of radius 3 on [0,5]³",
		New:         Toy,
		X:           []float64{2.0175, 1.7800, 1.2375},
		F0:          8.7702,
	})
	register(Benchmark{
		Name:        "beam",
		Description: "minimize the weight of a five segment cantilever beam under a tip deflection limit",
		New:         Beam,
		X:           []float64{6.0160, 5.3092, 4.4943, 3.5015, 2.1527},
		F0:          1.339956,
	})
}

// Parabola is the one variable unconstrained problem minimize (x-0.7)² on [0,1], started at 0.1.
func Parabola() *driver.Problem {
	return &driver.Problem{
		Name: "parabola",
		N:    1, M: 0,
		Xmin: []float64{0}, Xmax: []float64{1},
		X0:   []float64{0.1},
		Objective: func(x, grad []float64) float64 {
			grad[0] = 2 * (x[0] - 0.7)
			return (x[0] - 0.7) * (x[0] - 0.7)
		},
	}
}

// HalfPlane projects (1,2) onto the half plane x₁ + x₂ ≤ 2, started at (2,0.5).
func HalfPlane() *driver.Problem {
	return &driver.Problem{
		Name: "halfplane",
		N:    2, M: 1,
		Xmin: repeat(2, 0), Xmax: repeat(2, 3),
		X0:   []float64{2, 0.5},
		Objective: func(x, grad []float64) float64 {
			grad[0] = 2 * (x[0] - 1)
			grad[1] = 2 * (x[1] - 2)
			return (x[0]-1)*(x[0]-1) + (x[1]-2)*(x[1]-2)
		},
		Constraint: func(x []float64, _ int, f, df []float64) {
			f[0] = x[0] + x[1] - 2
			df[0], df[1] = 1, 1
		},
	}
}

// Toy is the three variable example distributed with Svanberg's MMA code:
//
//	minimize   x₁² + x₂² + x₃²
//	subject to (x₁-5)² + (x₂-2)² + (x₃-1)² ≤ 9
//	           (x₁-3)² + (x₂-4)² + (x₃-3)² ≤ 9
//	           0 ≤ x ≤ 5
func Toy() *driver.Problem {
	centers := [2][3]float64{{5, 2, 1}, {3, 4, 3}}
	return &driver.Problem{
		Name: "toy",
		N:    3, M: 2,
		Xmin: repeat(3, 0), Xmax: repeat(3, 5),
		X0:   []float64{4, 3, 2},
		Objective: func(x, grad []float64) (f0 float64) {
			for j, v := range x {
				f0 += v * v
				grad[j] = 2 * v
			}
			return
		},
		Constraint: func(x []float64, _ int, f, df []float64) {
			for i, c := range centers {
				f[i] = -9
				for j, v := range x {
					f[i] += (v - c[j]) * (v - c[j])
					df[i*3+j] = 2 * (v - c[j])
				}
			}
		},
	}
}

// Beam is Svanberg's cantilever beam with five hollow square segments of thickness xⱼ:
//
//	minimize   0.0624·Σxⱼ
//	subject to 61/x₁³ + 37/x₂³ + 19/x₃³ + 7/x₄³ + 1/x₅³ ≤ 1
//	           1 ≤ x ≤ 10
func Beam() *driver.Problem {
	coef := []float64{61, 37, 19, 7, 1}
	return &driver.Problem{
		Name: "beam",
		N:    5, M: 1,
		Xmin: repeat(5, 1), Xmax: repeat(5, 10),
		X0:   repeat(5, 5),
		Objective: func(x, grad []float64) (f0 float64) {
			for j, v := range x {
				f0 += 0.0624 * v
				grad[j] = 0.0624
			}
			return
		},
		Constraint: func(x []float64, _ int, f, df []float64) {
			f[0] = -1
			for j, v := range x {
				f[0] += coef[j] / math.Pow(v, 3)
				df[j] = -3 * coef[j] / math.Pow(v, 4)
			}
		},
	}
}
