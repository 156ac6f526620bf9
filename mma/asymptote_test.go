// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mma

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsymptotesInit(t *testing.T) {
	x := []float64{0.2, 0.5, 3}
	xmin := []float64{0, 0, 1}
	xmax := []float64{1, 2, 5}

	for _, iter := range []int{1, 2} {
		low, upp := Asymptotes(iter, x, x, x, xmin, xmax, nil, nil)
		assert.InDeltaSlice(t, []float64{-0.3, -0.5, 1}, low, 1e-15)
		assert.InDeltaSlice(t, []float64{0.7, 1.5, 5}, upp, 1e-15)
	}
}

func TestAsymptotesDegenerateRange(t *testing.T) {
	x := []float64{0.5}
	low, upp := Asymptotes(1, x, x, x, []float64{0.5}, []float64{0.5}, nil, nil)
	require.Less(t, low[0], x[0])
	require.Greater(t, upp[0], x[0])
	assert.InDelta(t, 0.5-0.5e-5, low[0], 1e-18)
}

// x overshoots the fixed point 0.5 and then undershoots it.
func TestAsymptotesOscillation(t *testing.T) {

	xmin := []float64{0, 0, 0, 0, 0}
	xmax := []float64{1, 1, 1, 1, 1}

	xold2 := []float64{0.40, 0.20, 0.30, 0.500, 0.1}
	xold1 := []float64{0.60, 0.30, 0.30, 0.520, 0.2}
	x := []float64{0.45, 0.40, 0.35, 0.515, 0.3}
	low := []float64{0.30, 0.10, 0.10, 0.515, -9.0}
	upp := []float64{0.90, 0.50, 0.50, 0.525, 9.0}

	factor := AsymptoteFactors(x, xold1, xold2)
	assert.Equal(t, []float64{0.7, 1.2, 1.0, 0.7, 1.2}, factor)

	lowNew, uppNew := Asymptotes(3, x, xold1, xold2, xmin, xmax, low, upp)

	// contraction: 0.45 ∓ 0.7·0.3
	assert.InDelta(t, 0.24, lowNew[0], 1e-12)
	assert.InDelta(t, 0.66, uppNew[0], 1e-12)
	// expansion: 0.40 ∓ 1.2·0.2
	assert.InDelta(t, 0.16, lowNew[1], 1e-12)
	assert.InDelta(t, 0.64, uppNew[1], 1e-12)
	// unchanged gap
	assert.InDelta(t, 0.15, lowNew[2], 1e-12)
	assert.InDelta(t, 0.55, uppNew[2], 1e-12)
	// contraction clamped to the minimum gap 0.01·range
	assert.InDelta(t, 0.505, lowNew[3], 1e-12)
	assert.InDelta(t, 0.525, uppNew[3], 1e-12)
	// expansion clamped to the maximum gap 10·range
	assert.InDelta(t, -9.7, lowNew[4], 1e-12)
	assert.InDelta(t, 10.3, uppNew[4], 1e-12)

	for j := range x {
		assert.GreaterOrEqual(t, lowNew[j], x[j]-10*(xmax[j]-xmin[j])-1e-12)
		assert.LessOrEqual(t, lowNew[j], x[j]-0.01*(xmax[j]-xmin[j])+1e-12)
		assert.GreaterOrEqual(t, uppNew[j], x[j]+0.01*(xmax[j]-xmin[j])-1e-12)
		assert.LessOrEqual(t, uppNew[j], x[j]+10*(xmax[j]-xmin[j])+1e-12)
	}
}

func TestAsymptotesEnclose(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	const n = 16

	xmin, xmax := make([]float64, n), make([]float64, n)
	for j := range xmin {
		xmin[j] = rnd.Float64() - 1
		xmax[j] = xmin[j] + rnd.Float64()*2
	}
	point := func() []float64 {
		x := make([]float64, n)
		for j := range x {
			x[j] = xmin[j] + rnd.Float64()*(xmax[j]-xmin[j])
		}
		return x
	}

	x, xold1, xold2 := point(), point(), point()
	var low, upp []float64
	for iter := 1; iter <= 50; iter++ {
		low, upp = Asymptotes(iter, x, xold1, xold2, xmin, xmax, low, upp)
		for j := range x {
			require.Less(t, low[j], x[j], "iter %d var %d", iter, j)
			require.Greater(t, upp[j], x[j], "iter %d var %d", iter, j)
		}
		xold2, xold1 = xold1, x
		x = make([]float64, n)
		for j := range x {
			// stay strictly inside the previous asymptotes
			a, b := 0.9*low[j]+0.1*xold1[j], 0.9*upp[j]+0.1*xold1[j]
			x[j] = a + rnd.Float64()*(b-a)
		}
	}
}

func TestInitRegularization(t *testing.T) {
	df0 := []float64{1, -2}
	df := []float64{
		0, 0,
		4, -4,
	}
	xmin, xmax := []float64{0, 0}, []float64{1, 2}

	raa0, raa := InitRegularization(df0, df, xmin, xmax, 1e-5, []float64{1e-5, 1e-5})

	// 0.1/2 · (1·1 + 2·2)
	assert.InDelta(t, 0.25, raa0, 1e-15)
	assert.InDelta(t, 1e-5, raa[0], 1e-20)
	// 0.1/2 · (4·1 + 4·2)
	assert.InDelta(t, 0.6, raa[1], 1e-15)
}
