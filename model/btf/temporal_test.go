// Copyright 2025 btf Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package btf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/tensorlab/btf/common/stats"
	"github.com/tensorlab/btf/common/tensor"
)

// newSweepModel builds a model around a fixed AR state with no observations,
// so the temporal sweep is driven purely by the AR terms.
func newSweepModel(t3 int, lags []int, coef []float64, lambda float64, seed uint64) (*BTF, *tensor.Dense) {
	rank := 1
	m := NewBTF(rank, lags)
	m.minLag, m.maxLag = lags[0], lags[len(lags)-1]
	m.sampler = stats.NewSampler(seed)
	m.noise = newScalarNoise()
	m.u = mat.NewDense(1, rank, []float64{1})
	m.v = mat.NewDense(1, rank, []float64{1})
	m.x = mat.NewDense(t3, rank, nil)
	m.a = mat.NewDense(rank*len(lags), rank, coef)
	m.lambdaX = mat.NewSymDense(rank, []float64{lambda})
	m.sigma = mat.NewSymDense(rank, []float64{1 / lambda})
	train := tensor.NewDense(1, 1, t3)
	return m, train
}

// rowVariances runs many sweeps from a zero temporal factor and returns the
// empirical variance of every row of the drawn factor.
func rowVariances(t *testing.T, m *BTF, train *tensor.Dense, t3, trials int) []float64 {
	obs := train.Observed()
	sum := make([]float64, t3)
	sumSq := make([]float64, t3)
	for i := 0; i < trials; i++ {
		m.x.Zero()
		require.NoError(t, m.sampleTemporalFactor(train, obs))
		for row := 0; row < t3; row++ {
			v := m.x.At(row, 0)
			sum[row] += v
			sumSq[row] += v * v
		}
	}
	variances := make([]float64, t3)
	for row := 0; row < t3; row++ {
		mean := sum[row] / float64(trials)
		variances[row] = sumSq[row]/float64(trials) - mean*mean
	}
	return variances
}

func TestTemporalIdentityCorrectionBeforeFullHistory(t *testing.T) {
	// With zero AR coefficients and innovation precision 4, rows without a
	// full lag history must be drawn against the identity correction
	// (variance 1) while later rows see the innovation precision
	// (variance 1/4).
	m, train := newSweepModel(4, []int{2}, []float64{0}, 4, 42)
	variances := rowVariances(t, m, train, 4, 4000)
	assert.InDelta(t, 1.0, variances[0], 0.08)
	assert.InDelta(t, 1.0, variances[1], 0.08)
	assert.InDelta(t, 0.25, variances[2], 0.03)
	assert.InDelta(t, 0.25, variances[3], 0.03)
}

func TestTemporalForwardTermBoundaries(t *testing.T) {
	// Lag set {1}, coefficient a, innovation precision c. Conditional
	// precisions per row: the first row gets identity plus the forward block
	// a^2*c, interior rows get c plus a^2*c, and the final row gets only c
	// because no future row references it. Starting every sweep from a zero
	// factor, the law of total variance gives closed forms for the marginal
	// row variances.
	const a, c = 0.8, 4.0
	m, train := newSweepModel(3, []int{1}, []float64{a}, c, 7)
	variances := rowVariances(t, m, train, 3, 6000)
	var0 := 1 / (1 + a*a*c)
	gain := a * c / (c + a*a*c)
	var1 := gain*gain*var0 + 1/(c+a*a*c)
	var2 := a*a*var1 + 1/c
	assert.InDelta(t, var0, variances[0], 0.03)
	assert.InDelta(t, var1, variances[1], 0.03)
	assert.InDelta(t, var2, variances[2], 0.04)
}

func TestForecastRecursion(t *testing.T) {
	// Horizon-H forecasting must reproduce the AR recursion exactly with
	// zero injected noise, chaining extended rows for h > 1.
	rank := 2
	lags := []int{1, 3}
	x := mat.NewDense(4, rank, []float64{
		0.5, -1,
		1, 2,
		-0.5, 0.25,
		2, 1,
	})
	coef := mat.NewDense(rank*len(lags), rank, []float64{
		0.4, 0.1,
		-0.2, 0.3,
		0.05, 0,
		0.1, -0.1,
	})
	out := forecast(x, coef, lags, 3)
	rows, cols := out.Dims()
	assert.Equal(t, 7, rows)
	assert.Equal(t, rank, cols)
	// original rows unchanged
	for i := 0; i < 4; i++ {
		for s := 0; s < rank; s++ {
			assert.Equal(t, x.At(i, s), out.At(i, s))
		}
	}
	// hand-rolled recursion over the extended rows
	next := func(t int) []float64 {
		row := make([]float64, rank)
		for k, lag := range lags {
			for s := 0; s < rank; s++ {
				for q := 0; q < rank; q++ {
					row[s] += coef.At(k*rank+q, s) * out.At(t-lag, q)
				}
			}
		}
		return row
	}
	for h := 0; h < 3; h++ {
		want := next(4 + h)
		for s := 0; s < rank; s++ {
			assert.InDelta(t, want[s], out.At(4+h, s), 1e-12)
		}
	}
}

func TestForecastSingleStepMatchesChained(t *testing.T) {
	// The first step of a multi-step forecast equals a horizon-1 forecast.
	rank := 1
	lags := []int{1, 2}
	x := mat.NewDense(3, rank, []float64{1, 2, 3})
	coef := mat.NewDense(2, 1, []float64{0.5, 0.25})
	single := forecast(x, coef, lags, 1)
	chained := forecast(x, coef, lags, 4)
	assert.Equal(t, single.At(3, 0), chained.At(3, 0))
	assert.InDelta(t, 0.5*3+0.25*2, single.At(3, 0), 1e-12)
}
