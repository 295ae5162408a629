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
	"context"
	"math"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/tensorlab/btf/base"
	"github.com/tensorlab/btf/common/tensor"
	"github.com/tensorlab/btf/dataset"
)

func TestFit(t *testing.T) {
	// Shape (5, 5, 50), rank 2, lags {1, 2, 3}, 30% of the cells hidden.
	rng := base.NewRandomGenerator(42)
	truth := dataset.LowRank(5, 5, 50, 2, 0.05, rng)
	train := dataset.MaskRandom(truth, 0.3, rng)

	m := NewBTF(2, []int{1, 2, 3}).SetSeed(42)
	config := NewFitConfig().
		SetBurnIn(50).
		SetSamples(20).
		SetHorizon(2)
	result, err := m.Fit(context.Background(), train, truth, config)
	require.NoError(t, err)

	d1, d2, d3 := result.Tensor.Dims()
	assert.Equal(t, 5, d1)
	assert.Equal(t, 5, d2)
	assert.Equal(t, 50, d3)
	for _, v := range result.Tensor.Data() {
		assert.False(t, math.IsNaN(v))
		assert.False(t, math.IsInf(v, 0))
	}

	uRows, uCols := result.U.Dims()
	assert.Equal(t, 5, uRows)
	assert.Equal(t, 2, uCols)
	vRows, vCols := result.V.Dims()
	assert.Equal(t, 5, vRows)
	assert.Equal(t, 2, vCols)
	// temporal factor carries the forecast horizon
	xRows, xCols := result.X.Dims()
	assert.Equal(t, 52, xRows)
	assert.Equal(t, 2, xCols)
	aRows, aCols := result.A.Dims()
	assert.Equal(t, 6, aRows)
	assert.Equal(t, 2, aCols)
	for i := 0; i < xRows; i++ {
		for s := 0; s < xCols; s++ {
			assert.False(t, math.IsNaN(result.X.At(i, s)))
		}
	}

	assert.False(t, math.IsNaN(result.Score.MAPE))
	assert.False(t, math.IsNaN(result.Score.RMSE))
	assert.GreaterOrEqual(t, result.Score.MAPE, 0.0)
	assert.GreaterOrEqual(t, result.Score.RMSE, 0.0)
}

func TestFitImputesHeldOut(t *testing.T) {
	// On data that actually has the assumed low-rank structure the posterior
	// mean should impute held-out cells well. Cells average around 2, so the
	// thresholds below demand a small relative error.
	rng := base.NewRandomGenerator(1)
	truth := dataset.LowRank(5, 5, 40, 2, 0.05, rng)
	train := dataset.MaskRandom(truth, 0.3, rng)

	m := NewBTF(2, []int{1, 2, 3}).SetSeed(1)
	config := NewFitConfig().
		SetBurnIn(60).
		SetSamples(30)
	result, err := m.Fit(context.Background(), train, truth, config)
	require.NoError(t, err)
	assert.Less(t, result.Score.RMSE, 0.4)
	assert.Less(t, result.Score.MAPE, 0.2)
}

func TestFitReproducible(t *testing.T) {
	rng := base.NewRandomGenerator(7)
	truth := dataset.LowRank(4, 4, 30, 2, 0.05, rng)
	train := dataset.MaskRandom(truth, 0.2, rng)
	config := NewFitConfig().SetBurnIn(10).SetSamples(5).SetHorizon(1)

	first, err := NewBTF(2, []int{1, 2}).SetSeed(99).Fit(context.Background(), train, truth, config)
	require.NoError(t, err)
	second, err := NewBTF(2, []int{1, 2}).SetSeed(99).Fit(context.Background(), train, truth, config)
	require.NoError(t, err)

	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Tensor.Data(), second.Tensor.Data())
	assert.True(t, mat.Equal(first.X, second.X))

	// a different seed walks a different chain
	third, err := NewBTF(2, []int{1, 2}).SetSeed(100).Fit(context.Background(), train, truth, config)
	require.NoError(t, err)
	assert.NotEqual(t, first.Tensor.Data(), third.Tensor.Data())
}

func TestFitNoiseFiber(t *testing.T) {
	rng := base.NewRandomGenerator(3)
	truth := dataset.LowRank(4, 4, 30, 2, 0.05, rng)
	train := dataset.MaskRandom(truth, 0.2, rng)

	m := NewBTF(2, []int{1, 2}).SetSeed(3).SetNoiseMode(NoiseFiber)
	config := NewFitConfig().SetBurnIn(20).SetSamples(10)
	result, err := m.Fit(context.Background(), train, truth, config)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(result.Score.RMSE))
}

func TestFitInitialFactors(t *testing.T) {
	rng := base.NewRandomGenerator(5)
	truth := dataset.LowRank(4, 4, 20, 2, 0, rng)

	u := mat.NewDense(4, 2, nil)
	v := mat.NewDense(4, 2, nil)
	x := mat.NewDense(20, 2, nil)
	for _, factor := range []*mat.Dense{u, v, x} {
		rows, _ := factor.Dims()
		for i := 0; i < rows; i++ {
			factor.SetRow(i, rng.UniformVector(2, 0.5, 1.5))
		}
	}
	m := NewBTF(2, []int{1}).SetSeed(5).SetInitialFactors(u, v, x)
	config := NewFitConfig().SetBurnIn(5).SetSamples(5)
	_, err := m.Fit(context.Background(), truth, nil, config)
	require.NoError(t, err)
	// supplied factors are copied, not aliased
	assert.NotSame(t, u, m.u)
}

func TestFitWithoutTestSet(t *testing.T) {
	rng := base.NewRandomGenerator(13)
	truth := dataset.LowRank(4, 4, 20, 2, 0.05, rng)
	train := dataset.MaskRandom(truth, 0.2, rng)

	m := NewBTF(2, []int{1}).SetSeed(13)
	config := NewFitConfig().SetBurnIn(5).SetSamples(5)
	result, err := m.Fit(context.Background(), train, nil, config)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(result.Score.MAPE))
	assert.True(t, math.IsNaN(result.Score.RMSE))
	for _, v := range result.Tensor.Data() {
		assert.False(t, math.IsNaN(v))
	}
}

func TestFitValidation(t *testing.T) {
	rng := base.NewRandomGenerator(8)
	truth := dataset.LowRank(4, 4, 20, 2, 0, rng)
	config := NewFitConfig().SetBurnIn(1).SetSamples(1)
	ctx := context.Background()

	_, err := NewBTF(2, []int{1}).Fit(ctx, nil, nil, config)
	assert.True(t, errors.Is(err, errors.NotValid))

	_, err = NewBTF(0, []int{1}).Fit(ctx, truth, nil, config)
	assert.True(t, errors.Is(err, errors.NotValid))

	_, err = NewBTF(2, nil).Fit(ctx, truth, nil, config)
	assert.True(t, errors.Is(err, errors.NotValid))

	_, err = NewBTF(2, []int{20}).Fit(ctx, truth, nil, config)
	assert.True(t, errors.Is(err, errors.NotValid))

	_, err = NewBTF(2, []int{1}).SetNoiseMode("bogus").Fit(ctx, truth, nil, config)
	assert.True(t, errors.Is(err, errors.NotValid))

	_, err = NewBTF(2, []int{1}).Fit(ctx, truth, nil, NewFitConfig().SetSamples(0))
	assert.True(t, errors.Is(err, errors.NotValid))

	mismatched := dataset.LowRank(4, 4, 21, 2, 0, rng)
	_, err = NewBTF(2, []int{1}).Fit(ctx, truth, mismatched, config)
	assert.True(t, errors.Is(err, errors.NotValid))

	badInit := mat.NewDense(3, 2, nil)
	_, err = NewBTF(2, []int{1}).
		SetInitialFactors(badInit, mat.NewDense(4, 2, nil), mat.NewDense(20, 2, nil)).
		Fit(ctx, truth, nil, config)
	assert.True(t, errors.Is(err, errors.NotValid))

	empty := tensor.NewDense(4, 4, 20)
	_, err = NewBTF(2, []int{1}).Fit(ctx, empty, nil, config)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestFitCancelled(t *testing.T) {
	rng := base.NewRandomGenerator(2)
	truth := dataset.LowRank(4, 4, 20, 2, 0, rng)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewBTF(2, []int{1}).SetSeed(2)
	_, err := m.Fit(ctx, truth, nil, NewFitConfig().SetBurnIn(1).SetSamples(1))
	assert.ErrorIs(t, err, context.Canceled)
}
