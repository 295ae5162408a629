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

// Package btf implements Bayesian temporal tensor factorization: a third-order
// tensor with missing entries is factorized into a low-rank CP model whose
// time-indexed factor follows a vector autoregression, and the joint posterior
// is explored by Gibbs sampling with conjugate priors. The posterior mean
// reconstruction imputes missing cells and the AR recursion over the temporal
// factor produces multi-step forecasts.
//
//	Y[i,j,t] ~ N(sum_s U[i,s] V[j,s] X[t,s], tau^-1)
//	X[t]     ~ N(A^T stack(X[t-lag_1], ..., X[t-lag_d]), Sigma)
package btf

import (
	"context"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/tensorlab/btf/base/log"
	"github.com/tensorlab/btf/base/progress"
	"github.com/tensorlab/btf/common/stats"
	"github.com/tensorlab/btf/common/tensor"
)

// initStdDev is the standard deviation of randomly initialized factors.
const initStdDev = 0.1

// Score reports held-out imputation accuracy. Both fields are NaN when no
// reference tensor was supplied.
type Score struct {
	MAPE float64
	RMSE float64
}

// Result holds the posterior means produced by a completed run.
type Result struct {
	Tensor *tensor.Dense // posterior-mean reconstruction, shape (d1, d2, d3)
	U      *mat.Dense    // posterior-mean first spatial factor, d1 x R
	V      *mat.Dense    // posterior-mean second spatial factor, d2 x R
	X      *mat.Dense    // posterior-mean temporal factor extended by the horizon, (d3+H) x R
	A      *mat.Dense    // posterior-mean AR coefficients, (R*d) x R
	Score  Score
}

// BTF is the Bayesian temporal tensor factorization model. One instance owns
// all mutable state of one run and must not be shared between concurrent runs.
type BTF struct {
	// hyperparameters
	rank      int
	lags      []int
	noiseMode NoiseMode
	seed      uint64

	// optional initial factors
	initU, initV, initX *mat.Dense

	// run state
	minLag, maxLag int
	sampler        *stats.Sampler
	noise          noiseModel
	u, v, x        *mat.Dense
	a              *mat.Dense
	sigma          *mat.SymDense
	lambdaX        *mat.SymDense
}

// NewBTF creates a model with the given CP rank and ordered AR lag set.
// Hyperparameters are validated when Fit starts.
func NewBTF(rank int, lags []int) *BTF {
	return &BTF{
		rank:      rank,
		lags:      lags,
		noiseMode: NoiseScalar,
	}
}

// SetNoiseMode selects the observation-noise precision model.
func (m *BTF) SetNoiseMode(mode NoiseMode) *BTF {
	m.noiseMode = mode
	return m
}

// SetSeed fixes the random seed. Runs with the same seed, inputs and
// configuration reproduce the same outputs.
func (m *BTF) SetSeed(seed uint64) *BTF {
	m.seed = seed
	return m
}

// SetInitialFactors supplies starting values for U (d1 x R), V (d2 x R) and
// X (d3 x R) instead of random initialization. The matrices are copied.
func (m *BTF) SetInitialFactors(u, v, x *mat.Dense) *BTF {
	m.initU = mat.DenseCopyOf(u)
	m.initV = mat.DenseCopyOf(v)
	m.initX = mat.DenseCopyOf(x)
	return m
}

func (m *BTF) validate(trainSet, testSet *tensor.Dense, config *FitConfig) error {
	if trainSet == nil {
		return errors.NotValidf("nil train set")
	}
	if m.rank <= 0 {
		return errors.NotValidf("rank %d", m.rank)
	}
	d1, d2, d3 := trainSet.Dims()
	if err := validateLags(m.lags, d3); err != nil {
		return errors.Trace(err)
	}
	if err := config.validate(); err != nil {
		return errors.Trace(err)
	}
	if m.noiseMode != NoiseScalar && m.noiseMode != NoiseFiber {
		return errors.NotValidf("noise mode %q", m.noiseMode)
	}
	if testSet != nil {
		e1, e2, e3 := testSet.Dims()
		if e1 != d1 || e2 != d2 || e3 != d3 {
			return errors.NotValidf("test set shape (%d, %d, %d) against train set shape (%d, %d, %d)",
				e1, e2, e3, d1, d2, d3)
		}
	}
	for _, check := range []struct {
		name   string
		factor *mat.Dense
		rows   int
	}{{"U", m.initU, d1}, {"V", m.initV, d2}, {"X", m.initX, d3}} {
		if check.factor == nil {
			continue
		}
		rows, cols := check.factor.Dims()
		if rows != check.rows || cols != m.rank {
			return errors.NotValidf("initial %s shape (%d, %d), want (%d, %d)",
				check.name, rows, cols, check.rows, m.rank)
		}
	}
	return nil
}

func (m *BTF) init(trainSet *tensor.Dense) {
	d1, d2, d3 := trainSet.Dims()
	m.minLag = lo.Min(m.lags)
	m.maxLag = lo.Max(m.lags)
	m.sampler = stats.NewSampler(m.seed)
	if m.noiseMode == NoiseFiber {
		m.noise = newFiberNoise(d1, d2)
	} else {
		m.noise = newScalarNoise()
	}
	m.u = m.initFactor(m.initU, d1)
	m.v = m.initFactor(m.initV, d2)
	m.x = m.initFactor(m.initX, d3)
	m.a = mat.NewDense(m.rank*len(m.lags), m.rank, nil)
	m.sigma = identity(m.rank)
	m.lambdaX = identity(m.rank)
}

func (m *BTF) initFactor(init *mat.Dense, rows int) *mat.Dense {
	if init != nil {
		return mat.DenseCopyOf(init)
	}
	factor := mat.NewDense(rows, m.rank, nil)
	for i := 0; i < rows; i++ {
		for s := 0; s < m.rank; s++ {
			factor.Set(i, s, initStdDev*m.sampler.NormFloat64())
		}
	}
	return factor
}

func identity(n int) *mat.SymDense {
	eye := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		eye.SetSym(i, i, 1)
	}
	return eye
}

// Fit runs the Gibbs sampler: BurnIn iterations warm the chain, then Samples
// iterations are averaged into the posterior means. Within each iteration the
// samplers run in the fixed order U, V, (A, Sigma), X, tau. The optional
// testSet supplies held-out values for diagnostic and final scoring; it is
// never visible to the sampler. Cancellation through ctx takes effect between
// iterations only.
func (m *BTF) Fit(ctx context.Context, trainSet, testSet *tensor.Dense, config *FitConfig) (*Result, error) {
	if config == nil {
		config = NewFitConfig()
	}
	if err := m.validate(trainSet, testSet, config); err != nil {
		return nil, errors.Trace(err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	m.init(trainSet)

	d1, d2, d3 := trainSet.Dims()
	obs := trainSet.Observed()
	if obs.Count() == 0 {
		return nil, errors.NotValidf("train set without observed entries")
	}
	var heldOut *bitset.BitSet
	if testSet != nil {
		heldOut = tensor.HeldOut(trainSet, testSet)
	}
	log.Logger().Info("fit btf",
		zap.Int("d1", d1), zap.Int("d2", d2), zap.Int("d3", d3),
		zap.Uint("observed", obs.Count()),
		zap.Int("rank", m.rank),
		zap.Ints("time_lags", m.lags),
		zap.String("noise_mode", string(m.noiseMode)),
		zap.Any("config", config))

	totalIters := config.BurnIn + config.Samples
	ctx, span := progress.Start(ctx, "BTF.Fit", totalIters)

	// interim running average, reset at every burn-in report
	interim := tensor.NewDense(d1, d2, d3)
	interimCount := 0.0
	// posterior accumulators, valid after burn-in
	sumRecon := tensor.NewDense(d1, d2, d3)
	sumU := mat.NewDense(d1, m.rank, nil)
	sumV := mat.NewDense(d2, m.rank, nil)
	sumX := mat.NewDense(d3+config.Horizon, m.rank, nil)
	sumA := mat.NewDense(m.rank*len(m.lags), m.rank, nil)
	sampleCount := 0.0

	for it := 1; it <= totalIters; it++ {
		if err := ctx.Err(); err != nil {
			span.Fail(err)
			return nil, errors.Trace(err)
		}
		if err := m.iterate(trainSet, obs); err != nil {
			span.Fail(err)
			return nil, errors.Trace(err)
		}
		recon := tensor.CP(m.u, m.v, m.x)
		m.noise.resample(m.sampler, trainSet, recon, obs)

		if it <= config.BurnIn {
			interim.Add(recon)
			interimCount++
			if it%config.Verbose == 0 {
				if heldOut != nil {
					avg := interim.Clone()
					avg.Scale(1 / interimCount)
					log.Logger().Info(fmt.Sprintf("fit btf %v/%v", it, totalIters),
						zap.Float64("MAPE", tensor.MAPE(testSet, avg, heldOut)),
						zap.Float64("RMSE", tensor.RMSE(testSet, avg, heldOut)))
				}
				interim.Zero()
				interimCount = 0
			}
		} else {
			sumRecon.Add(recon)
			sumU.Add(sumU, m.u)
			sumV.Add(sumV, m.v)
			sumA.Add(sumA, m.a)
			sumX.Add(sumX, forecast(m.x, m.a, m.lags, config.Horizon))
			sampleCount++
			if it%config.Verbose == 0 && heldOut != nil {
				avg := sumRecon.Clone()
				avg.Scale(1 / sampleCount)
				log.Logger().Info(fmt.Sprintf("fit btf %v/%v", it, totalIters),
					zap.Float64("MAPE", tensor.MAPE(testSet, avg, heldOut)),
					zap.Float64("RMSE", tensor.RMSE(testSet, avg, heldOut)))
			}
		}
		span.Add(1)
	}

	sumRecon.Scale(1 / sampleCount)
	sumU.Scale(1/sampleCount, sumU)
	sumV.Scale(1/sampleCount, sumV)
	sumX.Scale(1/sampleCount, sumX)
	sumA.Scale(1/sampleCount, sumA)

	score := Score{MAPE: math.NaN(), RMSE: math.NaN()}
	if heldOut != nil {
		score.MAPE = tensor.MAPE(testSet, sumRecon, heldOut)
		score.RMSE = tensor.RMSE(testSet, sumRecon, heldOut)
	}
	log.Logger().Info("fit btf complete",
		zap.Float64("MAPE", score.MAPE),
		zap.Float64("RMSE", score.RMSE))
	span.End()
	return &Result{
		Tensor: sumRecon,
		U:      sumU,
		V:      sumV,
		X:      sumX,
		A:      sumA,
		Score:  score,
	}, nil
}

// iterate runs one Gibbs sweep in the fixed sampler order.
func (m *BTF) iterate(trainSet *tensor.Dense, obs *bitset.BitSet) error {
	if err := m.sampleSpatialFactor(m.u, m.v, 0, trainSet, obs); err != nil {
		return errors.Trace(err)
	}
	if err := m.sampleSpatialFactor(m.v, m.u, 1, trainSet, obs); err != nil {
		return errors.Trace(err)
	}
	if err := m.sampleVARCoefficients(); err != nil {
		return errors.Trace(err)
	}
	if err := m.sampleTemporalFactor(trainSet, obs); err != nil {
		return errors.Trace(err)
	}
	return nil
}
