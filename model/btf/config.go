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
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// NoiseMode selects the observation-noise precision model, fixed for a run.
type NoiseMode string

const (
	// NoiseScalar uses a single precision shared by every cell.
	NoiseScalar NoiseMode = "scalar"
	// NoiseFiber uses one precision per (i, j) time fiber.
	NoiseFiber NoiseMode = "fiber"
)

// FitConfig controls the Gibbs iteration loop.
type FitConfig struct {
	BurnIn  int // iterations discarded before posterior averaging
	Samples int // iterations accumulated into the posterior mean
	Horizon int // forecast steps appended to the temporal factor
	Verbose int // interim metric reporting cadence during burn-in
}

// NewFitConfig creates a FitConfig with default values.
func NewFitConfig() *FitConfig {
	return &FitConfig{
		BurnIn:  100,
		Samples: 100,
		Horizon: 0,
		Verbose: 10,
	}
}

func (config *FitConfig) SetBurnIn(burnIn int) *FitConfig {
	config.BurnIn = burnIn
	return config
}

func (config *FitConfig) SetSamples(samples int) *FitConfig {
	config.Samples = samples
	return config
}

func (config *FitConfig) SetHorizon(horizon int) *FitConfig {
	config.Horizon = horizon
	return config
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) validate() error {
	if config.BurnIn < 0 {
		return errors.NotValidf("burn-in count %d", config.BurnIn)
	}
	if config.Samples <= 0 {
		return errors.NotValidf("sampling count %d", config.Samples)
	}
	if config.Horizon < 0 {
		return errors.NotValidf("forecast horizon %d", config.Horizon)
	}
	if config.Verbose <= 0 {
		return errors.NotValidf("verbose cadence %d", config.Verbose)
	}
	return nil
}

// validateLags checks the lag set: positive, strictly increasing, and short
// enough for the series length.
func validateLags(lags []int, seriesLen int) error {
	if len(lags) == 0 {
		return errors.NotValidf("empty lag set")
	}
	for i, lag := range lags {
		if lag <= 0 {
			return errors.NotValidf("lag %d", lag)
		}
		if i > 0 && lag <= lags[i-1] {
			return errors.NotValidf("lag set %v: not strictly increasing", lags)
		}
	}
	if maxLag := lo.Max(lags); maxLag > seriesLen-1 {
		return errors.NotValidf("maximum lag %d for series length %d", maxLag, seriesLen)
	}
	return nil
}
