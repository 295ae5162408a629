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
	"github.com/bits-and-blooms/bitset"
	"gonum.org/v1/gonum/mat"

	"github.com/tensorlab/btf/common/stats"
	"github.com/tensorlab/btf/common/tensor"
)

// noiseEpsilon is the near-flat Gamma prior constant for noise precision.
const noiseEpsilon = 1e-6

// noiseModel is the observation-noise precision contract. Weight returns the
// precision applied to cell (i, j, t) likelihood terms; resample draws the
// precision from its Gamma posterior given the current reconstruction.
type noiseModel interface {
	Weight(i, j int) float64
	resample(s *stats.Sampler, train, recon *tensor.Dense, obs *bitset.BitSet)
}

// scalarNoise shares a single precision across all cells.
type scalarNoise struct {
	tau float64
}

func newScalarNoise() *scalarNoise {
	return &scalarNoise{tau: 1}
}

func (n *scalarNoise) Weight(_, _ int) float64 {
	return n.tau
}

func (n *scalarNoise) resample(s *stats.Sampler, train, recon *tensor.Dense, obs *bitset.BitSet) {
	count, sqSum := 0.0, 0.0
	trainData, reconData := train.Data(), recon.Data()
	for i, ok := obs.NextSet(0); ok; i, ok = obs.NextSet(i + 1) {
		diff := trainData[i] - reconData[i]
		sqSum += diff * diff
		count++
	}
	n.tau = s.Gamma(noiseEpsilon+0.5*count, noiseEpsilon+0.5*sqSum)
}

// fiberNoise keeps one precision per (i, j) pair, pooled along the time axis.
type fiberNoise struct {
	tau *mat.Dense // d1 x d2
}

func newFiberNoise(d1, d2 int) *fiberNoise {
	n := &fiberNoise{tau: mat.NewDense(d1, d2, nil)}
	for i := 0; i < d1; i++ {
		for j := 0; j < d2; j++ {
			n.tau.Set(i, j, 1)
		}
	}
	return n
}

func (n *fiberNoise) Weight(i, j int) float64 {
	return n.tau.At(i, j)
}

func (n *fiberNoise) resample(s *stats.Sampler, train, recon *tensor.Dense, obs *bitset.BitSet) {
	d1, d2, d3 := train.Dims()
	for i := 0; i < d1; i++ {
		for j := 0; j < d2; j++ {
			count, sqSum := 0.0, 0.0
			for t := 0; t < d3; t++ {
				idx := train.Index(i, j, t)
				if !obs.Test(uint(idx)) {
					continue
				}
				diff := train.Data()[idx] - recon.Data()[idx]
				sqSum += diff * diff
				count++
			}
			n.tau.Set(i, j, s.Gamma(noiseEpsilon+0.5*count, noiseEpsilon+0.5*sqSum))
		}
	}
}
