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

// Package dataset builds in-memory tensors for experiments and tests:
// synthetic low-rank data and missing-entry masks. The sampler itself only
// ever sees plain tensors; everything here is a collaborator on the outside.
package dataset

import (
	"gonum.org/v1/gonum/mat"

	"github.com/tensorlab/btf/base"
	"github.com/tensorlab/btf/common/tensor"
)

// LowRank generates a tensor with a known rank-R CP structure plus Gaussian
// noise. Factor entries are uniform on [0.5, 1.5) so every cell is positive
// and the zero missing-entry sentinel stays unambiguous.
func LowRank(d1, d2, d3, rank int, noiseStdDev float64, rng base.RandomGenerator) *tensor.Dense {
	u := factorMatrix(d1, rank, rng)
	v := factorMatrix(d2, rank, rng)
	x := factorMatrix(d3, rank, rng)
	out := tensor.CP(u, v, x)
	if noiseStdDev > 0 {
		data := out.Data()
		for i := range data {
			data[i] += rng.NormFloat64() * noiseStdDev
		}
	}
	return out
}

func factorMatrix(rows, rank int, rng base.RandomGenerator) *mat.Dense {
	factor := mat.NewDense(rows, rank, nil)
	for i := 0; i < rows; i++ {
		factor.SetRow(i, rng.UniformVector(rank, 0.5, 1.5))
	}
	return factor
}

// MaskRandom returns a copy of t with the given fraction of cells marked
// missing (zeroed) uniformly at random.
func MaskRandom(t *tensor.Dense, rate float64, rng base.RandomGenerator) *tensor.Dense {
	out := t.Clone()
	masked := rng.Sample(0, out.Len(), int(rate*float64(out.Len())))
	data := out.Data()
	for _, idx := range masked {
		data[idx] = 0
	}
	return out
}
