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
	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/tensorlab/btf/common/tensor"
)

// hyperPseudoCount is the Normal-Wishart prior pseudo-count beta0.
const hyperPseudoCount = 1.0

// sampleFactorHyper resamples the hierarchical mean and precision of a factor
// matrix from their Normal-Wishart conditional posterior. The prior is
// mu0 = 0, W0 = I, nu0 = rank, beta0 = 1.
func (m *BTF) sampleFactorHyper(factor *mat.Dense) (*mat.VecDense, *mat.SymDense, error) {
	n, r := factor.Dims()
	nf := float64(n)

	// empirical mean row and scatter about it
	bar := mat.NewVecDense(r, nil)
	for i := 0; i < n; i++ {
		row := factor.RawRowView(i)
		for s := 0; s < r; s++ {
			bar.SetVec(s, bar.AtVec(s)+row[s])
		}
	}
	bar.ScaleVec(1/nf, bar)
	scatter := mat.NewSymDense(r, nil)
	diff := mat.NewVecDense(r, nil)
	for i := 0; i < n; i++ {
		row := factor.RawRowView(i)
		for s := 0; s < r; s++ {
			diff.SetVec(s, row[s]-bar.AtVec(s))
		}
		scatter.SymRankOne(scatter, 1, diff)
	}

	// posterior Wishart scale = inverse(I + scatter + beta0*n/(beta0+n) * bar bar^T)
	scaleInv := mat.NewSymDense(r, nil)
	scaleInv.CopySym(scatter)
	for s := 0; s < r; s++ {
		scaleInv.SetSym(s, s, scaleInv.At(s, s)+1)
	}
	scaleInv.SymRankOne(scaleInv, hyperPseudoCount*nf/(hyperPseudoCount+nf), bar)
	var chol mat.Cholesky
	if !chol.Factorize(scaleInv) {
		return nil, nil, errors.New("hyperparameter scale is not positive definite")
	}
	scale := mat.NewSymDense(r, nil)
	if err := chol.InverseTo(scale); err != nil {
		return nil, nil, errors.Trace(err)
	}
	lambda, err := m.sampler.Wishart(float64(r)+nf, scale)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}

	// hyper-mean ~ N(n/(n+beta0) * bar, ((beta0+n) * lambda)^-1)
	muStar := mat.NewVecDense(r, nil)
	muStar.ScaleVec(nf/(nf+hyperPseudoCount), bar)
	muPrec := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			muPrec.SetSym(i, j, (hyperPseudoCount+nf)*lambda.At(i, j))
		}
	}
	mu, err := m.sampler.NormalPrecision(muStar, muPrec)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return mu, lambda, nil
}

// sampleSpatialFactor resamples one of the two non-temporal factor matrices
// in place: first the hierarchical hyperparameters, then every row from its
// Gaussian conditional posterior. axis 0 resamples the first-dimension factor
// against other = V; axis 1 resamples the second-dimension factor against
// other = U. Rows are conditionally independent given the hyperparameters but
// are drawn in index order to keep randomness consumption deterministic.
func (m *BTF) sampleSpatialFactor(factor, other *mat.Dense, axis int, train *tensor.Dense, obs *bitset.BitSet) error {
	n, r := factor.Dims()
	mu, lambda, err := m.sampleFactorHyper(factor)
	if err != nil {
		return errors.Trace(err)
	}
	lambdaMu := mat.NewVecDense(r, nil)
	lambdaMu.MulVec(lambda, mu)

	// accumulate the likelihood precision and mean contribution of every
	// observed cell into its row in a single pass
	precs := make([]*mat.SymDense, n)
	rhss := make([]*mat.VecDense, n)
	for i := 0; i < n; i++ {
		precs[i] = mat.NewSymDense(r, nil)
		precs[i].CopySym(lambda)
		rhss[i] = mat.VecDenseCopyOf(lambdaMu)
	}
	_, d2, d3 := train.Dims()
	w := mat.NewVecDense(r, nil)
	data := train.Data()
	for idx, ok := obs.NextSet(0); ok; idx, ok = obs.NextSet(idx + 1) {
		t := int(idx) % d3
		j := (int(idx) / d3) % d2
		i := int(idx) / (d2 * d3)
		var row int
		var otherRow []float64
		if axis == 0 {
			row, otherRow = i, other.RawRowView(j)
		} else {
			row, otherRow = j, other.RawRowView(i)
		}
		xRow := m.x.RawRowView(t)
		for s := 0; s < r; s++ {
			w.SetVec(s, otherRow[s]*xRow[s])
		}
		weight := m.noise.Weight(i, j)
		precs[row].SymRankOne(precs[row], weight, w)
		rhss[row].AddScaledVec(rhss[row], weight*data[idx], w)
	}

	for i := 0; i < n; i++ {
		draw, _, err := m.sampler.NormalCanonical(rhss[i], precs[i])
		if err != nil {
			return errors.Trace(err)
		}
		factor.SetRow(i, draw.RawVector().Data)
	}
	return nil
}
