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

// sampleTemporalFactor resamples the time-indexed factor row by row. Each row
// combines three contributions: the reconstruction likelihood, the backward
// AR transition from its lag history (identity-corrected before a full
// history exists) and the forward AR coupling from future rows that reference
// it as a lagged input. Rows must be drawn strictly in index order: each draw
// is written back immediately and later rows observe the updated value
// through both AR terms.
func (m *BTF) sampleTemporalFactor(train *tensor.Dense, obs *bitset.BitSet) error {
	t3, r := m.x.Dims()

	// likelihood contribution of every observed cell, one pass
	precs := make([]*mat.SymDense, t3)
	rhss := make([]*mat.VecDense, t3)
	for t := 0; t < t3; t++ {
		precs[t] = mat.NewSymDense(r, nil)
		rhss[t] = mat.NewVecDense(r, nil)
	}
	_, d2, d3 := train.Dims()
	w := mat.NewVecDense(r, nil)
	data := train.Data()
	for idx, ok := obs.NextSet(0); ok; idx, ok = obs.NextSet(idx + 1) {
		t := int(idx) % d3
		j := (int(idx) / d3) % d2
		i := int(idx) / (d2 * d3)
		uRow := m.u.RawRowView(i)
		vRow := m.v.RawRowView(j)
		for s := 0; s < r; s++ {
			w.SetVec(s, uRow[s]*vRow[s])
		}
		weight := m.noise.Weight(i, j)
		precs[t].SymRankOne(precs[t], weight, w)
		rhss[t].AddScaledVec(rhss[t], weight*data[idx], w)
	}

	// per-lag pieces: coefficient blocks A_k, Lambda A_k and A_k^T Lambda A_k
	blocks := make([]*mat.Dense, len(m.lags))
	lambdaBlocks := make([]*mat.Dense, len(m.lags))
	fwdPrecs := make([]*mat.SymDense, len(m.lags))
	for k := range m.lags {
		blocks[k] = m.a.Slice(k*r, (k+1)*r, 0, r).(*mat.Dense)
		lambdaBlocks[k] = mat.NewDense(r, r, nil)
		lambdaBlocks[k].Mul(m.lambdaX, blocks[k])
		full := mat.NewDense(r, r, nil)
		full.Mul(blocks[k].T(), lambdaBlocks[k])
		fwdPrecs[k] = mat.NewSymDense(r, nil)
		for i := 0; i < r; i++ {
			for j := i; j < r; j++ {
				fwdPrecs[k].SetSym(i, j, 0.5*(full.At(i, j)+full.At(j, i)))
			}
		}
	}

	tmp := mat.NewVecDense(r, nil)
	tmp2 := mat.NewVecDense(r, nil)
	pred := mat.NewVecDense(r, nil)
	for t := 0; t < t3; t++ {
		prec := precs[t]
		rhs := rhss[t]

		if t >= m.maxLag {
			// backward transition: precision Lambda, mean Lambda A^T stack(history)
			prec.AddSym(prec, m.lambdaX)
			pred.Zero()
			for k, lag := range m.lags {
				tmp.MulVec(blocks[k].T(), m.x.RowView(t-lag))
				pred.AddVec(pred, tmp)
			}
			tmp.MulVec(m.lambdaX, pred)
			rhs.AddVec(rhs, tmp)
		} else {
			// no full lag history yet: identity correction in place of Lambda
			for s := 0; s < r; s++ {
				prec.SetSym(s, s, prec.At(s, s)+1)
			}
		}

		// forward coupling: future rows t+lag_k whose own transition is
		// in range reference row t through coefficient block k
		for k, lag := range m.lags {
			tf := t + lag
			if tf >= t3 || tf < m.maxLag {
				continue
			}
			prec.AddSym(prec, fwdPrecs[k])
			// residual of the future row with block k's contribution removed
			pred.CopyVec(m.x.RowView(tf))
			for l, lagOther := range m.lags {
				if l == k {
					continue
				}
				tmp.MulVec(blocks[l].T(), m.x.RowView(tf-lagOther))
				pred.SubVec(pred, tmp)
			}
			tmp.MulVec(m.lambdaX, pred)
			tmp2.MulVec(blocks[k].T(), tmp)
			rhs.AddVec(rhs, tmp2)
		}

		draw, _, err := m.sampler.NormalCanonical(rhs, prec)
		if err != nil {
			return errors.Trace(err)
		}
		m.x.SetRow(t, draw.RawVector().Data)
	}
	return nil
}

// forecast extends the temporal factor by horizon rows using the AR recursion
// with zero injected noise: each future row is the deterministic prediction
// from the already-produced extended rows.
func forecast(x, coef *mat.Dense, lags []int, horizon int) *mat.Dense {
	t3, r := x.Dims()
	out := mat.NewDense(t3+horizon, r, nil)
	for t := 0; t < t3; t++ {
		out.SetRow(t, x.RawRowView(t))
	}
	tmp := mat.NewVecDense(r, nil)
	row := mat.NewVecDense(r, nil)
	for h := 0; h < horizon; h++ {
		t := t3 + h
		row.Zero()
		for k, lag := range lags {
			block := coef.Slice(k*r, (k+1)*r, 0, r)
			tmp.MulVec(block.T(), out.RowView(t-lag))
			row.AddVec(row, tmp)
		}
		out.SetRow(t, row.RawVector().Data)
	}
	return out
}
