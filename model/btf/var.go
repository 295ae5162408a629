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
	"gonum.org/v1/gonum/mat"
)

// sampleVARCoefficients resamples the AR coefficient matrix A and innovation
// covariance Sigma from their matrix-normal-inverse-Wishart conditional
// posterior given the current temporal factor. The design matrix stacks the
// temporal factor shifted by each lag, aligned to rows maxLag..d3-1.
func (m *BTF) sampleVARCoefficients() error {
	t3, r := m.x.Dims()
	d := len(m.lags)
	rows := t3 - m.maxLag

	z := m.x.Slice(m.maxLag, t3, 0, r).(*mat.Dense)
	q := mat.NewDense(rows, r*d, nil)
	for ri := 0; ri < rows; ri++ {
		t := m.maxLag + ri
		qRow := q.RawRowView(ri)
		for k, lag := range m.lags {
			copy(qRow[k*r:(k+1)*r], m.x.RawRowView(t-lag))
		}
	}

	// posterior row precision Psi0 = I + Q^T Q
	psi0 := mat.NewSymDense(r*d, nil)
	psi0.SymOuterK(1, q.T())
	for i := 0; i < r*d; i++ {
		psi0.SetSym(i, i, psi0.At(i, i)+1)
	}
	var psiChol mat.Cholesky
	if !psiChol.Factorize(psi0) {
		return errors.New("VAR posterior row precision is not positive definite")
	}

	// posterior mean M = Psi0^-1 Q^T Z
	qtz := mat.NewDense(r*d, r, nil)
	qtz.Mul(q.T(), z)
	coefMean := mat.NewDense(r*d, r, nil)
	if err := psiChol.SolveTo(coefMean, qtz); err != nil {
		return errors.Trace(err)
	}

	// residual scale S = I + Z^T Z - M^T Psi0 M, with Psi0 M = Q^T Z
	residual := mat.NewDense(r, r, nil)
	residual.Mul(z.T(), z)
	shrink := mat.NewDense(r, r, nil)
	shrink.Mul(coefMean.T(), qtz)
	residual.Sub(residual, shrink)
	scale := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			v := 0.5 * (residual.At(i, j) + residual.At(j, i))
			if i == j {
				v += 1
			}
			scale.SetSym(i, j, v)
		}
	}

	sigma, err := m.sampler.InverseWishart(float64(r+rows), scale)
	if err != nil {
		return errors.Trace(err)
	}
	rowCov := mat.NewSymDense(r*d, nil)
	if err := psiChol.InverseTo(rowCov); err != nil {
		return errors.Trace(err)
	}
	coef, err := m.sampler.MatrixNormal(coefMean, rowCov, sigma)
	if err != nil {
		return errors.Trace(err)
	}

	// cache the innovation precision for the temporal sweep
	var sigChol mat.Cholesky
	if !sigChol.Factorize(sigma) {
		return errors.New("innovation covariance is not positive definite")
	}
	lambda := mat.NewSymDense(r, nil)
	if err := sigChol.InverseTo(lambda); err != nil {
		return errors.Trace(err)
	}

	m.a = coef
	m.sigma = sigma
	m.lambdaX = lambda
	return nil
}
