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

// Package stats implements the primitive random draws used by Gibbs samplers:
// precision-parameterized multivariate normals, Wishart and inverse-Wishart
// matrices, matrix-normal matrices and Gamma scalars. All draws consume
// randomness from a single seeded source so a fixed seed and a fixed call
// order reproduce the same sequence of draws.
package stats

import (
	"math"
	"math/rand/v2"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler owns the random source shared by all primitive draws. It is not
// safe for concurrent use; every Gibbs run owns exactly one Sampler.
type Sampler struct {
	src rand.Source
	rng *rand.Rand
}

// NewSampler creates a sampler seeded deterministically.
func NewSampler(seed uint64) *Sampler {
	src := rand.NewPCG(seed, seed)
	return &Sampler{src: src, rng: rand.New(src)}
}

// NormFloat64 draws a standard normal scalar.
func (s *Sampler) NormFloat64() float64 {
	return s.rng.NormFloat64()
}

// normalVec fills a fresh vector with independent standard normals.
func (s *Sampler) normalVec(n int) *mat.VecDense {
	v := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v.SetVec(i, s.rng.NormFloat64())
	}
	return v
}

// spdChol factorizes a symmetric positive-definite matrix, retrying once with
// adaptive jitter on the diagonal when the factorization fails.
func spdChol(a *mat.SymDense) (*mat.Cholesky, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(a); ok {
		return &chol, nil
	}
	n := a.SymmetricDim()
	trace := 0.0
	for i := 0; i < n; i++ {
		trace += a.At(i, i)
	}
	eps := 1e-8 * trace / float64(n)
	if eps <= 0 || math.IsNaN(eps) {
		eps = 1e-8
	}
	jittered := mat.NewSymDense(n, nil)
	jittered.CopySym(a)
	for i := 0; i < n; i++ {
		jittered.SetSym(i, i, jittered.At(i, i)+eps)
	}
	if ok := chol.Factorize(jittered); ok {
		return &chol, nil
	}
	return nil, errors.New("cholesky factorization failed even with jitter")
}

// NormalPrecision draws x ~ N(mean, precision^-1). The precision matrix is
// factorized as L L^T and the draw is mean + L^-T z for standard normal z.
func (s *Sampler) NormalPrecision(mean *mat.VecDense, precision *mat.SymDense) (*mat.VecDense, error) {
	chol, err := spdChol(precision)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return s.normalPrecisionChol(mean, chol)
}

// NormalCanonical draws x ~ N(precision^-1 rhs, precision^-1), the canonical
// (information form) parameterization produced by conjugate updates. It also
// returns the conditional mean precision^-1 rhs.
func (s *Sampler) NormalCanonical(rhs *mat.VecDense, precision *mat.SymDense) (x, mean *mat.VecDense, err error) {
	chol, err := spdChol(precision)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	mean = mat.NewVecDense(rhs.Len(), nil)
	if err := chol.SolveVecTo(mean, rhs); err != nil {
		return nil, nil, errors.Trace(err)
	}
	x, err = s.normalPrecisionChol(mean, chol)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return x, mean, nil
}

// normalPrecisionChol draws mean + L^-T z by solving P w = L z, which avoids
// an explicit triangular inverse: P^-1 L z = L^-T L^-1 L z = L^-T z.
func (s *Sampler) normalPrecisionChol(mean *mat.VecDense, chol *mat.Cholesky) (*mat.VecDense, error) {
	n := mean.Len()
	var l mat.TriDense
	chol.LTo(&l)
	z := s.normalVec(n)
	lz := mat.NewVecDense(n, nil)
	lz.MulVec(&l, z)
	w := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(w, lz); err != nil {
		return nil, errors.Trace(err)
	}
	w.AddVec(w, mean)
	return w, nil
}

// Wishart draws W ~ Wishart(df, scale) by the Bartlett decomposition:
// W = L A A^T L^T where L = chol(scale) and A is lower triangular with
// chi(df-i) diagonal entries and standard normal subdiagonal entries.
func (s *Sampler) Wishart(df float64, scale *mat.SymDense) (*mat.SymDense, error) {
	n := scale.SymmetricDim()
	if df < float64(n) {
		return nil, errors.NotValidf("wishart degrees of freedom %v below dimension %v", df, n)
	}
	chol, err := spdChol(scale)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var l mat.TriDense
	chol.LTo(&l)
	a := mat.NewTriDense(n, mat.Lower, nil)
	for i := 0; i < n; i++ {
		chi2 := distuv.ChiSquared{K: df - float64(i), Src: s.src}
		a.SetTri(i, i, math.Sqrt(chi2.Rand()))
		for j := 0; j < i; j++ {
			a.SetTri(i, j, s.rng.NormFloat64())
		}
	}
	la := mat.NewDense(n, n, nil)
	la.Mul(&l, a)
	w := mat.NewSymDense(n, nil)
	w.SymOuterK(1, la)
	return w, nil
}

// InverseWishart draws S ~ InvWishart(df, scale) as the inverse of a Wishart
// draw with inverted scale.
func (s *Sampler) InverseWishart(df float64, scale *mat.SymDense) (*mat.SymDense, error) {
	n := scale.SymmetricDim()
	chol, err := spdChol(scale)
	if err != nil {
		return nil, errors.Trace(err)
	}
	scaleInv := mat.NewSymDense(n, nil)
	if err := chol.InverseTo(scaleInv); err != nil {
		return nil, errors.Trace(err)
	}
	w, err := s.Wishart(df, scaleInv)
	if err != nil {
		return nil, errors.Trace(err)
	}
	wChol, err := spdChol(w)
	if err != nil {
		return nil, errors.Trace(err)
	}
	inv := mat.NewSymDense(n, nil)
	if err := wChol.InverseTo(inv); err != nil {
		return nil, errors.Trace(err)
	}
	return inv, nil
}

// MatrixNormal draws M ~ MN(mean, rowCov, colCov) as
// mean + chol(rowCov) Z chol(colCov)^T for a standard normal matrix Z.
func (s *Sampler) MatrixNormal(mean *mat.Dense, rowCov, colCov *mat.SymDense) (*mat.Dense, error) {
	r, c := mean.Dims()
	rowChol, err := spdChol(rowCov)
	if err != nil {
		return nil, errors.Trace(err)
	}
	colChol, err := spdChol(colCov)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var lr, lc mat.TriDense
	rowChol.LTo(&lr)
	colChol.LTo(&lc)
	z := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			z.Set(i, j, s.rng.NormFloat64())
		}
	}
	lz := mat.NewDense(r, c, nil)
	lz.Mul(&lr, z)
	out := mat.NewDense(r, c, nil)
	out.Mul(lz, lc.T())
	out.Add(out, mean)
	return out, nil
}

// Gamma draws from Gamma(shape, rate).
func (s *Sampler) Gamma(shape, rate float64) float64 {
	return distuv.Gamma{Alpha: shape, Beta: rate, Src: s.src}.Rand()
}
