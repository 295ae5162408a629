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

// Package tensor provides a dense third-order tensor with missing-entry
// handling, mode unfoldings and the Khatri-Rao product used by CP
// factorization models.
package tensor

import (
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
	"gonum.org/v1/gonum/mat"
)

// Dense is a dense tensor of shape (d1, d2, d3) stored in row-major order
// with the third axis fastest. Missing entries are marked by zero or NaN.
type Dense struct {
	d1, d2, d3 int
	data       []float64
}

// NewDense creates a zeroed tensor of shape (d1, d2, d3).
func NewDense(d1, d2, d3 int) *Dense {
	if d1 <= 0 || d2 <= 0 || d3 <= 0 {
		panic(fmt.Sprintf("tensor: non-positive shape (%d, %d, %d)", d1, d2, d3))
	}
	return &Dense{d1: d1, d2: d2, d3: d3, data: make([]float64, d1*d2*d3)}
}

// NewDenseFromData wraps data as a tensor of shape (d1, d2, d3) without copying.
func NewDenseFromData(d1, d2, d3 int, data []float64) *Dense {
	if len(data) != d1*d2*d3 {
		panic(fmt.Sprintf("tensor: data length %d does not match shape (%d, %d, %d)", len(data), d1, d2, d3))
	}
	return &Dense{d1: d1, d2: d2, d3: d3, data: data}
}

// Dims returns the tensor shape.
func (t *Dense) Dims() (d1, d2, d3 int) {
	return t.d1, t.d2, t.d3
}

// Len returns the number of cells.
func (t *Dense) Len() int {
	return len(t.data)
}

// Index returns the flattened position of cell (i, j, k).
func (t *Dense) Index(i, j, k int) int {
	return (i*t.d2+j)*t.d3 + k
}

// At returns the value of cell (i, j, k).
func (t *Dense) At(i, j, k int) float64 {
	return t.data[t.Index(i, j, k)]
}

// Set writes the value of cell (i, j, k).
func (t *Dense) Set(i, j, k int, v float64) {
	t.data[t.Index(i, j, k)] = v
}

// Data returns the backing slice.
func (t *Dense) Data() []float64 {
	return t.data
}

// Clone returns a deep copy.
func (t *Dense) Clone() *Dense {
	data := make([]float64, len(t.data))
	copy(data, t.data)
	return &Dense{d1: t.d1, d2: t.d2, d3: t.d3, data: data}
}

// Zero resets every cell.
func (t *Dense) Zero() {
	for i := range t.data {
		t.data[i] = 0
	}
}

// Add accumulates other into t. Shapes must match.
func (t *Dense) Add(other *Dense) {
	if t.d1 != other.d1 || t.d2 != other.d2 || t.d3 != other.d3 {
		panic("tensor: shape mismatch in Add")
	}
	for i := range t.data {
		t.data[i] += other.data[i]
	}
}

// Scale multiplies every cell by c.
func (t *Dense) Scale(c float64) {
	for i := range t.data {
		t.data[i] *= c
	}
}

// Observed returns the indicator over flattened positions: set where the cell
// holds a value, clear where the cell is missing (zero or NaN sentinel).
func (t *Dense) Observed() *bitset.BitSet {
	ind := bitset.New(uint(len(t.data)))
	for i, v := range t.data {
		if v != 0 && !math.IsNaN(v) {
			ind.Set(uint(i))
		}
	}
	return ind
}

// Unfold returns the mode-n unfolding: the chosen axis becomes rows and the
// remaining axes flatten into columns with the later axis varying slower.
// Mode 0 has shape d1 x (d2*d3) with column j + t*d2 holding cell (i, j, t).
func (t *Dense) Unfold(mode int) *mat.Dense {
	switch mode {
	case 0:
		m := mat.NewDense(t.d1, t.d2*t.d3, nil)
		for i := 0; i < t.d1; i++ {
			for j := 0; j < t.d2; j++ {
				for k := 0; k < t.d3; k++ {
					m.Set(i, j+k*t.d2, t.At(i, j, k))
				}
			}
		}
		return m
	case 1:
		m := mat.NewDense(t.d2, t.d1*t.d3, nil)
		for i := 0; i < t.d1; i++ {
			for j := 0; j < t.d2; j++ {
				for k := 0; k < t.d3; k++ {
					m.Set(j, i+k*t.d1, t.At(i, j, k))
				}
			}
		}
		return m
	case 2:
		m := mat.NewDense(t.d3, t.d1*t.d2, nil)
		for i := 0; i < t.d1; i++ {
			for j := 0; j < t.d2; j++ {
				for k := 0; k < t.d3; k++ {
					m.Set(k, i+j*t.d1, t.At(i, j, k))
				}
			}
		}
		return m
	default:
		panic(fmt.Sprintf("tensor: invalid unfolding mode %d", mode))
	}
}

// KhatriRao returns the column-wise Khatri-Rao product of a (n x R) and
// b (m x R): a (n*m x R) matrix whose row ia*m+ib is the elementwise product
// of row ia of a and row ib of b.
func KhatriRao(a, b *mat.Dense) *mat.Dense {
	n, ra := a.Dims()
	m, rb := b.Dims()
	if ra != rb {
		panic("tensor: column mismatch in KhatriRao")
	}
	out := mat.NewDense(n*m, ra, nil)
	for ia := 0; ia < n; ia++ {
		aRow := a.RawRowView(ia)
		for ib := 0; ib < m; ib++ {
			bRow := b.RawRowView(ib)
			outRow := out.RawRowView(ia*m + ib)
			for s := 0; s < ra; s++ {
				outRow[s] = aRow[s] * bRow[s]
			}
		}
	}
	return out
}

// CP reconstructs the tensor sum_s u[:,s] o v[:,s] o x[:,s] from factor
// matrices u (d1 x R), v (d2 x R) and x (d3 x R).
func CP(u, v, x *mat.Dense) *Dense {
	d1, r := u.Dims()
	d2, rv := v.Dims()
	d3, rx := x.Dims()
	if rv != r || rx != r {
		panic("tensor: rank mismatch in CP")
	}
	out := NewDense(d1, d2, d3)
	for i := 0; i < d1; i++ {
		uRow := u.RawRowView(i)
		for j := 0; j < d2; j++ {
			vRow := v.RawRowView(j)
			base := (i*d2 + j) * d3
			for k := 0; k < d3; k++ {
				xRow := x.RawRowView(k)
				sum := 0.0
				for s := 0; s < r; s++ {
					sum += uRow[s] * vRow[s] * xRow[s]
				}
				out.data[base+k] = sum
			}
		}
	}
	return out
}
