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

package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tensorlab/btf/base"
)

func TestLowRank(t *testing.T) {
	rng := base.NewRandomGenerator(42)
	ts := LowRank(4, 5, 6, 2, 0, rng)
	d1, d2, d3 := ts.Dims()
	assert.Equal(t, 4, d1)
	assert.Equal(t, 5, d2)
	assert.Equal(t, 6, d3)
	// noiseless positive factors observe every cell
	assert.Equal(t, uint(ts.Len()), ts.Observed().Count())
	for _, v := range ts.Data() {
		assert.Greater(t, v, 0.0)
	}
}

func TestMaskRandom(t *testing.T) {
	rng := base.NewRandomGenerator(42)
	ts := LowRank(5, 5, 10, 2, 0, rng)
	masked := MaskRandom(ts, 0.3, rng)
	want := int(0.3 * float64(ts.Len()))
	assert.Equal(t, uint(ts.Len()-want), masked.Observed().Count())
	// source tensor untouched
	assert.Equal(t, uint(ts.Len()), ts.Observed().Count())
}
