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

package tensor

import (
	"math"

	"github.com/bits-and-blooms/bitset"
)

// HeldOut returns the evaluation positions: cells observed in the reference
// tensor but missing in the training tensor.
func HeldOut(train, ref *Dense) *bitset.BitSet {
	pos := ref.Observed()
	pos.InPlaceDifference(train.Observed())
	return pos
}

// RMSE computes the root mean squared error between truth and pred over the
// given positions. Returns NaN when no position is set.
func RMSE(truth, pred *Dense, pos *bitset.BitSet) float64 {
	sum, count := 0.0, 0.0
	for i, ok := pos.NextSet(0); ok; i, ok = pos.NextSet(i + 1) {
		diff := truth.data[i] - pred.data[i]
		sum += diff * diff
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return math.Sqrt(sum / count)
}

// MAPE computes the mean absolute percentage error between truth and pred
// over the given positions, skipping zero truth values. Returns NaN when no
// usable position exists.
func MAPE(truth, pred *Dense, pos *bitset.BitSet) float64 {
	sum, count := 0.0, 0.0
	for i, ok := pos.NextSet(0); ok; i, ok = pos.NextSet(i + 1) {
		if truth.data[i] == 0 {
			continue
		}
		sum += math.Abs((truth.data[i] - pred.data[i]) / truth.data[i])
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / count
}
