// Package verify computes host-side reference results and compares them
// with what came back from the device.
package verify

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultMaxReported is how many mismatches Compare keeps by default.
const DefaultMaxReported = 10

// Mismatch is one element where the device disagreed with the reference.
type Mismatch struct {
	Index    int
	Expected float32
	Actual   float32
}

func (m Mismatch) String() string {
	return fmt.Sprintf("[%d] expected %v (0x%08x), got %v (0x%08x)",
		m.Index, m.Expected, math.Float32bits(m.Expected), m.Actual, math.Float32bits(m.Actual))
}

// Report is the outcome of a comparison. Count is the true number of
// mismatching elements even when Mismatches was capped.
type Report struct {
	Total      int
	Count      int
	Mismatches []Mismatch
}

// OK reports whether every element matched.
func (r Report) OK() bool { return r.Count == 0 }

// Truncated reports whether mismatches were dropped from the list.
func (r Report) Truncated() bool { return r.Count > len(r.Mismatches) }

// Reference returns a[i] + b[i] for every i.
func Reference(a, b []float32) ([]float32, error) {
	if len(a) != len(b) {
		return nil, errors.Errorf("verify: input lengths differ (%d vs %d)", len(a), len(b))
	}
	out := make([]float32, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out, nil
}

// Compare checks actual against expected bit for bit. At most limit
// mismatches are kept; limit < 0 keeps them all.
func Compare(expected, actual []float32, limit int) (Report, error) {
	if len(expected) != len(actual) {
		return Report{}, errors.Errorf("verify: expected %d elements, got %d", len(expected), len(actual))
	}
	r := Report{Total: len(expected)}
	for i := range expected {
		if math.Float32bits(expected[i]) == math.Float32bits(actual[i]) {
			continue
		}
		r.Count++
		if limit < 0 || len(r.Mismatches) < limit {
			r.Mismatches = append(r.Mismatches, Mismatch{Index: i, Expected: expected[i], Actual: actual[i]})
		}
	}
	return r, nil
}

// RandomVector returns n floats drawn uniformly from [-1, 1]. The same seed
// always yields the same vector.
func RandomVector(n int, seed uint64) []float32 {
	dist := distuv.Uniform{Min: -1, Max: 1, Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(dist.Rand())
	}
	return out
}
