// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package coordsys

import (
	"fmt"
	"math"
	"sort"

	"github.com/AleutianAI/pangraph/services/pangraph/genome"
)

// Datum is a scalar value attached to one position of a CoordSys.
//
// Values are treated as per-bp densities: a datum split across several bins
// contributes the same value to each, weighted by overlap.
type Datum struct {
	Index int
	Value float32
}

// Sample is the result of binning data over a bp range.
type Sample struct {
	// Range is the sampled range after clamping.
	Range genome.BpRange

	// Values holds one length-weighted mean per bin; NaN marks a bin that
	// no datum overlapped.
	Values []float32

	// Weights holds the overlapping bp per bin.
	Weights []float64
}

// NoData is the value of a bin with no overlapping data.
var NoData = float32(math.NaN())

// IsNoData reports whether v marks an empty bin.
func IsNoData(v float32) bool {
	return v != v
}

// Sample bins data over r into bins values.
//
// Description:
//
//	Partitions r into bins equal-width sub-ranges (width computed in floating
//	point; the last bin ends exactly at r.End) and sweeps data and bins with
//	two monotonic cursors. Each (datum, bin) pair is visited at most once, so
//	work is O(data + bins) after a binary search to the first datum in range.
//
// Inputs:
//
//	r - Range in this system's bp coordinates; clamped to TotalLength().
//	data - Sparse data sorted strictly by Index.
//	bins - Number of output bins, at least 1.
//
// Outputs:
//
//	*Sample - Values and weights per bin.
//	error - ErrZeroBins, ErrEmptyRange or ErrUnsortedData.
//
// Thread Safety: Pure function of its inputs; safe for concurrent use.
func (c *CoordSys) Sample(r genome.BpRange, data []Datum, bins int) (*Sample, error) {
	if bins < 1 {
		return nil, ErrZeroBins
	}
	s := &Sample{
		Values:  make([]float32, bins),
		Weights: make([]float64, bins),
	}
	clamped, err := c.sweep(r, data, s.Values, s.Weights)
	if err != nil {
		return nil, err
	}
	s.Range = clamped
	return s, nil
}

// SampleInto is Sample writing len(out) bins into out.
func (c *CoordSys) SampleInto(r genome.BpRange, data []Datum, out []float32) error {
	if len(out) < 1 {
		return ErrZeroBins
	}
	_, err := c.sweep(r, data, out, make([]float64, len(out)))
	return err
}

func (c *CoordSys) sweep(r genome.BpRange, data []Datum, values []float32, weights []float64) (genome.BpRange, error) {
	r = r.Clamp(c.TotalLength())
	if r.Empty() {
		return r, fmt.Errorf("%w: %s", ErrEmptyRange, r)
	}
	if err := c.checkData(data); err != nil {
		return r, err
	}

	lo, hi := c.BpToStepRange(r)
	di := sort.Search(len(data), func(i int) bool { return data[i].Index >= lo })

	bins := len(values)
	start, end := float64(r.Start), float64(r.End)
	width := (end - start) / float64(bins)
	acc := make([]float64, bins)

	binRight := func(b int) float64 {
		if b == bins-1 {
			return end
		}
		return start + float64(b+1)*width
	}

	bi := 0
	for di < len(data) && data[di].Index < hi && bi < bins {
		d := data[di]
		dl := float64(c.offsets[d.Index])
		dr := float64(c.offsets[d.Index+1])
		bl := start + float64(bi)*width
		br := binRight(bi)

		overlap := min(dr, br) - max(dl, bl)
		if overlap > 0 {
			acc[bi] += float64(d.Value) * overlap
			weights[bi] += overlap
		}

		if dr <= br {
			di++
		} else {
			bi++
		}
	}

	for b := range values {
		if weights[b] > 0 {
			values[b] = float32(acc[b] / weights[b])
		} else {
			values[b] = NoData
		}
	}
	return r, nil
}

func (c *CoordSys) checkData(data []Datum) error {
	prev := -1
	for i, d := range data {
		if d.Index <= prev || d.Index >= c.Len() {
			return fmt.Errorf("%w: datum %d index %d", ErrUnsortedData, i, d.Index)
		}
		prev = d.Index
	}
	return nil
}
