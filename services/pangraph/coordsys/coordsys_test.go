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
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/pangraph/services/pangraph/genome"
	"github.com/AleutianAI/pangraph/services/pangraph/gfa"
	"github.com/AleutianAI/pangraph/services/pangraph/index"
)

const linearGFA = "S\ta\t*\tLN:i:10\n" +
	"S\tb\t*\tLN:i:20\n" +
	"S\tc\t*\tLN:i:30\n" +
	"L\ta\t+\tb\t+\t0M\n" +
	"L\tb\t+\tc\t+\t0M\n" +
	"P\tp1\ta+,b+,c+\t*\n"

// s1 [0,5) s2 [5,6) s3 [6,7) s4 [7,11) globally.
const bubbleGFA = "S\ts1\tACGTA\n" +
	"S\ts2\tC\n" +
	"S\ts3\tG\n" +
	"S\ts4\tTTTT\n" +
	"L\ts1\t+\ts2\t+\t0M\n" +
	"L\ts1\t+\ts3\t+\t0M\n" +
	"L\ts2\t+\ts4\t+\t0M\n" +
	"L\ts3\t+\ts4\t+\t0M\n" +
	"P\tref\ts1+,s2+,s4+\t*\n" +
	"P\talt\ts1+,s3+,s4+\t*\n" +
	"P\tloop\ts4+,s1+,s4+\t*\n"

func buildIndex(t *testing.T, text string) *index.Index {
	t.Helper()
	res, err := gfa.Parse(context.Background(), strings.NewReader(text))
	require.NoError(t, err)
	idx, err := index.Build(context.Background(), res.Columns)
	require.NoError(t, err)
	return idx
}

func TestGlobal(t *testing.T) {
	idx := buildIndex(t, linearGFA)
	cs := Global(idx)

	assert.True(t, cs.IsGlobal())
	assert.Equal(t, "", cs.Name())
	assert.Equal(t, 3, cs.Len())
	assert.Equal(t, genome.Bp(60), cs.TotalLength())

	n, ok := cs.NodeAt(2)
	require.True(t, ok)
	assert.Equal(t, genome.Node(2), n)

	off, ok := cs.Offset(1)
	require.True(t, ok)
	assert.Equal(t, genome.Bp(10), off)

	i, ok := cs.IndexAtPos(35)
	require.True(t, ok)
	assert.Equal(t, 2, i)

	_, ok = cs.IndexAtPos(60)
	assert.False(t, ok)
	_, ok = cs.NodeAt(3)
	assert.False(t, ok)
	_, ok = cs.Offset(4)
	assert.False(t, ok)
}

func TestForPath(t *testing.T) {
	idx := buildIndex(t, bubbleGFA)

	cs, err := ForPathName(idx, "alt")
	require.NoError(t, err)
	assert.False(t, cs.IsGlobal())
	assert.Equal(t, "alt", cs.Name())
	assert.Equal(t, genome.Bp(10), cs.TotalLength())

	span, ok := cs.Span(1)
	require.True(t, ok)
	assert.Equal(t, genome.BpRange{Start: 5, End: 6}, span)
	n, _ := cs.NodeAt(1)
	assert.Equal(t, genome.Node(2), n)

	// A node visited twice occupies two positions.
	loop, err := ForPathName(idx, "loop")
	require.NoError(t, err)
	assert.Equal(t, 3, loop.Len())
	first, _ := loop.NodeAt(0)
	last, _ := loop.NodeAt(2)
	assert.Equal(t, first, last)
	i, ok := loop.IndexAtPos(9)
	require.True(t, ok)
	assert.Equal(t, 2, i)

	_, err = ForPathName(idx, "missing")
	assert.ErrorIs(t, err, ErrPathNotFound)
	_, err = ForPath(idx, 99)
	assert.ErrorIs(t, err, ErrPathNotFound)
}

func TestBpToStepRange_AgreesWithIndex(t *testing.T) {
	idx := buildIndex(t, bubbleGFA)
	cs := Global(idx)

	for s := genome.Bp(0); s <= 12; s++ {
		for e := s; e <= 12; e++ {
			r := genome.BpRange{Start: s, End: e}
			want := idx.PosRangeNodes(r)
			start, end := cs.BpToStepRange(r)
			assert.Equal(t, int(want.Start), start, "range %s", r)
			assert.Equal(t, int(want.End), end, "range %s", r)
		}
	}
}

func TestStepRange_RoundTrip(t *testing.T) {
	idx := buildIndex(t, bubbleGFA)
	cs, err := ForPathName(idx, "ref")
	require.NoError(t, err)

	for i := 0; i < cs.Len(); i++ {
		r := cs.StepRangeToBp(i, i+1)
		start, end := cs.BpToStepRange(r)
		assert.Equal(t, i, start)
		assert.Equal(t, i+1, end)
	}

	assert.Equal(t, genome.BpRange{Start: 0, End: 10}, cs.StepRangeToBp(-4, 99))
	assert.Equal(t, genome.BpRange{Start: 5, End: 5}, cs.StepRangeToBp(1, 0))
}
