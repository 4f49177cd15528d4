// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gfa

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/pangraph/services/pangraph/genome"
)

const linearGFA = "H\tVN:Z:1.0\n" +
	"S\ta\t*\tLN:i:10\n" +
	"S\tb\t*\tLN:i:20\n" +
	"S\tc\t*\tLN:i:30\n" +
	"L\ta\t+\tb\t+\t0M\n" +
	"L\tb\t+\tc\t+\t0M\n" +
	"P\tp1\ta+,b+,c+\t*\n"

func parseString(t *testing.T, s string) (*Result, error) {
	t.Helper()
	return Parse(context.Background(), strings.NewReader(s))
}

func TestParse_LinearGraph(t *testing.T) {
	res, err := parseString(t, linearGFA)
	require.NoError(t, err)

	cols := res.Columns
	require.Equal(t, 3, cols.SegmentCount())
	assert.Equal(t, "a", cols.SegmentName(0))
	assert.Equal(t, "b", cols.SegmentName(1))
	assert.Equal(t, "c", cols.SegmentName(2))
	assert.Equal(t, []uint64{10, 20, 30}, cols.SegmentLengths)
	assert.Empty(t, cols.SegmentSequence(1))

	require.Equal(t, 2, cols.LinkCount())
	assert.Equal(t, genome.Edge{From: genome.NewHandle(0, false), To: genome.NewHandle(1, false)}, cols.Link(0))
	assert.Equal(t, genome.Edge{From: genome.NewHandle(1, false), To: genome.NewHandle(2, false)}, cols.Link(1))

	require.Equal(t, 1, cols.PathCount())
	assert.Equal(t, "p1", cols.PathName(0))
	assert.Equal(t, []genome.Handle{0, 2, 4}, cols.PathSteps[0])

	assert.Equal(t, 3, res.Stats.Segments)
	assert.Equal(t, 2, res.Stats.Links)
	assert.Equal(t, 1, res.Stats.Paths)
	assert.Equal(t, 3, res.Stats.Steps)
	assert.Equal(t, 0, res.Stats.SkippedLines)
}

func TestParse_SequencesAndOrientation(t *testing.T) {
	input := "S\ts1\tACGT\n" +
		"S\ts2\tGG\r\n" +
		"L\ts1\t-\ts2\t+\t*\n" +
		"P\tx\ts2-,s1+\t*\n"

	res, err := parseString(t, input)
	require.NoError(t, err)

	cols := res.Columns
	assert.Equal(t, []byte("ACGT"), cols.SegmentSequence(0))
	assert.Equal(t, []byte("GG"), cols.SegmentSequence(1))
	assert.Equal(t, []uint64{4, 2}, cols.SegmentLengths)
	assert.Equal(t, genome.Edge{From: genome.NewHandle(0, true), To: genome.NewHandle(1, false)}, cols.Link(0))
	assert.Equal(t, []genome.Handle{genome.NewHandle(1, true), genome.NewHandle(0, false)}, cols.PathSteps[0])
}

func TestParse_RecordsBeforeSegments(t *testing.T) {
	// Paths and links may precede the segments they reference.
	input := "P\tp\tb+,a-\t*\n" +
		"L\tb\t+\ta\t-\t0M\n" +
		"S\ta\tA\n" +
		"S\tb\tCC\n"

	res, err := parseString(t, input)
	require.NoError(t, err)
	assert.Equal(t, []genome.Handle{genome.NewHandle(1, false), genome.NewHandle(0, true)}, res.Columns.PathSteps[0])
	assert.Equal(t, 1, res.Columns.LinkCount())
}

func TestParse_SkipsMalformedLines(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"segment too few fields", "S\tonlyname\n"},
		{"segment empty name", "S\t\tACGT\n"},
		{"link too few fields", "L\ta\t+\tb\n"},
		{"link bad orientation", "L\ta\t?\tb\t+\t0M\n"},
		{"path empty steps", "P\tq\t\t*\n"},
		{"path bad token", "P\tq\ta+,b\t*\n"},
		{"path bad orientation", "P\tq\ta+,b*\t*\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := "S\ta\tAC\nS\tb\tGT\n" + tt.line
			res, err := parseString(t, input)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Stats.SkippedLines)
			assert.Equal(t, 2, res.Columns.SegmentCount())
			assert.Equal(t, 0, res.Columns.PathCount())
			assert.Equal(t, 0, res.Columns.LinkCount())
		})
	}
}

func TestParse_IgnoresUnknownRecordTypes(t *testing.T) {
	input := "H\tVN:Z:1.0\n# comment\nW\tsample\t0\tchr1\t0\t2\t>a\nS\ta\tAC\n\n"
	res, err := parseString(t, input)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Columns.SegmentCount())
	assert.Equal(t, 0, res.Stats.SkippedLines)
}

func TestParse_UnknownSegment(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		line   int
		record byte
		field  string
		value  string
	}{
		{
			name:   "link from",
			input:  "S\ta\tA\nL\tzz\t+\ta\t+\t0M\n",
			line:   2,
			record: 'L',
			field:  "from",
			value:  "zz",
		},
		{
			name:   "link to",
			input:  "S\ta\tA\nL\ta\t+\tzz\t+\t0M\n",
			line:   2,
			record: 'L',
			field:  "to",
			value:  "zz",
		},
		{
			name:   "path step",
			input:  "S\ta\tA\nS\tb\tC\nP\tp\ta+,missing-\t*\n",
			line:   3,
			record: 'P',
			field:  "steps",
			value:  "missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := parseString(t, tt.input)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, ErrUnknownSegment))

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.line, pe.Line)
			assert.Equal(t, tt.record, pe.Record)
			assert.Equal(t, tt.field, pe.Field)
			assert.Equal(t, tt.value, pe.Value)
		})
	}
}

func TestParse_StructuralErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"duplicate segment", "S\ta\tA\nS\ta\tC\n", ErrDuplicateSegment},
		{"star without LN", "S\ta\t*\n", ErrEmptySegment},
		{"LN zero", "S\ta\t*\tLN:i:0\n", ErrEmptySegment},
		{"duplicate path", "S\ta\tA\nP\tp\ta+\t*\nP\tp\ta-\t*\n", ErrDuplicatePath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseString(t, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParse_StarSegmentNamesLengthTag(t *testing.T) {
	tests := []struct {
		name  string
		input string
		value string
	}{
		{"tag absent", "S\ta\t*\n", ""},
		{"tag zero", "S\ta\t*\tLN:i:0\n", "0"},
		{"tag not a number", "S\ta\t*\tRC:i:3\tLN:i:x\n", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseString(t, tt.input)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.ErrorIs(t, err, ErrEmptySegment)
			assert.Equal(t, 1, perr.Line)
			assert.Equal(t, "LN", perr.Field)
			assert.Equal(t, tt.value, perr.Value)
			assert.Contains(t, err.Error(), "field LN")
		})
	}

	_, err := parseString(t, "S\ta\t\n")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "sequence", perr.Field)
}

func TestParse_LongLine(t *testing.T) {
	seq := strings.Repeat("ACGT", readerBufferSize/2)
	res, err := parseString(t, "S\tbig\t"+seq+"\n")
	require.NoError(t, err)
	assert.Equal(t, uint64(len(seq)), res.Columns.SegmentLengths[0])
	assert.Equal(t, seq, string(res.Columns.SegmentSequence(0)))
}

func TestParse_NoTrailingNewline(t *testing.T) {
	res, err := parseString(t, "S\ta\tACG")
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, res.Columns.SegmentLengths)
}

func TestParse_Cancelled(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < cancelCheckInterval+1; i++ {
		sb.WriteString("H\tVN:Z:1.0\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Parse(ctx, strings.NewReader(sb.String()))
	assert.ErrorIs(t, err, ErrParseCancelled)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.gfa")
	require.NoError(t, os.WriteFile(path, []byte("S\ta\tA\nL\ta\t+\tb\t+\t0M\n"), 0o644))

	_, err := ParseFile(context.Background(), path)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, path, pe.File)
	assert.Contains(t, err.Error(), path+":line 2")

	_, err = ParseFile(context.Background(), filepath.Join(dir, "missing.gfa"))
	assert.Error(t, err)
}
