// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gfa parses GFA 1 text into columnar buffers.
//
// The parser streams the input three times, once per record type:
//
//  1. S (segments): assigns node ids in file order and builds the
//     name→node lookup.
//  2. L (links): resolves endpoint names into packed handles.
//  3. P (paths): resolves comma-separated step tokens into handle arrays.
//
// Lines whose tag does not match the current pass are not examined in that
// pass. Malformed lines of the current record type are skipped and counted.
// A reference to an undefined segment aborts the parse with a *ParseError.
//
// Link overlaps and path overlaps are discarded; coordinates derive only
// from segment lengths.
package gfa

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/pangraph/services/pangraph/genome"
)

var tracer = otel.Tracer("pangraph.gfa")

const (
	// readerBufferSize is the bufio buffer size; longer lines are assembled
	// across multiple reads.
	readerBufferSize = 64 * 1024

	// cancelCheckInterval is how many lines are read between context checks.
	cancelCheckInterval = 4096
)

// Stats summarizes a parse.
type Stats struct {
	Segments     int
	Links        int
	Paths        int
	Steps        int
	SkippedLines int
	Duration     time.Duration
}

// Result is the output of Parse.
type Result struct {
	Columns *Columns
	Stats   Stats
}

// Option configures Parse.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	fileName string
}

// WithLogger sets the logger used for per-pass progress lines.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFileName sets the file name reported in ParseError.
func WithFileName(name string) Option {
	return func(o *options) {
		o.fileName = name
	}
}

// parser holds state shared between the three passes.
type parser struct {
	opts     options
	cols     *Columns
	stats    Stats
	segments map[string]genome.Node
	paths    map[string]struct{}
	fields   [][]byte
}

// ParseFile opens path and parses it.
//
// Description:
//
//	Convenience wrapper over Parse that also records the file name in any
//	returned *ParseError.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	path - Path to a GFA file.
//	opts - Parse options.
//
// Outputs:
//
//	*Result - Columns and statistics.
//	error - I/O failure, *ParseError, or ErrParseCancelled.
func ParseFile(ctx context.Context, path string, opts ...Option) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gfa: %w", err)
	}
	defer f.Close()

	opts = append([]Option{WithFileName(path)}, opts...)
	return Parse(ctx, f, opts...)
}

// Parse reads a GFA stream into Columns.
//
// Description:
//
//	Performs three sequential passes over r, seeking back to the start
//	between passes. The stream must be positioned at the start of the file.
//	Nothing is returned on error: a failed ingestion yields no partial graph.
//
// Inputs:
//
//	ctx - Context for cancellation, checked every 4096 lines.
//	r - Seekable GFA stream.
//	opts - Parse options.
//
// Outputs:
//
//	*Result - Columns and statistics.
//	error - I/O failure, *ParseError, or ErrParseCancelled.
//
// Thread Safety: Parse has no shared state; concurrent calls on different
// readers are safe.
func Parse(ctx context.Context, r io.ReadSeeker, opts ...Option) (*Result, error) {
	ctx, span := tracer.Start(ctx, "gfa.Parse")
	defer span.End()

	p := &parser{
		cols:     NewColumns(),
		segments: make(map[string]genome.Node),
		paths:    make(map[string]struct{}),
		fields:   make([][]byte, 0, 16),
	}
	for _, opt := range opts {
		opt(&p.opts)
	}
	if p.opts.logger == nil {
		p.opts.logger = slog.Default()
	}

	start := time.Now()
	passes := []struct {
		tag    byte
		name   string
		handle func(line int, fields [][]byte) error
	}{
		{'S', "segments", p.segmentLine},
		{'L', "links", p.linkLine},
		{'P', "paths", p.pathLine},
	}

	for _, pass := range passes {
		skippedBefore := p.stats.SkippedLines
		if err := p.pass(ctx, r, pass.tag, pass.handle); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		p.opts.logger.Info("gfa pass complete",
			slog.String("pass", pass.name),
			slog.Int("segments", p.stats.Segments),
			slog.Int("links", p.stats.Links),
			slog.Int("paths", p.stats.Paths),
			slog.Int("skipped", p.stats.SkippedLines-skippedBefore),
		)
	}

	p.stats.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("gfa.segments", p.stats.Segments),
		attribute.Int("gfa.links", p.stats.Links),
		attribute.Int("gfa.paths", p.stats.Paths),
		attribute.Int("gfa.skipped_lines", p.stats.SkippedLines),
	)

	return &Result{Columns: p.cols, Stats: p.stats}, nil
}

// pass runs one sweep over the stream, dispatching lines tagged tag.
func (p *parser) pass(ctx context.Context, r io.ReadSeeker, tag byte, handle func(int, [][]byte) error) error {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek gfa stream: %w", err)
	}

	br := bufio.NewReaderSize(r, readerBufferSize)
	var buf []byte
	lineNo := 0

	for {
		line, err := readLine(br, buf)
		buf = line[:0]
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read gfa line %d: %w", lineNo+1, err)
		}
		lineNo++

		if lineNo%cancelCheckInterval == 0 {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrParseCancelled, ctx.Err())
			}
		}

		if len(line) < 2 || line[0] != tag || line[1] != '\t' {
			continue
		}

		p.fields = splitTabs(line, p.fields[:0])
		if err := handle(lineNo, p.fields); err != nil {
			return err
		}
	}
}

// segmentLine handles "S name seq [tags...]".
func (p *parser) segmentLine(line int, fields [][]byte) error {
	if len(fields) < 3 || len(fields[1]) == 0 {
		p.stats.SkippedLines++
		return nil
	}
	name, seq := fields[1], fields[2]

	var length uint64
	if bytes.Equal(seq, []byte("*")) {
		seq = nil
		length = lengthTag(fields[3:])
		if length == 0 {
			// "*" takes its length from LN, so point at the tag.
			return p.errorf(line, 'S', "LN", string(rawLengthTag(fields[3:])), ErrEmptySegment)
		}
	} else {
		length = uint64(len(seq))
	}

	if length == 0 {
		return p.errorf(line, 'S', "sequence", string(fields[2]), ErrEmptySegment)
	}

	key := string(name)
	if _, dup := p.segments[key]; dup {
		return p.errorf(line, 'S', "name", key, ErrDuplicateSegment)
	}

	p.segments[key] = genome.Node(p.cols.SegmentCount())
	p.cols.appendSegment(name, seq, length)
	p.stats.Segments++
	return nil
}

// linkLine handles "L from from_orient to to_orient overlap [tags...]".
func (p *parser) linkLine(line int, fields [][]byte) error {
	if len(fields) < 5 {
		p.stats.SkippedLines++
		return nil
	}

	fromRev, ok1 := parseOrient(fields[2])
	toRev, ok2 := parseOrient(fields[4])
	if !ok1 || !ok2 {
		p.stats.SkippedLines++
		return nil
	}

	from, ok := p.segments[string(fields[1])]
	if !ok {
		return p.errorf(line, 'L', "from", string(fields[1]), ErrUnknownSegment)
	}
	to, ok := p.segments[string(fields[3])]
	if !ok {
		return p.errorf(line, 'L', "to", string(fields[3]), ErrUnknownSegment)
	}

	p.cols.appendLink(genome.NewHandle(from, fromRev), genome.NewHandle(to, toRev))
	p.stats.Links++
	return nil
}

// pathLine handles "P name seg+,seg-,... overlaps [tags...]".
func (p *parser) pathLine(line int, fields [][]byte) error {
	if len(fields) < 3 || len(fields[1]) == 0 || len(fields[2]) == 0 {
		p.stats.SkippedLines++
		return nil
	}

	tokens := bytes.Split(fields[2], []byte{','})
	steps := make([]genome.Handle, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok) < 2 {
			p.stats.SkippedLines++
			return nil
		}
		rev, ok := parseOrient(tok[len(tok)-1:])
		if !ok {
			p.stats.SkippedLines++
			return nil
		}
		segName := tok[:len(tok)-1]
		node, ok := p.segments[string(segName)]
		if !ok {
			return p.errorf(line, 'P', "steps", string(segName), ErrUnknownSegment)
		}
		steps = append(steps, genome.NewHandle(node, rev))
	}

	name := string(fields[1])
	if _, dup := p.paths[name]; dup {
		return p.errorf(line, 'P', "name", name, ErrDuplicatePath)
	}
	p.paths[name] = struct{}{}

	p.cols.appendPath(fields[1], steps)
	p.stats.Paths++
	p.stats.Steps += len(steps)
	return nil
}

func (p *parser) errorf(line int, record byte, field, value string, err error) error {
	return &ParseError{
		File:   p.opts.fileName,
		Line:   line,
		Record: record,
		Field:  field,
		Value:  value,
		Err:    err,
	}
}

// readLine reads one line into buf, without the trailing newline.
// Lines longer than the reader's buffer are assembled across reads.
func readLine(br *bufio.Reader, buf []byte) ([]byte, error) {
	buf = buf[:0]
	for {
		chunk, err := br.ReadSlice('\n')
		buf = append(buf, chunk...)
		switch {
		case err == bufio.ErrBufferFull:
			continue
		case err == io.EOF && len(buf) > 0:
			return trimEOL(buf), nil
		case err != nil:
			return buf, err
		}
		return trimEOL(buf), nil
	}
}

func trimEOL(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	return b
}

// splitTabs splits line on tabs, reusing dst. Returned fields alias line.
func splitTabs(line []byte, dst [][]byte) [][]byte {
	for {
		i := bytes.IndexByte(line, '\t')
		if i < 0 {
			return append(dst, line)
		}
		dst = append(dst, line[:i])
		line = line[i+1:]
	}
}

func parseOrient(b []byte) (reverse bool, ok bool) {
	if len(b) != 1 {
		return false, false
	}
	switch b[0] {
	case '+':
		return false, true
	case '-':
		return true, true
	default:
		return false, false
	}
}

// lengthTag returns the value of an "LN:i:<n>" tag, or 0.
func lengthTag(tags [][]byte) uint64 {
	raw := rawLengthTag(tags)
	if raw == nil {
		return 0
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// rawLengthTag returns the value of the first LN:i: tag, nil when absent.
func rawLengthTag(tags [][]byte) []byte {
	for _, tag := range tags {
		if len(tag) > 5 && bytes.HasPrefix(tag, []byte("LN:i:")) {
			return tag[5:]
		}
	}
	return nil
}
