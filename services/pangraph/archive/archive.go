// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive persists parsed GFA columns in a BadgerDB directory.
//
// # Layout
//
//	meta                        JSON Meta (format version, counts, creation time)
//	len/<column>                byte length of the column, uint64 LE
//	col/<column>/<chunk>        column bytes, split into chunks; chunk index
//	                            is uint64 big-endian so keys sort numerically
//
// Columns are segment_names, segment_name_offsets, segment_sequences,
// segment_sequence_offsets, segment_lengths, link_from, link_to, path_names,
// path_name_offsets, path_step_counts and path_steps/<id> per path.
// Integers are fixed-width little-endian: uint64 for offsets and lengths,
// uint32 for packed handles. Reading back yields byte-identical columns.
package archive

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/pangraph/services/pangraph/genome"
	"github.com/AleutianAI/pangraph/services/pangraph/gfa"
)

var tracer = otel.Tracer("pangraph.archive")

// FormatVersion is the archive layout version written by this package.
const FormatVersion = 1

// DefaultChunkSize is the maximum bytes stored under one column key.
const DefaultChunkSize = 4 << 20

const (
	colSegmentNames       = "segment_names"
	colSegmentNameOffsets = "segment_name_offsets"
	colSegmentSequences   = "segment_sequences"
	colSegmentSeqOffsets  = "segment_sequence_offsets"
	colSegmentLengths     = "segment_lengths"
	colLinkFrom           = "link_from"
	colLinkTo             = "link_to"
	colPathNames          = "path_names"
	colPathNameOffsets    = "path_name_offsets"
	colPathStepCounts     = "path_step_counts"
)

var metaKey = []byte("meta")

// Meta describes an archive.
type Meta struct {
	Version   int       `json:"version"`
	Segments  int       `json:"segments"`
	Links     int       `json:"links"`
	Paths     int       `json:"paths"`
	Steps     int       `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
}

// Option configures Write and Read.
type Option func(*archiveOptions)

type archiveOptions struct {
	chunkSize int
	config    Config
}

// WithChunkSize overrides the column chunk size.
func WithChunkSize(n int) Option {
	return func(o *archiveOptions) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithConfig overrides the database configuration used by Write and Read.
// The directory argument still sets Config.Path.
func WithConfig(cfg Config) Option {
	return func(o *archiveOptions) {
		o.config = cfg
	}
}

func applyOptions(dir string, readOnly bool, opts []Option) archiveOptions {
	o := archiveOptions{chunkSize: DefaultChunkSize, config: DefaultConfig(dir)}
	for _, opt := range opts {
		opt(&o)
	}
	o.config.Path = dir
	o.config.ReadOnly = readOnly
	return o
}

// Write stores cols as an archive in dir, replacing any previous archive.
func Write(ctx context.Context, dir string, cols *gfa.Columns, opts ...Option) error {
	o := applyOptions(dir, false, opts)
	db, err := Open(o.config)
	if err != nil {
		return err
	}
	if err := WriteDB(ctx, db, cols, opts...); err != nil {
		db.Close()
		return err
	}
	return db.Close()
}

// Read loads the archive in dir.
func Read(ctx context.Context, dir string, opts ...Option) (*gfa.Columns, *Meta, error) {
	o := applyOptions(dir, true, opts)
	db, err := Open(o.config)
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()
	return ReadDB(ctx, db)
}

// Stat returns the metadata of the archive in dir without loading columns.
func Stat(dir string) (*Meta, error) {
	db, err := Open(Config{Path: dir, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var meta *Meta
	err = db.View(func(txn *badger.Txn) error {
		meta, err = readMeta(txn)
		return err
	})
	return meta, err
}

// WriteDB stores cols in an open database.
//
// Description:
//
//	Any previous archive keys are dropped first. Columns are written through
//	a badger WriteBatch, with metadata written last so a partially written
//	archive is never mistaken for a complete one.
//
// Inputs:
//
//	ctx - Context for cancellation, checked between columns.
//	db - Open database.
//	cols - Columns to store.
//	opts - WithChunkSize is honoured; WithConfig is ignored.
//
// Outputs:
//
//	error - Non-nil on cancellation or database failure.
func WriteDB(ctx context.Context, db *badger.DB, cols *gfa.Columns, opts ...Option) (err error) {
	o := applyOptions("", false, opts)

	ctx, span := tracer.Start(ctx, "archive.Write")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if hasMeta(db) {
		if err := db.DropPrefix([]byte("meta"), []byte("len/"), []byte("col/")); err != nil {
			return fmt.Errorf("drop previous archive: %w", err)
		}
	}

	wb := db.NewWriteBatch()
	defer wb.Cancel()

	stepCounts := make([]uint64, cols.PathCount())
	for i, steps := range cols.PathSteps {
		stepCounts[i] = uint64(len(steps))
	}

	columns := []struct {
		name string
		data []byte
	}{
		{colSegmentNames, cols.SegmentNames},
		{colSegmentNameOffsets, encodeUint64s(cols.SegmentNameOffsets)},
		{colSegmentSequences, cols.SegmentSequences},
		{colSegmentSeqOffsets, encodeUint64s(cols.SegmentSequenceOffsets)},
		{colSegmentLengths, encodeUint64s(cols.SegmentLengths)},
		{colLinkFrom, encodeHandles(cols.LinkFrom)},
		{colLinkTo, encodeHandles(cols.LinkTo)},
		{colPathNames, cols.PathNames},
		{colPathNameOffsets, encodeUint64s(cols.PathNameOffsets)},
		{colPathStepCounts, encodeUint64s(stepCounts)},
	}

	var written int
	for _, c := range columns {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := writeColumn(wb, c.name, c.data, o.chunkSize); err != nil {
			return err
		}
		written += len(c.data)
	}

	for i, steps := range cols.PathSteps {
		if i%1024 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		data := encodeHandles(steps)
		if err := writeColumn(wb, pathStepsColumn(i), data, o.chunkSize); err != nil {
			return err
		}
		written += len(data)
	}

	meta := Meta{
		Version:   FormatVersion,
		Segments:  cols.SegmentCount(),
		Links:     cols.LinkCount(),
		Paths:     cols.PathCount(),
		Steps:     cols.StepCount(),
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode archive meta: %w", err)
	}
	if err := wb.Set(metaKey, raw); err != nil {
		return fmt.Errorf("write archive meta: %w", err)
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}

	span.SetAttributes(
		attribute.Int("archive.segments", meta.Segments),
		attribute.Int("archive.paths", meta.Paths),
		attribute.Int("archive.bytes", written),
	)
	return nil
}

// ReadDB loads columns from an open database.
//
// Outputs:
//
//	*gfa.Columns - Columns identical to those written.
//	*Meta - Archive metadata.
//	error - ErrNotArchive, ErrVersionMismatch, ErrCorruptArchive or a
//	        database error.
func ReadDB(ctx context.Context, db *badger.DB) (cols *gfa.Columns, meta *Meta, err error) {
	ctx, span := tracer.Start(ctx, "archive.Read")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	err = db.View(func(txn *badger.Txn) error {
		var err error
		meta, err = readMeta(txn)
		if err != nil {
			return err
		}
		cols, err = readColumns(ctx, txn, meta)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	span.SetAttributes(
		attribute.Int("archive.segments", meta.Segments),
		attribute.Int("archive.paths", meta.Paths),
	)
	return cols, meta, nil
}

func hasMeta(db *badger.DB) bool {
	err := db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(metaKey)
		return err
	})
	return err == nil
}

func readMeta(txn *badger.Txn) (*Meta, error) {
	item, err := txn.Get(metaKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotArchive
	}
	if err != nil {
		return nil, fmt.Errorf("read archive meta: %w", err)
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("read archive meta: %w", err)
	}

	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: meta: %v", ErrCorruptArchive, err)
	}
	if meta.Version != FormatVersion {
		return nil, fmt.Errorf("%w: archive version %d, expected %d", ErrVersionMismatch, meta.Version, FormatVersion)
	}
	return &meta, nil
}

func readColumns(ctx context.Context, txn *badger.Txn, meta *Meta) (*gfa.Columns, error) {
	cols := &gfa.Columns{}
	var err error

	bytesCol := func(name string) []byte {
		if err != nil {
			return nil
		}
		var data []byte
		data, err = readColumn(txn, name)
		return data
	}
	u64Col := func(name string, want int) []uint64 {
		data := bytesCol(name)
		if err != nil {
			return nil
		}
		var v []uint64
		v, err = decodeUint64s(name, data, want)
		return v
	}
	handleCol := func(name string, want int) []genome.Handle {
		data := bytesCol(name)
		if err != nil {
			return nil
		}
		var v []genome.Handle
		v, err = decodeHandles(name, data, want)
		return v
	}

	cols.SegmentNames = bytesCol(colSegmentNames)
	cols.SegmentNameOffsets = u64Col(colSegmentNameOffsets, meta.Segments+1)
	cols.SegmentSequences = bytesCol(colSegmentSequences)
	cols.SegmentSequenceOffsets = u64Col(colSegmentSeqOffsets, meta.Segments+1)
	cols.SegmentLengths = u64Col(colSegmentLengths, meta.Segments)
	cols.LinkFrom = handleCol(colLinkFrom, meta.Links)
	cols.LinkTo = handleCol(colLinkTo, meta.Links)
	cols.PathNames = bytesCol(colPathNames)
	cols.PathNameOffsets = u64Col(colPathNameOffsets, meta.Paths+1)
	stepCounts := u64Col(colPathStepCounts, meta.Paths)
	if err != nil {
		return nil, err
	}

	cols.PathSteps = make([][]genome.Handle, meta.Paths)
	for i := range cols.PathSteps {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		cols.PathSteps[i] = handleCol(pathStepsColumn(i), int(stepCounts[i]))
		if err != nil {
			return nil, err
		}
	}

	if got := cols.StepCount(); got != meta.Steps {
		return nil, fmt.Errorf("%w: %d steps, meta records %d", ErrCorruptArchive, got, meta.Steps)
	}
	if err := cols.CheckOffsets(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptArchive, err)
	}
	return cols, nil
}

func pathStepsColumn(id int) string {
	return fmt.Sprintf("path_steps/%010d", id)
}

func lenKey(name string) []byte {
	return []byte("len/" + name)
}

func chunkPrefix(name string) []byte {
	return []byte("col/" + name + "/")
}

func chunkKey(name string, chunk uint64) []byte {
	return binary.BigEndian.AppendUint64(chunkPrefix(name), chunk)
}

func writeColumn(wb *badger.WriteBatch, name string, data []byte, chunkSize int) error {
	if err := wb.Set(lenKey(name), binary.LittleEndian.AppendUint64(nil, uint64(len(data)))); err != nil {
		return fmt.Errorf("write column %s length: %w", name, err)
	}
	var chunk uint64
	for off := 0; off < len(data); off += chunkSize {
		end := min(off+chunkSize, len(data))
		if err := wb.Set(chunkKey(name, chunk), data[off:end]); err != nil {
			return fmt.Errorf("write column %s chunk %d: %w", name, chunk, err)
		}
		chunk++
	}
	return nil
}

func readColumn(txn *badger.Txn, name string) ([]byte, error) {
	item, err := txn.Get(lenKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: missing column %s", ErrCorruptArchive, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read column %s: %w", name, err)
	}
	var want uint64
	if err := item.Value(func(v []byte) error {
		if len(v) != 8 {
			return fmt.Errorf("%w: column %s length key", ErrCorruptArchive, name)
		}
		want = binary.LittleEndian.Uint64(v)
		return nil
	}); err != nil {
		return nil, err
	}

	prefix := chunkPrefix(name)
	itOpts := badger.DefaultIteratorOptions
	itOpts.Prefix = prefix
	it := txn.NewIterator(itOpts)
	defer it.Close()

	data := make([]byte, 0, want)
	var expect uint64
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().Key()
		if chunk := binary.BigEndian.Uint64(key[len(prefix):]); chunk != expect {
			return nil, fmt.Errorf("%w: column %s missing chunk %d", ErrCorruptArchive, name, expect)
		}
		expect++
		if err := it.Item().Value(func(v []byte) error {
			data = append(data, v...)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("read column %s: %w", name, err)
		}
	}

	if uint64(len(data)) != want {
		return nil, fmt.Errorf("%w: column %s has %d bytes, expected %d", ErrCorruptArchive, name, len(data), want)
	}
	return data, nil
}

func encodeUint64s(v []uint64) []byte {
	out := make([]byte, 0, 8*len(v))
	for _, x := range v {
		out = binary.LittleEndian.AppendUint64(out, x)
	}
	return out
}

func decodeUint64s(name string, data []byte, want int) ([]uint64, error) {
	if len(data) != 8*want {
		return nil, fmt.Errorf("%w: column %s has %d bytes for %d values", ErrCorruptArchive, name, len(data), want)
	}
	out := make([]uint64, want)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(data[8*i:])
	}
	return out, nil
}

func encodeHandles(v []genome.Handle) []byte {
	out := make([]byte, 0, 4*len(v))
	for _, h := range v {
		out = binary.LittleEndian.AppendUint32(out, uint32(h))
	}
	return out
}

func decodeHandles(name string, data []byte, want int) ([]genome.Handle, error) {
	if len(data) != 4*want {
		return nil, fmt.Errorf("%w: column %s has %d bytes for %d handles", ErrCorruptArchive, name, len(data), want)
	}
	out := make([]genome.Handle, want)
	for i := range out {
		out[i] = genome.Handle(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out, nil
}

// EncodeHandles returns handles as little-endian uint32s, the wire form used
// for raw path step downloads.
func EncodeHandles(v []genome.Handle) []byte {
	return encodeHandles(v)
}
