// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warning ", LevelWarn, false},
		{"Error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestNew_LevelFilterAndService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Service: "pangraph-test", Output: &buf, Format: FormatJSON})

	logger.Info("dropped")
	logger.Warn("kept", "segments", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "pangraph-test", rec["service"])
	assert.EqualValues(t, 3, rec["segments"])
}

func TestNew_FormatAutoNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Output: &buf}).Info("hello")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "non-file writers get JSON")

	buf.Reset()
	New(Config{Output: &buf, Format: FormatText}).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Format: FormatText})
	logger.With("handler", "HandleSample").Info("sampled")
	assert.Contains(t, buf.String(), "handler=HandleSample")
	assert.Same(t, logger.Slog(), logger.Slog())
}

func TestFileLogging(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger := New(Config{LogDir: dir, Service: "pangraph", Quiet: true})
	logger.Info("to file", "paths", 2)
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	name := "pangraph_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
	assert.Contains(t, string(data), `"paths":2`)
}

func TestQuietWithoutFile(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Quiet: true, Output: &buf})
	logger.Error("nowhere")
	assert.Zero(t, buf.Len())
	assert.NoError(t, logger.Close())
}
