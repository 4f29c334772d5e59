// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopLogger(t *testing.T) {
	var l Logger = NoopLogger{}

	// must not panic
	l.Debug("test", "key", "value")
	l.Info("test")
	l.Warn("test", "key", 1)
	l.Error("test", "error", errors.New("x"))
}

func newTextLogger(buf *bytes.Buffer) *SlogAdapter {
	h := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogAdapter(slog.New(h))
}

func TestSlogAdapter(t *testing.T) {
	tests := []struct {
		name      string
		log       func(Logger)
		wantLevel string
		wantMsg   string
		wantKV    string
	}{
		{"debug", func(l Logger) { l.Debug("debug message", "key", "value") }, "DEBUG", "debug message", "key=value"},
		{"info", func(l Logger) { l.Info("info message", "status", "active") }, "INFO", "info message", "status=active"},
		{"warn", func(l Logger) { l.Warn("warning message", "code", 123) }, "WARN", "warning message", "code=123"},
		{"error", func(l Logger) { l.Error("error message", "error", "boom") }, "ERROR", "error message", "error=boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(newTextLogger(&buf))

			out := buf.String()
			assert.Contains(t, out, "level="+tt.wantLevel)
			assert.Contains(t, out, tt.wantMsg)
			assert.Contains(t, out, tt.wantKV)
		})
	}
}

func TestSlogAdapter_NilFallsBackToDefault(t *testing.T) {
	a := NewSlogAdapter(nil)
	assert.NotNil(t, a.logger)
}

func TestQueryLogger_LogQuery(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	ql := NewQueryLogger(NewSlogAdapter(slog.New(h)), nil).With("query_id", "q-1")

	ql.LogQuery(`SELECT * FROM "users" WHERE "password" = $1`, []any{"hunter2"}, "rows_affected", 1)

	out := buf.String()
	assert.Contains(t, out, `"msg":"query executed"`)
	assert.Contains(t, out, `"query_id":"q-1"`)
	assert.Contains(t, out, `"rows_affected":1`)
	assert.Contains(t, out, Mask)
	assert.NotContains(t, out, "hunter2")
}

func TestQueryLogger_LogQueryError(t *testing.T) {
	var buf bytes.Buffer
	ql := NewQueryLogger(newTextLogger(&buf), NewSanitizer())

	ql.LogQueryError(errors.New("relation does not exist"), "SELECT 1", nil)

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "query execution failed")
	assert.Contains(t, out, "relation does not exist")
	assert.Contains(t, out, "params=[]")
}

func TestQueryLogger_LogQuerySlow(t *testing.T) {
	var buf bytes.Buffer
	ql := NewQueryLogger(newTextLogger(&buf), nil)

	ql.LogQuerySlow(1500*time.Millisecond, "SELECT pg_sleep(1.5)", nil)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "slow query")
	assert.Contains(t, out, "duration_ms=1500")
}

func TestQueryLogger_WithDoesNotShareAttrs(t *testing.T) {
	base := NewQueryLogger(nil, nil)
	a := base.With("query_id", "a")
	b := base.With("query_id", "b")

	assert.Equal(t, []any{"query_id", "a"}, a.attrs)
	assert.Equal(t, []any{"query_id", "b"}, b.attrs)
	assert.Empty(t, base.attrs)
}
