// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logger

import "time"

// QueryLogger logs executed statements with their parameters masked by a
// Sanitizer. Attributes added through With are appended to every line.
type QueryLogger struct {
	logger    Logger
	sanitizer *Sanitizer
	attrs     []any
}

// NewQueryLogger returns a QueryLogger writing to l. Nil arguments fall back
// to NoopLogger and a default Sanitizer.
func NewQueryLogger(l Logger, s *Sanitizer) *QueryLogger {
	if l == nil {
		l = NoopLogger{}
	}
	if s == nil {
		s = NewSanitizer()
	}
	return &QueryLogger{logger: l, sanitizer: s}
}

// With returns a copy that adds args to every logged line.
func (q *QueryLogger) With(args ...any) *QueryLogger {
	attrs := make([]any, 0, len(q.attrs)+len(args))
	attrs = append(attrs, q.attrs...)
	attrs = append(attrs, args...)
	return &QueryLogger{logger: q.logger, sanitizer: q.sanitizer, attrs: attrs}
}

func (q *QueryLogger) line(sql string, params []any, extra ...any) []any {
	out := make([]any, 0, 4+len(extra)+len(q.attrs))
	out = append(out, "sql", sql, "params", q.sanitizer.FormatParams(q.sanitizer.MaskParams(sql, params)))
	out = append(out, extra...)
	return append(out, q.attrs...)
}

// LogQuery records a successfully executed statement.
func (q *QueryLogger) LogQuery(sql string, params []any, extra ...any) {
	q.logger.Info("query executed", q.line(sql, params, extra...)...)
}

// LogQueryError records a statement that failed.
func (q *QueryLogger) LogQueryError(err error, sql string, params []any, extra ...any) {
	extra = append([]any{"error", err}, extra...)
	q.logger.Error("query execution failed", q.line(sql, params, extra...)...)
}

// LogQuerySlow records a statement that ran longer than the slow query
// threshold.
func (q *QueryLogger) LogQuerySlow(elapsed time.Duration, sql string, params []any, extra ...any) {
	extra = append([]any{"duration_ms", elapsed.Milliseconds()}, extra...)
	q.logger.Warn("slow query", q.line(sql, params, extra...)...)
}
