// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"context"
	"time"
)

// QueryEvent describes one executed statement.
type QueryEvent struct {
	// QueryID also appears in log lines and on the trace span.
	QueryID string
	SQL     string
	Args    []any
	// Duration is the time spent in the runner.
	Duration time.Duration
	// RowsAffected is the affected row count, or the number of returned
	// records for statements that return rows.
	RowsAffected int64
	Error        error
	// Operation is SELECT, INSERT, UPDATE or DELETE. Soft deletes and
	// restores are updates.
	Operation string
	// Table is the main table, empty for sub-query sources.
	Table string
}

// QueryHook is called after every executed statement, whether it failed
// or not. It runs on the executing goroutine.
//
// Example:
//
//	db, _ := quarry.Open("postgres", dsn,
//	    quarry.WithQueryHook(func(ctx context.Context, e quarry.QueryEvent) {
//	        metrics.Observe(e.Operation, e.Duration)
//	    }))
type QueryHook func(ctx context.Context, event QueryEvent)

func (db *DB) invokeHook(ctx context.Context, event QueryEvent) {
	if db.hook != nil {
		db.hook(ctx, event)
	}
}
