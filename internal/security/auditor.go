// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/coregx/quarry/internal/logger"
)

// AuditLevel selects which statements are audited.
type AuditLevel int

const (
	AuditNone   AuditLevel = iota
	AuditWrites            // INSERT, UPDATE, DELETE
	AuditAll
)

// AuditEvent is one audited statement. Parameter values are never kept,
// only a hash of them.
type AuditEvent struct {
	Timestamp    time.Time
	QueryID      string
	Operation    string
	Table        string
	SQL          string
	ParamsHash   string
	AffectedRows int64
	Duration     time.Duration
	User         string
	RequestID    string
	Err          error
}

// Auditor writes audit events to a Logger.
type Auditor struct {
	logger logger.Logger
	level  AuditLevel
	now    func() time.Time
}

// NewAuditor returns an auditor writing to l at the given level.
func NewAuditor(l logger.Logger, level AuditLevel) *Auditor {
	if l == nil {
		l = logger.NoopLogger{}
	}
	return &Auditor{logger: l, level: level, now: time.Now}
}

// Audits reports whether statements of operation are recorded.
func (a *Auditor) Audits(operation string) bool {
	switch a.level {
	case AuditAll:
		return true
	case AuditWrites:
		return operation == "INSERT" || operation == "UPDATE" || operation == "DELETE"
	}
	return false
}

// Record logs ev if its operation is audited. The user and request id are
// taken from ctx when set with WithUser and WithRequestID; params are
// reduced to a hash.
func (a *Auditor) Record(ctx context.Context, ev AuditEvent, params []any) {
	if !a.Audits(ev.Operation) {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = a.now().UTC()
	}
	ev.User = User(ctx)
	ev.RequestID = RequestID(ctx)
	ev.ParamsHash = HashParams(params)

	args := []any{
		"timestamp", ev.Timestamp,
		"query_id", ev.QueryID,
		"operation", ev.Operation,
		"table", ev.Table,
		"sql", ev.SQL,
		"params_hash", ev.ParamsHash,
		"affected_rows", ev.AffectedRows,
		"duration_ms", ev.Duration.Milliseconds(),
		"user", ev.User,
		"request_id", ev.RequestID,
	}
	if ev.Err != nil {
		a.logger.Warn("audit", append(args, "success", false, "error", ev.Err.Error())...)
		return
	}
	a.logger.Info("audit", append(args, "success", true)...)
}

// HashParams returns a SHA-256 digest of params, or "" for none.
func HashParams(params []any) string {
	if len(params) == 0 {
		return ""
	}
	h := sha256.New()
	for _, p := range params {
		_, _ = fmt.Fprintf(h, "%T:%v;", p, p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

type contextKey string

const (
	userKey      contextKey = "quarry:user"
	requestIDKey contextKey = "quarry:request_id"
)

// WithUser attaches the acting user to ctx for audit events.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// WithRequestID attaches a request id to ctx for audit events.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// User returns the user set with WithUser.
func User(ctx context.Context) string {
	u, _ := ctx.Value(userKey).(string)
	return u
}

// RequestID returns the id set with WithRequestID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
