// File: internal/feed/record.go
// Brief: Internal feed package implementation for 'records and pages'.

// Package feed implements the trace-log retrieval engine behind 'tracefeed logs':
// it fills an in-memory buffer from a cursor-paginated remote collection, pages
// through it locally, re-filters on demand, and refreshes it on a live timer
// while discarding responses that belong to a superseded load.
package feed

import (
	"context"
	"time"
)

// TraceRecord is a single plugin trace row as returned by the remote source.
// The engine treats it as opaque and keeps server ordering.
type TraceRecord struct {
	ID               string        `json:"id"`
	TypeName         string        `json:"typeName"`
	MessageName      string        `json:"messageName"`
	PrimaryEntity    string        `json:"primaryEntity,omitempty"`
	Mode             int           `json:"mode"`
	Depth            int           `json:"depth"`
	Duration         time.Duration `json:"duration"`
	CreatedOn        time.Time     `json:"createdOn"`
	CorrelationID    string        `json:"correlationId,omitempty"`
	MessageBlock     string        `json:"messageBlock,omitempty"`
	ExceptionDetails string        `json:"exceptionDetails,omitempty"`
}

// HasError reports whether the record carries an exception payload.
func (r TraceRecord) HasError() bool {
	return r.ExceptionDetails != ""
}

// Cursor is an opaque continuation token handed out by a Source.
type Cursor string

// NoCursor marks the end of the remote collection.
const NoCursor Cursor = ""

// Page is one response of the remote source.
type Page struct {
	Records    []TraceRecord
	NextCursor Cursor
}

// Source is the only network contract of the engine. A non-empty cursor
// resumes a previous listing; the query is then only advisory.
type Source interface {
	FetchPage(ctx context.Context, query Query, pageSize int, cursor Cursor) (Page, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, query Query, pageSize int, cursor Cursor) (Page, error)

// FetchPage satisfies Source.
func (f SourceFunc) FetchPage(ctx context.Context, query Query, pageSize int, cursor Cursor) (Page, error) {
	return f(ctx, query, pageSize, cursor)
}
