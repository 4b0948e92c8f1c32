// File: internal/feed/loader.go
// Brief: Internal feed package implementation for 'batch loader'.

package feed

import (
	"context"
	"errors"

	"github.com/go-logr/logr"
)

const (
	// DefaultRequestSize is the number of records asked for per remote call.
	DefaultRequestSize = 250
	// DefaultBudget is the number of records one fill accumulates before yielding.
	DefaultBudget = 1000
)

var errCursorStalled = errors.New("source returned the cursor it was given")

// Batch summarizes one Fill call.
type Batch struct {
	Records  []TraceRecord
	Cursor   Cursor
	HasMore  bool
	Requests int
}

// Loader pulls fixed-size pages from a Source into a LoadState.
type Loader struct {
	source      Source
	requestSize int
	budget      int
	log         logr.Logger
}

// NewLoader returns a loader; non-positive sizes fall back to the defaults.
func NewLoader(source Source, requestSize, budget int, logger logr.Logger) *Loader {
	if requestSize <= 0 {
		requestSize = DefaultRequestSize
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Loader{
		source:      source,
		requestSize: requestSize,
		budget:      budget,
		log:         logger.WithName("loader"),
	}
}

// Fill requests pages in cursor order until the budget is reached while more
// data remains, or the source runs out. It resumes from the state's cursor and
// appends to the state only while the state is current.
//
// A second Fill on the same state while one is running returns
// ErrFillInProgress without touching the network.
func (l *Loader) Fill(ctx context.Context, st *LoadState) (Batch, error) {
	if !st.guard.TryAcquire(1) {
		return Batch{}, ErrFillInProgress
	}
	defer st.guard.Release(1)

	cursor, resume, done, err := st.begin()
	if err != nil {
		return Batch{}, err
	}
	if done {
		return Batch{}, nil
	}

	var batch Batch
	batch.Cursor = cursor
	for {
		page, err := l.source.FetchPage(ctx, st.Query(), l.requestSize, cursor)
		if err != nil {
			l.log.V(1).Info("fetch failed", "token", st.Token(), "requests", batch.Requests+1, "error", err.Error())
			return l.abort(st, resume, batch, err)
		}
		if page.NextCursor != NoCursor && page.NextCursor == cursor {
			return l.abort(st, resume, batch, errCursorStalled)
		}
		batch.Requests++
		batch.Records = append(batch.Records, page.Records...)
		cursor = page.NextCursor
		batch.Cursor = cursor
		if cursor == NoCursor {
			batch.HasMore = false
			break
		}
		if len(batch.Records) >= l.budget {
			batch.HasMore = true
			break
		}
		if err := ctx.Err(); err != nil {
			return l.abort(st, resume, batch, err)
		}
	}
	l.log.V(1).Info("fill complete", "token", st.Token(), "records", len(batch.Records), "requests", batch.Requests, "hasMore", batch.HasMore)
	if err := st.commit(batch.Records, batch.Cursor, batch.HasMore, nil); err != nil {
		return Batch{}, err
	}
	return batch, nil
}

// abort records a failed fill. An initial fill leaves the state empty; a resumed
// fill keeps what was fetched before the failure together with its cursor.
func (l *Loader) abort(st *LoadState, resume bool, batch Batch, cause error) (Batch, error) {
	netErr := &NetworkError{Op: "fetch trace page", Err: cause}
	if !resume {
		if err := st.fail(netErr); err != nil {
			return Batch{}, err
		}
		return Batch{}, netErr
	}
	batch.HasMore = true
	if err := st.commit(batch.Records, batch.Cursor, true, netErr); err != nil {
		return Batch{}, err
	}
	return batch, netErr
}
