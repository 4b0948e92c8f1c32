package feed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"
)

// fakeSource serves a fixed newest-first collection in pages addressed by
// cursors of the form "at:<offset>".
type fakeSource struct {
	mu       sync.Mutex
	records  []TraceRecord
	calls    []fakeCall
	failAt   map[int]error
	gate     chan struct{}
	started  chan struct{}
	override func(call fakeCall) (Page, error, bool)
}

type fakeCall struct {
	Query    Query
	PageSize int
	Cursor   Cursor
}

func newFakeSource(n int) *fakeSource {
	return &fakeSource{records: makeRecords("rec", n), failAt: map[int]error{}}
}

func makeRecords(prefix string, n int) []TraceRecord {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := make([]TraceRecord, n)
	for i := range out {
		out[i] = TraceRecord{
			ID:          fmt.Sprintf("%s-%d", prefix, i+1),
			TypeName:    "Contoso.Plugins.AccountPlugin",
			MessageName: "Update",
			CreatedOn:   base.Add(-time.Duration(i) * time.Second),
		}
	}
	return out
}

func (f *fakeSource) FetchPage(ctx context.Context, query Query, pageSize int, cursor Cursor) (Page, error) {
	f.mu.Lock()
	call := fakeCall{Query: query, PageSize: pageSize, Cursor: cursor}
	f.calls = append(f.calls, call)
	idx := len(f.calls)
	gate := f.gate
	started := f.started
	override := f.override
	failErr := f.failAt[idx]
	records := f.records
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Page{}, ctx.Err()
		}
	}
	if override != nil {
		if page, err, ok := override(call); ok {
			return page, err
		}
	}
	if failErr != nil {
		return Page{}, failErr
	}
	offset := 0
	if cursor != NoCursor {
		v, err := strconv.Atoi(string(cursor)[len("at:"):])
		if err != nil {
			return Page{}, err
		}
		offset = v
	}
	end := offset + pageSize
	if end > len(records) {
		end = len(records)
	}
	page := Page{Records: append([]TraceRecord(nil), records[offset:end]...)}
	if end < len(records) {
		page.NextCursor = Cursor("at:" + strconv.Itoa(end))
	}
	return page, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSource) call(i int) fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

// viewRecorder collects rendered views.
type viewRecorder struct {
	mu    sync.Mutex
	views []View
}

func (r *viewRecorder) Render(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *viewRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func (r *viewRecorder) last(t *testing.T) View {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		t.Fatalf("no view rendered")
	}
	return r.views[len(r.views)-1]
}

var errBackend = errors.New("backend unavailable")

func waitForCondition(t *testing.T, ok func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			t.Fatalf("condition not met before timeout")
		case <-ticker.C:
			if ok() {
				return
			}
		}
	}
}
