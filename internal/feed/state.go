package feed

import (
	"slices"
	"sync"

	"golang.org/x/sync/semaphore"
)

// LoadState is one generation of buffered data. It is created when filters are
// applied (or a live tick fires) and retired wholesale when the next one starts.
type LoadState struct {
	token uint64
	query Query
	guard *semaphore.Weighted

	mu      sync.Mutex
	buffer  []TraceRecord
	cursor  Cursor
	hasMore bool
	filled  bool
	loading bool
	retired bool
	err     error
}

// NewLoadState returns an empty state for the given epoch and query.
func NewLoadState(token uint64, query Query) *LoadState {
	return &LoadState{
		token: token,
		query: query,
		guard: semaphore.NewWeighted(1),
	}
}

// Token returns the epoch this state belongs to.
func (s *LoadState) Token() uint64 { return s.token }

// Query returns the query the state was built from.
func (s *LoadState) Query() Query { return s.query }

// Len returns the number of buffered records.
func (s *LoadState) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// HasMore reports whether records exist beyond the buffer.
func (s *LoadState) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Loading reports whether a fill is running.
func (s *LoadState) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Filled reports whether the first fill of this epoch has finished.
func (s *LoadState) Filled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filled
}

// Err returns the last fill error recorded for this state.
func (s *LoadState) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Records returns a copy of the buffered records.
func (s *LoadState) Records() []TraceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.buffer)
}

// Retire marks the state as superseded. Later appends are rejected.
func (s *LoadState) Retire() {
	s.mu.Lock()
	s.retired = true
	s.mu.Unlock()
}

// Retired reports whether a newer epoch replaced this state.
func (s *LoadState) Retired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retired
}

func (s *LoadState) window(pageSize, page int) (PageWindow, []TraceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := ComputeWindow(len(s.buffer), pageSize, page)
	return w, slices.Clone(Slice(s.buffer, w))
}

// begin reports where a fill should start. done is true when the collection is
// already exhausted and there is nothing to fetch.
func (s *LoadState) begin() (cursor Cursor, resume bool, done bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired {
		return NoCursor, false, false, ErrStaleResult
	}
	if s.filled && !s.hasMore {
		return NoCursor, true, true, nil
	}
	s.loading = true
	return s.cursor, s.filled, false, nil
}

func (s *LoadState) commit(records []TraceRecord, cursor Cursor, hasMore bool, fillErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if s.retired {
		return ErrStaleResult
	}
	s.buffer = append(s.buffer, records...)
	s.cursor = cursor
	s.hasMore = hasMore
	s.filled = true
	s.err = fillErr
	return nil
}

// fail records an initial fill failure: the buffer stays empty and the state is
// terminal for its epoch.
func (s *LoadState) fail(fillErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if s.retired {
		return ErrStaleResult
	}
	s.buffer = nil
	s.cursor = NoCursor
	s.hasMore = false
	s.filled = true
	s.err = fillErr
	return nil
}
