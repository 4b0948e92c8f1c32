// File: internal/feed/engine.go
// Brief: Internal feed package implementation for 'engine'.

package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

const (
	// DefaultPageSize is the number of records shown per page.
	DefaultPageSize = 25
	// MinPageSize and MaxPageSize bound ChangePageSize.
	MinPageSize = 1
	MaxPageSize = 500
)

// Engine owns the buffered trace feed for one viewing session.
type Engine struct {
	source      Source
	render      Renderer
	log         logr.Logger
	requestSize int
	budget      int
	minPageSize int
	maxPageSize int
	loader      *Loader
	poller      Poller

	renderMu sync.Mutex

	mu       sync.Mutex
	token    uint64
	state    *LoadState
	filters  FilterSet
	pageSize int
	page     int
	status   Status
	closed   bool
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger logr.Logger) Option {
	return func(e *Engine) {
		e.log = logger
	}
}

// WithRequestSize sets how many records each remote call asks for.
func WithRequestSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.requestSize = n
		}
	}
}

// WithBudget sets how many records a single fill accumulates.
func WithBudget(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.budget = n
		}
	}
}

// WithPageSize sets the initial page size.
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithPageSizeBounds overrides the accepted page-size range.
func WithPageSizeBounds(min, max int) Option {
	return func(e *Engine) {
		if min > 0 && max >= min {
			e.minPageSize = min
			e.maxPageSize = max
		}
	}
}

// New creates an engine in the Empty state.
func New(source Source, render Renderer, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, errors.New("feed: nil source")
	}
	if render == nil {
		render = RenderFunc(func(View) {})
	}
	e := &Engine{
		source:      source,
		render:      render,
		log:         logr.Discard(),
		requestSize: DefaultRequestSize,
		budget:      DefaultBudget,
		minPageSize: MinPageSize,
		maxPageSize: MaxPageSize,
		pageSize:    DefaultPageSize,
		page:        1,
		status:      StatusEmpty,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.pageSize < e.minPageSize || e.pageSize > e.maxPageSize {
		return nil, fmt.Errorf("%w: %d (allowed %d-%d)", ErrInvalidPageSize, e.pageSize, e.minPageSize, e.maxPageSize)
	}
	e.log = e.log.WithName("feed")
	e.loader = NewLoader(source, e.requestSize, e.budget, e.log)
	e.state = NewLoadState(0, BuildQuery(FilterSet{}))
	return e, nil
}

// ApplyFilters discards the buffer, starts a new epoch and renders page 1 of
// the fresh result. Identical filters still trigger a full reload.
func (e *Engine) ApplyFilters(ctx context.Context, filters FilterSet) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.token++
	e.state.Retire()
	st := NewLoadState(e.token, BuildQuery(filters))
	e.state = st
	e.filters = filters
	e.page = 1
	e.status = StatusLoading
	e.mu.Unlock()

	e.log.V(1).Info("applying filters", "token", st.Token(), "query", st.Query().String())
	_, err := e.loader.Fill(ctx, st)
	return e.settle(st, err)
}

// GoToPage renders page n. Pages beyond the buffer are loaded first while the
// remote collection has more; afterwards the page is clamped.
func (e *Engine) GoToPage(ctx context.Context, n int) error {
	st, err := e.current()
	if err != nil {
		return err
	}
	for st.HasMore() && n > TotalPages(st.Len(), e.currentPageSize()) {
		if _, err := e.loader.Fill(ctx, st); err != nil {
			e.setPage(st, n)
			return e.settle(st, err)
		}
	}
	e.setPage(st, n)
	return e.settle(st, nil)
}

// GoToLastPage drains the remote collection and renders the true last page.
func (e *Engine) GoToLastPage(ctx context.Context) error {
	st, err := e.current()
	if err != nil {
		return err
	}
	for st.HasMore() {
		if _, err := e.loader.Fill(ctx, st); err != nil {
			e.setPage(st, TotalPages(st.Len(), e.currentPageSize()))
			return e.settle(st, err)
		}
	}
	e.setPage(st, TotalPages(st.Len(), e.currentPageSize()))
	return e.settle(st, nil)
}

// LoadMore runs one more budgeted fill, keeping the current page.
func (e *Engine) LoadMore(ctx context.Context) error {
	st, err := e.current()
	if err != nil {
		return err
	}
	if !st.HasMore() {
		return nil
	}
	_, err = e.loader.Fill(ctx, st)
	return e.settle(st, err)
}

// LoadAll drains every remaining page into the buffer, keeping the current page.
func (e *Engine) LoadAll(ctx context.Context) error {
	st, err := e.current()
	if err != nil {
		return err
	}
	for st.HasMore() {
		if _, err := e.loader.Fill(ctx, st); err != nil {
			return e.settle(st, err)
		}
	}
	return e.settle(st, nil)
}

// ChangePageSize re-slices the existing buffer without any network call.
// Sizes outside the bounds are rejected and the previous size stays in effect.
func (e *Engine) ChangePageSize(n int) error {
	if n < e.minPageSize || n > e.maxPageSize {
		return fmt.Errorf("%w: %d (allowed %d-%d)", ErrInvalidPageSize, n, e.minPageSize, e.maxPageSize)
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.pageSize = n
	e.page = ComputeWindow(e.state.Len(), n, e.page).CurrentPage
	st := e.state
	render := e.status == StatusReady || e.status == StatusFailed
	e.mu.Unlock()
	if render {
		e.renderState(st, st.Err())
	}
	return nil
}

// StartLive re-applies the current filters now and then every interval.
// Starting while live replaces the previous timer.
func (e *Engine) StartLive(ctx context.Context, interval time.Duration) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	e.log.V(1).Info("live mode on", "interval", interval.String())
	return e.poller.Start(ctx, interval, e.tick)
}

// SetLiveInterval restarts live mode with a new interval and an immediate refresh.
func (e *Engine) SetLiveInterval(interval time.Duration) error {
	return e.poller.SetInterval(interval)
}

// StopLive stops live mode. Safe to call when not live.
func (e *Engine) StopLive() {
	e.poller.Stop()
}

// Close stops live mode and retires the buffer. Later calls return ErrClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.state.Retire()
	e.mu.Unlock()
	e.poller.Stop()
}

// Snapshot returns a consistent view of the engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state
	return Snapshot{
		Status:       e.status,
		Window:       ComputeWindow(st.Len(), e.pageSize, e.page),
		Buffered:     st.Len(),
		HasMore:      st.HasMore(),
		Loading:      st.Loading(),
		Token:        st.Token(),
		Filters:      e.filters,
		Live:         e.poller.Running(),
		LiveInterval: e.poller.Interval(),
		Err:          st.Err(),
	}
}

func (e *Engine) tick(ctx context.Context) {
	e.mu.Lock()
	filters := e.filters
	e.mu.Unlock()
	if err := e.ApplyFilters(ctx, filters); err != nil && !errors.Is(err, ErrClosed) {
		e.log.Info("live refresh failed", "error", err.Error())
	}
}

func (e *Engine) current() (*LoadState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.state, nil
}

func (e *Engine) currentPageSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pageSize
}

// setPage records page n for st. Before the first fill lands the request is
// kept as is and clamped once there is data to clamp against.
func (e *Engine) setPage(st *LoadState, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != st {
		return
	}
	if !st.Filled() {
		if n > 1 {
			e.page = n
		}
		return
	}
	e.page = ComputeWindow(st.Len(), e.pageSize, n).CurrentPage
}

// settle finishes an operation on st: stale results are dropped without any
// visible effect, everything else updates the status and renders.
func (e *Engine) settle(st *LoadState, err error) error {
	switch {
	case errors.Is(err, ErrStaleResult):
		e.log.V(1).Info("dropping stale result", "token", st.Token())
		return nil
	case errors.Is(err, ErrFillInProgress):
		e.log.V(1).Info("fill already running", "token", st.Token())
		return nil
	}
	e.mu.Lock()
	if e.state != st {
		e.mu.Unlock()
		e.log.V(1).Info("dropping stale result", "token", st.Token())
		return nil
	}
	if e.status == StatusEmpty {
		e.mu.Unlock()
		return err
	}
	if err == nil && !st.Filled() {
		// The first fill is still running and will render when it lands.
		e.mu.Unlock()
		return nil
	}
	shown := err
	switch {
	case err == nil && st.Err() != nil && st.Len() == 0 && !st.HasMore():
		// A failed first load stays failed until the next epoch.
		e.status = StatusFailed
		shown = st.Err()
	case err == nil:
		e.status = StatusReady
	case st.Len() == 0 && !st.HasMore():
		e.status = StatusFailed
	default:
		e.status = StatusReady
	}
	e.mu.Unlock()
	if err != nil {
		e.log.Error(err, "trace load failed", "token", st.Token())
	}
	e.renderState(st, shown)
	return err
}

func (e *Engine) renderState(st *LoadState, err error) {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	e.mu.Lock()
	if e.state != st || e.closed {
		e.mu.Unlock()
		return
	}
	window, records := st.window(e.pageSize, e.page)
	e.page = window.CurrentPage
	view := View{
		Records:  records,
		Window:   window,
		Buffered: st.Len(),
		HasMore:  st.HasMore(),
		Status:   e.status,
		Token:    st.Token(),
		Filters:  e.filters,
		Live:     e.poller.Running(),
		Err:      err,
	}
	e.mu.Unlock()
	e.render.Render(view)
}
