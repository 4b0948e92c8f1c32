package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, src Source, rec Renderer, opts ...Option) *Engine {
	t.Helper()
	e, err := New(src, rec, opts...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func TestApplyFiltersRendersFirstPage(t *testing.T) {
	src := newFakeSource(37)
	rec := &viewRecorder{}
	e := newTestEngine(t, src, rec)

	if err := e.ApplyFilters(context.Background(), FilterSet{TypeNameContains: "Account"}); err != nil {
		t.Fatalf("ApplyFilters: %v", err)
	}
	view := rec.last(t)
	if view.Status != StatusReady {
		t.Fatalf("expected ready, got %s", view.Status)
	}
	if view.Window != (PageWindow{PageSize: 25, CurrentPage: 1, TotalPages: 2}) {
		t.Fatalf("unexpected window %+v", view.Window)
	}
	if len(view.Records) != 25 || view.Records[0].ID != "rec-1" {
		t.Fatalf("unexpected first page: %d records", len(view.Records))
	}
	if !strings.Contains(src.call(0).Query.Filter, "contains(typename,'Account')") {
		t.Fatalf("filters were not turned into a query: %q", src.call(0).Query.Filter)
	}
}

func TestGoToPageScenario(t *testing.T) {
	src := newFakeSource(37)
	rec := &viewRecorder{}
	e := newTestEngine(t, src, rec)
	ctx := context.Background()
	if err := e.ApplyFilters(ctx, FilterSet{}); err != nil {
		t.Fatalf("ApplyFilters: %v", err)
	}

	if err := e.GoToPage(ctx, 2); err != nil {
		t.Fatalf("GoToPage(2): %v", err)
	}
	view := rec.last(t)
	if len(view.Records) != 12 || view.Records[0].ID != "rec-26" || view.Records[11].ID != "rec-37" {
		t.Fatalf("page 2 should hold records 26-37, got %d", len(view.Records))
	}

	if err := e.GoToPage(ctx, 3); err != nil {
		t.Fatalf("GoToPage(3): %v", err)
	}
	view = rec.last(t)
	if view.Window.CurrentPage != 2 || view.HasMore {
		t.Fatalf("page 3 should clamp to 2 once exhausted, got %+v hasMore=%t", view.Window, view.HasMore)
	}
	if src.callCount() != 1 {
		t.Fatalf("no further requests expected, got %d", src.callCount())
	}
}

func TestGoToPageBeyondBufferLoadsMore(t *testing.T) {
	src := newFakeSource(1100)
	rec := &viewRecorder{}
	e := newTestEngine(t, src, rec, WithPageSize(100))
	ctx := context.Background()
	if err := e.ApplyFilters(ctx, FilterSet{}); err != nil {
		t.Fatalf("ApplyFilters: %v", err)
	}
	if snap := e.Snapshot(); snap.Buffered != 1000 || !snap.HasMore {
		t.Fatalf("expected a budgeted first fill, got %+v", snap)
	}
	if err := e.GoToPage(ctx, 11); err != nil {
		t.Fatalf("GoToPage: %v", err)
	}
	view := rec.last(t)
	if view.Window.CurrentPage != 11 || view.Window.TotalPages != 11 {
		t.Fatalf("expected page 11 of 11, got %+v", view.Window)
	}
	if view.Buffered != 1100 || view.HasMore {
		t.Fatalf("expected drained buffer, got %d hasMore=%t", view.Buffered, view.HasMore)
	}
}

func TestApplyFiltersAlwaysResets(t *testing.T) {
	src := newFakeSource(80)
	rec := &viewRecorder{}
	e := newTestEngine(t, src, rec, WithPageSize(10))
	ctx := context.Background()
	filters := FilterSet{ContentContains: "account"}
	if err := e.ApplyFilters(ctx, filters); err != nil {
		t.Fatalf("ApplyFilters: %v", err)
	}
	if err := e.GoToPage(ctx, 4); err != nil {
		t.Fatalf("GoToPage: %v", err)
	}
	first := e.Snapshot()

	if err := e.ApplyFilters(ctx, filters); err != nil {
		t.Fatalf("second ApplyFilters: %v", err)
	}
	snap := e.Snapshot()
	if snap.Window.CurrentPage != 1 {
		t.Fatalf("expected page reset to 1, got %d", snap.Window.CurrentPage)
	}
	if snap.Token <= first.Token {
		t.Fatalf("expected a new epoch, got %d after %d", snap.Token, first.Token)
	}
	if src.callCount() != 2 {
		t.Fatalf("identical filters must still reload, got %d calls", src.callCount())
	}
}

func TestStaleFetchNeverAppears(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	gateA := make(chan struct{})
	startedA := make(chan struct{})
	src := SourceFunc(func(ctx context.Context, q Query, size int, cursor Cursor) (Page, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(startedA)
			<-gateA
			return Page{Records: makeRecords("A", 5)}, nil
		}
		return Page{Records: makeRecords("B", 3)}, nil
	})
	rec := &viewRecorder{}
	e := newTestEngine(t, src, rec)
	ctx := context.Background()

	errA := make(chan error, 1)
	go func() {
		errA <- e.ApplyFilters(ctx, FilterSet{TypeNameContains: "first"})
	}()
	<-startedA
	if err := e.ApplyFilters(ctx, FilterSet{TypeNameContains: "second"}); err != nil {
		t.Fatalf("ApplyFilters B: %v", err)
	}
	rendered := rec.count()
	close(gateA)
	if err := <-errA; err != nil {
		t.Fatalf("stale ApplyFilters should be dropped silently, got %v", err)
	}

	if rec.count() != rendered {
		t.Fatalf("stale result must not render")
	}
	snap := e.Snapshot()
	if snap.Token != 2 || snap.Buffered != 3 {
		t.Fatalf("expected epoch 2 with B's 3 records, got token=%d buffered=%d", snap.Token, snap.Buffered)
	}
	for _, r := range rec.last(t).Records {
		if strings.HasPrefix(r.ID, "A-") {
			t.Fatalf("stale record %s leaked into the view", r.ID)
		}
	}
	if snap.Filters.TypeNameContains != "second" {
		t.Fatalf("filters should belong to the latest epoch, got %q", snap.Filters.TypeNameContains)
	}
}

func TestChangePageSizeKeepsBuffer(t *testing.T) {
	src := newFakeSource(37)
	rec := &viewRecorder{}
	e := newTestEngine(t, src, rec)
	ctx := context.Background()
	if err := e.ApplyFilters(ctx, FilterSet{}); err != nil {
		t.Fatalf("ApplyFilters: %v", err)
	}
	if err := e.GoToPage(ctx, 2); err != nil {
		t.Fatalf("GoToPage: %v", err)
	}
	if err := e.ChangePageSize(50); err != nil {
		t.Fatalf("ChangePageSize: %v", err)
	}
	view := rec.last(t)
	if view.Window != (PageWindow{PageSize: 50, CurrentPage: 1, TotalPages: 1}) {
		t.Fatalf("expected re-clamped window, got %+v", view.Window)
	}
	if len(view.Records) != 37 {
		t.Fatalf("expected whole buffer on one page, got %d", len(view.Records))
	}
	if src.callCount() != 1 {
		t.Fatalf("page size change must not hit the network, got %d calls", src.callCount())
	}
}

func TestChangePageSizeRejectsInvalid(t *testing.T) {
	src := newFakeSource(37)
	rec := &viewRecorder{}
	e := newTestEngine(t, src, rec)
	if err := e.ApplyFilters(context.Background(), FilterSet{}); err != nil {
		t.Fatalf("ApplyFilters: %v", err)
	}
	renders := rec.count()
	for _, size := range []int{0, -5, MaxPageSize + 1} {
		if err := e.ChangePageSize(size); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("size %d: expected ErrInvalidPageSize, got %v", size, err)
		}
	}
	if got := e.Snapshot().Window.PageSize; got != DefaultPageSize {
		t.Fatalf("previous page size must stay in effect, got %d", got)
	}
	if rec.count() != renders {
		t.Fatalf("rejected page size must not render")
	}
}

func TestGoToLastPageDrainsSource(t *testing.T) {
	src := newFakeSource(2345)
	rec := &viewRecorder{}
	e := newTestEngine(t, src, rec, WithPageSize(100))
	ctx := context.Background()
	if err := e.ApplyFilters(ctx, FilterSet{}); err != nil {
		t.Fatalf("ApplyFilters: %v", err)
	}
	if err := e.GoToLastPage(ctx); err != nil {
		t.Fatalf("GoToLastPage: %v", err)
	}
	view := rec.last(t)
	if view.Window.CurrentPage != 24 || view.Window.TotalPages != 24 {
		t.Fatalf("expected page 24 of 24, got %+v", view.Window)
	}
	if len(view.Records) != 45 || view.Records[44].ID != "rec-2345" {
		t.Fatalf("unexpected last page contents: %d records", len(view.Records))
	}
}

func TestInitialFailureReportsError(t *testing.T) {
	src := newFakeSource(10)
	src.failAt[1] = errBackend
	rec := &viewRecorder{}
	e := newTestEngine(t, src, rec)

	err := e.ApplyFilters(context.Background(), FilterSet{})
	if !errors.Is(err, ErrNetworkFailure) {
		t.Fatalf("expected network failure, got %v", err)
	}
	view := rec.last(t)
	if view.Status != StatusFailed || view.Err == nil {
		t.Fatalf("expected failed view with error, got %s err=%v", view.Status, view.Err)
	}
	if view.Buffered != 0 || view.HasMore {
		t.Fatalf("failed epoch must be empty and terminal")
	}
	if src.callCount() != 1 {
		t.Fatalf("no automatic retry expected, got %d calls", src.callCount())
	}
}

func TestNavigationAfterFailedLoadStaysFailed(t *testing.T) {
	src := newFakeSource(10)
	src.failAt[1] = errBackend
	rec := &viewRecorder{}
	e := newTestEngine(t, src, rec)
	ctx := context.Background()
	if err := e.ApplyFilters(ctx, FilterSet{}); !errors.Is(err, ErrNetworkFailure) {
		t.Fatalf("expected network failure, got %v", err)
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"page 1", func() error { return e.GoToPage(ctx, 1) }},
		{"page 3", func() error { return e.GoToPage(ctx, 3) }},
		{"last page", func() error { return e.GoToLastPage(ctx) }},
		{"load all", func() error { return e.LoadAll(ctx) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		view := rec.last(t)
		if view.Status != StatusFailed || !errors.Is(view.Err, errBackend) {
			t.Fatalf("%s: expected failed view with the load error, got %s err=%v", step.name, view.Status, view.Err)
		}
		if snap := e.Snapshot(); snap.Status != StatusFailed {
			t.Fatalf("%s: expected failed status, got %s", step.name, snap.Status)
		}
	}
	if src.callCount() != 1 {
		t.Fatalf("a failed epoch must not refetch, got %d calls", src.callCount())
	}

	src.mu.Lock()
	delete(src.failAt, 1)
	src.mu.Unlock()
	if err := e.ApplyFilters(ctx, FilterSet{}); err != nil {
		t.Fatalf("ApplyFilters after failure: %v", err)
	}
	if view := rec.last(t); view.Status != StatusReady || view.Err != nil || view.Buffered != 10 {
		t.Fatalf("new epoch should recover, got %s err=%v buffered=%d", view.Status, view.Err, view.Buffered)
	}
}

func TestNavigationDuringFirstFillKeepsLoading(t *testing.T) {
	src := newFakeSource(60)
	src.gate = make(chan struct{})
	src.started = make(chan struct{}, 1)
	rec := &viewRecorder{}
	e := newTestEngine(t, src, rec, WithPageSize(10))
	ctx := context.Background()

	applied := make(chan error, 1)
	go func() {
		applied <- e.ApplyFilters(ctx, FilterSet{})
	}()
	<-src.started

	if err := e.GoToPage(ctx, 3); err != nil {
		t.Fatalf("GoToPage: %v", err)
	}
	if err := e.GoToLastPage(ctx); err != nil {
		t.Fatalf("GoToLastPage: %v", err)
	}
	if err := e.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if err := e.GoToPage(ctx, 3); err != nil {
		t.Fatalf("GoToPage: %v", err)
	}
	if rec.count() != 0 {
		t.Fatalf("nothing may render before the first fill lands, got %d views (last status %s)", rec.count(), rec.last(t).Status)
	}
	if snap := e.Snapshot(); snap.Status != StatusLoading || !snap.Loading {
		t.Fatalf("expected loading mid-fill, got status=%s loading=%t", snap.Status, snap.Loading)
	}

	close(src.gate)
	if err := <-applied; err != nil {
		t.Fatalf("ApplyFilters: %v", err)
	}
	view := rec.last(t)
	if view.Status != StatusReady || view.Buffered != 60 {
		t.Fatalf("expected ready with 60 records, got %s buffered=%d", view.Status, view.Buffered)
	}
	if view.Window.CurrentPage != 3 || view.Records[0].ID != "rec-21" {
		t.Fatalf("requested page should survive the load, got %+v", view.Window)
	}
	if src.callCount() != 1 {
		t.Fatalf("navigation during a fill must not fetch, got %d calls", src.callCount())
	}
}

func TestLoadMoreFailureKeepsBuffer(t *testing.T) {
	src := newFakeSource(1500)
	rec := &viewRecorder{}
	e := newTestEngine(t, src, rec)
	ctx := context.Background()
	if err := e.ApplyFilters(ctx, FilterSet{}); err != nil {
		t.Fatalf("ApplyFilters: %v", err)
	}
	src.mu.Lock()
	src.failAt[5] = errBackend
	src.mu.Unlock()

	if err := e.LoadMore(ctx); !errors.Is(err, ErrNetworkFailure) {
		t.Fatalf("expected network failure, got %v", err)
	}
	view := rec.last(t)
	if view.Status != StatusReady || view.Buffered != 1000 || !view.HasMore {
		t.Fatalf("expected intact buffer, got status=%s buffered=%d hasMore=%t", view.Status, view.Buffered, view.HasMore)
	}
	if view.Err == nil {
		t.Fatalf("expected error to be reported to the renderer")
	}
	if err := e.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if snap := e.Snapshot(); snap.Buffered != 1500 || snap.HasMore {
		t.Fatalf("expected full buffer after LoadAll, got %+v", snap)
	}
}

func TestStartLiveTicksImmediately(t *testing.T) {
	src := newFakeSource(5)
	rec := &viewRecorder{}
	e := newTestEngine(t, src, rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.StartLive(ctx, time.Hour); err != nil {
		t.Fatalf("StartLive: %v", err)
	}
	waitForCondition(t, func() bool { return rec.count() >= 1 })
	view := rec.last(t)
	if !view.Live || view.Status != StatusReady || view.Buffered != 5 {
		t.Fatalf("unexpected live view: live=%t status=%s buffered=%d", view.Live, view.Status, view.Buffered)
	}
	e.StopLive()
	e.StopLive()
	if e.Snapshot().Live {
		t.Fatalf("expected live mode off")
	}
}

func TestLiveTicksRebuildFromPageOne(t *testing.T) {
	src := newFakeSource(60)
	rec := &viewRecorder{}
	e := newTestEngine(t, src, rec, WithPageSize(10))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.ApplyFilters(ctx, FilterSet{TypeNameContains: "Account"}); err != nil {
		t.Fatalf("ApplyFilters: %v", err)
	}
	if err := e.GoToPage(ctx, 3); err != nil {
		t.Fatalf("GoToPage: %v", err)
	}
	if err := e.StartLive(ctx, 20*time.Millisecond); err != nil {
		t.Fatalf("StartLive: %v", err)
	}
	waitForCondition(t, func() bool { return src.callCount() >= 4 })
	e.StopLive()
	snap := e.Snapshot()
	if snap.Window.CurrentPage != 1 {
		t.Fatalf("live refresh must return to page 1, got %d", snap.Window.CurrentPage)
	}
	if snap.Filters.TypeNameContains != "Account" {
		t.Fatalf("live refresh must keep the active filters")
	}
	if got := src.call(src.callCount() - 1).Query.Filter; !strings.Contains(got, "Account") {
		t.Fatalf("live refresh query lost its filters: %q", got)
	}
}

func TestLiveTickFailureKeepsPolling(t *testing.T) {
	src := newFakeSource(5)
	src.failAt[1] = errBackend
	rec := &viewRecorder{}
	e := newTestEngine(t, src, rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.StartLive(ctx, 20*time.Millisecond); err != nil {
		t.Fatalf("StartLive: %v", err)
	}
	waitForCondition(t, func() bool {
		snap := e.Snapshot()
		return snap.Status == StatusReady && snap.Buffered == 5
	})
	if !e.Snapshot().Live {
		t.Fatalf("poller must survive a failed tick")
	}
}

func TestClosedEngineRejectsCalls(t *testing.T) {
	e := newTestEngine(t, newFakeSource(1), nil)
	e.Close()
	if err := e.ApplyFilters(context.Background(), FilterSet{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := e.StartLive(context.Background(), time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestNewRejectsBadPageSize(t *testing.T) {
	if _, err := New(newFakeSource(1), nil, WithPageSize(MaxPageSize+1)); !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize, got %v", err)
	}
}
