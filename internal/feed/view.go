package feed

import "time"

// Status is the engine's lifecycle state.
type Status int

const (
	StatusEmpty Status = iota
	StatusLoading
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// View is handed to renderers whenever a page is ready. Records is a private
// copy; renderers must treat it as read-only anyway.
type View struct {
	Records  []TraceRecord
	Window   PageWindow
	Buffered int
	HasMore  bool
	Status   Status
	Token    uint64
	Filters  FilterSet
	Live     bool
	Err      error
}

// Snapshot is a consistent read of the engine state.
type Snapshot struct {
	Status       Status
	Window       PageWindow
	Buffered     int
	HasMore      bool
	Loading      bool
	Token        uint64
	Filters      FilterSet
	Live         bool
	LiveInterval time.Duration
	Err          error
}

// Renderer consumes views. Render is called serially and must not call back
// into the engine.
type Renderer interface {
	Render(View)
}

// RenderFunc adapts a function to the Renderer interface.
type RenderFunc func(View)

// Render satisfies Renderer.
func (f RenderFunc) Render(v View) { f(v) }

// MultiRenderer fans a view out to every non-nil renderer in order.
type MultiRenderer []Renderer

// Render satisfies Renderer.
func (m MultiRenderer) Render(v View) {
	for _, r := range m {
		if r != nil {
			r.Render(v)
		}
	}
}
