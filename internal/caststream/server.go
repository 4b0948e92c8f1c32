// Package caststream hosts the WebSocket mirror used by `tracefeed logs
// --ws-listen`. Every rendered page is broadcast to connected clients so a
// second screen can follow the same trace feed without its own API session.
package caststream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"github.com/example/tracefeed/internal/feed"
	"github.com/example/tracefeed/internal/render"
)

type Mode int

const (
	ModeWeb Mode = iota
	ModeWS
)

// Option configures the caststream server.
type Option func(*Server)

// WithTitle overrides the page title of the HTML viewer.
func WithTitle(title string) Option {
	return func(s *Server) {
		if s == nil {
			return
		}
		s.title = title
	}
}

// WithoutReplay stops new clients from receiving the latest page on connect.
func WithoutReplay() Option {
	return func(s *Server) {
		if s == nil {
			return
		}
		s.replay = false
	}
}

// Server exposes the trace feed over WebSocket, plus a small HTML viewer in
// ModeWeb.
type Server struct {
	addr      string
	mode      Mode
	logger    logr.Logger
	hub       *hub
	upgrader  websocket.Upgrader
	title     string
	orgInfo   string
	replay    bool
	latest    *latestView
	indexTmpl *template.Template

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

func New(addr string, mode Mode, orgInfo string, logger logr.Logger, opts ...Option) *Server {
	server := &Server{
		addr:    addr,
		mode:    mode,
		logger:  logger.WithName("caststream"),
		hub:     newHub(logger.WithName("caststream")),
		title:   "tracefeed mirror",
		orgInfo: orgInfo,
		replay:  true,
		latest:  &latestView{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ready: make(chan struct{}),
	}
	server.indexTmpl = template.Must(template.New("viewer").Parse(viewerHTML))
	for _, opt := range opts {
		if opt != nil {
			opt(server)
		}
	}
	return server
}

// Handler returns the HTTP routes without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.mode == ModeWeb {
		mux.HandleFunc("/", s.handleIndex)
	}
	mux.HandleFunc("/view", s.handleView)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprint(w, "ok")
	})
	return mux
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.hub.Close()
	}()
	s.logger.V(1).Info("cast listener ready", "addr", ln.Addr().String(), "mode", s.mode.String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once Run is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Render satisfies feed.Renderer.
func (s *Server) Render(v feed.View) {
	if s == nil {
		return
	}
	payload, err := encodePayload(v)
	if err != nil {
		s.logger.Error(err, "encode cast payload")
		return
	}
	s.latest.Store(payload)
	if n := s.hub.Broadcast(payload); n > 0 {
		s.logger.V(2).Info("cast page", "viewers", n, "token", v.Token)
	}
}

// Clients returns the number of connected WebSocket clients.
func (s *Server) Clients() int {
	return s.hub.Len()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	var buf bytes.Buffer
	if err := s.indexTmpl.Execute(&buf, viewerData{Title: s.title, OrgInfo: s.orgInfo}); err != nil {
		s.logger.Error(err, "render cast template")
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleView(w http.ResponseWriter, _ *http.Request) {
	payload := s.latest.Load()
	if payload == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error(err, "upgrade cast websocket")
		return
	}
	client := newClient(conn, s.logger)
	if s.replay {
		if payload := s.latest.Load(); payload != nil {
			client.send <- payload
		}
	}
	s.hub.Register(client)
	go client.writeLoop()
	client.readLoop(func() {
		s.hub.Unregister(client)
	})
}

// castFrame is the WebSocket message format.
type castFrame struct {
	Type string          `json:"type"`
	At   string          `json:"at"`
	View render.Document `json:"view"`
}

func encodePayload(v feed.View) ([]byte, error) {
	return json.Marshal(castFrame{
		Type: "view",
		At:   time.Now().UTC().Format(time.RFC3339Nano),
		View: render.NewDocument(v),
	})
}

// latestView keeps the most recent frame so late clients can hydrate at once.
type latestView struct {
	mu      sync.RWMutex
	payload []byte
}

func (l *latestView) Store(payload []byte) {
	l.mu.Lock()
	l.payload = payload
	l.mu.Unlock()
}

func (l *latestView) Load() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.payload
}

type viewerData struct {
	Title   string
	OrgInfo string
}

func (m Mode) String() string {
	switch m {
	case ModeWS:
		return "ws"
	case ModeWeb:
		return "web"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}
