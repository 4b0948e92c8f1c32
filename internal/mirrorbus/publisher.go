// Package mirrorbus publishes rendered trace pages to a NATS subject so other
// tools can follow a session.
package mirrorbus

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"

	"github.com/example/tracefeed/internal/feed"
	"github.com/example/tracefeed/internal/render"
)

// DefaultSubject is the subject prefix used when none is configured.
const DefaultSubject = "tracefeed.pages"

const (
	headerSession  = "Tracefeed-Session"
	headerProducer = "Tracefeed-Producer"
	headerToken    = "Tracefeed-Token"
)

type conn interface {
	PublishMsg(msg *nats.Msg) error
	Drain() error
}

// Publisher sends one message per rendered view to <subject>.<session>.
type Publisher struct {
	sessionID string
	producer  string
	subject   string
	conn      conn
	log       logr.Logger
	mu        sync.Mutex
	sent      int
}

// Message is the published payload.
type Message struct {
	Session  string          `json:"session"`
	Producer string          `json:"producer"`
	Sent     time.Time       `json:"sent"`
	View     render.Document `json:"view"`
}

// NewPublisher connects to url and returns a publisher with a fresh session id.
func NewPublisher(url, subject, producer string, logger logr.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("tracefeed "+producer),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Info("nats disconnected", "error", err.Error())
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return newPublisher(nc, subject, producer, logger), nil
}

func newPublisher(c conn, subject, producer string, logger logr.Logger) *Publisher {
	subject = strings.Trim(strings.TrimSpace(subject), ".")
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{
		sessionID: strings.ToLower(ulid.Make().String()),
		producer:  producer,
		subject:   subject,
		conn:      c,
		log:       logger.WithName("mirrorbus"),
	}
}

// SessionID identifies this viewing session on the bus.
func (p *Publisher) SessionID() string {
	return p.sessionID
}

// Subject is the full subject messages are published on.
func (p *Publisher) Subject() string {
	return p.subject + "." + p.sessionID
}

// Render satisfies feed.Renderer. Views without data are skipped.
func (p *Publisher) Render(v feed.View) {
	if p == nil || p.conn == nil {
		return
	}
	if v.Status != feed.StatusReady && v.Status != feed.StatusFailed {
		return
	}
	data, err := json.Marshal(Message{
		Session:  p.sessionID,
		Producer: p.producer,
		Sent:     time.Now().UTC(),
		View:     render.NewDocument(v),
	})
	if err != nil {
		p.log.Error(err, "encode mirror message")
		return
	}
	msg := nats.NewMsg(p.Subject())
	msg.Data = data
	msg.Header.Set(headerSession, p.sessionID)
	msg.Header.Set(headerProducer, p.producer)
	msg.Header.Set(headerToken, strconv.FormatUint(v.Token, 10))

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.PublishMsg(msg); err != nil {
		p.log.Info("publish mirror message failed", "subject", msg.Subject, "error", err.Error())
		return
	}
	p.sent++
}

// Sent returns how many views were published.
func (p *Publisher) Sent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
