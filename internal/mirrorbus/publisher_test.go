package mirrorbus

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"

	"github.com/example/tracefeed/internal/feed"
)

type fakeConn struct {
	mu      sync.Mutex
	msgs    []*nats.Msg
	fail    error
	drained bool
}

func (f *fakeConn) PublishMsg(msg *nats.Msg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeConn) Drain() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drained = true
	return nil
}

func readyView() feed.View {
	return feed.View{
		Records:  []feed.TraceRecord{{ID: "a", TypeName: "Contoso.AccountPlugin"}},
		Window:   feed.PageWindow{PageSize: 25, CurrentPage: 1, TotalPages: 1},
		Buffered: 1,
		Status:   feed.StatusReady,
		Token:    7,
	}
}

func TestPublisherSendsReadyViews(t *testing.T) {
	fc := &fakeConn{}
	p := newPublisher(fc, "traces.", "tester", logr.Discard())

	if _, err := ulid.ParseStrict(strings.ToUpper(p.SessionID())); err != nil {
		t.Fatalf("session id is not a ulid: %v", err)
	}
	p.Render(feed.View{Status: feed.StatusLoading})
	p.Render(readyView())
	if len(fc.msgs) != 1 || p.Sent() != 1 {
		t.Fatalf("expected one published message, got %d", len(fc.msgs))
	}
	msg := fc.msgs[0]
	if msg.Subject != "traces."+p.SessionID() {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if msg.Header.Get(headerToken) != "7" || msg.Header.Get(headerProducer) != "tester" {
		t.Fatalf("unexpected headers %v", msg.Header)
	}
	var decoded Message
	if err := json.Unmarshal(msg.Data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Session != p.SessionID() || decoded.View.Records[0].ID != "a" {
		t.Fatalf("unexpected message %+v", decoded)
	}
}

func TestPublisherDefaultsSubjectAndSurvivesErrors(t *testing.T) {
	fc := &fakeConn{fail: errors.New("nats: connection closed")}
	p := newPublisher(fc, "  ", "tester", logr.Discard())
	if !strings.HasPrefix(p.Subject(), DefaultSubject+".") {
		t.Fatalf("unexpected default subject %q", p.Subject())
	}
	p.Render(readyView())
	if p.Sent() != 0 {
		t.Fatalf("failed publish must not count as sent")
	}
	if err := p.Close(); err != nil || !fc.drained {
		t.Fatalf("Close should drain the connection")
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	a := newPublisher(&fakeConn{}, "", "x", logr.Discard())
	b := newPublisher(&fakeConn{}, "", "x", logr.Discard())
	if a.SessionID() == b.SessionID() {
		t.Fatalf("session ids must differ")
	}
}
