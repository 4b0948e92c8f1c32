package render

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/tracefeed/internal/feed"
)

// Document is the machine-readable form of a view.
type Document struct {
	Status     string        `json:"status" yaml:"status"`
	Token      uint64        `json:"token" yaml:"token"`
	Page       int           `json:"page" yaml:"page"`
	TotalPages int           `json:"totalPages" yaml:"totalPages"`
	PageSize   int           `json:"pageSize" yaml:"pageSize"`
	Buffered   int           `json:"buffered" yaml:"buffered"`
	HasMore    bool          `json:"hasMore" yaml:"hasMore"`
	Live       bool          `json:"live" yaml:"live"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
	Records    []RecordEntry `json:"records" yaml:"records"`
}

// RecordEntry is one trace row in a Document.
type RecordEntry struct {
	ID               string    `json:"id" yaml:"id"`
	CreatedOn        time.Time `json:"createdOn" yaml:"createdOn"`
	TypeName         string    `json:"typeName" yaml:"typeName"`
	MessageName      string    `json:"messageName" yaml:"messageName"`
	PrimaryEntity    string    `json:"primaryEntity,omitempty" yaml:"primaryEntity,omitempty"`
	Mode             string    `json:"mode" yaml:"mode"`
	Depth            int       `json:"depth" yaml:"depth"`
	DurationMS       int64     `json:"durationMs" yaml:"durationMs"`
	CorrelationID    string    `json:"correlationId,omitempty" yaml:"correlationId,omitempty"`
	MessageBlock     string    `json:"messageBlock,omitempty" yaml:"messageBlock,omitempty"`
	ExceptionDetails string    `json:"exceptionDetails,omitempty" yaml:"exceptionDetails,omitempty"`
}

// NewDocument converts a view.
func NewDocument(v feed.View) Document {
	doc := Document{
		Status:     v.Status.String(),
		Token:      v.Token,
		Page:       v.Window.CurrentPage,
		TotalPages: v.Window.TotalPages,
		PageSize:   v.Window.PageSize,
		Buffered:   v.Buffered,
		HasMore:    v.HasMore,
		Live:       v.Live,
		Records:    make([]RecordEntry, 0, len(v.Records)),
	}
	if v.Err != nil {
		doc.Error = v.Err.Error()
	}
	for _, r := range v.Records {
		doc.Records = append(doc.Records, RecordEntry{
			ID:               r.ID,
			CreatedOn:        r.CreatedOn,
			TypeName:         r.TypeName,
			MessageName:      r.MessageName,
			PrimaryEntity:    r.PrimaryEntity,
			Mode:             ModeLabel(r.Mode),
			Depth:            r.Depth,
			DurationMS:       r.Duration.Milliseconds(),
			CorrelationID:    r.CorrelationID,
			MessageBlock:     r.MessageBlock,
			ExceptionDetails: r.ExceptionDetails,
		})
	}
	return doc
}

// JSON writes one compact JSON document per line.
type JSON struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSON(out io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(out)}
}

func (j *JSON) Render(v feed.View) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(NewDocument(v))
}

// YAML writes a multi-document YAML stream, one document per view.
type YAML struct {
	mu  sync.Mutex
	enc *yaml.Encoder
}

func NewYAML(out io.Writer) *YAML {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	return &YAML{enc: enc}
}

func (y *YAML) Render(v feed.View) {
	y.mu.Lock()
	defer y.mu.Unlock()
	_ = y.enc.Encode(NewDocument(v))
}

// Close flushes the YAML stream.
func (y *YAML) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.enc.Close()
}
