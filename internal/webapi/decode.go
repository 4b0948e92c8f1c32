package webapi

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/valyala/fastjson"

	"github.com/example/tracefeed/internal/feed"
)

const nextLinkKey = "@odata.nextLink"

func decodeTracePage(v *fastjson.Value) (feed.Page, error) {
	if v.Type() != fastjson.TypeObject {
		return feed.Page{}, errors.Wrap(ErrMalformedPayload, "collection is not an object")
	}
	items := v.Get("value")
	if items == nil || items.Type() != fastjson.TypeArray {
		return feed.Page{}, errors.Wrap(ErrMalformedPayload, "collection has no value array")
	}
	arr, _ := items.Array()
	records := make([]feed.TraceRecord, 0, len(arr))
	for i, item := range arr {
		rec, err := decodeTraceRecord(item)
		if err != nil {
			return feed.Page{}, errors.Wrapf(err, "record %d", i)
		}
		records = append(records, rec)
	}
	cursor, err := cursorFromNextLink(string(v.GetStringBytes(nextLinkKey)))
	if err != nil {
		return feed.Page{}, err
	}
	return feed.Page{Records: records, NextCursor: cursor}, nil
}

func decodeTraceRecord(v *fastjson.Value) (feed.TraceRecord, error) {
	if v.Type() != fastjson.TypeObject {
		return feed.TraceRecord{}, errors.Wrap(ErrMalformedPayload, "record is not an object")
	}
	id := string(v.GetStringBytes("plugintracelogid"))
	if id == "" {
		return feed.TraceRecord{}, errors.Wrap(ErrMalformedPayload, "record has no plugintracelogid")
	}
	rec := feed.TraceRecord{
		ID:               strings.ToLower(id),
		TypeName:         string(v.GetStringBytes("typename")),
		MessageName:      string(v.GetStringBytes("messagename")),
		PrimaryEntity:    string(v.GetStringBytes("primaryentity")),
		Mode:             v.GetInt("mode"),
		Depth:            v.GetInt("depth"),
		Duration:         time.Duration(v.GetInt64("performanceexecutionduration")) * time.Millisecond,
		CorrelationID:    normalizeGUID(string(v.GetStringBytes("correlationid"))),
		MessageBlock:     string(v.GetStringBytes("messageblock")),
		ExceptionDetails: strings.TrimSpace(string(v.GetStringBytes("exceptiondetails"))),
	}
	if raw := string(v.GetStringBytes("createdon")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return feed.TraceRecord{}, errors.Wrapf(ErrMalformedPayload, "createdon %q: %v", raw, err)
		}
		rec.CreatedOn = ts.UTC()
	}
	return rec, nil
}

// normalizeGUID returns the canonical lower-case form of a GUID, or
// the trimmed input when it is not one.
func normalizeGUID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return raw
	}
	return id.String()
}

// cursorFromNextLink keeps only the query string of the continuation link; the
// path is always the trace collection.
func cursorFromNextLink(link string) (feed.Cursor, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return feed.NoCursor, nil
	}
	u, err := url.Parse(link)
	if err != nil {
		return feed.NoCursor, errors.Wrapf(ErrMalformedPayload, "next link %q: %v", link, err)
	}
	if u.RawQuery == "" {
		return feed.NoCursor, errors.Wrapf(ErrMalformedPayload, "next link %q has no query", link)
	}
	return feed.Cursor(u.RawQuery), nil
}
