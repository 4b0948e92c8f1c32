// File: internal/webapi/client.go
// Brief: Internal webapi package implementation for 'client'.

// Package webapi reads plugin trace logs and organization settings from the
// platform's OData Web API.
package webapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
	"golang.org/x/sync/singleflight"

	"github.com/example/tracefeed/internal/feed"
)

const (
	// DefaultAPIVersion is the Web API version used when none is configured.
	DefaultAPIVersion = "9.2"
	// DefaultTimeout bounds a single HTTP round trip.
	DefaultTimeout = 60 * time.Second

	traceEntitySet = "plugintracelogs"
	maxBodyBytes   = 64 << 20
)

// Config describes how to reach one organization.
type Config struct {
	OrgURL     string
	APIVersion string
	Token      string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Logger     logr.Logger
}

// Client talks to {org}/api/data/v{version}/. It is safe for concurrent use.
type Client struct {
	base      *url.URL
	token     string
	userAgent string
	http      *http.Client
	log       logr.Logger
	parsers   fastjson.ParserPool
	settings  singleflight.Group
	now       func() time.Time
}

var _ feed.Source = (*Client)(nil)

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.OrgURL)
	if raw == "" {
		return nil, errors.New("organization url is required")
	}
	org, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parse organization url %q", raw)
	}
	if org.Scheme != "https" && org.Scheme != "http" {
		return nil, errors.Errorf("organization url %q must use http or https", raw)
	}
	if org.Host == "" {
		return nil, errors.Errorf("organization url %q has no host", raw)
	}
	version := strings.TrimPrefix(strings.TrimSpace(cfg.APIVersion), "v")
	if version == "" {
		version = DefaultAPIVersion
	}
	base := *org
	base.Path = strings.TrimRight(org.Path, "/") + "/api/data/v" + version + "/"
	base.RawQuery = ""
	base.Fragment = ""

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "tracefeed"
	}
	return &Client{
		base:      &base,
		token:     strings.TrimSpace(cfg.Token),
		userAgent: userAgent,
		http:      httpClient,
		log:       logger.WithName("webapi"),
		now:       time.Now,
	}, nil
}

// BaseURL returns the Web API root the client resolves requests against.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// FetchPage requests up to pageSize trace records. A non-empty cursor is the
// query string of a previous @odata.nextLink and replaces the query entirely.
func (c *Client) FetchPage(ctx context.Context, query feed.Query, pageSize int, cursor feed.Cursor) (feed.Page, error) {
	if pageSize <= 0 {
		return feed.Page{}, errors.Errorf("page size must be positive, got %d", pageSize)
	}
	rawQuery := string(cursor)
	if cursor == feed.NoCursor {
		rawQuery = query.Encode()
	}
	var page feed.Page
	err := c.get(ctx, traceEntitySet, rawQuery, pageSize, func(v *fastjson.Value) error {
		var err error
		page, err = decodeTracePage(v)
		return err
	})
	if err != nil {
		return feed.Page{}, errors.Wrap(err, "list plugin trace logs")
	}
	return page, nil
}

// get performs one GET and hands the parsed body to decode while the parser
// is still checked out of the pool.
func (c *Client) get(ctx context.Context, path, rawQuery string, maxPageSize int, decode func(*fastjson.Value) error) error {
	target := c.base.ResolveReference(&url.URL{Path: path})
	target.RawQuery = rawQuery

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("OData-Version", "4.0")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("x-ms-client-request-id", requestID)
	prefer := []string{`odata.include-annotations="*"`}
	if maxPageSize > 0 {
		prefer = append([]string{fmt.Sprintf("odata.maxpagesize=%d", maxPageSize)}, prefer...)
	}
	req.Header.Set("Prefer", strings.Join(prefer, ","))
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return errors.Wrapf(err, "read %s response", path)
	}
	c.log.V(1).Info("web api call", "path", path, "status", resp.StatusCode, "bytes", len(body), "elapsed", c.now().Sub(start).String(), "requestID", requestID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp, body, requestID)
	}

	p := c.parsers.Get()
	defer c.parsers.Put(p)
	v, err := p.ParseBytes(body)
	if err != nil {
		return errors.Wrapf(ErrMalformedPayload, "%s: %v", path, err)
	}
	return decode(v)
}

func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if strings.EqualFold(strings.TrimSpace(resp.Header.Get("Content-Encoding")), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip body")
		}
		defer zr.Close()
		r = zr
	}
	body, err := io.ReadAll(io.LimitReader(r, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodyBytes {
		return nil, errors.Errorf("response exceeds %d bytes", maxBodyBytes)
	}
	return body, nil
}

func (c *Client) apiError(resp *http.Response, body []byte, requestID string) error {
	apiErr := &APIError{
		Status:     resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
		RequestID:  requestID,
	}
	p := c.parsers.Get()
	defer c.parsers.Put(p)
	if v, err := p.ParseBytes(body); err == nil {
		apiErr.Code = string(v.GetStringBytes("error", "code"))
		apiErr.Message = strings.TrimSpace(string(v.GetStringBytes("error", "message")))
	} else if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 512 {
		apiErr.Message = text
	}
	return apiErr
}
