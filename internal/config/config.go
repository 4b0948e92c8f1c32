// File: internal/config/config.go
// Brief: Internal config package implementation for 'config'.

// Package config defines the flag plumbing and runtime options shared by
// tracefeed's commands, translating Cobra/Viper flag values into a strongly
// typed struct that the feed engine and renderers consume.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/example/tracefeed/internal/feed"
	"github.com/example/tracefeed/internal/render"
	"github.com/example/tracefeed/internal/webapi"
)

const (
	// MaxBatchSize caps the per-request page size sent to the Web API.
	MaxBatchSize = 5000
	// MinLiveInterval keeps live mode from hammering the service.
	MinLiveInterval = time.Second
)

// Options holds all CLI configuration used by the logs and status commands.
type Options struct {
	OrgURL     string
	APIVersion string
	Token      string
	TokenFile  string

	TypeName     string
	Content      string
	FromRaw      string
	ToRaw        string
	TimeZone     string
	TimeLocation *time.Location
	DateFrom     *time.Time
	DateTo       *time.Time

	Page        int
	Last        bool
	All         bool
	PageSize    int
	BatchSize   int
	Budget      int
	Live        time.Duration
	Interactive bool

	OutputFormat string
	Format       render.Format
	ColorMode    string
	Color        render.ColorMode
	NoHighlight  bool

	WSListenAddr string
	NATSURL      string
	NATSSubject  string

	Pager          string
	PagerArgs      []string
	RequestTimeout time.Duration
}

// NewOptions returns Options with defaults applied.
func NewOptions() *Options {
	return &Options{
		APIVersion:     webapi.DefaultAPIVersion,
		Page:           1,
		PageSize:       feed.DefaultPageSize,
		BatchSize:      feed.DefaultRequestSize,
		Budget:         feed.DefaultBudget,
		OutputFormat:   string(render.FormatTable),
		ColorMode:      string(render.ColorAuto),
		RequestTimeout: webapi.DefaultTimeout,
	}
}

// AddConnectionFlags binds the flags every command that talks to the Web API needs.
func (o *Options) AddConnectionFlags(cmd *cobra.Command) {
	o.BindConnectionFlags(cmd.Flags())
}

// AddFlags binds all logs flags to the provided Cobra command.
func (o *Options) AddFlags(cmd *cobra.Command) {
	o.BindFlags(cmd.Flags())
}

// BindConnectionFlags attaches the organization flags and returns their names.
func (o *Options) BindConnectionFlags(fs *pflag.FlagSet) []string {
	var names []string
	fs.StringVar(&o.OrgURL, "org", o.OrgURL, "Organization URL, e.g. https://contoso.crm.dynamics.com")
	names = append(names, "org")
	fs.StringVar(&o.APIVersion, "api-version", o.APIVersion, "Web API version")
	names = append(names, "api-version")
	fs.StringVar(&o.Token, "token", "", "Bearer token passed to the Web API as-is")
	names = append(names, "token")
	fs.StringVar(&o.TokenFile, "token-file", "", "Read the bearer token from this file (~ is expanded)")
	names = append(names, "token-file")
	fs.DurationVar(&o.RequestTimeout, "request-timeout", o.RequestTimeout, "Timeout for a single Web API request")
	names = append(names, "request-timeout")
	return names
}

// BindFlags attaches logs flags to an arbitrary FlagSet and returns the flag
// names for further customization.
func (o *Options) BindFlags(fs *pflag.FlagSet) []string {
	names := o.BindConnectionFlags(fs)
	fs.StringVarP(&o.TypeName, "type", "t", "", "Only traces whose plugin type name contains this text")
	names = append(names, "type")
	fs.StringVarP(&o.Content, "search", "q", "", "Only traces whose message, entity or message block contains this text")
	names = append(names, "search")
	fs.StringVar(&o.FromRaw, "from", "", "Earliest creation time (local time, e.g. 2024-05-01 or 2024-05-01T08:30)")
	names = append(names, "from")
	fs.StringVar(&o.ToRaw, "to", "", "Latest creation time (local time; a bare date means end of that day)")
	names = append(names, "to")
	fs.StringVar(&o.TimeZone, "timezone", "", "IANA timezone used for --from/--to and for rendering (default: local)")
	names = append(names, "timezone")
	fs.IntVar(&o.Page, "page", o.Page, "Page to show")
	names = append(names, "page")
	fs.BoolVar(&o.Last, "last", false, "Load everything and show the last page")
	names = append(names, "last")
	fs.BoolVar(&o.All, "all", false, "Load every matching trace into the buffer before rendering")
	names = append(names, "all")
	fs.IntVar(&o.PageSize, "page-size", o.PageSize, fmt.Sprintf("Records per page (%d-%d)", feed.MinPageSize, feed.MaxPageSize))
	names = append(names, "page-size")
	fs.IntVar(&o.BatchSize, "batch-size", o.BatchSize, "Records requested per Web API call")
	names = append(names, "batch-size")
	fs.IntVar(&o.Budget, "budget", o.Budget, "Records loaded per fill before pausing")
	names = append(names, "budget")
	fs.DurationVar(&o.Live, "live", 0, "Re-run the query on this interval until interrupted (e.g. 10s)")
	names = append(names, "live")
	fs.BoolVarP(&o.Interactive, "interactive", "i", false, "Read paging commands from stdin")
	names = append(names, "interactive")
	fs.StringVarP(&o.OutputFormat, "output", "o", o.OutputFormat, "Output format: table, wide, json, yaml")
	names = append(names, "output")
	fs.StringVar(&o.ColorMode, "color", o.ColorMode, "Color output: auto, always, never")
	names = append(names, "color")
	fs.BoolVar(&o.NoHighlight, "no-highlight", false, "Do not highlight search terms")
	names = append(names, "no-highlight")
	fs.StringVar(&o.WSListenAddr, "ws-listen", "", "Mirror rendered pages over WebSocket at this address (e.g. :9090)")
	names = append(names, "ws-listen")
	fs.StringVar(&o.NATSURL, "nats-url", "", "Publish rendered pages to this NATS server")
	names = append(names, "nats-url")
	fs.StringVar(&o.NATSSubject, "nats-subject", "", "NATS subject prefix (default tracefeed.pages)")
	names = append(names, "nats-subject")
	fs.StringVar(&o.Pager, "pager", "", "Pipe one-shot output through this command, e.g. \"less -R\"")
	names = append(names, "pager")
	return names
}

// ValidateConnection checks the organization settings and resolves the token.
func (o *Options) ValidateConnection() error {
	o.OrgURL = strings.TrimRight(strings.TrimSpace(o.OrgURL), "/")
	if o.OrgURL == "" {
		return fmt.Errorf("--org is required (or set TRACEFEED_ORG)")
	}
	if !strings.HasPrefix(o.OrgURL, "https://") && !strings.HasPrefix(o.OrgURL, "http://") {
		o.OrgURL = "https://" + o.OrgURL
	}
	if o.RequestTimeout <= 0 {
		return fmt.Errorf("--request-timeout must be positive")
	}
	if strings.TrimSpace(o.Token) == "" && strings.TrimSpace(o.TokenFile) != "" {
		path, err := homedir.Expand(strings.TrimSpace(o.TokenFile))
		if err != nil {
			return fmt.Errorf("expand --token-file %q: %w", o.TokenFile, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read token file %q: %w", path, err)
		}
		o.Token = strings.TrimSpace(string(data))
		if o.Token == "" {
			return fmt.Errorf("token file %q is empty", path)
		}
	}
	o.Token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(o.Token), "Bearer "))
	return nil
}

// Validate ensures provided options are coherent and parses derived values.
func (o *Options) Validate() error {
	if err := o.ValidateConnection(); err != nil {
		return err
	}
	if o.Page < 1 {
		return fmt.Errorf("--page must be at least 1")
	}
	if o.PageSize < feed.MinPageSize || o.PageSize > feed.MaxPageSize {
		return fmt.Errorf("--page-size must be between %d and %d", feed.MinPageSize, feed.MaxPageSize)
	}
	if o.BatchSize < 1 || o.BatchSize > MaxBatchSize {
		return fmt.Errorf("--batch-size must be between 1 and %d", MaxBatchSize)
	}
	if o.Budget < 1 {
		return fmt.Errorf("--budget must be positive")
	}
	if o.Live < 0 {
		return fmt.Errorf("--live cannot be negative")
	}
	if o.Live > 0 && o.Live < MinLiveInterval {
		return fmt.Errorf("--live must be at least %s", MinLiveInterval)
	}
	if o.Last && o.Page > 1 {
		return fmt.Errorf("cannot combine --last with --page")
	}
	format, err := render.ParseFormat(o.OutputFormat)
	if err != nil {
		return fmt.Errorf("invalid --output value: %w", err)
	}
	o.Format = format
	o.OutputFormat = string(format)
	color, err := render.ParseColorMode(o.ColorMode)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	o.Color = color
	o.ColorMode = string(color)

	o.TimeLocation = time.Local
	if tz := strings.TrimSpace(o.TimeZone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("invalid --timezone value %q: %w", o.TimeZone, err)
		}
		o.TimeZone = tz
		o.TimeLocation = loc
	}
	o.DateFrom, o.DateTo = nil, nil
	if raw := strings.TrimSpace(o.FromRaw); raw != "" {
		ts, err := ParseLocalTime(raw, o.TimeLocation, false)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}
		o.DateFrom = &ts
	}
	if raw := strings.TrimSpace(o.ToRaw); raw != "" {
		ts, err := ParseLocalTime(raw, o.TimeLocation, true)
		if err != nil {
			return fmt.Errorf("invalid --to value: %w", err)
		}
		o.DateTo = &ts
	}
	if o.DateFrom != nil && o.DateTo != nil && o.DateFrom.After(*o.DateTo) {
		return fmt.Errorf("--from must not be after --to")
	}

	o.PagerArgs = nil
	if pager := strings.TrimSpace(o.Pager); pager != "" {
		if o.Live > 0 || o.Interactive {
			return fmt.Errorf("--pager only applies to one-shot output")
		}
		args, err := shellwords.Parse(pager)
		if err != nil {
			return fmt.Errorf("invalid --pager command %q: %w", o.Pager, err)
		}
		if len(args) == 0 {
			return fmt.Errorf("invalid --pager command %q", o.Pager)
		}
		o.PagerArgs = args
	}
	o.WSListenAddr = strings.TrimSpace(o.WSListenAddr)
	o.NATSURL = strings.TrimSpace(o.NATSURL)
	return nil
}

// FilterSet returns the engine filters described by the options.
func (o *Options) FilterSet() feed.FilterSet {
	return feed.FilterSet{
		TypeNameContains: strings.TrimSpace(o.TypeName),
		ContentContains:  strings.TrimSpace(o.Content),
		DateFrom:         o.DateFrom,
		DateTo:           o.DateTo,
	}
}

// HighlightTerms lists the search terms the table renderer should mark.
func (o *Options) HighlightTerms() []string {
	if o.NoHighlight {
		return nil
	}
	var terms []string
	for _, t := range []string{o.TypeName, o.Content} {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

var localLayouts = []struct {
	layout   string
	dateOnly bool
}{
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02 15:04", false},
	{"2006-01-02", true},
}

// ParseLocalTime parses an absolute time. RFC 3339 values keep their offset;
// everything else is read in loc. A bare date means the start of the day, or
// its last second when endOfDay is set.
func ParseLocalTime(raw string, loc *time.Location, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if loc == nil {
		loc = time.Local
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	for _, l := range localLayouts {
		ts, err := time.ParseInLocation(l.layout, raw, loc)
		if err != nil {
			continue
		}
		if l.dateOnly && endOfDay {
			y, m, d := ts.Date()
			ts = time.Date(y, m, d, 23, 59, 59, 0, loc)
		}
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q (use YYYY-MM-DD, YYYY-MM-DD HH:MM[:SS] or RFC 3339)", raw)
}
