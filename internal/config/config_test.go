// config_test.go verifies Options parsing, validation, and time helpers for tracefeed flags.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/example/tracefeed/internal/feed"
	"github.com/example/tracefeed/internal/render"
)

func validOptions() *Options {
	opts := NewOptions()
	opts.OrgURL = "https://contoso.crm.dynamics.com"
	return opts
}

func TestNewOptionsDefaults(t *testing.T) {
	opts := NewOptions()
	if opts.Page != 1 || opts.PageSize != feed.DefaultPageSize {
		t.Fatalf("unexpected paging defaults: page=%d size=%d", opts.Page, opts.PageSize)
	}
	if opts.BatchSize != 250 || opts.Budget != 1000 {
		t.Fatalf("unexpected fill defaults: batch=%d budget=%d", opts.BatchSize, opts.Budget)
	}
	if opts.OutputFormat != "table" || opts.ColorMode != "auto" {
		t.Fatalf("unexpected output defaults %q %q", opts.OutputFormat, opts.ColorMode)
	}
}

func TestBindFlagsParses(t *testing.T) {
	opts := NewOptions()
	fs := pflag.NewFlagSet("logs", pflag.ContinueOnError)
	names := opts.BindFlags(fs)
	if len(names) == 0 {
		t.Fatalf("expected flag names")
	}
	err := fs.Parse([]string{"--org", "contoso.crm.dynamics.com/", "-t", "Account", "-q", "O'Brien", "--page-size", "50", "--live", "15s", "-o", "json"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := opts.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if opts.OrgURL != "https://contoso.crm.dynamics.com" {
		t.Fatalf("expected normalized org url, got %q", opts.OrgURL)
	}
	if opts.Format != render.FormatJSON || opts.Live != 15*time.Second || opts.PageSize != 50 {
		t.Fatalf("unexpected parsed options %+v", opts)
	}
	filters := opts.FilterSet()
	if filters.TypeNameContains != "Account" || filters.ContentContains != "O'Brien" {
		t.Fatalf("unexpected filters %+v", filters)
	}
	if terms := opts.HighlightTerms(); len(terms) != 2 {
		t.Fatalf("expected both terms highlighted, got %v", terms)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(o *Options)
		want   string
	}{
		{"missing org", func(o *Options) { o.OrgURL = "" }, "--org is required"},
		{"page", func(o *Options) { o.Page = 0 }, "--page"},
		{"page size", func(o *Options) { o.PageSize = feed.MaxPageSize + 1 }, "--page-size"},
		{"batch size", func(o *Options) { o.BatchSize = MaxBatchSize + 1 }, "--batch-size"},
		{"budget", func(o *Options) { o.Budget = 0 }, "--budget"},
		{"live too fast", func(o *Options) { o.Live = 10 * time.Millisecond }, "--live"},
		{"last with page", func(o *Options) { o.Last = true; o.Page = 3 }, "--last"},
		{"output", func(o *Options) { o.OutputFormat = "csv" }, "--output"},
		{"color", func(o *Options) { o.ColorMode = "rainbow" }, "--color"},
		{"timezone", func(o *Options) { o.TimeZone = "Mars/Olympus" }, "--timezone"},
		{"from", func(o *Options) { o.FromRaw = "yesterday" }, "--from"},
		{"range", func(o *Options) { o.FromRaw = "2024-05-02"; o.ToRaw = "2024-05-01" }, "--from must not be after --to"},
		{"pager with live", func(o *Options) { o.Pager = "less"; o.Live = time.Minute }, "--pager"},
		{"pager quoting", func(o *Options) { o.Pager = `less "-R` }, "--pager"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := validOptions()
			tc.mutate(opts)
			err := opts.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateParsesDatesInTimezone(t *testing.T) {
	opts := validOptions()
	opts.TimeZone = "Asia/Tokyo"
	opts.FromRaw = "2024-05-01 09:00"
	opts.ToRaw = "2024-05-01"
	if err := opts.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := opts.DateFrom.UTC().Format(time.RFC3339); got != "2024-05-01T00:00:00Z" {
		t.Fatalf("unexpected from %s", got)
	}
	if got := opts.DateTo.UTC().Format(time.RFC3339); got != "2024-05-01T14:59:59Z" {
		t.Fatalf("a bare --to date should cover the whole day, got %s", got)
	}
	q := feed.BuildQuery(opts.FilterSet())
	if !strings.Contains(q.Filter, "createdon ge 2024-05-01T00:00:00Z") {
		t.Fatalf("unexpected query filter %q", q.Filter)
	}
}

func TestParseLocalTime(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	cases := []struct {
		raw      string
		endOfDay bool
		wantUTC  string
	}{
		{"2024-05-01", false, "2024-04-30T22:00:00Z"},
		{"2024-05-01", true, "2024-05-01T21:59:59Z"},
		{"2024-05-01T10:15", false, "2024-05-01T08:15:00Z"},
		{"2024-05-01 10:15:30", true, "2024-05-01T08:15:30Z"},
		{"2024-05-01T10:15:30-05:00", false, "2024-05-01T15:15:30Z"},
	}
	for _, tc := range cases {
		got, err := ParseLocalTime(tc.raw, loc, tc.endOfDay)
		if err != nil {
			t.Fatalf("ParseLocalTime(%q): %v", tc.raw, err)
		}
		if s := got.UTC().Format(time.RFC3339); s != tc.wantUTC {
			t.Fatalf("ParseLocalTime(%q, endOfDay=%t) = %s, want %s", tc.raw, tc.endOfDay, s, tc.wantUTC)
		}
	}
	if _, err := ParseLocalTime("05/01/2024", loc, false); err == nil {
		t.Fatalf("expected error for unsupported layout")
	}
}

func TestValidateReadsTokenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	if err := os.WriteFile(path, []byte("Bearer abc.def\n"), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}
	opts := validOptions()
	opts.TokenFile = path
	if err := opts.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if opts.Token != "abc.def" {
		t.Fatalf("expected token from file without scheme, got %q", opts.Token)
	}

	opts = validOptions()
	opts.Token = "explicit"
	opts.TokenFile = filepath.Join(dir, "missing")
	if err := opts.Validate(); err != nil || opts.Token != "explicit" {
		t.Fatalf("explicit token should win over the file: %v %q", err, opts.Token)
	}
}

func TestValidateSplitsPager(t *testing.T) {
	opts := validOptions()
	opts.Pager = `less -R --prompt "trace logs"`
	if err := opts.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := []string{"less", "-R", "--prompt", "trace logs"}
	if strings.Join(opts.PagerArgs, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected pager args %q", opts.PagerArgs)
	}
}
