// Package render turns feed views into terminal tables, JSON or YAML documents.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/example/tracefeed/internal/feed"
)

// Format selects a renderer.
type Format string

const (
	FormatTable Format = "table"
	FormatWide  Format = "wide"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Formats lists the accepted output formats.
var Formats = []Format{FormatTable, FormatWide, FormatJSON, FormatYAML}

// ParseFormat validates a user supplied format name.
func ParseFormat(raw string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(raw)))
	if f == "" {
		return FormatTable, nil
	}
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q (want table, wide, json or yaml)", raw)
}

// ColorMode controls ANSI colors in table output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// ParseColorMode validates a --color value.
func ParseColorMode(raw string) (ColorMode, error) {
	switch m := ColorMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ColorAuto, nil
	case ColorAuto, ColorAlways, ColorNever:
		return m, nil
	default:
		return "", fmt.Errorf("unknown color mode %q (want auto, always or never)", raw)
	}
}

// Options configures New.
type Options struct {
	Format Format
	// Width overrides terminal detection; zero means detect, falling back to 120.
	Width    int
	Color    ColorMode
	Location *time.Location
	// Highlight lists search terms marked in table cells.
	Highlight []string
	// Clear redraws table output from the top of the screen.
	Clear bool
}

// New returns the renderer for opts.Format writing to out.
func New(out io.Writer, opts Options) (feed.Renderer, error) {
	switch opts.Format {
	case FormatTable, "":
		return NewTable(out, opts), nil
	case FormatWide:
		return NewTable(out, opts), nil
	case FormatJSON:
		return NewJSON(out), nil
	case FormatYAML:
		return NewYAML(out), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", opts.Format)
	}
}

var labelCaser = cases.Title(language.Und, cases.NoLower)

// ModeLabel names a trace execution mode.
func ModeLabel(mode int) string {
	switch mode {
	case 0:
		return labelCaser.String("sync")
	case 1:
		return labelCaser.String("async")
	default:
		return fmt.Sprintf("%d", mode)
	}
}

// StatusLabel is the title-cased status name.
func StatusLabel(s feed.Status) string {
	return labelCaser.String(s.String())
}

// FormatDuration prints plugin execution times the way operators read them.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0ms"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}

type palette struct {
	header    *color.Color
	errorRow  *color.Color
	highlight *color.Color
	muted     *color.Color
	warn      *color.Color
}

func newPalette(mode ColorMode) palette {
	p := palette{
		header:    color.New(color.Bold),
		errorRow:  color.New(color.FgRed),
		highlight: color.New(color.FgHiYellow, color.Bold),
		muted:     color.New(color.FgHiBlack),
		warn:      color.New(color.FgYellow),
	}
	for _, c := range []*color.Color{p.header, p.errorRow, p.highlight, p.muted, p.warn} {
		switch mode {
		case ColorAlways:
			c.EnableColor()
		case ColorNever:
			c.DisableColor()
		}
	}
	return p
}
