// File: internal/render/table.go
// Brief: Internal render package implementation for 'trace table'.

package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/example/tracefeed/internal/feed"
)

const (
	defaultWidth   = 120
	minTypeWidth   = 12
	columnGap      = "  "
	createdLayout  = "2006-01-02 15:04:05"
	footerBullet   = " • "
	correlationCol = 36
)

type align int

const (
	alignLeft align = iota
	alignRight
)

type column struct {
	title string
	width int
	align align
	cell  func(rec feed.TraceRecord, loc *time.Location) string
	// marked columns get search-term highlighting.
	marked bool
}

// Table prints one page per view as aligned columns with a status footer.
type Table struct {
	out   io.Writer
	opts  Options
	wide  bool
	loc   *time.Location
	paint palette
	terms []string

	mu sync.Mutex
}

// NewTable returns a table renderer. FormatWide adds the correlation id column.
func NewTable(out io.Writer, opts Options) *Table {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	var terms []string
	for _, t := range opts.Highlight {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return &Table{
		out:   out,
		opts:  opts,
		wide:  opts.Format == FormatWide,
		loc:   loc,
		paint: newPalette(opts.Color),
		terms: terms,
	}
}

// Render writes the view. It is safe for concurrent use.
func (t *Table) Render(v feed.View) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var b strings.Builder
	if t.opts.Clear {
		b.WriteString("\x1b[H\x1b[2J")
	}
	t.write(&b, v)
	_, _ = io.WriteString(t.out, b.String())
}

func (t *Table) width() int {
	if t.opts.Width > 0 {
		return t.opts.Width
	}
	if cols, ok := TerminalWidth(t.out); ok && cols > 0 {
		return cols
	}
	return defaultWidth
}

func (t *Table) columns(width int) []column {
	cols := []column{
		{title: "CREATED", width: len(createdLayout), cell: func(r feed.TraceRecord, loc *time.Location) string {
			if r.CreatedOn.IsZero() {
				return "-"
			}
			return r.CreatedOn.In(loc).Format(createdLayout)
		}},
		{title: "MODE", width: 5, cell: func(r feed.TraceRecord, _ *time.Location) string { return ModeLabel(r.Mode) }},
		{title: "DEPTH", width: 5, align: alignRight, cell: func(r feed.TraceRecord, _ *time.Location) string { return fmt.Sprintf("%d", r.Depth) }},
		{title: "DURATION", width: 8, align: alignRight, cell: func(r feed.TraceRecord, _ *time.Location) string { return FormatDuration(r.Duration) }},
		{title: "MESSAGE", width: 12, marked: true, cell: func(r feed.TraceRecord, _ *time.Location) string { return dash(r.MessageName) }},
		{title: "ENTITY", width: 14, marked: true, cell: func(r feed.TraceRecord, _ *time.Location) string { return dash(r.PrimaryEntity) }},
	}
	if t.wide {
		cols = append(cols, column{title: "CORRELATION", width: correlationCol, cell: func(r feed.TraceRecord, _ *time.Location) string { return dash(r.CorrelationID) }})
	}
	used := 0
	for _, c := range cols {
		used += c.width + len(columnGap)
	}
	typeWidth := width - used
	if typeWidth < minTypeWidth {
		typeWidth = minTypeWidth
	}
	return append(cols, column{title: "TYPE", width: typeWidth, marked: true, cell: func(r feed.TraceRecord, _ *time.Location) string { return dash(r.TypeName) }})
}

func (t *Table) write(b *strings.Builder, v feed.View) {
	switch v.Status {
	case feed.StatusEmpty:
		b.WriteString(t.paint.muted.Sprint("No filters applied yet.") + "\n")
		return
	case feed.StatusLoading:
		b.WriteString(t.paint.muted.Sprint("Loading trace logs…") + "\n")
		return
	case feed.StatusFailed:
		msg := "load failed"
		if v.Err != nil {
			msg = v.Err.Error()
		}
		b.WriteString(t.paint.errorRow.Sprint("Error: "+msg) + "\n")
		return
	}
	if len(v.Records) == 0 {
		b.WriteString(t.paint.muted.Sprint("No trace logs match the current filters.") + "\n")
		b.WriteString(t.footer(v, 0) + "\n")
		return
	}

	cols := t.columns(t.width())
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = formatCell(c.title, c.width, c.align)
	}
	b.WriteString(t.paint.header.Sprint(strings.TrimRight(strings.Join(header, columnGap), " ")) + "\n")

	failed := 0
	for _, rec := range v.Records {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cell := formatCell(c.cell(rec, t.loc), c.width, c.align)
			if i == len(cols)-1 {
				cell = strings.TrimRight(cell, " ")
			}
			if c.marked && !rec.HasError() {
				cell = t.highlight(cell)
			}
			cells[i] = cell
		}
		line := strings.Join(cells, columnGap)
		if rec.HasError() {
			failed++
			line = t.paint.errorRow.Sprint(line)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString(t.footer(v, failed) + "\n")
	if v.Err != nil {
		b.WriteString(t.paint.warn.Sprint("Warning: "+v.Err.Error()) + "\n")
	}
}

func (t *Table) footer(v feed.View, failed int) string {
	parts := []string{
		fmt.Sprintf("page %d/%d", v.Window.CurrentPage, v.Window.TotalPages),
		fmt.Sprintf("%d buffered", v.Buffered),
	}
	if v.HasMore {
		parts = append(parts, "more available")
	}
	if failed > 0 {
		parts = append(parts, fmt.Sprintf("%d with exceptions", failed))
	}
	if v.Live {
		parts = append(parts, "live")
	}
	return t.paint.muted.Sprint(strings.Join(parts, footerBullet))
}

// highlight marks every case-insensitive occurrence of a search term.
func (t *Table) highlight(cell string) string {
	if len(t.terms) == 0 {
		return cell
	}
	lower := strings.ToLower(cell)
	marks := make([]bool, len(cell))
	found := false
	for _, term := range t.terms {
		needle := strings.ToLower(term)
		for start := 0; ; {
			idx := strings.Index(lower[start:], needle)
			if idx < 0 {
				break
			}
			for i := start + idx; i < start+idx+len(needle); i++ {
				marks[i] = true
			}
			found = true
			start += idx + len(needle)
		}
	}
	if !found || len(lower) != len(cell) {
		return cell
	}
	var b strings.Builder
	for i := 0; i < len(cell); {
		j := i
		for j < len(cell) && marks[j] == marks[i] {
			j++
		}
		if marks[i] {
			b.WriteString(t.paint.highlight.Sprint(cell[i:j]))
		} else {
			b.WriteString(cell[i:j])
		}
		i = j
	}
	return b.String()
}

func formatCell(text string, width int, a align) string {
	if width <= 0 {
		return ""
	}
	trimmed := trimToWidth(text, width)
	pad := width - runewidth.StringWidth(trimmed)
	if pad <= 0 {
		return trimmed
	}
	if a == alignRight {
		return strings.Repeat(" ", pad) + trimmed
	}
	return trimmed + strings.Repeat(" ", pad)
}

// trimToWidth shortens s to at most width display columns, marking the cut
// with an ellipsis.
func trimToWidth(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return runewidth.Truncate(s, width, "…")
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
