package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/example/tracefeed/internal/feed"
)

// Detail prints every field of one record, including the full message block
// and exception text.
func Detail(w io.Writer, rec feed.TraceRecord, opts Options) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	p := newPalette(opts.Color)
	field := func(name, value string) {
		fmt.Fprintf(w, "%s %s\n", p.header.Sprintf("%-13s", name+":"), dash(value))
	}
	field("Id", rec.ID)
	created := "-"
	if !rec.CreatedOn.IsZero() {
		created = rec.CreatedOn.In(loc).Format(time.RFC3339)
	}
	field("Created", created)
	field("Type", rec.TypeName)
	field("Message", rec.MessageName)
	field("Entity", rec.PrimaryEntity)
	field("Mode", ModeLabel(rec.Mode))
	field("Depth", fmt.Sprintf("%d", rec.Depth))
	field("Duration", FormatDuration(rec.Duration))
	field("Correlation", rec.CorrelationID)
	block("Message block", rec.MessageBlock, w, p, false)
	if rec.HasError() {
		block("Exception", rec.ExceptionDetails, w, p, true)
	}
}

func block(title, body string, w io.Writer, p palette, failed bool) {
	body = strings.TrimRight(body, " \t\r\n")
	if body == "" {
		return
	}
	heading := p.header.Sprint(title + ":")
	if failed {
		heading = p.errorRow.Sprint(title + ":")
	}
	fmt.Fprintf(w, "%s\n", heading)
	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
}
