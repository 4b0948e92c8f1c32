// spinner.go implements the progress indicator shown on stderr while trace pages are fetched.
package render

import (
	"fmt"
	"io"
	"time"
)

var spinnerFrames = []rune{'|', '/', '-', '\\'}

const spinnerInterval = 120 * time.Millisecond

// StartSpinner animates message on w until the returned stop function is
// called. Elapsed time is appended once the wait passes a second. stop clears
// the line on success and leaves "[fail]" behind otherwise; extra calls are
// no-ops.
func StartSpinner(w io.Writer, message string) func(success bool) {
	done := make(chan struct{})
	exited := make(chan struct{})
	started := time.Now()
	go func() {
		defer close(exited)
		ticker := time.NewTicker(spinnerInterval)
		defer ticker.Stop()
		for idx := 0; ; idx = (idx + 1) % len(spinnerFrames) {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			elapsed := time.Since(started)
			if elapsed < time.Second {
				fmt.Fprintf(w, "\r%s %c", message, spinnerFrames[idx])
				continue
			}
			fmt.Fprintf(w, "\r%s %c %s", message, spinnerFrames[idx], elapsed.Truncate(time.Second))
		}
	}()
	return func(success bool) {
		select {
		case <-done:
			return
		default:
			close(done)
		}
		<-exited
		if success {
			fmt.Fprint(w, "\r\x1b[K")
			return
		}
		fmt.Fprintf(w, "\r\x1b[K%s [fail]\n", message)
	}
}
