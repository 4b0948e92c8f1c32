// interactive.go reads paging commands from stdin and maps each one onto a feed engine call.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/example/tracefeed/internal/config"
	"github.com/example/tracefeed/internal/feed"
	"github.com/example/tracefeed/internal/render"
)

// controller is the part of *feed.Engine the CLI drives.
type controller interface {
	ApplyFilters(ctx context.Context, filters feed.FilterSet) error
	GoToPage(ctx context.Context, n int) error
	GoToLastPage(ctx context.Context) error
	LoadMore(ctx context.Context) error
	LoadAll(ctx context.Context) error
	ChangePageSize(n int) error
	StartLive(ctx context.Context, interval time.Duration) error
	SetLiveInterval(interval time.Duration) error
	StopLive()
	Snapshot() feed.Snapshot
}

var _ controller = (*feed.Engine)(nil)

type commandKind string

const (
	cmdNext    commandKind = "next"
	cmdPrev    commandKind = "prev"
	cmdFirst   commandKind = "first"
	cmdGoto    commandKind = "goto"
	cmdLast    commandKind = "last"
	cmdMore    commandKind = "more"
	cmdAll     commandKind = "all"
	cmdSize    commandKind = "size"
	cmdRefresh commandKind = "refresh"
	cmdLive    commandKind = "live"
	cmdStop    commandKind = "stop"
	cmdDetail  commandKind = "detail"
	cmdHelp    commandKind = "help"
	cmdQuit    commandKind = "quit"
	cmdNone    commandKind = ""
)

type command struct {
	kind     commandKind
	n        int
	interval time.Duration
}

const interactiveHelp = `commands:
  n | p | f          next, previous, first page
  g N                go to page N (loads more when needed)
  l                  last page (loads everything)
  m | a              load one more batch | load everything
  s N                change the page size
  r                  re-run the query
  live D | stop      refresh every D (e.g. 10s) | stop refreshing
  d N                show row N of the current page in full
  h | q              help | quit`

func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{kind: cmdNone}, nil
	}
	name, args := fields[0], fields[1:]
	simple := map[string]commandKind{
		"n": cmdNext, "next": cmdNext,
		"p": cmdPrev, "prev": cmdPrev,
		"f": cmdFirst, "first": cmdFirst,
		"l": cmdLast, "last": cmdLast,
		"m": cmdMore, "more": cmdMore,
		"a": cmdAll, "all": cmdAll,
		"r": cmdRefresh, "refresh": cmdRefresh,
		"stop": cmdStop,
		"h": cmdHelp, "help": cmdHelp, "?": cmdHelp,
		"q": cmdQuit, "quit": cmdQuit, "exit": cmdQuit,
	}
	if kind, ok := simple[name]; ok {
		if len(args) != 0 {
			return command{}, fmt.Errorf("%s takes no arguments", name)
		}
		return command{kind: kind}, nil
	}
	numbered := map[string]commandKind{
		"g": cmdGoto, "goto": cmdGoto,
		"s": cmdSize, "size": cmdSize,
		"d": cmdDetail, "detail": cmdDetail,
	}
	if kind, ok := numbered[name]; ok {
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: %s N", name)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return command{}, fmt.Errorf("%s: %q is not a positive number", name, args[0])
		}
		return command{kind: kind, n: n}, nil
	}
	if name == "live" {
		if len(args) != 1 {
			return command{}, errors.New("usage: live DURATION (e.g. live 10s)")
		}
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return command{}, fmt.Errorf("live: %w", err)
		}
		if d < config.MinLiveInterval {
			return command{}, fmt.Errorf("live: interval must be at least %s", config.MinLiveInterval)
		}
		return command{kind: cmdLive, interval: d}, nil
	}
	return command{}, fmt.Errorf("unknown command %q (h for help)", name)
}

// interactiveSession drives a controller from line commands.
type interactiveSession struct {
	in      io.Reader
	out     io.Writer
	prompt  io.Writer
	ctl     controller
	latest  *viewRecorder
	detail  render.Options
	filters feed.FilterSet
	opts    *config.Options
}

// Run loads the first page and then serves commands until quit, EOF, or ctx ends.
func (s *interactiveSession) Run(ctx context.Context) error {
	if err := s.initial(ctx); err != nil {
		if errors.Is(err, feed.ErrClosed) {
			return err
		}
		fmt.Fprintf(s.prompt, "error: %v\n", err)
	}
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	fmt.Fprint(s.prompt, "> ")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, err := parseCommand(line)
			if err != nil {
				fmt.Fprintf(s.prompt, "%v\n> ", err)
				continue
			}
			if cmd.kind == cmdQuit {
				return nil
			}
			if err := s.execute(ctx, cmd); err != nil {
				if errors.Is(err, feed.ErrClosed) {
					return err
				}
				fmt.Fprintf(s.prompt, "error: %v\n", err)
			}
			fmt.Fprint(s.prompt, "> ")
		}
	}
}

func (s *interactiveSession) initial(ctx context.Context) error {
	if s.opts == nil {
		return s.ctl.ApplyFilters(ctx, s.filters)
	}
	return loadOnce(ctx, s.ctl, s.opts)
}

func (s *interactiveSession) execute(ctx context.Context, cmd command) error {
	snap := s.ctl.Snapshot()
	current := snap.Window.CurrentPage
	if current < 1 {
		current = 1
	}
	switch cmd.kind {
	case cmdNone:
		return nil
	case cmdNext:
		return s.ctl.GoToPage(ctx, current+1)
	case cmdPrev:
		if current <= 1 {
			return s.ctl.GoToPage(ctx, 1)
		}
		return s.ctl.GoToPage(ctx, current-1)
	case cmdFirst:
		return s.ctl.GoToPage(ctx, 1)
	case cmdGoto:
		return s.ctl.GoToPage(ctx, cmd.n)
	case cmdLast:
		return s.ctl.GoToLastPage(ctx)
	case cmdMore:
		return s.ctl.LoadMore(ctx)
	case cmdAll:
		return s.ctl.LoadAll(ctx)
	case cmdSize:
		return s.ctl.ChangePageSize(cmd.n)
	case cmdRefresh:
		return s.ctl.ApplyFilters(ctx, snap.Filters)
	case cmdLive:
		if snap.Live {
			return s.ctl.SetLiveInterval(cmd.interval)
		}
		return s.ctl.StartLive(ctx, cmd.interval)
	case cmdStop:
		s.ctl.StopLive()
		return nil
	case cmdDetail:
		return s.showDetail(cmd.n)
	case cmdHelp:
		fmt.Fprintln(s.prompt, interactiveHelp)
		return nil
	}
	return fmt.Errorf("unsupported command %q", cmd.kind)
}

func (s *interactiveSession) showDetail(row int) error {
	v, ok := s.latest.Latest()
	if !ok || len(v.Records) == 0 {
		return errors.New("no rows on the current page")
	}
	if row > len(v.Records) {
		return fmt.Errorf("row %d is out of range (page has %d rows)", row, len(v.Records))
	}
	render.Detail(s.out, v.Records[row-1], s.detail)
	return nil
}
