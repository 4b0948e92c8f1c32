// logs.go defines the 'tracefeed logs' command, connecting CLI flags to the feed engine, its renderers, and the optional mirrors.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/tracefeed/internal/caststream"
	"github.com/example/tracefeed/internal/castutil"
	"github.com/example/tracefeed/internal/config"
	"github.com/example/tracefeed/internal/feed"
	"github.com/example/tracefeed/internal/logging"
	"github.com/example/tracefeed/internal/mirrorbus"
	"github.com/example/tracefeed/internal/render"
	"github.com/example/tracefeed/internal/version"
	"github.com/example/tracefeed/internal/webapi"
)

func newLogsCommand(opts *config.Options, globals *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "logs",
		Aliases:       []string{"traces"},
		Short:         "Query and page through plugin trace logs",
		Long:          "Query the plugin trace log with optional type, text and date filters. Results are buffered in batches; --page, --last and --all choose what gets rendered, --live keeps refreshing and --interactive reads paging commands from stdin.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(cmd, opts, globals)
		},
	}
	opts.AddFlags(cmd)
	decorateCommandHelp(cmd, "Log Flags")
	return cmd
}

func runLogs(cmd *cobra.Command, opts *config.Options, globals *globalFlags) error {
	if globals.noColor {
		opts.ColorMode = string(render.ColorNever)
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	errOut := cmd.ErrOrStderr()
	logger, err := logging.NewWithWriter(globals.logLevel, errOut)
	if err != nil {
		return err
	}
	client, err := newWebAPIClient(opts, logger)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	checkTraceSetting(ctx, client, errOut, logger)

	out := cmd.OutOrStdout()
	var paged *bytes.Buffer
	if len(opts.PagerArgs) > 0 {
		paged = &bytes.Buffer{}
		out = paged
	}
	renderOpts := render.Options{
		Format:    opts.Format,
		Color:     opts.Color,
		Location:  opts.TimeLocation,
		Highlight: opts.HighlightTerms(),
		Clear:     opts.Live > 0 && !opts.Interactive && opts.Format == render.FormatTable && render.IsTerminalWriter(out),
	}
	if width, ok := render.TerminalWidth(cmd.OutOrStdout()); ok {
		renderOpts.Width = width
	}
	primary, err := render.New(out, renderOpts)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	mirrors, err := startMirrors(gctx, g, opts, orgLabel(client), logger, errOut)
	if err != nil {
		return err
	}

	latest := &viewRecorder{}
	renderers := feed.MultiRenderer{latest}
	oneShot := opts.Live == 0 && !opts.Interactive
	if !oneShot {
		renderers = append(renderers, primary)
	}
	renderers = append(renderers, mirrors...)

	engine, err := feed.New(client, renderers,
		feed.WithLogger(logger),
		feed.WithPageSize(opts.PageSize),
		feed.WithRequestSize(opts.BatchSize),
		feed.WithBudget(opts.Budget),
	)
	if err != nil {
		return err
	}
	defer engine.Close()

	g.Go(func() error {
		defer cancel()
		switch {
		case opts.Interactive:
			session := &interactiveSession{
				in:      cmd.InOrStdin(),
				out:     out,
				prompt:  errOut,
				ctl:     engine,
				latest:  latest,
				detail:  renderOpts,
				filters: opts.FilterSet(),
				opts:    opts,
			}
			return session.Run(gctx)
		case opts.Live > 0:
			if err := engine.StartLive(gctx, opts.Live); err != nil {
				return err
			}
			<-gctx.Done()
			engine.StopLive()
			return nil
		}
		stop := func(bool) {}
		if render.IsTerminalWriter(errOut) && (paged != nil || !render.IsTerminalWriter(cmd.OutOrStdout())) {
			stop = render.StartSpinner(errOut, "Loading trace logs")
		}
		err := loadOnce(gctx, engine, opts)
		stop(err == nil)
		if v, ok := latest.Latest(); ok && v.Status != feed.StatusFailed {
			primary.Render(v)
		}
		if err != nil {
			return err
		}
		if len(mirrors) > 0 {
			fmt.Fprintln(errOut, "Mirrors stay up until interrupted (Ctrl-C).")
			<-gctx.Done()
		}
		return nil
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}
	if closer, ok := primary.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if paged != nil && paged.Len() > 0 {
		if perr := runPager(ctx, opts.PagerArgs, paged, cmd.OutOrStdout(), errOut); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

// loadOnce applies the filters and navigates to the requested page.
func loadOnce(ctx context.Context, engine controller, opts *config.Options) error {
	if err := engine.ApplyFilters(ctx, opts.FilterSet()); err != nil {
		return err
	}
	if opts.All {
		if err := engine.LoadAll(ctx); err != nil {
			return err
		}
	}
	switch {
	case opts.Last:
		return engine.GoToLastPage(ctx)
	case opts.Page > 1:
		return engine.GoToPage(ctx, opts.Page)
	}
	return nil
}

func newWebAPIClient(opts *config.Options, logger logr.Logger) (*webapi.Client, error) {
	return webapi.New(webapi.Config{
		OrgURL:     opts.OrgURL,
		APIVersion: opts.APIVersion,
		Token:      opts.Token,
		Timeout:    opts.RequestTimeout,
		UserAgent:  version.UserAgent(),
		Logger:     logger,
	})
}

// checkTraceSetting warns when the organization is not recording traces.
// Older traces stay queryable, so this never fails the command.
func checkTraceSetting(ctx context.Context, client *webapi.Client, errOut io.Writer, logger logr.Logger) {
	setting, err := client.TraceSetting(ctx)
	if err != nil {
		logger.V(1).Info("unable to read trace setting", "error", err.Error())
		return
	}
	if !setting.Enabled() {
		fmt.Fprintf(errOut, "Warning: %v; only existing traces will be shown.\n", errTracingDisabled)
	}
}

func startMirrors(ctx context.Context, g *errgroup.Group, opts *config.Options, label string, logger logr.Logger, errOut io.Writer) (feed.MultiRenderer, error) {
	var mirrors feed.MultiRenderer
	if addr := opts.WSListenAddr; addr != "" {
		srv := caststream.New(addr, caststream.ModeWeb, label, logger.WithName("wscast"))
		if err := castutil.StartCastServer(ctx, srv, "tracefeed websocket mirror", logger.WithName("wscast"), errOut); err != nil {
			return nil, err
		}
		mirrors = append(mirrors, srv)
		fmt.Fprintf(errOut, "Serving tracefeed mirror on %s\n", addr)
	}
	if natsURL := opts.NATSURL; natsURL != "" {
		pub, err := mirrorbus.NewPublisher(natsURL, opts.NATSSubject, "logs", logger.WithName("mirrorbus"))
		if err != nil {
			fmt.Fprintf(errOut, "Mirror bus unavailable: %v\n", err)
			return mirrors, nil
		}
		mirrors = append(mirrors, pub)
		g.Go(func() error {
			<-ctx.Done()
			return pub.Close()
		})
		fmt.Fprintf(errOut, "Publishing pages to %s on %s\n", pub.Subject(), natsURL)
	}
	return mirrors, nil
}

func orgLabel(client *webapi.Client) string {
	base, err := url.Parse(client.BaseURL())
	if err != nil || base.Host == "" {
		return client.BaseURL()
	}
	return fmt.Sprintf("Org: %s · %s", base.Host, strings.Trim(base.Path, "/"))
}

// runPager feeds buffered output through the configured pager.
func runPager(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	pager := exec.CommandContext(ctx, args[0], args[1:]...)
	pager.Stdin = in
	pager.Stdout = out
	pager.Stderr = errOut
	pager.Env = os.Environ()
	if _, ok := os.LookupEnv("LESS"); !ok {
		pager.Env = append(pager.Env, "LESS=FRX")
	}
	if err := pager.Run(); err != nil {
		return fmt.Errorf("run pager %q: %w", args[0], err)
	}
	return nil
}

// viewRecorder remembers the latest rendered view.
type viewRecorder struct {
	mu   sync.Mutex
	view feed.View
	ok   bool
}

func (r *viewRecorder) Render(v feed.View) {
	r.mu.Lock()
	r.view = v
	r.ok = true
	r.mu.Unlock()
}

func (r *viewRecorder) Latest() (feed.View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view, r.ok
}
