// main.go bootstraps tracefeed: it builds the root Cobra command, wires profiling, and executes with signal-aware contexts.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/tracefeed/internal/config"
	"github.com/example/tracefeed/internal/feed"
	"github.com/example/tracefeed/internal/logging"
	"github.com/example/tracefeed/internal/webapi"
)

// errTracingDisabled is returned when the organization does not record plugin traces.
var errTracingDisabled = errors.New("plugin trace logging is off for this organization")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stopProfile := setupProfiling()
	defer stopProfile()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	handleError(os.Stderr, err)
	if err != nil {
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	logLevel string
	noColor  bool
}

func newRootCommand() *cobra.Command {
	// Root and logs each get their own Options.
	opts := config.NewOptions()
	globals := &globalFlags{logLevel: "info"}
	cmd := &cobra.Command{
		Use:           "tracefeed",
		Short:         "Page through plugin trace logs from the command line",
		Long:          "tracefeed queries an organization's plugin trace log, buffers results in large batches and renders them page by page. Live mode re-runs the query on an interval.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if globals.noColor {
				color.NoColor = true
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().NFlag() == 0 && strings.TrimSpace(opts.OrgURL) == "" {
				return cmd.Help()
			}
			return runLogs(cmd, opts, globals)
		},
	}
	cmd.PersistentFlags().StringVar(&globals.logLevel, "log-level", globals.logLevel, fmt.Sprintf("Log level for tracefeed diagnostics (%s)", strings.Join(logging.Levels, ", ")))
	cmd.PersistentFlags().BoolVar(&globals.noColor, "no-color", false, "Disable colored output (same as --color never)")

	// The root command runs logs directly, so it carries the same flags hidden.
	logFlagNames := opts.BindFlags(cmd.Flags())
	hideFlags(cmd.Flags(), logFlagNames)

	logsCmd := newLogsCommand(config.NewOptions(), globals)
	statusCmd := newStatusCommand(globals)
	cmd.AddCommand(logsCmd, statusCmd, newVersionCommand())
	cmd.Example = `  # Show the newest plugin traces for one plugin
  tracefeed logs --org contoso.crm.dynamics.com --token-file ~/.tracefeed/token -t AccountPlugin

  # Everything that failed yesterday, as JSON
  tracefeed logs -q exception --from 2024-05-01 --to 2024-05-01 --all -o json

  # Follow new traces every 10 seconds and mirror them to a browser
  tracefeed logs --live 10s --ws-listen :9090

  # Check the connection and the trace setting
  tracefeed status`
	decorateCommandHelp(cmd, "Global Flags")
	bindViper(cmd, logsCmd, statusCmd)
	return cmd
}

func bindViper(commands ...*cobra.Command) {
	if len(commands) == 0 {
		return
	}
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("TRACEFEED")
	v.AutomaticEnv()
	configFile := os.Getenv("TRACEFEED_CONFIG")
	configureConfigFile(v, configFile)

	cobra.OnInitialize(func() {
		for _, cmd := range commands {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				cobra.CheckErr(err)
			}
			if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
				cobra.CheckErr(err)
			}
		}
		if err := readConfigFile(v, configFile != ""); err != nil {
			cobra.CheckErr(err)
		}
		for _, cmd := range commands {
			applyViperDefaults(v, cmd.Flags(), cmd.PersistentFlags())
		}
	})
}

// applyViperDefaults copies env and config-file values into flags the user
// did not set on the command line.
func applyViperDefaults(v *viper.Viper, sets ...*pflag.FlagSet) {
	for _, fs := range sets {
		fs.VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				return
			}
			if !v.IsSet(f.Name) {
				return
			}
			val := fmt.Sprintf("%v", v.Get(f.Name))
			if val != "" {
				_ = f.Value.Set(val)
			}
		})
	}
}

func handleError(w io.Writer, err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	fmt.Fprintf(w, "Error: %s\n", errorMessage(err))
}

func errorMessage(err error) string {
	message := err.Error()
	if wait, ok := webapi.IsThrottled(err); ok {
		hint := "the service is throttling requests; wait a moment or lower --batch-size/--budget."
		if wait > 0 {
			hint = fmt.Sprintf("the service asked to retry after %s; lower --batch-size/--budget or raise --live.", wait.Round(time.Second))
		}
		return fmt.Sprintf("%s\nHint: %s", message, hint)
	}
	switch {
	case errors.Is(err, errTracingDisabled):
		message = fmt.Sprintf("%s\nHint: enable 'Plug-in and custom workflow activity tracing' in the system settings, then retry.", err)
	case webapi.IsUnauthorized(err):
		message = fmt.Sprintf("%s\nHint: the bearer token was rejected. Refresh it and pass --token or --token-file.", err)
	case errors.Is(err, context.DeadlineExceeded):
		message = fmt.Sprintf("%s\nHint: increase --request-timeout or narrow the query with --from/--to.", err)
	case errors.Is(err, feed.ErrInvalidPageSize):
		message = fmt.Sprintf("%s\nHint: --page-size accepts %d-%d.", err, feed.MinPageSize, feed.MaxPageSize)
	}
	return message
}

func configureConfigFile(v *viper.Viper, explicitPath string) {
	if explicitPath != "" {
		if expanded, err := homedir.Expand(explicitPath); err == nil {
			explicitPath = expanded
		}
		v.SetConfigFile(explicitPath)
		return
	}
	v.SetConfigName("config")
	for _, dir := range configSearchDirs() {
		v.AddConfigPath(dir)
	}
}

func readConfigFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if errors.As(err, &cfgErr) && !strict {
			return nil
		}
		return err
	}
	return nil
}

func hideFlags(fs *pflag.FlagSet, names []string) {
	if fs == nil {
		return
	}
	for _, name := range names {
		_ = fs.MarkHidden(name)
	}
}

func configSearchDirs() []string {
	added := make(map[string]struct{})
	var dirs []string
	add := func(path string) {
		if path == "" {
			return
		}
		if _, ok := added[path]; ok {
			return
		}
		added[path] = struct{}{}
		dirs = append(dirs, path)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		add(filepath.Join(xdg, "tracefeed"))
	}
	if home, err := homedir.Dir(); err == nil && home != "" {
		add(filepath.Join(home, ".config", "tracefeed"))
		add(filepath.Join(home, ".tracefeed"))
	}
	return dirs
}

func setupProfiling() func() {
	mode := strings.ToLower(os.Getenv("TRACEFEED_PROFILE"))
	if mode != "startup" {
		return func() {}
	}
	ts := time.Now().UTC().Format("20060102-150405")
	cpuPath := fmt.Sprintf("tracefeed-%s.cpu.pprof", ts)
	cpuFile, err := os.Create(cpuPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to create CPU profile %s: %v\n", cpuPath, err)
		return func() {}
	}
	if err := pprof.StartCPUProfile(cpuFile); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to start CPU profile: %v\n", err)
		cpuFile.Close()
		return func() {}
	}
	fmt.Fprintf(os.Stderr, "TRACEFEED_PROFILE=startup: writing CPU profile to %s\n", cpuPath)
	memPath := fmt.Sprintf("tracefeed-%s.mem.pprof", ts)
	return func() {
		pprof.StopCPUProfile()
		cpuFile.Close()
		memFile, err := os.Create(memPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to create heap profile %s: %v\n", memPath, err)
			return
		}
		defer memFile.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(memFile); err != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to write heap profile: %v\n", err)
			return
		}
		fmt.Fprintf(os.Stderr, "TRACEFEED_PROFILE=startup: writing heap profile to %s\n", memPath)
	}
}
