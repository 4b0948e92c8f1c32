// status.go implements 'tracefeed status', a connectivity check that reports the caller and the org's trace setting.
package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/tracefeed/internal/config"
	"github.com/example/tracefeed/internal/logging"
	"github.com/example/tracefeed/internal/render"
	"github.com/example/tracefeed/internal/webapi"
)

type statusReport struct {
	Endpoint     string          `json:"endpoint" yaml:"endpoint"`
	Identity     webapi.Identity `json:"identity" yaml:"identity"`
	TraceSetting string          `json:"traceSetting" yaml:"traceSetting"`
	Tracing      bool            `json:"tracing" yaml:"tracing"`
}

func newStatusCommand(globals *globalFlags) *cobra.Command {
	opts := config.NewOptions()
	var output string
	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Check the connection and whether plugin tracing is enabled",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts, globals, output)
		},
	}
	opts.AddConnectionFlags(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json, yaml")
	decorateCommandHelp(cmd, "Status Flags")
	return cmd
}

func runStatus(cmd *cobra.Command, opts *config.Options, globals *globalFlags, output string) error {
	switch output {
	case "", "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown --output %q (want text, json or yaml)", output)
	}
	if err := opts.ValidateConnection(); err != nil {
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

	stop := func(bool) {}
	if render.IsTerminalWriter(errOut) {
		stop = render.StartSpinner(errOut, "Contacting "+client.BaseURL())
	}
	id, err := client.WhoAmI(ctx)
	if err != nil {
		stop(false)
		return err
	}
	setting, err := client.TraceSetting(ctx)
	stop(err == nil)
	if err != nil {
		return err
	}
	report := statusReport{
		Endpoint:     client.BaseURL(),
		Identity:     id,
		TraceSetting: setting.String(),
		Tracing:      setting.Enabled(),
	}
	out := cmd.OutOrStdout()
	switch output {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	case "yaml":
		if err := yaml.NewEncoder(out).Encode(report); err != nil {
			return err
		}
	default:
		printStatus(out, report)
	}
	if !report.Tracing {
		return errTracingDisabled
	}
	return nil
}

func printStatus(out io.Writer, r statusReport) {
	fmt.Fprintf(out, "Endpoint:       %s\n", r.Endpoint)
	fmt.Fprintf(out, "User:           %s\n", r.Identity.UserID)
	fmt.Fprintf(out, "Business unit:  %s\n", r.Identity.BusinessUnitID)
	fmt.Fprintf(out, "Organization:   %s\n", r.Identity.OrganizationID)
	fmt.Fprintf(out, "Trace setting:  %s\n", r.TraceSetting)
}
