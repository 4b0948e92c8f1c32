// version.go implements 'tracefeed version'.
package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/tracefeed/internal/version"
)

func newVersionCommand() *cobra.Command {
	var short bool
	var output string
	cmd := &cobra.Command{
		Use:           "version",
		Short:         "Print the tracefeed client version information",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, info.Version)
				return nil
			}
			switch output {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			case "yaml":
				return yaml.NewEncoder(out).Encode(info)
			case "", "text":
				printVersion(out, info)
				return nil
			default:
				return fmt.Errorf("unknown --output %q (want text, json or yaml)", output)
			}
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print just the version number")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json, yaml")
	decorateCommandHelp(cmd, "Version Flags")
	return cmd
}

func printVersion(out io.Writer, info version.Info) {
	fmt.Fprintf(out, "Client Version: %s\n", info.Version)
	if info.GitCommit != "" && info.GitCommit != "unknown" {
		fmt.Fprintf(out, "GitCommit: %s\n", info.GitCommit)
	}
	if info.GitTreeState != "" && info.GitTreeState != "unknown" {
		fmt.Fprintf(out, "GitTreeState: %s\n", info.GitTreeState)
	}
	if info.BuildDate != "" && info.BuildDate != "unknown" {
		fmt.Fprintf(out, "BuildDate: %s\n", info.BuildDate)
	}
	fmt.Fprintf(out, "GoVersion: %s\n", info.GoVersion)
	fmt.Fprintf(out, "Platform: %s\n", info.Platform)
}
