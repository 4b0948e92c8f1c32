// help_template.go gives every tracefeed command the same compact help layout with named flag sections.
package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/example/tracefeed/internal/render"
)

const (
	localFlagsHeadingKey = "localFlagsHeading"
	localUsageKey        = "localFlagUsages"
	inheritedUsageKey    = "inheritedFlagUsages"
)

const defaultHelpWidth = 100

const commandHelpTemplate = `{{with or .Long .Short}}{{. | trimTrailingWhitespaces}}{{end}}

Usage:
  {{.UseLine}}
{{if gt (len .Aliases) 0}}
Aliases:
  {{.NameAndAliases}}
{{end}}
{{- if .HasAvailableSubCommands}}
Commands:
{{range .Commands}}{{if (and .IsAvailableCommand (ne .Name "help"))}}  {{rpad .Name .NamePadding}} {{.Short}}
{{end}}{{end}}{{end}}
{{- if .HasExample}}
Examples:
{{.Example}}
{{end}}
{{index .Annotations "localFlagsHeading"}}:
{{with index .Annotations "localFlagUsages"}}{{.}}{{else}}  (none){{end}}
{{with index .Annotations "inheritedFlagUsages"}}
Global Flags:
{{.}}
{{end}}`

var headingCaser = cases.Title(language.English)

func decorateCommandHelp(cmd *cobra.Command, heading string) {
	if strings.TrimSpace(heading) == "" {
		heading = headingCaser.String(cmd.Name()) + " Flags"
	}
	cmd.SetHelpTemplate(commandHelpTemplate)
	defaultHelp := cmd.HelpFunc()
	cmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd.Annotations == nil {
			cmd.Annotations = make(map[string]string)
		}
		cmd.Annotations[localFlagsHeadingKey] = heading
		setAnnotation(cmd, localUsageKey, formatFlagUsages(cmd.LocalFlags(), helpWidth()))
		setAnnotation(cmd, inheritedUsageKey, formatFlagUsages(cmd.InheritedFlags(), helpWidth()))
		defaultHelp(cmd, args)
	})
}

func setAnnotation(cmd *cobra.Command, key, value string) {
	if value == "" {
		delete(cmd.Annotations, key)
		return
	}
	cmd.Annotations[key] = value
}

func helpWidth() int {
	if width, ok := render.TerminalWidth(os.Stdout); ok && width > 40 && width < defaultHelpWidth {
		return width
	}
	return defaultHelpWidth
}

// formatFlagUsages renders visible flags only, indented by two spaces.
func formatFlagUsages(fs *pflag.FlagSet, width int) string {
	if fs == nil || !fs.HasAvailableFlags() {
		return ""
	}
	usages := fs.FlagUsagesWrapped(width)
	usages = strings.ReplaceAll(usages, "\t", "  ")
	return strings.TrimRight(usages, "\n")
}
