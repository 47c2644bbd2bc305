package cmd

import (
	"errors"
	"os"
	"strings"

	"github.com/marcus/agencysync/internal/client"
	"github.com/marcus/agencysync/internal/config"
	"github.com/marcus/agencysync/internal/output"
	"github.com/spf13/cobra"
)

var (
	versionStr string
	configPath string
	apiURL     string
)

// SetVersion sets the version string
func SetVersion(v string) {
	versionStr = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "agencysync",
	Short: "Offline-first state sync for the agency back office",
	Long: `agencysync keeps an agency back office's customers, requests, messages,
payments, claims, agents and admins in sync between sibling instances and the
remote store, queueing every change made while offline and replaying it in
order on reconnect.

Start an instance with "agencysync run"; every other command talks to a
running instance over its local API.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// nameWithAliases returns "name, alias1, alias2" if aliases exist, else just "name"
func nameWithAliases(cmd *cobra.Command) string {
	if len(cmd.Aliases) > 0 {
		return cmd.Name() + ", " + strings.Join(cmd.Aliases, ", ")
	}
	return cmd.Name()
}

func init() {
	cobra.AddTemplateFunc("nameWithAliases", nameWithAliases)
	cobra.AddTemplateFunc("add", func(a, b int) int { return a + b })

	// Custom usage template that shows aliases inline
	rootCmd.SetUsageTemplate(`Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

Additional Commands:{{range $cmds}}{{if (and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`)

	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "inspect", Title: "Inspection Commands:"},
		&cobra.Group{ID: "control", Title: "Control Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)
	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/agencysync/config.json)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "instance API URL (overrides api_url)")
}

// loadConfig reads the config named by --config.
func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

// newClient returns a client for the instance the CLI should talk to.
func newClient() (*client.Client, error) {
	if apiURL != "" {
		return client.New(apiURL), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return client.New(cfg.APIURL), nil
}

// fail reports err in the requested format and returns it for RunE.
func fail(jsonOut bool, err error) error {
	if jsonOut {
		output.JSONError(errorCode(err), err.Error())
	} else {
		output.Error("%v", err)
	}
	return err
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, client.ErrNotFound):
		return output.ErrCodeNotFound
	case errors.Is(err, client.ErrBadRequest):
		return output.ErrCodeInvalidInput
	case errors.Is(err, client.ErrUnavailable):
		return output.ErrCodeUnavailable
	default:
		return output.ErrCodeInternal
	}
}
