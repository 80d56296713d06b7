package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "comb",
	Short: "Comb - HiveLab element deployment sandbox",
	Long: `Comb runs HiveLab element deployments in local Docker sandboxes.

Each deployment gets its own Redis mailbox, a hived host daemon, and one
drone container per element instance, wired together on an isolated
Docker network. Deployments on the same Redis server can share state
through connections.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
