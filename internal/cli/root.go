// Package cli implements rulectl, the operator command line for the RuleMaster API.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	profilePath string
	serverURL   string
)

var rootCmd = &cobra.Command{
	Use:   "rulectl",
	Short: "rulectl - operator CLI for the RuleMaster API",
	Long: `rulectl talks to a RuleMaster server: log in through Keycloak, manage
rules, create rules from plain English and administer tenants and users.

The session is kept in ~/.rulectl/profile.yaml.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "Path to profile file (default: ~/.rulectl/profile.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "RuleMaster base URL (overrides the profile, default: http://localhost:8080)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
