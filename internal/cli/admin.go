package cli

import (
	"fmt"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "Manage tenants (super-admin)",
}

var tenantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}
		var res struct {
			Tenants []string `json:"tenants"`
		}
		if err := client.Do(cmd.Context(), "GET", "/api/v1/tenants", nil, &res); err != nil {
			return err
		}
		for _, t := range res.Tenants {
			fmt.Fprintln(cmd.OutOrStdout(), t)
		}
		return nil
	},
}

var tenantsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}
		var res struct {
			Message string `json:"message"`
		}
		if err := client.Do(cmd.Context(), "POST", "/api/v1/tenants", map[string]string{"realmName": args[0]}, &res); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ "+res.Message)
		return nil
	},
}

var tenantsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}
		if err := client.Do(cmd.Context(), "DELETE", "/api/v1/tenants/"+url.PathEscape(args[0]), nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Tenant %s deleted\n", args[0])
		return nil
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Inspect users (admin)",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users with their roles and groups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}
		var users []domain.IdentityUser
		if err := client.Do(cmd.Context(), "GET", "/api/v1/users", nil, &users); err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "USERNAME\tEMAIL\tROLES\tGROUPS")
		for _, u := range users {
			if u.Error != "" {
				fmt.Fprintf(w, "%s\t%s\t(%s)\t\n", u.Username, u.Email, u.Error)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.Username, u.Email, strings.Join(u.Roles, ","), strings.Join(u.Groups, ","))
		}
		return w.Flush()
	},
}

func init() {
	tenantsCmd.AddCommand(tenantsListCmd, tenantsCreateCmd, tenantsDeleteCmd)
	usersCmd.AddCommand(usersListCmd)
	rootCmd.AddCommand(tenantsCmd, usersCmd)
}
