package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

var (
	listPage       int
	listLimit      int
	listDepartment string
	listActive     string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules visible to you",
	Args:  cobra.NoArgs,
	RunE:  rulesListCommand,
}

var rulesGetCmd = &cobra.Command{
	Use:   "get <rule-id>",
	Short: "Show one rule with its conditions and actions",
	Args:  cobra.ExactArgs(1),
	RunE:  rulesGetCommand,
}

var rulesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show rule counts",
	Args:  cobra.NoArgs,
	RunE:  rulesStatsCommand,
}

var rulesToggleCmd = &cobra.Command{
	Use:   "toggle <rule-id>",
	Short: "Flip a rule between active and inactive",
	Args:  cobra.ExactArgs(1),
	RunE:  rulesToggleCommand,
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <rule-id>",
	Short: "Delete a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  rulesDeleteCommand,
}

var rulesNLPCmd = &cobra.Command{
	Use:   "nlp <prompt>",
	Short: "Create a rule from plain English",
	Long: `Send a prompt to the rule parser and store the result.

  rulectl rules nlp "if age is greater than 60 tag the customer as senior"`,
	Args: cobra.MinimumNArgs(1),
	RunE: rulesNLPCommand,
}

func init() {
	rulesListCmd.Flags().IntVar(&listPage, "page", 1, "Page number")
	rulesListCmd.Flags().IntVar(&listLimit, "limit", 10, "Rules per page (max 100)")
	rulesListCmd.Flags().StringVar(&listDepartment, "department", "", "Department filter (super-admins only)")
	rulesListCmd.Flags().StringVar(&listActive, "active", "", "Filter by status: true or false")

	rulesCmd.AddCommand(rulesListCmd, rulesGetCmd, rulesStatsCmd, rulesToggleCmd, rulesDeleteCmd, rulesNLPCmd)
	rootCmd.AddCommand(rulesCmd)
}

type rulePage struct {
	Data  []domain.RuleWithDetails `json:"data"`
	Total int                      `json:"total"`
	Page  int                      `json:"page"`
	Limit int                      `json:"limit"`
}

func rulesListCommand(cmd *cobra.Command, args []string) error {
	client, err := authedClient()
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(listPage))
	q.Set("limit", strconv.Itoa(listLimit))
	if listDepartment != "" {
		q.Set("department", listDepartment)
	}
	if listActive != "" {
		q.Set("is_active", listActive)
	}

	var page rulePage
	if err := client.Do(cmd.Context(), "GET", "/api/v1/rules?"+q.Encode(), nil, &page); err != nil {
		return err
	}
	printRules(cmd, page.Data)
	fmt.Fprintf(cmd.OutOrStdout(), "\npage %d, %d of %d rules\n", page.Page, len(page.Data), page.Total)
	return nil
}

func printRules(cmd *cobra.Command, rules []domain.RuleWithDetails) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tDEPARTMENT\tACTIVE\tCONDITIONS\tACTIONS")
	for _, r := range rules {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%d\n",
			r.ID, r.Title, deref(r.Department), r.IsActive, len(r.Conditions), len(r.Actions))
	}
	w.Flush()
}

func rulesGetCommand(cmd *cobra.Command, args []string) error {
	client, err := authedClient()
	if err != nil {
		return err
	}
	var rule domain.RuleWithDetails
	if err := client.Do(cmd.Context(), "GET", "/api/v1/rules/"+url.PathEscape(args[0]), nil, &rule); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s\n", rule.ID, rule.Title)
	fmt.Fprintf(out, "Department: %s   Active: %t   Logic: %s\n", deref(rule.Department), rule.IsActive, deref(rule.Logic))
	fmt.Fprintln(out, "Conditions:")
	for _, c := range rule.Conditions {
		fmt.Fprintf(out, "  %s %s %s\n", c.Field, c.Operator, c.Value)
	}
	fmt.Fprintln(out, "Actions:")
	for _, a := range rule.Actions {
		fmt.Fprintf(out, "  %s %s\n", a.Type, a.Value)
	}
	return nil
}

func rulesStatsCommand(cmd *cobra.Command, args []string) error {
	client, err := authedClient()
	if err != nil {
		return err
	}
	var stats domain.RuleStats
	if err := client.Do(cmd.Context(), "GET", "/api/v1/rules/stats/rules", nil, &stats); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "total %d  active %d  inactive %d  departments %d\n",
		stats.TotalRules, stats.ActiveRules, stats.InactiveRules, stats.TotalDepartments)
	return nil
}

func rulesToggleCommand(cmd *cobra.Command, args []string) error {
	client, err := authedClient()
	if err != nil {
		return err
	}
	var res struct {
		IsActive bool `json:"is_active"`
	}
	if err := client.Do(cmd.Context(), "PATCH", "/api/v1/rules/"+url.PathEscape(args[0])+"/toggle", nil, &res); err != nil {
		return err
	}
	state := "inactive"
	if res.IsActive {
		state = "active"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Rule %s is now %s\n", args[0], state)
	return nil
}

func rulesDeleteCommand(cmd *cobra.Command, args []string) error {
	client, err := authedClient()
	if err != nil {
		return err
	}
	if err := client.Do(cmd.Context(), "DELETE", "/api/v1/rules/"+url.PathEscape(args[0]), nil, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Rule %s deleted\n", args[0])
	return nil
}

func rulesNLPCommand(cmd *cobra.Command, args []string) error {
	client, err := authedClient()
	if err != nil {
		return err
	}
	var res struct {
		RuleID     string             `json:"ruleId"`
		ParsedRule *domain.ParsedRule `json:"parsedRule"`
	}
	prompt := strings.Join(args, " ")
	if err := client.Do(cmd.Context(), "POST", "/api/v1/rules/nlp", map[string]string{"prompt": prompt}, &res); err != nil {
		return err
	}
	printParsed(cmd, res.RuleID, res.ParsedRule)
	return nil
}

func printParsed(cmd *cobra.Command, id string, p *domain.ParsedRule) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Rule created: %s\n", id)
	if p == nil {
		return
	}
	fmt.Fprintf(out, "  %s (%s)\n", p.Rule.Title, p.Rule.Department)
	for _, c := range p.Conditions {
		fmt.Fprintf(out, "  if %s %s %s\n", c.Field, c.Operator, c.Value)
	}
	for _, a := range p.Actions {
		fmt.Fprintf(out, "  then %s %s\n", a.Type, a.Value)
	}
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
