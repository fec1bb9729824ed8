package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

var chatCmd = &cobra.Command{
	Use:   "chat <prompt>",
	Short: "Ask the assistant: create rules, list rules or chat",
	Args:  cobra.MinimumNArgs(1),
	RunE:  chatCommand,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

type chatResponse struct {
	Message    string                   `json:"message"`
	RuleID     string                   `json:"ruleId"`
	ParsedRule *domain.ParsedRule       `json:"parsedRule"`
	Count      *int                     `json:"count"`
	Data       []domain.RuleWithDetails `json:"data"`
}

func chatCommand(cmd *cobra.Command, args []string) error {
	client, err := authedClient()
	if err != nil {
		return err
	}
	var res chatResponse
	prompt := strings.Join(args, " ")
	if err := client.Do(cmd.Context(), "POST", "/api/v1/chat/ai", map[string]string{"prompt": prompt}, &res); err != nil {
		return err
	}

	switch {
	case res.RuleID != "":
		printParsed(cmd, res.RuleID, res.ParsedRule)
	case res.Count != nil:
		printRules(cmd, res.Data)
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d rules\n", *res.Count)
	default:
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	}
	return nil
}
