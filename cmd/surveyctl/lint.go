package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stemsi/survey-backend/internal/routing"
)

var errLintFailed = errors.New("definition has lint errors")

var lintCmd = &cobra.Command{
	Use:   "lint <file>",
	Short: "Report routing problems in a survey definition",
	Long: `Lint checks branching rules: unknown condition functions, missing
operands, route targets that do not exist and sections nothing can reach.

Examples:
  surveyctl lint store-audit.yaml
  surveyctl lint store-audit.json --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		survey, _, err := readDefinition(args[0])
		if err != nil {
			return err
		}
		issues := routing.Lint(survey)
		if err := writeIssues(cmd.OutOrStdout(), issues, format); err != nil {
			return err
		}
		if routing.HasErrors(issues) {
			return errLintFailed
		}
		return nil
	},
}

func init() {
	lintCmd.Flags().String("format", "text", "Output format (text, json)")
}

func writeIssues(w io.Writer, issues []routing.Issue, format string) error {
	if format == "json" {
		if issues == nil {
			issues = []routing.Issue{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(issues)
	}

	if len(issues) == 0 {
		_, err := fmt.Fprintln(w, "no issues found")
		return err
	}
	for _, is := range issues {
		if _, err := fmt.Fprintln(w, is.String()); err != nil {
			return err
		}
	}
	return nil
}
