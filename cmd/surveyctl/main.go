package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stemsi/survey-backend/internal/model"
)

var rootCmd = &cobra.Command{
	Use:   "surveyctl",
	Short: "Inspect and load branching survey definitions",
	Long: `surveyctl works with survey definitions in JSON or YAML.

It checks routing rules for mistakes, replays answers against a definition
to show which sections and questions a respondent would see, and imports
definitions into the survey database.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(lintCmd, simulateCmd, importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readDefinition loads a definition file. YAML files are converted to the
// JSON document form, which is what the database stores.
func readDefinition(path string) (*model.Survey, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}

	var survey *model.Survey
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		survey, err = model.ParseSurveyYAML(data)
		if err == nil {
			data, err = survey.MarshalJSON()
		}
	default:
		survey, err = model.ParseSurvey(data)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return survey, data, nil
}
