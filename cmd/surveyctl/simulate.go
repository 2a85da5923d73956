package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stemsi/survey-backend/internal/model"
	"github.com/stemsi/survey-backend/internal/routing"
	"github.com/stemsi/survey-backend/internal/session"
)

// step is one respondent action. Action defaults to "answer".
type step struct {
	Action     string       `json:"action"`
	SectionID  string       `json:"section_id"`
	QuestionID string       `json:"question_id"`
	Value      model.Answer `json:"value"`
}

// stepResult records what a step did to the session.
type stepResult struct {
	Step    int    `json:"step"`
	Action  string `json:"action"`
	Section string `json:"section"`
	Error   string `json:"error,omitempty"`
	Pruned  int    `json:"pruned,omitempty"`
}

type simulation struct {
	Steps []stepResult `json:"steps"`
	View  session.View `json:"view"`
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <definition> <steps>",
	Short: "Replay respondent actions against a survey definition",
	Long: `Simulate starts a session on the definition and applies the steps file,
a JSON or YAML list of actions:

  - {section_id: S1, question_id: Q1, value: "a"}
  - {action: next}
  - {action: jump, section_id: S3}

Actions are answer (default), next, back, jump, reset and submit. Rejected
steps are reported and skipped. The final session view is printed.

Examples:
  surveyctl simulate store-audit.yaml walk.yaml
  surveyctl simulate store-audit.json walk.json --region IN --format json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		region, _ := cmd.Flags().GetString("region")

		survey, _, err := readDefinition(args[0])
		if err != nil {
			return err
		}
		steps, err := readSteps(args[1])
		if err != nil {
			return err
		}
		engine, err := routing.NewEngine(survey, zerolog.Nop())
		if err != nil {
			return fmt.Errorf("build engine: %w", err)
		}

		sim := simulate(engine, model.SessionContext{
			FormID:    strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0])),
			SessionID: "simulation",
			Region:    strings.ToUpper(region),
		}, steps)
		return writeSimulation(cmd.OutOrStdout(), sim, format)
	},
}

func init() {
	simulateCmd.Flags().String("format", "text", "Output format (text, json)")
	simulateCmd.Flags().String("region", "", "Respondent region code")
}

func readSteps(path string) ([]step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		var doc []any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("re-encode %s: %w", path, err)
		}
	}

	var steps []step
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return steps, nil
}

// simulate applies steps in order. Answers are recomputed immediately, as
// if every debounce window had elapsed.
func simulate(e *routing.Engine, sc model.SessionContext, steps []step) simulation {
	state := session.NewState(e, sc)
	results := make([]stepResult, 0, len(steps))

	for i, st := range steps {
		action := strings.ToLower(strings.TrimSpace(st.Action))
		if action == "" {
			action = "answer"
		}

		next, eff, err := session.Reduce(e, state, event(action, st))
		if err == nil && action == "answer" {
			var reff session.Effects
			next, reff, err = session.Reduce(e, next, session.Recompute{})
			eff.Pruned += reff.Pruned
		}

		res := stepResult{Step: i + 1, Action: action, Pruned: eff.Pruned}
		switch {
		case err == nil:
			state = next
		case errors.Is(err, session.ErrValidation):
			// Keep the error markers, not the move.
			state = next
			res.Error = fmt.Sprintf("%v: %s", err, joinErrors(next.Errors))
		default:
			res.Error = err.Error()
		}
		res.Section = state.CurrentSection
		results = append(results, res)
	}

	return simulation{Steps: results, View: session.BuildView(e, state)}
}

func event(action string, st step) session.Event {
	switch action {
	case "next":
		return session.NavigateNext{}
	case "back":
		return session.NavigateBack{}
	case "jump":
		return session.JumpTo{SectionID: st.SectionID}
	case "reset":
		return session.Reset{}
	case "submit":
		return session.Submit{}
	default:
		return session.AnswerChanged{SectionID: st.SectionID, QuestionID: st.QuestionID, Value: st.Value}
	}
}

func joinErrors(errs routing.FieldErrors) string {
	parts := make([]string, 0, len(errs))
	for key, msg := range errs {
		parts = append(parts, key+" "+msg)
	}
	slices.Sort(parts)
	return strings.Join(parts, "; ")
}

func writeSimulation(w io.Writer, sim simulation, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sim)
	}

	var b strings.Builder
	for _, r := range sim.Steps {
		fmt.Fprintf(&b, "%3d %-7s -> %s", r.Step, r.Action, r.Section)
		if r.Pruned > 0 {
			fmt.Fprintf(&b, " (pruned %d)", r.Pruned)
		}
		if r.Error != "" {
			fmt.Fprintf(&b, " REJECTED: %s", r.Error)
		}
		b.WriteByte('\n')
	}

	v := sim.View
	fmt.Fprintf(&b, "\nstatus %s, progress %.0f%%, can submit %t\n", v.Status, v.Progress, v.CanSubmit)
	b.WriteString("sections:\n")
	for _, s := range v.Sections {
		marker := " "
		if s.Current {
			marker = ">"
		}
		done := ""
		if s.Complete {
			done = " (complete)"
		}
		fmt.Fprintf(&b, " %s %s %s%s\n", marker, s.ID, s.Title, done)
	}
	fmt.Fprintf(&b, "questions in %s:\n", v.CurrentSection)
	for _, q := range v.Questions {
		answer := "-"
		if q.Answer != nil && q.Answer.HasValue() {
			answer = q.Answer.String()
		}
		fmt.Fprintf(&b, "   %s %s: %s\n", q.ID, q.Type, answer)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
