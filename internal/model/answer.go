package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// AnswerKind discriminates the shapes an answer value can take.
type AnswerKind uint8

const (
	AnswerNone AnswerKind = iota
	AnswerText
	AnswerNumber
	AnswerChoice
	AnswerChoices
	AnswerMatrix
)

func (k AnswerKind) String() string {
	switch k {
	case AnswerText:
		return "text"
	case AnswerNumber:
		return "number"
	case AnswerChoice:
		return "choice"
	case AnswerChoices:
		return "choices"
	case AnswerMatrix:
		return "matrix"
	default:
		return "none"
	}
}

// Choice is a selected option. Boxed choices were sent as
// {"optionId": ..., "otherText": ...} rather than a bare id.
type Choice struct {
	OptionID  string
	OtherText string
	Boxed     bool
}

// MatrixRow holds the selected column indexes of one matrix row.
type MatrixRow struct {
	Key   string `json:"key"`
	Value []int  `json:"value"`
}

// Answer is a tagged union over every answer shape a question can hold.
// The zero value is the absent answer.
type Answer struct {
	Kind    AnswerKind
	Text    string
	Number  float64
	Choice  Choice
	Choices []Choice
	Matrix  []MatrixRow
}

// Snapshot maps a fully-qualified question id (section/question) to its answer.
type Snapshot map[string]Answer

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v.Clone()
	}
	return out
}

// ─── Constructors ───────────────────────────────────────────────────

func TextAnswer(s string) Answer { return Answer{Kind: AnswerText, Text: s} }

func NumberAnswer(f float64) Answer { return Answer{Kind: AnswerNumber, Number: f} }

// ChoiceAnswer returns a boxed single selection.
func ChoiceAnswer(optionID, otherText string) Answer {
	return Answer{Kind: AnswerChoice, Choice: Choice{OptionID: optionID, OtherText: otherText, Boxed: true}}
}

// ChoicesAnswer returns a plain multi-selection.
func ChoicesAnswer(optionIDs ...string) Answer {
	cs := make([]Choice, 0, len(optionIDs))
	for _, id := range optionIDs {
		cs = append(cs, Choice{OptionID: id})
	}
	return Answer{Kind: AnswerChoices, Choices: cs}
}

func MatrixAnswer(rows ...MatrixRow) Answer {
	if rows == nil {
		rows = []MatrixRow{}
	}
	return Answer{Kind: AnswerMatrix, Matrix: rows}
}

// ─── Predicates ─────────────────────────────────────────────────────

// HasValue reports whether the answer is present and not the empty string.
// Empty lists still count as a value.
func (a Answer) HasValue() bool {
	switch a.Kind {
	case AnswerNone:
		return false
	case AnswerText:
		return a.Text != ""
	}
	return true
}

// IsAnswered is HasValue with empty lists and empty matrices treated as
// unanswered.
func (a Answer) IsAnswered() bool {
	switch a.Kind {
	case AnswerChoices:
		return len(a.Choices) > 0
	case AnswerMatrix:
		return len(a.Matrix) > 0
	}
	return a.HasValue()
}

func (a Answer) isList() bool {
	return a.Kind == AnswerChoices || a.Kind == AnswerMatrix
}

func (a Answer) listLen() int {
	if a.Kind == AnswerMatrix {
		return len(a.Matrix)
	}
	return len(a.Choices)
}

// Selections returns the selected option ids of a choice-like answer.
// A text answer is treated as a single bare option id.
func (a Answer) Selections() []string {
	switch a.Kind {
	case AnswerText:
		if a.Text == "" {
			return nil
		}
		return []string{a.Text}
	case AnswerChoice:
		return []string{a.Choice.OptionID}
	case AnswerChoices:
		ids := make([]string, 0, len(a.Choices))
		for _, c := range a.Choices {
			ids = append(ids, c.OptionID)
		}
		return ids
	}
	return nil
}

// MatrixAllEmpty reports whether every matrix row has no selection.
func (a Answer) MatrixAllEmpty() bool {
	for _, r := range a.Matrix {
		if len(r.Value) > 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the answer.
func (a Answer) Clone() Answer {
	out := a
	if a.Choices != nil {
		out.Choices = slices.Clone(a.Choices)
	}
	if a.Matrix != nil {
		out.Matrix = make([]MatrixRow, len(a.Matrix))
		for i, r := range a.Matrix {
			out.Matrix[i] = MatrixRow{Key: r.Key, Value: slices.Clone(r.Value)}
		}
	}
	return out
}

// ─── Equality ───────────────────────────────────────────────────────

// Equal reports whether two answers denote the same logical value.
// Matrix rows compare by key with sorted column sets, plain option lists
// compare as sorted multisets and boxed lists compare element-wise.
// Any two empty lists are equal regardless of kind.
func (a Answer) Equal(b Answer) bool {
	if a.isList() && b.isList() && a.listLen() == 0 && b.listLen() == 0 {
		return true
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case AnswerNone:
		return true
	case AnswerText:
		return a.Text == b.Text
	case AnswerNumber:
		return a.Number == b.Number
	case AnswerChoice:
		return a.Choice == b.Choice
	case AnswerChoices:
		return choicesEqual(a.Choices, b.Choices)
	case AnswerMatrix:
		return matrixEqual(a.Matrix, b.Matrix)
	}
	return false
}

func choicesEqual(a, b []Choice) bool {
	if len(a) != len(b) {
		return false
	}
	if isPlain(a) && isPlain(b) {
		x := make([]string, len(a))
		y := make([]string, len(b))
		for i := range a {
			x[i], y[i] = a[i].OptionID, b[i].OptionID
		}
		slices.Sort(x)
		slices.Sort(y)
		return slices.Equal(x, y)
	}
	return slices.Equal(a, b)
}

func isPlain(cs []Choice) bool {
	for _, c := range cs {
		if c.Boxed {
			return false
		}
	}
	return true
}

func matrixEqual(a, b []MatrixRow) bool {
	if len(a) != len(b) {
		return false
	}
	norm := func(rows []MatrixRow) map[string][]int {
		m := make(map[string][]int, len(rows))
		for _, r := range rows {
			v := slices.Clone(r.Value)
			slices.Sort(v)
			m[r.Key] = v
		}
		return m
	}
	return maps.EqualFunc(norm(a), norm(b), slices.Equal[[]int])
}

// ─── Presentation ───────────────────────────────────────────────────

// String renders the answer the way it is stored in answer_text columns.
func (a Answer) String() string {
	switch a.Kind {
	case AnswerText:
		return a.Text
	case AnswerNumber:
		return strconv.FormatFloat(a.Number, 'f', -1, 64)
	case AnswerChoice:
		if a.Choice.OtherText != "" {
			return a.Choice.OptionID + ": " + a.Choice.OtherText
		}
		return a.Choice.OptionID
	case AnswerChoices:
		parts := make([]string, 0, len(a.Choices))
		for _, c := range a.Choices {
			if c.OtherText != "" {
				parts = append(parts, c.OptionID+": "+c.OtherText)
				continue
			}
			parts = append(parts, c.OptionID)
		}
		return strings.Join(parts, ", ")
	case AnswerMatrix:
		b, _ := json.Marshal(a.Matrix)
		return string(b)
	}
	return ""
}

// ─── JSON ───────────────────────────────────────────────────────────

type boxedChoice struct {
	OptionID  FlexString `json:"optionId"`
	OtherText string     `json:"otherText,omitempty"`
}

func (c Choice) MarshalJSON() ([]byte, error) {
	if !c.Boxed {
		return json.Marshal(c.OptionID)
	}
	return json.Marshal(boxedChoice{OptionID: FlexString(c.OptionID), OtherText: c.OtherText})
}

func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AnswerText:
		return json.Marshal(a.Text)
	case AnswerNumber:
		return json.Marshal(a.Number)
	case AnswerChoice:
		return json.Marshal(a.Choice)
	case AnswerChoices:
		if a.Choices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Choices)
	case AnswerMatrix:
		if a.Matrix == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Matrix)
	}
	return []byte("null"), nil
}

func (a *Answer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if isNull(b) {
		*a = Answer{}
		return nil
	}

	switch b[0] {
	case '{':
		c, err := decodeBoxed(b)
		if err != nil {
			return err
		}
		*a = Answer{Kind: AnswerChoice, Choice: c}
		return nil
	case '[':
		return a.unmarshalList(b)
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = TextAnswer(s)
		return nil
	case 't', 'f':
		s, err := looseString(b)
		if err != nil {
			return err
		}
		*a = TextAnswer(s)
		return nil
	default:
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return err
		}
		*a = NumberAnswer(f)
		return nil
	}
}

func (a *Answer) unmarshalList(b []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	if len(items) == 0 {
		*a = Answer{Kind: AnswerChoices, Choices: []Choice{}}
		return nil
	}

	if isObject(items[0]) {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(items[0], &probe); err != nil {
			return err
		}
		if _, ok := probe["key"]; ok {
			var rows []MatrixRow
			if err := json.Unmarshal(b, &rows); err != nil {
				return fmt.Errorf("decode matrix answer: %w", err)
			}
			for i := range rows {
				if rows[i].Value == nil {
					rows[i].Value = []int{}
				}
			}
			*a = MatrixAnswer(rows...)
			return nil
		}
	}

	cs := make([]Choice, 0, len(items))
	for _, item := range items {
		if isObject(item) {
			c, err := decodeBoxed(item)
			if err != nil {
				return err
			}
			cs = append(cs, c)
			continue
		}
		id, err := looseString(item)
		if err != nil {
			return fmt.Errorf("decode choice: %w", err)
		}
		cs = append(cs, Choice{OptionID: id})
	}
	*a = Answer{Kind: AnswerChoices, Choices: cs}
	return nil
}

func decodeBoxed(b []byte) (Choice, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return Choice{}, err
	}
	if _, ok := probe["optionId"]; !ok {
		return Choice{}, fmt.Errorf("unsupported answer object %s", truncate(b))
	}
	var bc boxedChoice
	if err := json.Unmarshal(b, &bc); err != nil {
		return Choice{}, err
	}
	return Choice{OptionID: string(bc.OptionID), OtherText: bc.OtherText, Boxed: true}, nil
}
