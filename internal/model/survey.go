package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Survey is a declarative survey definition. On the wire every
// object-valued top-level key other than title/description is a section.
type Survey struct {
	Title       string
	Description string
	Sections    map[string]*Section
}

// Section groups questions. Sections are traversed by ascending Order.
type Section struct {
	ID        string
	Title     string
	Order     int
	QOrder    []string
	Questions map[string]*Question
}

// Question is a single survey item. Its id is the key it was declared under.
type Question struct {
	ID           string       `json:"-"`
	Text         string       `json:"question"`
	Type         QuestionType `json:"type"`
	IsRequired   *bool        `json:"isRequired,omitempty"`
	YAxisTitles  []string     `json:"y_axis_titles,omitempty"`
	Options      RawJSON      `json:"options,omitempty"`
	Properties   Properties   `json:"properties"`
	DefaultRoute StringList   `json:"default_route,omitempty"`
}

// Properties carries validation limits and routing rules for a question.
type Properties struct {
	Branching           bool             `json:"branching,omitempty"`
	Conditions          []RouteCondition `json:"route_evaluation_conditions,omitempty"`
	MinLength           OptionalNumber   `json:"min_length,omitzero"`
	MaxLength           OptionalNumber   `json:"max_length,omitzero"`
	ValidationType      string           `json:"validation_type,omitempty"`
	LowerLimit          OptionalNumber   `json:"lower_limit,omitzero"`
	UpperLimit          OptionalNumber   `json:"upper_limit,omitzero"`
	MaxSelections       OptionalNumber   `json:"max_selections,omitzero"`
	MaxSelectionsPerRow OptionalNumber   `json:"max_selections_per_row,omitzero"`
	YAxisTitles         []string         `json:"y_axis_titles,omitempty"`
	Options             RawJSON          `json:"options,omitempty"`
}

// RouteCondition is one entry of a branching question's ordered rule list.
type RouteCondition struct {
	ConfigID       FlexString `json:"config_id,omitempty"`
	Function       string     `json:"function"`
	MainValue      FlexString `json:"main_value,omitempty"`
	OptionID       FlexString `json:"option_id,omitempty"`
	OptionIDs      StringList `json:"option_ids,omitempty"`
	Keywords       StringList `json:"keywords,omitempty"`
	Route          StringList `json:"route,omitempty"`
	SectionRouting StringList `json:"section_routing,omitempty"`
	// Sections is the legacy spelling of SectionRouting.
	Sections StringList `json:"sections,omitempty"`
}

// SectionTargets returns the section routing list, honouring the legacy key.
func (c RouteCondition) SectionTargets() []string {
	if len(c.SectionRouting) > 0 {
		return c.SectionRouting
	}
	return c.Sections
}

// RawJSON is an opaque JSON fragment that survives a decode/encode cycle.
type RawJSON = json.RawMessage

// Required reports whether the question must be answered. Questions are
// required unless isRequired is explicitly false.
func (q *Question) Required() bool {
	return q.IsRequired == nil || *q.IsRequired
}

// Branching reports whether the question participates in routing.
func (q *Question) Branching() bool {
	return q.Properties.Branching && len(q.Properties.Conditions) > 0
}

// Rows returns the matrix row titles.
func (q *Question) Rows() []string {
	if len(q.YAxisTitles) > 0 {
		return q.YAxisTitles
	}
	return q.Properties.YAxisTitles
}

func (q *Question) UnmarshalJSON(b []byte) error {
	type alias Question
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	a.Type = a.Type.Normalize()
	*q = Question(a)
	return nil
}

// ─── Survey lookups ─────────────────────────────────────────────────

// SortedSectionIDs returns section ids by ascending order, ties by id.
func (s *Survey) SortedSectionIDs() []string {
	ids := make([]string, 0, len(s.Sections))
	for id := range s.Sections {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if d := s.Sections[a].Order - s.Sections[b].Order; d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})
	return ids
}

// Section returns the section with the given id.
func (s *Survey) Section(id string) (*Section, bool) {
	sec, ok := s.Sections[id]
	return sec, ok
}

// Question returns a question by section and question id.
func (s *Survey) Question(sectionID, questionID string) (*Question, bool) {
	sec, ok := s.Sections[sectionID]
	if !ok {
		return nil, false
	}
	q, ok := sec.Questions[questionID]
	return q, ok
}

// ResolveSection maps a routing target to a section id. Targets match a
// section id exactly or a section title case-insensitively.
func (s *Survey) ResolveSection(target string) (string, bool) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", false
	}
	if _, ok := s.Sections[target]; ok {
		return target, true
	}
	for _, id := range s.SortedSectionIDs() {
		if strings.EqualFold(strings.TrimSpace(s.Sections[id].Title), target) {
			return id, true
		}
	}
	return "", false
}

// QuestionCount returns the total number of questions across sections.
func (s *Survey) QuestionCount() int {
	n := 0
	for _, sec := range s.Sections {
		n += len(sec.Questions)
	}
	return n
}

// FQID builds the snapshot key of a question.
func FQID(sectionID, questionID string) string {
	return sectionID + "/" + questionID
}

// SplitFQID is the inverse of FQID.
func SplitFQID(fqid string) (sectionID, questionID string, ok bool) {
	i := strings.IndexByte(fqid, '/')
	if i < 0 {
		return "", "", false
	}
	return fqid[:i], fqid[i+1:], true
}

// ─── Decoding ───────────────────────────────────────────────────────

// ParseSurvey decodes a JSON survey definition.
func ParseSurvey(data []byte) (*Survey, error) {
	var s Survey
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseSurveyYAML decodes a YAML survey definition. The document must have
// the same shape as the JSON form.
func ParseSurveyYAML(data []byte) (*Survey, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("re-encode yaml: %w", err)
	}
	return ParseSurvey(raw)
}

func (s *Survey) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode survey: %w", err)
	}

	out := Survey{Sections: make(map[string]*Section)}
	for key, val := range raw {
		switch key {
		case "title":
			out.Title, _ = looseString(val)
		case "description":
			out.Description, _ = looseString(val)
		default:
			if !isObject(val) {
				continue
			}
			sec := &Section{}
			if err := json.Unmarshal(val, sec); err != nil {
				return fmt.Errorf("section %q: %w", key, err)
			}
			sec.ID = key
			out.Sections[key] = sec
		}
	}

	*s = out
	return nil
}

func (s Survey) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(s.Sections)+2)
	doc["title"] = s.Title
	if s.Description != "" {
		doc["description"] = s.Description
	}
	for id, sec := range s.Sections {
		doc[id] = sec
	}
	return json.Marshal(doc)
}

func (sec *Section) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	out := Section{Questions: make(map[string]*Question)}
	for key, val := range raw {
		switch key {
		case "section_title":
			out.Title, _ = looseString(val)
		case "order":
			n, err := decodeOrder(val)
			if err != nil {
				return fmt.Errorf("order: %w", err)
			}
			out.Order = n
		case "q_order":
			ids, err := decodeQOrder(val)
			if err != nil {
				return fmt.Errorf("q_order: %w", err)
			}
			out.QOrder = ids
		default:
			if !isObject(val) {
				continue
			}
			q := &Question{}
			if err := json.Unmarshal(val, q); err != nil {
				return fmt.Errorf("question %q: %w", key, err)
			}
			q.ID = key
			out.Questions[key] = q
		}
	}

	*sec = out
	return nil
}

func (sec Section) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(sec.Questions)+3)
	doc["section_title"] = sec.Title
	doc["order"] = sec.Order
	if len(sec.QOrder) > 0 {
		doc["q_order"] = sec.QOrder
	}
	for id, q := range sec.Questions {
		doc[id] = q
	}
	return json.Marshal(doc)
}

// decodeOrder accepts `3`, `"3"` and the legacy `{"order": 3}`.
func decodeOrder(b json.RawMessage) (int, error) {
	if isObject(b) {
		var wrapped struct {
			Order OptionalNumber `json:"order"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return 0, err
		}
		return wrapped.Order.Int(), nil
	}
	var n OptionalNumber
	if err := json.Unmarshal(b, &n); err != nil {
		return 0, err
	}
	return n.Int(), nil
}

// decodeQOrder accepts an id list, a list of {id, order} entries, or either
// wrapped as {"q_order": [...]}.
func decodeQOrder(b json.RawMessage) ([]string, error) {
	if isObject(b) {
		var wrapped struct {
			QOrder json.RawMessage `json:"q_order"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return nil, err
		}
		if isNull(wrapped.QOrder) {
			return nil, nil
		}
		b = wrapped.QOrder
	}

	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, err
	}

	type entry struct {
		ID    FlexString     `json:"id"`
		Order OptionalNumber `json:"order"`
	}
	entries := make([]entry, 0, len(items))
	positional := true
	for i, item := range items {
		if isObject(item) {
			var e entry
			if err := json.Unmarshal(item, &e); err != nil {
				return nil, err
			}
			if !e.Order.Valid {
				e.Order = Num(float64(i))
			}
			positional = false
			entries = append(entries, e)
			continue
		}
		id, err := looseString(item)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{ID: FlexString(id), Order: Num(float64(i))})
	}

	if !positional {
		slices.SortStableFunc(entries, func(a, b entry) int {
			switch {
			case a.Order.Value < b.Order.Value:
				return -1
			case a.Order.Value > b.Order.Value:
				return 1
			}
			return 0
		})
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.ID != "" {
			ids = append(ids, string(e.ID))
		}
	}
	return ids, nil
}

// SurveyRecord is a stored survey definition.
type SurveyRecord struct {
	FormID  string  `json:"form_id"`
	Version int     `json:"version"`
	Survey  *Survey `json:"survey"`
	// Definition is the stored JSON document Survey was parsed from.
	Definition json.RawMessage `json:"-"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// PutSurveyRequest is the payload for storing a survey definition.
type PutSurveyRequest struct {
	Survey json.RawMessage `json:"survey" binding:"required"`
}
