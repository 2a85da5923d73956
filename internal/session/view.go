package session

import (
	"github.com/stemsi/survey-backend/internal/model"
	"github.com/stemsi/survey-backend/internal/routing"
)

// View is the client-facing projection of a session state.
type View struct {
	SessionID      string              `json:"session_id"`
	FormID         string              `json:"form_id"`
	Title          string              `json:"title"`
	Status         model.SessionStatus `json:"status"`
	CurrentSection string              `json:"current_section"`
	Questions      []QuestionView      `json:"questions"`
	Sections       []SectionView       `json:"sections"`
	Progress       float64             `json:"progress"`
	CanSubmit      bool                `json:"can_submit"`
	EndReached     bool                `json:"end_reached"`
	CanGoBack      bool                `json:"can_go_back"`
	Errors         routing.FieldErrors `json:"errors,omitempty"`
	AutosaveError  string              `json:"autosave_error,omitempty"`
	Version        uint64              `json:"version"`
}

// SectionView is one entry of the section navigation.
type SectionView struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Order    int    `json:"order"`
	Complete bool   `json:"complete"`
	Current  bool   `json:"current"`
}

// QuestionView is a visible question of the current section.
type QuestionView struct {
	ID       string             `json:"id"`
	Text     string             `json:"question"`
	Type     model.QuestionType `json:"type"`
	Required bool               `json:"required"`
	Options  model.RawJSON      `json:"options,omitempty"`
	Rows     []string           `json:"rows,omitempty"`
	Answer   *model.Answer      `json:"answer,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// BuildView projects s for clients.
func BuildView(e *routing.Engine, s State) View {
	survey := e.Survey()
	v := View{
		SessionID:      s.Context.SessionID,
		FormID:         s.Context.FormID,
		Title:          survey.Title,
		Status:         s.Status,
		CurrentSection: s.CurrentSection,
		Progress:       s.Progress,
		CanSubmit:      s.CanSubmit && s.Status != model.SessionStatusCompleted,
		EndReached:     s.Visible.EndReached,
		CanGoBack:      len(s.History) > 0,
		Errors:         s.Errors,
		AutosaveError:  s.SaveError,
		Version:        s.Version,
		Questions:      make([]QuestionView, 0, len(s.Visible.Order)),
		Sections:       make([]SectionView, 0, len(s.Sections)),
	}

	if sec, ok := survey.Section(s.CurrentSection); ok {
		for _, qid := range s.Visible.Order {
			q := sec.Questions[qid]
			key := model.FQID(s.CurrentSection, qid)
			qv := QuestionView{
				ID:       qid,
				Text:     q.Text,
				Type:     q.Type,
				Required: q.Required(),
				Options:  q.Options,
				Rows:     q.Rows(),
				Error:    s.Errors[key],
			}
			if len(qv.Options) == 0 {
				qv.Options = q.Properties.Options
			}
			if a, ok := s.Answers[key]; ok && a.Kind != model.AnswerNone {
				a := a
				qv.Answer = &a
			}
			v.Questions = append(v.Questions, qv)
		}
	}

	for _, sid := range s.Sections {
		sec := survey.Sections[sid]
		v.Sections = append(v.Sections, SectionView{
			ID:       sid,
			Title:    e.SectionTitle(sid),
			Order:    sec.Order,
			Complete: e.IsSectionComplete(sid, s.Answers),
			Current:  sid == s.CurrentSection,
		})
	}

	return v
}
