package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/survey-backend/internal/model"
)

// ResponseRepository handles survey answer data access.
type ResponseRepository struct {
	pool *pgxpool.Pool
}

// NewResponseRepository creates a new ResponseRepository.
func NewResponseRepository(pool *pgxpool.Pool) *ResponseRepository {
	return &ResponseRepository{pool: pool}
}

// ApplyBatch upserts the submitted answers and deletes the removed ones of
// every batch in one transaction.
func (r *ResponseRepository) ApplyBatch(ctx context.Context, batches []*model.ResponseBatch) (upserted, deleted int64, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	up, del, err := applyBatches(ctx, tx, batches)
	if err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit tx: %w", err)
	}
	return up, del, nil
}

type responseKey struct {
	formID, sessionID, sectionID, questionNo string
}

// responseOp is a pending upsert, or a delete when submit is nil.
type responseOp struct {
	submit *model.SubmittedQuestion
}

// collapse reduces queued batches to the last operation per answer, in
// queue order.
func collapse(batches []*model.ResponseBatch) ([]responseKey, map[responseKey]responseOp) {
	var keys []responseKey
	ops := make(map[responseKey]responseOp)
	put := func(k responseKey, op responseOp) {
		if _, ok := ops[k]; !ok {
			keys = append(keys, k)
		}
		ops[k] = op
	}

	for _, b := range batches {
		for _, ref := range b.Removed {
			put(responseKey{b.Session.FormID, b.Session.SessionID, ref.SectionID, ref.QuestionNo}, responseOp{})
		}
		for i := range b.Submitted {
			q := &b.Submitted[i]
			put(responseKey{b.Session.FormID, b.Session.SessionID, q.SectionID, q.QuestionNo}, responseOp{submit: q})
		}
	}
	return keys, ops
}

func applyBatches(ctx context.Context, tx pgx.Tx, batches []*model.ResponseBatch) (int64, int64, error) {
	keys, ops := collapse(batches)

	var (
		formIDs, sessionIDs, sectionIDs, sectionTitles []string
		questionNos, questions, answerTexts, clientTS  []string
		answers                                        [][]byte

		delForms, delSessions, delSections, delQuestions []string
	)

	for _, k := range keys {
		op := ops[k]
		if op.submit == nil {
			delForms = append(delForms, k.formID)
			delSessions = append(delSessions, k.sessionID)
			delSections = append(delSections, k.sectionID)
			delQuestions = append(delQuestions, k.questionNo)
			continue
		}
		q := op.submit
		raw, err := json.Marshal(q.Answer)
		if err != nil {
			return 0, 0, fmt.Errorf("marshal answer %s/%s: %w", q.SectionID, q.QuestionNo, err)
		}
		formIDs = append(formIDs, k.formID)
		sessionIDs = append(sessionIDs, k.sessionID)
		sectionIDs = append(sectionIDs, k.sectionID)
		sectionTitles = append(sectionTitles, q.Section)
		questionNos = append(questionNos, k.questionNo)
		questions = append(questions, q.Question)
		answerTexts = append(answerTexts, q.AnswerText)
		answers = append(answers, raw)
		clientTS = append(clientTS, q.Timestamp)
	}

	var upserted, deleted int64

	if len(delForms) > 0 {
		tag, err := tx.Exec(ctx,
			`DELETE FROM survey_responses AS r
			 USING UNNEST($1::text[], $2::text[], $3::text[], $4::text[])
			       AS d (form_id, session_id, section_id, question_no)
			 WHERE r.form_id = d.form_id
			   AND r.session_id = d.session_id
			   AND r.section_id = d.section_id
			   AND r.question_no = d.question_no`,
			delForms, delSessions, delSections, delQuestions)
		if err != nil {
			return 0, 0, fmt.Errorf("delete responses: %w", err)
		}
		deleted = tag.RowsAffected()
	}

	if len(formIDs) > 0 {
		tag, err := tx.Exec(ctx,
			`INSERT INTO survey_responses
			   (form_id, session_id, section_id, section_title, question_no, question, answer_text, answer, client_ts)
			 SELECT * FROM UNNEST(
			   $1::text[], $2::text[], $3::text[], $4::text[], $5::text[],
			   $6::text[], $7::text[], $8::jsonb[], $9::text[])
			 ON CONFLICT (form_id, session_id, section_id, question_no) DO UPDATE
			 SET section_title = EXCLUDED.section_title,
			     question = EXCLUDED.question,
			     answer_text = EXCLUDED.answer_text,
			     answer = EXCLUDED.answer,
			     client_ts = EXCLUDED.client_ts,
			     updated_at = NOW()`,
			formIDs, sessionIDs, sectionIDs, sectionTitles, questionNos,
			questions, answerTexts, answers, clientTS)
		if err != nil {
			return 0, 0, fmt.Errorf("upsert responses: %w", err)
		}
		upserted = tag.RowsAffected()
	}

	return upserted, deleted, nil
}

// ListBySession returns the stored answers of a session.
func (r *ResponseRepository) ListBySession(ctx context.Context, formID, sessionID string) ([]model.ProgressRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT section_id, section_title, question_no, answer_text, answer, updated_at
		 FROM survey_responses
		 WHERE form_id = $1 AND session_id = $2
		 ORDER BY section_id, question_no`, formID, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ProgressRow
	for rows.Next() {
		var (
			row model.ProgressRow
			raw []byte
		)
		if err := rows.Scan(&row.SectionID, &row.Section, &row.QuestionNo, &row.AnswerText, &raw, &row.AnsweredAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &row.Answer); err != nil {
			return nil, fmt.Errorf("decode answer %s/%s: %w", row.SectionID, row.QuestionNo, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
