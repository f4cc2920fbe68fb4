package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"internfunnel/internal/domain"
)

// InsertResult appends a questionnaire result. Duplicate submissions are kept.
func (r Repo) InsertResult(ctx context.Context, tx *sql.Tx, res domain.QuestionnaireResult) error {
	answers, err := json.Marshal(res.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	scores, err := json.Marshal(res.TraitScores)
	if err != nil {
		return fmt.Errorf("marshal trait scores: %w", err)
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO questionnaire_results(id,kind,candidate_id,name,email,answers_json,trait_scores_json,ats_url,interview_url,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		res.ID, string(res.Kind), nullable(res.CandidateID), res.Name, res.Email, string(answers), string(scores),
		nullable(res.ATSURL), nullable(res.InterviewURL), res.CreatedAt)
	return err
}

type ResultFilters struct {
	Kind        domain.QuestionnaireKind
	Email       string
	CandidateID string
	Limit       int
}

func (r Repo) ListResults(ctx context.Context, f ResultFilters) ([]domain.QuestionnaireResult, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, string(f.Kind))
	}
	if f.Email != "" {
		clauses = append(clauses, "lower(email)=lower(?)")
		args = append(args, f.Email)
	}
	if f.CandidateID != "" {
		clauses = append(clauses, "candidate_id=?")
		args = append(args, f.CandidateID)
	}
	query := fmt.Sprintf(`SELECT id,kind,COALESCE(candidate_id,''),name,email,answers_json,trait_scores_json,COALESCE(ats_url,''),COALESCE(interview_url,''),created_at
FROM questionnaire_results WHERE %s ORDER BY created_at DESC, id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, normalizeLimit(f.Limit))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.QuestionnaireResult{}
	for rows.Next() {
		var res domain.QuestionnaireResult
		var kind, answers, scores string
		if err := rows.Scan(&res.ID, &kind, &res.CandidateID, &res.Name, &res.Email, &answers, &scores, &res.ATSURL, &res.InterviewURL, &res.CreatedAt); err != nil {
			return nil, err
		}
		res.Kind = domain.QuestionnaireKind(kind)
		if err := json.Unmarshal([]byte(answers), &res.Answers); err != nil {
			return nil, fmt.Errorf("decode answers for %s: %w", res.ID, err)
		}
		if err := json.Unmarshal([]byte(scores), &res.TraitScores); err != nil {
			return nil, fmt.Errorf("decode trait scores for %s: %w", res.ID, err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r Repo) DeleteResult(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM questionnaire_results WHERE id=?`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r Repo) CountResults(ctx context.Context, kind domain.QuestionnaireKind) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM questionnaire_results WHERE kind=?`, string(kind)).Scan(&n)
	return n, err
}
