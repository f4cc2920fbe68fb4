package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"internfunnel/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns tx when set so writes can join a caller's transaction.
func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

const applicationColumns = `id,COALESCE(candidate_id,''),first_name,last_name,email,COALESCE(phone,''),COALESCE(location,''),
COALESCE(passport_country,''),COALESCE(position_id,''),COALESCE(position_title,''),COALESCE(resume_url,''),COALESCE(message,''),
consent,status,COALESCE(interview_id,''),COALESCE(interview_url,''),COALESCE(interview_status,''),
survey_completed,quiz_completed,interview_completed,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (domain.Application, error) {
	var a domain.Application
	var status, interviewStatus string
	err := row.Scan(&a.ID, &a.CandidateID, &a.FirstName, &a.LastName, &a.Email, &a.Phone, &a.Location,
		&a.PassportCountry, &a.PositionID, &a.PositionTitle, &a.ResumeURL, &a.Message,
		&a.Consent, &status, &a.InterviewID, &a.InterviewURL, &interviewStatus,
		&a.SurveyCompleted, &a.QuizCompleted, &a.InterviewCompleted, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	a.Status = domain.ApplicationStatus(status)
	a.InterviewStatus = domain.InterviewStatus(interviewStatus)
	return a, err
}

func (r Repo) InsertApplication(ctx context.Context, tx *sql.Tx, a domain.Application) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO applications(id,candidate_id,first_name,last_name,email,phone,location,passport_country,
position_id,position_title,resume_url,message,consent,status,interview_id,interview_url,interview_status,
survey_completed,quiz_completed,interview_completed,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, nullable(a.CandidateID), a.FirstName, a.LastName, a.Email, nullable(a.Phone), nullable(a.Location), nullable(a.PassportCountry),
		nullable(a.PositionID), nullable(a.PositionTitle), nullable(a.ResumeURL), nullable(a.Message), a.Consent, string(a.Status),
		nullable(a.InterviewID), nullable(a.InterviewURL), nullable(string(a.InterviewStatus)),
		a.SurveyCompleted, a.QuizCompleted, a.InterviewCompleted, a.CreatedAt, a.UpdatedAt)
	return err
}

// UpdateApplication overwrites every mutable field of the record.
func (r Repo) UpdateApplication(ctx context.Context, tx *sql.Tx, a domain.Application) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE applications SET candidate_id=?,first_name=?,last_name=?,email=?,phone=?,location=?,
passport_country=?,position_id=?,position_title=?,resume_url=?,message=?,consent=?,status=?,interview_id=?,interview_url=?,
interview_status=?,survey_completed=?,quiz_completed=?,interview_completed=?,updated_at=? WHERE id=?`,
		nullable(a.CandidateID), a.FirstName, a.LastName, a.Email, nullable(a.Phone), nullable(a.Location),
		nullable(a.PassportCountry), nullable(a.PositionID), nullable(a.PositionTitle), nullable(a.ResumeURL), nullable(a.Message),
		a.Consent, string(a.Status), nullable(a.InterviewID), nullable(a.InterviewURL), nullable(string(a.InterviewStatus)),
		a.SurveyCompleted, a.QuizCompleted, a.InterviewCompleted, a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r Repo) GetApplication(ctx context.Context, tx *sql.Tx, id string) (domain.Application, error) {
	return scanApplication(r.q(tx).QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id=?`, id))
}

// FindApplication correlates by candidate id first, then by email; the newest
// matching record wins.
func (r Repo) FindApplication(ctx context.Context, tx *sql.Tx, candidateID, email string) (domain.Application, error) {
	if candidateID != "" {
		a, err := scanApplication(r.q(tx).QueryRowContext(ctx,
			`SELECT `+applicationColumns+` FROM applications WHERE candidate_id=? ORDER BY created_at DESC LIMIT 1`, candidateID))
		if !errors.Is(err, ErrNotFound) {
			return a, err
		}
	}
	if email != "" {
		return scanApplication(r.q(tx).QueryRowContext(ctx,
			`SELECT `+applicationColumns+` FROM applications WHERE lower(email)=lower(?) ORDER BY created_at DESC LIMIT 1`, email))
	}
	return domain.Application{}, ErrNotFound
}

type ApplicationFilters struct {
	Status      string
	Email       string
	CandidateID string
	Limit       int
	Offset      int
}

func (r Repo) ListApplications(ctx context.Context, f ApplicationFilters) ([]domain.Application, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Email != "" {
		clauses = append(clauses, "lower(email)=lower(?)")
		args = append(args, f.Email)
	}
	if f.CandidateID != "" {
		clauses = append(clauses, "candidate_id=?")
		args = append(args, f.CandidateID)
	}
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		applicationColumns, strings.Join(clauses, " AND "))
	args = append(args, normalizeLimit(f.Limit), max(f.Offset, 0))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Application{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) DeleteApplication(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM applications WHERE id=?`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r Repo) CountApplications(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM applications`).Scan(&n)
	return n, err
}

func (r Repo) CountApplicationsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM applications GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		res[status] = n
	}
	return res, rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 100
	}
	if in > 500 {
		return 500
	}
	return in
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
