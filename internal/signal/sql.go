package signal

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLStore keeps signals in the completion_signals table. Instances sharing
// the database see each other's signals and a restart loses nothing.
type SQLStore struct {
	DB  *sql.DB
	TTL time.Duration
	Now func() time.Time
}

func NewSQLStore(db *sql.DB, ttl time.Duration) *SQLStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SQLStore{DB: db, TTL: ttl, Now: time.Now}
}

func (s *SQLStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SQLStore) Record(ctx context.Context, candidateID, interviewID string) (Signal, error) {
	if candidateID == "" {
		return Signal{}, ErrCandidateRequired
	}
	now := s.now()
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Signal{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO completion_signals(candidate_id,interview_id,completed,recorded_at) VALUES (?,?,1,?)
ON CONFLICT(candidate_id) DO UPDATE SET interview_id=excluded.interview_id, completed=1, recorded_at=excluded.recorded_at`,
		candidateID, interviewID, now.UnixMilli()); err != nil {
		return Signal{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM completion_signals WHERE recorded_at < ?`, now.Add(-ttl).UnixMilli()); err != nil {
		return Signal{}, err
	}
	if err := tx.Commit(); err != nil {
		return Signal{}, err
	}
	return Signal{CandidateID: candidateID, InterviewID: interviewID, Completed: true, Timestamp: now}, nil
}

func (s *SQLStore) Poll(ctx context.Context, candidateID string) (Signal, bool, error) {
	if candidateID == "" {
		return Signal{}, false, ErrCandidateRequired
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Signal{}, false, err
	}
	defer tx.Rollback()
	var (
		interviewID sql.NullString
		completed   bool
		recordedAt  int64
	)
	err = tx.QueryRowContext(ctx, `SELECT interview_id,completed,recorded_at FROM completion_signals WHERE candidate_id=?`, candidateID).
		Scan(&interviewID, &completed, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Signal{CandidateID: candidateID}, false, nil
	}
	if err != nil {
		return Signal{}, false, err
	}
	if !completed {
		return Signal{CandidateID: candidateID}, false, nil
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM completion_signals WHERE candidate_id=? AND recorded_at=?`, candidateID, recordedAt)
	if err != nil {
		return Signal{}, false, err
	}
	// A concurrent poll on another instance may have consumed it first.
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return Signal{CandidateID: candidateID}, false, err
	}
	if err := tx.Commit(); err != nil {
		return Signal{}, false, err
	}
	return Signal{
		CandidateID: candidateID,
		InterviewID: interviewID.String,
		Completed:   true,
		Timestamp:   time.UnixMilli(recordedAt),
	}, true, nil
}

func (s *SQLStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM completion_signals`).Scan(&n)
	return n, err
}
