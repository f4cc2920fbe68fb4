package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"internfunnel/internal/domain"
)

// TouchUser records a sign-in for email, creating the user on first sight.
// An empty email creates an anonymous user.
func (r Repo) TouchUser(ctx context.Context, tx *sql.Tx, email, now string) (domain.User, error) {
	q := r.q(tx)
	if email != "" {
		u, err := scanUser(q.QueryRowContext(ctx, `SELECT uid,COALESCE(email,''),is_anonymous,created_at,last_sign_in_at FROM users WHERE lower(email)=lower(?)`, email))
		if err == nil {
			if _, err := q.ExecContext(ctx, `UPDATE users SET last_sign_in_at=? WHERE uid=?`, now, u.UID); err != nil {
				return domain.User{}, err
			}
			u.LastSignInAt = now
			return u, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return domain.User{}, err
		}
	}
	u := domain.User{
		UID:          uuid.NewString(),
		Email:        email,
		IsAnonymous:  email == "",
		CreatedAt:    now,
		LastSignInAt: now,
	}
	_, err := q.ExecContext(ctx, `INSERT INTO users(uid,email,is_anonymous,created_at,last_sign_in_at) VALUES (?,?,?,?,?)`,
		u.UID, nullable(u.Email), u.IsAnonymous, u.CreatedAt, u.LastSignInAt)
	return u, err
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.UID, &u.Email, &u.IsAnonymous, &u.CreatedAt, &u.LastSignInAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) ListUsers(ctx context.Context, limit int) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT uid,COALESCE(email,''),is_anonymous,created_at,last_sign_in_at FROM users ORDER BY created_at DESC LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) DeleteUser(ctx context.Context, uid string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM users WHERE uid=?`, uid)
	if err != nil {
		return err
	}
	return expectOne(res)
}
