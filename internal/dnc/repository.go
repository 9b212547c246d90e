package dnc

import (
	"context"
	"database/sql"
	"errors"
)

var (
	ErrNotFound   = errors.New("dnc: not found")
	ErrDuplicate  = errors.New("dnc: number already listed")
	ErrValidation = errors.New("dnc: invalid request")
)

type Repository interface {
	Add(ctx context.Context, e Entry) error
	Remove(ctx context.Context, accountID, phone string) error
	Exists(ctx context.Context, accountID, phone string) (bool, error)
	List(ctx context.Context, accountID string, limit, offset int) ([]Entry, error)
}

type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) Add(ctx context.Context, e Entry) error {
	// UNIQUE (account_id, phone) backs the duplicate check.
	const q = `
INSERT INTO dnc_entries (id, account_id, phone, reason, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (account_id, phone) DO NOTHING
`
	res, err := r.db.ExecContext(ctx, q, e.ID, e.AccountID, e.Phone, e.Reason, e.CreatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (r *SQLRepo) Remove(ctx context.Context, accountID, phone string) error {
	const q = `DELETE FROM dnc_entries WHERE account_id = $1 AND phone = $2`
	res, err := r.db.ExecContext(ctx, q, accountID, phone)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLRepo) Exists(ctx context.Context, accountID, phone string) (bool, error) {
	const q = `SELECT 1 FROM dnc_entries WHERE account_id = $1 AND phone = $2`
	var one int
	err := r.db.QueryRowContext(ctx, q, accountID, phone).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *SQLRepo) List(ctx context.Context, accountID string, limit, offset int) ([]Entry, error) {
	const q = `
SELECT id, account_id, phone, reason, created_at
FROM dnc_entries
WHERE account_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`
	rows, err := r.db.QueryContext(ctx, q, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Phone, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
