package dispositions

import (
	"context"
	"database/sql"
	"errors"
)

var (
	ErrNotFound   = errors.New("dispositions: not found")
	ErrDuplicate  = errors.New("dispositions: code already exists")
	ErrValidation = errors.New("dispositions: invalid request")
)

type Repository interface {
	Create(ctx context.Context, d Disposition) error
	Get(ctx context.Context, accountID, id string) (Disposition, error)
	GetByCode(ctx context.Context, accountID, code string) (Disposition, error)
	List(ctx context.Context, accountID string, activeOnly bool) ([]Disposition, error)
	Update(ctx context.Context, d Disposition) error
	Delete(ctx context.Context, accountID, id string) error
}

type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

const dispositionSelect = `
SELECT id, account_id, code, name, counts_as_contact, is_final, requires_callback, active, created_at
FROM dispositions`

func (r *SQLRepo) Create(ctx context.Context, d Disposition) error {
	// UNIQUE (account_id, code) backs the duplicate check.
	const q = `
INSERT INTO dispositions (
	id, account_id, code, name, counts_as_contact, is_final, requires_callback, active, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (account_id, code) DO NOTHING
`
	res, err := r.db.ExecContext(ctx, q,
		d.ID, d.AccountID, d.Code, d.Name, d.CountsAsContact, d.IsFinal, d.RequiresCallback, d.Active, d.CreatedAt,
	)
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

func (r *SQLRepo) Get(ctx context.Context, accountID, id string) (Disposition, error) {
	const q = dispositionSelect + ` WHERE account_id = $1 AND id = $2`
	return scan(r.db.QueryRowContext(ctx, q, accountID, id))
}

func (r *SQLRepo) GetByCode(ctx context.Context, accountID, code string) (Disposition, error) {
	const q = dispositionSelect + ` WHERE account_id = $1 AND code = $2`
	return scan(r.db.QueryRowContext(ctx, q, accountID, code))
}

func (r *SQLRepo) List(ctx context.Context, accountID string, activeOnly bool) ([]Disposition, error) {
	q := dispositionSelect + ` WHERE account_id = $1`
	if activeOnly {
		q += ` AND active`
	}
	q += ` ORDER BY code`
	rows, err := r.db.QueryContext(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Disposition
	for rows.Next() {
		d, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *SQLRepo) Update(ctx context.Context, d Disposition) error {
	const q = `
UPDATE dispositions
SET name = $3, counts_as_contact = $4, is_final = $5, requires_callback = $6, active = $7
WHERE account_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q,
		d.AccountID, d.ID, d.Name, d.CountsAsContact, d.IsFinal, d.RequiresCallback, d.Active,
	)
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

func (r *SQLRepo) Delete(ctx context.Context, accountID, id string) error {
	const q = `DELETE FROM dispositions WHERE account_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, q, accountID, id)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (Disposition, error) {
	var d Disposition
	err := row.Scan(
		&d.ID, &d.AccountID, &d.Code, &d.Name,
		&d.CountsAsContact, &d.IsFinal, &d.RequiresCallback, &d.Active, &d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Disposition{}, ErrNotFound
	}
	return d, err
}
