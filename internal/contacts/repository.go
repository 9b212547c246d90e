package contacts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

var ErrNotFound = errors.New("contacts: not found")

// Repository is the read-side contract the dialer consumes.
// The CRM collaborator owns writes.
type Repository interface {
	Get(ctx context.Context, accountID, id string) (Contact, error)
	ListByList(ctx context.Context, accountID, listID string) ([]Contact, error)
}

// SQLRepo reads contacts from the CRM's records table.
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) Get(ctx context.Context, accountID, id string) (Contact, error) {
	const q = `
SELECT id, account_id, list_id, fields, created_at
FROM contacts
WHERE account_id = $1 AND id = $2
`
	return scanContact(r.db.QueryRowContext(ctx, q, accountID, id))
}

func (r *SQLRepo) ListByList(ctx context.Context, accountID, listID string) ([]Contact, error) {
	const q = `
SELECT id, account_id, list_id, fields, created_at
FROM contacts
WHERE account_id = $1 AND list_id = $2
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, accountID, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (Contact, error) {
	var c Contact
	var fieldsJSON []byte
	if err := row.Scan(&c.ID, &c.AccountID, &c.ListID, &fieldsJSON, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, err
	}
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &c.Fields); err != nil {
			return Contact{}, err
		}
	}
	return c, nil
}
