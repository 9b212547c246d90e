package pbx

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("pbx: not found")
	ErrValidation = errors.New("pbx: invalid request")
)

// Repository abstracts persistence of the PBX catalog.
// All queries are scoped by account.
type Repository interface {
	CreateProvider(ctx context.Context, p Provider) error
	GetProvider(ctx context.Context, accountID, id string) (Provider, error)
	ListProviders(ctx context.Context, accountID string) ([]Provider, error)
	UpdateProvider(ctx context.Context, p Provider) error
	DeleteProvider(ctx context.Context, accountID, id string) error

	CreateTrunk(ctx context.Context, t Trunk) error
	GetTrunk(ctx context.Context, accountID, id string) (Trunk, error)
	ListTrunks(ctx context.Context, accountID string) ([]Trunk, error)
	UpdateTrunk(ctx context.Context, t Trunk) error
	DeleteTrunk(ctx context.Context, accountID, id string) error

	CreateNode(ctx context.Context, n Node) error
	GetNode(ctx context.Context, accountID, id string) (Node, error)
	ListNodes(ctx context.Context, accountID string) ([]Node, error)
	UpdateNode(ctx context.Context, n Node) error
	DeleteNode(ctx context.Context, accountID, id string) error
	// FirstActiveNode returns the oldest active node of the account.
	FirstActiveNode(ctx context.Context, accountID string) (Node, error)
	SetNodeHealth(ctx context.Context, accountID, id string, status HealthStatus, at time.Time) error
}

type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) CreateProvider(ctx context.Context, p Provider) error {
	const q = `
INSERT INTO sip_providers (id, account_id, name, country, notes, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	_, err := r.db.ExecContext(ctx, q, p.ID, p.AccountID, p.Name, p.Country, p.Notes, p.Active, p.CreatedAt)
	return err
}

func (r *SQLRepo) GetProvider(ctx context.Context, accountID, id string) (Provider, error) {
	const q = `
SELECT id, account_id, name, country, notes, active, created_at
FROM sip_providers
WHERE account_id = $1 AND id = $2
`
	return scanProvider(r.db.QueryRowContext(ctx, q, accountID, id))
}

func (r *SQLRepo) ListProviders(ctx context.Context, accountID string) ([]Provider, error) {
	const q = `
SELECT id, account_id, name, country, notes, active, created_at
FROM sip_providers
WHERE account_id = $1
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLRepo) UpdateProvider(ctx context.Context, p Provider) error {
	const q = `
UPDATE sip_providers
SET name = $3, country = $4, notes = $5, active = $6
WHERE account_id = $1 AND id = $2
`
	return mustAffect(r.db.ExecContext(ctx, q, p.AccountID, p.ID, p.Name, p.Country, p.Notes, p.Active))
}

func (r *SQLRepo) DeleteProvider(ctx context.Context, accountID, id string) error {
	const q = `DELETE FROM sip_providers WHERE account_id = $1 AND id = $2`
	return mustAffect(r.db.ExecContext(ctx, q, accountID, id))
}

func (r *SQLRepo) CreateTrunk(ctx context.Context, t Trunk) error {
	const q = `
INSERT INTO sip_trunks (
	id, account_id, provider_id, name, host, port, username, password,
	transport, codecs, caller_id, max_concurrent, cps, prefix, strip_digits,
	active, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
`
	_, err := r.db.ExecContext(ctx, q,
		t.ID, t.AccountID, t.ProviderID, t.Name, t.Host, t.Port, t.Username, t.Password,
		t.Transport, t.Codecs, t.CallerID, t.MaxConcurrent, t.CPS, t.Prefix, t.StripDigits,
		t.Active, t.CreatedAt,
	)
	return err
}

func (r *SQLRepo) GetTrunk(ctx context.Context, accountID, id string) (Trunk, error) {
	const q = trunkSelect + ` WHERE account_id = $1 AND id = $2`
	return scanTrunk(r.db.QueryRowContext(ctx, q, accountID, id))
}

func (r *SQLRepo) ListTrunks(ctx context.Context, accountID string) ([]Trunk, error) {
	const q = trunkSelect + ` WHERE account_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Trunk
	for rows.Next() {
		t, err := scanTrunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLRepo) UpdateTrunk(ctx context.Context, t Trunk) error {
	const q = `
UPDATE sip_trunks
SET name = $3, host = $4, port = $5, username = $6, password = $7,
    transport = $8, codecs = $9, caller_id = $10, max_concurrent = $11,
    cps = $12, prefix = $13, strip_digits = $14, active = $15
WHERE account_id = $1 AND id = $2
`
	return mustAffect(r.db.ExecContext(ctx, q,
		t.AccountID, t.ID, t.Name, t.Host, t.Port, t.Username, t.Password,
		t.Transport, t.Codecs, t.CallerID, t.MaxConcurrent, t.CPS, t.Prefix, t.StripDigits,
		t.Active,
	))
}

func (r *SQLRepo) DeleteTrunk(ctx context.Context, accountID, id string) error {
	const q = `DELETE FROM sip_trunks WHERE account_id = $1 AND id = $2`
	return mustAffect(r.db.ExecContext(ctx, q, accountID, id))
}

func (r *SQLRepo) CreateNode(ctx context.Context, n Node) error {
	const q = `
INSERT INTO pbx_nodes (
	id, account_id, name, host, ami_port, ami_user, ami_password,
	active, health_status, last_health_check, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`
	_, err := r.db.ExecContext(ctx, q,
		n.ID, n.AccountID, n.Name, n.Host, n.AMIPort, n.AMIUser, n.AMIPassword,
		n.Active, n.HealthStatus, n.LastHealthCheck, n.CreatedAt,
	)
	return err
}

func (r *SQLRepo) GetNode(ctx context.Context, accountID, id string) (Node, error) {
	const q = nodeSelect + ` WHERE account_id = $1 AND id = $2`
	return scanNode(r.db.QueryRowContext(ctx, q, accountID, id))
}

func (r *SQLRepo) ListNodes(ctx context.Context, accountID string) ([]Node, error) {
	const q = nodeSelect + ` WHERE account_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *SQLRepo) UpdateNode(ctx context.Context, n Node) error {
	const q = `
UPDATE pbx_nodes
SET name = $3, host = $4, ami_port = $5, ami_user = $6, ami_password = $7, active = $8
WHERE account_id = $1 AND id = $2
`
	return mustAffect(r.db.ExecContext(ctx, q,
		n.AccountID, n.ID, n.Name, n.Host, n.AMIPort, n.AMIUser, n.AMIPassword, n.Active,
	))
}

func (r *SQLRepo) DeleteNode(ctx context.Context, accountID, id string) error {
	const q = `DELETE FROM pbx_nodes WHERE account_id = $1 AND id = $2`
	return mustAffect(r.db.ExecContext(ctx, q, accountID, id))
}

func (r *SQLRepo) FirstActiveNode(ctx context.Context, accountID string) (Node, error) {
	const q = nodeSelect + ` WHERE account_id = $1 AND active ORDER BY created_at LIMIT 1`
	return scanNode(r.db.QueryRowContext(ctx, q, accountID))
}

func (r *SQLRepo) SetNodeHealth(ctx context.Context, accountID, id string, status HealthStatus, at time.Time) error {
	const q = `
UPDATE pbx_nodes
SET health_status = $3, last_health_check = $4
WHERE account_id = $1 AND id = $2
`
	return mustAffect(r.db.ExecContext(ctx, q, accountID, id, status, at))
}

const trunkSelect = `
SELECT id, account_id, provider_id, name, host, port, username, password,
       transport, codecs, caller_id, max_concurrent, cps, prefix, strip_digits,
       active, created_at
FROM sip_trunks`

const nodeSelect = `
SELECT id, account_id, name, host, ami_port, ami_user, ami_password,
       active, health_status, last_health_check, created_at
FROM pbx_nodes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(row rowScanner) (Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.AccountID, &p.Name, &p.Country, &p.Notes, &p.Active, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Provider{}, ErrNotFound
	}
	return p, err
}

func scanTrunk(row rowScanner) (Trunk, error) {
	var t Trunk
	err := row.Scan(
		&t.ID, &t.AccountID, &t.ProviderID, &t.Name, &t.Host, &t.Port, &t.Username, &t.Password,
		&t.Transport, &t.Codecs, &t.CallerID, &t.MaxConcurrent, &t.CPS, &t.Prefix, &t.StripDigits,
		&t.Active, &t.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Trunk{}, ErrNotFound
	}
	return t, err
}

func scanNode(row rowScanner) (Node, error) {
	var n Node
	err := row.Scan(
		&n.ID, &n.AccountID, &n.Name, &n.Host, &n.AMIPort, &n.AMIUser, &n.AMIPassword,
		&n.Active, &n.HealthStatus, &n.LastHealthCheck, &n.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, ErrNotFound
	}
	return n, err
}

func mustAffect(res sql.Result, err error) error {
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
