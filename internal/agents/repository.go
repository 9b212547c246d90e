package agents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

var (
	ErrNotFound      = errors.New("agents: not found")
	ErrDuplicate     = errors.New("agents: extension already in use")
	ErrNotAvailable  = errors.New("agents: agent is not available")
	ErrInvalidStatus = errors.New("agents: invalid status")
	ErrValidation    = errors.New("agents: invalid request")
)

type Repository interface {
	Create(ctx context.Context, a Agent) error
	Get(ctx context.Context, accountID, id string) (Agent, error)
	List(ctx context.Context, accountID string) ([]Agent, error)
	Update(ctx context.Context, a Agent) error
	Delete(ctx context.Context, accountID, id string) error

	// ReserveForDial atomically moves the agent from one of the given
	// statuses to ringing and pins the call id. It fails with
	// ErrNotAvailable when the agent is in any other state, which is
	// the guard against assigning one agent to two calls.
	ReserveForDial(ctx context.Context, accountID, id, callID string, from []Status) (Agent, error)
	// ReleaseFromCall clears the call id and moves the agent to the
	// given status, but only while the agent still holds that call.
	ReleaseFromCall(ctx context.Context, accountID, id, callID string, to Status) error
	SetStatus(ctx context.Context, accountID, id string, status Status, pauseReason string) error
	CountByStatus(ctx context.Context, accountID string, ids []string, status Status) (int, error)
}

type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

const agentSelect = `
SELECT id, account_id, user_id, pbx_node_id, name, extension, sip_password,
       status, pause_reason, current_call_id, skills, max_concurrent_calls,
       wrap_up_seconds, active, created_at
FROM agents`

func (r *SQLRepo) Create(ctx context.Context, a Agent) error {
	// UNIQUE (account_id, extension) backs the duplicate check.
	const q = `
INSERT INTO agents (
	id, account_id, user_id, pbx_node_id, name, extension, sip_password,
	status, pause_reason, current_call_id, skills, max_concurrent_calls,
	wrap_up_seconds, active, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (account_id, extension) DO NOTHING
`
	skills, err := json.Marshal(a.Skills)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q,
		a.ID, a.AccountID, nullStr(a.UserID), nullStr(a.PbxNodeID), a.Name, a.Extension, a.SIPPassword,
		a.Status, a.PauseReason, nullStr(a.CurrentCallID), skills, a.MaxConcurrentCalls,
		a.WrapUpSeconds, a.Active, a.CreatedAt,
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

func (r *SQLRepo) Get(ctx context.Context, accountID, id string) (Agent, error) {
	const q = agentSelect + ` WHERE account_id = $1 AND id = $2`
	return scanAgent(r.db.QueryRowContext(ctx, q, accountID, id))
}

func (r *SQLRepo) List(ctx context.Context, accountID string) ([]Agent, error) {
	const q = agentSelect + ` WHERE account_id = $1 ORDER BY extension`
	rows, err := r.db.QueryContext(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLRepo) Update(ctx context.Context, a Agent) error {
	const q = `
UPDATE agents
SET user_id = $3, pbx_node_id = $4, name = $5, sip_password = $6,
    skills = $7, max_concurrent_calls = $8, wrap_up_seconds = $9, active = $10
WHERE account_id = $1 AND id = $2
`
	skills, err := json.Marshal(a.Skills)
	if err != nil {
		return err
	}
	return mustAffect(r.db.ExecContext(ctx, q,
		a.AccountID, a.ID, nullStr(a.UserID), nullStr(a.PbxNodeID), a.Name, a.SIPPassword,
		skills, a.MaxConcurrentCalls, a.WrapUpSeconds, a.Active,
	))
}

func (r *SQLRepo) Delete(ctx context.Context, accountID, id string) error {
	const q = `DELETE FROM agents WHERE account_id = $1 AND id = $2`
	return mustAffect(r.db.ExecContext(ctx, q, accountID, id))
}

func (r *SQLRepo) ReserveForDial(ctx context.Context, accountID, id, callID string, from []Status) (Agent, error) {
	// Conditional transition; a concurrent reservation loses the race
	// and sees zero rows.
	const q = `
UPDATE agents
SET status = 'ringing', current_call_id = $3, pause_reason = ''
WHERE account_id = $1 AND id = $2 AND active AND status = ANY($4)
RETURNING id, account_id, user_id, pbx_node_id, name, extension, sip_password,
          status, pause_reason, current_call_id, skills, max_concurrent_calls,
          wrap_up_seconds, active, created_at
`
	a, err := scanAgent(r.db.QueryRowContext(ctx, q, accountID, id, callID, statusStrings(from)))
	if errors.Is(err, ErrNotFound) {
		return Agent{}, ErrNotAvailable
	}
	return a, err
}

func (r *SQLRepo) ReleaseFromCall(ctx context.Context, accountID, id, callID string, to Status) error {
	const q = `
UPDATE agents
SET status = $4, current_call_id = NULL
WHERE account_id = $1 AND id = $2 AND current_call_id = $3
`
	res, err := r.db.ExecContext(ctx, q, accountID, id, callID, to)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Agent no longer holds the call; nothing to release.
		return nil
	}
	return nil
}

func (r *SQLRepo) SetStatus(ctx context.Context, accountID, id string, status Status, pauseReason string) error {
	const q = `
UPDATE agents
SET status = $3, pause_reason = $4,
    current_call_id = CASE WHEN $3 IN ('ringing', 'on_call') THEN current_call_id ELSE NULL END
WHERE account_id = $1 AND id = $2
`
	return mustAffect(r.db.ExecContext(ctx, q, accountID, id, status, pauseReason))
}

func (r *SQLRepo) CountByStatus(ctx context.Context, accountID string, ids []string, status Status) (int, error) {
	const q = `
SELECT COUNT(*)
FROM agents
WHERE account_id = $1 AND id = ANY($2) AND active AND status = $3
`
	var n int
	err := r.db.QueryRowContext(ctx, q, accountID, ids, status).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (Agent, error) {
	var (
		a      Agent
		userID sql.NullString
		nodeID sql.NullString
		callID sql.NullString
		skills []byte
	)
	err := row.Scan(
		&a.ID, &a.AccountID, &userID, &nodeID, &a.Name, &a.Extension, &a.SIPPassword,
		&a.Status, &a.PauseReason, &callID, &skills, &a.MaxConcurrentCalls,
		&a.WrapUpSeconds, &a.Active, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, err
	}
	a.UserID = userID.String
	a.PbxNodeID = nodeID.String
	a.CurrentCallID = callID.String
	if len(skills) > 0 {
		if err := json.Unmarshal(skills, &a.Skills); err != nil {
			return Agent{}, err
		}
	}
	return a, nil
}

func statusStrings(from []Status) []string {
	out := make([]string, len(from))
	for i, s := range from {
		out[i] = string(s)
	}
	return out
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
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
