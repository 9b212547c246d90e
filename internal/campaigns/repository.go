package campaigns

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"callcenter-platform/pkg/utils"
)

var (
	ErrNotFound       = errors.New("campaigns: not found")
	ErrInvalidState   = errors.New("campaigns: invalid state for operation")
	ErrDuplicate      = errors.New("campaigns: duplicate")
	ErrValidation     = errors.New("campaigns: invalid request")
	ErrRetryExhausted = errors.New("campaigns: max retries reached for lead")
	ErrLeadBusy       = errors.New("campaigns: lead is not dialable")
)

// LeadCounts is the per-status breakdown used by stats.
type LeadCounts map[LeadStatus]int

func (c LeadCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

type Repository interface {
	Create(ctx context.Context, c Campaign) error
	Get(ctx context.Context, accountID, id string) (Campaign, error)
	List(ctx context.Context, accountID string) ([]Campaign, error)
	// ListRunning returns running campaigns across all accounts,
	// oldest first, for the dialer tick loop.
	ListRunning(ctx context.Context) ([]Campaign, error)
	Update(ctx context.Context, c Campaign) error
	Delete(ctx context.Context, accountID, id string) error

	// SetStatus transitions the campaign only when its current status
	// is one of from. ErrInvalidState otherwise.
	SetStatus(ctx context.Context, accountID, id string, from []Status, to Status, at time.Time) (Campaign, error)
	// SetCachedStats stores the denormalized lead counters.
	SetCachedStats(ctx context.Context, accountID, id string, total, contacted, pending int) error

	AssignAgent(ctx context.Context, a Assignment) error
	RemoveAgent(ctx context.Context, campaignID, agentID string) error
	ListAssignments(ctx context.Context, campaignID string) ([]Assignment, error)

	AddLead(ctx context.Context, l Lead) error
	GetLead(ctx context.Context, campaignID, leadID string) (Lead, error)
	// GetLeadAnyCampaign resolves a lead by id alone, for call-flow
	// paths that only carry the lead id.
	GetLeadAnyCampaign(ctx context.Context, leadID string) (Lead, error)
	ListLeads(ctx context.Context, campaignID string, status LeadStatus, limit, offset int) ([]Lead, int, error)
	UpdateLead(ctx context.Context, l Lead) error
	// HasLeadForContact reports whether the contact is already
	// enrolled in the campaign.
	HasLeadForContact(ctx context.Context, campaignID, contactID string) (bool, error)

	// NextLead returns the best lead to dial without claiming it:
	// due callbacks first, then due retries under the attempt cap,
	// then fresh pending leads.
	NextLead(ctx context.Context, campaignID string, maxRetries int, now time.Time) (Lead, error)
	// ClaimLeadForDial atomically moves a dialable lead to dialing
	// and bumps its attempt counter. A lead a concurrent tick already
	// claimed is no longer dialable, so the second claim fails.
	ClaimLeadForDial(ctx context.Context, campaignID, leadID string, maxRetries int, now time.Time) (Lead, error)

	CountLeads(ctx context.Context, campaignID string) (LeadCounts, error)
}

type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

const campaignSelect = `
SELECT id, account_id, trunk_id, pbx_node_id, name, description,
       dial_mode, caller_id, status, start_time, end_time, timezone, weekdays,
       max_concurrent_calls, max_retries, retry_delay_minutes, ring_timeout,
       abandon_timeout, predictive_ratio, total_leads, leads_contacted,
       leads_pending, created_at, updated_at
FROM campaigns`

func (r *SQLRepo) Create(ctx context.Context, c Campaign) error {
	const q = `
INSERT INTO campaigns (
	id, account_id, trunk_id, pbx_node_id, name, description,
	dial_mode, caller_id, status, start_time, end_time, timezone, weekdays,
	max_concurrent_calls, max_retries, retry_delay_minutes, ring_timeout,
	abandon_timeout, predictive_ratio, total_leads, leads_contacted,
	leads_pending, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
`
	weekdays, err := json.Marshal(c.Weekdays)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q,
		c.ID, c.AccountID, nullStr(c.TrunkID), nullStr(c.PbxNodeID), c.Name, c.Description,
		c.DialMode, c.CallerID, c.Status, c.StartTime, c.EndTime, c.Timezone, weekdays,
		c.MaxConcurrentCalls, c.MaxRetries, c.RetryDelayMinutes, c.RingTimeout,
		c.AbandonTimeout, c.PredictiveRatio, c.TotalLeads, c.LeadsContacted,
		c.LeadsPending, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (r *SQLRepo) Get(ctx context.Context, accountID, id string) (Campaign, error) {
	const q = campaignSelect + ` WHERE account_id = $1 AND id = $2`
	return scanCampaign(r.db.QueryRowContext(ctx, q, accountID, id))
}

func (r *SQLRepo) List(ctx context.Context, accountID string) ([]Campaign, error) {
	const q = campaignSelect + ` WHERE account_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLRepo) ListRunning(ctx context.Context) ([]Campaign, error) {
	const q = campaignSelect + ` WHERE status = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, q, StatusRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLRepo) Update(ctx context.Context, c Campaign) error {
	const q = `
UPDATE campaigns
SET trunk_id = $3, pbx_node_id = $4, name = $5, description = $6,
    dial_mode = $7, caller_id = $8, start_time = $9, end_time = $10,
    timezone = $11, weekdays = $12, max_concurrent_calls = $13,
    max_retries = $14, retry_delay_minutes = $15, ring_timeout = $16,
    abandon_timeout = $17, predictive_ratio = $18, updated_at = $19
WHERE account_id = $1 AND id = $2
`
	weekdays, err := json.Marshal(c.Weekdays)
	if err != nil {
		return err
	}
	return mustAffect(r.db.ExecContext(ctx, q,
		c.AccountID, c.ID, nullStr(c.TrunkID), nullStr(c.PbxNodeID), c.Name, c.Description,
		c.DialMode, c.CallerID, c.StartTime, c.EndTime,
		c.Timezone, weekdays, c.MaxConcurrentCalls,
		c.MaxRetries, c.RetryDelayMinutes, c.RingTimeout,
		c.AbandonTimeout, c.PredictiveRatio, c.UpdatedAt,
	))
}

func (r *SQLRepo) Delete(ctx context.Context, accountID, id string) error {
	const q = `DELETE FROM campaigns WHERE account_id = $1 AND id = $2`
	return mustAffect(r.db.ExecContext(ctx, q, accountID, id))
}

func (r *SQLRepo) SetStatus(ctx context.Context, accountID, id string, from []Status, to Status, at time.Time) (Campaign, error) {
	const q = `
UPDATE campaigns
SET status = $3, updated_at = $4
WHERE account_id = $1 AND id = $2 AND status = ANY($5)
RETURNING id
`
	const readback = campaignSelect + ` WHERE account_id = $1 AND id = $2`
	var out Campaign
	// Transition and readback in one transaction so the returned row
	// reflects exactly the state this call produced.
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		var got string
		err := tx.QueryRowContext(ctx, q, accountID, id, to, at, statusStrings(from)).Scan(&got)
		if errors.Is(err, sql.ErrNoRows) {
			// Distinguish a missing campaign from a bad transition.
			if _, gerr := scanCampaign(tx.QueryRowContext(ctx, readback, accountID, id)); gerr != nil {
				return gerr
			}
			return ErrInvalidState
		}
		if err != nil {
			return err
		}
		out, err = scanCampaign(tx.QueryRowContext(ctx, readback, accountID, id))
		return err
	})
	if err != nil {
		return Campaign{}, err
	}
	return out, nil
}

func (r *SQLRepo) SetCachedStats(ctx context.Context, accountID, id string, total, contacted, pending int) error {
	const q = `
UPDATE campaigns
SET total_leads = $3, leads_contacted = $4, leads_pending = $5
WHERE account_id = $1 AND id = $2
`
	return mustAffect(r.db.ExecContext(ctx, q, accountID, id, total, contacted, pending))
}

func (r *SQLRepo) AssignAgent(ctx context.Context, a Assignment) error {
	// UNIQUE (campaign_id, agent_id) backs the duplicate check.
	const q = `
INSERT INTO campaign_agents (id, campaign_id, agent_id, priority, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (campaign_id, agent_id) DO NOTHING
`
	res, err := r.db.ExecContext(ctx, q, a.ID, a.CampaignID, a.AgentID, a.Priority, a.CreatedAt)
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

func (r *SQLRepo) RemoveAgent(ctx context.Context, campaignID, agentID string) error {
	const q = `DELETE FROM campaign_agents WHERE campaign_id = $1 AND agent_id = $2`
	return mustAffect(r.db.ExecContext(ctx, q, campaignID, agentID))
}

func (r *SQLRepo) ListAssignments(ctx context.Context, campaignID string) ([]Assignment, error) {
	// Lower priority value dials first.
	const q = `
SELECT id, campaign_id, agent_id, priority, created_at
FROM campaign_agents
WHERE campaign_id = $1
ORDER BY priority, created_at
`
	rows, err := r.db.QueryContext(ctx, q, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ID, &a.CampaignID, &a.AgentID, &a.Priority, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const leadSelect = `
SELECT id, campaign_id, contact_id, phone, status, attempts,
       last_attempt_at, next_attempt_at, disposition_id, disposition_note,
       callback_at, assigned_agent_id, created_at, updated_at
FROM campaign_leads`

func (r *SQLRepo) AddLead(ctx context.Context, l Lead) error {
	// UNIQUE (campaign_id, contact_id) backs the duplicate check.
	const q = `
INSERT INTO campaign_leads (
	id, campaign_id, contact_id, phone, status, attempts,
	last_attempt_at, next_attempt_at, disposition_id, disposition_note,
	callback_at, assigned_agent_id, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (campaign_id, contact_id) DO NOTHING
`
	res, err := r.db.ExecContext(ctx, q,
		l.ID, l.CampaignID, l.ContactID, l.Phone, l.Status, l.Attempts,
		l.LastAttemptAt, l.NextAttemptAt, nullStr(l.DispositionID), l.DispositionNote,
		l.CallbackAt, nullStr(l.AssignedAgentID), l.CreatedAt, l.UpdatedAt,
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

func (r *SQLRepo) GetLead(ctx context.Context, campaignID, leadID string) (Lead, error) {
	const q = leadSelect + ` WHERE campaign_id = $1 AND id = $2`
	return scanLead(r.db.QueryRowContext(ctx, q, campaignID, leadID))
}

func (r *SQLRepo) GetLeadAnyCampaign(ctx context.Context, leadID string) (Lead, error) {
	const q = leadSelect + ` WHERE id = $1`
	return scanLead(r.db.QueryRowContext(ctx, q, leadID))
}

func (r *SQLRepo) ListLeads(ctx context.Context, campaignID string, status LeadStatus, limit, offset int) ([]Lead, int, error) {
	q := leadSelect + ` WHERE campaign_id = $1`
	countQ := `SELECT COUNT(*) FROM campaign_leads WHERE campaign_id = $1`
	args := []any{campaignID}
	if status != "" {
		q += ` AND status = $2`
		countQ += ` AND status = $2`
		args = append(args, status)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	q += ` ORDER BY created_at LIMIT ` + itoa(limit) + ` OFFSET ` + itoa(offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

func (r *SQLRepo) UpdateLead(ctx context.Context, l Lead) error {
	const q = `
UPDATE campaign_leads
SET status = $3, attempts = $4, last_attempt_at = $5, next_attempt_at = $6,
    disposition_id = $7, disposition_note = $8, callback_at = $9,
    assigned_agent_id = $10, updated_at = $11
WHERE campaign_id = $1 AND id = $2
`
	return mustAffect(r.db.ExecContext(ctx, q,
		l.CampaignID, l.ID, l.Status, l.Attempts, l.LastAttemptAt, l.NextAttemptAt,
		nullStr(l.DispositionID), l.DispositionNote, l.CallbackAt,
		nullStr(l.AssignedAgentID), l.UpdatedAt,
	))
}

func (r *SQLRepo) HasLeadForContact(ctx context.Context, campaignID, contactID string) (bool, error) {
	const q = `SELECT 1 FROM campaign_leads WHERE campaign_id = $1 AND contact_id = $2`
	var one int
	err := r.db.QueryRowContext(ctx, q, campaignID, contactID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *SQLRepo) NextLead(ctx context.Context, campaignID string, maxRetries int, now time.Time) (Lead, error) {
	// Due callbacks first.
	const callbackQ = leadSelect + `
WHERE campaign_id = $1 AND status = 'scheduled' AND callback_at <= $2
ORDER BY callback_at
LIMIT 1`
	l, err := scanLead(r.db.QueryRowContext(ctx, callbackQ, campaignID, now))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Lead{}, err
	}

	// Then due retries under the attempt cap.
	const retryQ = leadSelect + `
WHERE campaign_id = $1
  AND status IN ('no_answer', 'busy', 'failed')
  AND attempts < $2
  AND next_attempt_at <= $3
ORDER BY next_attempt_at
LIMIT 1`
	l, err = scanLead(r.db.QueryRowContext(ctx, retryQ, campaignID, maxRetries, now))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Lead{}, err
	}

	// Fresh pending leads last.
	const pendingQ = leadSelect + `
WHERE campaign_id = $1 AND status = 'pending'
ORDER BY created_at
LIMIT 1`
	return scanLead(r.db.QueryRowContext(ctx, pendingQ, campaignID))
}

func (r *SQLRepo) ClaimLeadForDial(ctx context.Context, campaignID, leadID string, maxRetries int, now time.Time) (Lead, error) {
	// Conditional claim: only a dialable lead transitions, so two
	// concurrent ticks cannot both take it.
	const q = `
UPDATE campaign_leads
SET status = 'dialing', attempts = attempts + 1, last_attempt_at = $3, updated_at = $3
WHERE campaign_id = $1 AND id = $2
  AND (
       status = 'pending'
    OR (status = 'scheduled' AND callback_at <= $3)
    OR (status IN ('no_answer', 'busy', 'failed') AND attempts < $4)
  )
RETURNING id, campaign_id, contact_id, phone, status, attempts,
          last_attempt_at, next_attempt_at, disposition_id, disposition_note,
          callback_at, assigned_agent_id, created_at, updated_at
`
	l, err := scanLead(r.db.QueryRowContext(ctx, q, campaignID, leadID, now, maxRetries))
	if errors.Is(err, ErrNotFound) {
		cur, gerr := r.GetLead(ctx, campaignID, leadID)
		if gerr != nil {
			return Lead{}, gerr
		}
		if cur.Retryable() && cur.Attempts >= maxRetries {
			return Lead{}, ErrRetryExhausted
		}
		return Lead{}, ErrLeadBusy
	}
	return l, err
}

func (r *SQLRepo) CountLeads(ctx context.Context, campaignID string) (LeadCounts, error) {
	const q = `
SELECT status, COUNT(*)
FROM campaign_leads
WHERE campaign_id = $1
GROUP BY status
`
	rows, err := r.db.QueryContext(ctx, q, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := LeadCounts{}
	for rows.Next() {
		var (
			s LeadStatus
			n int
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (Campaign, error) {
	var (
		c        Campaign
		trunkID  sql.NullString
		nodeID   sql.NullString
		weekdays []byte
	)
	err := row.Scan(
		&c.ID, &c.AccountID, &trunkID, &nodeID, &c.Name, &c.Description,
		&c.DialMode, &c.CallerID, &c.Status, &c.StartTime, &c.EndTime, &c.Timezone, &weekdays,
		&c.MaxConcurrentCalls, &c.MaxRetries, &c.RetryDelayMinutes, &c.RingTimeout,
		&c.AbandonTimeout, &c.PredictiveRatio, &c.TotalLeads, &c.LeadsContacted,
		&c.LeadsPending, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Campaign{}, ErrNotFound
	}
	if err != nil {
		return Campaign{}, err
	}
	c.TrunkID = trunkID.String
	c.PbxNodeID = nodeID.String
	if len(weekdays) > 0 {
		if err := json.Unmarshal(weekdays, &c.Weekdays); err != nil {
			return Campaign{}, err
		}
	}
	return c, nil
}

func scanLead(row rowScanner) (Lead, error) {
	var (
		l       Lead
		dispID  sql.NullString
		agentID sql.NullString
	)
	err := row.Scan(
		&l.ID, &l.CampaignID, &l.ContactID, &l.Phone, &l.Status, &l.Attempts,
		&l.LastAttemptAt, &l.NextAttemptAt, &dispID, &l.DispositionNote,
		&l.CallbackAt, &agentID, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, err
	}
	l.DispositionID = dispID.String
	l.AssignedAgentID = agentID.String
	return l, nil
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

func itoa(n int) string {
	if n < 0 {
		n = 0
	}
	return strconv.Itoa(n)
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
