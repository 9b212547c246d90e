package cdr

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
)

var (
	ErrNotFound   = errors.New("cdr: not found")
	ErrImmutable  = errors.New("cdr: record already finalized")
	ErrValidation = errors.New("cdr: invalid request")
)

type Repository interface {
	Create(ctx context.Context, r CallRecord) error
	Get(ctx context.Context, accountID, id string) (CallRecord, error)
	Update(ctx context.Context, r CallRecord) error
	List(ctx context.Context, accountID string, f ListFilter) ([]CallRecord, int, error)

	AppendEvent(ctx context.Context, e CallEvent) error
	ListEvents(ctx context.Context, callRecordID string) ([]CallEvent, error)

	// AvgBillsec averages billable seconds over answered calls of a
	// campaign. ok is false when no call has billable time yet.
	AvgBillsec(ctx context.Context, campaignID string) (avg float64, ok bool, err error)
}

type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

const recordSelect = `
SELECT id, account_id, campaign_id, campaign_lead_id, agent_id, trunk_id,
       uniqueid, linkedid, caller_id, destination, extension,
       started_at, answered_at, ended_at, duration, billsec, wait_time,
       result, hangup_cause, hangup_cause_text, disposition_id, disposition_note,
       recording_path, recording_url, direction, created_at
FROM call_records`

func (r *SQLRepo) Create(ctx context.Context, rec CallRecord) error {
	const q = `
INSERT INTO call_records (
	id, account_id, campaign_id, campaign_lead_id, agent_id, trunk_id,
	uniqueid, linkedid, caller_id, destination, extension,
	started_at, answered_at, ended_at, duration, billsec, wait_time,
	result, hangup_cause, hangup_cause_text, disposition_id, disposition_note,
	recording_path, recording_url, direction, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.AccountID, nullStr(rec.CampaignID), nullStr(rec.CampaignLeadID),
		nullStr(rec.AgentID), nullStr(rec.TrunkID),
		rec.UniqueID, rec.LinkedID, rec.CallerID, rec.Destination, rec.Extension,
		rec.StartedAt, rec.AnsweredAt, rec.EndedAt, rec.Duration, rec.Billsec, rec.WaitTime,
		rec.Result, rec.HangupCause, rec.HangupCauseText,
		nullStr(rec.DispositionID), rec.DispositionNote,
		rec.RecordingPath, rec.RecordingURL, rec.Direction, rec.CreatedAt,
	)
	return err
}

func (r *SQLRepo) Get(ctx context.Context, accountID, id string) (CallRecord, error) {
	const q = recordSelect + ` WHERE account_id = $1 AND id = $2`
	return scanRecord(r.db.QueryRowContext(ctx, q, accountID, id))
}

func (r *SQLRepo) Update(ctx context.Context, rec CallRecord) error {
	const q = `
UPDATE call_records
SET uniqueid = $3, linkedid = $4, answered_at = $5, ended_at = $6,
    duration = $7, billsec = $8, wait_time = $9, result = $10,
    hangup_cause = $11, hangup_cause_text = $12, disposition_id = $13,
    disposition_note = $14, recording_path = $15, recording_url = $16
WHERE account_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q,
		rec.AccountID, rec.ID, rec.UniqueID, rec.LinkedID, rec.AnsweredAt, rec.EndedAt,
		rec.Duration, rec.Billsec, rec.WaitTime, rec.Result,
		rec.HangupCause, rec.HangupCauseText, nullStr(rec.DispositionID),
		rec.DispositionNote, rec.RecordingPath, rec.RecordingURL,
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

func (r *SQLRepo) List(ctx context.Context, accountID string, f ListFilter) ([]CallRecord, int, error) {
	where := ` WHERE account_id = $1`
	args := []any{accountID}
	if f.CampaignID != "" {
		args = append(args, f.CampaignID)
		where += ` AND campaign_id = $` + strconv.Itoa(len(args))
	}
	if f.AgentID != "" {
		args = append(args, f.AgentID)
		where += ` AND agent_id = $` + strconv.Itoa(len(args))
	}
	if f.Result != "" {
		args = append(args, f.Result)
		where += ` AND result = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM call_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := recordSelect + where + ` ORDER BY created_at DESC LIMIT ` +
		strconv.Itoa(f.Limit) + ` OFFSET ` + strconv.Itoa(f.Offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []CallRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func (r *SQLRepo) AppendEvent(ctx context.Context, e CallEvent) error {
	const q = `
INSERT INTO call_events (id, call_record_id, event, detail, timestamp)
VALUES ($1, $2, $3, $4, $5)
`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.CallRecordID, e.Event, []byte(e.Detail), e.Timestamp)
	return err
}

func (r *SQLRepo) ListEvents(ctx context.Context, callRecordID string) ([]CallEvent, error) {
	const q = `
SELECT id, call_record_id, event, detail, timestamp
FROM call_events
WHERE call_record_id = $1
ORDER BY timestamp
`
	rows, err := r.db.QueryContext(ctx, q, callRecordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CallEvent
	for rows.Next() {
		var (
			e      CallEvent
			detail []byte
		)
		if err := rows.Scan(&e.ID, &e.CallRecordID, &e.Event, &detail, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Detail = detail
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLRepo) AvgBillsec(ctx context.Context, campaignID string) (float64, bool, error) {
	const q = `
SELECT AVG(billsec)
FROM call_records
WHERE campaign_id = $1 AND billsec > 0
`
	var avg sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, q, campaignID).Scan(&avg); err != nil {
		return 0, false, err
	}
	return avg.Float64, avg.Valid, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (CallRecord, error) {
	var (
		rec        CallRecord
		campaignID sql.NullString
		leadID     sql.NullString
		agentID    sql.NullString
		trunkID    sql.NullString
		dispID     sql.NullString
	)
	err := row.Scan(
		&rec.ID, &rec.AccountID, &campaignID, &leadID, &agentID, &trunkID,
		&rec.UniqueID, &rec.LinkedID, &rec.CallerID, &rec.Destination, &rec.Extension,
		&rec.StartedAt, &rec.AnsweredAt, &rec.EndedAt, &rec.Duration, &rec.Billsec, &rec.WaitTime,
		&rec.Result, &rec.HangupCause, &rec.HangupCauseText, &dispID, &rec.DispositionNote,
		&rec.RecordingPath, &rec.RecordingURL, &rec.Direction, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, ErrNotFound
	}
	if err != nil {
		return CallRecord{}, err
	}
	rec.CampaignID = campaignID.String
	rec.CampaignLeadID = leadID.String
	rec.AgentID = agentID.String
	rec.TrunkID = trunkID.String
	rec.DispositionID = dispID.String
	return rec, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
