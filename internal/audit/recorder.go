// Package audit is the append-only transition log. Entries are written for
// every orchestrator invocation, successful or not, and are never mutated or
// deleted; the only read surface is filtered listing.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/FoxxDev-Collab/aft-web-sub001/internal/domain"
)

type Recorder struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append writes one entry. When tx is non-nil the write joins the caller's
// transaction so a transition and its audit row commit or roll back together.
func (r Recorder) Append(ctx context.Context, tx *sql.Tx, e domain.AuditEntry) error {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	ts := e.TS
	if ts == "" {
		ts = now().UTC().Format(time.RFC3339)
	}
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `INSERT INTO audit_entries(request_id,actor_id,actor_role_used,action,from_status,to_status,outcome,reason,ip_address,user_agent,ts)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.RequestID, e.ActorID, nullable(e.ActorRoleUsed), e.Action, e.FromStatus, nullable(e.ToStatus),
		e.Outcome, nullable(e.Reason), nullable(e.IPAddress), nullable(e.UserAgent), ts)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

type Filters struct {
	RequestID string
	ActorID   string
	Action    string
	Outcome   string
	Since     string
	Until     string
	Limit     int
	CursorID  int64
}

// List returns entries newest-first with keyset pagination on id.
func (r Recorder) List(ctx context.Context, f Filters) ([]domain.AuditEntry, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.RequestID != "" {
		clauses = append(clauses, "request_id=?")
		args = append(args, f.RequestID)
	}
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	if f.Action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, f.Action)
	}
	if f.Outcome != "" {
		clauses = append(clauses, "outcome=?")
		args = append(args, f.Outcome)
	}
	if f.Since != "" {
		clauses = append(clauses, "ts>=?")
		args = append(args, f.Since)
	}
	if f.Until != "" {
		clauses = append(clauses, "ts<=?")
		args = append(args, f.Until)
	}
	if f.CursorID > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.CursorID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,request_id,actor_id,COALESCE(actor_role_used,''),action,from_status,COALESCE(to_status,''),outcome,COALESCE(reason,''),COALESCE(ip_address,''),COALESCE(user_agent,''),ts
FROM audit_entries WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.ActorID, &e.ActorRoleUsed, &e.Action,
			&e.FromStatus, &e.ToStatus, &e.Outcome, &e.Reason, &e.IPAddress, &e.UserAgent, &e.TS); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// CountForRequest returns how many entries exist for one request.
func (r Recorder) CountForRequest(ctx context.Context, requestID string) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM audit_entries WHERE request_id=?`, requestID).Scan(&count)
	return count, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
