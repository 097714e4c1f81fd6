// Package repo is the SQL persistence layer. Request status is written only
// through version-checked saves so concurrent actors cannot clobber each other.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/FoxxDev-Collab/aft-web-sub001/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound           = errors.New("not found")
	ErrVersionConflict    = errors.New("version conflict")
	ErrDuplicateSignature = errors.New("signature already recorded for this step and signer")
)

const requestColumns = `id,request_number,status,classification,transfer_type,requestor_id,description,requires_dao,enable_dual_signature,secondary_signer_type,secondary_signer_id,approval_data,transfer_data,rejection_reason,version,archived,created_at,updated_at,approval_date,actual_start_date,actual_end_date`

func (r Repo) InsertRequestTx(ctx context.Context, tx *sql.Tx, req domain.AFTRequest) error {
	approval, err := marshalData(req.ApprovalData)
	if err != nil {
		return fmt.Errorf("marshal approval_data: %w", err)
	}
	transfer, err := marshalData(req.TransferData)
	if err != nil {
		return fmt.Errorf("marshal transfer_data: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO aft_requests(`+requestColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		req.ID, req.RequestNumber, string(req.Status), string(req.Classification), string(req.TransferType),
		req.RequestorID, nullable(req.Description), nullableBoolPtr(req.RequiresDAO), boolToInt(req.EnableDualSignature),
		nullableStringPtr(req.SecondarySignerType), nullableStringPtr(req.SecondarySignerID),
		approval, transfer, nullable(req.RejectionReason), req.Version, boolToInt(req.Archived),
		req.CreatedAt, req.UpdatedAt,
		nullableStringPtr(req.ApprovalDate), nullableStringPtr(req.ActualStartDate), nullableStringPtr(req.ActualEndDate))
	return err
}

// SaveRequest writes the full request conditioned on the version observed at
// read time. The stored version is bumped; req.Version must hold the expected
// value on entry and is updated on success.
func (r Repo) SaveRequest(ctx context.Context, tx *sql.Tx, req *domain.AFTRequest, expectedVersion int64) error {
	approval, err := marshalData(req.ApprovalData)
	if err != nil {
		return fmt.Errorf("marshal approval_data: %w", err)
	}
	transfer, err := marshalData(req.TransferData)
	if err != nil {
		return fmt.Errorf("marshal transfer_data: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE aft_requests SET
status=?, classification=?, transfer_type=?, description=?, requires_dao=?,
enable_dual_signature=?, secondary_signer_type=?, secondary_signer_id=?,
approval_data=?, transfer_data=?, rejection_reason=?, version=version+1,
archived=?, updated_at=?, approval_date=?, actual_start_date=?, actual_end_date=?
WHERE id=? AND version=?`,
		string(req.Status), string(req.Classification), string(req.TransferType),
		nullable(req.Description), nullableBoolPtr(req.RequiresDAO),
		boolToInt(req.EnableDualSignature), nullableStringPtr(req.SecondarySignerType), nullableStringPtr(req.SecondarySignerID),
		approval, transfer, nullable(req.RejectionReason),
		boolToInt(req.Archived), req.UpdatedAt,
		nullableStringPtr(req.ApprovalDate), nullableStringPtr(req.ActualStartDate), nullableStringPtr(req.ActualEndDate),
		req.ID, expectedVersion)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM aft_requests WHERE id=?`, req.ID).Scan(&one)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrVersionConflict
	}
	req.Version = expectedVersion + 1
	return nil
}

func (r Repo) GetRequest(ctx context.Context, id string) (domain.AFTRequest, error) {
	return scanRequest(r.DB.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM aft_requests WHERE id=?`, id))
}

// GetRequestByNumber resolves a request by its human-readable number.
func (r Repo) GetRequestByNumber(ctx context.Context, number string) (domain.AFTRequest, error) {
	return scanRequest(r.DB.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM aft_requests WHERE request_number=?`, number))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (domain.AFTRequest, error) {
	var req domain.AFTRequest
	var status, classification, transferType string
	var description, secondaryType, secondaryID, approval, transfer, rejection sql.NullString
	var approvalDate, startDate, endDate sql.NullString
	var requiresDAO sql.NullInt64
	var dual, archived int
	err := row.Scan(&req.ID, &req.RequestNumber, &status, &classification, &transferType,
		&req.RequestorID, &description, &requiresDAO, &dual, &secondaryType, &secondaryID,
		&approval, &transfer, &rejection, &req.Version, &archived,
		&req.CreatedAt, &req.UpdatedAt, &approvalDate, &startDate, &endDate)
	if err == sql.ErrNoRows {
		return req, ErrNotFound
	}
	if err != nil {
		return req, err
	}
	// An unrecognized status is corruption, not a default.
	req.Status, err = domain.ParseStatus(status)
	if err != nil {
		return req, fmt.Errorf("request %s: %w", req.ID, err)
	}
	req.Classification, err = domain.ParseClassification(classification)
	if err != nil {
		return req, fmt.Errorf("request %s: %w", req.ID, err)
	}
	req.TransferType, err = domain.ParseTransferType(transferType)
	if err != nil {
		return req, fmt.Errorf("request %s: %w", req.ID, err)
	}
	if description.Valid {
		req.Description = description.String
	}
	if requiresDAO.Valid {
		v := requiresDAO.Int64 != 0
		req.RequiresDAO = &v
	}
	req.EnableDualSignature = dual != 0
	req.Archived = archived != 0
	if secondaryType.Valid {
		req.SecondarySignerType = &secondaryType.String
	}
	if secondaryID.Valid {
		req.SecondarySignerID = &secondaryID.String
	}
	if rejection.Valid {
		req.RejectionReason = rejection.String
	}
	if approvalDate.Valid {
		req.ApprovalDate = &approvalDate.String
	}
	if startDate.Valid {
		req.ActualStartDate = &startDate.String
	}
	if endDate.Valid {
		req.ActualEndDate = &endDate.String
	}
	if req.ApprovalData, err = unmarshalData(approval); err != nil {
		return req, fmt.Errorf("request %s approval_data: %w", req.ID, err)
	}
	if req.TransferData, err = unmarshalData(transfer); err != nil {
		return req, fmt.Errorf("request %s transfer_data: %w", req.ID, err)
	}
	return req, nil
}

type RequestFilters struct {
	Status          string
	RequestorID     string
	TransferType    string
	IncludeArchived bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListRequests(ctx context.Context, f RequestFilters) ([]domain.AFTRequest, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.RequestorID != "" {
		clauses = append(clauses, "requestor_id=?")
		args = append(args, f.RequestorID)
	}
	if f.TransferType != "" {
		clauses = append(clauses, "transfer_type=?")
		args = append(args, f.TransferType)
	}
	if !f.IncludeArchived {
		clauses = append(clauses, "archived=0")
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + requestColumns + ` FROM aft_requests ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AFTRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

// CountRequestsByYear returns how many requests carry a number for the given
// year, used to allocate the next sequence value.
func (r Repo) CountRequestsByYear(ctx context.Context, year int) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM aft_requests WHERE request_number LIKE ?`,
		fmt.Sprintf("%%-%d-%%", year)).Scan(&count)
	return count, err
}

func (r Repo) CountRequestsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM aft_requests WHERE archived=0 GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// ArchiveRequest soft-deactivates a request. Requests are never deleted.
func (r Repo) ArchiveRequest(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE aft_requests SET archived=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalData(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalData(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableBoolPtr(v *bool) any {
	if v == nil {
		return nil
	}
	return boolToInt(*v)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
