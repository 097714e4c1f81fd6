package repo

import (
	"context"
	"database/sql"

	"github.com/FoxxDev-Collab/aft-web-sub001/internal/domain"
)

// InsertSignatureTx records a signature inside the caller's transaction. A
// second signature for the same (request, step, signer) is a conflict, never
// an overwrite.
func (r Repo) InsertSignatureTx(ctx context.Context, tx *sql.Tx, sig domain.Signature) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM signatures WHERE request_id=? AND step_type=? AND signer_id=? LIMIT 1`,
		sig.RequestID, sig.StepType, sig.SignerID).Scan(&one)
	if err == nil {
		return ErrDuplicateSignature
	}
	if err != sql.ErrNoRows {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO signatures(id,request_id,signer_id,step_type,signature_material,certificate_thumbprint,is_verified,created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		sig.ID, sig.RequestID, sig.SignerID, sig.StepType, sig.SignatureMaterial,
		sig.CertificateThumbprint, boolToInt(sig.IsVerified), sig.CreatedAt)
	return err
}

func (r Repo) ListSignatures(ctx context.Context, requestID string) ([]domain.Signature, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,request_id,signer_id,step_type,signature_material,certificate_thumbprint,is_verified,created_at
FROM signatures WHERE request_id=? ORDER BY created_at ASC, id ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Signature
	for rows.Next() {
		var s domain.Signature
		var verified int
		if err := rows.Scan(&s.ID, &s.RequestID, &s.SignerID, &s.StepType, &s.SignatureMaterial,
			&s.CertificateThumbprint, &verified, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.IsVerified = verified != 0
		res = append(res, s)
	}
	return res, rows.Err()
}
