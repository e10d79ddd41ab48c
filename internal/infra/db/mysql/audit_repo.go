package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	domain "github.com/bryanwahyu/tor-evaluator/internal/domain/guidelines"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository { return &AuditRepository{db: db} }

func (r *AuditRepository) Append(ctx context.Context, e *domain.AccessAudit) error {
	const q = `
INSERT INTO guideline_access_log
  (user_email, organization_id, guideline_id, access_granted, access_reason, accessed_at)
VALUES (?,?,?,?,?,?)`
	accessed := e.AccessedAt
	if accessed.IsZero() {
		accessed = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, q,
		stringOrDash(e.UserEmail), e.OrganizationID, e.GuidelineID,
		e.AccessGranted, string(e.AccessReason), accessed,
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

func (r *AuditRepository) List(ctx context.Context, f domain.AuditQuery) ([]*domain.AccessAudit, error) {
	var (
		where []string
		args  []any
	)
	if f.UserEmail != "" {
		where, args = append(where, "user_email = ?"), append(args, f.UserEmail)
	}
	if f.OrganizationID != "" {
		where, args = append(where, "organization_id = ?"), append(args, f.OrganizationID)
	}
	if f.GuidelineID != "" {
		where, args = append(where, "guideline_id = ?"), append(args, f.GuidelineID)
	}
	if f.AccessGranted != nil {
		where, args = append(where, "access_granted = ?"), append(args, *f.AccessGranted)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	q := `
SELECT id, user_email, organization_id, guideline_id, access_granted, access_reason, accessed_at
FROM guideline_access_log`
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	q += "\nORDER BY accessed_at DESC, id DESC\nLIMIT ?;"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AccessAudit
	for rows.Next() {
		var e domain.AccessAudit
		if err := rows.Scan(&e.ID, &e.UserEmail, &e.OrganizationID, &e.GuidelineID, &e.AccessGranted, &e.AccessReason, &e.AccessedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
