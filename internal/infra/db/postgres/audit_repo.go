package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	domain "github.com/bryanwahyu/tor-evaluator/internal/domain/guidelines"
)

// AuditRepository is append-only; concurrent inserts need no locking.
type AuditRepository struct{ db *sql.DB }

func NewAuditRepository(db *sql.DB) *AuditRepository { return &AuditRepository{db: db} }

func (r *AuditRepository) Append(ctx context.Context, e *domain.AccessAudit) error {
	const q = `
INSERT INTO guideline_access_log
  (user_email, organization_id, guideline_id, access_granted, access_reason, accessed_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id;`
	accessed := e.AccessedAt
	if accessed.IsZero() {
		accessed = time.Now().UTC()
	}
	return r.db.QueryRowContext(ctx, q,
		stringOrDash(e.UserEmail), e.OrganizationID, e.GuidelineID,
		e.AccessGranted, string(e.AccessReason), accessed,
	).Scan(&e.ID)
}

func (r *AuditRepository) List(ctx context.Context, f domain.AuditQuery) ([]*domain.AccessAudit, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserEmail != "" {
		add("user_email = $%d", f.UserEmail)
	}
	if f.OrganizationID != "" {
		add("organization_id = $%d", f.OrganizationID)
	}
	if f.GuidelineID != "" {
		add("guideline_id = $%d", f.GuidelineID)
	}
	if f.AccessGranted != nil {
		add("access_granted = $%d", *f.AccessGranted)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	q := `
SELECT id, user_email, organization_id, guideline_id, access_granted, access_reason, accessed_at
FROM guideline_access_log`
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf("\nORDER BY accessed_at DESC, id DESC\nLIMIT $%d;", len(args))

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
