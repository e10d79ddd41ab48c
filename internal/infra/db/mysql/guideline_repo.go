package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/bryanwahyu/tor-evaluator/internal/domain/guidelines"
)

type OrganizationRepository struct {
	db *sql.DB
}

func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) ListActive(ctx context.Context) ([]*domain.Organization, error) {
	const q = `
SELECT organization_id, organization_name, email_domains, is_active, created_at
FROM organizations
WHERE is_active = TRUE AND JSON_LENGTH(email_domains) > 0
ORDER BY organization_id;`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Organization
	for rows.Next() {
		var o domain.Organization
		var raw []byte
		if err := rows.Scan(&o.ID, &o.Name, &raw, &o.Active, &o.CreatedAt); err != nil {
			return nil, err
		}
		if o.EmailDomains, err = decodeStrings(raw); err != nil {
			return nil, fmt.Errorf("decode email_domains of %s: %w", o.ID, err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

type GuidelineRepository struct {
	db *sql.DB
}

func NewGuidelineRepository(db *sql.DB) *GuidelineRepository {
	return &GuidelineRepository{db: db}
}

const guidelineColumns = `g.guideline_id, g.organization_id, g.guideline_name, g.guideline_text,
       g.description, g.visibility_scope, g.is_public, g.is_active, g.created_at, g.updated_at`

func scanGuideline(scan func(dest ...any) error) (*domain.Guideline, error) {
	var g domain.Guideline
	if err := scan(
		&g.ID, &g.OrganizationID, &g.Name, &g.Text,
		&g.Description, &g.VisibilityScope, &g.IsPublic, &g.Active, &g.CreatedAt, &g.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GuidelineRepository) Get(ctx context.Context, id string) (*domain.Guideline, error) {
	q := `SELECT ` + guidelineColumns + `
FROM organization_guidelines g
WHERE g.guideline_id = ?
LIMIT 1;`
	g, err := scanGuideline(r.db.QueryRowContext(ctx, q, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

func (r *GuidelineRepository) list(ctx context.Context, q string, args ...any) ([]*domain.Guideline, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Guideline
	for rows.Next() {
		g, err := scanGuideline(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *GuidelineRepository) ListOwnedBy(ctx context.Context, organizationID string) ([]*domain.Guideline, error) {
	return r.list(ctx, `SELECT `+guidelineColumns+`
FROM organization_guidelines g
WHERE g.organization_id = ? AND g.is_active = TRUE
ORDER BY g.guideline_name;`, organizationID)
}

func (r *GuidelineRepository) ListGrantedTo(ctx context.Context, organizationID string) ([]*domain.Guideline, error) {
	return r.list(ctx, `SELECT `+guidelineColumns+`
FROM organization_guidelines g
JOIN organization_guideline_access a ON a.guideline_id = g.guideline_id
WHERE a.organization_id = ?
  AND g.visibility_scope = 'public_mapped'
  AND g.is_active = TRUE
ORDER BY g.guideline_name;`, organizationID)
}

func (r *GuidelineRepository) ListUniversal(ctx context.Context) ([]*domain.Guideline, error) {
	return r.list(ctx, `SELECT `+guidelineColumns+`
FROM organization_guidelines g
WHERE g.visibility_scope = 'universal' AND g.is_public = TRUE AND g.is_active = TRUE
ORDER BY g.guideline_name;`)
}

func (r *GuidelineRepository) HasGrant(ctx context.Context, organizationID, guidelineID string) (bool, error) {
	const q = `
SELECT COUNT(*) FROM organization_guideline_access
WHERE organization_id = ? AND guideline_id = ?;`
	var n int
	if err := r.db.QueryRowContext(ctx, q, organizationID, guidelineID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
