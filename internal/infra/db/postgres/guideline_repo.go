package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	domain "github.com/bryanwahyu/tor-evaluator/internal/domain/guidelines"
)

type OrganizationRepository struct{ db *sql.DB }

func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// ListActive returns active organizations that declare at least one domain
func (r *OrganizationRepository) ListActive(ctx context.Context) ([]*domain.Organization, error) {
	const q = `
SELECT organization_id, organization_name, email_domains, is_active, created_at
FROM organizations
WHERE is_active = TRUE AND cardinality(email_domains) > 0
ORDER BY organization_id;`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Organization
	for rows.Next() {
		var o domain.Organization
		var domains pq.StringArray
		if err := rows.Scan(&o.ID, &o.Name, &domains, &o.Active, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.EmailDomains = []string(domains)
		out = append(out, &o)
	}
	return out, rows.Err()
}

type GuidelineRepository struct{ db *sql.DB }

func NewGuidelineRepository(db *sql.DB) *GuidelineRepository {
	return &GuidelineRepository{db: db}
}

const guidelineColumns = `g.guideline_id, g.organization_id, g.guideline_name, g.guideline_text,
       g.description, g.visibility_scope, g.is_public, g.is_active, g.created_at, g.updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanGuideline(s scanner) (*domain.Guideline, error) {
	var g domain.Guideline
	if err := s.Scan(
		&g.ID, &g.OrganizationID, &g.Name, &g.Text,
		&g.Description, &g.VisibilityScope, &g.IsPublic, &g.Active, &g.CreatedAt, &g.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &g, nil
}

// Get returns nil, nil when the id does not exist. Inactive rows are
// returned as-is; visibility rules decide what inactive means.
func (r *GuidelineRepository) Get(ctx context.Context, id string) (*domain.Guideline, error) {
	q := `SELECT ` + guidelineColumns + `
FROM organization_guidelines g
WHERE g.guideline_id = $1
LIMIT 1;`
	g, err := scanGuideline(r.db.QueryRowContext(ctx, q, id))
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
		g, err := scanGuideline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *GuidelineRepository) ListOwnedBy(ctx context.Context, organizationID string) ([]*domain.Guideline, error) {
	q := `SELECT ` + guidelineColumns + `
FROM organization_guidelines g
WHERE g.organization_id = $1 AND g.is_active = TRUE
ORDER BY g.guideline_name;`
	return r.list(ctx, q, organizationID)
}

func (r *GuidelineRepository) ListGrantedTo(ctx context.Context, organizationID string) ([]*domain.Guideline, error) {
	q := `SELECT ` + guidelineColumns + `
FROM organization_guidelines g
JOIN organization_guideline_access a ON a.guideline_id = g.guideline_id
WHERE a.organization_id = $1
  AND g.visibility_scope = 'public_mapped'
  AND g.is_active = TRUE
ORDER BY g.guideline_name;`
	return r.list(ctx, q, organizationID)
}

func (r *GuidelineRepository) ListUniversal(ctx context.Context) ([]*domain.Guideline, error) {
	q := `SELECT ` + guidelineColumns + `
FROM organization_guidelines g
WHERE g.visibility_scope = 'universal' AND g.is_public = TRUE AND g.is_active = TRUE
ORDER BY g.guideline_name;`
	return r.list(ctx, q)
}

func (r *GuidelineRepository) HasGrant(ctx context.Context, organizationID, guidelineID string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM organization_guideline_access
  WHERE organization_id = $1 AND guideline_id = $2
);`
	var ok bool
	err := r.db.QueryRowContext(ctx, q, organizationID, guidelineID).Scan(&ok)
	return ok, err
}
