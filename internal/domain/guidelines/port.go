package guidelines

import "context"

// OrganizationRepository is the read side of the organization directory.
type OrganizationRepository interface {
	ListActive(ctx context.Context) ([]*Organization, error)
}

// Repository is the read side of guidelines and access grants.
// Get returns (nil, nil) when the id does not exist.
type Repository interface {
	Get(ctx context.Context, id string) (*Guideline, error)
	ListOwnedBy(ctx context.Context, organizationID string) ([]*Guideline, error)
	ListGrantedTo(ctx context.Context, organizationID string) ([]*Guideline, error)
	ListUniversal(ctx context.Context) ([]*Guideline, error)
	HasGrant(ctx context.Context, organizationID, guidelineID string) (bool, error)
}

// AuditLog is append-only; implementations must be safe for concurrent writers.
type AuditLog interface {
	Append(ctx context.Context, e *AccessAudit) error
	List(ctx context.Context, q AuditQuery) ([]*AccessAudit, error)
}
