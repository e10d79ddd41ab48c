package guidelines

import "time"

// VisibilityScope governs who may see a guideline
type VisibilityScope string

const (
	ScopeOrganization VisibilityScope = "organization"
	ScopePublicMapped VisibilityScope = "public_mapped"
	ScopeUniversal    VisibilityScope = "universal"
)

// Valid reports whether s is one of the known scopes.
func (s VisibilityScope) Valid() bool {
	switch s {
	case ScopeOrganization, ScopePublicMapped, ScopeUniversal:
		return true
	}
	return false
}

// AccessReason is the tier that produced an access decision
type AccessReason string

const (
	ReasonOrganization AccessReason = "organization"
	ReasonPublicMapped AccessReason = "public_mapped"
	ReasonUniversal    AccessReason = "universal"
	ReasonDenied       AccessReason = "denied"
)

// Organization is a tenant identified by its email domains
type Organization struct {
	ID           string    `json:"organization_id"`
	Name         string    `json:"organization_name"`
	EmailDomains []string  `json:"email_domains"`
	Active       bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Guideline is an organization-owned evaluation guideline
type Guideline struct {
	ID              string          `json:"guideline_id"`
	OrganizationID  string          `json:"organization_id"`
	Name            string          `json:"guideline_name"`
	Text            string          `json:"guideline_text"`
	Description     string          `json:"description,omitempty"`
	VisibilityScope VisibilityScope `json:"visibility_scope"`
	IsPublic        bool            `json:"is_public"`
	Active          bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Consistent checks the stored invariant: universal implies public.
func (g *Guideline) Consistent() bool {
	if g.VisibilityScope == ScopeUniversal {
		return g.IsPublic
	}
	return g.VisibilityScope.Valid()
}

// AccessGrant maps one organization to one public_mapped guideline
type AccessGrant struct {
	OrganizationID string    `json:"organization_id"`
	GuidelineID    string    `json:"guideline_id"`
	GrantedBy      string    `json:"granted_by"`
	GrantedAt      time.Time `json:"granted_at"`
	Notes          string    `json:"notes,omitempty"`
}

// AccessAudit is one append-only row of the guideline access log
type AccessAudit struct {
	ID             int64        `json:"id"`
	UserEmail      string       `json:"user_email"`
	OrganizationID string       `json:"organization_id"`
	GuidelineID    string       `json:"guideline_id"`
	AccessGranted  bool         `json:"access_granted"`
	AccessReason   AccessReason `json:"access_reason"`
	AccessedAt     time.Time    `json:"accessed_at"`
}

// AuditQuery filters the access log. Nil/empty fields are ignored.
type AuditQuery struct {
	UserEmail      string
	OrganizationID string
	GuidelineID    string
	AccessGranted  *bool
	Limit          int
}

// VisibleGuideline is a resolved guideline together with the tier that exposed it
type VisibleGuideline struct {
	Guideline
	AccessType AccessReason `json:"access_type"`
}
