package guidelines

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/bryanwahyu/tor-evaluator/internal/application"
	domain "github.com/bryanwahyu/tor-evaluator/internal/domain/guidelines"
)

// Service resolves guideline visibility and records every check in the
// access audit log. Safe for concurrent use.
type Service struct {
	Orgs       domain.OrganizationRepository
	Guidelines domain.Repository
	Audit      domain.AuditLog
	Clock      application.Clock
	Logger     *zap.Logger
}

// Resolution is the outcome of resolving guidelines for one caller.
type Resolution struct {
	Organization *domain.Organization
	Guidelines   []domain.VisibleGuideline
}

// IDs returns the visible guideline ids in resolution order.
func (r *Resolution) IDs() []string {
	ids := make([]string, 0, len(r.Guidelines))
	for _, g := range r.Guidelines {
		ids = append(ids, g.ID)
	}
	return ids
}

// Text joins the visible guideline bodies for prompt embedding.
func (r *Resolution) Text() string {
	parts := make([]string, 0, len(r.Guidelines))
	for _, g := range r.Guidelines {
		if t := strings.TrimSpace(g.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Breakdown counts visible guidelines per access tier.
func (r *Resolution) Breakdown() map[domain.AccessReason]int {
	out := map[domain.AccessReason]int{
		domain.ReasonOrganization: 0,
		domain.ReasonPublicMapped: 0,
		domain.ReasonUniversal:    0,
	}
	for _, g := range r.Guidelines {
		out[g.AccessType]++
	}
	return out
}

func (s *Service) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Subject derives the caller's organization from the email domain. No
// match is not an error; the subject simply has no organization.
func (s *Service) Subject(ctx context.Context, email string) (domain.Subject, *domain.Organization, error) {
	subj := domain.Subject{Email: strings.TrimSpace(email)}
	orgs, err := s.Orgs.ListActive(ctx)
	if err != nil {
		return subj, nil, fmt.Errorf("list organizations: %w", err)
	}
	org := domain.MatchOrganization(orgs, subj.Email)
	if org == nil {
		s.log().Debug("no_organization_match", zap.String("domain", domain.DomainOf(subj.Email)))
		return subj, nil, nil
	}
	subj.OrganizationID = org.ID
	return subj, org, nil
}

// CanAccess reports whether the caller may see guidelineID and appends
// exactly one audit row for the decision. If that row cannot be written the
// check fails closed with ErrAuditWrite.
func (s *Service) CanAccess(ctx context.Context, email, guidelineID string) (bool, error) {
	subj, _, err := s.Subject(ctx, email)
	if err != nil {
		return false, err
	}
	g, err := s.Guidelines.Get(ctx, guidelineID)
	if err != nil {
		return false, fmt.Errorf("get guideline %s: %w", guidelineID, err)
	}
	ok, _, err := s.check(ctx, subj, guidelineID, g, false)
	return ok, err
}

// Resolve returns every guideline visible to the caller, auditing each
// candidate it evaluates. A requested organization other than the caller's
// own only widens the candidate set; its guidelines are still checked
// against the caller's email-derived organization.
func (s *Service) Resolve(ctx context.Context, email, organizationID string) (*Resolution, error) {
	subj, org, err := s.Subject(ctx, email)
	if err != nil {
		return nil, err
	}

	var (
		order      []string
		candidates = map[string]*domain.Guideline{}
		granted    = map[string]bool{}
	)
	add := func(list []*domain.Guideline) {
		for _, g := range list {
			if g == nil {
				continue
			}
			if _, seen := candidates[g.ID]; !seen {
				order = append(order, g.ID)
			}
			candidates[g.ID] = g
		}
	}

	if subj.OrganizationID != "" {
		owned, err := s.Guidelines.ListOwnedBy(ctx, subj.OrganizationID)
		if err != nil {
			return nil, fmt.Errorf("list organization guidelines: %w", err)
		}
		add(owned)

		mapped, err := s.Guidelines.ListGrantedTo(ctx, subj.OrganizationID)
		if err != nil {
			return nil, fmt.Errorf("list granted guidelines: %w", err)
		}
		for _, g := range mapped {
			if g != nil {
				granted[g.ID] = true
			}
		}
		add(mapped)
	}

	universal, err := s.Guidelines.ListUniversal(ctx)
	if err != nil {
		return nil, fmt.Errorf("list universal guidelines: %w", err)
	}
	add(universal)

	if organizationID != "" && organizationID != subj.OrganizationID {
		requested, err := s.Guidelines.ListOwnedBy(ctx, organizationID)
		if err != nil {
			return nil, fmt.Errorf("list requested organization guidelines: %w", err)
		}
		add(requested)
	}

	res := &Resolution{Organization: org, Guidelines: []domain.VisibleGuideline{}}
	for _, id := range order {
		g := candidates[id]
		ok, reason, err := s.check(ctx, subj, id, g, granted[id])
		if err != nil {
			return nil, err
		}
		if ok {
			res.Guidelines = append(res.Guidelines, domain.VisibleGuideline{Guideline: *g, AccessType: reason})
		}
	}

	sort.SliceStable(res.Guidelines, func(i, j int) bool {
		a, b := res.Guidelines[i], res.Guidelines[j]
		if ra, rb := domain.TierRank(a.AccessType), domain.TierRank(b.AccessType); ra != rb {
			return ra < rb
		}
		return a.Name < b.Name
	})

	s.log().Info("guidelines_resolved",
		zap.String("organization_id", subj.OrganizationID),
		zap.Int("evaluated", len(order)),
		zap.Int("visible", len(res.Guidelines)),
	)
	return res, nil
}

// check decides one guideline and writes its audit row. knownGrant skips
// the grant lookup when the caller already listed the grant.
func (s *Service) check(ctx context.Context, subj domain.Subject, id string, g *domain.Guideline, knownGrant bool) (bool, domain.AccessReason, error) {
	granted := knownGrant
	if !granted && domain.NeedsGrant(subj, g) {
		var err error
		granted, err = s.Guidelines.HasGrant(ctx, subj.OrganizationID, g.ID)
		if err != nil {
			return false, domain.ReasonDenied, fmt.Errorf("lookup grant for %s: %w", id, err)
		}
	}

	ok, reason := domain.Decide(subj, g, granted)

	entry := &domain.AccessAudit{
		UserEmail:      subj.Email,
		OrganizationID: subj.OrganizationID,
		GuidelineID:    id,
		AccessGranted:  ok,
		AccessReason:   reason,
		AccessedAt:     application.ClockOrSystem(s.Clock).Now(),
	}
	if err := s.Audit.Append(ctx, entry); err != nil {
		s.log().Error("guideline_audit_failed", zap.String("guideline_id", id), zap.Error(err))
		return false, domain.ReasonDenied, fmt.Errorf("%w: %v", domain.ErrAuditWrite, err)
	}

	if !ok {
		cause := domain.ErrAccessDenied
		if g == nil || !g.Active {
			cause = domain.ErrGuidelineNotFound
		}
		s.log().Debug("guideline_access_denied", zap.String("guideline_id", id), zap.NamedError("cause", cause))
	}
	return ok, reason, nil
}

// AuditTrail lists access audit rows, newest first.
func (s *Service) AuditTrail(ctx context.Context, q domain.AuditQuery) ([]*domain.AccessAudit, error) {
	switch {
	case q.Limit <= 0:
		q.Limit = 100
	case q.Limit > 1000:
		q.Limit = 1000
	}
	rows, err := s.Audit.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return rows, nil
}
