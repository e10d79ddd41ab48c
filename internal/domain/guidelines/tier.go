package guidelines

import "strings"

// Subject is the caller of an access check. OrganizationID is empty when
// the caller's email domain matches no active organization.
type Subject struct {
	Email          string
	OrganizationID string
}

// DomainOf returns the lowercase part after the last '@', or "" when the
// address has none.
func DomainOf(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 || i == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[i+1:]))
}

// MatchOrganization returns the first active organization listing the
// email's domain, or nil.
func MatchOrganization(orgs []*Organization, email string) *Organization {
	domain := DomainOf(email)
	if domain == "" {
		return nil
	}
	for _, o := range orgs {
		if o == nil || !o.Active {
			continue
		}
		for _, d := range o.EmailDomains {
			if strings.EqualFold(strings.TrimSpace(d), domain) {
				return o
			}
		}
	}
	return nil
}

// tier is one visibility rule. Tiers are evaluated in order and the first
// match wins.
type tier struct {
	reason AccessReason
	match  func(s Subject, g *Guideline, granted bool) bool
}

var tiers = []tier{
	{
		reason: ReasonOrganization,
		match: func(s Subject, g *Guideline, _ bool) bool {
			return s.OrganizationID != "" && g.OrganizationID == s.OrganizationID
		},
	},
	{
		reason: ReasonPublicMapped,
		match: func(s Subject, g *Guideline, granted bool) bool {
			return s.OrganizationID != "" && g.VisibilityScope == ScopePublicMapped && granted
		},
	},
	{
		reason: ReasonUniversal,
		match: func(_ Subject, g *Guideline, _ bool) bool {
			// a universal row that is not public is never exposed
			return g.VisibilityScope == ScopeUniversal && g.Consistent()
		},
	},
}

// NeedsGrant reports whether the decision for g depends on an AccessGrant
// lookup, so callers can skip the query otherwise.
func NeedsGrant(s Subject, g *Guideline) bool {
	if g == nil || !g.Active || s.OrganizationID == "" {
		return false
	}
	return g.OrganizationID != s.OrganizationID && g.VisibilityScope == ScopePublicMapped
}

// Decide applies the tiers to g. A missing or inactive guideline is denied.
func Decide(s Subject, g *Guideline, granted bool) (bool, AccessReason) {
	if g == nil || !g.Active {
		return false, ReasonDenied
	}
	for _, t := range tiers {
		if t.match(s, g, granted) {
			return true, t.reason
		}
	}
	return false, ReasonDenied
}

// TierRank orders access reasons for display; lower ranks come first.
func TierRank(r AccessReason) int {
	for i, t := range tiers {
		if t.reason == r {
			return i
		}
	}
	return len(tiers)
}
