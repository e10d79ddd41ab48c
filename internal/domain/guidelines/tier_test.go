package guidelines

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "acme.org", DomainOf("Jane@ACME.org"))
	assert.Equal(t, "b.com", DomainOf("weird@a@b.com"))
	assert.Equal(t, "", DomainOf("no-at-sign"))
	assert.Equal(t, "", DomainOf("trailing@"))
}

func TestMatchOrganization(t *testing.T) {
	orgs := []*Organization{
		{ID: "old", EmailDomains: []string{"acme.org"}, Active: false},
		{ID: "acme", EmailDomains: []string{"ACME.org", "acme.net"}, Active: true},
		{ID: "other", EmailDomains: []string{"other.io"}, Active: true},
	}

	org := MatchOrganization(orgs, "bob@acme.org")
	require.NotNil(t, org, "active org with matching domain should resolve")
	assert.Equal(t, "acme", org.ID, "inactive organizations are skipped")

	org = MatchOrganization(orgs, "x@ACME.NET")
	require.NotNil(t, org)
	assert.Equal(t, "acme", org.ID)

	assert.Nil(t, MatchOrganization(orgs, "eve@unknown.com"))
	assert.Nil(t, MatchOrganization(orgs, "garbage"))
}

func TestDecide(t *testing.T) {
	acme := Subject{Email: "a@acme.org", OrganizationID: "acme"}
	anon := Subject{Email: "a@nowhere.com"}

	owned := &Guideline{ID: "g1", OrganizationID: "acme", VisibilityScope: ScopeOrganization, Active: true}
	foreign := &Guideline{ID: "g2", OrganizationID: "other", VisibilityScope: ScopeOrganization, Active: true}
	mapped := &Guideline{ID: "g3", OrganizationID: "other", VisibilityScope: ScopePublicMapped, IsPublic: true, Active: true}
	universal := &Guideline{ID: "g4", OrganizationID: "other", VisibilityScope: ScopeUniversal, IsPublic: true, Active: true}
	ownedUniversal := &Guideline{ID: "g5", OrganizationID: "acme", VisibilityScope: ScopeUniversal, IsPublic: true, Active: true}
	inactive := &Guideline{ID: "g6", OrganizationID: "acme", VisibilityScope: ScopeOrganization, Active: false}
	privateUniversal := &Guideline{ID: "g7", OrganizationID: "other", VisibilityScope: ScopeUniversal, IsPublic: false, Active: true}
	ownedPrivateUniversal := &Guideline{ID: "g8", OrganizationID: "acme", VisibilityScope: ScopeUniversal, IsPublic: false, Active: true}

	tests := []struct {
		name    string
		subject Subject
		g       *Guideline
		granted bool
		ok      bool
		reason  AccessReason
	}{
		{"own organization", acme, owned, false, true, ReasonOrganization},
		{"foreign organization", acme, foreign, false, false, ReasonDenied},
		{"mapped with grant", acme, mapped, true, true, ReasonPublicMapped},
		{"mapped without grant", acme, mapped, false, false, ReasonDenied},
		{"universal", acme, universal, false, true, ReasonUniversal},
		{"organization tier wins over universal", acme, ownedUniversal, false, true, ReasonOrganization},
		{"inactive", acme, inactive, false, false, ReasonDenied},
		{"missing", acme, nil, false, false, ReasonDenied},
		{"no org sees universal", anon, universal, false, true, ReasonUniversal},
		{"no org never sees mapped", anon, mapped, true, false, ReasonDenied},
		{"no org never sees owned", anon, owned, false, false, ReasonDenied},
		{"universal but not public is denied", acme, privateUniversal, false, false, ReasonDenied},
		{"universal but not public is denied without org", anon, privateUniversal, false, false, ReasonDenied},
		{"owner still sees its non-public universal row", acme, ownedPrivateUniversal, false, true, ReasonOrganization},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := Decide(tt.subject, tt.g, tt.granted)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestNeedsGrant(t *testing.T) {
	acme := Subject{OrganizationID: "acme"}
	mapped := &Guideline{OrganizationID: "other", VisibilityScope: ScopePublicMapped, Active: true}
	assert.True(t, NeedsGrant(acme, mapped))
	assert.False(t, NeedsGrant(Subject{}, mapped), "no organization means no grant can apply")
	assert.False(t, NeedsGrant(acme, &Guideline{OrganizationID: "acme", VisibilityScope: ScopePublicMapped, Active: true}))
	assert.False(t, NeedsGrant(acme, &Guideline{OrganizationID: "other", VisibilityScope: ScopeUniversal, Active: true}))
}

func TestGuidelineConsistent(t *testing.T) {
	assert.True(t, (&Guideline{VisibilityScope: ScopeUniversal, IsPublic: true}).Consistent())
	assert.False(t, (&Guideline{VisibilityScope: ScopeUniversal}).Consistent())
	assert.True(t, (&Guideline{VisibilityScope: ScopeOrganization}).Consistent())
	assert.False(t, (&Guideline{VisibilityScope: "secret"}).Consistent())
}

func TestTierRank(t *testing.T) {
	assert.Less(t, TierRank(ReasonOrganization), TierRank(ReasonPublicMapped))
	assert.Less(t, TierRank(ReasonPublicMapped), TierRank(ReasonUniversal))
	assert.Less(t, TierRank(ReasonUniversal), TierRank(ReasonDenied))
}
