package guidelines

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/tor-evaluator/internal/application"
	domain "github.com/bryanwahyu/tor-evaluator/internal/domain/guidelines"
)

type memStore struct {
	mu         sync.Mutex
	orgs       []*domain.Organization
	guidelines map[string]*domain.Guideline
	grants     map[[2]string]bool
	audit      []*domain.AccessAudit
	auditErr   error
	grantCalls int
}

func newMemStore() *memStore {
	return &memStore{guidelines: map[string]*domain.Guideline{}, grants: map[[2]string]bool{}}
}

func (m *memStore) ListActive(context.Context) ([]*domain.Organization, error) {
	return m.orgs, nil
}

func (m *memStore) Get(_ context.Context, id string) (*domain.Guideline, error) {
	return m.guidelines[id], nil
}

func (m *memStore) filter(fn func(*domain.Guideline) bool) []*domain.Guideline {
	var out []*domain.Guideline
	for _, g := range m.guidelines {
		if g.Active && fn(g) {
			out = append(out, g)
		}
	}
	return out
}

func (m *memStore) ListOwnedBy(_ context.Context, org string) ([]*domain.Guideline, error) {
	return m.filter(func(g *domain.Guideline) bool { return g.OrganizationID == org }), nil
}

func (m *memStore) ListGrantedTo(_ context.Context, org string) ([]*domain.Guideline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(g *domain.Guideline) bool { return m.grants[[2]string{org, g.ID}] }), nil
}

func (m *memStore) ListUniversal(context.Context) ([]*domain.Guideline, error) {
	return m.filter(func(g *domain.Guideline) bool { return g.VisibilityScope == domain.ScopeUniversal && g.IsPublic }), nil
}

func (m *memStore) HasGrant(_ context.Context, org, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grantCalls++
	return m.grants[[2]string{org, id}], nil
}

func (m *memStore) Append(_ context.Context, e *domain.AccessAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.auditErr != nil {
		return m.auditErr
	}
	m.audit = append(m.audit, e)
	return nil
}

func (m *memStore) List(_ context.Context, q domain.AuditQuery) ([]*domain.AccessAudit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.AccessAudit
	for _, e := range m.audit {
		if q.UserEmail != "" && e.UserEmail != q.UserEmail {
			continue
		}
		out = append(out, e)
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) auditCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.audit)
}

func (m *memStore) lastAudit() *domain.AccessAudit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audit[len(m.audit)-1]
}

func (m *memStore) put(g *domain.Guideline) { m.guidelines[g.ID] = g }

func fixture() (*memStore, *Service) {
	store := newMemStore()
	store.orgs = []*domain.Organization{
		{ID: "acme", Name: "Acme", EmailDomains: []string{"acme.org"}, Active: true},
		{ID: "globex", Name: "Globex", EmailDomains: []string{"globex.com"}, Active: true},
	}
	store.put(&domain.Guideline{ID: "acme-1", OrganizationID: "acme", Name: "Acme budget rules", Text: "acme text", VisibilityScope: domain.ScopeOrganization, Active: true})
	store.put(&domain.Guideline{ID: "acme-old", OrganizationID: "acme", Name: "Retired", VisibilityScope: domain.ScopeOrganization, Active: false})
	store.put(&domain.Guideline{ID: "globex-1", OrganizationID: "globex", Name: "Globex private", VisibilityScope: domain.ScopeOrganization, Active: true})
	store.put(&domain.Guideline{ID: "globex-pub", OrganizationID: "globex", Name: "Globex shared", Text: "shared text", VisibilityScope: domain.ScopePublicMapped, IsPublic: true, Active: true})
	store.put(&domain.Guideline{ID: "uni-1", OrganizationID: "globex", Name: "Universal ethics", Text: "universal text", VisibilityScope: domain.ScopeUniversal, IsPublic: true, Active: true})

	svc := &Service{
		Orgs:       store,
		Guidelines: store,
		Audit:      store,
		Clock:      application.FixedClock(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)),
	}
	return store, svc
}

func TestCanAccessTiers(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		email  string
		id     string
		want   bool
		reason domain.AccessReason
	}{
		{"own organization", "jane@ACME.org", "acme-1", true, domain.ReasonOrganization},
		{"foreign private", "jane@acme.org", "globex-1", false, domain.ReasonDenied},
		{"mapped without grant", "jane@acme.org", "globex-pub", false, domain.ReasonDenied},
		{"universal for member", "jane@acme.org", "uni-1", true, domain.ReasonUniversal},
		{"universal for stranger", "someone@gmail.com", "uni-1", true, domain.ReasonUniversal},
		{"inactive guideline", "jane@acme.org", "acme-old", false, domain.ReasonDenied},
		{"missing guideline", "jane@acme.org", "nope", false, domain.ReasonDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, svc := fixture()

			ok, err := svc.CanAccess(ctx, tt.email, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)

			require.Equal(t, 1, store.auditCount(), "every check writes exactly one audit row")
			row := store.lastAudit()
			assert.Equal(t, tt.want, row.AccessGranted)
			assert.Equal(t, tt.reason, row.AccessReason)
			assert.Equal(t, tt.id, row.GuidelineID)
			assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), row.AccessedAt)
		})
	}
}

func TestCanAccessGrantRevocation(t *testing.T) {
	ctx := context.Background()
	store, svc := fixture()

	store.grants[[2]string{"acme", "globex-pub"}] = true
	ok, err := svc.CanAccess(ctx, "jane@acme.org", "globex-pub")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.ReasonPublicMapped, store.lastAudit().AccessReason)

	delete(store.grants, [2]string{"acme", "globex-pub"})
	ok, err = svc.CanAccess(ctx, "jane@acme.org", "globex-pub")
	require.NoError(t, err)
	assert.False(t, ok, "revoking the grant flips the next check")
	assert.Equal(t, 2, store.auditCount())
}

func TestCanAccessStrangerNeverGetsMapped(t *testing.T) {
	store, svc := fixture()
	store.grants[[2]string{"acme", "globex-pub"}] = true

	ok, err := svc.CanAccess(context.Background(), "eve@unknown.net", "globex-pub")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, store.grantCalls, "no organization means no grant lookup")
	assert.Empty(t, store.lastAudit().OrganizationID)
}

func TestCanAccessAuditFailureFailsClosed(t *testing.T) {
	store, svc := fixture()
	store.auditErr = errors.New("disk full")

	ok, err := svc.CanAccess(context.Background(), "jane@acme.org", "acme-1")
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrAuditWrite)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	store, svc := fixture()
	store.grants[[2]string{"acme", "globex-pub"}] = true

	res, err := svc.Resolve(ctx, "jane@acme.org", "acme")
	require.NoError(t, err)
	require.NotNil(t, res.Organization)
	assert.Equal(t, "acme", res.Organization.ID)

	assert.Equal(t, []string{"acme-1", "globex-pub", "uni-1"}, res.IDs(), "ordered by tier")
	assert.Equal(t, domain.ReasonOrganization, res.Guidelines[0].AccessType)
	assert.Equal(t, domain.ReasonPublicMapped, res.Guidelines[1].AccessType)
	assert.Equal(t, domain.ReasonUniversal, res.Guidelines[2].AccessType)
	assert.Equal(t, "acme text\n\nshared text\n\nuniversal text", res.Text())
	assert.Equal(t, map[domain.AccessReason]int{
		domain.ReasonOrganization: 1,
		domain.ReasonPublicMapped: 1,
		domain.ReasonUniversal:    1,
	}, res.Breakdown())

	assert.Equal(t, 3, store.auditCount(), "each evaluated candidate is audited")
	assert.Zero(t, store.grantCalls, "listed grants do not need a second lookup")
}

func TestResolveCrossOrganizationRequestIsDenied(t *testing.T) {
	store, svc := fixture()

	res, err := svc.Resolve(context.Background(), "jane@acme.org", "globex")
	require.NoError(t, err)
	assert.Equal(t, []string{"acme-1", "uni-1"}, res.IDs())

	// acme-1, uni-1, globex-1 and globex-pub are all evaluated.
	assert.Equal(t, 4, store.auditCount())
	denied := 0
	for _, row := range store.audit {
		if !row.AccessGranted {
			denied++
			assert.Equal(t, domain.ReasonDenied, row.AccessReason)
		}
	}
	assert.Equal(t, 2, denied)
}

func TestResolveWithoutOrganization(t *testing.T) {
	store, svc := fixture()

	res, err := svc.Resolve(context.Background(), "eve@gmail.com", "")
	require.NoError(t, err)
	assert.Nil(t, res.Organization)
	assert.Equal(t, []string{"uni-1"}, res.IDs())
	assert.Equal(t, 1, store.auditCount())
}

func TestResolveEmpty(t *testing.T) {
	store := newMemStore()
	svc := &Service{Orgs: store, Guidelines: store, Audit: store}

	res, err := svc.Resolve(context.Background(), "eve@gmail.com", "")
	require.NoError(t, err)
	assert.Empty(t, res.Guidelines)
	assert.NotNil(t, res.Guidelines)
	assert.Empty(t, res.Text())
	assert.Zero(t, store.auditCount())
}

func TestAuditTrailLimits(t *testing.T) {
	store, svc := fixture()
	for i := 0; i < 3; i++ {
		_, err := svc.CanAccess(context.Background(), "jane@acme.org", "acme-1")
		require.NoError(t, err)
	}

	rows, err := svc.AuditTrail(context.Background(), domain.AuditQuery{UserEmail: "jane@acme.org"})
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = svc.AuditTrail(context.Background(), domain.AuditQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 3, store.auditCount())
}
