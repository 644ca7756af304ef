package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/auth"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/ledger"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/revenue"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/notifications"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/projects"
)

type MockProjects struct {
	mock.Mock
}

func (m *MockProjects) List(ctx context.Context, filter projects.ProjectFilter) ([]*projects.Project, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*projects.Project), args.Error(1)
}

type MockCredits struct {
	mock.Mock
}

func (m *MockCredits) List(ctx context.Context, filter ledger.Filter) ([]*ledger.CreditTransaction, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.CreditTransaction), args.Error(1)
}

func ptr(v float64) *float64 { return &v }

func sampleProjects() []*projects.Project {
	return []*projects.Project{
		{OwnerID: "owner-1", AreaHectares: 2.5, Status: projects.StatusVerified, CO2Tons: ptr(3.75)},
		{OwnerID: "owner-1", AreaHectares: 1.0, Status: projects.StatusPending},
		{OwnerID: "owner-2", AreaHectares: 4.0, Status: projects.StatusRejected},
	}
}

func sampleCredits() []*ledger.CreditTransaction {
	return []*ledger.CreditTransaction{{
		OwnerID:      "owner-1",
		TokensMinted: 4,
		TotalRevenue: revenue.FromFloat(40),
		Shares: revenue.Shares{
			Community: revenue.FromFloat(24),
			Panchayat: revenue.FromFloat(8),
			Platform:  revenue.FromFloat(6),
			Buffer:    revenue.FromFloat(2),
		},
	}}
}

func newTestAggregator(t *testing.T) (*Aggregator, *MockProjects, *MockCredits) {
	cache := NewAggregateCache(time.Minute)
	t.Cleanup(cache.Stop)
	mp, mc := new(MockProjects), new(MockCredits)
	return NewAggregator(mp, mc, cache, zap.NewNop()), mp, mc
}

func TestPlatformSummary(t *testing.T) {
	agg, mp, mc := newTestAggregator(t)
	mp.On("List", mock.Anything, projects.ProjectFilter{}).Return(sampleProjects(), nil).Once()
	mc.On("List", mock.Anything, ledger.Filter{}).Return(sampleCredits(), nil).Once()

	summary, err := agg.PlatformSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ProjectCounts{Total: 3, Pending: 1, Verified: 1, Rejected: 1}, summary.Projects)
	assert.Equal(t, 7.5, summary.TotalAreaHectares)
	assert.Equal(t, 3.75, summary.VerifiedCO2Tons)
	assert.Equal(t, int64(4), summary.TotalTokens)
	assert.Equal(t, revenue.FromFloat(40), summary.TotalRevenue)
	assert.Equal(t, summary.TotalRevenue, summary.Shares.Total())

	// served from cache: the mocks expect exactly one call each
	_, err = agg.PlatformSummary(context.Background())
	require.NoError(t, err)
	mp.AssertExpectations(t)
	mc.AssertExpectations(t)
}

func TestOwnerSummaryInvalidatedByEvents(t *testing.T) {
	agg, mp, mc := newTestAggregator(t)
	ctx := context.Background()
	owned := sampleProjects()[:2]
	mp.On("List", mock.Anything, projects.ProjectFilter{OwnerID: "owner-1"}).Return(owned, nil).Twice()
	mc.On("List", mock.Anything, ledger.Filter{OwnerID: "owner-1"}).Return(sampleCredits(), nil).Twice()

	summary, err := agg.OwnerSummary(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Projects.Total)
	assert.Equal(t, revenue.FromFloat(24), summary.CommunityShare)

	_, err = agg.OwnerSummary(ctx, "owner-1")
	require.NoError(t, err)
	mp.AssertNumberOfCalls(t, "List", 1)

	// an event for another owner leaves this entry cached
	require.NoError(t, agg.Emit(ctx, notifications.Event{OwnerID: "owner-2"}))
	_, err = agg.OwnerSummary(ctx, "owner-1")
	require.NoError(t, err)
	mp.AssertNumberOfCalls(t, "List", 1)

	require.NoError(t, agg.Emit(ctx, notifications.Event{OwnerID: "owner-1"}))
	_, err = agg.OwnerSummary(ctx, "owner-1")
	require.NoError(t, err)
	mp.AssertNumberOfCalls(t, "List", 2)
}

func TestSummaryErrorsAreNotCached(t *testing.T) {
	agg, mp, mc := newTestAggregator(t)
	mp.On("List", mock.Anything, projects.ProjectFilter{}).Return(nil, errors.New("db down")).Once()
	mp.On("List", mock.Anything, projects.ProjectFilter{}).Return(sampleProjects(), nil).Once()
	mc.On("List", mock.Anything, ledger.Filter{}).Return(sampleCredits(), nil).Once()

	_, err := agg.PlatformSummary(context.Background())
	assert.Error(t, err)

	summary, err := agg.PlatformSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Projects.Total)
}

func loadValue(t *testing.T, cache *AggregateCache, key string, value interface{}) {
	t.Helper()
	_, err := cache.Load(key, func() (interface{}, error) { return value, nil })
	require.NoError(t, err)
}

func TestCacheExpiry(t *testing.T) {
	cache := NewAggregateCache(time.Minute)
	defer cache.Stop()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	loadValue(t, cache, "owner:a", 1)
	loadValue(t, cache, "owner:b", 2)
	loadValue(t, cache, "platform", 3)
	v, ok := cache.Lookup("owner:a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	cache.InvalidatePrefix("owner:")
	_, ok = cache.Lookup("owner:b")
	assert.False(t, ok)
	_, ok = cache.Lookup("platform")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = cache.Lookup("platform")
	assert.False(t, ok)
	cache.evictExpired()
	assert.Empty(t, cache.entries)
}

func TestCachePrefixInvalidationReachesInFlightLoads(t *testing.T) {
	cache := NewAggregateCache(time.Minute)
	defer cache.Stop()

	v, err := cache.Load("owner:a", func() (interface{}, error) {
		cache.InvalidatePrefix("owner:")
		return "stale", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "stale", v)
	_, ok := cache.Lookup("owner:a")
	assert.False(t, ok)
	assert.Empty(t, cache.loading)

	loadValue(t, cache, "owner:a", "fresh")
	v, ok = cache.Lookup("owner:a")
	require.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestOwnerlessEventInvalidatesEveryOwner(t *testing.T) {
	agg, mp, mc := newTestAggregator(t)
	ctx := context.Background()
	for _, owner := range []string{"owner-1", "owner-2"} {
		mp.On("List", mock.Anything, projects.ProjectFilter{OwnerID: owner}).Return(sampleProjects()[:1], nil).Twice()
		mc.On("List", mock.Anything, ledger.Filter{OwnerID: owner}).Return(sampleCredits(), nil).Twice()
		_, err := agg.OwnerSummary(ctx, owner)
		require.NoError(t, err)
	}
	mp.AssertNumberOfCalls(t, "List", 2)

	require.NoError(t, agg.Emit(ctx, notifications.Event{}))
	for _, owner := range []string{"owner-1", "owner-2"} {
		_, err := agg.OwnerSummary(ctx, owner)
		require.NoError(t, err)
	}
	mp.AssertNumberOfCalls(t, "List", 4)
	mp.AssertExpectations(t)
}

func TestCacheDropsSummaryComputedBeforeInvalidation(t *testing.T) {
	cache := NewAggregateCache(time.Minute)
	defer cache.Stop()

	v, err := cache.Load("platform", func() (interface{}, error) {
		cache.Invalidate("platform")
		return "stale", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "stale", v)
	_, ok := cache.Lookup("platform")
	assert.False(t, ok)

	v, err = cache.Load("platform", func() (interface{}, error) { return "fresh", nil })
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	v, ok = cache.Lookup("platform")
	require.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestCacheCollapsesConcurrentLoads(t *testing.T) {
	cache := NewAggregateCache(time.Minute)
	defer cache.Stop()

	var computes int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := cache.Load("owner:a", func() (interface{}, error) {
				atomic.AddInt32(&computes, 1)
				<-release
				return 42, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&computes))
	_, ok := cache.Lookup("owner:a")
	assert.True(t, ok)
}

func TestHandlerRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	agg, mp, mc := newTestAggregator(t)
	mp.On("List", mock.Anything, mock.Anything).Return(sampleProjects(), nil)
	mc.On("List", mock.Anything, mock.Anything).Return(sampleCredits(), nil)

	r := gin.New()
	authService := auth.NewService("", "blue-carbon", zap.NewNop())
	NewHandler(agg, zap.NewNop()).RegisterRoutes(r.Group("/api/v1", authService.Middleware()))

	get := func(path, role string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-User-ID", "owner-1")
		req.Header.Set("X-User-Role", role)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusForbidden, get("/api/v1/dashboard/summary", auth.RoleClient))
	assert.Equal(t, http.StatusOK, get("/api/v1/dashboard/summary", auth.RoleAdmin))
	assert.Equal(t, http.StatusOK, get("/api/v1/dashboard/me", auth.RoleClient))
}
