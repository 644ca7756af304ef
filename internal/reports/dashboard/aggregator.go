package dashboard

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/ledger"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/revenue"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/notifications"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/projects"
)

const (
	platformKey    = "platform"
	ownerKeyPrefix = "owner:"
)

// ProjectLister reads projects for aggregation
type ProjectLister interface {
	List(ctx context.Context, filter projects.ProjectFilter) ([]*projects.Project, error)
}

// CreditLister reads ledger entries for aggregation
type CreditLister interface {
	List(ctx context.Context, filter ledger.Filter) ([]*ledger.CreditTransaction, error)
}

// ProjectCounts tallies projects by status
type ProjectCounts struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Verified int `json:"verified"`
	Rejected int `json:"rejected"`
}

// PlatformSummary is the admin view over every project and transaction
type PlatformSummary struct {
	Projects          ProjectCounts  `json:"projects"`
	TotalAreaHectares float64        `json:"total_area_hectares"`
	VerifiedCO2Tons   float64        `json:"verified_co2_tons"`
	TotalTokens       int64          `json:"total_tokens"`
	TotalRevenue      revenue.Money  `json:"total_revenue"`
	Shares            revenue.Shares `json:"shares"`
	ComputedAt        time.Time      `json:"computed_at"`
}

// OwnerSummary is a project owner's view of their own plantations
type OwnerSummary struct {
	OwnerID           string        `json:"owner_id"`
	Projects          ProjectCounts `json:"projects"`
	TotalAreaHectares float64       `json:"total_area_hectares"`
	VerifiedCO2Tons   float64       `json:"verified_co2_tons"`
	TotalTokens       int64         `json:"total_tokens"`
	TotalRevenue      revenue.Money `json:"total_revenue"`
	CommunityShare    revenue.Money `json:"community_share"`
	ComputedAt        time.Time     `json:"computed_at"`
}

// Aggregator computes dashboard summaries and caches them until a ledger event invalidates them
type Aggregator struct {
	projects ProjectLister
	credits  CreditLister
	cache    *AggregateCache
	logger   *zap.Logger
	now      func() time.Time
}

// NewAggregator creates a dashboard aggregator
func NewAggregator(projects ProjectLister, credits CreditLister, cache *AggregateCache, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		projects: projects,
		credits:  credits,
		cache:    cache,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func countProjects(list []*projects.Project) (ProjectCounts, float64, float64) {
	var counts ProjectCounts
	var area, co2 float64
	for _, p := range list {
		counts.Total++
		area += p.AreaHectares
		switch p.Status {
		case projects.StatusPending:
			counts.Pending++
		case projects.StatusVerified:
			counts.Verified++
			if p.CO2Tons != nil {
				co2 += *p.CO2Tons
			}
		case projects.StatusRejected:
			counts.Rejected++
		}
	}
	return counts, round4(area), round4(co2)
}

// PlatformSummary returns totals across all owners
func (a *Aggregator) PlatformSummary(ctx context.Context) (*PlatformSummary, error) {
	v, err := a.cache.Load(platformKey, func() (interface{}, error) {
		all, err := a.projects.List(ctx, projects.ProjectFilter{})
		if err != nil {
			return nil, fmt.Errorf("failed to list projects: %w", err)
		}
		txs, err := a.credits.List(ctx, ledger.Filter{})
		if err != nil {
			return nil, fmt.Errorf("failed to list credits: %w", err)
		}

		summary := &PlatformSummary{ComputedAt: a.now()}
		summary.Projects, summary.TotalAreaHectares, summary.VerifiedCO2Tons = countProjects(all)
		for _, tx := range txs {
			summary.TotalTokens += tx.TokensMinted
			summary.TotalRevenue += tx.TotalRevenue
			summary.Shares.Community += tx.Shares.Community
			summary.Shares.Panchayat += tx.Shares.Panchayat
			summary.Shares.Platform += tx.Shares.Platform
			summary.Shares.Buffer += tx.Shares.Buffer
		}
		a.logger.Debug("Computed platform summary", zap.Int("projects", summary.Projects.Total))
		return summary, nil
	})
	if err != nil {
		return nil, err
	}
	c := *v.(*PlatformSummary)
	return &c, nil
}

// OwnerSummary returns totals for one owner's projects
func (a *Aggregator) OwnerSummary(ctx context.Context, ownerID string) (*OwnerSummary, error) {
	v, err := a.cache.Load(ownerKeyPrefix+ownerID, func() (interface{}, error) {
		owned, err := a.projects.List(ctx, projects.ProjectFilter{OwnerID: ownerID})
		if err != nil {
			return nil, fmt.Errorf("failed to list projects: %w", err)
		}
		txs, err := a.credits.List(ctx, ledger.Filter{OwnerID: ownerID})
		if err != nil {
			return nil, fmt.Errorf("failed to list credits: %w", err)
		}

		summary := &OwnerSummary{OwnerID: ownerID, ComputedAt: a.now()}
		summary.Projects, summary.TotalAreaHectares, summary.VerifiedCO2Tons = countProjects(owned)
		for _, tx := range txs {
			summary.TotalTokens += tx.TokensMinted
			summary.TotalRevenue += tx.TotalRevenue
			summary.CommunityShare += tx.Shares.Community
		}
		return summary, nil
	})
	if err != nil {
		return nil, err
	}
	c := *v.(*OwnerSummary)
	return &c, nil
}

// Emit drops cached summaries touched by the event so the next read recomputes them
func (a *Aggregator) Emit(ctx context.Context, event notifications.Event) error {
	if event.OwnerID == "" {
		// no owner to scope by, so every owner summary may be stale
		a.cache.Invalidate(platformKey)
		a.cache.InvalidatePrefix(ownerKeyPrefix)
		return nil
	}
	a.cache.Invalidate(platformKey, ownerKeyPrefix+event.OwnerID)
	return nil
}
