package sqlstore

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/config"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/ledger"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/financing/revenue"
	"carbon-scribe/blue-carbon/blue-carbon-backend/internal/projects"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "blue-carbon.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newProject(owner string, submitted time.Time) *projects.Project {
	return &projects.Project{
		ID:           uuid.New(),
		OwnerID:      owner,
		Species:      "Rhizophora mucronata",
		AreaHectares: 2.5,
		GPS:          projects.GPSCoord{Lat: 19.076, Lng: 72.8777},
		ImageRef:     "img/plot.jpg",
		Status:       projects.StatusPending,
		SubmittedAt:  submitted,
	}
}

func TestProjectStoreRoundTrip(t *testing.T) {
	store := NewProjectStore(openTestDB(t))
	ctx := context.Background()
	submitted := time.Date(2024, 3, 1, 8, 30, 0, 123456789, time.UTC)
	p := newProject("owner-1", submitted)

	require.NoError(t, store.Create(ctx, p))
	got, err := store.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	assert.ErrorIs(t, store.Create(ctx, p), projects.ErrInvalidProject)

	_, err = store.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, projects.ErrNotFound)
}

func TestProjectStoreCompareAndSet(t *testing.T) {
	store := NewProjectStore(openTestDB(t))
	ctx := context.Background()
	p := newProject("owner-1", time.Now().UTC())
	require.NoError(t, store.Create(ctx, p))

	score, co2 := 0.91, 3.75
	decidedAt := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	updated, err := store.CompareAndSetDecision(ctx, p.ID, projects.Decision{
		Status:    projects.StatusVerified,
		Score:     &score,
		CO2Tons:   &co2,
		DecidedAt: decidedAt,
		DecidedBy: "system:verification",
	})
	require.NoError(t, err)
	assert.Equal(t, projects.StatusVerified, updated.Status)
	assert.Equal(t, 0.91, *updated.VerificationScore)
	assert.Equal(t, 3.75, *updated.CO2Tons)
	assert.Equal(t, decidedAt, *updated.DecidedAt)

	_, err = store.CompareAndSetDecision(ctx, p.ID, projects.Decision{Status: projects.StatusRejected, DecidedBy: "r"})
	assert.ErrorIs(t, err, projects.ErrAlreadyDecided)

	_, err = store.CompareAndSetDecision(ctx, uuid.New(), projects.Decision{Status: projects.StatusRejected})
	assert.ErrorIs(t, err, projects.ErrNotFound)
}

func TestProjectStoreConcurrentDecisions(t *testing.T) {
	store := NewProjectStore(openTestDB(t))
	ctx := context.Background()
	p := newProject("owner-1", time.Now().UTC())
	require.NoError(t, store.Create(ctx, p))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CompareAndSetDecision(ctx, p.ID, projects.Decision{
				Status:    projects.StatusRejected,
				DecidedAt: time.Now().UTC(),
				DecidedBy: "reviewer",
			})
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, projects.ErrAlreadyDecided)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestProjectStoreList(t *testing.T) {
	store := NewProjectStore(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i, owner := range []string{"owner-1", "owner-2", "owner-1"} {
		p := newProject(owner, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Create(ctx, p))
		ids = append(ids, p.ID)
	}
	_, err := store.CompareAndSetDecision(ctx, ids[0], projects.Decision{
		Status: projects.StatusRejected, DecidedAt: base, DecidedBy: "r",
	})
	require.NoError(t, err)

	all, err := store.List(ctx, projects.ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids, []uuid.UUID{all[0].ID, all[1].ID, all[2].ID})

	mine, _ := store.List(ctx, projects.ProjectFilter{OwnerID: "owner-1"})
	assert.Len(t, mine, 2)
	pending, _ := store.List(ctx, projects.ProjectFilter{Status: projects.StatusPending})
	assert.Len(t, pending, 2)
	limited, _ := store.List(ctx, projects.ProjectFilter{Limit: 1})
	require.Len(t, limited, 1)
	assert.Equal(t, ids[0], limited[0].ID)
}

func TestCreditStoreUniquePerProject(t *testing.T) {
	store := NewCreditStore(openTestDB(t))
	ctx := context.Background()
	tx := &ledger.CreditTransaction{
		ID:            uuid.New(),
		ProjectID:     uuid.New(),
		OwnerID:       "owner-1",
		CO2Tons:       3.75,
		TokensMinted:  4,
		RevenuePerTon: revenue.FromFloat(10),
		TotalRevenue:  revenue.FromFloat(40),
		Shares: revenue.Shares{
			Community: revenue.FromFloat(24),
			Panchayat: revenue.FromFloat(8),
			Platform:  revenue.FromFloat(6),
			Buffer:    revenue.FromFloat(2),
		},
		TxRef:    "0xabc",
		MintedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Insert(ctx, tx))

	got, err := store.GetByProject(ctx, tx.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, tx, got)

	dup := *tx
	dup.ID = uuid.New()
	assert.ErrorIs(t, store.Insert(ctx, &dup), ledger.ErrAlreadyMinted)

	_, err = store.GetByProject(ctx, uuid.New())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestLedgerOnSQLite(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	registry := projects.NewRegistry(NewProjectStore(db), zap.NewNop())
	splitter, err := revenue.NewSplitter(revenue.DefaultPolicy())
	require.NoError(t, err)
	credits := ledger.NewLedger(NewCreditStore(db), registry, splitter, zap.NewNop())

	var verified []uuid.UUID
	for _, owner := range []string{"owner-1", "owner-2", "owner-1"} {
		p, err := registry.Submit(ctx, owner, projects.SubmitRequest{
			Species:      "Avicennia marina",
			AreaHectares: 2.5,
			GPS:          projects.GPSCoord{Lat: 19.076, Lng: 72.8777},
		})
		require.NoError(t, err)
		_, err = registry.Approve(ctx, p.ID, 0.9, 3.75, "reviewer")
		require.NoError(t, err)
		verified = append(verified, p.ID)
	}

	var wg sync.WaitGroup
	var minted atomic.Int32
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := credits.Mint(ctx, verified[0], 3.75, revenue.FromFloat(10))
			if err == nil {
				minted.Add(1)
				return
			}
			assert.ErrorIs(t, err, ledger.ErrAlreadyMinted)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), minted.Load())

	for _, id := range verified[1:] {
		_, err := credits.Mint(ctx, id, 3.75, revenue.FromFloat(10))
		require.NoError(t, err)
	}

	byUser, err := credits.ListByUser(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.False(t, byUser[1].MintedAt.Before(byUser[0].MintedAt))
	for _, tx := range byUser {
		assert.True(t, ledger.VerifyTxRef(tx))
		assert.Equal(t, revenue.FromFloat(40), tx.Shares.Total())
	}

	all, err := credits.List(ctx, ledger.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
