package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type gormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a listing store backed by GORM
func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// OpenPostgres connects GORM to PostgreSQL and migrates the listing table
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect marketplace database: %w", err)
	}
	if err := db.AutoMigrate(&Listing{}); err != nil {
		return nil, fmt.Errorf("failed to migrate marketplace listings: %w", err)
	}
	return db, nil
}

func (r *gormRepository) Create(ctx context.Context, listing *Listing) error {
	if err := r.db.WithContext(ctx).Create(listing).Error; err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Listing, error) {
	var listing Listing
	err := r.db.WithContext(ctx).First(&listing, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &listing, nil
}

func (r *gormRepository) List(ctx context.Context, filter ListingFilter) ([]*Listing, error) {
	query := r.db.WithContext(ctx).Model(&Listing{}).Order("created_at ASC")
	if filter.SellerID != "" {
		query = query.Where("seller_id = ?", filter.SellerID)
	}
	if filter.BuyerID != "" {
		query = query.Where("buyer_id = ?", filter.BuyerID)
	}
	if filter.Status != "" {
		query = query.Where("escrow_status = ?", filter.Status)
	}

	var listings []*Listing
	if err := query.Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	return listings, nil
}

func (r *gormRepository) CompareAndSetEscrow(ctx context.Context, id uuid.UUID, from EscrowStatus, update EscrowUpdate) (*Listing, error) {
	changes := map[string]interface{}{"escrow_status": update.Status}
	if update.BuyerID != "" {
		changes["buyer_id"] = update.BuyerID
	}
	if update.PurchasedAt != nil {
		changes["purchased_at"] = *update.PurchasedAt
	}
	if update.ReleasedAt != nil {
		changes["released_at"] = *update.ReleasedAt
	}

	result := r.db.WithContext(ctx).Model(&Listing{}).
		Where("id = ? AND escrow_status = ?", id, from).
		Updates(changes)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update escrow: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrInvalidEscrowTransition
	}
	return r.GetByID(ctx, id)
}
