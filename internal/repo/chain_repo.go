// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Chain and
// ChainMember models.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shutterline/go-mission-backend/internal/domain"
)

// CreateChain inserts a new Chain row with the given name.
func CreateChain(ctx context.Context, db *gorm.DB, name string) (*domain.Chain, error) {
	c := &domain.Chain{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetChain fetches a chain by ID, or ErrNotFound.
func GetChain(ctx context.Context, db *gorm.DB, id string) (*domain.Chain, error) {
	var c domain.Chain
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// AddMember records userID as a member of chainID. Joining twice is a
// no-op; the existing membership row is returned untouched.
func AddMember(ctx context.Context, db *gorm.DB, chainID, userID string) (*domain.ChainMember, error) {
	m := &domain.ChainMember{
		ID:       uuid.NewString(),
		ChainID:  chainID,
		UserID:   userID,
		JoinedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return getMember(ctx, db, chainID, userID)
		}
		return nil, err
	}
	return m, nil
}

// IsMember reports whether userID belongs to chainID.
func IsMember(ctx context.Context, db *gorm.DB, chainID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ChainMember{}).
		Where("chain_id = ? AND user_id = ?", chainID, userID).
		Count(&n).Error
	return n > 0, err
}

func getMember(ctx context.Context, db *gorm.DB, chainID, userID string) (*domain.ChainMember, error) {
	var m domain.ChainMember
	err := db.WithContext(ctx).
		Where("chain_id = ? AND user_id = ?", chainID, userID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}
