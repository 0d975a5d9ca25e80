// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file manages chain-to-chain graph edges.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shutterline/go-mission-backend/internal/domain"
)

// CreateConnectionIfNeeded links two chains in both directions. The unique
// index on (from_chain_id, to_chain_id) makes the call idempotent: edges
// that already exist are left untouched, so concurrent evaluations of the
// same mission pair cannot produce duplicates. Self-links are rejected
// silently (a chain never connects to itself).
func CreateConnectionIfNeeded(ctx context.Context, db *gorm.DB, fromChainID, toChainID, reason string) error {
	if fromChainID == toChainID {
		return nil
	}
	now := time.Now().UTC()
	for _, pair := range [][2]string{{fromChainID, toChainID}, {toChainID, fromChainID}} {
		edge := &domain.Connection{
			ID:          uuid.NewString(),
			FromChainID: pair[0],
			ToChainID:   pair[1],
			Reason:      reason,
			CreatedAt:   now,
		}
		if err := db.WithContext(ctx).Create(edge).Error; err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return err
		}
	}
	return nil
}

// ListConnections returns all outgoing edges of a chain, newest first.
func ListConnections(ctx context.Context, db *gorm.DB, chainID string) ([]domain.Connection, error) {
	var out []domain.Connection
	err := db.WithContext(ctx).
		Where("from_chain_id = ?", chainID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// ConnectionExists reports whether a directed edge from one chain to
// another is present.
func ConnectionExists(ctx context.Context, db *gorm.DB, fromChainID, toChainID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Connection{}).
		Where("from_chain_id = ? AND to_chain_id = ?", fromChainID, toChainID).
		Count(&n).Error
	return n > 0, err
}
