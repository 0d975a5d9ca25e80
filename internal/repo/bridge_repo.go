// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file records bridge events (mission-pair match audit
// rows) and exposes small aggregate queries over the bridge graph.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shutterline/go-mission-backend/internal/domain"
)

// CanonicalPair orders two mission ids so the smaller one comes first.
// Storing pairs canonicalized is what guarantees a single BridgeEvent per
// unordered pair regardless of which mission triggers evaluation first.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// CreateBridgeEventIfNeeded records the audit row for a matched mission
// pair. The pair is canonicalized before insert; a duplicate insert (the
// pair was already recorded, possibly by a concurrent evaluation from the
// other side) is a no-op, not an error. The boolean reports whether a new
// row was written.
func CreateBridgeEventIfNeeded(ctx context.Context, db *gorm.DB, missionA, missionB, chainA, chainB string, sharedTags []string, hueDelta int) (bool, error) {
	a, b := CanonicalPair(missionA, missionB)
	ev := &domain.BridgeEvent{
		ID:         uuid.NewString(),
		MissionAID: a,
		MissionBID: b,
		ChainAID:   chainA,
		ChainBID:   chainB,
		SharedTags: sharedTags,
		HueDelta:   hueDelta,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(ev).Error; err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListBridgeEvents returns all bridge events touching a mission, newest
// first.
func ListBridgeEvents(ctx context.Context, db *gorm.DB, missionID string) ([]domain.BridgeEvent, error) {
	var out []domain.BridgeEvent
	err := db.WithContext(ctx).
		Where("mission_a_id = ? OR mission_b_id = ?", missionID, missionID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// BridgeStats returns aggregate metadata for a chain's bridge activity:
// the number of outgoing connections and the number of bridge events in
// which the chain participates. Used for chain dashboards and conditional
// responses.
func BridgeStats(ctx context.Context, db *gorm.DB, chainID string) (connections, events int64, err error) {
	if err = db.WithContext(ctx).
		Model(&domain.Connection{}).
		Where("from_chain_id = ?", chainID).
		Count(&connections).Error; err != nil {
		return 0, 0, err
	}
	err = db.WithContext(ctx).
		Model(&domain.BridgeEvent{}).
		Where("chain_a_id = ? OR chain_b_id = ?", chainID, chainID).
		Count(&events).Error
	return connections, events, err
}
