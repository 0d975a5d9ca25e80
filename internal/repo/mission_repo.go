// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Mission
// model, including the conditional state transition that underpins the
// orchestrator's exactly-once auto-lock guarantee.
//
// Error semantics:
//   - When a mission is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shutterline/go-mission-backend/internal/domain"
)

// CreateMission inserts a new Mission row under chainID. The mission ID is
// a randomly generated UUID and CreatedAt is set to UTC. The initial state
// must be LOBBY or CAPTURE (some flows open the capture window immediately).
func CreateMission(ctx context.Context, db *gorm.DB, chainID, prompt string, required int, state domain.MissionState, startsAt, endsAt *time.Time) (*domain.Mission, error) {
	m := &domain.Mission{
		ID:                  uuid.NewString(),
		ChainID:             chainID,
		Prompt:              prompt,
		State:               state,
		SubmissionsRequired: required,
		StartsAt:            startsAt,
		EndsAt:              endsAt,
		CreatedAt:           time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMission fetches a single mission by ID, or ErrNotFound.
func GetMission(ctx context.Context, db *gorm.DB, id string) (*domain.Mission, error) {
	var m domain.Mission
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListChainMissions returns all missions of a chain, newest first.
func ListChainMissions(ctx context.Context, db *gorm.DB, chainID string) ([]domain.Mission, error) {
	var out []domain.Mission
	err := db.WithContext(ctx).
		Where("chain_id = ?", chainID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// SetSubmissionsReceived persists the recomputed ledger count onto the
// mission row. The count is always derived from CountEntries, never from a
// client-supplied value. Returns ErrNotFound when the mission is missing.
func SetSubmissionsReceived(ctx context.Context, db *gorm.DB, id string, count int64) error {
	res := db.WithContext(ctx).
		Model(&domain.Mission{}).
		Where("id = ?", id).
		Update("submissions_received", count)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TransitionMissionState atomically moves a mission from one state to
// another with a single conditional UPDATE (compare-and-swap on state).
// extra carries any lifecycle timestamp columns set by the transition.
//
// The boolean reports whether this caller performed the transition: under
// concurrent writers, exactly one caller observes the pre-transition state
// and wins; the others see zero rows affected and must skip their side
// effects. This holds across processes since the check runs in the storage
// layer.
func TransitionMissionState(ctx context.Context, db *gorm.DB, id string, from, to domain.MissionState, extra map[string]any) (bool, error) {
	updates := map[string]any{"state": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := db.WithContext(ctx).
		Model(&domain.Mission{}).
		Where("id = ? AND state = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListRecapNeighbors returns the ids of missions from other chains whose
// recap_ready_at falls within a symmetric window around ref, most recent
// first, capped at limit. This is the bridge matcher's candidate query; the
// window and cap bound matcher cost and favor temporally adjacent missions.
func ListRecapNeighbors(ctx context.Context, db *gorm.DB, chainID string, ref time.Time, window time.Duration, limit int) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Mission{}).
		Where("chain_id <> ?", chainID).
		Where("recap_ready_at IS NOT NULL").
		Where("recap_ready_at BETWEEN ? AND ?", ref.Add(-window), ref.Add(window)).
		Order("recap_ready_at DESC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
