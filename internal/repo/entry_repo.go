// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file is the submission ledger: it records one entry
// per (mission, user) pair and exposes the true submission count that the
// orchestrator recomputes on every write.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shutterline/go-mission-backend/internal/domain"
)

// EntryPayload carries the client-supplied fields of a submission. Metadata
// fields may be absent; the enrichment worker fills them in later.
type EntryPayload struct {
	MediaRef    string
	DominantHue *int
	Palette     []string
	SceneTags   []string
	ObjectTags  []string
	Latitude    *float64
	Longitude   *float64
	CapturedAt  *time.Time
}

// UpsertEntry inserts or overwrites the entry for (missionID, userID). The
// unique index on the pair is the source of truth for the one-entry-per-user
// rule; a conflicting insert updates the existing row in place so repeated
// submissions never duplicate. The persisted row is re-read and returned so
// callers always see the surviving ID and timestamps.
func UpsertEntry(ctx context.Context, db *gorm.DB, missionID, userID string, p EntryPayload) (*domain.Entry, error) {
	e := &domain.Entry{
		ID:          uuid.NewString(),
		MissionID:   missionID,
		UserID:      userID,
		MediaRef:    p.MediaRef,
		DominantHue: p.DominantHue,
		Palette:     p.Palette,
		SceneTags:   p.SceneTags,
		ObjectTags:  p.ObjectTags,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		CapturedAt:  p.CapturedAt,
		CreatedAt:   time.Now().UTC(),
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "mission_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"media_ref", "dominant_hue", "palette", "scene_tags",
			"object_tags", "latitude", "longitude", "captured_at", "updated_at",
		}),
	}).Create(e).Error
	if err != nil {
		return nil, err
	}
	return GetEntryByUser(ctx, db, missionID, userID)
}

// CountEntries returns the ledger's true entry count for a mission. A raw
// COUNT is used so a missing table surfaces as an error.
func CountEntries(ctx context.Context, db *gorm.DB, missionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM entries WHERE mission_id = ?", missionID).
		Scan(&total).Error
	return total, err
}

// ListEntries returns all entries of a mission ordered deterministically
// (CreatedAt ASC, ID ASC).
func ListEntries(ctx context.Context, db *gorm.DB, missionID string) ([]domain.Entry, error) {
	var out []domain.Entry
	err := db.WithContext(ctx).
		Where("mission_id = ?", missionID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// GetEntry fetches an entry by ID, or ErrNotFound.
func GetEntry(ctx context.Context, db *gorm.DB, id string) (*domain.Entry, error) {
	var e domain.Entry
	if err := db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEntryByUser fetches the single entry of userID in missionID, or ErrNotFound.
func GetEntryByUser(ctx context.Context, db *gorm.DB, missionID, userID string) (*domain.Entry, error) {
	var e domain.Entry
	err := db.WithContext(ctx).
		Where("mission_id = ? AND user_id = ?", missionID, userID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateEntryMetadata persists extracted metadata (dominant hue, tags) onto
// an existing entry. Used by the enrichment worker; returns ErrNotFound
// when the entry has disappeared, which the worker treats as a drop.
func UpdateEntryMetadata(ctx context.Context, db *gorm.DB, id string, hue *int, palette, sceneTags, objectTags []string) error {
	// Struct-based update with an explicit column list so the JSON
	// serializer runs and nil/empty values are still written.
	res := db.WithContext(ctx).
		Model(&domain.Entry{}).
		Where("id = ?", id).
		Select("dominant_hue", "palette", "scene_tags", "object_tags").
		Updates(domain.Entry{
			DominantHue: hue,
			Palette:     palette,
			SceneTags:   sceneTags,
			ObjectTags:  objectTags,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
