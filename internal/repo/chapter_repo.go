// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Chapter
// model (the generated recap artifact, one per mission).
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shutterline/go-mission-backend/internal/domain"
)

// UpsertChapter creates the chapter for a mission, or updates the existing
// one in place when the recap is re-generated. The unique index on
// mission_id guarantees at most one chapter per mission even under
// concurrent recap calls; a losing insert falls back to updating the row
// that won.
func UpsertChapter(ctx context.Context, db *gorm.DB, missionID, title, poem string, palette []string, collageRef string, videoRef *string) (*domain.Chapter, error) {
	ch := &domain.Chapter{
		ID:         uuid.NewString(),
		MissionID:  missionID,
		Title:      title,
		Poem:       poem,
		Palette:    palette,
		CollageRef: collageRef,
		VideoRef:   videoRef,
		Shareable:  true,
		CreatedAt:  time.Now().UTC(),
	}
	err := db.WithContext(ctx).Create(ch).Error
	if err == nil {
		return ch, nil
	}
	if !isUniqueViolation(err) {
		return nil, err
	}
	res := db.WithContext(ctx).
		Model(&domain.Chapter{}).
		Where("mission_id = ?", missionID).
		Select("title", "poem", "palette", "collage_ref", "video_ref").
		Updates(domain.Chapter{
			Title:      title,
			Poem:       poem,
			Palette:    palette,
			CollageRef: collageRef,
			VideoRef:   videoRef,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	return GetChapterByMission(ctx, db, missionID)
}

// GetChapterByMission fetches the chapter of a mission, or ErrNotFound.
func GetChapterByMission(ctx context.Context, db *gorm.DB, missionID string) (*domain.Chapter, error) {
	var ch domain.Chapter
	err := db.WithContext(ctx).
		Where("mission_id = ?", missionID).
		First(&ch).Error
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// AttachChapterVideo sets the delayed video render reference on an
// existing chapter. Returns ErrNotFound when the mission has no chapter.
func AttachChapterVideo(ctx context.Context, db *gorm.DB, missionID, videoRef string) error {
	res := db.WithContext(ctx).
		Model(&domain.Chapter{}).
		Where("mission_id = ?", missionID).
		Update("video_ref", videoRef)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
