// Package bridge implements the cross-chain bridge matcher: it derives a
// visual/semantic signature per mission (aggregate hue + tag union) and
// links missions from unrelated chains when their signatures align.
// Signatures only become meaningful once a mission's recap is ready.
package bridge

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/shutterline/go-mission-backend/internal/colorsig"
	"github.com/shutterline/go-mission-backend/internal/repo"
)

// Signature is a mission's matchable fingerprint: the deduplicated union
// of scene and object tags across its entries and the circular mean of
// their dominant hues. Hue is nil when no entry carries one (or the hues
// cancel out). A mission with zero entries yields an empty tag set and nil
// hue but is still a valid signature.
type Signature struct {
	MissionID    string   `json:"mission_id"`
	ChainID      string   `json:"chain_id"`
	ChainName    string   `json:"chain_name"`
	Tags         []string `json:"tags"`
	Hue          *int     `json:"hue,omitempty"`
	RecapReadyAt *int64   `json:"recap_ready_at,omitempty"` // unix seconds
}

// tagSet returns the signature's tags as a set for intersection tests.
func (s *Signature) tagSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.Tags))
	for _, t := range s.Tags {
		set[t] = struct{}{}
	}
	return set
}

// BuildMissionSignature loads a mission's entries and derives its
// signature. Returns (nil, nil) when the mission does not exist.
func BuildMissionSignature(ctx context.Context, db *gorm.DB, missionID string) (*Signature, error) {
	m, err := repo.GetMission(ctx, db, missionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	chain, err := repo.GetChain(ctx, db, m.ChainID)
	if err != nil {
		return nil, err
	}
	entries, err := repo.ListEntries(ctx, db, missionID)
	if err != nil {
		return nil, err
	}

	sig := &Signature{
		MissionID: m.ID,
		ChainID:   m.ChainID,
		ChainName: chain.Name,
		Tags:      []string{},
	}
	if m.RecapReadyAt != nil {
		ts := m.RecapReadyAt.Unix()
		sig.RecapReadyAt = &ts
	}

	var hues []int
	seen := make(map[string]struct{})
	for _, e := range entries {
		if e.DominantHue != nil {
			hues = append(hues, *e.DominantHue)
		}
		for _, t := range e.Tags() {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			sig.Tags = append(sig.Tags, t)
		}
	}
	if mean, ok := colorsig.CircularMean(hues); ok {
		sig.Hue = &mean
	}
	return sig, nil
}
