// Package bridge – Matcher
//
// The matcher searches a bounded time window for missions of other chains
// whose signatures align with a source mission: at least one shared tag
// (the acceptance gate, checked before color) and an aggregate hue within
// the configured threshold. Accepted candidates produce a bidirectional
// chain Connection and a canonical-pair BridgeEvent, both idempotent, so
// re-evaluation (including concurrent evaluation triggered from both
// sides of a pair) never duplicates rows and returns the same match set.
package bridge

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/shutterline/go-mission-backend/internal/colorsig"
	"github.com/shutterline/go-mission-backend/internal/notify"
	"github.com/shutterline/go-mission-backend/internal/observability"
	"github.com/shutterline/go-mission-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultWindow is the symmetric recap-time window searched for
	// candidate missions.
	DefaultWindow = 6 * time.Hour
	// DefaultMaxCandidates caps the candidate list per evaluation.
	DefaultMaxCandidates = 12
	// DefaultHueThreshold is the maximum accepted hue delta in degrees.
	DefaultHueThreshold = 20

	// connectionReason labels graph edges created by the matcher.
	connectionReason = "bridge_match"
)

// Match describes one accepted candidate of an evaluation. A mission may
// bridge to several others in a single pass.
type Match struct {
	SourceMissionID string   `json:"source_mission_id"`
	TargetMissionID string   `json:"target_mission_id"`
	SourceChainID   string   `json:"source_chain_id"`
	TargetChainID   string   `json:"target_chain_id"`
	SharedTags      []string `json:"shared_tags"`
	HueDelta        int      `json:"hue_delta"`
}

// Matcher evaluates bridge similarity for completed missions. The zero
// value is not usable; construct with NewMatcher.
type Matcher struct {
	DB *gorm.DB

	// Window is the symmetric recap_ready_at search window.
	Window time.Duration
	// MaxCandidates caps the per-evaluation candidate list.
	MaxCandidates int
	// HueThreshold is the maximum hue delta (degrees) accepted as a match.
	HueThreshold int

	// Sink receives bridge announcements, fire-and-forget. May be nil.
	Sink notify.Sink
}

// NewMatcher constructs a Matcher with the default window, candidate cap,
// and hue threshold.
func NewMatcher(db *gorm.DB, sink notify.Sink) *Matcher {
	return &Matcher{
		DB:            db,
		Window:        DefaultWindow,
		MaxCandidates: DefaultMaxCandidates,
		HueThreshold:  DefaultHueThreshold,
		Sink:          sink,
	}
}

// FindCandidateMissionIDs returns missions from other chains whose recap
// became ready within the window around ref, most recent first, capped.
func (m *Matcher) FindCandidateMissionIDs(ctx context.Context, chainID string, ref time.Time) ([]string, error) {
	return repo.ListRecapNeighbors(ctx, m.DB, chainID, ref, m.Window, m.MaxCandidates)
}

// EvaluateBridgeSimilarity builds the source mission's signature, scores
// every candidate in the window, and materializes accepted matches as
// Connections and BridgeEvents. Missions without a ready recap produce no
// matches. Persistence errors on the graph writes abort the evaluation;
// everything else (missing candidates, failed notifications) degrades to a
// skip.
func (m *Matcher) EvaluateBridgeSimilarity(ctx context.Context, missionID string) ([]Match, error) {
	tr := otel.Tracer("bridge/Matcher")
	ctx, span := tr.Start(ctx, "EvaluateBridgeSimilarity",
		trace.WithAttributes(attribute.String("mission.id", missionID)),
	)
	defer span.End()

	source, err := BuildMissionSignature(ctx, m.DB, missionID)
	if err != nil {
		return nil, err
	}
	if source == nil || source.RecapReadyAt == nil {
		// Bridging only applies to completed missions.
		return nil, nil
	}

	ref := time.Unix(*source.RecapReadyAt, 0).UTC()
	candidateIDs, err := m.FindCandidateMissionIDs(ctx, source.ChainID, ref)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("bridge.candidates", len(candidateIDs)))

	sourceTags := source.tagSet()
	matches := make([]Match, 0, len(candidateIDs))

	for _, candID := range candidateIDs {
		if candID == missionID {
			continue
		}
		cand, err := BuildMissionSignature(ctx, m.DB, candID)
		if err != nil {
			return nil, err
		}
		if cand == nil {
			continue
		}

		// Gate 1: shared tags. No shared tags means no match, regardless
		// of color.
		shared := intersect(sourceTags, cand.Tags)
		if len(shared) == 0 {
			continue
		}

		// Gate 2: hue proximity. Absent hues never match.
		if source.Hue == nil || cand.Hue == nil {
			continue
		}
		delta := colorsig.HueDistance(*source.Hue, *cand.Hue)
		if delta > m.HueThreshold {
			continue
		}

		if err := repo.CreateConnectionIfNeeded(ctx, m.DB, source.ChainID, cand.ChainID, connectionReason); err != nil {
			return nil, err
		}
		created, err := repo.CreateBridgeEventIfNeeded(ctx, m.DB, source.MissionID, cand.MissionID, source.ChainID, cand.ChainID, shared, delta)
		if err != nil {
			return nil, err
		}
		if created {
			observability.BridgeMatches.Inc()
			if m.Sink != nil {
				if perr := m.Sink.PublishBridge(ctx, source.MissionID, cand.ChainID, shared); perr != nil {
					log.Warn().Err(perr).Str("mission_id", source.MissionID).Msg("bridge publish failed")
				}
			}
		}

		matches = append(matches, Match{
			SourceMissionID: source.MissionID,
			TargetMissionID: cand.MissionID,
			SourceChainID:   source.ChainID,
			TargetChainID:   cand.ChainID,
			SharedTags:      shared,
			HueDelta:        delta,
		})
	}

	return matches, nil
}

// intersect returns the candidate tags also present in the source set,
// preserving the candidate's order for determinism.
func intersect(source map[string]struct{}, candidate []string) []string {
	out := make([]string, 0, len(candidate))
	for _, t := range candidate {
		if _, ok := source[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
