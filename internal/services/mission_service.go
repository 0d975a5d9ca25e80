// Package services – MissionService
//
// This file implements MissionService, the orchestrator that owns the
// mission state machine (LOBBY → CAPTURE → FUSING → RECAP → ARCHIVED). It
// consumes submissions and administrator commands, recomputes the ledger
// count on every write, performs the conditional state transitions, and
// emits best-effort notifications.
//
// Concurrency: the CAPTURE→FUSING auto-lock is guarded by a conditional
// UPDATE on the mission row (compare-and-swap on state), so a burst of
// concurrent submissions that each see a count at or past the target still
// causes exactly one lock transition: whichever caller's update matches
// the pre-transition state wins; the rest observe zero rows affected and
// skip the side effects. The same discipline covers RECAP and ARCHIVED.
//
// Failure semantics: persistence errors on entry/mission/chapter writes are
// fatal to the calling request. Notification-sink, enrichment, and
// bridge-matching errors are logged and never propagated.
//
// Observability: public methods are OpenTelemetry-instrumented; spans
// include mission/user identifiers.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/shutterline/go-mission-backend/internal/bridge"
	"github.com/shutterline/go-mission-backend/internal/domain"
	"github.com/shutterline/go-mission-backend/internal/notify"
	"github.com/shutterline/go-mission-backend/internal/observability"
	"github.com/shutterline/go-mission-backend/internal/recap"
	"github.com/shutterline/go-mission-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// fallbackTitle is used when a mission's entries carry no tags at all.
	fallbackTitle = "Untitled Mission"

	// paletteSampleSize caps how many colors the entry summary carries.
	paletteSampleSize = 6

	// bridgeEvalTimeout bounds the detached bridge evaluation that runs
	// after a recap completes.
	bridgeEvalTimeout = 30 * time.Second
)

// MissionService coordinates the mission lifecycle: submissions, the
// auto-lock policy, recap generation with deterministic fallback, and
// archival.
type MissionService struct {
	DB *gorm.DB

	// Generator produces recap content. May be nil; the fallback path is
	// used whenever it is absent, errors, or times out.
	Generator recap.Generator
	// RecapTimeout bounds each generator call. Zero disables the bound.
	RecapTimeout time.Duration

	// Sink receives state/progress/chapter events, fire-and-forget.
	// May be nil.
	Sink notify.Sink

	// Bridges is consulted asynchronously after a recap completes. May be
	// nil.
	Bridges *bridge.Matcher

	// EnqueueEnrichment hands a freshly written entry id to the metadata
	// enrichment queue. May be nil. Enqueue failures are the queue's
	// problem; this hook must not block.
	EnqueueEnrichment func(entryID string)
}

// Get fetches a mission by id.
func (s *MissionService) Get(ctx context.Context, missionID string) (*domain.Mission, error) {
	m, err := repo.GetMission(ctx, s.DB, missionID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMissionNotFound
	}
	return m, err
}

// Entries returns the mission's ledger in deterministic order.
func (s *MissionService) Entries(ctx context.Context, missionID string) ([]domain.Entry, error) {
	if _, err := s.Get(ctx, missionID); err != nil {
		return nil, err
	}
	return repo.ListEntries(ctx, s.DB, missionID)
}

// BridgeEvents returns the recorded bridge matches touching a mission.
func (s *MissionService) BridgeEvents(ctx context.Context, missionID string) ([]domain.BridgeEvent, error) {
	if _, err := s.Get(ctx, missionID); err != nil {
		return nil, err
	}
	return repo.ListBridgeEvents(ctx, s.DB, missionID)
}

// RecordSubmission upserts the entry for (userID, missionID), recomputes
// the true submission count from the ledger, persists it onto the mission,
// and applies the transition rules:
//
//  1. LOBBY → CAPTURE on the first submission (the capture window opens).
//  2. CAPTURE → FUSING once the recomputed count reaches the target
//     (auto-lock, exactly once under concurrency).
//
// The returned mission reflects the state this caller observed after its
// own transitions. Submissions to a mission past CAPTURE are rejected with
// ErrMissionLocked.
func (s *MissionService) RecordSubmission(ctx context.Context, missionID, userID string, p repo.EntryPayload) (*domain.Entry, *domain.Mission, error) {
	tr := otel.Tracer("services/MissionService")
	ctx, span := tr.Start(ctx, "RecordSubmission",
		trace.WithAttributes(
			attribute.String("mission.id", missionID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if strings.TrimSpace(p.MediaRef) == "" {
		return nil, nil, ErrEmptyMedia
	}

	m, err := repo.GetMission(ctx, s.DB, missionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrMissionNotFound
		}
		return nil, nil, err
	}
	switch m.State {
	case domain.StateLobby, domain.StateCapture:
		// accepting entries
	default:
		return nil, nil, ErrMissionLocked
	}

	entry, err := repo.UpsertEntry(ctx, s.DB, missionID, userID, p)
	if err != nil {
		return nil, nil, err
	}

	// Source of truth: recompute from the ledger, never trust a cached or
	// client-supplied count.
	count, err := repo.CountEntries(ctx, s.DB, missionID)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.SetSubmissionsReceived(ctx, s.DB, missionID, count); err != nil {
		return nil, nil, err
	}
	m.SubmissionsReceived = int(count)

	now := time.Now().UTC()
	if m.State == domain.StateLobby {
		extra := map[string]any{}
		if m.StartsAt == nil {
			extra["starts_at"] = now
		}
		won, terr := repo.TransitionMissionState(ctx, s.DB, missionID, domain.StateLobby, domain.StateCapture, extra)
		if terr != nil {
			return nil, nil, terr
		}
		// A concurrent first submission may have opened the window already;
		// either way the mission is capturing now.
		m.State = domain.StateCapture
		if won {
			observability.MissionTransitions.WithLabelValues(string(domain.StateCapture)).Inc()
			s.publish(ctx, "state", func(ctx context.Context) error {
				return s.Sink.PublishState(ctx, missionID, string(domain.StateCapture))
			})
		}
	}

	s.publish(ctx, "progress", func(ctx context.Context) error {
		return s.Sink.PublishProgress(ctx, missionID, int(count), m.SubmissionsRequired, userID)
	})

	if int(count) >= m.SubmissionsRequired && m.State == domain.StateCapture {
		won, terr := repo.TransitionMissionState(ctx, s.DB, missionID, domain.StateCapture, domain.StateFusing,
			map[string]any{"locked_at": now})
		if terr != nil {
			return nil, nil, terr
		}
		if won {
			m.State = domain.StateFusing
			m.LockedAt = &now
			observability.MissionTransitions.WithLabelValues(string(domain.StateFusing)).Inc()
			s.publish(ctx, "state", func(ctx context.Context) error {
				return s.Sink.PublishState(ctx, missionID, string(domain.StateFusing))
			})
		}
	}

	if s.EnqueueEnrichment != nil {
		s.EnqueueEnrichment(entry.ID)
	}

	return entry, m, nil
}

// GenerateRecap summarizes a mission's entries, obtains recap content from
// the external generator (or the deterministic fallback when it fails or
// times out), creates the mission's single chapter, and transitions the
// mission to RECAP. It is re-triggerable while the mission is not archived:
// re-invocation updates the existing chapter instead of creating a second
// one.
//
// Bridge evaluation is kicked off asynchronously after the transition; its
// outcome never affects this call.
func (s *MissionService) GenerateRecap(ctx context.Context, missionID, requestedBy string) (*domain.Chapter, error) {
	tr := otel.Tracer("services/MissionService")
	ctx, span := tr.Start(ctx, "GenerateRecap",
		trace.WithAttributes(
			attribute.String("mission.id", missionID),
			attribute.String("user.id", requestedBy),
		),
	)
	defer span.End()

	m, err := repo.GetMission(ctx, s.DB, missionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrMissionNotFound
		}
		return nil, err
	}
	switch m.State {
	case domain.StateCapture, domain.StateFusing, domain.StateRecap:
		// eligible
	default:
		return nil, ErrInvalidStateTransition
	}

	entries, err := repo.ListEntries(ctx, s.DB, missionID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}

	now := time.Now().UTC()

	// An early recap on a still-capturing mission locks it first. Losing
	// the race just means another caller locked it; proceed either way.
	if m.State == domain.StateCapture {
		if _, terr := repo.TransitionMissionState(ctx, s.DB, missionID, domain.StateCapture, domain.StateFusing,
			map[string]any{"locked_at": now}); terr != nil {
			return nil, terr
		}
		m.State = domain.StateFusing
	}

	summary := buildSummary(entries)
	content := s.generateContent(ctx, missionID, summary, entries)

	// The collage is always composed from the entries themselves; the
	// generator only contributes title/poem/palette/video.
	collageRef := entries[0].MediaRef

	chapter, err := repo.UpsertChapter(ctx, s.DB, missionID, content.Title, content.Poem, content.Palette, collageRef, content.VideoRef)
	if err != nil {
		return nil, err
	}

	won, err := repo.TransitionMissionState(ctx, s.DB, missionID, domain.StateFusing, domain.StateRecap,
		map[string]any{"recap_ready_at": now})
	if err != nil {
		return nil, err
	}
	if won {
		observability.MissionTransitions.WithLabelValues(string(domain.StateRecap)).Inc()
		s.publish(ctx, "state", func(ctx context.Context) error {
			return s.Sink.PublishState(ctx, missionID, string(domain.StateRecap))
		})
	}
	s.publish(ctx, "chapter", func(ctx context.Context) error {
		return s.Sink.PublishChapterReady(ctx, missionID, chapter.ID)
	})

	if s.Bridges != nil {
		// Detached: bridge evaluation is best-effort and must not delay or
		// fail the recap call.
		go func() {
			bctx, cancel := context.WithTimeout(context.Background(), bridgeEvalTimeout)
			defer cancel()
			if _, berr := s.Bridges.EvaluateBridgeSimilarity(bctx, missionID); berr != nil {
				log.Warn().Err(berr).Str("mission_id", missionID).Msg("bridge evaluation failed")
			}
		}()
	}

	return chapter, nil
}

// Archive moves a mission from RECAP to its terminal ARCHIVED state. Any
// other starting state is rejected with ErrInvalidStateTransition and
// leaves the mission unchanged.
func (s *MissionService) Archive(ctx context.Context, missionID string) (*domain.Mission, error) {
	tr := otel.Tracer("services/MissionService")
	ctx, span := tr.Start(ctx, "Archive",
		trace.WithAttributes(attribute.String("mission.id", missionID)),
	)
	defer span.End()

	now := time.Now().UTC()
	won, err := repo.TransitionMissionState(ctx, s.DB, missionID, domain.StateRecap, domain.StateArchived,
		map[string]any{"archived_at": now})
	if err != nil {
		return nil, err
	}
	if !won {
		if _, gerr := repo.GetMission(ctx, s.DB, missionID); gerr != nil {
			if errors.Is(gerr, repo.ErrNotFound) {
				return nil, ErrMissionNotFound
			}
			return nil, gerr
		}
		return nil, ErrInvalidStateTransition
	}

	observability.MissionTransitions.WithLabelValues(string(domain.StateArchived)).Inc()
	s.publish(ctx, "state", func(ctx context.Context) error {
		return s.Sink.PublishState(ctx, missionID, string(domain.StateArchived))
	})
	return repo.GetMission(ctx, s.DB, missionID)
}

// AttachVideo attaches a delayed video render to a mission's chapter.
func (s *MissionService) AttachVideo(ctx context.Context, missionID, videoRef string) error {
	err := repo.AttachChapterVideo(ctx, s.DB, missionID, videoRef)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrMissionNotFound
	}
	return err
}

// generateContent asks the external generator for recap content, bounded by
// RecapTimeout. Any error, timeout, or absent generator yields the
// deterministic fallback.
func (s *MissionService) generateContent(ctx context.Context, missionID string, summary recap.Summary, entries []domain.Entry) *recap.Content {
	if s.Generator != nil {
		gen := recap.WithTimeout(s.Generator, s.RecapTimeout)
		content, err := gen.Generate(ctx, missionID, summary)
		if err == nil && content != nil {
			return content
		}
		log.Warn().Err(err).Str("mission_id", missionID).Msg("recap generator unavailable, using fallback")
	}
	observability.RecapFallbacks.Inc()
	return fallbackContent(summary, entries)
}

// publish runs a notification call, logging failures instead of returning
// them. No-op when the sink is absent.
func (s *MissionService) publish(ctx context.Context, event string, fn func(context.Context) error) {
	if s.Sink == nil {
		return
	}
	if err := fn(ctx); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("notification publish failed")
	}
}

// buildSummary condenses entries into the generator input: the hue list, a
// palette sample, and the deduplicated tag union.
func buildSummary(entries []domain.Entry) recap.Summary {
	sum := recap.Summary{EntryCount: len(entries)}
	seenTag := make(map[string]struct{})
	for _, e := range entries {
		if e.DominantHue != nil {
			sum.Hues = append(sum.Hues, *e.DominantHue)
		}
		for _, c := range e.Palette {
			if len(sum.Palette) < paletteSampleSize {
				sum.Palette = append(sum.Palette, c)
			}
		}
		for _, t := range e.Tags() {
			if _, ok := seenTag[t]; ok {
				continue
			}
			seenTag[t] = struct{}{}
			sum.Tags = append(sum.Tags, t)
		}
	}
	return sum
}

// fallbackContent derives recap content from the entries alone: title and
// poem from the first two tags (or a fixed default), palette from the
// summary, and the first entry's media standing in for a rendered video.
// The output is fully determined by the summary, so retries converge.
func fallbackContent(summary recap.Summary, entries []domain.Entry) *recap.Content {
	caser := cases.Title(language.English)

	var title, poem string
	switch {
	case len(summary.Tags) >= 2:
		a, b := caser.String(summary.Tags[0]), caser.String(summary.Tags[1])
		title = fmt.Sprintf("%s & %s", a, b)
		poem = fmt.Sprintf("Between %s and %s,\nwe traded the same light.", summary.Tags[0], summary.Tags[1])
	case len(summary.Tags) == 1:
		a := caser.String(summary.Tags[0])
		title = a
		poem = fmt.Sprintf("All of us, chasing %s.", summary.Tags[0])
	default:
		title = fallbackTitle
		poem = "A mission, captured."
	}

	var videoRef *string
	if len(entries) > 0 {
		videoRef = &entries[0].MediaRef
	}
	return &recap.Content{
		Title:    title,
		Poem:     poem,
		Palette:  summary.Palette,
		VideoRef: videoRef,
	}
}
