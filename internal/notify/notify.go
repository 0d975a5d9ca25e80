// Package notify defines the realtime notification boundary. The
// orchestrator and bridge matcher publish state changes, progress updates,
// chapter-ready announcements, and bridge matches through a Sink; the
// transport behind it (websocket fanout, push service, …) lives outside
// this repository.
//
// The contract is fire-and-forget: publish errors are logged by the caller
// and never abort business logic. A participant submitting an entry always
// gets a success response if the entry persisted, even when the realtime
// publish silently failed.
package notify

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sink publishes mission events to subscribers. Implementations must be
// safe for concurrent use and should return quickly; slow transports are
// expected to buffer internally.
type Sink interface {
	// PublishState announces a mission state transition.
	PublishState(ctx context.Context, missionID, state string) error
	// PublishProgress announces the current submission count. The
	// triggering user id may be empty for system-initiated updates.
	PublishProgress(ctx context.Context, missionID string, received, required int, triggeringUserID string) error
	// PublishChapterReady announces that a mission's recap chapter exists.
	PublishChapterReady(ctx context.Context, missionID, chapterID string) error
	// PublishBridge announces a discovered cross-chain bridge.
	PublishBridge(ctx context.Context, missionID, targetChainID string, sharedTags []string) error
}

// LogSink is the default Sink: it writes each event as a structured log
// line. Useful in development and as a safe fallback when no realtime
// transport is configured.
type LogSink struct {
	// Logger defaults to the global zerolog logger when zero-valued.
	Logger *zerolog.Logger
}

func (s LogSink) logger() *zerolog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return &log.Logger
}

// PublishState logs the transition.
func (s LogSink) PublishState(_ context.Context, missionID, state string) error {
	s.logger().Info().
		Str("mission_id", missionID).
		Str("state", state).
		Msg("mission state changed")
	return nil
}

// PublishProgress logs the submission progress.
func (s LogSink) PublishProgress(_ context.Context, missionID string, received, required int, triggeringUserID string) error {
	ev := s.logger().Info().
		Str("mission_id", missionID).
		Int("received", received).
		Int("required", required)
	if triggeringUserID != "" {
		ev = ev.Str("user_id", triggeringUserID)
	}
	ev.Msg("submission progress")
	return nil
}

// PublishChapterReady logs the chapter announcement.
func (s LogSink) PublishChapterReady(_ context.Context, missionID, chapterID string) error {
	s.logger().Info().
		Str("mission_id", missionID).
		Str("chapter_id", chapterID).
		Msg("chapter ready")
	return nil
}

// PublishBridge logs the bridge match.
func (s LogSink) PublishBridge(_ context.Context, missionID, targetChainID string, sharedTags []string) error {
	s.logger().Info().
		Str("mission_id", missionID).
		Str("target_chain_id", targetChainID).
		Strs("shared_tags", sharedTags).
		Msg("bridge discovered")
	return nil
}
