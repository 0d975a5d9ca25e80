// Package recap defines the boundary to the external recap generator: the
// collaborator that turns a mission's entries into a title, poem, palette,
// and rendered video. The orchestrator treats every generator failure
// (including timeout) identically and falls back to deterministic content,
// so generators never need to be reliable.
package recap

import (
	"context"
	"time"
)

// Summary condenses a mission's entries into the input the generator
// consumes.
type Summary struct {
	// Hues are the dominant hues present across entries (0–359).
	Hues []int `json:"hues"`
	// Palette is a sample of color values drawn from the entries.
	Palette []string `json:"palette"`
	// Tags is the deduplicated union of scene and object tags.
	Tags []string `json:"tags"`
	// EntryCount is the number of entries summarized.
	EntryCount int `json:"entry_count"`
}

// Content is what a generator produces for a mission.
type Content struct {
	Title    string   `json:"title"`
	Poem     string   `json:"poem"`
	Palette  []string `json:"palette"`
	VideoRef *string  `json:"video_ref,omitempty"`
}

// Generator produces recap content for a mission. Implementations must
// honor ctx cancellation; the orchestrator wraps calls in a bounded
// timeout and never waits indefinitely.
type Generator interface {
	Generate(ctx context.Context, missionID string, s Summary) (*Content, error)
}

// WithTimeout decorates a Generator with a per-call deadline so a hung
// collaborator degrades into the fallback path instead of blocking the
// recap request.
func WithTimeout(g Generator, d time.Duration) Generator {
	if d <= 0 {
		return g
	}
	return timeoutGenerator{inner: g, d: d}
}

type timeoutGenerator struct {
	inner Generator
	d     time.Duration
}

func (t timeoutGenerator) Generate(ctx context.Context, missionID string, s Summary) (*Content, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.inner.Generate(ctx, missionID, s)
}
