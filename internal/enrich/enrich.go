// Package enrich implements the background metadata enrichment pipeline.
// After an entry commits, the orchestrator enqueues its id here; a worker
// asks the external Extractor for the dominant hue, palette, and tags of
// the entry's media and persists them. The pipeline is decoupled from the
// request path: a full queue drops the job, extraction failures are
// retried once and then dropped, and nothing here ever touches mission
// state or submission counts.
package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/shutterline/go-mission-backend/internal/repo"
)

// Metadata is what an Extractor derives from a piece of media.
type Metadata struct {
	DominantHue *int
	Palette     []string
	SceneTags   []string
	ObjectTags  []string
}

// Extractor analyzes media and returns its visual metadata. Implementations
// live outside this repository (vision API, on-device model, …) and must
// honor ctx cancellation.
type Extractor interface {
	Extract(ctx context.Context, mediaRef string) (*Metadata, error)
}

// Worker consumes queued entry ids and enriches them. Construct with
// NewWorker, start with Start, and stop by cancelling the context passed
// to Start and waiting on the returned done channel.
type Worker struct {
	DB        *gorm.DB
	Extractor Extractor

	// Timeout bounds each extraction call.
	Timeout time.Duration

	queue chan string
	once  sync.Once
}

// NewWorker constructs a Worker with the given queue capacity.
func NewWorker(db *gorm.DB, ex Extractor, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Worker{
		DB:        db,
		Extractor: ex,
		Timeout:   15 * time.Second,
		queue:     make(chan string, queueSize),
	}
}

// Enqueue hands an entry id to the worker. Never blocks: when the queue is
// full the job is dropped with a warning, since enrichment is best-effort.
func (w *Worker) Enqueue(entryID string) {
	select {
	case w.queue <- entryID:
	default:
		log.Warn().Str("entry_id", entryID).Msg("enrichment queue full, dropping job")
	}
}

// Start launches the consumer goroutine. The returned channel closes once
// the worker has drained and exited after ctx is cancelled.
func (w *Worker) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	w.once.Do(func() {
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case entryID := <-w.queue:
					w.process(ctx, entryID)
				}
			}
		}()
	})
	return done
}

// process runs one enrichment job: extract, retry once on failure, persist.
func (w *Worker) process(ctx context.Context, entryID string) {
	if w.Extractor == nil {
		return
	}
	entry, err := repo.GetEntry(ctx, w.DB, entryID)
	if err != nil {
		// Entry gone (or DB unavailable); nothing to enrich.
		log.Debug().Err(err).Str("entry_id", entryID).Msg("enrichment skipped")
		return
	}

	var meta *Metadata
	for attempt := 0; attempt < 2; attempt++ {
		ectx, cancel := context.WithTimeout(ctx, w.Timeout)
		meta, err = w.Extractor.Extract(ectx, entry.MediaRef)
		cancel()
		if err == nil {
			break
		}
	}
	if err != nil || meta == nil {
		log.Warn().Err(err).Str("entry_id", entryID).Msg("metadata extraction failed, dropping")
		return
	}

	if err := repo.UpdateEntryMetadata(ctx, w.DB, entryID, meta.DominantHue, meta.Palette, meta.SceneTags, meta.ObjectTags); err != nil {
		log.Warn().Err(err).Str("entry_id", entryID).Msg("persisting enrichment failed")
	}
}
