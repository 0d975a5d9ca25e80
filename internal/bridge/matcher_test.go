package bridge

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shutterline/go-mission-backend/internal/domain"
	"github.com/shutterline/go-mission-backend/internal/repo"
)

func newMatcherDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("matcher_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA busy_timeout=5000;")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// seedRecappedMission creates a chain with one mission whose recap became
// ready at readyAt, carrying a single entry with the given hue and tags.
func seedRecappedMission(t *testing.T, db *gorm.DB, chainName string, readyAt time.Time, hue *int, tags ...string) (*domain.Chain, *domain.Mission) {
	t.Helper()
	ctx := context.Background()

	chain, err := repo.CreateChain(ctx, db, chainName)
	if err != nil {
		t.Fatalf("CreateChain: %v", err)
	}
	m, err := repo.CreateMission(ctx, db, chain.ID, "prompt", 1, domain.StateRecap, nil, nil)
	if err != nil {
		t.Fatalf("CreateMission: %v", err)
	}
	if err := db.Model(&domain.Mission{}).Where("id = ?", m.ID).
		Update("recap_ready_at", readyAt).Error; err != nil {
		t.Fatalf("set recap_ready_at: %v", err)
	}
	m.RecapReadyAt = &readyAt

	if _, err := repo.UpsertEntry(ctx, db, m.ID, "user-"+m.ID, repo.EntryPayload{
		MediaRef:    "s3://" + m.ID + ".jpg",
		DominantHue: hue,
		SceneTags:   tags,
	}); err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	return chain, m
}

func hue(v int) *int { return &v }

func TestEvaluateBridgeSimilarity_MatchCreatesEventAndEdges(t *testing.T) {
	db := newMatcherDB(t)
	now := time.Now().UTC()
	sink := &countingSink{}
	m := NewMatcher(db, sink)
	ctx := context.Background()

	chainA, missionA := seedRecappedMission(t, db, "alpha", now, hue(40), "sunset", "beach")
	chainB, missionB := seedRecappedMission(t, db, "beta", now.Add(-time.Hour), hue(50), "sunset")

	matches, err := m.EvaluateBridgeSimilarity(ctx, missionA.ID)
	if err != nil {
		t.Fatalf("EvaluateBridgeSimilarity: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	got := matches[0]
	if got.TargetMissionID != missionB.ID || got.TargetChainID != chainB.ID {
		t.Fatalf("wrong target: %+v", got)
	}
	if got.HueDelta != 10 || len(got.SharedTags) != 1 || got.SharedTags[0] != "sunset" {
		t.Fatalf("wrong scoring: %+v", got)
	}

	events, err := repo.ListBridgeEvents(ctx, db, missionA.ID)
	if err != nil || len(events) != 1 {
		t.Fatalf("expected 1 bridge event, got %d err=%v", len(events), err)
	}

	// Edges exist in both directions.
	outA, _ := repo.ListConnections(ctx, db, chainA.ID)
	outB, _ := repo.ListConnections(ctx, db, chainB.ID)
	if len(outA) != 1 || len(outB) != 1 {
		t.Fatalf("expected symmetric edges, got %d and %d", len(outA), len(outB))
	}
	if sink.bridges() != 1 {
		t.Fatalf("expected one bridge publish, got %d", sink.bridges())
	}
}

func TestEvaluateBridgeSimilarity_HueBeyondThreshold(t *testing.T) {
	db := newMatcherDB(t)
	now := time.Now().UTC()
	m := NewMatcher(db, nil)

	_, missionA := seedRecappedMission(t, db, "alpha", now, hue(40), "sunset")
	seedRecappedMission(t, db, "beta", now, hue(100), "sunset")

	matches, err := m.EvaluateBridgeSimilarity(context.Background(), missionA.ID)
	if err != nil {
		t.Fatalf("EvaluateBridgeSimilarity: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("hue delta 60 must not match, got %+v", matches)
	}
}

func TestEvaluateBridgeSimilarity_NoSharedTagsDespiteCloseHue(t *testing.T) {
	db := newMatcherDB(t)
	now := time.Now().UTC()
	m := NewMatcher(db, nil)

	_, missionA := seedRecappedMission(t, db, "alpha", now, hue(40), "sunset")
	seedRecappedMission(t, db, "beta", now, hue(41), "skyline")

	matches, err := m.EvaluateBridgeSimilarity(context.Background(), missionA.ID)
	if err != nil {
		t.Fatalf("EvaluateBridgeSimilarity: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("tag gate must run before the hue gate, got %+v", matches)
	}
}

func TestEvaluateBridgeSimilarity_MissingHueNeverMatches(t *testing.T) {
	db := newMatcherDB(t)
	now := time.Now().UTC()
	m := NewMatcher(db, nil)

	_, missionA := seedRecappedMission(t, db, "alpha", now, hue(40), "sunset")
	seedRecappedMission(t, db, "beta", now, nil, "sunset")

	matches, err := m.EvaluateBridgeSimilarity(context.Background(), missionA.ID)
	if err != nil {
		t.Fatalf("EvaluateBridgeSimilarity: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("candidate without a hue must be skipped, got %+v", matches)
	}
}

func TestEvaluateBridgeSimilarity_WrapAroundHueMatches(t *testing.T) {
	db := newMatcherDB(t)
	now := time.Now().UTC()
	m := NewMatcher(db, nil)

	// 355 and 5 are 10 degrees apart on the circle.
	_, missionA := seedRecappedMission(t, db, "alpha", now, hue(355), "sunset")
	seedRecappedMission(t, db, "beta", now, hue(5), "sunset")

	matches, err := m.EvaluateBridgeSimilarity(context.Background(), missionA.ID)
	if err != nil {
		t.Fatalf("EvaluateBridgeSimilarity: %v", err)
	}
	if len(matches) != 1 || matches[0].HueDelta != 10 {
		t.Fatalf("expected wrap-around hue match with delta 10, got %+v", matches)
	}
}

func TestEvaluateBridgeSimilarity_SameChainExcluded(t *testing.T) {
	db := newMatcherDB(t)
	now := time.Now().UTC()
	m := NewMatcher(db, nil)
	ctx := context.Background()

	chain, missionA := seedRecappedMission(t, db, "alpha", now, hue(40), "sunset")

	// A sibling mission in the same chain with a perfect signature match.
	sibling, err := repo.CreateMission(ctx, db, chain.ID, "p2", 1, domain.StateRecap, nil, nil)
	if err != nil {
		t.Fatalf("CreateMission: %v", err)
	}
	db.Model(&domain.Mission{}).Where("id = ?", sibling.ID).Update("recap_ready_at", now)
	_, _ = repo.UpsertEntry(ctx, db, sibling.ID, "u2", repo.EntryPayload{MediaRef: "x", DominantHue: hue(40), SceneTags: []string{"sunset"}})

	matches, err := m.EvaluateBridgeSimilarity(ctx, missionA.ID)
	if err != nil {
		t.Fatalf("EvaluateBridgeSimilarity: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("same-chain missions must never bridge, got %+v", matches)
	}
}

func TestEvaluateBridgeSimilarity_OutsideWindowExcluded(t *testing.T) {
	db := newMatcherDB(t)
	now := time.Now().UTC()
	m := NewMatcher(db, nil)

	_, missionA := seedRecappedMission(t, db, "alpha", now, hue(40), "sunset")
	seedRecappedMission(t, db, "beta", now.Add(-m.Window-time.Minute), hue(41), "sunset")

	matches, err := m.EvaluateBridgeSimilarity(context.Background(), missionA.ID)
	if err != nil {
		t.Fatalf("EvaluateBridgeSimilarity: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("candidate outside the window must be excluded, got %+v", matches)
	}
}

func TestEvaluateBridgeSimilarity_UnrecappedSourceIsNoOp(t *testing.T) {
	db := newMatcherDB(t)
	m := NewMatcher(db, nil)
	ctx := context.Background()

	chain, _ := repo.CreateChain(ctx, db, "alpha")
	mission, _ := repo.CreateMission(ctx, db, chain.ID, "p", 1, domain.StateCapture, nil, nil)

	matches, err := m.EvaluateBridgeSimilarity(ctx, mission.ID)
	if err != nil || matches != nil {
		t.Fatalf("expected (nil, nil) for an unrecapped mission, got %v, %v", matches, err)
	}
}

func TestEvaluateBridgeSimilarity_MissingMissionIsNoOp(t *testing.T) {
	m := NewMatcher(newMatcherDB(t), nil)
	matches, err := m.EvaluateBridgeSimilarity(context.Background(), "missing")
	if err != nil || matches != nil {
		t.Fatalf("expected (nil, nil) for a missing mission, got %v, %v", matches, err)
	}
}

func TestEvaluateBridgeSimilarity_ReEvaluationIsIdempotent(t *testing.T) {
	db := newMatcherDB(t)
	now := time.Now().UTC()
	sink := &countingSink{}
	m := NewMatcher(db, sink)
	ctx := context.Background()

	_, missionA := seedRecappedMission(t, db, "alpha", now, hue(40), "sunset")
	_, missionB := seedRecappedMission(t, db, "beta", now, hue(45), "sunset")

	first, err := m.EvaluateBridgeSimilarity(ctx, missionA.ID)
	if err != nil || len(first) != 1 {
		t.Fatalf("first pass: %v matches=%d", err, len(first))
	}
	// Again from the source side, then from the target side.
	second, err := m.EvaluateBridgeSimilarity(ctx, missionA.ID)
	if err != nil || len(second) != 1 {
		t.Fatalf("second pass: %v matches=%d", err, len(second))
	}
	reverse, err := m.EvaluateBridgeSimilarity(ctx, missionB.ID)
	if err != nil || len(reverse) != 1 {
		t.Fatalf("reverse pass: %v matches=%d", err, len(reverse))
	}

	var events, edges int64
	db.Model(&domain.BridgeEvent{}).Count(&events)
	db.Model(&domain.Connection{}).Count(&edges)
	if events != 1 {
		t.Fatalf("expected a single bridge event across all passes, got %d", events)
	}
	if edges != 2 {
		t.Fatalf("expected exactly the two directed edges, got %d", edges)
	}
	if sink.bridges() != 1 {
		t.Fatalf("only the creating pass may announce, got %d publishes", sink.bridges())
	}
}

func TestEvaluateBridgeSimilarity_ConcurrentFromBothSides(t *testing.T) {
	db := newMatcherDB(t)
	now := time.Now().UTC()
	m := NewMatcher(db, nil)
	ctx := context.Background()

	_, missionA := seedRecappedMission(t, db, "alpha", now, hue(40), "sunset")
	_, missionB := seedRecappedMission(t, db, "beta", now, hue(45), "sunset")

	var wg sync.WaitGroup
	for _, id := range []string{missionA.ID, missionB.ID} {
		wg.Add(1)
		go func(missionID string) {
			defer wg.Done()
			if _, err := m.EvaluateBridgeSimilarity(ctx, missionID); err != nil {
				t.Errorf("evaluate %s: %v", missionID, err)
			}
		}(id)
	}
	wg.Wait()

	var events int64
	db.Model(&domain.BridgeEvent{}).Count(&events)
	if events != 1 {
		t.Fatalf("pair must produce one event even when raced, got %d", events)
	}
}

// countingSink counts bridge announcements; other events are ignored.
type countingSink struct {
	mu sync.Mutex
	n  int
}

func (s *countingSink) PublishState(context.Context, string, string) error { return nil }
func (s *countingSink) PublishProgress(context.Context, string, int, int, string) error {
	return nil
}
func (s *countingSink) PublishChapterReady(context.Context, string, string) error { return nil }
func (s *countingSink) PublishBridge(context.Context, string, string, []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return nil
}

func (s *countingSink) bridges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
