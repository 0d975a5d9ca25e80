package handlers

import (
	"context"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shutterline/go-mission-backend/internal/bridge"
	"github.com/shutterline/go-mission-backend/internal/domain"
	"github.com/shutterline/go-mission-backend/internal/repo"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Fixed UUIDs used across handler tests.
const (
	testChainID   = "11111111-1111-4111-8111-111111111111"
	testMissionID = "22222222-2222-4222-8222-222222222222"
)

//
// Fakes (function-field style so each test overrides only what it needs)
//

type fakeChainSvc struct {
	create        func(ctx context.Context, creatorID, name string) (*domain.Chain, error)
	get           func(ctx context.Context, chainID string) (*domain.Chain, error)
	join          func(ctx context.Context, chainID, userID string) error
	authorize     func(ctx context.Context, chainID, userID string) error
	createMission func(ctx context.Context, chainID, prompt string, required int, startHot bool, startsAt, endsAt *time.Time) (*domain.Mission, error)
	missions      func(ctx context.Context, chainID string) ([]domain.Mission, error)
	connections   func(ctx context.Context, chainID string) ([]domain.Connection, error)
}

func (f *fakeChainSvc) Create(ctx context.Context, creatorID, name string) (*domain.Chain, error) {
	return f.create(ctx, creatorID, name)
}
func (f *fakeChainSvc) Get(ctx context.Context, chainID string) (*domain.Chain, error) {
	return f.get(ctx, chainID)
}
func (f *fakeChainSvc) Join(ctx context.Context, chainID, userID string) error {
	return f.join(ctx, chainID, userID)
}
func (f *fakeChainSvc) Authorize(ctx context.Context, chainID, userID string) error {
	if f.authorize == nil {
		return nil
	}
	return f.authorize(ctx, chainID, userID)
}
func (f *fakeChainSvc) CreateMission(ctx context.Context, chainID, prompt string, required int, startHot bool, startsAt, endsAt *time.Time) (*domain.Mission, error) {
	return f.createMission(ctx, chainID, prompt, required, startHot, startsAt, endsAt)
}
func (f *fakeChainSvc) Missions(ctx context.Context, chainID string) ([]domain.Mission, error) {
	return f.missions(ctx, chainID)
}
func (f *fakeChainSvc) Connections(ctx context.Context, chainID string) ([]domain.Connection, error) {
	return f.connections(ctx, chainID)
}

type fakeMissionSvc struct {
	get          func(ctx context.Context, missionID string) (*domain.Mission, error)
	record       func(ctx context.Context, missionID, userID string, p repo.EntryPayload) (*domain.Entry, *domain.Mission, error)
	entries      func(ctx context.Context, missionID string) ([]domain.Entry, error)
	recap        func(ctx context.Context, missionID, requestedBy string) (*domain.Chapter, error)
	archive      func(ctx context.Context, missionID string) (*domain.Mission, error)
	attachVideo  func(ctx context.Context, missionID, videoRef string) error
	bridgeEvents func(ctx context.Context, missionID string) ([]domain.BridgeEvent, error)
}

func (f *fakeMissionSvc) Get(ctx context.Context, missionID string) (*domain.Mission, error) {
	return f.get(ctx, missionID)
}
func (f *fakeMissionSvc) RecordSubmission(ctx context.Context, missionID, userID string, p repo.EntryPayload) (*domain.Entry, *domain.Mission, error) {
	return f.record(ctx, missionID, userID, p)
}
func (f *fakeMissionSvc) Entries(ctx context.Context, missionID string) ([]domain.Entry, error) {
	return f.entries(ctx, missionID)
}
func (f *fakeMissionSvc) GenerateRecap(ctx context.Context, missionID, requestedBy string) (*domain.Chapter, error) {
	return f.recap(ctx, missionID, requestedBy)
}
func (f *fakeMissionSvc) Archive(ctx context.Context, missionID string) (*domain.Mission, error) {
	return f.archive(ctx, missionID)
}
func (f *fakeMissionSvc) AttachVideo(ctx context.Context, missionID, videoRef string) error {
	return f.attachVideo(ctx, missionID, videoRef)
}
func (f *fakeMissionSvc) BridgeEvents(ctx context.Context, missionID string) ([]domain.BridgeEvent, error) {
	return f.bridgeEvents(ctx, missionID)
}

type fakeBridge struct {
	evaluate func(ctx context.Context, missionID string) ([]bridge.Match, error)
}

func (f *fakeBridge) EvaluateBridgeSimilarity(ctx context.Context, missionID string) ([]bridge.Match, error) {
	return f.evaluate(ctx, missionID)
}

// newTestRouter mounts the full route surface against the given fakes.
func newTestRouter(chainSvc ChainService, missionSvc MissionService, bridges BridgeEvaluator) *gin.Engine {
	r := gin.New()
	h := New(chainSvc, missionSvc, bridges)

	r.POST("/chains", h.CreateChain)
	r.GET("/chains/:id", h.GetChain)
	r.POST("/chains/:id/join", h.JoinChain)
	r.GET("/chains/:id/connections", h.ListConnections)
	r.POST("/chains/:id/missions", h.CreateMission)
	r.GET("/chains/:id/missions", h.ListMissions)

	r.GET("/missions/:id", h.GetMission)
	r.POST("/missions/:id/entries", h.SubmitEntry)
	r.GET("/missions/:id/entries", h.ListEntries)
	r.POST("/missions/:id/recap", h.GenerateRecap)
	r.POST("/missions/:id/archive", h.ArchiveMission)
	r.POST("/missions/:id/video", h.AttachVideo)
	r.POST("/missions/:id/bridge", h.EvaluateBridge)
	r.GET("/missions/:id/bridges", h.ListBridges)
	return r
}

func testCtx() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}
