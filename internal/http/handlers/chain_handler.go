// Chain HTTP handlers.
//
// This file exposes REST endpoints for chain resources:
//   - POST /chains                    (create)
//   - GET  /chains/{id}               (fetch)
//   - POST /chains/{id}/join          (enroll the current user)
//   - GET  /chains/{id}/connections   (bridge graph edges, ETag support)
//   - POST /chains/{id}/missions      (create a mission under the chain)
//   - GET  /chains/{id}/missions      (list the chain's missions)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shutterline/go-mission-backend/internal/bridge"
	"github.com/shutterline/go-mission-backend/internal/domain"
	"github.com/shutterline/go-mission-backend/internal/repo"
	"github.com/shutterline/go-mission-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// ChainService defines chain lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ChainService interface {
	// Create starts a new chain and enrolls creatorID as its first member.
	Create(ctx context.Context, creatorID, name string) (*domain.Chain, error)
	// Get fetches a chain by id.
	Get(ctx context.Context, chainID string) (*domain.Chain, error)
	// Join enrolls userID in the chain; joining twice is a no-op.
	Join(ctx context.Context, chainID, userID string) error
	// Authorize reports whether userID may act on the chain's missions.
	Authorize(ctx context.Context, chainID, userID string) error
	// CreateMission creates a mission under the chain.
	CreateMission(ctx context.Context, chainID, prompt string, required int, startHot bool, startsAt, endsAt *time.Time) (*domain.Mission, error)
	// Missions lists the chain's missions, newest first.
	Missions(ctx context.Context, chainID string) ([]domain.Mission, error)
	// Connections returns the chain's outgoing bridge graph edges.
	Connections(ctx context.Context, chainID string) ([]domain.Connection, error)
}

// MissionService defines mission lifecycle operations consumed by HTTP
// handlers: submissions, recap generation, archival, and reads.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MissionService interface {
	// Get fetches a mission by id.
	Get(ctx context.Context, missionID string) (*domain.Mission, error)
	// RecordSubmission upserts the entry for (userID, missionID) and applies
	// the lifecycle transition rules.
	RecordSubmission(ctx context.Context, missionID, userID string, p repo.EntryPayload) (*domain.Entry, *domain.Mission, error)
	// Entries returns the mission's submission ledger.
	Entries(ctx context.Context, missionID string) ([]domain.Entry, error)
	// GenerateRecap produces the mission's chapter and moves it to RECAP.
	GenerateRecap(ctx context.Context, missionID, requestedBy string) (*domain.Chapter, error)
	// Archive moves a mission from RECAP to ARCHIVED.
	Archive(ctx context.Context, missionID string) (*domain.Mission, error)
	// AttachVideo attaches a delayed video render to the mission's chapter.
	AttachVideo(ctx context.Context, missionID, videoRef string) error
	// BridgeEvents lists the recorded bridge matches touching a mission.
	BridgeEvents(ctx context.Context, missionID string) ([]domain.BridgeEvent, error)
}

// BridgeEvaluator defines the on-demand cross-chain matching operation.
type BridgeEvaluator interface {
	// EvaluateBridgeSimilarity scores window candidates and materializes
	// accepted matches. Safe to re-run; idempotent on the stored graph.
	EvaluateBridgeSimilarity(ctx context.Context, missionID string) ([]bridge.Match, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for chains, missions, and bridges.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	chainSvc   ChainService
	missionSvc MissionService
	bridges    BridgeEvaluator
}

// New constructs and returns a Handlers instance bound to the given services.
func New(chainSvc ChainService, missionSvc MissionService, bridges BridgeEvaluator) *Handlers {
	return &Handlers{chainSvc: chainSvc, missionSvc: missionSvc, bridges: bridges}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// CreateChainRequest is the JSON payload for creating a chain.
type CreateChainRequest struct {
	// Name optionally sets the chain name; a default is used when empty.
	Name string `json:"name" example:"Golden hour crew"`
}

// CreateMissionRequest is the JSON payload for creating a mission.
type CreateMissionRequest struct {
	// Prompt is the capture challenge shown to members.
	Prompt string `json:"prompt" binding:"required,min=1" example:"Catch today's sunset"`
	// SubmissionsRequired is the auto-lock target; 0 applies the default.
	SubmissionsRequired int `json:"submissions_required" example:"5"`
	// StartHot opens the capture window immediately (no lobby phase).
	StartHot bool `json:"start_hot"`
	// StartsAt / EndsAt optionally bound the capture window.
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
}

// ListMissionsResponse wraps a chain's missions.
type ListMissionsResponse struct {
	Missions []domain.Mission `json:"missions"`
}

// ListConnectionsResponse wraps a chain's outgoing graph edges.
type ListConnectionsResponse struct {
	Connections []domain.Connection `json:"connections"`
}

//
// Handlers
//

// CreateChain godoc
// @ID          createChain
// @Summary     Create a new chain
// @Description Creates a chain and enrolls the current user as its first member.
// @Tags        Chains
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.CreateChainRequest  true  "Create chain payload"
//
// @Success     201  {object}  domain.Chain
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chains [post]
func (h *Handlers) CreateChain(c *gin.Context) {
	var req CreateChainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	chain, err := h.chainSvc.Create(c.Request.Context(), userID(c), req.Name)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, chain)
}

// GetChain godoc
// @ID          getChain
// @Summary     Fetch a chain
// @Description Returns the chain resource by id.
// @Tags        Chains
// @Produce     json
//
// @Param       id  path  string  true  "Chain ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Chain
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Chain not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chains/{id} [get]
func (h *Handlers) GetChain(c *gin.Context) {
	chainID := c.Param("id")
	if _, err := uuid.Parse(chainID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chain id must be a UUID")
		return
	}

	chain, err := h.chainSvc.Get(c.Request.Context(), chainID)
	if err != nil {
		if errors.Is(err, services.ErrChainNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chain not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, chain)
}

// JoinChain godoc
// @ID          joinChain
// @Summary     Join a chain
// @Description Enrolls the current user in the chain. Joining twice is a no-op.
// @Tags        Chains
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Chain ID (UUID)"        format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Chain not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chains/{id}/join [post]
func (h *Handlers) JoinChain(c *gin.Context) {
	chainID := c.Param("id")
	if _, err := uuid.Parse(chainID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chain id must be a UUID")
		return
	}

	if err := h.chainSvc.Join(c.Request.Context(), chainID, userID(c)); err != nil {
		if errors.Is(err, services.ErrChainNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chain not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// ListConnections godoc
// @ID          listConnections
// @Summary     List a chain's bridge connections
// @Description Returns the chain's outgoing graph edges. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Chains
// @Produce     json
//
// @Param       id             path    string  true  "Chain ID (UUID)"             format(uuid)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
//
// @Success     200  {object} handlers.ListConnectionsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Chain not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chains/{id}/connections [get]
func (h *Handlers) ListConnections(c *gin.Context) {
	ctx := c.Request.Context()
	chainID := c.Param("id")
	if _, err := uuid.Parse(chainID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chain id must be a UUID")
		return
	}

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, okSvc := h.chainSvc.(*services.ChainService); okSvc {
		db = svc.DB
	}
	if db != nil {
		conns, events, err := repo.BridgeStats(ctx, db, chainID)
		if err == nil {
			etag := fmt.Sprintf(`W/"connections:%s:%d:%d"`, chainID, conns, events)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, err := h.chainSvc.Connections(ctx, chainID)
	if err != nil {
		if errors.Is(err, services.ErrChainNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chain not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListConnectionsResponse{Connections: items})
}

// CreateMission godoc
// @ID          createMission
// @Summary     Create a mission under a chain
// @Description Creates a mission; it waits in LOBBY unless start_hot opens the capture window immediately.
// @Tags        Missions
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Chain ID (UUID)"        format(uuid)
// @Param       body       body    handlers.CreateMissionRequest  true  "Create mission payload"
//
// @Success     201  {object}  domain.Mission
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     404  {object}  handlers.ErrorResponse  "Chain not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chains/{id}/missions [post]
func (h *Handlers) CreateMission(c *gin.Context) {
	ctx := c.Request.Context()
	chainID := c.Param("id")
	if _, err := uuid.Parse(chainID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chain id must be a UUID")
		return
	}

	var req CreateMissionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "prompt required")
		return
	}

	if err := h.chainSvc.Authorize(ctx, chainID, userID(c)); err != nil {
		if errors.Is(err, services.ErrNotMember) {
			fail(c, http.StatusForbidden, ErrCodeForbidden, "not a member of this chain")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	m, err := h.chainSvc.CreateMission(ctx, chainID, req.Prompt, req.SubmissionsRequired, req.StartHot, req.StartsAt, req.EndsAt)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrChainNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chain not found")
		case errors.Is(err, services.ErrInvalidRequired):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "submissions_required must be positive")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, m)
}

// ListMissions godoc
// @ID          listMissions
// @Summary     List a chain's missions
// @Description Returns the chain's missions, newest first.
// @Tags        Missions
// @Produce     json
//
// @Param       id  path  string  true  "Chain ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.ListMissionsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Chain not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chains/{id}/missions [get]
func (h *Handlers) ListMissions(c *gin.Context) {
	chainID := c.Param("id")
	if _, err := uuid.Parse(chainID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chain id must be a UUID")
		return
	}

	items, err := h.chainSvc.Missions(c.Request.Context(), chainID)
	if err != nil {
		if errors.Is(err, services.ErrChainNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chain not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListMissionsResponse{Missions: items})
}
