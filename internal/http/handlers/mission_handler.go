// Mission HTTP handlers.
//
// This file exposes REST endpoints for the mission lifecycle:
//   - GET  /missions/{id}           (fetch)
//   - POST /missions/{id}/entries   (submit an entry; may auto-lock the mission)
//   - GET  /missions/{id}/entries   (list the submission ledger)
//   - POST /missions/{id}/recap     (generate the chapter, move to RECAP)
//   - POST /missions/{id}/archive   (terminal transition)
//   - POST /missions/{id}/video     (attach a delayed video render)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (ids, media references, hue range)
//   - authorize chain membership before accepting submissions
//   - delegate to application services (MissionService)
//   - implement idempotency semantics for the submission endpoint
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, mission, key), the handler returns that recorded
// entry and sets `Idempotency-Replayed: true`.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shutterline/go-mission-backend/internal/domain"
	"github.com/shutterline/go-mission-backend/internal/http/middleware"
	"github.com/shutterline/go-mission-backend/internal/repo"
	"github.com/shutterline/go-mission-backend/internal/services"
	"github.com/shutterline/go-mission-backend/internal/utils"
)

//
// DTOs
//

// SubmitEntryRequest is the JSON payload for submitting a mission entry.
//
// Metadata fields (dominant hue, palette, tags) are optional; absent values
// are filled in asynchronously by the enrichment worker.
type SubmitEntryRequest struct {
	// MediaRef points at the uploaded photo/video. It must be non-empty.
	MediaRef string `json:"media_ref" binding:"required,min=1" example:"s3://shutterline/entries/4f2c.jpg"`
	// DominantHue is the entry's dominant color hue in degrees [0, 360).
	DominantHue *int       `json:"dominant_hue,omitempty" example:"38"`
	Palette     []string   `json:"palette,omitempty"`
	SceneTags   []string   `json:"scene_tags,omitempty"`
	ObjectTags  []string   `json:"object_tags,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	CapturedAt  *time.Time `json:"captured_at,omitempty"`
}

// SubmitEntryResponse is the JSON envelope for a recorded submission. The
// mission reflects any lifecycle transitions the submission triggered.
type SubmitEntryResponse struct {
	Entry   *domain.Entry   `json:"entry"`
	Mission *domain.Mission `json:"mission"`
}

// ListEntriesResponse wraps a mission's submission ledger.
type ListEntriesResponse struct {
	Entries []domain.Entry `json:"entries"`
	Total   int            `json:"total"`
}

// AttachVideoRequest is the JSON payload for attaching a rendered video.
type AttachVideoRequest struct {
	// VideoRef points at the rendered recap video.
	VideoRef string `json:"video_ref" binding:"required,min=1" example:"s3://shutterline/videos/4f2c.mp4"`
}

// idempotencyTTL bounds how long a recorded submission can be replayed.
const idempotencyTTL = 24 * time.Hour

// clampLimit parses the optional "limit" query param and bounds it to
// [0, maxListLimit]. Zero means unlimited.
func clampLimit(c *gin.Context) int {
	const maxListLimit = 500
	return utils.ClampInt(utils.AtoiDefault(c.Query("limit"), 0), 0, maxListLimit)
}

//
// Handlers
//

// GetMission godoc
// @ID          getMission
// @Summary     Fetch a mission
// @Description Returns the mission resource, including its lifecycle state and counts.
// @Tags        Missions
// @Produce     json
//
// @Param       id  path  string  true  "Mission ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Mission
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Mission not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /missions/{id} [get]
func (h *Handlers) GetMission(c *gin.Context) {
	missionID := c.Param("id")
	if _, err := uuid.Parse(missionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "mission id must be a UUID")
		return
	}

	m, err := h.missionSvc.Get(c.Request.Context(), missionID)
	if err != nil {
		if errors.Is(err, services.ErrMissionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "mission not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, m)
}

// SubmitEntry godoc
// @ID          submitEntry
// @Summary     Submit an entry to a mission
// @Description Records (or overwrites) the current user's entry. The first submission opens the
// @Description capture window; reaching the submission target locks the mission for fusing.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Entries
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "User ID that submits the entry"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       id               path    string  true  "Mission ID (UUID)"               format(uuid)
// @Param       body             body    handlers.SubmitEntryRequest  true  "Entry payload"
//
// @Success     200  {object}  handlers.SubmitEntryResponse  "Recorded entry and resulting mission state"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse        "Not a member"
// @Failure     404  {object}  handlers.ErrorResponse        "Mission not found"
// @Failure     409  {object}  handlers.ErrorResponse        "Mission locked"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal error"
// @Router      /missions/{id}/entries [post]
func (h *Handlers) SubmitEntry(c *gin.Context) {
	ctx := c.Request.Context()
	missionID := c.Param("id")
	if _, err := uuid.Parse(missionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "mission id must be a UUID")
		return
	}

	var req SubmitEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.MediaRef) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "media_ref required")
		return
	}
	if req.DominantHue != nil && (*req.DominantHue < 0 || *req.DominantHue >= 360) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "dominant_hue must be in [0, 360)")
		return
	}

	currentUser := userID(c)

	// Membership gate: the mission's chain must contain the submitter.
	m, err := h.missionSvc.Get(ctx, missionID)
	if err != nil {
		if errors.Is(err, services.ErrMissionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "mission not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if err := h.chainSvc.Authorize(ctx, m.ChainID, currentUser); err != nil {
		if errors.Is(err, services.ErrNotMember) {
			fail(c, http.StatusForbidden, ErrCodeForbidden, "not a member of this chain")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" {
		if svc, okSvc := h.missionSvc.(*services.MissionService); okSvc && svc.DB != nil {
			if rec, rerr := repo.GetIdempotency(ctx, svc.DB, currentUser, missionID, idemKey, time.Now().UTC()); rerr == nil && rec != nil {
				if prev, gerr := repo.GetEntry(ctx, svc.DB, rec.EntryID); gerr == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusOK, SubmitEntryResponse{Entry: prev, Mission: m})
					return
				}
			}
		}
	}

	entry, mission, err := h.missionSvc.RecordSubmission(ctx, missionID, currentUser, repo.EntryPayload{
		MediaRef:    req.MediaRef,
		DominantHue: req.DominantHue,
		Palette:     req.Palette,
		SceneTags:   req.SceneTags,
		ObjectTags:  req.ObjectTags,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		CapturedAt:  req.CapturedAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "mission not found")
		case errors.Is(err, services.ErrMissionLocked):
			fail(c, http.StatusConflict, ErrCodeMissionLocked, "mission is no longer accepting entries")
		case errors.Is(err, services.ErrEmptyMedia):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "media_ref required")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSubmitFailed, err.Error())
		}
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if svc, okSvc := h.missionSvc.(*services.MissionService); okSvc && svc.DB != nil {
			_, _ = repo.CreateIdempotency(ctx, svc.DB, currentUser, missionID, idemKey, entry.ID, http.StatusOK, idempotencyTTL)
		}
	}

	ok(c, http.StatusOK, SubmitEntryResponse{Entry: entry, Mission: mission})
}

// ListEntries godoc
// @ID          listEntries
// @Summary     List a mission's entries
// @Description Returns the submission ledger in deterministic order (oldest first).
// @Tags        Entries
// @Produce     json
//
// @Param       id     path   string  true   "Mission ID (UUID)"  format(uuid)
// @Param       limit  query  int     false  "Cap the number of returned entries"  minimum(1) maximum(500)
//
// @Success     200  {object} handlers.ListEntriesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Mission not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /missions/{id}/entries [get]
func (h *Handlers) ListEntries(c *gin.Context) {
	missionID := c.Param("id")
	if _, err := uuid.Parse(missionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "mission id must be a UUID")
		return
	}

	items, err := h.missionSvc.Entries(c.Request.Context(), missionID)
	if err != nil {
		if errors.Is(err, services.ErrMissionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "mission not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	total := len(items)
	if limit := clampLimit(c); limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	ok(c, http.StatusOK, ListEntriesResponse{Entries: items, Total: total})
}

// GenerateRecap godoc
// @ID          generateRecap
// @Summary     Generate a mission's recap chapter
// @Description Summarizes the mission's entries, produces the chapter (external generator with
// @Description deterministic fallback), and transitions the mission to RECAP. Re-triggerable
// @Description while the mission is not archived.
// @Tags        Recaps
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Mission ID (UUID)"      format(uuid)
//
// @Success     200  {object}  domain.Chapter
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Mission not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Invalid state"
// @Failure     422  {object}  handlers.ErrorResponse  "No entries"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /missions/{id}/recap [post]
func (h *Handlers) GenerateRecap(c *gin.Context) {
	missionID := c.Param("id")
	if _, err := uuid.Parse(missionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "mission id must be a UUID")
		return
	}

	chapter, err := h.missionSvc.GenerateRecap(c.Request.Context(), missionID, userID(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "mission not found")
		case errors.Is(err, services.ErrInvalidStateTransition):
			fail(c, http.StatusConflict, ErrCodeInvalidState, "mission state does not permit a recap")
		case errors.Is(err, services.ErrNoEntries):
			fail(c, http.StatusUnprocessableEntity, ErrCodeNoEntries, "mission has no entries")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeRecapFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, chapter)
}

// ArchiveMission godoc
// @ID          archiveMission
// @Summary     Archive a mission
// @Description Moves a mission from RECAP to its terminal ARCHIVED state.
// @Tags        Missions
// @Produce     json
//
// @Param       id  path  string  true  "Mission ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Mission
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Mission not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Invalid state"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /missions/{id}/archive [post]
func (h *Handlers) ArchiveMission(c *gin.Context) {
	missionID := c.Param("id")
	if _, err := uuid.Parse(missionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "mission id must be a UUID")
		return
	}

	m, err := h.missionSvc.Archive(c.Request.Context(), missionID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "mission not found")
		case errors.Is(err, services.ErrInvalidStateTransition):
			fail(c, http.StatusConflict, ErrCodeInvalidState, "only recapped missions can be archived")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, m)
}

// AttachVideo godoc
// @ID          attachVideo
// @Summary     Attach a rendered video to a mission's chapter
// @Description Attaches a delayed video render to the existing chapter.
// @Tags        Recaps
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Mission ID (UUID)"  format(uuid)
// @Param       body  body  handlers.AttachVideoRequest  true  "Video payload"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Chapter not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /missions/{id}/video [post]
func (h *Handlers) AttachVideo(c *gin.Context) {
	missionID := c.Param("id")
	if _, err := uuid.Parse(missionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "mission id must be a UUID")
		return
	}

	var req AttachVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.VideoRef) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "video_ref required")
		return
	}

	if err := h.missionSvc.AttachVideo(c.Request.Context(), missionID, req.VideoRef); err != nil {
		if errors.Is(err, services.ErrMissionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chapter not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}
