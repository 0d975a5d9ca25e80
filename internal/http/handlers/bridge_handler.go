// Bridge HTTP handlers.
//
// This file exposes REST endpoints for cross-chain bridging:
//   - POST /missions/{id}/bridge    (evaluate similarity on demand)
//   - GET  /missions/{id}/bridges   (list recorded bridge events)
//
// Evaluation normally runs detached after a recap completes; the POST
// endpoint re-runs it synchronously, which is safe because the stored graph
// writes are idempotent.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shutterline/go-mission-backend/internal/bridge"
	"github.com/shutterline/go-mission-backend/internal/domain"
	"github.com/shutterline/go-mission-backend/internal/services"
)

//
// DTOs
//

// BridgeEvaluationResponse wraps the matches accepted by an evaluation run.
type BridgeEvaluationResponse struct {
	Matches []bridge.Match `json:"matches"`
}

// ListBridgesResponse wraps a mission's recorded bridge events.
type ListBridgesResponse struct {
	Bridges []domain.BridgeEvent `json:"bridges"`
}

//
// Handlers
//

// EvaluateBridge godoc
// @ID          evaluateBridge
// @Summary     Evaluate bridge similarity for a mission
// @Description Scores recap-window candidates from other chains against the mission's color and
// @Description tag signature; accepted matches create connections and bridge events. Re-running
// @Description is idempotent.
// @Tags        Bridges
// @Produce     json
//
// @Param       id  path  string  true  "Mission ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.BridgeEvaluationResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /missions/{id}/bridge [post]
func (h *Handlers) EvaluateBridge(c *gin.Context) {
	missionID := c.Param("id")
	if _, err := uuid.Parse(missionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "mission id must be a UUID")
		return
	}

	matches, err := h.bridges.EvaluateBridgeSimilarity(c.Request.Context(), missionID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeBridgeFailed, err.Error())
		return
	}
	if matches == nil {
		matches = []bridge.Match{}
	}
	ok(c, http.StatusOK, BridgeEvaluationResponse{Matches: matches})
}

// ListBridges godoc
// @ID          listBridges
// @Summary     List a mission's bridge events
// @Description Returns the recorded mission-pair matches touching this mission, newest first.
// @Tags        Bridges
// @Produce     json
//
// @Param       id  path  string  true  "Mission ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.ListBridgesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Mission not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /missions/{id}/bridges [get]
func (h *Handlers) ListBridges(c *gin.Context) {
	missionID := c.Param("id")
	if _, err := uuid.Parse(missionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "mission id must be a UUID")
		return
	}

	items, err := h.missionSvc.BridgeEvents(c.Request.Context(), missionID)
	if err != nil {
		if errors.Is(err, services.ErrMissionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "mission not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListBridgesResponse{Bridges: items})
}
