package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shutterline/go-mission-backend/internal/domain"
	"github.com/shutterline/go-mission-backend/internal/services"
)

func TestCreateChain_Success(t *testing.T) {
	var gotCreator, gotName string
	chains := &fakeChainSvc{
		create: func(_ context.Context, creatorID, name string) (*domain.Chain, error) {
			gotCreator, gotName = creatorID, name
			return &domain.Chain{ID: testChainID, Name: name}, nil
		},
	}
	r := newTestRouter(chains, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/chains", strings.NewReader(`{"name":"crew"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if gotCreator != "u1" || gotName != "crew" {
		t.Fatalf("service got (%q, %q)", gotCreator, gotName)
	}
}

func TestCreateChain_DefaultsUserWithoutHeader(t *testing.T) {
	var gotCreator string
	chains := &fakeChainSvc{
		create: func(_ context.Context, creatorID, _ string) (*domain.Chain, error) {
			gotCreator = creatorID
			return &domain.Chain{ID: testChainID}, nil
		},
	}
	r := newTestRouter(chains, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/chains", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated || gotCreator != "demo-user" {
		t.Fatalf("expected demo-user fallback, got %q (status %d)", gotCreator, w.Code)
	}
}

func TestCreateChain_BadJSON(t *testing.T) {
	r := newTestRouter(&fakeChainSvc{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/chains", strings.NewReader(`{broken`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Code != ErrCodeBadRequest {
		t.Fatalf("unexpected envelope: %s", w.Body.String())
	}
}

func TestGetChain_NotFoundAndBadID(t *testing.T) {
	chains := &fakeChainSvc{
		get: func(context.Context, string) (*domain.Chain, error) {
			return nil, services.ErrChainNotFound
		},
	}
	r := newTestRouter(chains, nil, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chains/"+testChainID, nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chains/not-a-uuid", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", w.Code)
	}
}

func TestJoinChain_NoContent(t *testing.T) {
	chains := &fakeChainSvc{
		join: func(_ context.Context, chainID, userID string) error {
			if chainID != testChainID || userID != "u2" {
				t.Errorf("join got (%q, %q)", chainID, userID)
			}
			return nil
		},
	}
	r := newTestRouter(chains, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/chains/"+testChainID+"/join", nil)
	req.Header.Set("X-User-ID", "u2")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestCreateMission_MembershipGate(t *testing.T) {
	chains := &fakeChainSvc{
		authorize: func(context.Context, string, string) error { return services.ErrNotMember },
	}
	r := newTestRouter(chains, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/chains/"+testChainID+"/missions",
		strings.NewReader(`{"prompt":"sunset"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), ErrCodeForbidden) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestCreateMission_SuccessAndValidation(t *testing.T) {
	var gotPrompt string
	var gotRequired int
	var gotHot bool
	chains := &fakeChainSvc{
		createMission: func(_ context.Context, _, prompt string, required int, startHot bool, _, _ *time.Time) (*domain.Mission, error) {
			gotPrompt, gotRequired, gotHot = prompt, required, startHot
			return &domain.Mission{ID: testMissionID, State: domain.StateCapture}, nil
		},
	}
	r := newTestRouter(chains, nil, nil)

	body := `{"prompt":"sunset","submissions_required":3,"start_hot":true}`
	req := httptest.NewRequest(http.MethodPost, "/chains/"+testChainID+"/missions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if gotPrompt != "sunset" || gotRequired != 3 || !gotHot {
		t.Fatalf("service got (%q, %d, %v)", gotPrompt, gotRequired, gotHot)
	}

	// Missing prompt → 400 before the service runs.
	req = httptest.NewRequest(http.MethodPost, "/chains/"+testChainID+"/missions", strings.NewReader(`{"prompt":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank prompt, got %d", w.Code)
	}
}

func TestCreateMission_InvalidRequired(t *testing.T) {
	chains := &fakeChainSvc{
		createMission: func(context.Context, string, string, int, bool, *time.Time, *time.Time) (*domain.Mission, error) {
			return nil, services.ErrInvalidRequired
		},
	}
	r := newTestRouter(chains, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/chains/"+testChainID+"/missions",
		strings.NewReader(`{"prompt":"p","submissions_required":-2}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListMissions_WrapsItems(t *testing.T) {
	chains := &fakeChainSvc{
		missions: func(context.Context, string) ([]domain.Mission, error) {
			return []domain.Mission{{ID: testMissionID}}, nil
		},
	}
	r := newTestRouter(chains, nil, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chains/"+testChainID+"/missions", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ListMissionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || len(resp.Missions) != 1 {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestListConnections_ServiceError(t *testing.T) {
	chains := &fakeChainSvc{
		connections: func(context.Context, string) ([]domain.Connection, error) {
			return nil, errors.New("boom")
		},
	}
	r := newTestRouter(chains, nil, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chains/"+testChainID+"/connections", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), ErrCodeListFailed) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestListConnections_Success(t *testing.T) {
	chains := &fakeChainSvc{
		connections: func(context.Context, string) ([]domain.Connection, error) {
			return []domain.Connection{{FromChainID: testChainID, ToChainID: "other", Reason: "bridge_match"}}, nil
		},
	}
	r := newTestRouter(chains, nil, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chains/"+testChainID+"/connections", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ListConnectionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || len(resp.Connections) != 1 {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}
