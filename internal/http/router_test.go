package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/shutterline/go-mission-backend/internal/config"
	"github.com/shutterline/go-mission-backend/internal/domain"
	"github.com/shutterline/go-mission-backend/internal/repo"
)

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "router_test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	// Generous limits so the tests never trip the limiter.
	cfg.RateRPS = 10000
	cfg.RateBurst = 10000

	r := gin.New()
	RegisterRoutes(r, db, Dependencies{}, cfg)
	return r
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User-ID", "router-test-user")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthAndFallbacks(t *testing.T) {
	r := newTestServer(t)

	if w := doJSON(r, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", w.Code)
	}

	w := doJSON(r, http.MethodGet, "/nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"code":"not_found"`) {
		t.Fatalf("404 must use the error envelope: %s", w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("correlation id header missing")
	}

	if w := doJSON(r, http.MethodDelete, "/health", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	r := newTestServer(t)
	w := doJSON(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", w.Code)
	}
}

func TestRouter_MissionLifecycleEndToEnd(t *testing.T) {
	r := newTestServer(t)

	// Create a chain.
	w := doJSON(r, http.MethodPost, "/api/v1/chains", `{"name":"router crew"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create chain: %d %s", w.Code, w.Body.String())
	}
	var chain domain.Chain
	if err := json.Unmarshal(w.Body.Bytes(), &chain); err != nil || chain.ID == "" {
		t.Fatalf("chain body: %s", w.Body.String())
	}

	// Create a mission needing 1 submission.
	w = doJSON(r, http.MethodPost, "/api/v1/chains/"+chain.ID+"/missions",
		`{"prompt":"catch the sunset","submissions_required":1}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create mission: %d %s", w.Code, w.Body.String())
	}
	var mission domain.Mission
	if err := json.Unmarshal(w.Body.Bytes(), &mission); err != nil || mission.ID == "" {
		t.Fatalf("mission body: %s", w.Body.String())
	}

	// Submit the single required entry; the mission locks.
	w = doJSON(r, http.MethodPost, "/api/v1/missions/"+mission.ID+"/entries",
		`{"media_ref":"s3://a.jpg","dominant_hue":38,"scene_tags":["sunset"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"state":"FUSING"`) {
		t.Fatalf("expected auto-lock into FUSING: %s", w.Body.String())
	}

	// A second user cannot submit to the locked mission.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/missions/"+mission.ID+"/entries",
		strings.NewReader(`{"media_ref":"s3://b.jpg"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "late-user")
	w = httptest.NewRecorder()
	// Membership gate rejects first, so join before submitting.
	joinW := doJSON(r, http.MethodPost, "/api/v1/chains/"+chain.ID+"/join", "")
	if joinW.Code != http.StatusNoContent {
		t.Fatalf("join: %d", joinW.Code)
	}
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden && w.Code != http.StatusConflict {
		t.Fatalf("late submit: expected 403 or 409, got %d %s", w.Code, w.Body.String())
	}

	// Generate the recap.
	w = doJSON(r, http.MethodPost, "/api/v1/missions/"+mission.ID+"/recap", "")
	if w.Code != http.StatusOK {
		t.Fatalf("recap: %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"title":"Sunset"`) {
		t.Fatalf("fallback chapter expected: %s", w.Body.String())
	}

	// Archive.
	w = doJSON(r, http.MethodPost, "/api/v1/missions/"+mission.ID+"/archive", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"state":"ARCHIVED"`) {
		t.Fatalf("archive: %d %s", w.Code, w.Body.String())
	}

	// Archiving twice conflicts.
	if w = doJSON(r, http.MethodPost, "/api/v1/missions/"+mission.ID+"/archive", ""); w.Code != http.StatusConflict {
		t.Fatalf("double archive: expected 409, got %d", w.Code)
	}

	// Bridge evaluation runs (no candidates, empty match set).
	w = doJSON(r, http.MethodPost, "/api/v1/missions/"+mission.ID+"/bridge", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"matches":[]`) {
		t.Fatalf("bridge: %d %s", w.Code, w.Body.String())
	}
}

func TestRouter_IdempotentSubmissionReplay(t *testing.T) {
	r := newTestServer(t)

	w := doJSON(r, http.MethodPost, "/api/v1/chains", `{"name":"replay crew"}`)
	var chain domain.Chain
	_ = json.Unmarshal(w.Body.Bytes(), &chain)

	w = doJSON(r, http.MethodPost, "/api/v1/chains/"+chain.ID+"/missions",
		`{"prompt":"p","submissions_required":3}`)
	var mission domain.Mission
	_ = json.Unmarshal(w.Body.Bytes(), &mission)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/missions/"+mission.ID+"/entries",
			strings.NewReader(`{"media_ref":"s3://a.jpg"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", "router-test-user")
		req.Header.Set("Idempotency-Key", "retry-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := send()
	if first.Code != http.StatusOK {
		t.Fatalf("first submit: %d %s", first.Code, first.Body.String())
	}
	if first.Header().Get("Idempotency-Replayed") != "" {
		t.Fatal("first submission must not be a replay")
	}

	second := send()
	if second.Code != http.StatusOK {
		t.Fatalf("replay submit: %d %s", second.Code, second.Body.String())
	}
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay header missing: %v", second.Header())
	}

	var firstResp, secondResp struct {
		Entry struct {
			ID string `json:"id"`
		} `json:"entry"`
	}
	_ = json.Unmarshal(first.Body.Bytes(), &firstResp)
	_ = json.Unmarshal(second.Body.Bytes(), &secondResp)
	if firstResp.Entry.ID == "" || firstResp.Entry.ID != secondResp.Entry.ID {
		t.Fatalf("replay must return the original entry: %q vs %q", firstResp.Entry.ID, secondResp.Entry.ID)
	}
}
