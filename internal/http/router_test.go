package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/greenverse/ecombot-backend/internal/config"
	"github.com/greenverse/ecombot-backend/internal/rag"
	"github.com/greenverse/ecombot-backend/internal/repo"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("router_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	// Plenty of headroom so the rate limiter never trips in tests.
	cfg.RateRPS = 1000
	cfg.RateBurst = 1000

	idx := rag.NewLexicalIndexFromBytes([]byte("Kimia hijau mengurangi limbah berbahaya."))
	holder := rag.NewHolder(rag.NewLexical(idx), rag.StatusActive)
	pipeline := rag.NewPipeline(nil, holder, cfg.RAG.TopK, cfg.RAG.HistoryLimit)

	r := gin.New()
	RegisterRoutes(r, db, pipeline, holder, nil, cfg)
	return r
}

func TestHealthIncludesRetrieverStatus(t *testing.T) {
	r := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %q", body["status"])
	}
	if body["retriever"] != rag.StatusActive {
		t.Fatalf("retriever field = %q", body["retriever"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatal("expected prometheus exposition output")
	}
}

func TestNoRouteEnvelope(t *testing.T) {
	r := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/definitely-not-a-route", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != "not_found" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestMethodNotAllowedEnvelope(t *testing.T) {
	r := newRouter(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/start", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestSessionRoundTripThroughFullStack(t *testing.T) {
	r := newRouter(t)

	start := bytes.NewBufferString(`{"session_id":"sesi-router"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/start", start)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "siswa-router")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("start status = %d, body = %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}

	msg := bytes.NewBufferString(`{"session_id":"sesi-router","message":"lanjut"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/sessions/message", msg)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "siswa-router")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("message status = %d, body = %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/sesi-router/overview", nil)
	req.Header.Set("X-User-ID", "siswa-router")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("overview status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestCORSDefaultAllowsAll(t *testing.T) {
	r := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("ACAO = %q, want *", got)
	}
}
