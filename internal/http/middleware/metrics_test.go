package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())

	r.GET("/sessions/:id/overview", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	// 204 with no body leaves Writer.Size() at -1, which must not be
	// observed in the size histogram.
	r.POST("/sessions/complete-activity", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	// Collectors are package globals, so diff against the current values.
	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/sessions/:id/overview", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/tidak-ada", "404"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/sesi-1/overview", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("overview -> %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tidak-ada", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing route -> %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sessions/complete-activity", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("complete-activity -> %d", w.Code)
	}

	// The matched route increments under its pattern label.
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/sessions/:id/overview", "200")); got != baseOK+1 {
		t.Fatalf("pattern counter = %v, want %v", got, baseOK+1)
	}
	// The 404 falls back to the raw path label.
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/tidak-ada", "404")); got != base404+1 {
		t.Fatalf("fallback counter = %v, want %v", got, base404+1)
	}
	// Nothing in flight once the requests finish.
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight = %v, want 0", got)
	}
}
