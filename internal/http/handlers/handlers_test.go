package handlers

import (
	"bytes"
	"context"
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

	"github.com/greenverse/ecombot-backend/internal/domain"
	"github.com/greenverse/ecombot-backend/internal/flow"
	"github.com/greenverse/ecombot-backend/internal/rag"
	"github.com/greenverse/ecombot-backend/internal/repo"
	"github.com/greenverse/ecombot-backend/internal/services"
)

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("handlers_test_%d.db", time.Now().UnixNano()))
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
	return db
}

// stubPipeline returns one fixed answer for every question.
type stubPipeline struct {
	ans rag.Answer
}

func (p stubPipeline) Answer(_ context.Context, _ string, _ []rag.HistoryTurn) rag.Answer {
	return p.ans
}

// stubControl records reload calls.
type stubControl struct {
	status  string
	reloads int
}

func (s *stubControl) Status() string           { return s.status }
func (s *stubControl) Reload(_ context.Context) { s.reloads++ }

type testEnv struct {
	router *gin.Engine
	engine *services.SessionService
	rc     *stubControl
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	engine := services.NewSessionService(db, stubPipeline{ans: rag.Answer{
		Text:    "Jawaban uji",
		Status:  rag.StatusActive,
		Sources: []rag.Snippet{{Content: "konteks", Score: 0.9}},
	}})
	engine.MaxMessageRunes = 2000

	rc := &stubControl{status: rag.StatusActive}
	h := New(engine, services.NewComicService(db), services.NewFeedbackService(db), rc)

	r := gin.New()
	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/current", h.GetCurrentSession)
	r.POST("/sessions/start", h.StartSession)
	r.POST("/sessions/status", h.SetSessionStatus)
	r.GET("/sessions/:id/answers/:question_id", h.GetSavedAnswer)
	r.GET("/sessions/:id/messages", h.GetSessionMessages)
	r.POST("/sessions/message", h.PostSessionMessage)
	r.POST("/sessions/answers", h.SubmitAnswer)
	r.POST("/sessions/complete-activity", h.CompleteActivity)
	r.GET("/sessions/:id/activities/:activity_id/history", h.GetActivityHistory)
	r.GET("/sessions/:id/overview", h.GetSessionOverview)
	r.POST("/ask", h.Ask)
	r.POST("/rag/reload", h.ReloadRetriever)
	r.GET("/comic-progress", h.GetComicProgress)
	r.POST("/comic-progress", h.PostComicProgress)
	r.POST("/comic-progress/finish", h.FinishComic)
	r.GET("/feedback", h.ListFeedback)
	r.POST("/feedback", h.SubmitFeedback)

	return &testEnv{router: r, engine: engine, rc: rc}
}

func doJSON(t *testing.T, r *gin.Engine, method, path, user string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestStartSession_CreatedThenResumed(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-1"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[StartSessionResponse](t, w)
	if !resp.Created {
		t.Fatal("expected created=true on first start")
	}
	if resp.Session.CurrentActivity != flow.EntryID {
		t.Fatalf("current activity = %q, want %q", resp.Session.CurrentActivity, flow.EntryID)
	}

	w = doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-1"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("resume status = %d", w.Code)
	}
	resp = decode[StartSessionResponse](t, w)
	if resp.Created {
		t.Fatal("expected created=false on resume")
	}
}

func TestStartSession_EmptyBodyAllowed(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/sessions/start", nil)
	req.Header.Set("X-User-ID", "siswa-1")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestStartSession_UnknownActivity(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-1", InitialActivity: "kegiatan_99"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[ErrorResponse](t, w)
	if resp.Code != ErrCodeBadRequest {
		t.Fatalf("code = %q", resp.Code)
	}
}

func TestServerErrors_HideInternalDetail(t *testing.T) {
	env := newTestEnv(t)

	// Closing the pool makes every persistence call fail with driver text
	// that must never reach the client.
	sqlDB, err := env.engine.DB.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	_ = sqlDB.Close()

	w := doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-rusak"}, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[ErrorResponse](t, w)
	if resp.Code != ErrCodeCreateFailed {
		t.Fatalf("code = %q", resp.Code)
	}
	if resp.Message != msgServerError {
		t.Fatalf("message = %q, want the fixed apology", resp.Message)
	}
	if strings.Contains(w.Body.String(), "database is closed") {
		t.Fatalf("driver detail leaked: %s", w.Body.String())
	}
}

func TestPostSessionMessage_GeneratedReply(t *testing.T) {
	env := newTestEnv(t)
	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-1"}, nil)

	w := doJSON(t, env.router, http.MethodPost, "/sessions/message", "siswa-1",
		SessionMessageRequest{SessionID: "sesi-1", Message: "Apa itu ekoenzim?"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[SessionMessageResponse](t, w)
	if resp.Role != "assistant" {
		t.Fatalf("expected assistant reply, got %+v", resp)
	}
	if resp.Response != "Jawaban uji" {
		t.Fatalf("response = %q", resp.Response)
	}
	if resp.MessageID == "" || resp.SessionID == "" || resp.Timestamp.IsZero() {
		t.Fatalf("incomplete envelope: %+v", resp)
	}
}

func TestPostSessionMessage_KeywordNavigation(t *testing.T) {
	env := newTestEnv(t)
	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-1"}, nil)

	w := doJSON(t, env.router, http.MethodPost, "/sessions/message", "siswa-1",
		SessionMessageRequest{SessionID: "sesi-1", Message: "lanjut"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[SessionMessageResponse](t, w)
	if resp.ActivityID != "kimia_hijau" {
		t.Fatalf("activity = %q, want kimia_hijau", resp.ActivityID)
	}
}

func TestPostSessionMessage_Validation(t *testing.T) {
	env := newTestEnv(t)
	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-1"}, nil)

	cases := []struct {
		name string
		req  SessionMessageRequest
		want int
	}{
		{"missing message", SessionMessageRequest{SessionID: "sesi-1"}, http.StatusBadRequest},
		{"unknown session", SessionMessageRequest{SessionID: "tidak-ada", Message: "halo"}, http.StatusNotFound},
		{"unknown activity", SessionMessageRequest{SessionID: "sesi-1", Message: "halo", ActivityID: "bogus"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, env.router, http.MethodPost, "/sessions/message", "siswa-1", tc.req, nil)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestPostSessionMessage_IdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-1"}, nil)

	hdr := map[string]string{"Idempotency-Key": "turn-1"}
	body := SessionMessageRequest{SessionID: "sesi-1", Message: "Apa itu ekoenzim?"}

	w1 := doJSON(t, env.router, http.MethodPost, "/sessions/message", "siswa-1", body, hdr)
	if w1.Code != http.StatusOK {
		t.Fatalf("first status = %d", w1.Code)
	}
	first := decode[SessionMessageResponse](t, w1)

	w2 := doJSON(t, env.router, http.MethodPost, "/sessions/message", "siswa-1", body, hdr)
	if w2.Code != http.StatusOK {
		t.Fatalf("replay status = %d", w2.Code)
	}
	if w2.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatal("expected Idempotency-Replayed header on second call")
	}
	second := decode[SessionMessageResponse](t, w2)
	if second.MessageID != first.MessageID {
		t.Fatalf("replay returned different message: %q vs %q", second.MessageID, first.MessageID)
	}
}

func TestSubmitAnswer_CreatedThenUpdated(t *testing.T) {
	env := newTestEnv(t)
	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-1"}, nil)

	req := SubmitAnswerRequest{
		SessionID:  "sesi-1",
		ActivityID: "kegiatan_1",
		Question:   services.QuestionData{ID: "k1-q1", Text: "Apa pendapatmu?"},
		AnswerText: "Menurut saya bagus.",
	}

	w := doJSON(t, env.router, http.MethodPost, "/sessions/answers", "siswa-1", req, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[SubmitAnswerResponse](t, w)
	if resp.Action != repo.AnswerCreated {
		t.Fatalf("action = %q", resp.Action)
	}
	if resp.Progress == nil || resp.Progress.TotalAnswers != 1 {
		t.Fatalf("progress = %+v", resp.Progress)
	}

	req.AnswerText = "Jawaban revisi."
	w = doJSON(t, env.router, http.MethodPost, "/sessions/answers", "siswa-1", req, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("resubmit status = %d", w.Code)
	}
	resp = decode[SubmitAnswerResponse](t, w)
	if resp.Action != repo.AnswerUpdated {
		t.Fatalf("resubmit action = %q", resp.Action)
	}
	if resp.Progress.TotalAnswers != 1 {
		t.Fatalf("resubmit total answers = %d, want 1", resp.Progress.TotalAnswers)
	}
}

func TestSubmitAnswer_Validation(t *testing.T) {
	env := newTestEnv(t)
	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-1"}, nil)

	w := doJSON(t, env.router, http.MethodPost, "/sessions/answers", "siswa-1",
		SubmitAnswerRequest{SessionID: "sesi-1", ActivityID: "kegiatan_1", AnswerText: "x", AnswerType: "haiku"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid type status = %d", w.Code)
	}

	w = doJSON(t, env.router, http.MethodPost, "/sessions/answers", "siswa-1",
		SubmitAnswerRequest{SessionID: "hilang", ActivityID: "kegiatan_1", AnswerText: "x"}, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing session status = %d", w.Code)
	}
}

func TestCompleteActivity_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-1"}, nil)

	body := CompleteActivityRequest{SessionID: "sesi-1", ActivityID: "pendahuluan"}
	w := doJSON(t, env.router, http.MethodPost, "/sessions/complete-activity", "siswa-1", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	w = doJSON(t, env.router, http.MethodPost, "/sessions/complete-activity", "siswa-1", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("repeat status = %d", w.Code)
	}
}

func TestGetActivityHistory(t *testing.T) {
	env := newTestEnv(t)
	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-1"}, nil)
	doJSON(t, env.router, http.MethodPost, "/sessions/message", "siswa-1",
		SessionMessageRequest{SessionID: "sesi-1", Message: "Halo"}, nil)

	w := doJSON(t, env.router, http.MethodGet, "/sessions/sesi-1/activities/pendahuluan/history", "siswa-1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[ActivityHistoryResponse](t, w)
	if resp.ActivityID != "pendahuluan" {
		t.Fatalf("activity = %q", resp.ActivityID)
	}
	// Opening seed + learner turn + assistant reply all live in pendahuluan.
	if len(resp.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(resp.Messages))
	}
}

func TestGetSessionOverview(t *testing.T) {
	env := newTestEnv(t)
	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-1"}, nil)

	w := doJSON(t, env.router, http.MethodGet, "/sessions/sesi-1/overview", "siswa-1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[SessionOverviewResponse](t, w)
	if len(resp.Activities) != len(flow.All()) {
		t.Fatalf("rows = %d, want %d", len(resp.Activities), len(flow.All()))
	}

	w = doJSON(t, env.router, http.MethodGet, "/sessions/hilang/overview", "siswa-1", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing session status = %d", w.Code)
	}
}

func TestGetSessionOverview_ETag(t *testing.T) {
	env := newTestEnv(t)
	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-1"}, nil)

	w := doJSON(t, env.router, http.MethodGet, "/sessions/sesi-1/overview", "siswa-1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag header")
	}

	// Replay with If-None-Match and expect 304.
	w = doJSON(t, env.router, http.MethodGet, "/sessions/sesi-1/overview", "siswa-1", nil,
		map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", w.Code)
	}

	// A stale tag gets the full body back.
	w = doJSON(t, env.router, http.MethodGet, "/sessions/sesi-1/overview", "siswa-1", nil,
		map[string]string{"If-None-Match": `W/"overview:stale"`})
	if w.Code != http.StatusOK {
		t.Fatalf("status with stale tag = %d, want 200", w.Code)
	}
}

func TestSetSessionStatus_Transitions(t *testing.T) {
	env := newTestEnv(t)
	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-1"}, nil)

	w := doJSON(t, env.router, http.MethodPost, "/sessions/status", "siswa-1",
		SessionStatusRequest{SessionID: "sesi-1", Status: "paused"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pause status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[SessionStatusResponse](t, w)
	if resp.Session.Status != "paused" {
		t.Fatalf("status = %q, want paused", resp.Session.Status)
	}

	w = doJSON(t, env.router, http.MethodPost, "/sessions/status", "siswa-1",
		SessionStatusRequest{SessionID: "sesi-1", Status: "completed"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("complete status = %d", w.Code)
	}
	resp = decode[SessionStatusResponse](t, w)
	if resp.Session.Status != "completed" || resp.Session.CompletedAt == nil {
		t.Fatalf("completion not stamped: %+v", resp.Session)
	}
	firstCompleted := *resp.Session.CompletedAt

	// Completed is terminal and keeps the first timestamp.
	w = doJSON(t, env.router, http.MethodPost, "/sessions/status", "siswa-1",
		SessionStatusRequest{SessionID: "sesi-1", Status: "completed"}, nil)
	resp = decode[SessionStatusResponse](t, w)
	if !resp.Session.CompletedAt.Equal(firstCompleted) {
		t.Fatalf("CompletedAt changed on repeat: %v -> %v", firstCompleted, resp.Session.CompletedAt)
	}
	w = doJSON(t, env.router, http.MethodPost, "/sessions/status", "siswa-1",
		SessionStatusRequest{SessionID: "sesi-1", Status: "active"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("reopen status = %d, want 400", w.Code)
	}

	w = doJSON(t, env.router, http.MethodPost, "/sessions/status", "siswa-1",
		SessionStatusRequest{SessionID: "sesi-1", Status: "hibernating"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown status = %d, want 400", w.Code)
	}
	w = doJSON(t, env.router, http.MethodPost, "/sessions/status", "siswa-1",
		SessionStatusRequest{SessionID: "sesi-hilang", Status: "paused"}, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing session status = %d, want 404", w.Code)
	}
}

func TestGetCurrentSession_CanonicalIsMostRecent(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.router, http.MethodGet, "/sessions/current", "siswa-1", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("empty status = %d, want 404", w.Code)
	}

	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-lama"}, nil)
	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-baru"}, nil)
	// The later interaction makes the older session canonical again.
	doJSON(t, env.router, http.MethodPost, "/sessions/message", "siswa-1",
		SessionMessageRequest{SessionID: "sesi-lama", Message: "halo"}, nil)

	w = doJSON(t, env.router, http.MethodGet, "/sessions/current", "siswa-1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[CurrentSessionResponse](t, w)
	if resp.Session == nil || resp.Session.SessionID != "sesi-lama" {
		t.Fatalf("canonical session = %+v, want sesi-lama", resp.Session)
	}
	if resp.Progress == nil || resp.Progress.SessionID != resp.Session.ID {
		t.Fatalf("progress = %+v", resp.Progress)
	}
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t)
	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-1"}, nil)
	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-2"}, nil)
	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-2",
		StartSessionRequest{SessionID: "sesi-x"}, nil)

	w := doJSON(t, env.router, http.MethodGet, "/sessions", "siswa-1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[SessionListResponse](t, w)
	if len(resp.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(resp.Sessions))
	}
}

func TestGetSessionMessages_Paginated(t *testing.T) {
	env := newTestEnv(t)
	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-1"}, nil)
	doJSON(t, env.router, http.MethodPost, "/sessions/message", "siswa-1",
		SessionMessageRequest{SessionID: "sesi-1", Message: "Apa itu ekoenzim?"}, nil)

	// Opening message + learner turn + assistant reply = 3 rows.
	w := doJSON(t, env.router, http.MethodGet, "/sessions/sesi-1/messages?page=1&page_size=2", "siswa-1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	page1 := decode[TranscriptResponse](t, w)
	if page1.Total != 3 || len(page1.Messages) != 2 {
		t.Fatalf("total = %d, page len = %d", page1.Total, len(page1.Messages))
	}
	if page1.Messages[0].Seq != 1 || page1.Messages[1].Seq != 2 {
		t.Fatalf("page not in sequence order: %d, %d", page1.Messages[0].Seq, page1.Messages[1].Seq)
	}

	w = doJSON(t, env.router, http.MethodGet, "/sessions/sesi-1/messages?page=2&page_size=2", "siswa-1", nil, nil)
	page2 := decode[TranscriptResponse](t, w)
	if len(page2.Messages) != 1 || page2.Messages[0].Seq != 3 {
		t.Fatalf("second page = %+v", page2.Messages)
	}

	w = doJSON(t, env.router, http.MethodGet, "/sessions/sesi-hilang/messages", "siswa-1", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing session status = %d, want 404", w.Code)
	}
}

func TestGetSavedAnswer(t *testing.T) {
	env := newTestEnv(t)
	doJSON(t, env.router, http.MethodPost, "/sessions/start", "siswa-1",
		StartSessionRequest{SessionID: "sesi-1"}, nil)
	doJSON(t, env.router, http.MethodPost, "/sessions/answers", "siswa-1",
		SubmitAnswerRequest{
			SessionID:  "sesi-1",
			ActivityID: "kegiatan_1",
			Question:   services.QuestionData{ID: "q_kegiatan_1"},
			AnswerText: "Jawaban pertama.",
		}, nil)

	w := doJSON(t, env.router, http.MethodGet, "/sessions/sesi-1/answers/q_kegiatan_1", "siswa-1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	rec := decode[domain.AnswerRecord](t, w)
	if rec.AnswerText != "Jawaban pertama." || rec.QuestionID != "q_kegiatan_1" {
		t.Fatalf("record = %+v", rec)
	}

	w = doJSON(t, env.router, http.MethodGet, "/sessions/sesi-1/answers/q_tidak_ada", "siswa-1", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unanswered question status = %d, want 404", w.Code)
	}
}

func TestAsk(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.router, http.MethodPost, "/ask", "siswa-1",
		AskRequest{Question: "Apa itu kimia hijau?"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[AskResponse](t, w)
	if resp.Answer != "Jawaban uji" {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if resp.Status != rag.StatusActive || len(resp.Sources) != 1 || resp.SourcesCount != 1 {
		t.Fatalf("status = %q, sources = %d, count = %d", resp.Status, len(resp.Sources), resp.SourcesCount)
	}
	// Wire names clients key on.
	raw := decode[map[string]any](t, w)
	if _, ok := raw["sources_count"]; !ok {
		t.Fatal("missing sources_count field")
	}
	if _, ok := raw["rag_system_status"]; !ok {
		t.Fatal("missing rag_system_status field")
	}

	w = doJSON(t, env.router, http.MethodPost, "/ask", "siswa-1", AskRequest{Question: "   "}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank question status = %d", w.Code)
	}
}

func TestReloadRetriever(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.router, http.MethodPost, "/rag/reload", "", nil, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	if env.rc.reloads != 1 {
		t.Fatalf("reloads = %d, want 1", env.rc.reloads)
	}
}

func TestComicProgress_PageAndFinish(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.router, http.MethodPost, "/comic-progress", "siswa-1",
		ComicPageRequest{ComicSlug: "petualangan-eco", EpisodeSlug: "episode-1", Page: 1}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("record status = %d, body = %s", w.Code, w.Body.String())
	}

	// One page is below the finish threshold.
	w = doJSON(t, env.router, http.MethodPost, "/comic-progress/finish", "siswa-1",
		ComicFinishRequest{ComicSlug: "petualangan-eco", EpisodeSlug: "episode-1"}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("early finish status = %d", w.Code)
	}
	errResp := decode[ErrorResponse](t, w)
	if errResp.Code != ErrCodeBelowThreshold {
		t.Fatalf("code = %q", errResp.Code)
	}

	doJSON(t, env.router, http.MethodPost, "/comic-progress", "siswa-1",
		ComicPageRequest{ComicSlug: "petualangan-eco", EpisodeSlug: "episode-1", Page: 8}, nil)
	w = doJSON(t, env.router, http.MethodPost, "/comic-progress/finish", "siswa-1",
		ComicFinishRequest{ComicSlug: "petualangan-eco", EpisodeSlug: "episode-1"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("finish status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, env.router, http.MethodGet, "/comic-progress?comic=petualangan-eco", "siswa-1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	list := decode[ComicProgressResponse](t, w)
	if len(list.Episodes) != 1 || !list.Episodes[0].Finish {
		t.Fatalf("episodes = %+v", list.Episodes)
	}
}

func TestComicProgress_MissingComicParam(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.router, http.MethodGet, "/comic-progress", "siswa-1", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestFeedback_SubmitAndList(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.router, http.MethodPost, "/feedback", "",
		SubmitFeedbackRequest{Name: "Siti", Message: "Komiknya seru!"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, env.router, http.MethodPost, "/feedback", "",
		SubmitFeedbackRequest{Message: "   "}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank submit status = %d", w.Code)
	}

	w = doJSON(t, env.router, http.MethodGet, "/feedback?limit=10", "", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	list := decode[ListFeedbackResponse](t, w)
	if len(list.Feedback) != 1 || list.Feedback[0].Message != "Komiknya seru!" {
		t.Fatalf("feedback = %+v", list.Feedback)
	}
}

func TestUserIDFallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if got := userID(c); got != "demo-user" {
		t.Fatalf("fallback = %q", got)
	}

	c.Request.Header.Set("X-User-ID", "siswa-9")
	if got := userID(c); got != "siswa-9" {
		t.Fatalf("header = %q", got)
	}

	c.Set("userID", "ctx-user")
	if got := userID(c); got != "ctx-user" {
		t.Fatalf("context = %q", got)
	}
}

func TestSanitizeContent(t *testing.T) {
	in := "baris satu\r\n\r\n\r\n\r\nbaris dua\r"
	got := sanitizeContent(in)
	want := "baris satu\n\nbaris dua"
	if got != want {
		t.Fatalf("sanitized = %q, want %q", got, want)
	}
}
