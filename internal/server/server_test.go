package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/triage/internal/model"
	"github.com/ppiankov/triage/internal/pipeline"
	"github.com/ppiankov/triage/internal/worker"
)

func testKB() *model.KnowledgeBase {
	return &model.KnowledgeBase{
		RedFlags: model.RedFlagSet{
			Rules:            []model.RedFlagRule{{Name: "cardiaco", Keywords: []string{"dolore al petto"}}},
			EmergencyMessage: "CALL 118",
		},
		Facilities: []model.Facility{
			{City: "ravenna", Name: "CAU Ravenna", Tag: "CAU", Type: model.FacilityUrgentCare, Address: "Via A", Hours: "9-20"},
			{City: "ravenna", Name: "PS Ravenna", Tag: "PS", Type: model.FacilityEmergency, Address: "Via B", Hours: "24h"},
		},
	}
}

func newTestServer(t *testing.T, limiter *worker.Limiter) (*Server, *pipeline.Pipeline) {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.LLM.Provider = ""

	p, err := pipeline.NewPipeline(cfg, testKB(), nil)
	require.NoError(t, err)
	return New(p, cfg.Server, limiter, nil), p
}

func postChat(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestChat_Emergency(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := postChat(t, s.Handler(), `{"message":"ho un forte dolore al petto","session_id":"abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[pipeline.Response](t, rec)
	assert.True(t, resp.Emergency)
	assert.Equal(t, "abc", resp.SessionID)
	assert.Contains(t, resp.Response, "CALL 118")
	assert.Equal(t, model.StageEmergency, resp.Stage)
}

func TestChat_GeneratesSessionID(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := postChat(t, s.Handler(), `{"message":"sono a Ravenna"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[pipeline.Response](t, rec)
	assert.Len(t, resp.SessionID, 36)
	assert.Equal(t, "ravenna", resp.City)
	assert.True(t, resp.Failed, "no provider configured")
}

func TestChat_BadRequests(t *testing.T) {
	s, _ := newTestServer(t, nil)

	for name, body := range map[string]string{
		"malformed": `{"message":`,
		"empty":     `{"message":"   "}`,
		"missing":   `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := postChat(t, s.Handler(), body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
		})
	}
}

func TestChat_ResetAndTranscript(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	require.Equal(t, http.StatusOK, postChat(t, h, `{"message":"sono a Ravenna","session_id":"s1"}`).Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/s1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	transcript := decode[TranscriptResponse](t, rec)
	assert.Len(t, transcript.Turns, 2)
	assert.Equal(t, "ravenna", transcript.LastKnownCity)

	rec = postChat(t, h, `{"reset":true,"session_id":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pipeline.ResetAcknowledgement, decode[pipeline.Response](t, rec).Response)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/s1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[TranscriptResponse](t, rec).Turns)
}

func TestDeleteSession(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	require.Equal(t, http.StatusOK, postChat(t, h, `{"message":"ciao","session_id":"gone"}`).Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/gone", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/gone", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChat_RateLimited(t *testing.T) {
	s, _ := newTestServer(t, worker.NewLimiter(0.001, 1, time.Minute))
	h := s.Handler()

	assert.Equal(t, http.StatusOK, postChat(t, h, `{"message":"ciao","session_id":"r1"}`).Code)

	rec := postChat(t, h, `{"message":"ancora","session_id":"r1"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, postChat(t, h, `{"message":"ciao","session_id":"r2"}`).Code, "sessions are limited independently")
}

type stubService struct {
	err      error
	deadline bool
}

func (s *stubService) Handle(ctx context.Context, sessionID string, req pipeline.Request) (pipeline.Response, error) {
	_, s.deadline = ctx.Deadline()
	if s.err != nil {
		return pipeline.Response{}, s.err
	}
	return pipeline.Response{Response: "ok", SessionID: sessionID}, nil
}

func (s *stubService) Conversation(string) (model.Conversation, bool) { return model.Conversation{}, false }
func (s *stubService) Forget(string) error { return s.err }

func TestChat_ServiceError(t *testing.T) {
	svc := &stubService{err: errors.New("store down")}
	s := New(svc, model.ServerConfig{}, nil, nil)

	rec := postChat(t, s.Handler(), `{"message":"ciao"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "store down")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChat_TurnTimeout(t *testing.T) {
	svc := &stubService{}
	New(svc, model.ServerConfig{TurnTimeout: time.Second}, nil, nil).Handler().ServeHTTP(
		httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"ciao"}`)))
	assert.True(t, svc.deadline)

	svc = &stubService{}
	postChat(t, New(svc, model.ServerConfig{}, nil, nil).Handler(), `{"message":"ciao"}`)
	assert.False(t, svc.deadline)
}

func TestCORS(t *testing.T) {
	s := New(&stubService{}, model.ServerConfig{AllowOrigins: []string{"https://app.example.it"}}, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://app.example.it")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.it", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRun_Shutdown(t *testing.T) {
	s := New(&stubService{}, model.ServerConfig{Addr: "127.0.0.1:0"}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
