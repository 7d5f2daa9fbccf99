package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"livechat-backend/internal/queue"
)

func TestSanitizePath(t *testing.T) {
	cases := map[string]string{
		"":                                        "/",
		"/":                                       "/",
		"/api/public/v1/ai-session":               "/api/public/v1/ai-session",
		"/api/ws/v1/sessions/chat_01HZX3":         "/api/ws/v1/sessions/:id",
		"/api/ws/v1/sessions/01HZX3K8Y2M4N5P6Q7R": "/api/ws/v1/sessions/:id",
		"/a/b/c/d/e/f/g/h":                        "/a/b/c/d/e/f/...",
	}
	for in, want := range cases {
		if got := sanitizePath(in); got != want {
			t.Fatalf("sanitizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHandlerAfterQueueShutdownReturnsUnavailable(t *testing.T) {
	rqm := queue.NewRequestQueueManager(1, 1)
	s := NewAPIServer(":0", rqm, Services{})

	h := s.MakeHTTPHandleFunc(func(w http.ResponseWriter, r *http.Request) error {
		return WriteJSON(w, http.StatusOK, map[string]string{"ok": "yes"})
	})
	rqm.Shutdown()

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body ApiError
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "unavailable" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestWriteErrorHidesUntypedErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("db password leaked"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body ApiError
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.Error != "Internal server error" || body.Code != "internal_error" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestRoutesRecoverFromPanics(t *testing.T) {
	rqm := queue.NewRequestQueueManager(1, 1)
	defer rqm.Shutdown()
	s := NewAPIServer(":panic-test", rqm, Services{}, func(mux *http.ServeMux, _ *APIServer) {
		mux.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
	})

	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
}
