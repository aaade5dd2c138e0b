package webhooks

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"ai-call-gateway/internal/audit"
	"ai-call-gateway/internal/session"
)

func newTestRouter(d *Dispatcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/telnyx", Handler{Dispatcher: d}.HandleProviderEvent)
	return r
}

func TestHandleProviderEvent_Acknowledges(t *testing.T) {
	store := session.NewMemoryStore()
	newTestSession(t, store, "sess-1", session.StatusInProgress)
	r := newTestRouter(newDispatcher(store))

	body := eventBody(t, "call.hangup", "sess-1", func(p map[string]any) {
		p["call_duration"] = 42
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx", strings.NewReader(string(body)))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"received":true`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	s, _ := store.Get(req.Context(), "sess-1")
	if s.Status != session.StatusCompleted || s.DurationSeconds != 42 {
		t.Fatalf("expected completed with duration 42, got %+v", s)
	}
}

func TestHandleProviderEvent_BadBody(t *testing.T) {
	r := newTestRouter(newDispatcher(session.NewMemoryStore()))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx", strings.NewReader("not json"))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleProviderEvent_EnforcedVerification(t *testing.T) {
	store := session.NewMemoryStore()
	newTestSession(t, store, "sess-1", session.StatusInProgress)
	d := NewDispatcher(store, audit.NewService(audit.NewMemoryRepo()), failingVerifier{}, VerifyPolicyEnforce)
	r := newTestRouter(d)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx",
		strings.NewReader(string(eventBody(t, "call.hangup", "sess-1", nil))))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
