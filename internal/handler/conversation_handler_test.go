package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ClareAI/astra-sales-engine/internal/engine"
	"github.com/ClareAI/astra-sales-engine/internal/services/conversation"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() *mux.Router {
	eng := engine.NewEngine(nil, nil, engine.DefaultOptions())
	service := conversation.NewService(eng, nil, nil, "pod-test", 100, time.Minute)
	h := NewConversationHandler(service)

	router := mux.NewRouter()
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.HandleFunc("/api/v1/conversations/{contactId}/messages", h.ProcessMessage).Methods("POST")
	router.HandleFunc("/api/v1/conversations/{contactId}/progress", h.Progress).Methods("GET")
	router.HandleFunc("/api/v1/conversations/{contactId}/snapshot", h.Snapshot).Methods("GET")
	router.HandleFunc("/api/v1/conversations/{contactId}/archetype", h.OverrideArchetype).Methods("POST")
	return router
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProcessMessageEndpoint(t *testing.T) {
	router := newTestRouter()

	body := strings.NewReader(`{"message":"Oi"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/conversations/lead-1/messages", body))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp engine.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, engine.StageConversation, resp.Stage)
	assert.Equal(t, "situation", resp.SpinStage)
	assert.NotEmpty(t, resp.Message)
}

func TestProcessMessageEndpointRejectsEmptyBody(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/conversations/lead-1/messages",
		strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProgressEndpoint(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/conversations/lead-2/progress", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var progress engine.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	assert.Equal(t, "discovery", progress.Phase)
	assert.Equal(t, 0, progress.OverallPercent)
}

func TestSnapshotEndpoint(t *testing.T) {
	router := newTestRouter()

	body := strings.NewReader(`{"message":"hoje tudo vem de indicação"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/conversations/lead-3/messages", body))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/conversations/lead-3/snapshot", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap engine.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "lead-3", snap.ContactID)
	assert.Equal(t, 1, snap.Turn)
	assert.Equal(t, "indicacao", snap.BantData["need_caminho_orcamento"])
}

func TestOverrideArchetypeEndpoint(t *testing.T) {
	router := newTestRouter()

	body := strings.NewReader(`{"archetype":"cetico"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/conversations/lead-4/archetype", body))

	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.DetectionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "cetico", string(result.Archetype))
	assert.Equal(t, 100, result.Confidence)
}

func TestOverrideArchetypeEndpointRejectsUnknown(t *testing.T) {
	router := newTestRouter()

	body := strings.NewReader(`{"archetype":"persona que não existe"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/conversations/lead-5/archetype", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOverrideArchetypeEndpointRequiresName(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/conversations/lead-6/archetype",
		strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
