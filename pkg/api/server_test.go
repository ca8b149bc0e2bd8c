package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleweave/memoryd/pkg/channel"
	"github.com/taleweave/memoryd/pkg/sessionmanager"
	"github.com/taleweave/memoryd/pkg/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := storage.New(t.TempDir())
	require.NoError(t, err)
	ch := channel.New(time.Second)
	manager := sessionmanager.New(st, ch, sessionmanager.EngineDefaults{
		WindowCapacity: 4,
		WindowDelay:    1,
		HotMemorySize:  10,
		UseAgent:       false,
	}, true)
	return NewServer(manager, ch, st)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestLivenessNeverGated(t *testing.T) {
	s := newTestServer(t)
	s.manager.SetTavernModeActive(false)

	rec := doJSON(t, s, http.MethodGet, "/system/liveness", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
}

func TestInitializeThenStats(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/initialize", InitializeRequest{
		SessionID:     "sess-1",
		CharacterCard: CharacterCardDTO{Name: "Aria"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var initResp InitializeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &initResp))
	assert.Equal(t, "sess-1", initResp.SessionID)
	assert.Equal(t, 1, initResp.GraphStats.Nodes)

	statsRec := doJSON(t, s, http.MethodGet, "/sessions/sess-1/stats", nil)
	assert.Equal(t, http.StatusOK, statsRec.Code)
}

func TestInitializeIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	req := InitializeRequest{SessionID: "sess-2", CharacterCard: CharacterCardDTO{Name: "Borin"}}

	first := doJSON(t, s, http.MethodPost, "/initialize", req)
	require.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, s, http.MethodPost, "/initialize", req)
	require.Equal(t, http.StatusOK, second.Code)

	var resp InitializeResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, "session already initialized", resp.Message)
}

func TestUnknownSessionReturns404(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/sessions/missing/stats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestTavernGateRejectsPluginEndpoints mirrors spec scenario: with
// tavern_mode=false, plugin-facing endpoints return 403 (liveness staying
// available is covered by TestLivenessNeverGated).
func TestTavernGateRejectsPluginEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.manager.SetTavernModeActive(false)

	rec := doJSON(t, s, http.MethodGet, "/tavern/available_characters", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSetAndGetTavernMode(t *testing.T) {
	s := newTestServer(t)

	setRec := doJSON(t, s, http.MethodPost, "/system/tavern_mode", SetTavernModeRequest{Active: false})
	require.Equal(t, http.StatusOK, setRec.Code)

	getRec := doJSON(t, s, http.MethodGet, "/system/tavern_mode", nil)
	var resp TavernModeResponse
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &resp))
	assert.False(t, resp.Active)
}

func TestFullResetEndpoint(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, http.MethodPost, "/initialize", InitializeRequest{SessionID: "sess-3", CharacterCard: CharacterCardDTO{Name: "C"}})

	rec := doJSON(t, s, http.MethodPost, "/system/full_reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ResetCountsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.SessionsDropped)
}
