package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hzvision/cutvision/internal/api/websocket"
	"github.com/hzvision/cutvision/internal/config"
	"github.com/hzvision/cutvision/internal/supervisor"
	"github.com/hzvision/cutvision/internal/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{}
	sup := supervisor.New(cfg, &types.CameraMap{}, zap.NewNop(), supervisor.Options{})
	hub := websocket.NewHub(zap.NewNop())

	return NewServer(cfg, sup, zap.NewNop(), hub)
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(method, path, nil)
	s.router.ServeHTTP(recorder, request)
	return recorder
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	resp := doRequest(s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"status":"ok"`)
}

func TestSystemStatusWhileStopped(t *testing.T) {
	s := newTestServer(t)

	resp := doRequest(s, http.MethodGet, "/api/v1/system/status")
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Running     bool   `json:"running"`
		PLCState    string `json:"plc_state"`
		CameraCount int    `json:"camera_count"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.False(t, body.Running)
	require.Equal(t, "disconnected", body.PLCState)
	require.Zero(t, body.CameraCount)
}

func TestStartFailureReturnsServerError(t *testing.T) {
	// No PLC host configured, so the supervisor cannot bring up a transport.
	s := newTestServer(t)

	resp := doRequest(s, http.MethodPost, "/api/v1/system/start")
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.Contains(t, resp.Body.String(), "error")
}

func TestGetCameraValidation(t *testing.T) {
	s := newTestServer(t)

	resp := doRequest(s, http.MethodGet, "/api/v1/cameras/abc")
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(s, http.MethodGet, "/api/v1/cameras/42")
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	resp := doRequest(s, http.MethodOptions, "/api/v1/cameras")
	require.Equal(t, http.StatusNoContent, resp.Code)
	require.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
}
