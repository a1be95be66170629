package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSystemEngine() *gin.Engine {
	engine := gin.New()
	handler := NewSystemHandler()
	engine.GET("/system/info", handler.GetSystemInfo)
	engine.GET("/system/ping", handler.Ping)
	return engine
}

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	engine := newSystemEngine()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/system/info", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool               `json:"success"`
		Data    SystemInfoResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "Receivables API", body.Data.Name)
	assert.Equal(t, "1.0.0", body.Data.Version)
	assert.Equal(t, runtime.Version(), body.Data.GoVersion)
	assert.NotEmpty(t, body.Data.Uptime)
}

func TestSystemHandler_Ping(t *testing.T) {
	engine := newSystemEngine()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/system/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool         `json:"success"`
		Data    PingResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "pong", body.Data.Message)

	ts, err := time.Parse(time.RFC3339, body.Data.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)
}
