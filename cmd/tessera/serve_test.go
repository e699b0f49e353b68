package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/tessera/config"
	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/internal/logging"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.AccessSecret = "access-secret"
	cfg.RefreshSecret = "refresh-secret"
	cfg.BcryptCost = 4
	cfg.LoginRateLimitRPS = 0
	cfg.Bootstrap = []config.Seed{{Key: "admin", Secret: "pw", Role: "Admin", Balance: "10"}}
	return cfg
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func loginAsAdmin(t *testing.T, router *gin.Engine) map[string]any {
	t.Helper()
	rec := postJSON(t, router, "/login", map[string]string{"email": "admin", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewAppInMemory(t *testing.T) {
	gin.SetMode(gin.TestMode)

	a, err := newApp(context.Background(), testConfig(), logging.NopLogger{}, prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.close()

	tokens := loginAsAdmin(t, a.router)

	req := httptest.NewRequest(http.MethodGet, "/api/admin", nil)
	req.Header.Set("Authorization", "Bearer "+tokens["accessToken"].(string))
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewAppWithRedis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	a, err := newApp(context.Background(), cfg, logging.NopLogger{}, prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.close()

	loginAsAdmin(t, a.router)

	ledgerKeys := 0
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "tessera:ledger:") {
			ledgerKeys++
		}
	}
	assert.Equal(t, 1, ledgerKeys)
}

func TestNewAppRejectsUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig()
	cfg.RedisURL = "redis://" + addr

	_, err := newApp(context.Background(), cfg, logging.NopLogger{}, prometheus.NewRegistry())
	assert.Error(t, err)
}

func TestToSeeds(t *testing.T) {
	seeds, err := toSeeds([]config.Seed{
		{Key: "a", Secret: "x", Role: "Moderator", Balance: "2.5"},
		{Key: "b", Secret: "y"},
	})
	require.NoError(t, err)
	require.Len(t, seeds, 2)
	assert.Equal(t, core.RoleModerator, seeds[0].Role)
	assert.Equal(t, "2.5", seeds[0].Balance.String())
	assert.True(t, seeds[1].Balance.IsZero())

	_, err = toSeeds([]config.Seed{{Key: "c", Secret: "z", Balance: "many"}})
	assert.Error(t, err)
}

func TestServeCommandValidatesConfig(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "")
	t.Setenv("REFRESH_TOKEN_SECRET", "")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
