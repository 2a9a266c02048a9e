package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/advisor"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/automation"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/config"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/db"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/greenhouse"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/insights"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/rtdb"
)

type testEnv struct {
	store  *rtdb.MemoryStore
	feed   *insights.Feed
	server *Server
}

func testConfig() config.Config {
	return config.Config{Port: 0, DefaultLimit: 50, InsightCapacity: 10, Timezone: "UTC", CORSAllowedOrigins: []string{"*"}}
}

func newTestEnv(t *testing.T, cfg config.Config, model advisor.Model, history History) *testEnv {
	t.Helper()
	log := zap.NewNop()
	store := rtdb.NewMemoryStore()
	monitor := greenhouse.NewMonitor(store, log)
	monitor.Start()
	t.Cleanup(monitor.Stop)

	feed := insights.NewFeed(cfg.InsightCapacity)
	svc := automation.New(monitor, greenhouse.NewController(store, log, 0), feed, advisor.New(model, log), log, time.Second)
	return &testEnv{store: store, feed: feed, server: New(cfg, log, monitor, svc, history)}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.Engine().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthzAndDashboard(t *testing.T) {
	env := newTestEnv(t, testConfig(), advisor.Unavailable{}, nil)

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, env.store.Set(context.Background(), greenhouse.PathTemperature, 26.5))
	rec = env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AgriMind Dashboard")
	assert.Contains(t, rec.Body.String(), "26.5")
	assert.Contains(t, rec.Body.String(), "Soybean")
}

func TestState(t *testing.T) {
	env := newTestEnv(t, testConfig(), advisor.Unavailable{}, nil)
	require.NoError(t, env.store.Set(context.Background(), "sensors", map[string]any{"humidity": 70, "soilMoisture": 4095}))

	rec := env.do(t, http.MethodGet, "/api/v1/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v1", rec.Header().Get("X-API-Version"))

	data := decode(t, rec)["data"].(map[string]any)
	sensors := data["state"].(map[string]any)["sensors"].(map[string]any)
	assert.InDelta(t, 70.0, sensors["humidity"], 1e-9)
	assert.InDelta(t, 0.0, sensors["soilMoisturePercent"], 1e-9)
	assert.Equal(t, "Online", data["status"].(map[string]any)["label"])

	env.store.SetConnected(false)
	data = decode(t, env.do(t, http.MethodGet, "/api/v1/state", nil))["data"].(map[string]any)
	status := data["status"].(map[string]any)
	assert.Equal(t, "Offline", status["label"])
	assert.Equal(t, greenhouse.MsgConnectionLost, status["message"])
}

func TestToggle(t *testing.T) {
	env := newTestEnv(t, testConfig(), advisor.Unavailable{}, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/actuators/pump", map[string]bool{"on": true})
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, env.store.Set(context.Background(), greenhouse.PathRemoteControlEnabled, true))
	rec = env.do(t, http.MethodPost, "/api/v1/actuators/pump", map[string]bool{"on": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	snap, err := env.store.Get(context.Background(), greenhouse.PathPumpStatus)
	require.NoError(t, err)
	assert.True(t, snap.Bool())
	assert.Equal(t, "Manual: Water Pump turned ON", env.feed.List()[0].Message)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/v1/actuators/fan", map[string]bool{"on": true}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/actuators/bulb", map[string]string{"state": "on"}).Code)
}

func TestSetMode(t *testing.T) {
	env := newTestEnv(t, testConfig(), advisor.Unavailable{}, nil)

	rec := env.do(t, http.MethodPut, "/api/v1/actuators/bulb/mode", map[string]bool{"remote": true})
	require.Equal(t, http.StatusOK, rec.Code)

	snap, err := env.store.Get(context.Background(), greenhouse.PathRemoteBulbControl)
	require.NoError(t, err)
	assert.True(t, snap.Bool())
}

func TestAutomation(t *testing.T) {
	model := advisor.ModelFunc(func(_ context.Context, req advisor.Request) ([]byte, error) {
		if req.Name == "irrigation" {
			return []byte(`{"newPumpStatus": true, "reason": "Dry soil."}`), nil
		}
		return nil, errors.New("unavailable")
	})
	env := newTestEnv(t, testConfig(), model, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/automation/irrigation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, true, data["on"])
	assert.Equal(t, "Dry soil.", data["reason"])

	rec = env.do(t, http.MethodPost, "/api/v1/automation/climate", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, automation.MsgClimateFailed, env.feed.List()[0].Message)
}

type readOnlyStore struct {
	*rtdb.MemoryStore
}

func (readOnlyStore) Set(context.Context, string, any) error { return errors.New("store is read-only") }

func TestAutomation_WriteFailure(t *testing.T) {
	log := zap.NewNop()
	store := readOnlyStore{rtdb.NewMemoryStore()}
	monitor := greenhouse.NewMonitor(store, log)
	monitor.Start()
	defer monitor.Stop()

	model := advisor.ModelFunc(func(context.Context, advisor.Request) ([]byte, error) {
		return []byte(`{"newBulbStatus": true, "reason": "Conditions are mild."}`), nil
	})
	feed := insights.NewFeed(0)
	svc := automation.New(monitor, greenhouse.NewController(store, log, 0), feed, advisor.New(model, log), log, time.Second)
	env := &testEnv{feed: feed, server: New(testConfig(), log, monitor, svc, nil)}

	rec := env.do(t, http.MethodPost, "/api/v1/automation/climate", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to update Grow Light.", decode(t, rec)["error"])
	assert.Equal(t, "Failed to update Grow Light.", feed.List()[0].Message)
}

func TestCrops(t *testing.T) {
	env := newTestEnv(t, testConfig(), advisor.Unavailable{}, nil)

	data := decode(t, env.do(t, http.MethodGet, "/api/v1/crops", nil))["data"].([]any)
	assert.Len(t, data, len(advisor.Crops))

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/v1/crops/advice", map[string]string{"crop": "Durian"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/crops/advice", map[string]string{}).Code)
	assert.Equal(t, http.StatusBadGateway, env.do(t, http.MethodPost, "/api/v1/crops/advice", map[string]string{"crop": "Wheat"}).Code)
	assert.Equal(t, "Error: Failed to get AI recommendations for Wheat.", env.feed.List()[0].Message)
}

type fakeHistory struct {
	got     db.ReadingQuery
	pingErr error
}

func (f *fakeHistory) Ping(context.Context) error { return f.pingErr }

func (f *fakeHistory) FetchReadings(_ context.Context, q db.ReadingQuery) ([]db.Reading, error) {
	f.got = q
	return []db.Reading{{ID: 1, Temperature: 20}}, nil
}

func (f *fakeHistory) GetAverages(context.Context) (*db.AveragesResult, error) {
	v := 21.5
	return &db.AveragesResult{Temperature1h: &v}, nil
}

func TestReadings(t *testing.T) {
	env := newTestEnv(t, testConfig(), advisor.Unavailable{}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/api/v1/readings", nil).Code)

	h := &fakeHistory{}
	env = newTestEnv(t, testConfig(), advisor.Unavailable{}, h)

	rec := env.do(t, http.MethodGet, "/api/v1/readings?last_n=5&start=2024-01-01T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, h.got.Limit)
	require.NotNil(t, h.got.Since)
	assert.Nil(t, h.got.Until)
	assert.EqualValues(t, 1, decode(t, rec)["meta"].(map[string]any)["count"])

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/readings?last_n=-1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/readings?end=yesterday", nil).Code)

	rec = env.do(t, http.MethodGet, "/api/v1/readings/averages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 21.5, decode(t, rec)["data"].(map[string]any)["temperature_1h"], 1e-9)
}

func TestHealthzPingsDatabase(t *testing.T) {
	h := &fakeHistory{}
	env := newTestEnv(t, testConfig(), advisor.Unavailable{}, h)

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["database"])

	h.pingErr = errors.New("connection refused")
	rec = env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unreachable", decode(t, rec)["database"])
}

func TestBearerAuth(t *testing.T) {
	cfg := testConfig()
	cfg.BearerToken = "s3cret"
	env := newTestEnv(t, cfg, advisor.Unavailable{}, nil)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/v1/state", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/v1/state", nil, "Authorization", "Bearer nope").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/state", nil, "Authorization", "Bearer s3cret").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/state?access_token=s3cret", nil).Code)
}

func TestCORS(t *testing.T) {
	cfg := testConfig()
	cfg.CORSAllowedOrigins = []string{"http://farm.test"}
	env := newTestEnv(t, cfg, advisor.Unavailable{}, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/insights", nil, "Origin", "http://farm.test")
	assert.Equal(t, "http://farm.test", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = env.do(t, http.MethodGet, "/api/v1/insights", nil, "Origin", "http://evil.test")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
