package www

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/icodeforyou/priceplan-go/config"
	"github.com/icodeforyou/priceplan-go/database"
	"github.com/icodeforyou/priceplan-go/decimal"
	"github.com/icodeforyou/priceplan-go/pricing"
	"github.com/icodeforyou/priceplan-go/readings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeReadings = `[
	{"time": "2024-04-26T00:00:10Z", "reading": 10},
	{"time": "2024-04-26T00:00:20Z", "reading": 20},
	{"time": "2024-04-26T00:00:30Z", "reading": 30}
]`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cnfg := &config.AppConfig{}
	plans, err := cnfg.BuildPricePlans()
	require.NoError(t, err)
	accounts, err := cnfg.BuildAccounts(plans)
	require.NoError(t, err)

	opts := pricing.DefaultOptions()
	opts.AnnualizationFactor = decimal.NewFromInt64(180)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := readings.NewMemStore()
	engine, err := pricing.NewEngine(logger, store, plans, accounts, opts)
	require.NoError(t, err)

	return NewServer(logger, config.AppConfigApi{}, engine, store, nil, "test")
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func storeThree(t *testing.T, h http.Handler, meter string) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/readings/store",
		`{"smartMeterId": "`+meter+`", "electricityReadings": `+threeReadings+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestStoreAndReadReadings(t *testing.T) {
	h := newTestServer(t).Handler()
	storeThree(t, h, "alice")

	rec := do(t, h, http.MethodGet, "/readings/read/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, threeReadings, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = do(t, h, http.MethodGet, "/readings/read/nobody", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestStoreReadingsValidation(t *testing.T) {
	h := newTestServer(t).Handler()

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing meter", `{"electricityReadings": ` + threeReadings + `}`},
		{"no readings", `{"smartMeterId": "m", "electricityReadings": []}`},
		{"negative reading", `{"smartMeterId": "m", "electricityReadings": [{"time": "2024-04-26T00:00:10Z", "reading": -1}]}`},
		{"missing reading", `{"smartMeterId": "m", "electricityReadings": [{"time": "2024-04-26T00:00:10Z"}]}`},
		{"bad time", `{"smartMeterId": "m", "electricityReadings": [{"time": "yesterday", "reading": 1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/readings/store", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body apiErrorJSON
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "invalid_argument", body.Code)
			assert.Equal(t, rec.Header().Get("X-Request-Id"), body.RequestID)
		})
	}

	// Nothing of a rejected batch is stored.
	rec := do(t, h, http.MethodGet, "/readings/read/m", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCompareAll(t *testing.T) {
	h := newTestServer(t).Handler()
	storeThree(t, h, "bob")
	storeThree(t, h, "smart-meter-1")

	t.Run("unregistered meter has no current plan", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/price-plans/compare-all/bob", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{
			"pricePlanComparisons": {"price-plan-0": 36000, "price-plan-1": 7200, "price-plan-2": 3600},
			"pricePlanId": null
		}`, rec.Body.String())
	})

	t.Run("registered meter has no recommendation unless asked", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/price-plans/compare-all/smart-meter-1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{
			"pricePlanComparisons": {"price-plan-0": 36000, "price-plan-1": 7200, "price-plan-2": 3600},
			"pricePlanId": null,
			"currentPricePlanId": "price-plan-1"
		}`, rec.Body.String())
	})

	t.Run("recommend fills in the cheapest plan", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/price-plans/compare-all/smart-meter-1?recommend=true", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var body compareAllResponseJSON
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.NotNil(t, body.PricePlanID)
		assert.Equal(t, "price-plan-2", *body.PricePlanID)
		require.NotNil(t, body.CurrentPricePlanID)
		assert.Equal(t, "price-plan-1", *body.CurrentPricePlanID)
	})

	t.Run("whole costs are written without decimals", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/price-plans/compare-all/bob", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"price-plan-0":36000,`)
		assert.NotContains(t, rec.Body.String(), "36000.00")
	})

	t.Run("no readings", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/price-plans/compare-all/nobody", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), `"no_readings"`)
	})
}

func TestRecommend(t *testing.T) {
	h := newTestServer(t).Handler()
	storeThree(t, h, "jane")

	tests := []struct {
		query string
		code  int
		want  string
	}{
		{"?limit=2", http.StatusOK, `[{"price-plan-2": 3600}, {"price-plan-1": 7200}]`},
		{"", http.StatusOK, `[{"price-plan-2": 3600}, {"price-plan-1": 7200}, {"price-plan-0": 36000}]`},
		{"?limit=10", http.StatusOK, `[{"price-plan-2": 3600}, {"price-plan-1": 7200}, {"price-plan-0": 36000}]`},
		{"?limit=0", http.StatusBadRequest, ""},
		{"?limit=-1", http.StatusBadRequest, ""},
		{"?limit=two", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/price-plans/recommend/jane"+tt.query, "")
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.want != "" {
				assert.JSONEq(t, tt.want, rec.Body.String())
			}
		})
	}

	rec := do(t, h, http.MethodGet, "/price-plans/recommend/nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/price-plans/recommend/jane?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `[{"price-plan-2":3600}]`, strings.TrimSpace(rec.Body.String()))

	rec = do(t, h, http.MethodGet, "/price-plans/recommend/jane?limit=0", "")
	var body apiErrorJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_argument", body.Code)
	assert.Contains(t, body.Message, "positive")
}

func TestPricePlansAndHealth(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := do(t, h, http.MethodGet, "/price-plans", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"id": "price-plan-0", "supplier": "Dr Evil's Dark Energy", "unitRate": 10},
		{"id": "price-plan-1", "supplier": "The Green Eco", "unitRate": 2},
		{"id": "price-plan-2", "supplier": "Power for Everyone", "unitRate": 1}
	]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok", "version": "test"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")

	rec = do(t, h, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/log", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebsocketPushesRecommendation(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/meters/jane"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.HasSubscribers("jane") }, 2*time.Second, 10*time.Millisecond)

	storeThree(t, s.Handler(), "jane")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"price-plan-2": 3600}, {"price-plan-1": 7200}, {"price-plan-0": 36000}]`, string(msg))
}

func TestLogEndpoint(t *testing.T) {
	ctx := context.Background()
	db, err := database.New(ctx, filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.SaveLogEntry(ctx, database.LogEntryRow{Timestamp: time.Now(), Level: int(slog.LevelInfo), Message: "hello"}))
	require.NoError(t, db.SaveLogEntry(ctx, database.LogEntryRow{Timestamp: time.Now(), Level: int(slog.LevelError), Message: "boom"}))

	cnfg := &config.AppConfig{}
	plans, err := cnfg.BuildPricePlans()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := pricing.NewEngine(logger, db, plans, nil, pricing.DefaultOptions())
	require.NoError(t, err)
	h := NewServer(logger, config.AppConfigApi{}, engine, db, db, "test").Handler()

	rec := do(t, h, http.MethodGet, "/log?level=error", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []logEntryJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].Message)
	assert.Equal(t, "ERROR", entries[0].Level)

	rec = do(t, h, http.MethodGet, "/log?q=HELLO", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0].Message)
}
