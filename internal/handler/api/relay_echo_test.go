package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"CopyRelay/internal/domain/models"
	"CopyRelay/internal/service/ratelimit"
	"CopyRelay/internal/usecase"
	applogger "CopyRelay/pkg/logger"
	"CopyRelay/pkg/metrics"

	"github.com/labstack/echo/v4"
)

const testAPIKey = "secret_test_key"

// One recorder per test binary; prometheus rejects duplicate registration.
var testRecorder = metrics.New()

func newTestServer(t *testing.T) (*echo.Echo, *RelayHandler) {
	t.Helper()
	logger, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	h := NewRelayHandler(RelayConfig{
		Logger:   logger,
		Registry: usecase.NewRegistry(),
		Signals:  usecase.NewSignalLog(0),
		Recorder: testRecorder,
		APIKey:   testAPIKey,
	})
	e := echo.New()
	h.RegisterRoutes(e)
	return e, h
}

func doJSON(e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestSignalRejectsBadAPIKey(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/signal", `{"action":"BUY"}`, map[string]string{"x-api-key": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	body := decodeMap(t, rec)
	if body["error"] != "Invalid API key" {
		t.Fatalf("error = %v", body["error"])
	}

	rec = doJSON(e, http.MethodPost, "/signal", `{"action":"BUY"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key status = %d, want 401", rec.Code)
	}
}

func TestSignalRateLimited(t *testing.T) {
	logger, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	h := NewRelayHandler(RelayConfig{
		Logger:       logger,
		Registry:     usecase.NewRegistry(),
		Signals:      usecase.NewSignalLog(0),
		Recorder:     testRecorder,
		Limiter:      ratelimit.New(),
		APIKey:       testAPIKey,
		RateCapacity: 1,
		RateRefill:   0,
	})
	e := echo.New()
	h.RegisterRoutes(e)
	auth := map[string]string{"x-api-key": testAPIKey}

	rec := doJSON(e, http.MethodPost, "/signal", `{"action":"BUY"}`, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("first signal status = %d", rec.Code)
	}
	rec = doJSON(e, http.MethodPost, "/signal", `{"action":"BUY"}`, auth)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second signal status = %d, want 429", rec.Code)
	}
	if decodeMap(t, rec)["error"] != "Rate limit exceeded" {
		t.Fatalf("body: %s", rec.Body.String())
	}
}

func TestSignalRejectsEmptyBody(t *testing.T) {
	e, _ := newTestServer(t)
	auth := map[string]string{"x-api-key": testAPIKey}

	for _, body := range []string{"", "{}", "null"} {
		rec := doJSON(e, http.MethodPost, "/signal", body, auth)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, rec.Code)
		}
		if got := decodeMap(t, rec); got["error"] != "No data provided" {
			t.Fatalf("body %q: error = %v", body, got["error"])
		}
	}
}

func TestSignalFlowWithMaster(t *testing.T) {
	e, h := newTestServer(t)
	auth := map[string]string{"x-api-key": testAPIKey}

	rec := doJSON(e, http.MethodPost, "/register",
		`{"account_id":"m1","name":"Master","is_master":true}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(e, http.MethodPost, "/signal",
		`{"action":"BUY","symbol":"XAUUSD","lot":0.1}`, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("signal status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeMap(t, rec)
	if body["status"] != "success" || body["message"] != "Signal processed" {
		t.Fatalf("unexpected body: %v", body)
	}
	id, _ := body["signal_id"].(string)
	if !strings.HasPrefix(id, "sig_") {
		t.Fatalf("signal_id = %q", id)
	}

	rec = doJSON(e, http.MethodGet, "/signals", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("signals status = %d", rec.Code)
	}
	var listing struct {
		Signals []map[string]interface{} `json:"signals"`
		Count   int                      `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if listing.Count != 1 || len(listing.Signals) != 1 {
		t.Fatalf("count = %d, signals = %d", listing.Count, len(listing.Signals))
	}
	sig := listing.Signals[0]
	if sig["action"] != "BUY" || sig["symbol"] != "XAUUSD" {
		t.Fatalf("trade fields not flattened: %v", sig)
	}
	if sig["master_account"] != "m1" {
		t.Fatalf("master_account = %v", sig["master_account"])
	}
	if sig["signal_id"] != id {
		t.Fatalf("signal_id = %v, want %v", sig["signal_id"], id)
	}
	if _, ok := sig["timestamp"].(float64); !ok {
		t.Fatalf("timestamp not numeric: %v", sig["timestamp"])
	}

	if h.cfg.Signals.Len() != 1 {
		t.Fatalf("log len = %d", h.cfg.Signals.Len())
	}
}

func TestSignalWithoutMasterUsesSentinel(t *testing.T) {
	e, _ := newTestServer(t)
	auth := map[string]string{"x-api-key": testAPIKey}

	rec := doJSON(e, http.MethodPost, "/signal", `{"action":"SELL"}`, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("signal status = %d", rec.Code)
	}

	rec = doJSON(e, http.MethodGet, "/signals", "", nil)
	var listing struct {
		Signals []map[string]interface{} `json:"signals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if listing.Signals[0]["master_account"] != models.NoMaster {
		t.Fatalf("master_account = %v", listing.Signals[0]["master_account"])
	}
}

func TestSignalsEmptyListIsArray(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/signals", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"signals":[]`) {
		t.Fatalf("empty list must serialize as [], got %s", rec.Body.String())
	}
}

func TestSignalsHoursWindow(t *testing.T) {
	e, _ := newTestServer(t)
	auth := map[string]string{"x-api-key": testAPIKey}
	doJSON(e, http.MethodPost, "/signal", `{"action":"BUY"}`, auth)

	// hours=0 puts the cutoff at now, after the publish instant.
	rec := doJSON(e, http.MethodGet, "/signals?hours=0", "", nil)
	var listing struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if listing.Count != 0 {
		t.Fatalf("count = %d, want 0", listing.Count)
	}

	// Unparseable hours falls back to the 24h default.
	rec = doJSON(e, http.MethodGet, "/signals?hours=bogus", "", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if listing.Count != 1 {
		t.Fatalf("count = %d, want 1", listing.Count)
	}
}

func TestRegisterRequiresAccountID(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/register", `{"name":"anon"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if _, ok := decodeMap(t, rec)["error"]; !ok {
		t.Fatalf("error body missing: %s", rec.Body.String())
	}
}

func TestRegisterAndMasterStatus(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/master/status", "", nil)
	body := decodeMap(t, rec)
	if body["has_master"] != false || body["master_account"] != nil {
		t.Fatalf("fresh server master status: %v", body)
	}

	rec = doJSON(e, http.MethodPost, "/register",
		`{"account_id":"m1","name":"Alpha","is_master":true,"equity":1000.5}`, nil)
	body = decodeMap(t, rec)
	if body["status"] != "success" || body["account_id"] != "m1" || body["is_master"] != true {
		t.Fatalf("register body: %v", body)
	}

	rec = doJSON(e, http.MethodGet, "/master/status", "", nil)
	body = decodeMap(t, rec)
	if body["has_master"] != true {
		t.Fatalf("has_master = %v", body["has_master"])
	}
	master, _ := body["master_account"].(map[string]interface{})
	if master["account_id"] != "m1" || master["equity"] != 1000.5 {
		t.Fatalf("master row: %v", master)
	}

	// A later master takes over.
	doJSON(e, http.MethodPost, "/register", `{"account_id":"m2","is_master":true}`, nil)
	rec = doJSON(e, http.MethodGet, "/master/status", "", nil)
	master, _ = decodeMap(t, rec)["master_account"].(map[string]interface{})
	if master["account_id"] != "m2" {
		t.Fatalf("master after takeover = %v", master["account_id"])
	}
}

func TestRegisterDefaultsName(t *testing.T) {
	e, _ := newTestServer(t)

	doJSON(e, http.MethodPost, "/register", `{"account_id":"s1"}`, nil)
	rec := doJSON(e, http.MethodGet, "/connected-accounts", "", nil)
	var resp struct {
		Accounts map[string]map[string]interface{} `json:"accounts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Accounts["s1"]["name"] != "Unknown" {
		t.Fatalf("name = %v", resp.Accounts["s1"]["name"])
	}
}

func TestConnectedAccountsSnapshot(t *testing.T) {
	e, _ := newTestServer(t)

	doJSON(e, http.MethodPost, "/register", `{"account_id":"m1","is_master":true}`, nil)
	doJSON(e, http.MethodPost, "/register", `{"account_id":"s1"}`, nil)

	for _, path := range []string{"/connected-accounts", "/debug/accounts"} {
		rec := doJSON(e, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
		body := decodeMap(t, rec)
		if body["total_count"] != float64(2) {
			t.Fatalf("%s total_count = %v", path, body["total_count"])
		}
		if body["master_account"] != "m1" {
			t.Fatalf("%s master_account = %v", path, body["master_account"])
		}
		if _, ok := body["timestamp"].(float64); !ok {
			t.Fatalf("%s timestamp missing", path)
		}
	}
}

func TestHeartbeatAcksUnknownAccount(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/heartbeat", `{"account_id":"ghost"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if decodeMap(t, rec)["status"] != "success" {
		t.Fatalf("body: %s", rec.Body.String())
	}

	rec = doJSON(e, http.MethodPost, "/heartbeat", `{}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing id status = %d, want 400", rec.Code)
	}
}

func TestHeartbeatUpdatesMetrics(t *testing.T) {
	e, _ := newTestServer(t)

	doJSON(e, http.MethodPost, "/register", `{"account_id":"s1","equity":100}`, nil)
	doJSON(e, http.MethodPost, "/heartbeat", `{"account_id":"s1","equity":250.5,"profit":12.5}`, nil)

	rec := doJSON(e, http.MethodGet, "/connected-accounts", "", nil)
	var resp struct {
		Accounts map[string]map[string]interface{} `json:"accounts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Accounts["s1"]["equity"] != 250.5 || resp.Accounts["s1"]["profit"] != 12.5 {
		t.Fatalf("heartbeat metrics not applied: %v", resp.Accounts["s1"])
	}
}

func TestDisconnectClearsMaster(t *testing.T) {
	e, _ := newTestServer(t)

	doJSON(e, http.MethodPost, "/register", `{"account_id":"m1","is_master":true}`, nil)
	rec := doJSON(e, http.MethodPost, "/disconnect", `{"account_id":"m1"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("disconnect status = %d", rec.Code)
	}

	body := decodeMap(t, doJSON(e, http.MethodGet, "/master/status", "", nil))
	if body["has_master"] != false {
		t.Fatalf("master survived disconnect: %v", body)
	}

	// Row is kept, marked disconnected.
	var resp struct {
		Accounts map[string]map[string]interface{} `json:"accounts"`
	}
	rec = doJSON(e, http.MethodGet, "/connected-accounts", "", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Accounts["m1"]["status"] != "disconnected" {
		t.Fatalf("status = %v", resp.Accounts["m1"]["status"])
	}

	// Unknown id is a no-op ack.
	rec = doJSON(e, http.MethodPost, "/disconnect", `{"account_id":"nobody"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown disconnect status = %d", rec.Code)
	}
}

func TestHealthReport(t *testing.T) {
	e, _ := newTestServer(t)
	auth := map[string]string{"x-api-key": testAPIKey}

	doJSON(e, http.MethodPost, "/register", `{"account_id":"m1","is_master":true}`, nil)
	doJSON(e, http.MethodPost, "/register", `{"account_id":"s1"}`, nil)
	doJSON(e, http.MethodPost, "/register", `{"account_id":"s2"}`, nil)
	doJSON(e, http.MethodPost, "/signal", `{"action":"BUY"}`, auth)

	rec := doJSON(e, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeMap(t, rec)
	if body["status"] != "healthy" {
		t.Fatalf("status = %v", body["status"])
	}
	if body["accounts_count"] != float64(3) || body["master_count"] != float64(1) || body["slave_count"] != float64(2) {
		t.Fatalf("counts: %v", body)
	}
	if body["signals_count"] != float64(1) || body["master_online"] != true {
		t.Fatalf("signal/master state: %v", body)
	}
}

func TestHomeBanner(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeMap(t, rec)
	if body["message"] != "Copy Trading Server is running" {
		t.Fatalf("banner: %v", body)
	}
}
