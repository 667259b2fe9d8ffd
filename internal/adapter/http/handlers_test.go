package adapthttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	adapthttp "bmitracker/internal/adapter/http"
	"bmitracker/internal/adapter/memory"
	"bmitracker/internal/app"
	"bmitracker/internal/domain"
	"bmitracker/internal/metrics"
)

// ---------------------------------------------------------------------------
// Test-server helpers
// ---------------------------------------------------------------------------

type testEnv struct {
	ts      *httptest.Server
	db      *memory.DB
	metrics *metrics.Collector
}

type serverOption func(*adapthttp.Server)

func withoutAuth(u domain.User) serverOption {
	return func(s *adapthttp.Server) { s.WithoutAuth(u) }
}

func withForwardAuth() serverOption {
	return func(s *adapthttp.Server) { s.WithForwardAuth(true) }
}

func newTestEnv(t *testing.T, opts ...serverOption) *testEnv {
	t.Helper()
	return newTestEnvWithDB(t, memory.New(), opts...)
}

func newTestEnvWithDB(t *testing.T, db *memory.DB, opts ...serverOption) *testEnv {
	t.Helper()

	m := metrics.NewCollector("bmi_test")
	bmiSvc := app.NewBMIService(db, m)
	chartsSvc := app.NewChartsService(db)
	authSvc := app.NewAuthService(db, db.NewSessionRepo(), time.Hour)

	webDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(webDir, "index.html"), []byte("<html>bmi</html>"), 0o600); err != nil {
		t.Fatal(err)
	}

	srv := adapthttp.New(bmiSvc, chartsSvc, authSvc, webDir).WithMetrics(m)
	for _, opt := range opts {
		opt(srv)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, db: db, metrics: m}
}

// newAuthedEnv serves every request as a fixed, already-registered user.
func newAuthedEnv(t *testing.T) (*testEnv, domain.User) {
	t.Helper()
	db := memory.New()
	u, err := db.Create(t.Context(), "alice", "")
	if err != nil {
		t.Fatal(err)
	}
	return newTestEnvWithDB(t, db, withoutAuth(*u)), *u
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return m
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected %d, got %d (%s)", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, b)
	}
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

// ---------------------------------------------------------------------------
// Public endpoints
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/health", nil)
	expectStatus(t, resp, http.StatusOK)

	body := decodeBody(t, resp)
	if body["ok"] != true {
		t.Fatalf("expected ok=true, got %v", body["ok"])
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if resp.Header.Get("Cache-Control") != "no-store" {
		t.Errorf("expected no-store, got %q", resp.Header.Get("Cache-Control"))
	}
}

func TestHealthEndpointReportsFailedCheck(t *testing.T) {
	env := newTestEnv(t, func(s *adapthttp.Server) {
		s.WithHealthCheck(func(context.Context) error { return errors.New("dial tcp: connection refused") })
	})

	resp := env.do(t, http.MethodGet, "/api/health", nil)
	expectStatus(t, resp, http.StatusServiceUnavailable)
	body := decodeBody(t, resp)
	if body["ok"] != false {
		t.Fatalf("expected ok=false, got %v", body["ok"])
	}
	if strings.Contains(fmt.Sprint(body["error"]), "dial tcp") {
		t.Errorf("health response leaks the underlying error: %v", body["error"])
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/api/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("expected echoed request id, got %q", got)
	}
}

func TestConfigEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/config", nil)
	expectStatus(t, resp, http.StatusOK)
	if body := decodeBody(t, resp); body["sso_enabled"] != false {
		t.Fatalf("expected sso_enabled=false, got %v", body["sso_enabled"])
	}
}

func TestSSODisabled(t *testing.T) {
	env := newTestEnv(t)

	expectStatus(t, env.do(t, http.MethodGet, "/api/auth/sso/login", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/api/auth/sso/callback?state=x&code=y", nil), http.StatusNotFound)
}

func TestMethodNotAllowed(t *testing.T) {
	env, _ := newAuthedEnv(t)

	cases := []struct{ method, path string }{
		{http.MethodGet, "/api/bmi/records"},
		{http.MethodPost, "/api/health"},
		{http.MethodGet, "/api/auth/login"},
		{http.MethodDelete, "/api/bmi/history"},
	}
	for _, c := range cases {
		resp := env.do(t, c.method, c.path, nil)
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected 405, got %d", c.method, c.path, resp.StatusCode)
		}
	}
}

func TestUnknownAPIPathIs404(t *testing.T) {
	env := newTestEnv(t)
	expectStatus(t, env.do(t, http.MethodGet, "/api/nope", nil), http.StatusNotFound)
}

func TestSPAFallback(t *testing.T) {
	env := newTestEnv(t)

	for _, p := range []string{"/", "/history", "/charts"} {
		resp := env.do(t, http.MethodGet, p, nil)
		expectStatus(t, resp, http.StatusOK)
		b, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(b), "bmi") {
			t.Errorf("%s: expected index.html, got %q", p, b)
		}
	}
}

// ---------------------------------------------------------------------------
// Auth flow
// ---------------------------------------------------------------------------

func TestRegisterLoginLogoutFlow(t *testing.T) {
	env := newTestEnv(t)

	expectStatus(t, env.do(t, http.MethodGet, "/api/bmi/history", nil), http.StatusUnauthorized)

	resp := env.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice", "password": "pw", "confirmPassword": "pw",
	})
	expectStatus(t, resp, http.StatusOK)
	if body := decodeBody(t, resp); body["username"] != "alice" {
		t.Fatalf("expected username alice, got %v", body["username"])
	}

	resp = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "wrong"})
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "pw"})
	expectStatus(t, resp, http.StatusOK)
	cookie := sessionCookie(t, resp)
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}

	resp = env.do(t, http.MethodGet, "/api/auth/me", nil, cookie)
	expectStatus(t, resp, http.StatusOK)
	me := decodeBody(t, resp)
	if me["username"] != "alice" {
		t.Fatalf("expected alice, got %v", me["username"])
	}
	if _, leaked := me["passwordHash"]; leaked {
		t.Fatal("password hash must not be serialized")
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/bmi/history", nil, cookie), http.StatusOK)

	expectStatus(t, env.do(t, http.MethodPost, "/api/auth/logout", nil, cookie), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/api/auth/me", nil, cookie), http.StatusUnauthorized)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body map[string]string
		want int
		msg  string
	}{
		{"missing fields", map[string]string{"username": "bob", "password": "", "confirmPassword": ""}, http.StatusBadRequest, "please fill in all fields"},
		{"mismatch", map[string]string{"username": "bob", "password": "a", "confirmPassword": "b"}, http.StatusBadRequest, "passwords do not match"},
		{"ok", map[string]string{"username": "bob", "password": "a", "confirmPassword": "a"}, http.StatusOK, ""},
		{"duplicate", map[string]string{"username": "bob", "password": "c", "confirmPassword": "c"}, http.StatusConflict, "username already exists"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/auth/register", c.body)
			expectStatus(t, resp, c.want)
			if c.msg != "" {
				if body := decodeBody(t, resp); body["error"] != c.msg {
					t.Errorf("expected error %q, got %v", c.msg, body["error"])
				}
			}
		})
	}
}

func TestRegisterRejectsUnknownFields(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/auth/register", map[string]string{"username": "x", "role": "admin"})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestForwardAuth(t *testing.T) {
	trusted := newTestEnv(t, withForwardAuth())

	req, _ := http.NewRequest(http.MethodGet, trusted.ts.URL+"/api/auth/me", nil)
	req.Header.Set("Remote-User", "proxyuser")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close() //nolint:errcheck
	expectStatus(t, resp, http.StatusOK)
	if body := decodeBody(t, resp); body["username"] != "proxyuser" {
		t.Fatalf("expected proxyuser, got %v", body["username"])
	}

	untrusted := newTestEnv(t)
	req, _ = http.NewRequest(http.MethodGet, untrusted.ts.URL+"/api/auth/me", nil)
	req.Header.Set("Remote-User", "proxyuser")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close() //nolint:errcheck
	expectStatus(t, resp2, http.StatusUnauthorized)
}

// ---------------------------------------------------------------------------
// BMI endpoints
// ---------------------------------------------------------------------------

func TestCategories(t *testing.T) {
	env, _ := newAuthedEnv(t)

	resp := env.do(t, http.MethodGet, "/api/bmi/categories", nil)
	expectStatus(t, resp, http.StatusOK)

	var body struct {
		Items []struct {
			Category string   `json:"category"`
			Min      *float64 `json:"min"`
			Max      *float64 `json:"max"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Items) != 4 {
		t.Fatalf("expected 4 categories, got %d", len(body.Items))
	}
	first, last := body.Items[0], body.Items[3]
	if first.Category != "Underweight" || first.Min != nil || first.Max == nil || *first.Max != 18.5 {
		t.Errorf("unexpected first band: %+v", first)
	}
	if last.Category != "Obese" || last.Max != nil || last.Min == nil || *last.Min != 30 {
		t.Errorf("unexpected last band: %+v", last)
	}
}

func TestEvaluateDoesNotStore(t *testing.T) {
	env, _ := newAuthedEnv(t)

	resp := env.do(t, http.MethodPost, "/api/bmi/evaluate", map[string]float64{"weight": 70, "height": 1.70})
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	if body["bmi"] != 24.22 {
		t.Errorf("expected bmi 24.22, got %v", body["bmi"])
	}
	if body["category"] != "Normal weight" {
		t.Errorf("expected Normal weight, got %v", body["category"])
	}

	resp = env.do(t, http.MethodGet, "/api/bmi/history", nil)
	expectStatus(t, resp, http.StatusOK)
	if items := decodeBody(t, resp)["items"].([]any); len(items) != 0 {
		t.Fatalf("evaluate must not store, got %d items", len(items))
	}
}

func TestEvaluateInvalidHeightIsAResult(t *testing.T) {
	env, _ := newAuthedEnv(t)

	resp := env.do(t, http.MethodPost, "/api/bmi/evaluate", map[string]float64{"weight": 70, "height": 0})
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	if body["category"] != "Invalid height" || body["bmi"] != 0.0 {
		t.Fatalf("expected invalid height sentinel, got %v", body)
	}
}

func TestEvaluateConvertsUnits(t *testing.T) {
	env, _ := newAuthedEnv(t)

	resp := env.do(t, http.MethodPost, "/api/bmi/evaluate", map[string]any{
		"weight": 154.324, "height": 170, "weightUnit": "lb", "heightUnit": "cm",
	})
	expectStatus(t, resp, http.StatusOK)
	if body := decodeBody(t, resp); body["bmi"] != 24.22 {
		t.Errorf("expected bmi 24.22 after conversion, got %v", body["bmi"])
	}

	resp = env.do(t, http.MethodPost, "/api/bmi/evaluate", map[string]any{"weight": 70, "height": 1.7, "heightUnit": "ft"})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestRecordCreateAndHistory(t *testing.T) {
	env, user := newAuthedEnv(t)

	resp := env.do(t, http.MethodPost, "/api/bmi/records", map[string]float64{"weight": 70, "height": 1.75})
	expectStatus(t, resp, http.StatusCreated)
	rec := decodeBody(t, resp)
	if rec["bmi"] != 22.86 || rec["category"] != "Normal weight" {
		t.Errorf("unexpected record: %v", rec)
	}
	if rec["userId"] != float64(user.ID) {
		t.Errorf("expected userId %d, got %v", user.ID, rec["userId"])
	}

	resp = env.do(t, http.MethodPost, "/api/bmi/records", map[string]float64{"weight": 70, "height": 0})
	expectStatus(t, resp, http.StatusBadRequest)
	if body := decodeBody(t, resp); body["error"] != "height must be greater than zero" {
		t.Errorf("unexpected error: %v", body["error"])
	}

	resp = env.do(t, http.MethodPost, "/api/bmi/records", map[string]float64{"weight": -1, "height": 1.7})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodGet, "/api/bmi/history", nil)
	expectStatus(t, resp, http.StatusOK)
	items := decodeBody(t, resp)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected only the valid record stored, got %d", len(items))
	}
}

func TestRecordRejectsNonFiniteBMI(t *testing.T) {
	env, _ := newAuthedEnv(t)

	resp := env.do(t, http.MethodPost, "/api/bmi/records", map[string]float64{"weight": 1e300, "height": 1e-10})
	expectStatus(t, resp, http.StatusBadRequest)
	if body := decodeBody(t, resp); body["error"] != app.ErrNonFiniteBMI.Error() {
		t.Errorf("unexpected error: %v", body["error"])
	}

	resp = env.do(t, http.MethodPost, "/api/bmi/evaluate", map[string]float64{"weight": 1e300, "height": 1e-10})
	expectStatus(t, resp, http.StatusBadRequest)

	// Read endpoints must keep serving decodable JSON afterwards.
	resp = env.do(t, http.MethodGet, "/api/bmi/history", nil)
	expectStatus(t, resp, http.StatusOK)
	if items := decodeBody(t, resp)["items"].([]any); len(items) != 0 {
		t.Errorf("expected nothing stored, got %v", items)
	}

	resp = env.do(t, http.MethodGet, "/api/bmi/stats", nil)
	expectStatus(t, resp, http.StatusOK)
	if body := decodeBody(t, resp); body["stats"] != nil {
		t.Errorf("expected null stats, got %v", body["stats"])
	}

	resp = env.do(t, http.MethodGet, "/api/charts/trends", nil)
	expectStatus(t, resp, http.StatusOK)
	decodeBody(t, resp)
}

func TestStatsEmpty(t *testing.T) {
	env, _ := newAuthedEnv(t)

	resp := env.do(t, http.MethodGet, "/api/bmi/stats", nil)
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	if body["stats"] != nil {
		t.Errorf("expected null stats, got %v", body["stats"])
	}
	if recent, ok := body["recent"].([]any); !ok || len(recent) != 0 {
		t.Errorf("expected empty recent list, got %v", body["recent"])
	}
}

func TestStatsAfterRecords(t *testing.T) {
	env, user := newAuthedEnv(t)
	ctx := t.Context()

	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	for i, w := range []float64{71, 70, 68} {
		m := domain.Measurement{WeightKg: w, HeightM: 1.75}
		if _, err := env.db.AppendRecord(ctx, user.ID, m, domain.Evaluate(m.WeightKg, m.HeightM), base.AddDate(0, 0, i)); err != nil {
			t.Fatal(err)
		}
	}

	resp := env.do(t, http.MethodGet, "/api/bmi/stats", nil)
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	stats := body["stats"].(map[string]any)
	if stats["totalRecords"] != 3.0 {
		t.Errorf("expected 3 records, got %v", stats["totalRecords"])
	}
	if stats["weightChange"] != -3.0 {
		t.Errorf("expected weight change -3, got %v", stats["weightChange"])
	}
	if stats["bmiTrend"] != "Decreasing" {
		t.Errorf("expected Decreasing, got %v", stats["bmiTrend"])
	}
	if recent := body["recent"].([]any); len(recent) != 3 {
		t.Errorf("expected 3 recent records, got %d", len(recent))
	}
}

func TestHistoryCSV(t *testing.T) {
	env, _ := newAuthedEnv(t)

	expectStatus(t, env.do(t, http.MethodPost, "/api/bmi/records", map[string]float64{"weight": 70, "height": 1.7}), http.StatusCreated)

	resp := env.do(t, http.MethodGet, "/api/bmi/history.csv", nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected text/csv, got %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "bmi_history_alice.csv") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	b, _ := io.ReadAll(resp.Body)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %q", b)
	}
	if lines[0] != "weight,height,bmi,category,recorded_at" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "70,1.7,24.22,Normal weight,") {
		t.Errorf("unexpected row %q", lines[1])
	}
}

// ---------------------------------------------------------------------------
// Charts
// ---------------------------------------------------------------------------

func TestChartsTrends(t *testing.T) {
	env, _ := newAuthedEnv(t)

	resp := env.do(t, http.MethodGet, "/api/charts/trends", nil)
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody(t, resp)
	if refs := body["bmiReference"].([]any); len(refs) != 3 {
		t.Errorf("expected 3 reference lines, got %d", len(refs))
	}
	if pts := body["bmi"].([]any); len(pts) != 0 {
		t.Errorf("expected empty series, got %d", len(pts))
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/bmi/records", map[string]float64{"weight": 100, "height": 2}), http.StatusCreated)

	resp = env.do(t, http.MethodGet, "/api/charts/trends?unit=lb", nil)
	expectStatus(t, resp, http.StatusOK)
	body = decodeBody(t, resp)
	if body["weightUnit"] != "lb" {
		t.Errorf("expected lb, got %v", body["weightUnit"])
	}
	weights := body["weight"].([]any)
	if len(weights) != 1 {
		t.Fatalf("expected 1 weight point, got %d", len(weights))
	}
	if v := weights[0].(map[string]any)["value"].(float64); v < 220.4 || v > 220.5 {
		t.Errorf("expected ~220.46 lb, got %v", v)
	}
}

func TestChartsTrendsBadUnit(t *testing.T) {
	env, _ := newAuthedEnv(t)
	expectStatus(t, env.do(t, http.MethodGet, "/api/charts/trends?unit=stone", nil), http.StatusBadRequest)
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

func TestMetricsEndpoint(t *testing.T) {
	env, _ := newAuthedEnv(t)

	expectStatus(t, env.do(t, http.MethodPost, "/api/bmi/records", map[string]float64{"weight": 70, "height": 1.7}), http.StatusCreated)

	resp := env.do(t, http.MethodGet, "/metrics", nil)
	expectStatus(t, resp, http.StatusOK)
	b, _ := io.ReadAll(resp.Body)
	out := string(b)

	for _, want := range []string{
		`bmi_test_http_requests_total{method="POST",route="/api/bmi/records",status="201"} 1`,
		`bmi_test_bmi_records_appended_total 1`,
		`bmi_test_bmi_evaluations_total{category="Normal weight"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
