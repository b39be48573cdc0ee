package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"regexp"
	"strings"
	"testing"

	"github.com/perfecto-hq/perfecto/internal/validate"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// captureLogs routes the default slog logger into a buffer for the
// duration of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

// logEntries returns the decoded log lines whose msg equals msg.
func logEntries(t *testing.T, buf *bytes.Buffer, msg string) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("malformed log line %q: %v", line, err)
		}
		if entry["msg"] == msg {
			out = append(out, entry)
		}
	}
	return out
}

// serve runs req through the router from the same client address as do.
func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	req.RemoteAddr = "192.0.2.10:40000"
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// CORS
// ---------------------------------------------------------------------------

func TestRouter_CORS(t *testing.T) {
	tests := []struct {
		name            string
		allowedOrigins  []string
		origin          string
		method          string
		path            string
		wantStatus      int
		wantAllowOrigin string
	}{
		{
			name:            "configured origin on the landing page",
			allowedOrigins:  []string{"https://app.perfecto.test"},
			origin:          "https://app.perfecto.test",
			method:          http.MethodGet,
			path:            "/",
			wantStatus:      http.StatusOK,
			wantAllowOrigin: "https://app.perfecto.test",
		},
		{
			name:            "unknown origin is not echoed",
			allowedOrigins:  []string{"https://app.perfecto.test"},
			origin:          "https://elsewhere.test",
			method:          http.MethodGet,
			path:            "/",
			wantStatus:      http.StatusOK,
			wantAllowOrigin: "",
		},
		{
			name:            "wildcard on an authenticated route still answers 401",
			allowedOrigins:  []string{"*"},
			origin:          "https://elsewhere.test",
			method:          http.MethodGet,
			path:            "/companies/",
			wantStatus:      http.StatusUnauthorized,
			wantAllowOrigin: "*",
		},
		{
			name:            "preflight for the profile update",
			allowedOrigins:  []string{"https://app.perfecto.test"},
			origin:          "https://app.perfecto.test",
			method:          http.MethodOptions,
			path:            "/accounts/profile/",
			wantStatus:      http.StatusNoContent,
			wantAllowOrigin: "https://app.perfecto.test",
		},
		{
			name:            "no configured origins",
			origin:          "https://app.perfecto.test",
			method:          http.MethodGet,
			path:            "/health-check/",
			wantStatus:      http.StatusOK,
			wantAllowOrigin: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(d *RouterDeps) {
				d.AllowedOrigins = tt.allowedOrigins
			})
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Origin", tt.origin)
			rec := env.serve(req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllowOrigin {
				t.Errorf("Access-Control-Allow-Origin: got %q, want %q", got, tt.wantAllowOrigin)
			}
			if tt.wantAllowOrigin != "" && !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch) {
				t.Errorf("expected PATCH among allowed methods, got %q", rec.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}

func TestRouter_PreflightSkipsAuthentication(t *testing.T) {
	env := newTestEnv(t, func(d *RouterDeps) {
		d.AllowedOrigins = []string{"*"}
	})
	req := httptest.NewRequest(http.MethodOptions, "/reviews/achievement/7/score/", nil)
	req.Header.Set("Origin", "https://app.perfecto.test")
	rec := env.serve(req)

	expectStatus(t, rec, http.StatusNoContent)
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty preflight body, got %q", rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Security headers and error envelopes
// ---------------------------------------------------------------------------

func TestRouter_SecureHeadersOnErrorResponses(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health-check/", "/companies/", "/no-such-page/"} {
		rec := env.serve(httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("X-Frame-Options") != "DENY" {
			t.Errorf("%s: security headers missing: %v", path, rec.Header())
		}
	}
}

func TestRouter_NotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.serve(httptest.NewRequest(http.MethodGet, "/nonexistent-path", nil))
	expectStatus(t, rec, http.StatusNotFound)

	var envelope errorEnvelope
	decode(t, rec, &envelope)
	if envelope.Error.Code != "not_found" {
		t.Errorf("expected code=not_found, got %q", envelope.Error.Code)
	}
	if got := testutil.ToFloat64(env.metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")); got != 1 {
		t.Errorf("expected the miss counted as unmatched, got %v", got)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	rec := env.serve(httptest.NewRequest(http.MethodDelete, "/health-check/", nil))
	expectStatus(t, rec, http.StatusMethodNotAllowed)

	var envelope errorEnvelope
	decode(t, rec, &envelope)
	if envelope.Error.Code != "method_not_allowed" {
		t.Errorf("expected code=method_not_allowed, got %q", envelope.Error.Code)
	}
}

func TestRouter_MalformedBody(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.register(t, "ann@example.com")

	req := httptest.NewRequest(http.MethodPost, "/companies/create/", strings.NewReader(`{"name":`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := env.serve(req)
	expectStatus(t, rec, http.StatusBadRequest)

	var envelope errorEnvelope
	decode(t, rec, &envelope)
	if envelope.Error.Code != "invalid_body" {
		t.Errorf("expected code=invalid_body, got %q", envelope.Error.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	handler := NewRouter(RouterDeps{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health-check/", nil))
	expectStatus(t, rec, http.StatusOK)

	var body map[string]string
	decode(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status=ok, got %q", body["status"])
	}
}

func TestWriteValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeValidationError(rec, validate.Field("name", "this field is required"))
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	var envelope errorEnvelope
	decode(t, rec, &envelope)
	if envelope.Error.Code != "validation_error" {
		t.Errorf("expected code=validation_error, got %q", envelope.Error.Code)
	}
	if envelope.Error.Fields["name"] != "this field is required" {
		t.Errorf("unexpected fields: %v", envelope.Error.Fields)
	}
}

func TestIsValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"field error", validate.Field("email", "enter a valid email address"), true},
		{"random error", errors.New("something went wrong"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidationError(tt.err); got != tt.want {
				t.Errorf("isValidationError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Request ids in logs
// ---------------------------------------------------------------------------

func TestRequestID_CarriedIntoAuditAndRequestLogs(t *testing.T) {
	env := newTestEnv(t)
	token, userID := env.register(t, "ann@example.com")
	logs := captureLogs(t)

	req := httptest.NewRequest(http.MethodPost, "/companies/create/", strings.NewReader(`{"name":"Acme"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", "  req-company-1 \n")
	rec := env.serve(req)
	expectStatus(t, rec, http.StatusCreated)

	if got := rec.Header().Get("X-Request-ID"); got != "req-company-1" {
		t.Errorf("expected trimmed request id echoed, got %q", got)
	}

	audits := logEntries(t, logs, "audit")
	if len(audits) != 1 {
		t.Fatalf("expected one audit entry, got %d: %s", len(audits), logs.String())
	}
	a := audits[0]
	if a["action"] != "company.create" || a["request_id"] != "req-company-1" {
		t.Errorf("unexpected audit entry: %v", a)
	}
	if a["user_id"] != float64(userID) || a["ip"] != "192.0.2.10" {
		t.Errorf("expected actor and client address in audit entry, got %v", a)
	}

	requests := logEntries(t, logs, "http request")
	if len(requests) != 1 {
		t.Fatalf("expected one request log line, got %d", len(requests))
	}
	r := requests[0]
	if r["request_id"] != "req-company-1" || r["path"] != "/companies/create/" || r["status"] != float64(http.StatusCreated) {
		t.Errorf("unexpected request log line: %v", r)
	}
}

func TestRequestID_GeneratedWhenAbsent(t *testing.T) {
	env := newTestEnv(t)
	logs := captureLogs(t)

	first := env.serve(httptest.NewRequest(http.MethodGet, "/health-check/", nil))
	second := env.serve(httptest.NewRequest(http.MethodGet, "/health-check/", nil))

	id := first.Header().Get("X-Request-ID")
	if !regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(id) {
		t.Fatalf("expected a 32 character hex id, got %q", id)
	}
	if id == second.Header().Get("X-Request-ID") {
		t.Error("expected distinct ids for distinct requests")
	}

	requests := logEntries(t, logs, "http request")
	if len(requests) != 2 || requests[0]["request_id"] != id {
		t.Errorf("expected the generated id in the request log, got %v", requests)
	}
}

// ---------------------------------------------------------------------------
// Client address behind proxies
// ---------------------------------------------------------------------------

func TestForwardedClient(t *testing.T) {
	trusted := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("2001:db8::/32"),
	}

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		want       string
	}{
		{"untrusted peer ignores headers", "203.0.113.7:5555", "198.51.100.1", "198.51.100.2", ""},
		{"trusted peer single hop", "10.0.0.5:443", "198.51.100.1", "", "198.51.100.1"},
		{"rightmost untrusted hop wins", "10.0.0.5:443", "192.0.2.99, 198.51.100.1, 10.2.3.4", "", "198.51.100.1"},
		{"all hops trusted yields leftmost", "10.0.0.5:443", "10.9.9.9, 10.2.3.4", "", "10.9.9.9"},
		{"garbage hop stops the walk", "10.0.0.5:443", "198.51.100.1, not-an-ip", "", ""},
		{"real ip used without forwarded for", "10.0.0.5:443", "", "198.51.100.3", "198.51.100.3"},
		{"ipv6 proxy", "[2001:db8::1]:443", "198.51.100.4", "", "198.51.100.4"},
		{"mapped ipv4 peer", "[::ffff:10.0.0.5]:443", "198.51.100.5", "", "198.51.100.5"},
		{"no headers", "10.0.0.5:443", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if got := forwardedClient(req, trusted); got != tt.want {
				t.Errorf("forwardedClient() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuditLog_RecordsForwardedClientBehindTrustedProxy(t *testing.T) {
	env := newTestEnv(t, func(d *RouterDeps) {
		d.TrustedProxies = []netip.Prefix{netip.MustParsePrefix("192.0.2.0/24")}
	})
	logs := captureLogs(t)

	req := httptest.NewRequest(http.MethodPost, "/accounts/register/", strings.NewReader(
		`{"email":"ann@example.com","name":"Ann","password1":"correct-horse","password2":"correct-horse"}`))
	req.Header.Set("X-Forwarded-For", "198.51.100.20")
	rec := env.serve(req)
	expectStatus(t, rec, http.StatusCreated)

	audits := logEntries(t, logs, "audit")
	if len(audits) != 1 || audits[0]["ip"] != "198.51.100.20" {
		t.Errorf("expected the forwarded client in the audit entry, got %v", audits)
	}
}
