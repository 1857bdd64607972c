package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Barrelito/sam-a-sub000/org"
	"github.com/Barrelito/sam-a-sub000/task"
)

func TestSignAndVerifyToken(t *testing.T) {
	secret := "my-test-secret"
	p := org.Principal{ID: "u-1", Username: "alice", Role: org.RoleVOChief, VOID: "V1"}
	token, err := signToken(secret, p, time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	subject, err := verifyToken(secret, token)
	if err != nil {
		t.Fatalf("verifyToken: %v", err)
	}
	if subject != "alice" {
		t.Errorf("expected subject 'alice', got %q", subject)
	}
}

func TestVerifyToken_ExpiredToken(t *testing.T) {
	p := org.Principal{ID: "u-1", Username: "alice"}
	token, err := signToken("my-test-secret", p, time.Now().Add(-2*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	if _, err := verifyToken("my-test-secret", token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestVerifyToken_BadSignature(t *testing.T) {
	p := org.Principal{ID: "u-1", Username: "alice"}
	token, _ := signToken("correct-secret", p, time.Now(), time.Hour)
	if _, err := verifyToken("wrong-secret", token); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestVerifyToken_Malformed(t *testing.T) {
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := verifyToken("secret", tok); err == nil {
			t.Errorf("verifyToken(%q): expected error", tok)
		}
	}
}

func TestJWTSecret_GeneratedOnce(t *testing.T) {
	s := New(testConfig(t), "test", nil)
	s.cfg.Auth.JWTSecret = ""
	first := s.jwtSecret()
	if first == "" {
		t.Fatal("expected generated secret")
	}
	if second := s.jwtSecret(); second != first {
		t.Error("generated secret must be stable for the process")
	}
}

func login(t *testing.T, h http.Handler, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(loginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func tokenFor(t *testing.T, h http.Handler, username string) string {
	t.Helper()
	rr := login(t, h, username, testPassword)
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", username, rr.Code, rr.Body.String())
	}
	var resp loginResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.Token
}

func authed(method, path, token string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestLogin(t *testing.T) {
	h := newTestServer(t).Handler()

	rr := login(t, h, "chief", testPassword)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp loginResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected token")
	}
	if resp.Principal.ID != "u-chief" || resp.Principal.Role != org.RoleVOChief || resp.Principal.VOID != "V1" {
		t.Errorf("principal = %+v", resp.Principal)
	}
	if !resp.ExpiresAt.After(time.Now()) {
		t.Errorf("expires_at = %v, want future", resp.ExpiresAt)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newTestServer(t).Handler()
	for _, c := range []struct{ user, pass string }{
		{"chief", "wrong"},
		{"nobody", testPassword},
	} {
		if rr := login(t, h, c.user, c.pass); rr.Code != http.StatusUnauthorized {
			t.Errorf("login %s/%s: expected 401, got %d", c.user, c.pass, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rr.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "garbage", http.StatusUnauthorized},
		{"valid", tokenFor(t, h, "anna"), http.StatusOK},
	}
	ghost, err := signToken(s.jwtSecret(), org.Principal{ID: "x", Username: "ghost"}, time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	tests = append(tests, struct {
		name  string
		token string
		want  int
	}{"unknown user", ghost, http.StatusUnauthorized})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authed(http.MethodGet, "/api/tasks", tt.token, nil))
			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestMe(t *testing.T) {
	h := newTestServer(t).Handler()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authed(http.MethodGet, "/api/auth/me", tokenFor(t, h, "anna"), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var p org.Principal
	if err := json.NewDecoder(rr.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ID != "u-anna" || !p.MemberOf("S1") {
		t.Errorf("principal = %+v", p)
	}
}

func TestStatusIsPublic(t *testing.T) {
	h := newTestServer(t).Handler()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("status = %v", resp)
	}
}

// TestEndToEnd drives a distribution through the authenticated API and
// checks that activity and metrics observe it.
func TestEndToEnd(t *testing.T) {
	h := newTestServer(t).Handler()
	chief := tokenFor(t, h, "chief")

	body := `{"title":"Inventering","owner_type":"vo","vo_id":"V1","year":2026,"start_month":5}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authed(http.MethodPost, "/api/tasks", chief, strings.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var parent task.Task
	if err := json.NewDecoder(rr.Body).Decode(&parent); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authed(http.MethodPost, "/api/tasks/"+parent.ID+"/distribute", chief,
		strings.NewReader(`{"targets":[{"station_id":"S1"},{"station_id":"S2"}]}`)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("distribute: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authed(http.MethodGet, "/api/activity", chief, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("activity: expected 200, got %d", rr.Code)
	}
	var events []map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&events); err != nil {
		t.Fatalf("decode activity: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1]["type"] != "task_distributed" {
		t.Errorf("last event = %v", events[1]["type"])
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rr.Code)
	}
	out := rr.Body.String()
	for _, want := range []string{
		"tasktrack_station_tasks_distributed_total 2",
		`tasktrack_task_events_total{type="task_distributed"} 1`,
		`route="POST /api/tasks/{id}/distribute"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
