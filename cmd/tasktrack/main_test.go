package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestRun_help(t *testing.T) {
	if code := Run(context.Background(), []string{"--help"}); code != 0 {
		t.Errorf("Run --help: got exit code %d", code)
	}
}

func TestRun_version(t *testing.T) {
	if code := Run(context.Background(), []string{"--version"}); code != 0 {
		t.Errorf("Run --version: got exit code %d", code)
	}
}

func TestRun_unknownFlag(t *testing.T) {
	if code := Run(context.Background(), []string{"--unknown-flag"}); code != 1 {
		t.Errorf("Run --unknown-flag: got exit code %d, want 1", code)
	}
}

func TestRootCmd_hasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range newRootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"login", "tasks", "task", "distribute", "distribution", "review-queue", "overview", "hash-password"} {
		if !names[want] {
			t.Errorf("expected subcommand %q", want)
		}
	}
}

func TestHashPassword(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"hash-password", "--cost", "4", "hemligt"})
	if err := root.Execute(); err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	hash := strings.TrimSpace(buf.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("hemligt")); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}
}

func TestParseTargets(t *testing.T) {
	got, err := parseTargets([]string{"S1", "S2:anna"})
	if err != nil {
		t.Fatalf("parseTargets: %v", err)
	}
	if len(got) != 2 || got[0].StationID != "S1" || got[0].AssignedTo != "" ||
		got[1].StationID != "S2" || got[1].AssignedTo != "anna" {
		t.Errorf("targets = %+v", got)
	}
	if _, err := parseTargets([]string{":anna"}); err == nil {
		t.Error("expected error for empty station")
	}
}

func TestClient_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "stations not in vo", "kind": "validation", "details": []string{"S9"},
		})
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTPClient: srv.Client()}
	err := c.get(context.Background(), "/api/tasks", nil)
	var ae *apiError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *apiError, got %v", err)
	}
	if ae.Status != http.StatusBadRequest || ae.Kind != "validation" {
		t.Errorf("apiError = %+v", ae)
	}
	if !strings.Contains(err.Error(), "S9") {
		t.Errorf("error %q should mention details", err)
	}
}

func TestLoginStoresToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["password"] != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"token":     "tok-123",
				"principal": map[string]string{"id": "u-anna", "role": "station_manager"},
			})
		case "/api/tasks":
			gotAuth = r.Header.Get("Authorization")
			_, _ = w.Write([]byte("[]"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tokenFile := filepath.Join(t.TempDir(), "token")
	common := []string{"--server", srv.URL, "--token-file", tokenFile, "--token", ""}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(append(common, "login", "--username", "anna", "--password", "secret"))
	if err := root.Execute(); err != nil {
		t.Fatalf("login: %v", err)
	}
	b, err := os.ReadFile(tokenFile)
	if err != nil {
		t.Fatalf("read token file: %v", err)
	}
	if strings.TrimSpace(string(b)) != "tok-123" {
		t.Errorf("token file = %q", b)
	}

	root = newRootCmd()
	out.Reset()
	root.SetOut(&out)
	root.SetArgs(append(common, "tasks"))
	if err := root.Execute(); err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if !strings.Contains(out.String(), "no tasks") {
		t.Errorf("output = %q", out.String())
	}
}
