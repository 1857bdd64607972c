package server

import (
	"context"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/Barrelito/sam-a-sub000/activity"
	"github.com/Barrelito/sam-a-sub000/config"
	"github.com/Barrelito/sam-a-sub000/db"
	"github.com/Barrelito/sam-a-sub000/distribution"
	"github.com/Barrelito/sam-a-sub000/metrics"
	"github.com/Barrelito/sam-a-sub000/org"
	"github.com/Barrelito/sam-a-sub000/rollup"
	"github.com/Barrelito/sam-a-sub000/task"
	"github.com/Barrelito/sam-a-sub000/tracker"
)

const testPassword = "secret"

func hashPassword(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(h)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	hash := hashPassword(t, testPassword)
	return config.Config{
		Server: config.ServerConfig{Addr: ":0"},
		Auth: config.AuthConfig{
			JWTSecret: "test-secret-key-1234567890",
			Users: []config.UserConfig{
				{Username: "admin", PasswordHash: hash, Role: org.RoleAdmin},
				{ID: "u-chief", Username: "chief", PasswordHash: hash, Role: org.RoleVOChief, VOID: "V1"},
				{ID: "u-anna", Username: "anna", PasswordHash: hash, Role: org.RoleStationManager, VOID: "V1", StationIDs: []string{"S1"}},
			},
		},
		Org: config.OrgConfig{VOs: []config.VOConfig{{
			ID: "V1", Name: "Norr",
			Stations: []config.StationConfig{{ID: "S1", Name: "Umeå"}, {ID: "S2", Name: "Luleå"}},
		}}},
	}
}

// newTestServer builds a server backed by a temporary SQLite database with
// the test org seeded and metrics attached to the activity bus.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig(t)

	conn, err := db.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	tasks, err := task.NewSQLiteStore(ctx, conn)
	if err != nil {
		t.Fatalf("task store: %v", err)
	}
	orgs, err := org.NewSQLiteStore(ctx, conn)
	if err != nil {
		t.Fatalf("org store: %v", err)
	}
	if _, err := org.Seed(ctx, orgs, cfg.Org.Seed()); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	bus := activity.NewInMemoryBus()
	m := metrics.New()
	t.Cleanup(m.Attach(bus))

	svc := tracker.NewService(tasks, orgs, nil)
	svc.SetBus(bus)
	eng := distribution.New(tasks, orgs, nil)
	eng.SetBus(bus)

	s := New(cfg, "test", nil)
	s.SetTracker(svc)
	s.SetDistribution(eng)
	s.SetRollup(rollup.NewAggregator(tasks, orgs))
	s.SetMetrics(m)
	return s
}
