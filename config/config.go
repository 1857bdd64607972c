// Package config defines the task tracker configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Barrelito/sam-a-sub000/org"
)

// Config is the top-level configuration.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Auth     AuthConfig     `json:"auth" yaml:"auth"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Org      OrgConfig      `json:"org" yaml:"org"`
	DataDir  string         `json:"data_dir" yaml:"data_dir"`
	LogLevel string         `json:"log_level" yaml:"log_level"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":9090"
}

// AuthConfig controls login and token issuing.
type AuthConfig struct {
	JWTSecret string        `json:"jwt_secret" yaml:"jwt_secret"` // random per process when empty
	TokenTTL  time.Duration `json:"token_ttl" yaml:"token_ttl"`
	Users     []UserConfig  `json:"users" yaml:"users"`
}

// UserConfig defines one account and the principal it logs in as.
type UserConfig struct {
	ID           string   `json:"id" yaml:"id"`
	Username     string   `json:"username" yaml:"username"`
	PasswordHash string   `json:"password_hash" yaml:"password_hash"` // bcrypt hash
	Role         org.Role `json:"role" yaml:"role"`
	VOID         string   `json:"vo_id,omitempty" yaml:"vo_id"`
	StationIDs   []string `json:"station_ids,omitempty" yaml:"station_ids"`
}

// Principal returns the principal the user acts as.
func (u UserConfig) Principal() org.Principal {
	id := u.ID
	if id == "" {
		id = u.Username
	}
	return org.Principal{
		ID:         id,
		Username:   u.Username,
		Role:       u.Role,
		VOID:       u.VOID,
		StationIDs: u.StationIDs,
	}
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "sqlite" or "postgres"
	Path   string `json:"path,omitempty" yaml:"path"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn"` // falls back to DATABASE_URL
}

// OrgConfig holds the VOs and stations created at startup.
type OrgConfig struct {
	VOs []VOConfig `json:"vos" yaml:"vos"`
}

// VOConfig is a VO to seed.
type VOConfig struct {
	ID       string          `json:"id" yaml:"id"`
	Name     string          `json:"name" yaml:"name"`
	Stations []StationConfig `json:"stations" yaml:"stations"`
}

// StationConfig is a station to seed.
type StationConfig struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Seed converts the org section into seed data.
func (o OrgConfig) Seed() []org.SeedVO {
	out := make([]org.SeedVO, 0, len(o.VOs))
	for _, v := range o.VOs {
		sv := org.SeedVO{ID: v.ID, Name: v.Name}
		for _, st := range v.Stations {
			sv.Stations = append(sv.Stations, org.SeedStation{ID: st.ID, Name: st.Name})
		}
		out = append(out, sv)
	}
	return out
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":9090",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
		DataDir:  "./data",
		LogLevel: "info",
	}
}

// Load reads a YAML config file and returns the parsed configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// DatabasePath returns the SQLite file, defaulting to tasks.db in DataDir.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.DataDir, "tasks.db")
}

// Validate checks roles, drivers, durations and user uniqueness.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("token_ttl must not be negative")
	}

	seen := make(map[string]bool, len(c.Auth.Users))
	for i, u := range c.Auth.Users {
		if u.Username == "" {
			return fmt.Errorf("user #%d: username is required", i+1)
		}
		if seen[u.Username] {
			return fmt.Errorf("duplicate user %q", u.Username)
		}
		seen[u.Username] = true
		if !u.Role.Valid() {
			return fmt.Errorf("user %q: unknown role %q", u.Username, u.Role)
		}
		if u.Role == org.RoleVOChief && u.VOID == "" {
			return fmt.Errorf("user %q: vo_chief requires vo_id", u.Username)
		}
	}

	vos := make(map[string]bool, len(c.Org.VOs))
	for _, v := range c.Org.VOs {
		if v.ID == "" || v.Name == "" {
			return fmt.Errorf("org: vo requires id and name")
		}
		if vos[v.ID] {
			return fmt.Errorf("org: duplicate vo %q", v.ID)
		}
		vos[v.ID] = true
		for _, st := range v.Stations {
			if st.ID == "" || st.Name == "" {
				return fmt.Errorf("org: station in vo %q requires id and name", v.ID)
			}
		}
	}
	return nil
}
