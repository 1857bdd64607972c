package org

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Barrelito/sam-a-sub000/db"
	"github.com/Barrelito/sam-a-sub000/task"
)

const schema = `
CREATE TABLE IF NOT EXISTS vos (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS stations (
	id         TEXT PRIMARY KEY,
	vo_id      TEXT NOT NULL REFERENCES vos(id),
	name       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stations_vo ON stations(vo_id);
`

// SQLiteStore persists the organization in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open SQLite database and ensures the vos and
// stations tables exist.
func NewSQLiteStore(ctx context.Context, conn *sql.DB) (*SQLiteStore, error) {
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create org schema: %w", err)
	}
	return &SQLiteStore{db: conn}, nil
}

// CreateVO inserts a VO, assigning an ID when empty.
func (s *SQLiteStore) CreateVO(ctx context.Context, vo *VO) error {
	if err := PrepareVO(vo); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vos (id, name, created_at) VALUES (?, ?, ?)`,
		vo.ID, vo.Name, vo.CreatedAt)
	if db.IsUniqueViolation(err) {
		return task.Conflictf("vo %s already exists", vo.ID)
	}
	if err != nil {
		return fmt.Errorf("insert vo: %w", err)
	}
	return nil
}

// GetVO retrieves a VO by ID.
func (s *SQLiteStore) GetVO(ctx context.Context, id string) (*VO, error) {
	var vo VO
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM vos WHERE id = ?`, id).
		Scan(&vo.ID, &vo.Name, &vo.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, task.NotFoundf("vo %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get vo: %w", err)
	}
	return &vo, nil
}

// ListVOs returns all VOs ordered by name.
func (s *SQLiteStore) ListVOs(ctx context.Context) ([]*VO, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM vos`)
	if err != nil {
		return nil, fmt.Errorf("list vos: %w", err)
	}
	defer rows.Close()

	var vos []*VO
	for rows.Next() {
		var vo VO
		if err := rows.Scan(&vo.ID, &vo.Name, &vo.CreatedAt); err != nil {
			return nil, err
		}
		vos = append(vos, &vo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	SortVOs(vos)
	return vos, nil
}

// CreateStation inserts a station. The owning VO must exist.
func (s *SQLiteStore) CreateStation(ctx context.Context, st *Station) error {
	if err := PrepareStation(st); err != nil {
		return err
	}
	if _, err := s.GetVO(ctx, st.VOID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stations (id, vo_id, name, created_at) VALUES (?, ?, ?, ?)`,
		st.ID, st.VOID, st.Name, st.CreatedAt)
	if db.IsUniqueViolation(err) {
		return task.Conflictf("station %s already exists", st.ID)
	}
	if err != nil {
		return fmt.Errorf("insert station: %w", err)
	}
	return nil
}

// GetStation retrieves a station by ID.
func (s *SQLiteStore) GetStation(ctx context.Context, id string) (*Station, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, vo_id, name, created_at FROM stations WHERE id = ?`, id)
	st, err := scanStation(row)
	if err == sql.ErrNoRows {
		return nil, task.NotFoundf("station %s not found", id)
	}
	return st, err
}

// ListStations returns the stations of voID ordered by name.
func (s *SQLiteStore) ListStations(ctx context.Context, voID string) ([]*Station, error) {
	q := `SELECT id, vo_id, name, created_at FROM stations`
	var args []any
	if voID != "" {
		q += ` WHERE vo_id = ?`
		args = append(args, voID)
	}
	return s.queryStations(ctx, q, args...)
}

// StationsByID returns the known stations among ids.
func (s *SQLiteStore) StationsByID(ctx context.Context, ids []string) ([]*Station, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT id, vo_id, name, created_at FROM stations WHERE id IN (?` +
		strings.Repeat(", ?", len(ids)-1) + `)`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.queryStations(ctx, q, args...)
}

func (s *SQLiteStore) queryStations(ctx context.Context, q string, args ...any) ([]*Station, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()

	var stations []*Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	SortStations(stations)
	return stations, nil
}

func scanStation(s task.Scanner) (*Station, error) {
	var st Station
	if err := s.Scan(&st.ID, &st.VOID, &st.Name, &st.CreatedAt); err != nil {
		return nil, err
	}
	return &st, nil
}

// PrepareVO validates vo, assigning an ID when empty and stamping
// CreatedAt.
func PrepareVO(vo *VO) error {
	if strings.TrimSpace(vo.Name) == "" {
		return task.Validationf("vo name is required")
	}
	if vo.ID == "" {
		vo.ID = uuid.New().String()
	}
	vo.CreatedAt = time.Now().UTC()
	return nil
}

// PrepareStation validates st, assigning an ID when empty and stamping
// CreatedAt.
func PrepareStation(st *Station) error {
	if strings.TrimSpace(st.Name) == "" {
		return task.Validationf("station name is required")
	}
	if st.VOID == "" {
		return task.Validationf("station requires vo_id")
	}
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	st.CreatedAt = time.Now().UTC()
	return nil
}

func isNotFound(err error) bool { return errors.Is(err, task.ErrNotFound) }
