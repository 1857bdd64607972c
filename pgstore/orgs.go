package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Barrelito/sam-a-sub000/org"
	"github.com/Barrelito/sam-a-sub000/task"
)

// OrgStore implements org.Store on PostgreSQL.
type OrgStore struct {
	pool *pgxpool.Pool
}

var _ org.Store = (*OrgStore)(nil)

// CreateVO inserts a VO.
func (s *OrgStore) CreateVO(ctx context.Context, vo *org.VO) error {
	if err := org.PrepareVO(vo); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO vos (id, name, created_at) VALUES ($1, $2, $3)`,
		vo.ID, vo.Name, vo.CreatedAt)
	if isUniqueViolation(err) {
		return task.Conflictf("vo %s already exists", vo.ID)
	}
	if err != nil {
		return fmt.Errorf("insert vo: %w", err)
	}
	return nil
}

// GetVO retrieves a VO by ID.
func (s *OrgStore) GetVO(ctx context.Context, id string) (*org.VO, error) {
	var vo org.VO
	err := s.pool.QueryRow(ctx, `SELECT id, name, created_at FROM vos WHERE id = $1`, id).
		Scan(&vo.ID, &vo.Name, &vo.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, task.NotFoundf("vo %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &vo, nil
}

// ListVOs returns all VOs ordered by name.
func (s *OrgStore) ListVOs(ctx context.Context) ([]*org.VO, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, created_at FROM vos`)
	if err != nil {
		return nil, fmt.Errorf("list vos: %w", err)
	}
	defer rows.Close()

	vos := []*org.VO{}
	for rows.Next() {
		var vo org.VO
		if err := rows.Scan(&vo.ID, &vo.Name, &vo.CreatedAt); err != nil {
			return nil, err
		}
		vos = append(vos, &vo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	org.SortVOs(vos)
	return vos, nil
}

// CreateStation inserts a station. The owning VO must exist.
func (s *OrgStore) CreateStation(ctx context.Context, st *org.Station) error {
	if err := org.PrepareStation(st); err != nil {
		return err
	}
	if _, err := s.GetVO(ctx, st.VOID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stations (id, vo_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		st.ID, st.VOID, st.Name, st.CreatedAt)
	if isUniqueViolation(err) {
		return task.Conflictf("station %s already exists", st.ID)
	}
	if err != nil {
		return fmt.Errorf("insert station: %w", err)
	}
	return nil
}

// GetStation retrieves a station by ID.
func (s *OrgStore) GetStation(ctx context.Context, id string) (*org.Station, error) {
	stations, err := s.queryStations(ctx, `WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(stations) == 0 {
		return nil, task.NotFoundf("station %s not found", id)
	}
	return stations[0], nil
}

// ListStations returns the stations of voID, or all stations when voID is
// empty, ordered by name.
func (s *OrgStore) ListStations(ctx context.Context, voID string) ([]*org.Station, error) {
	if voID == "" {
		return s.queryStations(ctx, "")
	}
	return s.queryStations(ctx, `WHERE vo_id = $1`, voID)
}

// StationsByID returns the stations with the given IDs.
func (s *OrgStore) StationsByID(ctx context.Context, ids []string) ([]*org.Station, error) {
	if len(ids) == 0 {
		return []*org.Station{}, nil
	}
	return s.queryStations(ctx, `WHERE id = ANY($1)`, ids)
}

func (s *OrgStore) queryStations(ctx context.Context, where string, args ...any) ([]*org.Station, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, vo_id, name, created_at FROM stations `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	stations := []*org.Station{}
	for rows.Next() {
		var st org.Station
		if err := rows.Scan(&st.ID, &st.VOID, &st.Name, &st.CreatedAt); err != nil {
			return nil, err
		}
		stations = append(stations, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	org.SortStations(stations)
	return stations, nil
}
