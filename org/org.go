// Package org models the two-level organization (VO and stations) and the
// principals acting within it.
package org

import (
	"context"
	"slices"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// VO is a regional operating area owning zero or more stations.
type VO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Station is a local operating unit. Its VO never changes after creation.
type Station struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	VOID      string    `json:"vo_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists VOs and stations.
type Store interface {
	CreateVO(ctx context.Context, vo *VO) error
	GetVO(ctx context.Context, id string) (*VO, error)
	ListVOs(ctx context.Context) ([]*VO, error)

	CreateStation(ctx context.Context, st *Station) error
	GetStation(ctx context.Context, id string) (*Station, error)

	// ListStations returns the stations of voID, or every station when voID
	// is empty.
	ListStations(ctx context.Context, voID string) ([]*Station, error)

	// StationsByID returns the stations with the given IDs. Unknown IDs are
	// omitted.
	StationsByID(ctx context.Context, ids []string) ([]*Station, error)
}

var swedish = language.Swedish

// SortStations orders stations by name using Swedish collation, so that
// Å, Ä and Ö sort after Z.
func SortStations(stations []*Station) {
	c := collate.New(swedish, collate.IgnoreCase)
	slices.SortStableFunc(stations, func(a, b *Station) int {
		if n := c.CompareString(a.Name, b.Name); n != 0 {
			return n
		}
		return c.CompareString(a.ID, b.ID)
	})
}

// SortVOs orders VOs by name using Swedish collation.
func SortVOs(vos []*VO) {
	c := collate.New(swedish, collate.IgnoreCase)
	slices.SortStableFunc(vos, func(a, b *VO) int {
		return c.CompareString(a.Name, b.Name)
	})
}

// SeedVO describes a VO and its stations to create at startup.
type SeedVO struct {
	ID       string
	Name     string
	Stations []SeedStation
}

// SeedStation describes a station to create at startup.
type SeedStation struct {
	ID   string
	Name string
}

// Seed creates the VOs and stations that do not exist yet. Existing rows
// are left untouched, so Seed can run on every start.
func Seed(ctx context.Context, s Store, vos []SeedVO) (created int, err error) {
	for _, v := range vos {
		if _, err := s.GetVO(ctx, v.ID); err != nil {
			if !isNotFound(err) {
				return created, err
			}
			if err := s.CreateVO(ctx, &VO{ID: v.ID, Name: v.Name}); err != nil {
				return created, err
			}
			created++
		}
		for _, st := range v.Stations {
			if _, err := s.GetStation(ctx, st.ID); err == nil {
				continue
			} else if !isNotFound(err) {
				return created, err
			}
			if err := s.CreateStation(ctx, &Station{ID: st.ID, Name: st.Name, VOID: v.ID}); err != nil {
				return created, err
			}
			created++
		}
	}
	return created, nil
}
