package tracker

import (
	"context"
	"log/slog"

	"github.com/Barrelito/sam-a-sub000/org"
	"github.com/Barrelito/sam-a-sub000/task"
)

// ListVOs returns every VO for an admin and the actor's own VO otherwise.
func (s *Service) ListVOs(ctx context.Context, actor org.Principal) ([]*org.VO, error) {
	if actor.Role == org.RoleAdmin && actor.ID != "" {
		return s.orgs.ListVOs(ctx)
	}
	if actor.VOID == "" {
		return []*org.VO{}, nil
	}
	vo, err := s.orgs.GetVO(ctx, actor.VOID)
	if err != nil {
		if task.KindOf(err) == "not_found" {
			return []*org.VO{}, nil
		}
		return nil, err
	}
	return []*org.VO{vo}, nil
}

// CreateVO creates a VO. Only admins manage the organization.
func (s *Service) CreateVO(ctx context.Context, actor org.Principal, vo *org.VO) error {
	if actor.Role != org.RoleAdmin || actor.ID == "" {
		return task.Forbiddenf("only admins can create VOs")
	}
	if err := s.orgs.CreateVO(ctx, vo); err != nil {
		return err
	}
	s.logger.Info("vo created", slog.String("vo_id", vo.ID), slog.String("actor", actor.ID))
	return nil
}

// ListStations returns the stations of voID the actor may see: all of them
// for those managing the VO, otherwise only the actor's own.
func (s *Service) ListStations(ctx context.Context, actor org.Principal, voID string) ([]*org.Station, error) {
	if _, err := s.orgs.GetVO(ctx, voID); err != nil {
		return nil, err
	}
	stations, err := s.orgs.ListStations(ctx, voID)
	if err != nil {
		return nil, err
	}
	if actor.CanManageVO(voID) || actor.VOID == voID {
		if stations == nil {
			stations = []*org.Station{}
		}
		return stations, nil
	}
	out := make([]*org.Station, 0, len(stations))
	for _, st := range stations {
		if actor.MemberOf(st.ID) {
			out = append(out, st)
		}
	}
	return out, nil
}

// CreateStation adds a station to voID. Only admins manage the
// organization.
func (s *Service) CreateStation(ctx context.Context, actor org.Principal, voID string, st *org.Station) error {
	if actor.Role != org.RoleAdmin || actor.ID == "" {
		return task.Forbiddenf("only admins can create stations")
	}
	st.VOID = voID
	if err := s.orgs.CreateStation(ctx, st); err != nil {
		return err
	}
	s.logger.Info("station created",
		slog.String("station_id", st.ID),
		slog.String("vo_id", voID),
		slog.String("actor", actor.ID),
	)
	return nil
}
