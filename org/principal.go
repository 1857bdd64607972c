package org

import (
	"slices"

	"github.com/Barrelito/sam-a-sub000/task"
)

// Role is the organizational role of a principal.
type Role string

const (
	RoleAdmin            Role = "admin"
	RoleVOChief          Role = "vo_chief"
	RoleStationManager   Role = "station_manager"
	RoleAssistantManager Role = "assistant_manager"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleVOChief, RoleStationManager, RoleAssistantManager:
		return true
	}
	return false
}

// Principal is an authenticated actor. All permission and visibility
// decisions go through its methods; each role has exactly one policy.
type Principal struct {
	ID         string   `json:"id"`
	Username   string   `json:"username,omitempty"`
	Role       Role     `json:"role"`
	VOID       string   `json:"vo_id,omitempty"`
	StationIDs []string `json:"station_ids,omitempty"`
}

// MemberOf reports whether the principal belongs to stationID.
func (p Principal) MemberOf(stationID string) bool {
	return stationID != "" && slices.Contains(p.StationIDs, stationID)
}

// VisibilityPredicate returns the condition a task must satisfy for the
// principal to see it. Stores and in-memory filtering share this definition.
func (p Principal) VisibilityPredicate() task.Predicate { return p.policy().visibility(p) }

// CanSee reports whether t is visible to the principal.
func (p Principal) CanSee(t *task.Task) bool { return p.VisibilityPredicate().Match(t) }

// CanDistribute reports whether the principal may fan t out to stations.
func (p Principal) CanDistribute(t *task.Task) bool { return p.policy().canDistribute(p, t) }

// CanReview reports whether the principal may set the VO review flag and
// comment on t.
func (p Principal) CanReview(t *task.Task) bool { return p.policy().canReview(p, t) }

// CanEdit reports whether the principal may change status, assignment and
// notes of t.
func (p Principal) CanEdit(t *task.Task) bool { return p.policy().canEdit(p, t) }

// CanDelete reports whether the principal may delete t.
func (p Principal) CanDelete(t *task.Task) bool { return p.policy().canDelete(p, t) }

// CanCreate reports whether the principal may create t. Station tasks are
// checked against st, the station t is anchored to (nil otherwise).
func (p Principal) CanCreate(t *task.Task, st *Station) bool { return p.policy().canCreate(p, t, st) }

// CanManageVO reports whether the principal may monitor voID as a whole
// (overviews, review queue).
func (p Principal) CanManageVO(voID string) bool { return p.policy().canManageVO(p, voID) }

// CanViewStation reports whether the principal may see station summaries
// for st.
func (p Principal) CanViewStation(st *Station) bool {
	return p.CanManageVO(st.VOID) || p.MemberOf(st.ID)
}

type policy interface {
	visibility(p Principal) task.Predicate
	canDistribute(p Principal, t *task.Task) bool
	canReview(p Principal, t *task.Task) bool
	canEdit(p Principal, t *task.Task) bool
	canDelete(p Principal, t *task.Task) bool
	canCreate(p Principal, t *task.Task, st *Station) bool
	canManageVO(p Principal, voID string) bool
}

func (p Principal) policy() policy {
	if p.ID == "" {
		return denyPolicy{}
	}
	switch p.Role {
	case RoleAdmin:
		return adminPolicy{}
	case RoleVOChief:
		return chiefPolicy{}
	case RoleStationManager, RoleAssistantManager:
		return stationPolicy{}
	}
	return denyPolicy{}
}

type adminPolicy struct{}

func (adminPolicy) visibility(Principal) task.Predicate { return task.All() }

func (adminPolicy) canDistribute(_ Principal, t *task.Task) bool {
	return t.OwnerType == task.OwnerVO
}

func (adminPolicy) canReview(Principal, *task.Task) bool           { return true }
func (adminPolicy) canEdit(Principal, *task.Task) bool             { return true }
func (adminPolicy) canDelete(Principal, *task.Task) bool           { return true }
func (adminPolicy) canCreate(Principal, *task.Task, *Station) bool { return true }
func (adminPolicy) canManageVO(Principal, string) bool             { return true }

type chiefPolicy struct{}

func (chiefPolicy) visibility(p Principal) task.Predicate {
	return task.Or(
		task.Eq(task.FieldVOID, p.VOID),
		task.Eq(task.FieldCreatedBy, p.ID),
	)
}

func (chiefPolicy) canDistribute(p Principal, t *task.Task) bool {
	return t.OwnerType == task.OwnerVO && ownVO(p, t.VOID)
}

func (chiefPolicy) canReview(p Principal, t *task.Task) bool { return ownVO(p, t.VOID) }

func (c chiefPolicy) canEdit(p Principal, t *task.Task) bool {
	return c.visibility(p).Match(t)
}

func (chiefPolicy) canDelete(p Principal, t *task.Task) bool {
	return ownVO(p, t.VOID) || t.CreatedBy == p.ID
}

func (chiefPolicy) canCreate(p Principal, t *task.Task, st *Station) bool {
	switch t.OwnerType {
	case task.OwnerVO:
		return ownVO(p, t.VOID)
	case task.OwnerStation:
		return st != nil && ownVO(p, st.VOID)
	case task.OwnerPersonal:
		return true
	}
	return false
}

func (chiefPolicy) canManageVO(p Principal, voID string) bool { return ownVO(p, voID) }

type stationPolicy struct{}

func (stationPolicy) visibility(p Principal) task.Predicate {
	return task.Or(
		task.In(task.FieldStationID, p.StationIDs...),
		task.Eq(task.FieldVOID, p.VOID),
		task.Eq(task.FieldAssignedTo, p.ID),
		task.And(
			task.Eq(task.FieldOwnerType, task.OwnerPersonal),
			task.Eq(task.FieldCreatedBy, p.ID),
		),
	)
}

func (stationPolicy) canDistribute(Principal, *task.Task) bool { return false }
func (stationPolicy) canReview(Principal, *task.Task) bool     { return false }

// Managers see their whole VO but only work on their own stations,
// assignments and personal tasks.
func (stationPolicy) canEdit(p Principal, t *task.Task) bool {
	return p.MemberOf(t.StationID) ||
		(t.AssignedTo != "" && t.AssignedTo == p.ID) ||
		(t.OwnerType == task.OwnerPersonal && t.CreatedBy == p.ID)
}

func (stationPolicy) canDelete(p Principal, t *task.Task) bool {
	switch t.OwnerType {
	case task.OwnerPersonal:
		return t.CreatedBy == p.ID
	case task.OwnerStation:
		return t.ParentTaskID == "" && p.MemberOf(t.StationID)
	}
	return false
}

func (stationPolicy) canCreate(p Principal, t *task.Task, st *Station) bool {
	switch t.OwnerType {
	case task.OwnerStation:
		return st != nil && p.MemberOf(st.ID)
	case task.OwnerPersonal:
		return true
	}
	return false
}

func (stationPolicy) canManageVO(Principal, string) bool { return false }

type denyPolicy struct{}

func (denyPolicy) visibility(Principal) task.Predicate            { return task.None() }
func (denyPolicy) canDistribute(Principal, *task.Task) bool       { return false }
func (denyPolicy) canReview(Principal, *task.Task) bool           { return false }
func (denyPolicy) canEdit(Principal, *task.Task) bool             { return false }
func (denyPolicy) canDelete(Principal, *task.Task) bool           { return false }
func (denyPolicy) canCreate(Principal, *task.Task, *Station) bool { return false }
func (denyPolicy) canManageVO(Principal, string) bool             { return false }

func ownVO(p Principal, voID string) bool {
	return p.VOID != "" && p.VOID == voID
}
