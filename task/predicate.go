package task

import (
	"fmt"
	"strings"
)

// Field names a filterable task column.
type Field string

const (
	FieldVOID         Field = "vo_id"
	FieldStationID    Field = "station_id"
	FieldParentTaskID Field = "parent_task_id"
	FieldOwnerType    Field = "owner_type"
	FieldStatus       Field = "status"
	FieldCategory     Field = "category"
	FieldCreatedBy    Field = "created_by"
	FieldAssignedTo   Field = "assigned_to"
	FieldYear         Field = "year"
	FieldVOReviewed   Field = "vo_reviewed"
)

// Predicate is a condition over tasks. The same predicate can be rendered as
// a SQL WHERE clause for a store and evaluated against tasks already in
// memory; both interpretations agree, with empty identifiers behaving like
// SQL NULL (never equal to anything).
type Predicate interface {
	// Match reports whether t satisfies the predicate.
	Match(t *Task) bool

	writeSQL(b *strings.Builder, args []any) []any
}

// SQL renders p as a WHERE clause body using "?" placeholders.
func SQL(p Predicate) (string, []any) {
	if p == nil {
		p = All()
	}
	var b strings.Builder
	args := p.writeSQL(&b, nil)
	return b.String(), args
}

// FilterTasks returns the tasks in ts that satisfy p, preserving order.
func FilterTasks(ts []*Task, p Predicate) []*Task {
	out := make([]*Task, 0, len(ts))
	for _, t := range ts {
		if p.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

type constPred bool

// All matches every task.
func All() Predicate { return constPred(true) }

// None matches no task.
func None() Predicate { return constPred(false) }

func (c constPred) Match(*Task) bool { return bool(c) }

func (c constPred) writeSQL(b *strings.Builder, args []any) []any {
	if c {
		b.WriteString("1=1")
	} else {
		b.WriteString("1=0")
	}
	return args
}

type andPred []Predicate

// And matches tasks satisfying every p. And() with no arguments is All().
func And(ps ...Predicate) Predicate {
	flat := make(andPred, 0, len(ps))
	for _, p := range ps {
		switch v := p.(type) {
		case nil:
		case constPred:
			if !v {
				return None()
			}
		case andPred:
			flat = append(flat, v...)
		default:
			flat = append(flat, p)
		}
	}
	switch len(flat) {
	case 0:
		return All()
	case 1:
		return flat[0]
	}
	return flat
}

func (a andPred) Match(t *Task) bool {
	for _, p := range a {
		if !p.Match(t) {
			return false
		}
	}
	return true
}

func (a andPred) writeSQL(b *strings.Builder, args []any) []any {
	return writeJoined(b, args, a, " AND ")
}

type orPred []Predicate

// Or matches tasks satisfying at least one p. Or() with no arguments is None().
func Or(ps ...Predicate) Predicate {
	flat := make(orPred, 0, len(ps))
	for _, p := range ps {
		switch v := p.(type) {
		case nil:
		case constPred:
			if v {
				return All()
			}
		case orPred:
			flat = append(flat, v...)
		default:
			flat = append(flat, p)
		}
	}
	switch len(flat) {
	case 0:
		return None()
	case 1:
		return flat[0]
	}
	return flat
}

func (o orPred) Match(t *Task) bool {
	for _, p := range o {
		if p.Match(t) {
			return true
		}
	}
	return false
}

func (o orPred) writeSQL(b *strings.Builder, args []any) []any {
	return writeJoined(b, args, o, " OR ")
}

func writeJoined(b *strings.Builder, args []any, ps []Predicate, sep string) []any {
	b.WriteByte('(')
	for i, p := range ps {
		if i > 0 {
			b.WriteString(sep)
		}
		args = p.writeSQL(b, args)
	}
	b.WriteByte(')')
	return args
}

type eqPred struct {
	field Field
	value any
}

// Eq matches tasks whose field equals v. String values are compared as
// strings; an empty string never matches, mirroring SQL NULL semantics.
func Eq(f Field, v any) Predicate {
	v = normalize(v)
	if s, ok := v.(string); ok && s == "" {
		return None()
	}
	return eqPred{field: f, value: v}
}

func (e eqPred) Match(t *Task) bool {
	got, ok := fieldValue(t, e.field)
	if !ok {
		return false
	}
	return got == e.value
}

func (e eqPred) writeSQL(b *strings.Builder, args []any) []any {
	b.WriteString(string(e.field))
	b.WriteString(" = ?")
	return append(args, e.value)
}

type inPred struct {
	field  Field
	values []string
}

// In matches tasks whose string field is one of values.
func In(f Field, values ...string) Predicate {
	vs := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			vs = append(vs, v)
		}
	}
	switch len(vs) {
	case 0:
		return None()
	case 1:
		return Eq(f, vs[0])
	}
	return inPred{field: f, values: vs}
}

func (in inPred) Match(t *Task) bool {
	got, ok := fieldValue(t, in.field)
	if !ok {
		return false
	}
	for _, v := range in.values {
		if got == v {
			return true
		}
	}
	return false
}

func (in inPred) writeSQL(b *strings.Builder, args []any) []any {
	b.WriteString(string(in.field))
	b.WriteString(" IN (")
	for i, v := range in.values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('?')
		args = append(args, v)
	}
	b.WriteByte(')')
	return args
}

type nullPred struct {
	field Field
	null  bool
}

// IsNull matches tasks whose identifier field is unset.
func IsNull(f Field) Predicate { return nullPred{field: f, null: true} }

// NotNull matches tasks whose identifier field is set.
func NotNull(f Field) Predicate { return nullPred{field: f, null: false} }

func (n nullPred) Match(t *Task) bool {
	_, ok := fieldValue(t, n.field)
	return ok != n.null
}

func (n nullPred) writeSQL(b *strings.Builder, args []any) []any {
	b.WriteString(string(n.field))
	if n.null {
		b.WriteString(" IS NULL")
	} else {
		b.WriteString(" IS NOT NULL")
	}
	return args
}

type monthPred int

// InMonth matches tasks active in month m, see Task.MatchesMonth.
func InMonth(m int) Predicate { return monthPred(m) }

func (m monthPred) Match(t *Task) bool { return t.MatchesMonth(int(m)) }

func (m monthPred) writeSQL(b *strings.Builder, args []any) []any {
	b.WriteString("(is_recurring_monthly = ? OR (start_month IS NOT NULL AND start_month <= ? AND COALESCE(end_month, start_month) >= ?))")
	return append(args, true, int(m), int(m))
}

func normalize(v any) any {
	switch x := v.(type) {
	case Status:
		return string(x)
	case OwnerType:
		return string(x)
	case int64:
		return int(x)
	}
	return v
}

// fieldValue returns the comparable value of f on t. The boolean is false
// when the field is unset (NULL in storage).
func fieldValue(t *Task, f Field) (any, bool) {
	var s string
	switch f {
	case FieldVOID:
		s = t.VOID
	case FieldStationID:
		s = t.StationID
	case FieldParentTaskID:
		s = t.ParentTaskID
	case FieldOwnerType:
		s = string(t.OwnerType)
	case FieldStatus:
		s = string(t.Status)
	case FieldCategory:
		s = t.Category
	case FieldCreatedBy:
		s = t.CreatedBy
	case FieldAssignedTo:
		s = t.AssignedTo
	case FieldYear:
		return t.Year, true
	case FieldVOReviewed:
		return t.VOReviewed, true
	default:
		panic(fmt.Sprintf("task: unknown predicate field %q", f))
	}
	return s, s != ""
}
