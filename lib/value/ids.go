package value

import (
	"math"
	"strconv"
	"strings"
)

const (
	// IDField is the name of the application identifier carried by objects
	IDField = "id"

	// MaxSafeInteger is the largest integer a double represents exactly (2^53 - 1).
	// Generated ids are reduced modulo this bound so JavaScript clients can hold them.
	MaxSafeInteger int64 = 1<<53 - 1
)

// ParseID reads an id from a number or a decimal string. Non-integral, empty or
// out-of-range input yields ok=false.
func ParseID(v Value) (int64, bool) {
	switch v.kind {
	case KindNumber:
		if v.n != math.Trunc(v.n) || math.Abs(v.n) > float64(MaxSafeInteger) {
			return 0, false
		}
		return int64(v.n), true
	case KindString:
		id, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	}
	return 0, false
}

// ID returns the positive id of an object or file value
func (v Value) ID() (int64, bool) {
	var id int64
	switch v.kind {
	case KindObject:
		raw, ok := v.obj.Get(IDField)
		if !ok {
			return 0, false
		}
		id, ok = ParseID(raw)
		if !ok {
			return 0, false
		}
	case KindFile:
		id = v.file.ID
	default:
		return 0, false
	}
	if id <= 0 {
		return 0, false
	}
	return id, true
}

// SetID stores id on an object or file value in place. It returns false for other kinds.
func (v Value) SetID(id int64) bool {
	switch v.kind {
	case KindObject:
		v.obj.Set(IDField, Int(id))
		return true
	case KindFile:
		v.file.ID = id
		return true
	}
	return false
}

// Project applies a field filter. A nil filter returns a plain copy. Otherwise an
// object (or every object in a list) keeps only the fields whose names match the
// filter case-insensitively, plus "id" which is always kept. Blank filter entries
// are ignored, so an empty filter leaves only the id.
func Project(v Value, fields []string) Value {
	if fields == nil {
		return v.Clone()
	}
	wanted := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			wanted[strings.ToLower(f)] = struct{}{}
		}
	}
	return project(v, wanted)
}

func project(v Value, wanted map[string]struct{}) Value {
	switch v.kind {
	case KindObject:
		return FromObject(v.obj.project(wanted))
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			if item.kind == KindObject {
				items[i] = project(item, wanted)
			} else {
				items[i] = item.Clone()
			}
		}
		return List(items...)
	default:
		return v.Clone()
	}
}

// ParseFields splits a comma separated field list. The empty string yields an empty,
// non-nil filter.
func ParseFields(s string) []string {
	fields := []string{}
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}
