package db

import (
	"github.com/ma99us/MikeDB/lib/db/util"
	"github.com/ma99us/MikeDB/lib/value"
)

// idSource produces the time component of generated ids. It is the registry clock
// in nanoseconds.
type idSource func() int64

// assignIDs gives every object or file in v without a positive id a new one,
// descending into lists. used holds the ids already taken in the list the value
// goes into; generated ids are added to it.
//
// id = (now + hash(value) + hash(key) + hash(dbName)) mod MaxSafeInteger, 0 maps
// to 1 and ids found in used are skipped. Ids are unique within one list only.
func assignIDs(v value.Value, dbName, key string, used map[int64]struct{}, now idSource) {
	if items, ok := v.AsList(); ok {
		for _, item := range items {
			if id, ok := item.ID(); ok {
				used[id] = struct{}{}
			}
		}
		for _, item := range items {
			assignIDs(item, dbName, key, used, now)
		}
		return
	}
	if !v.Identifiable() {
		return
	}
	if id, ok := v.ID(); ok {
		used[id] = struct{}{}
		return
	}
	id := generateID(v, dbName, key, used, now)
	v.SetID(id)
	used[id] = struct{}{}
}

func generateID(v value.Value, dbName, key string, used map[int64]struct{}, now idSource) int64 {
	sum := uint64(now()) +
		uint64(util.HashString(v.String(), 0)) +
		uint64(util.HashString(key, 0)) +
		uint64(util.HashString(dbName, 0))
	id := int64(sum % uint64(value.MaxSafeInteger))
	for {
		if id == 0 {
			id = 1
		}
		if _, taken := used[id]; !taken {
			return id
		}
		id = (id + 1) % value.MaxSafeInteger
	}
}
