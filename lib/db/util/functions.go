package util

import "strconv"

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// UintKey is the hash value type
type UintKey uint64

// HashString generates a hash value for a string with a seed
// This function uses the FNV-1a hash algorithm, which is fast and has good distribution
func HashString(s string, seed uint64) UintKey {

	// FNV-1a hash with seed incorporation
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed

	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}

	return UintKey(hash)
}

// HashStrings chains HashString over all parts, each part seeding the next.
// The parts are separated so ("ab","c") and ("a","bc") hash differently.
func HashStrings(parts ...string) UintKey {
	var h UintKey
	for _, p := range parts {
		h = HashString(p, uint64(h)^0x9e3779b97f4a7c15)
	}
	return h
}

// Base36 renders a hash compactly, e.g. for session identifiers
func (k UintKey) Base36() string {
	return strconv.FormatUint(uint64(k), 36)
}
