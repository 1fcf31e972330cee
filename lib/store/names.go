package store

import "strings"

const (
	// EphemeralPrefix marks databases that live in memory only
	EphemeralPrefix = ":memory:"
	// PrivatePrefix marks databases and keys that never emit notifications
	PrivatePrefix = "."
	// ConfigDBName is the reserved database holding server configuration such as API keys
	ConfigDBName = ".config"
)

// ValidateKey checks that a key can be used as a file name inside a database
// directory: non-empty, no path separators or NUL, not "." or "..".
func ValidateKey(key string) error {
	if err := validateName(key); err != nil {
		return Errorf(RetCValidation, "Bad key %q: %s", key, err.Msg)
	}
	return nil
}

// ValidateDBName applies the key rules to the storage part of a database name.
// The ephemeral prefix itself is allowed.
func ValidateDBName(dbName string) error {
	name := strings.TrimPrefix(dbName, EphemeralPrefix)
	if err := validateName(name); err != nil {
		return Errorf(RetCValidation, "Bad database name %q: %s", dbName, err.Msg)
	}
	return nil
}

// IsEphemeral reports whether dbName denotes a memory-only database
func IsEphemeral(dbName string) bool {
	return strings.HasPrefix(dbName, EphemeralPrefix)
}

// IsPrivate reports whether a database or key name is excluded from notifications
func IsPrivate(name string) bool {
	return strings.HasPrefix(name, PrivatePrefix)
}

// IsConfigDB reports whether dbName is the reserved configuration database
func IsConfigDB(dbName string) bool {
	return strings.EqualFold(dbName, ConfigDBName)
}

func validateName(name string) *Error {
	switch {
	case name == "":
		return NewError(RetCValidation, "must not be empty")
	case name == "." || name == "..":
		return NewError(RetCValidation, "must not be a relative path")
	case strings.ContainsAny(name, "/\\\x00"):
		return NewError(RetCValidation, "must not contain path separators")
	}
	return nil
}
