// Package store defines the contract of the MikeDB document store: the IStore
// interface, the structured Error type with its return codes, and the naming
// rules for databases and keys.
//
// Key Components:
//
//   - IStore Interface: the operations on a named database (get, put, remove,
//     list-level append/update/remove and database drop). The in-process registry
//     (package db) and the HTTP client (package rpc/client) both implement it, so
//     the command line tools work the same against either.
//
//   - Error System: a structured error carrying a RetCode. The codes mirror the
//     failure taxonomy of the store: validation errors (bad key, null value, bad
//     index, shape mismatch), authorization errors, storage errors, protocol
//     errors and internal errors. Absent values are never errors.
//
//   - Names: keys and database names become file names inside the data directory,
//     so they must not contain path separators. Names starting with ":memory:"
//     denote ephemeral databases, names starting with "." are private and never
//     produce notifications, and ".config" is reserved for server configuration.
package store
