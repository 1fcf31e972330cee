// Package db holds the in-memory state of every database and implements
// store.IStore on top of it.
//
// A Registry maps database names to Database instances. A database is created
// on first access, loads its persisted keys lazily and is evicted when it is
// dropped or reclaimed:
//
//	UNLOADED -> RESIDENT -> EVICTED
//
// An evicted instance is never reused; the next access creates a fresh one.
//
// Naming rules:
//   - ":memory:<name>" databases are ephemeral. They are never persisted and are
//     reclaimed by Cleanup once they have not been written for AbandonAfter and
//     nobody is subscribed to them.
//   - Databases and keys starting with "." are private. Their changes are never
//     sent to subscribers.
//   - ".config" is reserved for server configuration and only reachable through
//     Registry.Config.
//
// Every operation runs under the lock of its database: reading the current value,
// assigning ids, persisting and notifying happen as one step. Objects and files
// without a positive "id" get one generated from the clock and hashes of the
// value, key and database name, unique within the list they are stored in.
//
// List operations (Append, Update, RemoveItem) address list elements by index
// or by id. Append promotes an absent key to an empty list and a single value to
// a one-element list.
package db
