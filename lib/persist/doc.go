// Package persist stores durable databases on disk, one directory per database
// and one file per key:
//
//	<root>/<dbName>/<key>.json           value file (or <key>.bin with the binary codec)
//	<root>/<dbName>/<key>.<type>.db      blob of a file value, e.g. avatar.png.db
//
// Writing a key touches only that key's files, so the cost of a mutation does not
// grow with the size of the database and no write-ahead log is needed. All files
// are written to a temp file first and renamed into place.
//
// Load enumerates the files of a database by extension. Value files are decoded
// with the codec matching their extension; blob files refresh the size, timestamp
// and locator of the file record stored under their key, or produce a new record
// when the descriptor is missing.
//
// Errors are returned as *store.Error with code RetCStorage. The registry logs
// them and keeps its in-memory state, which is authoritative.
package persist
