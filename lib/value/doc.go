// Package value implements the dynamic, JSON-like data model of MikeDB.
//
// A Value is a tagged union over
//
//   - Null, Bool, Number (float64) and String
//   - List, an ordered sequence of values
//   - Object, an insertion-ordered map of named fields
//   - File, a FileRecord describing a binary blob stored next to a key
//
// Objects and file records are "entries": they carry a positive application
// identifier in their "id" field which is distinct from the key they are stored
// under. Lists never carry an id themselves. Ids are integers below 2^53 so they
// survive a round trip through JavaScript numbers (see MaxSafeInteger).
//
// The package also provides the JSON encoding used on the wire and on disk
// (field order is preserved, file records are tagged with "@type":"FileItem"),
// deep copies for handing values out of a locked database, and the field
// projection used by reads: names are matched case-insensitively and "id" is
// always kept.
package value
