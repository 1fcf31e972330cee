package db

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/ma99us/MikeDB/lib/persist"
	"github.com/ma99us/MikeDB/lib/store"
	"github.com/ma99us/MikeDB/lib/value"
)

// State is the lifecycle state of a Database instance
type State int

const (
	StateUnloaded State = iota // created, persisted keys not read yet
	StateResident              // keys are in memory
	StateEvicted               // dropped or reclaimed, the instance is dead
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "UNLOADED"
	case StateResident:
		return "RESIDENT"
	case StateEvicted:
		return "EVICTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Database is the in-memory key -> value map of one database. The map is the
// authoritative state; durable databases mirror every change to the persistent store.
//
// All fields below mu are guarded by it. The registry holds the lock for the
// whole read-modify-persist-notify sequence of an operation.
type Database struct {
	name      string
	ephemeral bool
	private   bool

	mu          sync.Mutex
	state       State
	data        map[string]value.Value
	lastMutated time.Time // zero until the first mutation
}

func newDatabase(name string) *Database {
	return &Database{
		name:      name,
		ephemeral: store.IsEphemeral(name),
		private:   store.IsPrivate(name),
		state:     StateUnloaded,
	}
}

// Name returns the database name
func (d *Database) Name() string { return d.name }

// IsEphemeral reports whether the database lives in memory only
func (d *Database) IsEphemeral() bool { return d.ephemeral }

// IsPrivate reports whether changes of the database are kept from subscribers
func (d *Database) IsPrivate() bool { return d.private }

// State returns the current lifecycle state
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *Database) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// LastMutated returns the time of the last write, zero if there was none
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *Database) LastMutated() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastMutated
}

// IsAbandoned reports whether the database was mutated at least once and not
// within abandonAfter before now. A database that was never written is not abandoned.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *Database) IsAbandoned(now time.Time, abandonAfter time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isAbandoned(now, abandonAfter)
}

func (d *Database) isAbandoned(now time.Time, abandonAfter time.Duration) bool {
	return !d.lastMutated.IsZero() && now.Sub(d.lastMutated) >= abandonAfter
}

// --------------------------------------------------------------------------
// Helper (callers hold mu)
// --------------------------------------------------------------------------

// load reads the persisted keys of a durable database. An ephemeral database
// starts empty. On failure the state stays UNLOADED so the next access retries.
func (d *Database) load(p *persist.Store) error {
	if d.state != StateUnloaded {
		return nil
	}
	data := make(map[string]value.Value)
	if !d.ephemeral && p != nil {
		loaded, err := p.Load(d.name)
		if err != nil {
			return err
		}
		data = loaded
	}
	d.data = data
	d.state = StateResident
	return nil
}

// keys returns the keys in sorted order
func (d *Database) keys() []string {
	keys := make([]string, 0, len(d.data))
	for k := range d.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// usedIDs collects the ids of the elements of a list value
func usedIDs(v value.Value) map[int64]struct{} {
	used := make(map[int64]struct{})
	items, _ := v.AsList()
	for _, item := range items {
		if id, ok := item.ID(); ok {
			used[id] = struct{}{}
		}
	}
	return used
}

// readContent moves a pending upload stream into memory. Ephemeral databases
// keep file bytes in the record itself.
func readContent(v value.Value) error {
	rec, ok := v.AsFile()
	if !ok || rec.Content == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(rec.Content, MaxMemoryFileSize+1))
	if err != nil {
		return store.Errorf(store.RetCValidation, "failed to read upload: %v", err)
	}
	if len(data) > MaxMemoryFileSize {
		return store.Errorf(store.RetCValidation, "File exceeds %d bytes", MaxMemoryFileSize)
	}
	rec.Content = nil
	rec.Data = data
	rec.Size = int64(len(data))
	rec.ModTime = time.Now()
	return nil
}

// openContent returns a reader over the bytes of a file kept in memory
func openContent(rec *value.FileRecord) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(rec.Data))
}
