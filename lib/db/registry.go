package db

import (
	"errors"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/ma99us/MikeDB/lib/db/util"
	"github.com/ma99us/MikeDB/lib/persist"
	"github.com/ma99us/MikeDB/lib/store"
	"github.com/ma99us/MikeDB/lib/value"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("db")

const (
	// DefaultAbandonAfter is the idle time after which an ephemeral database may be reclaimed
	DefaultAbandonAfter = time.Hour
	// MaxMemoryFileSize bounds the bytes of a file kept in an ephemeral database
	MaxMemoryFileSize = 32 << 20
)

// errNotOpen is returned by lookupDatabase for a database that is neither
// resident nor stored on disk
var errNotOpen = errors.New("database is not open")

// INotifier receives the changes of non-private databases and keys. It is
// implemented by the subscriber hub.
type INotifier interface {
	// BroadcastChange is called with the database lock held. v must not be
	// retained after the call returns.
	BroadcastChange(dbName, key string, v value.Value, sessionID string, event store.EventType)
	// HasActiveSubscribers reports whether any connection listens on dbName
	HasActiveSubscribers(dbName string) bool
}

type noopNotifier struct{}

func (noopNotifier) BroadcastChange(string, string, value.Value, string, store.EventType) {}
func (noopNotifier) HasActiveSubscribers(string) bool                                   { return false }

type notifierRef struct{ INotifier }

// Options configures a Registry
type Options struct {
	// Persist stores durable databases. Nil keeps every database in memory.
	Persist *persist.Store
	// Notifier receives change events, nil discards them. See also SetNotifier.
	Notifier INotifier
	// AbandonAfter is the idle time after which Cleanup reclaims an ephemeral
	// database (0 = DefaultAbandonAfter)
	AbandonAfter time.Duration
	// Clock replaces time.Now (tests)
	Clock func() time.Time
}

// Registry owns every open database. Databases are created lazily on first
// access and evicted on drop or reclamation. It implements store.IStore.
type Registry struct {
	persist      *persist.Store
	notifier     atomic.Pointer[notifierRef]
	abandonAfter time.Duration
	clock        func() time.Time

	dbs *xsync.MapOf[string, *Database]

	// ephemeral databases ordered by last mutation
	idleMu sync.Mutex
	idle   *util.MapHeap[string]

	metrics   *metrics.Set
	puts      *metrics.Counter
	removes   *metrics.Counter
	drops     *metrics.Counter
	reclaimed *metrics.Counter
}

// New creates a registry
func New(opts Options) *Registry {
	r := &Registry{
		persist:      opts.Persist,
		abandonAfter: opts.AbandonAfter,
		clock:        opts.Clock,
		dbs:          xsync.NewMapOf[string, *Database](),
		idle:         util.NewMapHeap[string](),
		metrics:      metrics.NewSet(),
	}
	if r.abandonAfter <= 0 {
		r.abandonAfter = DefaultAbandonAfter
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	r.SetNotifier(opts.Notifier)

	r.puts = r.metrics.NewCounter("mikedb_writes_total")
	r.removes = r.metrics.NewCounter("mikedb_removes_total")
	r.drops = r.metrics.NewCounter("mikedb_dropped_databases_total")
	r.reclaimed = r.metrics.NewCounter("mikedb_reclaimed_databases_total")
	r.metrics.NewGauge("mikedb_open_databases", func() float64 {
		return float64(r.dbs.Size())
	})
	if r.persist != nil {
		sizes := r.persist.Sizes()
		r.metrics.NewGauge("mikedb_persisted_bytes_total", func() float64 { return float64(sizes.Sum()) })
		r.metrics.NewGauge("mikedb_persisted_bytes_median", func() float64 { return float64(sizes.MedianEstimate()) })
	}
	return r
}

// SetNotifier replaces the change receiver. The hub is created after the
// registry, so the server installs it once both exist.
func (r *Registry) SetNotifier(n INotifier) {
	if n == nil {
		n = noopNotifier{}
	}
	r.notifier.Store(&notifierRef{n})
}

func (r *Registry) notify() INotifier { return r.notifier.Load().INotifier }

func (r *Registry) nowNanos() int64 { return r.clock().UnixNano() }

// WritePrometheus writes the registry metrics in Prometheus text format
func (r *Registry) WritePrometheus(w io.Writer) { r.metrics.WritePrometheus(w) }

// --------------------------------------------------------------------------
// Database lookup
// --------------------------------------------------------------------------

// GetDatabase returns the database for name, creating it on first use. Invalid
// names and the configuration database are rejected.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Registry) GetDatabase(name string) (*Database, error) {
	if err := store.ValidateDBName(name); err != nil {
		return nil, err
	}
	if store.IsConfigDB(name) {
		return nil, store.Errorf(store.RetCValidation, "Bad database name %q: reserved", name)
	}
	return r.resolve(name), nil
}

// lookupDatabase is GetDatabase without creating instances for names that hold
// nothing. Resident databases and durable ones with a directory are returned.
func (r *Registry) lookupDatabase(name string) (*Database, error) {
	if err := store.ValidateDBName(name); err != nil {
		return nil, err
	}
	if store.IsConfigDB(name) {
		return nil, errNotOpen
	}
	if d, ok := r.dbs.Load(name); ok {
		return d, nil
	}
	if store.IsEphemeral(name) || r.persist == nil || !r.persist.Exists(name) {
		return nil, errNotOpen
	}
	return r.resolve(name), nil
}

func (r *Registry) resolve(name string) *Database {
	d, _ := r.dbs.LoadOrCompute(name, func() *Database {
		return newDatabase(name)
	})
	return d
}

// OpenedNames returns the names of all databases currently in the registry
func (r *Registry) OpenedNames() []string {
	names := make([]string, 0, r.dbs.Size())
	r.dbs.Range(func(name string, _ *Database) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// withDatabase runs fn with the lock of a resident database held. An evicted
// instance is re-resolved, so fn never sees a dead database.
func (r *Registry) withDatabase(name string, resolve func(string) (*Database, error), fn func(d *Database) error) error {
	for {
		d, err := resolve(name)
		if err != nil {
			return err
		}
		d.mu.Lock()
		if d.state == StateEvicted {
			d.mu.Unlock()
			continue
		}
		if err := d.load(r.persist); err != nil {
			d.mu.Unlock()
			Logger.Errorf("failed to load database %s: %v", name, err)
			return err
		}
		err = fn(d)
		d.mu.Unlock()
		return err
	}
}

// evict removes d from the registry if it is still the registered instance.
// The caller holds d.mu.
func (r *Registry) evict(d *Database) {
	d.state = StateEvicted
	d.data = nil
	r.dbs.Compute(d.name, func(old *Database, loaded bool) (*Database, bool) {
		if loaded && old != d {
			return old, false
		}
		return old, true
	})
	if d.ephemeral {
		r.idleMu.Lock()
		r.idle.RemoveByKey(d.name)
		r.idleMu.Unlock()
	}
}

// --------------------------------------------------------------------------
// Mutation core (callers hold d.mu)
// --------------------------------------------------------------------------

// commit makes v the value of key (null deletes it), persists durable databases
// and notifies subscribers of non-private databases and keys. Storage failures are
// logged; the in-memory state is kept.
func (r *Registry) commit(d *Database, key string, v value.Value, sessionID string) {
	event := store.EventUpdated
	if v.IsNull() {
		delete(d.data, key)
		event = store.EventDeleted
		r.removes.Inc()
	} else {
		d.data[key] = v
		r.puts.Inc()
	}

	now := r.clock()
	d.lastMutated = now
	if d.ephemeral {
		r.idleMu.Lock()
		r.idle.AddItem(d.name, now.UnixNano())
		r.idleMu.Unlock()
	}

	if !d.ephemeral && r.persist != nil {
		if err := r.persist.Store(d.name, key, v); err != nil {
			Logger.Errorf("failed to persist %s/%s: %v", d.name, key, err)
		}
	}

	if !d.private && !store.IsPrivate(key) {
		r.notify().BroadcastChange(d.name, key, v, sessionID, event)
	}
}

// stage reads the pending content of an upload before the database lock is
// taken. Durable databases get it in a temp file, ephemeral ones in memory. The
// returned path must be passed to unstage once the operation is done.
func (r *Registry) stage(dbName, key string, v value.Value) (string, error) {
	rec, ok := v.AsFile()
	if !ok || rec.Content == nil {
		return "", nil
	}
	if err := store.ValidateDBName(dbName); err != nil {
		return "", err
	}
	if err := store.ValidateKey(key); err != nil {
		return "", err
	}
	if store.IsEphemeral(dbName) || r.persist == nil {
		return "", readContent(v)
	}
	if err := r.persist.StageBlob(rec); err != nil {
		return "", store.Errorf(store.RetCValidation, "failed to read upload: %v", err)
	}
	return rec.Staged, nil
}

// unstage drops a staged upload the operation did not commit
func (r *Registry) unstage(path string) {
	if r.persist != nil {
		r.persist.DiscardStaged(path)
	}
}

// prepare validates an incoming value and gives it ids. used holds the ids of the
// list the value goes into (nil for a whole-value write).
func (r *Registry) prepare(d *Database, key string, v value.Value, used map[int64]struct{}) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	if v.IsNull() {
		return store.Errorf(store.RetCValidation, "Null value for key %q", key)
	}
	if used == nil {
		used = make(map[int64]struct{})
	}
	assignIDs(v, d.name, key, used, r.nowNanos)
	if d.ephemeral || r.persist == nil {
		return readContent(v)
	}
	return nil
}

func checkIndex(index int) error {
	if index < store.NoIndex {
		return badIndex(index)
	}
	return nil
}
