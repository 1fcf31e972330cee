package hub

import (
	"sort"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/ma99us/MikeDB/lib/access"
	"github.com/ma99us/MikeDB/lib/db/util"
	"github.com/ma99us/MikeDB/lib/store"
	"github.com/ma99us/MikeDB/lib/value"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rcrowley/go-metrics"
)

var Logger = logger.GetLogger("hub")

// Conn is one duplex text-message connection, e.g. a WebSocket
type Conn interface {
	// ID identifies the connection for its whole lifetime
	ID() string
	// ReadMessage blocks until the next text message arrives
	ReadMessage() ([]byte, error)
	// WriteMessage sends one text message. It must be safe for concurrent use.
	WriteMessage(data []byte) error
	Close() error
}

// IAccessChecker decides whether an API key may use a database
type IAccessChecker interface {
	CheckAccess(apiKey string, level access.Level, dbName string) bool
}

// Subscriber is a connection attached to one database. Messages for it are queued
// and written by a dedicated goroutine, so a slow connection never blocks a writer.
type Subscriber struct {
	conn      Conn
	dbName    string
	apiKey    string
	sessionID string

	queue *util.LockFreeMPSC[[]byte]
	done  chan struct{}
}

// SessionID returns the session id assigned when the subscriber attached
func (s *Subscriber) SessionID() string { return s.sessionID }

// DBName returns the database the subscriber listens on
func (s *Subscriber) DBName() string { return s.dbName }

// Done is closed once every queued message was written
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) send(msg []byte) bool {
	if msg == nil {
		return false
	}
	return s.queue.PushValue(msg)
}

// subscriberList holds the subscribers of one database keyed by connection id
type subscriberList struct {
	mu   sync.Mutex
	subs map[string]*Subscriber
}

func (l *subscriberList) snapshot() []*Subscriber {
	l.mu.Lock()
	defer l.mu.Unlock()
	subs := make([]*Subscriber, 0, len(l.subs))
	for _, s := range l.subs {
		subs = append(subs, s)
	}
	return subs
}

// Hub fans change and session events out to the subscribers of each database
type Hub struct {
	checker IAccessChecker
	dbs     *xsync.MapOf[string, *subscriberList]

	metrics    metrics.Registry
	broadcasts metrics.Meter
	delivered  metrics.Meter
	failed     metrics.Counter
	sessions   metrics.Counter
}

// New creates a hub. checker authorizes the first message of a connection in Serve.
func New(checker IAccessChecker) *Hub {
	h := &Hub{
		checker:    checker,
		dbs:        xsync.NewMapOf[string, *subscriberList](),
		metrics:    metrics.NewRegistry(),
		broadcasts: metrics.NewMeter(),
		delivered:  metrics.NewMeter(),
		failed:     metrics.NewCounter(),
		sessions:   metrics.NewCounter(),
	}
	_ = h.metrics.Register("hub.broadcasts", h.broadcasts)
	_ = h.metrics.Register("hub.delivered", h.delivered)
	_ = h.metrics.Register("hub.failed", h.failed)
	_ = h.metrics.Register("hub.sessions", h.sessions)
	return h
}

// SessionIDFor returns the session id a connection gets on dbName
func SessionIDFor(conn Conn, dbName string) string {
	return util.HashStrings(dbName, conn.ID()).Base36()
}

// --------------------------------------------------------------------------
// Session lifecycle
// --------------------------------------------------------------------------

// Open attaches conn to dbName. The new subscriber first receives a NEW event,
// then every subscriber of the database (itself included) receives OPENED.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (h *Hub) Open(conn Conn, dbName, apiKey string) (*Subscriber, error) {
	sub := &Subscriber{
		conn:      conn,
		dbName:    dbName,
		apiKey:    apiKey,
		sessionID: SessionIDFor(conn, dbName),
		queue:     util.NewLockFreeMPSC[[]byte](),
		done:      make(chan struct{}),
	}

	attached := false
	h.dbs.Compute(dbName, func(list *subscriberList, loaded bool) (*subscriberList, bool) {
		if !loaded {
			list = &subscriberList{subs: make(map[string]*Subscriber)}
		}
		list.mu.Lock()
		defer list.mu.Unlock()
		if _, exists := list.subs[conn.ID()]; exists {
			return list, false
		}
		list.subs[conn.ID()] = sub
		// queued while the list is locked, so no broadcast can overtake it
		sub.send(encode(SessionEvent{Event: store.EventNew, SessionID: sub.sessionID}))
		attached = true
		return list, false
	})
	go h.deliver(sub)
	if !attached {
		sub.queue.Close()
		return nil, store.Errorf(store.RetCProtocol, "connection %s is already attached to %s", conn.ID(), dbName)
	}
	h.sessions.Inc(1)

	h.broadcast(dbName, encode(SessionEvent{Event: store.EventOpened, SessionID: sub.sessionID}))
	Logger.Infof("session %s opened on %s", sub.sessionID, dbName)
	return sub, nil
}

// Close detaches conn from dbName and tells the remaining subscribers. Queued
// messages of the closed subscriber are still written.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (h *Hub) Close(conn Conn, dbName string) {
	var sub *Subscriber
	h.dbs.Compute(dbName, func(list *subscriberList, loaded bool) (*subscriberList, bool) {
		if !loaded {
			return list, true
		}
		list.mu.Lock()
		defer list.mu.Unlock()
		sub = list.subs[conn.ID()]
		delete(list.subs, conn.ID())
		return list, len(list.subs) == 0
	})
	if sub == nil {
		return
	}
	sub.queue.Close()
	h.sessions.Dec(1)
	h.broadcast(dbName, encode(SessionEvent{Event: store.EventClosed, SessionID: sub.sessionID}))
	Logger.Infof("session %s closed on %s", sub.sessionID, dbName)
}

// deliver writes the queued messages of one subscriber until its queue is closed.
// Write errors are logged and do not affect other subscribers.
func (h *Hub) deliver(sub *Subscriber) {
	defer close(sub.done)
	for msg := range sub.queue.Recv() {
		if err := sub.conn.WriteMessage(*msg); err != nil {
			h.failed.Inc(1)
			Logger.Warningf("failed to send to session %s: %v", sub.sessionID, err)
			continue
		}
		h.delivered.Mark(1)
	}
}

// --------------------------------------------------------------------------
// Broadcast
// --------------------------------------------------------------------------

// broadcast queues msg for every subscriber of dbName
func (h *Hub) broadcast(dbName string, msg []byte) {
	if msg == nil {
		return
	}
	list, ok := h.dbs.Load(dbName)
	if !ok {
		return
	}
	h.broadcasts.Mark(1)
	for _, sub := range list.snapshot() {
		sub.send(msg)
	}
}

// BroadcastChange sends a ChangeEvent to the subscribers of dbName. The value is
// encoded before the call returns.
func (h *Hub) BroadcastChange(dbName, key string, v value.Value, sessionID string, event store.EventType) {
	if !h.HasActiveSubscribers(dbName) {
		return
	}
	h.broadcast(dbName, encode(ChangeEvent{
		Event:     event,
		SessionID: sessionID,
		DBName:    dbName,
		Key:       key,
		Value:     v,
	}))
}

// Relay forwards a message from a subscriber to every subscriber of dbName. A JSON
// object is stamped with the sender's session and the database name where those
// are missing; anything else is wrapped as "<sessionId> says: <message>".
func (h *Hub) Relay(dbName string, raw []byte, sessionID string) {
	if value.IsJSONObject(raw) {
		if v, err := value.Parse(raw); err == nil {
			obj, _ := v.AsObject()
			if _, ok := obj.Get("sessionId"); !ok {
				obj.Set("sessionId", value.String(sessionID))
			}
			if _, ok := obj.Get("dbName"); !ok {
				obj.Set("dbName", value.String(dbName))
			}
			h.broadcast(dbName, []byte(v.String()))
			return
		}
	}
	h.broadcast(dbName, []byte(sessionID+" says: "+string(raw)))
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

// HasActiveSubscribers reports whether any connection is attached to dbName
func (h *Hub) HasActiveSubscribers(dbName string) bool {
	return h.Count(dbName) > 0
}

// Count returns the number of subscribers of dbName
func (h *Hub) Count(dbName string) int {
	list, ok := h.dbs.Load(dbName)
	if !ok {
		return 0
	}
	list.mu.Lock()
	defer list.mu.Unlock()
	return len(list.subs)
}

// Stats summarizes the hub for the status endpoint
type Stats struct {
	Databases   map[string]int `json:"databases"`
	Subscribers int64          `json:"subscribers"`
	Broadcasts  int64          `json:"broadcasts"`
	Delivered   int64          `json:"delivered"`
	Failed      int64          `json:"failed"`
	RatePerMin  float64        `json:"deliveredPerMinute"`
}

// Stats returns subscriber counts per database and delivery counters
func (h *Hub) Stats() Stats {
	s := Stats{
		Databases:   make(map[string]int),
		Subscribers: h.sessions.Count(),
		Broadcasts:  h.broadcasts.Count(),
		Delivered:   h.delivered.Count(),
		Failed:      h.failed.Count(),
		RatePerMin:  h.delivered.Rate1() * 60,
	}
	h.dbs.Range(func(dbName string, list *subscriberList) bool {
		if n := len(list.snapshot()); n > 0 {
			s.Databases[dbName] = n
		}
		return true
	})
	return s
}

// Names returns the databases with at least one subscriber
func (h *Hub) Names() []string {
	stats := h.Stats()
	names := make([]string, 0, len(stats.Databases))
	for name := range stats.Databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shutdown closes every connection and stops the meters
func (h *Hub) Shutdown() {
	var all []*Subscriber
	h.dbs.Range(func(_ string, list *subscriberList) bool {
		all = append(all, list.snapshot()...)
		return true
	})
	for _, sub := range all {
		h.Close(sub.conn, sub.dbName)
		_ = sub.conn.Close()
	}
	h.broadcasts.Stop()
	h.delivered.Stop()
}
