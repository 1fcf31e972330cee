package db

import "time"

// Cleanup drops every ephemeral database that is abandoned and has no active
// subscribers. Durable databases are never reclaimed. It returns the number of
// dropped databases.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Registry) Cleanup() int {
	now := r.clock()
	cutoff := now.Add(-r.abandonAfter)

	r.idleMu.Lock()
	candidates := r.idle.PopUntil(cutoff.UnixNano())
	r.idleMu.Unlock()

	dropped := 0
	for _, name := range candidates {
		d, ok := r.dbs.Load(name)
		if !ok {
			continue
		}
		d.mu.Lock()
		switch {
		case d.state == StateEvicted:
		case !d.isAbandoned(now, r.abandonAfter):
			// written since it was queued; commit has queued it again
		case r.notify().HasActiveSubscribers(name):
			r.requeue(d)
		default:
			Logger.Infof("reclaiming abandoned database %s (last write %s)", name, d.lastMutated.Format("2006-01-02 15:04:05"))
			r.drop(d, "")
			r.reclaimed.Inc()
			dropped++
		}
		d.mu.Unlock()
	}
	return dropped
}

// requeue puts an abandoned database with subscribers back so the next sweep
// looks at it again. The caller holds d.mu.
func (r *Registry) requeue(d *Database) {
	r.idleMu.Lock()
	r.idle.AddItem(d.name, d.lastMutated.UnixNano())
	r.idleMu.Unlock()
}

// AbandonAfter returns the idle time after which ephemeral databases are reclaimed
func (r *Registry) AbandonAfter() time.Duration { return r.abandonAfter }
