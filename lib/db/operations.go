package db

import (
	"errors"
	"io"

	"github.com/ma99us/MikeDB/lib/store"
	"github.com/ma99us/MikeDB/lib/value"
)

// --------------------------------------------------------------------------
// Interface Methods (docu see store.IStore)
// --------------------------------------------------------------------------

func (r *Registry) Get(dbName, key string, fields []string) (v value.Value, loaded bool, err error) {
	err = r.withDatabase(dbName, r.GetDatabase, func(d *Database) error {
		var current value.Value
		current, loaded = d.data[key]
		if loaded {
			v = value.Project(current, fields)
		}
		return nil
	})
	return v, loaded, err
}

func (r *Registry) GetItem(dbName, key string, id int64, fields []string) (v value.Value, loaded bool, err error) {
	if id <= store.NoID {
		return r.Get(dbName, key, fields)
	}
	err = r.withDatabase(dbName, r.GetDatabase, func(d *Database) error {
		current, ok := d.data[key]
		if !ok {
			return nil
		}
		var item value.Value
		if item, loaded = findByID(current, id); loaded {
			v = value.Project(item, fields)
		}
		return nil
	})
	return v, loaded, err
}

func (r *Registry) Count(dbName, key string) (count int64, err error) {
	err = r.withDatabase(dbName, r.GetDatabase, func(d *Database) error {
		current, ok := d.data[key]
		switch {
		case !ok:
			count = 0
		case current.IsList():
			count = int64(current.Len())
		case current.IsFile():
			rec, _ := current.AsFile()
			count = rec.Size
		default:
			count = 1
		}
		return nil
	})
	return count, err
}

func (r *Registry) Put(dbName, key string, v value.Value, sessionID string) (created bool, err error) {
	staged, err := r.stage(dbName, key, v)
	if err != nil {
		return false, err
	}
	defer r.unstage(staged)
	err = r.withDatabase(dbName, r.GetDatabase, func(d *Database) error {
		return r.put(d, key, v, sessionID, &created)
	})
	return created, err
}

func (r *Registry) put(d *Database, key string, v value.Value, sessionID string, created *bool) error {
	if err := r.prepare(d, key, v, nil); err != nil {
		return err
	}
	_, existed := d.data[key]
	*created = !existed
	r.commit(d, key, v, sessionID)
	return nil
}

func (r *Registry) Append(dbName, key string, v value.Value, index int, sessionID string) (created bool, err error) {
	if err := checkIndex(index); err != nil {
		return false, err
	}
	staged, err := r.stage(dbName, key, v)
	if err != nil {
		return false, err
	}
	defer r.unstage(staged)
	err = r.withDatabase(dbName, r.GetDatabase, func(d *Database) error {
		current, existed := d.data[key]
		list := asList(current)
		if err := r.prepare(d, key, v, usedIDs(value.List(list...))); err != nil {
			return err
		}
		updated, err := insertItems(list, v, index)
		if err != nil {
			return err
		}
		created = !existed
		r.commit(d, key, value.List(updated...), sessionID)
		return nil
	})
	return created, err
}

func (r *Registry) Update(dbName, key string, v value.Value, index int, sessionID string) (created bool, err error) {
	if err := checkIndex(index); err != nil {
		return false, err
	}
	staged, err := r.stage(dbName, key, v)
	if err != nil {
		return false, err
	}
	defer r.unstage(staged)
	err = r.withDatabase(dbName, r.GetDatabase, func(d *Database) error {
		current, existed := d.data[key]
		id, hasID := v.ID()
		if !existed || (index == store.NoIndex && !hasID) {
			return r.put(d, key, v, sessionID, &created)
		}

		list, isList := current.AsList()
		var updated value.Value
		switch {
		case !hasID:
			// replace by index
			if !isList {
				return store.Errorf(store.RetCValidation, "Value of key %q is not a list", key)
			}
			others, _ := removeAt(list, index)
			if err := r.prepare(d, key, v, usedIDs(value.List(others...))); err != nil {
				return err
			}
			items, err := replaceAt(list, v, index)
			if err != nil {
				return err
			}
			updated = value.List(items...)
		case !isList:
			if err := r.prepare(d, key, v, nil); err != nil {
				return err
			}
			if currentID, ok := current.ID(); ok && currentID == id {
				updated = v
			} else {
				updated = value.List(current, v)
			}
		default:
			if err := r.prepare(d, key, v, nil); err != nil {
				return err
			}
			var items []value.Value
			if index != store.NoIndex {
				var err error
				if items, err = moveByID(list, v, id, index); err != nil {
					return err
				}
			} else {
				var replaced bool
				if items, replaced = replaceByID(list, v, id); !replaced {
					items = append(items, v)
				}
			}
			updated = value.List(items...)
		}
		r.commit(d, key, updated, sessionID)
		return nil
	})
	return created, err
}

func (r *Registry) Remove(dbName, key string, sessionID string) (existed bool, err error) {
	if err := store.ValidateKey(key); err != nil {
		return false, err
	}
	err = r.withDatabase(dbName, r.GetDatabase, func(d *Database) error {
		if _, existed = d.data[key]; existed {
			r.commit(d, key, value.Null(), sessionID)
		}
		return nil
	})
	return existed, err
}

func (r *Registry) RemoveItem(dbName, key string, index int, id int64, sessionID string) (removed bool, err error) {
	if err := checkIndex(index); err != nil {
		return false, err
	}
	if index == store.NoIndex && id <= store.NoID {
		return r.Remove(dbName, key, sessionID)
	}
	if err := store.ValidateKey(key); err != nil {
		return false, err
	}
	err = r.withDatabase(dbName, r.GetDatabase, func(d *Database) error {
		current, ok := d.data[key]
		if !ok {
			return nil
		}
		list, isList := current.AsList()
		if index != store.NoIndex {
			if !isList {
				return store.Errorf(store.RetCValidation, "Value of key %q is not a list", key)
			}
			items, err := removeAt(list, index)
			if err != nil {
				return err
			}
			removed = true
			r.commit(d, key, value.List(items...), sessionID)
			return nil
		}
		if !isList {
			if currentID, ok := current.ID(); ok && currentID == id {
				removed = true
				r.commit(d, key, value.Null(), sessionID)
			}
			return nil
		}
		var items []value.Value
		if items, removed = removeByID(list, id); removed {
			r.commit(d, key, value.List(items...), sessionID)
		}
		return nil
	})
	return removed, err
}

func (r *Registry) DropDatabase(dbName, sessionID string) (allRemoved bool, err error) {
	err = r.withDatabase(dbName, r.GetDatabase, func(d *Database) error {
		allRemoved = r.drop(d, sessionID)
		return nil
	})
	return allRemoved, err
}

// drop removes every key. When all key files were removed the storage of a
// durable database is deleted and the instance evicted. The caller holds d.mu.
func (r *Registry) drop(d *Database, sessionID string) bool {
	allRemoved := true
	for _, key := range d.keys() {
		delete(d.data, key)
		r.removes.Inc()
		if !d.ephemeral && r.persist != nil {
			if err := r.persist.Store(d.name, key, value.Null()); err != nil {
				Logger.Errorf("failed to delete %s/%s: %v", d.name, key, err)
				allRemoved = false
			}
		}
		if !d.private && !store.IsPrivate(key) {
			r.notify().BroadcastChange(d.name, key, value.Null(), sessionID, store.EventDeleted)
		}
	}
	if allRemoved && !d.ephemeral && r.persist != nil {
		if err := r.persist.Delete(d.name); err != nil {
			Logger.Errorf("failed to delete database %s: %v", d.name, err)
			allRemoved = false
		}
	}
	if !allRemoved {
		Logger.Warningf("database %s was not dropped completely, keeping it open", d.name)
		return false
	}
	r.evict(d)
	r.drops.Inc()
	Logger.Infof("database %s dropped", d.name)
	return true
}

// --------------------------------------------------------------------------
// File content
// --------------------------------------------------------------------------

// OpenFile returns the file record stored under key together with a reader over
// its bytes. loaded is false when the key is absent or does not hold a file.
//
// Databases that are neither open nor stored are reported as absent without
// being created.
func (r *Registry) OpenFile(dbName, key string) (rec *value.FileRecord, content io.ReadCloser, loaded bool, err error) {
	err = r.withDatabase(dbName, r.lookupDatabase, func(d *Database) error {
		current, ok := d.data[key]
		if !ok {
			return nil
		}
		stored, isFile := current.AsFile()
		if !isFile {
			return nil
		}
		copied := *stored
		rec = &copied
		if stored.Data != nil || d.ephemeral || r.persist == nil {
			content = openContent(stored)
		} else {
			var openErr error
			if content, openErr = r.persist.OpenBlob(d.name, stored); openErr != nil {
				return openErr
			}
		}
		loaded = true
		return nil
	})
	if errors.Is(err, errNotOpen) {
		return nil, nil, false, nil
	}
	return rec, content, loaded, err
}
