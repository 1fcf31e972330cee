package db

import (
	"github.com/ma99us/MikeDB/lib/store"
	"github.com/ma99us/MikeDB/lib/value"
)

// ConfigStore gives the access package its view of the reserved configuration
// database, which GetDatabase refuses to hand out.
type ConfigStore struct {
	r *Registry
}

// Config returns the configuration store of the registry
func (r *Registry) Config() *ConfigStore { return &ConfigStore{r: r} }

func resolveConfig(r *Registry) func(string) (*Database, error) {
	return func(name string) (*Database, error) { return r.resolve(name), nil }
}

// GetConfig returns a copy of a configuration value
func (c *ConfigStore) GetConfig(key string) (v value.Value, loaded bool) {
	err := c.r.withDatabase(store.ConfigDBName, resolveConfig(c.r), func(d *Database) error {
		var current value.Value
		if current, loaded = d.data[key]; loaded {
			v = current.Clone()
		}
		return nil
	})
	if err != nil {
		Logger.Errorf("failed to read configuration %s: %v", key, err)
		return value.Null(), false
	}
	return v, loaded
}

// PutConfig replaces a configuration value and persists it
func (c *ConfigStore) PutConfig(key string, v value.Value) error {
	return c.r.withDatabase(store.ConfigDBName, resolveConfig(c.r), func(d *Database) error {
		if err := store.ValidateKey(key); err != nil {
			return err
		}
		if v.IsNull() {
			if _, ok := d.data[key]; ok {
				c.r.commit(d, key, v, "")
			}
			return nil
		}
		c.r.commit(d, key, v.Clone(), "")
		return nil
	})
}

// Reload drops the in-memory copy of the configuration database so the next
// access reads it from disk again.
func (c *ConfigStore) Reload() error {
	d := c.r.resolve(store.ConfigDBName)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateResident {
		d.state = StateUnloaded
		d.data = nil
	}
	return nil
}

// Dir returns the directory the configuration database is persisted in, "" when
// the registry keeps everything in memory.
func (c *ConfigStore) Dir() string {
	if c.r.persist == nil {
		return ""
	}
	return c.r.persist.DatabaseDir(store.ConfigDBName)
}
