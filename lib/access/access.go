package access

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/ma99us/MikeDB/lib/value"
)

var Logger = logger.GetLogger("access")

// APIKeysKey is the key of the configuration database holding all API keys
const APIKeysKey = "api-keys"

// Level is the access level of a grant or a request
type Level string

const (
	READ  Level = "READ"
	WRITE Level = "WRITE"
)

// ParseLevel accepts "read" or "write" in any case
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case READ:
		return READ, nil
	case WRITE:
		return WRITE, nil
	}
	return "", fmt.Errorf("invalid access level %q (expected READ or WRITE)", s)
}

// Grant gives an API key an access level on every database matching a pattern.
// A pattern is a database name, "*", or a prefix followed by "*".
type Grant struct {
	DBName string `yaml:"dbName" json:"dbName"`
	Access Level  `yaml:"access" json:"access"`
}

// Matches reports whether the grant's pattern covers dbName
func (g Grant) Matches(dbName string) bool {
	if g.DBName == dbName || g.DBName == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(g.DBName, "*"); ok {
		return strings.HasPrefix(dbName, prefix)
	}
	return false
}

// Authorizes reports whether the grant allows the requested level. WRITE implies READ.
func (g Grant) Authorizes(level Level) bool {
	return g.Access == level || g.Access == WRITE
}

// IConfigStore gives access to the reserved configuration database
type IConfigStore interface {
	// GetConfig returns a copy of a configuration value
	GetConfig(key string) (value.Value, bool)
	// PutConfig replaces a configuration value
	PutConfig(key string, v value.Value) error
}

// Checker evaluates API keys against the grants stored in the configuration database.
// Grants are read on every check, so changes take effect immediately.
type Checker struct {
	cfg   IConfigStore
	seeds map[string][]Grant

	booted  atomic.Bool
	writeMu sync.Mutex // serializes read-modify-write of the key table
}

// NewChecker creates a checker. extraSeeds are merged into the default seed grants
// and written to the configuration database on first use for keys it does not know yet.
func NewChecker(cfg IConfigStore, extraSeeds map[string][]Grant) *Checker {
	seeds := DefaultSeeds()
	for key, grants := range extraSeeds {
		seeds[key] = append(seeds[key], grants...)
	}
	return &Checker{cfg: cfg, seeds: seeds}
}

// CheckAccess reports whether apiKey grants level on dbName. Blank or unknown keys,
// keys without a matching grant and malformed key records are denied.
func (c *Checker) CheckAccess(apiKey string, level Level, dbName string) bool {
	if strings.TrimSpace(apiKey) == "" {
		Logger.Warningf("access denied to %s: missing API key", dbName)
		return false
	}
	if err := c.Bootstrap(); err != nil {
		Logger.Errorf("access denied to %s: %v", dbName, err)
		return false
	}

	grants, found, err := c.grantsOf(apiKey)
	if err != nil {
		Logger.Errorf("access denied to %s: malformed configuration: %v", dbName, err)
		return false
	}
	if !found {
		Logger.Warningf("access denied to %s: unknown API key", dbName)
		return false
	}
	for _, g := range grants {
		if g.Matches(dbName) && g.Authorizes(level) {
			return true
		}
	}
	Logger.Warningf("access denied to %s: API key has no %s grant", dbName, level)
	return false
}

// Bootstrap writes the seed grants on first use. It is safe to call repeatedly;
// after a failure the next call tries again.
func (c *Checker) Bootstrap() error {
	if c.booted.Load() {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.booted.Load() {
		return nil
	}

	table, err := c.readTable()
	if err != nil {
		return err
	}
	added := 0
	for _, key := range sortedKeys(c.seeds) {
		if _, ok := table.Get(key); ok {
			continue
		}
		table.Set(key, recordValue(c.seeds[key]))
		added++
	}
	if added > 0 {
		if err := c.cfg.PutConfig(APIKeysKey, value.FromObject(table)); err != nil {
			return fmt.Errorf("failed to write seed API keys: %w", err)
		}
		Logger.Infof("bootstrapped %d API key(s) into the configuration database", added)
	}
	c.booted.Store(true)
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// readTable returns the key table, an empty one if none exists yet
func (c *Checker) readTable() (*value.Object, error) {
	v, ok := c.cfg.GetConfig(APIKeysKey)
	if !ok || v.IsNull() {
		return value.NewObject(), nil
	}
	table, ok := v.AsObject()
	if !ok {
		return nil, fmt.Errorf("%q must be an object, found %s", APIKeysKey, v.Kind())
	}
	return table, nil
}

// grantsOf parses the record of one API key
func (c *Checker) grantsOf(apiKey string) ([]Grant, bool, error) {
	table, err := c.readTable()
	if err != nil {
		return nil, false, err
	}
	record, ok := table.Get(apiKey)
	if !ok {
		return nil, false, nil
	}
	grants, err := parseRecord(record)
	if err != nil {
		return nil, true, err
	}
	return grants, true, nil
}

// parseRecord reads {"dbs":[{"dbName":..., "access":...}]}
func parseRecord(record value.Value) ([]Grant, error) {
	obj, ok := record.AsObject()
	if !ok {
		return nil, fmt.Errorf("key record must be an object, found %s", record.Kind())
	}
	dbs, ok := obj.Get("dbs")
	if !ok {
		return nil, nil
	}
	items, ok := dbs.AsList()
	if !ok {
		return nil, fmt.Errorf("\"dbs\" must be a list, found %s", dbs.Kind())
	}
	grants := make([]Grant, 0, len(items))
	for i, item := range items {
		g, ok := item.AsObject()
		if !ok {
			return nil, fmt.Errorf("grant %d must be an object", i)
		}
		nameVal, _ := g.Get("dbName")
		name, ok := nameVal.AsString()
		if !ok || name == "" {
			return nil, fmt.Errorf("grant %d has no dbName", i)
		}
		levelVal, _ := g.Get("access")
		levelStr, _ := levelVal.AsString()
		level, err := ParseLevel(levelStr)
		if err != nil {
			return nil, fmt.Errorf("grant %d: %w", i, err)
		}
		grants = append(grants, Grant{DBName: name, Access: level})
	}
	return grants, nil
}

// recordValue is the inverse of parseRecord
func recordValue(grants []Grant) value.Value {
	items := make([]value.Value, 0, len(grants))
	for _, g := range grants {
		o := value.NewObject()
		o.Set("dbName", value.String(g.DBName))
		o.Set("access", value.String(string(g.Access)))
		items = append(items, value.FromObject(o))
	}
	rec := value.NewObject()
	rec.Set("dbs", value.List(items...))
	return value.FromObject(rec)
}
