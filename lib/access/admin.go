package access

import (
	"fmt"
	"strings"

	"github.com/ma99us/MikeDB/lib/value"
)

// --------------------------------------------------------------------------
// Key administration (used by the keys command)
// --------------------------------------------------------------------------

// AddGrants adds grants to an API key, creating the key if needed. Grants with the
// same pattern are replaced.
func (c *Checker) AddGrants(apiKey string, grants ...Grant) error {
	if strings.TrimSpace(apiKey) == "" {
		return fmt.Errorf("API key must not be empty")
	}
	for _, g := range grants {
		if g.DBName == "" {
			return fmt.Errorf("grant without dbName")
		}
		if _, err := ParseLevel(string(g.Access)); err != nil {
			return err
		}
	}
	if err := c.Bootstrap(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	table, err := c.readTable()
	if err != nil {
		return err
	}
	var current []Grant
	if record, ok := table.Get(apiKey); ok {
		if current, err = parseRecord(record); err != nil {
			return fmt.Errorf("key %s: %w", apiKey, err)
		}
	}
	for _, g := range grants {
		replaced := false
		for i := range current {
			if current[i].DBName == g.DBName {
				current[i].Access = g.Access
				replaced = true
			}
		}
		if !replaced {
			current = append(current, g)
		}
	}
	table.Set(apiKey, recordValue(current))
	return c.cfg.PutConfig(APIKeysKey, value.FromObject(table))
}

// Revoke removes an API key with all its grants
func (c *Checker) Revoke(apiKey string) (bool, error) {
	if err := c.Bootstrap(); err != nil {
		return false, err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	table, err := c.readTable()
	if err != nil {
		return false, err
	}
	if _, ok := table.Get(apiKey); !ok {
		return false, nil
	}
	table.Delete(apiKey)
	return true, c.cfg.PutConfig(APIKeysKey, value.FromObject(table))
}

// List returns every API key with its grants
func (c *Checker) List() (map[string][]Grant, error) {
	if err := c.Bootstrap(); err != nil {
		return nil, err
	}
	table, err := c.readTable()
	if err != nil {
		return nil, err
	}
	result := make(map[string][]Grant, table.Len())
	var parseErr error
	table.Range(func(key string, record value.Value) bool {
		grants, err := parseRecord(record)
		if err != nil {
			parseErr = fmt.Errorf("key %s: %w", key, err)
			return false
		}
		result[key] = grants
		return true
	})
	return result, parseErr
}
