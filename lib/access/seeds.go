package access

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultSeeds returns the grants written into an empty configuration database
func DefaultSeeds() map[string][]Grant {
	return map[string][]Grant{
		"5up3r53cr3tK3y": {
			{DBName: ":memory:testDB", Access: WRITE},
			{DBName: "testDB", Access: WRITE},
		},
		"T3st53cr3tK3y": {
			{DBName: ":memory:.test*", Access: READ},
		},
	}
}

// keysFile is the layout of a YAML keys file:
//
//	apiKeys:
//	  myS3cr3t:
//	    - dbName: "app*"
//	      access: WRITE
type keysFile struct {
	APIKeys map[string][]Grant `yaml:"apiKeys"`
}

// LoadKeysFile reads seed grants from a YAML file. Levels are validated.
func LoadKeysFile(path string) (map[string][]Grant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keys file: %w", err)
	}
	var f keysFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse keys file %s: %w", path, err)
	}
	for key, grants := range f.APIKeys {
		if key == "" {
			return nil, fmt.Errorf("keys file %s: empty API key", path)
		}
		for i, g := range grants {
			level, err := ParseLevel(string(g.Access))
			if err != nil {
				return nil, fmt.Errorf("keys file %s: key %s grant %d: %w", path, key, i, err)
			}
			if g.DBName == "" {
				return nil, fmt.Errorf("keys file %s: key %s grant %d has no dbName", path, key, i)
			}
			grants[i].Access = level
		}
	}
	return f.APIKeys, nil
}

// WriteKeysFile writes grants in the layout read by LoadKeysFile
func WriteKeysFile(w io.Writer, keys map[string][]Grant) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(keysFile{APIKeys: keys}); err != nil {
		return fmt.Errorf("failed to write keys file: %w", err)
	}
	return enc.Close()
}

func sortedKeys(m map[string][]Grant) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
