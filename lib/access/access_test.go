package access

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ma99us/MikeDB/lib/value"
)

type memConfig struct {
	mu      sync.Mutex
	values  map[string]value.Value
	failPut error
	puts    int
}

func newMemConfig() *memConfig {
	return &memConfig{values: make(map[string]value.Value)}
}

func (m *memConfig) GetConfig(key string) (value.Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v.Clone(), ok
}

func (m *memConfig) PutConfig(key string, v value.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return m.failPut
	}
	m.puts++
	m.values[key] = v.Clone()
	return nil
}

func TestSeedKeys(t *testing.T) {
	c := NewChecker(newMemConfig(), nil)

	tests := []struct {
		key    string
		level  Level
		dbName string
		want   bool
	}{
		{"5up3r53cr3tK3y", WRITE, "testDB", true},
		{"5up3r53cr3tK3y", READ, "testDB", true},
		{"5up3r53cr3tK3y", WRITE, ":memory:testDB", true},
		{"5up3r53cr3tK3y", READ, "otherDB", false},
		{"T3st53cr3tK3y", READ, ":memory:.test", true},
		{"T3st53cr3tK3y", READ, ":memory:.testing", true},
		{"T3st53cr3tK3y", WRITE, ":memory:.test", false},
		{"T3st53cr3tK3y", READ, "testDB", false},
		{"unknown", READ, "testDB", false},
		{"", READ, "testDB", false},
		{"   ", READ, "testDB", false},
	}
	for _, tt := range tests {
		if got := c.CheckAccess(tt.key, tt.level, tt.dbName); got != tt.want {
			t.Errorf("CheckAccess(%q, %s, %q) = %v, want %v", tt.key, tt.level, tt.dbName, got, tt.want)
		}
	}
}

func TestBootstrapKeepsExistingKeys(t *testing.T) {
	cfg := newMemConfig()
	existing := value.MustParse(`{"5up3r53cr3tK3y":{"dbs":[{"dbName":"onlyThis","access":"READ"}]}}`)
	cfg.values[APIKeysKey] = existing

	c := NewChecker(cfg, nil)
	if c.CheckAccess("5up3r53cr3tK3y", READ, "testDB") {
		t.Error("an existing record must not be overwritten by the seed")
	}
	if !c.CheckAccess("5up3r53cr3tK3y", READ, "onlyThis") {
		t.Error("existing grant lost")
	}
	if !c.CheckAccess("T3st53cr3tK3y", READ, ":memory:.test") {
		t.Error("missing seed key was not added")
	}
	if cfg.puts != 1 {
		t.Errorf("expected one write, got %d", cfg.puts)
	}

	// a second bootstrap is a no-op
	if err := c.Bootstrap(); err != nil {
		t.Fatal(err)
	}
	if cfg.puts != 1 {
		t.Errorf("expected one write, got %d", cfg.puts)
	}
}

func TestBootstrapRetriesAfterFailure(t *testing.T) {
	cfg := newMemConfig()
	cfg.failPut = errors.New("disk full")
	c := NewChecker(cfg, nil)

	if c.CheckAccess("5up3r53cr3tK3y", READ, "testDB") {
		t.Fatal("access granted although bootstrap failed")
	}
	cfg.failPut = nil
	if !c.CheckAccess("5up3r53cr3tK3y", READ, "testDB") {
		t.Error("bootstrap did not recover")
	}
}

func TestMalformedRecordsDeny(t *testing.T) {
	cases := map[string]string{
		"table not object":   `[1,2]`,
		"record not object":  `{"k":"WRITE"}`,
		"dbs not list":       `{"k":{"dbs":{"dbName":"db"}}}`,
		"grant without name": `{"k":{"dbs":[{"access":"WRITE"}]}}`,
		"bad level":          `{"k":{"dbs":[{"dbName":"db","access":"ADMIN"}]}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := newMemConfig()
			cfg.values[APIKeysKey] = value.MustParse(raw)
			c := NewChecker(cfg, map[string][]Grant{})
			if c.CheckAccess("k", READ, "db") {
				t.Error("malformed configuration must deny")
			}
		})
	}
}

func TestGrantPatterns(t *testing.T) {
	tests := []struct {
		pattern, dbName string
		want            bool
	}{
		{"db", "db", true},
		{"db", "db2", false},
		{"*", "anything", true},
		{"app*", "app", true},
		{"app*", "apples", true},
		{"app*", "ap", false},
		{":memory:*", ":memory:x", true},
		{":memory:*", "x", false},
	}
	for _, tt := range tests {
		if got := (Grant{DBName: tt.pattern}).Matches(tt.dbName); got != tt.want {
			t.Errorf("Grant{%q}.Matches(%q) = %v", tt.pattern, tt.dbName, got)
		}
	}
	if !(Grant{Access: WRITE}).Authorizes(READ) {
		t.Error("WRITE must imply READ")
	}
	if (Grant{Access: READ}).Authorizes(WRITE) {
		t.Error("READ must not imply WRITE")
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"read": READ, " WRITE ": WRITE, "Write": WRITE} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("admin"); err == nil {
		t.Error("expected error")
	}
}

func TestAdministration(t *testing.T) {
	cfg := newMemConfig()
	c := NewChecker(cfg, nil)

	if err := c.AddGrants("newKey", Grant{DBName: "a*", Access: READ}); err != nil {
		t.Fatal(err)
	}
	if !c.CheckAccess("newKey", READ, "abc") || c.CheckAccess("newKey", WRITE, "abc") {
		t.Error("unexpected access after grant")
	}

	// same pattern replaces the level
	if err := c.AddGrants("newKey", Grant{DBName: "a*", Access: WRITE}, Grant{DBName: "b", Access: READ}); err != nil {
		t.Fatal(err)
	}
	list, err := c.List()
	if err != nil {
		t.Fatal(err)
	}
	want := []Grant{{DBName: "a*", Access: WRITE}, {DBName: "b", Access: READ}}
	if diff := cmp.Diff(want, list["newKey"]); diff != "" {
		t.Errorf("grants (-want +got):\n%s", diff)
	}
	if len(list) != 3 {
		t.Errorf("expected seed keys and new key, got %d keys", len(list))
	}

	if err := c.AddGrants("", Grant{DBName: "x", Access: READ}); err == nil {
		t.Error("empty key must be rejected")
	}
	if err := c.AddGrants("k", Grant{DBName: "x", Access: "ALL"}); err == nil {
		t.Error("invalid level must be rejected")
	}

	revoked, err := c.Revoke("newKey")
	if err != nil || !revoked {
		t.Fatalf("Revoke = %v, %v", revoked, err)
	}
	if c.CheckAccess("newKey", READ, "abc") {
		t.Error("revoked key still has access")
	}
	if revoked, _ := c.Revoke("newKey"); revoked {
		t.Error("second revoke reported success")
	}
}

func TestLoadKeysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.yaml")
	content := `apiKeys:
  deployKey:
    - dbName: "prod*"
      access: write
    - dbName: stats
      access: READ
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	seeds, err := LoadKeysFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string][]Grant{"deployKey": {
		{DBName: "prod*", Access: WRITE},
		{DBName: "stats", Access: READ},
	}}
	if diff := cmp.Diff(want, seeds); diff != "" {
		t.Errorf("seeds (-want +got):\n%s", diff)
	}

	c := NewChecker(newMemConfig(), seeds)
	if !c.CheckAccess("deployKey", WRITE, "production") {
		t.Error("seed from keys file not applied")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(bad, []byte("apiKeys:\n  k:\n    - dbName: x\n      access: root\n"), 0o600)
	if _, err := LoadKeysFile(bad); err == nil {
		t.Error("expected error for invalid level")
	}
	if _, err := LoadKeysFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteKeysFile(t *testing.T) {
	c := NewChecker(newMemConfig(), nil)
	if err := c.AddGrants("exported", Grant{DBName: "app*", Access: WRITE}); err != nil {
		t.Fatal(err)
	}
	keys, err := c.List()
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "export.yaml")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteKeysFile(f, keys); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	loaded, err := LoadKeysFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(keys, loaded); diff != "" {
		t.Errorf("exported keys (-want +got):\n%s", diff)
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reloads atomic.Int32
	if err := Watch(ctx, dir, func() error {
		reloads.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	_ = os.WriteFile(filepath.Join(dir, "unrelated.json"), []byte("1"), 0o600)
	if err := os.WriteFile(filepath.Join(dir, APIKeysKey+".json"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for reloads.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for reload")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestIsKeyTableFile(t *testing.T) {
	for path, want := range map[string]bool{
		"/d/api-keys.json":          true,
		"/d/api-keys.bin":           true,
		"/d/.api-keys.json-123.tmp": false,
		"/d/other.json":             false,
	} {
		if got := isKeyTableFile(path); got != want {
			t.Errorf("isKeyTableFile(%q) = %v", path, got)
		}
	}
}
