package client

import (
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ma99us/MikeDB/lib/access"
	"github.com/ma99us/MikeDB/lib/db"
	"github.com/ma99us/MikeDB/lib/persist"
	"github.com/ma99us/MikeDB/lib/store"
	"github.com/ma99us/MikeDB/lib/value"
	"github.com/ma99us/MikeDB/rpc/common"
	transport "github.com/ma99us/MikeDB/rpc/transport/http"
)

func newTestStore(t *testing.T, apiKey string) *Store {
	t.Helper()
	p, err := persist.New(filepath.Join(t.TempDir(), "data"), nil)
	if err != nil {
		t.Fatal(err)
	}
	registry := db.New(db.Options{Persist: p})
	checker := access.NewChecker(registry.Config(), map[string][]access.Grant{
		"writer": {{DBName: "*", Access: access.WRITE}},
	})
	srv := httptest.NewServer(transport.NewHandler(registry, checker, nil))
	t.Cleanup(srv.Close)

	s, err := NewHTTPStore(common.ClientConfig{Endpoint: srv.URL, APIKey: apiKey, TimeoutSecond: 5}, transport.NewClientTransport())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func expectValue(t *testing.T, got value.Value, want string) {
	t.Helper()
	if w := value.MustParse(want); !got.Equal(w) {
		t.Fatalf("got %s, want %s", got, w)
	}
}

func TestRoundTrip(t *testing.T) {
	s := newTestStore(t, "writer")

	created, err := s.Put("db", "doc", value.MustParse(`{"id":1,"name":"a"}`), "")
	if err != nil || !created {
		t.Fatalf("Put: created=%v err=%v", created, err)
	}
	created, err = s.Put("db", "doc", value.MustParse(`{"id":1,"name":"b"}`), "")
	if err != nil || created {
		t.Fatalf("second Put: created=%v err=%v", created, err)
	}

	v, loaded, err := s.Get("db", "doc", nil)
	if err != nil || !loaded {
		t.Fatalf("Get: loaded=%v err=%v", loaded, err)
	}
	expectValue(t, v, `{"id":1,"name":"b"}`)

	v, _, err = s.Get("db", "doc", []string{"name"})
	if err != nil {
		t.Fatal(err)
	}
	expectValue(t, v, `{"id":1,"name":"b"}`)

	t.Run("strings", func(t *testing.T) {
		if _, err := s.Put("db", "greeting", value.String("hello world"), ""); err != nil {
			t.Fatal(err)
		}
		v, _, err := s.Get("db", "greeting", nil)
		if err != nil {
			t.Fatal(err)
		}
		if text, ok := v.AsString(); !ok || text != "hello world" {
			t.Fatalf("got %s", v)
		}
	})

	t.Run("absent", func(t *testing.T) {
		_, loaded, err := s.Get("db", "missing", nil)
		if err != nil || loaded {
			t.Fatalf("loaded=%v err=%v", loaded, err)
		}
		count, err := s.Count("db", "missing")
		if err != nil || count != 0 {
			t.Fatalf("count=%d err=%v", count, err)
		}
	})

	existed, err := s.Remove("db", "doc", "")
	if err != nil || !existed {
		t.Fatalf("Remove: existed=%v err=%v", existed, err)
	}
	existed, err = s.Remove("db", "doc", "")
	if err != nil || existed {
		t.Fatalf("second Remove: existed=%v err=%v", existed, err)
	}
}

func TestLists(t *testing.T) {
	s := newTestStore(t, "writer")

	if _, err := s.Append("db", "items", value.MustParse(`[{"id":1,"n":1},{"id":2,"n":2}]`), store.NoIndex, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Append("db", "items", value.MustParse(`{"id":3,"n":3}`), 0, ""); err != nil {
		t.Fatal(err)
	}

	count, err := s.Count("db", "items")
	if err != nil || count != 3 {
		t.Fatalf("count=%d err=%v", count, err)
	}

	v, _, err := s.GetPage("db", "items", 1, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	expectValue(t, v, `[{"id":1,"n":1}]`)

	v, loaded, err := s.GetItem("db", "items", 2, nil)
	if err != nil || !loaded {
		t.Fatalf("GetItem: loaded=%v err=%v", loaded, err)
	}
	expectValue(t, v, `{"id":2,"n":2}`)

	if _, err := s.Update("db", "items", value.MustParse(`{"id":2,"n":20}`), store.NoIndex, ""); err != nil {
		t.Fatal(err)
	}
	removed, err := s.RemoveItem("db", "items", store.NoIndex, 3, "")
	if err != nil || !removed {
		t.Fatalf("RemoveItem: removed=%v err=%v", removed, err)
	}

	v, _, err = s.Get("db", "items", nil)
	if err != nil {
		t.Fatal(err)
	}
	expectValue(t, v, `[{"id":1,"n":1},{"id":2,"n":20}]`)

	dropped, err := s.DropDatabase("db", "")
	if err != nil || !dropped {
		t.Fatalf("DropDatabase: dropped=%v err=%v", dropped, err)
	}
}

func TestMergePatch(t *testing.T) {
	s := newTestStore(t, "writer")

	merged, created, err := s.MergePatch("db", "cfg", []byte(`{"a":1,"b":{"c":2}}`), "")
	if err != nil || !created {
		t.Fatalf("created=%v err=%v", created, err)
	}
	expectValue(t, merged, `{"a":1,"b":{"c":2}}`)

	merged, created, err = s.MergePatch("db", "cfg", []byte(`{"a":null,"b":{"d":3}}`), "")
	if err != nil || created {
		t.Fatalf("created=%v err=%v", created, err)
	}
	expectValue(t, merged, `{"b":{"c":2,"d":3}}`)
}

func TestUpload(t *testing.T) {
	s := newTestStore(t, "writer")

	created, err := s.Upload("db", "notes", "notes.txt", "", strings.NewReader("content"), "")
	if err != nil || !created {
		t.Fatalf("Upload: created=%v err=%v", created, err)
	}
	count, err := s.Count("db", "notes")
	if err != nil || count != 7 {
		t.Fatalf("count=%d err=%v", count, err)
	}

	v, loaded, err := s.Get("db", "notes", nil)
	if err != nil || !loaded {
		t.Fatalf("Get: loaded=%v err=%v", loaded, err)
	}
	rec, ok := v.AsFile()
	if !ok {
		t.Fatalf("expected a file, got %s", v)
	}
	if diff := cmp.Diff("content", string(rec.Data)); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
	if rec.FileName != "notes.txt" {
		t.Errorf("file name %q", rec.FileName)
	}
}

func TestErrors(t *testing.T) {
	t.Run("unauthorized", func(t *testing.T) {
		s := newTestStore(t, "")
		_, err := s.Put("db", "k", value.Int(1), "")
		if !store.IsAuthorization(err) {
			t.Fatalf("expected authorization error, got %v", err)
		}
	})

	t.Run("validation", func(t *testing.T) {
		s := newTestStore(t, "writer")
		_, err := s.Append("db", "k", value.Int(1), 5, "")
		if !store.IsValidation(err) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		s, err := NewHTTPStore(common.ClientConfig{Endpoint: "127.0.0.1:1", TimeoutSecond: 1}, transport.NewClientTransport())
		if err != nil {
			t.Fatal(err)
		}
		if _, _, err := s.Get("db", "k", nil); store.CodeOf(err) != store.RetCInternalError {
			t.Fatalf("expected internal error, got %v", err)
		}
	})
}
