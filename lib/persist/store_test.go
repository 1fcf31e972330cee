package persist

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ma99us/MikeDB/lib/codec"
	"github.com/ma99us/MikeDB/lib/value"
)

func newTestStore(t *testing.T, c codec.IValueCodec) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data"), c)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestStoreAndLoad(t *testing.T) {
	for _, c := range codec.All() {
		t.Run(c.Name(), func(t *testing.T) {
			s := newTestStore(t, c)

			values := map[string]value.Value{
				"k1":             value.MustParse(`{"id":1,"name":"a"}`),
				"list":           value.MustParse(`[1,{"id":2}]`),
				"some.funky.key": value.String("dots are fine"),
				".private":       value.Bool(true),
			}
			for k, v := range values {
				if err := s.Store("db1", k, v); err != nil {
					t.Fatalf("Store(%s): %v", k, err)
				}
			}

			loaded, err := s.Load("db1")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(loaded) != len(values) {
				t.Fatalf("loaded %d keys, want %d", len(loaded), len(values))
			}
			for k, v := range values {
				if !loaded[k].Equal(v) {
					t.Errorf("key %s: got %s, want %s", k, loaded[k], v)
				}
			}
		})
	}
}

func TestLoadMissingDirectory(t *testing.T) {
	s := newTestStore(t, nil)
	data, err := s.Load("never-written")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected empty database, got %d keys", len(data))
	}
}

func TestStoreNullRemovesFiles(t *testing.T) {
	s := newTestStore(t, nil)
	if err := s.Store("db", "k", value.String("v")); err != nil {
		t.Fatal(err)
	}
	if err := s.Store("db", "k", value.Null()); err != nil {
		t.Fatal(err)
	}
	if files := listFiles(t, s.DatabaseDir("db")); len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
	// removing an absent key is not an error
	if err := s.Store("db", "k", value.Null()); err != nil {
		t.Errorf("second removal: %v", err)
	}
}

func TestStoreRejectsBadKeys(t *testing.T) {
	s := newTestStore(t, nil)
	for _, key := range []string{"", "..", "a/b", "../escape"} {
		if err := s.Store("db", key, value.String("x")); err == nil {
			t.Errorf("Store(%q) should fail", key)
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(s.Root()), "escape.json")); err == nil {
		t.Error("a key escaped the database directory")
	}
}

func TestBlobs(t *testing.T) {
	s := newTestStore(t, nil)

	rec := value.NewFileRecord("avatar", "me.png", "", strings.NewReader("PNGDATA"))
	rec.ID = 5
	v := value.File(rec)
	if err := s.Store("db", "avatar", v); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if rec.Content != nil {
		t.Error("content stream should be released after writing")
	}
	if rec.Size != 7 || rec.Locator != "avatar.png.db" {
		t.Errorf("record not updated: size=%d locator=%q", rec.Size, rec.Locator)
	}
	if diff := cmp.Diff([]string{"avatar.json", "avatar.png.db"}, listFiles(t, s.DatabaseDir("db"))); diff != "" {
		t.Errorf("files (-want +got):\n%s", diff)
	}

	t.Run("reload keeps descriptor", func(t *testing.T) {
		loaded, err := s.Load("db")
		if err != nil {
			t.Fatal(err)
		}
		got, ok := loaded["avatar"].AsFile()
		if !ok {
			t.Fatalf("expected file record, got %s", loaded["avatar"])
		}
		if got.ID != 5 || got.Type != "png" || got.MimeType != "image/png" || got.Size != 7 {
			t.Errorf("unexpected record %+v", got)
		}

		r, err := s.OpenBlob("db", got)
		if err != nil {
			t.Fatal(err)
		}
		defer r.Close()
		data, _ := io.ReadAll(r)
		if string(data) != "PNGDATA" {
			t.Errorf("blob content %q", data)
		}
	})

	t.Run("new upload with other type replaces old blob", func(t *testing.T) {
		rec2 := value.NewFileRecord("avatar", "me.jpg", "", strings.NewReader("JPG"))
		if err := s.Store("db", "avatar", value.File(rec2)); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"avatar.jpg.db", "avatar.json"}, listFiles(t, s.DatabaseDir("db"))); diff != "" {
			t.Errorf("files (-want +got):\n%s", diff)
		}
	})

	t.Run("plain value replaces blob", func(t *testing.T) {
		if err := s.Store("db", "avatar", value.String("gone")); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"avatar.json"}, listFiles(t, s.DatabaseDir("db"))); diff != "" {
			t.Errorf("files (-want +got):\n%s", diff)
		}
	})
}

func TestStagedBlobs(t *testing.T) {
	s := newTestStore(t, nil)
	if s.Exists("db") {
		t.Error("database exists before the first write")
	}

	rec := value.NewFileRecord("doc", "doc.txt", "", strings.NewReader("staged bytes"))
	if err := s.StageBlob(rec); err != nil {
		t.Fatalf("StageBlob: %v", err)
	}
	if rec.Content != nil || rec.Staged == "" || rec.Size != 12 {
		t.Fatalf("record after staging %+v", rec)
	}
	if s.Exists("db") {
		t.Error("staging created the database directory")
	}

	staged := rec.Staged
	if err := s.Store("db", "doc", value.File(rec)); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if rec.Staged != "" || rec.Locator != "doc.txt.db" {
		t.Errorf("record after commit %+v", rec)
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Errorf("staged file still present: %v", err)
	}
	if !s.Exists("db") {
		t.Error("database missing after a write")
	}
	f, err := s.OpenBlob("db", rec)
	if err != nil {
		t.Fatalf("OpenBlob: %v", err)
	}
	data, _ := io.ReadAll(f)
	_ = f.Close()
	if string(data) != "staged bytes" {
		t.Errorf("blob content %q", data)
	}

	t.Run("discard", func(t *testing.T) {
		rec := value.NewFileRecord("tmp", "tmp.txt", "", strings.NewReader("x"))
		if err := s.StageBlob(rec); err != nil {
			t.Fatal(err)
		}
		s.DiscardStaged(rec.Staged)
		if _, err := os.Stat(rec.Staged); !os.IsNotExist(err) {
			t.Errorf("discarded file still present: %v", err)
		}
		// committed or empty paths are ignored
		s.DiscardStaged(staged)
		s.DiscardStaged("")
	})
}

func TestBlobsOfSimilarKeysAreKept(t *testing.T) {
	s := newTestStore(t, nil)
	for _, key := range []string{"a", "a.b"} {
		rec := value.NewFileRecord(key, "f.txt", "", strings.NewReader(key))
		if err := s.Store("db", key, value.File(rec)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Store("db", "a", value.Null()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a.b.json", "a.b.txt.db"}, listFiles(t, s.DatabaseDir("db"))); diff != "" {
		t.Errorf("files (-want +got):\n%s", diff)
	}
}

func TestLoadReconstructsBlobWithoutDescriptor(t *testing.T) {
	s := newTestStore(t, nil)
	dir := s.DatabaseDir("db")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "some.funky.key.png.db"), []byte("1234"), 0o640); err != nil {
		t.Fatal(err)
	}
	// unrelated files are ignored
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o640)
	_ = os.WriteFile(filepath.Join(dir, ".k.json-123.tmp"), []byte("x"), 0o640)

	loaded, err := s.Load("db")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected one key, got %v", loaded)
	}
	rec, ok := loaded["some.funky.key"].AsFile()
	if !ok {
		t.Fatalf("expected file record, got %s", loaded["some.funky.key"])
	}
	if rec.Name != "some.funky.key" || rec.Type != "png" || rec.Size != 4 || rec.Locator != "some.funky.key.png.db" {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestCodecSwitchCleansUp(t *testing.T) {
	root := t.TempDir()
	jsonStore, _ := New(root, codec.NewJSONCodec())
	binStore, _ := New(root, codec.NewBinaryCodec())

	if err := jsonStore.Store("db", "k", value.Int(1)); err != nil {
		t.Fatal(err)
	}
	if err := binStore.Store("db", "k", value.Int(2)); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"k.bin"}, listFiles(t, binStore.DatabaseDir("db"))); diff != "" {
		t.Errorf("files (-want +got):\n%s", diff)
	}
	loaded, _ := jsonStore.Load("db")
	if n, _ := loaded["k"].AsNumber(); n != 2 {
		t.Errorf("expected value written by binary codec, got %s", loaded["k"])
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t, nil)
	_ = s.Store("db", "k", value.String("v"))
	if err := s.Delete("db"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(s.DatabaseDir("db")); !os.IsNotExist(err) {
		t.Errorf("database directory still exists: %v", err)
	}
	if err := s.Delete("../outside"); err == nil {
		t.Error("Delete must reject names outside the root")
	}
}

func TestParseBlobName(t *testing.T) {
	cases := []struct {
		name, key, fileType string
		ok                  bool
	}{
		{"some.funky.key.png.db", "some.funky.key", "png", true},
		{"k.bin.db", "k", "bin", true},
		{"k.db", "", "", false},
		{".png.db", "", "", false},
		{"k.json", "", "", false},
	}
	for _, c := range cases {
		key, fileType, ok := ParseBlobName(c.name)
		if key != c.key || fileType != c.fileType || ok != c.ok {
			t.Errorf("ParseBlobName(%q) = %q, %q, %v", c.name, key, fileType, ok)
		}
	}
	if BlobName("a", "png") != "a.png.db" {
		t.Error("BlobName")
	}
}

func TestSizesAreTracked(t *testing.T) {
	s := newTestStore(t, nil)
	_ = s.Store("db", "k", value.String("12345"))
	if s.Sizes().GetCount() != 1 {
		t.Errorf("expected one sample, got %d", s.Sizes().GetCount())
	}
}
