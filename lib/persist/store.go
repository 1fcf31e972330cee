package persist

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/ma99us/MikeDB/lib/codec"
	"github.com/ma99us/MikeDB/lib/db/util"
	"github.com/ma99us/MikeDB/lib/store"
	"github.com/ma99us/MikeDB/lib/value"
)

var Logger = logger.GetLogger("persist")

const (
	// BlobExt is the extension of blob files: <key>.<fileType>.db
	BlobExt = "db"
	// DefaultFileType is used for uploads without a file extension
	DefaultFileType = "bin"

	dirPerm = 0o750
)

// Store keeps one directory per database under a root directory. Every key is one
// value file written with the configured codec; file values additionally keep
// their bytes in a blob file next to it.
//
// Store is safe for concurrent use on different databases. Callers serialize
// operations on the same database (the registry holds the database lock).
type Store struct {
	root  string
	codec codec.IValueCodec
	sizes *util.SizeHistogram
}

// New creates the root directory if needed and returns a store writing value
// files with c. Files written by other codecs are still read.
func New(root string, c codec.IValueCodec) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("data directory must not be empty")
	}
	if c == nil {
		c = codec.NewJSONCodec()
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Store{root: root, codec: c, sizes: util.NewSizeHistogram()}, nil
}

// Root returns the data directory
func (s *Store) Root() string { return s.root }

// DatabaseDir returns the directory holding the files of a database
func (s *Store) DatabaseDir(dbName string) string { return filepath.Join(s.root, dbName) }

// Sizes returns the histogram of written value and blob sizes
func (s *Store) Sizes() *util.SizeHistogram { return s.sizes }

// --------------------------------------------------------------------------
// Load
// --------------------------------------------------------------------------

// Load reads every key of a database. A missing directory is an empty database.
// Unreadable files are logged and skipped so one corrupt key does not hide the rest.
func (s *Store) Load(dbName string) (map[string]value.Value, error) {
	data := make(map[string]value.Value)
	dir := s.DatabaseDir(dbName)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return data, nil
		}
		return nil, store.Errorf(store.RetCStorage, "failed to list %s: %v", dir, err)
	}

	// value files first, so blobs can refresh the descriptors they belong to
	var blobs []fs.DirEntry
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, _, ok := ParseBlobName(name); ok {
			blobs = append(blobs, entry)
			continue
		}
		ext := filepath.Ext(name)
		if _, ok := codec.ByExt(ext); !ok {
			continue
		}
		key := strings.TrimSuffix(name, ext)
		if store.ValidateKey(key) != nil {
			continue
		}
		v, err := codec.ReadFile(filepath.Join(dir, name))
		if err != nil {
			Logger.Errorf("skipping unreadable value file %s/%s: %v", dbName, name, err)
			continue
		}
		data[key] = v
	}

	for _, entry := range blobs {
		key, fileType, _ := ParseBlobName(entry.Name())
		info, err := entry.Info()
		if err != nil {
			Logger.Errorf("skipping blob %s/%s: %v", dbName, entry.Name(), err)
			continue
		}
		rec, ok := data[key].AsFile()
		if !ok {
			// blob without descriptor, rebuild it from the file system
			rec = &value.FileRecord{
				Name:     key,
				FileName: key + "." + fileType,
				Type:     fileType,
				MimeType: value.GuessMimeType(fileType),
			}
			if rec.MimeType == "" {
				rec.MimeType = "application/octet-stream"
			}
			data[key] = value.File(rec)
		}
		rec.Size = info.Size()
		rec.ModTime = info.ModTime()
		rec.Locator = entry.Name()
	}

	return data, nil
}

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// Store writes the value of a key, or deletes the key's files when v is null.
// A file value with pending content has its bytes written to the blob file first;
// size, timestamp and locator of the record are updated in place and the content
// stream is released.
func (s *Store) Store(dbName, key string, v value.Value) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	if v.IsNull() {
		return s.removeKey(dbName, key)
	}

	dir := s.DatabaseDir(dbName)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return store.Errorf(store.RetCStorage, "failed to create %s: %v", dir, err)
	}

	keepBlob := ""
	if rec, ok := v.AsFile(); ok {
		if rec.Content != nil || rec.Data != nil || rec.Staged != "" {
			if err := s.writeBlob(dir, key, rec); err != nil {
				return err
			}
		}
		keepBlob = rec.Locator
	}

	// remove what another codec or an earlier blob left behind
	var errs []error
	errs = append(errs, s.removeBlobs(dir, key, keepBlob))
	for _, c := range codec.All() {
		if c.Ext() != s.codec.Ext() {
			errs = append(errs, removeIfExists(filepath.Join(dir, key+"."+c.Ext())))
		}
	}

	path := filepath.Join(dir, key+"."+s.codec.Ext())
	data, err := s.codec.Encode(v)
	if err != nil {
		return store.Errorf(store.RetCStorage, "failed to encode %s/%s: %v", dbName, key, err)
	}
	if err := codec.WriteFileAtomic(path, data); err != nil {
		return store.Errorf(store.RetCStorage, "failed to write %s/%s: %v", dbName, key, err)
	}
	s.sizes.AddSample(len(data))

	if err := errors.Join(errs...); err != nil {
		return store.Errorf(store.RetCStorage, "failed to clean up %s/%s: %v", dbName, key, err)
	}
	return nil
}

// writeBlob streams the content of rec into <key>.<type>.db
func (s *Store) writeBlob(dir, key string, rec *value.FileRecord) error {
	fileType := rec.Type
	if fileType == "" || strings.ContainsAny(fileType, "/\\.\x00") {
		fileType = DefaultFileType
	}
	name := BlobName(key, fileType)

	tmpPath, n := rec.Staged, rec.Size
	if tmpPath == "" {
		var src io.Reader = rec.Content
		if src == nil {
			src = bytes.NewReader(rec.Data)
		}
		var err error
		if tmpPath, n, err = s.writeTemp(dir, "."+name+"-*.tmp", src); err != nil {
			return err
		}
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return store.Errorf(store.RetCStorage, "failed to rename blob %s: %v", name, errors.Join(err, os.Remove(tmpPath)))
	}

	rec.Type = fileType
	rec.Size = n
	rec.ModTime = time.Now()
	rec.Locator = name
	rec.Content = nil
	rec.Data = nil
	rec.Staged = ""
	s.sizes.AddSample(int(n))
	return nil
}

// StageBlob copies the pending content of rec into a temp file under the root
// directory. Store later moves it beside its key; DiscardStaged removes it when
// the write is rejected. Callers stage without holding the database lock.
func (s *Store) StageBlob(rec *value.FileRecord) error {
	if rec == nil || rec.Content == nil {
		return nil
	}
	tmpPath, n, err := s.writeTemp(s.root, ".upload-*.tmp", rec.Content)
	if err != nil {
		return err
	}
	rec.Staged = tmpPath
	rec.Size = n
	rec.Content = nil
	return nil
}

// DiscardStaged removes a staged upload that was not committed. A path that was
// already moved into place is ignored.
func (s *Store) DiscardStaged(path string) {
	if path == "" {
		return
	}
	if err := removeIfExists(path); err != nil {
		Logger.Warningf("failed to remove staged upload %s: %v", path, err)
	}
}

func (s *Store) writeTemp(dir, pattern string, src io.Reader) (string, int64, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", 0, store.Errorf(store.RetCStorage, "failed to create temp file: %v", err)
	}
	tmpPath := f.Name()
	n, err := io.Copy(f, src)
	if err != nil {
		return "", 0, store.Errorf(store.RetCStorage, "failed to write %s: %v", tmpPath, errors.Join(err, f.Close(), os.Remove(tmpPath)))
	}
	if err := f.Close(); err != nil {
		return "", 0, store.Errorf(store.RetCStorage, "failed to close %s: %v", tmpPath, errors.Join(err, os.Remove(tmpPath)))
	}
	return tmpPath, n, nil
}

// Exists reports whether a database has a directory under the root
func (s *Store) Exists(dbName string) bool {
	if store.ValidateDBName(dbName) != nil {
		return false
	}
	info, err := os.Stat(s.DatabaseDir(dbName))
	return err == nil && info.IsDir()
}

// removeKey deletes the value files of every codec and all blobs of a key
func (s *Store) removeKey(dbName, key string) error {
	dir := s.DatabaseDir(dbName)
	var errs []error
	for _, c := range codec.All() {
		errs = append(errs, removeIfExists(filepath.Join(dir, key+"."+c.Ext())))
	}
	errs = append(errs, s.removeBlobs(dir, key, ""))
	if err := errors.Join(errs...); err != nil {
		return store.Errorf(store.RetCStorage, "failed to delete %s/%s: %v", dbName, key, err)
	}
	return nil
}

// removeBlobs deletes every blob of key except keep
func (s *Store) removeBlobs(dir, key, keep string) error {
	matches, err := filepath.Glob(filepath.Join(dir, escapeGlob(key)+".*."+BlobExt))
	if err != nil {
		return err
	}
	var errs []error
	for _, path := range matches {
		name := filepath.Base(path)
		blobKey, _, ok := ParseBlobName(name)
		// "a.*.db" also matches blobs of the key "a.b"
		if !ok || blobKey != key || name == keep {
			continue
		}
		errs = append(errs, removeIfExists(path))
	}
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Delete / blobs
// --------------------------------------------------------------------------

// Delete removes the directory of a database with everything left in it
func (s *Store) Delete(dbName string) error {
	if err := store.ValidateDBName(dbName); err != nil {
		return err
	}
	if err := os.RemoveAll(s.DatabaseDir(dbName)); err != nil {
		return store.Errorf(store.RetCStorage, "failed to delete database %s: %v", dbName, err)
	}
	return nil
}

// OpenBlob opens the blob file a record points to
func (s *Store) OpenBlob(dbName string, rec *value.FileRecord) (io.ReadCloser, error) {
	if rec == nil || rec.Locator == "" || store.ValidateKey(rec.Locator) != nil {
		return nil, store.NewError(store.RetCStorage, "file record has no valid storage locator")
	}
	f, err := os.Open(filepath.Join(s.DatabaseDir(dbName), rec.Locator))
	if err != nil {
		return nil, store.Errorf(store.RetCStorage, "failed to open blob: %v", err)
	}
	return f, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// BlobName returns the blob file name of a key
func BlobName(key, fileType string) string {
	return key + "." + fileType + "." + BlobExt
}

// ParseBlobName splits "some.funky.key.png.db" into key "some.funky.key" and type "png"
func ParseBlobName(name string) (key, fileType string, ok bool) {
	base, found := strings.CutSuffix(name, "."+BlobExt)
	if !found {
		return "", "", false
	}
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 || dot == len(base)-1 {
		return "", "", false
	}
	return base[:dot], base[dot+1:], true
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// escapeGlob quotes the meta characters of filepath.Match
func escapeGlob(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
