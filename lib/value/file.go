package value

import (
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"
)

// FileTypeMarker is written into the "@type" field of a serialized file record so that
// a record can be told apart from an ordinary object when it is read back.
const FileTypeMarker = "FileItem"

// FileRecord describes a binary blob stored beside a key
type FileRecord struct {
	ID       int64
	Name     string // logical name, usually the key
	FileName string // name of the uploaded file as sent by the client
	Type     string // file extension without the dot
	MimeType string
	Size     int64
	ModTime  time.Time
	Locator  string // blob file name inside the database directory

	// Content is the byte stream of a pending upload. It is never serialized
	// and is consumed by the persistence layer.
	Content io.Reader
	// Data holds the bytes of a file kept in memory only (ephemeral databases).
	// It is never serialized.
	Data []byte
	// Staged is the path of an upload already written to a temp file and not yet
	// moved beside its key. It is never serialized.
	Staged string
}

// NewFileRecord builds a record for an upload; type and mime type are derived
// from fileName when not given.
func NewFileRecord(name, fileName, mimeType string, content io.Reader) *FileRecord {
	ext := strings.TrimPrefix(filepath.Ext(fileName), ".")
	if mimeType == "" || mimeType == "application/octet-stream" {
		if guessed := GuessMimeType(ext); guessed != "" {
			mimeType = guessed
		}
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return &FileRecord{
		Name:     name,
		FileName: fileName,
		Type:     strings.ToLower(ext),
		MimeType: mimeType,
		ModTime:  time.Now(),
		Content:  content,
	}
}

// GuessMimeType maps a file extension to a mime type, "" when unknown
func GuessMimeType(ext string) string {
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return mime.TypeByExtension(strings.ToLower(ext))
}

// Equal compares every serialized field. Timestamps are compared at millisecond precision.
func (f *FileRecord) Equal(o *FileRecord) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.ID == o.ID &&
		f.Name == o.Name &&
		f.FileName == o.FileName &&
		f.Type == o.Type &&
		f.MimeType == o.MimeType &&
		f.Size == o.Size &&
		f.ModTime.UnixMilli() == o.ModTime.UnixMilli() &&
		f.Locator == o.Locator
}

// toObject renders the record as the object clients see
func (f *FileRecord) toObject() *Object {
	o := NewObject()
	o.Set("@type", String(FileTypeMarker))
	if f.ID > 0 {
		o.Set(IDField, Int(f.ID))
	}
	o.Set("name", String(f.Name))
	if f.FileName != "" {
		o.Set("fileName", String(f.FileName))
	}
	o.Set("type", String(f.Type))
	o.Set("mimeType", String(f.MimeType))
	o.Set("fileSize", Int(f.Size))
	o.Set("fileTimestamp", Int(f.ModTime.UnixMilli()))
	if f.Locator != "" {
		o.Set("storageLocator", String(f.Locator))
	}
	return o
}

// fileFromObject is the inverse of toObject. ok is false when the object is not a file record.
func fileFromObject(o *Object) (*FileRecord, bool) {
	marker, found := o.Get("@type")
	if s, isStr := marker.AsString(); !found || !isStr || s != FileTypeMarker {
		return nil, false
	}
	str := func(name string) string {
		v, _ := o.Get(name)
		s, _ := v.AsString()
		return s
	}
	num := func(name string) int64 {
		v, _ := o.Get(name)
		n, _ := v.AsNumber()
		return int64(n)
	}
	f := &FileRecord{
		Name:     str("name"),
		FileName: str("fileName"),
		Type:     str("type"),
		MimeType: str("mimeType"),
		Size:     num("fileSize"),
		ModTime:  time.UnixMilli(num("fileTimestamp")),
		Locator:  str("storageLocator"),
	}
	if idVal, ok := o.Get(IDField); ok {
		f.ID, _ = ParseID(idVal)
	}
	return f, true
}
