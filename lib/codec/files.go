package codec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ma99us/MikeDB/lib/value"
)

// WriteFile encodes v and writes it to path. Data goes to a temp file in the same
// directory first and is renamed into place, so readers never observe a partial file.
func WriteFile(c IValueCodec, path string, v value.Value) error {
	data, err := c.Encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes raw bytes with the temp file + rename scheme of WriteFile
func WriteFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := f.Name()
	if _, err := f.Write(data); err != nil {
		return errors.Join(fmt.Errorf("failed to write temp file: %w", err), f.Close(), os.Remove(tmpPath))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(tmpPath))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Join(fmt.Errorf("failed to rename temp file: %w", err), os.Remove(tmpPath))
	}
	return nil
}

// ReadFile decodes a value file, picking the codec from the file extension
func ReadFile(path string) (value.Value, error) {
	c, ok := ByExt(filepath.Ext(path))
	if !ok {
		return value.Null(), fmt.Errorf("no codec for %s", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return value.Null(), err
	}
	v, err := c.Decode(data)
	if err != nil {
		return value.Null(), fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return v, nil
}
