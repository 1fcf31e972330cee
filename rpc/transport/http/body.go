package http

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/ma99us/MikeDB/lib/store"
	"github.com/ma99us/MikeDB/lib/value"
)

// maxBodyBytes bounds JSON and text bodies. Multipart uploads are streamed.
const maxBodyBytes = 32 << 20

// query holds the optional parameters of a request
type query struct {
	fields      []string // nil means no projection
	id          int64
	index       int
	firstResult int
	maxResults  int
}

func parseQuery(r *http.Request) (query, error) {
	values := r.URL.Query()
	q := query{id: store.NoID, index: store.NoIndex, maxResults: -1}

	if values.Has("fields") {
		q.fields = value.ParseFields(strings.ReplaceAll(values.Get("fields"), ";", ","))
	}

	idText := r.PathValue("id")
	if idText == "" {
		idText = values.Get("id")
	}
	if idText != "" {
		id, err := strconv.ParseInt(idText, 10, 64)
		if err != nil || id <= store.NoID {
			return q, store.Errorf(store.RetCValidation, "Bad id %q", idText)
		}
		q.id = id
	}

	ints := []struct {
		name string
		dst  *int
		min  int
	}{
		{"index", &q.index, 0},
		{"firstResult", &q.firstResult, 0},
		{"maxResults", &q.maxResults, -1},
	}
	for _, p := range ints {
		text := values.Get(p.name)
		if text == "" {
			continue
		}
		n, err := strconv.Atoi(text)
		if err != nil || n < p.min {
			return q, store.Errorf(store.RetCValidation, "Bad %s %q", p.name, text)
		}
		*p.dst = n
	}
	return q, nil
}

// mediaType returns the lower-cased media type of the request body
func mediaType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}

func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, store.Errorf(store.RetCValidation, "Failed to read request body: %v", err)
	}
	if len(data) > maxBodyBytes {
		return nil, store.Errorf(store.RetCValidation, "Request body exceeds %d bytes", maxBodyBytes)
	}
	return data, nil
}

// readValue decodes the body of a write: a multipart "file" part becomes a file
// record named after key, text/plain a string, anything else JSON.
func readValue(r *http.Request, key string) (value.Value, error) {
	switch mediaType(r) {
	case "multipart/form-data":
		return readFilePart(r, key)
	case "text/plain":
		data, err := readBody(r)
		if err != nil {
			return value.Null(), err
		}
		return value.String(string(data)), nil
	}

	data, err := readBody(r)
	if err != nil {
		return value.Null(), err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return value.Null(), store.NewError(store.RetCValidation, "Value can not be null. Use DELETE instead")
	}
	v, err := value.Parse(data)
	if err != nil {
		return value.Null(), store.Errorf(store.RetCValidation, "Malformed JSON body: %v", err)
	}
	return v, nil
}

// readFilePart finds the "file" part of a multipart body. The part is returned as
// the pending content of the record; the registry reads it before it locks the
// database.
func readFilePart(r *http.Request, key string) (value.Value, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return value.Null(), store.Errorf(store.RetCValidation, "Malformed multipart body: %v", err)
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return value.Null(), store.NewError(store.RetCValidation, "File can not be null. Use DELETE instead")
		}
		if err != nil {
			return value.Null(), store.Errorf(store.RetCValidation, "Malformed multipart body: %v", err)
		}
		if part.FormName() != "file" {
			continue
		}
		rec := value.NewFileRecord(key, part.FileName(), part.Header.Get("Content-Type"), part)
		return value.File(rec), nil
	}
}

// readOptionalValue decodes a body that may be empty
func readOptionalValue(r *http.Request) (value.Value, error) {
	data, err := readBody(r)
	if err != nil {
		return value.Null(), err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return value.Null(), nil
	}
	if mediaType(r) == "text/plain" {
		return value.String(string(data)), nil
	}
	v, err := value.Parse(data)
	if err != nil {
		return value.Null(), store.Errorf(store.RetCValidation, "Malformed JSON body: %v", err)
	}
	return v, nil
}

func isEmptyValue(v value.Value) bool {
	if v.IsNull() {
		return true
	}
	if s, ok := v.AsString(); ok {
		return s == ""
	}
	if obj, ok := v.AsObject(); ok {
		return obj.Len() == 0
	}
	return v.IsList() && v.Len() == 0
}

// mergePatch applies an RFC 7386 merge patch to the object stored under key.
// An absent key is patched as an empty object.
func mergePatch(key string, current value.Value, loaded bool, patch []byte) (value.Value, error) {
	base := []byte("{}")
	if loaded {
		if !current.IsObject() {
			return value.Null(), store.Errorf(store.RetCValidation, "Value of key %q is not an object", key)
		}
		var err error
		if base, err = current.MarshalJSON(); err != nil {
			return value.Null(), store.Errorf(store.RetCInternalError, "failed to encode %q: %v", key, err)
		}
	}
	merged, err := jsonpatch.MergePatch(base, patch)
	if err != nil {
		return value.Null(), store.Errorf(store.RetCValidation, "Bad merge patch: %v", err)
	}
	v, err := value.Parse(merged)
	if err != nil {
		return value.Null(), store.Errorf(store.RetCValidation, "Bad merge patch: %v", err)
	}
	return v, nil
}
