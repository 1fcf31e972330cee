package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/ma99us/MikeDB/lib/store"
	"github.com/ma99us/MikeDB/lib/value"
	"github.com/ma99us/MikeDB/rpc/common"
	transport "github.com/ma99us/MikeDB/rpc/transport/http"
)

var Logger = logger.GetLogger("client")

// Store talks to a MikeDB server over its REST api. It implements store.IStore;
// the sessionID arguments override the session id of the client config.
type Store struct {
	transport *transport.ClientTransport
}

var _ store.IStore = (*Store)(nil)

// NewHTTPStore connects t to config.Endpoint and returns a store using it
func NewHTTPStore(config common.ClientConfig, t *transport.ClientTransport) (*Store, error) {
	if err := t.Connect(config); err != nil {
		return nil, err
	}
	return &Store{transport: t}, nil
}

// Close releases the connections of the transport
func (s *Store) Close() error {
	return s.transport.Close()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (s *Store) Get(dbName, key string, fields []string) (value.Value, bool, error) {
	return s.get(keyPath(dbName, key), key, fieldsQuery(fields))
}

func (s *Store) GetItem(dbName, key string, id int64, fields []string) (value.Value, bool, error) {
	return s.get(keyPath(dbName, key)+"/"+strconv.FormatInt(id, 10), key, fieldsQuery(fields))
}

// GetPage returns maxResults entries of a list starting at firstResult. A
// negative maxResults returns the rest of the list.
func (s *Store) GetPage(dbName, key string, firstResult, maxResults int, fields []string) (value.Value, bool, error) {
	q := fieldsQuery(fields)
	q.Set("firstResult", strconv.Itoa(firstResult))
	if maxResults >= 0 {
		q.Set("maxResults", strconv.Itoa(maxResults))
	}
	return s.get(keyPath(dbName, key), key, q)
}

func (s *Store) Count(dbName, key string) (int64, error) {
	resp, err := s.send(transport.Request{Method: http.MethodHead, Path: keyPath(dbName, key)})
	if err != nil {
		return 0, err
	}
	if err := expect(resp, http.StatusOK); err != nil {
		return 0, err
	}
	count, err := strconv.ParseInt(resp.Header.Get(transport.HeaderTotalCount), 10, 64)
	if err != nil {
		return 0, store.Errorf(store.RetCInternalError, "bad %s header: %v", transport.HeaderTotalCount, err)
	}
	return count, nil
}

func (s *Store) Put(dbName, key string, v value.Value, sessionID string) (bool, error) {
	return s.write(http.MethodPut, dbName, key, v, store.NoIndex, sessionID)
}

func (s *Store) Append(dbName, key string, v value.Value, index int, sessionID string) (bool, error) {
	return s.write(http.MethodPost, dbName, key, v, index, sessionID)
}

func (s *Store) Update(dbName, key string, v value.Value, index int, sessionID string) (bool, error) {
	return s.write(http.MethodPatch, dbName, key, v, index, sessionID)
}

func (s *Store) Remove(dbName, key string, sessionID string) (bool, error) {
	return s.RemoveItem(dbName, key, store.NoIndex, store.NoID, sessionID)
}

func (s *Store) RemoveItem(dbName, key string, index int, id int64, sessionID string) (bool, error) {
	q := url.Values{}
	if index != store.NoIndex {
		q.Set("index", strconv.Itoa(index))
	}
	if id > store.NoID {
		q.Set("id", strconv.FormatInt(id, 10))
	}
	resp, err := s.send(transport.Request{
		Method:    http.MethodDelete,
		Path:      keyPath(dbName, key),
		Query:     q,
		SessionID: sessionID,
	})
	if err != nil {
		return false, err
	}
	return resp.StatusCode == http.StatusOK, expect(resp, http.StatusOK, http.StatusNoContent)
}

func (s *Store) DropDatabase(dbName, sessionID string) (bool, error) {
	resp, err := s.send(transport.Request{
		Method:    http.MethodDelete,
		Path:      "/" + url.PathEscape(dbName),
		SessionID: sessionID,
	})
	if err != nil {
		return false, err
	}
	return resp.StatusCode == http.StatusOK, expect(resp, http.StatusOK, http.StatusNoContent)
}

// --------------------------------------------------------------------------
// Additional Methods
// --------------------------------------------------------------------------

// MergePatch applies an RFC 7386 merge patch to the object stored under key and
// returns the merged object.
func (s *Store) MergePatch(dbName, key string, patch []byte, sessionID string) (value.Value, bool, error) {
	resp, err := s.send(transport.Request{
		Method:      http.MethodPatch,
		Path:        keyPath(dbName, key),
		ContentType: transport.ContentTypeMergePatch,
		Body:        patch,
		SessionID:   sessionID,
	})
	if err != nil {
		return value.Null(), false, err
	}
	if err := expect(resp, http.StatusOK, http.StatusCreated); err != nil {
		return value.Null(), false, err
	}
	merged, err := value.Parse(resp.Body)
	if err != nil {
		return value.Null(), false, store.Errorf(store.RetCInternalError, "bad response: %v", err)
	}
	return merged, resp.StatusCode == http.StatusCreated, nil
}

// Upload stores the bytes of content as a file under key
func (s *Store) Upload(dbName, key, fileName, mimeType string, content io.Reader, sessionID string) (bool, error) {
	rec := value.NewFileRecord(key, fileName, mimeType, content)
	return s.Put(dbName, key, value.File(rec), sessionID)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *Store) send(req transport.Request) (*transport.Response, error) {
	resp, err := s.transport.Send(context.Background(), req)
	if err != nil {
		return nil, store.Errorf(store.RetCInternalError, "%s %s failed: %v", req.Method, req.Path, err)
	}
	Logger.Debugf("%s %s => %d", req.Method, req.Path, resp.StatusCode)
	return resp, nil
}

func (s *Store) get(path, key string, q url.Values) (value.Value, bool, error) {
	resp, err := s.send(transport.Request{Method: http.MethodGet, Path: path, Query: q})
	if err != nil {
		return value.Null(), false, err
	}
	if resp.StatusCode == http.StatusNoContent {
		return value.Null(), false, nil
	}
	if err := expect(resp, http.StatusOK); err != nil {
		return value.Null(), false, err
	}
	v, err := decodeValue(resp, key)
	if err != nil {
		return value.Null(), false, err
	}
	return v, true, nil
}

func (s *Store) write(method, dbName, key string, v value.Value, index int, sessionID string) (bool, error) {
	req := transport.Request{
		Method:    method,
		Path:      keyPath(dbName, key),
		SessionID: sessionID,
	}
	if index != store.NoIndex {
		req.Query = url.Values{"index": {strconv.Itoa(index)}}
	}

	if rec, ok := v.AsFile(); ok {
		req.ContentType, req.BodyReader = multipartBody(rec)
	} else if text, ok := v.AsString(); ok {
		req.ContentType, req.Body = transport.ContentTypeText, []byte(text)
	} else {
		data, err := v.MarshalJSON()
		if err != nil {
			return false, store.Errorf(store.RetCValidation, "failed to encode value: %v", err)
		}
		req.ContentType, req.Body = transport.ContentTypeJSON, data
	}

	resp, err := s.send(req)
	if err != nil {
		return false, err
	}
	return resp.StatusCode == http.StatusCreated, expect(resp, http.StatusOK, http.StatusCreated)
}

// multipartBody streams rec as the "file" part of a form
func multipartBody(rec *value.FileRecord) (string, io.Reader) {
	content := rec.Content
	if content == nil {
		content = strings.NewReader(string(rec.Data))
	}
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
			"name":     "file",
			"filename": rec.FileName,
		}))
		header.Set("Content-Type", rec.MimeType)
		part, err := mw.CreatePart(header)
		if err == nil {
			_, err = io.Copy(part, content)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	return mw.FormDataContentType(), pr
}

// decodeValue turns a response body back into a value: blobs (marked by a
// Content-Disposition) become in-memory file records, text/plain a string and
// anything else JSON.
func decodeValue(resp *transport.Response, key string) (value.Value, error) {
	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	if disposition := resp.Header.Get("Content-Disposition"); disposition != "" {
		_, params, _ := mime.ParseMediaType(disposition)
		rec := value.NewFileRecord(key, params["filename"], mediaType, nil)
		rec.Size = int64(len(resp.Body))
		rec.Data = resp.Body
		return value.File(rec), nil
	}
	if mediaType == "text/plain" {
		return value.String(string(resp.Body)), nil
	}
	v, err := value.Parse(resp.Body)
	if err != nil {
		return value.Null(), store.Errorf(store.RetCInternalError, "bad response: %v", err)
	}
	return v, nil
}

// expect maps unexpected status codes to store errors carrying the server's message
func expect(resp *transport.Response, ok ...int) error {
	for _, code := range ok {
		if resp.StatusCode == code {
			return nil
		}
	}
	msg := strings.TrimSpace(string(resp.Body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return store.NewError(store.RetCValidation, msg)
	case http.StatusUnauthorized:
		return store.NewError(store.RetCAuthorization, msg)
	default:
		return store.Errorf(store.RetCInternalError, "unexpected status %d: %s", resp.StatusCode, msg)
	}
}

func keyPath(dbName, key string) string {
	return fmt.Sprintf("/%s/%s", url.PathEscape(dbName), url.PathEscape(key))
}

func fieldsQuery(fields []string) url.Values {
	q := url.Values{}
	if fields != nil {
		q.Set("fields", strings.Join(fields, ","))
	}
	return q
}
