package http

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/ma99us/MikeDB/lib/access"
	"github.com/ma99us/MikeDB/lib/store"
	"github.com/ma99us/MikeDB/lib/value"
)

var Logger = logger.GetLogger("transport/http")

const (
	// HeaderAPIKey carries the API key of a request
	HeaderAPIKey = "API_KEY"
	// HeaderSessionID carries the session id of the acting subscriber, if any
	HeaderSessionID = "SESSION_ID"
	// HeaderTotalCount carries the result of a HEAD request
	HeaderTotalCount = "X-Total-Count"

	// BasePath prefixes every database route
	BasePath = "/api"

	ContentTypeJSON       = "application/json"
	ContentTypeText       = "text/plain; charset=utf-8"
	ContentTypeMergePatch = "application/merge-patch+json"
)

// IDataStore is what the handler needs from the database registry
type IDataStore interface {
	store.IStore
	// OpenFile returns a file record and a reader over its bytes
	OpenFile(dbName, key string) (rec *value.FileRecord, content io.ReadCloser, loaded bool, err error)
}

// IAccessChecker authorizes API keys
type IAccessChecker interface {
	CheckAccess(apiKey string, level access.Level, dbName string) bool
}

// Handler serves the REST api of the document store under BasePath. Further
// routes (subscriptions, metrics, status) are added with Handle.
type Handler struct {
	store   IDataStore
	checker IAccessChecker
	limiter *RateLimiter
	mux     *http.ServeMux
}

// NewHandler creates the api handler. limiter may be nil to disable rate limiting.
func NewHandler(s IDataStore, checker IAccessChecker, limiter *RateLimiter) *Handler {
	h := &Handler{
		store:   s,
		checker: checker,
		limiter: limiter,
		mux:     http.NewServeMux(),
	}

	// GET routes answer HEAD as well, handleGet tells them apart
	h.mux.HandleFunc("GET "+BasePath+"/{db}/{key}", h.handleGet)
	h.mux.HandleFunc("GET "+BasePath+"/{db}/{key}/{id}", h.handleGet)
	h.mux.HandleFunc("PUT "+BasePath+"/{db}/{key}", h.handlePut)
	h.mux.HandleFunc("POST "+BasePath+"/{db}/{key}", h.handlePost)
	h.mux.HandleFunc("PATCH "+BasePath+"/{db}/{key}", h.handlePatch)
	h.mux.HandleFunc("DELETE "+BasePath+"/{db}/{key}", h.handleDelete)
	h.mux.HandleFunc("DELETE "+BasePath+"/{db}", h.handleDrop)
	return h
}

// Handle registers an additional route on the handler's mux
func (h *Handler) Handle(pattern string, handler http.Handler) {
	h.mux.Handle(pattern, handler)
}

// ServeHTTP applies CORS, rate limiting and request logging, then routes the request
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	writeCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
	if h.limiter != nil && strings.HasPrefix(r.URL.Path, BasePath+"/") {
		result := h.limiter.Allow(h.rateKey(r))
		writeRateHeaders(w, result)
		if !result.Allowed {
			http.Error(rw, "Too many requests", http.StatusTooManyRequests)
			h.observe(r, rw, start)
			return
		}
	}

	h.mux.ServeHTTP(rw, r)
	h.observe(r, rw, start)
}

func (h *Handler) observe(r *http.Request, rw *responseWriter, start time.Time) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`mikedb_http_requests_total{method=%q,status="%d"}`, r.Method, rw.statusCode)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`mikedb_http_request_duration_seconds{method=%q}`, r.Method)).UpdateDuration(start)
	Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

// handleGet answers GET with the value (or part of it) and HEAD with its count.
// File downloads need no API key so links to them can be shared.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	dbName, key := r.PathValue("db"), r.PathValue("key")
	apiKey := r.Header.Get(HeaderAPIKey)
	authorized := h.checker.CheckAccess(apiKey, access.READ, dbName)

	if r.Method == http.MethodHead {
		if !authorized {
			writeError(w, unauthorized(access.READ, dbName))
			return
		}
		count, err := h.store.Count(dbName, key)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set(HeaderTotalCount, strconv.FormatInt(count, 10))
		w.WriteHeader(http.StatusOK)
		return
	}

	q, err := parseQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if !authorized {
		if served := h.serveFile(w, r, dbName, key, q); !served {
			writeError(w, unauthorized(access.READ, dbName))
		}
		return
	}

	if q.id > store.NoID {
		v, loaded, err := h.store.GetItem(dbName, key, q.id, q.fields)
		if err != nil {
			writeError(w, err)
			return
		}
		if !loaded {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeValue(w, http.StatusOK, v)
		return
	}

	v, loaded, err := h.store.Get(dbName, key, q.fields)
	if err != nil {
		writeError(w, err)
		return
	}
	if !loaded {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if v.IsFile() && q.fields == nil {
		if h.serveFile(w, r, dbName, key, q) {
			return
		}
	}
	if list, ok := v.AsList(); ok && (q.firstResult > 0 || q.maxResults >= 0) {
		v = value.List(page(list, q.firstResult, q.maxResults)...)
	}
	writeValue(w, http.StatusOK, v)
}

// serveFile streams the blob stored under key. It reports false when the key
// holds no file.
func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, dbName, key string, q query) bool {
	if q.id > store.NoID || q.fields != nil {
		return false
	}
	rec, content, loaded, err := h.store.OpenFile(dbName, key)
	if err != nil {
		writeError(w, err)
		return true
	}
	if !loaded {
		return false
	}
	defer content.Close()

	w.Header().Set("Content-Type", rec.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	if !rec.ModTime.IsZero() {
		w.Header().Set("Last-Modified", rec.ModTime.UTC().Format(http.TimeFormat))
	}
	// the disposition also tells clients that the body is a blob, not a value
	disposition := "inline"
	if rec.FileName != "" {
		disposition = mime.FormatMediaType("inline", map[string]string{"filename": rec.FileName})
	}
	w.Header().Set("Content-Disposition", disposition)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content); err != nil {
		Logger.Warningf("failed to stream %s/%s: %v", dbName, key, err)
	}
	return true
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	dbName, key := r.PathValue("db"), r.PathValue("key")
	if !h.authorize(w, r, access.WRITE, dbName) {
		return
	}
	v, err := readValue(r, key)
	if err != nil {
		writeError(w, err)
		return
	}
	created, err := h.store.Put(dbName, key, v, r.Header.Get(HeaderSessionID))
	h.writeResult(w, dbName, key, v, created, err)
}

// handlePost appends to a list. A file upload replaces the key like PUT.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	dbName, key := r.PathValue("db"), r.PathValue("key")
	if !h.authorize(w, r, access.WRITE, dbName) {
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := readValue(r, key)
	if err != nil {
		writeError(w, err)
		return
	}
	var created bool
	if v.IsFile() {
		created, err = h.store.Put(dbName, key, v, r.Header.Get(HeaderSessionID))
	} else {
		created, err = h.store.Append(dbName, key, v, q.index, r.Header.Get(HeaderSessionID))
	}
	h.writeResult(w, dbName, key, v, created, err)
}

// handlePatch updates part of a value. A merge patch is applied to the stored object.
func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request) {
	dbName, key := r.PathValue("db"), r.PathValue("key")
	if !h.authorize(w, r, access.WRITE, dbName) {
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sessionID := r.Header.Get(HeaderSessionID)

	if mediaType(r) == ContentTypeMergePatch {
		patch, err := readBody(r)
		if err != nil {
			writeError(w, err)
			return
		}
		current, loaded, err := h.store.Get(dbName, key, nil)
		if err != nil {
			writeError(w, err)
			return
		}
		merged, err := mergePatch(key, current, loaded, patch)
		if err != nil {
			writeError(w, err)
			return
		}
		created, err := h.store.Put(dbName, key, merged, sessionID)
		h.writeResult(w, dbName, key, merged, created, err)
		return
	}

	v, err := readValue(r, key)
	if err != nil {
		writeError(w, err)
		return
	}
	var created bool
	if v.IsFile() {
		created, err = h.store.Put(dbName, key, v, sessionID)
	} else {
		created, err = h.store.Update(dbName, key, v, q.index, sessionID)
	}
	h.writeResult(w, dbName, key, v, created, err)
}

// handleDelete removes a key, or one list entry by index or id. The id may also
// come from an object in the request body.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	dbName, key := r.PathValue("db"), r.PathValue("key")
	if !h.authorize(w, r, access.WRITE, dbName) {
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := readOptionalValue(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id := q.id
	if bodyID, ok := body.ID(); ok && bodyID > store.NoID {
		id = bodyID
	} else if q.index == store.NoIndex && id <= store.NoID && !isEmptyValue(body) {
		// a body that names no entry removes nothing
		w.WriteHeader(http.StatusNoContent)
		return
	}

	removed, err := h.store.RemoveItem(dbName, key, q.index, id, r.Header.Get(HeaderSessionID))
	if err != nil {
		writeError(w, err)
		return
	}
	if removed {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) handleDrop(w http.ResponseWriter, r *http.Request) {
	dbName := r.PathValue("db")
	if !h.authorize(w, r, access.WRITE, dbName) {
		return
	}
	allRemoved, err := h.store.DropDatabase(dbName, r.Header.Get(HeaderSessionID))
	if err != nil {
		writeError(w, err)
		return
	}
	if allRemoved {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusNoContent)
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, level access.Level, dbName string) bool {
	if h.checker.CheckAccess(r.Header.Get(HeaderAPIKey), level, dbName) {
		return true
	}
	writeError(w, unauthorized(level, dbName))
	return false
}

// writeResult answers a write: 201 with a Location when the key was created, else 200
func (h *Handler) writeResult(w http.ResponseWriter, dbName, key string, v value.Value, created bool, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	if created {
		w.Header().Set("Location", BasePath+"/"+dbName+"/"+key)
		writeValue(w, http.StatusCreated, v)
		return
	}
	writeValue(w, http.StatusOK, v)
}

func unauthorized(level access.Level, dbName string) error {
	return store.Errorf(store.RetCAuthorization, "Bad or missing %s header for %s access to %s", HeaderAPIKey, level, dbName)
}

// writeValue renders strings as plain text and everything else as JSON
func writeValue(w http.ResponseWriter, status int, v value.Value) {
	if s, ok := v.AsString(); ok {
		w.Header().Set("Content-Type", ContentTypeText)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, s)
		return
	}
	data, err := v.MarshalJSON()
	if err != nil {
		writeError(w, store.Errorf(store.RetCInternalError, "failed to encode value: %v", err))
		return
	}
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError maps the error code to a status and writes the message as text
func writeError(w http.ResponseWriter, err error) {
	msg := err.Error()
	var e *store.Error
	if errors.As(err, &e) {
		msg = e.Msg
	}

	status := http.StatusInternalServerError
	switch store.CodeOf(err) {
	case store.RetCValidation, store.RetCProtocol:
		status = http.StatusBadRequest
		Logger.Warningf("%s", msg)
	case store.RetCAuthorization:
		status = http.StatusUnauthorized
		Logger.Warningf("%s", msg)
	default:
		Logger.Errorf("request failed: %v", err)
	}
	http.Error(w, msg, status)
}

// page returns list[first:first+limit], clamped to the list. limit < 0 means no limit.
func page(list []value.Value, first, limit int) []value.Value {
	if first > len(list) {
		first = len(list)
	}
	end := len(list)
	if limit >= 0 && first+limit < end {
		end = first + limit
	}
	return list[first:end]
}

func writeCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, DELETE, PUT, HEAD, PATCH, OPTIONS")
	w.Header().Set("Access-Control-Max-Age", "3600")
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Origin, X-Requested-With, Content-Type, "+
		"Last-Modified, Content-Length, "+HeaderAPIKey+", "+HeaderSessionID+", "+
		"Upgrade, Sec-WebSocket-Extensions, Sec-WebSocket-Key, Sec-WebSocket-Version")
	w.Header().Set("Access-Control-Expose-Headers", "Location, "+HeaderTotalCount+", X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter captures the status code. It passes Hijack through so
// WebSocket upgrades work behind it.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	rw.wroteHeader = true
	return hj.Hijack()
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
