package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ma99us/MikeDB/rpc/common"
)

// Request is one call of the REST api, relative to the endpoint
type Request struct {
	Method      string
	Path        string // below BasePath, e.g. "/db/key"
	Query       url.Values
	ContentType string
	// SessionID overrides the session id of the transport when set
	SessionID string
	Body      []byte
	// BodyReader is streamed instead of Body when set. Such requests are not retried.
	BodyReader io.Reader
}

// Response is the answer to a Request
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ClientTransport sends requests to one MikeDB server. Endpoints ending in
// ".sock" are dialed as unix sockets.
//
// Thread-safety: a connected transport can be used concurrently.
type ClientTransport struct {
	base       *url.URL
	client     *http.Client
	apiKey     string
	sessionID  string
	retryCount int
}

// NewClientTransport returns an unconnected transport
func NewClientTransport() *ClientTransport {
	return &ClientTransport{}
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// Connect prepares the HTTP client for config.Endpoint
func (t *ClientTransport) Connect(config common.ClientConfig) error {
	timeout := time.Duration(config.TimeoutSecond) * time.Second
	if timeout <= 0 {
		timeout = common.DefaultTimeoutSecond * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     timeout,
	}

	endpoint := strings.TrimSpace(config.Endpoint)
	if strings.HasSuffix(endpoint, ".sock") {
		socket := strings.TrimPrefix(endpoint, "unix://")
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		}
		endpoint = "http://unix"
	} else if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	base, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", config.Endpoint, err)
	}

	t.base = base
	t.client = &http.Client{Transport: transport, Timeout: timeout}
	t.apiKey = config.APIKey
	t.sessionID = config.SessionID
	t.retryCount = 3
	return nil
}

// Send performs req. Connection failures are retried, HTTP errors are not.
func (t *ClientTransport) Send(ctx context.Context, req Request) (*Response, error) {
	if t.client == nil {
		return nil, fmt.Errorf("http transport not initialized")
	}

	target := *t.base
	target.Path = t.base.Path + BasePath + req.Path
	target.RawQuery = req.Query.Encode()

	attempts := t.retryCount
	if req.BodyReader != nil || attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		body := req.BodyReader
		if body == nil && req.Body != nil {
			body = bytes.NewReader(req.Body)
		}
		httpRequest, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
		if err != nil {
			return nil, err
		}
		if req.ContentType != "" {
			httpRequest.Header.Set("Content-Type", req.ContentType)
		}
		if t.apiKey != "" {
			httpRequest.Header.Set(HeaderAPIKey, t.apiKey)
		}
		if sid := req.SessionID; sid != "" {
			httpRequest.Header.Set(HeaderSessionID, sid)
		} else if t.sessionID != "" {
			httpRequest.Header.Set(HeaderSessionID, t.sessionID)
		}

		resp, err := t.client.Do(httpRequest)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		data, err := io.ReadAll(resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			Logger.Debugf("failed to close response body: %v", closeErr)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
	}
	return nil, lastErr
}

// Close releases idle connections
func (t *ClientTransport) Close() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	t.client = nil
	t.base = nil
	return nil
}
