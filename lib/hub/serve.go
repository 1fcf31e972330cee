package hub

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ma99us/MikeDB/lib/access"
	"github.com/ma99us/MikeDB/lib/store"
)

// connState is the protocol state of one connection in Serve
type connState int

const (
	stateAwaitingKey connState = iota
	stateAttached
)

// handshake is the first message of a connection. "API_KEY" is the documented
// field, "apiKey" is accepted as well.
type handshake struct {
	APIKey    string `json:"API_KEY"`
	APIKeyAlt string `json:"apiKey"`
}

// Serve runs the subscriber protocol on conn until the connection fails, the
// peer violates the protocol or ctx is done. conn is closed on return.
//
//   - "PING" (any case) is answered with "PONG" in every state.
//   - The first other message must be a JSON object carrying an API key with READ
//     access to dbName. Otherwise an ErrorEvent is sent and the connection closed.
//   - Once attached every message is relayed to the subscribers of dbName.
//
// A connection closed by the peer is not an error.
func (h *Hub) Serve(ctx context.Context, conn Conn, dbName string) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	state := stateAwaitingKey
	var sub *Subscriber
	defer func() {
		if sub != nil {
			h.Close(conn, dbName)
		}
		_ = conn.Close()
	}()

	for {
		msg, readErr := conn.ReadMessage()
		if readErr != nil {
			if state == stateAwaitingKey && ctx.Err() == nil {
				Logger.Debugf("connection %s closed before attaching: %v", conn.ID(), readErr)
			}
			return nil
		}
		if strings.EqualFold(strings.TrimSpace(string(msg)), "PING") {
			if err := conn.WriteMessage([]byte("PONG")); err != nil {
				Logger.Warningf("failed to answer ping on %s: %v", conn.ID(), err)
			}
			continue
		}

		switch state {
		case stateAwaitingKey:
			apiKey, parseErr := parseHandshake(msg)
			if parseErr == nil && !h.checker.CheckAccess(apiKey, access.READ, dbName) {
				parseErr = store.Errorf(store.RetCAuthorization, "API key does not grant READ on %s", dbName)
			}
			if parseErr == nil {
				sub, parseErr = h.Open(conn, dbName, apiKey)
			}
			if parseErr != nil {
				h.sendError(conn, dbName, parseErr)
				return parseErr
			}
			state = stateAttached
		case stateAttached:
			h.Relay(dbName, msg, sub.SessionID())
		}
	}
}

// parseHandshake extracts the API key of the first message
func parseHandshake(msg []byte) (string, error) {
	var hs handshake
	if err := json.Unmarshal(msg, &hs); err != nil {
		return "", store.Errorf(store.RetCProtocol, "first message must be a JSON object with an API_KEY: %v", err)
	}
	key := hs.APIKey
	if key == "" {
		key = hs.APIKeyAlt
	}
	if strings.TrimSpace(key) == "" {
		return "", store.NewError(store.RetCProtocol, "first message must carry an API_KEY")
	}
	return key, nil
}

// sendError writes an ErrorEvent, best effort
func (h *Hub) sendError(conn Conn, dbName string, cause error) {
	event := ErrorEvent{
		Event:     store.EventError,
		SessionID: SessionIDFor(conn, dbName),
		Exception: store.CodeOf(cause).String(),
		Message:   cause.Error(),
	}
	var e *store.Error
	if errors.As(cause, &e) {
		event.Message = e.Msg
	}
	Logger.Warningf("closing connection %s to %s: %v", conn.ID(), dbName, cause)
	if err := conn.WriteMessage(encode(event)); err != nil {
		Logger.Debugf("failed to send error event to %s: %v", conn.ID(), err)
	}
}
