// Package ws connects WebSocket clients to the subscriber hub.
//
// A client opens GET /api/subscribe/{db}, sends a JSON object carrying its
// API_KEY as the first message and from then on receives the change and
// session events of the database. Every further text message is relayed to
// the other subscribers; "PING" is answered with "PONG".
//
// Each connection gets a ksid identity, which the hub combines with the
// database name into the session id. Writes to a connection are serialized
// because a gorilla connection supports one concurrent writer only.
package ws
