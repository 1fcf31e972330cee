// Package transport groups the network surfaces of MikeDB.
//
//   - http: the REST api handler, rate limiting and the client transport
//   - ws: WebSocket subscriptions, bridging gorilla/websocket connections to the hub
package transport
