// Package rpc contains everything between a MikeDB process and the network.
//
// The package is organized into several subpackages:
//
//   - common: server and client configuration and the logging setup shared by
//     every package.
//
//   - transport: the REST api (http) and WebSocket subscriptions (ws).
//
//   - client: a store.IStore implementation that talks to a remote server over
//     the REST api.
//
//   - server: assembles registry, access control, hub and cleanup schedule into
//     one process and serves them.
package rpc
