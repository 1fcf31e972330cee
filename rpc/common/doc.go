// Package common provides the pieces shared by the MikeDB server, its
// transports and the command-line client.
//
// Key Components:
//
//   - ServerConfig: configuration of a server process (endpoint, data directory,
//     codec, cleanup schedule, access control and logging). String() renders the
//     effective configuration for the startup log.
//
//   - ClientConfig: endpoint, API key and timeout used by rpc/client.
//
//   - Logger: InitLoggers installs a slog backed factory for the dragonboat
//     logger package, so every package logs through `logger.GetLogger(name)` with
//     a coloured tint handler on terminals and plain output otherwise.
package common
