// Package cmd implements the command-line interface of MikeDB. It provides a
// hierarchical command structure for running the server, working with documents
// as a client and administrating API keys.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures the MikeDB server
//   - kv: Document operations against a running server (get, put, append, ...)
//   - keys: Offline administration of the API keys in a data directory
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See mikedb -help for a list of all commands.
package cmd
