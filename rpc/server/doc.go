// Package server assembles a MikeDB process.
//
// A Server owns the single instance of every stateful component:
//
//   - db.Registry: the databases, backed by a persist.Store in the data directory
//   - access.Checker: API key evaluation against the configuration database
//   - hub.Hub: WebSocket subscribers and change fan-out, installed as the
//     registry's notifier
//   - schedule.Scheduler: periodic cleanup of abandoned in-memory databases
//
// On top of them it serves the REST api (rpc/transport/http), subscriptions
// (rpc/transport/ws), Prometheus metrics on /metrics and a JSON summary on
// /status. Serve listens on a TCP address or, for endpoints ending in ".sock",
// on a unix socket, and shuts everything down when its context is done.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Endpoint:        "localhost:8080",
//	  DataDir:         common.DefaultDataDir(),
//	  Codec:           "json",
//	  CleanupInterval: time.Hour,
//	  AbandonAfter:    time.Hour,
//	  LogLevel:        "info",
//	}
//	s, err := server.New(config)
//	if err != nil {
//	  return err
//	}
//	return s.Serve(ctx)
package server
