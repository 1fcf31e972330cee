package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/ma99us/MikeDB/lib/access"
	"github.com/ma99us/MikeDB/lib/codec"
	"github.com/ma99us/MikeDB/lib/db"
	"github.com/ma99us/MikeDB/lib/hub"
	"github.com/ma99us/MikeDB/lib/persist"
	"github.com/ma99us/MikeDB/lib/schedule"
	"github.com/ma99us/MikeDB/lib/store"
	"github.com/ma99us/MikeDB/rpc/common"
	transport "github.com/ma99us/MikeDB/rpc/transport/http"
	"github.com/ma99us/MikeDB/rpc/transport/ws"
)

var Logger = logger.GetLogger("server")

// Server is the process-wide state of MikeDB: the database registry, access
// control, the subscriber hub and the cleanup schedule, plus the HTTP api on top.
//
// Usage:
//
//	s, err := server.New(config)
//	if err != nil {
//		panic(err)
//	}
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	}
type Server struct {
	config common.ServerConfig

	registry *db.Registry
	checker  *access.Checker
	hub      *hub.Hub
	cleanup  *schedule.Scheduler
	limiter  *transport.RateLimiter

	ctx     context.Context
	cancel  context.CancelFunc
	handler *transport.Handler
	started time.Time
}

// New builds every component from config. Nothing listens or runs until Serve.
func New(config common.ServerConfig) (*Server, error) {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	c, err := codec.ByName(config.Codec)
	if err != nil {
		return nil, err
	}
	p, err := persist.New(config.DataDir, c)
	if err != nil {
		return nil, err
	}

	var seeds map[string][]access.Grant
	if config.KeysFile != "" {
		if seeds, err = access.LoadKeysFile(config.KeysFile); err != nil {
			return nil, err
		}
	}

	s := &Server{config: config, started: time.Now()}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	// the hub needs the checker, which needs the registry
	s.registry = db.New(db.Options{Persist: p, AbandonAfter: config.AbandonAfter})
	s.checker = access.NewChecker(s.registry.Config(), seeds)
	s.hub = hub.New(s.checker)
	s.registry.SetNotifier(s.hub)

	s.cleanup = schedule.New("database cleanup", config.CleanupInterval, s.registry.Cleanup)
	if config.RateLimit > 0 {
		s.limiter = transport.NewRateLimiter(config.RateLimit, time.Minute)
	}

	s.handler = transport.NewHandler(s.registry, s.checker, s.limiter)
	s.handler.Handle("GET "+transport.BasePath+"/subscribe/{db}", ws.NewHandler(s.ctx, s.hub))
	s.handler.Handle("GET /metrics", http.HandlerFunc(s.handleMetrics))
	s.handler.Handle("GET /status", http.HandlerFunc(s.handleStatus))

	Logger.Infof("Created MikeDB server")
	Logger.Infof(config.String())
	return s, nil
}

// Registry returns the database registry
func (s *Server) Registry() *db.Registry { return s.registry }

// Checker returns the access checker
func (s *Server) Checker() *access.Checker { return s.checker }

// Hub returns the subscriber hub
func (s *Server) Hub() *hub.Hub { return s.hub }

// Handler returns the HTTP handler serving the api, subscriptions, metrics and status
func (s *Server) Handler() http.Handler { return s.handler }

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Serve listens on the configured endpoint until ctx is done, then shuts down
// gracefully. The returned error is nil after a regular shutdown.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener is Serve on an existing listener
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	if err := s.checker.Bootstrap(); err != nil {
		_ = listener.Close()
		return err
	}
	if err := s.cleanup.Start(s.ctx); err != nil {
		_ = listener.Close()
		return err
	}
	if s.config.WatchConfig {
		if dir := s.registry.Config().Dir(); dir != "" {
			if err := access.Watch(s.ctx, dir, s.registry.Config().Reload); err != nil {
				Logger.Errorf("failed to watch %s: %v", dir, err)
			}
		}
	}

	timeout := s.config.Timeout()
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: timeout,
		ReadTimeout:       timeout,
		// no WriteTimeout: it would cut WebSocket connections and large downloads
		IdleTimeout: 2 * timeout,
	}

	errc := make(chan error, 1)
	go func() {
		Logger.Infof("Starting HTTP server on %s", listener.Addr())
		errc <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errc:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	Logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := httpServer.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// Close stops the background work and disconnects every subscriber. It is
// called by Serve on return.
func (s *Server) Close() {
	s.cancel()
	s.cleanup.Stop()
	s.hub.Shutdown()
	if s.limiter != nil {
		s.limiter.Close()
	}
}

// listen opens a unix socket for endpoints ending in ".sock", else a TCP port
func (s *Server) listen() (net.Listener, error) {
	if s.config.IsUnixSocket() {
		// a stale socket of a previous run blocks the address
		if err := os.Remove(s.config.Endpoint); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove stale socket: %w", err)
		}
		return net.Listen("unix", s.config.Endpoint)
	}
	return net.Listen("tcp", s.config.Endpoint)
}

// --------------------------------------------------------------------------
// Metrics and status
// --------------------------------------------------------------------------

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w, true)
	s.registry.WritePrometheus(w)
}

// Status is the body of GET /status
type Status struct {
	StartedAt           time.Time `json:"startedAt"`
	Uptime              string    `json:"uptime"`
	OpenDatabases       []string  `json:"openDatabases"`
	SubscribedDatabases []string  `json:"subscribedDatabases"`
	Subscriptions       hub.Stats `json:"subscriptions"`
}

// Status returns a snapshot of the server state
func (s *Server) Status() Status {
	open := []string{}
	for _, name := range s.registry.OpenedNames() {
		if !store.IsConfigDB(name) {
			open = append(open, name)
		}
	}
	return Status{
		StartedAt:           s.started,
		Uptime:              time.Since(s.started).Round(time.Second).String(),
		OpenDatabases:       open,
		SubscribedDatabases: s.hub.Names(),
		Subscriptions:       s.hub.Stats(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	data, err := json.Marshal(s.Status())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
