// Package server implements the dashboard HTTP server for the daemon.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/daemon/watcher"
	"github.com/watchfire-io/agentwatch/internal/store"
	"github.com/watchfire-io/agentwatch/internal/transcript"
)

const (
	// DefaultKeepalive is the interval between keepalive frames.
	DefaultKeepalive = 15 * time.Second

	requestTimeout = 30 * time.Second
	writeTimeout   = 5 * time.Second
)

// ErrNoFreePort is returned when every port in the range is taken.
var ErrNoFreePort = errors.New("no free port in range")

// Options configures a Server.
type Options struct {
	Host      string
	PortStart int
	PortEnd   int
	Keepalive time.Duration
	Version   string

	Store   *store.Store
	Watcher *watcher.Watcher
}

// Server is the dashboard's HTTP server.
type Server struct {
	opts       Options
	store      *store.Store
	watcher    *watcher.Watcher
	cache      *transcript.Cache
	router     chi.Router
	httpServer *http.Server
	listener   net.Listener
	port       int
	startedAt  time.Time

	// streams ends hijacked websocket connections on Shutdown, which
	// http.Server does not track.
	streams     context.Context
	stopStreams context.CancelFunc
}

// New creates a server. Call Listen before Serve.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: no store", store.ErrUnavailable)
	}
	if opts.Watcher == nil {
		return nil, errors.New("server requires a watcher")
	}
	if opts.Host == "" {
		opts.Host = config.DashboardHost
	}
	if opts.Keepalive <= 0 {
		opts.Keepalive = DefaultKeepalive
	}

	cache, err := transcript.NewCache(transcript.DefaultCacheBytes)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:      opts,
		store:     opts.Store,
		watcher:   opts.Watcher,
		cache:     cache,
		startedAt: time.Now(),
	}
	s.streams, s.stopStreams = context.WithCancel(context.Background())
	s.router = s.routes()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(requestTimeout))
			r.Get("/health", s.handleHealth)
			r.Get("/projects", s.handleListProjects)
			r.Get("/tasks", s.handleListTasks)
			r.Get("/tasks/{id}", s.handleGetTask)
			r.Get("/tasks/{id}/log", s.handleTaskLog)
			r.Get("/tasks/{id}/events", s.handleTaskEvents)
			r.Get("/stats", s.handleStats)
		})

		// Streams are long-lived and must not sit behind the timeout.
		r.Get("/stream/agents", s.handleAgentsStream)
		r.Get("/stream/tasks/{id}/log", s.handleLogStream)
	})
	return r
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds the first free port in the configured range.
func (s *Server) Listen() error {
	ln, err := listenInRange(s.opts.Host, s.opts.PortStart, s.opts.PortEnd)
	if err != nil {
		return err
	}
	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	return nil
}

// Port returns the bound port, or 0 before Listen.
func (s *Server) Port() int {
	return s.port
}

// Serve serves requests until Shutdown is called.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	log.Printf("[dashboard] Serving on %s", s.listener.Addr())
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopStreams()
	err := s.httpServer.Shutdown(ctx)
	s.cache.Close()
	return err
}

// listenInRange binds host on the first free port in [start, end]. A
// zero start binds an ephemeral port.
func listenInRange(host string, start, end int) (net.Listener, error) {
	lc := net.ListenConfig{}
	if start == 0 {
		return lc.Listen(context.Background(), "tcp", net.JoinHostPort(host, "0"))
	}
	if end < start {
		end = start
	}
	var lastErr error
	for port := start; port <= end; port++ {
		ln, err := lc.Listen(context.Background(), "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w %d-%d: %w", ErrNoFreePort, start, end, lastErr)
}
