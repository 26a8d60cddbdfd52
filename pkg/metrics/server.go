package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/nfsusage/internal/logger"
)

// DefaultPort is the port the command line tool serves metrics on.
const DefaultPort = 9464

const shutdownTimeout = 5 * time.Second

// Server serves the registry over HTTP while a crawl runs:
//
//	/metrics  Prometheus exposition
//	/healthz  200 while the server accepts connections
//	/         plain-text list of the metric families collected so far
type Server struct {
	addr string
	srv  *http.Server

	mu       sync.Mutex
	listener net.Listener
	stopOnce sync.Once
	stopErr  error
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Host to bind, empty for every interface.
	Host string

	// Port to listen on. 0 picks a free port, see Server.Port.
	Port int
}

// NewServer creates a stopped server. Start binds the port.
func NewServer(config ServerConfig) *Server {
	s := &Server{addr: net.JoinHostPort(config.Host, strconv.Itoa(config.Port))}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/", s.index)

	s.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

func metricsHandler() http.Handler {
	if registry := GetRegistry(); registry != nil {
		return promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "metrics collection is disabled", http.StatusServiceUnavailable)
	})
}

// index lists every family in the registry with its help text, which is
// quicker to read than the exposition format while watching a crawl.
func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	registry := GetRegistry()
	if registry == nil {
		_, _ = fmt.Fprintln(w, "nfsusage: metrics collection is disabled")
		return
	}
	families, err := registry.Gather()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	_, _ = fmt.Fprintf(w, "nfsusage: %d metric families, scrape /metrics\n\n", len(families))
	for _, mf := range families {
		_, _ = fmt.Fprintf(w, "%-40s %s\n", mf.GetName(), mf.GetHelp())
	}
}

// Start binds the port and serves until ctx is cancelled or Stop is
// called. A bind failure is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics server: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	logger.Info("serving metrics on http://%s/metrics", ln.Addr())

	served := make(chan error, 1)
	go func() { served <- s.srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}

// Stop shuts the server down, waiting for in-flight scrapes until ctx
// expires. Later calls return the first result.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if err := s.srv.Shutdown(ctx); err != nil {
			s.stopErr = fmt.Errorf("metrics server shutdown: %w", err)
			return
		}
		logger.Debug("metrics server stopped")
	})
	return s.stopErr
}

// Port returns the bound port once Start has listened, otherwise the
// configured one.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().(*net.TCPAddr).Port
	}
	_, port, _ := net.SplitHostPort(s.addr)
	n, _ := strconv.Atoi(port)
	return n
}
