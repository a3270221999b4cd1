package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

// ShutdownTimeout bounds how long Run waits for in-flight requests to drain.
var ShutdownTimeout = 10 * time.Second

// Server wraps the http.Server with sensible defaults.
type Server struct {
	inner *http.Server
}

// New constructs a server listening on addr. writeTimeout must cover the
// slowest handler; the command endpoint waits on generation calls.
func New(addr string, handler http.Handler, writeTimeout time.Duration) *Server {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Server{
		inner: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// ListenAddr joins host and port into a listen address.
func ListenAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.inner.Addr
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully terminates the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}

// Run serves until ctx ends, SIGINT/SIGTERM arrives or the listener fails,
// then shuts down within ShutdownTimeout.
func (s *Server) Run(ctx context.Context, logger *slog.Logger) error {
	logger.Info("starting http server", "addr", s.Addr())

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- s.Start()
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	return s.Shutdown(shutdownCtx)
}
