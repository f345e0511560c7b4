// Package http contains the HTTP handlers and server helpers of Raido.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
)

const defaultShutdownTimeout = time.Second * 10

// Servers are the HTTP servers of a Raido instance: the service server where
// clients connect, and the admin server that exposes metrics, the index
// listing and debug endpoints.
type Servers struct {
	Service *http.Server
	Admin   *http.Server

	// The time given to open connections to finish when the servers stop.
	ShutdownTimeout time.Duration
}

// NewServers creates the service and admin servers. Service requests are
// measured with the go-tooling HTTP metrics.
func NewServers(addr, adminAddr string, service, admin http.Handler) Servers {
	return Servers{
		Service: &http.Server{
			Addr:    addr,
			Handler: metrics.HTTPHandler(service, MetricsPathFormatter),
		},
		Admin: &http.Server{
			Addr:    adminAddr,
			Handler: admin,
		},
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// ListenAndServe serves until the context is done.
func (s Servers) ListenAndServe(ctx context.Context) {
	ListenAndServe(ctx, s.ShutdownTimeout, s.Service, s.Admin)
}

// ListenAndServe runs the given servers and shuts them down when the context
// is done. It returns once every server is stopped.
func ListenAndServe(ctx context.Context, shutdownTimeout time.Duration, servers ...*http.Server) {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	var wg sync.WaitGroup

	for _, s := range servers {
		wg.Add(2)

		go func(s *http.Server) {
			defer wg.Done()
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := s.Shutdown(shutdownCtx); err != nil {
				logs.Warn(errors.New("shutting down the server failed").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}(s)

		go func(s *http.Server) {
			defer wg.Done()

			logs.WithTag("addr", s.Addr).Info("starting server")

			switch err := s.ListenAndServe(); err {
			case nil, http.ErrServerClosed:
				logs.WithTag("addr", s.Addr).Info("stopping server")

			default:
				logs.Warn(errors.New("server stopped").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}(s)
	}

	wg.Wait()
}

// MetricsPathFormatter drops the path of requests that do not match a route,
// so unknown paths do not create metric series.
func MetricsPathFormatter(statusCode int, path string) string {
	switch statusCode {
	case http.StatusMovedPermanently,
		http.StatusBadRequest,
		http.StatusNotFound,
		http.StatusMethodNotAllowed:
		return ""

	default:
		return path
	}
}
