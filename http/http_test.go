package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewServers(t *testing.T) {
	var service, admin http.ServeMux

	servers := NewServers(":4000", ":18190", &service, &admin)
	require.Equal(t, ":4000", servers.Service.Addr)
	require.NotNil(t, servers.Service.Handler)
	require.Equal(t, ":18190", servers.Admin.Addr)
	require.Equal(t, &admin, servers.Admin.Handler)
	require.Equal(t, defaultShutdownTimeout, servers.ShutdownTimeout)
}

func TestServersListenAndServe(t *testing.T) {
	var service, admin http.ServeMux
	servers := NewServers("127.0.0.1:0", "127.0.0.1:0", &service, &admin)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*100)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		servers.ListenAndServe(ctx)
	}()

	select {
	case <-done:

	case <-time.After(time.Second * 5):
		t.Fatal("servers did not stop")
	}
}

func TestMetricsPathFormatter(t *testing.T) {
	tests := []struct {
		status int
		path   string
		want   string
	}{
		{status: http.StatusOK, path: "/health", want: "/health"},
		{status: http.StatusServiceUnavailable, path: "/ready", want: "/ready"},
		{status: http.StatusMovedPermanently, path: "/debug/pprof", want: ""},
		{status: http.StatusBadRequest, path: "/smoke-test", want: ""},
		{status: http.StatusNotFound, path: "/nope", want: ""},
		{status: http.StatusMethodNotAllowed, path: "/indexes", want: ""},
	}

	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			require.Equal(t, test.want, MetricsPathFormatter(test.status, test.path))
		})
	}
}
