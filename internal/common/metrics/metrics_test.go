package metrics_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/public-data-space/zenodo-adapter/internal/common/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenAndServe(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cfg     *metrics.Config
		wantErr bool
	}{
		"Default configuration": {},

		"Bad port": {
			cfg:     &metrics.Config{Port: -1},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tc.cfg = initConfig(t, tc.cfg)

			server := metrics.New(*tc.cfg, prometheus.NewRegistry())

			errCh := listenAndServeAsync(t, server)
			defer server.Close()

			select {
			case err := <-errCh:
				if tc.wantErr {
					require.Error(t, err, "Expected ListenAndServe to fail")
					return
				}
				require.Failf(t, "ListenAndServe returned unexpectedly", "Got possible error: %v", err)
			case <-time.After(500 * time.Millisecond):
				require.False(t, tc.wantErr, "Expected ListenAndServe to return an error but it did not")
			}

			require.NotEmpty(t, server.Addr(), "Expected server address to be set")

			statusCode, err := sendRequest(t, server, "/metrics")
			require.NoError(t, err, "Expected to successfully send request to metrics endpoint")
			require.Equal(t, http.StatusOK, statusCode, "Expected metrics endpoint to return 200 OK")
		})
	}
}

func TestMetricsExposition(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zenodo_adapter",
		Name:      "test_total",
		Help:      "Test counter.",
	}, []string{"result"})
	require.NoError(t, reg.Register(counter), "Setup: failed to register counter")
	counter.WithLabelValues("success").Add(3)

	server := metrics.New(*initConfig(t, nil), reg)
	errCh := listenAndServeAsync(t, server)
	defer server.Close()
	waitServing(t, errCh)

	want := `
# HELP zenodo_adapter_test_total Test counter.
# TYPE zenodo_adapter_test_total counter
zenodo_adapter_test_total{result="success"} 3
`
	err := testutil.ScrapeAndCompare("http://"+server.Addr()+"/metrics", strings.NewReader(want), "zenodo_adapter_test_total")
	require.NoError(t, err, "Expected registered counter to be exposed")
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	server := metrics.New(*initConfig(t, nil), prometheus.NewRegistry())
	errCh := listenAndServeAsync(t, server)
	defer server.Close()
	waitServing(t, errCh)

	statusCode, err := sendRequest(t, server, "/readyz")
	require.NoError(t, err, "Expected to successfully send request to readiness endpoint")
	assert.Equal(t, http.StatusServiceUnavailable, statusCode, "Expected adapter to be unready before MarkReady")

	server.MarkReady()

	statusCode, err = sendRequest(t, server, "/readyz")
	require.NoError(t, err, "Expected to successfully send request to readiness endpoint")
	assert.Equal(t, http.StatusOK, statusCode, "Expected adapter to be ready after MarkReady")
}

func TestShutdown(t *testing.T) {
	t.Parallel()

	server := metrics.New(*initConfig(t, nil), prometheus.NewRegistry())

	errCh := listenAndServeAsync(t, server)
	defer server.Close()
	waitServing(t, errCh)

	statusCode, err := sendRequest(t, server, "/metrics")
	require.NoError(t, err, "Expected to successfully send request to metrics endpoint")
	require.Equal(t, http.StatusOK, statusCode, "Expected metrics endpoint to return 200 OK")

	require.NoError(t, server.Shutdown(t.Context()), "Expected Shutdown to succeed")

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, http.ErrServerClosed, "Expected ListenAndServe to return ErrServerClosed after shutdown")
	case <-time.After(time.Second):
		require.Fail(t, "Expected ListenAndServe to return an error after shutdown")
	}

	_, err = sendRequest(t, server, "/metrics")
	require.Error(t, err, "Expected error when sending request after shutdown")
}

func TestClose(t *testing.T) {
	t.Parallel()

	server := metrics.New(*initConfig(t, nil), prometheus.NewRegistry())

	errCh := listenAndServeAsync(t, server)
	defer server.Close()
	waitServing(t, errCh)

	require.NoError(t, server.Close(), "Expected Close to succeed")

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, http.ErrServerClosed, "Expected ListenAndServe to return ErrServerClosed after close")
	case <-time.After(time.Second):
		require.Fail(t, "Expected ListenAndServe to return an error after close")
	}
}

func TestAddr(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cfg *metrics.Config
	}{
		"Default configuration": {},
		"Returns empty string if server fails to start": {
			cfg: &metrics.Config{Port: -1},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tc.cfg = initConfig(t, tc.cfg)

			server := metrics.New(*tc.cfg, prometheus.NewRegistry())
			require.Empty(t, server.Addr(), "Expected Addr to be empty before ListenAndServe")

			errCh := listenAndServeAsync(t, server)
			defer server.Close()

			select {
			case <-errCh:
				require.Empty(t, server.Addr(), "Expected Addr to be empty if ListenAndServe fails")
				return
			case <-time.After(500 * time.Millisecond):
			}

			require.NotEmpty(t, server.Addr(), "Expected Addr to be set after ListenAndServe")
		})
	}
}

func initConfig(t *testing.T, cfg *metrics.Config) *metrics.Config {
	t.Helper()

	if cfg == nil {
		cfg = &metrics.Config{Host: "127.0.0.1"}
	}

	cfg.ReadTimeout = 5 * time.Second
	cfg.WriteTimeout = 5 * time.Second
	return cfg
}

func listenAndServeAsync(t *testing.T, server *metrics.Server) chan error {
	t.Helper()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		errCh <- server.ListenAndServe()
	}()
	return errCh
}

func waitServing(t *testing.T, errCh chan error) {
	t.Helper()

	select {
	case err := <-errCh:
		require.Failf(t, "ListenAndServe returned unexpectedly", "Got possible error: %v", err)
	case <-time.After(500 * time.Millisecond):
	}
}

func sendRequest(t *testing.T, server *metrics.Server, path string) (int, error) {
	t.Helper()

	resp, err := http.Get("http://" + server.Addr() + path)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
