// Package webservice provides the HTTP server exposing the adapter operations.
package webservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	metricsserver "github.com/public-data-space/zenodo-adapter/internal/common/metrics"
	"github.com/public-data-space/zenodo-adapter/internal/webservice/handlers"
	"github.com/public-data-space/zenodo-adapter/internal/webservice/metrics"
)

// Server is a struct that holds the HTTP servers and their configuration.
type Server struct {
	httpServer    *http.Server
	metricsServer *metricsserver.Server
	cm            dConfigManager
	watchConfig   bool

	primaryAddr net.Addr
	mu          sync.RWMutex

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context waits until the next blocking Recv to interrupt.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc
}

// StaticConfig holds the static configuration for the server.
type StaticConfig struct {
	ConfigPath string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	MaxHeaderBytes  int
	MaxRequestBytes int

	ListenHost string
	ListenPort int

	MetricsHost string
	MetricsPort int
}

type dConfigManager interface {
	Load() error
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
	IsAllowed(string) bool
}

// New creates a new Server serving assets and files.
// Its metrics are registered on reg and exposed on the metrics listener.
func New(ctx context.Context, cm dConfigManager, assets handlers.AssetService, files handlers.FileService, sc StaticConfig, reg *prometheus.Registry) (*Server, error) {
	if err := cm.Load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	s := Server{
		cm:          cm,
		watchConfig: sc.ConfigPath != "",
		ctx:         ctx,
		cancel:      cancel,

		gracefulCtx:    gCtx,
		gracefulCancel: gCancel,
	}

	mw := metrics.New(reg)
	timed := func(name string, h http.Handler) http.Handler {
		monitored := mw.Monitor(name, h)
		if sc.RequestTimeout <= 0 {
			return monitored
		}
		return http.TimeoutHandler(monitored, sc.RequestTimeout, "")
	}
	maxBody := int64(sc.MaxRequestBytes)

	mux := http.NewServeMux()
	mux.Handle("POST /create", timed("create", handlers.NewCreate(assets, maxBody)))
	mux.Handle("GET /delete/{id}", timed("delete", handlers.NewDelete(assets)))
	mux.Handle("POST /getFile", timed("get_file", handlers.NewGetFile(files, maxBody)))
	mux.Handle("GET /supported", timed("supported", http.HandlerFunc(handlers.SupportedHandler)))
	mux.Handle("GET /getDataAssetFormSchema", timed("data_asset_form_schema", http.HandlerFunc(handlers.DataAssetFormSchemaHandler)))
	mux.Handle("GET /getDataSourceFormSchema", timed("data_source_form_schema", http.HandlerFunc(handlers.DataSourceFormSchemaHandler)))
	mux.Handle("GET /version", timed("version", http.HandlerFunc(handlers.VersionHandler)))
	// Downloads can outlive any request timeout.
	mux.Handle("GET /file/{datasetId}/{distributionId}", mw.Monitor("stream", handlers.NewStream(files)))

	s.httpServer = &http.Server{
		Addr:           net.JoinHostPort(sc.ListenHost, strconv.Itoa(sc.ListenPort)),
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		Handler:        mux,
		MaxHeaderBytes: sc.MaxHeaderBytes,
	}

	s.metricsServer = metricsserver.New(metricsserver.Config{
		Host:         sc.MetricsHost,
		Port:         sc.MetricsPort,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
	}, reg)

	return &s, nil
}

// Run starts the HTTP servers and blocks until they stop.
func (s *Server) Run() error {
	slog.Info("Starting server", "addr", s.httpServer.Addr)

	// already asked to quit?
	select {
	case <-s.gracefulCtx.Done():
		return errors.New("server is already shutting down")
	default:
	}

	var watchErr <-chan error
	if s.watchConfig {
		var err error
		if _, watchErr, err = s.cm.Watch(s.gracefulCtx); err != nil {
			s.cancel()
			return fmt.Errorf("failed to start watching configuration: %v", err)
		}
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to listen on %s: %v", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.primaryAddr = listener.Addr()
	s.mu.Unlock()

	serverErr := make(chan error, 2)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("primary server: %v", err)
		}
	}()
	go func() {
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("metrics server: %v", err)
		}
	}()
	s.metricsServer.MarkReady()
	slog.Info("Server ready", "addr", listener.Addr().String())

	select {
	case <-s.gracefulCtx.Done():
		return s.shutdown()
	case err := <-serverErr:
		slog.Error("Server encountered error", "err", err)
		return errors.Join(err, s.close())
	case err := <-watchErr:
		if err == nil {
			// The watcher stops on its own only when asked to quit.
			return s.shutdown()
		}
		slog.Error("Config watcher encountered unrecoverable error", "err", err)
		return errors.Join(err, s.close())
	}
}

func (s *Server) shutdown() error {
	slog.Info("Graceful shutdown initiated")
	// use parent ctx so if you call s.cancel() elsewhere it unblocks Shutdown immediately
	err := errors.Join(s.httpServer.Shutdown(s.ctx), s.metricsServer.Shutdown(s.ctx))
	s.cancel()
	if err != nil {
		slog.Error("Graceful shutdown failed", "err", err)
		return err
	}
	slog.Info("Server shut down gracefully")
	return nil
}

func (s *Server) close() error {
	err := errors.Join(s.httpServer.Close(), s.metricsServer.Close())
	s.cancel()
	return err
}

// Quit shuts down the HTTP servers, gracefully unless force is set.
func (s *Server) Quit(force bool) {
	defer s.cancel()
	if force {
		_ = s.close()
	} else {
		s.gracefulCancel()
	}
	slog.Info("Server quit")
}
