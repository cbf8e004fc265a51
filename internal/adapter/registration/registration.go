// Package registration announces the adapter to the coordinating manager.
package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/public-data-space/zenodo-adapter/internal/common/constants"
)

// ErrConnectionRefused is returned once every registration attempt failed.
var ErrConnectionRefused = errors.New("connection refused")

// Payload is the announcement sent to the manager.
type Payload struct {
	Name    string  `json:"name"`
	Address Address `json:"address"`
}

// Address is where the adapter can be reached.
type Address struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Config holds the manager location and the retry budget.
type Config struct {
	ManagerHost string
	ManagerPort int

	// Attempts is the total number of calls made before giving up.
	Attempts int
	// Delay is the pause between two attempts.
	Delay time.Duration
	// Timeout bounds each call.
	Timeout time.Duration
}

// Registrar performs the registration handshake.
type Registrar struct {
	cfg     Config
	payload Payload
	client  *http.Client

	attempts *prometheus.CounterVec
}

type options struct {
	client *http.Client
}

// Options represents an optional function to override Registrar default values.
type Options func(*options)

// WithHTTPClient sets the HTTP client used to reach the manager.
func WithHTTPClient(c *http.Client) Options {
	return func(o *options) {
		o.client = c
	}
}

// New returns a Registrar announcing payload. Its metrics are registered on reg.
func New(cfg Config, payload Payload, reg prometheus.Registerer, args ...Options) (*Registrar, error) {
	if cfg.Attempts < 1 {
		return nil, fmt.Errorf("at least one registration attempt is required, got %d", cfg.Attempts)
	}

	opts := options{}
	for _, opt := range args {
		opt(&opts)
	}
	if opts.client == nil {
		opts.client = &http.Client{Timeout: cfg.Timeout}
	}

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: constants.MetricsNamespace,
		Name:      "registration_attempts_total",
		Help:      "Number of calls made to register with the manager, by result.",
	}, []string{"result"})
	if err := reg.Register(attempts); err != nil {
		return nil, fmt.Errorf("failed to register registration attempts counter: %v", err)
	}

	return &Registrar{
		cfg:      cfg,
		payload:  payload,
		client:   opts.client,
		attempts: attempts,
	}, nil
}

// Register announces the adapter, retrying up to the configured number of attempts.
// It returns an error wrapping ErrConnectionRefused once the budget is exhausted.
func (r Registrar) Register(ctx context.Context) error {
	body, err := json.Marshal(r.payload)
	if err != nil {
		return fmt.Errorf("could not encode registration payload: %v", err)
	}
	endpoint := "http://" + net.JoinHostPort(r.cfg.ManagerHost, strconv.Itoa(r.cfg.ManagerPort)) + "/register"

	var lastErr error
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		if attempt > 1 && r.cfg.Delay > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(ErrConnectionRefused, ctx.Err())
			case <-time.After(r.cfg.Delay):
			}
		}

		lastErr = r.announce(ctx, endpoint, body)
		if lastErr == nil {
			r.attempts.WithLabelValues("success").Inc()
			slog.Info("Registered with manager", "manager", endpoint, "name", r.payload.Name, "attempt", attempt)
			return nil
		}

		r.attempts.WithLabelValues("failure").Inc()
		slog.Warn("Registration attempt failed", "manager", endpoint, "attempt", attempt, "of", r.cfg.Attempts, "err", lastErr)

		if ctx.Err() != nil {
			break
		}
	}

	return fmt.Errorf("%w: could not register with manager at %s: %v", ErrConnectionRefused, endpoint, lastErr)
}

func (r Registrar) announce(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("manager answered %s", resp.Status)
	}
	return nil
}
