// Package files resolves stored download links and proxies their content.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ubuntu/decorate"
)

var (
	// ErrAmbiguousResult is returned when a lookup does not match exactly one access record.
	ErrAmbiguousResult = errors.New("retrieved either none or multiple results")

	// ErrInvalidURL is returned when the stored link cannot be requested.
	ErrInvalidURL = errors.New("invalid download URL")

	// ErrUpstream is returned when the download target could not be reached or refused the request.
	ErrUpstream = errors.New("download failed")
)

type database interface {
	AccessURLs(ctx context.Context, datasetID, distributionID string) ([]string, error)
}

// Service looks up and streams distribution content.
type Service struct {
	db     database
	client *http.Client
}

type options struct {
	client        *http.Client
	headerTimeout time.Duration
}

// Options represents an optional function to override Service default values.
type Options func(*options)

// WithHTTPClient sets the HTTP client used to download content.
func WithHTTPClient(c *http.Client) Options {
	return func(o *options) {
		o.client = c
	}
}

// WithResponseHeaderTimeout bounds how long the download target may take to start answering.
// The transfer of the body itself is not bounded.
func WithResponseHeaderTimeout(d time.Duration) Options {
	return func(o *options) {
		o.headerTimeout = d
	}
}

// New returns a Service reading access records from db.
func New(db database, args ...Options) *Service {
	opts := options{headerTimeout: 30 * time.Second}
	for _, opt := range args {
		opt(&opts)
	}

	if opts.client == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.ResponseHeaderTimeout = opts.headerTimeout
		opts.client = &http.Client{Transport: tr}
	}

	return &Service{db: db, client: opts.client}
}

// Link returns the download link of distributionID in datasetID.
// It fails with ErrAmbiguousResult unless exactly one access record matches.
func (s Service) Link(ctx context.Context, datasetID, distributionID string) (link string, err error) {
	defer decorate.OnError(&err, "could not get link of distribution %q of dataset %q", distributionID, datasetID)

	urls, err := s.db.AccessURLs(ctx, datasetID, distributionID)
	if err != nil {
		return "", err
	}
	if len(urls) != 1 {
		slog.Debug("Unexpected number of access records", "dataset", datasetID, "distribution", distributionID, "count", len(urls))
		return "", ErrAmbiguousResult
	}
	return urls[0], nil
}

// Stream writes the content of distributionID in datasetID to w with chunked transfer encoding,
// presenting it as filename.
//
// Nothing is written to w when an error is returned.
func (s Service) Stream(ctx context.Context, w http.ResponseWriter, datasetID, distributionID, filename string) (err error) {
	defer decorate.OnError(&err, "could not stream distribution %q of dataset %q", distributionID, datasetID)

	link, err := s.Link(ctx, datasetID, distributionID)
	if err != nil {
		return err
	}

	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, link)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s answered %s", ErrUpstream, u.Host, resp.Status)
	}

	h := w.Header()
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		h.Set("Content-Type", ct)
	}
	if filename != "" {
		h.Set("Content-Disposition", contentDisposition(filename))
	}
	h.Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)

	// Headers are sent: failures from here on can only cut the response short.
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		slog.Warn("Download interrupted", "dataset", datasetID, "distribution", distributionID, "bytes", n, "err", err)
		return nil
	}
	slog.Debug("Download streamed", "dataset", datasetID, "distribution", distributionID, "bytes", n)
	return nil
}

// contentDisposition returns an attachment disposition with a quoted filename,
// or its RFC 2231 encoded form when filename is not plain ASCII.
func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); strings.Contains(v, "filename*=") {
		return v
	}
	return fmt.Sprintf("attachment; filename=%q", filename)
}
