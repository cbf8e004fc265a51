// Package probe resolves display filenames for download links without transferring their content.
package probe

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/public-data-space/zenodo-adapter/internal/adapter/ids"
)

// strategy derives a filename from a link, or reports that the next strategy should be tried.
type strategy func(ctx context.Context, link string) (name string, ok bool)

// Prober resolves filenames. It never fails: when no strategy applies, a new identifier is returned.
type Prober struct {
	client     *http.Client
	ids        ids.Generator
	strategies []strategy
}

type options struct {
	client  *http.Client
	timeout time.Duration
}

// Options represents an optional function to override Prober default values.
type Options func(*options)

// WithHTTPClient sets the HTTP client issuing the HEAD requests.
func WithHTTPClient(c *http.Client) Options {
	return func(o *options) {
		o.client = c
	}
}

// WithTimeout sets the maximum duration of one HEAD request.
func WithTimeout(d time.Duration) Options {
	return func(o *options) {
		o.timeout = d
	}
}

// New returns a Prober using gen for its last resort filenames.
func New(gen ids.Generator, args ...Options) *Prober {
	opts := options{timeout: 30 * time.Second}
	for _, opt := range args {
		opt(&opts)
	}
	if opts.client == nil {
		opts.client = &http.Client{Timeout: opts.timeout}
	}

	p := &Prober{client: opts.client, ids: gen}
	p.strategies = []strategy{p.fromContentDisposition, fromPath}
	return p
}

// Filename returns the name link should be presented under.
//
// The content-disposition header of a HEAD response wins, then the last segment of the link path,
// then a freshly generated identifier.
func (p Prober) Filename(ctx context.Context, link string) string {
	for _, s := range p.strategies {
		if name, ok := s(ctx, link); ok {
			return name
		}
	}

	name := p.ids.NewID()
	slog.Debug("No filename could be derived from link, generated one", "link", link, "filename", name)
	return name
}

func (p Prober) fromContentDisposition(ctx context.Context, link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return "", false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Debug("HEAD request failed", "link", link, "err", err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		slog.Debug("HEAD request rejected", "link", link, "status", resp.StatusCode)
		return "", false
	}

	return FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
}

// FilenameFromDisposition extracts the first double quoted value following the filename token of a
// content-disposition header value.
func FilenameFromDisposition(header string) (string, bool) {
	i := strings.Index(header, "filename")
	if i < 0 {
		return "", false
	}

	parts := strings.SplitN(header[i:], `"`, 3)
	if len(parts) < 3 {
		return "", false
	}

	name := strings.TrimSpace(parts[1])
	return name, name != ""
}

func fromPath(_ context.Context, link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}

	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return "", false
	}

	return path.Base(p), true
}
