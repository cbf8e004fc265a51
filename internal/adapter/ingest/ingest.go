// Package ingest turns external records into datasets.
//
// The files of a record are resolved concurrently. Ingestion is all or nothing: when one file fails,
// no dataset is returned and the access records already written for the attempt are removed.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/public-data-space/zenodo-adapter/internal/adapter/ids"
	"github.com/public-data-space/zenodo-adapter/internal/adapter/models"
	"github.com/public-data-space/zenodo-adapter/internal/adapter/zenodo"
	"github.com/public-data-space/zenodo-adapter/internal/common/constants"
	"github.com/ubuntu/decorate"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrMissingDownloadURL is returned when a file description has no download link.
	ErrMissingDownloadURL = errors.New("no download URL provided")

	// ErrHostNotAllowed is returned when the metadata API host is not in the allow list.
	ErrHostNotAllowed = errors.New("metadata API host is not allowed")
)

type metadataClient interface {
	Record(ctx context.Context, apiURL, recordID, accessToken string) (*zenodo.Record, error)
}

type prober interface {
	Filename(ctx context.Context, link string) string
}

type database interface {
	InsertAccessRecord(ctx context.Context, rec models.AccessRecord) error
	DeleteAccessRecord(ctx context.Context, datasetID, distributionID string) error
	DeleteAccessRecords(ctx context.Context, datasetID string) (int64, error)
}

type hostPolicy interface {
	IsAllowed(host string) bool
}

// Service ingests records and deletes datasets.
type Service struct {
	records  metadataClient
	db       database
	ids      ids.Generator
	resolver resolver

	hosts    hostPolicy
	extended bool
	limit    int

	ingestions    *prometheus.CounterVec
	distributions prometheus.Histogram
}

type options struct {
	hosts    hostPolicy
	extended bool
	limit    int
	now      func() time.Time
}

// Options represents an optional function to override Service default values.
type Options func(*options)

// WithHostPolicy restricts the metadata API hosts sources may point to.
func WithHostPolicy(p hostPolicy) Options {
	return func(o *options) {
		o.hosts = p
	}
}

// WithExtendedMetadata fills the pid, author and access level metadata of datasets.
func WithExtendedMetadata(enabled bool) Options {
	return func(o *options) {
		o.extended = enabled
	}
}

// WithConcurrencyLimit bounds how many files of one record are resolved at once. 0 means no limit.
func WithConcurrencyLimit(n int) Options {
	return func(o *options) {
		o.limit = n
	}
}

// New returns a Service. Its metrics are registered on reg.
func New(records metadataClient, p prober, db database, gen ids.Generator, reg prometheus.Registerer, args ...Options) (*Service, error) {
	opts := options{now: time.Now}
	for _, opt := range args {
		opt(&opts)
	}

	ingestions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: constants.MetricsNamespace,
		Name:      "ingestions_total",
		Help:      "Number of record ingestions, by result.",
	}, []string{"result"})
	if err := reg.Register(ingestions); err != nil {
		return nil, fmt.Errorf("failed to register ingestions counter: %v", err)
	}

	distributions := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: constants.MetricsNamespace,
		Name:      "ingested_distributions",
		Help:      "Number of distributions per successful ingestion.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})
	if err := reg.Register(distributions); err != nil {
		return nil, fmt.Errorf("failed to register distributions histogram: %v", err)
	}

	return &Service{
		records: records,
		db:      db,
		ids:     gen,
		resolver: resolver{
			prober: p,
			db:     db,
			ids:    gen,
			now:    opts.now,
		},

		hosts:    opts.hosts,
		extended: opts.extended,
		limit:    opts.limit,

		ingestions:    ingestions,
		distributions: distributions,
	}, nil
}

// Create fetches the record recordID from src and returns it as a dataset.
func (s Service) Create(ctx context.Context, recordID string, src models.SourceDescriptor) (ds *models.Dataset, err error) {
	defer decorate.OnError(&err, "could not ingest record %q", recordID)
	defer func() {
		if err != nil {
			s.ingestions.WithLabelValues("failure").Inc()
			return
		}
		s.ingestions.WithLabelValues("success").Inc()
		s.distributions.Observe(float64(len(ds.Distributions)))
	}()

	if err := s.checkHost(src.APIURL); err != nil {
		return nil, err
	}

	rec, err := s.records.Record(ctx, src.APIURL, recordID, src.AccessToken)
	if err != nil {
		return nil, err
	}

	ds = newDataset(rec, s.ids, s.extended)
	dists, err := s.resolveAll(ctx, ds.ResourceID, rec.Files)
	if err != nil {
		return nil, err
	}
	ds.Distributions = dists

	slog.Info("Record ingested", "record", recordID, "dataset", ds.ResourceID, "distributions", len(dists))
	return ds, nil
}

// Delete removes every access record of datasetID.
func (s Service) Delete(ctx context.Context, datasetID string) (err error) {
	defer decorate.OnError(&err, "could not delete dataset %q", datasetID)

	n, err := s.db.DeleteAccessRecords(ctx, datasetID)
	if err != nil {
		return err
	}

	slog.Info("Dataset deleted", "dataset", datasetID, "access_records", n)
	return nil
}

// resolveAll resolves files concurrently and fails with the first error reported.
func (s Service) resolveAll(ctx context.Context, datasetID string, files []zenodo.File) ([]models.Distribution, error) {
	dists := make([]models.Distribution, len(files))
	stored := make([]bool, len(files))

	g, gCtx := errgroup.WithContext(ctx)
	if s.limit > 0 {
		g.SetLimit(s.limit)
	}
	for i, f := range files {
		g.Go(func() error {
			d, err := s.resolver.resolve(gCtx, datasetID, f)
			if err != nil {
				return err
			}
			dists[i], stored[i] = d, true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.rollback(ctx, datasetID, dists, stored)
		return nil, err
	}
	return dists, nil
}

// rollback removes the access records written by a failed ingestion.
// Records of earlier ingestions of the same dataset are kept.
func (s Service) rollback(ctx context.Context, datasetID string, dists []models.Distribution, stored []bool) {
	ctx = context.WithoutCancel(ctx)
	for i, d := range dists {
		if !stored[i] {
			continue
		}
		if err := s.db.DeleteAccessRecord(ctx, datasetID, d.ResourceID); err != nil {
			slog.Error("Could not remove access record of failed ingestion", "dataset", datasetID, "distribution", d.ResourceID, "err", err)
		}
	}
}

func (s Service) checkHost(apiURL string) error {
	if s.hosts == nil {
		return nil
	}
	if apiURL == "" {
		apiURL = zenodo.DefaultAPIURL
	}

	u, err := url.Parse(apiURL)
	if err != nil {
		return fmt.Errorf("invalid API URL %q: %v", apiURL, err)
	}
	if !s.hosts.IsAllowed(u.Hostname()) {
		return fmt.Errorf("%w: %q", ErrHostNotAllowed, u.Hostname())
	}
	return nil
}
