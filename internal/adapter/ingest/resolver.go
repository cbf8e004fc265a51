package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/public-data-space/zenodo-adapter/internal/adapter/ids"
	"github.com/public-data-space/zenodo-adapter/internal/adapter/models"
	"github.com/public-data-space/zenodo-adapter/internal/adapter/zenodo"
)

// resolver turns one file description into a distribution and records where it can be downloaded.
type resolver struct {
	prober prober
	db     database
	ids    ids.Generator
	now    func() time.Time
}

// resolve builds the distribution of file for datasetID.
// An access record has been written if and only if the returned error is nil.
func (r resolver) resolve(ctx context.Context, datasetID string, file zenodo.File) (models.Distribution, error) {
	dist := models.Distribution{
		ResourceID: r.ids.NewID(),
		Filetype:   file.Type,
	}

	if file.Links == nil || file.Links.Self == "" {
		return models.Distribution{}, fmt.Errorf("file %q: %w", file.Key, ErrMissingDownloadURL)
	}
	link := file.Links.Self

	dist.Filename = r.prober.Filename(ctx, link)

	now := r.now()
	if err := r.db.InsertAccessRecord(ctx, models.AccessRecord{
		CreatedAt:      now,
		UpdatedAt:      now,
		DistributionID: dist.ResourceID,
		DatasetID:      datasetID,
		URL:            link,
	}); err != nil {
		return models.Distribution{}, err
	}

	if file.Size != nil {
		dist.AdditionalMetadata = map[string][]string{
			models.MetaByteSize: {strconv.FormatInt(*file.Size, 10)},
		}
	}

	slog.Debug("Distribution resolved", "dataset", datasetID, "distribution", dist.ResourceID, "filename", dist.Filename)
	return dist, nil
}
