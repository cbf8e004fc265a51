package handlers

import (
	"context"
	"net/http"

	"github.com/public-data-space/zenodo-adapter/internal/adapter/models"
)

// AssetService ingests and deletes datasets.
type AssetService interface {
	Create(ctx context.Context, recordID string, src models.SourceDescriptor) (*models.Dataset, error)
	Delete(ctx context.Context, datasetID string) error
}

// FileService resolves and streams distribution content.
type FileService interface {
	Link(ctx context.Context, datasetID, distributionID string) (string, error)
	Stream(ctx context.Context, w http.ResponseWriter, datasetID, distributionID, filename string) error
}
