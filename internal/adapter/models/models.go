// Package models defines the catalog entries produced by the adapter and the messages exchanged with the manager.
package models

import "time"

// DataAssetStatus is the publication state of a dataset.
type DataAssetStatus string

// StatusApproved is the state of every successfully ingested dataset.
const StatusApproved DataAssetStatus = "APPROVED"

// Additional metadata keys.
const (
	// MetaByteSize holds the byte size of a distribution.
	MetaByteSize = "byte_size"
	// MetaPID holds the persistent identifier of a dataset.
	MetaPID = "pid"
	// MetaAuthor holds the creators of a dataset.
	MetaAuthor = "author"
	// MetaAccessLevel holds the access right of a dataset.
	MetaAccessLevel = "data_access_level"
)

// Dataset is a normalized catalog entry built from one external record.
type Dataset struct {
	ResourceID         string              `json:"resourceId"`
	Title              string              `json:"title,omitempty"`
	Description        string              `json:"description,omitempty"`
	License            string              `json:"license,omitempty"`
	Version            string              `json:"version,omitempty"`
	Tags               []string            `json:"tags,omitempty"`
	Status             DataAssetStatus     `json:"status"`
	Distributions      []Distribution      `json:"distributions"`
	AdditionalMetadata map[string][]string `json:"additionalmetadata,omitempty"`
}

// Distribution is one file attachment of a Dataset.
type Distribution struct {
	ResourceID         string              `json:"resourceId"`
	Filetype           string              `json:"filetype,omitempty"`
	Filename           string              `json:"filename"`
	AdditionalMetadata map[string][]string `json:"additionalmetadata,omitempty"`
}

// AccessRecord binds a distribution to the URL its content can be downloaded from.
type AccessRecord struct {
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DistributionID string
	DatasetID      string
	URL            string
}

// SourceDescriptor carries how to reach the external metadata service.
type SourceDescriptor struct {
	APIURL      string `json:"zenodoApiUrl"`
	AccessToken string `json:"accessToken"`
}

// CreateRequest is the body of a dataset ingestion request.
type CreateRequest struct {
	Data struct {
		RecordID string `json:"recordId"`
	} `json:"data"`
	DataSource struct {
		Data SourceDescriptor `json:"data"`
	} `json:"dataSource"`
}

// FileRequest is the body of a file link request.
type FileRequest struct {
	DatasetID      string `json:"dataAssetId"`
	DistributionID string `json:"distributionId"`
}
