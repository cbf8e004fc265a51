package ingest

import (
	"strings"

	"github.com/public-data-space/zenodo-adapter/internal/adapter/ids"
	"github.com/public-data-space/zenodo-adapter/internal/adapter/models"
	"github.com/public-data-space/zenodo-adapter/internal/adapter/zenodo"
)

// newDataset builds the dataset shell of rec, without distributions.
func newDataset(rec *zenodo.Record, gen ids.Generator, extended bool) *models.Dataset {
	ds := &models.Dataset{
		ResourceID: rec.DOI,
		Status:     models.StatusApproved,
	}
	if ds.ResourceID == "" {
		ds.ResourceID = gen.NewID()
	}

	md := rec.Metadata
	if md == nil {
		md = &zenodo.Metadata{}
	}

	ds.Title = md.Title
	ds.Description = md.Description
	ds.Version = md.Version
	if md.License != nil {
		ds.License = md.License.ID
	}
	ds.Tags = uniqueTags(md.Keywords)

	if extended {
		ds.AdditionalMetadata = extendedMetadata(rec.DOI, md)
	}

	return ds
}

// uniqueTags returns keywords without blanks and duplicates, in first seen order.
func uniqueTags(keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(keywords))
	tags := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		tags = append(tags, k)
	}
	return tags
}

func extendedMetadata(doi string, md *zenodo.Metadata) map[string][]string {
	meta := make(map[string][]string)

	pid := md.DOI
	if pid == "" {
		pid = doi
	}
	if pid != "" {
		meta[models.MetaPID] = []string{pid}
	}

	var authors []string
	for _, c := range md.Creators {
		if c.Name != "" {
			authors = append(authors, c.Name)
		}
	}
	if len(authors) > 0 {
		meta[models.MetaAuthor] = []string{strings.Join(authors, "-")}
	}

	if md.AccessRight != "" {
		meta[models.MetaAccessLevel] = []string{md.AccessRight}
	}

	if len(meta) == 0 {
		return nil
	}
	return meta
}
