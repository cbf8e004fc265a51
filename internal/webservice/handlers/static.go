package handlers

import (
	"net/http"

	"github.com/public-data-space/zenodo-adapter/internal/common/constants"
	"github.com/public-data-space/zenodo-adapter/internal/webservice/metrics"
)

type formField struct {
	Type string `json:"type"`
	UI   struct {
		Label       string `json:"label"`
		Placeholder string `json:"placeholder"`
	} `json:"ui"`
}

type formSchema struct {
	Type       string               `json:"type"`
	Properties map[string]formField `json:"properties"`
}

func stringField(label, placeholder string) formField {
	f := formField{Type: "string"}
	f.UI.Label = label
	f.UI.Placeholder = placeholder
	return f
}

var (
	dataAssetForm = formSchema{
		Type: "object",
		Properties: map[string]formField{
			"recordId": stringField("Record ID", "1234567"),
		},
	}

	dataSourceForm = formSchema{
		Type: "object",
		Properties: map[string]formField{
			"zenodoApiUrl": stringField("Zenodo API URL", "https://zenodo.org/api/records"),
			"accessToken":  stringField("Access Token", "myToken"),
		},
	}
)

// SupportedHandler lists the file types the adapter can serve.
func SupportedHandler(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)
	writeJSON(w, newRequestID(), map[string][]string{"supported": {"JSON"}})
}

// DataAssetFormSchemaHandler describes the fields needed to create a data asset.
func DataAssetFormSchemaHandler(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)
	writeJSON(w, newRequestID(), dataAssetForm)
}

// DataSourceFormSchemaHandler describes the fields of a Zenodo data source.
func DataSourceFormSchemaHandler(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)
	writeJSON(w, newRequestID(), dataSourceForm)
}

// VersionHandler handles requests to the /version endpoint.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)
	writeJSON(w, newRequestID(), map[string]string{"version": constants.Version})
}
