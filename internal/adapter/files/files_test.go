package files_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/public-data-space/zenodo-adapter/internal/adapter/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLink(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		urls     []string
		queryErr error

		want    string
		wantErr error
	}{
		"Single record": {urls: []string{"https://example.org/a"}, want: "https://example.org/a"},

		"No record is ambiguous":         {wantErr: files.ErrAmbiguousResult},
		"Duplicate records is ambiguous": {urls: []string{"https://example.org/a", "https://example.org/a"}, wantErr: files.ErrAmbiguousResult},
		"Store failure":                  {queryErr: errQuery, wantErr: errQuery},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			db := fakeDB{"D/R": tc.urls}
			if tc.queryErr != nil {
				db = fakeDB{errKey: nil}
			}

			got, err := files.New(db).Link(t.Context(), "D", "R")
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr, "Link should fail with the expected cause")
				assert.Empty(t, got, "No link should be returned on failure")
				return
			}
			require.NoError(t, err, "Link should not fail")
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStream(t *testing.T) {
	t.Parallel()

	const content = "station,level\nbrest,4.2\n"

	tests := map[string]struct {
		storedPath  string
		storedURL   string
		noRecord    bool
		upstream    int
		unreachable bool
		filename    string

		wantDisposition string
		wantErr         error
	}{
		"Streams content with quoted filename": {
			filename:        "report.csv",
			wantDisposition: `attachment; filename="report.csv"`,
		},
		"Filename with spaces and quotes": {
			filename:        `my "best" data.csv`,
			wantDisposition: `attachment; filename="my \"best\" data.csv"`,
		},
		"Non ASCII filename is encoded": {
			filename:        "résumé.csv",
			wantDisposition: "attachment; filename*=utf-8''r%C3%A9sum%C3%A9.csv",
		},
		"No filename omits disposition": {},

		// Error cases
		"No access record":      {noRecord: true, wantErr: files.ErrAmbiguousResult},
		"Unparsable stored URL": {storedURL: "http://[::1", wantErr: files.ErrInvalidURL},
		"Stored URL without scheme": {
			storedURL: "example.org/data.csv",
			wantErr:   files.ErrInvalidURL,
		},
		"Upstream not found":    {upstream: http.StatusNotFound, wantErr: files.ErrUpstream},
		"Upstream unreachable":  {unreachable: true, wantErr: files.ErrUpstream},
		"Upstream server error": {upstream: http.StatusBadGateway, wantErr: files.ErrUpstream},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.upstream != 0 {
					w.WriteHeader(tc.upstream)
					return
				}
				w.Header().Set("Content-Type", "text/csv")
				_, _ = io.WriteString(w, content)
			}))
			defer upstream.Close()

			stored := upstream.URL + "/files/data.csv"
			if tc.storedURL != "" {
				stored = tc.storedURL
			}
			if tc.unreachable {
				upstream.Close()
			}

			db := fakeDB{"D/R": {stored}}
			if tc.noRecord {
				db = fakeDB{}
			}

			rec := httptest.NewRecorder()
			err := files.New(db).Stream(t.Context(), rec, "D", "R", tc.filename)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr, "Stream should fail with the expected cause")
				assert.Empty(t, rec.Body.String(), "Nothing should be streamed on failure")
				assert.Empty(t, rec.Header(), "No header should be set on failure")
				return
			}
			require.NoError(t, err, "Stream should not fail")

			assert.Equal(t, http.StatusOK, rec.Code, "Unexpected status")
			assert.Equal(t, content, rec.Body.String(), "Content should be piped unchanged")
			assert.Equal(t, "chunked", rec.Header().Get("Transfer-Encoding"), "Content should be sent chunked")
			assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"), "Upstream content type should be forwarded")
			assert.Equal(t, tc.wantDisposition, rec.Header().Get("Content-Disposition"), "Unexpected content disposition")
		})
	}
}

func TestStreamOverHTTPIsChunked(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "payload")
	}))
	defer upstream.Close()

	svc := files.New(fakeDB{"D/R": {upstream.URL + "/x"}})
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Stream(r.Context(), w, "D", "R", "x.bin"); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
		}
	}))
	defer proxy.Close()

	resp, err := http.Get(proxy.URL)
	require.NoError(t, err, "GET should not fail")
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "Reading body should not fail")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "Unexpected status")
	assert.Equal(t, []string{"chunked"}, resp.TransferEncoding, "Response should use chunked transfer encoding")
	assert.Equal(t, "payload", string(body), "Unexpected body")
	assert.Equal(t, `attachment; filename="x.bin"`, resp.Header.Get("Content-Disposition"), "Unexpected content disposition")
}

var errQuery = errors.New("query failure requested by test")

// errKey makes fakeDB fail its lookup.
const errKey = "error"

// fakeDB maps "dataset/distribution" to the stored URLs.
type fakeDB map[string][]string

func (f fakeDB) AccessURLs(_ context.Context, datasetID, distributionID string) ([]string, error) {
	if _, ok := f[errKey]; ok {
		return nil, errQuery
	}
	return f[datasetID+"/"+distributionID], nil
}
