// Package zenodo fetches record metadata from a Zenodo compatible records API.
package zenodo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/ubuntu/decorate"
)

// DefaultAPIURL is the records endpoint used when a source does not name one.
const DefaultAPIURL = "https://zenodo.org/api/records"

// ErrUnexpectedStatus is returned when the records API answers with a non success status.
var ErrUnexpectedStatus = errors.New("unexpected response status")

// Record is the subset of a record the adapter reads.
type Record struct {
	DOI      string    `mapstructure:"doi"`
	Metadata *Metadata `mapstructure:"metadata"`
	Files    []File    `mapstructure:"files"`
}

// Metadata holds the descriptive fields of a record.
type Metadata struct {
	Title       string    `mapstructure:"title"`
	Description string    `mapstructure:"description"`
	License     *License  `mapstructure:"license"`
	Version     string    `mapstructure:"version"`
	Keywords    []string  `mapstructure:"keywords"`
	Creators    []Creator `mapstructure:"creators"`
	AccessRight string    `mapstructure:"access_right"`
	DOI         string    `mapstructure:"doi"`
}

// License identifies the license of a record.
type License struct {
	ID string `mapstructure:"id"`
}

// Creator is one author of a record.
type Creator struct {
	Name string `mapstructure:"name"`
}

// File describes one file attached to a record.
type File struct {
	Key   string `mapstructure:"key"`
	Type  string `mapstructure:"type"`
	Size  *int64 `mapstructure:"size"`
	Links *Links `mapstructure:"links"`
}

// Links holds the links of a file.
type Links struct {
	Self string `mapstructure:"self"`
}

// Client queries the records API.
type Client struct {
	httpClient *http.Client
	maxBody    int64
}

type options struct {
	httpClient *http.Client
	timeout    time.Duration
	maxBody    int64
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// WithHTTPClient sets the HTTP client used to reach the API.
func WithHTTPClient(c *http.Client) Options {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithTimeout sets the maximum duration of one metadata request.
func WithTimeout(d time.Duration) Options {
	return func(o *options) {
		o.timeout = d
	}
}

// New returns a Client.
func New(args ...Options) *Client {
	opts := options{
		timeout: 30 * time.Second,
		maxBody: 32 << 20,
	}
	for _, opt := range args {
		opt(&opts)
	}

	c := opts.httpClient
	if c == nil {
		c = &http.Client{Timeout: opts.timeout}
	}

	return &Client{httpClient: c, maxBody: opts.maxBody}
}

// Record fetches the record recordID from the API at apiURL, authenticated with accessToken.
// An empty apiURL selects DefaultAPIURL.
func (c Client) Record(ctx context.Context, apiURL, recordID, accessToken string) (rec *Record, err error) {
	defer decorate.OnError(&err, "could not fetch record %q", recordID)

	u, err := RecordURL(apiURL, recordID, accessToken)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	slog.Debug("Fetching record metadata", "record", recordID, "api", apiURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	var raw map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, c.maxBody)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %v", err)
	}

	return Decode(raw)
}

// RecordURL returns the address of recordID below apiURL, with the access token as query parameter.
func RecordURL(apiURL, recordID, accessToken string) (string, error) {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if recordID == "" {
		return "", errors.New("empty record ID")
	}
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}

	u, err := url.Parse(apiURL + url.PathEscape(recordID))
	if err != nil {
		return "", fmt.Errorf("invalid API URL %q: %v", apiURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid API URL %q: unsupported scheme %q", apiURL, u.Scheme)
	}

	q := u.Query()
	q.Set("access_token", accessToken)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Decode converts a decoded JSON record into a Record.
// Scalar fields are weakly typed: numbers and strings convert into each other,
// and a license given as a bare string is read as its identifier.
func Decode(raw map[string]any) (*Record, error) {
	var rec Record
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &rec,
		WeaklyTypedInput: true,
		DecodeHook:       licenseFromString,
	})
	if err != nil {
		return nil, err
	}

	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("unexpected record layout: %v", err)
	}
	return &rec, nil
}

func licenseFromString(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(License{}) {
		return data, nil
	}
	return License{ID: data.(string)}, nil
}
