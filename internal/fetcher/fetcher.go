// Package fetcher downloads supplier feeds and turns them into canonical rows.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"

	"catalog_sync/internal/model"
)

// DefaultMaxBytes caps the size of a downloaded feed.
const DefaultMaxBytes = 64 << 20

var (
	// ErrSourceUnavailable marks a feed that could not be retrieved. A run hitting it
	// has performed no writes.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedFeed marks a feed body that cannot be parsed any further.
	ErrMalformedFeed = errors.New("malformed feed")
	// ErrMalformedRow marks a single unusable record; reading continues after it.
	ErrMalformedRow = errors.New("malformed row")
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Source describes where a supplier feed lives and how to read it.
type Source struct {
	URL    string
	Format model.FeedFormat
	CSV    CSVLayout
}

// Feed is a downloaded feed body.
type Feed struct {
	Body        []byte
	ContentType string
	source      Source
}

// Rows returns the feed records in document order. A record-level problem is
// yielded as an ErrMalformedRow error and iteration goes on; any other error ends it.
func (f *Feed) Rows() iter.Seq2[model.SupplierRow, error] {
	switch f.source.Format {
	case model.FormatCSV:
		return ReadCSV(f.Body, f.source.CSV)
	case model.FormatYML:
		return ReadYML(f.Body)
	case model.FormatGoods:
		return ReadGoods(f.Body)
	}
	return func(yield func(model.SupplierRow, error) bool) {
		yield(model.SupplierRow{}, fmt.Errorf("%w: unknown format %q", ErrMalformedFeed, f.source.Format))
	}
}

// Extension returns the file extension used when archiving the feed.
func (f *Feed) Extension() string {
	if f.source.Format == model.FormatCSV {
		return "csv"
	}
	return "xml"
}

// Fetcher downloads supplier feeds.
type Fetcher struct {
	client   HTTPClient
	maxBytes int64
}

// New creates a Fetcher with the given HTTP client. maxBytes <= 0 means DefaultMaxBytes.
func New(client HTTPClient, maxBytes int64) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fetcher{
		client:   client,
		maxBytes: maxBytes,
	}
}

// Fetch downloads the whole feed of src. Any failure is reported as ErrSourceUnavailable.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("User-Agent", "CatalogSync/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http get: %v", ErrSourceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrSourceUnavailable, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: feed exceeds %d bytes", ErrSourceUnavailable, f.maxBytes)
	}

	return &Feed{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		source:      src,
	}, nil
}
