// Package fetcher downloads product feeds over HTTP, FTP, or from the local
// filesystem and decodes them into raw feed items.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher defines the interface for downloading remote feed data.
type Fetcher interface {
	// Download fetches the source and returns the body.
	Download(ctx context.Context, source string) (io.ReadCloser, error)
}

// Options configures the feed client.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
}

// Client fetches and decodes product feeds from any supported source scheme.
type Client struct {
	http *HTTPFetcher
	ftp  *FTPFetcher
}

// NewClient creates a Client dispatching by source scheme.
func NewClient(opts Options) *Client {
	return &Client{
		http: NewHTTPFetcher(HTTPOptions{
			UserAgent:  opts.UserAgent,
			Timeout:    opts.Timeout,
			MaxRetries: opts.MaxRetries,
		}),
		ftp: NewFTPFetcher(FTPOptions{Timeout: opts.Timeout}),
	}
}

// Open returns a reader for the source. Sources starting with http:// or
// https:// go over HTTP, ftp:// over FTP, and anything else is treated as a
// local file path.
func (c *Client) Open(ctx context.Context, source string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return c.http.Download(ctx, source)
	case strings.HasPrefix(source, "ftp://"):
		return c.ftp.Download(ctx, source)
	}

	if u, err := url.Parse(source); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", source)
	}
	return f, nil
}

// FetchIfChanged downloads and decodes the feed only when it differs from the
// given ETag. Non-HTTP sources carry no ETag and always refetch. When the feed
// is unchanged, items are nil and the passed ETag is returned unchanged.
func (c *Client) FetchIfChanged(ctx context.Context, source, etag string) ([]map[string]any, string, bool, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		items, err := c.Fetch(ctx, source)
		return items, "", true, err
	}

	body, newETag, changed, err := c.http.DownloadIfChanged(ctx, source, etag)
	if err != nil {
		return nil, "", false, err
	}
	if !changed {
		zap.L().Debug("feed not modified",
			zap.String("source", source),
			zap.String("etag", etag),
		)
		return nil, newETag, false, nil
	}
	defer body.Close() //nolint:errcheck

	items, err := DecodeFeed(body)
	if err != nil {
		return nil, "", false, eris.Wrapf(err, "fetcher: decode feed from %s", source)
	}
	return items, newETag, true, nil
}

// Fetch downloads the source and decodes it as a product feed.
func (c *Client) Fetch(ctx context.Context, source string) ([]map[string]any, error) {
	body, err := c.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	items, err := DecodeFeed(body)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: decode feed from %s", source)
	}

	zap.L().Debug("fetched feed",
		zap.String("source", source),
		zap.Int("items", len(items)),
	)
	return items, nil
}
