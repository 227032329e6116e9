// Package fetch loads the bytes behind encrypted-file locators found in
// documents.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// Reader reads files relative to the library root.
type Reader interface {
	Read(path string) ([]byte, error)
}

// Client resolves locators against a document: relative paths are read from
// the library next to the document, root-relative paths from the library
// root, and http(s) URLs are downloaded.
type Client struct {
	store Reader
	base  string
	http  *http.Client
}

// New creates a Client for a document located in directory base of the
// library. httpClient may be nil.
func New(store Reader, base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{store: store, base: base, http: httpClient}
}

// Fetch returns the content behind locator.
func (c *Client) Fetch(ctx context.Context, locator string) ([]byte, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, fmt.Errorf("fetch: parse %q: %w", locator, err)
	}
	switch u.Scheme {
	case "http", "https":
		return c.download(ctx, u.String())
	case "", "file":
		if c.store == nil {
			return nil, fmt.Errorf("fetch: no library for %q", locator)
		}
		return c.store.Read(c.resolve(u.Path))
	default:
		return nil, fmt.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}
}

func (c *Client) resolve(p string) string {
	if strings.HasPrefix(p, "/") {
		return strings.TrimPrefix(path.Clean(p), "/")
	}
	return path.Join(c.base, p)
}

func (c *Client) download(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: loading error: %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	return data, nil
}
