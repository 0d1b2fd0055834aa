// Package elements provides a GET-only client for the Symplectic Elements
// research-information API, plus a forward-only iterator over its paginated
// feeds.
package elements

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds each individual HTTP call. Calls are not
	// retried; a timeout surfaces as a transport error.
	DefaultTimeout = 10 * time.Second

	// RateLimit caps outbound requests per second against the API.
	RateLimit = 5.0
)

// StatusError reports a non-success HTTP status from the API.
type StatusError struct {
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.Path, e.StatusCode)
}

// NotFound reports whether the error corresponds to a missing resource.
func (e *StatusError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Client is a rate-limited HTTP client for the Elements API. Requests are
// authenticated with basic auth and optionally routed through a proxy.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	username   string
	password   string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCredentials sets the basic auth credentials.
func WithCredentials(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithProxy routes all requests through the given proxy URL.
func WithProxy(proxyURL string) Option {
	return func(c *Client) {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return
		}
		c.httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
	}
}

// WithLogger sets the logger used for request logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates an Elements API client for the given versioned API base
// URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get issues one GET request and returns the response body. The path may be
// relative to the API base or an absolute URL (pagination links and journal
// hrefs come back absolute). A non-2xx status returns a *StatusError.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	u := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		u = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	c.logger.Debug("elements request", "url", u)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Path: path, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", path, err)
	}
	return body, nil
}

// GetAuthor fetches the author record page for the given author id.
func (c *Client) GetAuthor(ctx context.Context, authorID string) ([]byte, error) {
	return c.Get(ctx, "users/"+authorID)
}

// GetPublication fetches the publication record page for the given
// publication id.
func (c *Client) GetPublication(ctx context.Context, publicationID string) ([]byte, error) {
	return c.Get(ctx, "publications/"+publicationID)
}

// GetJournalPolicies fetches the policies page for a journal, given the
// journal URL carried in a publication record.
func (c *Client) GetJournalPolicies(ctx context.Context, journalURL string) ([]byte, error) {
	return c.Get(ctx, strings.TrimRight(journalURL, "/")+"/policies?detail=full")
}

// AuthorPublications returns a pager over the author-publications feed for
// the given author id.
func (c *Client) AuthorPublications(authorID string) *Pager {
	return &Pager{
		client: c,
		next:   "users/" + authorID + "/publications?detail=full",
	}
}
