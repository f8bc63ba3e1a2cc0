package remote

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"git.home.luguber.info/inful/distbuilder/internal/config"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/retry"
)

const userAgent = "distbuilder/1.0"

// Client issues bounded, retried requests against the remote repository.
type Client struct {
	httpClient *http.Client
	rawRoot    string
	apiRoot    string
	probePath  string
	token      string
	timeout    time.Duration
	policy     retry.Policy
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy replaces the retry policy taken from config.
func WithRetryPolicy(p retry.Policy) ClientOption {
	return func(c *Client) { c.policy = p }
}

// NewClient creates a client for the configured remote.
func NewClient(cfg config.RemoteConfig, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: newHTTPClient(),
		rawRoot:    strings.TrimSuffix(cfg.RawRoot, "/"),
		apiRoot:    strings.TrimSuffix(cfg.APIRoot, "/"),
		probePath:  strings.TrimPrefix(cfg.ProbePath, "/"),
		token:      cfg.Token,
		timeout:    cfg.Timeout,
		policy:     retry.FromConfig(cfg.Retry),
	}
	if c.timeout <= 0 {
		c.timeout = 15 * time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newHTTPClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return nil
		},
	}
}

// RawURL returns the raw download URL of subpath inside branch.
func (c *Client) RawURL(branch, subpath string) string {
	return c.rawRoot + "/" + url.PathEscape(branch) + "/" + escapePath(subpath)
}

func (c *Client) listURL(branch, subpath string) string {
	return c.apiRoot + "/" + escapePath(subpath) + "?ref=" + url.QueryEscape(branch)
}

func escapePath(p string) string {
	parts := strings.Split(path.Clean("/" + p)[1:], "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

// do sends one request under the per-request timeout. The returned cancel must be
// called once the body has been consumed.
func (c *Client) do(ctx context.Context, method, target string) (*http.Response, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	req, err := http.NewRequestWithContext(ctx, method, target, http.NoBody)
	if err != nil {
		cancel()
		return nil, nil, derrors.InternalError("failed to create request").
			WithCause(err).
			WithContext("url", target).
			Build()
	}
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" && c.apiRoot != "" && strings.HasPrefix(target, c.apiRoot) {
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/vnd.github+json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return resp, cancel, nil
}
