package fundgate

import (
	"errors"
	"net/http"
	"net/url"
)

//go:generate mockgen -package=fundgate_test -destination=mock_http_client_test.go -source=client.go HTTPClient

const defaultBaseURL = "https://api.fundgate.io"

var errMissingAPIKey = errors.New("fundgate: api key is required")

// HTTPClient is the transport surface the client needs; *http.Client
// satisfies it, tests substitute a mock.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the FundGate valuation API.
type Client struct {
	apiKey  string
	baseURL *url.URL
	http    HTTPClient
	header  http.Header
}

type Option func(*Client)

// WithHTTPClient replaces the transport used for requests.
func WithHTTPClient(hc HTTPClient) Option {
	return func(c *Client) { c.http = hc }
}

// WithBaseURL points the client at a different API root.
func WithBaseURL(u *url.URL) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHeader sets extra headers sent on every request.
func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h }
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errMissingAPIKey
	}
	base, _ := url.Parse(defaultBaseURL)
	c := &Client{
		apiKey:  apiKey,
		baseURL: base,
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}
