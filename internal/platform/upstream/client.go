// Package upstream is the HTTP client for the FHIR server the proxy sits
// in front of. Timeouts and retries live here and nowhere else.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
)

// ErrUnreachable wraps every transport failure: refused connections,
// timeouts, DNS errors. A response with any status is not unreachable.
var ErrUnreachable = errors.New("upstream unreachable")

const fhirJSON = "application/fhir+json"

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Retries   int
	UserAgent string
}

// Response is a raw upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Client talks to one FHIR server.
type Client struct {
	http    *req.Client
	baseURL string
}

// New creates a Client. Only transport errors are retried.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if _, err := url.ParseRequestURI(base); err != nil || base == "" {
		return nil, fmt.Errorf("upstream: invalid base url %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "nudge-proxy"
	}

	c := req.C().
		SetBaseURL(base).
		SetTimeout(opts.Timeout).
		SetUserAgent(opts.UserAgent).
		SetCommonHeader("Accept", fhirJSON).
		SetJsonMarshal(json.Marshal).
		SetJsonUnmarshal(json.Unmarshal)
	if opts.Retries > 0 {
		c.SetCommonRetryCount(opts.Retries).
			SetCommonRetryBackoffInterval(100*time.Millisecond, 2*time.Second).
			SetCommonRetryCondition(func(_ *req.Response, err error) bool {
				return err != nil
			})
	}
	return &Client{http: c, baseURL: base}, nil
}

// BaseURL returns the server base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Read fetches resourceType/id.
func (c *Client) Read(ctx context.Context, resourceType, id string) (*Response, error) {
	return c.get(ctx, "/"+url.PathEscape(resourceType)+"/"+url.PathEscape(id), nil)
}

// Search runs a type-level search.
func (c *Client) Search(ctx context.Context, resourceType string, query url.Values) (*Response, error) {
	return c.get(ctx, "/"+url.PathEscape(resourceType), query)
}

// FetchCapability returns the server's CapabilityStatement.
func (c *Client) FetchCapability(ctx context.Context) ([]byte, error) {
	resp, err := c.get(ctx, "/metadata", nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("GET /metadata: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// ExpandValueSet runs ValueSet/$expand for a canonical url.
func (c *Client) ExpandValueSet(ctx context.Context, valueSetURL string) ([]byte, error) {
	resp, err := c.get(ctx, "/ValueSet/$expand", url.Values{"url": {valueSetURL}})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("GET /ValueSet/$expand?url=%s: status %d", valueSetURL, resp.StatusCode)
	}
	return resp.Body, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*Response, error) {
	r := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		r.SetQueryString(query.Encode())
	}
	resp, err := r.Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrUnreachable, path, err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Bytes(),
	}, nil
}
