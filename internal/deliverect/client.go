// Package deliverect is a thin HTTP client for the Deliverect catalog API.
//
// It covers only what a catalog import needs: account access checks, menus,
// categories and attaching existing products to subcategories. Every call is
// authenticated with a cached client-credentials token, throttled and bounded
// by a per-call timeout. Failures are returned as importerror types so the
// caller can decide what to retry and what to contain.
package deliverect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"deliverect-tools/catalog-importer/internal/importerror"
	"deliverect-tools/catalog-importer/internal/logging"
)

const (
	DefaultBaseURL            = "https://api.deliverect.io"
	DefaultAuthURL            = "https://api.deliverect.io/oauth/token"
	DefaultAudience           = "https://api.deliverect.com"
	DefaultDeveloperAccountID = "690ca201b9c6f85ca05b6eb1"
	DefaultTimeout            = 20 * time.Second
	DefaultRequestsPerSecond  = 5
	DefaultProductPageSize    = 500

	maxErrorBody = 4096
)

// Options configures a Client.
type Options struct {
	BaseURL            string
	AuthURL            string
	Audience           string
	ClientID           string
	ClientSecret       string
	DeveloperAccountID string
	Timeout            time.Duration
	RequestsPerSecond  float64
	ProductPageSize    int

	// HTTPClient overrides the transport; a plain http.Client is used when nil.
	HTTPClient *http.Client
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.AuthURL == "" {
		o.AuthURL = o.BaseURL + "/oauth/token"
	}
	if o.Audience == "" {
		o.Audience = DefaultAudience
	}
	if o.DeveloperAccountID == "" {
		o.DeveloperAccountID = DefaultDeveloperAccountID
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if o.ProductPageSize <= 0 {
		o.ProductPageSize = DefaultProductPageSize
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	return o
}

// Client talks to the Deliverect API. It is safe for concurrent use.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	tokens  *tokenSource
	logger  logging.Logger

	productsMu sync.Mutex
	products   map[string]productIndex // accountID -> PLU index
}

// NewClient creates a Client. Missing options fall back to the package defaults.
func NewClient(opts Options, logger logging.Logger) (*Client, error) {
	opts = opts.withDefaults()
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, errors.New("deliverect: client id and client secret are required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("deliverect: invalid base url: %w", err)
	}

	c := &Client{
		opts:     opts,
		http:     opts.HTTPClient,
		limiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		logger:   logger,
		products: make(map[string]productIndex),
	}
	c.tokens = newTokenSource(c.fetchToken)
	return c, nil
}

// DeveloperAccountID returns the developer account the credentials belong to.
func (c *Client) DeveloperAccountID() string {
	return c.opts.DeveloperAccountID
}

// request describes one logical API call.
type request struct {
	op      string
	method  string
	path    string
	query   url.Values
	body    interface{}
	headers map[string]string
}

// do runs req with a bearer token, refreshing the token and retrying exactly
// once if the API answers 401. The decoded JSON body is written to out.
func (c *Client) do(ctx context.Context, req request, out interface{}) (http.Header, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusUnauthorized {
		c.logger.Debug("Token rejected, refreshing",
			logging.F(logging.FieldOperation, req.op))
		token, err = c.tokens.Refresh(ctx, token)
		if err != nil {
			return nil, err
		}
		resp, err = c.send(ctx, req, token)
		if err != nil {
			return nil, err
		}
		if resp.status == http.StatusUnauthorized {
			return nil, &importerror.APIError{
				Kind:       importerror.APIAuthFailed,
				Operation:  req.op,
				StatusCode: resp.status,
				Body:       string(resp.body),
			}
		}
	}

	if resp.status < 200 || resp.status > 299 {
		return resp.header, &importerror.APIError{
			Kind:       importerror.APIRejected,
			Operation:  req.op,
			StatusCode: resp.status,
			Body:       string(resp.body),
			RetryAfter: parseRetryAfter(resp.header, time.Now()),
		}
	}

	if out != nil && len(bytes.TrimSpace(resp.body)) > 0 {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return resp.header, &importerror.APIError{
				Kind:       importerror.APIRejected,
				Operation:  req.op,
				StatusCode: resp.status,
				Body:       string(resp.body),
				Err:        fmt.Errorf("decode response: %w", err),
			}
		}
	}
	return resp.header, nil
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// send performs a single HTTP exchange under the rate limiter and the per-call timeout.
func (c *Client) send(ctx context.Context, req request, token string) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		// the limiter refuses to wait past the caller's deadline
		return nil, &importerror.APIError{Kind: importerror.APITimeout, Operation: req.op, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	fullURL := c.opts.BaseURL + req.path
	if len(req.query) > 0 {
		fullURL += "?" + req.query.Encode()
	}

	var reqBody io.Reader
	if req.body != nil {
		jsonBody, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", req.op, err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, req.method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", req.op, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, transportError(callCtx, req.op, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, transportError(callCtx, req.op, err)
	}

	c.logger.Debug("Deliverect request",
		logging.F(logging.FieldOperation, req.op),
		logging.F("method", req.method),
		logging.F("path", req.path),
		logging.F(logging.FieldStatusCode, httpResp.StatusCode),
		logging.F(logging.FieldDuration, time.Since(start).String()))

	if len(body) > maxErrorBody && (httpResp.StatusCode < 200 || httpResp.StatusCode > 299) {
		body = body[:maxErrorBody]
	}
	return &response{status: httpResp.StatusCode, header: httpResp.Header, body: body}, nil
}

// transportError classifies a failure that produced no HTTP response.
// A cancelled caller context is returned untouched so cancellation stays visible.
func transportError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.Canceled) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	if importerror.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &importerror.APIError{Kind: importerror.APITimeout, Operation: op, Err: err}
	}
	return &importerror.APIError{Kind: importerror.APIRejected, Operation: op, Err: err}
}

// parseRetryAfter reads a Retry-After header given either in seconds or as an HTTP date.
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	if h == nil {
		return 0
	}
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
