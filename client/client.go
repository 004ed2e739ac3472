package client

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/ytget/checkin/internal/logger"
	"github.com/ytget/checkin/types"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 3

	userAgentValue      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/144.0.0.0 Safari/537.36"
	acceptEncodingValue = "gzip, deflate, br"
	initialBackoff      = 200 * time.Millisecond
	maxBackoff          = 3 * time.Second
	retryableMinCode    = http.StatusInternalServerError // 500
	maxBodyBytes        = 8 << 20
)

// defaultTransport is a tuned HTTP transport reused across clients.
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 20 * time.Second,
	ForceAttemptHTTP2:     true,
	// Bodies are decoded by readBody so br is supported alongside gzip.
	DisableCompression: true,
	ReadBufferSize:     16 * 1024,
	WriteBufferSize:    16 * 1024,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// Config holds optional client parameters. Zero values use defaults.
type Config struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
	ProxyURL  string
}

// Client wraps http.Client with retry/backoff, default headers and body decoding.
type Client struct {
	HTTPClient *http.Client
	Retries    int
	UserAgent  string
	Timeout    time.Duration
}

// New creates a new Client with a tuned Transport, default timeout, and retries.
func New() *Client {
	return &Client{
		HTTPClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: defaultTransport,
		},
		Retries:   defaultRetries,
		UserAgent: userAgentValue,
		Timeout:   defaultTimeout,
	}
}

// NewWith creates a new client with provided config. Zero values use defaults.
func NewWith(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = userAgentValue
	}

	tr := defaultTransport.Clone()
	if cfg.ProxyURL != "" {
		if proxyFunc, err := proxyFromURLString(cfg.ProxyURL); err == nil {
			tr.Proxy = proxyFunc
		}
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: tr,
		},
		Retries:   retries,
		UserAgent: ua,
		Timeout:   timeout,
	}
}

// Get performs a GET request and returns the decoded page.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*types.Page, error) {
	return c.do(ctx, http.MethodGet, rawURL, header, nil)
}

// PostForm posts form as application/x-www-form-urlencoded and returns the decoded page.
func (c *Client) PostForm(ctx context.Context, rawURL string, header http.Header, form url.Values) (*types.Page, error) {
	h := header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}
	return c.do(ctx, http.MethodPost, rawURL, h, []byte(form.Encode()))
}

// do runs the request with a simple retry policy for transient errors
// (HTTP 5xx or connection failures). Timeouts and cancellations are final.
func (c *Client) do(ctx context.Context, method, rawURL string, header http.Header, body []byte) (*types.Page, error) {
	log := logger.WithComponent(logger.ComponentClient)

	retries := c.Retries
	if retries < 1 {
		retries = 1
	}
	backoff := initialBackoff

	var (
		page *types.Page
		err  error
	)
	for attempt := 0; attempt < retries; attempt++ {
		page, err = c.once(ctx, method, rawURL, header, body)
		if err == nil && page.StatusCode < retryableMinCode {
			return page, nil
		}
		if err != nil && !retryable(ctx, err) {
			return nil, err
		}
		if attempt == retries-1 {
			break
		}
		log.Debug("Retrying request", map[string]interface{}{
			"method":  method,
			"url":     rawURL,
			"attempt": attempt + 1,
			"backoff": backoff.String(),
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (c *Client) once(ctx context.Context, method, rawURL string, header http.Header, body []byte) (*types.Page, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		ua := c.UserAgent
		if ua == "" {
			ua = userAgentValue
		}
		req.Header.Set("User-Agent", ua)
	}
	// Only advertise encodings readBody can decode.
	req.Header.Set("Accept-Encoding", acceptEncodingValue)

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout, Transport: defaultTransport}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	cookies := make([]types.Cookie, 0, len(resp.Cookies()))
	for _, ck := range resp.Cookies() {
		cookies = append(cookies, types.Cookie{Name: ck.Name, Value: ck.Value})
	}

	logger.WithComponent(logger.ComponentClient).Trace("Response received", map[string]interface{}{
		"method":  method,
		"url":     rawURL,
		"status":  resp.StatusCode,
		"bytes":   len(data),
		"cookies": len(cookies),
	})

	return &types.Page{
		StatusCode: resp.StatusCode,
		Body:       string(data),
		Cookies:    cookies,
		Header:     resp.Header,
	}, nil
}

// readBody reads and decodes the response body according to Content-Encoding.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, err
		}
		return inflate(raw)
	}
	return io.ReadAll(io.LimitReader(reader, maxBodyBytes))
}

// inflate handles both zlib-wrapped and raw DEFLATE bodies, which servers mix up.
func inflate(raw []byte) ([]byte, error) {
	if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
		defer zr.Close()
		if out, err := io.ReadAll(zr); err == nil {
			return out, nil
		}
	}
	fr := flate.NewReader(bytes.NewReader(raw))
	defer fr.Close()
	return io.ReadAll(fr)
}

// retryable reports whether a transport error may be retried.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return false
	}
	return true
}

// proxyFromURLString parses a proxy URL and returns a Proxy function.
func proxyFromURLString(raw string) (func(*http.Request) (*url.URL, error), error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return http.ProxyURL(u), nil
}
