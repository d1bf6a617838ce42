package providers

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/vouchr/storefront-backend/pkg/errors"
)

const (
	defaultHTTPTimeout       = 30 * time.Second
	responseReadLimit  int64 = 1 << 20
	errorBodyReadLimit int64 = 1024
)

// Option configures optional adapter behavior.
type Option func(*httpClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *httpClient) {
		if client != nil {
			c.http = client
		}
	}
}

// WithBaseURL overrides the configured vendor base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *httpClient) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

type httpClient struct {
	http    *http.Client
	baseURL string
	vendor  string
}

func newHTTPClient(vendor, baseURL string, opts ...Option) httpClient {
	c := httpClient{
		http:    &http.Client{Timeout: defaultHTTPTimeout},
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		vendor:  vendor,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

func (c httpClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal "+c.vendor+" request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build "+c.vendor+" request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c httpClient) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build "+c.vendor+" request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c httpClient) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build "+c.vendor+" request")
	}
	return c.do(req, out)
}

func (c httpClient) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+c.vendor+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeVendor,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			c.vendor+" request failed")
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseReadLimit)).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeVendor, err, "decode "+c.vendor+" response")
	}
	return nil
}

// signMD5 is the lowercase hex md5 of the concatenated parts.
func signMD5(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}
