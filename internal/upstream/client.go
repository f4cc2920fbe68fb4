// Package upstream is the shared JSON-over-HTTP wrapper used for every
// external provider call. Failures come back as apperr kind upstream
// carrying the provider status. Calls are attempted once.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"internfunnel/internal/apperr"
)

const (
	DefaultTimeout = 15 * time.Second
	// DefaultMaxBody caps how much of a provider response is read.
	DefaultMaxBody int64 = 4 << 20
)

// Observer receives call latency and outcome.
type Observer interface {
	ObserveUpstream(service string, ok bool, d time.Duration)
}

type Client struct {
	Service  string
	BaseURL  string
	Header   http.Header
	HTTP     *http.Client
	MaxBody  int64
	Observer Observer
}

func New(service, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		Service: service,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Header:  http.Header{},
		HTTP:    &http.Client{Timeout: timeout},
		MaxBody: DefaultMaxBody,
	}
}

// ResponseTooLargeError reports that the response body exceeded the limit.
type ResponseTooLargeError struct {
	Limit int64
}

func (e ResponseTooLargeError) Error() string {
	return fmt.Sprintf("response body exceeded limit of %d bytes", e.Limit)
}

// ReadAllWithLimit reads r up to limit bytes. limit <= 0 reads everything.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(&io.LimitedReader{R: r, N: limit + 1})
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ResponseTooLargeError{Limit: limit}
	}
	return data, nil
}

// URL joins the base URL with path and query. Absolute paths are used as is.
func (c *Client) URL(path string, query url.Values) string {
	u := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		u = c.BaseURL + path
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Do sends in as JSON (when non-nil) and decodes a 2xx response into out
// (when non-nil). Non-2xx responses return an upstream error whose message
// includes a snippet of the provider body.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return apperr.Internal(fmt.Errorf("marshal %s request: %w", c.Service, err))
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query), body)
	if err != nil {
		return apperr.Internal(err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	_, data, err := c.send(req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Upstream(c.Service, http.StatusOK, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) send(req *http.Request) (*http.Response, []byte, error) {
	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	start := time.Now()
	res, err := client.Do(req)
	if err != nil {
		c.observe(false, start)
		return nil, nil, apperr.Upstream(c.Service, 0, err)
	}
	defer res.Body.Close()
	data, err := ReadAllWithLimit(res.Body, c.MaxBody)
	if err != nil {
		c.observe(false, start)
		return res, nil, apperr.Upstream(c.Service, res.StatusCode, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.observe(false, start)
		return res, data, apperr.Upstream(c.Service, res.StatusCode, errors.New(snippet(data)))
	}
	c.observe(true, start)
	return res, data, nil
}

func (c *Client) observe(ok bool, start time.Time) {
	if c.Observer != nil {
		c.Observer.ObserveUpstream(c.Service, ok, time.Since(start))
	}
}

// Probe issues a GET against the base URL. Any HTTP response counts as
// reachable; the returned status is informational.
func (c *Client) Probe(ctx context.Context) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL, nil)
	if err != nil {
		return 0, 0, err
	}
	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	start := time.Now()
	res, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return 0, elapsed, apperr.Upstream(c.Service, 0, err)
	}
	io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
	res.Body.Close()
	return res.StatusCode, elapsed, nil
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	if s == "" {
		return "empty response body"
	}
	return s
}
