// Package webhook talks to the external generator, status and posting
// endpoints. Every call is bounded by the client's timeout.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 10 * time.Second
	// JobIDParam is the query parameter carrying the job id on status polls.
	JobIDParam = "jobId"

	maxBody = 1 << 20
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("external service returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("external service returned HTTP %d: %s", e.Code, e.Body)
}

type Client struct {
	http    *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option { return func(w *Client) { w.http = c } }

func WithTimeout(d time.Duration) Option { return func(w *Client) { w.timeout = d } }

func WithLogger(l *zap.Logger) Option { return func(w *Client) { w.logger = l } }

func New(opts ...Option) *Client {
	c := &Client{http: &http.Client{}, timeout: DefaultTimeout, logger: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchStatus issues GET statusURL?jobId=<jobID> and returns the raw body.
func (c *Client) FetchStatus(ctx context.Context, statusURL, jobID string) ([]byte, error) {
	u, err := url.Parse(statusURL)
	if err != nil {
		return nil, errors.Wrap(err, "webhook: bad status url")
	}
	q := u.Query()
	q.Set(JobIDParam, jobID)
	u.RawQuery = q.Encode()

	return c.do(ctx, http.MethodGet, u.String(), nil)
}

// PostJSON sends payload as a JSON body to endpoint and returns the raw
// response body.
func (c *Client) PostJSON(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "webhook: encode payload")
	}
	return c.do(ctx, http.MethodPost, endpoint, body)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return nil, errors.Wrap(err, "webhook: build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("webhook call failed", zap.String("method", method), zap.String("url", endpoint), zap.Error(err))
		return nil, errors.Wrapf(err, "webhook: %s %s", method, endpoint)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, errors.Wrap(err, "webhook: read response")
	}
	c.logger.Debug("webhook call",
		zap.String("method", method),
		zap.String("url", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 256)}
	}
	return data, nil
}

// truncate cuts s to at most n bytes on a rune boundary. The result is valid
// UTF-8 without NUL bytes so it can be stored in a text column.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "")
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
