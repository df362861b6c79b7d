// Copyright Bio312 course staff, 2026. All rights reserved.

// Package httputil wraps outbound HTTP with the timeout, retry, and
// user-agent policy shared by every remote lookup. It distinguishes a
// resource that does not exist (ErrNotFound) from a transient failure,
// which is retried with exponential backoff and, once retries are
// exhausted, reported as ErrNotFound so callers fall through to the next
// mechanism instead of aborting.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/Bio312/labfiles/pkg/types"
)

// ErrNotFound marks a remote resource that is absent. Expected during
// resolution; callers treat it as "try the next thing".
var ErrNotFound = errors.New("resource not found")

// ErrMalformed marks a response that arrived but did not carry the
// expected structure.
var ErrMalformed = errors.New("malformed response")

// RetryBaseDelay controls the base duration for exponential backoff on
// transient failures. Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

const (
	defaultRetries        = 2
	defaultConnectTimeout = 10 * time.Second
	defaultTimeout        = 60 * time.Second
)

// Client issues HEAD/GET requests under one immutable policy.
type Client struct {
	hc      *http.Client
	cfg     types.HTTPConfig
	limiter *rate.Limiter
}

// New builds a Client from cfg, filling in defaults for zero fields.
func New(cfg types.HTTPConfig) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = defaultRetries
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		hc: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		cfg:     cfg,
		limiter: limiter,
	}
}

// do runs one request with the retry policy. Transient failures
// (transport errors, 5xx, 429) are retried up to cfg.Retries times with
// exponential backoff; after that the failure is reported as ErrNotFound.
// 4xx responses other than 429 are ErrNotFound immediately.
func (c *Client) do(ctx context.Context, method, url string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		if c.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", c.cfg.UserAgent)
		}

		resp, err := c.hc.Do(req)
		if err == nil {
			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return resp, nil
			case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
				drain(resp)
				return nil, fmt.Errorf("HTTP %d from %s: %w", resp.StatusCode, url, ErrNotFound)
			}
		}

		// Transient: transport error, 5xx, or 429.
		if attempt >= c.cfg.Retries {
			if err != nil {
				return nil, fmt.Errorf("%s %s after %d attempts: %v: %w", method, url, attempt+1, err, ErrNotFound)
			}
			code := resp.StatusCode
			drain(resp)
			return nil, fmt.Errorf("HTTP %d from %s after %d attempts: %w", code, url, attempt+1, ErrNotFound)
		}
		if resp != nil {
			drain(resp)
		}

		backoff := time.Duration(1<<attempt) * RetryBaseDelay
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// Exists issues a HEAD request and reports whether the resource is there.
// Absence and exhausted transient failures both report false without error;
// only context cancellation or an unbuildable request return a non-nil error.
func (c *Client) Exists(ctx context.Context, url string) (bool, error) {
	resp, err := c.do(ctx, http.MethodHead, url)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	drain(resp)
	return true, nil
}

// GetBody fetches url and returns the response body.
func (c *Client) GetBody(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body from %s: %w", url, err)
	}
	return body, nil
}

// GetJSON fetches url and decodes the JSON body into v. A body that does
// not decode is reported as ErrMalformed.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding JSON from %s: %v: %w", url, err, ErrMalformed)
	}
	return nil
}

// Download fetches url to destPath through a temporary file renamed on
// success, so a failed transfer never leaves a partial file behind.
// An existing destination is overwritten.
func (c *Client) Download(ctx context.Context, url, destPath string) error {
	resp, err := c.do(ctx, http.MethodGet, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", filepath.Dir(destPath), err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".fetch-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
