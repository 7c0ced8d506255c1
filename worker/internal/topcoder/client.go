package topcoder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/challengeboard/challengeboard/worker/internal/config"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "challengeboard-worker/1.0"

	// maxBodyBytes caps how much of an upstream response is read.
	maxBodyBytes = 8 << 20
)

// Client talks to the remote challenge platform. It is safe for concurrent
// use; result fetches share one http.Client and its connection pool.
type Client struct {
	cfg      config.TopcoderConfig
	http     *http.Client
	validate *validator.Validate
}

// New returns a Client for cfg. A zero timeout uses the 10s default.
func New(cfg config.TopcoderConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewWithHTTPClient(cfg, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient returns a Client that issues requests through hc.
func NewWithHTTPClient(cfg config.TopcoderConfig, hc *http.Client) *Client {
	return &Client{
		cfg:      cfg,
		http:     hc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// response is a fully read upstream reply.
type response struct {
	status int
	body   []byte
}

func (r response) ok() bool { return r.status >= 200 && r.status < 300 }

// get performs a GET and reads the body. Only transport failures are
// returned as errors; status handling is left to the caller.
func (c *Client) get(ctx context.Context, url string) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return response{}, fmt.Errorf("read body: %w", err)
	}
	return response{status: resp.StatusCode, body: body}, nil
}

// decode unmarshals body into v and runs struct validation on it.
func (c *Client) decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if err := c.validate.Struct(v); err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}
	return nil
}
