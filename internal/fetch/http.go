package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// httpClient is shared by every HTTP backed source so that the
// configured request rate applies across all of them.
type httpClient struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

func newHTTPClient(config Config) *httpClient {
	limit := rate.Inf
	if config.RequestRate > 0 {
		limit = rate.Limit(config.RequestRate)
	}

	return &httpClient{
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: config.UserAgent,
	}
}

// do performs a GET request, returning the response if the status is OK. The
// caller owns the response body.
func (c *httpClient) do(ctx context.Context, url string, timeout time.Duration) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	client := c.client
	if timeout != c.client.Timeout {
		client = &http.Client{Timeout: timeout, Transport: c.client.Transport}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &RequestError{url: url, httpCode: resp.StatusCode, message: strings.TrimSpace(string(payload))}
	}

	return resp, nil
}

func (c *httpClient) getBody(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.do(ctx, url, c.client.Timeout)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}

func (c *httpClient) getJSON(ctx context.Context, url string, target any) error {
	body, err := c.getBody(ctx, url)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, target); err != nil {
		return &MalformedResponseError{fmt.Sprintf("response JSON from %s could not be unmarshalled: %s", url, err)}
	}

	return nil
}
