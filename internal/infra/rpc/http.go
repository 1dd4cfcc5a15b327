package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/core/retry"
)

// maxErrorBody bounds how much of an error response is kept as the message.
const maxErrorBody = 512

// HTTPClient calls JSON endpoints and retries failures the classifier marks
// as retryable.
type HTTPClient struct {
	httpClient *http.Client
	ex         *retry.Executor
	policy     retry.Policy
}

// NewHTTPClient creates a client with a per-request timeout.
func NewHTTPClient(timeout time.Duration, ex *retry.Executor, p retry.Policy) *HTTPClient {
	if ex == nil {
		ex = retry.NewExecutor()
	}
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		ex:     ex,
		policy: p,
	}
}

// Do sends body as JSON (nil for none) and decodes a 2xx response into out
// (nil to discard). Non-2xx responses become structured failures through
// failure.FromHTTPStatus.
func (c *HTTPClient) Do(ctx context.Context, method, url string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return failure.Wrap(failure.CodeBadRequest, "marshal request", err)
		}
	}

	p := c.policy
	p.Name = "http_" + method
	return c.ex.Run(ctx, p, func(ctx context.Context) error {
		return c.once(ctx, method, url, payload, out)
	})
}

func (c *HTTPClient) once(ctx context.Context, method, url string, payload []byte, out any) error {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return failure.Wrap(failure.CodeBadRequest, "create request", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return failure.Wrap(failure.CodeUnavailable, "http request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		fe := failure.FromHTTPStatus(resp.StatusCode, string(bytes.TrimSpace(msg)))
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			fe = fe.WithDetail("retry_after", ra)
		}
		return fe
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return failure.Wrap(failure.CodeExternalService, fmt.Sprintf("decode %s response", url), err)
	}
	return nil
}
