package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulsoria/social-sync/internal/domain"
	"github.com/pulsoria/social-sync/internal/ratelimit"
)

const defaultRequestTimeout = 30 * time.Second

// Expectation classifies a request's failure at the call site: probe calls
// that test which metric name a provider still accepts are expected to fail
// and should not pollute the logs at warn level.
type Expectation int

const (
	Unexpected Expectation = iota
	ExpectFailure
)

// Request describes one outbound provider call.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	// Form, when set, is sent urlencoded and wins over Body.
	Form url.Values
	// Body, when set, is sent as JSON.
	Body any
	// AccessToken, when set, is sent as a bearer token.
	AccessToken string
	// Expect marks probe calls whose failure is an expected outcome.
	Expect Expectation
}

// Executor runs provider API calls under the rate limiter with a bounded
// timeout, normalizing failures into *APIError.
type Executor struct {
	client  *http.Client
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	timeout time.Duration
}

// NewExecutor creates an executor. A non-positive timeout uses the 30s
// default.
func NewExecutor(limiter *ratelimit.Limiter, logger *zap.Logger, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Executor{
		client:  &http.Client{},
		limiter: limiter,
		logger:  logger,
		timeout: timeout,
	}
}

// Do executes req for the platform under its rate limit and decodes the JSON
// response into out (skipped when out is nil). Failures come back as
// *APIError with the platform, endpoint and normalized message filled in.
func (e *Executor) Do(ctx context.Context, platform domain.Platform, endpoint string, req Request, out any) error {
	return e.limiter.Do(ctx, platform, endpoint, 0, func() error {
		return e.doOnce(ctx, platform, endpoint, req, out)
	})
}

func (e *Executor) doOnce(ctx context.Context, platform domain.Platform, endpoint string, req Request, out any) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	httpReq, err := e.buildRequest(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		apiErr := &APIError{
			Platform:   platform,
			Endpoint:   endpoint,
			StatusCode: StatusNetworkError,
			Message:    err.Error(),
		}
		if errors.Is(err, context.DeadlineExceeded) {
			apiErr.StatusCode = StatusTimeout
			apiErr.Message = fmt.Sprintf("request timed out after %s", e.timeout)
		}
		e.logFailure(apiErr, req.Expect)
		return apiErr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErr := &APIError{
			Platform:   platform,
			Endpoint:   endpoint,
			StatusCode: StatusNetworkError,
			Message:    fmt.Sprintf("failed to read response body: %v", err),
		}
		e.logFailure(apiErr, req.Expect)
		return apiErr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			Platform:   platform,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    parseErrorBody(platform, body),
			Body:       string(body),
		}
		e.logFailure(apiErr, req.Expect)
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode %s %s response: %w", platform, endpoint, err)
		}
	}

	return nil
}

func (e *Executor) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := req.URL
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = strings.NewReader(string(raw))
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}

	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	}

	return httpReq, nil
}

func (e *Executor) logFailure(apiErr *APIError, expect Expectation) {
	fields := []zap.Field{
		zap.String("platform", string(apiErr.Platform)),
		zap.String("endpoint", apiErr.Endpoint),
		zap.Int("status", apiErr.StatusCode),
		zap.String("message", apiErr.Message),
	}
	if expect == ExpectFailure {
		e.logger.Debug("probe request rejected", fields...)
		return
	}
	e.logger.Warn("provider request failed", fields...)
}
