// Package client is an HTTP client for the locker service API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	mqtmodels "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Models"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Message)
}

// Retryable is true for server-side failures, including 503 while the
// service's MQTT publisher is disconnected.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK        bool `json:"ok"`
	Connected bool `json:"connected"`
}

type unlockRequest struct {
	DurationMs *int   `json:"duration_ms,omitempty"`
	CmdID      string `json:"cmd_id,omitempty"`
}

// APIClient handles communication with the locker service
type APIClient struct {
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *CircuitBreaker
	maxRetries     int
	retryDelay     time.Duration
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL string, timeout time.Duration, maxRetries int, retryDelay time.Duration) *APIClient {
	return &APIClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: timeout},
		circuitBreaker: NewCircuitBreaker(5, 30*time.Second),
		maxRetries:     maxRetries,
		retryDelay:     retryDelay,
	}
}

// retryRead allows another attempt after a transport failure or a 5xx.
func retryRead(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}

// retryUnlock allows another attempt only after a 503, which the service
// answers before anything is published. Any other failure may follow a
// publish, and repeating it could unlock twice.
func retryUnlock(err error) bool {
	return IsStatus(err, http.StatusServiceUnavailable)
}

// retryWithBackoff executes a function with exponential backoff retry logic.
// Client errors are returned at once and do not count against the breaker.
// Other failures count, and are retried only when retry allows it.
func (c *APIClient) retryWithBackoff(ctx context.Context, retry func(error) bool, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if !c.circuitBreaker.canExecute() {
			return ErrCircuitOpen
		}

		err := operation()
		if err == nil {
			c.circuitBreaker.onSuccess()
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			c.circuitBreaker.onSuccess()
			return err
		}

		lastErr = err
		c.circuitBreaker.onFailure()

		if !retry(err) {
			return err
		}
		if attempt == c.maxRetries {
			break
		}

		delay := time.Duration(float64(c.retryDelay) * math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// do sends one request and decodes a 2xx JSON body into out. It retries
// as a read.
func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	return c.send(ctx, retryRead, method, path, body, out)
}

func (c *APIClient) send(ctx context.Context, retry func(error) bool, method, path string, body, out interface{}) error {
	return c.retryWithBackoff(ctx, retry, func() error {
		resp, err := c.makeRequest(ctx, method, path, body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			data, _ := io.ReadAll(resp.Body)
			var errBody struct {
				Error string `json:"error"`
			}
			msg := strings.TrimSpace(string(data))
			if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
				msg = errBody.Error
			}
			return &APIError{StatusCode: resp.StatusCode, Message: msg}
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
}

// makeRequest makes an HTTP request to the locker service
func (c *APIClient) makeRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "lockerctl")

	return c.httpClient.Do(req)
}

// Health reads GET /health. It does not retry.
func (c *APIClient) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.makeRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to check API health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "health check failed"}
	}
	var out HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

func (c *APIClient) ListLockers(ctx context.Context) ([]string, error) {
	var out struct {
		Lockers []string `json:"lockers"`
	}
	if err := c.do(ctx, http.MethodGet, "/lockers", nil, &out); err != nil {
		return nil, err
	}
	return out.Lockers, nil
}

func (c *APIClient) RecentMessages(ctx context.Context, limit int) ([]mqtmodels.Message, error) {
	var out struct {
		Messages []mqtmodels.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/messages"+limitQuery(limit), nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *APIClient) LockerEvents(ctx context.Context, lockerID string, limit int) ([]mqtmodels.Message, error) {
	var out struct {
		Events []mqtmodels.Message `json:"events"`
	}
	path := "/lockers/" + url.PathEscape(lockerID) + "/events" + limitQuery(limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// LockerState returns an APIError with status 404 for a locker that never
// reported telemetry.
func (c *APIClient) LockerState(ctx context.Context, lockerID string) (*mqtmodels.LockerState, error) {
	var out mqtmodels.LockerState
	if err := c.do(ctx, http.MethodGet, "/lockers/"+url.PathEscape(lockerID)+"/state", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Unlock dispatches an unlock. A nil durationMs uses the server default,
// an empty cmdID lets the server assign one. Only a 503 is retried.
func (c *APIClient) Unlock(ctx context.Context, lockerID string, durationMs *int, cmdID string) (*mqtmodels.DispatchResult, error) {
	var out mqtmodels.DispatchResult
	body := unlockRequest{DurationMs: durationMs, CmdID: cmdID}
	if err := c.send(ctx, retryUnlock, http.MethodPost, "/lockers/"+url.PathEscape(lockerID)+"/unlock", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCircuitBreakerStatus returns the current circuit breaker status for monitoring
func (c *APIClient) GetCircuitBreakerStatus() map[string]interface{} {
	return c.circuitBreaker.Status()
}

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "?limit=" + strconv.Itoa(limit)
}
