package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rhuss/remedy/pkg/api"
)

// MapNetworkError converts a transport-level failure into the oracle
// error taxonomy: an expired time budget becomes upstream_timeout,
// anything else upstream_unreachable. Context cancellation passes
// through untouched so callers can tell an abandoned request from a
// broken backend.
func MapNetworkError(baseURL string, timeout time.Duration, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return api.NewUpstreamTimeoutError(fmt.Sprintf("fix oracle did not answer within %s", timeout))
	}
	return api.NewUpstreamUnreachableError(fmt.Sprintf("cannot connect to fix oracle at %s: %v", baseURL, err))
}

// MapHTTPError converts a non-2xx backend reply into an APIError,
// pulling a message out of the body when one is recognizable.
func MapHTTPError(resp *http.Response) *api.APIError {
	message := extractErrorMessage(resp.Body)
	if message == "" {
		message = fmt.Sprintf("fix oracle returned HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return api.NewTooManyRequestsError(message)
	}
	return api.NewServerError(fmt.Sprintf("fix oracle request failed: %s", message))
}

// extractErrorMessage handles both the flat Ollama error shape
// ({"error": "..."}) and the nested OpenAI one
// ({"error": {"message": "..."}}).
func extractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var flat struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &flat) == nil && flat.Error != "" {
		return flat.Error
	}

	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &nested) == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}
	return ""
}
