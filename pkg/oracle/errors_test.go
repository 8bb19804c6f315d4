package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/remedy/pkg/api"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return false }

func TestMapNetworkErrorTimeout(t *testing.T) {
	for _, cause := range []error{
		context.DeadlineExceeded,
		fmt.Errorf("request: %w", context.DeadlineExceeded),
		&url.Error{Op: "Post", URL: "http://localhost:11434", Err: timeoutErr{}},
	} {
		err := MapNetworkError("http://localhost:11434", 30*time.Second, cause)
		var apiErr *api.APIError
		if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeUpstreamTimeout {
			t.Errorf("cause %v mapped to %v, want upstream_timeout", cause, err)
		}
		if !strings.Contains(apiErr.Message, "30s") {
			t.Errorf("message should carry the budget: %q", apiErr.Message)
		}
	}
}

func TestMapNetworkErrorUnreachable(t *testing.T) {
	cause := &url.Error{Op: "Post", URL: "http://localhost:11434", Err: errors.New("connection refused")}
	err := MapNetworkError("http://localhost:11434", 30*time.Second, cause)

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeUpstreamUnreachable {
		t.Fatalf("err = %v, want upstream_unreachable", err)
	}
	if !strings.Contains(apiErr.Message, "http://localhost:11434") {
		t.Errorf("message should carry the base URL: %q", apiErr.Message)
	}
}

func TestMapNetworkErrorCancelledPassesThrough(t *testing.T) {
	cause := &url.Error{Op: "Post", URL: "http://localhost:11434", Err: context.Canceled}
	err := MapNetworkError("http://localhost:11434", 30*time.Second, cause)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled preserved", err)
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("cancellation should not become an APIError: %v", apiErr)
	}
}

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType api.ErrorType
		wantMsg  string
	}{
		{
			name:     "ollama flat error",
			status:   404,
			body:     `{"error":"model 'llama3' not found, try pulling it first"}`,
			wantType: api.ErrorTypeServerError,
			wantMsg:  "model 'llama3' not found",
		},
		{
			name:     "openai nested error",
			status:   400,
			body:     `{"error":{"message":"Unsupported value: 'response_format'","type":"invalid_request_error"}}`,
			wantType: api.ErrorTypeServerError,
			wantMsg:  "Unsupported value",
		},
		{
			name:     "unparseable body",
			status:   502,
			body:     "<html>bad gateway</html>",
			wantType: api.ErrorTypeServerError,
			wantMsg:  "HTTP 502",
		},
		{
			name:     "rate limited",
			status:   429,
			body:     `{"error":{"message":"Rate limit reached"}}`,
			wantType: api.ErrorTypeTooManyRequests,
			wantMsg:  "Rate limit reached",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode: tt.status,
				Body:       io.NopCloser(strings.NewReader(tt.body)),
			}
			apiErr := MapHTTPError(resp)
			if apiErr.Type != tt.wantType {
				t.Errorf("type = %s, want %s", apiErr.Type, tt.wantType)
			}
			if !strings.Contains(apiErr.Message, tt.wantMsg) {
				t.Errorf("message = %q, want substring %q", apiErr.Message, tt.wantMsg)
			}
		})
	}
}
