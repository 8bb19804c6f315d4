package api

import (
	"strings"
	"testing"
)

func TestValidateRepairRequest(t *testing.T) {
	cfg := DefaultValidationConfig()

	tests := []struct {
		name      string
		req       *RepairRequest
		wantErr   bool
		wantParam string
	}{
		{
			name: "valid minimal",
			req:  &RepairRequest{Code: "print('hello')"},
		},
		{
			name: "valid with retries",
			req:  &RepairRequest{Code: "print('hello')", MaxRetries: 5},
		},
		{
			name: "valid at retry limit",
			req:  &RepairRequest{Code: "x = 1", MaxRetries: 10},
		},
		{
			name: "valid streaming",
			req:  &RepairRequest{Code: "x = 1", MaxRetries: 1, Stream: true},
		},
		{
			name:      "missing code",
			req:       &RepairRequest{MaxRetries: 3},
			wantErr:   true,
			wantParam: "code",
		},
		{
			name:      "negative retries",
			req:       &RepairRequest{Code: "x = 1", MaxRetries: -1},
			wantErr:   true,
			wantParam: "max_retries",
		},
		{
			name:      "retries over limit",
			req:       &RepairRequest{Code: "x = 1", MaxRetries: 11},
			wantErr:   true,
			wantParam: "max_retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRepairRequest(tt.req, cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ValidateRepairRequest() = nil, want error")
				}
				if err.Param != tt.wantParam {
					t.Errorf("Param = %q, want %q", err.Param, tt.wantParam)
				}
			} else if err != nil {
				t.Errorf("ValidateRepairRequest() = %v, want nil", err)
			}
		})
	}
}

func TestValidateRepairRequestSourceSize(t *testing.T) {
	cfg := ValidationConfig{MaxRetriesLimit: 10, MaxSourceBytes: 16}

	err := ValidateRepairRequest(&RepairRequest{Code: strings.Repeat("x", 17)}, cfg)
	if err == nil {
		t.Fatal("oversized code accepted")
	}
	if err.Param != "code" {
		t.Errorf("Param = %q, want \"code\"", err.Param)
	}

	if err := ValidateRepairRequest(&RepairRequest{Code: strings.Repeat("x", 16)}, cfg); err != nil {
		t.Errorf("code at the limit rejected: %v", err)
	}
}

func TestValidateRepairRequestZeroRetriesMeansDefault(t *testing.T) {
	// MaxRetries == 0 is valid: the engine substitutes the server default.
	err := ValidateRepairRequest(&RepairRequest{Code: "x = 1"}, DefaultValidationConfig())
	if err != nil {
		t.Errorf("zero max_retries rejected: %v", err)
	}
}
