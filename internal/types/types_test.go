package types

import (
	"errors"
	"testing"
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Backend
		wantErr bool
	}{
		{name: "empty defaults to dynamodb", input: "", want: BackendDynamoDB},
		{name: "mysql", input: "mysql", want: BackendMySQL},
		{name: "upper case", input: "MySQL", want: BackendMySQL},
		{name: "dynamodb with spaces", input: " dynamodb ", want: BackendDynamoDB},
		{name: "unknown", input: "postgres", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBackend(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseBackend(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBackend(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseBackend(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseOperation(t *testing.T) {
	tests := map[string]Operation{
		"create":            OpCreateCart,
		"create_cart":       OpCreateCart,
		"add":               OpAddItems,
		"add_items":         OpAddItems,
		"add_items_to_cart": OpAddItems,
		"GET":               OpGetCart,
		"get_cart":          OpGetCart,
	}

	for input, want := range tests {
		got, err := ParseOperation(input)
		if err != nil {
			t.Errorf("ParseOperation(%q) unexpected error: %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("ParseOperation(%q) = %q, want %q", input, got, want)
		}
	}

	if _, err := ParseOperation("delete"); err == nil {
		t.Error("Expected error for unknown operation")
	}
}

func TestOutcome_Classification(t *testing.T) {
	tests := []struct {
		name           string
		outcome        Outcome
		wantNetwork    bool
		wantValidation bool
	}{
		{
			name:    "success",
			outcome: Outcome{StatusCode: 201, Success: true},
		},
		{
			name:           "unexpected status",
			outcome:        Outcome{StatusCode: 500, Failure: "Failed with status 500"},
			wantValidation: true,
		},
		{
			name:        "connection refused",
			outcome:     Outcome{Err: errors.New("connection refused"), Failure: "connection refused"},
			wantNetwork: true,
		},
		{
			name:        "no status",
			outcome:     Outcome{},
			wantNetwork: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.IsNetworkError(); got != tt.wantNetwork {
				t.Errorf("IsNetworkError() = %v, want %v", got, tt.wantNetwork)
			}
			if got := tt.outcome.IsValidationError(); got != tt.wantValidation {
				t.Errorf("IsValidationError() = %v, want %v", got, tt.wantValidation)
			}
		})
	}
}

func TestTLSConfig_IsZero(t *testing.T) {
	var nilCfg *TLSConfig
	if !nilCfg.IsZero() {
		t.Error("Expected nil TLS config to be zero")
	}
	if !(&TLSConfig{}).IsZero() {
		t.Error("Expected empty TLS config to be zero")
	}
	if (&TLSConfig{InsecureSkipVerify: true}).IsZero() {
		t.Error("Expected insecure TLS config to be non-zero")
	}
}
