package types

import (
	"fmt"
	"strings"
	"time"
)

// Backend is the storage backend label of the service under test.
// It only changes what gets printed and stored, never the traffic.
type Backend string

const (
	BackendMySQL    Backend = "mysql"
	BackendDynamoDB Backend = "dynamodb"
)

// DefaultBackend is used when TEST_MODE is unset
const DefaultBackend = BackendDynamoDB

// ParseBackend parses a backend label (case-insensitive)
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultBackend, nil
	case BackendMySQL:
		return BackendMySQL, nil
	case BackendDynamoDB:
		return BackendDynamoDB, nil
	}
	return "", fmt.Errorf("unknown backend %q (expected mysql or dynamodb)", s)
}

// Operation names one of the weighted tasks a simulated user can pick
type Operation string

const (
	OpCreateCart Operation = "create_cart"
	OpAddItems   Operation = "add_items_to_cart"
	OpGetCart    Operation = "get_cart"
)

// Operations lists all operations in reporting order
var Operations = []Operation{OpCreateCart, OpAddItems, OpGetCart}

// ParseOperation accepts the canonical names plus the short forms used on the command line
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "create", "create_cart":
		return OpCreateCart, nil
	case "add", "add_items", "add_items_to_cart":
		return OpAddItems, nil
	case "get", "get_cart":
		return OpGetCart, nil
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// CreateCartRequest is the body of POST /shopping-carts
type CreateCartRequest struct {
	CustomerID int `json:"customer_id"`
}

// AddItemRequest is the body of POST /shopping-carts/{id}/items
type AddItemRequest struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

// TLSConfig holds optional client TLS settings for the target host
type TLSConfig struct {
	CertFile           string `json:"certFile,omitempty" yaml:"certFile,omitempty"`
	KeyFile            string `json:"keyFile,omitempty" yaml:"keyFile,omitempty"`
	CAFile             string `json:"caFile,omitempty" yaml:"caFile,omitempty"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
}

// IsZero reports whether no TLS option is set
func (t *TLSConfig) IsZero() bool {
	return t == nil || (t.CertFile == "" && t.KeyFile == "" && t.CAFile == "" && !t.InsecureSkipVerify)
}

// Outcome is the reported result of a single request issued by a simulated user
type Outcome struct {
	Operation    Operation
	Name         string // Reporting name, e.g. "POST /shopping-carts (create)"
	Method       string
	Path         string
	UserID       string
	StatusCode   int // 0 when no response was received
	Duration     time.Duration
	RequestSize  int64
	ResponseSize int64
	Success      bool
	Failure      string // Failure message when Success is false
	Err          error  // Transport error, if any
	Timestamp    time.Time
}

// IsNetworkError reports whether the request never produced an HTTP response
func (o *Outcome) IsNetworkError() bool {
	return o.Err != nil || o.StatusCode == 0
}

// IsValidationError reports whether a response arrived but was classified as a failure
func (o *Outcome) IsValidationError() bool {
	return !o.Success && !o.IsNetworkError()
}
