// Package filter applies JMESPath expressions to JSON reports.
package filter

import (
	"encoding/json"
	"fmt"

	"github.com/jmespath/go-jmespath"
)

// Apply applies filter and query expressions to a JSON document.
// Filter narrows results (e.g., operations[?FailureCount > `0`])
// Query transforms/selects fields (e.g., [].Operation)
func Apply(body []byte, filter string, query string) ([]byte, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var err error
	if filter != "" {
		if data, err = search(data, filter); err != nil {
			return nil, fmt.Errorf("failed to apply filter: %w", err)
		}
	}
	if query != "" {
		if data, err = search(data, query); err != nil {
			return nil, fmt.Errorf("failed to apply query: %w", err)
		}
	}

	// Handle null result
	if data == nil {
		return []byte("null"), nil
	}

	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return output, nil
}

func search(data any, expression string) (any, error) {
	jp, err := jmespath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid JMESPath expression '%s': %w", expression, err)
	}
	result, err := jp.Search(data)
	if err != nil {
		return nil, fmt.Errorf("JMESPath search failed: %w", err)
	}
	return result, nil
}

// IsValidJMESPath checks if an expression is valid JMESPath syntax
func IsValidJMESPath(expression string) bool {
	_, err := jmespath.Compile(expression)
	return err == nil
}
