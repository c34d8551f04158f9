package scenario

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jmespath/go-jmespath"
)

// Failure messages reported for classified responses
const (
	FailureNoCartID         = "No cart_id in response"
	FailureInvalidJSON      = "Invalid JSON response"
	FailureCartNotFound     = "Cart not found"
	FailureInvalidStructure = "Invalid response structure"
)

var (
	errInvalidJSON = errors.New("invalid JSON")

	cartIDExpr    = jmespath.MustCompile("shopping_cart_id")
	cartShapeExpr = jmespath.MustCompile("type(@) == 'object' && contains(keys(@), 'cart') && contains(keys(@), 'items')")
)

// failedWithStatus formats the failure message for an unexpected status code
func failedWithStatus(code int) string {
	return fmt.Sprintf("Failed with status %d", code)
}

// decodeBody parses a JSON document, keeping numbers as json.Number so
// numeric cart ids keep their exact textual form
func decodeBody(body []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var data interface{}
	if err := dec.Decode(&data); err != nil {
		return nil, errInvalidJSON
	}
	// Trailing garbage after the document is not valid JSON either
	if _, err := dec.Token(); err != io.EOF {
		return nil, errInvalidJSON
	}
	return data, nil
}

// extractCartID returns the shopping_cart_id of a create response.
// An empty id with a nil error means the field is missing or falsy.
func extractCartID(body []byte) (string, error) {
	data, err := decodeBody(body)
	if err != nil {
		return "", err
	}

	value, err := cartIDExpr.Search(data)
	if err != nil {
		return "", nil
	}
	return normalizeCartID(value), nil
}

// normalizeCartID converts a JSON value into a cart id.
// Values that are falsy in JSON terms (null, "", 0, false) yield "".
func normalizeCartID(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		if f, err := v.Float64(); err == nil && f == 0 {
			return ""
		}
		return v.String()
	case float64:
		if v == 0 {
			return ""
		}
		return fmt.Sprint(v)
	case bool:
		if !v {
			return ""
		}
		return "true"
	}
	return ""
}

// hasCartShape reports whether a get response carries both cart and items
func hasCartShape(body []byte) (bool, error) {
	data, err := decodeBody(body)
	if err != nil {
		return false, err
	}

	result, err := cartShapeExpr.Search(data)
	if err != nil {
		return false, nil
	}
	ok, _ := result.(bool)
	return ok, nil
}
