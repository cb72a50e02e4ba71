// Package jsonutil decodes model-produced JSON that is loose about types.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, handling cases where
// LLMs return numbers or booleans instead of strings. Numbers keep their exact
// source text so "52.50" and 52.50 both yield "52.50". Returns empty string for
// null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strings.TrimSpace(strVal)
	}

	var numVal json.Number
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return numVal.String()
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		if boolVal {
			return "true"
		}
		return "false"
	}

	return string(raw)
}

// FlexibleString is a struct field type that accepts a JSON string, number,
// boolean or null and keeps it as text.
type FlexibleString string

// UnmarshalJSON implements json.Unmarshaler. It never fails, so one oddly
// typed field does not discard the rest of a response.
func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	*f = FlexibleString(FlexibleStringValue(data))
	return nil
}

// String returns the decoded text.
func (f FlexibleString) String() string {
	return string(f)
}
