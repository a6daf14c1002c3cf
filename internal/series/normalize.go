package series

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MalformedInputError reports a document that could not be read as a series.
type MalformedInputError struct {
	Reason string
}

func (e *MalformedInputError) Error() string {
	return "malformed series input: " + e.Reason
}

// Normalized is the successful outcome of Normalize.
type Normalized struct {
	Points []Point
	// Steps lists the unwrapping applied, in order ("decoded-string", "data-field", "single-object").
	Steps []string
	// Dropped counts items that were not objects, failed to decode, or had no date.
	Dropped int
}

// Changed reports whether the input differed from a plain list of valid points.
func (n Normalized) Changed() bool {
	return len(n.Steps) > 0 || n.Dropped > 0
}

// Unwrapped is the list of raw items found in a document and the unwrapping
// steps ("decoded-string", "data-field", "single-object") applied to reach it.
type Unwrapped struct {
	Items []json.RawMessage
	Steps []string
}

// Unwrap locates the item list of a document. It accepts a raw list, a
// {"data": [...]} wrapper, a lone object, or any of those encoded once more as
// a JSON string. Anything else yields *MalformedInputError.
func Unwrap(raw []byte) (Unwrapped, error) {
	var out Unwrapped

	payload := bytes.TrimSpace(raw)
	if len(payload) == 0 {
		return out, &MalformedInputError{Reason: "empty document"}
	}
	if !json.Valid(payload) {
		return out, &MalformedInputError{Reason: "invalid json"}
	}

	if payload[0] == '"' {
		var inner string
		if err := json.Unmarshal(payload, &inner); err != nil {
			return out, &MalformedInputError{Reason: fmt.Sprintf("decode string: %v", err)}
		}
		payload = bytes.TrimSpace([]byte(inner))
		if len(payload) == 0 || !json.Valid(payload) {
			return out, &MalformedInputError{Reason: "string does not contain json"}
		}
		out.Steps = append(out.Steps, "decoded-string")
	}

	switch payload[0] {
	case '[':
		if err := json.Unmarshal(payload, &out.Items); err != nil {
			return out, &MalformedInputError{Reason: fmt.Sprintf("decode list: %v", err)}
		}
	case '{':
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(payload, &wrapper); err != nil {
			return out, &MalformedInputError{Reason: fmt.Sprintf("decode object: %v", err)}
		}
		data := bytes.TrimSpace(wrapper["data"])
		if len(data) > 0 && data[0] == '[' {
			if err := json.Unmarshal(data, &out.Items); err != nil {
				return out, &MalformedInputError{Reason: fmt.Sprintf("decode data field: %v", err)}
			}
			out.Steps = append(out.Steps, "data-field")
		} else {
			out.Items = []json.RawMessage{payload}
			out.Steps = append(out.Steps, "single-object")
		}
	default:
		return out, &MalformedInputError{Reason: "document is neither list nor object"}
	}
	return out, nil
}

// Normalize unwraps a series document and decodes its points. Items that are
// not objects, fail to decode, or carry no date are dropped and counted.
func Normalize(raw []byte) (Normalized, error) {
	var out Normalized

	unwrapped, err := Unwrap(raw)
	if err != nil {
		return out, err
	}
	out.Steps = unwrapped.Steps

	out.Points = make([]Point, 0, len(unwrapped.Items))
	for _, item := range unwrapped.Items {
		var p Point
		if !DecodeDated(item, &p, func() string { return p.Date }) {
			out.Dropped++
			continue
		}
		out.Points = append(out.Points, p)
	}
	return out, nil
}

// DecodeDated decodes one object item into dst and reports whether it
// decoded cleanly and date() is non-empty afterwards.
func DecodeDated(item json.RawMessage, dst any, date func() string) bool {
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return false
	}
	return date() != ""
}
