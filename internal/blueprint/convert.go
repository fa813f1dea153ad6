package blueprint

import (
	"encoding/json"
	"fmt"
	"strconv"
)

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok && m != nil
}

func asSlice(v interface{}) ([]interface{}, bool) {
	s, ok := v.([]interface{})
	return s, ok
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// stringify renders scalars the way a human wrote them and falls back to
// JSON for composite values.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// firstString returns the first key of src holding a non-empty string.
func firstString(src map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := asString(src[k]); ok && s != "" {
			return s
		}
	}
	return ""
}

// decodeInto re-marshals a generic value into a typed destination.
// Unknown fields are dropped, which is exactly the tolerance the parser
// wants.
func decodeInto(src interface{}, dst interface{}) error {
	b, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
