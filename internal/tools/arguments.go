package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DecodeArguments flattens a JSON object of tool-call arguments into the
// string mapping the dispatcher validates. Numbers and booleans keep their
// JSON spelling, arrays are joined with commas and null becomes empty.
func DecodeArguments(raw []byte) (map[string]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]string{}, nil
	}

	// Some providers send the object as a JSON string.
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("decode tool arguments: %w", err)
		}
		return DecodeArguments([]byte(inner))
	}

	var obj map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode tool arguments: %w", err)
	}

	out := make(map[string]string, len(obj))
	for key, value := range obj {
		s, err := scalar(value)
		if err != nil {
			return nil, fmt.Errorf("decode tool argument %q: %w", key, err)
		}
		out[key] = s
	}
	return out, nil
}

func scalar(value json.RawMessage) (string, error) {
	value = bytes.TrimSpace(value)
	if len(value) == 0 {
		return "", nil
	}
	switch value[0] {
	case '"':
		var s string
		err := json.Unmarshal(value, &s)
		return s, err
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(value, &items); err != nil {
			return "", err
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			s, err := scalar(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	case '{':
		return "", fmt.Errorf("nested objects are not supported")
	case 'n':
		return "", nil
	case 't', 'f':
		b, err := strconv.ParseBool(string(value))
		return strconv.FormatBool(b), err
	default:
		return string(value), nil
	}
}

// EncodeArguments renders tool-call arguments as a JSON object string.
func EncodeArguments(args map[string]string) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}
