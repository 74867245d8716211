package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Arguments holds the raw arguments of a tool call by name
type Arguments map[string]json.RawMessage

// ParseArguments decodes the arguments object of a tool call; missing or null arguments yield an empty set
func ParseArguments(raw json.RawMessage) (Arguments, error) {
	args := Arguments{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("arguments must be a json object: %w", err)
	}
	return args, nil
}

// String returns the argument as text; numbers and booleans are rendered in their json notation
func (a Arguments) String(key string) string {
	raw, ok := a[key]
	if !ok {
		return ""
	}
	return rawText(raw)
}

// StringMap returns an object argument with all values rendered as text
func (a Arguments) StringMap(key string) (map[string]string, error) {
	raw, ok := a[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	var values map[string]json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("%v must be an object", key)
	}

	result := make(map[string]string, len(values))
	for k, v := range values {
		result[k] = rawText(v)
	}
	return result, nil
}

func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// JSONText renders v as 2-space indented json
func JSONText(v interface{}) string {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return ErrorText(err)
	}
	return strings.TrimSuffix(buffer.String(), "\n")
}

// ErrorText renders err as a json object with a single error field
func ErrorText(err error) string {
	data, _ := json.MarshalIndent(struct {
		Error string `json:"error"`
	}{err.Error()}, "", "  ")
	return string(data)
}
