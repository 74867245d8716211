package quickbuildapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// TimeFormat is used to render timestamps of QuickBuild records
const TimeFormat = "2006-01-02T15:04:05.999999-07:00"

// Configuration is a QuickBuild build configuration
type Configuration struct {
	ID          string
	Name        string
	Description string
	ParentID    *string
	Enabled     bool
}

// Build is the status of a single QuickBuild build
type Build struct {
	ID              string
	ConfigurationID string
	Version         string
	Status          string
	StartTime       time.Time
	EndTime         *time.Time
	Success         bool
}

// Agent is a QuickBuild grid node
type Agent struct {
	Name        string
	Status      string
	LastContact time.Time
	IPAddress   string
	Port        int
}

// Change is an scm change included in a build
type Change struct {
	Revision  string
	Author    string
	Message   string
	Timestamp time.Time
	Files     []string
}

// TriggeredBuild is the acknowledgement of a build request
type TriggeredBuild struct {
	BuildID         string            `json:"build_id"`
	ConfigurationID string            `json:"configuration_id"`
	Status          string            `json:"status"`
	Message         string            `json:"message"`
	Variables       map[string]string `json:"variables,omitempty"`
}

// FormatTime renders t the way all QuickBuild timestamps are returned to callers
func FormatTime(t time.Time) string {
	return t.Format(TimeFormat)
}

type triggerBuildRequest struct {
	ConfigurationID string            `json:"configurationId"`
	Variables       map[string]string `json:"variables,omitempty"`
}

type authenticationRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// wireObject is a single json object as returned by the QuickBuild api; its fields are looked up leniently
type wireObject map[string]json.RawMessage

var timeLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTime accepts iso-8601 timestamps with or without offset; a trailing Z is read as +00:00 and naive timestamps as utc
func parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if strings.HasSuffix(value, "Z") {
		value = strings.TrimSuffix(value, "Z") + "+00:00"
	}

	var firstErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	return time.Time{}, firstErr
}

// decodeList applies the single-or-list rule: an array yields its elements, an object a one-element list and null or an empty body an empty list
func decodeList(body []byte) ([]wireObject, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return []wireObject{}, nil
	}

	switch body[0] {
	case '[':
		var items []wireObject
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, wrapError(GenericAPIError, CodeInvalidResponse, err, "Invalid response from QuickBuild: %v", err)
		}
		objects := make([]wireObject, 0, len(items))
		for _, item := range items {
			if item != nil {
				objects = append(objects, item)
			}
		}
		return objects, nil
	case '{':
		var item wireObject
		if err := json.Unmarshal(body, &item); err != nil {
			return nil, wrapError(GenericAPIError, CodeInvalidResponse, err, "Invalid response from QuickBuild: %v", err)
		}
		return []wireObject{item}, nil
	}

	return nil, newError(GenericAPIError, CodeInvalidResponse, "Invalid response from QuickBuild: expected a json object or array")
}

func (o wireObject) rawField(key string) (json.RawMessage, bool) {
	raw, ok := o[key]
	if !ok {
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}
	return raw, true
}

// textField returns the field as text; numbers and booleans are rendered in their json notation
func (o wireObject) textField(key, defaultValue string) string {
	raw, ok := o.rawField(key)
	if !ok {
		return defaultValue
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// optionalTextField returns nil for missing, null, empty, zero or false values
func (o wireObject) optionalTextField(key string) *string {
	raw, ok := o.rawField(key)
	if !ok {
		return nil
	}
	switch string(raw) {
	case `""`, "0", "false":
		return nil
	}
	s := o.textField(key, "")
	return &s
}

func (o wireObject) boolField(key string, defaultValue bool) bool {
	raw, ok := o.rawField(key)
	if !ok {
		return defaultValue
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseBool(s); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// intField coerces a json number or numeric string to an int
func (o wireObject) intField(key string, defaultValue int) (int, error) {
	raw, ok := o.rawField(key)
	if !ok {
		return defaultValue, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, wrapError(GenericAPIError, CodeInvalidResponse, err, "Invalid response from QuickBuild: field %v is not a number", key)
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, wrapError(GenericAPIError, CodeInvalidResponse, err, "Invalid response from QuickBuild: field %v with value %q is not a number", key, s)
	}
	return i, nil
}

// timeField parses the field as a timestamp; ok is false if the field is missing or empty
func (o wireObject) timeField(key string) (t time.Time, ok bool, err error) {
	value := o.textField(key, "")
	if value == "" {
		return time.Time{}, false, nil
	}
	t, err = parseTime(value)
	if err != nil {
		return time.Time{}, false, wrapError(GenericAPIError, CodeInvalidResponse, err, "Invalid response from QuickBuild: field %v with value %q is not a valid timestamp", key, value)
	}
	return t, true, nil
}

func (o wireObject) timeFieldOrNow(key string, now func() time.Time) (time.Time, error) {
	t, ok, err := o.timeField(key)
	if err != nil {
		return t, err
	}
	if !ok {
		return now(), nil
	}
	return t, nil
}

func (o wireObject) textFields(key string) ([]string, error) {
	values := []string{}
	raw, ok := o.rawField(key)
	if !ok {
		return values, nil
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, wrapError(GenericAPIError, CodeInvalidResponse, err, "Invalid response from QuickBuild: field %v is not a list of strings", key)
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

func toConfiguration(o wireObject) *Configuration {
	return &Configuration{
		ID:          o.textField("id", ""),
		Name:        o.textField("name", ""),
		Description: o.textField("description", ""),
		ParentID:    o.optionalTextField("parentId"),
		Enabled:     o.boolField("enabled", true),
	}
}

func toBuild(o wireObject, configurationID string, now func() time.Time) (*Build, error) {
	startTime, err := o.timeFieldOrNow("startTime", now)
	if err != nil {
		return nil, err
	}

	var endTime *time.Time
	if t, ok, err := o.timeField("endTime"); err != nil {
		return nil, err
	} else if ok {
		endTime = &t
	}

	status := o.textField("status", "")

	return &Build{
		ID:              o.textField("id", ""),
		ConfigurationID: configurationID,
		Version:         o.textField("version", ""),
		Status:          status,
		StartTime:       startTime,
		EndTime:         endTime,
		Success:         strings.EqualFold(status, "successful"),
	}, nil
}

func toAgent(o wireObject, now func() time.Time) (*Agent, error) {
	lastContact, err := o.timeFieldOrNow("lastContact", now)
	if err != nil {
		return nil, err
	}
	port, err := o.intField("port", 0)
	if err != nil {
		return nil, err
	}

	return &Agent{
		Name:        o.textField("name", ""),
		Status:      o.textField("status", "unknown"),
		LastContact: lastContact,
		IPAddress:   o.textField("ipAddress", ""),
		Port:        port,
	}, nil
}

func toChange(o wireObject, now func() time.Time) (*Change, error) {
	timestamp, err := o.timeFieldOrNow("timestamp", now)
	if err != nil {
		return nil, err
	}
	files, err := o.textFields("files")
	if err != nil {
		return nil, err
	}

	return &Change{
		Revision:  o.textField("revision", ""),
		Author:    o.textField("author", ""),
		Message:   o.textField("message", ""),
		Timestamp: timestamp,
		Files:     files,
	}, nil
}
