package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownTool is returned by a feature asked for a tool it does not own
	ErrUnknownTool = errors.New("Unknown tool")
	// ErrUnknownResource is returned by a feature asked for a resource it does not own
	ErrUnknownResource = errors.New("Unknown resource URI")
)

// UnknownToolError returns ErrUnknownTool for name
func UnknownToolError(name string) error {
	return fmt.Errorf("%w: %v", ErrUnknownTool, name)
}

// UnknownResourceError returns ErrUnknownResource for uri
func UnknownResourceError(uri string) error {
	return fmt.Errorf("%w: %v", ErrUnknownResource, uri)
}

// Feature groups the tools and resources backed by one area of the QuickBuild api
type Feature interface {
	Name() string
	Tools() []Tool
	Resources() []Resource
	// HandleToolCall returns the text result for a tool owned by this feature
	HandleToolCall(ctx context.Context, name string, arguments json.RawMessage) (string, error)
	// HandleResourceRequest returns the text of a resource (or template instance) owned by this feature
	HandleResourceRequest(ctx context.Context, uri string) (string, error)
}

// templatePrefix returns the part of a uri before its first placeholder
func templatePrefix(uri string) string {
	if i := strings.Index(uri, "{"); i >= 0 {
		return uri[:i]
	}
	return uri
}
