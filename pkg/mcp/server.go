package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/estafette/quickbuild-mcp-server/pkg/api"
	"github.com/gin-gonic/gin"
	"github.com/go-kit/kit/metrics"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	maxMessageSize  = 1024 * 1024
	jsonMimeType    = "application/json"
	textMimeType    = "text/plain"
	spanNamePrefix  = "mcp"
	defaultMaxCalls = 10
)

// ServerOption configures a Server
type ServerOption func(*Server)

// WithInstructions sets the instructions returned from initialize
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithMaxConcurrentRequests bounds the number of stdio requests handled at the same time
func WithMaxConcurrentRequests(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxConcurrentRequests = n
		}
	}
}

// WithMetrics records a request count and latency per handled call
func WithMetrics(requestCount metrics.Counter, requestLatency metrics.Histogram) ServerOption {
	return func(s *Server) {
		s.requestCount = requestCount
		s.requestLatency = requestLatency
	}
}

type templateRoute struct {
	prefix  string
	feature Feature
}

// Server dispatches MCP requests to the features that own the requested tool or resource
type Server struct {
	info                  ImplementationInfo
	instructions          string
	maxConcurrentRequests int

	tools             []Tool
	resources         []Resource
	resourceTemplates []ResourceTemplate

	toolFeatures     map[string]Feature
	resourceFeatures map[string]Feature
	templateRoutes   []templateRoute

	requestCount   metrics.Counter
	requestLatency metrics.Histogram

	writeMutex sync.Mutex
}

// NewServer builds the tool and resource lookup tables from features
func NewServer(name, version string, features []Feature, opts ...ServerOption) *Server {
	s := &Server{
		info: ImplementationInfo{
			Name:    name,
			Version: version,
		},
		maxConcurrentRequests: defaultMaxCalls,
		tools:                 []Tool{},
		resources:             []Resource{},
		resourceTemplates:     []ResourceTemplate{},
		toolFeatures:          map[string]Feature{},
		resourceFeatures:      map[string]Feature{},
	}

	for _, opt := range opts {
		opt(s)
	}

	for _, f := range features {
		for _, tool := range f.Tools() {
			if _, exists := s.toolFeatures[tool.Name]; exists {
				log.Warn().Msgf("Tool %v of feature %v is already registered, skipping", tool.Name, f.Name())
				continue
			}
			s.toolFeatures[tool.Name] = f
			s.tools = append(s.tools, tool)
		}

		for _, resource := range f.Resources() {
			if resource.IsTemplate() {
				s.templateRoutes = append(s.templateRoutes, templateRoute{prefix: templatePrefix(resource.URI), feature: f})
				s.resourceTemplates = append(s.resourceTemplates, ResourceTemplate{
					URITemplate: resource.URI,
					Name:        resource.Name,
					Description: resource.Description,
					MimeType:    resource.MimeType,
				})
				continue
			}
			if _, exists := s.resourceFeatures[resource.URI]; exists {
				log.Warn().Msgf("Resource %v of feature %v is already registered, skipping", resource.URI, f.Name())
				continue
			}
			s.resourceFeatures[resource.URI] = f
			s.resources = append(s.resources, resource)
		}
	}

	log.Info().Msgf("Loaded %v features with %v tools, %v resources and %v resource templates", len(features), len(s.tools), len(s.resources), len(s.resourceTemplates))

	return s
}

// Serve reads newline-delimited requests from r and writes responses to w until r is exhausted or ctx is cancelled; requests in flight are completed before it returns
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrentRequests)

	// the reader can block on r indefinitely, so it is not part of the group
	lines := make(chan inboundLine)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		readErr <- readLines(gctx, r, maxMessageSize, lines)
	}()

	var err error
loop:
	for {
		select {
		case <-gctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				err = <-readErr
				break loop
			}
			if line.tooLong {
				log.Warn().Msgf("Discarding message larger than %v bytes", maxMessageSize)
				s.write(w, s.encode(NewErrorResponse(nil, NewParseError(fmt.Sprintf("message exceeds %v bytes", maxMessageSize)))))
				continue
			}
			message := bytes.TrimSpace(line.data)
			if len(message) == 0 {
				continue
			}
			g.Go(func() error {
				if response := s.HandleMessage(gctx, message); response != nil {
					s.write(w, response)
				}
				return nil
			})
		}
	}

	if waitErr := g.Wait(); waitErr != nil {
		return waitErr
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("reading input: %w", err)
	}

	return ctx.Err()
}

type inboundLine struct {
	data    []byte
	tooLong bool
}

// readLines sends every line of r to lines; lines longer than maxSize are discarded up to their newline and reported as tooLong
func readLines(ctx context.Context, r io.Reader, maxSize int, lines chan<- inboundLine) error {
	reader := bufio.NewReaderSize(r, 64*1024)

	var line []byte
	tooLong := false
	for {
		fragment, isPrefix, err := reader.ReadLine()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		if !tooLong {
			if len(line)+len(fragment) > maxSize {
				tooLong = true
				line = nil
			} else {
				// the reader reuses its buffer
				line = append(line, fragment...)
			}
		}
		if isPrefix {
			continue
		}

		select {
		case lines <- inboundLine{data: line, tooLong: tooLong}:
		case <-ctx.Done():
			return ctx.Err()
		}
		line = nil
		tooLong = false
	}
}

// Handler serves JSON-RPC requests posted over http
func (s *Server) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxMessageSize))
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				c.Data(http.StatusRequestEntityTooLarge, jsonMimeType, s.encode(NewErrorResponse(nil, NewParseError(fmt.Sprintf("message exceeds %v bytes", maxMessageSize)))))
				return
			}
			c.String(http.StatusBadRequest, "Failed to read request")
			return
		}

		response := s.HandleMessage(c.Request.Context(), body)
		if response == nil {
			c.Status(http.StatusAccepted)
			return
		}

		c.Data(http.StatusOK, jsonMimeType, response)
	}
}

// HandleMessage processes a single JSON-RPC message and returns the encoded response, or nil for notifications
func (s *Server) HandleMessage(ctx context.Context, message []byte) []byte {

	var req Request
	if err := json.Unmarshal(message, &req); err != nil {
		return s.encode(NewErrorResponse(nil, NewParseError(err.Error())))
	}

	if req.IsNotification() {
		s.handleNotification(&req)
		return nil
	}

	if req.JSONRPC != JSONRPCVersion || req.Method == "" {
		return s.encode(NewErrorResponse(req.ID, NewInvalidRequest("jsonrpc must be 2.0 and method is required")))
	}

	log.Debug().Str("method", req.Method).Msg("Handling request")

	var result interface{}
	var rpcErr *RPCError

	switch req.Method {
	case "initialize":
		result, rpcErr = s.handleInitialize(req.Params)
	case "ping":
		result = struct{}{}
	case "tools/list":
		result = ToolsListResult{Tools: s.tools}
	case "tools/call":
		result, rpcErr = s.handleToolsCall(ctx, req.Params)
	case "resources/list":
		result = ResourcesListResult{Resources: s.resources}
	case "resources/templates/list":
		result = ResourceTemplatesListResult{ResourceTemplates: s.resourceTemplates}
	case "resources/read":
		result, rpcErr = s.handleResourcesRead(ctx, req.Params)
	default:
		rpcErr = NewMethodNotFound(req.Method)
	}

	if rpcErr != nil {
		return s.encode(NewErrorResponse(req.ID, rpcErr))
	}

	return s.encode(NewResponse(req.ID, result))
}

func (s *Server) handleNotification(req *Request) {
	switch req.Method {
	case "notifications/initialized":
		log.Info().Msg("MCP client initialized")
	case "notifications/cancelled":
		log.Debug().Msg("MCP client cancelled a request")
	default:
		log.Debug().Str("method", req.Method).Msg("Ignoring unknown notification")
	}
}

func (s *Server) handleInitialize(params json.RawMessage) (interface{}, *RPCError) {
	var p InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, NewInvalidParams(err.Error())
		}
	}

	log.Info().Str("clientName", p.ClientInfo.Name).Str("clientVersion", p.ClientInfo.Version).Str("protocolVersion", p.ProtocolVersion).Msg("Initializing MCP session")

	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapability{
			Tools:     &ToolsCapability{},
			Resources: &ResourcesCapability{},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (result interface{}, rpcErr *RPCError) {
	var p ToolCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, NewInvalidParams(err.Error())
	}
	if p.Name == "" {
		return nil, NewInvalidParams("name is required")
	}

	feature, ok := s.toolFeatures[p.Name]
	if !ok {
		log.Warn().Str("tool", p.Name).Msg("Unknown tool requested")
		return SuccessResult(fmt.Sprintf("Unknown tool: %v", p.Name)), nil
	}

	callID := uuid.New().String()
	text, err := s.invoke(ctx, "ToolsCall", callID, p.Name, func(ctx context.Context) (string, error) {
		return feature.HandleToolCall(ctx, p.Name, p.Arguments)
	})
	if err != nil {
		log.Error().Err(err).Str("callID", callID).Msgf("Error handling tool call %v", p.Name)
		return ErrorResult(fmt.Sprintf("Error: %v", err)), nil
	}

	return SuccessResult(text), nil
}

func (s *Server) handleResourcesRead(ctx context.Context, params json.RawMessage) (result interface{}, rpcErr *RPCError) {
	var p ReadResourceParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, NewInvalidParams(err.Error())
	}
	if p.URI == "" {
		return nil, NewInvalidParams("uri is required")
	}

	feature, ok := s.resourceFeature(p.URI)
	if !ok {
		log.Warn().Str("uri", p.URI).Msg("Unknown resource requested")
		return textContents(p.URI, textMimeType, fmt.Sprintf("Unknown resource: %v", p.URI)), nil
	}

	callID := uuid.New().String()
	text, err := s.invoke(ctx, "ResourcesRead", callID, p.URI, func(ctx context.Context) (string, error) {
		return feature.HandleResourceRequest(ctx, p.URI)
	})
	if err != nil {
		log.Error().Err(err).Str("callID", callID).Msgf("Error handling resource request %v", p.URI)
		return textContents(p.URI, textMimeType, fmt.Sprintf("Error: %v", err)), nil
	}

	return textContents(p.URI, jsonMimeType, text), nil
}

// resourceFeature finds the feature owning uri, first by exact match then by template prefix
func (s *Server) resourceFeature(uri string) (Feature, bool) {
	if f, ok := s.resourceFeatures[uri]; ok {
		return f, true
	}
	for _, route := range s.templateRoutes {
		if strings.HasPrefix(uri, route.prefix) {
			return route.feature, true
		}
	}
	return nil, false
}

// invoke runs handler inside a span and records metrics for it
func (s *Server) invoke(ctx context.Context, funcName, callID, target string, handler func(ctx context.Context) (string, error)) (text string, err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, api.GetSpanName(spanNamePrefix, funcName))
	span.SetTag("call-id", callID)
	span.SetTag("target", target)
	defer func() { api.FinishSpanWithError(span, err) }()

	if s.requestCount != nil && s.requestLatency != nil {
		defer func(begin time.Time) {
			api.UpdateMetrics(s.requestCount, s.requestLatency, funcName, begin)
		}(time.Now())
	}

	log.Debug().Str("callID", callID).Str("target", target).Msgf("Handling %v", funcName)

	return handler(ctx)
}

func textContents(uri, mimeType, text string) ReadResourceResult {
	return ReadResourceResult{
		Contents: []ResourceContents{
			{URI: uri, MimeType: mimeType, Text: text},
		},
	}
}

func (s *Server) encode(resp *Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Msg("Failed marshalling response")
		data, _ = json.Marshal(NewErrorResponse(resp.ID, NewInternalError(err.Error())))
	}
	return data
}

// write sends one newline-delimited response; responses of concurrent requests never interleave
func (s *Server) write(w io.Writer, response []byte) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	if _, err := w.Write(append(response, '\n')); err != nil {
		log.Warn().Err(err).Msg("Failed writing response")
	}
}
