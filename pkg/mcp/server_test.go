package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeFeature struct {
	name      string
	tools     []Tool
	resources []Resource
	toolCalls []string
	reads     []string
	err       error
}

func (f *fakeFeature) Name() string          { return f.name }
func (f *fakeFeature) Tools() []Tool         { return f.tools }
func (f *fakeFeature) Resources() []Resource { return f.resources }

func (f *fakeFeature) HandleToolCall(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	f.toolCalls = append(f.toolCalls, name)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf(`{"tool": %q, "arguments": %s}`, name, string(arguments)), nil
}

func (f *fakeFeature) HandleResourceRequest(ctx context.Context, uri string) (string, error) {
	f.reads = append(f.reads, uri)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf(`{"uri": %q}`, uri), nil
}

func newTestServer() (*Server, *fakeFeature, *fakeFeature) {
	builds := &fakeFeature{
		name: "builds",
		tools: []Tool{
			{Name: "builds.get_latest_status", Description: "Get the latest build", InputSchema: &InputSchema{Type: "object"}},
		},
	}
	changes := &fakeFeature{
		name: "changes",
		resources: []Resource{
			{URI: "configurations://list", Name: "Configurations"},
			{URI: "changes://build/{build_id}", Name: "Build changes"},
		},
	}

	return NewServer("quickbuild-mcp-server", "1.0.0", []Feature{builds, changes}, WithInstructions("Inspect QuickBuild")), builds, changes
}

type testResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func handle(t *testing.T, s *Server, message string) testResponse {
	data := s.HandleMessage(context.Background(), []byte(message))
	var resp testResponse
	err := json.Unmarshal(data, &resp)
	assert.Nil(t, err)
	return resp
}

func TestHandleMessage(t *testing.T) {

	t.Run("InitializeReturnsServerInfoAndCapabilities", func(t *testing.T) {

		s, _, _ := newTestServer()

		// act
		resp := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test","version":"0.1"}}}`)

		assert.Nil(t, resp.Error)
		var result InitializeResult
		assert.Nil(t, json.Unmarshal(resp.Result, &result))
		assert.Equal(t, ProtocolVersion, result.ProtocolVersion)
		assert.Equal(t, "quickbuild-mcp-server", result.ServerInfo.Name)
		assert.Equal(t, "Inspect QuickBuild", result.Instructions)
		assert.NotNil(t, result.Capabilities.Tools)
		assert.NotNil(t, result.Capabilities.Resources)
	})

	t.Run("PingReturnsEmptyResult", func(t *testing.T) {

		s, _, _ := newTestServer()

		// act
		resp := handle(t, s, `{"jsonrpc":"2.0","id":"abc","method":"ping"}`)

		assert.Nil(t, resp.Error)
		assert.Equal(t, `"abc"`, string(resp.ID))
		assert.JSONEq(t, `{}`, string(resp.Result))
	})

	t.Run("ToolsListReturnsToolsOfAllFeatures", func(t *testing.T) {

		s, _, _ := newTestServer()

		// act
		resp := handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)

		var result ToolsListResult
		assert.Nil(t, json.Unmarshal(resp.Result, &result))
		if assert.Equal(t, 1, len(result.Tools)) {
			assert.Equal(t, "builds.get_latest_status", result.Tools[0].Name)
		}
	})

	t.Run("ResourcesListSeparatesTemplates", func(t *testing.T) {

		s, _, _ := newTestServer()

		// act
		resources := handle(t, s, `{"jsonrpc":"2.0","id":3,"method":"resources/list"}`)
		templates := handle(t, s, `{"jsonrpc":"2.0","id":4,"method":"resources/templates/list"}`)

		var resourcesResult ResourcesListResult
		assert.Nil(t, json.Unmarshal(resources.Result, &resourcesResult))
		if assert.Equal(t, 1, len(resourcesResult.Resources)) {
			assert.Equal(t, "configurations://list", resourcesResult.Resources[0].URI)
		}
		var templatesResult ResourceTemplatesListResult
		assert.Nil(t, json.Unmarshal(templates.Result, &templatesResult))
		if assert.Equal(t, 1, len(templatesResult.ResourceTemplates)) {
			assert.Equal(t, "changes://build/{build_id}", templatesResult.ResourceTemplates[0].URITemplate)
		}
	})

	t.Run("ToolsCallDispatchesToOwningFeature", func(t *testing.T) {

		s, builds, _ := newTestServer()

		// act
		resp := handle(t, s, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"builds.get_latest_status","arguments":{"configuration_id":"42"}}}`)

		var result ToolCallResult
		assert.Nil(t, json.Unmarshal(resp.Result, &result))
		assert.False(t, result.IsError)
		assert.Equal(t, []string{"builds.get_latest_status"}, builds.toolCalls)
		if assert.Equal(t, 1, len(result.Content)) {
			assert.Equal(t, "text", result.Content[0].Type)
			assert.JSONEq(t, `{"tool": "builds.get_latest_status", "arguments": {"configuration_id": "42"}}`, result.Content[0].Text)
		}
	})

	t.Run("ToolsCallReturnsUnknownToolText", func(t *testing.T) {

		s, _, _ := newTestServer()

		// act
		resp := handle(t, s, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"builds.delete"}}`)

		assert.Nil(t, resp.Error)
		var result ToolCallResult
		assert.Nil(t, json.Unmarshal(resp.Result, &result))
		assert.Equal(t, "Unknown tool: builds.delete", result.Content[0].Text)
	})

	t.Run("ToolsCallReturnsFeatureErrorAsErrorResult", func(t *testing.T) {

		s, builds, _ := newTestServer()
		builds.err = errors.New("unexpected arguments")

		// act
		resp := handle(t, s, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"builds.get_latest_status","arguments":{}}}`)

		var result ToolCallResult
		assert.Nil(t, json.Unmarshal(resp.Result, &result))
		assert.True(t, result.IsError)
		assert.Equal(t, "Error: unexpected arguments", result.Content[0].Text)
	})

	t.Run("ResourcesReadMatchesTemplateByPrefix", func(t *testing.T) {

		s, _, changes := newTestServer()

		// act
		resp := handle(t, s, `{"jsonrpc":"2.0","id":8,"method":"resources/read","params":{"uri":"changes://build/123"}}`)

		var result ReadResourceResult
		assert.Nil(t, json.Unmarshal(resp.Result, &result))
		assert.Equal(t, []string{"changes://build/123"}, changes.reads)
		if assert.Equal(t, 1, len(result.Contents)) {
			assert.Equal(t, "changes://build/123", result.Contents[0].URI)
			assert.Equal(t, "application/json", result.Contents[0].MimeType)
			assert.JSONEq(t, `{"uri": "changes://build/123"}`, result.Contents[0].Text)
		}
	})

	t.Run("ResourcesReadReturnsUnknownResourceText", func(t *testing.T) {

		s, _, _ := newTestServer()

		// act
		resp := handle(t, s, `{"jsonrpc":"2.0","id":9,"method":"resources/read","params":{"uri":"agents://list"}}`)

		var result ReadResourceResult
		assert.Nil(t, json.Unmarshal(resp.Result, &result))
		assert.Equal(t, "Unknown resource: agents://list", result.Contents[0].Text)
	})

	t.Run("ResourcesReadReturnsFeatureErrorText", func(t *testing.T) {

		s, _, changes := newTestServer()
		changes.err = errors.New("boom")

		// act
		resp := handle(t, s, `{"jsonrpc":"2.0","id":10,"method":"resources/read","params":{"uri":"configurations://list"}}`)

		var result ReadResourceResult
		assert.Nil(t, json.Unmarshal(resp.Result, &result))
		assert.Equal(t, "Error: boom", result.Contents[0].Text)
	})

	t.Run("ReturnsMethodNotFoundForUnknownMethod", func(t *testing.T) {

		s, _, _ := newTestServer()

		// act
		resp := handle(t, s, `{"jsonrpc":"2.0","id":11,"method":"prompts/list"}`)

		if assert.NotNil(t, resp.Error) {
			assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
		}
	})

	t.Run("ReturnsParseErrorForInvalidJson", func(t *testing.T) {

		s, _, _ := newTestServer()

		// act
		resp := handle(t, s, `{"jsonrpc":`)

		if assert.NotNil(t, resp.Error) {
			assert.Equal(t, ErrCodeParseError, resp.Error.Code)
		}
		assert.Equal(t, "null", string(resp.ID))
	})

	t.Run("ReturnsNilForNotifications", func(t *testing.T) {

		s, _, _ := newTestServer()

		// act
		data := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))

		assert.Nil(t, data)
	})
}

func TestServe(t *testing.T) {

	t.Run("WritesOneResponseLinePerRequest", func(t *testing.T) {

		s, _, _ := newTestServer()
		input := strings.Join([]string{
			`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
			``,
			`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
			`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`,
		}, "\n")
		var output bytes.Buffer

		// act
		err := s.Serve(context.Background(), strings.NewReader(input), &output)

		assert.Nil(t, err)
		lines := strings.Split(strings.TrimSpace(output.String()), "\n")
		assert.Equal(t, 3, len(lines))

		ids := map[string]bool{}
		for _, line := range lines {
			var resp testResponse
			assert.Nil(t, json.Unmarshal([]byte(line), &resp))
			ids[string(resp.ID)] = true
		}
		assert.Equal(t, map[string]bool{"1": true, "2": true, "3": true}, ids)
	})
}

type slowFeature struct {
	fakeFeature
	started chan struct{}
	delay   time.Duration
}

func (f *slowFeature) HandleToolCall(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	close(f.started)
	time.Sleep(f.delay)
	return `{"done": true}`, nil
}

func TestServeLimits(t *testing.T) {

	t.Run("RepliesParseErrorForOversizedLineAndKeepsReading", func(t *testing.T) {

		s, _, _ := newTestServer()
		oversized := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"builds.get_latest_status","arguments":{"padding":"` + strings.Repeat("x", maxMessageSize+100*1024) + `"}}}`
		input := oversized + "\n" + `{"jsonrpc":"2.0","id":2,"method":"ping"}` + "\n"
		var output bytes.Buffer

		// act
		err := s.Serve(context.Background(), strings.NewReader(input), &output)

		assert.Nil(t, err)
		lines := strings.Split(strings.TrimSpace(output.String()), "\n")
		if assert.Equal(t, 2, len(lines)) {
			var parseErrResp testResponse
			assert.Nil(t, json.Unmarshal([]byte(lines[0]), &parseErrResp))
			if assert.NotNil(t, parseErrResp.Error) {
				assert.Equal(t, ErrCodeParseError, parseErrResp.Error.Code)
			}
			assert.Equal(t, "null", string(parseErrResp.ID))

			var pingResp testResponse
			assert.Nil(t, json.Unmarshal([]byte(lines[1]), &pingResp))
			assert.Equal(t, "2", string(pingResp.ID))
			assert.Nil(t, pingResp.Error)
		}
	})

	t.Run("ReturnsWhenContextIsCancelledWhileInputStaysOpen", func(t *testing.T) {

		s, _, _ := newTestServer()
		reader, writer := io.Pipe()
		defer writer.Close()
		ctx, cancel := context.WithCancel(context.Background())
		var output bytes.Buffer

		done := make(chan error, 1)
		go func() {
			done <- s.Serve(ctx, reader, &output)
		}()

		// act
		cancel()

		select {
		case err := <-done:
			assert.True(t, errors.Is(err, context.Canceled))
		case <-time.After(5 * time.Second):
			t.Fatal("Serve did not return after cancellation")
		}
	})

	t.Run("CompletesRequestsInFlightBeforeReturning", func(t *testing.T) {

		slow := &slowFeature{
			fakeFeature: fakeFeature{
				name:  "slow",
				tools: []Tool{{Name: "slow.call", InputSchema: &InputSchema{Type: "object"}}},
			},
			started: make(chan struct{}),
			delay:   100 * time.Millisecond,
		}
		s := NewServer("quickbuild-mcp-server", "1.0.0", []Feature{slow})
		reader, writer := io.Pipe()
		defer writer.Close()
		ctx, cancel := context.WithCancel(context.Background())
		var output bytes.Buffer

		done := make(chan error, 1)
		go func() {
			done <- s.Serve(ctx, reader, &output)
		}()
		_, err := writer.Write([]byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"slow.call"}}` + "\n"))
		assert.Nil(t, err)
		<-slow.started

		// act
		cancel()
		err = <-done

		assert.True(t, errors.Is(err, context.Canceled))
		assert.Contains(t, output.String(), `\"done\": true`)
	})
}

func TestHandler(t *testing.T) {

	gin.SetMode(gin.TestMode)

	t.Run("ServesJsonRpcOverHttp", func(t *testing.T) {

		s, _, _ := newTestServer()
		router := gin.New()
		router.POST("/mcp", s.Handler())
		request := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
		recorder := httptest.NewRecorder()

		// act
		router.ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "builds.get_latest_status")
	})

	t.Run("AcceptsNotificationsWithoutBody", func(t *testing.T) {

		s, _, _ := newTestServer()
		router := gin.New()
		router.POST("/mcp", s.Handler())
		request := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
		recorder := httptest.NewRecorder()

		// act
		router.ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusAccepted, recorder.Code)
	})

	t.Run("RejectsOversizedBody", func(t *testing.T) {

		s, _, _ := newTestServer()
		router := gin.New()
		router.POST("/mcp", s.Handler())
		body := `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"padding":"` + strings.Repeat("x", maxMessageSize) + `"}}`
		request := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
		recorder := httptest.NewRecorder()

		// act
		router.ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusRequestEntityTooLarge, recorder.Code)
		assert.Contains(t, recorder.Body.String(), `"code":-32700`)
	})
}
