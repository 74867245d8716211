package quickbuildapi

import (
	"context"

	"github.com/estafette/quickbuild-mcp-server/pkg/api"
	"github.com/opentracing/opentracing-go"
)

// NewTracingClient returns a new instance of a tracing Client.
func NewTracingClient(c Client) Client {
	return &tracingClient{c, "quickbuildapi"}
}

type tracingClient struct {
	Client Client
	prefix string
}

func (c *tracingClient) Authenticate(ctx context.Context) (err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, api.GetSpanName(c.prefix, "Authenticate"))
	defer func() { api.FinishSpanWithError(span, err) }()

	return c.Client.Authenticate(ctx)
}

func (c *tracingClient) GetConfigurations(ctx context.Context) (configurations []*Configuration, err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, api.GetSpanName(c.prefix, "GetConfigurations"))
	defer func() { api.FinishSpanWithError(span, err) }()

	return c.Client.GetConfigurations(ctx)
}

func (c *tracingClient) GetLatestBuildStatus(ctx context.Context, configurationID string) (build *Build, err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, api.GetSpanName(c.prefix, "GetLatestBuildStatus"))
	defer func() { api.FinishSpanWithError(span, err) }()
	span.SetTag("configuration-id", configurationID)

	return c.Client.GetLatestBuildStatus(ctx, configurationID)
}

func (c *tracingClient) GetAgents(ctx context.Context) (agents []*Agent, err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, api.GetSpanName(c.prefix, "GetAgents"))
	defer func() { api.FinishSpanWithError(span, err) }()

	return c.Client.GetAgents(ctx)
}

func (c *tracingClient) GetBuildChanges(ctx context.Context, buildID string) (changes []*Change, err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, api.GetSpanName(c.prefix, "GetBuildChanges"))
	defer func() { api.FinishSpanWithError(span, err) }()
	span.SetTag("build-id", buildID)

	return c.Client.GetBuildChanges(ctx, buildID)
}

func (c *tracingClient) TriggerBuild(ctx context.Context, configurationID string, variables map[string]string) (triggeredBuild *TriggeredBuild, err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, api.GetSpanName(c.prefix, "TriggerBuild"))
	defer func() { api.FinishSpanWithError(span, err) }()
	span.SetTag("configuration-id", configurationID)

	return c.Client.TriggerBuild(ctx, configurationID, variables)
}

func (c *tracingClient) Close() (err error) {
	return c.Client.Close()
}
