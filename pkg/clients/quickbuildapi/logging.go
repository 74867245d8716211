package quickbuildapi

import (
	"context"

	"github.com/estafette/quickbuild-mcp-server/pkg/api"
)

// NewLoggingClient returns a new instance of a logging Client.
func NewLoggingClient(c Client) Client {
	return &loggingClient{c, "quickbuildapi"}
}

type loggingClient struct {
	Client Client
	prefix string
}

func (c *loggingClient) Authenticate(ctx context.Context) (err error) {
	defer func() { api.HandleLogError(c.prefix, "Client", "Authenticate", err) }()

	return c.Client.Authenticate(ctx)
}

func (c *loggingClient) GetConfigurations(ctx context.Context) (configurations []*Configuration, err error) {
	defer func() { api.HandleLogError(c.prefix, "Client", "GetConfigurations", err) }()

	return c.Client.GetConfigurations(ctx)
}

func (c *loggingClient) GetLatestBuildStatus(ctx context.Context, configurationID string) (build *Build, err error) {
	defer func() { api.HandleLogError(c.prefix, "Client", "GetLatestBuildStatus", err) }()

	return c.Client.GetLatestBuildStatus(ctx, configurationID)
}

func (c *loggingClient) GetAgents(ctx context.Context) (agents []*Agent, err error) {
	defer func() { api.HandleLogError(c.prefix, "Client", "GetAgents", err) }()

	return c.Client.GetAgents(ctx)
}

func (c *loggingClient) GetBuildChanges(ctx context.Context, buildID string) (changes []*Change, err error) {
	defer func() { api.HandleLogError(c.prefix, "Client", "GetBuildChanges", err, ErrResourceNotFound) }()

	return c.Client.GetBuildChanges(ctx, buildID)
}

func (c *loggingClient) TriggerBuild(ctx context.Context, configurationID string, variables map[string]string) (triggeredBuild *TriggeredBuild, err error) {
	defer func() { api.HandleLogError(c.prefix, "Client", "TriggerBuild", err) }()

	return c.Client.TriggerBuild(ctx, configurationID, variables)
}

func (c *loggingClient) Close() (err error) {
	defer func() { api.HandleLogError(c.prefix, "Client", "Close", err) }()

	return c.Client.Close()
}
