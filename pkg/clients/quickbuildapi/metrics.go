package quickbuildapi

import (
	"context"
	"time"

	"github.com/estafette/quickbuild-mcp-server/pkg/api"
	"github.com/go-kit/kit/metrics"
)

// NewMetricsClient returns a new instance of a metrics Client.
func NewMetricsClient(c Client, requestCount metrics.Counter, requestLatency metrics.Histogram) Client {
	return &metricsClient{c, requestCount, requestLatency}
}

type metricsClient struct {
	Client         Client
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
}

func (c *metricsClient) Authenticate(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		api.UpdateMetrics(c.requestCount, c.requestLatency, "Authenticate", begin)
	}(time.Now())

	return c.Client.Authenticate(ctx)
}

func (c *metricsClient) GetConfigurations(ctx context.Context) (configurations []*Configuration, err error) {
	defer func(begin time.Time) {
		api.UpdateMetrics(c.requestCount, c.requestLatency, "GetConfigurations", begin)
	}(time.Now())

	return c.Client.GetConfigurations(ctx)
}

func (c *metricsClient) GetLatestBuildStatus(ctx context.Context, configurationID string) (build *Build, err error) {
	defer func(begin time.Time) {
		api.UpdateMetrics(c.requestCount, c.requestLatency, "GetLatestBuildStatus", begin)
	}(time.Now())

	return c.Client.GetLatestBuildStatus(ctx, configurationID)
}

func (c *metricsClient) GetAgents(ctx context.Context) (agents []*Agent, err error) {
	defer func(begin time.Time) {
		api.UpdateMetrics(c.requestCount, c.requestLatency, "GetAgents", begin)
	}(time.Now())

	return c.Client.GetAgents(ctx)
}

func (c *metricsClient) GetBuildChanges(ctx context.Context, buildID string) (changes []*Change, err error) {
	defer func(begin time.Time) {
		api.UpdateMetrics(c.requestCount, c.requestLatency, "GetBuildChanges", begin)
	}(time.Now())

	return c.Client.GetBuildChanges(ctx, buildID)
}

func (c *metricsClient) TriggerBuild(ctx context.Context, configurationID string, variables map[string]string) (triggeredBuild *TriggeredBuild, err error) {
	defer func(begin time.Time) {
		api.UpdateMetrics(c.requestCount, c.requestLatency, "TriggerBuild", begin)
	}(time.Now())

	return c.Client.TriggerBuild(ctx, configurationID, variables)
}

func (c *metricsClient) Close() (err error) {
	return c.Client.Close()
}
