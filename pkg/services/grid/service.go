package grid

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/estafette/quickbuild-mcp-server/pkg/clients/quickbuildapi"
	"github.com/estafette/quickbuild-mcp-server/pkg/mcp"
	"github.com/rs/zerolog/log"
)

const (
	ListAgentsTool = "grid.list_agents"
)

// NewService returns the feature exposing the QuickBuild grid of build agents
func NewService(quickbuildapiClient quickbuildapi.Client) mcp.Feature {
	return &service{
		quickbuildapiClient: quickbuildapiClient,
	}
}

type service struct {
	quickbuildapiClient quickbuildapi.Client
}

type agentOutput struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LastContact string `json:"last_contact"`
	IPAddress   string `json:"ip_address"`
	Port        int    `json:"port"`
}

type listAgentsOutput struct {
	Agents       []agentOutput `json:"agents"`
	Count        int           `json:"count"`
	OnlineCount  int           `json:"online_count"`
	OfflineCount int           `json:"offline_count"`
}

func (s *service) Name() string {
	return "grid"
}

func (s *service) Tools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        ListAgentsTool,
			Description: "List all build agents and their connection status",
			InputSchema: &mcp.InputSchema{
				Type:       "object",
				Properties: map[string]*mcp.PropertySchema{},
			},
		},
	}
}

func (s *service) Resources() []mcp.Resource {
	return []mcp.Resource{}
}

func (s *service) HandleToolCall(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	if name != ListAgentsTool {
		return "", mcp.UnknownToolError(name)
	}

	return s.listAgents(ctx), nil
}

func (s *service) HandleResourceRequest(ctx context.Context, uri string) (string, error) {
	return "", mcp.UnknownResourceError(uri)
}

func (s *service) listAgents(ctx context.Context) string {

	agents, err := s.quickbuildapiClient.GetAgents(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Error listing agents")
		return mcp.ErrorText(err)
	}

	output := listAgentsOutput{
		Agents: make([]agentOutput, 0, len(agents)),
	}
	for _, a := range agents {
		output.Agents = append(output.Agents, agentOutput{
			Name:        a.Name,
			Status:      a.Status,
			LastContact: quickbuildapi.FormatTime(a.LastContact),
			IPAddress:   a.IPAddress,
			Port:        a.Port,
		})

		switch strings.ToLower(a.Status) {
		case "online":
			output.OnlineCount++
		case "offline":
			output.OfflineCount++
		}
	}
	output.Count = len(output.Agents)

	log.Info().Msgf("Listed %v agents", output.Count)

	return mcp.JSONText(output)
}
