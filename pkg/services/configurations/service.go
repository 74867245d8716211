package configurations

import (
	"context"
	"encoding/json"

	"github.com/estafette/quickbuild-mcp-server/pkg/clients/quickbuildapi"
	"github.com/estafette/quickbuild-mcp-server/pkg/mcp"
	"github.com/rs/zerolog/log"
)

const (
	ListURI = "configurations://list"
)

// NewService returns the feature exposing the QuickBuild build configurations
func NewService(quickbuildapiClient quickbuildapi.Client) mcp.Feature {
	return &service{
		quickbuildapiClient: quickbuildapiClient,
	}
}

type service struct {
	quickbuildapiClient quickbuildapi.Client
}

type configurationOutput struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ParentID    *string `json:"parent_id"`
	Enabled     bool    `json:"enabled"`
}

type listOutput struct {
	Configurations []configurationOutput `json:"configurations"`
	Count          int                   `json:"count"`
}

func (s *service) Name() string {
	return "configurations"
}

func (s *service) Tools() []mcp.Tool {
	return []mcp.Tool{}
}

func (s *service) Resources() []mcp.Resource {
	return []mcp.Resource{
		{
			URI:         ListURI,
			Name:        "Build Configurations",
			Description: "List all available build configurations in QuickBuild",
			MimeType:    "application/json",
		},
	}
}

func (s *service) HandleToolCall(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	return "", mcp.UnknownToolError(name)
}

func (s *service) HandleResourceRequest(ctx context.Context, uri string) (string, error) {
	if uri != ListURI {
		return "", mcp.UnknownResourceError(uri)
	}

	return s.listConfigurations(ctx), nil
}

func (s *service) listConfigurations(ctx context.Context) string {

	configurations, err := s.quickbuildapiClient.GetConfigurations(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Error listing configurations")
		return mcp.ErrorText(err)
	}

	output := listOutput{
		Configurations: make([]configurationOutput, 0, len(configurations)),
	}
	for _, c := range configurations {
		output.Configurations = append(output.Configurations, configurationOutput{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			ParentID:    c.ParentID,
			Enabled:     c.Enabled,
		})
	}
	output.Count = len(output.Configurations)

	log.Info().Msgf("Listed %v configurations", output.Count)

	return mcp.JSONText(output)
}
