package builds

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/estafette/quickbuild-mcp-server/pkg/clients/quickbuildapi"
	"github.com/estafette/quickbuild-mcp-server/pkg/mcp"
	"github.com/rs/zerolog/log"
)

const (
	GetLatestStatusTool = "builds.get_latest_status"
	TriggerTool         = "builds.trigger"
)

var (
	// ErrMissingConfigurationID is reported when a tool is called without configuration_id
	ErrMissingConfigurationID = errors.New("configuration_id is required")
)

// NewService returns the feature for inspecting and triggering QuickBuild builds
func NewService(quickbuildapiClient quickbuildapi.Client) mcp.Feature {
	return &service{
		quickbuildapiClient: quickbuildapiClient,
	}
}

type service struct {
	quickbuildapiClient quickbuildapi.Client
}

type latestStatusOutput struct {
	ConfigurationID string  `json:"configuration_id"`
	BuildID         string  `json:"build_id"`
	Version         string  `json:"version"`
	Status          string  `json:"status"`
	StartTime       string  `json:"start_time"`
	EndTime         *string `json:"end_time"`
	Success         bool    `json:"success"`
}

type noBuildOutput struct {
	ConfigurationID string `json:"configuration_id"`
	Message         string `json:"message"`
}

func (s *service) Name() string {
	return "builds"
}

func (s *service) Tools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        GetLatestStatusTool,
			Description: "Get the status of the latest build for a configuration",
			InputSchema: &mcp.InputSchema{
				Type: "object",
				Properties: map[string]*mcp.PropertySchema{
					"configuration_id": {Type: "string", Description: "The ID of the build configuration"},
				},
				Required: []string{"configuration_id"},
			},
		},
		{
			Name:        TriggerTool,
			Description: "Trigger a new build for a configuration",
			InputSchema: &mcp.InputSchema{
				Type: "object",
				Properties: map[string]*mcp.PropertySchema{
					"configuration_id": {Type: "string", Description: "The ID of the build configuration to trigger"},
					"variables": {
						Type:                 "object",
						Description:          "Optional build variables as key-value pairs",
						AdditionalProperties: &mcp.PropertySchema{Type: "string"},
					},
				},
				Required: []string{"configuration_id"},
			},
		},
	}
}

func (s *service) Resources() []mcp.Resource {
	return []mcp.Resource{}
}

func (s *service) HandleToolCall(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	switch name {
	case GetLatestStatusTool:
		return s.getLatestStatus(ctx, arguments), nil
	case TriggerTool:
		return s.trigger(ctx, arguments), nil
	}

	return "", mcp.UnknownToolError(name)
}

func (s *service) HandleResourceRequest(ctx context.Context, uri string) (string, error) {
	return "", mcp.UnknownResourceError(uri)
}

func (s *service) getLatestStatus(ctx context.Context, arguments json.RawMessage) string {

	args, err := mcp.ParseArguments(arguments)
	if err != nil {
		return mcp.ErrorText(err)
	}
	configurationID := args.String("configuration_id")
	if configurationID == "" {
		return mcp.ErrorText(ErrMissingConfigurationID)
	}

	build, err := s.quickbuildapiClient.GetLatestBuildStatus(ctx, configurationID)
	if err != nil {
		log.Error().Err(err).Msgf("Error getting build status for configuration %v", configurationID)
		return mcp.ErrorText(err)
	}

	log.Info().Msgf("Retrieved build status for configuration %v", configurationID)

	if build == nil {
		return mcp.JSONText(noBuildOutput{
			ConfigurationID: configurationID,
			Message:         "No builds found for this configuration",
		})
	}

	output := latestStatusOutput{
		ConfigurationID: configurationID,
		BuildID:         build.ID,
		Version:         build.Version,
		Status:          build.Status,
		StartTime:       quickbuildapi.FormatTime(build.StartTime),
		Success:         build.Success,
	}
	if build.EndTime != nil {
		endTime := quickbuildapi.FormatTime(*build.EndTime)
		output.EndTime = &endTime
	}

	return mcp.JSONText(output)
}

func (s *service) trigger(ctx context.Context, arguments json.RawMessage) string {

	args, err := mcp.ParseArguments(arguments)
	if err != nil {
		return mcp.ErrorText(err)
	}
	configurationID := args.String("configuration_id")
	if configurationID == "" {
		return mcp.ErrorText(ErrMissingConfigurationID)
	}
	variables, err := args.StringMap("variables")
	if err != nil {
		return mcp.ErrorText(err)
	}

	triggeredBuild, err := s.quickbuildapiClient.TriggerBuild(ctx, configurationID, variables)
	if err != nil {
		log.Error().Err(err).Msgf("Error triggering build for configuration %v", configurationID)
		return mcp.ErrorText(err)
	}

	log.Info().Msgf("Triggered build for configuration %v", configurationID)

	return mcp.JSONText(triggeredBuild)
}
