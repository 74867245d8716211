package changes

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/estafette/quickbuild-mcp-server/pkg/clients/quickbuildapi"
	"github.com/estafette/quickbuild-mcp-server/pkg/mcp"
	"github.com/rs/zerolog/log"
)

const (
	BuildChangesURITemplate = "changes://build/{build_id}"
	buildChangesURIPrefix   = "changes://build/"
)

var (
	// ErrMissingBuildID is reported for a changes uri without build id
	ErrMissingBuildID = errors.New("build_id is required")
)

// NewService returns the feature exposing scm changes of QuickBuild builds
func NewService(quickbuildapiClient quickbuildapi.Client) mcp.Feature {
	return &service{
		quickbuildapiClient: quickbuildapiClient,
	}
}

type service struct {
	quickbuildapiClient quickbuildapi.Client
}

type changeOutput struct {
	Revision  string   `json:"revision"`
	Author    string   `json:"author"`
	Message   string   `json:"message"`
	Timestamp string   `json:"timestamp"`
	Files     []string `json:"files"`
}

type buildChangesOutput struct {
	BuildID string         `json:"build_id"`
	Changes []changeOutput `json:"changes"`
	Count   int            `json:"count"`
}

func (s *service) Name() string {
	return "changes"
}

func (s *service) Tools() []mcp.Tool {
	return []mcp.Tool{}
}

func (s *service) Resources() []mcp.Resource {
	return []mcp.Resource{
		{
			URI:         BuildChangesURITemplate,
			Name:        "Build Changes",
			Description: "Get SCM changes for a specific build",
			MimeType:    "application/json",
		},
	}
}

func (s *service) HandleToolCall(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	return "", mcp.UnknownToolError(name)
}

func (s *service) HandleResourceRequest(ctx context.Context, uri string) (string, error) {
	if !strings.HasPrefix(uri, buildChangesURIPrefix) {
		return "", mcp.UnknownResourceError(uri)
	}

	return s.getBuildChanges(ctx, strings.TrimPrefix(uri, buildChangesURIPrefix)), nil
}

func (s *service) getBuildChanges(ctx context.Context, buildID string) string {

	if buildID == "" {
		return mcp.ErrorText(ErrMissingBuildID)
	}

	changes, err := s.quickbuildapiClient.GetBuildChanges(ctx, buildID)
	if err != nil {
		log.Error().Err(err).Msgf("Error getting changes for build %v", buildID)
		return mcp.ErrorText(err)
	}

	output := buildChangesOutput{
		BuildID: buildID,
		Changes: make([]changeOutput, 0, len(changes)),
	}
	for _, c := range changes {
		files := c.Files
		if files == nil {
			files = []string{}
		}
		output.Changes = append(output.Changes, changeOutput{
			Revision:  c.Revision,
			Author:    c.Author,
			Message:   c.Message,
			Timestamp: quickbuildapi.FormatTime(c.Timestamp),
			Files:     files,
		})
	}
	output.Count = len(output.Changes)

	log.Info().Msgf("Retrieved %v changes for build %v", output.Count, buildID)

	return mcp.JSONText(output)
}
