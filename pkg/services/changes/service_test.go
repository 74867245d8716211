package changes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/estafette/quickbuild-mcp-server/pkg/clients/quickbuildapi"
	"github.com/estafette/quickbuild-mcp-server/pkg/mcp"
	gomock "github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
)

func TestHandleResourceRequest(t *testing.T) {

	t.Run("ReturnsChangesForBuildIDFromUri", func(t *testing.T) {

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		quickbuildapiClient := quickbuildapi.NewMockClient(ctrl)
		quickbuildapiClient.
			EXPECT().
			GetBuildChanges(gomock.Any(), "123").
			Return([]*quickbuildapi.Change{
				{Revision: "abc123", Author: "dev", Message: "Fix build", Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), Files: []string{"main.go"}},
				{Revision: "def456", Author: "dev", Message: "Docs", Timestamp: time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)},
			}, nil).
			Times(1)

		service := NewService(quickbuildapiClient)

		// act
		text, err := service.HandleResourceRequest(context.Background(), "changes://build/123")

		assert.Nil(t, err)
		assert.JSONEq(t, `{
			"build_id": "123",
			"changes": [
				{"revision": "abc123", "author": "dev", "message": "Fix build", "timestamp": "2024-01-15T10:30:00+00:00", "files": ["main.go"]},
				{"revision": "def456", "author": "dev", "message": "Docs", "timestamp": "2024-01-15T11:00:00+00:00", "files": []}
			],
			"count": 2
		}`, text)
	})

	t.Run("ReturnsErrorObjectIfBuildIDIsEmpty", func(t *testing.T) {

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		service := NewService(quickbuildapi.NewMockClient(ctrl))

		// act
		text, err := service.HandleResourceRequest(context.Background(), "changes://build/")

		assert.Nil(t, err)
		assert.JSONEq(t, `{"error": "build_id is required"}`, text)
	})

	t.Run("ReturnsErrorObjectIfBuildIsNotFound", func(t *testing.T) {

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		quickbuildapiClient := quickbuildapi.NewMockClient(ctrl)
		quickbuildapiClient.
			EXPECT().
			GetBuildChanges(gomock.Any(), "999").
			Return(nil, quickbuildapi.ErrResourceNotFound).
			Times(1)

		service := NewService(quickbuildapiClient)

		// act
		text, err := service.HandleResourceRequest(context.Background(), "changes://build/999")

		assert.Nil(t, err)
		assert.Contains(t, text, `"error"`)
	})

	t.Run("ReturnsErrUnknownResourceForOtherUri", func(t *testing.T) {

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		service := NewService(quickbuildapi.NewMockClient(ctrl))

		// act
		_, err := service.HandleResourceRequest(context.Background(), "configurations://list")

		assert.True(t, errors.Is(err, mcp.ErrUnknownResource))
	})

	t.Run("AdvertisesTemplateResource", func(t *testing.T) {

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		service := NewService(quickbuildapi.NewMockClient(ctrl))

		// act
		resources := service.Resources()

		if assert.Equal(t, 1, len(resources)) {
			assert.Equal(t, "changes://build/{build_id}", resources[0].URI)
			assert.True(t, resources[0].IsTemplate())
		}
	})
}
