package api

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	crypt "github.com/estafette/estafette-ci-crypt"
	"github.com/stretchr/testify/assert"
)

const testSecretDecryptionKey = "SazbwMf3NZxVVbBqQHebPcXCqrVn3DDp"

func writeConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(content), 0600)
	assert.Nil(t, err)
	return path
}

func TestReadConfig(t *testing.T) {

	t.Run("ReturnsDefaultsWhenOnlyPasswordIsSetFromEnvvars", func(t *testing.T) {

		configReader := NewConfigReader(nil, []string{"QB_PASSWORD=s3cr3t"})

		// act
		config, err := configReader.ReadConfig("", false)

		assert.Nil(t, err)
		assert.Equal(t, "http://localhost:8810", config.QuickBuild.URL)
		assert.Equal(t, "admin", config.QuickBuild.User)
		assert.Equal(t, "s3cr3t", config.QuickBuild.Password)
		assert.Equal(t, 30*time.Second, config.QuickBuild.Timeout())
		assert.Equal(t, 10, config.QuickBuild.MaxConnections)
		assert.Equal(t, 5, config.QuickBuild.MaxIdleConnections)
		assert.Equal(t, 3, config.QuickBuild.MaxAttempts)
		assert.Equal(t, "quickbuild-mcp-server", config.MCPServer.Name)
		assert.Equal(t, 10, config.MCPServer.MaxConcurrentRequests)
	})

	t.Run("ReturnsErrMissingPasswordIfNoPasswordIsSet", func(t *testing.T) {

		configReader := NewConfigReader(nil, []string{"QB_URL=http://quickbuild:8810"})

		// act
		_, err := configReader.ReadConfig("", false)

		assert.Equal(t, ErrMissingPassword, err)
		assert.Equal(t, "QB_PASSWORD environment variable is required", err.Error())
	})

	t.Run("ReadsValuesFromConfigFile", func(t *testing.T) {

		path := writeConfigFile(t, `
quickbuild:
  url: https://quickbuild.example.com
  user: builder
  password: s3cr3t
  timeoutSeconds: 10
mcpServer:
  name: qb
  instructions: Use the tools to inspect builds.
`)
		configReader := NewConfigReader(nil, []string{})

		// act
		config, err := configReader.ReadConfig(path, false)

		assert.Nil(t, err)
		assert.Equal(t, "https://quickbuild.example.com", config.QuickBuild.URL)
		assert.Equal(t, "builder", config.QuickBuild.User)
		assert.Equal(t, "s3cr3t", config.QuickBuild.Password)
		assert.Equal(t, 10*time.Second, config.QuickBuild.Timeout())
		assert.Equal(t, "qb", config.MCPServer.Name)
		assert.Equal(t, "Use the tools to inspect builds.", config.MCPServer.Instructions)
	})

	t.Run("EnvvarsOverrideConfigFileValues", func(t *testing.T) {

		path := writeConfigFile(t, `
quickbuild:
  url: https://quickbuild.example.com
  user: builder
  password: s3cr3t
`)
		configReader := NewConfigReader(nil, []string{"QB_USER=other", "QB_URL=http://localhost:9999"})

		// act
		config, err := configReader.ReadConfig(path, false)

		assert.Nil(t, err)
		assert.Equal(t, "http://localhost:9999", config.QuickBuild.URL)
		assert.Equal(t, "other", config.QuickBuild.User)
		assert.Equal(t, "s3cr3t", config.QuickBuild.Password)
	})

	t.Run("DecryptsSecretEnvelopes", func(t *testing.T) {

		secretHelper := crypt.NewSecretHelper(testSecretDecryptionKey, false)
		envelope, err := secretHelper.EncryptEnvelope("s3cr3t", crypt.DefaultPipelineAllowList)
		assert.Nil(t, err)

		configReader := NewConfigReader(secretHelper, []string{"QB_PASSWORD=" + envelope})

		// act
		config, err := configReader.ReadConfig("", true)

		assert.Nil(t, err)
		assert.Equal(t, "s3cr3t", config.QuickBuild.Password)
	})

	t.Run("ReturnsErrorIfConfigFileDoesNotExist", func(t *testing.T) {

		configReader := NewConfigReader(nil, []string{"QB_PASSWORD=s3cr3t"})

		// act
		_, err := configReader.ReadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false)

		assert.NotNil(t, err)
	})

	t.Run("ReturnsErrorIfUrlIsNotAbsolute", func(t *testing.T) {

		configReader := NewConfigReader(nil, []string{"QB_PASSWORD=s3cr3t", "QB_URL=quickbuild:8810/path"})

		// act
		_, err := configReader.ReadConfig("", false)

		assert.NotNil(t, err)
	})
}

func TestQuickBuildConfigValidate(t *testing.T) {

	t.Run("ReturnsErrorIfMoreIdleConnectionsThanConnections", func(t *testing.T) {

		config := &QuickBuildConfig{Password: "s3cr3t", MaxConnections: 2, MaxIdleConnections: 4}
		config.SetDefaults()

		// act
		err := config.Validate()

		assert.NotNil(t, err)
	})

	t.Run("ReturnsNilForDefaultsWithPassword", func(t *testing.T) {

		config := &QuickBuildConfig{Password: "s3cr3t"}
		config.SetDefaults()

		// act
		err := config.Validate()

		assert.Nil(t, err)
	})
}
