package api

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	// ErrMissingPassword is returned when no password for the QuickBuild server is configured
	ErrMissingPassword = errors.New("QB_PASSWORD environment variable is required")
)

// APIConfig represent the configuration for the entire mcp server application
type APIConfig struct {
	QuickBuild *QuickBuildConfig `yaml:"quickbuild,omitempty"`
	MCPServer  *MCPServerConfig  `yaml:"mcpServer,omitempty"`
}

func (c *APIConfig) SetDefaults() {
	if c.QuickBuild == nil {
		c.QuickBuild = &QuickBuildConfig{}
	}
	c.QuickBuild.SetDefaults()

	if c.MCPServer == nil {
		c.MCPServer = &MCPServerConfig{}
	}
	c.MCPServer.SetDefaults()
}

func (c *APIConfig) Validate() (err error) {
	if c.QuickBuild == nil {
		return ErrMissingPassword
	}
	err = c.QuickBuild.Validate()
	if err != nil {
		return
	}

	if c.MCPServer != nil {
		err = c.MCPServer.Validate()
		if err != nil {
			return
		}
	}

	return nil
}

// QuickBuildConfig holds the connection settings for the QuickBuild server; every field can be overridden with a QB_ prefixed envvar
type QuickBuildConfig struct {
	URL                string `yaml:"url" env:"URL"`
	User               string `yaml:"user" env:"USER"`
	Password           string `yaml:"password" env:"PASSWORD"`
	TimeoutSeconds     int    `yaml:"timeoutSeconds" env:"TIMEOUT_SECONDS"`
	MaxConnections     int    `yaml:"maxConnections" env:"MAX_CONNECTIONS"`
	MaxIdleConnections int    `yaml:"maxIdleConnections" env:"MAX_IDLE_CONNECTIONS"`
	MaxAttempts        int    `yaml:"maxAttempts" env:"MAX_ATTEMPTS"`
}

func (c *QuickBuildConfig) SetDefaults() {
	if c.URL == "" {
		c.URL = "http://localhost:8810"
	}
	if c.User == "" {
		c.User = "admin"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 10
	}
	if c.MaxIdleConnections <= 0 {
		c.MaxIdleConnections = 5
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
}

func (c *QuickBuildConfig) Validate() (err error) {
	if c.Password == "" {
		return ErrMissingPassword
	}
	if c.URL == "" {
		return errors.New("Configuration item 'quickbuild.url' is required; please set it to the base url of your QuickBuild server")
	}
	if u, parseErr := url.Parse(c.URL); parseErr != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("Configuration item 'quickbuild.url' with value %v is not a valid absolute url", c.URL)
	}
	if c.MaxIdleConnections > c.MaxConnections {
		return fmt.Errorf("Configuration item 'quickbuild.maxIdleConnections' (%v) cannot be larger than 'quickbuild.maxConnections' (%v)", c.MaxIdleConnections, c.MaxConnections)
	}

	return nil
}

// Timeout returns the per-request timeout as a duration
func (c *QuickBuildConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MCPServerConfig configures how the mcp server identifies itself to clients
type MCPServerConfig struct {
	Name                  string `yaml:"name"`
	Instructions          string `yaml:"instructions"`
	MaxConcurrentRequests int    `yaml:"maxConcurrentRequests"`
}

func (c *MCPServerConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "quickbuild-mcp-server"
	}
	if c.MaxConcurrentRequests <= 0 {
		c.MaxConcurrentRequests = 10
	}
}

func (c *MCPServerConfig) Validate() (err error) {
	if c.Name == "" {
		return errors.New("Configuration item 'mcpServer.name' is required")
	}

	return nil
}
