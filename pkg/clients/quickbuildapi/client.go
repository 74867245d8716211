package quickbuildapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/estafette/quickbuild-mcp-server/pkg/api"
	"github.com/opentracing-contrib/go-stdlib/nethttp"
	"github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog/log"
	"github.com/sethgrid/pester"
	"golang.org/x/net/publicsuffix"
)

// Client is the interface for communicating with the QuickBuild rest api
//
//go:generate mockgen -package=quickbuildapi -destination ./mock.go -source=client.go
type Client interface {
	Authenticate(ctx context.Context) (err error)
	GetConfigurations(ctx context.Context) (configurations []*Configuration, err error)
	GetLatestBuildStatus(ctx context.Context, configurationID string) (build *Build, err error)
	GetAgents(ctx context.Context) (agents []*Agent, err error)
	GetBuildChanges(ctx context.Context, buildID string) (changes []*Change, err error)
	TriggerBuild(ctx context.Context, configurationID string, variables map[string]string) (triggeredBuild *TriggeredBuild, err error)
	Close() (err error)
}

// Option customizes a client created with NewClient
type Option func(*client)

// WithBackoffUnit sets the base duration of the exponential backoff between attempts
func WithBackoffUnit(unit time.Duration) Option {
	return func(c *client) {
		c.backoffUnit = unit
	}
}

// WithNow sets the clock used for records without a timestamp
func WithNow(now func() time.Time) Option {
	return func(c *client) {
		c.now = now
	}
}

// NewClient creates a quickbuildapi.Client to communicate with the QuickBuild rest api
func NewClient(config *api.QuickBuildConfig, opts ...Option) Client {

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     config.MaxConnections,
		MaxIdleConns:        config.MaxIdleConnections,
		MaxIdleConnsPerHost: config.MaxIdleConnections,
		IdleConnTimeout:     90 * time.Second,
	}

	// holds the session cookie handed out on authentication; cookiejar.New never fails
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	// pester makes a single attempt, retries are handled by request
	httpClient := pester.NewExtendedClient(&http.Client{
		Transport: &nethttp.Transport{RoundTripper: transport},
		Jar:       jar,
		Timeout:   config.Timeout(),
	})
	httpClient.MaxRetries = 1
	httpClient.Backoff = pester.ExponentialJitterBackoff

	c := &client{
		baseURL:     strings.TrimRight(config.URL, "/"),
		username:    config.User,
		password:    config.Password,
		maxAttempts: config.MaxAttempts,
		httpClient:  httpClient,
		transport:   transport,
		backoffUnit: time.Second,
		now:         time.Now,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 3
	}
	c.sleep = c.sleepContext

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type client struct {
	baseURL     string
	username    string
	password    string
	maxAttempts int

	authenticated atomic.Bool

	httpClient  *pester.Client
	transport   *http.Transport
	backoffUnit time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func (c *client) Authenticate(ctx context.Context) (err error) {

	statusCode, _, err := c.do(ctx, http.MethodPost, c.endpointURL("authentication", nil), authenticationRequest{Username: c.username, Password: c.password})
	if err != nil {
		if isConnectionError(err) {
			log.Error().Err(err).Msg("Connection error during authentication with QuickBuild")
			return wrapError(ServiceUnavailable, CodeUnavailable, err, defaultUnavailableMessage)
		}
		log.Error().Err(err).Msg("Unexpected error during authentication with QuickBuild")
		return wrapError(GenericAPIError, CodeAuthenticationError, err, "Authentication error: %v", err)
	}

	if statusCode != http.StatusOK {
		log.Error().Int("statusCode", statusCode).Msg("Authentication with QuickBuild failed")
		authErr := newError(AuthenticationFailed, errorCodeForStatus(statusCode), "Failed to authenticate with QuickBuild")
		authErr.Details = map[string]interface{}{"status_code": statusCode}
		return authErr
	}

	c.authenticated.Store(true)
	log.Info().Msg("Successfully authenticated with QuickBuild")

	return nil
}

func (c *client) ensureAuthenticated(ctx context.Context) error {
	if c.authenticated.Load() {
		return nil
	}
	return c.Authenticate(ctx)
}

func (c *client) GetConfigurations(ctx context.Context) (configurations []*Configuration, err error) {

	body, err := c.get(ctx, "configurations", nil)
	if err != nil {
		log.Error().Err(err).Msg("Error retrieving configurations")
		return nil, err
	}

	objects, err := decodeList(body)
	if err != nil {
		log.Error().Err(err).Msg("Error retrieving configurations")
		return nil, err
	}

	configurations = make([]*Configuration, 0, len(objects))
	for _, o := range objects {
		configurations = append(configurations, toConfiguration(o))
	}

	log.Info().Msgf("Retrieved %v configurations", len(configurations))

	return configurations, nil
}

func (c *client) GetLatestBuildStatus(ctx context.Context, configurationID string) (build *Build, err error) {

	query := url.Values{}
	query.Set("configuration", configurationID)
	query.Set("count", "1")

	body, err := c.get(ctx, "builds", query)
	if err != nil {
		log.Error().Err(err).Msgf("Error retrieving build status for configuration %v", configurationID)
		return nil, err
	}

	objects, err := decodeList(body)
	if err != nil {
		log.Error().Err(err).Msgf("Error retrieving build status for configuration %v", configurationID)
		return nil, err
	}

	// an empty list or empty object means the configuration has no builds yet
	if len(objects) == 0 || (len(objects) == 1 && len(objects[0]) == 0 && isObject(body)) {
		return nil, nil
	}

	build, err = toBuild(objects[0], configurationID, c.now)
	if err != nil {
		log.Error().Err(err).Msgf("Error retrieving build status for configuration %v", configurationID)
		return nil, err
	}

	return build, nil
}

func (c *client) GetAgents(ctx context.Context) (agents []*Agent, err error) {

	body, err := c.get(ctx, "agents", nil)
	if err != nil {
		log.Error().Err(err).Msg("Error retrieving agents")
		return nil, err
	}

	objects, err := decodeList(body)
	if err != nil {
		log.Error().Err(err).Msg("Error retrieving agents")
		return nil, err
	}

	agents = make([]*Agent, 0, len(objects))
	for _, o := range objects {
		agent, err := toAgent(o, c.now)
		if err != nil {
			log.Error().Err(err).Msg("Error retrieving agents")
			return nil, err
		}
		agents = append(agents, agent)
	}

	log.Info().Msgf("Retrieved %v agents", len(agents))

	return agents, nil
}

func (c *client) GetBuildChanges(ctx context.Context, buildID string) (changes []*Change, err error) {

	body, err := c.get(ctx, fmt.Sprintf("builds/%v/changes", url.PathEscape(buildID)), nil)
	if err != nil {
		log.Error().Err(err).Msgf("Error retrieving changes for build %v", buildID)
		return nil, err
	}

	objects, err := decodeList(body)
	if err != nil {
		log.Error().Err(err).Msgf("Error retrieving changes for build %v", buildID)
		return nil, err
	}

	changes = make([]*Change, 0, len(objects))
	for _, o := range objects {
		change, err := toChange(o, c.now)
		if err != nil {
			log.Error().Err(err).Msgf("Error retrieving changes for build %v", buildID)
			return nil, err
		}
		changes = append(changes, change)
	}

	log.Info().Msgf("Retrieved %v changes for build %v", len(changes), buildID)

	return changes, nil
}

func (c *client) TriggerBuild(ctx context.Context, configurationID string, variables map[string]string) (triggeredBuild *TriggeredBuild, err error) {

	payload := triggerBuildRequest{
		ConfigurationID: configurationID,
	}
	if len(variables) > 0 {
		payload.Variables = variables
	}

	body, err := c.post(ctx, "builds", payload)
	if err != nil {
		log.Error().Err(err).Msgf("Error triggering build for configuration %v", configurationID)
		return nil, err
	}

	buildID, status := parseTriggerResponse(body)

	triggeredBuild = &TriggeredBuild{
		BuildID:         buildID,
		ConfigurationID: configurationID,
		Status:          status,
		Message:         fmt.Sprintf("Build triggered successfully for configuration %v", configurationID),
	}
	if len(variables) > 0 {
		triggeredBuild.Variables = variables
	}

	log.Info().Msgf("Triggered build %v for configuration %v", buildID, configurationID)

	return triggeredBuild, nil
}

func (c *client) Close() (err error) {
	c.transport.CloseIdleConnections()
	return nil
}

func (c *client) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	return c.request(ctx, http.MethodGet, endpoint, query, nil)
}

func (c *client) post(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	return c.request(ctx, http.MethodPost, endpoint, nil, payload)
}

// request performs an authenticated call with at most maxAttempts attempts; a 401 re-authenticates, 5xx and connection failures back off exponentially
func (c *client) request(ctx context.Context, method, endpoint string, query url.Values, payload interface{}) ([]byte, error) {

	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	requestURL := c.endpointURL(endpoint, query)

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		lastAttempt := attempt == c.maxAttempts-1

		statusCode, body, err := c.do(ctx, method, requestURL, payload)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, wrapError(GenericAPIError, CodeRequestCancelled, ctxErr, "Request to QuickBuild cancelled: %v", ctxErr)
			}
			if !isConnectionError(err) {
				return nil, wrapError(GenericAPIError, CodeRequestFailed, err, "Request to QuickBuild failed: %v", err)
			}
			if lastAttempt {
				return nil, wrapError(ServiceUnavailable, CodeUnavailable, err, defaultUnavailableMessage)
			}
			log.Warn().Err(err).Msgf("Cannot connect to QuickBuild for %v %v, retrying", method, endpoint)
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case statusCode == http.StatusUnauthorized:
			log.Debug().Msgf("QuickBuild session expired for %v %v, re-authenticating", method, endpoint)
			c.authenticated.Store(false)
			if err := c.Authenticate(ctx); err != nil {
				return nil, err
			}
			continue

		case statusCode == http.StatusNotFound:
			return nil, newError(ResourceNotFound, CodeResourceNotFound, fmt.Sprintf("Resource not found: %v", endpoint))

		case statusCode >= 500:
			if lastAttempt {
				return nil, newError(ServerError, CodeServerError, fmt.Sprintf("QuickBuild server error: %v", statusCode))
			}
			log.Warn().Int("statusCode", statusCode).Msgf("QuickBuild server error for %v %v, retrying", method, endpoint)
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue

		case statusCode >= 400:
			apiErr := newError(GenericAPIError, errorCodeForStatus(statusCode), fmt.Sprintf("API error: %v - %v", statusCode, string(body)))
			apiErr.Details = map[string]interface{}{"status_code": statusCode, "body": string(body)}
			return nil, apiErr
		}

		return body, nil
	}

	return nil, newError(GenericAPIError, CodeMaxRetriesExceeded, "Max retries exceeded")
}

// do executes a single http call and returns the status code and full response body
func (c *client) do(ctx context.Context, method, requestURL string, payload interface{}) (statusCode int, body []byte, err error) {

	var requestBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		requestBody = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, requestBody)
	if err != nil {
		return
	}

	span := opentracing.SpanFromContext(ctx)
	var ht *nethttp.Tracer
	if span != nil {
		// collect additional information on setting up connections
		request, ht = nethttp.TraceRequest(span.Tracer(), request)
	}

	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return
	}
	defer response.Body.Close()
	if ht != nil {
		ht.Finish()
	}

	body, err = io.ReadAll(response.Body)
	if err != nil {
		return
	}

	return response.StatusCode, body, nil
}

func (c *client) endpointURL(endpoint string, query url.Values) string {
	u := c.baseURL + "/rest/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *client) backoff(ctx context.Context, attempt int) error {
	return c.sleep(ctx, time.Duration(1<<uint(attempt))*c.backoffUnit)
}

func (c *client) sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return wrapError(GenericAPIError, CodeRequestCancelled, ctx.Err(), "Request to QuickBuild cancelled: %v", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// isConnectionError reports whether err means the server could not be reached at all
func isConnectionError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isObject(body []byte) bool {
	body = bytes.TrimSpace(body)
	return len(body) > 0 && body[0] == '{'
}

// parseTriggerResponse reads the build id and status from the response to a build request; the id can come back as a bare value
func parseTriggerResponse(body []byte) (buildID, status string) {
	status = "QUEUED"

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", status
	}

	if isObject(body) {
		var o wireObject
		if err := json.Unmarshal(body, &o); err == nil {
			return o.textField("id", ""), o.textField("status", status)
		}
	}

	var bare interface{}
	if err := json.Unmarshal(body, &bare); err == nil {
		switch v := bare.(type) {
		case string:
			return v, status
		case float64:
			return string(body), status
		}
	}

	return "", status
}
