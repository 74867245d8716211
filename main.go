package main

import (
	"context"
	"io"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin"
	"github.com/estafette/quickbuild-mcp-server/pkg/api"
	"github.com/estafette/quickbuild-mcp-server/pkg/clients/quickbuildapi"
	"github.com/estafette/quickbuild-mcp-server/pkg/mcp"
	"github.com/estafette/quickbuild-mcp-server/pkg/services/builds"
	"github.com/estafette/quickbuild-mcp-server/pkg/services/changes"
	"github.com/estafette/quickbuild-mcp-server/pkg/services/configurations"
	"github.com/estafette/quickbuild-mcp-server/pkg/services/grid"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	jprom "github.com/uber/jaeger-lib/metrics/prometheus"

	crypt "github.com/estafette/estafette-ci-crypt"
)

const (
	app = "quickbuild-mcp-server"

	transportStdio = "stdio"
	transportHTTP  = "http"
)

var (
	version   string
	branch    string
	revision  string
	buildDate string
	goVersion = runtime.Version()
)

var (
	// flags
	configFilePath      = kingpin.Flag("config-file-path", "The path to the yaml config file configuring this application.").Envar("CONFIG_FILE_PATH").String()
	secretDecryptionKey = kingpin.Flag("secret-decryption-key", "The AES-256 key used to decrypt secrets that have been encrypted with it.").Envar("SECRET_DECRYPTION_KEY").String()

	transport  = kingpin.Flag("transport", "The transport to serve mcp requests over, stdio or http.").Envar("MCP_TRANSPORT").Default(transportStdio).Enum(transportStdio, transportHTTP)
	apiAddress = kingpin.Flag("api-listen-address", "The address to listen on for mcp HTTP requests.").Envar("API_LISTEN_ADDRESS").Default(":5000").String()

	prometheusMetricsAddress = kingpin.Flag("metrics-listen-address", "The address to listen on for Prometheus metrics requests, empty to disable.").Envar("METRICS_LISTEN_ADDRESS").Default(":9001").String()
	prometheusMetricsPath    = kingpin.Flag("metrics-path", "The path to listen for Prometheus metrics requests.").Envar("METRICS_PATH").Default("/metrics").String()

	logLevel       = kingpin.Flag("log-level", "The minimum level of logs to write.").Envar("LOG_LEVEL").Default("info").String()
	tracingEnabled = kingpin.Flag("tracing-enabled", "Send traces to a Jaeger agent configured through JAEGER_ envvars.").Envar("TRACING_ENABLED").Bool()
)

func main() {

	// parse command line parameters
	kingpin.Parse()

	// configure json logging
	initLogging()

	if err := start(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped with an error")
	}

	log.Info().Msg("Server gracefully stopped")
}

// start sets up tracing, metrics, configuration and the QuickBuild client and serves until a signal arrives; everything it opens is closed before it returns
func start() (err error) {

	// configure opentracing
	closer, err := initTracing()
	if err != nil {
		return err
	}
	defer closer.Close()

	// cancel on SIGTERM or SIGINT to gracefully shutdown the application
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// start prometheus
	go func() {
		if err := startPrometheus(*prometheusMetricsAddress, *prometheusMetricsPath); err != nil {
			log.Warn().Err(err).Msg("Serving Prometheus metrics failed, continuing without metrics endpoint")
		}
	}()

	configReader := api.NewConfigReader(crypt.NewSecretHelper(*secretDecryptionKey, false), os.Environ())
	config, err := configReader.ReadConfig(*configFilePath, *secretDecryptionKey != "")
	if err != nil {
		return errors.Wrap(err, "Failed reading configuration")
	}

	quickbuildapiClient := getClient(config)
	defer func() {
		if err := quickbuildapiClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed closing QuickBuild client")
		}
	}()

	serve := serveStdio
	if *transport == transportHTTP {
		serve = serveHTTP
	}

	return run(ctx, config, quickbuildapiClient, serve)
}

// run verifies the connection to QuickBuild and only then serves mcp requests
func run(ctx context.Context, config *api.APIConfig, quickbuildapiClient quickbuildapi.Client, serve func(ctx context.Context, mcpServer *mcp.Server) error) error {

	if err := verifyConnection(ctx, config, quickbuildapiClient); err != nil {
		return err
	}

	return serve(ctx, getServer(config, quickbuildapiClient))
}

// verifyConnection authenticates once to check the QuickBuild server is reachable with the configured credentials
func verifyConnection(ctx context.Context, config *api.APIConfig, quickbuildapiClient quickbuildapi.Client) error {

	if err := quickbuildapiClient.Authenticate(ctx); err != nil {
		return errors.Wrapf(err, "Failed authenticating with QuickBuild server %v", config.QuickBuild.URL)
	}

	log.Info().Str("url", config.QuickBuild.URL).Str("user", config.QuickBuild.User).Msg("Authenticated with QuickBuild server")

	return nil
}

// startPrometheus serves metrics until the listener fails; an empty address disables it
func startPrometheus(address, path string) error {
	if address == "" {
		log.Info().Msg("No metrics listen address set, not serving Prometheus metrics")
		return nil
	}

	log.Debug().
		Str("port", address).
		Str("path", path).
		Msg("Serving Prometheus metrics...")

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	return http.ListenAndServe(address, mux)
}

func initLogging() {

	// log as severity for stackdriver logging to recognize the level
	zerolog.LevelFieldName = "severity"

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// stdout carries the mcp stream, so logs go to stderr
	log.Logger = zerolog.New(os.Stderr).With().
		Timestamp().
		Str("app", app).
		Str("version", version).
		Logger()

	// use zerolog for any logs sent via standard log library
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)

	// log startup message
	log.Info().
		Str("branch", branch).
		Str("revision", revision).
		Str("buildDate", buildDate).
		Str("goVersion", goVersion).
		Str("transport", *transport).
		Msgf("Starting %v...", app)
}

func initTracing() (io.Closer, error) {

	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		return nil, errors.Wrap(err, "Generating Jaeger config from environment variables failed")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = app
	}
	cfg.Disabled = !*tracingEnabled

	closer, err := cfg.InitGlobalTracer(cfg.ServiceName, jaegercfg.Metrics(jprom.New()))
	if err != nil {
		return nil, errors.Wrap(err, "Initializing Jaeger tracer failed")
	}

	return closer, nil
}

func getClient(config *api.APIConfig) quickbuildapi.Client {

	quickbuildapiClient := quickbuildapi.NewClient(config.QuickBuild)
	quickbuildapiClient = quickbuildapi.NewTracingClient(quickbuildapiClient)
	quickbuildapiClient = quickbuildapi.NewLoggingClient(quickbuildapiClient)
	quickbuildapiClient = quickbuildapi.NewMetricsClient(quickbuildapiClient,
		api.NewRequestCounter("quickbuildapi"),
		api.NewRequestHistogram("quickbuildapi"),
	)

	return quickbuildapiClient
}

func getServer(config *api.APIConfig, quickbuildapiClient quickbuildapi.Client) *mcp.Server {

	features := []mcp.Feature{
		configurations.NewService(quickbuildapiClient),
		builds.NewService(quickbuildapiClient),
		grid.NewService(quickbuildapiClient),
		changes.NewService(quickbuildapiClient),
	}

	serverVersion := version
	if serverVersion == "" {
		serverVersion = "0.0.0"
	}

	return mcp.NewServer(config.MCPServer.Name, serverVersion, features,
		mcp.WithInstructions(config.MCPServer.Instructions),
		mcp.WithMaxConcurrentRequests(config.MCPServer.MaxConcurrentRequests),
		mcp.WithMetrics(api.NewRequestCounter("mcp"), api.NewRequestHistogram("mcp")),
	)
}

// serveStdio returns once stdin is exhausted or ctx is cancelled, after requests in flight are answered
func serveStdio(ctx context.Context, mcpServer *mcp.Server) error {

	log.Info().Msg("Serving mcp requests over stdio...")

	err := mcpServer.Serve(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "Serving mcp requests over stdio failed")
	}

	log.Debug().Msg("Shutting down...")

	return nil
}

func serveHTTP(ctx context.Context, mcpServer *mcp.Server) error {

	// instantiate servers instead of using router.Run in order to handle graceful shutdown
	srv := &http.Server{
		Addr:        *apiAddress,
		Handler:     configureGinGonic(mcpServer),
		ReadTimeout: 30 * time.Second,
		//WriteTimeout: 30 * time.Second, // see https://github.com/gin-gonic/gin/issues/1165
	}

	listenErr := make(chan error, 1)
	go func() {
		log.Info().Str("address", *apiAddress).Msg("Serving mcp requests over http...")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErr <- err
		}
	}()

	// wait for a signal or a failing listener
	select {
	case err := <-listenErr:
		return errors.Wrap(err, "Starting gin router failed")
	case <-ctx.Done():
	}
	log.Debug().Msg("Shutting down...")

	// shut down gracefully
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "Graceful server shutdown failed")
	}

	return nil
}

func configureGinGonic(mcpServer *mcp.Server) *gin.Engine {

	// run gin in release mode and other defaults
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = log.Logger
	gin.DisableConsoleColor()

	// creates a router without any middleware by default
	router := gin.New()

	// logging middleware
	router.Use(api.ZeroLogMiddleware())

	// opentracing middleware
	router.Use(api.OpenTracingMiddleware())

	// recovery middleware returns 500 if there's a panic
	router.Use(gin.Recovery())

	// gzip middleware
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.POST("/mcp", mcpServer.Handler())

	// liveness and readiness
	router.GET("/liveness", func(c *gin.Context) {
		c.String(http.StatusOK, "I'm alive!")
	})
	router.GET("/readiness", func(c *gin.Context) {
		c.String(http.StatusOK, "I'm ready!")
	})

	return router
}
