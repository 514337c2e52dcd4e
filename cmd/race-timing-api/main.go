// Command race-timing-api serves the snapshot-read HTTP surface (session
// state and fully-populated car patches) against the durable snapshot a
// race-timing-worker process writes on every debounced publish. It runs
// the same api.NewRestAPI-built handler over plain HTTP rather than behind
// an API Gateway Lambda proxy.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/racetiming/pipeline/api"
	"github.com/racetiming/pipeline/store"
)

// requestTimeout bounds how long any single request may take to serve.
const requestTimeout = 15 * time.Second

type appCfg struct {
	LogLevel           string   `envconfig:"LOG_LEVEL" required:"true"`
	DynamoDBTable      string   `envconfig:"DYNAMODB_TABLE" required:"true"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" required:"true"`
}

func main() {
	ctx := context.Background()
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.LevelFieldName = "severity"
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	listenAddress := flag.String("listen-address", ":8080", "address to listen to for inbound requests")
	flag.Parse()

	logger.Info().Msg("starting race timing snapshot API")

	var cfg appCfg
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Fatal().Err(err).Msg("error loading config")
	}

	logLevel, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Str("input", cfg.LogLevel).Err(err).Msg("error parsing log level")
	}
	logger = logger.Level(logLevel)

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("error loading AWS config")
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	dynamoStore := store.NewDynamoStore(dynamoClient, cfg.DynamoDBTable)
	snapshots := newSnapshotProvider(dynamoStore)

	pingEndpoint := http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		api.DoOKResponse(request.Context(), "Pong", writer)
	})

	handler := api.NewRestAPI(logger, uuid.NewString, cfg.CORSAllowedOrigins, pingEndpoint, snapshots)
	handler = withRequestTimeout(handler, requestTimeout)

	if err := http.ListenAndServe(*listenAddress, handler); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func withRequestTimeout(next http.Handler, timeout time.Duration) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		ctx, cancel := context.WithTimeout(request.Context(), timeout)
		defer cancel()
		next.ServeHTTP(writer, request.WithContext(ctx))
	})
}
