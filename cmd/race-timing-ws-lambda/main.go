// Command race-timing-ws-lambda is the API Gateway WebSocket Lambda that
// backs the subscription fanout transport: connect/disconnect bookkeeping,
// "subscribe" registration with immediate snapshot seeding, and a liveness
// "pingRequest" route. Connections are unauthenticated: the subscription
// surface is public, matching a real-world timing-tower feed.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-xray-sdk-go/v2/instrumentation/awsv2"
	"github.com/aws/aws-xray-sdk-go/v2/xray"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/racetiming/pipeline/store"
	"github.com/racetiming/pipeline/ws"
	"github.com/racetiming/pipeline/ws/disconnect"
	"github.com/racetiming/pipeline/ws/ping"
	"github.com/racetiming/pipeline/ws/subscribe"
)

type appCfg struct {
	LogLevel             string `envconfig:"LOG_LEVEL" required:"true"`
	DynamoDBTable        string `envconfig:"DYNAMODB_TABLE" required:"true"`
	WSManagementEndpoint string `envconfig:"WS_MANAGEMENT_ENDPOINT" required:"true"`
}

func main() {
	ctx := context.Background()
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.LevelFieldName = "severity"
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	logger.Info().Msg("starting race timing websocket handler")

	var cfg appCfg
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Fatal().Err(err).Msg("error loading config")
	}

	logLevel, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Str("input", cfg.LogLevel).Err(err).Msg("error parsing log level")
	}
	logger = logger.Level(logLevel)

	if err := xray.Configure(xray.Config{LogLevel: "warn"}); err != nil {
		logger.Fatal().Err(err).Msg("error configuring x-ray")
	}

	httpClient := xray.Client(http.DefaultClient)

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithHTTPClient(httpClient))
	if err != nil {
		logger.Fatal().Err(err).Msg("error loading default config")
	}
	awsv2.AWSV2Instrumentor(&awsCfg.APIOptions)

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	connStore := store.NewDynamoStore(dynamoClient, cfg.DynamoDBTable)

	apiClient := apigatewaymanagementapi.NewFromConfig(awsCfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = &cfg.WSManagementEndpoint
	})

	pusher := ws.NewPusher(apiClient, connStore)
	snapshots := newSnapshotProvider(connStore)

	subscribeHandler := subscribe.NewHandler(pusher, connStore, snapshots)
	pingHandler := ping.NewHandler(pusher)
	disconnectHandler := disconnect.NewHandler(connStore)

	handler := ws.NewHandler(subscribeHandler, pingHandler, disconnectHandler)

	lambda.Start(func(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
		ctx = logger.WithContext(ctx)
		return handler.Handle(ctx, request)
	})
}
