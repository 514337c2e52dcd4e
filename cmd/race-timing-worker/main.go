// Command race-timing-worker runs one event's race-timing pipeline
// as a long-lived SQS-driven Lambda: ingest messages fan in over
// SQS, the pipeline applies them in order, and publishes fan out over the
// API Gateway WebSocket management API.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-xray-sdk-go/v2/instrumentation/awsv2"
	"github.com/aws/aws-xray-sdk-go/v2/xray"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/racetiming/pipeline/archive"
	"github.com/racetiming/pipeline/controllog"
	"github.com/racetiming/pipeline/event"
	"github.com/racetiming/pipeline/history"
	"github.com/racetiming/pipeline/metrics"
	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/pipeline"
	"github.com/racetiming/pipeline/pipelineerr"
	"github.com/racetiming/pipeline/sqs"
	"github.com/racetiming/pipeline/store"
	"github.com/racetiming/pipeline/ws"
)

type appCfg struct {
	LogLevel             string `envconfig:"LOG_LEVEL" required:"true"`
	EventID              int64  `envconfig:"EVENT_ID" required:"true"`
	DynamoDBTable        string `envconfig:"DYNAMODB_TABLE" required:"true"`
	WSManagementEndpoint string `envconfig:"WS_MANAGEMENT_ENDPOINT" required:"true"`
	ArchiveBucket        string `envconfig:"ARCHIVE_BUCKET"`
	ControlLogCSVURL     string `envconfig:"CONTROL_LOG_CSV_URL"`
	LapEventQueueURL     string `envconfig:"LAP_EVENT_QUEUE_URL"`
	MetricsNamespace     string `envconfig:"METRICS_NAMESPACE" default:"RaceTiming"`

	PitWaitMS           int     `envconfig:"PIT_WAIT_MS" default:"1000"`
	HistorySize         int     `envconfig:"HISTORY_SIZE" default:"5"`
	PaceWindow          int     `envconfig:"PACE_WINDOW" default:"5"`
	StalePctOver        float64 `envconfig:"STALE_PCT_OVER" default:"0.3"`
	MinTimestampYear    int     `envconfig:"MIN_TIMESTAMP_YEAR" default:"2025"`
	MaxMissedTimestamps int     `envconfig:"MAX_MISSED_TIMESTAMPS" default:"2"`
	ControlLogPollS     int     `envconfig:"CONTROL_LOG_POLL_S" default:"15"`
	PublishDebounceMS   int     `envconfig:"PUBLISH_DEBOUNCE_MS" default:"250"`
}

func main() {
	ctx := context.Background()
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.LevelFieldName = "severity"
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	logger.Info().Msg("starting race timing worker")

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
		logger.Fatal().Err(err).Msg("error loading AWS config")
	}
	awsv2.AWSV2Instrumentor(&awsCfg.APIOptions)

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	dynamoStore := store.NewDynamoStore(dynamoClient, cfg.DynamoDBTable)

	apiGWClient := apigatewaymanagementapi.NewFromConfig(awsCfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = &cfg.WSManagementEndpoint
	})
	pusher := ws.NewPusher(apiGWClient, dynamoStore)

	cwClient := cloudwatch.NewFromConfig(awsCfg)
	metricsEmitter := metrics.NewCloudWatchEmitter(cwClient, cfg.MetricsNamespace).WithEventDimension(cfg.EventID)

	pipelineCfg := pipeline.DefaultConfig()
	pipelineCfg.EventID = cfg.EventID
	pipelineCfg.PitWait = time.Duration(cfg.PitWaitMS) * time.Millisecond
	pipelineCfg.HistorySize = cfg.HistorySize
	pipelineCfg.PaceWindow = cfg.PaceWindow
	pipelineCfg.StaleCarPctOver = cfg.StalePctOver
	pipelineCfg.MinTimestampYear = cfg.MinTimestampYear
	pipelineCfg.MaxMissedTimestamps = cfg.MaxMissedTimestamps
	pipelineCfg.ControlLogPoll = time.Duration(cfg.ControlLogPollS) * time.Second
	pipelineCfg.PublishDebounce = time.Duration(cfg.PublishDebounceMS) * time.Millisecond

	if err := pipelineCfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid pipeline configuration")
	}

	historyStore := history.NewDynamoBackend(dynamoStore)

	var controlSource controllog.Source
	if cfg.ControlLogCSVURL != "" {
		controlSource = controllog.NewHTTPCSVSource(httpClient, cfg.ControlLogCSVURL)
	}

	opts := []pipeline.Option{
		WithZerologErrorHandler(logger),
		pipeline.WithMetricsEmitter(metricsEmitter),
		pipeline.WithSnapshotSink(dynamoStore),
	}
	if cfg.ArchiveBucket != "" {
		s3Client := s3.NewFromConfig(awsCfg)
		opts = append(opts, pipeline.WithArchiveExporter(archive.NewExporter(s3Client, cfg.ArchiveBucket)))
	}
	if cfg.LapEventQueueURL != "" {
		sqsClient := awssqs.NewFromConfig(awsCfg)
		opts = append(opts, pipeline.WithLapEventDispatcher(event.NewSQSDispatcher(sqsClient, cfg.LapEventQueueURL)))
	}

	p := pipeline.New(pipelineCfg, pusher, dynamoStore, historyStore, dynamoStore, flagPersisterAdapter{dynamoStore}, controlSource, opts...)

	pipelineCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(pipelineCtx)

	handler := sqs.WithLogger(
		sqs.WithPanicProtection(
			sqs.WithXRayCapture(NewHandler(p), "IngestTimingMessages"),
		),
		logger,
	)

	lambda.Start(func(ctx context.Context, sqsEvent events.SQSEvent) error {
		return handler(ctx, sqsEvent)
	})
}

// WithZerologErrorHandler installs a pipeline.Option that logs every
// classified pipeline error through the worker's zerolog logger. Loggers
// are passed down into processing components rather than pulled from a
// global.
func WithZerologErrorHandler(logger zerolog.Logger) pipeline.Option {
	return pipeline.WithErrorHandler(func(err error) {
		logger.Warn().Str("kind", pipelineerr.KindOf(err).String()).Err(err).Msg("pipeline error")
	})
}

// flagPersisterAdapter satisfies trackflag.Persister by converting between
// model.FlagDuration and the store package's independent FlagLogEntry type,
// keeping the store package decoupled from model.
type flagPersisterAdapter struct {
	store *store.DynamoStore
}

func (a flagPersisterAdapter) ReplaceFlagLog(ctx context.Context, eventID, sessionID int64, entries []model.FlagDuration) error {
	converted := make([]store.FlagLogEntry, len(entries))
	for i, e := range entries {
		converted[i] = store.FlagLogEntry{Flag: string(e.Flag), StartTime: e.StartTime, EndTime: e.EndTime}
	}
	return a.store.ReplaceFlagLog(ctx, eventID, sessionID, converted)
}

// Submitter is the subset of *pipeline.Pipeline the SQS handler drives.
type Submitter interface {
	Submit(ctx context.Context, msg model.TimingMessage) error
}

// NewHandler adapts one SQS batch of TimingMessage envelopes onto
// Pipeline.Submit: a single malformed record is logged and skipped rather
// than failing the whole batch.
func NewHandler(p Submitter) sqs.HandlerFunc {
	return func(ctx context.Context, sqsEvent events.SQSEvent) error {
		logger := zerolog.Ctx(ctx)

		for _, record := range sqsEvent.Records {
			var msg model.TimingMessage
			if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
				logger.Error().Err(err).Str("messageId", record.MessageId).Msg("failed to parse timing message")
				continue
			}

			if err := p.Submit(ctx, msg); err != nil {
				logger.Error().Err(err).Str("messageId", record.MessageId).Msg("failed to submit timing message")
				return err
			}
		}

		return nil
	}
}
