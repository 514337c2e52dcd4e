// Package event publishes TimingMessage envelopes onto an SQS queue. Feed
// adapters use it to enqueue raw timing data for a worker to ingest, and a
// worker uses it to fan completed-lap events out to consumers beyond its
// own pipeline (stats rollups, notification services).
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/racetiming/pipeline/model"
)

// SQSClient is the subset of the SQS API the dispatcher calls.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSDispatcher publishes TimingMessage envelopes, one SQS message per
// envelope, in the same JSON shape the worker's ingest handler decodes.
type SQSDispatcher struct {
	client   SQSClient
	queueURL string
}

func NewSQSDispatcher(client SQSClient, queueURL string) *SQSDispatcher {
	return &SQSDispatcher{
		client:   client,
		queueURL: queueURL,
	}
}

// Dispatch enqueues one TimingMessage.
func (d *SQSDispatcher) Dispatch(ctx context.Context, msg model.TimingMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	_, err = d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
	})
	return err
}

// DispatchLapCompleted wraps a completed lap in its TimingMessage envelope
// and enqueues it.
func (d *SQSDispatcher) DispatchLapCompleted(ctx context.Context, lap model.LapCompleted) error {
	payload, err := json.Marshal(lap)
	if err != nil {
		return err
	}

	return d.Dispatch(ctx, model.TimingMessage{
		Type:      model.MessageTypeLapCompleted,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	})
}
