// Package sqs carries the middleware chain wrapped around the worker's SQS
// Lambda handler: logger attachment, panic recovery, X-Ray segments,
// deadline trimming, and visibility reset for failed batches.
package sqs

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-xray-sdk-go/v2/xray"
	"github.com/rs/zerolog"
)

// HandlerFunc is the unit every middleware in this package wraps.
type HandlerFunc func(ctx context.Context, event events.SQSEvent) error

// WithLogger attaches logger to the handler's context so downstream code
// can recover it with zerolog.Ctx.
func WithLogger(h HandlerFunc, logger zerolog.Logger) HandlerFunc {
	return func(ctx context.Context, event events.SQSEvent) error {
		return h(logger.WithContext(ctx), event)
	}
}

// WithPanicProtection turns a panic into a returned error so the Lambda
// runtime records a failed batch instead of a crashed invocation.
func WithPanicProtection(h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, event events.SQSEvent) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			zerolog.Ctx(ctx).Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("recovered from panic")
			if cause, ok := r.(error); ok {
				err = fmt.Errorf("recovered from panic: %w", cause)
			} else {
				err = fmt.Errorf("recovered from panic: %v", r)
			}
		}()
		return h(ctx, event)
	}
}

// WithXRayCapture opens a facade segment referencing the Lambda-provided
// trace and records the handler's error on it.
func WithXRayCapture(h HandlerFunc, segmentName string) HandlerFunc {
	return func(ctx context.Context, event events.SQSEvent) error {
		ctx, seg := xray.BeginFacadeSegment(ctx, segmentName, nil)
		defer seg.Close(nil)

		err := h(ctx, event)
		if err != nil {
			seg.AddError(err)
		}
		return err
	}
}

// WithReducedContextDeadline hands the handler a deadline buffer shorter
// than the invocation's, leaving room to report failures before the Lambda
// runtime cuts the process off.
func WithReducedContextDeadline(h HandlerFunc, buffer time.Duration) HandlerFunc {
	return func(ctx context.Context, event events.SQSEvent) error {
		deadline, ok := ctx.Deadline()
		if !ok {
			zerolog.Ctx(ctx).Warn().Msg("no deadline present on context")
			return h(ctx, event)
		}
		reduced := deadline.Add(-buffer)
		if reduced.Before(time.Now()) {
			return fmt.Errorf("attempt to reduce deadline by more than possible, original: %q, new: %q", deadline, reduced)
		}
		zerolog.Ctx(ctx).Debug().Time("original", deadline).Time("new", reduced).Msg("reducing deadline")
		ctx, cancel := context.WithDeadline(ctx, reduced)
		defer cancel()
		return h(ctx, event)
	}
}

// VisibilityTimeoutComputer picks the visibility timeout, in seconds, to
// apply to a message whose batch failed.
type VisibilityTimeoutComputer func(msg events.SQSMessage) int32

// LinearVisibilityTimeoutComputer backs off by step for every delivery
// attempt already made, so a first redelivery is immediate and later ones
// wait progressively longer.
func LinearVisibilityTimeoutComputer(step time.Duration) VisibilityTimeoutComputer {
	return func(msg events.SQSMessage) int32 {
		attempts := 1
		if raw, ok := msg.Attributes["ApproximateReceiveCount"]; ok {
			if parsed, err := strconv.Atoi(raw); err == nil {
				attempts = parsed
			}
		}
		return int32(attempts-1) * int32(step.Seconds())
	}
}

// SQSClient is the subset of the SQS API visibility reset calls.
type SQSClient interface {
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

func parseQueueARN(arn string) (accountID, queueName string, err error) {
	parts := strings.Split(arn, ":")
	if len(parts) != 6 {
		return "", "", fmt.Errorf("invalid SQS ARN format: %s", arn)
	}
	return parts[4], parts[5], nil
}

// WithVisibilityResetOnError shortens the visibility timeout of every
// message in a failed batch so redelivery does not wait out the queue's
// full default timeout. Reset failures are logged and swallowed; the
// handler's own error is always what gets returned.
func WithVisibilityResetOnError(h HandlerFunc, client SQSClient, timeoutComputer VisibilityTimeoutComputer) HandlerFunc {
	return func(ctx context.Context, event events.SQSEvent) error {
		err := h(ctx, event)
		if err == nil || len(event.Records) == 0 {
			return err
		}

		logger := zerolog.Ctx(ctx)

		accountID, queueName, parseErr := parseQueueARN(event.Records[0].EventSourceARN)
		if parseErr != nil {
			logger.Error().Err(parseErr).Msg("failed to parse queue ARN")
			return err
		}

		urlOutput, urlErr := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
			QueueName:              &queueName,
			QueueOwnerAWSAccountId: &accountID,
		})
		if urlErr != nil {
			logger.Error().Err(urlErr).Msg("failed to get queue URL")
			return err
		}

		for _, msg := range event.Records {
			resetVisibility(ctx, client, urlOutput.QueueUrl, msg, timeoutComputer(msg))
		}

		return err
	}
}

func resetVisibility(ctx context.Context, client SQSClient, queueURL *string, msg events.SQSMessage, timeout int32) {
	logger := zerolog.Ctx(ctx)
	_, err := client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          queueURL,
		ReceiptHandle:     &msg.ReceiptHandle,
		VisibilityTimeout: timeout,
	})
	if err != nil {
		logger.Error().Err(err).Str("messageId", msg.MessageId).Msg("failed to reset message visibility")
		return
	}
	logger.Warn().Str("messageId", msg.MessageId).Msg("reset message visibility")
}
