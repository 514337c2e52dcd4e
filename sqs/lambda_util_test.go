package sqs

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testContext() context.Context {
	logger := testLogger()
	return logger.WithContext(context.Background())
}

func TestWithLogger(t *testing.T) {
	called := false
	h := WithLogger(func(ctx context.Context, event events.SQSEvent) error {
		called = true
		return nil
	}, testLogger())

	require.NoError(t, h(context.Background(), events.SQSEvent{}))
	assert.True(t, called)
}

func TestWithPanicProtection(t *testing.T) {
	testCases := []struct {
		name        string
		handler     HandlerFunc
		expectErr   string
		expectCause error
	}{
		{
			name:    "no panic passes result through",
			handler: func(ctx context.Context, event events.SQSEvent) error { return nil },
		},
		{
			name:      "string panic becomes error",
			handler:   func(ctx context.Context, event events.SQSEvent) error { panic("boom") },
			expectErr: "recovered from panic: boom",
		},
		{
			name:        "error panic is wrapped",
			handler:     func(ctx context.Context, event events.SQSEvent) error { panic(errTest) },
			expectErr:   "recovered from panic: test failure",
			expectCause: errTest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := WithPanicProtection(tc.handler)(testContext(), events.SQSEvent{})
			if tc.expectErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.expectErr, err.Error())
			if tc.expectCause != nil {
				assert.ErrorIs(t, err, tc.expectCause)
			}
		})
	}
}

var errTest = errors.New("test failure")

func TestWithReducedContextDeadline(t *testing.T) {
	t.Run("reduces deadline by buffer", func(t *testing.T) {
		ctx, cancel := context.WithDeadline(testContext(), time.Now().Add(30*time.Second))
		defer cancel()
		original, _ := ctx.Deadline()

		var seen time.Time
		h := WithReducedContextDeadline(func(ctx context.Context, event events.SQSEvent) error {
			seen, _ = ctx.Deadline()
			return nil
		}, 5*time.Second)

		require.NoError(t, h(ctx, events.SQSEvent{}))
		assert.WithinDuration(t, original.Add(-5*time.Second), seen, time.Millisecond)
	})

	t.Run("fails fast when buffer exceeds remaining time", func(t *testing.T) {
		ctx, cancel := context.WithDeadline(testContext(), time.Now().Add(2*time.Second))
		defer cancel()

		h := WithReducedContextDeadline(func(ctx context.Context, event events.SQSEvent) error {
			t.Fatal("handler should not run")
			return nil
		}, 10*time.Second)

		err := h(ctx, events.SQSEvent{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "attempt to reduce deadline by more than possible")
	})

	t.Run("passes through when no deadline present", func(t *testing.T) {
		h := WithReducedContextDeadline(func(ctx context.Context, event events.SQSEvent) error {
			_, ok := ctx.Deadline()
			assert.False(t, ok)
			return nil
		}, 5*time.Second)

		require.NoError(t, h(testContext(), events.SQSEvent{}))
	})
}

func TestLinearVisibilityTimeoutComputer(t *testing.T) {
	testCases := []struct {
		name     string
		attrs    map[string]string
		step     time.Duration
		expected int32
	}{
		{name: "first delivery is immediate", attrs: map[string]string{"ApproximateReceiveCount": "1"}, step: 30 * time.Second, expected: 0},
		{name: "third delivery backs off twice", attrs: map[string]string{"ApproximateReceiveCount": "3"}, step: 30 * time.Second, expected: 60},
		{name: "missing attribute treated as first", attrs: nil, step: 30 * time.Second, expected: 0},
		{name: "garbage attribute treated as first", attrs: map[string]string{"ApproximateReceiveCount": "soon"}, step: 30 * time.Second, expected: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			computer := LinearVisibilityTimeoutComputer(tc.step)
			assert.Equal(t, tc.expected, computer(events.SQSMessage{Attributes: tc.attrs}))
		})
	}
}

func TestParseQueueARN(t *testing.T) {
	accountID, queueName, err := parseQueueARN("arn:aws:sqs:us-east-1:123456789012:timing-ingest")
	require.NoError(t, err)
	assert.Equal(t, "123456789012", accountID)
	assert.Equal(t, "timing-ingest", queueName)

	_, _, err = parseQueueARN("not-an-arn")
	assert.Error(t, err)
}

func TestWithVisibilityResetOnError(t *testing.T) {
	record := events.SQSMessage{
		MessageId:      "msg-1",
		ReceiptHandle:  "handle-1",
		EventSourceARN: "arn:aws:sqs:us-east-1:123456789012:timing-ingest",
		Attributes:     map[string]string{"ApproximateReceiveCount": "2"},
	}
	queueURL := "https://sqs.us-east-1.amazonaws.com/123456789012/timing-ingest"

	t.Run("success leaves visibility alone", func(t *testing.T) {
		client := NewMockSQSClient(t)
		h := WithVisibilityResetOnError(func(ctx context.Context, event events.SQSEvent) error {
			return nil
		}, client, LinearVisibilityTimeoutComputer(30*time.Second))

		require.NoError(t, h(testContext(), events.SQSEvent{Records: []events.SQSMessage{record}}))
	})

	t.Run("failure resets each record", func(t *testing.T) {
		client := NewMockSQSClient(t)
		queueName := "timing-ingest"
		accountID := "123456789012"
		client.EXPECT().
			GetQueueUrl(mock.Anything, &sqs.GetQueueUrlInput{
				QueueName:              &queueName,
				QueueOwnerAWSAccountId: &accountID,
			}).
			Return(&sqs.GetQueueUrlOutput{QueueUrl: &queueURL}, nil)
		handle := "handle-1"
		client.EXPECT().
			ChangeMessageVisibility(mock.Anything, &sqs.ChangeMessageVisibilityInput{
				QueueUrl:          &queueURL,
				ReceiptHandle:     &handle,
				VisibilityTimeout: 30,
			}).
			Return(&sqs.ChangeMessageVisibilityOutput{}, nil)

		h := WithVisibilityResetOnError(func(ctx context.Context, event events.SQSEvent) error {
			return errTest
		}, client, LinearVisibilityTimeoutComputer(30*time.Second))

		err := h(testContext(), events.SQSEvent{Records: []events.SQSMessage{record}})
		assert.ErrorIs(t, err, errTest)
	})

	t.Run("reset failure still returns the handler error", func(t *testing.T) {
		client := NewMockSQSClient(t)
		client.EXPECT().
			GetQueueUrl(mock.Anything, mock.Anything).
			Return(nil, errors.New("no such queue"))

		h := WithVisibilityResetOnError(func(ctx context.Context, event events.SQSEvent) error {
			return errTest
		}, client, LinearVisibilityTimeoutComputer(30*time.Second))

		err := h(testContext(), events.SQSEvent{Records: []events.SQSMessage{record}})
		assert.ErrorIs(t, err, errTest)
	})

	t.Run("empty batch skips reset entirely", func(t *testing.T) {
		client := NewMockSQSClient(t)
		h := WithVisibilityResetOnError(func(ctx context.Context, event events.SQSEvent) error {
			return errTest
		}, client, LinearVisibilityTimeoutComputer(30*time.Second))

		err := h(testContext(), events.SQSEvent{})
		assert.ErrorIs(t, err, errTest)
	})
}
