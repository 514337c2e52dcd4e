// Package metrics emits pipeline gauges to CloudWatch. Emission is fire and
// forget: hot-path callers discard the error, so there is no retry here.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatchClient is the subset of the CloudWatch API the emitter calls.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchEmitter writes one datum per call under a fixed namespace,
// optionally stamped with an event-id dimension.
type CloudWatchEmitter struct {
	client     CloudWatchClient
	namespace  string
	dimensions []types.Dimension
}

func NewCloudWatchEmitter(client CloudWatchClient, namespace string) *CloudWatchEmitter {
	return &CloudWatchEmitter{
		client:    client,
		namespace: namespace,
	}
}

// WithEventDimension returns a copy of the emitter that stamps every datum
// with the event id, so one dashboard can filter per live event.
func (e *CloudWatchEmitter) WithEventDimension(eventID int64) *CloudWatchEmitter {
	copied := *e
	copied.dimensions = append([]types.Dimension{}, e.dimensions...)
	copied.dimensions = append(copied.dimensions, types.Dimension{
		Name:  aws.String("EventID"),
		Value: aws.String(strconv.FormatInt(eventID, 10)),
	})
	return &copied
}

// EmitGauge records a single point-in-time value for name.
func (e *CloudWatchEmitter) EmitGauge(ctx context.Context, name string, value float64) error {
	datum := types.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       types.StandardUnitCount,
		Timestamp:  aws.Time(time.Now().UTC()),
	}
	if len(e.dimensions) > 0 {
		datum.Dimensions = e.dimensions
	}

	_, err := e.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(e.namespace),
		MetricData: []types.MetricDatum{datum},
	})
	return err
}
