package observability

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// Metrics publishes application metrics to CloudWatch. A nil client turns
// every method into a no-op, which is how local development runs.
type Metrics struct {
	namespace string
	client    *cloudwatch.Client
	logger    *zap.Logger
}

// NewMetrics creates a new metrics instance
func NewMetrics(namespace string, client *cloudwatch.Client, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Metrics{
		namespace: namespace,
		client:    client,
		logger:    logger,
	}
}

func (m *Metrics) put(ctx context.Context, data []types.MetricDatum) {
	if m.client == nil {
		return
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		// Metrics failures never fail the operation being measured.
		m.logger.Warn("failed to publish metrics", zap.Error(err))
	}
}

// RecordLatency records latency for any operation
func (m *Metrics) RecordLatency(ctx context.Context, operation string, latency time.Duration) {
	m.put(ctx, []types.MetricDatum{
		{
			MetricName: aws.String("OperationLatency"),
			Dimensions: []types.Dimension{
				{Name: aws.String("Operation"), Value: aws.String(operation)},
			},
			Value:     aws.Float64(float64(latency.Milliseconds())),
			Unit:      types.StandardUnitMilliseconds,
			Timestamp: aws.Time(time.Now()),
		},
	})
}

// RecordCacheStats publishes a point-in-time snapshot of the cache.
func (m *Metrics) RecordCacheStats(ctx context.Context, entryCount int, totalAccesses int64, hitRate float64) {
	now := time.Now()
	m.put(ctx, []types.MetricDatum{
		{
			MetricName: aws.String("CacheEntryCount"),
			Value:      aws.Float64(float64(entryCount)),
			Unit:       types.StandardUnitCount,
			Timestamp:  aws.Time(now),
		},
		{
			MetricName: aws.String("CacheTotalAccesses"),
			Value:      aws.Float64(float64(totalAccesses)),
			Unit:       types.StandardUnitCount,
			Timestamp:  aws.Time(now),
		},
		{
			MetricName: aws.String("CacheHitRate"),
			Value:      aws.Float64(hitRate),
			Unit:       types.StandardUnitPercent,
			Timestamp:  aws.Time(now),
		},
	})
}

// RecordCacheInvalidation counts keys dropped by an invalidation trigger.
func (m *Metrics) RecordCacheInvalidation(ctx context.Context, trigger string, keysDropped int) {
	m.put(ctx, []types.MetricDatum{
		{
			MetricName: aws.String("CacheInvalidatedKeys"),
			Dimensions: []types.Dimension{
				{Name: aws.String("Trigger"), Value: aws.String(trigger)},
			},
			Value:     aws.Float64(float64(keysDropped)),
			Unit:      types.StandardUnitCount,
			Timestamp: aws.Time(time.Now()),
		},
	})
}

// RecordError records error occurrences
func (m *Metrics) RecordError(ctx context.Context, errorType string, errorCode string) {
	m.put(ctx, []types.MetricDatum{
		{
			MetricName: aws.String("Errors"),
			Dimensions: []types.Dimension{
				{Name: aws.String("ErrorType"), Value: aws.String(errorType)},
				{Name: aws.String("ErrorCode"), Value: aws.String(errorCode)},
			},
			Value:     aws.Float64(1),
			Unit:      types.StandardUnitCount,
			Timestamp: aws.Time(time.Now()),
		},
	})
}

// RecordBusinessMetric records custom business metrics
func (m *Metrics) RecordBusinessMetric(ctx context.Context, metricName string, value float64, unit types.StandardUnit, dimensions map[string]string) {
	var cwDimensions []types.Dimension
	for name, val := range dimensions {
		cwDimensions = append(cwDimensions, types.Dimension{
			Name:  aws.String(name),
			Value: aws.String(val),
		})
	}

	m.put(ctx, []types.MetricDatum{
		{
			MetricName: aws.String(metricName),
			Dimensions: cwDimensions,
			Value:      aws.Float64(value),
			Unit:       unit,
			Timestamp:  aws.Time(time.Now()),
		},
	})
}
