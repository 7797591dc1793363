package metrics_collectors

import (
	"context"

	"github.com/benmeehan/devmon/internal/models"
)

// MetricCollector defines the interface for collecting a specific metric.
type MetricCollector interface {
	Name() string                                  // Name of the metric (e.g., "cpu", "memory")
	Collect(ctx context.Context) interface{}       // Collect the metric data
	IsEnabled(config *models.TelemetryConfig) bool // Check if the metric is enabled in the config
	Unit() string                                  // Unit of the metric (e.g., "percentage", "count")
	Description() string                           // Description of the metric
}
