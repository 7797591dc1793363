package services_test

import (
	"sync"
	"testing"
	"time"

	"github.com/benmeehan/devmon/internal/bus"
	"github.com/benmeehan/devmon/internal/constants"
	"github.com/benmeehan/devmon/internal/models"
	"github.com/benmeehan/devmon/internal/services"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTelemetryService_PublishesSystemMetrics verifies that enabled
// collectors produce system_metrics events on the bus.
func TestTelemetryService_PublishesSystemMetrics(t *testing.T) {
	eventBus := bus.NewEventBus(zerolog.Nop())

	var mu sync.Mutex
	var snapshots []models.SystemMetrics
	eventBus.Subscribe(constants.TopicSystemMetrics, func(e models.Event) error {
		mu.Lock()
		defer mu.Unlock()
		snapshots = append(snapshots, e.Payload.(models.SystemMetrics))
		return nil
	})

	svc := services.NewTelemetryService(eventBus, 100*time.Millisecond, &models.TelemetryConfig{
		MonitorGoroutines: true,
	}, zerolog.Nop())

	require.NoError(t, svc.Start())
	time.Sleep(250 * time.Millisecond)
	require.NoError(t, svc.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, snapshots)

	first := snapshots[0]
	assert.False(t, first.Timestamp.IsZero())
	goroutines, ok := first.Metrics["goroutines"]
	require.True(t, ok)
	assert.Equal(t, "count", goroutines.Unit)
	assert.NotContains(t, first.Metrics, "cpu")
	assert.NotContains(t, first.Metrics, "memory")
}

// TestTelemetryService_StartStopGuards tests double start/stop handling.
func TestTelemetryService_StartStopGuards(t *testing.T) {
	eventBus := bus.NewEventBus(zerolog.Nop())
	svc := services.NewTelemetryService(eventBus, time.Second, &models.TelemetryConfig{}, zerolog.Nop())

	err := svc.Stop()
	assert.Error(t, err)
	assert.Equal(t, "telemetry service is not running", err.Error())

	require.NoError(t, svc.Start())

	err = svc.Start()
	assert.Error(t, err)
	assert.Equal(t, "telemetry service is already running", err.Error())

	require.NoError(t, svc.Stop())
}
