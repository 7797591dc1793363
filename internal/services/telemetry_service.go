package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/devmon/internal/bus"
	"github.com/benmeehan/devmon/internal/constants"
	"github.com/benmeehan/devmon/internal/metrics_collectors"
	"github.com/benmeehan/devmon/internal/models"
	"github.com/rs/zerolog"
)

// TelemetryService periodically collects process and host metrics and
// publishes them on the bus as system_metrics events.
type TelemetryService struct {
	bus      *bus.EventBus
	interval time.Duration
	config   *models.TelemetryConfig
	registry *metrics_collectors.MetricsRegistry
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTelemetryService initializes a new TelemetryService with the default
// collector set.
func NewTelemetryService(eventBus *bus.EventBus, interval time.Duration, config *models.TelemetryConfig, logger zerolog.Logger) *TelemetryService {
	service := &TelemetryService{
		bus:      eventBus,
		interval: interval,
		config:   config,
		registry: metrics_collectors.NewMetricsRegistry(),
		logger:   logger.With().Str("component", "telemetry").Logger(),
	}

	service.registerDefaultCollectors()
	return service
}

// registerDefaultCollectors registers the default metric collectors.
func (t *TelemetryService) registerDefaultCollectors() {
	t.registry.Register(&metrics_collectors.CPUMetricCollector{Logger: t.logger})
	t.registry.Register(&metrics_collectors.MemoryMetricCollector{Logger: t.logger})
	t.registry.Register(&metrics_collectors.GoroutineMetricCollector{Logger: t.logger})
}

// Start launches the telemetry collection loop in a separate goroutine.
func (t *TelemetryService) Start() error {
	if t.ctx != nil {
		t.logger.Warn().Msg("TelemetryService is already running")
		return errors.New("telemetry service is already running")
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.runCollectionLoop()
	}()

	t.logger.Info().Dur("interval", t.interval).Msg("TelemetryService started successfully")
	return nil
}

// Stop gracefully stops the telemetry service.
func (t *TelemetryService) Stop() error {
	if t.ctx == nil {
		t.logger.Warn().Msg("TelemetryService is not running")
		return errors.New("telemetry service is not running")
	}

	t.cancel()
	t.wg.Wait()

	t.ctx = nil
	t.cancel = nil

	t.logger.Info().Msg("TelemetryService stopped successfully")
	return nil
}

// runCollectionLoop collects and publishes metrics at the configured interval.
func (t *TelemetryService) runCollectionLoop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snapshot := t.collectMetrics()
			t.bus.Publish(constants.TopicSystemMetrics, snapshot)

		case <-t.ctx.Done():
			t.logger.Info().Msg("Stopping telemetry collection")
			return
		}
	}
}

// collectMetrics gathers the enabled metrics concurrently.
func (t *TelemetryService) collectMetrics() models.SystemMetrics {
	snapshot := models.SystemMetrics{
		Timestamp: time.Now().UTC(),
		Metrics:   make(map[string]models.Metric),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, collector := range t.registry.GetCollectors() {
		if !collector.IsEnabled(t.config) {
			continue
		}

		wg.Add(1)
		go func(name string, collector metrics_collectors.MetricCollector) {
			defer wg.Done()

			value := collector.Collect(t.ctx)
			if value == nil {
				return
			}

			mu.Lock()
			defer mu.Unlock()
			snapshot.Metrics[name] = models.Metric{
				Value: value,
				Unit:  collector.Unit(),
			}
		}(name, collector)
	}

	wg.Wait()
	t.logger.Debug().Int("metrics", len(snapshot.Metrics)).Msg("Telemetry collected successfully")
	return snapshot
}
