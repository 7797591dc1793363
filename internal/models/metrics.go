package models

import "time"

// TelemetryConfig selects which self-telemetry collectors are active.
type TelemetryConfig struct {
	MonitorCPU        bool
	MonitorMemory     bool
	MonitorGoroutines bool
}

// Metric is a single collected telemetry value.
type Metric struct {
	Value any    `json:"value"`
	Unit  string `json:"unit"`
}

// SystemMetrics is the payload of the system_metrics topic: a snapshot of
// process and host telemetry collected in one pass.
type SystemMetrics struct {
	Timestamp time.Time         `json:"timestamp"`
	Metrics   map[string]Metric `json:"metrics"`
}
