package constants

// Monitoring defaults, applied when the configuration leaves a value unset.
const (
	// DefaultTimeoutSeconds bounds a single TCP probe.
	DefaultTimeoutSeconds = 5
	// DefaultCheckIntervalSeconds is the period of the automatic check cycle.
	DefaultCheckIntervalSeconds = 300
	// DefaultMaxConcurrency bounds the probe fan-out of one check cycle.
	DefaultMaxConcurrency = 8
	// MaxTimeoutSeconds is the largest accepted per-device probe timeout.
	MaxTimeoutSeconds = 300
	// MaxDeviceNameLength is the largest accepted device name length.
	MaxDeviceNameLength = 50
)

// AutoCheckJob is the scheduler job name of the periodic check cycle.
const AutoCheckJob = "auto_check"

// Logging defaults for the rotating file writer.
const (
	DefaultLogMaxSizeMB = 10
	DefaultLogBackups   = 5
)
