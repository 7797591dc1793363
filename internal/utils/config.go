package utils

import (
	"path/filepath"

	"github.com/benmeehan/devmon/internal/constants"
	"github.com/benmeehan/devmon/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	App struct {
		Name    string `yaml:"name"`     // Application name used in log lines
		DataDir string `yaml:"data_dir"` // Directory for persisted state
	} `yaml:"app"`

	Logging struct {
		Level      string `yaml:"level"`        // Log level (debug, info, warn, error)
		File       string `yaml:"file"`         // Log file path; empty disables the file sink
		MaxSizeMB  int    `yaml:"max_size_mb"`  // Size threshold at which the log file is rotated
		MaxBackups int    `yaml:"max_backups"`  // Number of rotated log files retained
		Console    bool   `yaml:"console"`      // Mirror log lines to stdout
	} `yaml:"logging"`

	Monitor struct {
		DevicesFile           string `yaml:"devices_file"`            // Path of the persisted device list
		DefaultTimeoutSeconds int    `yaml:"default_timeout_seconds"` // Probe timeout for devices without their own
		MaxConcurrency        int    `yaml:"max_concurrency"`         // Bound on concurrent probes per check cycle

		AutoCheck struct {
			Enabled         bool `yaml:"enabled"`          // Enable/disable the periodic check cycle
			IntervalSeconds int  `yaml:"interval_seconds"` // Seconds between automatic check cycles
		} `yaml:"auto_check"`
	} `yaml:"monitor"`

	Telemetry struct {
		Enabled           bool `yaml:"enabled"`            // Enable/disable self-telemetry collection
		IntervalSeconds   int  `yaml:"interval_seconds"`   // Seconds between telemetry snapshots
		MonitorCPU        bool `yaml:"monitor_cpu"`        // Collect CPU usage
		MonitorMemory     bool `yaml:"monitor_memory"`     // Collect memory usage
		MonitorGoroutines bool `yaml:"monitor_goroutines"` // Collect goroutine count
	} `yaml:"telemetry"`

	MQTT struct {
		Enabled       bool   `yaml:"enabled"`        // Enable/disable the MQTT event gateway
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID; a uuid suffix is appended
		QOS           int    `yaml:"qos"`            // MQTT QoS level for gateway messages
		TopicPrefix   string `yaml:"topic_prefix"`   // Prefix of the gateway's MQTT topics
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate; empty disables TLS
	} `yaml:"mqtt"`
}

// LoadConfig loads the YAML configuration from the specified file and fills
// unset values with defaults. It returns a pointer to the Config struct and
// an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, err
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills zero-valued fields with the built-in defaults.
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "devmon"
	}
	if c.App.DataDir == "" {
		c.App.DataDir = "data"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = constants.DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = constants.DefaultLogBackups
	}
	if c.Monitor.DevicesFile == "" {
		c.Monitor.DevicesFile = filepath.Join(c.App.DataDir, "devices.json")
	}
	if c.Monitor.DefaultTimeoutSeconds == 0 {
		c.Monitor.DefaultTimeoutSeconds = constants.DefaultTimeoutSeconds
	}
	if c.Monitor.MaxConcurrency == 0 {
		c.Monitor.MaxConcurrency = constants.DefaultMaxConcurrency
	}
	if c.Monitor.AutoCheck.IntervalSeconds == 0 {
		c.Monitor.AutoCheck.IntervalSeconds = constants.DefaultCheckIntervalSeconds
	}
	if c.Telemetry.IntervalSeconds == 0 {
		c.Telemetry.IntervalSeconds = 60
	}
}
