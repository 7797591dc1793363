// Package checker performs TCP reachability probes against monitored
// devices.
package checker

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/benmeehan/devmon/internal/models"
	"github.com/rs/zerolog"
)

// TCPChecker probes devices by opening a TCP connection to host:port. A
// probe succeeds when the connection establishes; it is then closed
// immediately, no data is exchanged.
type TCPChecker struct {
	defaultTimeout time.Duration
	concurrency    int
	dialer         net.Dialer
	logger         zerolog.Logger
}

// NewTCPChecker creates a checker. defaultTimeout bounds probes of devices
// without their own timeout; concurrency bounds the probe fan-out of one
// CheckAll batch.
func NewTCPChecker(defaultTimeout time.Duration, concurrency int, logger zerolog.Logger) *TCPChecker {
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 8
	}

	return &TCPChecker{
		defaultTimeout: defaultTimeout,
		concurrency:    concurrency,
		logger:         logger.With().Str("component", "checker").Logger(),
	}
}

// CheckOne probes a single device, bounded by the device's timeout. Probe
// failures (refused, timeout, DNS) are captured in the result's Error field,
// never returned as a Go error.
func (c *TCPChecker) CheckOne(ctx context.Context, device models.Device) models.CheckResult {
	timeout := c.defaultTimeout
	if device.TimeoutSeconds > 0 {
		timeout = time.Duration(device.TimeoutSeconds) * time.Second
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	address := net.JoinHostPort(device.Host, strconv.Itoa(device.Port))
	start := time.Now()

	conn, err := c.dialer.DialContext(probeCtx, "tcp", address)
	duration := time.Since(start)

	result := models.CheckResult{
		DeviceID:  device.ID,
		Duration:  duration,
		CheckedAt: time.Now().UTC(),
	}

	if err != nil {
		result.Error = err.Error()
		c.logger.Debug().
			Str("device_id", device.ID).
			Str("address", address).
			Dur("duration", duration).
			Str("error", result.Error).
			Msg("Probe failed")
		return result
	}

	_ = conn.Close()
	result.Reachable = true

	c.logger.Debug().
		Str("device_id", device.ID).
		Str("address", address).
		Dur("duration", duration).
		Msg("Probe succeeded")
	return result
}

// CheckAll probes all enabled devices concurrently through a bounded worker
// fan-out and returns one result per enabled device, in completion order.
// Disabled devices are skipped entirely. One slow or failing probe never
// blocks or fails the rest of the batch. If ctx is cancelled mid-batch the
// partial result set collected so far is returned; the caller decides
// whether to discard it.
func (c *TCPChecker) CheckAll(ctx context.Context, devices []models.Device) []models.CheckResult {
	enabled := make([]models.Device, 0, len(devices))
	for _, d := range devices {
		if d.Enabled {
			enabled = append(enabled, d)
		}
	}
	if len(enabled) == 0 {
		return []models.CheckResult{}
	}

	workers := c.concurrency
	if workers > len(enabled) {
		workers = len(enabled)
	}

	workCh := make(chan models.Device)
	resultCh := make(chan models.CheckResult, len(enabled))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for device := range workCh {
				resultCh <- c.CheckOne(ctx, device)
			}
		}()
	}

	go func() {
		defer close(workCh)
		for _, device := range enabled {
			select {
			case <-ctx.Done():
				return
			case workCh <- device:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]models.CheckResult, 0, len(enabled))
	for result := range resultCh {
		results = append(results, result)
	}

	c.logger.Info().
		Int("devices", len(enabled)).
		Int("results", len(results)).
		Msg("Check batch completed")
	return results
}
