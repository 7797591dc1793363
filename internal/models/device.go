package models

import "time"

// DeviceStatus represents the last known reachability of a device.
type DeviceStatus string

const (
	// StatusUnknown is the status of a device that has never been checked.
	StatusUnknown DeviceStatus = "unknown"
	// StatusOnline indicates the last probe established a TCP connection.
	StatusOnline DeviceStatus = "online"
	// StatusOffline indicates the last probe failed to connect.
	StatusOffline DeviceStatus = "offline"
)

// Device represents a monitored network endpoint and its last known state.
// The registry is the exclusive owner of Device values; callers always
// receive copies (see Clone).
type Device struct {
	// ID is assigned once at creation and never mutated or reused.
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Host           string       `json:"host"`
	Port           int          `json:"port"`
	TimeoutSeconds int          `json:"timeout_seconds"`
	Enabled        bool         `json:"enabled"`
	Status         DeviceStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	// LastCheckedAt is nil until the first probe completes. It is updated
	// together with Status, never on its own.
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
}

// Clone returns a deep copy of the device, safe to hand to callers outside
// the registry lock.
func (d Device) Clone() Device {
	c := d
	if d.LastCheckedAt != nil {
		t := *d.LastCheckedAt
		c.LastCheckedAt = &t
	}
	return c
}

// DeviceSpec describes a device to be added. It is the payload of the
// add_device command.
type DeviceSpec struct {
	Name           string `json:"name"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty"`
}

// CheckResult is the outcome of a single TCP reachability probe. Results are
// ephemeral: they are published on the bus and applied to the registry but
// never persisted themselves.
type CheckResult struct {
	DeviceID  string        `json:"device_id"`
	Reachable bool          `json:"reachable"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	CheckedAt time.Time     `json:"checked_at"`
}
