package models

import "time"

// Event is a single published occurrence on the event bus. Payload is
// topic-specific: a Device, a device id, a []CheckResult, an ErrorEvent, or
// nil for parameterless commands.
type Event struct {
	Topic     string    `json:"topic"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Error kinds carried by ErrorEvent, mirroring the failure taxonomy of the
// command surface.
const (
	ErrorKindValidation      = "validation"
	ErrorKindDuplicateDevice = "duplicate_device"
	ErrorKindNotFound        = "not_found"
	ErrorKindPersistence     = "persistence"
	ErrorKindInternal        = "internal"
	ErrorKindHandler         = "handler"
)

// ErrorEvent is the payload of *_error and handler_error topics.
type ErrorEvent struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
