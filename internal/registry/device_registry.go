// Package registry holds the authoritative in-memory set of monitored
// devices and mediates every read and write of it.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benmeehan/devmon/internal/bus"
	"github.com/benmeehan/devmon/internal/constants"
	"github.com/benmeehan/devmon/internal/models"
	"github.com/benmeehan/devmon/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrDeviceNotFound is returned when an operation references an unknown
	// device id.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrDuplicateDevice is returned when a device with the same (host, port)
	// endpoint is already monitored.
	ErrDuplicateDevice = errors.New("device endpoint already monitored")
)

// DeviceRegistry is the exclusive owner of all Device records. Every
// mutation persists to the store before it is applied in memory, and its
// outcome event is published only after both succeed (write-then-publish);
// a store failure leaves the in-memory state untouched. Callers always
// receive deep copies, never references into the registry.
type DeviceRegistry struct {
	store  store.DeviceStore
	bus    *bus.EventBus
	logger zerolog.Logger

	mu      sync.RWMutex
	devices []models.Device
	byID    map[string]int
}

// NewDeviceRegistry creates an empty registry. Call Load to populate it from
// the store.
func NewDeviceRegistry(st store.DeviceStore, eventBus *bus.EventBus, logger zerolog.Logger) *DeviceRegistry {
	return &DeviceRegistry{
		store:  st,
		bus:    eventBus,
		logger: logger.With().Str("component", "registry").Logger(),
		byID:   make(map[string]int),
	}
}

// Load replaces the in-memory set with the store's contents. Intended for
// startup, before any other goroutine holds a reference to the registry.
func (r *DeviceRegistry) Load() error {
	devices, err := r.store.LoadAll()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = devices
	r.byID = make(map[string]int, len(devices))
	for i, d := range devices {
		r.byID[d.ID] = i
	}

	r.logger.Info().Int("count", len(devices)).Msg("Device registry loaded")
	return nil
}

// Add creates a device from an already-validated spec, persists it and
// publishes device_added. At most one device may monitor a given
// (host, port) endpoint.
func (r *DeviceRegistry) Add(spec models.DeviceSpec) (models.Device, error) {
	enabled := spec.Enabled == nil || *spec.Enabled

	device := models.Device{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(spec.Name),
		Host:           spec.Host,
		Port:           spec.Port,
		TimeoutSeconds: spec.TimeoutSeconds,
		Enabled:        enabled,
		Status:         models.StatusUnknown,
		CreatedAt:      time.Now().UTC(),
	}

	r.mu.Lock()
	for _, d := range r.devices {
		if d.Host == device.Host && d.Port == device.Port {
			r.mu.Unlock()
			return models.Device{}, fmt.Errorf("%w: %s:%d", ErrDuplicateDevice, device.Host, device.Port)
		}
	}

	if err := r.store.Upsert(device); err != nil {
		r.mu.Unlock()
		return models.Device{}, err
	}

	r.byID[device.ID] = len(r.devices)
	r.devices = append(r.devices, device)
	r.mu.Unlock()

	r.logger.Info().
		Str("device_id", device.ID).
		Str("name", device.Name).
		Str("host", device.Host).
		Int("port", device.Port).
		Msg("Device added")

	r.bus.Publish(constants.TopicDeviceAdded, device.Clone())
	return device.Clone(), nil
}

// Remove deletes the device with the given id, persists the deletion and
// publishes device_removed. An unknown id fails with ErrDeviceNotFound.
func (r *DeviceRegistry) Remove(id string) error {
	r.mu.Lock()
	idx, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	if err := r.store.Delete(id); err != nil {
		r.mu.Unlock()
		return err
	}

	r.devices = append(r.devices[:idx:idx], r.devices[idx+1:]...)
	delete(r.byID, id)
	for i := idx; i < len(r.devices); i++ {
		r.byID[r.devices[i].ID] = i
	}
	r.mu.Unlock()

	r.logger.Info().Str("device_id", id).Msg("Device removed")

	r.bus.Publish(constants.TopicDeviceRemoved, id)
	return nil
}

// Get returns a copy of the device with the given id.
func (r *DeviceRegistry) Get(id string) (models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byID[id]
	if !ok {
		return models.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return r.devices[idx].Clone(), nil
}

// GetAll returns copies of all devices in insertion order. Mutating the
// returned slice does not affect the registry.
func (r *DeviceRegistry) GetAll() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]models.Device, len(r.devices))
	for i, d := range r.devices {
		devices[i] = d.Clone()
	}
	return devices
}

// UpdateStatus applies one check result to its device: Status and
// LastCheckedAt are set together, atomically, under the lock held for this
// single device only, so registry reads stay available during a long check
// cycle. The aggregate devices_checked event is the controller's to publish.
func (r *DeviceRegistry) UpdateStatus(id string, result models.CheckResult) (models.Device, error) {
	status := models.StatusOffline
	if result.Reachable {
		status = models.StatusOnline
	}
	checkedAt := result.CheckedAt

	r.mu.Lock()
	idx, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return models.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	updated := r.devices[idx].Clone()
	updated.Status = status
	updated.LastCheckedAt = &checkedAt

	if err := r.store.Upsert(updated); err != nil {
		r.mu.Unlock()
		return models.Device{}, err
	}

	r.devices[idx] = updated
	r.mu.Unlock()

	r.logger.Debug().
		Str("device_id", id).
		Str("status", string(status)).
		Msg("Device status updated")

	return updated.Clone(), nil
}

// SetEnabled enables or disables checking of a device, persists the change
// and publishes device_updated. Disabled devices are retained in storage but
// skipped by check cycles.
func (r *DeviceRegistry) SetEnabled(id string, enabled bool) (models.Device, error) {
	r.mu.Lock()
	idx, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return models.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	updated := r.devices[idx].Clone()
	updated.Enabled = enabled

	if err := r.store.Upsert(updated); err != nil {
		r.mu.Unlock()
		return models.Device{}, err
	}

	r.devices[idx] = updated
	r.mu.Unlock()

	r.logger.Info().Str("device_id", id).Bool("enabled", enabled).Msg("Device enabled flag updated")

	r.bus.Publish(constants.TopicDeviceUpdated, updated.Clone())
	return updated.Clone(), nil
}
