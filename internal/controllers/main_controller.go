// Package controllers wires bus commands to the typed registry, checker and
// scheduler APIs. The controller is the only component that interprets bus
// payloads; everything else works with typed values.
package controllers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/devmon/internal/bus"
	"github.com/benmeehan/devmon/internal/checker"
	"github.com/benmeehan/devmon/internal/constants"
	"github.com/benmeehan/devmon/internal/models"
	"github.com/benmeehan/devmon/internal/registry"
	"github.com/benmeehan/devmon/internal/services"
	"github.com/benmeehan/devmon/internal/store"
	"github.com/benmeehan/devmon/internal/utils"
	"github.com/rs/zerolog"
)

// MainController translates command topics into registry, checker and
// scheduler operations and publishes their outcomes back on the bus.
type MainController struct {
	bus       *bus.EventBus
	registry  *registry.DeviceRegistry
	checker   *checker.TCPChecker
	scheduler *services.SchedulerService
	logger    zerolog.Logger

	defaultTimeoutSeconds int
	autoCheckEnabled      bool
	autoCheckInterval     time.Duration

	subscriptions []bus.Subscription

	// mu guards the lifecycle state below. A publisher whose subscriber
	// snapshot predates Stop's unsubscription can still deliver a command,
	// so handlers must never touch ctx or the WaitGroup unsynchronized.
	mu        sync.Mutex
	accepting bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewMainController initializes a new MainController.
func NewMainController(
	eventBus *bus.EventBus,
	deviceRegistry *registry.DeviceRegistry,
	tcpChecker *checker.TCPChecker,
	scheduler *services.SchedulerService,
	defaultTimeoutSeconds int,
	autoCheckEnabled bool,
	autoCheckInterval time.Duration,
	logger zerolog.Logger,
) *MainController {
	return &MainController{
		bus:                   eventBus,
		registry:              deviceRegistry,
		checker:               tcpChecker,
		scheduler:             scheduler,
		defaultTimeoutSeconds: defaultTimeoutSeconds,
		autoCheckEnabled:      autoCheckEnabled,
		autoCheckInterval:     autoCheckInterval,
		logger:                logger.With().Str("component", "controller").Logger(),
	}
}

// Start subscribes the controller to all command topics and, when auto-check
// is enabled, schedules the periodic cycle. The scheduled job publishes
// check_all_devices on the bus rather than probing directly, so scheduled
// and manual checks share one orchestration path and publish identically.
func (c *MainController) Start() error {
	c.mu.Lock()
	if c.ctx != nil {
		c.mu.Unlock()
		c.logger.Warn().Msg("MainController is already running")
		return errors.New("main controller is already running")
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.accepting = true
	c.mu.Unlock()

	handlers := map[string]bus.Handler{
		constants.TopicAddDevice:        c.handleAddDevice,
		constants.TopicRemoveDevice:     c.handleRemoveDevice,
		constants.TopicEnableDevice:     c.handleEnableDevice,
		constants.TopicDisableDevice:    c.handleDisableDevice,
		constants.TopicCheckAllDevices:  c.handleCheckAllDevices,
		constants.TopicGetDevices:       c.handleGetDevices,
		constants.TopicSetCheckInterval: c.handleSetCheckInterval,
	}
	for topic, handler := range handlers {
		c.subscriptions = append(c.subscriptions, c.bus.Subscribe(topic, handler))
	}

	if c.autoCheckEnabled {
		err := c.scheduler.Schedule(constants.AutoCheckJob, c.autoCheckInterval, func() {
			c.bus.Publish(constants.TopicCheckAllDevices, nil)
		})
		if err != nil {
			c.teardown()
			c.mu.Lock()
			c.accepting = false
			c.ctx = nil
			c.cancel = nil
			c.mu.Unlock()
			return fmt.Errorf("failed to schedule auto-check job: %w", err)
		}
	}

	c.logger.Info().
		Bool("auto_check", c.autoCheckEnabled).
		Dur("interval", c.autoCheckInterval).
		Msg("MainController started successfully")
	return nil
}

// Stop unsubscribes from all command topics, unschedules the auto-check job
// and waits for an in-flight check cycle to finish. In-flight probes are cut
// short via context cancellation; their partial batch is discarded.
func (c *MainController) Stop() error {
	c.mu.Lock()
	if c.ctx == nil {
		c.mu.Unlock()
		c.logger.Warn().Msg("MainController is not running")
		return errors.New("main controller is not running")
	}
	// Stop accepting late deliveries before waiting; a cycle that already
	// registered with the WaitGroup is drained by Wait below.
	c.accepting = false
	c.mu.Unlock()

	c.teardown()
	c.wg.Wait()

	c.mu.Lock()
	c.ctx = nil
	c.cancel = nil
	c.mu.Unlock()

	c.logger.Info().Msg("MainController stopped successfully")
	return nil
}

func (c *MainController) teardown() {
	if c.autoCheckEnabled {
		c.scheduler.Unschedule(constants.AutoCheckJob)
	}
	for _, sub := range c.subscriptions {
		c.bus.Unsubscribe(sub)
	}
	c.subscriptions = nil
	c.cancel()
}

// handleAddDevice validates the spec, applies defaults and adds the device.
// The registry publishes device_added itself after persisting.
func (c *MainController) handleAddDevice(event models.Event) error {
	spec, ok := deviceSpecPayload(event.Payload)
	if !ok {
		c.publishError(constants.TopicAddDevice, fmt.Errorf("%w: add_device payload is not a device spec", utils.ErrValidation))
		return nil
	}

	if spec.TimeoutSeconds == 0 {
		spec.TimeoutSeconds = c.defaultTimeoutSeconds
	}

	if err := utils.ValidateDeviceSpec(spec); err != nil {
		c.publishError(constants.TopicAddDevice, err)
		return nil
	}

	if _, err := c.registry.Add(spec); err != nil {
		c.publishError(constants.TopicAddDevice, err)
	}
	return nil
}

func (c *MainController) handleRemoveDevice(event models.Event) error {
	id, ok := event.Payload.(string)
	if !ok || id == "" {
		c.publishError(constants.TopicRemoveDevice, fmt.Errorf("%w: remove_device payload is not a device id", utils.ErrValidation))
		return nil
	}

	if err := c.registry.Remove(id); err != nil {
		c.publishError(constants.TopicRemoveDevice, err)
	}
	return nil
}

func (c *MainController) handleEnableDevice(event models.Event) error {
	return c.setEnabled(constants.TopicEnableDevice, event.Payload, true)
}

func (c *MainController) handleDisableDevice(event models.Event) error {
	return c.setEnabled(constants.TopicDisableDevice, event.Payload, false)
}

func (c *MainController) setEnabled(command string, payload any, enabled bool) error {
	id, ok := payload.(string)
	if !ok || id == "" {
		c.publishError(command, fmt.Errorf("%w: %s payload is not a device id", utils.ErrValidation, command))
		return nil
	}

	if _, err := c.registry.SetEnabled(id, enabled); err != nil {
		c.publishError(command, err)
	}
	return nil
}

// handleCheckAllDevices runs one full check cycle: snapshot the registry,
// probe every enabled device, apply each result to the registry, then
// publish the complete result set as one devices_checked event. Partial
// batches are never published.
func (c *MainController) handleCheckAllDevices(models.Event) error {
	ctx, ok := c.beginCycle()
	if !ok {
		return nil
	}
	defer c.wg.Done()

	devices := c.registry.GetAll()
	results := c.checker.CheckAll(ctx, devices)

	if ctx.Err() != nil {
		c.logger.Info().Int("results", len(results)).Msg("Shutdown during check cycle, discarding partial batch")
		return nil
	}

	for _, result := range results {
		if _, err := c.registry.UpdateStatus(result.DeviceID, result); err != nil {
			// A device removed mid-cycle or a failed status write must not
			// fail the rest of the batch.
			switch {
			case errors.Is(err, registry.ErrDeviceNotFound):
				c.logger.Debug().Str("device_id", result.DeviceID).Msg("Device vanished mid-cycle, dropping its result")
			default:
				c.logger.Error().Err(err).Str("device_id", result.DeviceID).Msg("Failed to apply check result")
			}
		}
	}

	c.bus.Publish(constants.TopicDevicesChecked, results)
	return nil
}

func (c *MainController) handleGetDevices(models.Event) error {
	c.bus.Publish(constants.TopicDevicesListed, c.registry.GetAll())
	return nil
}

func (c *MainController) handleSetCheckInterval(event models.Event) error {
	seconds, ok := event.Payload.(int)
	if !ok || seconds <= 0 {
		c.publishError(constants.TopicSetCheckInterval, fmt.Errorf("%w: set_check_interval payload is not a positive number of seconds", utils.ErrValidation))
		return nil
	}

	if !c.autoCheckEnabled {
		c.publishError(constants.TopicSetCheckInterval, errors.New("auto-check is disabled"))
		return nil
	}

	if err := c.scheduler.SetInterval(constants.AutoCheckJob, time.Duration(seconds)*time.Second); err != nil {
		c.publishError(constants.TopicSetCheckInterval, err)
		return nil
	}

	c.bus.Publish(constants.TopicCheckIntervalUpdated, seconds)
	return nil
}

// beginCycle registers a check cycle with the lifecycle state. It refuses
// once Stop has begun, so wg.Add never races wg.Wait and a stopping
// controller never starts a fresh batch.
func (c *MainController) beginCycle() (context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.accepting {
		return nil, false
	}
	c.wg.Add(1)
	return c.ctx, true
}

// publishError classifies err into the failure taxonomy and publishes it on
// the command's paired error topic.
func (c *MainController) publishError(command string, err error) {
	kind := models.ErrorKindInternal
	switch {
	case errors.Is(err, utils.ErrValidation):
		kind = models.ErrorKindValidation
	case errors.Is(err, registry.ErrDuplicateDevice):
		kind = models.ErrorKindDuplicateDevice
	case errors.Is(err, registry.ErrDeviceNotFound):
		kind = models.ErrorKindNotFound
	case errors.Is(err, store.ErrPersistence):
		kind = models.ErrorKindPersistence
	}

	c.logger.Warn().Err(err).Str("command", command).Str("kind", kind).Msg("Command failed")

	c.bus.Publish(constants.ErrorTopic(command), models.ErrorEvent{
		Kind:    kind,
		Message: err.Error(),
	})
}

// deviceSpecPayload accepts the spec either as a typed value (in-process
// publishers) or a pointer (decoded transport payloads).
func deviceSpecPayload(payload any) (models.DeviceSpec, bool) {
	switch v := payload.(type) {
	case models.DeviceSpec:
		return v, true
	case *models.DeviceSpec:
		if v != nil {
			return *v, true
		}
	}
	return models.DeviceSpec{}, false
}
