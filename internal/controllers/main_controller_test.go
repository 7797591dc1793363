package controllers_test

import (
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/benmeehan/devmon/internal/bus"
	"github.com/benmeehan/devmon/internal/checker"
	"github.com/benmeehan/devmon/internal/constants"
	"github.com/benmeehan/devmon/internal/controllers"
	"github.com/benmeehan/devmon/internal/models"
	"github.com/benmeehan/devmon/internal/registry"
	"github.com/benmeehan/devmon/internal/services"
	"github.com/benmeehan/devmon/internal/store"
	"github.com/benmeehan/devmon/pkg/file"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture wires a full in-process stack: real bus, file-backed store,
// registry, checker, scheduler and controller.
type fixture struct {
	bus        *bus.EventBus
	registry   *registry.DeviceRegistry
	controller *controllers.MainController
}

func newFixture(t *testing.T, autoCheck bool, autoCheckInterval time.Duration) *fixture {
	t.Helper()

	eventBus := bus.NewEventBus(zerolog.Nop())
	deviceStore := store.NewFileDeviceStore(filepath.Join(t.TempDir(), "devices.json"), file.NewFileService(), zerolog.Nop())
	deviceRegistry := registry.NewDeviceRegistry(deviceStore, eventBus, zerolog.Nop())
	require.NoError(t, deviceRegistry.Load())

	tcpChecker := checker.NewTCPChecker(time.Second, 4, zerolog.Nop())

	scheduler := services.NewSchedulerService(zerolog.Nop())
	require.NoError(t, scheduler.Start())
	t.Cleanup(func() { _ = scheduler.Stop() })

	controller := controllers.NewMainController(
		eventBus, deviceRegistry, tcpChecker, scheduler,
		5, autoCheck, autoCheckInterval, zerolog.Nop(),
	)
	require.NoError(t, controller.Start())
	t.Cleanup(func() { _ = controller.Stop() })

	return &fixture{bus: eventBus, registry: deviceRegistry, controller: controller}
}

// recorder captures events published on one topic. Delivery in these tests
// is synchronous on the publishing goroutine.
type recorder struct {
	events []models.Event
}

func (f *fixture) record(topic string) *recorder {
	r := &recorder{}
	f.bus.Subscribe(topic, func(e models.Event) error {
		r.events = append(r.events, e)
		return nil
	})
	return r
}

// closedPort returns a localhost port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	require.NoError(t, listener.Close())
	return port
}

// TestMainController_AddDevice verifies the add command end to end:
// validation, default application, persistence and the device_added event.
func TestMainController_AddDevice(t *testing.T) {
	f := newFixture(t, false, 0)
	added := f.record(constants.TopicDeviceAdded)

	f.bus.Publish(constants.TopicAddDevice, models.DeviceSpec{Name: "r1", Host: "10.0.0.1", Port: 22})

	require.Len(t, added.events, 1)
	device := added.events[0].Payload.(models.Device)
	assert.Equal(t, "r1", device.Name)
	assert.Equal(t, 5, device.TimeoutSeconds) // default applied
	assert.True(t, device.Enabled)

	all := f.registry.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, device.ID, all[0].ID)
}

// TestMainController_AddDevice_Invalid verifies that malformed specs are
// rejected before the registry and reported on the paired error topic.
func TestMainController_AddDevice_Invalid(t *testing.T) {
	f := newFixture(t, false, 0)
	added := f.record(constants.TopicDeviceAdded)
	failed := f.record(constants.ErrorTopic(constants.TopicAddDevice))

	cases := []models.DeviceSpec{
		{Name: "", Host: "10.0.0.1", Port: 22},
		{Name: "r1", Host: "", Port: 22},
		{Name: "r1", Host: "10.0.0.1", Port: 0},
		{Name: "r1", Host: "10.0.0.1", Port: 70000},
		{Name: "r1", Host: "10.0.0.1", Port: 22, TimeoutSeconds: 301},
	}
	for _, spec := range cases {
		f.bus.Publish(constants.TopicAddDevice, spec)
	}

	assert.Empty(t, added.events)
	assert.Empty(t, f.registry.GetAll())
	require.Len(t, failed.events, len(cases))
	for _, e := range failed.events {
		assert.Equal(t, models.ErrorKindValidation, e.Payload.(models.ErrorEvent).Kind)
	}
}

// TestMainController_AddDevice_Duplicate verifies the duplicate-endpoint
// error event.
func TestMainController_AddDevice_Duplicate(t *testing.T) {
	f := newFixture(t, false, 0)
	failed := f.record(constants.ErrorTopic(constants.TopicAddDevice))

	spec := models.DeviceSpec{Name: "r1", Host: "10.0.0.1", Port: 22}
	f.bus.Publish(constants.TopicAddDevice, spec)
	f.bus.Publish(constants.TopicAddDevice, spec)

	assert.Len(t, f.registry.GetAll(), 1)
	require.Len(t, failed.events, 1)
	assert.Equal(t, models.ErrorKindDuplicateDevice, failed.events[0].Payload.(models.ErrorEvent).Kind)
}

// TestMainController_RemoveDevice verifies removal and the not_found error
// for unknown ids.
func TestMainController_RemoveDevice(t *testing.T) {
	f := newFixture(t, false, 0)
	removed := f.record(constants.TopicDeviceRemoved)
	failed := f.record(constants.ErrorTopic(constants.TopicRemoveDevice))

	f.bus.Publish(constants.TopicAddDevice, models.DeviceSpec{Name: "r1", Host: "10.0.0.1", Port: 22})
	id := f.registry.GetAll()[0].ID

	f.bus.Publish(constants.TopicRemoveDevice, id)
	require.Len(t, removed.events, 1)
	assert.Equal(t, id, removed.events[0].Payload)
	assert.Empty(t, f.registry.GetAll())

	f.bus.Publish(constants.TopicRemoveDevice, "no-such-id")
	require.Len(t, failed.events, 1)
	assert.Equal(t, models.ErrorKindNotFound, failed.events[0].Payload.(models.ErrorEvent).Kind)
}

// TestMainController_CheckAllDevices covers the end-to-end scenario: a
// device on a closed port is checked, reported unreachable in one complete
// devices_checked event, and its registry status flips to offline.
func TestMainController_CheckAllDevices(t *testing.T) {
	f := newFixture(t, false, 0)
	checked := f.record(constants.TopicDevicesChecked)

	f.bus.Publish(constants.TopicAddDevice, models.DeviceSpec{
		Name: "r1", Host: "127.0.0.1", Port: closedPort(t), TimeoutSeconds: 1,
	})
	id := f.registry.GetAll()[0].ID

	f.bus.Publish(constants.TopicCheckAllDevices, nil)

	require.Len(t, checked.events, 1)
	results := checked.events[0].Payload.([]models.CheckResult)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].DeviceID)
	assert.False(t, results[0].Reachable)
	assert.NotEmpty(t, results[0].Error)

	device, err := f.registry.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, device.Status)
	require.NotNil(t, device.LastCheckedAt)
}

// TestMainController_CheckAllSkipsDisabled verifies that a disabled device
// produces no result and keeps its status.
func TestMainController_CheckAllSkipsDisabled(t *testing.T) {
	f := newFixture(t, false, 0)
	checked := f.record(constants.TopicDevicesChecked)
	updated := f.record(constants.TopicDeviceUpdated)

	port := closedPort(t)
	f.bus.Publish(constants.TopicAddDevice, models.DeviceSpec{Name: "r1", Host: "127.0.0.1", Port: port, TimeoutSeconds: 1})
	f.bus.Publish(constants.TopicAddDevice, models.DeviceSpec{Name: "r2", Host: "127.0.0.1", Port: port + 1, TimeoutSeconds: 1})

	disabledID := f.registry.GetAll()[0].ID
	f.bus.Publish(constants.TopicDisableDevice, disabledID)
	require.Len(t, updated.events, 1)

	f.bus.Publish(constants.TopicCheckAllDevices, nil)

	require.Len(t, checked.events, 1)
	results := checked.events[0].Payload.([]models.CheckResult)
	require.Len(t, results, 1)
	assert.NotEqual(t, disabledID, results[0].DeviceID)

	device, err := f.registry.Get(disabledID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnknown, device.Status)
	assert.Nil(t, device.LastCheckedAt)
}

// TestMainController_GetDevices verifies the devices_listed reply.
func TestMainController_GetDevices(t *testing.T) {
	f := newFixture(t, false, 0)
	listed := f.record(constants.TopicDevicesListed)

	f.bus.Publish(constants.TopicGetDevices, nil)
	f.bus.Publish(constants.TopicAddDevice, models.DeviceSpec{Name: "r1", Host: "10.0.0.1", Port: 22})
	f.bus.Publish(constants.TopicGetDevices, nil)

	require.Len(t, listed.events, 2)
	assert.Empty(t, listed.events[0].Payload.([]models.Device))
	devices := listed.events[1].Payload.([]models.Device)
	require.Len(t, devices, 1)
	assert.Equal(t, "r1", devices[0].Name)
}

// TestMainController_SetCheckInterval verifies interval reconfiguration of
// the auto-check job.
func TestMainController_SetCheckInterval(t *testing.T) {
	f := newFixture(t, true, time.Hour)
	confirmed := f.record(constants.TopicCheckIntervalUpdated)
	failed := f.record(constants.ErrorTopic(constants.TopicSetCheckInterval))

	f.bus.Publish(constants.TopicSetCheckInterval, 120)
	require.Len(t, confirmed.events, 1)
	assert.Equal(t, 120, confirmed.events[0].Payload)

	f.bus.Publish(constants.TopicSetCheckInterval, 0)
	require.Len(t, failed.events, 1)
	assert.Equal(t, models.ErrorKindValidation, failed.events[0].Payload.(models.ErrorEvent).Kind)
}

// TestMainController_SetCheckInterval_AutoCheckDisabled verifies the error
// when there is no auto-check job to reconfigure.
func TestMainController_SetCheckInterval_AutoCheckDisabled(t *testing.T) {
	f := newFixture(t, false, 0)
	failed := f.record(constants.ErrorTopic(constants.TopicSetCheckInterval))

	f.bus.Publish(constants.TopicSetCheckInterval, 120)

	require.Len(t, failed.events, 1)
}

// TestMainController_StopDuringCheckCommands verifies shutdown against a
// publisher that keeps delivering check_all_devices while Stop runs, the way
// an in-flight auto-check task can after the controller unsubscribes. Run
// with -race: Stop must never tear down lifecycle state a late-delivered
// cycle is still reading, and commands arriving after Stop are ignored.
func TestMainController_StopDuringCheckCommands(t *testing.T) {
	f := newFixture(t, false, 0)
	checked := f.record(constants.TopicDevicesChecked)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			f.bus.Publish(constants.TopicCheckAllDevices, nil)
		}
	}()

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, f.controller.Stop())
	<-done

	// Unsubscribed and no longer accepting: no further cycles complete.
	cyclesAfterStop := len(checked.events)
	f.bus.Publish(constants.TopicCheckAllDevices, nil)
	assert.Len(t, checked.events, cyclesAfterStop)

	// The controller restarts cleanly after a concurrent shutdown.
	require.NoError(t, f.controller.Start())
	f.bus.Publish(constants.TopicCheckAllDevices, nil)
	assert.Len(t, checked.events, cyclesAfterStop+1)
}

// TestMainController_AutoCheckSharesOrchestrationPath verifies that the
// scheduled job goes through the same bus command as a manual check: its
// cycle shows up as a regular devices_checked event.
func TestMainController_AutoCheckSharesOrchestrationPath(t *testing.T) {
	eventBus := bus.NewEventBus(zerolog.Nop())
	deviceStore := store.NewFileDeviceStore(filepath.Join(t.TempDir(), "devices.json"), file.NewFileService(), zerolog.Nop())
	deviceRegistry := registry.NewDeviceRegistry(deviceStore, eventBus, zerolog.Nop())
	require.NoError(t, deviceRegistry.Load())

	checked := make(chan models.Event, 16)
	eventBus.Subscribe(constants.TopicDevicesChecked, func(e models.Event) error {
		checked <- e
		return nil
	})

	scheduler := services.NewSchedulerService(zerolog.Nop())
	require.NoError(t, scheduler.Start())
	defer func() { _ = scheduler.Stop() }()

	controller := controllers.NewMainController(
		eventBus, deviceRegistry, checker.NewTCPChecker(time.Second, 4, zerolog.Nop()),
		scheduler, 5, true, 100*time.Millisecond, zerolog.Nop(),
	)
	require.NoError(t, controller.Start())
	defer func() { _ = controller.Stop() }()

	assert.True(t, scheduler.IsScheduled(constants.AutoCheckJob))

	select {
	case e := <-checked:
		assert.Empty(t, e.Payload.([]models.CheckResult))
	case <-time.After(2 * time.Second):
		t.Fatal("auto-check cycle did not publish devices_checked")
	}
}
