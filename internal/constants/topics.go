package constants

// Command topics consumed by the controller.
const (
	TopicAddDevice        = "add_device"
	TopicRemoveDevice     = "remove_device"
	TopicEnableDevice     = "enable_device"
	TopicDisableDevice    = "disable_device"
	TopicCheckAllDevices  = "check_all_devices"
	TopicGetDevices       = "get_devices"
	TopicSetCheckInterval = "set_check_interval"
)

// Outcome topics published by the registry, controller and telemetry service.
const (
	TopicDeviceAdded          = "device_added"
	TopicDeviceRemoved        = "device_removed"
	TopicDeviceUpdated        = "device_updated"
	TopicDevicesChecked       = "devices_checked"
	TopicDevicesListed        = "devices_listed"
	TopicCheckIntervalUpdated = "check_interval_updated"
	TopicSystemMetrics        = "system_metrics"
)

// TopicHandlerError carries isolated subscriber failures; the bus publishes
// it itself and never fans failures back to publishers.
const TopicHandlerError = "handler_error"

// ErrorTopicSuffix is appended to a command topic to form its error topic,
// e.g. add_device -> add_device_error.
const ErrorTopicSuffix = "_error"

// ErrorTopic returns the error topic paired with a command topic.
func ErrorTopic(command string) string {
	return command + ErrorTopicSuffix
}
