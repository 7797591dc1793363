package utils

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/benmeehan/devmon/internal/constants"
	"github.com/benmeehan/devmon/internal/models"
)

// ErrValidation marks a malformed device spec. Validation rejects input
// before it reaches the registry and never mutates state.
var ErrValidation = errors.New("validation failed")

var (
	deviceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.\-]+$`)
	hostnamePattern   = regexp.MustCompile(`^([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])(\.([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9\-]{0,61}[a-zA-Z0-9]))*$`)
)

// ValidateDeviceName checks that the name is non-empty after trimming, at
// most 50 characters, and uses only letters, digits and `_.-`.
func ValidateDeviceName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: device name must not be empty", ErrValidation)
	}
	if len(trimmed) > constants.MaxDeviceNameLength {
		return fmt.Errorf("%w: device name exceeds %d characters", ErrValidation, constants.MaxDeviceNameLength)
	}
	if !deviceNamePattern.MatchString(trimmed) {
		return fmt.Errorf("%w: device name contains invalid characters", ErrValidation)
	}
	return nil
}

// ValidateHost checks that host is an IP literal or an RFC 1123 hostname.
func ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("%w: host must not be empty", ErrValidation)
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if len(host) > 253 || !hostnamePattern.MatchString(host) {
		return fmt.Errorf("%w: %q is not a valid hostname or IP address", ErrValidation, host)
	}
	return nil
}

// ValidatePort checks that port is in [1, 65535].
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d is outside [1, 65535]", ErrValidation, port)
	}
	return nil
}

// ValidateTimeout checks that the probe timeout is in [1, 300] seconds.
func ValidateTimeout(seconds int) error {
	if seconds < 1 || seconds > constants.MaxTimeoutSeconds {
		return fmt.Errorf("%w: timeout %ds is outside [1, %d]", ErrValidation, seconds, constants.MaxTimeoutSeconds)
	}
	return nil
}

// ValidateDeviceSpec checks a full device spec. The spec's timeout must
// already have its default applied; a zero timeout is rejected here.
func ValidateDeviceSpec(spec models.DeviceSpec) error {
	if err := ValidateDeviceName(spec.Name); err != nil {
		return err
	}
	if err := ValidateHost(spec.Host); err != nil {
		return err
	}
	if err := ValidatePort(spec.Port); err != nil {
		return err
	}
	return ValidateTimeout(spec.TimeoutSeconds)
}
