// SPDX-License-Identifier: BSD-3-Clause

package ipc

import (
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/micro"
)

// Fan Control Service Subjects
const (
	// Device configuration
	SubjectFanGetDevices           = "fan.get_devices"
	SubjectFanSetDevices           = "fan.set_devices"
	SubjectFanGetEnumeratedDevices = "fan.get_enumerated_devices"

	// Controller-wide configuration
	SubjectFanGetConfig = "fan.get_config"
	SubjectFanSetConfig = "fan.set_config"

	// Service lifecycle
	SubjectFanStopService = "fan.stop_service"

	// Per-fan state machine operations
	SubjectFanGetStatus  = "fan.get_status"
	SubjectFanEnable     = "fan.enable"
	SubjectFanEnableAll  = "fan.enable_all"
	SubjectFanDisable    = "fan.disable"
	SubjectFanDisableAll = "fan.disable_all"
	SubjectFanTest       = "fan.test"
	SubjectFanReload     = "fan.reload"
	SubjectFanNvInit     = "fan.nv_init"

	// Notifications: plain publish/subscribe, not micro endpoints.
	// Clients nc.Subscribe these directly rather than issuing a request.
	SubjectFanDevicesChanged = "fan.devices_changed"
	SubjectFanStatusChanged  = "fan.status_changed"
)

// ParseSubject splits a subject into group and endpoint components for NATS micro registration.
// For subjects like "fan.get_devices", it returns group="fan" and endpoint="get_devices".
// Returns an error if the subject doesn't contain exactly one dot or if components are empty.
func ParseSubject(subject string) (group, endpoint string, err error) {
	if subject == "" {
		return "", "", fmt.Errorf("subject cannot be empty")
	}

	parts := strings.Split(subject, ".")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("subject %s must contain exactly one dot", subject)
	}

	group = strings.TrimSpace(parts[0])
	endpoint = strings.TrimSpace(parts[1])

	if group == "" {
		return "", "", fmt.Errorf("group component of subject %s cannot be empty", subject)
	}

	if endpoint == "" {
		return "", "", fmt.Errorf("endpoint component of subject %s cannot be empty", subject)
	}

	return group, endpoint, nil
}

// RegisterEndpointWithGroupCache registers an endpoint by parsing the subject and
// managing group creation. It reduces boilerplate by creating and caching groups
// as endpoints for different subjects under the same dot-prefix are registered.
//
// Example usage:
//
//	groups := make(map[string]micro.Group)
//	err := ipc.RegisterEndpointWithGroupCache(service, ipc.SubjectFanGetDevices, handler, groups)
func RegisterEndpointWithGroupCache(service micro.Service, subject string, handler micro.Handler, groups map[string]micro.Group) error {
	groupName, endpointName, err := ParseSubject(subject)
	if err != nil {
		return fmt.Errorf("failed to parse subject %s: %w", subject, err)
	}

	group, exists := groups[groupName]
	if !exists {
		group = service.AddGroup(groupName)
		groups[groupName] = group
	}

	if err := group.AddEndpoint(endpointName, handler); err != nil {
		return fmt.Errorf("failed to register endpoint %s in group %s: %w", endpointName, groupName, err)
	}

	return nil
}
