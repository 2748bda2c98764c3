// SPDX-License-Identifier: BSD-3-Clause

package fancond

import "errors"

var (
	// ErrServiceAlreadyStarted indicates Run was called on an
	// already-running service.
	ErrServiceAlreadyStarted = errors.New("fan control service already started")
	// ErrInvalidConfiguration indicates the service configuration failed
	// validation.
	ErrInvalidConfiguration = errors.New("invalid fan control service configuration")
	// ErrNATSConnectionFailed indicates the in-process NATS connection
	// could not be established.
	ErrNATSConnectionFailed = errors.New("NATS connection failed")
	// ErrMicroServiceCreationFailed indicates micro.AddService failed.
	ErrMicroServiceCreationFailed = errors.New("micro service creation failed")
	// ErrControllerStartFailed indicates the underlying controller failed
	// to start.
	ErrControllerStartFailed = errors.New("fan controller start failed")
)
