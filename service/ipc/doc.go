// SPDX-License-Identifier: BSD-3-Clause

// Package ipc provides an in-process NATS server for inter-process communication
// within the fan control daemon. This service acts as the message bus between
// the daemon's process and the controller/RPC service it supervises.
//
// The IPC service creates and manages a NATS server instance that runs embedded
// within the daemon process, eliminating the need for external NATS server
// dependencies. It provides JetStream capabilities for persistent messaging
// and state management across components.
//
// # Core Features
//
//   - Embedded NATS server with JetStream support
//   - In-process connection provider for other services
//   - Configurable server options and storage directories
//   - Graceful startup and shutdown handling
//   - Integration with the service.Service lifecycle
//
// # Usage
//
// The IPC service is typically started first, as the fan control service
// depends on it for communication:
//
//	ipcService := ipc.New(
//		ipc.WithName("fancond-ipc"),
//		ipc.WithServerOpts(&server.Options{
//			ServerName: "fancond-ipc",
//			JetStream:  true,
//			StoreDir:   "/var/lib/fancond/ipc",
//		}),
//	)
//
//	// Start the service
//	err := ipcService.Run(ctx, nil)
//
// Other services can obtain connection providers to communicate through the IPC:
//
//	connProvider := ipcService.GetConnProvider()
//	conn, err := connProvider.InProcessConn()
//	if err != nil {
//		// Handle connection error
//	}
//
// # Configuration
//
// The IPC service can be configured with two options:
//
//   - WithName: set the service's name, used for the supervision tree entry
//   - WithServerOpts: configure the embedded NATS server directly
//     (JetStream, StoreDir, and any other *server.Options field)
//
// # Architecture
//
// The IPC service follows the daemon's standard service pattern:
//
//   - Implements the service.Service interface
//   - Provides a Run method for lifecycle management
//   - Supports graceful shutdown via context cancellation
//   - Integrates with the global logging system
//
// The service creates an embedded NATS server that other services connect to
// using in-process connections, providing high-performance message passing
// without network overhead.
package ipc
