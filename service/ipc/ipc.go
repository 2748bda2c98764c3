// SPDX-License-Identifier: BSD-3-Clause

package ipc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fancond/fancond/pkg/log"
	"github.com/fancond/fancond/service"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Compile-time assertion that IPC implements service.Service.
var _ service.Service = (*IPC)(nil)

const (
	defaultName            = "fancond-ipc"
	defaultStartupTimeout  = 5 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// IPC provides an embedded NATS server for inter-process communication
// within the fan control daemon. It is the message bus the controller/RPC
// service connects to.
//
// The IPC service creates and manages a NATS server instance that runs
// embedded within the daemon process, eliminating the need for external
// NATS server dependencies. It provides JetStream capabilities for
// persistent messaging and state management across components.
type IPC struct {
	config *config
	server *server.Server
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a new IPC service instance with the provided configuration options.
//
// The IPC service is configured with sensible defaults but can be customized
// using the provided Option functions:
//
//   - WithName sets the service's name, used for the supervision tree entry
//   - WithServerOpts replaces the embedded NATS server's *server.Options
//     wholesale, so callers can set JetStream, StoreDir, or any other field
//
// Example usage:
//
//	ipcService := ipc.New(
//		ipc.WithName("fancond-ipc"),
//		ipc.WithServerOpts(&server.Options{
//			ServerName: "fancond-ipc",
//			JetStream:  true,
//			StoreDir:   "/var/lib/fancond/ipc",
//		}),
//	)
func New(opts ...Option) *IPC {
	cfg := &config{
		name: defaultName,
		serverOpts: &server.Options{
			ServerName: defaultName,
			DontListen: true,
		},
	}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return &IPC{
		config: cfg,
	}
}

// Name returns the service name as configured.
// This implements the service.Service interface.
func (s *IPC) Name() string {
	return s.config.name
}

// Run starts the IPC service and runs the embedded NATS server.
//
// This method implements the service.Service interface and handles the
// complete lifecycle of the NATS server:
//
//  1. Creates and configures the NATS server
//  2. Starts the server and waits for it to be ready
//  3. Runs until the context is canceled
//  4. Performs graceful shutdown
//
// The method will return an error if:
//   - The NATS server cannot be created or started
//   - The server fails to become ready within the startup timeout
//   - An existing IPC connection is provided (not supported)
//
// The ipcConn parameter should be nil for the IPC service, as it provides
// the IPC infrastructure rather than consuming it.
func (s *IPC) Run(ctx context.Context, ipcConn nats.InProcessConnProvider) error {
	s.tracer = otel.Tracer(s.config.name)

	ctx, span := s.tracer.Start(ctx, "Run")
	defer span.End()

	s.logger = log.GetGlobalLogger().With("service", s.config.name)
	s.logger.InfoContext(ctx, "Starting IPC service",
		"server_name", s.config.serverOpts.ServerName,
		"jetstream_enabled", s.config.serverOpts.JetStream,
		"store_dir", s.config.serverOpts.StoreDir)

	// We might be able to handle this in the future, for now bail out
	if ipcConn != nil {
		err := fmt.Errorf("existing IPC found, bailing out")
		span.RecordError(err)
		return err
	}

	ns, err := server.NewServer(s.config.serverOpts)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %w", ErrServerCreationFailed, err)
	}
	s.server = ns
	s.server.SetLoggerV2(log.NewNATSLogger(s.logger), true, false, false)

	// Start the server
	s.logger.InfoContext(ctx, "Starting NATS server", "server_name", s.config.serverOpts.ServerName)
	s.server.Start()

	// Wait for server to be ready with timeout
	if !s.server.ReadyForConnections(defaultStartupTimeout) {
		s.server.Shutdown()
		err := fmt.Errorf("%w: server not ready within %v", ErrServerTimeout, defaultStartupTimeout)
		span.RecordError(err)
		return err
	}

	s.logger.InfoContext(ctx, "IPC server started successfully",
		"server_name", s.config.serverOpts.ServerName,
		"server_id", s.server.ID(),
		"jetstream_enabled", s.config.serverOpts.JetStream)

	span.SetAttributes(
		attribute.String("service.name", s.config.name),
		attribute.String("server.name", s.config.serverOpts.ServerName),
		attribute.String("server.id", s.server.ID()),
		attribute.Bool("jetstream.enabled", s.config.serverOpts.JetStream),
	)

	// Wait for shutdown signal
	<-ctx.Done()

	// Perform graceful shutdown
	return s.shutdown(ctx)
}

// GetConnProvider returns a connection provider that can be used by other
// services to obtain in-process connections to the NATS server.
//
// GetConnProvider itself polls every millisecond, for up to the startup
// timeout, until Run has created the server, so it can be called before
// the server exists. If the server still does not exist, the returned
// ConnProvider holds a nil server and every InProcessConn call fails with
// ErrConnectionNotAvailable.
//
// Example usage:
//
//	provider := ipcService.GetConnProvider()
//	conn, err := provider.InProcessConn()
//	if err != nil {
//		// Handle connection error
//	}
//	defer conn.Close()
func (s *IPC) GetConnProvider() *ConnProvider {
	// Block and poll until s.server is not nil for a maximum of the startup timeout.
	// Usually it takes between 2 and 10 milliseconds to start the server,
	// so polling once every millisecond should be fine and the startup timeout
	// is more than enough. If it takes longer than that, something is probably wrong.
	// In that case, we return a ConnProvider with a nil server, which will
	// cause any connection attempts to fail.
	timeout := time.Now().Add(defaultStartupTimeout)
	for s.server == nil && time.Now().Before(timeout) {
		time.Sleep(1 * time.Millisecond)
	}

	return &ConnProvider{
		server: s.server,
	}
}

// shutdown performs graceful shutdown of the NATS server.
//
// This method attempts to perform a lame duck shutdown first, which allows
// existing connections to drain gracefully. If Shutdown does not return
// within defaultShutdownTimeout, it logs a warning and returns without
// waiting further.
//
// The method always returns the original context error to indicate why
// the shutdown was initiated.
func (s *IPC) shutdown(ctx context.Context) error {
	// Capture the context error before creating shutdown context
	err := ctx.Err()

	// Create a new context for shutdown operations since the original is canceled
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
	defer cancel()

	s.logger.InfoContext(shutdownCtx, "Shutting down IPC server",
		"shutdown_timeout", defaultShutdownTimeout)

	if s.server != nil {
		// Attempt graceful shutdown with lame duck mode
		s.logger.InfoContext(shutdownCtx, "Initiating lame duck shutdown")
		s.server.LameDuckShutdown()

		// Wait for shutdown to complete or timeout
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.server.Shutdown()
		}()

		select {
		case <-done:
			s.logger.InfoContext(shutdownCtx, "IPC server shutdown completed")
		case <-shutdownCtx.Done():
			s.logger.WarnContext(shutdownCtx, "IPC server shutdown timed out")
			// Server.Shutdown() should handle this gracefully even if called multiple times
		}
	}

	return err
}
