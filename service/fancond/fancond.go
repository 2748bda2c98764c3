// SPDX-License-Identifier: BSD-3-Clause

// Package fancond is the NATS IPC surface over pkg/controller: it wires a
// controller.Controller and a pkg/persist.Store together behind the
// service.Service lifecycle, and registers one micro endpoint per
// request/reply operation plus two plain publish subjects for the two
// subscribable streams (SubscribeDevices/SubscribeFanStatus subscribe to
// these directly rather than issuing a request).
package fancond

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fancond/fancond/pkg/controller"
	"github.com/fancond/fancond/pkg/fan"
	"github.com/fancond/fancond/pkg/ipc"
	"github.com/fancond/fancond/pkg/log"
	"github.com/fancond/fancond/pkg/persist"
	"github.com/fancond/fancond/pkg/telemetry"
	"github.com/fancond/fancond/service"
)

var _ service.Service = (*Service)(nil)

// Service is the fan control daemon's NATS-facing half.
type Service struct {
	config *config

	nc           *nats.Conn
	microService micro.Service
	store        *persist.Store
	controller   *controller.Controller

	logger *slog.Logger
	tracer trace.Tracer

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

// New constructs a Service with the given options.
func New(opts ...Option) *Service {
	cfg := &config{
		serviceName:        DefaultServiceName,
		serviceDescription: DefaultServiceDescription,
		serviceVersion:     DefaultServiceVersion,
		hwmonPath:          DefaultHwmonPath,
		configPath:         DefaultConfigPath,
	}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return &Service{config: cfg}
}

// Name returns the service name.
func (s *Service) Name() string {
	return s.config.serviceName
}

// Run starts the fan controller, connects to the in-process NATS server,
// and registers the IPC surface until ctx is canceled.
func (s *Service) Run(ctx context.Context, ipcConn nats.InProcessConnProvider) error {
	s.tracer = otel.Tracer(s.config.serviceName)
	ctx, span := s.tracer.Start(ctx, "fancond.Run")
	defer span.End()

	s.logger = log.GetGlobalLogger().With("service", s.config.serviceName)

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrServiceAlreadyStarted
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if err := s.config.Validate(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	nc, err := nats.Connect("", nats.InProcessServer(ipcConn))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %w", ErrNATSConnectionFailed, err)
	}
	s.nc = nc
	defer nc.Drain() //nolint:errcheck

	s.store = persist.NewStore(s.config.configPath)
	s.controller = controller.New(s.config.hwmonPath, s.store, s.logger)

	if cfg, err := s.store.LoadConfig(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to load controller config, using defaults", "error", err)
	} else {
		s.controller.SetConfig(cfg)
	}

	s.controller.AddDeviceObserver(func(_ context.Context, dto fan.DevicesDTO) {
		s.publishDevices(dto)
	})
	s.controller.AddStatusObserver(func(_ context.Context, label string, st fan.Status) {
		s.publishStatus(label, st)
	})

	if err := s.controller.Start(ctx, nil); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %w", ErrControllerStartFailed, err)
	}

	s.microService, err = micro.AddService(nc, micro.Config{
		Name:        s.config.serviceName,
		Description: s.config.serviceDescription,
		Version:     s.config.serviceVersion,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %w", ErrMicroServiceCreationFailed, err)
	}

	if err := s.registerEndpoints(ctx); err != nil {
		span.RecordError(err)
		return err
	}

	s.logger.InfoContext(ctx, "fan control service started",
		"hwmon_path", s.config.hwmonPath,
		"config_path", s.config.configPath)

	span.SetAttributes(
		attribute.String("service.name", s.config.serviceName),
		attribute.String("service.version", s.config.serviceVersion),
	)

	<-ctx.Done()

	err = ctx.Err()
	shutdownCtx := context.WithoutCancel(ctx)
	s.logger.InfoContext(shutdownCtx, "shutting down fan control service")
	s.shutdown(shutdownCtx)

	return err
}

func (s *Service) shutdown(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.started = false
	s.mu.Unlock()

	if s.controller != nil {
		if err := s.controller.Stop(ctx); err != nil {
			s.logger.WarnContext(ctx, "controller stop failed", "error", err)
		}
	}
}

func (s *Service) registerEndpoints(ctx context.Context) error {
	groups := make(map[string]micro.Group)

	register := func(subject string, handler func(context.Context, micro.Request)) error {
		return ipc.RegisterEndpointWithGroupCache(s.microService, subject,
			micro.HandlerFunc(s.createRequestHandler(ctx, handler)), groups)
	}

	endpoints := []struct {
		subject string
		handler func(context.Context, micro.Request)
	}{
		{ipc.SubjectFanGetDevices, s.handleGetDevices},
		{ipc.SubjectFanSetDevices, s.handleSetDevices},
		{ipc.SubjectFanGetEnumeratedDevices, s.handleGetEnumeratedDevices},
		{ipc.SubjectFanGetConfig, s.handleGetConfig},
		{ipc.SubjectFanSetConfig, s.handleSetConfig},
		{ipc.SubjectFanGetStatus, s.handleGetStatus},
		{ipc.SubjectFanEnable, s.handleEnable},
		{ipc.SubjectFanEnableAll, s.handleEnableAll},
		{ipc.SubjectFanDisable, s.handleDisable},
		{ipc.SubjectFanDisableAll, s.handleDisableAll},
		{ipc.SubjectFanTest, s.handleTest},
		{ipc.SubjectFanReload, s.handleReload},
		{ipc.SubjectFanNvInit, s.handleNvInit},
		{ipc.SubjectFanStopService, s.handleStopService},
	}

	for _, ep := range endpoints {
		if err := register(ep.subject, ep.handler); err != nil {
			return fmt.Errorf("failed to register endpoint %s: %w", ep.subject, err)
		}
	}
	return nil
}

func (s *Service) createRequestHandler(parentCtx context.Context, handler func(context.Context, micro.Request)) micro.HandlerFunc {
	return func(req micro.Request) {
		ctx := telemetry.GetCtxFromReq(req)
		ctx = context.WithoutCancel(ctx)

		select {
		case <-parentCtx.Done():
			var cancel context.CancelFunc
			ctx, cancel = context.WithCancel(ctx)
			cancel()
		default:
		}

		if s.tracer != nil {
			var span trace.Span
			ctx, span = s.tracer.Start(ctx, "fancond.handleRequest")
			span.SetAttributes(
				attribute.String("subject", req.Subject()),
				attribute.String("service", s.config.serviceName),
			)
			defer span.End()
		}

		handler(ctx, req) //nolint:contextcheck
	}
}

func (s *Service) publishDevices(dto fan.DevicesDTO) {
	data, err := json.Marshal(dto)
	if err != nil {
		s.logger.Error("failed to marshal devices notification", "error", err)
		return
	}
	if err := s.nc.Publish(ipc.SubjectFanDevicesChanged, data); err != nil {
		s.logger.Error("failed to publish devices notification", "error", err)
	}
}

// StatusEvent is the body published to SubjectFanStatusChanged.
type StatusEvent struct {
	Label  string `json:"label"`
	Status string `json:"status"`
}

func (s *Service) publishStatus(label string, st fan.Status) {
	data, err := json.Marshal(StatusEvent{Label: label, Status: st.String()})
	if err != nil {
		s.logger.Error("failed to marshal status notification", "error", err)
		return
	}
	if err := s.nc.Publish(ipc.SubjectFanStatusChanged, data); err != nil {
		s.logger.Error("failed to publish status notification", "error", err)
	}
}
