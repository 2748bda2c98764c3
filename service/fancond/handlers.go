// SPDX-License-Identifier: BSD-3-Clause

package fancond

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go/micro"

	"github.com/fancond/fancond/pkg/controller"
	"github.com/fancond/fancond/pkg/fan"
)

// respondJSON marshals v and sends it as the reply, logging and sending a
// 500 error reply on marshal failure.
func (s *Service) respondJSON(ctx context.Context, req micro.Request, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to marshal response", "subject", req.Subject(), "error", err)
		_ = req.Error("500", "failed to marshal response", nil)
		return
	}
	if err := req.Respond(data); err != nil {
		s.logger.ErrorContext(ctx, "failed to send response", "subject", req.Subject(), "error", err)
	}
}

func (s *Service) respondErr(ctx context.Context, req micro.Request, err error) {
	code := "500"
	switch {
	case errors.Is(err, controller.ErrUnknownFan), errors.Is(err, controller.ErrUnknownSensor):
		code = "404"
	case errors.Is(err, controller.ErrTestInProgress), errors.Is(err, controller.ErrAlreadyRunning):
		code = "409"
	case errors.Is(err, controller.ErrBindFailed), errors.Is(err, controller.ErrNvNotInitialised):
		code = "503"
	}
	s.logger.WarnContext(ctx, "request failed", "subject", req.Subject(), "error", err)
	_ = req.Error(code, err.Error(), nil)
}

// handleGetDevices implements GetDevices.
func (s *Service) handleGetDevices(ctx context.Context, req micro.Request) {
	s.respondJSON(ctx, req, s.controller.GetDevices())
}

// handleSetDevices implements SetDevices.
func (s *Service) handleSetDevices(ctx context.Context, req micro.Request) {
	var dto fan.DevicesDTO
	if err := json.Unmarshal(req.Data(), &dto); err != nil {
		_ = req.Error("400", "invalid request format", nil)
		return
	}
	if err := s.controller.SetDevices(ctx, dto); err != nil {
		s.respondErr(ctx, req, err)
		return
	}
	s.respondJSON(ctx, req, struct{}{})
}

// handleGetEnumeratedDevices implements GetEnumeratedDevices.
func (s *Service) handleGetEnumeratedDevices(ctx context.Context, req micro.Request) {
	dto, err := s.controller.GetEnumeratedDevices(ctx)
	if err != nil {
		s.respondErr(ctx, req, err)
		return
	}
	s.respondJSON(ctx, req, dto)
}

// configDTO is the wire representation of controller.Config.
type configDTO struct {
	UpdateIntervalMS int64 `json:"update_interval_ms"`
	SmoothingIntervals int `json:"smoothing_intervals"`
	TopStickinessIntervals int `json:"top_stickiness_intervals"`
	MaxThreads int `json:"max_threads"`
	Dynamic bool `json:"dynamic"`
}

func toConfigDTO(cfg controller.Config) configDTO {
	return configDTO{
		UpdateIntervalMS: cfg.UpdateInterval.Milliseconds(),
		SmoothingIntervals: cfg.SmoothingIntervals,
		TopStickinessIntervals: cfg.TopStickinessIntervals,
		MaxThreads: cfg.MaxThreads,
		Dynamic: cfg.Dynamic,
	}
}

func (d configDTO) toConfig() controller.Config {
	return controller.Config{
		UpdateInterval: time.Duration(d.UpdateIntervalMS) * time.Millisecond,
		SmoothingIntervals: d.SmoothingIntervals,
		TopStickinessIntervals: d.TopStickinessIntervals,
		MaxThreads: d.MaxThreads,
		Dynamic: d.Dynamic,
	}
}

// handleGetConfig implements GetControllerConfig.
func (s *Service) handleGetConfig(ctx context.Context, req micro.Request) {
	s.respondJSON(ctx, req, toConfigDTO(s.controller.GetConfig()))
}

// handleSetConfig implements SetControllerConfig: persists the
// tunables and applies them to the running controller. Existing task
// bindings keep whatever interval they already resolved; the new value
// takes effect on the next reload or set_devices (pkg/controller.SetConfig
// doc comment).
func (s *Service) handleSetConfig(ctx context.Context, req micro.Request) {
	var dto configDTO
	if err := json.Unmarshal(req.Data(), &dto); err != nil {
		_ = req.Error("400", "invalid request format", nil)
		return
	}
	cfg := dto.toConfig()
	if err := s.store.SaveConfig(ctx, cfg); err != nil {
		s.respondErr(ctx, req, err)
		return
	}
	s.controller.SetConfig(cfg)
	s.respondJSON(ctx, req, toConfigDTO(cfg))
}

type labelRequest struct {
	Label string `json:"label"`
}

// handleGetStatus implements GetFanStatus(label).
func (s *Service) handleGetStatus(ctx context.Context, req micro.Request) {
	var r labelRequest
	if err := json.Unmarshal(req.Data(), &r); err != nil {
		_ = req.Error("400", "invalid request format", nil)
		return
	}
	st, err := s.controller.GetFanStatus(ctx, r.Label)
	if err != nil {
		s.respondErr(ctx, req, err)
		return
	}
	s.respondJSON(ctx, req, statusResponse{
			Label: st.Label,
			Status: st.Status.String(),
			RPM: st.RPM,
			PWM: st.PWM,
		})
}

type statusResponse struct {
	Label string `json:"label"`
	Status string `json:"status"`
	RPM int `json:"rpm"`
	PWM int `json:"pwm"`
}

// handleEnable implements Enable(label).
func (s *Service) handleEnable(ctx context.Context, req micro.Request) {
	var r labelRequest
	if err := json.Unmarshal(req.Data(), &r); err != nil {
		_ = req.Error("400", "invalid request format", nil)
		return
	}
	if err := s.controller.Enable(ctx, r.Label); err != nil {
		s.respondErr(ctx, req, err)
		return
	}
	s.respondJSON(ctx, req, struct{}{})
}

// handleEnableAll implements EnableAll.
func (s *Service) handleEnableAll(ctx context.Context, req micro.Request) {
	if err := s.controller.EnableAll(ctx); err != nil {
		s.respondErr(ctx, req, err)
		return
	}
	s.respondJSON(ctx, req, struct{}{})
}

// handleDisable implements Disable(label).
func (s *Service) handleDisable(ctx context.Context, req micro.Request) {
	var r labelRequest
	if err := json.Unmarshal(req.Data(), &r); err != nil {
		_ = req.Error("400", "invalid request format", nil)
		return
	}
	if err := s.controller.Disable(ctx, r.Label); err != nil {
		s.respondErr(ctx, req, err)
		return
	}
	s.respondJSON(ctx, req, struct{}{})
}

// handleDisableAll implements DisableAll.
func (s *Service) handleDisableAll(ctx context.Context, req micro.Request) {
	if err := s.controller.DisableAll(ctx); err != nil {
		s.respondErr(ctx, req, err)
		return
	}
	s.respondJSON(ctx, req, struct{}{})
}

// testRequest is the body for SubjectFanTest. ProgressSubject, if set, is
// published percent-complete updates (as a raw JSON integer) for the
// duration of the characterisation run; the terminal pass/fail result is
// still delivered via the ordinary request/reply below. This is the
// correlation-by-client-supplied-subject pattern: the client picks a unique
// inbox-style subject and subscribes to it before issuing the request,
// since progress is specific to one in-flight test rather than a global
// notification stream.
type testRequest struct {
	Label string `json:"label"`
	Forced bool `json:"forced"`
	ProgressSubject string `json:"progress_subject,omitempty"`
}

// handleTest implements Test(label, forced): it blocks for the
// full characterisation run, publishing progress to ProgressSubject if the
// caller supplied one.
func (s *Service) handleTest(ctx context.Context, req micro.Request) {
	var r testRequest
	if err := json.Unmarshal(req.Data(), &r); err != nil {
		_ = req.Error("400", "invalid request format", nil)
		return
	}

	var progress fan.ProgressFunc
	if r.ProgressSubject != "" {
		progress = func(percent int) {
			data, err := json.Marshal(percent)
			if err != nil {
				return
			}
			if err := s.nc.Publish(r.ProgressSubject, data); err != nil {
				s.logger.WarnContext(ctx, "failed to publish test progress", "subject", r.ProgressSubject, "error", err)
			}
		}
	}

	if err := s.controller.Test(ctx, r.Label, r.Forced, progress); err != nil {
		s.respondErr(ctx, req, err)
		return
	}
	s.respondJSON(ctx, req, struct{}{})
}

// handleReload implements Reload.
func (s *Service) handleReload(ctx context.Context, req micro.Request) {
	if err := s.controller.Reload(ctx); err != nil {
		s.respondErr(ctx, req, err)
		return
	}
	s.respondJSON(ctx, req, struct{}{})
}

// handleNvInit implements NvInit.
func (s *Service) handleNvInit(ctx context.Context, req micro.Request) {
	if err := s.controller.NvInit(ctx); err != nil {
		s.respondErr(ctx, req, err)
		return
	}
	s.respondJSON(ctx, req, struct{}{})
}

// handleStopService implements StopService: acknowledges the request, then
// cancels the service's run context so Run's shutdown path (controller
// stop, disable_control on every bound fan, NATS drain) proceeds the same
// way it would on a signal-triggered shutdown.
func (s *Service) handleStopService(ctx context.Context, req micro.Request) {
	s.respondJSON(ctx, req, struct{}{})

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
