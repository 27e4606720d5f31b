// Package push fans silent update notifications out to every device
// registered for a set of passes, and purges devices whose push tokens the
// gateway reports as permanently dead.
package push

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"wallet-ticket-service/internal/apns"
	"wallet-ticket-service/internal/store"
)

type Service struct {
	store   store.Store
	gateway apns.Gateway

	// APNs topic; the configured pass type identifier.
	topic string

	// Per-upstream-call timeout. External calls are single round-trips or
	// bounded batches; none may block indefinitely.
	timeout time.Duration

	logger *slog.Logger
}

func NewService(st store.Store, gw apns.Gateway, topic string, timeout time.Duration) *Service {
	return &Service{
		store:   st,
		gateway: gw,
		topic:   topic,
		timeout: timeout,
		logger:  slog.With("component", "push"),
	}
}

func (s *Service) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Fanout notifies every device registered for passTypeIdentifier and any of
// the given serials. It returns the number of tokens the gateway accepted,
// which may be less than the number of registered devices.
//
// Registration lookups are chunked to the store's in-query limit and the
// device sets unioned, so large serial lists behave the same as one
// unbounded query would.
func (s *Service) Fanout(ctx context.Context, passTypeIdentifier string, serials []string) (int, error) {
	deviceSet := make(map[string]bool)
	for start := 0; start < len(serials); start += store.MaxInValues {
		end := min(start+store.MaxInValues, len(serials))

		cctx, cancel := s.callCtx(ctx)
		regs, err := s.store.ListRegistrationsBySerials(cctx, passTypeIdentifier, serials[start:end])
		cancel()
		if err != nil {
			return 0, err
		}
		for _, r := range regs {
			deviceSet[r.DeviceLibraryIdentifier] = true
		}
	}

	var tokens []string
	for deviceID := range deviceSet {
		cctx, cancel := s.callCtx(ctx)
		device, err := s.store.GetDevice(cctx, deviceID)
		cancel()
		if errors.Is(err, store.ErrNotFound) {
			continue
		} else if err != nil {
			return 0, err
		}
		if device.PushToken != "" {
			tokens = append(tokens, device.PushToken)
		}
	}

	if len(tokens) == 0 {
		return 0, nil
	}

	cctx, cancel := s.callCtx(ctx)
	result, err := s.gateway.Send(cctx, apns.Notification{Topic: s.topic}, tokens)
	cancel()
	if err != nil {
		return 0, err
	}

	s.sweep(ctx, result.Failed)

	s.logger.Info("Push fan-out complete",
		"pass_type", passTypeIdentifier,
		"serials", len(serials),
		"devices", len(deviceSet),
		"sent", len(result.Sent),
		"failed", len(result.Failed),
	)
	return len(result.Sent), nil
}

// sweep removes devices whose tokens failed terminally, cascading to their
// registrations. Partial failures are accumulated and logged but never
// abort the sweep; every record is individually retriable.
func (s *Service) sweep(ctx context.Context, failures []apns.Failure) {
	for _, f := range failures {
		if !f.Terminal() {
			continue
		}

		cctx, cancel := s.callCtx(ctx)
		deviceID, err := s.store.FindDeviceByPushToken(cctx, f.Device)
		cancel()
		if errors.Is(err, store.ErrNotFound) {
			continue
		} else if err != nil {
			s.logger.Error("Failed to look up device for dead token", "error", err)
			continue
		}

		if err := s.PurgeDevice(ctx, deviceID); err != nil {
			s.logger.Error("Failed to purge device with dead token",
				"device", deviceID, "status", f.Status, "reason", f.Reason, "error", err)
		} else {
			s.logger.Info("Purged device with dead token",
				"device", deviceID, "status", f.Status, "reason", f.Reason)
		}
	}
}

// PurgeDevice deletes a device and every registration referencing it.
// Errors are accumulated so one failed delete does not strand the rest.
func (s *Service) PurgeDevice(ctx context.Context, deviceLibraryIdentifier string) error {
	var errs []error

	cctx, cancel := s.callCtx(ctx)
	err := s.store.DeleteDevice(cctx, deviceLibraryIdentifier)
	cancel()
	if err != nil {
		errs = append(errs, err)
	}

	cctx, cancel = s.callCtx(ctx)
	regs, err := s.store.ListRegistrationsForDevice(cctx, deviceLibraryIdentifier)
	cancel()
	if err != nil {
		errs = append(errs, err)
	} else {
		for _, r := range regs {
			regID := store.RegistrationID(r.DeviceLibraryIdentifier, r.PassID)
			cctx, cancel := s.callCtx(ctx)
			if err := s.store.DeleteRegistration(cctx, regID); err != nil {
				errs = append(errs, err)
			}
			cancel()
		}
	}

	return errors.Join(errs...)
}
