package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/evacnet/poekeeper/internal/keepalive"
	"github.com/evacnet/poekeeper/internal/switchctl"
	"github.com/evacnet/poekeeper/pkg/metrics"
)

// Control operations exposed to collaborators (admin API, event
// handlers). These bind the orchestrator to the inventory resolver
// and record outcomes; device state moves only after an observed
// success.

// ToggleSingle powers one device's port.
func (a *Application) ToggleSingle(ctx context.Context, deviceID int64, enabled bool, source string) error {
	endpoint, ok := a.repo.Resolve(deviceID)
	started := time.Now()
	err := a.orchestrator.ToggleSingle(ctx, deviceID, enabled, a.repo.Resolve)

	result := switchctl.DeviceResult{DeviceID: deviceID, Success: err == nil}
	if ok {
		result.SwitchID = endpoint.SwitchID
		result.Port = endpoint.Port
		metrics.RecordToggle(endpoint.Credentials.Ipaddr, time.Since(started), err == nil)
	}
	if err != nil {
		result.Error = err.Error()
		a.mailer.ToggleFailed(deviceID, endpoint.Credentials.Ipaddr, endpoint.Port, err.Error())
	}
	a.repo.CommitResults(source, []switchctl.DeviceResult{result}, map[int64]bool{deviceID: enabled})
	return err
}

// ToggleBulk powers a set of devices, grouped per switch, in the
// requested execution mode.
func (a *Application) ToggleBulk(ctx context.Context, devices []switchctl.DeviceToggle, mode switchctl.Mode, interDelay time.Duration, source string) []switchctl.DeviceResult {
	started := time.Now()
	results := a.orchestrator.ToggleDevices(ctx, devices, a.repo.Resolve, mode, interDelay)

	desired := make(map[int64]bool, len(devices))
	for _, dev := range devices {
		desired[dev.DeviceID] = dev.Enabled
	}
	for _, result := range results {
		if !result.Success {
			if endpoint, ok := a.repo.Resolve(result.DeviceID); ok {
				a.mailer.ToggleFailed(result.DeviceID, endpoint.Credentials.Ipaddr, result.Port, result.Error)
				metrics.RecordToggle(endpoint.Credentials.Ipaddr, time.Since(started), false)
			}
			continue
		}
		if endpoint, ok := a.repo.Resolve(result.DeviceID); ok {
			metrics.RecordToggle(endpoint.Credentials.Ipaddr, time.Since(started), true)
		}
	}
	a.repo.CommitResults(source, results, desired)
	return results
}

// ClearAllSessions best-effort logout of every cached switch
// session; idempotent, called when monitoring stops.
func (a *Application) ClearAllSessions(ctx context.Context) {
	a.registry.ClearAll(ctx)
}

// keepaliveToggler adapts the bulk toggle path to the coordinator's
// contract. Execution mode and pacing come from configuration.
func (a *Application) keepaliveToggler() keepalive.Toggler {
	return toggleFunc(func(ctx context.Context, deviceIDs []int64, enabled bool) []keepalive.ToggleOutcome {
		mode := switchctl.ModeSequential
		if a.appConfig.Keepalive.Mode == string(switchctl.ModeParallel) {
			mode = switchctl.ModeParallel
		}
		devices := make([]switchctl.DeviceToggle, 0, len(deviceIDs))
		for _, id := range deviceIDs {
			devices = append(devices, switchctl.DeviceToggle{DeviceID: id, Enabled: enabled})
		}
		results := a.ToggleBulk(ctx, devices, mode,
			time.Duration(a.appConfig.Keepalive.InterDelayMs)*time.Millisecond, "keepalive")

		out := make([]keepalive.ToggleOutcome, 0, len(results))
		for _, result := range results {
			out = append(out, keepalive.ToggleOutcome{
				DeviceID: result.DeviceID,
				Success:  result.Success,
				Error:    result.Error,
			})
		}
		if len(out) < len(deviceIDs) {
			zap.L().Debug("some keep-alive devices were unresolved",
				zap.Int("requested", len(deviceIDs)), zap.Int("resolved", len(out)))
		}
		return out
	})
}

type toggleFunc func(ctx context.Context, deviceIDs []int64, enabled bool) []keepalive.ToggleOutcome

func (f toggleFunc) Toggle(ctx context.Context, deviceIDs []int64, enabled bool) []keepalive.ToggleOutcome {
	return f(ctx, deviceIDs, enabled)
}
