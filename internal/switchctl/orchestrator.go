package switchctl

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Mode batch execution mode within one switch. Distinct switches
// always run concurrently regardless of mode.
type Mode string

const (
	// ModeParallel one concurrent exchange per port, no intra-switch ordering
	ModeParallel Mode = "parallel"
	// ModeSequential one session, ports in request order, fixed inter-port delay
	ModeSequential Mode = "sequential"
)

// DeviceToggle desired power state for one attached device
type DeviceToggle struct {
	DeviceID int64 `json:"device_id,string"`
	Enabled  bool  `json:"enabled"`
}

// DeviceResult per-device outcome of a bulk toggle
type DeviceResult struct {
	DeviceID int64  `json:"device_id,string"`
	Port     int    `json:"port"`
	SwitchID int64  `json:"switch_id,string"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// Endpoint where a device hangs off the PoE fabric
type Endpoint struct {
	SwitchID    int64
	SwitchType  SwitchType
	Credentials Credentials
	Port        int
}

// Resolver maps a device to its switch and port. Returning ok=false
// drops the device from the batch silently.
type Resolver func(deviceID int64) (Endpoint, bool)

// Orchestrator turns flat device toggle requests into grouped
// per-switch operations. Switch groups are dispatched onto a shared
// worker pool and run independently; no cross-switch ordering.
type Orchestrator struct {
	registry *Registry
	pool     *ants.Pool
}

func NewOrchestrator(registry *Registry, poolSize int) (*Orchestrator, error) {
	if poolSize <= 0 {
		poolSize = 16
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{registry: registry, pool: pool}, nil
}

func (o *Orchestrator) Close() {
	o.pool.Release()
}

type switchGroup struct {
	endpoint Endpoint
	devices  []DeviceToggle
	commands []PortCommand
}

// ToggleSingle toggles one device's port.
func (o *Orchestrator) ToggleSingle(ctx context.Context, deviceID int64, enabled bool, resolve Resolver) error {
	endpoint, ok := resolve(deviceID)
	if !ok {
		return errors.Errorf("device %d has no switch/port mapping", deviceID)
	}
	client, err := o.registry.GetOrCreate(endpoint.SwitchType, endpoint.Credentials)
	if err != nil {
		return err
	}
	return client.TogglePort(ctx, endpoint.Port, enabled)
}

// ToggleDevices groups devices by switch and applies the selected
// mode per group. Output order across switches is unspecified;
// within a sequential group it matches the request order. Persisting
// the new device state on success is the caller's job.
func (o *Orchestrator) ToggleDevices(ctx context.Context, devices []DeviceToggle, resolve Resolver, mode Mode, interDelay time.Duration) []DeviceResult {
	groups := make(map[int64]*switchGroup)
	order := make([]int64, 0)
	for _, dev := range devices {
		endpoint, ok := resolve(dev.DeviceID)
		if !ok {
			zap.L().Debug("device unresolved, dropped from batch",
				zap.Int64("device_id", dev.DeviceID))
			continue
		}
		group, ok := groups[endpoint.SwitchID]
		if !ok {
			group = &switchGroup{endpoint: endpoint}
			groups[endpoint.SwitchID] = group
			order = append(order, endpoint.SwitchID)
		}
		group.devices = append(group.devices, dev)
		group.commands = append(group.commands, PortCommand{Port: endpoint.Port, Enabled: dev.Enabled})
	}

	var (
		mu      sync.Mutex
		results []DeviceResult
		wg      sync.WaitGroup
	)
	for _, switchID := range order {
		group := groups[switchID]
		wg.Add(1)
		submit := func() {
			defer wg.Done()
			groupResults := o.runGroup(ctx, group, mode, interDelay)
			mu.Lock()
			results = append(results, groupResults...)
			mu.Unlock()
		}
		if err := o.pool.Submit(submit); err != nil {
			// pool released mid-call; run inline rather than drop
			submit()
		}
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) runGroup(ctx context.Context, group *switchGroup, mode Mode, interDelay time.Duration) []DeviceResult {
	fail := func(err error) []DeviceResult {
		out := make([]DeviceResult, 0, len(group.devices))
		for _, dev := range group.devices {
			out = append(out, DeviceResult{
				DeviceID: dev.DeviceID,
				Port:     portOf(group, dev.DeviceID),
				SwitchID: group.endpoint.SwitchID,
				Success:  false,
				Error:    err.Error(),
			})
		}
		return out
	}

	client, err := o.registry.GetOrCreate(group.endpoint.SwitchType, group.endpoint.Credentials)
	if err != nil {
		return fail(err)
	}

	var toggles []ToggleResult
	switch mode {
	case ModeParallel:
		toggles, err = client.TogglePortsParallel(ctx, group.commands)
		if err != nil {
			// only the login step fails the whole parallel call
			return fail(err)
		}
	default:
		toggles, err = client.TogglePortsBatch(ctx, group.commands, interDelay)
		if err != nil && len(toggles) == 0 {
			return fail(err)
		}
	}

	out := make([]DeviceResult, 0, len(group.devices))
	for i, dev := range group.devices {
		result := DeviceResult{
			DeviceID: dev.DeviceID,
			Port:     group.commands[i].Port,
			SwitchID: group.endpoint.SwitchID,
		}
		if i < len(toggles) {
			result.Success = toggles[i].Success
			result.Error = toggles[i].Error
		} else {
			result.Error = "no result"
		}
		out = append(out, result)
	}
	return out
}

func portOf(group *switchGroup, deviceID int64) int {
	for i, dev := range group.devices {
		if dev.DeviceID == deviceID {
			return group.commands[i].Port
		}
	}
	return 0
}
