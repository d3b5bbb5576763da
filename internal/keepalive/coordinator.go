// Package keepalive decides when PoE devices are powered in response
// to audio/paging activity: immediate-on, countdown-off, force-off,
// with device eligibility filtering and operator exclusions.
package keepalive

import (
	"context"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"github.com/evacnet/poekeeper/internal/domain"
)

// Bus topics. Tick fires at 1Hz with the remaining seconds while a
// disable countdown is pending; State fires with "on"/"off".
const (
	TopicTick  = "poe.keepalive.tick"
	TopicState = "poe.keepalive.state"
)

// DeviceLink the slice of the inventory the coordinator filters on
type DeviceLink struct {
	ID              int64
	Mode            string
	LinkedPagingIDs []int64
}

// Source feeds the coordinator the current device and paging picture
type Source interface {
	ControlDevices() []DeviceLink
	ActivePagingIDs() []int64
}

// ToggleOutcome per-device result reported by the Toggler
type ToggleOutcome struct {
	DeviceID int64
	Success  bool
	Error    string
}

// Toggler performs the actual hardware calls; bound to the
// orchestrator by the application wiring.
type Toggler interface {
	Toggle(ctx context.Context, deviceIDs []int64, enabled bool) []ToggleOutcome
}

// Config coordinator tunables
type Config struct {
	// Holdoff delay between a disable request and the power-off
	Holdoff time.Duration
	// TickInterval countdown tick period, 1s outside tests
	TickInterval time.Duration
	// Simulate log every action but never touch hardware
	Simulate bool
}

func (c Config) withDefaults() Config {
	if c.Holdoff <= 0 {
		c.Holdoff = 30 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	return c
}

type countdown struct {
	stop      chan struct{}
	once      sync.Once
	remaining int
}

// cancel is idempotent and safe after the countdown already fired.
func (cd *countdown) cancel() {
	cd.once.Do(func() { close(cd.stop) })
}

// Coordinator is the OFF/ON state machine. It owns its state
// exclusively and talks to switches only through the Toggler.
type Coordinator struct {
	mu       sync.Mutex
	on       bool
	cd       *countdown
	excluded map[int64]struct{}

	src     Source
	toggler Toggler
	bus     evbus.Bus
	cfg     Config
}

func NewCoordinator(src Source, toggler Toggler, bus evbus.Bus, cfg Config) *Coordinator {
	return &Coordinator{
		src:      src,
		toggler:  toggler,
		bus:      bus,
		cfg:      cfg.withDefaults(),
		excluded: make(map[int64]struct{}),
	}
}

// eligibleLocked devices in auto mode, not excluded, linked to an
// active paging device. ignoreExclusions covers the forced-off path.
func (c *Coordinator) eligibleLocked(ignoreExclusions bool) []int64 {
	active := make(map[int64]struct{})
	for _, id := range c.src.ActivePagingIDs() {
		active[id] = struct{}{}
	}
	var out []int64
	for _, dev := range c.src.ControlDevices() {
		if dev.Mode != domain.ModeAuto {
			continue
		}
		if !ignoreExclusions {
			if _, excluded := c.excluded[dev.ID]; excluded {
				continue
			}
		}
		linked := false
		for _, pid := range dev.LinkedPagingIDs {
			if _, ok := active[pid]; ok {
				linked = true
				break
			}
		}
		if linked {
			out = append(out, dev.ID)
		}
	}
	return out
}

// Enable powers eligible devices on. Repeated calls while ON only
// reset the pending countdown; detection events arrive in bursts and
// must not re-trigger hardware calls.
func (c *Coordinator) Enable() {
	c.mu.Lock()
	eligible := c.eligibleLocked(false)
	if len(eligible) == 0 {
		c.mu.Unlock()
		zap.L().Debug("keep-alive enable skipped, no eligible devices")
		return
	}
	c.cancelCountdownLocked()
	if c.on {
		c.mu.Unlock()
		zap.L().Info("keep-alive timer reset")
		return
	}
	c.on = true
	c.mu.Unlock()

	c.bus.Publish(TopicState, "on")
	zap.L().Info("keep-alive on", zap.Int("devices", len(eligible)))
	c.apply(eligible, true)
}

// Disable powers devices off. With force it bypasses the exclusion
// set and eligibility short-circuit and acts immediately; otherwise
// it arms the holdoff countdown and the actual power-off happens when
// the countdown reaches zero with the state still ON.
func (c *Coordinator) Disable(force bool) {
	if force {
		c.mu.Lock()
		targets := c.eligibleLocked(true)
		c.cancelCountdownLocked()
		c.on = false
		c.mu.Unlock()

		c.bus.Publish(TopicState, "off")
		zap.L().Info("keep-alive forced off", zap.Int("devices", len(targets)))
		if len(targets) > 0 {
			c.apply(targets, false)
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.eligibleLocked(false)) == 0 {
		zap.L().Debug("keep-alive disable skipped, no eligible devices")
		return
	}
	c.startCountdownLocked()
}

func (c *Coordinator) startCountdownLocked() {
	c.cancelCountdownLocked()
	secs := int(c.cfg.Holdoff / c.cfg.TickInterval)
	if secs < 1 {
		secs = 1
	}
	cd := &countdown{stop: make(chan struct{}), remaining: secs}
	c.cd = cd
	zap.L().Info("keep-alive countdown armed", zap.Int("seconds", secs))
	go c.runCountdown(cd)
}

func (c *Coordinator) cancelCountdownLocked() {
	if c.cd != nil {
		c.cd.cancel()
		c.cd = nil
	}
}

func (c *Coordinator) runCountdown(cd *countdown) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	c.bus.Publish(TopicTick, cd.remaining)
	for {
		select {
		case <-cd.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			cd.remaining--
			remaining := cd.remaining
			c.mu.Unlock()
			c.bus.Publish(TopicTick, remaining)
			if remaining <= 0 {
				c.finishCountdown(cd)
				return
			}
		}
	}
}

// finishCountdown fires the delayed power-off, unless this countdown
// was superseded or the state already left ON.
func (c *Coordinator) finishCountdown(cd *countdown) {
	c.mu.Lock()
	if c.cd != cd {
		c.mu.Unlock()
		return
	}
	c.cd = nil
	if !c.on {
		c.mu.Unlock()
		return
	}
	c.on = false
	targets := c.eligibleLocked(false)
	c.mu.Unlock()

	c.bus.Publish(TopicState, "off")
	zap.L().Info("keep-alive countdown elapsed, powering off", zap.Int("devices", len(targets)))
	if len(targets) > 0 {
		c.apply(targets, false)
	}
}

// apply invokes the toggler. Failures are surfaced on the logging
// channel only; the state machine has already moved on and hardware
// state is best-effort from here.
func (c *Coordinator) apply(deviceIDs []int64, enabled bool) {
	c.mu.Lock()
	simulate := c.cfg.Simulate
	c.mu.Unlock()
	if simulate {
		zap.L().Info("keep-alive simulation, hardware untouched",
			zap.Int64s("device_ids", deviceIDs), zap.Bool("enabled", enabled))
		return
	}
	for _, outcome := range c.toggler.Toggle(context.Background(), deviceIDs, enabled) {
		if !outcome.Success {
			zap.L().Error("keep-alive toggle failed",
				zap.Int64("device_id", outcome.DeviceID),
				zap.Bool("enabled", enabled),
				zap.String("error", outcome.Error))
		}
	}
}

// SetExcluded adds or removes one device from the operator exclusion
// set. Devices already mid-toggle are unaffected.
func (c *Coordinator) SetExcluded(deviceID int64, excluded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if excluded {
		c.excluded[deviceID] = struct{}{}
	} else {
		delete(c.excluded, deviceID)
	}
}

// SetAllExcluded excludes every currently-auto-mode device, or
// clears the set entirely.
func (c *Coordinator) SetAllExcluded(excluded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !excluded {
		c.excluded = make(map[int64]struct{})
		return
	}
	for _, dev := range c.src.ControlDevices() {
		if dev.Mode == domain.ModeAuto {
			c.excluded[dev.ID] = struct{}{}
		}
	}
}

// SetSimulate flips rehearsal mode at runtime; takes effect on the
// next hardware apply.
func (c *Coordinator) SetSimulate(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Simulate = on
}

// Simulating reports whether rehearsal mode is active.
func (c *Coordinator) Simulating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Simulate
}

// ExcludedIDs snapshot of the exclusion set.
func (c *Coordinator) ExcludedIDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, 0, len(c.excluded))
	for id := range c.excluded {
		out = append(out, id)
	}
	return out
}

// Status reports the state machine for observers: whether devices
// are held on, and the countdown seconds left (0 when none pending).
func (c *Coordinator) Status() (on bool, remaining int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cd != nil {
		remaining = c.cd.remaining
	}
	return c.on, remaining
}

// Stop cancels any pending countdown; called when monitoring stops.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelCountdownLocked()
}
