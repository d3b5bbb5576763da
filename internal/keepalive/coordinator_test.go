package keepalive

import (
	"context"
	"sync"
	"testing"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evacnet/poekeeper/internal/domain"
)

type fakeSource struct {
	mu      sync.Mutex
	devices []DeviceLink
	active  []int64
}

func (s *fakeSource) ControlDevices() []DeviceLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DeviceLink(nil), s.devices...)
}

func (s *fakeSource) ActivePagingIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.active...)
}

type toggleCall struct {
	deviceIDs []int64
	enabled   bool
}

type fakeToggler struct {
	mu    sync.Mutex
	calls []toggleCall
	fail  bool
}

func (f *fakeToggler) Toggle(ctx context.Context, deviceIDs []int64, enabled bool) []ToggleOutcome {
	f.mu.Lock()
	f.calls = append(f.calls, toggleCall{deviceIDs: append([]int64(nil), deviceIDs...), enabled: enabled})
	f.mu.Unlock()
	out := make([]ToggleOutcome, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		if f.fail {
			out = append(out, ToggleOutcome{DeviceID: id, Error: "boom"})
			continue
		}
		out = append(out, ToggleOutcome{DeviceID: id, Success: true})
	}
	return out
}

func (f *fakeToggler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeToggler) lastCall() toggleCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func testSource() *fakeSource {
	return &fakeSource{
		devices: []DeviceLink{
			{ID: 1, Mode: domain.ModeAuto, LinkedPagingIDs: []int64{10}},
			{ID: 2, Mode: domain.ModeAuto, LinkedPagingIDs: []int64{10, 11}},
			{ID: 3, Mode: domain.ModeAlwaysOn, LinkedPagingIDs: []int64{10}},
			{ID: 4, Mode: domain.ModeAuto, LinkedPagingIDs: []int64{99}}, // linked to nothing active
		},
		active: []int64{10},
	}
}

func newTestCoordinator(t *testing.T, cfg Config) (*Coordinator, *fakeSource, *fakeToggler, evbus.Bus) {
	t.Helper()
	src := testSource()
	toggler := &fakeToggler{}
	bus := evbus.New()
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 5 * time.Millisecond
	}
	if cfg.Holdoff == 0 {
		cfg.Holdoff = 20 * time.Millisecond
	}
	c := NewCoordinator(src, toggler, bus, cfg)
	t.Cleanup(c.Stop)
	return c, src, toggler, bus
}

func TestEnablePowersEligibleDevices(t *testing.T) {
	c, _, toggler, _ := newTestCoordinator(t, Config{})

	c.Enable()
	require.Equal(t, 1, toggler.callCount())
	call := toggler.lastCall()
	assert.True(t, call.enabled)
	// device 3 is always_on, device 4 has no active paging link
	assert.ElementsMatch(t, []int64{1, 2}, call.deviceIDs)

	on, _ := c.Status()
	assert.True(t, on)
}

func TestEnableTwiceCoalesces(t *testing.T) {
	c, _, toggler, _ := newTestCoordinator(t, Config{})

	c.Enable()
	c.Enable()
	assert.Equal(t, 1, toggler.callCount(), "repeated detection events must not re-toggle hardware")
}

func TestEnableNoEligibleDevicesIsNoop(t *testing.T) {
	c, src, toggler, _ := newTestCoordinator(t, Config{})
	src.mu.Lock()
	src.active = nil
	src.mu.Unlock()

	c.Enable()
	assert.Zero(t, toggler.callCount())
	on, _ := c.Status()
	assert.False(t, on)
}

func TestDisableCountdownFires(t *testing.T) {
	c, _, toggler, _ := newTestCoordinator(t, Config{})

	c.Enable()
	c.Disable(false)

	require.Eventually(t, func() bool { return toggler.callCount() == 2 }, time.Second, time.Millisecond)
	call := toggler.lastCall()
	assert.False(t, call.enabled)
	assert.ElementsMatch(t, []int64{1, 2}, call.deviceIDs)

	on, remaining := c.Status()
	assert.False(t, on)
	assert.Zero(t, remaining)
}

func TestEnableDuringCountdownCancelsDisable(t *testing.T) {
	c, _, toggler, _ := newTestCoordinator(t, Config{Holdoff: 100 * time.Millisecond, TickInterval: 10 * time.Millisecond})

	c.Enable()
	c.Disable(false)
	c.Enable() // before the countdown elapses

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, toggler.callCount(), "no OFF toggle may ever fire after cancellation")
	on, _ := c.Status()
	assert.True(t, on)
}

func TestCountdownTicksPublished(t *testing.T) {
	c, _, _, bus := newTestCoordinator(t, Config{Holdoff: 30 * time.Millisecond, TickInterval: 10 * time.Millisecond})

	var mu sync.Mutex
	var ticks []int
	require.NoError(t, bus.Subscribe(TopicTick, func(remaining int) {
		mu.Lock()
		ticks = append(ticks, remaining)
		mu.Unlock()
	}))

	c.Enable()
	c.Disable(false)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ticks) >= 3 && ticks[len(ticks)-1] == 0
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, ticks[0], "countdown starts at the full holdoff")
	for i := 1; i < len(ticks); i++ {
		assert.Equal(t, ticks[i-1]-1, ticks[i], "ticks descend by one")
	}
}

func TestForceDisableIgnoresExclusions(t *testing.T) {
	c, _, toggler, _ := newTestCoordinator(t, Config{})

	c.Enable()
	c.SetExcluded(1, true)

	c.Disable(true)
	require.Equal(t, 2, toggler.callCount())
	call := toggler.lastCall()
	assert.False(t, call.enabled)
	assert.ElementsMatch(t, []int64{1, 2}, call.deviceIDs,
		"forced off targets every auto device on an active paging link, exclusions ignored")

	on, _ := c.Status()
	assert.False(t, on)
}

func TestForceDisableActsImmediately(t *testing.T) {
	c, _, toggler, _ := newTestCoordinator(t, Config{Holdoff: time.Hour, TickInterval: time.Hour})

	c.Enable()
	c.Disable(true)
	assert.Equal(t, 2, toggler.callCount(), "force bypasses the countdown")
}

func TestExclusionFiltersEnable(t *testing.T) {
	c, _, toggler, _ := newTestCoordinator(t, Config{})

	c.SetExcluded(1, true)
	c.Enable()
	require.Equal(t, 1, toggler.callCount())
	assert.ElementsMatch(t, []int64{2}, toggler.lastCall().deviceIDs)
}

func TestSetAllExcludedBlocksEnable(t *testing.T) {
	c, _, toggler, _ := newTestCoordinator(t, Config{})

	c.SetAllExcluded(true)
	c.Enable()
	assert.Zero(t, toggler.callCount(), "with everything excluded no device is eligible")

	c.SetAllExcluded(false)
	c.Enable()
	assert.Equal(t, 1, toggler.callCount())
}

func TestSetAllExcludedCoversAutoDevicesOnly(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, Config{})

	c.SetAllExcluded(true)
	assert.ElementsMatch(t, []int64{1, 2, 4}, c.ExcludedIDs())
}

func TestDisableNoEligibleIsNoop(t *testing.T) {
	c, src, toggler, _ := newTestCoordinator(t, Config{})

	c.Enable()
	require.Equal(t, 1, toggler.callCount())

	src.mu.Lock()
	src.active = nil
	src.mu.Unlock()

	c.Disable(false)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, toggler.callCount(), "no countdown without eligible devices")
	on, _ := c.Status()
	assert.True(t, on, "state untouched by the no-op")
}

func TestToggleFailureStillRecordsOff(t *testing.T) {
	c, _, toggler, _ := newTestCoordinator(t, Config{})
	toggler.fail = true

	c.Enable()
	c.Disable(false)

	require.Eventually(t, func() bool { return toggler.callCount() == 2 }, time.Second, time.Millisecond)
	on, _ := c.Status()
	assert.False(t, on, "hardware state is best-effort; the machine still records OFF")
}

func TestSimulationTouchesNoHardware(t *testing.T) {
	c, _, toggler, _ := newTestCoordinator(t, Config{Simulate: true})

	c.Enable()
	c.Disable(true)
	c.Enable()
	assert.Zero(t, toggler.callCount())

	on, _ := c.Status()
	assert.True(t, on, "simulation still walks the state machine")
}

func TestSetSimulateAtRuntime(t *testing.T) {
	c, _, toggler, _ := newTestCoordinator(t, Config{})

	c.SetSimulate(true)
	assert.True(t, c.Simulating())
	c.Enable()
	assert.Zero(t, toggler.callCount())

	c.SetSimulate(false)
	c.Disable(true)
	require.Equal(t, 1, toggler.callCount())
	assert.False(t, toggler.lastCall().enabled)
}

func TestCountdownRestart(t *testing.T) {
	c, _, toggler, _ := newTestCoordinator(t, Config{Holdoff: 50 * time.Millisecond, TickInterval: 10 * time.Millisecond})

	c.Enable()
	c.Disable(false)
	time.Sleep(20 * time.Millisecond)
	c.Disable(false) // restart the countdown

	_, remaining := c.Status()
	assert.Equal(t, 5, remaining, "second disable restarts from the full holdoff")

	require.Eventually(t, func() bool { return toggler.callCount() == 2 }, time.Second, time.Millisecond)
}
