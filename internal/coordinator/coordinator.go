package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"stagg_bridge/internal/kettle"
	"stagg_bridge/internal/logger"
	"stagg_bridge/internal/models"
)

// Status is the coordinator's polling lifecycle.
type Status string

const (
	StatusIdle     Status = "IDLE"     // last poll succeeded, waiting for the next tick
	StatusPolling  Status = "POLLING"  // a poll is in flight
	StatusDegraded Status = "DEGRADED" // consecutive failures reached the threshold
)

// DefaultFailureThreshold is how many consecutive poll failures flip the
// coordinator into the degraded state.
const DefaultFailureThreshold = 3

// errEmptyPoll marks a poll that returned without error but decoded no
// fields at all.
var errEmptyPoll = errors.New("coordinator: poll produced no data")

// EventSink receives lifecycle and error events. The coordinator fires it
// inline, so implementations must be quick or buffer internally.
type EventSink func(event models.KettleEvent)

// Config tunes one coordinator instance.
type Config struct {
	DebounceWindow   time.Duration // power toggle debounce, default 400ms
	FailureThreshold int           // default DefaultFailureThreshold
	CommandTimeout   time.Duration // per-command transport budget, default 10s
}

// Coordinator owns the canonical state snapshot for one kettle. Each
// Refresh polls the transport and merges partial updates into the snapshot;
// power toggles are debounced and the coordinator degrades cleanly when the
// device stops answering. All exported methods are safe for concurrent use.
type Coordinator struct {
	transport kettle.Transport
	log       *logger.Logger
	sink      EventSink
	cfg       Config

	debounce *kettle.Debouncer

	mu       sync.RWMutex
	state    models.KettleState
	status   Status
	failures int
	polled   bool // at least one successful poll since start
}

// New builds a coordinator around an established transport. No polling
// starts here; the caller drives Refresh.
func New(transport kettle.Transport, cfg Config, sink EventSink, log *logger.Logger) *Coordinator {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}
	if sink == nil {
		sink = func(models.KettleEvent) {}
	}
	return &Coordinator{
		transport: transport,
		log:       log,
		sink:      sink,
		cfg:       cfg,
		debounce:  kettle.NewDebouncer(cfg.DebounceWindow),
		state:     models.ResetState(time.Now().UTC()),
		status:    StatusIdle,
	}
}

// Refresh performs one poll. The poller service ticks this at the
// configured cadence; callers may also invoke it directly for an immediate
// update. A degraded coordinator recovers on the next successful poll.
func (c *Coordinator) Refresh(ctx context.Context) error {
	return c.poll(ctx, time.Now().UTC())
}

// State returns a copy of the current snapshot.
func (c *Coordinator) State() models.KettleState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status returns the polling lifecycle status.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Polled reports whether at least one poll has succeeded since start.
func (c *Coordinator) Polled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.polled
}

// SetPower schedules a power toggle. The call returns once the toggle is
// accepted; rapid repeat calls within the debounce window supersede each
// other and only the last toggle reaches the device. The wire outcome is
// logged and evented because the superseded callers are gone by then.
func (c *Coordinator) SetPower(ctx context.Context, on bool) error {
	c.debounce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CommandTimeout)
		defer cancel()
		if err := c.send(ctx, kettle.Command{Kind: kettle.CmdSetPower, On: on}); err != nil {
			c.log.Errorw("debounced power toggle failed", "on", on, "error", err)
		}
	})
	return nil
}

// SetTemperature sets the heat target. Out-of-range values are clamped to
// the device-valid range rather than rejected, matching what the firmware
// itself would do.
func (c *Coordinator) SetTemperature(ctx context.Context, tempC float64) error {
	return c.send(ctx, kettle.Command{Kind: kettle.CmdSetTemperature, TempC: tempC})
}

// SetHold sets the hold duration. Only the firmware's discrete steps are
// accepted; anything else fails before any wire activity.
func (c *Coordinator) SetHold(ctx context.Context, minutes int) error {
	if !kettle.ValidHoldMinutes(minutes) {
		return fmt.Errorf("%w: hold minutes %d not in %v",
			kettle.ErrInvalidParameter, minutes, kettle.HoldMinutesAllowed)
	}
	return c.send(ctx, kettle.Command{Kind: kettle.CmdSetHold, Minutes: minutes})
}

// SetScheduleTime sets the wake-up time. Validation happens before any
// transport call.
func (c *Coordinator) SetScheduleTime(ctx context.Context, hour, minute int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("%w: hour %d out of range 0..23", kettle.ErrInvalidParameter, hour)
	}
	if minute < 0 || minute > 59 {
		return fmt.Errorf("%w: minute %d out of range 0..59", kettle.ErrInvalidParameter, minute)
	}
	return c.send(ctx, kettle.Command{Kind: kettle.CmdSetScheduleTime, Hour: hour, Minute: minute})
}

// SetScheduleEnabled switches the schedule on or off.
func (c *Coordinator) SetScheduleEnabled(ctx context.Context, on bool) error {
	return c.send(ctx, kettle.Command{Kind: kettle.CmdSetScheduleEnabled, On: on})
}

// SetScheduleTemperature sets the temperature the schedule heats to.
func (c *Coordinator) SetScheduleTemperature(ctx context.Context, tempC float64) error {
	return c.send(ctx, kettle.Command{Kind: kettle.CmdSetScheduleTemperature, TempC: tempC})
}

// Close cancels any pending debounced toggle and releases the transport.
func (c *Coordinator) Close() error {
	c.debounce.Stop()
	return c.transport.Close()
}

func (c *Coordinator) send(ctx context.Context, cmd kettle.Command) error {
	if err := c.transport.Send(ctx, cmd); err != nil {
		c.emit(models.EventError, fmt.Sprintf("command %s failed: %v", cmd.Kind, err))
		return err
	}
	c.log.Debugw("command sent", "kind", cmd.Kind.String())
	return nil
}

// poll runs one cycle: transport poll, then either merge or failure
// accounting. Reaching the failure threshold resets the snapshot to defaults
// so the API never serves confidently stale readings.
func (c *Coordinator) poll(ctx context.Context, now time.Time) error {
	c.mu.Lock()
	c.status = StatusPolling
	c.mu.Unlock()

	delta, err := c.transport.Poll(ctx)
	if err == nil && delta.Empty() {
		// A transport that answers with nothing is as dead as one that
		// errors: a silent BLE link would otherwise stay "connected"
		// forever. Count it against the failure threshold.
		err = errEmptyPoll
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.failures++
		c.log.Warnw("poll failed", "failures", c.failures, "error", err)
		switch {
		case c.failures == c.cfg.FailureThreshold:
			// Exactly at the threshold: reset and escalate once. Further
			// failures keep the degraded status without re-emitting.
			c.state = models.ResetState(now)
			c.status = StatusDegraded
			c.emit(models.EventDegraded,
				fmt.Sprintf("%d consecutive poll failures, last: %v", c.failures, err))
		case c.failures > c.cfg.FailureThreshold:
			c.status = StatusDegraded
		default:
			c.status = StatusIdle
		}
		return err
	}

	if c.status == StatusDegraded || c.failures >= c.cfg.FailureThreshold {
		c.emit(models.EventRecovered, "polling recovered")
	}
	if !c.polled {
		c.emit(models.EventConnect, "first successful poll")
	}
	c.failures = 0
	c.polled = true
	c.status = StatusIdle
	c.state.Connected = true
	c.state.Merge(delta, now)
	return nil
}

// emit is called with c.mu held or from send; the sink must not call back
// into the coordinator synchronously.
func (c *Coordinator) emit(eventType, description string) {
	c.sink(models.KettleEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  time.Now().UTC(),
		Type:        eventType,
		Description: description,
	})
}
