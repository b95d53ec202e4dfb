package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stagg_bridge/internal/kettle"
	"stagg_bridge/internal/logger"
	"stagg_bridge/internal/models"
)

type fakeTransport struct {
	mu        sync.Mutex
	pollResp  models.StateDelta
	pollErr   error
	sendErr   error
	sent      []kettle.Command
	pollCalls int
}

func (f *fakeTransport) Poll(ctx context.Context) (models.StateDelta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	return f.pollResp, f.pollErr
}

func (f *fakeTransport) Send(ctx context.Context, cmd kettle.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) sentCommands() []kettle.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]kettle.Command, len(f.sent))
	copy(out, f.sent)
	return out
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.KettleEvent
}

func (r *eventRecorder) sink(e models.KettleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) byType(typ string) []models.KettleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.KettleEvent
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func testLogger() *logger.Logger {
	return logger.Get(logger.ErrorLevel)
}

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func TestCoordinator_SuccessfulPollMergesState(t *testing.T) {
	tr := &fakeTransport{
		pollResp: models.StateDelta{
			CurrentTemp: floatPtr(85.5),
			Power:       boolPtr(true),
			Units:       "C",
		},
	}
	c := New(tr, Config{}, nil, testLogger())

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := c.State()
	if !st.Connected {
		t.Fatalf("expected connected after successful poll")
	}
	if st.CurrentTemp == nil || *st.CurrentTemp != 85.5 {
		t.Fatalf("expected current temp 85.5, got %v", st.CurrentTemp)
	}
	if st.Power == nil || !*st.Power {
		t.Fatalf("expected power on")
	}
	if c.Status() != StatusIdle {
		t.Fatalf("expected idle, got %s", c.Status())
	}
	if !c.Polled() {
		t.Fatalf("expected polled flag set")
	}
}

func TestCoordinator_PartialDeltaKeepsOlderFields(t *testing.T) {
	tr := &fakeTransport{
		pollResp: models.StateDelta{CurrentTemp: floatPtr(85.5), Power: boolPtr(true)},
	}
	c := New(tr, Config{}, nil, testLogger())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Next delta carries only a temperature; power must survive.
	tr.mu.Lock()
	tr.pollResp = models.StateDelta{CurrentTemp: floatPtr(90.0)}
	tr.mu.Unlock()
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := c.State()
	if st.CurrentTemp == nil || *st.CurrentTemp != 90.0 {
		t.Fatalf("expected updated temp, got %v", st.CurrentTemp)
	}
	if st.Power == nil || !*st.Power {
		t.Fatalf("expected power retained from earlier poll")
	}
}

func TestCoordinator_DegradesAfterThresholdAndResetsState(t *testing.T) {
	tr := &fakeTransport{
		pollResp: models.StateDelta{CurrentTemp: floatPtr(85.5), Power: boolPtr(true)},
	}
	rec := &eventRecorder{}
	c := New(tr, Config{FailureThreshold: 3}, rec.sink, testLogger())

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tr.mu.Lock()
	tr.pollErr = errors.New("device gone")
	tr.mu.Unlock()

	for i := 0; i < 2; i++ {
		if err := c.Refresh(context.Background()); err == nil {
			t.Fatalf("expected poll error")
		}
		if c.Status() == StatusDegraded {
			t.Fatalf("degraded too early at failure %d", i+1)
		}
	}
	// Snapshot still populated below the threshold.
	if st := c.State(); st.CurrentTemp == nil {
		t.Fatalf("expected snapshot retained below threshold")
	}

	if err := c.Refresh(context.Background()); err == nil {
		t.Fatalf("expected poll error")
	}
	if c.Status() != StatusDegraded {
		t.Fatalf("expected degraded after third failure, got %s", c.Status())
	}
	st := c.State()
	if st.CurrentTemp != nil || st.Power != nil {
		t.Fatalf("expected snapshot reset, got %+v", st)
	}
	if st.Units != "C" || st.Connected {
		t.Fatalf("expected default units C and disconnected, got %+v", st)
	}
	if got := rec.byType(models.EventDegraded); len(got) != 1 {
		t.Fatalf("expected one DEGRADED event, got %d", len(got))
	}

	// Failures past the threshold stay degraded without re-escalating.
	for i := 0; i < 2; i++ {
		if err := c.Refresh(context.Background()); err == nil {
			t.Fatalf("expected poll error")
		}
	}
	if c.Status() != StatusDegraded {
		t.Fatalf("expected to remain degraded, got %s", c.Status())
	}
	if got := rec.byType(models.EventDegraded); len(got) != 1 {
		t.Fatalf("expected DEGRADED emitted once, got %d", len(got))
	}
}

func TestCoordinator_RecoversOnNextSuccess(t *testing.T) {
	tr := &fakeTransport{pollErr: errors.New("device gone")}
	rec := &eventRecorder{}
	c := New(tr, Config{FailureThreshold: 3}, rec.sink, testLogger())

	for i := 0; i < 3; i++ {
		c.Refresh(context.Background())
	}
	if c.Status() != StatusDegraded {
		t.Fatalf("expected degraded, got %s", c.Status())
	}

	tr.mu.Lock()
	tr.pollErr = nil
	tr.pollResp = models.StateDelta{CurrentTemp: floatPtr(42.0)}
	tr.mu.Unlock()

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Status() != StatusIdle {
		t.Fatalf("expected idle after recovery, got %s", c.Status())
	}
	st := c.State()
	if st.CurrentTemp == nil || *st.CurrentTemp != 42.0 {
		t.Fatalf("expected repopulated snapshot, got %+v", st)
	}
	if got := rec.byType(models.EventRecovered); len(got) != 1 {
		t.Fatalf("expected one RECOVERED event, got %d", len(got))
	}
}

func TestCoordinator_DebounceCollapsesPowerToggles(t *testing.T) {
	tr := &fakeTransport{}
	c := New(tr, Config{DebounceWindow: 50 * time.Millisecond}, nil, testLogger())
	defer c.Close()

	for i := 0; i < 4; i++ {
		if err := c.SetPower(context.Background(), i%2 == 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// Last toggle in the burst was "off".
	time.Sleep(150 * time.Millisecond)

	sent := tr.sentCommands()
	if len(sent) != 1 {
		t.Fatalf("expected one collapsed command, got %d", len(sent))
	}
	if sent[0].Kind != kettle.CmdSetPower || sent[0].On {
		t.Fatalf("expected final off toggle, got %+v", sent[0])
	}
}

func TestCoordinator_SetHoldValidation(t *testing.T) {
	tr := &fakeTransport{}
	c := New(tr, Config{}, nil, testLogger())

	if err := c.SetHold(context.Background(), 37); !errors.Is(err, kettle.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if len(tr.sentCommands()) != 0 {
		t.Fatalf("expected no transport call for invalid hold")
	}
	if err := c.SetHold(context.Background(), 45); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCoordinator_SetScheduleTimeValidation(t *testing.T) {
	tr := &fakeTransport{}
	c := New(tr, Config{}, nil, testLogger())

	if err := c.SetScheduleTime(context.Background(), 25, 70); !errors.Is(err, kettle.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if err := c.SetScheduleTime(context.Background(), 6, 60); !errors.Is(err, kettle.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for minute 60, got %v", err)
	}
	if len(tr.sentCommands()) != 0 {
		t.Fatalf("expected no transport call for invalid time")
	}

	if err := c.SetScheduleTime(context.Background(), 6, 30); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := tr.sentCommands()
	if len(sent) != 1 || sent[0].Hour != 6 || sent[0].Minute != 30 {
		t.Fatalf("expected schedule command 6:30, got %+v", sent)
	}
}

func TestCoordinator_SilentPollsDegrade(t *testing.T) {
	// A transport that keeps answering with empty deltas and nil errors is
	// a dead link: it must count against the failure threshold exactly
	// like an erroring one.
	tr := &fakeTransport{}
	rec := &eventRecorder{}
	c := New(tr, Config{FailureThreshold: 3}, rec.sink, testLogger())

	for i := 0; i < 5; i++ {
		if err := c.Refresh(context.Background()); err == nil {
			t.Fatalf("expected empty poll %d to count as failure", i+1)
		}
	}
	if c.Status() != StatusDegraded {
		t.Fatalf("expected degraded after silent polls, got %s", c.Status())
	}
	st := c.State()
	if st.Connected {
		t.Fatalf("expected disconnected snapshot, got %+v", st)
	}
	if got := rec.byType(models.EventDegraded); len(got) != 1 {
		t.Fatalf("expected one DEGRADED event, got %d", len(got))
	}

	// A real update still recovers it.
	tr.mu.Lock()
	tr.pollResp = models.StateDelta{CurrentTemp: floatPtr(50)}
	tr.mu.Unlock()
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Status() != StatusIdle || !c.State().Connected {
		t.Fatalf("expected recovery, got status=%s state=%+v", c.Status(), c.State())
	}
}
