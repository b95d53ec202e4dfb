package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stagg_bridge/internal/coordinator"
	"stagg_bridge/internal/kettle"
	"stagg_bridge/internal/models"
)

// recordingEventRepo captures appended events and satisfies repository.EventRepo.
type recordingEventRepo struct {
	mu        sync.Mutex
	appendErr error
	events    []models.KettleEvent
}

func (r *recordingEventRepo) Append(ctx context.Context, e models.KettleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEventRepo) List(ctx context.Context, from, to time.Time, typ string) ([]models.KettleEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.KettleEvent, len(r.events))
	copy(out, r.events)
	return out, nil
}

func TestKettleService_SetTemperature_RecordsCommandEvent(t *testing.T) {
	tr := &stubTransport{}
	coord := newTestCoordinator(tr)
	erepo := &recordingEventRepo{}
	svc := NewKettleService(coord, erepo, testLog())

	if err := svc.SetTemperature(context.Background(), 85); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.sent) != 1 || tr.sent[0].Kind != kettle.CmdSetTemperature {
		t.Fatalf("expected one temperature command, got %+v", tr.sent)
	}
	if len(erepo.events) != 1 {
		t.Fatalf("expected one event, got %d", len(erepo.events))
	}
	ev := erepo.events[0]
	if ev.Type != models.EventCommand {
		t.Fatalf("expected COMMAND event, got %s", ev.Type)
	}
	if ev.EventID == "" || ev.OccurredAt.IsZero() {
		t.Fatalf("expected populated event, got %+v", ev)
	}
}

func TestKettleService_InvalidHold_NoCommandNoEvent(t *testing.T) {
	tr := &stubTransport{}
	coord := newTestCoordinator(tr)
	erepo := &recordingEventRepo{}
	svc := NewKettleService(coord, erepo, testLog())

	err := svc.SetHold(context.Background(), 37)
	if !errors.Is(err, kettle.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	if len(tr.sent) != 0 {
		t.Fatalf("expected no wire activity, got %+v", tr.sent)
	}
	if len(erepo.events) != 0 {
		t.Fatalf("expected no event for rejected command, got %d", len(erepo.events))
	}
}

func TestKettleService_EventAppendFailureDoesNotFailCommand(t *testing.T) {
	tr := &stubTransport{}
	coord := newTestCoordinator(tr)
	erepo := &recordingEventRepo{appendErr: errors.New("db down")}
	svc := NewKettleService(coord, erepo, testLog())

	if err := svc.SetScheduleEnabled(context.Background(), true); err != nil {
		t.Fatalf("expected command to succeed despite event failure, got %v", err)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("expected command on the wire, got %+v", tr.sent)
	}
}

func TestKettleService_Refresh_Delegates(t *testing.T) {
	tr := &stubTransport{pollResp: models.StateDelta{CurrentTemp: fptr(70.0)}}
	coord := newTestCoordinator(tr)
	svc := NewKettleService(coord, &recordingEventRepo{}, testLog())

	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st := coord.State(); st.CurrentTemp == nil || *st.CurrentTemp != 70.0 {
		t.Fatalf("expected refreshed snapshot, got %+v", st)
	}
}

func TestPollerService_PersistsSnapshotEachCycle(t *testing.T) {
	tr := &stubTransport{pollResp: models.StateDelta{CurrentTemp: fptr(91.0)}}
	coord := newTestCoordinator(tr)
	srepo := &monitoringStateRepoStub{}
	poller := NewPollerService(coord, srepo, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx, 20*time.Millisecond)
		close(done)
	}()
	time.Sleep(110 * time.Millisecond)
	cancel()
	<-done

	if len(srepo.savedCalls) < 3 {
		t.Fatalf("expected several persisted snapshots, got %d", len(srepo.savedCalls))
	}
	last := srepo.savedCalls[len(srepo.savedCalls)-1]
	if last.CurrentTemp == nil || *last.CurrentTemp != 91.0 {
		t.Fatalf("expected persisted snapshot to carry polled data, got %+v", last)
	}
}

func TestPollerService_SkipsPersistOnPollFailure(t *testing.T) {
	tr := &stubTransport{pollErr: errors.New("device gone")}
	coord := newTestCoordinator(tr)
	srepo := &monitoringStateRepoStub{}
	poller := NewPollerService(coord, srepo, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx, 20*time.Millisecond)
		close(done)
	}()
	time.Sleep(90 * time.Millisecond)
	cancel()
	<-done

	if len(srepo.savedCalls) != 0 {
		t.Fatalf("expected no persisted snapshots on failure, got %d", len(srepo.savedCalls))
	}
	if coord.Status() != coordinator.StatusDegraded {
		t.Fatalf("expected degraded coordinator, got %s", coord.Status())
	}
}
