package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// testPause keeps dispatch pacing negligible in tests.
const testPause = time.Microsecond

type fakeSender struct {
	// errBySignal maps recipient id to the failure signal to report; absent
	// ids succeed.
	errBySignal map[int64]string
	attempts    []int64
}

func (f *fakeSender) SendPayload(_ context.Context, recipientID int64, _ any) error {
	f.attempts = append(f.attempts, recipientID)
	if signal, found := f.errBySignal[recipientID]; found {
		return &SendError{Signal: signal}
	}
	return nil
}

type fakeDeactivator struct {
	deactivated []int64
	failWith    error
}

func (f *fakeDeactivator) Deactivate(_ context.Context, userID int64) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.deactivated = append(f.deactivated, userID)
	return nil
}

func newTestDispatcher(sender Sender, registry Deactivator) *Dispatcher {
	hookLogger, _ := logtest.NewNullLogger()
	return NewDispatcher(sender, registry, testPause, logrus.NewEntry(hookLogger))
}

func TestDispatchEmptyAudienceSkipsTransport(t *testing.T) {
	sender := &fakeSender{}
	dispatcher := newTestDispatcher(sender, &fakeDeactivator{})

	report, err := dispatcher.Dispatch(context.Background(), "payload", nil)
	if !errors.Is(err, ErrEmptyAudience) {
		t.Fatalf("expected ErrEmptyAudience, got %v", err)
	}
	if report.Attempted != 0 || report.Success != 0 || report.Failed != 0 {
		t.Fatalf("expected zero report, got %+v", report)
	}
	if len(sender.attempts) != 0 {
		t.Fatalf("transport must not be invoked for an empty audience, got %v", sender.attempts)
	}
}

func TestDispatchAttemptsEveryTargetExactlyOnce(t *testing.T) {
	sender := &fakeSender{errBySignal: map[int64]string{
		20: "Forbidden: bot was blocked by the user",
		30: "network timeout",
	}}
	registry := &fakeDeactivator{}
	dispatcher := newTestDispatcher(sender, registry)

	targets := []int64{10, 20, 30}
	report, err := dispatcher.Dispatch(context.Background(), "payload", targets)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}

	if report.Success != 1 || report.Failed != 2 || report.Attempted != 3 {
		t.Fatalf("expected report {1 2 3}, got %+v", report)
	}
	if report.Success+report.Failed != report.Attempted || report.Attempted != len(targets) {
		t.Fatalf("report does not account for every target: %+v", report)
	}

	if len(sender.attempts) != len(targets) {
		t.Fatalf("expected %d attempts, got %d", len(targets), len(sender.attempts))
	}
	for i, targetID := range targets {
		if sender.attempts[i] != targetID {
			t.Fatalf("expected attempt order %v, got %v", targets, sender.attempts)
		}
	}

	// Only the blocked recipient is deactivated; the transient one stays.
	if len(registry.deactivated) != 1 || registry.deactivated[0] != 20 {
		t.Fatalf("expected only id 20 deactivated, got %v", registry.deactivated)
	}
}

func TestDispatchContinuesWhenDeactivationFails(t *testing.T) {
	sender := &fakeSender{errBySignal: map[int64]string{
		1: "user is deactivated",
	}}
	registry := &fakeDeactivator{failWith: errors.New("storage down")}
	dispatcher := newTestDispatcher(sender, registry)

	report, err := dispatcher.Dispatch(context.Background(), "payload", []int64{1, 2})
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if report.Attempted != 2 || report.Success != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestDispatchAllSuccesses(t *testing.T) {
	sender := &fakeSender{}
	registry := &fakeDeactivator{}
	dispatcher := newTestDispatcher(sender, registry)

	report, err := dispatcher.Dispatch(context.Background(), "payload", []int64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if report.Success != 4 || report.Failed != 0 || report.Attempted != 4 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(registry.deactivated) != 0 {
		t.Fatalf("no deactivations expected, got %v", registry.deactivated)
	}
}

func TestDispatchStopsOnCancelledContext(t *testing.T) {
	sender := &fakeSender{}
	hookLogger, _ := logtest.NewNullLogger()
	// A long pause makes the pacing wait the cancellation point.
	dispatcher := NewDispatcher(sender, &fakeDeactivator{}, time.Minute, logrus.NewEntry(hookLogger))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := dispatcher.Dispatch(ctx, "payload", []int64{1, 2, 3})
	if err == nil {
		t.Fatalf("expected context error")
	}
	if report.Attempted == 0 {
		t.Fatalf("expected at least one attempt before cancellation")
	}
	if report.Attempted == 3 {
		t.Fatalf("expected cancellation to stop the run early")
	}
}
