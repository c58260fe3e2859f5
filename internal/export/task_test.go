package export

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type fakeRegistry struct {
	ids      []int64
	failWith error
}

func (f *fakeRegistry) ListActiveIDs(context.Context) ([]int64, error) {
	return f.ids, f.failWith
}

type fakeStats struct {
	total      int64
	byCategory map[int]int64
}

func (f *fakeStats) CountActive(context.Context) (int64, error) {
	return f.total, nil
}

func (f *fakeStats) CountActiveByCategory(context.Context) (map[int]int64, error) {
	return f.byCategory, nil
}

type sentDocument struct {
	recipientID int64
	data        string
	filename    string
	caption     string
}

type fakeDocumentSender struct {
	sent       []sentDocument
	failForIDs map[int64]error
}

func (f *fakeDocumentSender) SendDocument(_ context.Context, recipientID int64, data []byte, filename, caption string) error {
	if err := f.failForIDs[recipientID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentDocument{
		recipientID: recipientID,
		data:        string(data),
		filename:    filename,
		caption:     caption,
	})
	return nil
}

func newTestTask(registry Registry, stats Stats, sender DocumentSender, operatorIDs []int64) *Task {
	hookLogger, _ := logtest.NewNullLogger()
	return NewTask(registry, stats, sender, operatorIDs, "@every 24h", logrus.NewEntry(hookLogger))
}

func TestRunOnceSkipsEmptyRegistry(t *testing.T) {
	sender := &fakeDocumentSender{}
	task := newTestTask(&fakeRegistry{}, &fakeStats{}, sender, []int64{100, 200})

	task.runOnce(context.Background())

	if len(sender.sent) != 0 {
		t.Fatalf("expected no documents for empty registry, got %v", sender.sent)
	}
}

func TestRunOnceDeliversToEveryOperator(t *testing.T) {
	registry := &fakeRegistry{ids: []int64{1, 2, 3}}
	stats := &fakeStats{total: 3, byCategory: map[int]int64{0: 1, 1: 2, 2: 0, 3: 0}}
	sender := &fakeDocumentSender{}
	task := newTestTask(registry, stats, sender, []int64{100, 200})

	task.runOnce(context.Background())

	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(sender.sent))
	}

	for i, operatorID := range []int64{100, 200} {
		doc := sender.sent[i]
		if doc.recipientID != operatorID {
			t.Fatalf("expected delivery to %d, got %d", operatorID, doc.recipientID)
		}
		if doc.data != "1\n2\n3" {
			t.Fatalf("unexpected snapshot content %q", doc.data)
		}
		if doc.filename != SnapshotFilename {
			t.Fatalf("unexpected filename %q", doc.filename)
		}
	}
}

func TestRunOnceIsolatesOperatorFailures(t *testing.T) {
	registry := &fakeRegistry{ids: []int64{7}}
	stats := &fakeStats{total: 1, byCategory: map[int]int64{0: 1}}
	sender := &fakeDocumentSender{
		failForIDs: map[int64]error{100: errors.New("operator unreachable")},
	}
	task := newTestTask(registry, stats, sender, []int64{100, 200})

	task.runOnce(context.Background())

	if len(sender.sent) != 1 || sender.sent[0].recipientID != 200 {
		t.Fatalf("expected delivery to operator 200 despite 100 failing, got %v", sender.sent)
	}
}

func TestRunOnceAbortsOnRegistryError(t *testing.T) {
	registry := &fakeRegistry{failWith: errors.New("storage down")}
	sender := &fakeDocumentSender{}
	task := newTestTask(registry, &fakeStats{}, sender, []int64{100})

	task.runOnce(context.Background())

	if len(sender.sent) != 0 {
		t.Fatalf("expected no deliveries on registry failure, got %v", sender.sent)
	}
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	task := NewTask(&fakeRegistry{}, &fakeStats{}, &fakeDocumentSender{}, nil, "not-a-schedule", logrus.NewEntry(hookLogger))

	if err := task.Start(context.Background()); err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
}

func TestSnapshotFormat(t *testing.T) {
	if got := string(Snapshot([]int64{10, 20, 30})); got != "10\n20\n30" {
		t.Fatalf("unexpected snapshot %q", got)
	}
	if got := string(Snapshot(nil)); got != "" {
		t.Fatalf("expected empty snapshot, got %q", got)
	}
}

func TestSummaryCaptionCoversKnownCategories(t *testing.T) {
	caption := SummaryCaption(4, map[int]int64{0: 1, 1: 2, 2: 1, 3: 0})

	want := "Active users: 4\nunclassified: 1\nnewcomer: 2\nintermediate: 1\nhigh: 0"
	if caption != want {
		t.Fatalf("unexpected caption %q", caption)
	}
}
