package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SnapshotFilename is the document name operators receive on scheduled runs.
const SnapshotFilename = "daily_backup.txt"

// Registry lists the active audience for a snapshot.
type Registry interface {
	ListActiveIDs(ctx context.Context) ([]int64, error)
}

// Stats reports active-user counts for the snapshot caption.
type Stats interface {
	CountActive(ctx context.Context) (int64, error)
	CountActiveByCategory(ctx context.Context) (map[int]int64, error)
}

// DocumentSender uploads a document to one recipient.
type DocumentSender interface {
	SendDocument(ctx context.Context, recipientID int64, data []byte, filename, caption string) error
}

// Task snapshots the registry on a cron schedule and pushes the snapshot to
// every configured operator. Operator failures are isolated: one failed
// delivery never blocks the others or kills the task.
type Task struct {
	registry    Registry
	stats       Stats
	sender      DocumentSender
	operatorIDs []int64
	schedule    string
	logger      *logrus.Entry

	cron *cron.Cron
}

// NewTask constructs the export task. The schedule uses cron syntax,
// including descriptors like "@every 24h".
func NewTask(registry Registry, stats Stats, sender DocumentSender, operatorIDs []int64, schedule string, logger *logrus.Entry) *Task {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Task{
		registry:    registry,
		stats:       stats,
		sender:      sender,
		operatorIDs: operatorIDs,
		schedule:    schedule,
		logger:      logger,
	}
}

// Start registers the schedule and launches the cron runner. The task runs
// until Stop is called; each firing is independent and failures are logged,
// never fatal.
func (t *Task) Start(ctx context.Context) error {
	if t == nil || t.registry == nil || t.stats == nil || t.sender == nil {
		return errors.New("export task is not initialized")
	}
	if t.cron != nil {
		return errors.New("export task already started")
	}

	runner := cron.New()
	if _, err := runner.AddFunc(t.schedule, func() { t.runOnce(ctx) }); err != nil {
		return fmt.Errorf("register export schedule %q: %w", t.schedule, err)
	}

	t.cron = runner
	t.cron.Start()

	t.logger.WithFields(logrus.Fields{
		"event":     "export_scheduled",
		"schedule":  t.schedule,
		"operators": len(t.operatorIDs),
	}).Info("scheduled registry export")

	return nil
}

// Stop halts the cron runner and waits for an in-flight run to finish.
func (t *Task) Stop() {
	if t == nil || t.cron == nil {
		return
	}

	<-t.cron.Stop().Done()
	t.logger.WithField("event", "export_stopped").Info("registry export stopped")
}

// runOnce performs a single export cycle. An empty registry logs and returns
// without contacting anyone.
func (t *Task) runOnce(ctx context.Context) {
	ids, err := t.registry.ListActiveIDs(ctx)
	if err != nil {
		t.logger.WithField("event", "export_read_failed").WithError(err).Error("failed to read active users")
		return
	}

	if len(ids) == 0 {
		t.logger.WithField("event", "export_empty").Info("registry is empty, skipping export")
		return
	}

	total, err := t.stats.CountActive(ctx)
	if err != nil {
		t.logger.WithField("event", "export_stats_failed").WithError(err).Error("failed to count active users")
		return
	}
	byCategory, err := t.stats.CountActiveByCategory(ctx)
	if err != nil {
		t.logger.WithField("event", "export_stats_failed").WithError(err).Error("failed to count users by category")
		return
	}

	snapshot := Snapshot(ids)
	caption := SummaryCaption(total, byCategory)

	for _, operatorID := range t.operatorIDs {
		if err := t.sender.SendDocument(ctx, operatorID, snapshot, SnapshotFilename, caption); err != nil {
			t.logger.WithFields(logrus.Fields{
				"event":       "export_send_failed",
				"operator_id": operatorID,
			}).WithError(err).Warn("failed to deliver export to operator")
			continue
		}

		t.logger.WithFields(logrus.Fields{
			"event":       "export_sent",
			"operator_id": operatorID,
			"users":       len(ids),
		}).Info("delivered registry export")
	}
}
