package broadcast

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultPause is the minimum interval between delivery attempts, chosen to
// stay under the platform's per-second delivery quota.
const DefaultPause = 50 * time.Millisecond

// ErrEmptyAudience reports a dispatch with no recipients. It is a recognized
// condition, not a delivery failure: the caller should skip the send and
// tell the operator.
var ErrEmptyAudience = errors.New("broadcast: empty audience")

// Sender delivers one opaque payload to one recipient. Implementations
// should return *SendError so the failure signal survives classification.
type Sender interface {
	SendPayload(ctx context.Context, recipientID int64, payload any) error
}

// Deactivator soft-deletes a recipient after a permanent delivery failure.
type Deactivator interface {
	Deactivate(ctx context.Context, userID int64) error
}

// Report summarizes one dispatch run. Success+Failed always equals Attempted.
type Report struct {
	Success   int
	Failed    int
	Attempted int
}

// Dispatcher fans a payload out to a target list sequentially. Each call to
// Dispatch is self-contained: the audience snapshot is fixed at call start
// and per-recipient outcomes never abort the run.
type Dispatcher struct {
	sender   Sender
	registry Deactivator
	limiter  *rate.Limiter
	logger   *logrus.Entry
}

// NewDispatcher constructs a Dispatcher pacing attempts at one per pause
// interval. A non-positive pause falls back to DefaultPause.
func NewDispatcher(sender Sender, registry Deactivator, pause time.Duration, logger *logrus.Entry) *Dispatcher {
	if pause <= 0 {
		pause = DefaultPause
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Dispatcher{
		sender:   sender,
		registry: registry,
		limiter:  rate.NewLimiter(rate.Every(pause), 1),
		logger:   logger,
	}
}

// Dispatch attempts delivery to every target exactly once, in order, with no
// retries. Permanent failures additionally deactivate the recipient in the
// registry. An empty target list returns ErrEmptyAudience without touching
// the transport. Cancelling the context stops the run at the next pacing
// point; the partial report is returned together with the context error.
func (d *Dispatcher) Dispatch(ctx context.Context, payload any, targetIDs []int64) (Report, error) {
	if d == nil || d.sender == nil {
		return Report{}, errors.New("dispatcher is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if len(targetIDs) == 0 {
		return Report{}, ErrEmptyAudience
	}

	d.logger.WithFields(logrus.Fields{
		"event":   "broadcast_start",
		"targets": len(targetIDs),
	}).Info("starting broadcast")

	var report Report
	for _, targetID := range targetIDs {
		report.Attempted++

		err := d.sender.SendPayload(ctx, targetID, payload)
		if err == nil {
			report.Success++
		} else {
			report.Failed++
			d.recordFailure(ctx, targetID, err)
		}

		// Pacing delay between attempts, not a retry backoff.
		if err := d.limiter.Wait(ctx); err != nil {
			d.logger.WithFields(logrus.Fields{
				"event":     "broadcast_cancelled",
				"attempted": report.Attempted,
			}).Warn("broadcast cancelled before completing the target list")
			return report, err
		}
	}

	d.logger.WithFields(logrus.Fields{
		"event":   "broadcast_done",
		"success": report.Success,
		"failed":  report.Failed,
	}).Info("broadcast finished")

	return report, nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, targetID int64, err error) {
	signal := failureSignal(err)
	severity := Classify(signal)

	d.logger.WithFields(logrus.Fields{
		"event":    "broadcast_delivery_failed",
		"user_id":  targetID,
		"severity": severity.String(),
		"signal":   signal,
	}).Warn("delivery failed")

	if severity != Permanent || d.registry == nil {
		return
	}

	if derr := d.registry.Deactivate(ctx, targetID); derr != nil {
		d.logger.WithFields(logrus.Fields{
			"event":   "broadcast_deactivate_failed",
			"user_id": targetID,
		}).WithError(derr).Error("failed to deactivate unreachable user")
	}
}
