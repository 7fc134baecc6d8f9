// Package worker drains the background queue: deferred analytics
// recomputations and decision notifications.
package worker

import (
	"context"
	"log/slog"
	"time"

	"campustrack/internal/analytics"
	"campustrack/internal/logging"
	"campustrack/internal/metrics"
	"campustrack/internal/notify"
	"campustrack/internal/queue"
)

// Recomputer rebuilds one student's analytics.
type Recomputer interface {
	Recompute(ctx context.Context, studentID string) (analytics.Result, error)
}

// Inbox persists notifications.
type Inbox interface {
	Save(ctx context.Context, n notify.Notification) (notify.Notification, error)
}

type Worker struct {
	q          queue.Queue
	analytics  Recomputer
	inbox      Inbox
	retryLimit int
	backoff    time.Duration
	log        *slog.Logger
}

// New builds a worker. inbox may be nil; notifications are then logged and
// dropped.
func New(q queue.Queue, a Recomputer, inbox Inbox, retryLimit int, log *slog.Logger) *Worker {
	if retryLimit <= 0 {
		retryLimit = 5
	}
	return &Worker{q: q, analytics: a, inbox: inbox, retryLimit: retryLimit, backoff: 500 * time.Millisecond, log: logging.OrDefault(log)}
}

// Run consumes until ctx is cancelled or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.q.Consume(ctx)
	if err != nil {
		return err
	}
	w.log.InfoContext(ctx, "worker started, waiting for messages")
	for msg := range messages {
		outcome := w.Handle(ctx, msg)
		metrics.QueueMessages.WithLabelValues(msg.Type, outcome).Inc()
	}
	w.log.InfoContext(ctx, "worker stopped")
	return nil
}

// Handle processes one message and returns its outcome label.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) string {
	switch msg.Type {
	case analytics.RecomputeType:
		return w.recompute(ctx, msg.Body)
	case notify.Type:
		return w.deliver(ctx, msg.Body)
	}
	w.log.WarnContext(ctx, "unknown message type", "type", msg.Type)
	return "skipped"
}

func (w *Worker) recompute(ctx context.Context, body []byte) string {
	retry, err := analytics.DecodeRetry(body)
	if err != nil {
		w.log.ErrorContext(ctx, "bad recompute message", "err", err)
		return "invalid"
	}
	res, err := w.analytics.Recompute(ctx, retry.StudentID)
	if err == nil {
		w.log.InfoContext(ctx, "analytics recomputed", "student_id", res.StudentID,
			"attempt", retry.Attempt, "ratio", res.VerificationRatio)
		return "processed"
	}
	metrics.AnalyticsFailures.Inc()
	if retry.Attempt >= w.retryLimit {
		w.log.ErrorContext(ctx, "analytics recompute gave up", "student_id", retry.StudentID,
			"attempt", retry.Attempt, "err", err)
		return "dropped"
	}
	w.log.WarnContext(ctx, "analytics recompute failed, requeueing", "student_id", retry.StudentID,
		"attempt", retry.Attempt, "err", err)

	select {
	case <-ctx.Done():
	case <-time.After(w.backoff * time.Duration(retry.Attempt)):
	}
	if err := w.q.Publish(context.WithoutCancel(ctx), retry.Next()); err != nil {
		w.log.ErrorContext(ctx, "analytics requeue failed", "student_id", retry.StudentID, "err", err)
		return "dropped"
	}
	return "retried"
}

func (w *Worker) deliver(ctx context.Context, body []byte) string {
	n, err := notify.Decode(body)
	if err != nil {
		w.log.ErrorContext(ctx, "bad notification message", "err", err)
		return "invalid"
	}
	if w.inbox == nil {
		w.log.InfoContext(ctx, "notification", "recipient_id", n.RecipientID, "title", n.Title)
		return "processed"
	}
	saved, err := w.inbox.Save(ctx, n)
	if err != nil {
		w.log.ErrorContext(ctx, "notification save failed", "recipient_id", n.RecipientID, "err", err)
		return "failed"
	}
	w.log.InfoContext(ctx, "notification stored", "id", saved.ID, "recipient_id", saved.RecipientID)
	return "processed"
}
