// Package notify tells students about decisions on their submissions. The
// API publishes notifications to the queue; the worker stores them.
package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"campustrack/internal/logging"
	"campustrack/internal/metrics"
	"campustrack/internal/queue"
	"campustrack/internal/submission"
)

// Type is the queue message type for notifications.
const Type = "notification"

type Notification struct {
	ID           string    `json:"_id"`
	RecipientID  string    `json:"recipientId"`
	Kind         string    `json:"type"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	ResourceType string    `json:"resourceType,omitempty"`
	ResourceID   string    `json:"resourceId,omitempty"`
	IsRead       bool      `json:"isRead"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ForDecision builds the notification sent to the owner of a decided
// submission.
func ForDecision(v submission.Verifiable) Notification {
	rec := v.Base()
	recipient := rec.StudentID
	if rec.Student != nil && rec.Student.UserID != "" {
		recipient = rec.Student.UserID
	}
	label := strings.ToUpper(string(v.Kind())[:1]) + string(v.Kind())[1:]

	n := Notification{
		RecipientID:  recipient,
		Kind:         "verification_" + string(rec.Status),
		ResourceType: string(v.Kind()),
		ResourceID:   rec.ID,
		CreatedAt:    time.Now().UTC(),
	}
	switch rec.Status {
	case submission.StatusVerified:
		n.Title = label + " verified"
		n.Message = fmt.Sprintf("Your %s %q has been verified.", v.Kind(), v.Headline())
	default:
		n.Title = label + " rejected"
		n.Message = fmt.Sprintf("Your %s %q was rejected.", v.Kind(), v.Headline())
	}
	if rec.VerificationComments != "" {
		n.Message += " Comments: " + rec.VerificationComments
	}
	return n
}

// Publisher enqueues notifications without failing the caller.
type Publisher struct {
	q   queue.Queue
	log *slog.Logger
}

func NewPublisher(q queue.Queue, log *slog.Logger) *Publisher {
	return &Publisher{q: q, log: logging.OrDefault(log)}
}

// Reviewed publishes the decision notification for v.
func (p *Publisher) Reviewed(ctx context.Context, v submission.Verifiable) {
	if p == nil || p.q == nil {
		return
	}
	body, err := json.Marshal(ForDecision(v))
	if err != nil {
		p.log.ErrorContext(ctx, "notification encode failed", "err", err)
		return
	}
	if err := p.q.Publish(context.WithoutCancel(ctx), queue.Message{Type: Type, Body: body}); err != nil {
		metrics.QueueMessages.WithLabelValues(Type, "publish_error").Inc()
		p.log.WarnContext(ctx, "notification publish failed", "resource_id", v.Base().ID, "err", err)
		return
	}
	metrics.QueueMessages.WithLabelValues(Type, "published").Inc()
}

// Decode parses a Type message body.
func Decode(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.RecipientID == "" || n.Title == "" {
		return Notification{}, fmt.Errorf("decode notification: recipient and title required")
	}
	return n, nil
}

// Repository stores notifications in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Save(ctx context.Context, n Notification) (Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, kind, title, message, resource_type, resource_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.ID, n.RecipientID, n.Kind, n.Title, n.Message, n.ResourceType, n.ResourceID, n.IsRead, n.CreatedAt)
	if err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}
