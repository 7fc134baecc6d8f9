// Package verification is the faculty review workflow: the tenant-scoped
// pending queue and the approve/reject state machine.
package verification

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"campustrack/internal/apperr"
	"campustrack/internal/audit"
	"campustrack/internal/identity"
	"campustrack/internal/logging"
	"campustrack/internal/metrics"
	"campustrack/internal/paging"
	"campustrack/internal/submission"
)

// Store loads and locks submissions.
type Store interface {
	Pending(ctx context.Context, universityID string, kinds []submission.Kind) ([]submission.Verifiable, error)
	Review(ctx context.Context, k submission.Kind, id string, decide func(submission.Verifiable) (audit.Entry, error)) (submission.Verifiable, error)
}

// Recomputer refreshes a student's derived analytics after a decision.
type Recomputer interface {
	RecomputeOrEnqueue(ctx context.Context, studentID string)
}

// Notifier tells the owner about a decision.
type Notifier interface {
	Reviewed(ctx context.Context, v submission.Verifiable)
}

type Engine struct {
	store     Store
	analytics Recomputer
	notifier  Notifier
	log       *slog.Logger
	now       func() time.Time
}

// NewEngine wires the engine. notifier may be nil.
func NewEngine(store Store, analytics Recomputer, notifier Notifier, log *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		analytics: analytics,
		notifier:  notifier,
		log:       logging.OrDefault(log),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Page is one page of the pending queue.
type Page struct {
	Items      []submission.Verifiable `json:"pendingItems"`
	Pagination paging.Meta             `json:"pagination"`
}

// ListPending returns the actor's university's pending submissions, newest
// first. An empty itemType means all kinds.
func (e *Engine) ListPending(ctx context.Context, actor identity.Actor, itemType string, p paging.Params) (Page, error) {
	kinds := submission.Kinds
	if itemType != "" {
		k, err := submission.ParseKind(itemType)
		if err != nil {
			return Page{}, err
		}
		kinds = []submission.Kind{k}
	}
	p = p.Normalize(20, 100)

	items, err := e.store.Pending(ctx, actor.UniversityID, kinds)
	if err != nil {
		return Page{}, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Base(), items[j].Base()
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return Page{Items: paging.Slice(items, p), Pagination: paging.NewMeta(p, len(items))}, nil
}

// Outcome is the result of a decision.
type Outcome struct {
	ItemID               string            `json:"itemId"`
	VerificationStatus   submission.Status `json:"verificationStatus"`
	VerifiedBy           string            `json:"verifiedBy"`
	VerificationDate     time.Time         `json:"verificationDate"`
	VerificationComments string            `json:"verificationComments"`
}

func (e *Engine) Approve(ctx context.Context, actor identity.Actor, itemType, itemID, comments string, origin audit.Origin) (Outcome, error) {
	return e.decide(ctx, actor, submission.Approve, itemType, itemID, comments, origin)
}

func (e *Engine) Reject(ctx context.Context, actor identity.Actor, itemType, itemID, comments string, origin audit.Origin) (Outcome, error) {
	return e.decide(ctx, actor, submission.Reject, itemType, itemID, comments, origin)
}

// decide checks, in order, the item type, existence, tenant and pending
// status. The status change and its audit entry commit together; analytics
// and the notification follow the commit and cannot fail the decision.
func (e *Engine) decide(ctx context.Context, actor identity.Actor, d submission.Decision, itemType, itemID, comments string, origin audit.Origin) (Outcome, error) {
	kind, err := submission.ParseKind(itemType)
	if err != nil {
		return Outcome{}, err
	}
	at := e.now()

	v, err := e.store.Review(ctx, kind, itemID, func(v submission.Verifiable) (audit.Entry, error) {
		rec := v.Base()
		if rec.Student == nil || rec.Student.UniversityID != actor.UniversityID {
			return audit.Entry{}, apperr.ErrUnauthorizedUniversity
		}
		before := rec.Status
		if err := rec.Decide(d, actor.ProfileRef, comments, at); err != nil {
			return audit.Entry{}, err
		}
		return audit.Entry{
			Action:        audit.Action(d),
			PerformedBy:   actor.UserID,
			PerformerUID7: actor.UID7,
			ResourceType:  string(kind),
			ResourceID:    rec.ID,
			OldValues:     map[string]any{"verificationStatus": string(before)},
			NewValues:     map[string]any{"verificationStatus": string(rec.Status), "verificationComments": comments},
			Reason:        comments,
			UniversityID:  actor.UniversityID,
			Timestamp:     at,
		}.WithOrigin(origin), nil
	})
	if err != nil {
		return Outcome{}, err
	}

	rec := v.Base()
	metrics.Decisions.WithLabelValues(string(kind), string(rec.Status)).Inc()
	e.log.InfoContext(ctx, "submission reviewed",
		"kind", kind, "item_id", rec.ID, "status", rec.Status, "faculty_uid7", actor.UID7)

	e.analytics.RecomputeOrEnqueue(ctx, rec.StudentID)
	if e.notifier != nil {
		e.notifier.Reviewed(ctx, v)
	}

	return Outcome{
		ItemID:               rec.ID,
		VerificationStatus:   rec.Status,
		VerifiedBy:           actor.UID7,
		VerificationDate:     at,
		VerificationComments: comments,
	}, nil
}
