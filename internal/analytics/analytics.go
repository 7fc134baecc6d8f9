// Package analytics derives a student's activity counters and verification
// ratio from their submissions. Every mutation path goes through Recompute.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"campustrack/internal/apperr"
	"campustrack/internal/identity"
	"campustrack/internal/logging"
	"campustrack/internal/metrics"
	"campustrack/internal/queue"
	"campustrack/internal/submission"
)

// RecomputeType is the queue message type for a deferred recomputation.
const RecomputeType = "analytics.recompute"

// Submissions reads a student's submissions.
type Submissions interface {
	Stats(ctx context.Context, studentID string) (submission.Stats, error)
	ListByStudent(ctx context.Context, k submission.Kind, studentID string) ([]submission.Verifiable, error)
}

// Profiles reads and updates student profiles.
type Profiles interface {
	StudentByUID7(ctx context.Context, uid7 string) (identity.StudentProfile, error)
	UpdateAnalytics(ctx context.Context, profileID string, counts identity.ActivityCounts, ratio float64, lastActivity *time.Time) error
}

// Ratio is verified/total, or 0 when there is nothing to verify.
func Ratio(verified, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(verified) / float64(total)
}

// Compute turns per-kind tallies into profile counters and the ratio.
func Compute(st submission.Stats) (identity.ActivityCounts, float64) {
	cert := st.ByKind[submission.KindCertificate]
	rep := st.ByKind[submission.KindReport]
	intern := st.ByKind[submission.KindInternship]

	counts := identity.ActivityCounts{
		Certificates:      cert.Total,
		Reports:           rep.Total,
		Internships:       intern.Total - intern.Summer,
		SummerInternships: intern.Summer,
		TotalActivities:   cert.Total + rep.Total + intern.Total,
	}
	verified := cert.Verified + rep.Verified + intern.Verified
	return counts, Ratio(verified, counts.TotalActivities)
}

// Result is what a recomputation wrote.
type Result struct {
	StudentID         string                  `json:"studentId"`
	Counts            identity.ActivityCounts `json:"activityCounts"`
	VerificationRatio float64                 `json:"verificationRatio"`
	LastActivityDate  *time.Time              `json:"lastActivityDate,omitempty"`
}

type Aggregator struct {
	subs     Submissions
	profiles Profiles
	queue    queue.Queue
	log      *slog.Logger
}

// NewAggregator builds an aggregator. q may be nil, in which case failed
// recomputations are only logged.
func NewAggregator(subs Submissions, profiles Profiles, q queue.Queue, log *slog.Logger) *Aggregator {
	return &Aggregator{subs: subs, profiles: profiles, queue: q, log: logging.OrDefault(log)}
}

// Recompute rebuilds the counters of one student profile from its rows.
func (a *Aggregator) Recompute(ctx context.Context, studentID string) (Result, error) {
	st, err := a.subs.Stats(ctx, studentID)
	if err != nil {
		return Result{}, fmt.Errorf("analytics stats: %w", err)
	}
	counts, ratio := Compute(st)
	if err := a.profiles.UpdateAnalytics(ctx, studentID, counts, ratio, st.LastActivity); err != nil {
		return Result{}, fmt.Errorf("analytics update: %w", err)
	}
	return Result{StudentID: studentID, Counts: counts, VerificationRatio: ratio, LastActivityDate: st.LastActivity}, nil
}

// RecomputeOrEnqueue runs Recompute and, on failure, hands the student to
// the worker. It never returns an error.
func (a *Aggregator) RecomputeOrEnqueue(ctx context.Context, studentID string) {
	_, err := a.Recompute(ctx, studentID)
	if err == nil {
		return
	}
	metrics.AnalyticsFailures.Inc()
	a.log.ErrorContext(ctx, "analytics recompute failed", "student_id", studentID, "err", err)
	if a.queue == nil {
		return
	}
	body, _ := json.Marshal(Retry{StudentID: studentID, Attempt: 1})
	if err := a.queue.Publish(context.WithoutCancel(ctx), queue.Message{Type: RecomputeType, Body: body}); err != nil {
		metrics.QueueMessages.WithLabelValues(RecomputeType, "publish_error").Inc()
		a.log.ErrorContext(ctx, "analytics retry enqueue failed", "student_id", studentID, "err", err)
		return
	}
	metrics.QueueMessages.WithLabelValues(RecomputeType, "published").Inc()
}

// Retry is the body of a RecomputeType message.
type Retry struct {
	StudentID string `json:"studentId"`
	Attempt   int    `json:"attempt"`
}

// DecodeRetry parses a RecomputeType message body.
func DecodeRetry(body []byte) (Retry, error) {
	var r Retry
	if err := json.Unmarshal(body, &r); err != nil {
		return Retry{}, fmt.Errorf("decode retry: %w", err)
	}
	if r.StudentID == "" {
		return Retry{}, fmt.Errorf("decode retry: missing studentId")
	}
	return r, nil
}

// Next returns the message for the following attempt.
func (r Retry) Next() queue.Message {
	body, _ := json.Marshal(Retry{StudentID: r.StudentID, Attempt: r.Attempt + 1})
	return queue.Message{Type: RecomputeType, Body: body}
}

// KindSummary is one kind's tally and items in a student summary.
type KindSummary struct {
	submission.Tally
	SummerInternships *int                    `json:"summerInternships,omitempty"`
	Items             []submission.Verifiable `json:"items"`
}

// Summary is the faculty view of one student's activity.
type Summary struct {
	Student      identity.StudentProfile `json:"student"`
	Certificates KindSummary             `json:"certificates"`
	Reports      KindSummary             `json:"reports"`
	Internships  KindSummary             `json:"internships"`
}

// Summary returns a student's profile with their submissions grouped by
// kind. The student must belong to the faculty actor's university.
func (a *Aggregator) Summary(ctx context.Context, actor identity.Actor, studentUID7 string) (Summary, error) {
	student, err := a.profiles.StudentByUID7(ctx, studentUID7)
	if err != nil {
		return Summary{}, err
	}
	if student.UniversityID != actor.UniversityID {
		return Summary{}, apperr.ErrUnauthorizedUniversity
	}

	out := Summary{Student: student}
	for _, k := range submission.Kinds {
		items, err := a.subs.ListByStudent(ctx, k, student.ID)
		if err != nil {
			return Summary{}, fmt.Errorf("list %s: %w", k, err)
		}
		ks := KindSummary{Tally: tally(items), Items: items}
		switch k {
		case submission.KindCertificate:
			out.Certificates = ks
		case submission.KindReport:
			out.Reports = ks
		case submission.KindInternship:
			summer := 0
			for _, it := range items {
				if in, ok := it.(*submission.Internship); ok && in.IsSummerInternship {
					summer++
				}
			}
			ks.SummerInternships = &summer
			out.Internships = ks
		}
	}
	return out, nil
}

func tally(items []submission.Verifiable) submission.Tally {
	t := submission.Tally{Total: len(items)}
	for _, it := range items {
		switch it.Base().Status {
		case submission.StatusVerified:
			t.Verified++
		case submission.StatusPending:
			t.Pending++
		case submission.StatusRejected:
			t.Rejected++
		}
	}
	return t
}
