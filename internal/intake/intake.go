// Package intake accepts new certificates, reports and internships from
// students. Every upload lands as pending and triggers an analytics refresh.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"campustrack/internal/apperr"
	"campustrack/internal/audit"
	"campustrack/internal/identity"
	"campustrack/internal/logging"
	"campustrack/internal/metrics"
	"campustrack/internal/storage"
	"campustrack/internal/submission"
)

const dateLayout = "2006-01-02"

// Draft is the validated form of one upload.
type Draft interface {
	Kind() submission.Kind
	Build() (submission.Verifiable, error)
}

type CertificateDraft struct {
	Title       string `form:"title" json:"title" validate:"required,max=200"`
	Issuer      string `form:"issuer" json:"issuer" validate:"required,max=200"`
	IssueDate   string `form:"issueDate" json:"issueDate" validate:"omitempty,datetime=2006-01-02"`
	ExpiryDate  string `form:"expiryDate" json:"expiryDate" validate:"omitempty,datetime=2006-01-02"`
	Description string `form:"description" json:"description" validate:"max=2000"`
}

func (CertificateDraft) Kind() submission.Kind { return submission.KindCertificate }

func (d CertificateDraft) Build() (submission.Verifiable, error) {
	issue, err := optionalDate(d.IssueDate)
	if err != nil {
		return nil, err
	}
	expiry, err := optionalDate(d.ExpiryDate)
	if err != nil {
		return nil, err
	}
	return &submission.Certificate{
		Title: d.Title, Issuer: d.Issuer, IssueDate: issue, ExpiryDate: expiry, Description: d.Description,
	}, nil
}

type ReportDraft struct {
	Title          string `form:"title" json:"title" validate:"required,max=200"`
	ReportType     string `form:"reportType" json:"reportType" validate:"required,max=100"`
	Description    string `form:"description" json:"description" validate:"max=2000"`
	SubmissionDate string `form:"submissionDate" json:"submissionDate" validate:"omitempty,datetime=2006-01-02"`
}

func (ReportDraft) Kind() submission.Kind { return submission.KindReport }

func (d ReportDraft) Build() (submission.Verifiable, error) {
	submitted, err := optionalDate(d.SubmissionDate)
	if err != nil {
		return nil, err
	}
	r := &submission.Report{Title: d.Title, ReportType: d.ReportType, Description: d.Description}
	if submitted != nil {
		r.SubmissionDate = *submitted
	} else {
		r.SubmissionDate = time.Now().UTC()
	}
	return r, nil
}

type InternshipDraft struct {
	Company            string `form:"company" json:"company" validate:"required,max=200"`
	Role               string `form:"role" json:"role" validate:"required,max=200"`
	StartDate          string `form:"startDate" json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate            string `form:"endDate" json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	Description        string `form:"description" json:"description" validate:"max=2000"`
	IsSummerInternship bool   `form:"isSummerInternship" json:"isSummerInternship"`
}

func (InternshipDraft) Kind() submission.Kind { return submission.KindInternship }

func (d InternshipDraft) Build() (submission.Verifiable, error) {
	start, err := optionalDate(d.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := optionalDate(d.EndDate)
	if err != nil {
		return nil, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, apperr.Validation("endDate must not be before startDate")
	}
	return &submission.Internship{
		Company: d.Company, Role: d.Role, StartDate: start, EndDate: end,
		Description: d.Description, IsSummerInternship: d.IsSummerInternship,
	}, nil
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s))
	}
	return &t, nil
}

// Store inserts pending submissions.
type Store interface {
	Create(ctx context.Context, v submission.Verifiable) error
}

type Recomputer interface {
	RecomputeOrEnqueue(ctx context.Context, studentID string)
}

type Service struct {
	store     Store
	files     storage.Uploader
	analytics Recomputer
	audit     *audit.Recorder
	log       *slog.Logger
}

func NewService(store Store, files storage.Uploader, analytics Recomputer, rec *audit.Recorder, log *slog.Logger) *Service {
	return &Service{store: store, files: files, analytics: analytics, audit: rec, log: logging.OrDefault(log)}
}

// Upload stores file (optional for internships) and inserts the draft as a
// pending submission owned by the actor.
func (s *Service) Upload(ctx context.Context, actor identity.Actor, d Draft, file *storage.File, origin audit.Origin) (submission.Verifiable, error) {
	kind := d.Kind()
	if file == nil && kind != submission.KindInternship {
		return nil, apperr.ErrNoFile
	}
	v, err := d.Build()
	if err != nil {
		return nil, err
	}
	rec := v.Base()
	rec.StudentID = actor.ProfileRef
	rec.UniversityID = actor.UniversityID

	if file != nil {
		obj, err := s.files.Upload(ctx, string(kind)+"s", *file)
		if errors.Is(err, storage.ErrEmptyFile) {
			return nil, apperr.ErrNoFile
		}
		if err != nil {
			return nil, fmt.Errorf("store %s file: %w", kind, err)
		}
		rec.Object = obj
	}

	if err := s.store.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("create %s: %w", kind, err)
	}
	metrics.Submissions.WithLabelValues(string(kind)).Inc()

	s.audit.Record(ctx, audit.Entry{
		Action:        audit.ActionUpload,
		PerformedBy:   actor.UserID,
		PerformerUID7: actor.UID7,
		ResourceType:  string(kind),
		ResourceID:    rec.ID,
		NewValues:     map[string]any{"title": v.Headline(), "fileName": rec.Name},
		UniversityID:  actor.UniversityID,
	}.WithOrigin(origin))

	s.analytics.RecomputeOrEnqueue(ctx, rec.StudentID)
	s.log.InfoContext(ctx, "submission uploaded", "kind", kind, "id", rec.ID, "student_id", rec.StudentID)
	return v, nil
}
