package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"campustrack/internal/apperr"
	"campustrack/internal/audit"
	"campustrack/internal/logging"
	"campustrack/internal/paging"
)

// Store is the persistence used by Service.
type Store interface {
	StudentByUID7(ctx context.Context, uid7 string) (StudentProfile, error)
	ListStudents(ctx context.Context, q StudentQuery) ([]StudentProfile, int, error)
	Universities(ctx context.Context) ([]University, error)
	CreateUniversity(ctx context.Context, u University) (University, error)
}

type Service struct {
	store Store
	audit *audit.Recorder
	log   *slog.Logger
}

func NewService(store Store, rec *audit.Recorder, log *slog.Logger) *Service {
	return &Service{store: store, audit: rec, log: logging.OrDefault(log)}
}

// StudentPage is one page of the faculty student list.
type StudentPage struct {
	Students   []StudentProfile `json:"students"`
	Pagination paging.Meta      `json:"pagination"`
}

// ListStudents lists the students of the actor's university.
func (s *Service) ListStudents(ctx context.Context, actor Actor, q StudentQuery) (StudentPage, error) {
	q.UniversityID = actor.UniversityID
	q.Params = q.Params.Normalize(20, 100)
	q.Search = strings.TrimSpace(q.Search)

	students, total, err := s.store.ListStudents(ctx, q)
	if err != nil {
		return StudentPage{}, fmt.Errorf("list students: %w", err)
	}
	if students == nil {
		students = []StudentProfile{}
	}
	return StudentPage{Students: students, Pagination: paging.NewMeta(q.Params, total)}, nil
}

// Profile returns a student's own profile.
func (s *Service) Profile(ctx context.Context, actor Actor, uid7 string) (StudentProfile, error) {
	if actor.UID7 != uid7 {
		return StudentProfile{}, apperr.ErrForbidden
	}
	p, err := s.store.StudentByUID7(ctx, uid7)
	if err != nil {
		if apperr.Is(err, apperr.ErrStudentNotFound.Code) {
			return StudentProfile{}, apperr.ErrProfileNotFound
		}
		return StudentProfile{}, err
	}
	return p, nil
}

func (s *Service) Universities(ctx context.Context) ([]University, error) {
	return s.store.Universities(ctx)
}

// CreateUniversity inserts a tenant and records the creation. u must have
// been validated by the caller.
func (s *Service) CreateUniversity(ctx context.Context, actor Actor, u University, origin audit.Origin) (University, error) {
	u.ID = ""
	u.Name = strings.TrimSpace(u.Name)
	u.IsActive = true
	created, err := s.store.CreateUniversity(ctx, u)
	if err != nil {
		return University{}, err
	}
	s.audit.Record(ctx, audit.Entry{
		Action:        audit.ActionCreate,
		PerformedBy:   actor.UserID,
		PerformerUID7: actor.UID7,
		ResourceType:  "university",
		ResourceID:    created.ID,
		NewValues:     map[string]any{"name": created.Name, "domain": created.Domain, "country": created.Country},
		UniversityID:  created.ID,
	}.WithOrigin(origin))
	s.log.InfoContext(ctx, "university created", "id", created.ID, "domain", created.Domain)
	return created, nil
}
