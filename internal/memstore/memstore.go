// Package memstore is an in-memory implementation of the Postgres
// repositories, used by unit tests and the memory-only dev mode.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"campustrack/internal/apperr"
	"campustrack/internal/audit"
	"campustrack/internal/identity"
	"campustrack/internal/paging"
	"campustrack/internal/submission"
)

// Store holds every table behind one mutex. Review holds the mutex for its
// whole duration, which stands in for the row lock.
type Store struct {
	mu           sync.Mutex
	universities map[string]identity.University
	students     map[string]identity.StudentProfile
	subs         map[submission.Kind]map[string]submission.Verifiable
	audit        []audit.Entry

	// Fault injection.
	AuditErr  error
	StatsErr  error
	UpdateErr error
}

func New() *Store {
	s := &Store{
		universities: map[string]identity.University{},
		students:     map[string]identity.StudentProfile{},
		subs:         map[submission.Kind]map[string]submission.Verifiable{},
	}
	for _, k := range submission.Kinds {
		s.subs[k] = map[string]submission.Verifiable{}
	}
	return s
}

// AddStudent stores p, filling ids when empty.
func (s *Store) AddStudent(p identity.StudentProfile) identity.StudentProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.User.ID == "" {
		p.User.ID = uuid.NewString()
	}
	if p.LinkedAccounts == nil {
		p.LinkedAccounts = map[string]string{}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
		p.UpdatedAt = p.CreatedAt
	}
	s.students[p.ID] = p
	return p
}

func (s *Store) StudentByUID7(_ context.Context, uid7 string) (identity.StudentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.students {
		if p.User.UID7 == uid7 {
			return p, nil
		}
	}
	return identity.StudentProfile{}, apperr.ErrStudentNotFound
}

func (s *Store) StudentByID(_ context.Context, id string) (identity.StudentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.students[id]
	if !ok {
		return identity.StudentProfile{}, apperr.ErrProfileNotFound
	}
	return p, nil
}

func (s *Store) ListStudents(_ context.Context, q identity.StudentQuery) ([]identity.StudentProfile, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	search := strings.ToLower(q.Search)
	var res []identity.StudentProfile
	for _, p := range s.students {
		if p.UniversityID != q.UniversityID {
			continue
		}
		if q.Department != "" && p.Department != q.Department {
			continue
		}
		if q.Year > 0 && p.Year != q.Year {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.FullName), search) &&
			!strings.Contains(strings.ToLower(p.RollNo), search) {
			continue
		}
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].FullName != res[j].FullName {
			return res[i].FullName < res[j].FullName
		}
		return res[i].ID < res[j].ID
	})
	return paging.Slice(res, q.Params), len(res), nil
}

func (s *Store) UpdateAnalytics(_ context.Context, profileID string, counts identity.ActivityCounts, ratio float64, lastActivity *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	p, ok := s.students[profileID]
	if !ok {
		return apperr.ErrProfileNotFound
	}
	p.ActivityCounts = counts
	p.Analytics.VerificationRatio = ratio
	p.Analytics.LastActivityDate = lastActivity
	p.UpdatedAt = time.Now().UTC()
	s.students[profileID] = p
	return nil
}

func (s *Store) Universities(_ context.Context) ([]identity.University, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]identity.University, 0, len(s.universities))
	for _, u := range s.universities {
		u.VerifiedActivities = 0
		for _, byID := range s.subs {
			for _, v := range byID {
				if rec := v.Base(); rec.UniversityID == u.ID && rec.Status == submission.StatusVerified {
					u.VerifiedActivities++
				}
			}
		}
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (s *Store) CreateUniversity(_ context.Context, u identity.University) (identity.University, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Domain = strings.ToLower(u.Domain)
	for _, existing := range s.universities {
		if existing.Domain == u.Domain {
			return identity.University{}, apperr.ErrUniversityExists
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC()
	s.universities[u.ID] = u
	return u, nil
}

// Create inserts v as pending.
func (s *Store) Create(_ context.Context, v submission.Verifiable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := v.Base()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, ok := s.students[rec.StudentID]; !ok {
		return fmt.Errorf("insert %s: unknown student %s", v.Kind(), rec.StudentID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.UpdatedAt = rec.CreatedAt
	rec.Status = submission.StatusPending
	s.subs[v.Kind()][rec.ID] = clone(v)
	return nil
}

// Put stores v as is, for seeding decided rows.
func (s *Store) Put(v submission.Verifiable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.Base().ID == "" {
		v.Base().ID = uuid.NewString()
	}
	s.subs[v.Kind()][v.Base().ID] = clone(v)
}

// Get returns a copy of a stored submission.
func (s *Store) Get(k submission.Kind, id string) (submission.Verifiable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.subs[k][id]
	if !ok {
		return nil, false
	}
	return clone(v), true
}

func (s *Store) owner(studentID string) *submission.Owner {
	p, ok := s.students[studentID]
	if !ok {
		return nil
	}
	return &submission.Owner{
		ProfileID:    p.ID,
		UserID:       p.User.ID,
		UID7:         p.User.UID7,
		Email:        p.User.Email,
		FullName:     p.FullName,
		RollNo:       p.RollNo,
		Department:   p.Department,
		Year:         p.Year,
		UniversityID: p.UniversityID,
	}
}

func (s *Store) Pending(_ context.Context, universityID string, kinds []submission.Kind) ([]submission.Verifiable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := []submission.Verifiable{}
	for _, k := range kinds {
		for _, v := range s.subs[k] {
			rec := v.Base()
			if rec.UniversityID != universityID || rec.Status != submission.StatusPending {
				continue
			}
			c := clone(v)
			c.Base().Student = s.owner(rec.StudentID)
			res = append(res, c)
		}
	}
	return res, nil
}

func (s *Store) Review(_ context.Context, k submission.Kind, id string, decide func(submission.Verifiable) (audit.Entry, error)) (submission.Verifiable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.subs[k][id]
	if !ok {
		return nil, apperr.ErrItemNotFound
	}
	v := clone(stored)
	v.Base().Student = s.owner(v.Base().StudentID)

	entry, err := decide(v)
	if err != nil {
		return nil, err
	}
	if s.AuditErr != nil {
		return nil, s.AuditErr
	}
	if _, err := s.appendLocked(entry); err != nil {
		return nil, err
	}
	s.subs[k][id] = clone(v)
	return v, nil
}

func (s *Store) Stats(_ context.Context, studentID string) (submission.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StatsErr != nil {
		return submission.Stats{}, s.StatsErr
	}
	st := submission.Stats{ByKind: map[submission.Kind]submission.Tally{}}
	for _, k := range submission.Kinds {
		var t submission.Tally
		for _, v := range s.subs[k] {
			rec := v.Base()
			if rec.StudentID != studentID {
				continue
			}
			t.Total++
			switch rec.Status {
			case submission.StatusVerified:
				t.Verified++
			case submission.StatusPending:
				t.Pending++
			case submission.StatusRejected:
				t.Rejected++
			}
			if in, ok := v.(*submission.Internship); ok && in.IsSummerInternship {
				t.Summer++
			}
			if st.LastActivity == nil || rec.CreatedAt.After(*st.LastActivity) {
				at := rec.CreatedAt
				st.LastActivity = &at
			}
		}
		st.ByKind[k] = t
	}
	return st, nil
}

func (s *Store) ListByStudent(_ context.Context, k submission.Kind, studentID string) ([]submission.Verifiable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := []submission.Verifiable{}
	for _, v := range s.subs[k] {
		if v.Base().StudentID == studentID {
			res = append(res, clone(v))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i].Base(), res[j].Base()
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return res, nil
}

func (s *Store) Append(_ context.Context, e audit.Entry) (audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AuditErr != nil {
		return audit.Entry{}, s.AuditErr
	}
	return s.appendLocked(e)
}

func (s *Store) appendLocked(e audit.Entry) (audit.Entry, error) {
	if !e.Action.Valid() {
		return audit.Entry{}, fmt.Errorf("audit: unknown action %q", e.Action)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	s.audit = append(s.audit, e)
	return e, nil
}

func (s *Store) Query(_ context.Context, f audit.Filter) ([]audit.Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []audit.Entry
	for _, e := range s.audit {
		switch {
		case f.PerformedBy != "" && e.PerformedBy != f.PerformedBy,
			f.Action != "" && e.Action != f.Action,
			f.ResourceType != "" && e.ResourceType != f.ResourceType,
			f.ResourceID != "" && e.ResourceID != f.ResourceID,
			f.UniversityID != "" && e.UniversityID != f.UniversityID,
			f.From != nil && e.Timestamp.Before(*f.From),
			f.To != nil && e.Timestamp.After(*f.To):
			continue
		}
		res = append(res, e)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Timestamp.Equal(res[j].Timestamp) {
			return res[i].Timestamp.After(res[j].Timestamp)
		}
		return res[i].ID > res[j].ID
	})
	return paging.Slice(res, f.Params), len(res), nil
}

// AuditEntries returns every entry in insertion order.
func (s *Store) AuditEntries() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Entry(nil), s.audit...)
}

func clone(v submission.Verifiable) submission.Verifiable {
	var c submission.Verifiable
	switch t := v.(type) {
	case *submission.Certificate:
		cp := *t
		c = &cp
	case *submission.Report:
		cp := *t
		c = &cp
	case *submission.Internship:
		cp := *t
		c = &cp
	default:
		return v
	}
	if o := c.Base().Student; o != nil {
		cp := *o
		c.Base().Student = &cp
	}
	return c
}
