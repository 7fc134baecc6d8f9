package submission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"campustrack/internal/apperr"
	"campustrack/internal/audit"
)

// Repository persists submissions in Postgres, one table per kind.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func table(k Kind) string {
	return string(k) + "s"
}

// kindColumns are the per-kind columns, in the order fields returns them.
var kindColumns = map[Kind][]string{
	KindCertificate: {"title", "issuer", "issue_date", "expiry_date", "description"},
	KindReport:      {"title", "report_type", "description", "submission_date"},
	KindInternship:  {"company", "role", "start_date", "end_date", "description", "is_summer_internship"},
}

const recordColumns = `x.id, x.student_id, x.university_id, x.file_url, x.file_name, x.file_size, x.file_type,
	x.verification_status, x.verified_by, x.verification_date, x.verification_comments, x.created_at, x.updated_at`

const ownerColumns = `sp.id, u.id, u.uid7, u.email, sp.full_name, sp.roll_no, sp.department, sp.year, sp.university_id`

// New returns an empty submission of kind k.
func New(k Kind) Verifiable {
	switch k {
	case KindCertificate:
		return &Certificate{}
	case KindReport:
		return &Report{}
	default:
		return &Internship{}
	}
}

func fields(v Verifiable) []any {
	switch s := v.(type) {
	case *Certificate:
		return []any{&s.Title, &s.Issuer, &s.IssueDate, &s.ExpiryDate, &s.Description}
	case *Report:
		return []any{&s.Title, &s.ReportType, &s.Description, &s.SubmissionDate}
	case *Internship:
		return []any{&s.Company, &s.Role, &s.StartDate, &s.EndDate, &s.Description, &s.IsSummerInternship}
	}
	return nil
}

func selectColumns(k Kind, withOwner bool) string {
	cols := recordColumns
	for _, c := range kindColumns[k] {
		cols += ", x." + c
	}
	if withOwner {
		cols += ", " + ownerColumns
	}
	return cols
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner, k Kind, withOwner bool) (Verifiable, error) {
	v := New(k)
	rec := v.Base()
	var (
		status     string
		verifiedBy sql.NullString
	)
	dest := []any{&rec.ID, &rec.StudentID, &rec.UniversityID, &rec.URL, &rec.Name, &rec.Size, &rec.Type,
		&status, &verifiedBy, &rec.VerificationDate, &rec.VerificationComments, &rec.CreatedAt, &rec.UpdatedAt}
	dest = append(dest, fields(v)...)
	if withOwner {
		rec.Student = &Owner{}
		o := rec.Student
		dest = append(dest, &o.ProfileID, &o.UserID, &o.UID7, &o.Email, &o.FullName, &o.RollNo, &o.Department, &o.Year, &o.UniversityID)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	if verifiedBy.Valid {
		rec.VerifiedBy = &verifiedBy.String
	}
	return v, nil
}

// Create inserts v as a pending submission, assigning its id and timestamps.
func (r *Repository) Create(ctx context.Context, v Verifiable) error {
	rec := v.Base()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.Status = StatusPending
	rec.CreatedAt, rec.UpdatedAt = now, now
	if rpt, ok := v.(*Report); ok && rpt.SubmissionDate.IsZero() {
		rpt.SubmissionDate = now
	}

	k := v.Kind()
	cols := []string{"id", "student_id", "university_id", "file_url", "file_name", "file_size", "file_type",
		"verification_status", "created_at", "updated_at"}
	cols = append(cols, kindColumns[k]...)
	args := []any{rec.ID, rec.StudentID, rec.UniversityID, rec.URL, rec.Name, rec.Size, rec.Type,
		string(rec.Status), rec.CreatedAt, rec.UpdatedAt}
	for _, f := range fields(v) {
		args = append(args, deref(f))
	}
	marks := make([]string, len(cols))
	for i := range marks {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	query := `INSERT INTO ` + table(k) + ` (` + strings.Join(cols, ", ") + `) VALUES (` + strings.Join(marks, ", ") + `)`
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", k, err)
	}
	return nil
}

func deref(p any) any {
	switch v := p.(type) {
	case *string:
		return *v
	case *bool:
		return *v
	case *time.Time:
		return *v
	case **time.Time:
		return *v
	}
	return p
}

// Pending returns the pending submissions of the given kinds for one
// university, with their owners populated. Order is unspecified.
func (r *Repository) Pending(ctx context.Context, universityID string, kinds []Kind) ([]Verifiable, error) {
	if _, err := uuid.Parse(universityID); err != nil {
		return []Verifiable{}, nil
	}
	res := []Verifiable{}
	for _, k := range kinds {
		rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns(k, true)+`
			FROM `+table(k)+` x
			JOIN student_profiles sp ON sp.id = x.student_id
			JOIN users u ON u.id = sp.user_id
			WHERE x.university_id = $1 AND x.verification_status = 'pending'`, universityID)
		if err != nil {
			return nil, fmt.Errorf("pending %s: %w", k, err)
		}
		for rows.Next() {
			v, err := scan(rows, k, true)
			if err != nil {
				rows.Close()
				return nil, err
			}
			res = append(res, v)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Review locks one submission, hands it to decide and, when decide succeeds,
// persists the new status together with the returned audit entry. Both
// writes commit or neither does.
func (r *Repository) Review(ctx context.Context, k Kind, id string, decide func(Verifiable) (audit.Entry, error)) (Verifiable, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.ErrItemNotFound
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+selectColumns(k, true)+`
		FROM `+table(k)+` x
		JOIN student_profiles sp ON sp.id = x.student_id
		JOIN users u ON u.id = sp.user_id
		WHERE x.id = $1
		FOR UPDATE OF x`, id)
	v, err := scan(row, k, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}

	entry, err := decide(v)
	if err != nil {
		return nil, err
	}

	rec := v.Base()
	_, err = tx.ExecContext(ctx, `UPDATE `+table(k)+`
		SET verification_status = $2, verified_by = $3, verification_date = $4,
		    verification_comments = $5, updated_at = $6
		WHERE id = $1`,
		rec.ID, string(rec.Status), nullUUID(rec.VerifiedBy), rec.VerificationDate, rec.VerificationComments, rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update %s status: %w", k, err)
	}
	if _, err := audit.Write(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return v, nil
}

func nullUUID(s *string) any {
	if s == nil {
		return nil
	}
	if _, err := uuid.Parse(*s); err != nil {
		return nil
	}
	return *s
}

// Stats tallies a student's submissions by kind and status.
func (r *Repository) Stats(ctx context.Context, studentID string) (Stats, error) {
	st := Stats{ByKind: map[Kind]Tally{}}
	for _, k := range Kinds {
		summer := "0"
		if k == KindInternship {
			summer = "COUNT(*) FILTER (WHERE is_summer_internship)"
		}
		var (
			t    Tally
			last sql.NullTime
		)
		err := r.db.QueryRowContext(ctx, `SELECT COUNT(*),
				COUNT(*) FILTER (WHERE verification_status = 'verified'),
				COUNT(*) FILTER (WHERE verification_status = 'pending'),
				COUNT(*) FILTER (WHERE verification_status = 'rejected'),
				`+summer+`, MAX(created_at)
			FROM `+table(k)+` WHERE student_id = $1`, studentID).
			Scan(&t.Total, &t.Verified, &t.Pending, &t.Rejected, &t.Summer, &last)
		if err != nil {
			return Stats{}, fmt.Errorf("stats %s: %w", k, err)
		}
		st.ByKind[k] = t
		if last.Valid && (st.LastActivity == nil || last.Time.After(*st.LastActivity)) {
			at := last.Time
			st.LastActivity = &at
		}
	}
	return st, nil
}

// ListByStudent returns all submissions of one kind for a student, newest
// first.
func (r *Repository) ListByStudent(ctx context.Context, k Kind, studentID string) ([]Verifiable, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns(k, false)+`
		FROM `+table(k)+` x WHERE x.student_id = $1
		ORDER BY x.created_at DESC, x.id DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []Verifiable{}
	for rows.Next() {
		v, err := scan(rows, k, false)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}
