package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"campustrack/internal/apperr"
)

// Repository persists tenants and profiles in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const studentColumns = `
	sp.id, sp.university_id, sp.full_name, sp.roll_no, sp.department, sp.year, sp.linked_accounts,
	sp.certificates_count, sp.reports_count, sp.internships_count, sp.summer_internships_count, sp.total_activities,
	sp.verification_ratio, sp.gpa, sp.last_activity_date, sp.created_at, sp.updated_at,
	u.id, u.uid7, u.email, u.last_login`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (StudentProfile, error) {
	var (
		p      StudentProfile
		linked []byte
	)
	err := row.Scan(
		&p.ID, &p.UniversityID, &p.FullName, &p.RollNo, &p.Department, &p.Year, &linked,
		&p.ActivityCounts.Certificates, &p.ActivityCounts.Reports, &p.ActivityCounts.Internships,
		&p.ActivityCounts.SummerInternships, &p.ActivityCounts.TotalActivities,
		&p.Analytics.VerificationRatio, &p.Analytics.GPA, &p.Analytics.LastActivityDate, &p.CreatedAt, &p.UpdatedAt,
		&p.User.ID, &p.User.UID7, &p.User.Email, &p.User.LastLogin,
	)
	if err != nil {
		return StudentProfile{}, err
	}
	p.LinkedAccounts = map[string]string{}
	if len(linked) > 0 {
		if err := json.Unmarshal(linked, &p.LinkedAccounts); err != nil {
			return StudentProfile{}, fmt.Errorf("decode linked accounts: %w", err)
		}
	}
	return p, nil
}

// StudentByUID7 looks a student profile up by the owning user's uid7.
func (r *Repository) StudentByUID7(ctx context.Context, uid7 string) (StudentProfile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+`
		FROM student_profiles sp JOIN users u ON u.id = sp.user_id
		WHERE u.uid7 = $1`, uid7)
	p, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StudentProfile{}, apperr.ErrStudentNotFound
	}
	return p, err
}

// StudentByID returns a profile by its id.
func (r *Repository) StudentByID(ctx context.Context, id string) (StudentProfile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return StudentProfile{}, apperr.ErrProfileNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+`
		FROM student_profiles sp JOIN users u ON u.id = sp.user_id
		WHERE sp.id = $1`, id)
	p, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StudentProfile{}, apperr.ErrProfileNotFound
	}
	return p, err
}

// ListStudents returns one page of a tenant's students sorted by name, and
// the total number matching the filter.
func (r *Repository) ListStudents(ctx context.Context, q StudentQuery) ([]StudentProfile, int, error) {
	args := []any{q.UniversityID}
	clauses := []string{"sp.university_id = $1"}
	if q.Department != "" {
		args = append(args, q.Department)
		clauses = append(clauses, "sp.department = $"+strconv.Itoa(len(args)))
	}
	if q.Year > 0 {
		args = append(args, q.Year)
		clauses = append(clauses, "sp.year = $"+strconv.Itoa(len(args)))
	}
	if q.Search != "" {
		args = append(args, "%"+escapeLike(q.Search)+"%")
		n := strconv.Itoa(len(args))
		clauses = append(clauses, "(sp.full_name ILIKE $"+n+" OR sp.roll_no ILIKE $"+n+")")
	}
	where := " WHERE " + strings.Join(clauses, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM student_profiles sp`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + studentColumns + ` FROM student_profiles sp JOIN users u ON u.id = sp.user_id` + where +
		" ORDER BY sp.full_name ASC, sp.id ASC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, q.Limit, q.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	res := []StudentProfile{}
	for rows.Next() {
		p, err := scanStudent(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, p)
	}
	return res, total, rows.Err()
}

// UpdateAnalytics overwrites the derived counters and ratio of a profile.
func (r *Repository) UpdateAnalytics(ctx context.Context, profileID string, counts ActivityCounts, ratio float64, lastActivity *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE student_profiles
		SET certificates_count = $2, reports_count = $3, internships_count = $4,
		    summer_internships_count = $5, total_activities = $6,
		    verification_ratio = $7, last_activity_date = $8, updated_at = NOW()
		WHERE id = $1
	`, profileID, counts.Certificates, counts.Reports, counts.Internships,
		counts.SummerInternships, counts.TotalActivities, ratio, lastActivity)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.ErrProfileNotFound
	}
	return nil
}

// Universities lists tenants with their verified activity totals.
func (r *Repository) Universities(ctx context.Context) ([]University, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.country, u.domain, u.is_active, u.created_at,
		       (SELECT COUNT(*) FROM certificates c WHERE c.university_id = u.id AND c.verification_status = 'verified')
		     + (SELECT COUNT(*) FROM reports rp WHERE rp.university_id = u.id AND rp.verification_status = 'verified')
		     + (SELECT COUNT(*) FROM internships i WHERE i.university_id = u.id AND i.verification_status = 'verified')
		FROM universities u
		ORDER BY u.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []University{}
	for rows.Next() {
		var u University
		if err := rows.Scan(&u.ID, &u.Name, &u.Country, &u.Domain, &u.IsActive, &u.CreatedAt, &u.VerifiedActivities); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// CreateUniversity inserts a tenant. Domains are unique.
func (r *Repository) CreateUniversity(ctx context.Context, u University) (University, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Domain = strings.ToLower(u.Domain)
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO universities (id, name, country, domain, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, u.ID, u.Name, u.Country, u.Domain, u.IsActive).Scan(&u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return University{}, apperr.ErrUniversityExists
		}
		return University{}, err
	}
	return u, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
