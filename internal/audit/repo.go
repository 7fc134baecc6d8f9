package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Execer is satisfied by *sql.DB and *sql.Tx so entries can be written
// inside a caller's transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Write inserts e through ex, assigning an id and timestamp when missing.
func Write(ctx context.Context, ex Execer, e Entry) (Entry, error) {
	if !e.Action.Valid() {
		return Entry{}, fmt.Errorf("audit: unknown action %q", e.Action)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	oldValues, err := marshalValues(e.OldValues)
	if err != nil {
		return Entry{}, err
	}
	newValues, err := marshalValues(e.NewValues)
	if err != nil {
		return Entry{}, err
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO audit_logs (id, action, performed_by, performer_uid7, resource_type, resource_id,
			old_values, new_values, reason, ip_address, user_agent, university_id, "timestamp")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, e.ID, string(e.Action), e.PerformedBy, e.PerformerUID7, e.ResourceType, e.ResourceID,
		oldValues, newValues, e.Reason, e.IPAddress, e.UserAgent, e.UniversityID, e.Timestamp)
	if err != nil {
		return Entry{}, fmt.Errorf("audit insert: %w", err)
	}
	return e, nil
}

func marshalValues(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("audit values: %w", err)
	}
	return string(b), nil
}

// Repository persists audit entries in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Append inserts one entry.
func (r *Repository) Append(ctx context.Context, e Entry) (Entry, error) {
	return Write(ctx, r.db, e)
}

// Query returns a page of entries, newest first, and the total matching f.
func (r *Repository) Query(ctx context.Context, f Filter) ([]Entry, int, error) {
	args := []any{}
	clauses := []string{}
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, clause+" $"+strconv.Itoa(len(args)))
	}
	if f.PerformedBy != "" {
		add("performed_by =", f.PerformedBy)
	}
	if f.Action != "" {
		add("action =", string(f.Action))
	}
	if f.ResourceType != "" {
		add("resource_type =", f.ResourceType)
	}
	if f.ResourceID != "" {
		add("resource_id =", f.ResourceID)
	}
	if f.UniversityID != "" {
		add("university_id =", f.UniversityID)
	}
	if f.From != nil {
		add(`"timestamp" >=`, *f.From)
	}
	if f.To != nil {
		add(`"timestamp" <=`, *f.To)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, action, performed_by, performer_uid7, resource_type, resource_id,
			old_values, new_values, reason, ip_address, user_agent, university_id, "timestamp"
		FROM audit_logs` + where +
		` ORDER BY "timestamp" DESC, id DESC LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, f.Limit, f.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	res := []Entry{}
	for rows.Next() {
		var (
			e              Entry
			action         string
			oldRaw, newRaw []byte
		)
		if err := rows.Scan(&e.ID, &action, &e.PerformedBy, &e.PerformerUID7, &e.ResourceType, &e.ResourceID,
			&oldRaw, &newRaw, &e.Reason, &e.IPAddress, &e.UserAgent, &e.UniversityID, &e.Timestamp); err != nil {
			return nil, 0, err
		}
		e.Action = Action(action)
		if len(oldRaw) > 0 {
			if err := json.Unmarshal(oldRaw, &e.OldValues); err != nil {
				return nil, 0, err
			}
		}
		if len(newRaw) > 0 {
			if err := json.Unmarshal(newRaw, &e.NewValues); err != nil {
				return nil, 0, err
			}
		}
		res = append(res, e)
	}
	return res, total, rows.Err()
}
