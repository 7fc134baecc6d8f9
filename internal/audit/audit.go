// Package audit is the append-only record of mutating actions. Entries are
// inserted and queried; nothing in this package updates or deletes them,
// and the schema rejects both at the database level.
package audit

import (
	"context"
	"log/slog"
	"time"

	"campustrack/internal/logging"
	"campustrack/internal/paging"
)

type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionLogin    Action = "login"
	ActionLogout   Action = "logout"
	ActionRegister Action = "register"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionUpload   Action = "upload"
	ActionDownload Action = "download"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionLogin, ActionLogout,
		ActionRegister, ActionApprove, ActionReject, ActionUpload, ActionDownload:
		return true
	}
	return false
}

// Origin is the client information attached to an entry.
type Origin struct {
	IPAddress string
	UserAgent string
}

type Entry struct {
	ID            string         `json:"_id"`
	Action        Action         `json:"action"`
	PerformedBy   string         `json:"performedBy"`
	PerformerUID7 string         `json:"performerUid7,omitempty"`
	ResourceType  string         `json:"resourceType"`
	ResourceID    string         `json:"resourceId"`
	OldValues     map[string]any `json:"oldValues,omitempty"`
	NewValues     map[string]any `json:"newValues,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	IPAddress     string         `json:"ipAddress,omitempty"`
	UserAgent     string         `json:"userAgent,omitempty"`
	UniversityID  string         `json:"universityId,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// WithOrigin copies the client information onto e.
func (e Entry) WithOrigin(o Origin) Entry {
	e.IPAddress = o.IPAddress
	e.UserAgent = o.UserAgent
	return e
}

// Filter selects entries for Query. Zero fields are ignored.
type Filter struct {
	PerformedBy  string
	Action       Action
	ResourceType string
	ResourceID   string
	UniversityID string
	From         *time.Time
	To           *time.Time
	paging.Params
}

// Appender is the audit sink.
type Appender interface {
	Append(ctx context.Context, e Entry) (Entry, error)
}

// Recorder appends entries without failing the caller; errors are logged.
type Recorder struct {
	sink Appender
	log  *slog.Logger
}

func NewRecorder(sink Appender, log *slog.Logger) *Recorder {
	return &Recorder{sink: sink, log: logging.OrDefault(log)}
}

// Record appends e and logs any failure.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.sink == nil {
		return
	}
	if _, err := r.sink.Append(ctx, e); err != nil {
		r.log.ErrorContext(ctx, "audit append failed",
			"action", e.Action, "resource_type", e.ResourceType, "resource_id", e.ResourceID, "err", err)
	}
}
