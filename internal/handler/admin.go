package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campustrack/internal/apperr"
	"campustrack/internal/audit"
	"campustrack/internal/identity"
	"campustrack/internal/paging"
	"campustrack/internal/respond"
)

func (h *Handler) ListUniversities(c *gin.Context) {
	list, err := h.Identity.Universities(c.Request.Context())
	if err != nil {
		h.fail(c, err, "UNIVERSITIES_FETCH_ERROR", "Failed to fetch universities")
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"universities": list})
}

type universityRequest struct {
	Name    string `json:"name" validate:"required,min=2,max=200"`
	Country string `json:"country" validate:"max=100"`
	Domain  string `json:"domain" validate:"required,fqdn"`
}

func (h *Handler) CreateUniversity(c *gin.Context) {
	var req universityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Validation("Invalid request body"), "", "")
		return
	}
	if err := h.check(req); err != nil {
		h.fail(c, err, "", "")
		return
	}
	u, err := h.Identity.CreateUniversity(c.Request.Context(), actor(c),
		identity.University{Name: req.Name, Country: req.Country, Domain: req.Domain}, origin(c))
	if err != nil {
		h.fail(c, err, "UNIVERSITY_CREATE_ERROR", "Failed to create university")
		return
	}
	respond.OK(c, http.StatusCreated, u)
}

type auditQuery struct {
	PerformedBy  string     `form:"performedBy"`
	Action       string     `form:"action"`
	ResourceType string     `form:"resourceType"`
	ResourceID   string     `form:"resourceId"`
	UniversityID string     `form:"universityId"`
	From         *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To           *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Page         int        `form:"page" validate:"gte=0"`
	Limit        int        `form:"limit" validate:"gte=0"`
}

// AuditPage is one page of audit entries.
type AuditPage struct {
	Logs       []audit.Entry `json:"logs"`
	Pagination paging.Meta   `json:"pagination"`
}

func (h *Handler) AuditLogs(c *gin.Context) {
	var q auditQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, apperr.Validation("Invalid query parameters"), "", "")
		return
	}
	if err := h.check(q); err != nil {
		h.fail(c, err, "", "")
		return
	}
	action := audit.Action(q.Action)
	if action != "" && !action.Valid() {
		h.fail(c, apperr.Validation("Unknown action "+q.Action), "", "")
		return
	}
	p := paging.Params{Page: q.Page, Limit: q.Limit}.Normalize(50, 200)
	entries, total, err := h.Audit.Query(c.Request.Context(), audit.Filter{
		PerformedBy:  q.PerformedBy,
		Action:       action,
		ResourceType: q.ResourceType,
		ResourceID:   q.ResourceID,
		UniversityID: q.UniversityID,
		From:         q.From,
		To:           q.To,
		Params:       p,
	})
	if err != nil {
		h.fail(c, err, "AUDIT_LOGS_ERROR", "Failed to fetch audit logs")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	respond.OK(c, http.StatusOK, AuditPage{Logs: entries, Pagination: paging.NewMeta(p, total)})
}
