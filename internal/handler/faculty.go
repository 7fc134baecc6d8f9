package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campustrack/internal/apperr"
	"campustrack/internal/identity"
	"campustrack/internal/paging"
	"campustrack/internal/respond"
)

type pendingQuery struct {
	ItemType string `form:"itemType"`
	Page     int    `form:"page" validate:"gte=0"`
	Limit    int    `form:"limit" validate:"gte=0"`
}

func (h *Handler) PendingApprovals(c *gin.Context) {
	var q pendingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, apperr.Validation("page and limit must be integers"), "", "")
		return
	}
	if err := h.check(q); err != nil {
		h.fail(c, err, "", "")
		return
	}
	page, err := h.Verification.ListPending(c.Request.Context(), actor(c), q.ItemType, paging.Params{Page: q.Page, Limit: q.Limit})
	if err != nil {
		h.fail(c, err, "PENDING_APPROVALS_ERROR", "Failed to fetch pending approvals")
		return
	}
	respond.OK(c, http.StatusOK, page)
}

type decisionRequest struct {
	Comments string `json:"comments" validate:"max=1000"`
	ItemType string `json:"itemType"`
}

func (h *Handler) Approve(c *gin.Context) {
	var req decisionRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err, "", "")
		return
	}
	if err := h.check(req); err != nil {
		h.fail(c, err, "", "")
		return
	}
	out, err := h.Verification.Approve(c.Request.Context(), actor(c), req.ItemType, c.Param("itemId"), req.Comments, origin(c))
	if err != nil {
		h.fail(c, err, "APPROVE_ITEM_ERROR", "Failed to approve item")
		return
	}
	respond.OK(c, http.StatusOK, out)
}

func (h *Handler) Reject(c *gin.Context) {
	var req decisionRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err, "", "")
		return
	}
	if err := h.check(req); err != nil {
		h.fail(c, err, "", "")
		return
	}
	out, err := h.Verification.Reject(c.Request.Context(), actor(c), req.ItemType, c.Param("itemId"), req.Comments, origin(c))
	if err != nil {
		h.fail(c, err, "REJECT_ITEM_ERROR", "Failed to reject item")
		return
	}
	respond.OK(c, http.StatusOK, out)
}

type studentsQuery struct {
	Department string `form:"department" validate:"max=100"`
	Year       int    `form:"year" validate:"gte=0,lte=6"`
	Search     string `form:"search" validate:"max=100"`
	Page       int    `form:"page" validate:"gte=0"`
	Limit      int    `form:"limit" validate:"gte=0"`
}

func (h *Handler) ListStudents(c *gin.Context) {
	var q studentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, apperr.Validation("year, page and limit must be integers"), "", "")
		return
	}
	if err := h.check(q); err != nil {
		h.fail(c, err, "", "")
		return
	}
	page, err := h.Identity.ListStudents(c.Request.Context(), actor(c), identity.StudentQuery{
		Department: q.Department,
		Year:       q.Year,
		Search:     q.Search,
		Params:     paging.Params{Page: q.Page, Limit: q.Limit},
	})
	if err != nil {
		h.fail(c, err, "STUDENTS_FETCH_ERROR", "Failed to fetch students")
		return
	}
	respond.OK(c, http.StatusOK, page)
}

func (h *Handler) StudentAnalytics(c *gin.Context) {
	uid7 := c.Param("studentUid7")
	if !identity.ValidUID7(uid7) {
		h.fail(c, apperr.Validation("studentUid7 must be 7 digits"), "", "")
		return
	}
	summary, err := h.Analytics.Summary(c.Request.Context(), actor(c), uid7)
	if err != nil {
		h.fail(c, err, "STUDENT_ANALYTICS_ERROR", "Failed to fetch student analytics")
		return
	}
	respond.OK(c, http.StatusOK, summary)
}
