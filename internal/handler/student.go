package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campustrack/internal/apperr"
	"campustrack/internal/intake"
	"campustrack/internal/respond"
	"campustrack/internal/scoring"
)

func (h *Handler) Profile(c *gin.Context) {
	p, err := h.Identity.Profile(c.Request.Context(), actor(c), c.Param("uid7"))
	if err != nil {
		h.fail(c, err, "PROFILE_FETCH_ERROR", "Failed to fetch profile")
		return
	}
	respond.OK(c, http.StatusOK, p)
}

func (h *Handler) UploadCertificate(c *gin.Context) {
	var d intake.CertificateDraft
	h.upload(c, &d, func() intake.Draft { return d })
}

func (h *Handler) UploadReport(c *gin.Context) {
	var d intake.ReportDraft
	h.upload(c, &d, func() intake.Draft { return d })
}

func (h *Handler) UploadInternship(c *gin.Context) {
	var d intake.InternshipDraft
	h.upload(c, &d, func() intake.Draft { return d })
}

// upload binds the multipart fields into form, validates them and hands the
// draft returned by draft to the intake service.
func (h *Handler) upload(c *gin.Context, form any, draft func() intake.Draft) {
	if err := c.ShouldBind(form); err != nil {
		h.fail(c, apperr.Validation("Invalid form fields"), "", "")
		return
	}
	if err := h.check(form); err != nil {
		h.fail(c, err, "", "")
		return
	}
	file, err := h.formFile(c)
	if err != nil {
		h.fail(c, err, "UPLOAD_ERROR", "Failed to read upload")
		return
	}
	v, err := h.Intake.Upload(c.Request.Context(), actor(c), draft(), file, origin(c))
	if err != nil {
		h.fail(c, err, "UPLOAD_ERROR", "Failed to upload "+string(draft().Kind()))
		return
	}
	respond.OK(c, http.StatusCreated, v)
}

func (h *Handler) UploadCV(c *gin.Context) {
	file, err := h.formFile(c)
	if err != nil {
		h.fail(c, err, "CV_UPLOAD_ERROR", "Failed to read upload")
		return
	}
	if file == nil {
		h.fail(c, apperr.ErrNoFile, "", "")
		return
	}
	v, err := h.CV.Upload(c.Request.Context(), actor(c), *file, origin(c))
	if err != nil {
		h.fail(c, err, "CV_UPLOAD_ERROR", "Failed to upload CV")
		return
	}
	respond.OK(c, http.StatusCreated, v.Summary())
}

func (h *Handler) CVVersions(c *gin.Context) {
	versions, err := h.CV.Versions(c.Request.Context(), actor(c))
	if err != nil {
		h.fail(c, err, "CV_VERSIONS_ERROR", "Failed to fetch CV versions")
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"versions": versions})
}

type scoreRequest struct {
	JobDescription scoring.JobDescription `json:"jobDescription"`
}

func (h *Handler) ScoreCV(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Validation("Invalid request body"), "", "")
		return
	}
	if err := h.check(req); err != nil {
		h.fail(c, err, "", "")
		return
	}
	if req.JobDescription.RequiredSkills == nil {
		req.JobDescription.RequiredSkills = []string{}
	}
	res, err := h.CV.Score(c.Request.Context(), actor(c), req.JobDescription)
	if err != nil {
		h.fail(c, err, "CV_SCORING_ERROR", "Failed to score CV")
		return
	}
	respond.OK(c, http.StatusOK, res)
}
