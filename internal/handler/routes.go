package handler

import (
	"github.com/gin-gonic/gin"

	"campustrack/internal/auth"
	"campustrack/internal/identity"
)

// Register mounts the API under /api. authn must store the actor on the
// context (see auth.Authenticate).
func (h *Handler) Register(r gin.IRouter, authn gin.HandlerFunc) {
	api := r.Group("/api", authn)

	faculty := api.Group("/faculty/:uid7", auth.RequireRole(identity.RoleFaculty), auth.RequireSelf("uid7"))
	faculty.GET("/pending-approvals", h.PendingApprovals)
	faculty.POST("/approve/:itemId", h.Approve)
	faculty.POST("/reject/:itemId", h.Reject)
	faculty.GET("/students", h.ListStudents)
	faculty.GET("/student/:studentUid7/analytics", h.StudentAnalytics)

	students := api.Group("/students/:uid7", auth.RequireRole(identity.RoleStudent), auth.RequireSelf("uid7"))
	students.GET("/profile", h.Profile)
	students.POST("/upload/certificate", h.UploadCertificate)
	students.POST("/upload/report", h.UploadReport)
	students.POST("/upload/internship", h.UploadInternship)
	students.POST("/cv", h.UploadCV)
	students.GET("/cv/versions", h.CVVersions)
	students.POST("/cv/score", h.ScoreCV)

	admin := api.Group("/admin", auth.RequireRole(identity.RoleAdmin))
	admin.GET("/universities", h.ListUniversities)
	admin.POST("/universities", h.CreateUniversity)
	admin.GET("/audit-logs", h.AuditLogs)
}
