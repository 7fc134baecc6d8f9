package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campustrack/internal/analytics"
	"campustrack/internal/audit"
	"campustrack/internal/auth"
	"campustrack/internal/cv"
	"campustrack/internal/handler"
	"campustrack/internal/identity"
	"campustrack/internal/intake"
	"campustrack/internal/memstore"
	"campustrack/internal/notify"
	"campustrack/internal/queue"
	"campustrack/internal/scoring"
	"campustrack/internal/storage"
	"campustrack/internal/submission"
	"campustrack/internal/verification"
)

const (
	signingKey = "handler-test-key"
	issuer     = "campustrack"
	uni1       = "11111111-1111-1111-1111-111111111111"
	uni2       = "22222222-2222-2222-2222-222222222222"
)

type env struct {
	t       *testing.T
	store   *memstore.Store
	router  *gin.Engine
	student identity.Actor
	faculty identity.Actor
	admin   identity.Actor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memstore.New()
	q := queue.NewInMemory(64)
	files := storage.NewLocal(t.TempDir(), "/uploads")
	rec := audit.NewRecorder(store, nil)
	agg := analytics.NewAggregator(store, store, q, nil)

	h := handler.New(handler.Deps{
		Verification: verification.NewEngine(store, agg, notify.NewPublisher(q, nil), nil),
		Analytics:    agg,
		Identity:     identity.NewService(store, rec, nil),
		Intake:       intake.NewService(store, files, agg, rec, nil),
		CV:           cv.NewService(cv.NewMemoryArena(), files, store, scoring.Heuristic{}, rec, nil),
		Audit:        store,
	})
	r := gin.New()
	h.Register(r, auth.Authenticate(signingKey, issuer))

	p := store.AddStudent(identity.StudentProfile{
		UniversityID: uni1, FullName: "Asha Rao", RollNo: "CS-01", Department: "CS", Year: 3,
		User: identity.StudentUser{UID7: "1000001", Email: "asha@u1.edu"},
	})
	return &env{
		t:      t,
		store:  store,
		router: r,
		student: identity.Actor{
			UserID: p.User.ID, UID7: "1000001", Role: identity.RoleStudent, UniversityID: uni1, ProfileRef: p.ID,
		},
		faculty: identity.Actor{
			UserID: "f-user", UID7: "2000001", Role: identity.RoleFaculty, UniversityID: uni1,
			ProfileRef: "33333333-3333-3333-3333-333333333333",
		},
		admin: identity.Actor{UserID: "a-user", UID7: "9000001", Role: identity.RoleAdmin},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *env) do(as identity.Actor, method, path string, body io.Reader, contentType string) (int, envelope) {
	e.t.Helper()
	token, _, err := auth.Issue(as, issuer, signingKey, time.Minute)
	require.NoError(e.t, err)
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var out envelope
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func (e *env) json(as identity.Actor, method, path string, body any) (int, envelope) {
	e.t.Helper()
	var r io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		r = bytes.NewReader(raw)
	}
	return e.do(as, method, path, r, "application/json")
}

func (e *env) multipart(as identity.Actor, path string, fields map[string]string, file []byte) (int, envelope) {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(e.t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", "doc.pdf")
		require.NoError(e.t, err)
		_, err = fw.Write(file)
		require.NoError(e.t, err)
	}
	require.NoError(e.t, mw.Close())
	return e.do(as, http.MethodPost, path, &buf, mw.FormDataContentType())
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

var pdf = []byte("%PDF-1.4\n%handler test\n")

func seedReport(store *memstore.Store, universityID, studentID string) string {
	r := &submission.Report{
		Record: submission.Record{
			ID: uuid.NewString(), StudentID: studentID, UniversityID: universityID,
			Status: submission.StatusPending, CreatedAt: time.Now().UTC(),
		},
		Title: "Lab report", ReportType: "lab",
	}
	store.Put(r)
	return r.ID
}

func TestUploadReviewFlow(t *testing.T) {
	e := newEnv(t)

	status, res := e.multipart(e.student, "/api/students/1000001/upload/certificate",
		map[string]string{"title": "AWS SAA", "issuer": "AWS"}, pdf)
	require.Equal(t, http.StatusCreated, status, res.Error)
	created := decode[map[string]any](t, res.Data)
	itemID := created["_id"].(string)
	assert.Equal(t, "certificate", created["type"])
	assert.Equal(t, "pending", created["verificationStatus"])

	status, res = e.json(e.faculty, http.MethodGet, "/api/faculty/2000001/pending-approvals?itemType=certificates", nil)
	require.Equal(t, http.StatusOK, status)
	page := decode[struct {
		PendingItems []map[string]any `json:"pendingItems"`
		Pagination   map[string]int   `json:"pagination"`
	}](t, res.Data)
	require.Len(t, page.PendingItems, 1)
	assert.Equal(t, itemID, page.PendingItems[0]["_id"])
	assert.Equal(t, "Asha Rao", page.PendingItems[0]["student"].(map[string]any)["fullName"])
	assert.Equal(t, map[string]int{"page": 1, "limit": 20, "total": 1, "pages": 1}, page.Pagination)

	status, res = e.json(e.faculty, http.MethodPost, "/api/faculty/2000001/approve/"+itemID,
		map[string]string{"itemType": "certificate", "comments": "Looks valid"})
	require.Equal(t, http.StatusOK, status, res.Error)
	out := decode[map[string]any](t, res.Data)
	assert.Equal(t, itemID, out["itemId"])
	assert.Equal(t, "verified", out["verificationStatus"])
	assert.Equal(t, "2000001", out["verifiedBy"])
	assert.Equal(t, "Looks valid", out["verificationComments"])

	status, res = e.json(e.student, http.MethodGet, "/api/students/1000001/profile", nil)
	require.Equal(t, http.StatusOK, status)
	profile := decode[identity.StudentProfile](t, res.Data)
	assert.Equal(t, 1.0, profile.Analytics.VerificationRatio)
	assert.Equal(t, 1, profile.ActivityCounts.Certificates)

	status, res = e.json(e.faculty, http.MethodPost, "/api/faculty/2000001/reject/"+itemID,
		map[string]string{"itemType": "certificate"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ITEM_ALREADY_DECIDED", res.Error.Code)

	status, res = e.json(e.faculty, http.MethodGet, "/api/faculty/2000001/student/1000001/analytics", nil)
	require.Equal(t, http.StatusOK, status)
	summary := decode[map[string]map[string]any](t, res.Data)
	assert.EqualValues(t, 1, summary["certificates"]["verified"])
}

func TestApproveErrors(t *testing.T) {
	e := newEnv(t)
	other := e.store.AddStudent(identity.StudentProfile{UniversityID: uni2, FullName: "Other", User: identity.StudentUser{UID7: "1000002"}})
	foreignID := seedReport(e.store, uni2, other.ID)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"other faculty path", "/api/faculty/2000002/approve/x", map[string]string{"itemType": "report"}, http.StatusForbidden, "FORBIDDEN"},
		{"missing item type", "/api/faculty/2000001/approve/x", nil, http.StatusBadRequest, "INVALID_ITEM_TYPE"},
		{"bad item type", "/api/faculty/2000001/approve/x", map[string]string{"itemType": "essay"}, http.StatusBadRequest, "INVALID_ITEM_TYPE"},
		{"unknown item", "/api/faculty/2000001/approve/44444444-4444-4444-4444-444444444444", map[string]string{"itemType": "report"}, http.StatusNotFound, "ITEM_NOT_FOUND"},
		{"other university", "/api/faculty/2000001/approve/" + foreignID, map[string]string{"itemType": "reports"}, http.StatusForbidden, "UNAUTHORIZED_UNIVERSITY"},
		{"comments too long", "/api/faculty/2000001/approve/x", map[string]string{"itemType": "report", "comments": string(bytes.Repeat([]byte("a"), 1001))}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, res := e.json(e.faculty, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)
			assert.False(t, res.Success)
		})
	}

	status, res := e.json(e.student, http.MethodPost, "/api/faculty/1000001/approve/x", map[string]string{"itemType": "report"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", res.Error.Code)
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	e := newEnv(t)
	id := seedReport(e.store, uni1, e.student.ProfileRef)
	e.store.AuditErr = errors.New("disk full")

	status, res := e.json(e.faculty, http.MethodPost, "/api/faculty/2000001/approve/"+id, map[string]string{"itemType": "report"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "APPROVE_ITEM_ERROR", res.Error.Code)
	assert.NotContains(t, res.Error.Message, "disk full")
}

func TestUploadRequiresFile(t *testing.T) {
	e := newEnv(t)

	status, res := e.multipart(e.student, "/api/students/1000001/upload/report",
		map[string]string{"title": "Lab", "reportType": "lab"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "NO_FILE", res.Error.Code)

	status, res = e.multipart(e.student, "/api/students/1000001/upload/internship",
		map[string]string{"company": "Acme", "role": "Intern", "isSummerInternship": "true"}, nil)
	assert.Equal(t, http.StatusCreated, status)

	status, res = e.multipart(e.student, "/api/students/1000001/upload/certificate",
		map[string]string{"issuer": "AWS"}, pdf)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", res.Error.Code)
	assert.Contains(t, res.Error.Message, "title is required")
}

func TestCVFlow(t *testing.T) {
	e := newEnv(t)
	job := map[string]any{"jobDescription": map[string]any{"requiredSkills": []string{"aws", "python"}}}

	status, res := e.json(e.student, http.MethodPost, "/api/students/1000001/cv/score", job)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NO_CV", res.Error.Code)

	status, res = e.multipart(e.student, "/api/students/1000001/cv", nil,
		[]byte("5 years experience, Bachelor of Science, led 2 projects, AWS Certified"))
	require.Equal(t, http.StatusCreated, status, res.Error)

	status, res = e.json(e.student, http.MethodPost, "/api/students/1000001/cv/score", job)
	require.Equal(t, http.StatusOK, status, res.Error)
	score := decode[cv.ScoreResult](t, res.Data)
	assert.NotEmpty(t, score.CVVersionID)
	// No verified activities yet, so the verification sub-score is 0.
	assert.Equal(t, 0.0, score.Scores.Verification)
	assert.Equal(t, 60.0, score.FinalATSPercent)

	status, res = e.json(e.student, http.MethodGet, "/api/students/1000001/cv/versions", nil)
	require.Equal(t, http.StatusOK, status)
	versions := decode[struct {
		Versions []cv.Summary `json:"versions"`
	}](t, res.Data)
	require.Len(t, versions.Versions, 1)
	require.NotNil(t, versions.Versions[0].ATSScore)
	assert.Equal(t, 60.0, *versions.Versions[0].ATSScore)

	bad := map[string]any{"jobDescription": map[string]any{"requiredSkills": []string{""}, "minExperienceYears": -1}}
	status, res = e.json(e.student, http.MethodPost, "/api/students/1000001/cv/score", bad)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", res.Error.Code)
}

func TestAdminRoutes(t *testing.T) {
	e := newEnv(t)

	status, res := e.json(e.admin, http.MethodPost, "/api/admin/universities", map[string]string{"name": "Riverside", "domain": "not a domain"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", res.Error.Code)

	status, res = e.json(e.admin, http.MethodPost, "/api/admin/universities", map[string]string{"name": "Riverside", "domain": "riverside.edu"})
	require.Equal(t, http.StatusCreated, status, res.Error)

	status, res = e.json(e.admin, http.MethodPost, "/api/admin/universities", map[string]string{"name": "Riverside 2", "domain": "riverside.edu"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "UNIVERSITY_EXISTS", res.Error.Code)

	status, res = e.json(e.admin, http.MethodGet, "/api/admin/audit-logs?action=create", nil)
	require.Equal(t, http.StatusOK, status)
	page := decode[handler.AuditPage](t, res.Data)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, audit.ActionCreate, page.Logs[0].Action)
	assert.Equal(t, "a-user", page.Logs[0].PerformedBy)

	status, res = e.json(e.admin, http.MethodGet, "/api/admin/audit-logs?action=explode", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, res = e.json(e.faculty, http.MethodGet, "/api/admin/universities", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", res.Error.Code)
}

func TestFacultyStudentList(t *testing.T) {
	e := newEnv(t)
	e.store.AddStudent(identity.StudentProfile{UniversityID: uni2, FullName: "Elsewhere"})

	status, res := e.json(e.faculty, http.MethodGet, "/api/faculty/2000001/students?search=asha", nil)
	require.Equal(t, http.StatusOK, status)
	page := decode[identity.StudentPage](t, res.Data)
	require.Len(t, page.Students, 1)
	assert.Equal(t, "CS-01", page.Students[0].RollNo)

	status, res = e.json(e.faculty, http.MethodGet, "/api/faculty/2000001/students?year=nine", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", res.Error.Code)
}
