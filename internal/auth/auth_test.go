package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campustrack/internal/identity"
	"campustrack/internal/respond"
)

const (
	key    = "test-key"
	issuer = "campustrack"
)

var faculty = identity.Actor{
	UserID: "user-1", UID7: "2000001", Role: identity.RoleFaculty,
	UniversityID: "uni-1", ProfileRef: "fac-1",
}

func TestIssueParseRoundTrip(t *testing.T) {
	token, exp, err := Issue(faculty, issuer, key, time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 2*time.Second)

	claims, err := Parse(token, key, issuer)
	require.NoError(t, err)
	assert.Equal(t, faculty, claims.Actor())
}

func TestParseRejects(t *testing.T) {
	good, _, err := Issue(faculty, issuer, key, time.Minute)
	require.NoError(t, err)
	expired, _, err := Issue(faculty, issuer, key, -time.Minute)
	require.NoError(t, err)
	badRole := faculty
	badRole.Role = "dean"
	wrongRole, _, err := Issue(badRole, issuer, key, time.Minute)
	require.NoError(t, err)

	_, err = Parse(good, "other-key", issuer)
	assert.Error(t, err)
	_, err = Parse(good, key, "someone-else")
	assert.Error(t, err)
	_, err = Parse(expired, key, issuer)
	assert.Error(t, err)
	_, err = Parse(wrongRole, key, issuer)
	assert.Error(t, err)
}

func router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/faculty/:uid7/ping",
		Authenticate(key, issuer), RequireRole(identity.RoleFaculty), RequireSelf("uid7"),
		func(c *gin.Context) {
			actor, _ := ActorFrom(c)
			respond.OK(c, http.StatusOK, actor.ProfileRef)
		})
	return r
}

func call(t *testing.T, path, token string) (int, respond.Envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router().ServeHTTP(w, req)
	var env respond.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func TestMiddlewareChain(t *testing.T) {
	facultyToken, _, err := Issue(faculty, issuer, key, time.Minute)
	require.NoError(t, err)
	student := faculty
	student.Role = identity.RoleStudent
	studentToken, _, err := Issue(student, issuer, key, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
		code   string
	}{
		{"no token", "/api/faculty/2000001/ping", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"garbage token", "/api/faculty/2000001/ping", "abc", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong role", "/api/faculty/2000001/ping", studentToken, http.StatusForbidden, "FORBIDDEN"},
		{"other uid7", "/api/faculty/2000002/ping", facultyToken, http.StatusForbidden, "FORBIDDEN"},
		{"ok", "/api/faculty/2000001/ping", facultyToken, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := call(t, tt.path, tt.token)
			assert.Equal(t, tt.status, status)
			if tt.code == "" {
				assert.True(t, env.Success)
				assert.Equal(t, "fac-1", env.Data)
				assert.Nil(t, env.Error)
				return
			}
			assert.False(t, env.Success)
			assert.Nil(t, env.Data)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}
