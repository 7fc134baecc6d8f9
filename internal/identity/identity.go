// Package identity holds users, tenants and profiles, and the Actor that
// every request carries.
package identity

import (
	"time"

	"campustrack/internal/paging"
)

// Role determines which profile table a user's profileRef points into.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated identity behind a request. It is trusted as
// supplied by the session provider.
type Actor struct {
	UserID       string
	UID7         string
	Role         Role
	UniversityID string
	ProfileRef   string
}

// ValidUID7 reports whether s is a 7-digit numeric id.
func ValidUID7(s string) bool {
	if len(s) != 7 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// University is a tenant.
type University struct {
	ID                 string    `json:"_id"`
	Name               string    `json:"name" validate:"required,min=2,max=200"`
	Country            string    `json:"country" validate:"max=100"`
	Domain             string    `json:"domain" validate:"required,fqdn"`
	IsActive           bool      `json:"isActive"`
	VerifiedActivities int       `json:"verifiedActivities"`
	CreatedAt          time.Time `json:"createdAt"`
}

// ActivityCounts are denormalized counters recomputed by the analytics
// aggregator. Internships excludes summer internships; TotalActivities
// covers all three submission kinds.
type ActivityCounts struct {
	Certificates      int `json:"certificates"`
	Reports           int `json:"reports"`
	Internships       int `json:"internships"`
	SummerInternships int `json:"summerInternships"`
	TotalActivities   int `json:"totalActivities"`
}

type Analytics struct {
	VerificationRatio float64    `json:"verificationRatio"`
	GPA               *float64   `json:"gpa,omitempty"`
	LastActivityDate  *time.Time `json:"lastActivityDate,omitempty"`
}

// StudentUser is the slice of the owning user shown alongside a profile.
type StudentUser struct {
	ID        string     `json:"_id"`
	UID7      string     `json:"uid7"`
	Email     string     `json:"email"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

type StudentProfile struct {
	ID             string            `json:"_id"`
	User           StudentUser       `json:"userId"`
	UniversityID   string            `json:"universityId"`
	FullName       string            `json:"fullName"`
	RollNo         string            `json:"rollNo"`
	Department     string            `json:"department"`
	Year           int               `json:"year"`
	LinkedAccounts map[string]string `json:"linkedAccounts"`
	ActivityCounts ActivityCounts    `json:"activityCounts"`
	Analytics      Analytics         `json:"analytics"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// StudentQuery filters the faculty student list.
type StudentQuery struct {
	UniversityID string
	Department   string
	Year         int
	Search       string
	paging.Params
}
