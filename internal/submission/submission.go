// Package submission models certificates, reports and internships as a
// closed set of Verifiable kinds sharing one Record.
package submission

import (
	"encoding/json"
	"strings"
	"time"

	"campustrack/internal/apperr"
	"campustrack/internal/storage"
)

// Kind discriminates the submission types.
type Kind string

const (
	KindCertificate Kind = "certificate"
	KindReport      Kind = "report"
	KindInternship  Kind = "internship"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindCertificate, KindReport, KindInternship}

// ParseKind accepts the singular or plural spelling of a kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "certificate", "certificates":
		return KindCertificate, nil
	case "report", "reports":
		return KindReport, nil
	case "internship", "internships":
		return KindInternship, nil
	}
	return "", apperr.ErrInvalidItemType
}

// Status is the verification state of a submission.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// Decision is a faculty verdict on a pending submission.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// Status maps a decision onto the status it produces.
func (d Decision) Status() Status {
	if d == Approve {
		return StatusVerified
	}
	return StatusRejected
}

// Owner is the student a submission belongs to, as shown to reviewers.
type Owner struct {
	ProfileID    string `json:"_id"`
	UserID       string `json:"userId"`
	UID7         string `json:"uid7"`
	Email        string `json:"email"`
	FullName     string `json:"fullName"`
	RollNo       string `json:"rollNo"`
	Department   string `json:"department"`
	Year         int    `json:"year"`
	UniversityID string `json:"universityId"`
}

// Record holds the fields every kind shares.
type Record struct {
	ID           string `json:"_id"`
	StudentID    string `json:"studentId"`
	UniversityID string `json:"universityId"`
	storage.Object
	Status               Status     `json:"verificationStatus"`
	VerifiedBy           *string    `json:"verifiedBy,omitempty"`
	VerificationDate     *time.Time `json:"verificationDate,omitempty"`
	VerificationComments string     `json:"verificationComments,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	Student              *Owner     `json:"student,omitempty"`
}

// Decide applies a verdict. Only pending records can be decided.
func (r *Record) Decide(d Decision, reviewer, comments string, at time.Time) error {
	if r.Status != StatusPending {
		return apperr.ErrAlreadyDecided
	}
	r.Status = d.Status()
	r.VerifiedBy = &reviewer
	r.VerificationDate = &at
	r.VerificationComments = comments
	r.UpdatedAt = at
	return nil
}

// Verify approves the record.
func (r *Record) Verify(reviewer, comments string, at time.Time) error {
	return r.Decide(Approve, reviewer, comments, at)
}

// Reject rejects the record.
func (r *Record) Reject(reviewer, comments string, at time.Time) error {
	return r.Decide(Reject, reviewer, comments, at)
}

// Verifiable is implemented by *Certificate, *Report and *Internship.
type Verifiable interface {
	Kind() Kind
	Base() *Record
	Headline() string
}

type Certificate struct {
	Record
	Title       string     `json:"title"`
	Issuer      string     `json:"issuer"`
	IssueDate   *time.Time `json:"issueDate,omitempty"`
	ExpiryDate  *time.Time `json:"expiryDate,omitempty"`
	Description string     `json:"description,omitempty"`
}

func (c *Certificate) Kind() Kind       { return KindCertificate }
func (c *Certificate) Base() *Record    { return &c.Record }
func (c *Certificate) Headline() string { return c.Title }

func (c *Certificate) MarshalJSON() ([]byte, error) {
	type alias Certificate
	return json.Marshal(struct {
		Type Kind `json:"type"`
		*alias
	}{KindCertificate, (*alias)(c)})
}

type Report struct {
	Record
	Title          string    `json:"title"`
	ReportType     string    `json:"reportType"`
	Description    string    `json:"description,omitempty"`
	SubmissionDate time.Time `json:"submissionDate"`
}

func (r *Report) Kind() Kind       { return KindReport }
func (r *Report) Base() *Record    { return &r.Record }
func (r *Report) Headline() string { return r.Title }

func (r *Report) MarshalJSON() ([]byte, error) {
	type alias Report
	return json.Marshal(struct {
		Type Kind `json:"type"`
		*alias
	}{KindReport, (*alias)(r)})
}

type Internship struct {
	Record
	Company            string     `json:"company"`
	Role               string     `json:"role"`
	StartDate          *time.Time `json:"startDate,omitempty"`
	EndDate            *time.Time `json:"endDate,omitempty"`
	Description        string     `json:"description,omitempty"`
	IsSummerInternship bool       `json:"isSummerInternship"`
}

func (i *Internship) Kind() Kind    { return KindInternship }
func (i *Internship) Base() *Record { return &i.Record }

func (i *Internship) Headline() string {
	if i.Role == "" {
		return i.Company
	}
	return i.Role + " at " + i.Company
}

func (i *Internship) MarshalJSON() ([]byte, error) {
	type alias Internship
	return json.Marshal(struct {
		Type Kind `json:"type"`
		*alias
	}{KindInternship, (*alias)(i)})
}

// Tally counts one student's submissions of a kind by status.
type Tally struct {
	Total    int `json:"total"`
	Verified int `json:"verified"`
	Pending  int `json:"pending"`
	Rejected int `json:"rejected"`
	Summer   int `json:"-"`
}

// Stats are the per-kind tallies of one student and the time of their most
// recent submission.
type Stats struct {
	ByKind       map[Kind]Tally
	LastActivity *time.Time
}
