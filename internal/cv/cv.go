// Package cv stores numbered CV versions per student, keeps exactly one of
// them active and scores the active one against a job description.
package cv

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"campustrack/internal/scoring"
	"campustrack/internal/storage"
)

// ErrVersionTaken is returned by Insert when (studentId, version) exists.
var ErrVersionTaken = errors.New("cv version already exists")

// ErrVersionNotFound is returned by Activate for an unknown version.
var ErrVersionNotFound = errors.New("cv version not found")

type Version struct {
	ID             string `json:"_id" bson:"_id"`
	StudentID      string `json:"studentId" bson:"studentId"`
	Version        int    `json:"version" bson:"version"`
	storage.Object `bson:",inline"`
	ParsedContent  string                `json:"-" bson:"parsedContent"`
	ParsedData     *scoring.ParsedResume `json:"parsedData,omitempty" bson:"parsedData,omitempty"`
	ATSScore       *float64              `json:"atsScore,omitempty" bson:"atsScore,omitempty"`
	ScoreBreakdown *scoring.Scores       `json:"scoreBreakdown,omitempty" bson:"scoreBreakdown,omitempty"`
	TopReasons     []string              `json:"topReasons,omitempty" bson:"topReasons,omitempty"`
	MissingSkills  []string              `json:"missingSkills,omitempty" bson:"missingSkills,omitempty"`
	IsActive       bool                  `json:"isActive" bson:"isActive"`
	CreatedAt      time.Time             `json:"createdAt" bson:"createdAt"`
}

// Summary is the listing view of a version.
type Summary struct {
	ID        string    `json:"_id"`
	Version   int       `json:"version"`
	FileName  string    `json:"fileName"`
	ATSScore  *float64  `json:"atsScore"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

func (v Version) Summary() Summary {
	return Summary{ID: v.ID, Version: v.Version, FileName: v.Name, ATSScore: v.ATSScore, IsActive: v.IsActive, CreatedAt: v.CreatedAt}
}

// Arena persists versions. Activate must leave at most one active version
// per student at every instant: siblings are cleared before the target is
// set.
type Arena interface {
	LatestVersion(ctx context.Context, studentID string) (int, error)
	Insert(ctx context.Context, v Version) error
	Activate(ctx context.Context, studentID string, version int) error
	// Active returns (nil, nil) when the student has no active version.
	Active(ctx context.Context, studentID string) (*Version, error)
	List(ctx context.Context, studentID string) ([]Version, error)
	SaveScore(ctx context.Context, id string, res scoring.Result) error
}

// MemoryArena is the in-process Arena used in dev and tests.
type MemoryArena struct {
	mu       sync.Mutex
	versions map[string][]*Version
}

func NewMemoryArena() *MemoryArena {
	return &MemoryArena{versions: map[string][]*Version{}}
}

func (a *MemoryArena) LatestVersion(_ context.Context, studentID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	latest := 0
	for _, v := range a.versions[studentID] {
		if v.Version > latest {
			latest = v.Version
		}
	}
	return latest, nil
}

func (a *MemoryArena) Insert(_ context.Context, v Version) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, existing := range a.versions[v.StudentID] {
		if existing.Version == v.Version {
			return ErrVersionTaken
		}
	}
	cp := v
	a.versions[v.StudentID] = append(a.versions[v.StudentID], &cp)
	return nil
}

func (a *MemoryArena) Activate(_ context.Context, studentID string, version int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var target *Version
	for _, v := range a.versions[studentID] {
		if v.Version == version {
			target = v
		}
	}
	if target == nil {
		return ErrVersionNotFound
	}
	for _, v := range a.versions[studentID] {
		v.IsActive = false
	}
	target.IsActive = true
	return nil
}

func (a *MemoryArena) Active(_ context.Context, studentID string) (*Version, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, v := range a.versions[studentID] {
		if v.IsActive {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (a *MemoryArena) List(_ context.Context, studentID string) ([]Version, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Version, 0, len(a.versions[studentID]))
	for _, v := range a.versions[studentID] {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (a *MemoryArena) SaveScore(_ context.Context, id string, res scoring.Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, versions := range a.versions {
		for _, v := range versions {
			if v.ID == id {
				applyScore(v, res)
				return nil
			}
		}
	}
	return ErrVersionNotFound
}

func applyScore(v *Version, res scoring.Result) {
	parsed, scores, pct := res.ParsedResume, res.Scores, res.FinalATSPercent
	v.ParsedData = &parsed
	v.ScoreBreakdown = &scores
	v.ATSScore = &pct
	v.TopReasons = res.TopReasons
	v.MissingSkills = res.Missing
}

// activeCount is used by tests to check exclusivity.
func (a *MemoryArena) activeCount(studentID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, v := range a.versions[studentID] {
		if v.IsActive {
			n++
		}
	}
	return n
}
