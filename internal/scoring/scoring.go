// Package scoring rates a CV against a job description. The heuristic
// scorer is a pure keyword function; the external scorer asks a hosted
// language model and is always wrapped in Fallback.
package scoring

import (
	"context"
	"fmt"
	"math"
)

// Weights of the six sub-scores, in Scores field order. They sum to 1.
var Weights = [6]float64{0.40, 0.20, 0.15, 0.10, 0.10, 0.05}

// JobDescription is what the CV is scored against.
type JobDescription struct {
	JobTitle           string   `json:"jobTitle,omitempty" bson:"jobTitle,omitempty"`
	RequiredSkills     []string `json:"requiredSkills" bson:"requiredSkills" validate:"dive,required"`
	MinExperienceYears float64  `json:"minExperienceYears,omitempty" bson:"minExperienceYears,omitempty" validate:"gte=0"`
	Degree             string   `json:"degree,omitempty" bson:"degree,omitempty"`
}

// Input is one scoring request. A nil VerificationRatio means the student's
// ratio is unknown.
type Input struct {
	CVText            string
	Job               JobDescription
	VerificationRatio *float64
}

type Scores struct {
	SkillMatch    float64 `json:"skillMatch" bson:"skillMatch"`
	Experience    float64 `json:"experience" bson:"experience"`
	Education     float64 `json:"education" bson:"education"`
	Activity      float64 `json:"activity" bson:"activity"`
	Certification float64 `json:"certification" bson:"certification"`
	Verification  float64 `json:"verification" bson:"verification"`
}

func (s Scores) values() [6]float64 {
	return [6]float64{s.SkillMatch, s.Experience, s.Education, s.Activity, s.Certification, s.Verification}
}

// Weighted is the weighted sum of the sub-scores, in [0,1].
func (s Scores) Weighted() float64 {
	var sum float64
	for i, v := range s.values() {
		sum += Weights[i] * v
	}
	return sum
}

// ParsedResume is the structured view of the CV. The heuristic only fills
// Skills.
type ParsedResume struct {
	Name           string   `json:"name" bson:"name"`
	Email          string   `json:"email" bson:"email"`
	Phone          string   `json:"phone" bson:"phone"`
	Education      []any    `json:"education" bson:"education"`
	Experience     []any    `json:"experience" bson:"experience"`
	Projects       []any    `json:"projects" bson:"projects"`
	Skills         []string `json:"skills" bson:"skills"`
	Certifications []any    `json:"certifications" bson:"certifications"`
}

type Result struct {
	ParsedResume    ParsedResume `json:"parsedResume"`
	Scores          Scores       `json:"scores"`
	FinalATSPercent float64      `json:"finalATSPercent"`
	TopReasons      []string     `json:"topReasons"`
	Missing         []string     `json:"missing"`
	Recommendations []string     `json:"recommendations"`
	// Source names the scorer that produced the result.
	Source string `json:"-"`
}

// Scorer produces a Result for an Input.
type Scorer interface {
	Score(ctx context.Context, in Input) (Result, error)
	Name() string
}

// Round1 rounds half up to one decimal place.
func Round1(x float64) float64 {
	return math.Floor(x*10+0.5) / 10
}

// Percent is the final ATS percentage for s.
func Percent(s Scores) float64 {
	return Round1(100 * s.Weighted())
}

// Validate checks that r is usable: every sub-score within [0,1], the
// percentage within [0,100] and the lists present.
func Validate(r Result) error {
	names := [6]string{"skillMatch", "experience", "education", "activity", "certification", "verification"}
	for i, v := range r.Scores.values() {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("score %s out of range: %v", names[i], v)
		}
	}
	if math.IsNaN(r.FinalATSPercent) || r.FinalATSPercent < 0 || r.FinalATSPercent > 100 {
		return fmt.Errorf("finalATSPercent out of range: %v", r.FinalATSPercent)
	}
	if r.TopReasons == nil || r.Missing == nil || r.Recommendations == nil {
		return fmt.Errorf("topReasons, missing and recommendations are required")
	}
	return nil
}
