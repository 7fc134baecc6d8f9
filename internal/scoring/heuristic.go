package scoring

import (
	"context"
	"strings"
)

// Heuristic scores by keyword presence. It never fails.
type Heuristic struct{}

func (Heuristic) Name() string { return "heuristic" }

func (Heuristic) Score(_ context.Context, in Input) (Result, error) {
	return HeuristicScore(in), nil
}

func pick(cond bool, yes, no float64) float64 {
	if cond {
		return yes
	}
	return no
}

// HeuristicScore is the pure scoring function behind Heuristic.
func HeuristicScore(in Input) Result {
	text := strings.ToLower(in.CVText)

	matched := []string{}
	for _, skill := range in.Job.RequiredSkills {
		if skill != "" && strings.Contains(text, strings.ToLower(skill)) {
			matched = append(matched, skill)
		}
	}
	required := len(in.Job.RequiredSkills)
	if required < 1 {
		required = 1
	}

	verification := 0.5
	if in.VerificationRatio != nil {
		verification = *in.VerificationRatio
	}

	scores := Scores{
		SkillMatch:    float64(len(matched)) / float64(required),
		Experience:    pick(strings.Contains(text, "year"), 0.7, 0.3),
		Education:     pick(strings.Contains(text, "bachelor") || strings.Contains(text, "master"), 1.0, 0.5),
		Activity:      pick(strings.Contains(text, "project"), 0.6, 0.3),
		Certification: pick(strings.Contains(text, "certified") || strings.Contains(text, "certificate"), 0.5, 0.2),
		Verification:  verification,
	}

	return Result{
		ParsedResume: ParsedResume{
			Name:           "Unknown",
			Email:          "Unknown",
			Phone:          "Unknown",
			Education:      []any{},
			Experience:     []any{},
			Projects:       []any{},
			Skills:         matched,
			Certifications: []any{},
		},
		Scores:          scores,
		FinalATSPercent: Percent(scores),
		TopReasons:      []string{"Basic keyword analysis performed"},
		Missing:         missingSkills(in.Job.RequiredSkills, matched),
		Recommendations: []string{"Add more detailed experience information"},
		Source:          "heuristic",
	}
}

func missingSkills(required, matched []string) []string {
	have := make(map[string]bool, len(matched))
	for _, m := range matched {
		have[m] = true
	}
	out := []string{}
	for _, r := range required {
		if r != "" && !have[r] {
			out = append(out, "Does not mention "+r)
		}
	}
	return out
}
