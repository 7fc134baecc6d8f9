package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ratio(v float64) *float64 { return &v }

func TestWeightsSumToOne(t *testing.T) {
	var sum float64
	for _, w := range Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestHeuristicWorkedExample(t *testing.T) {
	res := HeuristicScore(Input{
		CVText:            "5 years experience, Bachelor of Science, led 2 projects, AWS Certified",
		Job:               JobDescription{RequiredSkills: []string{"aws", "python"}},
		VerificationRatio: ratio(0.8),
	})

	assert.Equal(t, Scores{
		SkillMatch: 0.5, Experience: 0.7, Education: 1.0,
		Activity: 0.6, Certification: 0.5, Verification: 0.8,
	}, res.Scores)
	assert.Equal(t, 64.0, res.FinalATSPercent)
	assert.Equal(t, []string{"aws"}, res.ParsedResume.Skills)
	assert.Equal(t, []string{"Does not mention python"}, res.Missing)
	require.NoError(t, Validate(res))
}

func TestHeuristicDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want Scores
	}{
		{
			name: "nothing matches",
			in:   Input{CVText: "hello"},
			want: Scores{SkillMatch: 0, Experience: 0.3, Education: 0.5, Activity: 0.3, Certification: 0.2, Verification: 0.5},
		},
		{
			name: "zero ratio is kept",
			in:   Input{CVText: "Master of Arts, certificate in design", VerificationRatio: ratio(0)},
			want: Scores{SkillMatch: 0, Experience: 0.3, Education: 1.0, Activity: 0.3, Certification: 0.5, Verification: 0},
		},
		{
			name: "skills match case-insensitively",
			in:   Input{CVText: "GO and PostgreSQL", Job: JobDescription{RequiredSkills: []string{"go", "postgresql"}}},
			want: Scores{SkillMatch: 1, Experience: 0.3, Education: 0.5, Activity: 0.3, Certification: 0.2, Verification: 0.5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := HeuristicScore(tt.in)
			assert.Equal(t, tt.want, res.Scores)
			assert.Equal(t, Round1(100*tt.want.Weighted()), res.FinalATSPercent)
		})
	}
}

func TestHeuristicIsDeterministic(t *testing.T) {
	in := Input{
		CVText:            "3 years of Python, several projects, certified Kubernetes administrator",
		Job:               JobDescription{RequiredSkills: []string{"python", "kubernetes", "rust"}},
		VerificationRatio: ratio(1.0 / 3.0),
	}
	first := HeuristicScore(in)
	for i := 0; i < 50; i++ {
		again := HeuristicScore(in)
		assert.Equal(t, first.Scores, again.Scores)
		assert.Equal(t, first.FinalATSPercent, again.FinalATSPercent)
	}
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 64.0, Round1(64.00000000000001))
	assert.Equal(t, 12.4, Round1(12.44))
	assert.Equal(t, 12.5, Round1(12.46))
	assert.Equal(t, 100.0, Round1(99.96))
	assert.Equal(t, 0.0, Round1(0))
}

func TestValidate(t *testing.T) {
	good := HeuristicScore(Input{CVText: "x"})
	require.NoError(t, Validate(good))

	bad := good
	bad.Scores.Education = 1.5
	assert.Error(t, Validate(bad))

	bad = good
	bad.FinalATSPercent = 101
	assert.Error(t, Validate(bad))

	bad = good
	bad.Missing = nil
	assert.Error(t, Validate(bad))
}

func verdict() map[string]any {
	return map[string]any{
		"parsedResume": map[string]any{"name": "Asha", "skills": []string{"go"}},
		"scores": map[string]any{
			"skillMatch": 1, "experience": 0.8, "education": 1, "activity": 0.6, "certification": 0.5, "verification": 0.9,
		},
		"finalATSPercent": 87.5,
		"topReasons":      []string{"Strong Go"},
		"missing":         []string{},
		"recommendations": []string{"Add metrics"},
	}
}

func fakeModel(t *testing.T, status int, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": text}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExternalParsesVerdict(t *testing.T) {
	raw, _ := json.Marshal(verdict())
	srv := fakeModel(t, http.StatusOK, "```json\n"+string(raw)+"\n```")

	res, err := NewExternal(srv.URL, "secret", "model-x", time.Second).Score(context.Background(), Input{CVText: "Go"})
	require.NoError(t, err)
	assert.Equal(t, 87.5, res.FinalATSPercent)
	assert.Equal(t, 0.9, res.Scores.Verification)
	assert.Equal(t, "Asha", res.ParsedResume.Name)
	assert.Equal(t, "external", res.Source)
}

func TestExternalMissingScoreIsError(t *testing.T) {
	v := verdict()
	delete(v["scores"].(map[string]any), "activity")
	raw, _ := json.Marshal(v)
	srv := fakeModel(t, http.StatusOK, string(raw))

	_, err := NewExternal(srv.URL, "secret", "m", time.Second).Score(context.Background(), Input{})
	assert.Error(t, err)
}

func TestFallbackCases(t *testing.T) {
	v := verdict()
	v["finalATSPercent"] = 140
	outOfRange, _ := json.Marshal(v)

	tests := []struct {
		name   string
		status int
		text   string
	}{
		{"server error", http.StatusInternalServerError, "boom"},
		{"not json", http.StatusOK, "I cannot help with that"},
		{"fails validation", http.StatusOK, string(outOfRange)},
	}
	in := Input{CVText: "5 years, bachelor", Job: JobDescription{RequiredSkills: []string{"go"}}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeModel(t, tt.status, tt.text)
			fb := Fallback{Primary: NewExternal(srv.URL, "secret", "m", time.Second), Secondary: Heuristic{}}

			res, err := fb.Score(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, "heuristic", res.Source)
			assert.Equal(t, HeuristicScore(in).FinalATSPercent, res.FinalATSPercent)
		})
	}
}

func TestFallbackOnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	fb := Fallback{Primary: NewExternal(srv.URL, "secret", "m", 50*time.Millisecond), Secondary: Heuristic{}}
	res, err := fb.Score(context.Background(), Input{CVText: "x"})
	require.NoError(t, err)
	assert.Equal(t, "heuristic", res.Source)
}

func TestSelect(t *testing.T) {
	assert.IsType(t, Heuristic{}, Select("heuristic", nil, nil))
	assert.IsType(t, Heuristic{}, Select("external", NewExternal("http://x", "k", "", 0), nil))
	assert.IsType(t, Fallback{}, Select("external", NewExternal("http://x", "k", "m", 0), nil))
}
