package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const systemPrompt = "You are an assistant that extracts structured data from a resume/CV and scores it " +
	"against a job description. Output must be strict JSON. Do not include commentary."

// External calls a hosted messages API and parses its JSON verdict.
type External struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
}

// NewExternal creates a client with the given request timeout.
func NewExternal(baseURL, apiKey, model string, timeout time.Duration) *External {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &External{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *External) Name() string { return "external" }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildPrompt(in Input) (string, error) {
	job, err := json.Marshal(in.Job)
	if err != nil {
		return "", err
	}
	verification := "unknown"
	if in.VerificationRatio != nil {
		verification = fmt.Sprintf("%.3f", *in.VerificationRatio)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Resume text:\n\"\"\"%s\"\"\"\n\nJob description (JSON):\n%s\n\n", in.CVText, job)
	b.WriteString("TASKS:\n")
	b.WriteString("1) Parse the resume into name, email, phone, education[], experience[], projects[], skills[], certifications[].\n")
	b.WriteString("2) skillMatch = fraction of requiredSkills present in skills (0-1).\n")
	b.WriteString("3) experience = min(totalYears / minExperienceYears, 1.0).\n")
	b.WriteString("4) education: 1.0 if the degree satisfies the requirement, 0.5 if partial, 0 otherwise.\n")
	b.WriteString("5) activity: relevance of projects and internships to the job (0-1).\n")
	b.WriteString("6) certification: presence of relevant certifications (0-1).\n")
	fmt.Fprintf(&b, "7) verification: the verified share of the student's activities, %s (0-1).\n", verification)
	b.WriteString("8) finalATSPercent = 100 * (0.40*skillMatch + 0.20*experience + 0.15*education + 0.10*activity + 0.10*certification + 0.05*verification).\n")
	b.WriteString(`9) Output JSON: {"parsedResume":{...},"scores":{"skillMatch":0,"experience":0,"education":0,"activity":0,"certification":0,"verification":0},"finalATSPercent":0,"topReasons":[],"missing":[],"recommendations":[]}`)
	return b.String(), nil
}

// Score sends the CV and job to the model. Any transport, status or decoding
// problem is returned as an error.
func (c *External) Score(ctx context.Context, in Input) (Result, error) {
	if c.APIKey == "" || c.Model == "" {
		return Result{}, fmt.Errorf("scorer not configured")
	}
	prompt, err := buildPrompt(in)
	if err != nil {
		return Result{}, err
	}
	body, _ := json.Marshal(map[string]any{
		"model":       c.Model,
		"max_tokens":  2000,
		"temperature": 0.1,
		"system":      systemPrompt,
		"messages":    []message{{Role: "user", Content: prompt}},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("scorer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("scorer error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("failed to decode response: %w", err)
	}
	var text strings.Builder
	for _, part := range out.Content {
		if part.Type == "" || part.Type == "text" {
			text.WriteString(part.Text)
		}
	}
	res, err := parseVerdict(text.String())
	if err != nil {
		return Result{}, err
	}
	res.Source = c.Name()
	return res, nil
}

// parseVerdict extracts the JSON object from the model text. All six scores
// must be present.
func parseVerdict(text string) (Result, error) {
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Result{}, fmt.Errorf("scorer returned no JSON object")
	}
	var raw struct {
		ParsedResume ParsedResume `json:"parsedResume"`
		Scores       struct {
			SkillMatch    *float64 `json:"skillMatch"`
			Experience    *float64 `json:"experience"`
			Education     *float64 `json:"education"`
			Activity      *float64 `json:"activity"`
			Certification *float64 `json:"certification"`
			Verification  *float64 `json:"verification"`
		} `json:"scores"`
		FinalATSPercent *float64 `json:"finalATSPercent"`
		TopReasons      []string `json:"topReasons"`
		Missing         []string `json:"missing"`
		Recommendations []string `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return Result{}, fmt.Errorf("scorer JSON: %w", err)
	}
	s := raw.Scores
	for _, p := range []*float64{s.SkillMatch, s.Experience, s.Education, s.Activity, s.Certification, s.Verification, raw.FinalATSPercent} {
		if p == nil {
			return Result{}, fmt.Errorf("scorer JSON: missing score field")
		}
	}
	return Result{
		ParsedResume: raw.ParsedResume,
		Scores: Scores{
			SkillMatch:    *s.SkillMatch,
			Experience:    *s.Experience,
			Education:     *s.Education,
			Activity:      *s.Activity,
			Certification: *s.Certification,
			Verification:  *s.Verification,
		},
		FinalATSPercent: *raw.FinalATSPercent,
		TopReasons:      raw.TopReasons,
		Missing:         raw.Missing,
		Recommendations: raw.Recommendations,
	}, nil
}
