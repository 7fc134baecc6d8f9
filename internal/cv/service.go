package cv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"campustrack/internal/apperr"
	"campustrack/internal/audit"
	"campustrack/internal/identity"
	"campustrack/internal/logging"
	"campustrack/internal/scoring"
	"campustrack/internal/storage"
)

// MaxParsedBytes bounds the text kept from an uploaded CV.
const MaxParsedBytes = 10000

// Profiles supplies the student's current verification ratio.
type Profiles interface {
	StudentByID(ctx context.Context, id string) (identity.StudentProfile, error)
}

type Service struct {
	arena    Arena
	files    storage.Uploader
	profiles Profiles
	scorer   scoring.Scorer
	audit    *audit.Recorder
	log      *slog.Logger
	now      func() time.Time
}

func NewService(arena Arena, files storage.Uploader, profiles Profiles, scorer scoring.Scorer, rec *audit.Recorder, log *slog.Logger) *Service {
	return &Service{
		arena:    arena,
		files:    files,
		profiles: profiles,
		scorer:   scorer,
		audit:    rec,
		log:      logging.OrDefault(log),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ExtractText keeps the first MaxParsedBytes of data as valid UTF-8.
func ExtractText(data []byte) string {
	if len(data) > MaxParsedBytes {
		data = data[:MaxParsedBytes]
	}
	return strings.ToValidUTF8(string(data), "")
}

// Upload stores the file and makes it the student's new active version.
func (s *Service) Upload(ctx context.Context, actor identity.Actor, f storage.File, origin audit.Origin) (Version, error) {
	obj, err := s.files.Upload(ctx, "cv", f)
	if err != nil {
		return Version{}, fmt.Errorf("store cv: %w", err)
	}

	v := Version{
		ID:            uuid.NewString(),
		StudentID:     actor.ProfileRef,
		Object:        obj,
		ParsedContent: ExtractText(f.Data),
		CreatedAt:     s.now(),
	}
	// A concurrent upload may take the same number; retry with the next one.
	for attempt := 0; ; attempt++ {
		latest, err := s.arena.LatestVersion(ctx, v.StudentID)
		if err != nil {
			return Version{}, fmt.Errorf("latest cv version: %w", err)
		}
		v.Version = latest + 1
		err = s.arena.Insert(ctx, v)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrVersionTaken) || attempt >= 9 {
			return Version{}, fmt.Errorf("insert cv version: %w", err)
		}
	}
	if err := s.arena.Activate(ctx, v.StudentID, v.Version); err != nil {
		return Version{}, fmt.Errorf("activate cv version: %w", err)
	}
	v.IsActive = true

	s.audit.Record(ctx, audit.Entry{
		Action:        audit.ActionUpload,
		PerformedBy:   actor.UserID,
		PerformerUID7: actor.UID7,
		ResourceType:  "cv",
		ResourceID:    v.ID,
		NewValues:     map[string]any{"version": v.Version, "fileName": v.Name},
		UniversityID:  actor.UniversityID,
	}.WithOrigin(origin))
	s.log.InfoContext(ctx, "cv uploaded", "student_id", v.StudentID, "version", v.Version)
	return v, nil
}

// Versions lists the student's versions, newest first.
func (s *Service) Versions(ctx context.Context, actor identity.Actor) ([]Summary, error) {
	versions, err := s.arena.List(ctx, actor.ProfileRef)
	if err != nil {
		return nil, fmt.Errorf("list cv versions: %w", err)
	}
	out := make([]Summary, 0, len(versions))
	for _, v := range versions {
		out = append(out, v.Summary())
	}
	return out, nil
}

// ScoreResult is returned to the client after scoring.
type ScoreResult struct {
	CVVersionID     string         `json:"cvVersionId"`
	FinalATSPercent float64        `json:"finalATSPercent"`
	Scores          scoring.Scores `json:"scores"`
	TopReasons      []string       `json:"topReasons"`
	Missing         []string       `json:"missing"`
	Recommendations []string       `json:"recommendations"`
}

// Score rates the active version against job and stores the result on it.
func (s *Service) Score(ctx context.Context, actor identity.Actor, job scoring.JobDescription) (ScoreResult, error) {
	active, err := s.arena.Active(ctx, actor.ProfileRef)
	if err != nil {
		return ScoreResult{}, fmt.Errorf("active cv: %w", err)
	}
	if active == nil {
		return ScoreResult{}, apperr.ErrNoCV
	}

	profile, err := s.profiles.StudentByID(ctx, actor.ProfileRef)
	if err != nil {
		return ScoreResult{}, err
	}
	ratio := profile.Analytics.VerificationRatio

	res, err := s.scorer.Score(ctx, scoring.Input{CVText: active.ParsedContent, Job: job, VerificationRatio: &ratio})
	if err != nil {
		return ScoreResult{}, fmt.Errorf("score cv: %w", err)
	}
	if err := s.arena.SaveScore(ctx, active.ID, res); err != nil {
		return ScoreResult{}, fmt.Errorf("save cv score: %w", err)
	}
	s.log.InfoContext(ctx, "cv scored",
		"student_id", actor.ProfileRef, "version", active.Version, "scorer", res.Source, "ats", res.FinalATSPercent)

	return ScoreResult{
		CVVersionID:     active.ID,
		FinalATSPercent: res.FinalATSPercent,
		Scores:          res.Scores,
		TopReasons:      res.TopReasons,
		Missing:         res.Missing,
		Recommendations: res.Recommendations,
	}, nil
}
