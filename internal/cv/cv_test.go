package cv

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campustrack/internal/apperr"
	"campustrack/internal/audit"
	"campustrack/internal/identity"
	"campustrack/internal/memstore"
	"campustrack/internal/scoring"
	"campustrack/internal/storage"
)

type fixture struct {
	arena   *MemoryArena
	store   *memstore.Store
	service *Service
	actor   identity.Actor
}

func newFixture(t *testing.T, ratio float64) *fixture {
	t.Helper()
	store := memstore.New()
	student := store.AddStudent(identity.StudentProfile{
		UniversityID: "u1", FullName: "Asha Rao",
		User:      identity.StudentUser{UID7: "1000001"},
		Analytics: identity.Analytics{VerificationRatio: ratio},
	})
	arena := NewMemoryArena()
	return &fixture{
		arena: arena,
		store: store,
		service: NewService(arena, storage.NewLocal(t.TempDir(), "/uploads"), store, scoring.Heuristic{},
			audit.NewRecorder(store, nil), nil),
		actor: identity.Actor{
			UserID: student.User.ID, UID7: "1000001", Role: identity.RoleStudent,
			UniversityID: "u1", ProfileRef: student.ID,
		},
	}
}

func (f *fixture) upload(t *testing.T, text string) Version {
	t.Helper()
	v, err := f.service.Upload(context.Background(), f.actor,
		storage.File{Name: "cv.txt", Data: []byte(text)}, audit.Origin{IPAddress: "127.0.0.1"})
	require.NoError(t, err)
	return v
}

func TestUploadNumbersAndActivates(t *testing.T) {
	f := newFixture(t, 0)

	first := f.upload(t, "first cv")
	second := f.upload(t, "second cv")

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, 1, f.arena.activeCount(f.actor.ProfileRef))

	active, err := f.arena.Active(context.Background(), f.actor.ProfileRef)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)
	assert.Equal(t, "second cv", active.ParsedContent)

	versions, err := f.service.Versions(context.Background(), f.actor)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
	assert.True(t, versions[0].IsActive)
	assert.False(t, versions[1].IsActive)
	assert.Equal(t, "cv.txt", versions[1].FileName)

	entries := f.store.AuditEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionUpload, entries[0].Action)
	assert.Equal(t, "cv", entries[0].ResourceType)
	assert.Equal(t, "127.0.0.1", entries[0].IPAddress)
}

func TestConcurrentUploadsKeepOneActive(t *testing.T) {
	f := newFixture(t, 0)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Upload(context.Background(), f.actor, storage.File{Name: "cv.txt", Data: []byte("cv")}, audit.Origin{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	versions, err := f.arena.List(context.Background(), f.actor.ProfileRef)
	require.NoError(t, err)
	require.Len(t, versions, 5)
	seen := map[int]bool{}
	for _, v := range versions {
		seen[v.Version] = true
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 1, f.arena.activeCount(f.actor.ProfileRef))
}

func TestScoreWithoutCV(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.service.Score(context.Background(), f.actor, scoring.JobDescription{})
	assert.ErrorIs(t, err, apperr.ErrNoCV)
}

func TestScorePersistsOnActiveVersion(t *testing.T) {
	f := newFixture(t, 0.8)
	f.upload(t, "old resume")
	active := f.upload(t, "5 years experience, Bachelor of Science, led 2 projects, AWS Certified")

	res, err := f.service.Score(context.Background(), f.actor, scoring.JobDescription{RequiredSkills: []string{"aws", "python"}})
	require.NoError(t, err)
	assert.Equal(t, active.ID, res.CVVersionID)
	assert.Equal(t, 64.0, res.FinalATSPercent)
	assert.Equal(t, 0.8, res.Scores.Verification)

	versions, err := f.arena.List(context.Background(), f.actor.ProfileRef)
	require.NoError(t, err)
	require.NotNil(t, versions[0].ATSScore)
	assert.Equal(t, 64.0, *versions[0].ATSScore)
	assert.Equal(t, []string{"Does not mention python"}, versions[0].MissingSkills)
	assert.Equal(t, []string{"aws"}, versions[0].ParsedData.Skills)
	assert.Nil(t, versions[1].ATSScore)
}

func TestScoreUsesZeroRatio(t *testing.T) {
	f := newFixture(t, 0)
	f.upload(t, "hello")

	res, err := f.service.Score(context.Background(), f.actor, scoring.JobDescription{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Scores.Verification)
}

func TestExtractText(t *testing.T) {
	long := strings.Repeat("a", MaxParsedBytes+50)
	assert.Len(t, ExtractText([]byte(long)), MaxParsedBytes)

	// A multi-byte rune split at the boundary is dropped.
	cut := strings.Repeat("a", MaxParsedBytes-1) + "é"
	assert.Equal(t, strings.Repeat("a", MaxParsedBytes-1), ExtractText([]byte(cut)))

	assert.Equal(t, "ok", ExtractText([]byte{'o', 0xff, 'k'}))
}

func TestActivateUnknownVersion(t *testing.T) {
	a := NewMemoryArena()
	assert.ErrorIs(t, a.Activate(context.Background(), "s", 3), ErrVersionNotFound)
}
