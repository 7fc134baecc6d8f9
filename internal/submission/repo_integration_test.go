//go:build integration

package submission_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"campustrack/internal/analytics"
	"campustrack/internal/apperr"
	"campustrack/internal/audit"
	"campustrack/internal/identity"
	"campustrack/internal/paging"
	"campustrack/internal/store"
	"campustrack/internal/submission"
)

type pgEnv struct {
	db     *store.DB
	subs   *submission.Repository
	people *identity.Repository
	audit  *audit.Repository
	uni    identity.University
	prof   identity.StudentProfile
}

func setupPostgres(t *testing.T) pgEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("campustrack"),
		postgres.WithUsername("campustrack"),
		postgres.WithPassword("campustrack"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := store.NewDB(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))
	// schema is idempotent
	require.NoError(t, db.Migrate(ctx))

	people := identity.NewRepository(db.Client)
	uni, err := people.CreateUniversity(ctx, identity.University{Name: "Test University", Domain: "test.edu", IsActive: true})
	require.NoError(t, err)

	userID, profileID := uuid.NewString(), uuid.NewString()
	_, err = db.Client.ExecContext(ctx, `INSERT INTO users (id, uid7, email, role, university_id, profile_ref)
		VALUES ($1, '1000001', 'asha@test.edu', 'student', $2, $3)`, userID, uni.ID, profileID)
	require.NoError(t, err)
	_, err = db.Client.ExecContext(ctx, `INSERT INTO student_profiles (id, user_id, university_id, full_name, roll_no, department, year)
		VALUES ($1, $2, $3, 'Asha Rao', 'R-1', 'CSE', 3)`, profileID, userID, uni.ID)
	require.NoError(t, err)

	prof, err := people.StudentByUID7(ctx, "1000001")
	require.NoError(t, err)

	return pgEnv{
		db:     db,
		subs:   submission.NewRepository(db.Client),
		people: people,
		audit:  audit.NewRepository(db.Client),
		uni:    uni,
		prof:   prof,
	}
}

func (e pgEnv) certificate(t *testing.T, title string) *submission.Certificate {
	t.Helper()
	c := &submission.Certificate{Title: title, Issuer: "Coursera"}
	c.StudentID = e.prof.ID
	c.UniversityID = e.uni.ID
	c.Name = "c.pdf"
	c.Type = "application/pdf"
	require.NoError(t, e.subs.Create(context.Background(), c))
	return c
}

func approveEntry(reviewer string) func(submission.Verifiable) (audit.Entry, error) {
	return func(v submission.Verifiable) (audit.Entry, error) {
		rec := v.Base()
		if err := rec.Verify(reviewer, "ok", time.Now().UTC()); err != nil {
			return audit.Entry{}, err
		}
		return audit.Entry{
			Action:       audit.ActionApprove,
			PerformedBy:  reviewer,
			ResourceType: string(v.Kind()),
			ResourceID:   rec.ID,
			NewValues:    map[string]any{"verificationStatus": string(rec.Status)},
			UniversityID: rec.UniversityID,
		}, nil
	}
}

func TestPostgresReviewFlow(t *testing.T) {
	env := setupPostgres(t)
	ctx := context.Background()
	reviewer := uuid.NewString()

	c := env.certificate(t, "Go Basics")

	pending, err := env.subs.Pending(ctx, env.uni.ID, []submission.Kind{submission.KindCertificate})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].Base().Student)
	assert.Equal(t, "1000001", pending[0].Base().Student.UID7)

	v, err := env.subs.Review(ctx, submission.KindCertificate, c.ID, approveEntry(reviewer))
	require.NoError(t, err)
	assert.Equal(t, submission.StatusVerified, v.Base().Status)

	_, err = env.subs.Review(ctx, submission.KindCertificate, c.ID, approveEntry(reviewer))
	assert.ErrorIs(t, err, apperr.ErrAlreadyDecided)

	entries, total, err := env.audit.Query(ctx, audit.Filter{ResourceID: c.ID, Params: paging.Params{Page: 1, Limit: 10}})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionApprove, entries[0].Action)

	res, err := analytics.NewAggregator(env.subs, env.people, nil, nil).Recompute(ctx, env.prof.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.VerificationRatio)

	prof, err := env.people.StudentByUID7(ctx, "1000001")
	require.NoError(t, err)
	assert.Equal(t, 1, prof.ActivityCounts.Certificates)
	assert.Equal(t, 1.0, prof.Analytics.VerificationRatio)
}

func TestPostgresReviewRollsBackWhenAuditFails(t *testing.T) {
	env := setupPostgres(t)
	ctx := context.Background()
	c := env.certificate(t, "Rust")

	_, err := env.subs.Review(ctx, submission.KindCertificate, c.ID, func(v submission.Verifiable) (audit.Entry, error) {
		if err := v.Base().Verify(uuid.NewString(), "", time.Now().UTC()); err != nil {
			return audit.Entry{}, err
		}
		return audit.Entry{Action: "bogus"}, nil
	})
	require.Error(t, err)

	pending, err := env.subs.Pending(ctx, env.uni.ID, submission.Kinds)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, submission.StatusPending, pending[0].Base().Status)
}

func TestPostgresAuditIsAppendOnly(t *testing.T) {
	env := setupPostgres(t)
	ctx := context.Background()

	e, err := env.audit.Append(ctx, audit.Entry{Action: audit.ActionCreate, PerformedBy: "u1", ResourceType: "university", ResourceID: env.uni.ID})
	require.NoError(t, err)

	_, err = env.db.Client.ExecContext(ctx, `UPDATE audit_logs SET reason = 'x' WHERE id = $1`, e.ID)
	assert.Error(t, err)
	_, err = env.db.Client.ExecContext(ctx, `DELETE FROM audit_logs WHERE id = $1`, e.ID)
	assert.Error(t, err)
}

func TestPostgresUnknownItem(t *testing.T) {
	env := setupPostgres(t)
	_, err := env.subs.Review(context.Background(), submission.KindReport, uuid.NewString(), approveEntry(uuid.NewString()))
	assert.ErrorIs(t, err, apperr.ErrItemNotFound)

	_, err = env.people.CreateUniversity(context.Background(), identity.University{Name: "Dup", Domain: "TEST.edu"})
	assert.ErrorIs(t, err, apperr.ErrUniversityExists)
}
