package selftest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/services/tracking"
)

// memRepo журнал событий в памяти.
type memRepo struct {
	mu     sync.Mutex
	events []models.UsageEvent
	alerts []models.Alert
	failOn models.EventType
}

func (r *memRepo) InsertUsageEvent(_ context.Context, e models.UsageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.EventType == r.failOn {
		return errors.New("insert failed")
	}
	r.events = append(r.events, e)
	return nil
}

func (r *memRepo) ListUsageEvents(_ context.Context, userID string, isTest bool) ([]models.UsageEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.UsageEvent
	for _, e := range r.events {
		if e.UserID == userID && e.IsTest == isTest {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memRepo) DeleteTestUsageEvents(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	var n int64
	for _, e := range r.events {
		if e.UserID == userID && e.IsTest {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return n, nil
}

func (r *memRepo) InsertAdminAlert(_ context.Context, a models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newService(repo *memRepo) *Service {
	tr := tracking.New(repo, nil, nil, newNoopLogger())
	return New(tr, repo, repo, newNoopLogger())
}

func TestRunAll_Passes(t *testing.T) {
	repo := &memRepo{}
	repo.events = append(repo.events, models.UsageEvent{
		ID: "real", UserID: "admin-1", EventType: models.EventProjectCreated, ProjectID: "p-real", Count: 1,
	})
	s := newService(repo)
	admin := models.Session{UserID: "admin-1", Email: "admin@example.com", Role: models.RoleAdmin}

	results := s.RunAll(context.Background(), admin)
	require.Len(t, results, len(s.Scenarios()))
	for _, r := range results {
		assert.Equal(t, models.TestPass, r.Status, "%s: %s", r.ID, r.Details)
		assert.False(t, r.Timestamp.IsZero())
	}

	assert.Len(t, repo.alerts, 3)
	for _, a := range repo.alerts {
		assert.True(t, a.IsRead)
	}

	// Реальные события не затронуты, тестовые удалены.
	realEvents, _ := repo.ListUsageEvents(context.Background(), "admin-1", false)
	assert.Len(t, realEvents, 1)
	summary, err := tracking.New(repo, nil, nil, newNoopLogger()).GetTestUsageSummary(context.Background(), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.EmptyUsageSummary(), summary)
}

func TestRun_UnknownScenario(t *testing.T) {
	s := newService(&memRepo{})
	results := s.Run(context.Background(), models.Session{UserID: "admin-1"}, []string{"T99"})
	require.Len(t, results, 1)
	assert.Equal(t, models.TestFail, results[0].Status)
	assert.Equal(t, "Test T99 not found", results[0].Details)
}

func TestRun_TrackingFailureFailsScenario(t *testing.T) {
	repo := &memRepo{failOn: models.EventAIInsightGenerated}
	s := newService(repo)

	results := s.Run(context.Background(), models.Session{UserID: "admin-1"}, []string{"T4", "T5"})
	require.Len(t, results, 2)
	assert.Equal(t, models.TestFail, results[0].Status)
	assert.Contains(t, results[0].Details, "Error:")
	assert.Equal(t, models.TestPass, results[1].Status)
}

func TestDeleteTestUser_Idempotent(t *testing.T) {
	repo := &memRepo{}
	s := newService(repo)
	ctx := context.Background()
	tr := tracking.New(repo, nil, nil, newNoopLogger())

	for i := 0; i < 3; i++ {
		res := tr.TrackUsageEvent(ctx, "u1", models.EventSpeedTestRun, models.UsageContext{}, true)
		require.True(t, res.Tracked)
	}
	require.NoError(t, s.DeleteTestUser(ctx, "u1"))
	require.NoError(t, s.DeleteTestUser(ctx, "u1"))

	summary, err := tr.GetTestUsageSummary(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, summary.SpeedTestsToday)
	assert.Zero(t, summary.ProjectCount)
}
