package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/magabrotheeeer/goflexconnect/internal/migrations"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции.
func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var storage *Storage
	for range 10 {
		storage, err = New(ctx, connStr)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err, "failed to create storage after retries")
	t.Cleanup(func() { _ = storage.Close() })

	root, err := filepath.Abs("../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, filepath.Join(root, "migrations")))
	require.NoError(t, storage.CheckDatabaseReady(ctx))

	return storage
}

// testDataFactory создаёт тестовые записи напрямую через Storage.
type testDataFactory struct {
	storage *Storage
}

func (f *testDataFactory) event(t *testing.T, userID string, eventType models.EventType, projectID, surveyID string, count int, isTest bool, at time.Time) models.UsageEvent {
	t.Helper()
	e := models.UsageEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventType: eventType,
		ProjectID: projectID,
		SurveyID:  surveyID,
		Count:     count,
		IsTest:    isTest,
		CreatedAt: at,
	}
	require.NoError(t, f.storage.InsertUsageEvent(context.Background(), e))
	return e
}
