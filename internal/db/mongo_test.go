package db_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"h1b_ingest/internal/config"
	"h1b_ingest/internal/db"
	"h1b_ingest/internal/logger"
	"h1b_ingest/internal/models"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newMongo(t *testing.T) *db.MongoDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping mongo container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("mongo container unavailable: %v", err)
	}
	t.Cleanup(func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		container.Terminate(terminateCtx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)

	history, err := db.NewMongoDB(ctx, config.HistoryConfig{
		Connection: fmt.Sprintf("mongodb://%s:%s", host, port.Port()),
		Database:   "h1b_ingest_test",
		Collection: "ingest_runs",
	}, logger.NewTest())
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })
	return history
}

func TestMongoDB_RunHistory(t *testing.T) {
	history := newMongo(t)
	ctx := t.Context()

	last, err := history.LastRun(ctx, "uscis")
	require.NoError(t, err)
	require.Nil(t, last)

	started := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	older := &models.PassReport{
		RunID:     "run-1",
		StartedAt: started,
		Sources: []*models.SourceReport{
			{SourceID: "uscis", State: models.StateDone, Written: models.WriteCounts{Inserted: 10}},
		},
	}
	newer := &models.PassReport{
		RunID:     "run-2",
		StartedAt: started.Add(24 * time.Hour),
		Sources: []*models.SourceReport{
			{SourceID: "myvisajobs", State: models.StateDone},
			{SourceID: "uscis", State: models.StateFailed, ErrorKind: "SourceUnavailable", Written: models.WriteCounts{Updated: 3}},
		},
	}
	require.NoError(t, history.SaveRun(ctx, older))
	require.NoError(t, history.SaveRun(ctx, newer))

	last, err = history.LastRun(ctx, "uscis")
	require.NoError(t, err)
	require.Equal(t, models.StateFailed, last.State)
	require.Equal(t, 3, last.Written.Updated)

	// Saving the same run again replaces it.
	newer.Sources[1].State = models.StateDone
	require.NoError(t, history.SaveRun(ctx, newer))
	last, err = history.LastRun(ctx, "uscis")
	require.NoError(t, err)
	require.Equal(t, models.StateDone, last.State)
}
