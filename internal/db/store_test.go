package db_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"h1b_ingest/internal/config"
	"h1b_ingest/internal/db"
	"h1b_ingest/internal/logger"
	"h1b_ingest/internal/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func newSQLiteStore(t *testing.T, clock clockwork.Clock) (*db.Store, *sql.DB) {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	store, err := db.NewStore(db.StoreConfig{Logger: logger.NewTest(), DB: sqlDB, Driver: "sqlite", Clock: clock})
	require.NoError(t, err)
	return store, sqlDB
}

func sponsorships(t *testing.T) db.TargetTable {
	t.Helper()
	table, err := db.LookupTable("h1b_visa_sponsorships")
	require.NoError(t, err)
	return table
}

func amazon() models.NormalizedRecord {
	return models.NormalizedRecord{
		Rank:      ptr(1),
		Employer:  ptr("Amazon.Com Services"),
		LCACount:  ptr(10969),
		AvgSalary: ptr(149812.0),
	}
}

type sponsorshipRow struct {
	Rank        int64
	Employer    string
	LCACount    int64
	AvgSalary   float64
	LastUpdated string
}

func readSponsorships(t *testing.T, sqlDB *sql.DB) []sponsorshipRow {
	t.Helper()
	rows, err := sqlDB.Query(`SELECT "rank", employer, lca_count, avg_salary, last_updated FROM h1b_visa_sponsorships ORDER BY "rank"`)
	require.NoError(t, err)
	defer rows.Close()
	var out []sponsorshipRow
	for rows.Next() {
		var r sponsorshipRow
		require.NoError(t, rows.Scan(&r.Rank, &r.Employer, &r.LCACount, &r.AvgSalary, &r.LastUpdated))
		out = append(out, r)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestStore_Write(t *testing.T) {
	t.Parallel()

	t.Run("creates the table and inserts", func(t *testing.T) {
		t.Parallel()
		store, sqlDB := newSQLiteStore(t, clockwork.NewFakeClock())

		counts, err := store.Write(t.Context(), sponsorships(t), []models.NormalizedRecord{amazon()})
		require.NoError(t, err)
		require.Equal(t, models.WriteCounts{Inserted: 1}, counts)

		rows := readSponsorships(t, sqlDB)
		require.Len(t, rows, 1)
		require.Equal(t, int64(1), rows[0].Rank)
		require.Equal(t, "Amazon.Com Services", rows[0].Employer)
		require.Equal(t, int64(10969), rows[0].LCACount)
		require.Equal(t, 149812.0, rows[0].AvgSalary)
	})

	t.Run("second identical write updates without new rows", func(t *testing.T) {
		t.Parallel()
		clock := clockwork.NewFakeClock()
		store, sqlDB := newSQLiteStore(t, clock)
		table := sponsorships(t)
		records := []models.NormalizedRecord{
			amazon(),
			{Rank: ptr(2), Employer: ptr("Google Llc"), LCACount: ptr(5000), AvgSalary: ptr(180000.0)},
		}

		counts, err := store.Write(t.Context(), table, records)
		require.NoError(t, err)
		require.Equal(t, models.WriteCounts{Inserted: 2}, counts)
		before := readSponsorships(t, sqlDB)

		clock.Advance(time.Hour)
		counts, err = store.Write(t.Context(), table, records)
		require.NoError(t, err)
		require.Equal(t, models.WriteCounts{Updated: 2}, counts)
		after := readSponsorships(t, sqlDB)

		require.Len(t, after, len(before))
		for i := range before {
			require.NotEqual(t, before[i].LastUpdated, after[i].LastUpdated)
			before[i].LastUpdated, after[i].LastUpdated = "", ""
		}
		require.Equal(t, before, after)
	})

	t.Run("conflict overwrites managed columns only", func(t *testing.T) {
		t.Parallel()
		store, sqlDB := newSQLiteStore(t, clockwork.NewFakeClock())
		table := sponsorships(t)

		_, err := store.Write(t.Context(), table, []models.NormalizedRecord{amazon()})
		require.NoError(t, err)

		changed := amazon()
		changed.Employer = ptr("Amazon Web Services")
		changed.LCACount = ptr(0)
		counts, err := store.Write(t.Context(), table, []models.NormalizedRecord{changed})
		require.NoError(t, err)
		require.Equal(t, models.WriteCounts{Updated: 1}, counts)

		rows := readSponsorships(t, sqlDB)
		require.Len(t, rows, 1)
		require.Equal(t, "Amazon Web Services", rows[0].Employer)
		require.Equal(t, int64(0), rows[0].LCACount)
	})

	t.Run("duplicate keys in one batch collapse to one row", func(t *testing.T) {
		t.Parallel()
		store, sqlDB := newSQLiteStore(t, clockwork.NewFakeClock())

		late := amazon()
		late.LCACount = ptr(11000)
		counts, err := store.Write(t.Context(), sponsorships(t), []models.NormalizedRecord{amazon(), late})
		require.NoError(t, err)
		require.Equal(t, models.WriteCounts{Inserted: 1, Updated: 1}, counts)

		rows := readSponsorships(t, sqlDB)
		require.Len(t, rows, 1)
		require.Equal(t, int64(11000), rows[0].LCACount)
	})

	t.Run("records without a key are rejected", func(t *testing.T) {
		t.Parallel()
		store, _ := newSQLiteStore(t, clockwork.NewFakeClock())

		counts, err := store.Write(t.Context(), sponsorships(t), []models.NormalizedRecord{
			{Employer: ptr("No Rank Inc")},
			amazon(),
		})
		require.NoError(t, err)
		require.Equal(t, models.WriteCounts{Inserted: 1, Rejected: 1}, counts)
	})

	t.Run("composite keys", func(t *testing.T) {
		t.Parallel()
		store, sqlDB := newSQLiteStore(t, clockwork.NewFakeClock())
		table, err := db.LookupTable("h1b_visa_data")
		require.NoError(t, err)

		approved := models.Approved
		rec := models.NormalizedRecord{
			FiscalYear: ptr(2020), Employer: ptr("Acme Inc"), State: ptr("CA"), City: ptr("San Jose"),
			ZipCode: ptr("95112"), ApprovalStatus: &approved,
		}
		other := rec
		other.FiscalYear = ptr(2021)

		counts, err := store.Write(t.Context(), table, []models.NormalizedRecord{rec, other, rec})
		require.NoError(t, err)
		require.Equal(t, models.WriteCounts{Inserted: 2, Updated: 1}, counts)

		var n int
		require.NoError(t, sqlDB.QueryRow(`SELECT COUNT(*) FROM h1b_visa_data`).Scan(&n))
		require.Equal(t, 2, n)
	})

	t.Run("store failure rolls back the batch", func(t *testing.T) {
		t.Parallel()
		store, sqlDB := newSQLiteStore(t, clockwork.NewFakeClock())
		table := sponsorships(t)
		require.NoError(t, store.EnsureTable(t.Context(), table))

		_, err := sqlDB.Exec(`CREATE TRIGGER reject_big BEFORE INSERT ON h1b_visa_sponsorships
			WHEN NEW.lca_count > 100000 BEGIN SELECT RAISE(ABORT, 'too big'); END`)
		require.NoError(t, err)

		bad := amazon()
		bad.Rank = ptr(2)
		bad.LCACount = ptr(200000)
		_, err = store.Write(t.Context(), table, []models.NormalizedRecord{amazon(), bad})
		require.ErrorIs(t, err, models.ErrPersistence)
		require.Empty(t, readSponsorships(t, sqlDB))
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		t.Parallel()
		store, _ := newSQLiteStore(t, clockwork.NewFakeClock())
		counts, err := store.Write(t.Context(), sponsorships(t), nil)
		require.NoError(t, err)
		require.Zero(t, counts)
	})
}

func TestLookupTable(t *testing.T) {
	t.Parallel()

	_, err := db.LookupTable("h1b_everything")
	require.ErrorIs(t, err, models.ErrConfiguration)

	for _, name := range db.TableNames() {
		table, err := db.LookupTable(name)
		require.NoError(t, err)
		require.NotEmpty(t, table.UniqueKey, name)
		require.NotEmpty(t, table.ManagedColumns, name)
	}
}

func TestNewStore_Validate(t *testing.T) {
	t.Parallel()

	_, err := db.NewStore(db.StoreConfig{Driver: "sqlite"})
	require.ErrorContains(t, err, "logger is required")

	_, err = db.NewStore(db.StoreConfig{Logger: logger.NewTest(), DB: &sql.DB{}, Driver: "oracle"})
	require.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	store, err := db.Open(ctx, config.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "x.db")}, logger.NewTest())
	require.NoError(t, err)
	defer store.Close()

	counts, err := store.Write(ctx, sponsorships(t), []models.NormalizedRecord{amazon()})
	require.NoError(t, err)
	require.Equal(t, 1, counts.Inserted)
}
