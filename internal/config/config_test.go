package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"h1b_ingest/internal/config"
	"h1b_ingest/internal/models"

	"github.com/stretchr/testify/require"
)

const sample = `
db:
  driver: postgres
  host: db.internal
  port: 5432
  database: visa_tracker
  user: ingest
logic:
  delay_ms: 2000
  max_concurrent_workers: 3
sources:
  - id: myvisajobs
    kind: paginated_html
    location: https://www.myvisajobs.com/reports/h1b/
    target: h1b_visa_sponsorships
    max_pages: 20
    column_rename:
      "Rank": rank
  - id: h1bdata_top_companies
    kind: single_table_html
    location: https://h1bdata.info/topcompanies.php
    target: h1b_top_companies
    delay_ms: 0
`

func TestLoadConfig(t *testing.T) {
	t.Run("reads file and applies defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

		cfg, err := config.LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, "db.internal", cfg.DB.Host)
		require.Equal(t, "disable", cfg.DB.SSLMode)
		require.Equal(t, 30*time.Second, cfg.Timeout())
		require.Equal(t, 3, cfg.Logic.MaxConcurrentWorkers)
		require.False(t, cfg.History.Enabled())
		require.Len(t, cfg.Sources, 2)

		d := cfg.Descriptor(cfg.Sources[0])
		require.Equal(t, models.KindPaginatedHTML, d.Kind)
		require.Equal(t, 2*time.Second, d.RequestDelay)
		require.Equal(t, map[string]string{"Rank": "rank"}, d.ColumnRename)

		require.Zero(t, cfg.Descriptor(cfg.Sources[1]).RequestDelay)
	})

	t.Run("environment overrides credentials", func(t *testing.T) {
		t.Setenv("INGEST_DB_PASSWORD", "s3cret")
		t.Setenv("INGEST_DB_PORT", "6543")
		t.Setenv("INGEST_HISTORY_URI", "mongodb://localhost:27017")

		cfg, err := config.Parse([]byte(sample))
		require.NoError(t, err)
		require.Equal(t, "s3cret", cfg.DB.Password)
		require.Equal(t, 6543, cfg.DB.Port)
		require.True(t, cfg.History.Enabled())
		require.Equal(t, "ingest_runs", cfg.History.Collection)
	})

	t.Run("missing file is a configuration error", func(t *testing.T) {
		_, err := config.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorIs(t, err, models.ErrConfiguration)
	})
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"unknown driver":  "db: {driver: oracle}\nsources: [{id: a}]",
		"sqlite no path":  "db: {driver: sqlite}\nsources: [{id: a}]",
		"no sources":      "db: {driver: postgres}",
		"duplicate ids":   "sources: [{id: a}, {id: a}]",
		"missing id":      "sources: [{kind: flat_file}]",
		"unknown setting": "db: {driver: postgres, hots: x}\nsources: [{id: a}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Parse([]byte(doc))
			require.ErrorIs(t, err, models.ErrConfiguration)
		})
	}
}

func TestLoadConfig_Shipped(t *testing.T) {
	cfg, err := config.LoadConfig(filepath.Join("..", "..", "config.yaml"))
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 11)

	for _, s := range cfg.Sources {
		require.True(t, models.SourceKind(s.Kind).Valid(), s.ID)
		require.NotEmpty(t, s.Target, s.ID)
	}

	sponsors := cfg.Descriptor(cfg.Sources[0])
	require.Equal(t, 2*time.Second, sponsors.RequestDelay)
	require.Equal(t, "lca_count", sponsors.ColumnRename["Number of LCA"])

	jobs := cfg.Descriptor(cfg.Sources[2])
	require.Equal(t, time.Second, jobs.RequestDelay)
	require.Equal(t, "filings", jobs.ColumnRename["# of H-1B Filings"])
	require.Equal(t, []string{"latest_filings"}, jobs.DropColumns)
}
