package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"h1b_ingest/internal/config"
	"h1b_ingest/internal/models"

	"github.com/jonboulle/clockwork"
)

type StoreConfig struct {
	Logger *slog.Logger
	DB     *sql.DB
	Driver string
	Clock  clockwork.Clock
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	if _, err := lookupDialect(cfg.Driver); err != nil {
		return err
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Store writes normalized records into relational target tables.
type Store struct {
	log     *slog.Logger
	cfg     StoreConfig
	dialect dialect

	mu      sync.Mutex
	ensured map[string]bool
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	d, _ := lookupDialect(cfg.Driver)
	return &Store{
		log:     cfg.Logger,
		cfg:     cfg,
		dialect: d,
		ensured: make(map[string]bool),
	}, nil
}

// Open connects to the database described by cfg and pings it.
func Open(ctx context.Context, cfg config.DBConfig, log *slog.Logger) (*Store, error) {
	d, err := lookupDialect(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}

	sqlDB, err := sql.Open(d.driverName, dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", models.ErrPersistence, cfg.Driver, err)
	}
	if d.name == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("%w: can't ping %s: %v", models.ErrPersistence, cfg.Driver, err)
	}

	log.Info("connected to store", "driver", cfg.Driver, "database", cfg.Database, "path", cfg.Path)
	return NewStore(StoreConfig{Logger: log, DB: sqlDB, Driver: cfg.Driver})
}

func (s *Store) Close() error {
	return s.cfg.DB.Close()
}

// EnsureTable creates t if it does not exist yet. It runs the DDL at most
// once per table for the life of the Store.
func (s *Store) EnsureTable(ctx context.Context, t TargetTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[t.Name] {
		return nil
	}
	if _, err := s.cfg.DB.ExecContext(ctx, s.dialect.createTable(t)); err != nil {
		return fmt.Errorf("%w: create table %s: %v", models.ErrPersistence, t.Name, err)
	}
	s.ensured[t.Name] = true
	s.log.Debug("table ensured", "table", t.Name)
	return nil
}

// Write upserts records into t in one transaction. Records missing a key
// value are counted as rejected. On any store error the whole batch is
// rolled back and an error wrapping models.ErrPersistence is returned.
func (s *Store) Write(ctx context.Context, t TargetTable, records []models.NormalizedRecord) (models.WriteCounts, error) {
	var counts models.WriteCounts
	if len(records) == 0 {
		return counts, nil
	}
	if err := s.EnsureTable(ctx, t); err != nil {
		return counts, err
	}

	tx, err := s.cfg.DB.BeginTx(ctx, nil)
	if err != nil {
		return counts, fmt.Errorf("%w: begin: %v", models.ErrPersistence, err)
	}
	defer tx.Rollback()

	existsStmt, err := tx.PrepareContext(ctx, s.dialect.exists(t))
	if err != nil {
		return counts, fmt.Errorf("%w: prepare lookup on %s: %v", models.ErrPersistence, t.Name, err)
	}
	defer existsStmt.Close()

	upsertStmt, err := tx.PrepareContext(ctx, s.dialect.upsert(t))
	if err != nil {
		return counts, fmt.Errorf("%w: prepare upsert on %s: %v", models.ErrPersistence, t.Name, err)
	}
	defer upsertStmt.Close()

	now := s.cfg.Clock.Now().UTC()
	cols := t.Columns()
	for i := range records {
		rec := &records[i]
		key, ok := keyArgs(rec, t)
		if !ok {
			counts.Rejected++
			continue
		}

		var one int
		existed := true
		if err := existsStmt.QueryRowContext(ctx, key...).Scan(&one); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return models.WriteCounts{}, fmt.Errorf("%w: lookup in %s: %v", models.ErrPersistence, t.Name, err)
			}
			existed = false
		}

		rec.LastUpdated = now
		args := make([]any, 0, len(cols)+1)
		for _, c := range cols {
			args = append(args, rec.Value(c))
		}
		args = append(args, now)
		if _, err := upsertStmt.ExecContext(ctx, args...); err != nil {
			return models.WriteCounts{}, fmt.Errorf("%w: upsert into %s: %v", models.ErrPersistence, t.Name, err)
		}

		if existed {
			counts.Updated++
		} else {
			counts.Inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return models.WriteCounts{}, fmt.Errorf("%w: commit %s: %v", models.ErrPersistence, t.Name, err)
	}
	return counts, nil
}

func keyArgs(rec *models.NormalizedRecord, t TargetTable) ([]any, bool) {
	args := make([]any, len(t.UniqueKey))
	for i, col := range t.UniqueKey {
		v := rec.Value(col)
		if v == nil {
			return nil, false
		}
		args[i] = v
	}
	return args, true
}
