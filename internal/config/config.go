package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"h1b_ingest/internal/models"

	"gopkg.in/yaml.v2"
)

type SourceConfig struct {
	ID             string            `yaml:"id"`
	Kind           string            `yaml:"kind"`
	Location       string            `yaml:"location"`
	Target         string            `yaml:"target"`
	ColumnRename   map[string]string `yaml:"column_rename"`
	DropColumns    []string          `yaml:"drop_columns"`
	MaxPages       int               `yaml:"max_pages"`
	PageParam      string            `yaml:"page_param"`
	TableSelector  string            `yaml:"table_selector"`
	RenderEndpoint string            `yaml:"render_endpoint"`
	DelayMS        *int              `yaml:"delay_ms"`
	Defaults       map[string]string `yaml:"defaults"`
	FilenameFields map[string]string `yaml:"filename_fields"`
}

type DBConfig struct {
	Driver       string `yaml:"driver"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"sslmode"`
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type HistoryConfig struct {
	Connection string `yaml:"connection"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

func (h HistoryConfig) Enabled() bool {
	return h.Connection != ""
}

type LogicConfig struct {
	DelayMS              int    `yaml:"delay_ms"`
	TimeoutSec           int    `yaml:"timeout_sec"`
	MaxRetries           int    `yaml:"max_retries"`
	MaxConcurrentWorkers int    `yaml:"max_concurrent_workers"`
	UserAgent            string `yaml:"user_agent"`
	RespectRobots        bool   `yaml:"respect_robots"`
	RunTimeoutSec        int    `yaml:"run_timeout_sec"`
}

type IngestConfig struct {
	DB      DBConfig       `yaml:"db"`
	History HistoryConfig  `yaml:"history"`
	Logic   LogicConfig    `yaml:"logic"`
	Sources []SourceConfig `yaml:"sources"`
}

func LoadConfig(path string) (*IngestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*IngestConfig, error) {
	var cfg IngestConfig
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets deployment secrets override the file.
func (c *IngestConfig) applyEnv() {
	envString("INGEST_DB_DRIVER", &c.DB.Driver)
	envString("INGEST_DB_HOST", &c.DB.Host)
	envInt("INGEST_DB_PORT", &c.DB.Port)
	envString("INGEST_DB_NAME", &c.DB.Database)
	envString("INGEST_DB_USER", &c.DB.User)
	envString("INGEST_DB_PASSWORD", &c.DB.Password)
	envString("INGEST_DB_SSLMODE", &c.DB.SSLMode)
	envString("INGEST_DB_PATH", &c.DB.Path)
	envString("INGEST_HISTORY_URI", &c.History.Connection)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate fills defaults and checks settings that affect the whole run.
// Problems local to one source are left to the pipeline, which reports
// them against that source.
func (c *IngestConfig) Validate() error {
	switch c.DB.Driver {
	case "":
		c.DB.Driver = "postgres"
	case "postgres", "sqlite", "mysql":
	default:
		return fmt.Errorf("%w: unknown db driver %q", models.ErrConfiguration, c.DB.Driver)
	}
	if c.DB.Driver == "sqlite" && c.DB.Path == "" {
		return fmt.Errorf("%w: db.path is required for sqlite", models.ErrConfiguration)
	}
	if c.DB.Driver != "sqlite" && c.DB.Host == "" {
		c.DB.Host = "localhost"
	}
	if c.DB.SSLMode == "" {
		c.DB.SSLMode = "disable"
	}

	if c.History.Enabled() {
		if c.History.Database == "" {
			c.History.Database = "h1b_ingest"
		}
		if c.History.Collection == "" {
			c.History.Collection = "ingest_runs"
		}
	}

	if c.Logic.TimeoutSec <= 0 {
		c.Logic.TimeoutSec = 30
	}
	if c.Logic.MaxConcurrentWorkers <= 0 {
		c.Logic.MaxConcurrentWorkers = 1
	}
	if c.Logic.MaxRetries < 0 {
		c.Logic.MaxRetries = 0
	}

	if len(c.Sources) == 0 {
		return fmt.Errorf("%w: no sources configured", models.ErrConfiguration)
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("%w: source #%d has no id", models.ErrConfiguration, i+1)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate source id %q", models.ErrConfiguration, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

func (c *IngestConfig) Timeout() time.Duration {
	return time.Duration(c.Logic.TimeoutSec) * time.Second
}

func (c *IngestConfig) RunTimeout() time.Duration {
	return time.Duration(c.Logic.RunTimeoutSec) * time.Second
}

// Descriptor converts a source entry into its immutable descriptor. The
// global delay applies unless the source sets its own.
func (c *IngestConfig) Descriptor(s SourceConfig) models.SourceDescriptor {
	delay := c.Logic.DelayMS
	if s.DelayMS != nil {
		delay = *s.DelayMS
	}
	return models.SourceDescriptor{
		ID:             s.ID,
		Kind:           models.SourceKind(s.Kind),
		Location:       s.Location,
		Target:         s.Target,
		ColumnRename:   s.ColumnRename,
		DropColumns:    s.DropColumns,
		MaxPages:       s.MaxPages,
		PageParam:      s.PageParam,
		TableSelector:  s.TableSelector,
		RenderEndpoint: s.RenderEndpoint,
		RequestDelay:   time.Duration(delay) * time.Millisecond,
		Defaults:       s.Defaults,
		FilenameFields: s.FilenameFields,
	}
}
