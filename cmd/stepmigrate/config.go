package main

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/stepmigrate"
	"github.com/loykin/stepmigrate/internal/common"
	"github.com/loykin/stepmigrate/internal/step"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "./stepmigrate.yaml"

type SQLiteStoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type StoreConfig struct {
	Type     string                     `mapstructure:"type" yaml:"type"`
	SQLite   SQLiteStoreConfig          `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres stepmigrate.PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	MySQL    stepmigrate.MySQLConfig    `mapstructure:"mysql" yaml:"mysql"`
	// Optional table name customization
	TablePrefix           string `mapstructure:"table_prefix" yaml:"table_prefix"`
	TableSchemaMigrations string `mapstructure:"table_schema_migrations" yaml:"table_schema_migrations"`
	TableStepRuns         string `mapstructure:"table_step_runs" yaml:"table_step_runs"`
}

type CatalogConfig struct {
	MetricsTable string `mapstructure:"metrics_table" yaml:"metrics_table"`
}

type TransactionConfig struct {
	Policy string `mapstructure:"policy" yaml:"policy"` // independent, atomic
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // error, warn, info, debug
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

type ConfigDoc struct {
	Store       StoreConfig       `mapstructure:"store" yaml:"store"`
	Catalog     CatalogConfig     `mapstructure:"catalog" yaml:"catalog"`
	Transaction TransactionConfig `mapstructure:"transaction" yaml:"transaction"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

func (c *ConfigDoc) Load(path string) error {
	clean := filepath.Clean(path)
	// Ensure path points to a regular file to avoid opening directories/special files
	if info, statErr := os.Stat(clean); statErr != nil || !info.Mode().IsRegular() {
		if statErr != nil {
			return statErr
		}
		return fmt.Errorf("not a regular file: %s", clean)
	}
	// #nosec G304 -- config path is provided intentionally by the user/CI; cleaned and validated above
	f, err := os.Open(clean)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	dec := yaml.NewDecoder(f)
	return dec.Decode(c)
}

// loadConfig reads path. A missing file at the default location yields an
// empty document so the tool works without any config.
func loadConfig(path string) (*ConfigDoc, error) {
	doc := &ConfigDoc{}
	if strings.TrimSpace(path) == "" {
		return doc, nil
	}
	err := doc.Load(path)
	if errors.Is(err, fs.ErrNotExist) && filepath.Clean(path) == filepath.Clean(defaultConfigPath) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return doc, nil
}

// SetupLogging configures the global logger based on config settings
func (c *ConfigDoc) SetupLogging() error {
	level, err := common.ParseLogLevel(c.Logging.Level)
	if err != nil {
		return err
	}

	var logger *stepmigrate.Logger
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "json":
		logger = stepmigrate.NewJSONLogger(level)
	case "text", "":
		logger = stepmigrate.NewLogger(level)
	default:
		return fmt.Errorf("invalid logging format: %s (valid: text, json)", c.Logging.Format)
	}
	stepmigrate.SetDefaultLogger(logger)

	logger.Debug("logging configured", "level", level.String(), "format", cmp.Or(format, "text"))
	return nil
}

// TxPolicy returns the configured transaction policy.
func (c *ConfigDoc) TxPolicy() (stepmigrate.TxPolicy, error) {
	return step.ParseTxPolicy(c.Transaction.Policy)
}

// Migrator builds the library migrator described by the document.
func (c *ConfigDoc) Migrator() (*stepmigrate.Migrator, error) {
	policy, err := c.TxPolicy()
	if err != nil {
		return nil, err
	}
	storeCfg, err := NewStoreFactory().CreateStoreConfig(c.Store)
	if err != nil {
		return nil, err
	}
	return &stepmigrate.Migrator{
		StoreConfig:  storeCfg,
		Policy:       policy,
		MetricsTable: strings.TrimSpace(c.Catalog.MetricsTable),
	}, nil
}
