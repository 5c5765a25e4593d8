package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loykin/stepmigrate"
	"github.com/loykin/stepmigrate/internal/common"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stepmigrate.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigDoc_Load_NotRegularFile(t *testing.T) {
	d := t.TempDir()
	var c ConfigDoc
	if err := c.Load(d); err == nil {
		t.Fatalf("expected error for directory path (not a regular file)")
	}
}

func TestConfigDoc_Load(t *testing.T) {
	path := writeConfig(t, `
store:
  type: postgres
  postgres:
    host: db.internal
    user: sonar
    password: secret
    dbname: sonar
  table_prefix: qa
catalog:
  metrics_table: metrics
transaction:
  policy: atomic
logging:
  level: debug
  format: json
`)
	var doc ConfigDoc
	if err := doc.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Store.Type != "postgres" || doc.Store.Postgres.Host != "db.internal" || doc.Store.TablePrefix != "qa" {
		t.Errorf("store section = %+v", doc.Store)
	}
	policy, err := doc.TxPolicy()
	if err != nil || policy != stepmigrate.Atomic {
		t.Errorf("TxPolicy() = %v, %v", policy, err)
	}

	m, err := doc.Migrator()
	if err != nil {
		t.Fatalf("Migrator: %v", err)
	}
	if m.StoreConfig.Driver != stepmigrate.DriverPostgresql {
		t.Errorf("driver = %q", m.StoreConfig.Driver)
	}
	if m.StoreConfig.TableNames.SchemaMigrations != "qa_schema_migrations" || m.StoreConfig.TableNames.StepRuns != "qa_step_runs" {
		t.Errorf("table names = %+v", m.StoreConfig.TableNames)
	}
	if m.MetricsTable != "metrics" || m.Policy != stepmigrate.Atomic {
		t.Errorf("migrator = %+v", m)
	}
}

func TestLoadConfig_DefaultPathMayBeMissing(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer func() { _ = os.Chdir(wd) }()

	doc, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatalf("loadConfig(default): %v", err)
	}
	if doc.Store.Type != "" {
		t.Errorf("expected empty document, got %+v", doc)
	}

	if _, err := loadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected explicit missing config to fail")
	}
}

func TestSetupLogging(t *testing.T) {
	orig := common.GetLogger()
	defer common.SetDefaultLogger(orig)

	tests := []struct {
		name    string
		cfg     LoggingConfig
		want    common.LogLevel
		wantErr bool
	}{
		{"defaults", LoggingConfig{}, common.LogLevelInfo, false},
		{"json debug", LoggingConfig{Level: "debug", Format: "json"}, common.LogLevelDebug, false},
		{"bad level", LoggingConfig{Level: "loud"}, 0, true},
		{"bad format", LoggingConfig{Format: "xml"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := ConfigDoc{Logging: tt.cfg}
			err := doc.SetupLogging()
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetupLogging() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && common.GetLogger().Level() != tt.want {
				t.Errorf("level = %v, want %v", common.GetLogger().Level(), tt.want)
			}
		})
	}
}

func TestConfigDoc_InvalidPolicy(t *testing.T) {
	doc := ConfigDoc{Transaction: TransactionConfig{Policy: "eventually"}}
	if _, err := doc.Migrator(); err == nil {
		t.Fatal("expected invalid policy to be rejected")
	}
}
