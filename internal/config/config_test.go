package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ephyscli/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "membrane.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// setBareEnv exports the unprefixed names of config fields with values
// that would break the configuration if they were read.
func setBareEnv(t *testing.T) {
	t.Helper()
	for name, value := range map[string]string{
		"PATH":      "/usr/bin:/bin",
		"OUTPUT":    "file",
		"DRIVER":    "ftp",
		"LEVEL":     "trace",
		"FORMAT":    "xml",
		"DSN":       "postgres://elsewhere",
		"DIR":       "/var/empty",
		"PREFIX":    "../up",
		"SHEET":     "Other",
		"BUCKET":    "someone-elses",
		"REGION":    "mars-1",
		"DELIMITER": ";;",
	} {
		t.Setenv(name, value)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, -10.0, cfg.Pipeline.StepMV)
	assert.Equal(t, "exclude", cfg.Pipeline.Unclassified)
	assert.Equal(t, MarkersConfig{WildType: "W", Knockout: "K", Vehicle: "vehicle", Drug: "rhosin"}, cfg.Pipeline.Markers)
	assert.Equal(t, "fs", cfg.Output.Driver)
	assert.Equal(t, ",", cfg.Input.Delimiter)
	assert.Empty(t, cfg.Archive.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	setBareEnv(t)

	t.Run("defaults without file", func(t *testing.T) {
		t.Setenv("MEMBRANE_CONFIG", "")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file overlays defaults", func(t *testing.T) {
		path := writeConfig(t, `
input:
  path: cells.csv
  delimiter: ";"
pipeline:
  step_mv: -5
  unclassified: separate
  markers:
    drug: Y27632
output:
  workbook: true
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "cells.csv", cfg.Input.Path)
		assert.Equal(t, ";", cfg.Input.Delimiter)
		assert.Equal(t, -5.0, cfg.Pipeline.StepMV)
		assert.Equal(t, "separate", cfg.Pipeline.Unclassified)
		assert.Equal(t, "Y27632", cfg.Pipeline.Markers.Drug)
		assert.Equal(t, "vehicle", cfg.Pipeline.Markers.Vehicle)
		assert.True(t, cfg.Output.Workbook)
		assert.Equal(t, "_per_cell", cfg.Output.Suffixes.PerCell)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, "pipeline:\n  step_mv: -5\n")
		t.Setenv("MEMBRANE_PIPELINE_STEP_MV", "-20")
		t.Setenv("MEMBRANE_PIPELINE_UNCLASSIFIED", "fail")
		t.Setenv("MEMBRANE_LOGGING_LEVEL", "debug")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, -20.0, cfg.Pipeline.StepMV)
		assert.Equal(t, "fail", cfg.Pipeline.Unclassified)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("bare variables are ignored", func(t *testing.T) {
		path := writeConfig(t, "input:\n  path: cells.csv\n")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "cells.csv", cfg.Input.Path)
		assert.Equal(t, "console", cfg.Logging.Output)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.Equal(t, "fs", cfg.Output.Driver)
		assert.Empty(t, cfg.Output.Dir)
		assert.Empty(t, cfg.Output.Prefix)
		assert.Empty(t, cfg.Archive.DSN)
		assert.Empty(t, cfg.Input.Sheet)
		assert.Equal(t, ",", cfg.Input.Delimiter)
	})

	t.Run("nested keys use field names", func(t *testing.T) {
		t.Setenv("MEMBRANE_CONFIG", "")
		t.Setenv("MEMBRANE_INPUT_PATH", "from-env.csv")
		t.Setenv("MEMBRANE_OUTPUT_SUFFIXES_PER_CELL", "_cells")
		t.Setenv("MEMBRANE_PIPELINE_MARKERS_WILD_TYPE", "WT")
		t.Setenv("MEMBRANE_LOGGING_FILE_PATH", "run.log")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "from-env.csv", cfg.Input.Path)
		assert.Equal(t, "_cells", cfg.Output.Suffixes.PerCell)
		assert.Equal(t, "WT", cfg.Pipeline.Markers.WildType)
		assert.Equal(t, "run.log", cfg.Logging.FilePath)
	})

	t.Run("config path from environment", func(t *testing.T) {
		path := writeConfig(t, "archive:\n  driver: sqlite\n  dsn: runs.db\n")
		t.Setenv("MEMBRANE_CONFIG", path)

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.Archive.Driver)
		assert.Equal(t, "runs.db", cfg.Archive.DSN)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
	})

	t.Run("unknown key", func(t *testing.T) {
		path := writeConfig(t, "pipeline:\n  stepmv: -5\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
	})

	t.Run("bad environment value", func(t *testing.T) {
		t.Setenv("MEMBRANE_CONFIG", "")
		t.Setenv("MEMBRANE_PIPELINE_STEP_MV", "ten")
		_, err := Load("")
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown policy", func(c *Config) { c.Pipeline.Unclassified = "drop" }, true},
		{"unknown driver", func(c *Config) { c.Output.Driver = "ftp" }, true},
		{"s3 without bucket", func(c *Config) { c.Output.Driver = "s3" }, true},
		{"s3 with bucket", func(c *Config) {
			c.Output.Driver = "s3"
			c.Output.S3.Bucket = "results"
		}, false},
		{"s3 bad endpoint", func(c *Config) {
			c.Output.Driver = "s3"
			c.Output.S3.Bucket = "results"
			c.Output.S3.Endpoint = "not a url"
		}, true},
		{"archive without dsn", func(c *Config) { c.Archive.Driver = "sqlite" }, true},
		{"archive unknown driver", func(c *Config) {
			c.Archive.Driver = "mysql"
			c.Archive.DSN = "x"
		}, true},
		{"archive postgres", func(c *Config) {
			c.Archive.Driver = "postgres"
			c.Archive.DSN = "postgres://localhost/ephys"
		}, false},
		{"empty marker", func(c *Config) { c.Pipeline.Markers.Drug = "" }, true},
		{"same genotype markers", func(c *Config) { c.Pipeline.Markers.Knockout = "W" }, true},
		{"duplicate suffix", func(c *Config) { c.Output.Suffixes.PerMouse = "_per_cell" }, true},
		{"long delimiter", func(c *Config) { c.Input.Delimiter = ";;" }, true},
		{"escaped tab delimiter", func(c *Config) { c.Input.Delimiter = `\t` }, false},
		{"file logging without path", func(c *Config) { c.Logging.Output = "file" }, true},
		{"escaping prefix", func(c *Config) { c.Output.Prefix = "../up" }, true},
		{"zero step allowed", func(c *Config) { c.Pipeline.StepMV = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
