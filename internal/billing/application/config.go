package application

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTariffProcedure         = "billing_apply_tariff"
	DefaultTotalsProcedure         = "billing_apply_totals"
	DefaultClassificationProcedure = "billing_apply_classification"

	// DefaultLockNamespace is the first key of the period advisory lock.
	DefaultLockNamespace   int32 = 4217
	DefaultInsertBatchSize       = 500
)

// StageConfig selects how one external stage is invoked. Statement wins over
// Procedure when both are set.
type StageConfig struct {
	Procedure string `yaml:"procedure"`
	Statement string `yaml:"statement"`
}

// Config defines pipeline configuration.
type Config struct {
	Tariff          StageConfig `yaml:"tariff"`
	Totals          StageConfig `yaml:"totals"`
	Classification  StageConfig `yaml:"classification"`
	LockNamespace   int32       `yaml:"lock_namespace"`
	InsertBatchSize int         `yaml:"insert_batch_size"`
	UnitPlaceholder string      `yaml:"unit_placeholder"`
}

// LoadConfig loads config from the yaml file named by BILLING_PIPELINE_CONFIG,
// falling back to environment variables and defaults.
func LoadConfig() (Config, error) {
	cfg := Config{}

	if path := os.Getenv("BILLING_PIPELINE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("pipeline: parse config %s: %w", path, err)
		}
	}

	if cfg.Tariff.Procedure == "" && cfg.Tariff.Statement == "" {
		cfg.Tariff.Procedure = getenvDefault("BILLING_TARIFF_PROCEDURE", DefaultTariffProcedure)
	}
	if cfg.Totals.Procedure == "" && cfg.Totals.Statement == "" {
		cfg.Totals.Procedure = getenvDefault("BILLING_TOTALS_PROCEDURE", DefaultTotalsProcedure)
	}
	if cfg.Classification.Procedure == "" && cfg.Classification.Statement == "" {
		cfg.Classification.Procedure = getenvDefault("BILLING_CLASSIFICATION_PROCEDURE", DefaultClassificationProcedure)
	}
	if cfg.LockNamespace == 0 {
		cfg.LockNamespace = int32(getenvIntDefault("BILLING_LOCK_NAMESPACE", int(DefaultLockNamespace)))
	}
	if cfg.InsertBatchSize == 0 {
		cfg.InsertBatchSize = getenvIntDefault("BILLING_INSERT_BATCH", DefaultInsertBatchSize)
	}
	if cfg.UnitPlaceholder == "" {
		cfg.UnitPlaceholder = defaultUnitPlaceholder
	}

	if cfg.InsertBatchSize <= 0 {
		return cfg, errors.New("pipeline: insert batch size must be positive")
	}
	if !ValidUnitPlaceholder(cfg.UnitPlaceholder) {
		return cfg, fmt.Errorf("%w: %q", ErrInvalidUnitPlaceholder, cfg.UnitPlaceholder)
	}
	return cfg, nil
}

var fmtVerbPattern = regexp.MustCompile(`%[-+# 0]*[0-9]*(\.[0-9]*)?[a-zA-Z]`)

// ValidUnitPlaceholder reports whether pattern formats a unit id with exactly
// one integer verb and no other verbs.
func ValidUnitPlaceholder(pattern string) bool {
	stripped := strings.ReplaceAll(pattern, "%%", "")
	verbs := fmtVerbPattern.FindAllString(stripped, -1)
	if len(verbs) != 1 || strings.Count(stripped, "%") != 1 {
		return false
	}
	switch verbs[0][len(verbs[0])-1] {
	case 'd', 'v', 'x', 'X', 'o':
		return true
	}
	return false
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
