// Package config loads and validates the fireline.yml configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ahjlabs/fireline/pkg/ledger"
)

// FirelineConfig represents the top-level fireline.yml configuration.
type FirelineConfig struct {
	Version  string          `yaml:"version"`
	Instance string          `yaml:"instance"`
	Redis    RedisConfig     `yaml:"redis"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
	Closeout *CloseoutConfig `yaml:"closeout,omitempty"`
	Server   *ServerConfig   `yaml:"server,omitempty"`
}

// RedisConfig points at the Redis instance backing the ledger.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// PostgresConfig enables the SQL ledger backend when set.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// CloseoutConfig tunes the closeout workflow thresholds.
type CloseoutConfig struct {
	DocumentDeadlineDays    *int              `yaml:"document_deadline_days,omitempty"`    // Days to upload required documents (default 30)
	SignatureExpiryDays     *int              `yaml:"signature_expiry_days,omitempty"`     // Days before a signature request expires (default 7)
	ComplexCostThreshold    *float64          `yaml:"complex_cost_threshold,omitempty"`    // Project cost forcing complex classification (default 1000000)
	ManualReviewCostCeiling *float64          `yaml:"manual_review_cost_ceiling,omitempty"` // Project cost above which closure is always manual (default 5000000)
	RiskOverrides           map[string]string `yaml:"risk_overrides,omitempty"`            // permit type → risk class
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	JWTSigningKey string `yaml:"jwt_signing_key"`
}

// Validate performs strict validation on the configuration and applies
// defaults for omitted closeout thresholds.
func (c *FirelineConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Instance == "" {
		return fmt.Errorf("instance name is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}

	if c.Postgres != nil && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when the postgres section is present")
	}

	if c.Closeout == nil {
		c.Closeout = &CloseoutConfig{}
	}
	if err := c.Closeout.validate(); err != nil {
		return err
	}

	if c.Server != nil {
		if c.Server.Addr == "" {
			return fmt.Errorf("server.addr is required when the server section is present")
		}
		if c.Server.JWTSigningKey == "" {
			return fmt.Errorf("server.jwt_signing_key is required when the server section is present")
		}
	}

	return nil
}

func (cc *CloseoutConfig) validate() error {
	if cc.DocumentDeadlineDays == nil {
		d := 30
		cc.DocumentDeadlineDays = &d
	}
	if *cc.DocumentDeadlineDays < 1 {
		return fmt.Errorf("closeout.document_deadline_days must be >= 1, got %d", *cc.DocumentDeadlineDays)
	}

	if cc.SignatureExpiryDays == nil {
		d := 7
		cc.SignatureExpiryDays = &d
	}
	if *cc.SignatureExpiryDays < 1 {
		return fmt.Errorf("closeout.signature_expiry_days must be >= 1, got %d", *cc.SignatureExpiryDays)
	}

	if cc.ComplexCostThreshold == nil {
		t := 1_000_000.0
		cc.ComplexCostThreshold = &t
	}
	if *cc.ComplexCostThreshold <= 0 {
		return fmt.Errorf("closeout.complex_cost_threshold must be > 0, got %g", *cc.ComplexCostThreshold)
	}

	if cc.ManualReviewCostCeiling == nil {
		t := 5_000_000.0
		cc.ManualReviewCostCeiling = &t
	}
	if *cc.ManualReviewCostCeiling <= 0 {
		return fmt.Errorf("closeout.manual_review_cost_ceiling must be > 0, got %g", *cc.ManualReviewCostCeiling)
	}

	for permitType, class := range cc.RiskOverrides {
		if err := ledger.PermitType(permitType).Validate(); err != nil {
			return fmt.Errorf("closeout.risk_overrides: %w", err)
		}
		if err := ledger.RiskClass(class).Validate(); err != nil {
			return fmt.Errorf("closeout.risk_overrides['%s']: %w", permitType, err)
		}
	}

	return nil
}

// TypedRiskOverrides converts the configured overrides to their typed form.
// Call after Validate.
func (cc *CloseoutConfig) TypedRiskOverrides() map[ledger.PermitType]ledger.RiskClass {
	if len(cc.RiskOverrides) == 0 {
		return nil
	}
	out := make(map[ledger.PermitType]ledger.RiskClass, len(cc.RiskOverrides))
	for permitType, class := range cc.RiskOverrides {
		out[ledger.PermitType(permitType)] = ledger.RiskClass(class)
	}
	return out
}

// Load reads and validates fireline.yml from the specified path.
func Load(path string) (*FirelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config FirelineConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
