package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Stage-advance policies for incomplete optional steps of a stage the patient
// has moved past. "keep-pending" leaves them open; "mark-not-applicable"
// closes them out when the stage advances.
const (
	PolicyKeepPending       = "keep-pending"
	PolicyMarkNotApplicable = "mark-not-applicable"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	DefaultTenant  string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`

	// Step catalog overlay file (YAML or JSON). Empty means built-in templates.
	CatalogFile string `mapstructure:"CATALOG_FILE"`

	// Overdue reconciliation sweep. Zero disables the background sweep;
	// effective statuses are still derived at read time.
	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`

	// Policy for incomplete optional steps when a patient's stage advances.
	StageAdvancePolicy string `mapstructure:"STAGE_ADVANCE_POLICY"`

	// Analytics thresholds. Clinical SLAs vary by institution, so these are
	// configuration rather than constants in the engine.
	BottleneckPatientSharePct    float64 `mapstructure:"BOTTLENECK_PATIENT_SHARE_PCT"`
	BottleneckCompletionFloorPct float64 `mapstructure:"BOTTLENECK_COMPLETION_FLOOR_PCT"`
	BottleneckAvgTimeCeilingDays float64 `mapstructure:"BOTTLENECK_AVG_TIME_CEILING_DAYS"`
	CriticalOverdueDays          int     `mapstructure:"CRITICAL_OVERDUE_DAYS"`
	DueSoonDays                  int     `mapstructure:"DUE_SOON_DAYS"`
	CriticalStepsMaxResults      int     `mapstructure:"CRITICAL_STEPS_MAX_RESULTS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("SWEEP_INTERVAL", 0)
	v.SetDefault("STAGE_ADVANCE_POLICY", PolicyKeepPending)
	v.SetDefault("BOTTLENECK_PATIENT_SHARE_PCT", 25)
	v.SetDefault("BOTTLENECK_COMPLETION_FLOOR_PCT", 50)
	v.SetDefault("BOTTLENECK_AVG_TIME_CEILING_DAYS", 21)
	v.SetDefault("CRITICAL_OVERDUE_DAYS", 14)
	v.SetDefault("DUE_SOON_DAYS", 7)
	v.SetDefault("CRITICAL_STEPS_MAX_RESULTS", 50)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("DEFAULT_TENANT")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("CATALOG_FILE")
	v.BindEnv("SWEEP_INTERVAL")
	v.BindEnv("STAGE_ADVANCE_POLICY")
	v.BindEnv("BOTTLENECK_PATIENT_SHARE_PCT")
	v.BindEnv("BOTTLENECK_COMPLETION_FLOOR_PCT")
	v.BindEnv("BOTTLENECK_AVG_TIME_CEILING_DAYS")
	v.BindEnv("CRITICAL_OVERDUE_DAYS")
	v.BindEnv("DUE_SOON_DAYS")
	v.BindEnv("CRITICAL_STEPS_MAX_RESULTS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Requests are not authenticated. Do NOT use this in production.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. In non-development
// modes AUTH_ISSUER must be set so real JWT authentication is enforced, and
// the analytics thresholds must be sane.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" {
		return fmt.Errorf(
			"AUTH_ISSUER must be set when ENV is not \"development\" (current ENV=%q). "+
				"Refusing to start without authentication configuration", c.Env)
	}

	switch c.StageAdvancePolicy {
	case PolicyKeepPending, PolicyMarkNotApplicable:
	default:
		return fmt.Errorf("STAGE_ADVANCE_POLICY must be %q or %q, got %q",
			PolicyKeepPending, PolicyMarkNotApplicable, c.StageAdvancePolicy)
	}

	if c.BottleneckPatientSharePct <= 0 || c.BottleneckPatientSharePct > 100 {
		return fmt.Errorf("BOTTLENECK_PATIENT_SHARE_PCT must be in (0, 100], got %v", c.BottleneckPatientSharePct)
	}
	if c.BottleneckCompletionFloorPct < 0 || c.BottleneckCompletionFloorPct > 100 {
		return fmt.Errorf("BOTTLENECK_COMPLETION_FLOOR_PCT must be in [0, 100], got %v", c.BottleneckCompletionFloorPct)
	}
	if c.BottleneckAvgTimeCeilingDays <= 0 {
		return fmt.Errorf("BOTTLENECK_AVG_TIME_CEILING_DAYS must be positive, got %v", c.BottleneckAvgTimeCeilingDays)
	}
	if c.CriticalOverdueDays <= 0 {
		return fmt.Errorf("CRITICAL_OVERDUE_DAYS must be positive, got %d", c.CriticalOverdueDays)
	}
	if c.DueSoonDays <= 0 {
		return fmt.Errorf("DUE_SOON_DAYS must be positive, got %d", c.DueSoonDays)
	}
	if c.CriticalStepsMaxResults <= 0 {
		return fmt.Errorf("CRITICAL_STEPS_MAX_RESULTS must be positive, got %d", c.CriticalStepsMaxResults)
	}

	return nil
}
