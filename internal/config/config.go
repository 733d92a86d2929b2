package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Workflow  WorkflowConfig  `yaml:"workflow" mapstructure:"workflow"`
	SLA       SLAConfig       `yaml:"sla" mapstructure:"sla"`
	Checks    ChecksConfig    `yaml:"checks" mapstructure:"checks"`
	Tracker   TrackerConfig   `yaml:"tracker" mapstructure:"tracker"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// WorkflowConfig configures engine policy knobs.
type WorkflowConfig struct {
	// MaxCorrectionRounds bounds the SME verification / correction loop.
	// The review process itself leaves the loop unbounded; this limit is
	// local policy so a stuck record surfaces instead of cycling forever.
	MaxCorrectionRounds int `yaml:"max_correction_rounds" mapstructure:"max_correction_rounds"`
}

// SLAConfig maps severity tiers to advisory fix deadlines. The engine
// attaches deadlines to records but never enforces them.
type SLAConfig struct {
	P0Hours        int `yaml:"p0_hours" mapstructure:"p0_hours"`
	P1BusinessDays int `yaml:"p1_business_days" mapstructure:"p1_business_days"`
	CycleDays      int `yaml:"cycle_days" mapstructure:"cycle_days"`
}

// ChecksConfig configures the automated structural checkers.
type ChecksConfig struct {
	ContentDir      string   `yaml:"content_dir" mapstructure:"content_dir"`
	LinkTimeoutSecs int      `yaml:"link_timeout_secs" mapstructure:"link_timeout_secs"`
	LinkRatePerHost float64  `yaml:"link_rate_per_host" mapstructure:"link_rate_per_host"`
	GlossaryTerms   []string `yaml:"glossary_terms" mapstructure:"glossary_terms"`
	RequiredFields  []string `yaml:"required_fields" mapstructure:"required_fields"`
}

// TrackerConfig configures where hallucination incidents are filed.
type TrackerConfig struct {
	Kind       string   `yaml:"kind" mapstructure:"kind"` // notion, webhook, none
	Token      string   `yaml:"token" mapstructure:"token"`
	DatabaseID string   `yaml:"database_id" mapstructure:"database_id"`
	WebhookURL string   `yaml:"webhook_url" mapstructure:"webhook_url"`
	Labels     []string `yaml:"labels" mapstructure:"labels"`
	Assignees  []string `yaml:"assignees" mapstructure:"assignees"`
}

// AuditConfig configures audit log retention.
type AuditConfig struct {
	// RetentionDays is how long prompt/retrieval context must remain
	// addressable after publish. Valid range is 90-180.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days"`
}

// AnthropicConfig holds API settings for the claim drafting helper.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ServerConfig configures the review API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	SLACheckSecs   int      `yaml:"sla_check_secs" mapstructure:"sla_check_secs"`
	AlertWebhook   string   `yaml:"alert_webhook_url" mapstructure:"alert_webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REVIEWCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "reviewctl.db")
	v.SetDefault("workflow.max_correction_rounds", 10)
	v.SetDefault("sla.p0_hours", 24)
	v.SetDefault("sla.p1_business_days", 3)
	v.SetDefault("sla.cycle_days", 14)
	v.SetDefault("checks.content_dir", ".")
	v.SetDefault("checks.link_timeout_secs", 10)
	v.SetDefault("checks.link_rate_per_host", 5)
	v.SetDefault("checks.required_fields", []string{
		"ai_generated", "sources", "verified_by", "review_date",
		"risk_level", "model", "retrieval_context",
	})
	v.SetDefault("tracker.kind", "none")
	v.SetDefault("tracker.labels", []string{"hallucination"})
	v.SetDefault("audit.retention_days", 90)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.sla_check_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Audit.RetentionDays < 90 || cfg.Audit.RetentionDays > 180 {
		return nil, eris.Errorf("config: audit.retention_days must be between 90 and 180, got %d", cfg.Audit.RetentionDays)
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
