// Package config loads application configuration from file and environment
// and owns the global logger setup.
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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Oracle     OracleConfig     `yaml:"oracle" mapstructure:"oracle"`
	CloudGrade CloudGradeConfig `yaml:"cloudgrade" mapstructure:"cloudgrade"`
	Eval       EvalConfig       `yaml:"eval" mapstructure:"eval"`
	Review     ReviewConfig     `yaml:"review" mapstructure:"review"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the history database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
	Retention   int    `yaml:"retention" mapstructure:"retention"`
}

// OracleConfig holds the scoring LLM gateway settings.
type OracleConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"`
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// CloudGradeConfig holds the homework grading service credentials. The
// authorization and cookie values are forwarded verbatim on every request.
type CloudGradeConfig struct {
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	Authorization string  `yaml:"authorization" mapstructure:"authorization"`
	Cookie        string  `yaml:"cookie" mapstructure:"cookie"`
	InstanceNid   string  `yaml:"instance_nid" mapstructure:"instance_nid"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// EvalConfig configures transcript evaluation.
type EvalConfig struct {
	WeightsFile string `yaml:"weights_file" mapstructure:"weights_file"`
}

// ReviewConfig configures batch homework review.
type ReviewConfig struct {
	Concurrency     int `yaml:"concurrency" mapstructure:"concurrency"`
	Attempts        int `yaml:"attempts" mapstructure:"attempts"`
	PollSecs        int `yaml:"poll_secs" mapstructure:"poll_secs"`
	PollTimeoutSecs int `yaml:"poll_timeout_secs" mapstructure:"poll_timeout_secs"`
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
	v.SetEnvPrefix("EVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys with no sensible default still get an empty one so
	// viper.Unmarshal sees them and their EVAL_ env overrides apply even
	// when no config file sets them.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("oracle.key", "")
	v.SetDefault("oracle.base_url", "")
	v.SetDefault("cloudgrade.authorization", "")
	v.SetDefault("cloudgrade.cookie", "")
	v.SetDefault("cloudgrade.instance_nid", "")
	v.SetDefault("eval.weights_file", "")
	v.SetDefault("store.path", "eval-history.db")
	v.SetDefault("store.retention", 200)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("oracle.provider", "openai")
	v.SetDefault("oracle.model", "gpt-4o")
	v.SetDefault("oracle.max_tokens", 8000)
	v.SetDefault("cloudgrade.base_url", "https://cloudapi.polymas.com")
	v.SetDefault("cloudgrade.rate_limit", 5)
	v.SetDefault("review.concurrency", 5)
	v.SetDefault("review.attempts", 5)
	v.SetDefault("review.poll_secs", 2)
	v.SetDefault("review.poll_timeout_secs", 300)

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

	return &cfg, nil
}

// ValidateOracle checks that the scoring gateway is usable. A missing key or
// endpoint is a hard configuration error, not something to fall back from.
func (c *Config) ValidateOracle() error {
	switch c.Oracle.Provider {
	case "anthropic":
		if c.Oracle.Key == "" {
			return eris.New("config: oracle.key is required")
		}
	case "openai", "":
		if c.Oracle.Key == "" {
			return eris.New("config: oracle.key is required")
		}
		if c.Oracle.BaseURL == "" {
			return eris.New("config: oracle.base_url is required")
		}
	default:
		return eris.Errorf("config: unknown oracle provider %q", c.Oracle.Provider)
	}
	return nil
}

// ValidateCloudGrade checks that the grading service credentials are set.
func (c *Config) ValidateCloudGrade() error {
	if c.CloudGrade.Authorization == "" {
		return eris.New("config: cloudgrade.authorization is required")
	}
	if c.CloudGrade.Cookie == "" {
		return eris.New("config: cloudgrade.cookie is required")
	}
	if c.CloudGrade.InstanceNid == "" {
		return eris.New("config: cloudgrade.instance_nid is required")
	}
	return nil
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
