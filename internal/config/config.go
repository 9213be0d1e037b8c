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
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Units      UnitsConfig      `yaml:"units" mapstructure:"units"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Calculator CalculatorConfig `yaml:"calculator" mapstructure:"calculator"`
	PDF        PDFConfig        `yaml:"pdf" mapstructure:"pdf"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures per-deal database placement.
type StoreConfig struct {
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
}

// IngestConfig configures batch ingestion behavior.
type IngestConfig struct {
	// FailureRateThreshold is the fraction of per-row failures above which a
	// document is marked failed instead of partially ingested.
	FailureRateThreshold float64  `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	Categories           []string `yaml:"categories" mapstructure:"categories"`
	// Prefetch is how many upcoming files may parse/classify ahead of the
	// serialized persist+scan stage.
	Prefetch int `yaml:"prefetch" mapstructure:"prefetch"`
}

// UnitsConfig configures the unit normalizer.
type UnitsConfig struct {
	// GasToBOE is the gas-to-barrel-of-oil-equivalent ratio in mcf per bbl.
	// Every use is recorded in the conversion trail, never applied silently.
	GasToBOE  float64 `yaml:"gas_to_boe" mapstructure:"gas_to_boe"`
	AliasFile string  `yaml:"alias_file" mapstructure:"alias_file"`
}

// ClassifierConfig selects the semantic classifier implementation.
type ClassifierConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"` // "heuristic" or "claude"
	Key      string `yaml:"key" mapstructure:"key"`
	Model    string `yaml:"model" mapstructure:"model"`
}

// CalculatorConfig configures the external finance calculator client.
type CalculatorConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// PDFConfig configures tabular-PDF text extraction.
type PDFConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// ServerConfig configures the read-only HTTP query surface.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("DEALROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.data_dir", "./deals")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("ingest.failure_rate_threshold", 0.25)
	v.SetDefault("ingest.prefetch", 2)
	v.SetDefault("ingest.categories", []string{
		"production_report", "reserve_report", "financial_model",
		"cost_report", "fiscal_terms",
	})
	v.SetDefault("units.gas_to_boe", 6.0)
	v.SetDefault("classifier.provider", "heuristic")
	v.SetDefault("classifier.model", "claude-haiku-4-5-20251001")
	v.SetDefault("calculator.timeout_secs", 60)
	v.SetDefault("calculator.rate_per_sec", 2.0)
	v.SetDefault("pdf.pdftotext_path", "pdftotext")

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
