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
	Models    ModelsConfig    `yaml:"models" mapstructure:"models"`
	Templates TemplatesConfig `yaml:"templates" mapstructure:"templates"`
	Docs      DocsConfig      `yaml:"docs" mapstructure:"docs"`
	Align     AlignConfig     `yaml:"align" mapstructure:"align"`
	Scorer    ScorerConfig    `yaml:"scorer" mapstructure:"scorer"`
	Training  TrainingConfig  `yaml:"training" mapstructure:"training"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ModelsConfig configures where trained model artifacts live.
type ModelsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// TemplatesConfig configures where template field configs live.
type TemplatesConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// DocsConfig configures where upstream token documents live.
type DocsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// AlignConfig tunes the correction-to-token sequence aligner. The matching
// thresholds are deliberately configuration, not constants: the right values
// depend on the OCR engine's noise profile.
type AlignConfig struct {
	// Lookahead is how many document tokens the matcher probes forward to
	// resynchronize after a miss before giving up on a candidate start.
	Lookahead int `yaml:"lookahead" mapstructure:"lookahead"`

	// SkipPenalty is subtracted from the span score per skipped token.
	SkipPenalty float64 `yaml:"skip_penalty" mapstructure:"skip_penalty"`

	// MinScore is the acceptance threshold below which an alignment is
	// rejected as unresolved.
	MinScore float64 `yaml:"min_score" mapstructure:"min_score"`

	// FuzzyMinSimilarity is the minimum normalized Levenshtein similarity
	// for two non-identical tokens to count as a match.
	FuzzyMinSimilarity float64 `yaml:"fuzzy_min_similarity" mapstructure:"fuzzy_min_similarity"`
}

// TierWeights is one row of the tier weight table: how much the candidate's
// own confidence, the fixed per-strategy prior, and the recorded historical
// accuracy each contribute to the combined score.
type TierWeights struct {
	Confidence  float64 `yaml:"confidence" mapstructure:"confidence"`
	Prior       float64 `yaml:"prior" mapstructure:"prior"`
	Performance float64 `yaml:"performance" mapstructure:"performance"`
}

// ScorerConfig configures candidate selection.
type ScorerConfig struct {
	New         TierWeights `yaml:"new" mapstructure:"new"`
	Established TierWeights `yaml:"established" mapstructure:"established"`
	Proven      TierWeights `yaml:"proven" mapstructure:"proven"`

	// Priors holds the fixed a-priori trust per strategy, keyed by strategy
	// id. Cold-start tiebreaker; independent of any template's history.
	Priors map[string]float64 `yaml:"priors" mapstructure:"priors"`

	// Precedence breaks ties that survive the confidence comparison.
	// Earlier wins.
	Precedence []string `yaml:"precedence" mapstructure:"precedence"`
}

// TrainingConfig configures the retraining pipeline.
type TrainingConfig struct {
	SplitRatio  float64 `yaml:"split_ratio" mapstructure:"split_ratio"`
	Seed        int64   `yaml:"seed" mapstructure:"seed"`
	MinExamples int     `yaml:"min_examples" mapstructure:"min_examples"`
	Epochs      int     `yaml:"epochs" mapstructure:"epochs"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port              int     `yaml:"port" mapstructure:"port"`
	RetrainsPerMinute float64 `yaml:"retrains_per_minute" mapstructure:"retrains_per_minute"`
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
	v.SetEnvPrefix("EXTRACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "extract.db")
	v.SetDefault("models.dir", "models")
	v.SetDefault("templates.dir", "templates")
	v.SetDefault("docs.dir", "docs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.retrains_per_minute", 2)
	v.SetDefault("align.lookahead", 3)
	v.SetDefault("align.skip_penalty", 0.1)
	v.SetDefault("align.min_score", 0.65)
	v.SetDefault("align.fuzzy_min_similarity", 0.8)
	v.SetDefault("scorer.new.confidence", 0.35)
	v.SetDefault("scorer.new.prior", 0.25)
	v.SetDefault("scorer.new.performance", 0.40)
	v.SetDefault("scorer.established.confidence", 0.20)
	v.SetDefault("scorer.established.prior", 0.10)
	v.SetDefault("scorer.established.performance", 0.70)
	v.SetDefault("scorer.proven.confidence", 0.15)
	v.SetDefault("scorer.proven.prior", 0.05)
	v.SetDefault("scorer.proven.performance", 0.80)
	v.SetDefault("scorer.priors", map[string]float64{"crf": 0.5, "positional": 0.5})
	v.SetDefault("scorer.precedence", []string{"crf", "positional"})
	v.SetDefault("training.split_ratio", 0.8)
	v.SetDefault("training.seed", 42)
	v.SetDefault("training.min_examples", 10)
	v.SetDefault("training.epochs", 12)

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
