package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jwtly10/stratsim/internal/account"
	"github.com/jwtly10/stratsim/internal/advisor"
	"github.com/jwtly10/stratsim/internal/confluence"
	"github.com/jwtly10/stratsim/internal/strategy"
)

const (
	SourceCSV     = "csv"
	SourcePolygon = "polygon"
	SourceOanda   = "oanda"
)

const (
	EnvAdvisorAPIKey  = "ADVISOR_API_KEY"
	EnvPolygonAPIKey  = "POLYGON_API_KEY"
	EnvOandaAccountID = "OANDA_ACCOUNT_ID"
	EnvOandaAPIKey    = "OANDA_API_KEY"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is one simulation run, optionally over several symbols. Secrets are
// never read from the YAML file; they come from the environment.
type Config struct {
	Symbols         []string           `yaml:"symbols" json:"symbols"`
	Strategy        strategy.Kind      `yaml:"strategy" json:"strategy"`
	IntervalMinutes int                `yaml:"interval_minutes" json:"intervalMinutes"`
	From            time.Time          `yaml:"from" json:"from"`
	To              time.Time          `yaml:"to" json:"to"`
	StartingBalance float64            `yaml:"starting_balance" json:"startingBalance"`
	EquityStride    int                `yaml:"equity_stride" json:"equityStride"`
	Risk            account.RiskConfig `yaml:"risk" json:"risk"`

	Confluence ConfluenceConfig       `yaml:"confluence" json:"confluence"`
	Score      strategy.ScoreConfig   `yaml:"score" json:"score"`
	Scalper    strategy.ScalperConfig `yaml:"scalper" json:"scalper"`
	Advisor    advisor.Config         `yaml:"advisor" json:"advisor"`
	Data       DataConfig             `yaml:"data" json:"data"`
}

type ConfluenceConfig struct {
	Enabled    bool                  `yaml:"enabled" json:"enabled"`
	Thresholds confluence.Thresholds `yaml:"thresholds" json:"thresholds"`
}

type DataConfig struct {
	Source string `yaml:"source" json:"source"`
	// Dir holds <SYMBOL>.csv files for the csv source.
	Dir string `yaml:"dir" json:"dir"`

	PolygonAPIKey  string `yaml:"-" json:"-"`
	OandaAccountID string `yaml:"-" json:"-"`
	OandaAPIKey    string `yaml:"-" json:"-"`
	OandaBaseURL   string `yaml:"oanda_base_url" json:"oandaBaseUrl"`
}

func Default() Config {
	return Config{
		Strategy:        strategy.KindScore,
		IntervalMinutes: 5,
		StartingBalance: 10000,
		EquityStride:    10,
		Risk: account.RiskConfig{
			StopLossPercent:   2,
			TakeProfitPercent: 4,
			TradeSize:         1000,
		},
		Confluence: ConfluenceConfig{Thresholds: confluence.DefaultThresholds()},
		Score:      strategy.DefaultScoreConfig(),
		Scalper:    strategy.DefaultScalperConfig(),
		Advisor: advisor.Config{
			Timeout:             advisor.DefaultTimeout,
			MaxRetries:          advisor.DefaultMaxRetries,
			ConfidenceThreshold: strategy.DefaultConfidenceThreshold,
		},
		Data: DataConfig{Source: SourceCSV, Dir: "data"},
	}
}

// Load reads a YAML run file over the defaults, applies secrets from the
// environment and validates the result.
func Load(path string) (Config, error) {
	return LoadFor(path, nil)
}

// LoadFor is Load with the file's symbols replaced by symbols, when any are
// given, before validation.
func LoadFor(path string, symbols []string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return parse(data, symbols)
}

func Parse(data []byte) (Config, error) {
	return parse(data, nil)
}

func parse(data []byte, symbols []string) (Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return Config{}, err
	}
	if len(symbols) > 0 {
		cfg.Symbols = symbols
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadBase reads a run file whose symbols are supplied later, as the HTTP
// service does per request. A missing file yields the defaults.
func LoadBase(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("No config file, using defaults", "path", path)
		data = nil
	} else if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := decode(data)
	if err != nil {
		return Config{}, err
	}

	probe := cfg
	if len(probe.Symbols) == 0 {
		probe.Symbols = []string{"*"}
	}
	if err := probe.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// LoadEnv loads .env style files into the process environment. Missing files
// are skipped; variables already set are left alone.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			slog.Debug("No env file", "file", f)
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s file: %w", f, err)
		}
		slog.Info("Loaded env file", "file", f)
	}
	return nil
}

// ApplyEnv fills the secrets from getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvAdvisorAPIKey); v != "" {
		c.Advisor.APIKey = v
	}
	if v := getenv(EnvPolygonAPIKey); v != "" {
		c.Data.PolygonAPIKey = v
	}
	if v := getenv(EnvOandaAccountID); v != "" {
		c.Data.OandaAccountID = v
	}
	if v := getenv(EnvOandaAPIKey); v != "" {
		c.Data.OandaAPIKey = v
	}
}

func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(c.Symbols) == 0 {
		add("at least one symbol is required")
	}
	for _, s := range c.Symbols {
		if strings.TrimSpace(s) == "" {
			add("empty symbol")
		}
	}
	if _, err := strategy.ParseKind(string(c.Strategy)); err != nil {
		add("%v", err)
	}
	if c.IntervalMinutes <= 0 {
		add("interval_minutes must be positive")
	}
	if !c.From.IsZero() && !c.To.IsZero() && !c.From.Before(c.To) {
		add("from must be before to")
	}
	if c.StartingBalance <= 0 {
		add("starting_balance must be positive")
	}
	if c.Risk.TradeSize <= 0 {
		add("risk.trade_size must be positive")
	}
	if c.Risk.TradeSize > c.StartingBalance {
		add("risk.trade_size exceeds starting_balance")
	}
	if c.Risk.StopLossPercent < 0 || c.Risk.TakeProfitPercent < 0 || c.Risk.TrailingStopPercent < 0 || c.Risk.TimeoutMinutes < 0 {
		add("risk limits must not be negative")
	}
	if c.Strategy != strategy.KindScore && c.Advisor.Endpoint == "" {
		add("advisor.endpoint is required for the %s strategy", c.Strategy)
	}
	if t := c.Advisor.ConfidenceThreshold; t < 0 || t > 100 {
		add("advisor.confidence_threshold must be within 0..100")
	}

	switch c.Data.Source {
	case SourceCSV:
		if c.Data.Dir == "" {
			add("data.dir is required for the csv source")
		}
	case SourcePolygon:
		if c.Data.PolygonAPIKey == "" {
			add("%s is not set", EnvPolygonAPIKey)
		}
	case SourceOanda:
		if c.Data.OandaAccountID == "" || c.Data.OandaAPIKey == "" {
			add("%s and %s must be set", EnvOandaAccountID, EnvOandaAPIKey)
		}
	default:
		add("unknown data.source %q", c.Data.Source)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
