package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/clinicgen/clinicgen/internal/domain/dataset"
)

// EnvPrefix is prepended to every environment variable, e.g.
// CLINICGEN_GENERATION_SIZE.
const EnvPrefix = "CLINICGEN"

type Config struct {
	Env        string           `mapstructure:"env"`
	Dictionary string           `mapstructure:"dictionary"`
	Generation GenerationConfig `mapstructure:"generation"`
	Output     OutputConfig     `mapstructure:"output"`
	Validation ValidationConfig `mapstructure:"validation"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type GenerationConfig struct {
	Size              int     `mapstructure:"size"`
	Seed              int64   `mapstructure:"seed"`
	RepeatProbability float64 `mapstructure:"repeat_probability"`
	MinPoolForRepeat  int     `mapstructure:"min_pool_for_repeat"`
	BatchSize         int     `mapstructure:"batch_size"`

	StartDate        string        `mapstructure:"start_date"`
	EndDate          string        `mapstructure:"end_date"`
	BusinessDays     []int         `mapstructure:"business_days"`
	OpenHour         int           `mapstructure:"open_hour"`
	CloseHour        int           `mapstructure:"close_hour"`
	SlotMinutes      int           `mapstructure:"slot_minutes"`
	UTCOffsetMinutes int           `mapstructure:"utc_offset_minutes"`
	MinResultOffset  time.Duration `mapstructure:"min_result_offset"`
	MaxResultOffset  time.Duration `mapstructure:"max_result_offset"`

	MinSymptoms  int     `mapstructure:"min_symptoms"`
	MaxSymptoms  int     `mapstructure:"max_symptoms"`
	MinLabTests  int     `mapstructure:"min_lab_tests"`
	MaxLabTests  int     `mapstructure:"max_lab_tests"`
	AffinityBias float64 `mapstructure:"affinity_bias"`

	CardReuseProbability float64 `mapstructure:"card_reuse_probability"`
	CardReuseLimit       int     `mapstructure:"card_reuse_limit"`
	CostMin              int64   `mapstructure:"cost_min"`
	CostMax              int64   `mapstructure:"cost_max"`
	PriceVariation       float64 `mapstructure:"price_variation"`

	MaxIdentifierRetries int `mapstructure:"max_identifier_retries"`
}

type OutputConfig struct {
	Path     string `mapstructure:"path"`
	Report   string `mapstructure:"report"`
	Extended bool   `mapstructure:"extended"`
}

type ValidationConfig struct {
	MinValidRatio float64 `mapstructure:"min_valid_ratio"`
	Strict        bool    `mapstructure:"strict"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type MetricsConfig struct {
	Textfile       string `mapstructure:"textfile"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"size":               "generation.size",
	"seed":               "generation.seed",
	"repeat-probability": "generation.repeat_probability",
	"batch-size":         "generation.batch_size",
	"dictionary":         "dictionary",
	"output":             "output.path",
	"report":             "output.report",
	"extended":           "output.extended",
	"strict":             "validation.strict",
	"min-valid-ratio":    "validation.min_valid_ratio",
	"log-level":          "log.level",
	"log-format":         "log.format",
	"log-file":           "log.file",
	"metrics-textfile":   "metrics.textfile",
	"pushgateway-url":    "metrics.pushgateway_url",
}

func setDefaults(v *viper.Viper) {
	d := dataset.DefaultConfig()

	v.SetDefault("env", "production")
	v.SetDefault("dictionary", "")

	v.SetDefault("generation.size", d.Size)
	v.SetDefault("generation.seed", d.Seed)
	v.SetDefault("generation.repeat_probability", d.RepeatProbability)
	v.SetDefault("generation.min_pool_for_repeat", d.MinPoolForRepeat)
	v.SetDefault("generation.batch_size", d.BatchSize)
	v.SetDefault("generation.start_date", d.StartDate.Format(time.DateOnly))
	v.SetDefault("generation.end_date", d.EndDate.Format(time.DateOnly))
	days := make([]int, len(d.BusinessDays))
	for i, wd := range d.BusinessDays {
		days[i] = int(wd)
	}
	v.SetDefault("generation.business_days", days)
	v.SetDefault("generation.open_hour", d.OpenHour)
	v.SetDefault("generation.close_hour", d.CloseHour)
	v.SetDefault("generation.slot_minutes", d.SlotMinutes)
	v.SetDefault("generation.utc_offset_minutes", d.UTCOffsetMinutes)
	v.SetDefault("generation.min_result_offset", d.MinResultOffset)
	v.SetDefault("generation.max_result_offset", d.MaxResultOffset)
	v.SetDefault("generation.min_symptoms", d.MinSymptoms)
	v.SetDefault("generation.max_symptoms", d.MaxSymptoms)
	v.SetDefault("generation.min_lab_tests", d.MinLabTests)
	v.SetDefault("generation.max_lab_tests", d.MaxLabTests)
	v.SetDefault("generation.affinity_bias", d.AffinityBias)
	v.SetDefault("generation.card_reuse_probability", d.CardReuseProbability)
	v.SetDefault("generation.card_reuse_limit", d.CardReuseLimit)
	v.SetDefault("generation.cost_min", d.CostMin)
	v.SetDefault("generation.cost_max", d.CostMax)
	v.SetDefault("generation.price_variation", d.PriceVariation)
	v.SetDefault("generation.max_identifier_retries", d.MaxIdentifierRetries)

	v.SetDefault("output.path", "clinic_dataset.xlsx")
	v.SetDefault("output.report", "")
	v.SetDefault("output.extended", false)

	v.SetDefault("validation.min_valid_ratio", d.MinValidRatio)
	v.SetDefault("validation.strict", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")

	v.SetDefault("metrics.textfile", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "clinicgen")
}

// Load resolves configuration from, in increasing precedence: defaults, the
// config file, CLINICGEN_* environment variables and flags changed on the
// command line. An empty file looks for an optional clinicgen.yaml in the
// working directory. flags may be nil.
func Load(flags *pflag.FlagSet, file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("clinicgen")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// DatasetConfig converts the generation section into a run configuration and
// validates it. Errors wrap dataset.ErrInvalidConfiguration.
func (c *Config) DatasetConfig() (dataset.Config, error) {
	g := c.Generation
	start, err := time.Parse(time.DateOnly, g.StartDate)
	if err != nil {
		return dataset.Config{}, fmt.Errorf("%w: generation.start_date: %w", dataset.ErrInvalidConfiguration, err)
	}
	end, err := time.Parse(time.DateOnly, g.EndDate)
	if err != nil {
		return dataset.Config{}, fmt.Errorf("%w: generation.end_date: %w", dataset.ErrInvalidConfiguration, err)
	}
	days := make([]time.Weekday, len(g.BusinessDays))
	for i, d := range g.BusinessDays {
		days[i] = time.Weekday(d)
	}

	out := dataset.Config{
		Size:              g.Size,
		Seed:              g.Seed,
		RepeatProbability: g.RepeatProbability,
		MinPoolForRepeat:  g.MinPoolForRepeat,
		BatchSize:         g.BatchSize,

		StartDate:        start,
		EndDate:          end,
		BusinessDays:     days,
		OpenHour:         g.OpenHour,
		CloseHour:        g.CloseHour,
		SlotMinutes:      g.SlotMinutes,
		UTCOffsetMinutes: g.UTCOffsetMinutes,
		MinResultOffset:  g.MinResultOffset,
		MaxResultOffset:  g.MaxResultOffset,

		MinSymptoms:  g.MinSymptoms,
		MaxSymptoms:  g.MaxSymptoms,
		MinLabTests:  g.MinLabTests,
		MaxLabTests:  g.MaxLabTests,
		AffinityBias: g.AffinityBias,

		CardReuseProbability: g.CardReuseProbability,
		CardReuseLimit:       g.CardReuseLimit,
		CostMin:              g.CostMin,
		CostMax:              g.CostMax,
		PriceVariation:       g.PriceVariation,

		MaxIdentifierRetries: g.MaxIdentifierRetries,
		MinValidRatio:        c.Validation.MinValidRatio,
	}
	if err := out.Validate(); err != nil {
		return dataset.Config{}, err
	}
	return out, nil
}

// ReportPath returns the text report location: output.report when set,
// otherwise "<output stem>_report.txt" next to the dataset.
func (c *Config) ReportPath() string {
	if c.Output.Report != "" {
		return c.Output.Report
	}
	return stem(c.Output.Path) + "_report.txt"
}

// JSONReportPath returns the machine-readable report next to the text one.
func (c *Config) JSONReportPath() string {
	return stem(c.ReportPath()) + ".json"
}

func stem(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// Validate checks the settings outside the generation section; DatasetConfig
// validates the rest.
func (c *Config) Validate() error {
	switch c.Env {
	case "development", "production":
	default:
		return fmt.Errorf("env must be \"development\" or \"production\", got %q", c.Env)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be \"json\" or \"console\", got %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("log.level %q is not a known level", c.Log.Level)
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output.path is required")
	}
	switch strings.ToLower(filepath.Ext(c.Output.Path)) {
	case ".xlsx", ".csv":
	default:
		return fmt.Errorf("output.path must end in .xlsx or .csv, got %q", c.Output.Path)
	}
	if c.Validation.MinValidRatio < 0 || c.Validation.MinValidRatio > 1 {
		return fmt.Errorf("validation.min_valid_ratio must be within [0, 1], got %v", c.Validation.MinValidRatio)
	}
	if c.Metrics.PushgatewayURL != "" && c.Metrics.Job == "" {
		return fmt.Errorf("metrics.job is required when metrics.pushgateway_url is set")
	}
	return nil
}
