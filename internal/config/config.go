package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment variable the service reads.
const EnvPrefix = "GRIDDELTA_"

// Config holds all service settings.
type Config struct {
	// Source index and file selection.
	IndexURL       string        `koanf:"index_url" validate:"required,url"`
	FilePrefix     string        `koanf:"file_prefix" validate:"required"`
	ListingTimeout time.Duration `koanf:"listing_timeout" validate:"gt=0"`
	FetchTimeout   time.Duration `koanf:"fetch_timeout" validate:"gt=0"`
	FetchRetries   int           `koanf:"fetch_retries" validate:"gte=0,lte=10"`
	RetryBackoff   time.Duration `koanf:"retry_backoff" validate:"gt=0"`

	// Local store.
	DownloadDir string `koanf:"download_dir" validate:"required"`
	OutputDir   string `koanf:"output_dir" validate:"required"`

	// Extraction and differencing.
	Workers    int     `koanf:"workers" validate:"gte=1"`
	Multiplier int32   `koanf:"multiplier" validate:"gte=1"`
	Sentinel   float32 `koanf:"sentinel"`
	Order      string  `koanf:"order" validate:"oneof=discovery valid_time"`
	DiffPolicy string  `koanf:"diff_policy" validate:"oneof=legacy strict"`

	// GRIB message selection (WMO discipline / parameter category / number).
	GribDiscipline int `koanf:"grib_discipline" validate:"gte=0,lte=255"`
	GribCategory   int `koanf:"grib_category" validate:"gte=0,lte=255"`
	GribParameter  int `koanf:"grib_parameter" validate:"gte=0,lte=255"`

	LogLevel  string `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `koanf:"log_format" validate:"oneof=json text"`

	// Daemon mode. An empty Schedule runs the pipeline once and exits.
	Schedule        time.Duration `koanf:"schedule" validate:"gte=0"`
	HTTPAddr        string        `koanf:"http_addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// Optional frame notifications; disabled when no brokers are set.
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		IndexURL:       "https://opendata.dwd.de/weather/nwp/icon-d2/grib/12/tot_prec/",
		FilePrefix:     "icon-d2_germany_regular-lat-lon_single",
		ListingTimeout: 30 * time.Second,
		FetchTimeout:   30 * time.Second,
		FetchRetries:   2,
		RetryBackoff:   500 * time.Millisecond,

		DownloadDir: "download",
		OutputDir:   "icon_d2",

		Workers:    runtime.NumCPU(),
		Multiplier: 100,
		Sentinel:   -100500.0,
		Order:      "discovery",
		DiffPolicy: "legacy",

		GribDiscipline: 0,
		GribCategory:   1,
		GribParameter:  52,

		LogLevel:  "info",
		LogFormat: "json",

		HTTPAddr:        ":8080",
		ShutdownTimeout: 10 * time.Second,

		KafkaTopic: "grid-frames",
	}
}

// Load builds a Config by layering, low to high precedence:
//  1. defaults (New)
//  2. .env in the working directory, if present
//  3. YAML file named by GRIDDELTA_CONFIG, if set
//  4. GRIDDELTA_* environment variables
func Load(_ context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// GRIDDELTA_FETCH_TIMEOUT -> fetch_timeout. Underscores are preserved to
	// match the flat koanf tags. List keys are comma-separated.
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(k, v string) (string, interface{}) {
		key := strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
		if key == "kafka_brokers" {
			return key, splitList(v)
		}
		return key, v
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList parses "a, b,,c" into [a b c].
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks field constraints. Errors name the offending key.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("koanf")
	})

	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: %q fails %q", strings.ToUpper(EnvPrefix+fe.Field()), fmt.Sprint(fe.Value()), fe.Tag())
		}
		return fmt.Errorf("validate config: %w", err)
	}
	if c.Schedule > 0 && c.HTTPAddr == "" {
		return errors.New("invalid " + EnvPrefix + "HTTP_ADDR: required when SCHEDULE is set")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("invalid " + EnvPrefix + "KAFKA_TOPIC: required when KAFKA_BROKERS is set")
	}
	return nil
}

// KafkaEnabled reports whether frame notifications should be published.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }
