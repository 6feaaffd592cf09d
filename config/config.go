package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned when the configuration fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

// Log file names inside paths.logs_dir
const (
	DetectionsFile = "detections.jsonl"
	AlertsFile     = "alerts.jsonl"
	OpsFile        = "ops.jsonl"
	DeadLetterFile = "dead_letter.jsonl"
	CursorFile     = "correlation_cursor.json"
)

// thresholdKeys have no defaults and must be configured explicitly
var thresholdKeys = []string{
	"thresholds.arp_window_sec",
	"thresholds.icmp_per_sec",
	"thresholds.dns_label_max",
	"thresholds.dns_name_max",
	"thresholds.dns_entropy_threshold",
}

// Thresholds holds the analyzer thresholds
type Thresholds struct {
	ARPWindowSec        int     `mapstructure:"arp_window_sec" yaml:"arp_window_sec" validate:"gt=0"`
	ICMPPerSec          int     `mapstructure:"icmp_per_sec" yaml:"icmp_per_sec" validate:"gt=0"`
	DNSLabelMax         int     `mapstructure:"dns_label_max" yaml:"dns_label_max" validate:"gt=0"`
	DNSNameMax          int     `mapstructure:"dns_name_max" yaml:"dns_name_max" validate:"gt=0"`
	DNSEntropyThreshold float64 `mapstructure:"dns_entropy_threshold" yaml:"dns_entropy_threshold" validate:"gt=0"`
}

// Rules holds the per-rule enable flags
type Rules struct {
	DNSSuspicious bool `mapstructure:"dns_suspicious" yaml:"dns_suspicious"`
	ICMPFlood     bool `mapstructure:"icmp_flood" yaml:"icmp_flood"`
	ARPSpoof      bool `mapstructure:"arp_spoof" yaml:"arp_spoof"`
	HTTPKeyword   bool `mapstructure:"http_keyword" yaml:"http_keyword"`
}

// Correlation holds the correlator rule parameters
type Correlation struct {
	BurstWindow     time.Duration `mapstructure:"burst_window" validate:"gt=0"`
	BurstThreshold  int           `mapstructure:"burst_threshold" validate:"gte=1"`
	RepeatThreshold int           `mapstructure:"repeat_threshold" validate:"gte=1"`
	Incremental     bool          `mapstructure:"incremental"`
}

// MarshalYAML renders the burst window as a duration string
func (c Correlation) MarshalYAML() (any, error) {
	return struct {
		BurstWindow     string `yaml:"burst_window"`
		BurstThreshold  int    `yaml:"burst_threshold"`
		RepeatThreshold int    `yaml:"repeat_threshold"`
		Incremental     bool   `yaml:"incremental"`
	}{c.BurstWindow.String(), c.BurstThreshold, c.RepeatThreshold, c.Incremental}, nil
}

// Paths holds file locations
type Paths struct {
	LogsDir string `mapstructure:"logs_dir" yaml:"logs_dir" validate:"required"`
}

// DetectionsPath returns the detection log location
func (p Paths) DetectionsPath() string { return filepath.Join(p.LogsDir, DetectionsFile) }

// AlertsPath returns the alert log location
func (p Paths) AlertsPath() string { return filepath.Join(p.LogsDir, AlertsFile) }

// OpsPath returns the operational log location
func (p Paths) OpsPath() string { return filepath.Join(p.LogsDir, OpsFile) }

// DeadLetterPath returns the dead-letter file location
func (p Paths) DeadLetterPath() string { return filepath.Join(p.LogsDir, DeadLetterFile) }

// CursorPath returns the correlation cursor location
func (p Paths) CursorPath() string { return filepath.Join(p.LogsDir, CursorFile) }

// Config holds all configuration for argus
type Config struct {
	Thresholds  Thresholds  `mapstructure:"thresholds" yaml:"thresholds"`
	Rules       Rules       `mapstructure:"rules" yaml:"rules"`
	Correlation Correlation `mapstructure:"correlation" yaml:"correlation"`
	Paths       Paths       `mapstructure:"paths" yaml:"paths"`

	Capture struct {
		Iface         string `mapstructure:"iface" yaml:"iface"`
		DryRun        bool   `mapstructure:"dry_run" yaml:"dry_run"`
		LogEveryEvent bool   `mapstructure:"log_every_event" yaml:"log_every_event"`
	} `mapstructure:"capture" yaml:"capture"`

	Engine struct {
		ChannelBufferSize int `mapstructure:"channel_buffer_size" yaml:"channel_buffer_size" validate:"gte=0"`
		DNSCacheSize      int `mapstructure:"dns_cache_size" yaml:"dns_cache_size" validate:"gte=0"`
	} `mapstructure:"engine" yaml:"engine"`

	Ingest struct {
		ReplayRate float64 `mapstructure:"replay_rate" yaml:"replay_rate" validate:"gte=0"`
	} `mapstructure:"ingest" yaml:"ingest"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
		Addr    string `mapstructure:"addr" yaml:"addr"`
	} `mapstructure:"metrics" yaml:"metrics"`

	Logging struct {
		Level   string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
		Console bool   `mapstructure:"console" yaml:"console"`
	} `mapstructure:"logging" yaml:"logging"`

	// Source is the config file that was read, empty when none was found
	Source string `mapstructure:"-" yaml:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rules.dns_suspicious", true)
	v.SetDefault("rules.icmp_flood", true)
	v.SetDefault("rules.arp_spoof", true)
	v.SetDefault("rules.http_keyword", true)

	v.SetDefault("correlation.burst_window", 60*time.Second)
	v.SetDefault("correlation.burst_threshold", 30)
	v.SetDefault("correlation.repeat_threshold", 50)
	v.SetDefault("correlation.incremental", true)

	v.SetDefault("paths.logs_dir", "./logs")

	v.SetDefault("capture.iface", "lo")
	v.SetDefault("capture.dry_run", false)
	v.SetDefault("capture.log_every_event", false)

	v.SetDefault("engine.channel_buffer_size", 1024)
	v.SetDefault("engine.dns_cache_size", 4096)

	v.SetDefault("ingest.replay_rate", 0)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "127.0.0.1:9108")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
}

// loadFromEnv sets up environment variable loading, e.g. ARGUS_THRESHOLDS_ICMP_PER_SEC
func loadFromEnv(v *viper.Viper) {
	v.SetEnvPrefix("ARGUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// keys without defaults must be bound to be picked up by Unmarshal
	for _, key := range thresholdKeys {
		_ = v.BindEnv(key)
	}
}

// Load reads configuration from path, or from config.yaml in the working
// directory or ./config when path is empty. Environment variables override
// file values. A missing default config file is not an error; a missing
// explicit one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)
	loadFromEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	for _, key := range thresholdKeys {
		if !v.IsSet(key) {
			return nil, fmt.Errorf("%w: missing %s", ErrInvalidConfig, key)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	config.Source = v.ConfigFileUsed()

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	config.Paths.LogsDir = filepath.Clean(config.Paths.LogsDir)

	return &config, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return val
}

// validateConfig validates struct tags and the constraints tags cannot express
func validateConfig(config *Config) error {
	if err := validate.Struct(config); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				field := strings.TrimPrefix(fe.Namespace(), "Config.")
				msgs = append(msgs, fmt.Sprintf("%s fails %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if config.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(config.Metrics.Addr); err != nil {
			return fmt.Errorf("%w: metrics.addr %q: %v", ErrInvalidConfig, config.Metrics.Addr, err)
		}
	}
	return nil
}
