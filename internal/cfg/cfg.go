// Package cfg loads service settings from struct defaults, an optional YAML
// file named by CONFIG_FILE and environment overrides, in that order.
package cfg

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zoneinfo for minimal images

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"securestay-risk/internal/assess"
	"securestay-risk/internal/common"
	"securestay-risk/internal/features"
)

type Settings struct {
	ModelPath    string        `yaml:"modelPath" default:"fraud_model_v2.bin" validate:"required"`
	DataPath     string        `yaml:"dataPath" default:"data" validate:"required"`
	Port         int           `yaml:"port" default:"8000" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `yaml:"readTimeout" default:"10s" validate:"gt=0"`
	WriteTimeout time.Duration `yaml:"writeTimeout" default:"10s" validate:"gt=0"`
	LogLevel     string        `yaml:"logLevel" default:"info" validate:"oneof=trace debug info warn error"`
	LogFormat    string        `yaml:"logFormat" default:"json" validate:"oneof=json console"`

	Redis   RedisSettings  `yaml:"redis"`
	GeoIP   GeoIPSettings  `yaml:"geoip"`
	Kafka   KafkaSettings  `yaml:"kafka"`
	Signals SignalSettings `yaml:"signals"`
	Review  ReviewSettings `yaml:"review"`
}

// RedisSettings enables shared attempt history when Addr is set.
type RedisSettings struct {
	Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" default:"0" validate:"min=0"`
}

// GeoIPSettings enables IP based signals when Path is set.
type GeoIPSettings struct {
	Path              string   `yaml:"path"`
	HighRiskCountries []string `yaml:"highRiskCountries" validate:"dive,len=2"`
}

// KafkaSettings enables assessment events when Brokers is non-empty.
type KafkaSettings struct {
	Brokers []string `yaml:"brokers" validate:"dive,hostname_port"`
	Topic   string   `yaml:"topic" default:"booking-assessments" validate:"required"`
}

type SignalSettings struct {
	RapidWindow        time.Duration `yaml:"rapidWindow" default:"10m" validate:"gt=0"`
	HighValueThreshold string        `yaml:"highValueThreshold" default:"500000" validate:"required,numeric"`
	OddHourStart       int           `yaml:"oddHourStart" default:"23" validate:"min=0,max=23"`
	OddHourEnd         int           `yaml:"oddHourEnd" default:"6" validate:"min=0,max=23"`
	Timezone           string        `yaml:"timezone" default:"Local" validate:"required"`
}

// ReviewSettings are the decision bands in percent.
type ReviewSettings struct {
	ReviewAbove int `yaml:"reviewAbove" default:"20" validate:"min=0,max=100"`
	RejectAbove int `yaml:"rejectAbove" default:"80" validate:"min=0,max=100,gtfield=ReviewAbove"`
}

var validate = validator.New()

// Default returns the settings with only struct defaults applied.
func Default() Settings {
	var s Settings
	if err := defaults.Set(&s); err != nil {
		panic(fmt.Sprintf("invalid default tags: %v", err))
	}
	return s
}

func Load() (Settings, error) {
	s := Default()

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		if err := loadFromYAML(configPath, &s); err != nil {
			return Settings{}, err
		}
	}

	applyEnv(&s)

	if err := validateSettings(&s); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return s, nil
}

func loadFromYAML(path string, s *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnv(s *Settings) {
	s.ModelPath = getEnvOrDefault(common.EnvModelPath, s.ModelPath)
	s.DataPath = getEnvOrDefault(common.EnvDataPath, s.DataPath)
	s.Port = getIntOrDefault(common.EnvPort, s.Port)
	s.ReadTimeout = getDurationOrDefault(common.EnvReadTimeout, s.ReadTimeout)
	s.WriteTimeout = getDurationOrDefault(common.EnvWriteTimeout, s.WriteTimeout)
	s.LogLevel = strings.ToLower(getEnvOrDefault(common.EnvLogLevel, s.LogLevel))
	s.LogFormat = strings.ToLower(getEnvOrDefault(common.EnvLogFormat, s.LogFormat))

	s.Redis.Addr = getEnvOrDefault(common.EnvRedisAddr, s.Redis.Addr)
	s.Redis.Password = getEnvOrDefault(common.EnvRedisPassword, s.Redis.Password)
	s.Redis.DB = getIntOrDefault(common.EnvRedisDB, s.Redis.DB)

	s.GeoIP.Path = getEnvOrDefault(common.EnvGeoIPPath, s.GeoIP.Path)
	s.GeoIP.HighRiskCountries = splitOrDefault(os.Getenv(common.EnvHighRiskCountries), s.GeoIP.HighRiskCountries)

	s.Kafka.Brokers = splitOrDefault(os.Getenv(common.EnvKafkaBrokers), s.Kafka.Brokers)
	s.Kafka.Topic = getEnvOrDefault(common.EnvKafkaTopic, s.Kafka.Topic)

	s.Signals.RapidWindow = getDurationOrDefault(common.EnvRapidWindow, s.Signals.RapidWindow)
	s.Signals.HighValueThreshold = getEnvOrDefault(common.EnvHighValueThreshold, s.Signals.HighValueThreshold)
	s.Signals.OddHourStart = getIntOrDefault(common.EnvOddHourStart, s.Signals.OddHourStart)
	s.Signals.OddHourEnd = getIntOrDefault(common.EnvOddHourEnd, s.Signals.OddHourEnd)
	s.Signals.Timezone = getEnvOrDefault(common.EnvTimezone, s.Signals.Timezone)

	s.Review.ReviewAbove = getIntOrDefault(common.EnvReviewAbove, s.Review.ReviewAbove)
	s.Review.RejectAbove = getIntOrDefault(common.EnvRejectAbove, s.Review.RejectAbove)
}

// Location resolves the configured timezone.
func (s *Settings) Location() (*time.Location, error) {
	if s.Signals.Timezone == "" || s.Signals.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Signals.Timezone)
}

// HighValueThreshold parses the configured booking amount threshold.
func (s *Settings) HighValueThreshold() (decimal.Decimal, error) {
	return decimal.NewFromString(s.Signals.HighValueThreshold)
}

// Addr is the HTTP listen address.
func (s *Settings) Addr() string {
	return ":" + strconv.Itoa(s.Port)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// validateSettings runs the struct tag rules plus the checks tags cannot express.
func validateSettings(s *Settings) error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if _, err := s.Location(); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", s.Signals.Timezone, err)
	}
	if _, err := s.HighValueThreshold(); err != nil {
		return fmt.Errorf("invalid high value threshold: %w", err)
	}
	if s.Signals.OddHourStart == s.Signals.OddHourEnd {
		return fmt.Errorf("odd hour window start and end must differ, both are %d", s.Signals.OddHourStart)
	}
	return nil
}

// ExtractorConfig converts the signal settings. Load has already validated them.
func (s *Settings) ExtractorConfig() (features.ExtractorConfig, error) {
	loc, err := s.Location()
	if err != nil {
		return features.ExtractorConfig{}, err
	}
	threshold, err := s.HighValueThreshold()
	if err != nil {
		return features.ExtractorConfig{}, err
	}
	return features.ExtractorConfig{
		HighValueThreshold: threshold,
		OddHourStart:       s.Signals.OddHourStart,
		OddHourEnd:         s.Signals.OddHourEnd,
		RapidWindow:        s.Signals.RapidWindow,
		Location:           loc,
	}, nil
}

func (s *Settings) Policy() assess.Policy {
	p := assess.DefaultPolicy()
	p.ReviewAbove = s.Review.ReviewAbove
	p.RejectAbove = s.Review.RejectAbove
	return p
}
