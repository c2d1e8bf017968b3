package cfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"securestay-risk/internal/common"
)

var allEnvKeys = []string{
	common.EnvConfigFile, common.EnvModelPath, common.EnvDataPath, common.EnvPort,
	common.EnvLogLevel, common.EnvLogFormat, common.EnvReadTimeout, common.EnvWriteTimeout,
	common.EnvRedisAddr, common.EnvRedisPassword, common.EnvRedisDB, common.EnvGeoIPPath,
	common.EnvHighRiskCountries, common.EnvKafkaBrokers, common.EnvKafkaTopic,
	common.EnvRapidWindow, common.EnvHighValueThreshold, common.EnvOddHourStart,
	common.EnvOddHourEnd, common.EnvTimezone, common.EnvReviewAbove, common.EnvRejectAbove,
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allEnvKeys {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	s := Default()

	if s.ModelPath != common.DefaultArtifactName {
		t.Errorf("expected default model path %s, got %s", common.DefaultArtifactName, s.ModelPath)
	}
	if s.Port != common.DefaultPort {
		t.Errorf("expected default port %d, got %d", common.DefaultPort, s.Port)
	}
	if s.ReadTimeout != common.DefaultReadTimeout || s.WriteTimeout != common.DefaultWriteTimeout {
		t.Errorf("unexpected default timeouts %v/%v", s.ReadTimeout, s.WriteTimeout)
	}
	if s.Signals.RapidWindow != common.DefaultRapidWindow {
		t.Errorf("expected default rapid window, got %v", s.Signals.RapidWindow)
	}
	if s.Signals.HighValueThreshold != common.DefaultHighValueThreshold {
		t.Errorf("expected default high value threshold, got %s", s.Signals.HighValueThreshold)
	}
	if s.Signals.OddHourStart != common.DefaultOddHourStart || s.Signals.OddHourEnd != common.DefaultOddHourEnd {
		t.Errorf("unexpected odd hour window %d-%d", s.Signals.OddHourStart, s.Signals.OddHourEnd)
	}
	if s.Review.ReviewAbove != common.DefaultReviewAbove || s.Review.RejectAbove != common.DefaultRejectAbove {
		t.Errorf("unexpected review bands %d/%d", s.Review.ReviewAbove, s.Review.RejectAbove)
	}
	if s.Kafka.Topic != common.DefaultKafkaTopic {
		t.Errorf("expected default kafka topic, got %s", s.Kafka.Topic)
	}
	if err := validateSettings(&s); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "no environment uses defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, settings Settings) {
				if settings.Addr() != ":8000" {
					t.Errorf("expected addr :8000, got %s", settings.Addr())
				}
				if settings.LogLevel != "info" || settings.LogFormat != "json" {
					t.Errorf("unexpected log settings %s/%s", settings.LogLevel, settings.LogFormat)
				}
			},
		},
		{
			name: "custom settings",
			envVars: map[string]string{
				"MODEL_PATH":           "/models/fraud.bin",
				"PORT":                 "9090",
				"LOG_LEVEL":            "DEBUG",
				"REDIS_ADDR":           "localhost:6379",
				"REDIS_DB":             "2",
				"HIGH_RISK_COUNTRIES":  "NG, RU,,KP",
				"KAFKA_BROKERS":        "kafka-1:9092,kafka-2:9092",
				"RAPID_WINDOW":         "5m",
				"HIGH_VALUE_THRESHOLD": "750000.50",
				"TIMEZONE":             "Asia/Jakarta",
				"REVIEW_ABOVE":         "30",
				"REJECT_ABOVE":         "90",
			},
			validate: func(t *testing.T, settings Settings) {
				if settings.ModelPath != "/models/fraud.bin" {
					t.Errorf("expected model path override, got %s", settings.ModelPath)
				}
				if settings.Port != 9090 {
					t.Errorf("expected port 9090, got %d", settings.Port)
				}
				if settings.LogLevel != "debug" {
					t.Errorf("expected log level to be lowercased, got %s", settings.LogLevel)
				}
				if settings.Redis.Addr != "localhost:6379" || settings.Redis.DB != 2 {
					t.Errorf("unexpected redis settings %+v", settings.Redis)
				}
				if strings.Join(settings.GeoIP.HighRiskCountries, ",") != "NG,RU,KP" {
					t.Errorf("unexpected high risk countries %v", settings.GeoIP.HighRiskCountries)
				}
				if len(settings.Kafka.Brokers) != 2 {
					t.Errorf("expected 2 brokers, got %v", settings.Kafka.Brokers)
				}
				if settings.Signals.RapidWindow != 5*time.Minute {
					t.Errorf("expected rapid window 5m, got %v", settings.Signals.RapidWindow)
				}
				hv, err := settings.HighValueThreshold()
				if err != nil || hv.String() != "750000.5" {
					t.Errorf("unexpected high value threshold %v (%v)", hv, err)
				}
				loc, err := settings.Location()
				if err != nil || loc.String() != "Asia/Jakarta" {
					t.Errorf("unexpected location %v (%v)", loc, err)
				}
				if settings.Review.ReviewAbove != 30 || settings.Review.RejectAbove != 90 {
					t.Errorf("unexpected review bands %+v", settings.Review)
				}
			},
		},
		{
			name: "unparsable numbers keep defaults",
			envVars: map[string]string{
				"PORT":         "not-a-port",
				"RAPID_WINDOW": "soon",
			},
			validate: func(t *testing.T, settings Settings) {
				if settings.Port != 8000 {
					t.Errorf("expected default port, got %d", settings.Port)
				}
				if settings.Signals.RapidWindow != 10*time.Minute {
					t.Errorf("expected default rapid window, got %v", settings.Signals.RapidWindow)
				}
			},
		},
		{
			name:    "port out of range",
			envVars: map[string]string{"PORT": "70000"},
			wantErr: true,
		},
		{
			name:    "unknown log level",
			envVars: map[string]string{"LOG_LEVEL": "verbose"},
			wantErr: true,
		},
		{
			name:    "reject band not above review band",
			envVars: map[string]string{"REVIEW_ABOVE": "60", "REJECT_ABOVE": "60"},
			wantErr: true,
		},
		{
			name:    "unknown timezone",
			envVars: map[string]string{"TIMEZONE": "Mars/Olympus_Mons"},
			wantErr: true,
		},
		{
			name:    "empty odd hour window",
			envVars: map[string]string{"ODD_HOUR_START": "4", "ODD_HOUR_END": "4"},
			wantErr: true,
		},
		{
			name:    "odd hour out of range",
			envVars: map[string]string{"ODD_HOUR_END": "24"},
			wantErr: true,
		},
		{
			name:    "non numeric threshold",
			envVars: map[string]string{"HIGH_VALUE_THRESHOLD": "lots"},
			wantErr: true,
		},
		{
			name:    "bad country code",
			envVars: map[string]string{"HIGH_RISK_COUNTRIES": "NGA"},
			wantErr: true,
		},
		{
			name:    "bad broker address",
			envVars: map[string]string{"KAFKA_BROKERS": "kafka"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			settings, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	configContent := `
modelPath: /srv/models/fraud_model_v2.bin
dataPath: /srv/data
port: 8080
readTimeout: 5s
logFormat: console
redis:
  addr: redis:6379
geoip:
  path: /srv/GeoLite2-City.mmdb
  highRiskCountries: [NG, KP]
kafka:
  brokers: [kafka:9092]
  topic: risk-events
signals:
  rapidWindow: 15m
  oddHourStart: 22
  oddHourEnd: 5
  timezone: UTC
review:
  reviewAbove: 25
  rejectAbove: 75
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	clearEnv(t)
	t.Setenv("CONFIG_FILE", configPath)
	t.Setenv("PORT", "8081")

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if settings.ModelPath != "/srv/models/fraud_model_v2.bin" {
		t.Errorf("expected model path from file, got %s", settings.ModelPath)
	}
	if settings.Port != 8081 {
		t.Errorf("expected env to override file port, got %d", settings.Port)
	}
	if settings.ReadTimeout != 5*time.Second {
		t.Errorf("expected read timeout 5s, got %v", settings.ReadTimeout)
	}
	if settings.WriteTimeout != 10*time.Second {
		t.Errorf("expected default write timeout to survive, got %v", settings.WriteTimeout)
	}
	if settings.LogFormat != "console" {
		t.Errorf("expected console format, got %s", settings.LogFormat)
	}
	if settings.Redis.Addr != "redis:6379" {
		t.Errorf("unexpected redis addr %s", settings.Redis.Addr)
	}
	if len(settings.GeoIP.HighRiskCountries) != 2 {
		t.Errorf("unexpected high risk countries %v", settings.GeoIP.HighRiskCountries)
	}
	if settings.Kafka.Topic != "risk-events" {
		t.Errorf("unexpected kafka topic %s", settings.Kafka.Topic)
	}
	if settings.Signals.RapidWindow != 15*time.Minute {
		t.Errorf("expected rapid window 15m, got %v", settings.Signals.RapidWindow)
	}
	if settings.Signals.HighValueThreshold != "500000" {
		t.Errorf("expected default threshold to survive, got %s", settings.Signals.HighValueThreshold)
	}
	if loc, _ := settings.Location(); loc != time.UTC {
		t.Errorf("expected UTC location, got %v", loc)
	}
	if settings.Review.RejectAbove != 75 {
		t.Errorf("expected reject band 75, got %d", settings.Review.RejectAbove)
	}
}

func TestLoadFromYAML_Errors(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}

	badPath := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(badPath, []byte("port: [oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", badPath)
	if _, err := Load(); err == nil {
		t.Error("expected error for malformed config file")
	}
}

func TestLocation_Local(t *testing.T) {
	s := Default()
	loc, err := s.Location()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc != time.Local {
		t.Errorf("expected time.Local, got %v", loc)
	}
}

func TestSettings_Conversions(t *testing.T) {
	clearEnv(t)
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("REVIEW_ABOVE", "35")
	t.Setenv("ODD_HOUR_START", "1")
	t.Setenv("ODD_HOUR_END", "4")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	ec, err := s.ExtractorConfig()
	if err != nil {
		t.Fatalf("ExtractorConfig() failed: %v", err)
	}
	if ec.Location != time.UTC {
		t.Errorf("expected UTC, got %v", ec.Location)
	}
	if ec.OddHourStart != 1 || ec.OddHourEnd != 4 {
		t.Errorf("unexpected odd hours %d-%d", ec.OddHourStart, ec.OddHourEnd)
	}
	if !ec.HighValueThreshold.Equal(decimal.NewFromInt(500000)) {
		t.Errorf("unexpected threshold %s", ec.HighValueThreshold)
	}
	if ec.RapidWindow != 10*time.Minute {
		t.Errorf("unexpected rapid window %v", ec.RapidWindow)
	}

	p := s.Policy()
	if p.ReviewAbove != 35 || p.RejectAbove != 80 {
		t.Errorf("unexpected policy bands %+v", p)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("policy should validate: %v", err)
	}
}
