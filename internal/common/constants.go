package common

import "time"

// Environment variable keys
const (
	EnvConfigFile         = "CONFIG_FILE"
	EnvModelPath          = "MODEL_PATH"
	EnvDataPath           = "DATA_PATH"
	EnvPort               = "PORT"
	EnvLogLevel           = "LOG_LEVEL"
	EnvLogFormat          = "LOG_FORMAT"
	EnvReadTimeout        = "READ_TIMEOUT"
	EnvWriteTimeout       = "WRITE_TIMEOUT"
	EnvRedisAddr          = "REDIS_ADDR"
	EnvRedisPassword      = "REDIS_PASSWORD"
	EnvRedisDB            = "REDIS_DB"
	EnvGeoIPPath          = "GEOIP_PATH"
	EnvHighRiskCountries  = "HIGH_RISK_COUNTRIES"
	EnvKafkaBrokers       = "KAFKA_BROKERS"
	EnvKafkaTopic         = "KAFKA_TOPIC"
	EnvRapidWindow        = "RAPID_WINDOW"
	EnvHighValueThreshold = "HIGH_VALUE_THRESHOLD"
	EnvOddHourStart       = "ODD_HOUR_START"
	EnvOddHourEnd         = "ODD_HOUR_END"
	EnvTimezone           = "TIMEZONE"
	EnvReviewAbove        = "REVIEW_ABOVE"
	EnvRejectAbove        = "REJECT_ABOVE"
)

// Training defaults
const (
	DefaultArtifactName = "fraud_model_v2.bin"
	DefaultSamples      = 1000
	DefaultSeed         = 42
	DefaultTestFraction = 0.3
)

// Signal defaults
const (
	DefaultRapidWindow        = 10 * time.Minute
	DefaultHighValueThreshold = "500000"
	DefaultOddHourStart       = 23
	DefaultOddHourEnd         = 6
)

// Review bands, in percent of risk score
const (
	DefaultReviewAbove = 20
	DefaultRejectAbove = 80
)

// Server defaults
const (
	DefaultPort          = 8000
	DefaultReadTimeout   = 10 * time.Second
	DefaultWriteTimeout  = 10 * time.Second
	DefaultKafkaTopic    = "booking-assessments"
	DefaultRecentListing = 50
	MaxRecentListing     = 500
)
