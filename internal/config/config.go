package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tutorly/service-learning/pkg/config"
)

// GatewayConfig bounds calls to the payment gateway.
type GatewayConfig struct {
	Timeout time.Duration
	Latency time.Duration
}

// MeetingConfig configures the video meeting provider.
type MeetingConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NotifierConfig bounds background delivery of notifications.
type NotifierConfig struct {
	Timeout     time.Duration
	MaxInFlight int
}

// BookingConfig holds pricing, expiry and serialization settings for the booking lifecycle.
type BookingConfig struct {
	PlatformFeePercent float64
	Currency           string
	PendingTTL         time.Duration
	PaymentTTL         time.Duration
	ExpiryInterval     time.Duration
	ExpiryBatch        int
	LockTTL            time.Duration
	LockWait           time.Duration
}

// ServiceConfig holds all configuration for the learning service.
type ServiceConfig struct {
	Port          string
	AppEnv        string
	ServiceName   string
	DBConfig      config.DatabaseConfig
	JWTConfig     config.JWTConfig
	KafkaConfig   config.KafkaConfig
	RedisConfig   config.RedisConfig
	Gateway       GatewayConfig
	Meeting       MeetingConfig
	Booking       BookingConfig
	Notifier      NotifierConfig
	MigrationsDir string
}

// Load reads configuration from environment variables and returns a ServiceConfig.
func Load() (*ServiceConfig, error) {
	v, err := config.Load("learning")
	if err != nil {
		return nil, err
	}
	setDefaults(v)

	cfg := &ServiceConfig{
		Port:          config.GetServicePort(v, "SERVICE_PORT"),
		AppEnv:        config.GetAppEnv(v),
		ServiceName:   v.GetString("SERVICE_NAME"),
		DBConfig:      config.LoadDatabaseConfig(v, "DB_NAME"),
		JWTConfig:     config.LoadJWTConfig(v),
		KafkaConfig:   config.LoadKafkaConfig(v),
		RedisConfig:   config.LoadRedisConfig(v),
		Gateway:       loadGatewayConfig(v),
		Meeting:       loadMeetingConfig(v),
		Booking:       loadBookingConfig(v),
		Notifier:      loadNotifierConfig(v),
		MigrationsDir: v.GetString("MIGRATIONS_DIR"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_NAME", "learning")
	v.SetDefault("PLATFORM_FEE_PERCENT", 15.0)
	v.SetDefault("CURRENCY", "USD")
	v.SetDefault("GATEWAY_TIMEOUT", "10s")
	v.SetDefault("GATEWAY_MOCK_LATENCY", "0s")
	v.SetDefault("MEETING_BASE_URL", "https://meet.tutorly.local")
	v.SetDefault("MEETING_TIMEOUT", "5s")
	v.SetDefault("PENDING_BOOKING_TTL", "30m")
	v.SetDefault("PENDING_PAYMENT_TTL", "15m")
	v.SetDefault("EXPIRY_INTERVAL", "1m")
	v.SetDefault("EXPIRY_BATCH", 100)
	v.SetDefault("LOCK_TTL", "15s")
	v.SetDefault("LOCK_WAIT", "5s")
	v.SetDefault("NOTIFY_TIMEOUT", "5s")
	v.SetDefault("NOTIFY_MAX_IN_FLIGHT", 256)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
}

func loadGatewayConfig(v *viper.Viper) GatewayConfig {
	return GatewayConfig{
		Timeout: v.GetDuration("GATEWAY_TIMEOUT"),
		Latency: v.GetDuration("GATEWAY_MOCK_LATENCY"),
	}
}

func loadMeetingConfig(v *viper.Viper) MeetingConfig {
	return MeetingConfig{
		BaseURL: v.GetString("MEETING_BASE_URL"),
		Timeout: v.GetDuration("MEETING_TIMEOUT"),
	}
}

func loadBookingConfig(v *viper.Viper) BookingConfig {
	return BookingConfig{
		PlatformFeePercent: v.GetFloat64("PLATFORM_FEE_PERCENT"),
		Currency:           strings.ToUpper(v.GetString("CURRENCY")),
		PendingTTL:         v.GetDuration("PENDING_BOOKING_TTL"),
		PaymentTTL:         v.GetDuration("PENDING_PAYMENT_TTL"),
		ExpiryInterval:     v.GetDuration("EXPIRY_INTERVAL"),
		ExpiryBatch:        v.GetInt("EXPIRY_BATCH"),
		LockTTL:            v.GetDuration("LOCK_TTL"),
		LockWait:           v.GetDuration("LOCK_WAIT"),
	}
}

func loadNotifierConfig(v *viper.Viper) NotifierConfig {
	return NotifierConfig{
		Timeout:     v.GetDuration("NOTIFY_TIMEOUT"),
		MaxInFlight: v.GetInt("NOTIFY_MAX_IN_FLIGHT"),
	}
}

func (c *ServiceConfig) validate() error {
	if c.Booking.PlatformFeePercent < 0 || c.Booking.PlatformFeePercent >= 100 {
		return fmt.Errorf("PLATFORM_FEE_PERCENT must be in [0, 100), got %v", c.Booking.PlatformFeePercent)
	}
	for name, d := range map[string]time.Duration{
		"GATEWAY_TIMEOUT":     c.Gateway.Timeout,
		"MEETING_TIMEOUT":     c.Meeting.Timeout,
		"PENDING_BOOKING_TTL": c.Booking.PendingTTL,
		"PENDING_PAYMENT_TTL": c.Booking.PaymentTTL,
		"NOTIFY_TIMEOUT":      c.Notifier.Timeout,
		"EXPIRY_INTERVAL":     c.Booking.ExpiryInterval,
		"LOCK_TTL":            c.Booking.LockTTL,
		"LOCK_WAIT":           c.Booking.LockWait,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	if c.Booking.ExpiryBatch <= 0 {
		return fmt.Errorf("EXPIRY_BATCH must be positive")
	}
	if c.Notifier.MaxInFlight <= 0 {
		return fmt.Errorf("NOTIFY_MAX_IN_FLIGHT must be positive")
	}
	// An attempt may only be expired once no charge for it can still be in flight.
	if c.Booking.PaymentTTL <= c.Gateway.Timeout {
		return fmt.Errorf("PENDING_PAYMENT_TTL must exceed GATEWAY_TIMEOUT")
	}
	return nil
}
