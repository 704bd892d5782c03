package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log          LogConfig          `yaml:"log"`
	HTTP         HTTPConfig         `yaml:"http"`
	Flights      DatabaseConfig     `yaml:"flights_database"`
	Bookings     DatabaseConfig     `yaml:"bookings_database"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	RabbitMQ     RabbitMQConfig     `yaml:"rabbitmq"`
	FlightClient FlightClientConfig `yaml:"flight_client"`
	Booking      BookingConfig      `yaml:"booking"`
	Worker       WorkerConfig       `yaml:"worker"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type HTTPConfig struct {
	FlightAddress  string   `yaml:"flight_address"`
	BookingAddress string   `yaml:"booking_address"`
	Mode           string   `yaml:"mode"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN prefers an explicit URL over the discrete fields.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// FlightsTTL bounds how long flight reads are served from cache.
	FlightsTTL time.Duration `yaml:"flights_ttl"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingTopic       string   `yaml:"booking_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type RabbitMQConfig struct {
	URL          string `yaml:"url"`
	ReleaseQueue string `yaml:"release_queue"`
}

type FlightClientConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier"`
}

type BreakerConfig struct {
	WindowSize           int           `yaml:"window_size"`
	MinimumCalls         int           `yaml:"minimum_calls"`
	FailureRateThreshold float64       `yaml:"failure_rate_threshold"`
	OpenTimeout          time.Duration `yaml:"open_timeout"`
	HalfOpenMaxCalls     int           `yaml:"half_open_max_calls"`
}

type BookingConfig struct {
	MaxSeats           int           `yaml:"max_seats"`
	CancellationWindow time.Duration `yaml:"cancellation_window"`
	TimeZone           string        `yaml:"time_zone"`
}

// Location resolves TimeZone, falling back to the process zone.
func (b BookingConfig) Location() (*time.Location, error) {
	if b.TimeZone == "" || strings.EqualFold(b.TimeZone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(b.TimeZone)
}

type WorkerConfig struct {
	MaxReleaseAttempts int           `yaml:"max_release_attempts"`
	ReleaseRetryDelay  time.Duration `yaml:"release_retry_delay"`
}

// LoadConfig reads an optional .env file, the YAML file at path and then
// applies environment overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Flights.URL, "FLIGHTS_DATABASE_URL")
	setString(&c.Bookings.URL, "BOOKINGS_DATABASE_URL")
	setString(&c.FlightClient.BaseURL, "FLIGHT_SERVICE_URL")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.RabbitMQ.URL, "RABBITMQ_URL")
	setString(&c.Log.Level, "LOG_LEVEL")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.FlightAddress == "" {
		c.HTTP.FlightAddress = ":8081"
	}
	if c.HTTP.BookingAddress == "" {
		c.HTTP.BookingAddress = ":8082"
	}
	if c.Redis.FlightsTTL == 0 {
		c.Redis.FlightsTTL = 30 * time.Second
	}
	if c.RabbitMQ.ReleaseQueue == "" {
		c.RabbitMQ.ReleaseQueue = "seat.release.pending"
	}
	if c.FlightClient.BaseURL == "" {
		c.FlightClient.BaseURL = "http://localhost:8081"
	}
	if c.FlightClient.Timeout == 0 {
		c.FlightClient.Timeout = 3 * time.Second
	}

	r := &c.FlightClient.Retry
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.InitialBackoff == 0 {
		r.InitialBackoff = 200 * time.Millisecond
	}
	if r.MaxBackoff == 0 {
		r.MaxBackoff = 2 * time.Second
	}
	if r.Multiplier == 0 {
		r.Multiplier = 2
	}

	b := &c.FlightClient.Breaker
	if b.WindowSize == 0 {
		b.WindowSize = 10
	}
	if b.MinimumCalls == 0 {
		b.MinimumCalls = 5
	}
	if b.FailureRateThreshold == 0 {
		b.FailureRateThreshold = 0.5
	}
	if b.OpenTimeout == 0 {
		b.OpenTimeout = 30 * time.Second
	}
	if b.HalfOpenMaxCalls == 0 {
		b.HalfOpenMaxCalls = 3
	}

	if c.Booking.MaxSeats == 0 {
		c.Booking.MaxSeats = 10
	}
	if c.Booking.CancellationWindow == 0 {
		c.Booking.CancellationWindow = 24 * time.Hour
	}
	if c.Worker.MaxReleaseAttempts == 0 {
		c.Worker.MaxReleaseAttempts = 5
	}
	if c.Worker.ReleaseRetryDelay == 0 {
		c.Worker.ReleaseRetryDelay = 30 * time.Second
	}
}

func (c *Config) Validate() error {
	var errs []error
	r := c.FlightClient.Retry
	if r.MaxAttempts < 1 {
		errs = append(errs, errors.New("flight_client.retry.max_attempts must be at least 1"))
	}
	if r.Multiplier < 1 {
		errs = append(errs, errors.New("flight_client.retry.multiplier must be >= 1"))
	}
	b := c.FlightClient.Breaker
	if b.FailureRateThreshold <= 0 || b.FailureRateThreshold > 1 {
		errs = append(errs, errors.New("flight_client.breaker.failure_rate_threshold must be in (0, 1]"))
	}
	if b.MinimumCalls > b.WindowSize {
		errs = append(errs, errors.New("flight_client.breaker.minimum_calls must not exceed window_size"))
	}
	if c.Booking.MaxSeats < 1 {
		errs = append(errs, errors.New("booking.max_seats must be positive"))
	}
	if _, err := c.Booking.Location(); err != nil {
		errs = append(errs, fmt.Errorf("booking.time_zone: %w", err))
	}
	return errors.Join(errs...)
}
