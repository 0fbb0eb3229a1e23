package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jinzhu/configor"
	"github.com/joho/godotenv"
)

type Config struct {
	Server struct {
		HTTPPort string `default:"8080" env:"HTTP_PORT"`
		GRPCPort string `default:"50055" env:"APPT_PORT"`
		LogLevel string `default:"info" env:"LOG_LEVEL"`
		// seconds allowed for in-flight requests on shutdown
		ShutdownTimeout int `default:"30" env:"SHUTDOWN_TIMEOUT"`
	}

	DB struct {
		Driver   string `default:"postgres" env:"DB_DRIVER"`
		Host     string `default:"localhost" env:"DB_HOST"`
		Port     string `default:"5432" env:"DB_PORT"`
		User     string `default:"postgres" env:"DB_USER"`
		Password string `env:"DB_PASSWORD"`
		Name     string `default:"hospital" env:"DB_NAME"`
		SSLMode  string `default:"disable" env:"DB_SSLMODE"`
		// Path is the sqlite database file when Driver is sqlite.
		Path         string `default:"hospital.db" env:"DB_PATH"`
		MaxOpenConns int    `default:"25" env:"DB_MAX_OPEN_CONNS"`
		MaxIdleConns int    `default:"5" env:"DB_MAX_IDLE_CONNS"`
	}

	Kafka struct {
		Enabled bool   `env:"KAFKA_ENABLED"`
		Brokers string `default:"localhost:9092" env:"KAFKA_BROKER"`
		Topic   string `default:"appointment_topic" env:"KAFKA_TOPIC"`
	}

	Redis struct {
		Addr     string `env:"REDIS_ADDR"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB"`
	}

	Auth struct {
		JWTSecret       string `env:"JWT_SECRET"`
		TokenTTLMinutes int    `default:"60" env:"JWT_TTL_MINUTES"`
	}

	RateLimit struct {
		Limit         int `default:"10" env:"RATE_LIMIT"`
		WindowSeconds int `default:"60" env:"RATE_LIMIT_WINDOW"`
	}

	Clinic struct {
		Timezone       string `default:"UTC" env:"CLINIC_TIMEZONE"`
		PasswordPolicy string `default:"standard" env:"PASSWORD_POLICY"`
		BillDueDays    int    `default:"30" env:"BILL_DUE_DAYS"`
	}
}

// LoadEnv loads a .env file into the process environment when one exists.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}
}

// Load reads the given YAML files, then environment overrides, then defaults.
// Files that do not exist are skipped.
func Load(files ...string) (*Config, error) {
	present := make([]string, 0, len(files))
	for _, f := range files {
		if info, err := os.Stat(f); err == nil && info.Mode().IsRegular() {
			present = append(present, f)
		}
	}
	cfg := &Config{}
	if err := configor.New(&configor.Config{ENVPrefix: "-", Silent: true}).Load(cfg, present...); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Location resolves the clinic time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Clinic.Timezone)
	if err != nil {
		return nil, fmt.Errorf("clinic timezone %q: %w", c.Clinic.Timezone, err)
	}
	return loc, nil
}

// KafkaBrokers splits the comma separated broker list.
func (c *Config) KafkaBrokers() []string {
	var out []string
	for _, b := range strings.Split(c.Kafka.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET not set")
	}
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
