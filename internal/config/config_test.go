package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.HTTPPort != "8080" || cfg.Server.GRPCPort != "50055" {
		t.Fatalf("unexpected ports %q %q", cfg.Server.HTTPPort, cfg.Server.GRPCPort)
	}
	if cfg.Kafka.Topic != "appointment_topic" {
		t.Fatalf("unexpected topic %q", cfg.Kafka.Topic)
	}
	if cfg.Clinic.BillDueDays != 30 {
		t.Fatalf("unexpected due days %d", cfg.Clinic.BillDueDays)
	}
	if cfg.TokenTTL() != time.Hour {
		t.Fatalf("unexpected ttl %s", cfg.TokenTTL())
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yml")
	yml := "clinic:\n  timezone: Asia/Kolkata\n  billduedays: 14\nratelimit:\n  limit: 3\n"
	if err := os.WriteFile(file, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RATE_LIMIT", "7")
	t.Setenv("KAFKA_BROKER", "k1:9092, k2:9092,")

	cfg, err := Load(file)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Clinic.Timezone != "Asia/Kolkata" || cfg.Clinic.BillDueDays != 14 {
		t.Fatalf("file values not applied: %+v", cfg.Clinic)
	}
	if cfg.RateLimit.Limit != 7 {
		t.Fatalf("env should override file, got %d", cfg.RateLimit.Limit)
	}
	if got := cfg.KafkaBrokers(); !reflect.DeepEqual(got, []string{"k1:9092", "k2:9092"}) {
		t.Fatalf("unexpected brokers %v", got)
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing secret to fail")
	}
	cfg.Auth.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	cfg.DB.Driver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unsupported driver to fail")
	}
	cfg.DB.Driver = "sqlite"
	cfg.Clinic.Timezone = "Mars/Olympus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected bad timezone to fail")
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{}
	cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode =
		"db", "5432", "app", "pw", "hospital", "disable"
	want := "host=db port=5432 user=app password=pw dbname=hospital sslmode=disable"
	if cfg.DSN() != want {
		t.Fatalf("got %q", cfg.DSN())
	}
}
