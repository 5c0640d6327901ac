package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the API server
type Config struct {
	// HTTP
	Port               string   `mapstructure:"port" validate:"required,numeric"`
	CORSAllowedOrigins []string `mapstructure:"-"`
	StaticDir          string   `mapstructure:"static_dir"`

	// Driver ingest auth
	APIKey string `mapstructure:"api_key"`

	// Store
	StoreBackend string `mapstructure:"store_backend" validate:"oneof=memory sqlite postgres"`
	SQLitePath   string `mapstructure:"sqlite_database" validate:"required_if=StoreBackend sqlite"`
	DatabaseURL  string `mapstructure:"database_url" validate:"required_if=StoreBackend postgres"`

	// Route reference points (YAML). Empty uses the built-in table.
	RoutesFile string `mapstructure:"routes_file"`

	// Load the sample fleet at startup
	SeedFixtures bool `mapstructure:"seed_fixtures"`

	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Logging LoggingConfig `mapstructure:"log"`
}

// MQTTConfig configures the optional MQTT ingest subscriber.
// Disabled when Broker is empty.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id" validate:"required"`
	Topic    string `mapstructure:"topic" validate:"required"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Enabled reports whether an MQTT broker is configured
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// LoggingConfig selects logrus level and formatter
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// Load reads configuration from .env files, an optional config file and the environment.
// Environment variables win over the file; nested keys use underscores (MQTT_BROKER, LOG_LEVEL).
func Load(configPath string) (*Config, error) {
	// Load base .env first, then .env.local (which overrides for local development)
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	v := viper.New()

	v.SetDefault("port", "3001")
	v.SetDefault("static_dir", "")
	v.SetDefault("api_key", "")
	v.SetDefault("store_backend", "memory")
	v.SetDefault("sqlite_database", "data/bus_tracker.db")
	v.SetDefault("database_url", "")
	v.SetDefault("routes_file", "")
	v.SetDefault("seed_fixtures", false)
	v.SetDefault("cors_allowed_origins", "http://localhost:5173")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "bus-tracker-api")
	v.SetDefault("mqtt.topic", "bus-tracker/driver/+/location")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	cfg.CORSAllowedOrigins = splitList(v.GetString("cors_allowed_origins"))

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
