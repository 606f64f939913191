package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	SMTP      SMTPConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Redis     RedisConfig
	MQTT      MQTTConfig
	Device    DeviceConfig
	Schedule  ScheduleConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port        string
	Host        string
	Environment string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	Secret             string
	ExpiryHours        int
	RefreshExpiryHours int
}

type SMTPConfig struct {
	Enabled        bool
	Host           string
	Port           int
	User           string
	Password       string
	From           string
	UseTLS         bool
	TimeoutSeconds int
}

type RateLimitConfig struct {
	GeneralRPS   float64 // Requests per second for general endpoints
	GeneralBurst int     // Burst size for general endpoints
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

type RedisConfig struct {
	Enabled      bool
	Addr         string
	Username     string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

type MQTTConfig struct {
	Enabled        bool
	Broker         string
	ClientID       string
	Username       string
	Password       string
	HeartbeatTopic string
	DoseTopic      string
	QoS            int
	Workers        int
	BufferSize     int
}

type DeviceConfig struct {
	// APIKey is the shared bearer secret every dispenser presents.
	APIKey          string
	OnlineThreshold time.Duration
}

type ScheduleConfig struct {
	Timezone    string
	GraceWindow time.Duration
	RetryWindow time.Duration
	Horizon     time.Duration
}

type LogConfig struct {
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func setDefaults() {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("JWT_EXPIRY_HOURS", 24*7)
	viper.SetDefault("JWT_REFRESH_EXPIRY_HOURS", 24*30)
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("SMTP_TIMEOUT_SECONDS", 10)
	viper.SetDefault("RATE_LIMIT_GENERAL_RPS", 20)
	viper.SetDefault("RATE_LIMIT_GENERAL_BURST", 40)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", []string{"*"})
	viper.SetDefault("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	viper.SetDefault("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"})
	viper.SetDefault("CORS_EXPOSED_HEADERS", []string{"X-Request-ID"})
	viper.SetDefault("CORS_MAX_AGE", 43200)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_POOL_SIZE", 10)
	viper.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	viper.SetDefault("MQTT_CLIENT_ID", "medication-adherence-monitor")
	viper.SetDefault("MQTT_HEARTBEAT_TOPIC", "devices/+/heartbeat")
	viper.SetDefault("MQTT_DOSE_TOPIC", "devices/+/dose")
	viper.SetDefault("MQTT_QOS", 1)
	viper.SetDefault("MQTT_WORKERS", 4)
	viper.SetDefault("MQTT_BUFFER_SIZE", 256)
	viper.SetDefault("DEVICE_ONLINE_THRESHOLD", "10m")
	viper.SetDefault("SCHEDULE_TIMEZONE", "Local")
	viper.SetDefault("SCHEDULE_GRACE_WINDOW", "30m")
	viper.SetDefault("SCHEDULE_RETRY_WINDOW", "5m")
	viper.SetDefault("SCHEDULE_HORIZON", "24h")
	viper.SetDefault("LOG_MAX_SIZE_MB", 100)
	viper.SetDefault("LOG_MAX_BACKUPS", 5)
	viper.SetDefault("LOG_MAX_AGE_DAYS", 28)
}

// Load reads the given env file (".env" when empty) and overlays the process environment.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ".env"
	}

	viper.SetConfigFile(path)
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	if homeDir, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(homeDir)
	}
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Printf("Warning: config file not found: %v. Falling back to environment variables only.", err)
	}

	config := &Config{
		Server: ServerConfig{
			Port:        viper.GetString("SERVER_PORT"),
			Host:        viper.GetString("SERVER_HOST"),
			Environment: viper.GetString("ENVIRONMENT"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			DBName:   viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		JWT: JWTConfig{
			Secret:             viper.GetString("JWT_SECRET"),
			ExpiryHours:        viper.GetInt("JWT_EXPIRY_HOURS"),
			RefreshExpiryHours: viper.GetInt("JWT_REFRESH_EXPIRY_HOURS"),
		},
		SMTP: SMTPConfig{
			Enabled:        viper.GetBool("SMTP_ENABLED"),
			Host:           viper.GetString("SMTP_HOST"),
			Port:           viper.GetInt("SMTP_PORT"),
			User:           viper.GetString("SMTP_USER"),
			Password:       viper.GetString("SMTP_PASSWORD"),
			From:           viper.GetString("SMTP_FROM"),
			UseTLS:         viper.GetBool("SMTP_USE_TLS"),
			TimeoutSeconds: viper.GetInt("SMTP_TIMEOUT_SECONDS"),
		},
		RateLimit: RateLimitConfig{
			GeneralRPS:   viper.GetFloat64("RATE_LIMIT_GENERAL_RPS"),
			GeneralBurst: viper.GetInt("RATE_LIMIT_GENERAL_BURST"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   viper.GetStringSlice("CORS_ALLOWED_ORIGINS"),
			AllowedMethods:   viper.GetStringSlice("CORS_ALLOWED_METHODS"),
			AllowedHeaders:   viper.GetStringSlice("CORS_ALLOWED_HEADERS"),
			ExposedHeaders:   viper.GetStringSlice("CORS_EXPOSED_HEADERS"),
			AllowCredentials: viper.GetBool("CORS_ALLOW_CREDENTIALS"),
			MaxAge:           viper.GetInt("CORS_MAX_AGE"),
		},
		Redis: RedisConfig{
			Enabled:      viper.GetBool("REDIS_ENABLED"),
			Addr:         viper.GetString("REDIS_ADDR"),
			Username:     viper.GetString("REDIS_USERNAME"),
			Password:     viper.GetString("REDIS_PASSWORD"),
			DB:           viper.GetInt("REDIS_DB"),
			PoolSize:     viper.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: viper.GetInt("REDIS_MIN_IDLE_CONNS"),
		},
		MQTT: MQTTConfig{
			Enabled:        viper.GetBool("MQTT_ENABLED"),
			Broker:         viper.GetString("MQTT_BROKER"),
			ClientID:       viper.GetString("MQTT_CLIENT_ID"),
			Username:       viper.GetString("MQTT_USERNAME"),
			Password:       viper.GetString("MQTT_PASSWORD"),
			HeartbeatTopic: viper.GetString("MQTT_HEARTBEAT_TOPIC"),
			DoseTopic:      viper.GetString("MQTT_DOSE_TOPIC"),
			QoS:            viper.GetInt("MQTT_QOS"),
			Workers:        viper.GetInt("MQTT_WORKERS"),
			BufferSize:     viper.GetInt("MQTT_BUFFER_SIZE"),
		},
		Device: DeviceConfig{
			APIKey:          viper.GetString("DEVICE_API_KEY"),
			OnlineThreshold: viper.GetDuration("DEVICE_ONLINE_THRESHOLD"),
		},
		Schedule: ScheduleConfig{
			Timezone:    viper.GetString("SCHEDULE_TIMEZONE"),
			GraceWindow: viper.GetDuration("SCHEDULE_GRACE_WINDOW"),
			RetryWindow: viper.GetDuration("SCHEDULE_RETRY_WINDOW"),
			Horizon:     viper.GetDuration("SCHEDULE_HORIZON"),
		},
		Log: LogConfig{
			FilePath:   viper.GetString("LOG_FILE_PATH"),
			MaxSizeMB:  viper.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: viper.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: viper.GetInt("LOG_MAX_AGE_DAYS"),
			Compress:   viper.GetBool("LOG_COMPRESS"),
		},
	}

	return config, nil
}

// Validate reports missing settings the server cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.Host == "" {
		missing = append(missing, "DB_HOST")
	}
	if c.Database.DBName == "" {
		missing = append(missing, "DB_NAME")
	}
	if c.JWT.Secret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Device.APIKey == "" {
		missing = append(missing, "DEVICE_API_KEY")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		missing = append(missing, "MQTT_BROKER")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if _, err := c.Schedule.Location(); err != nil {
		return err
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Location resolves the zone dose times are projected in.
func (c *ScheduleConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULE_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
