// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Device   DeviceConfig   `mapstructure:"device"`
	Printer  PrinterConfig  `mapstructure:"printer"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig represents the device inventory store configuration.
// The store is optional; the service runs fully in memory when disabled.
type DatabaseConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"dbname"`
	SSLMode      string        `mapstructure:"sslmode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DeviceConfig represents device-level defaults
type DeviceConfig struct {
	OperationTimeout    time.Duration `mapstructure:"operation_timeout"`
	ConnectTimeout      time.Duration `mapstructure:"connect_timeout"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	ScanFlushDelay      time.Duration `mapstructure:"scan_flush_delay"`
	DrawerOpenDelay     time.Duration `mapstructure:"drawer_open_delay"`
	DrawerCloseDelay    time.Duration `mapstructure:"drawer_close_delay"`
}

// PrinterConfig represents receipt printer defaults
type PrinterConfig struct {
	PaperWidth     int    `mapstructure:"paper_width"`
	Copies         int    `mapstructure:"copies"`
	AutoOpenDrawer bool   `mapstructure:"auto_open_drawer"`
	Currency       string `mapstructure:"currency"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/hardware-service")

	viper.SetEnvPrefix("HARDWARE_SERVICE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Config file is optional; defaults plus environment cover a bare install.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8085")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "hardware_service")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.max_lifetime", "5m")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
	viper.SetDefault("logging.compress", true)

	// Device defaults
	viper.SetDefault("device.operation_timeout", "30s")
	viper.SetDefault("device.connect_timeout", "15s")
	viper.SetDefault("device.health_check_interval", "30s")
	viper.SetDefault("device.scan_flush_delay", "100ms")
	viper.SetDefault("device.drawer_open_delay", "0s")
	viper.SetDefault("device.drawer_close_delay", "3s")

	// Printer defaults
	viper.SetDefault("printer.paper_width", 80)
	viper.SetDefault("printer.copies", 1)
	viper.SetDefault("printer.auto_open_drawer", false)
	viper.SetDefault("printer.currency", "LKR")

	// App defaults
	viper.SetDefault("app.name", "hardware-service")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	isValidEnv := false
	for _, env := range validEnvs {
		if config.App.Environment == env {
			isValidEnv = true
			break
		}
	}
	if !isValidEnv {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	if config.Printer.PaperWidth != 58 && config.Printer.PaperWidth != 80 {
		return fmt.Errorf("printer.paper_width must be 58 or 80")
	}

	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
