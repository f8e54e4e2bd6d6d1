package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AdminToken   string        `mapstructure:"admin_token"`
}

type StorageConfig struct {
	// Backend selects the retry store implementation: "table" for the
	// dedicated retries table, "records" for the generic tagged-record store.
	Backend string       `mapstructure:"backend"`
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Workers      int           `mapstructure:"workers"`
}

type RetryConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	Rules   []RuleConfig `mapstructure:"rules"`
}

type RuleConfig struct {
	After              time.Duration `mapstructure:"after"`
	OrderStatus        string        `mapstructure:"order_status"`
	SubscriptionStatus string        `mapstructure:"subscription_status"`
	EmailCustomer      string        `mapstructure:"email_customer"`
	EmailAdmin         string        `mapstructure:"email_admin"`
}

type GatewayConfig struct {
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	Sender     string        `mapstructure:"sender"`
	URL        string        `mapstructure:"url"`
	Secret     string        `mapstructure:"secret"`
	AdminEmail string        `mapstructure:"admin_email"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("renewd")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/renewd")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("RENEWD")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("storage.backend", "table")
	viper.SetDefault("storage.sqlite.path", "./data/renewd.db")

	viper.SetDefault("scheduler.poll_interval", 1*time.Second)
	viper.SetDefault("scheduler.workers", 10)

	// An empty rules list means the built-in default table; retries can only
	// be switched off explicitly.
	viper.SetDefault("retry.enabled", true)

	viper.SetDefault("gateway.timeout", 30*time.Second)

	viper.SetDefault("notify.sender", "log")
	viper.SetDefault("notify.admin_email", "admin@localhost")
	viper.SetDefault("notify.timeout", 10*time.Second)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
