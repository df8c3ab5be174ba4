package config

import (
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// global configuration structure
type Config struct {
	Bot      BotConfig      `mapstructure:"bot"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Plugin   PluginConfig   `mapstructure:"plugin"`
	Amnesia  AmnesiaConfig  `mapstructure:"amnesia"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Recorder RecorderConfig `mapstructure:"recorder"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// Telegram bot configuration
type BotConfig struct {
	Token   string        `mapstructure:"token"`
	Mode    string        `mapstructure:"mode" validate:"oneof=webhook polling"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// webhook server configuration
type WebhookConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	ListenPort string `mapstructure:"listen_port"`
	DebugPath  string `mapstructure:"debug_path"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
}

// logging configuration
type LoggerConfig struct {
	Directory string            `mapstructure:"directory"`
	Rotation  LogRotationConfig `mapstructure:"rotation"`
	Format    string            `mapstructure:"format" validate:"oneof=console json"`
	Level     string            `mapstructure:"level" validate:"oneof=DEBUG INFO WARNING ERROR FATAL"`
}

// log rotation settings
type LogRotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// PluginConfig holds the switches exposed to bot operators.
type PluginConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	ConfigVersion string   `mapstructure:"config_version"`
	Permission    []string `mapstructure:"permission"`
}

// AmnesiaConfig tunes the confirmation handshake and the full erasure.
type AmnesiaConfig struct {
	ConfirmTimeout   time.Duration `mapstructure:"confirm_timeout" validate:"gt=0"`
	PendingRetention time.Duration `mapstructure:"pending_retention" validate:"gt=0"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	LocalStorePath   string        `mapstructure:"local_store_path" validate:"required"`
	StyleDirs        []string      `mapstructure:"style_dirs"`
	Language         string        `mapstructure:"language" validate:"oneof=zh_CN en"`
}

// CleanupConfig holds the delays of the deferred self-purge passes.
type CleanupConfig struct {
	ScopedDelay     time.Duration `mapstructure:"scoped_delay"`
	FirstPassDelay  time.Duration `mapstructure:"first_pass_delay"`
	SecondPassDelay time.Duration `mapstructure:"second_pass_delay"`
}

type RecorderConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Platform string `mapstructure:"platform" validate:"required"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=mysql postgres sqlite"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Charset  string `mapstructure:"charset"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
	LogLevel string `mapstructure:"log_level"`
}

// RedisConfig enables the shared pending-erasure table.
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

var (
	cfg      *Config
	cfgMu    sync.RWMutex
	loaded   *viper.Viper
	validate = validator.New()
)

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, errors.New("config file path is required")
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Ignoring .env file: %v", err)
	}

	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("TG_AMNESIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	log.Printf("Using config file: %s", v.ConfigFileUsed())

	c, err := decode(v)
	if err != nil {
		return nil, err
	}

	cfgMu.Lock()
	cfg = c
	loaded = v
	cfgMu.Unlock()

	return c, nil
}

func Get() *Config {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	if cfg == nil {
		log.Fatal("Configuration not initialized, call Load() first")
	}
	return cfg
}

// Watch re-reads the config file whenever it changes and hands the new value to
// onChange. Invalid edits are logged and ignored.
func Watch(onChange func(*Config)) {
	cfgMu.RLock()
	v := loaded
	cfgMu.RUnlock()
	if v == nil {
		log.Printf("Configuration not loaded, not watching for changes")
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("Config file changed: %s (%s)", e.Name, e.Op)
		c, err := decode(v)
		if err != nil {
			log.Printf("Keeping previous configuration: %v", err)
			return
		}
		cfgMu.Lock()
		cfg = c
		cfgMu.Unlock()
		onChange(c)
	})
	v.WatchConfig()
}

func decode(v *viper.Viper) (*Config, error) {
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, errors.Wrap(err, "unable to decode config")
	}
	if err := validate.Struct(c); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.mode", "webhook")
	v.SetDefault("bot.webhook.listen_port", "8443")
	v.SetDefault("bot.webhook.debug_path", "/debug")
	v.SetDefault("bot.webhook.cert_file", "")
	v.SetDefault("bot.webhook.key_file", "")

	v.SetDefault("logger.directory", "logs")
	v.SetDefault("logger.rotation.max_size", 10)
	v.SetDefault("logger.rotation.max_backups", 30)
	v.SetDefault("logger.rotation.max_age", 90)
	v.SetDefault("logger.rotation.compress", true)
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.level", "INFO")

	v.SetDefault("plugin.enabled", true)
	v.SetDefault("plugin.config_version", "1.0.0")
	v.SetDefault("plugin.permission", []string{})

	v.SetDefault("amnesia.confirm_timeout", 30*time.Second)
	v.SetDefault("amnesia.pending_retention", 5*time.Minute)
	v.SetDefault("amnesia.sweep_interval", time.Minute)
	v.SetDefault("amnesia.local_store_path", "data/local_store.json")
	v.SetDefault("amnesia.style_dirs", []string{"data/expression/learnt_style", "data/expression/learnt_grammar"})
	v.SetDefault("amnesia.language", "zh_CN")

	v.SetDefault("cleanup.scoped_delay", 3*time.Second)
	v.SetDefault("cleanup.first_pass_delay", 500*time.Millisecond)
	v.SetDefault("cleanup.second_pass_delay", 5*time.Second)

	v.SetDefault("recorder.enabled", true)
	v.SetDefault("recorder.platform", "telegram")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/amnesia.db")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.log_level", "WARNING")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "tg-amnesia:pending:")
}
