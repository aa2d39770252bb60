package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Steam    SteamConfig    `mapstructure:"steam"`
	CSMoney  CSMoneyConfig  `mapstructure:"csmoney"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Queue    string `mapstructure:"queue"`
}

// SteamConfig covers the market quote and inventory endpoints.
type SteamConfig struct {
	MarketURL         string        `mapstructure:"market_url"`
	InventoryURL      string        `mapstructure:"inventory_url"`
	ImageBase         string        `mapstructure:"image_base"`
	Currency          int           `mapstructure:"currency"`
	AppID             int           `mapstructure:"app_id"`
	ContextID         string        `mapstructure:"context_id"`
	Retries           int           `mapstructure:"retries"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	InventoryPageSize int           `mapstructure:"inventory_page_size"`
	UserAgents        []string      `mapstructure:"user_agents"`
	Languages         []string      `mapstructure:"languages"`
	Concurrency       int           `mapstructure:"concurrency"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

type CSMoneyConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	Limit              int           `mapstructure:"limit"`
	MaxPages           int           `mapstructure:"max_pages"`
	Pause              time.Duration `mapstructure:"pause"`
	Retries            int           `mapstructure:"retries"`
	CooldownRetries    int           `mapstructure:"cooldown_retries"`
	CooldownWait       time.Duration `mapstructure:"cooldown_wait"`
	CreateMissingItems bool          `mapstructure:"create_missing_items"`
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// DefaultUserAgents is the browser pool used for Steam Market requests.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
}

// DefaultLanguages is the Accept-Language pool.
var DefaultLanguages = []string{"en-US,en;q=0.9", "pt-BR,pt;q=0.9", "es-ES,es;q=0.9"}

// Load resolves configuration with precedence defaults < arbitrium.yaml <
// environment (.env is loaded into the environment first).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	v := viper.New()
	setDefaults(v)

	// Optional arbitrium.yaml, mainly for list values such as the UA pool.
	v.SetConfigName("arbitrium")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "development")

	v.SetDefault("database.dsn", "root:root@tcp(127.0.0.1:3306)/arbitrium?charset=utf8mb4&parseTime=True&loc=Local")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.queue", "arbitrium:jobs")

	v.SetDefault("steam.market_url", "https://steamcommunity.com/market/priceoverview/")
	v.SetDefault("steam.inventory_url", "https://steamcommunity.com/inventory")
	v.SetDefault("steam.image_base", "https://steamcommunity-a.akamaihd.net/economy/image/")
	v.SetDefault("steam.currency", 1)
	v.SetDefault("steam.app_id", 730)
	v.SetDefault("steam.context_id", "2")
	v.SetDefault("steam.retries", 3)
	v.SetDefault("steam.base_delay", 2*time.Second)
	v.SetDefault("steam.inventory_page_size", 1000)
	v.SetDefault("steam.user_agents", DefaultUserAgents)
	v.SetDefault("steam.languages", DefaultLanguages)
	v.SetDefault("steam.concurrency", 10)
	v.SetDefault("steam.requests_per_second", 4.0)

	v.SetDefault("csmoney.base_url", "https://cs.money/1.0/market/sell-orders")
	v.SetDefault("csmoney.limit", 60)
	v.SetDefault("csmoney.max_pages", 200)
	v.SetDefault("csmoney.pause", time.Second)
	v.SetDefault("csmoney.retries", 3)
	v.SetDefault("csmoney.cooldown_retries", 3)
	v.SetDefault("csmoney.cooldown_wait", 120*time.Second)
	v.SetDefault("csmoney.create_missing_items", true)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.development", false)
}

// Validate rejects configurations the engines cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database dsn cannot be empty")
	}
	if c.CSMoney.Limit <= 0 || c.CSMoney.MaxPages <= 0 {
		return fmt.Errorf("csmoney limit and max_pages must be positive")
	}
	if len(c.Steam.UserAgents) == 0 || len(c.Steam.Languages) == 0 {
		return fmt.Errorf("steam user_agents and languages cannot be empty")
	}
	if c.Steam.Concurrency <= 0 {
		return fmt.Errorf("steam concurrency must be positive")
	}
	return nil
}
