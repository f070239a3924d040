package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	defaultConfigFile = "values_local.yaml"
	configDir         = "configs"
)

// env → ключ конфига
var envOverrides = map[string]string{
	"kite.api_key":      "KITE_API_KEY",
	"kite.access_token": "KITE_ACCESS_TOKEN",
	"telegram.token":    "TELEGRAM_TOKEN",
	"telegram.chat_id":  "TELEGRAM_CHAT_ID",
	"db_dsn":            "DATABASE_DSN",
}

type Config struct {
	Service struct {
		Name      string `yaml:"name" mapstructure:"name"`
		Host      string `yaml:"host" mapstructure:"host"`
		AdminPort int    `yaml:"admin_port" mapstructure:"admin_port"`
		Debug     bool   `yaml:"debug" mapstructure:"debug"`
	} `yaml:"service" mapstructure:"service"`

	Kite struct {
		APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
		AccessToken string        `yaml:"access_token" mapstructure:"access_token"`
		RootURL     string        `yaml:"root_url" mapstructure:"root_url"`
		WSURL       string        `yaml:"ws_url" mapstructure:"ws_url"`
		Exchange    string        `yaml:"exchange" mapstructure:"exchange"`
		Product     string        `yaml:"product" mapstructure:"product"`
		OrderTag    string        `yaml:"order_tag" mapstructure:"order_tag"`
		Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	} `yaml:"kite" mapstructure:"kite"`

	Feed struct {
		ReconnectMin time.Duration `yaml:"reconnect_min" mapstructure:"reconnect_min"`
		ReconnectMax time.Duration `yaml:"reconnect_max" mapstructure:"reconnect_max"`
		ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	} `yaml:"feed" mapstructure:"feed"`

	Risk struct {
		Policy struct {
			Kind            string  `yaml:"kind" mapstructure:"kind"`
			StopLoss        float64 `yaml:"stop_loss" mapstructure:"stop_loss"`
			TrailTrigger    float64 `yaml:"trail_trigger" mapstructure:"trail_trigger"`
			TrailGap        float64 `yaml:"trail_gap" mapstructure:"trail_gap"`
			StopLossPct     float64 `yaml:"stop_loss_pct" mapstructure:"stop_loss_pct"`
			TrailTriggerPct float64 `yaml:"trail_trigger_pct" mapstructure:"trail_trigger_pct"`
			TrailGapPct     float64 `yaml:"trail_gap_pct" mapstructure:"trail_gap_pct"`
		} `yaml:"policy" mapstructure:"policy"`
		EvalInterval     time.Duration `yaml:"eval_interval" mapstructure:"eval_interval"`
		PositionsRefresh time.Duration `yaml:"positions_refresh" mapstructure:"positions_refresh"`
		OrdersRefresh    time.Duration `yaml:"orders_refresh" mapstructure:"orders_refresh"`
	} `yaml:"risk" mapstructure:"risk"`

	// Торговая сессия: вне неё тики только обновляют кеш.
	Session struct {
		Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
		Open     string `yaml:"open" mapstructure:"open"`
		Close    string `yaml:"close" mapstructure:"close"`
		Timezone string `yaml:"timezone" mapstructure:"timezone"`
	} `yaml:"session" mapstructure:"session"`

	Telegram struct {
		Token  string `yaml:"token" mapstructure:"token"`
		ChatID int64  `yaml:"chat_id" mapstructure:"chat_id"`
		Buffer int    `yaml:"buffer" mapstructure:"buffer"`
	} `yaml:"telegram" mapstructure:"telegram"`

	DB string `yaml:"db_dsn" mapstructure:"db_dsn"`

	Journal struct {
		// postgres | sqlite | none
		Driver     string        `yaml:"driver" mapstructure:"driver"`
		Path       string        `yaml:"path" mapstructure:"path"`
		Script     string        `yaml:"script" mapstructure:"script"`
		StaleAfter time.Duration `yaml:"stale_after" mapstructure:"stale_after"`
		Force      bool          `yaml:"force" mapstructure:"force"`
	} `yaml:"journal" mapstructure:"journal"`

	Tracing struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Host    string `yaml:"host" mapstructure:"host"`
		Port    int    `yaml:"port" mapstructure:"port"`
	} `yaml:"tracing" mapstructure:"tracing"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "kite_guard")
	v.SetDefault("service.host", "0.0.0.0")
	v.SetDefault("service.admin_port", 8080)

	v.SetDefault("kite.root_url", "https://api.kite.trade")
	v.SetDefault("kite.ws_url", "wss://ws.kite.trade")
	v.SetDefault("kite.exchange", "NFO")
	v.SetDefault("kite.product", "NRML")
	v.SetDefault("kite.order_tag", "kiteguard")
	v.SetDefault("kite.timeout", "10s")

	v.SetDefault("feed.reconnect_min", "5s")
	v.SetDefault("feed.reconnect_max", "60s")
	v.SetDefault("feed.read_timeout", "10s")

	v.SetDefault("risk.policy.kind", "fixed")
	v.SetDefault("risk.policy.stop_loss", -5000)
	v.SetDefault("risk.policy.trail_trigger", 3750)
	v.SetDefault("risk.policy.trail_gap", 250)
	v.SetDefault("risk.eval_interval", "15s")
	v.SetDefault("risk.positions_refresh", "60s")
	v.SetDefault("risk.orders_refresh", "5s")

	v.SetDefault("session.enabled", true)
	v.SetDefault("session.open", "09:15")
	v.SetDefault("session.close", "15:30")
	v.SetDefault("session.timezone", "Asia/Kolkata")

	v.SetDefault("telegram.buffer", 64)

	v.SetDefault("journal.driver", "sqlite")
	v.SetDefault("journal.path", "kite_guard.db")
	v.SetDefault("journal.script", "kite_guard")
	v.SetDefault("journal.stale_after", "5m")

	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)
}

func NewConfig() (*Config, error) {
	// .env опционален
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath(os.Getenv(configFilePathENV)))
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	for key, env := range envOverrides {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configPath(name string) string {
	if name == "" {
		name = defaultConfigFile
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(configDir, name)
}

var ErrInvalidConfig = errors.New("invalid config")

func (c *Config) Validate() error {
	switch {
	case c.Risk.EvalInterval < 0:
		return fmt.Errorf("%w: risk.eval_interval is negative", ErrInvalidConfig)
	case c.Risk.PositionsRefresh <= 0:
		return fmt.Errorf("%w: risk.positions_refresh must be positive", ErrInvalidConfig)
	case c.Risk.OrdersRefresh <= 0:
		return fmt.Errorf("%w: risk.orders_refresh must be positive", ErrInvalidConfig)
	case c.Kite.Exchange == "":
		return fmt.Errorf("%w: kite.exchange is empty", ErrInvalidConfig)
	}

	switch c.Journal.Driver {
	case "postgres":
		if c.DB == "" {
			return fmt.Errorf("%w: journal.driver=postgres requires db_dsn", ErrInvalidConfig)
		}
	case "sqlite", "none", "":
	default:
		return fmt.Errorf("%w: unknown journal.driver %q", ErrInvalidConfig, c.Journal.Driver)
	}
	return nil
}

const mask = "***"

// Redacted: YAML эффективного конфига без секретов, для стартового лога.
func (c *Config) Redacted() string {
	cp := *c
	if cp.Kite.APIKey != "" {
		cp.Kite.APIKey = mask
	}
	if cp.Kite.AccessToken != "" {
		cp.Kite.AccessToken = mask
	}
	if cp.Telegram.Token != "" {
		cp.Telegram.Token = mask
	}
	if cp.DB != "" {
		cp.DB = mask
	}

	out, err := yaml.Marshal(cp)
	if err != nil {
		return fmt.Sprintf("<config marshal error: %v>", err)
	}
	return string(out)
}
