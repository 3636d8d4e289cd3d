package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"` // debug | info | warn | error
	} `yaml:"log"`

	Server struct {
		Addr         string `yaml:"addr"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`

	Storage struct {
		Driver   string `yaml:"driver"` // postgres | memory
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Rate struct {
		Enabled  bool `yaml:"enabled"`
		Checkout struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"checkout"`
		Refund struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"refund"`
	} `yaml:"rate"`

	// Auth verifies inbound bearer tokens minted by the identity provider.
	Auth struct {
		// PublicKey: base64(ed25519 public key) used to verify access tokens.
		PublicKey string `yaml:"public_key"`
		Issuer    string `yaml:"issuer"`
	} `yaml:"auth"`

	// Access controls signed capability issuance.
	Access struct {
		TTL             string `yaml:"ttl"`
		KID             string `yaml:"kid"`
		KeySeed         string `yaml:"key_seed"` // base64(32 bytes); empty = ephemeral per process
		DeliveryBaseURL string `yaml:"delivery_base_url"`
	} `yaml:"access"`

	Refund struct {
		Window string `yaml:"window"`
	} `yaml:"refund"`

	Sweep struct {
		Enabled        bool   `yaml:"enabled"`
		PendingTimeout string `yaml:"pending_timeout"`
		Interval       string `yaml:"interval"`
		BatchLimit     int    `yaml:"batch_limit"`
		Parallelism    int    `yaml:"parallelism"`
	} `yaml:"sweep"`

	Payment struct {
		BaseURL       string `yaml:"base_url"`
		APIKey        string `yaml:"api_key"`
		WebhookSecret string `yaml:"webhook_secret"`
		Timeout       string `yaml:"timeout"`
	} `yaml:"payment"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"` // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	} `yaml:"smtp"`

	Notice struct {
		Attempts int    `yaml:"attempts"`
		BaseWait string `yaml:"base_wait"`
	} `yaml:"notice"`

	Admin struct {
		// APIKeyHash: bcrypt hash of the admin API key. The plaintext key is
		// never stored in config.
		APIKeyHash string `yaml:"api_key_hash"`
	} `yaml:"admin"`

	Flags struct {
		Migrate bool `yaml:"migrate"`
	} `yaml:"flags"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	c.applyEnvOverrides()
	return &c, nil
}

// Default returns a config with only defaults applied (dev/memory mode).
func Default() *Config {
	var c Config
	c.applyDefaults()
	c.applyEnvOverrides()
	return &c
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Rate.Checkout.Limit == 0 {
		c.Rate.Checkout.Limit = 10
	}
	if c.Rate.Checkout.Window == "" {
		c.Rate.Checkout.Window = "1m"
	}
	if c.Rate.Refund.Limit == 0 {
		c.Rate.Refund.Limit = 5
	}
	if c.Rate.Refund.Window == "" {
		c.Rate.Refund.Window = "10m"
	}
	if c.Access.TTL == "" {
		c.Access.TTL = "1h"
	}
	if c.Access.KID == "" {
		c.Access.KID = "access-1"
	}
	if c.Refund.Window == "" {
		c.Refund.Window = "720h" // 30d
	}
	if c.Sweep.PendingTimeout == "" {
		c.Sweep.PendingTimeout = "24h"
	}
	if c.Sweep.Interval == "" {
		c.Sweep.Interval = "10m"
	}
	if c.Sweep.BatchLimit == 0 {
		c.Sweep.BatchLimit = 200
	}
	if c.Sweep.Parallelism == 0 {
		c.Sweep.Parallelism = 4
	}
	if c.Payment.Timeout == "" {
		c.Payment.Timeout = "15s"
	}
	if c.Notice.Attempts == 0 {
		c.Notice.Attempts = 3
	}
	if c.Notice.BaseWait == "" {
		c.Notice.BaseWait = "2s"
	}
}

// applyEnvOverrides lets secrets come from the environment instead of YAML.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PAYGATE_DSN"); v != "" {
		c.Storage.DSN = v
		if c.Storage.Driver == "memory" {
			c.Storage.Driver = "postgres"
		}
	}
	if v := os.Getenv("PAYGATE_PAYMENT_API_KEY"); v != "" {
		c.Payment.APIKey = v
	}
	if v := os.Getenv("PAYGATE_WEBHOOK_SECRET"); v != "" {
		c.Payment.WebhookSecret = v
	}
	if v := os.Getenv("PAYGATE_ADMIN_KEY_HASH"); v != "" {
		c.Admin.APIKeyHash = v
	}
	if v := os.Getenv("PAYGATE_ACCESS_KEY_SEED"); v != "" {
		c.Access.KeySeed = v
	}
	if v := os.Getenv("PAYGATE_SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
}

// Duration parses a duration field, returning fallback on empty/garbage.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
