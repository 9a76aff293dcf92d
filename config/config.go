package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type RadiusdConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Host     string `yaml:"host" json:"host"`
	AuthPort int    `yaml:"auth_port" json:"auth_port"`
	AcctPort int    `yaml:"acct_port" json:"acct_port"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type BillingConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	ApiKey  string `yaml:"api_key" json:"api_key"`
}

type LoggerConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type AppConfig struct {
	System   SysConfig     `yaml:"system" json:"system"`
	Database DBConfig      `yaml:"database" json:"database"`
	Radiusd  RadiusdConfig `yaml:"radiusd" json:"radiusd"`
	Billing  BillingConfig `yaml:"billing" json:"billing"`
	Logger   LoggerConfig  `yaml:"logger" json:"logger"`
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "kilusibill",
		Location: "Asia/Jakarta",
		Workdir:  "/var/kilusibill",
		Debug:    false,
	},
	Database: DBConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "kilusibill",
		User:     "postgres",
		Passwd:   "",
		MaxConn:  100,
		IdleConn: 10,
	},
	Radiusd: RadiusdConfig{
		Enabled:  true,
		Host:     "0.0.0.0",
		AuthPort: 1812,
		AcctPort: 1813,
	},
	Billing: BillingConfig{
		Enabled: false,
		BaseURL: "http://127.0.0.1:8000",
	},
	Logger: LoggerConfig{
		Mode:       "development",
		FileEnable: false,
		Filename:   "/var/kilusibill/kilusibill.log",
	},
}

func (c *AppConfig) InitDirs() {
	_ = os.MkdirAll(filepath.Join(c.System.Workdir, "data"), 0o755)
	_ = os.MkdirAll(filepath.Join(c.System.Workdir, "metrics"), 0o755)
}

// LoadConfig reads the YAML config file and applies environment overrides.
// A missing file yields the built-in defaults.
func LoadConfig(cfile string) *AppConfig {
	cfg := new(AppConfig)
	*cfg = *DefaultAppConfig

	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}

	setEnvString := func(name string, val *string) {
		if v := os.Getenv(name); v != "" {
			*val = v
		}
	}
	setEnvInt := func(name string, val *int) {
		if v := os.Getenv(name); v != "" {
			*val = cast.ToInt(v)
		}
	}
	setEnvBool := func(name string, val *bool) {
		if v := os.Getenv(name); v != "" {
			*val = cast.ToBool(v)
		}
	}

	setEnvString("KILUSIBILL_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvString("KILUSIBILL_SYSTEM_LOCATION", &cfg.System.Location)
	setEnvBool("KILUSIBILL_SYSTEM_DEBUG", &cfg.System.Debug)

	setEnvString("KILUSIBILL_DB_TYPE", &cfg.Database.Type)
	setEnvString("KILUSIBILL_DB_HOST", &cfg.Database.Host)
	setEnvInt("KILUSIBILL_DB_PORT", &cfg.Database.Port)
	setEnvString("KILUSIBILL_DB_NAME", &cfg.Database.Name)
	setEnvString("KILUSIBILL_DB_USER", &cfg.Database.User)
	setEnvString("KILUSIBILL_DB_PWD", &cfg.Database.Passwd)

	setEnvBool("KILUSIBILL_RADIUS_ENABLED", &cfg.Radiusd.Enabled)
	setEnvString("KILUSIBILL_RADIUS_HOST", &cfg.Radiusd.Host)
	setEnvInt("KILUSIBILL_RADIUS_AUTH_PORT", &cfg.Radiusd.AuthPort)
	setEnvInt("KILUSIBILL_RADIUS_ACCT_PORT", &cfg.Radiusd.AcctPort)
	setEnvBool("KILUSIBILL_RADIUS_DEBUG", &cfg.Radiusd.Debug)

	setEnvBool("KILUSIBILL_BILLING_ENABLED", &cfg.Billing.Enabled)
	setEnvString("KILUSIBILL_BILLING_BASE_URL", &cfg.Billing.BaseURL)
	setEnvString("KILUSIBILL_BILLING_API_KEY", &cfg.Billing.ApiKey)

	setEnvString("KILUSIBILL_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvBool("KILUSIBILL_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)
	setEnvString("KILUSIBILL_LOGGER_FILENAME", &cfg.Logger.Filename)

	return cfg
}
