package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

// SysConfig system level configuration
type SysConfig struct {
	Appid    string `yaml:"appid"`
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
	Debug    bool   `yaml:"debug"`
}

// WebConfig admin API configuration
type WebConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Secret     string `yaml:"secret"`
	JwtExpire  int    `yaml:"jwt_expire"` // token lifetime in hours
	AdminUser  string `yaml:"admin_user"`
	AdminPwd   string `yaml:"admin_pwd"`
}

// DBConfig database configuration, postgres or sqlite
type DBConfig struct {
	Type   string `yaml:"type"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Name   string `yaml:"name"`
	User   string `yaml:"user"`
	Passwd string `yaml:"passwd"`
	Debug  bool   `yaml:"debug"`
}

// LoggerConfig zap logger configuration
type LoggerConfig struct {
	Mode       string `yaml:"mode"` // development or production
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

// KeepaliveConfig keep-alive coordinator configuration
type KeepaliveConfig struct {
	HoldoffSeconds int    `yaml:"holdoff_seconds"` // delay before devices actually power off
	Mode           string `yaml:"mode"`            // parallel or sequential
	InterDelayMs   int    `yaml:"inter_delay_ms"`  // sequential mode inter-port delay
	Simulate       bool   `yaml:"simulate"`        // rehearse without touching hardware
}

// SmtpConfig failure alert mail configuration
type SmtpConfig struct {
	Enable   bool   `yaml:"enable"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

type AppConfig struct {
	System    SysConfig       `yaml:"system"`
	Web       WebConfig       `yaml:"web"`
	Database  DBConfig        `yaml:"database"`
	Logger    LoggerConfig    `yaml:"logger"`
	Keepalive KeepaliveConfig `yaml:"keepalive"`
	Smtp      SmtpConfig      `yaml:"smtp"`
}

func (c *AppConfig) InitDirs() {
	_ = os.MkdirAll(filepath.Join(c.System.Workdir, "logs"), 0755)
	_ = os.MkdirAll(filepath.Join(c.System.Workdir, "data"), 0755)
	_ = os.MkdirAll(filepath.Join(c.System.Workdir, "metrics"), 0755)
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "poekeeper",
		Location: "Asia/Shanghai",
		Workdir:  "/var/poekeeper",
		Debug:    true,
	},
	Web: WebConfig{
		Host:      "0.0.0.0",
		Port:      1829,
		Secret:    "9b6de5cc-poekeeper-b9b64e",
		JwtExpire: 24,
		AdminUser: "admin",
		AdminPwd:  "poekeeper",
	},
	Database: DBConfig{
		Type:   "postgres",
		Host:   "127.0.0.1",
		Port:   5432,
		Name:   "poekeeper",
		User:   "postgres",
		Passwd: "",
		Debug:  false,
	},
	Logger: LoggerConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/poekeeper/logs/poekeeper.log",
	},
	Keepalive: KeepaliveConfig{
		HoldoffSeconds: 30,
		Mode:           "sequential",
		InterDelayMs:   0,
		Simulate:       false,
	},
}

func setEnvValue(name string, val *string) {
	evalue := os.Getenv(name)
	if evalue != "" {
		*val = evalue
	}
}

func setEnvBoolValue(name string, val *bool) {
	evalue := os.Getenv(name)
	if evalue != "" {
		*val = evalue == "true" || evalue == "1" || evalue == "on"
	}
}

func setEnvIntValue(name string, val *int) {
	evalue := os.Getenv(name)
	if evalue != "" {
		*val = cast.ToInt(evalue)
	}
}

// LoadConfig loads the yaml configuration file and applies
// POEKEEPER_* environment overrides. A missing file falls back
// to defaults so the daemon can start on a bare host.
func LoadConfig(cfile string) *AppConfig {
	defaults := *DefaultAppConfig
	cfg := &defaults
	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			cfg = new(AppConfig)
			if err := yaml.Unmarshal(data, cfg); err != nil {
				panic(err)
			}
		}
	}

	setEnvValue("POEKEEPER_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvBoolValue("POEKEEPER_SYSTEM_DEBUG", &cfg.System.Debug)

	setEnvValue("POEKEEPER_WEB_HOST", &cfg.Web.Host)
	setEnvValue("POEKEEPER_WEB_SECRET", &cfg.Web.Secret)
	setEnvIntValue("POEKEEPER_WEB_PORT", &cfg.Web.Port)

	setEnvValue("POEKEEPER_DB_TYPE", &cfg.Database.Type)
	setEnvValue("POEKEEPER_DB_HOST", &cfg.Database.Host)
	setEnvIntValue("POEKEEPER_DB_PORT", &cfg.Database.Port)
	setEnvValue("POEKEEPER_DB_NAME", &cfg.Database.Name)
	setEnvValue("POEKEEPER_DB_USER", &cfg.Database.User)
	setEnvValue("POEKEEPER_DB_PWD", &cfg.Database.Passwd)

	setEnvIntValue("POEKEEPER_KEEPALIVE_HOLDOFF", &cfg.Keepalive.HoldoffSeconds)
	setEnvBoolValue("POEKEEPER_KEEPALIVE_SIMULATE", &cfg.Keepalive.Simulate)

	return cfg
}
