package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type WebConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
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

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

// ArchiveConfig points at the GCS bucket used to back up credential bundles.
// An empty bucket disables remote archiving; session ids fall back to the
// LOCAL~ form.
type ArchiveConfig struct {
	Bucket         string `yaml:"bucket" json:"bucket"`
	CredentialFile string `yaml:"credential_file" json:"credential_file"`
}

type BotConfig struct {
	Prefix           string   `yaml:"prefix" json:"prefix"`
	Owners           []string `yaml:"owners" json:"owners"`
	AdminNotify      string   `yaml:"admin_notify" json:"admin_notify"`
	SessionBasePath  string   `yaml:"session_base_path" json:"session_base_path"`
	ConnectTimeoutMs int      `yaml:"connect_timeout_ms" json:"connect_timeout_ms"`
	JoinChannelJid   string   `yaml:"join_channel_jid" json:"join_channel_jid"`
	JoinGroupInvite  string   `yaml:"join_group_invite" json:"join_group_invite"`
	PrintQR          bool     `yaml:"print_qr" json:"print_qr"`
	ReconnectSweep   string   `yaml:"reconnect_sweep" json:"reconnect_sweep"`
}

type AppConfig struct {
	System   SysConfig     `yaml:"system" json:"system"`
	Web      WebConfig     `yaml:"web" json:"web"`
	Database DBConfig      `yaml:"database" json:"database"`
	Logger   LogConfig     `yaml:"logger" json:"logger"`
	Archive  ArchiveConfig `yaml:"archive" json:"archive"`
	Bot      BotConfig     `yaml:"bot" json:"bot"`
}

func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Appid:    "wabothub",
			Location: "Africa/Dar_es_Salaam",
			Workdir:  "/var/wabothub",
			Debug:    true,
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Database: DBConfig{
			Type:     "sqlite",
			Name:     "wabothub",
			MaxConn:  50,
			IdleConn: 10,
		},
		Logger: LogConfig{
			Mode:       "development",
			FileEnable: true,
			Filename:   "/var/wabothub/wabothub.log",
		},
		Bot: BotConfig{
			Prefix:           ".",
			SessionBasePath:  "./session",
			ConnectTimeoutMs: 60000,
			ReconnectSweep:   "@every 5m",
		},
	}
}

// LoadConfig reads the YAML config file (if present) over the defaults and
// then applies environment overrides.
func LoadConfig(cfile string) *AppConfig {
	cfg := DefaultAppConfig()
	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}
	setEnvValue("WABOTHUB_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvValue("WABOTHUB_SYSTEM_DEBUG_ENABLED", &cfg.System.Debug)
	setEnvValue("WABOTHUB_WEB_HOST", &cfg.Web.Host)
	setEnvIntValue("PORT", &cfg.Web.Port)
	setEnvValue("WABOTHUB_DB_TYPE", &cfg.Database.Type)
	setEnvValue("WABOTHUB_DB_HOST", &cfg.Database.Host)
	setEnvIntValue("WABOTHUB_DB_PORT", &cfg.Database.Port)
	setEnvValue("WABOTHUB_DB_NAME", &cfg.Database.Name)
	setEnvValue("WABOTHUB_DB_USER", &cfg.Database.User)
	setEnvValue("WABOTHUB_DB_PWD", &cfg.Database.Passwd)
	setEnvValue("WABOTHUB_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvValue("WABOTHUB_ARCHIVE_BUCKET", &cfg.Archive.Bucket)
	setEnvValue("WABOTHUB_ARCHIVE_CREDENTIAL_FILE", &cfg.Archive.CredentialFile)
	setEnvValue("PREFIX", &cfg.Bot.Prefix)
	setEnvValue("SESSION_BASE_PATH", &cfg.Bot.SessionBasePath)
	setEnvIntValue("CONNECT_TIMEOUT_MS", &cfg.Bot.ConnectTimeoutMs)
	setEnvValue("ADMIN_NOTIFY_NUMBER", &cfg.Bot.AdminNotify)
	setEnvValue("PRINT_QR", &cfg.Bot.PrintQR)
	if v := os.Getenv("OWNER_NUMBERS"); v != "" {
		cfg.Bot.Owners = splitOwners(v)
	} else if v := os.Getenv("OWNER_NUMBER"); v != "" {
		cfg.Bot.Owners = splitOwners(v)
	}
	// session ids are recorded and resolved relative to the workdir, so the
	// session base must not depend on the process CWD
	if !filepath.IsAbs(cfg.Bot.SessionBasePath) {
		cfg.Bot.SessionBasePath = filepath.Join(cfg.System.Workdir, cfg.Bot.SessionBasePath)
	}
	return cfg
}

func splitOwners(v string) []string {
	var owners []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			owners = append(owners, s)
		}
	}
	return owners
}

func setEnvValue[T string | bool](name string, val *T) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	switch p := any(val).(type) {
	case *string:
		*p = v
	case *bool:
		*p = cast.ToBool(v)
	}
}

func setEnvIntValue(name string, val *int) {
	if v, ok := os.LookupEnv(name); ok {
		*val = cast.ToInt(v)
	}
}

// SessionDir returns the credential-cache directory for a sanitized number.
func (c *AppConfig) SessionDir(number string) string {
	return filepath.Join(c.Bot.SessionBasePath, "session_"+number)
}

func (c *AppConfig) InitDirs() {
	_ = os.MkdirAll(c.Bot.SessionBasePath, 0o755)
	_ = os.MkdirAll(filepath.Join(c.System.Workdir, "data"), 0o755)
}
