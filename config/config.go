package config

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Supabase  SupabaseConfig  `mapstructure:"supabase"`
	Sync      SyncConfig      `mapstructure:"sync"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Email     EmailConfig     `mapstructure:"email"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port    string `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
	BaseURL string `mapstructure:"base_url"`
}

// DatabaseConfig 本地数据库配置（模拟浏览器 localStorage 的持久化层）
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite / mysql
	Path     string `mapstructure:"path"`   // sqlite 文件路径
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Charset  string `mapstructure:"charset"`
}

// SupabaseConfig 远端托管数据库配置
type SupabaseConfig struct {
	URL        string `mapstructure:"url"`
	Key        string `mapstructure:"key"`
	ProbeTable string `mapstructure:"probe_table"`
}

// SyncConfig 离线队列与容错读写配置
type SyncConfig struct {
	MaxRetries            int `mapstructure:"max_retries"`
	RetentionDays         int `mapstructure:"retention_days"`
	CheckIntervalSeconds  int `mapstructure:"check_interval_seconds"`
	ProbeTimeoutSeconds   int `mapstructure:"probe_timeout_seconds"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	RequestRetries        int `mapstructure:"request_retries"`
	BaseDelayMillis       int `mapstructure:"base_delay_millis"`

	Retention      time.Duration `mapstructure:"-"`
	CheckInterval  time.Duration `mapstructure:"-"`
	ProbeTimeout   time.Duration `mapstructure:"-"`
	RequestTimeout time.Duration `mapstructure:"-"`
	BaseDelay      time.Duration `mapstructure:"-"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret      string        `mapstructure:"secret"`
	ExpireHours int           `mapstructure:"expire_hours"`
	ExpireTime  time.Duration `mapstructure:"-"`
}

// EmailConfig 邮件配置（预算预警）
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// TelemetryConfig 指标配置
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

var (
	// GlobalConfig 全局配置实例
	GlobalConfig *Config
)

// LoadConfig 加载配置
// 优先级: 环境变量 > 外部配置文件 > 嵌入的默认配置
// configPath: 可选的外部配置文件路径
func LoadConfig(configPath string) (*Config, error) {
	// .env 文件可选，不存在时忽略
	if err := godotenv.Load(); err == nil {
		log.Println("已加载 .env 文件")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 首先加载嵌入的默认配置
	if err := v.ReadConfig(bytes.NewReader(DefaultConfigYAML)); err != nil {
		return nil, fmt.Errorf("读取内置配置失败: %w", err)
	}
	log.Println("已加载内置默认配置")

	// 2. 尝试加载外部配置文件（可选，用于覆盖默认配置）
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.MergeInConfig(); err != nil {
			log.Printf("警告: 无法读取指定配置文件 %s: %v", configPath, err)
		} else {
			log.Printf("已合并外部配置文件: %s", configPath)
		}
	} else {
		externalViper := viper.New()
		externalViper.SetConfigName("config")
		externalViper.SetConfigType("yaml")
		externalViper.AddConfigPath(".")
		externalViper.AddConfigPath("./config")
		externalViper.AddConfigPath("/etc/financify")
		externalViper.AddConfigPath("$HOME/.financify")

		if err := externalViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(externalViper.AllSettings()); err != nil {
				log.Printf("警告: 合并外部配置失败: %v", err)
			} else {
				log.Printf("已合并外部配置文件: %s", externalViper.ConfigFileUsed())
			}
		}
	}

	// 3. 环境变量覆盖，如 FINANCIFY_SUPABASE_URL
	v.SetEnvPrefix("FINANCIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults()

	GlobalConfig = &cfg

	return &cfg, nil
}

// applyDefaults 补齐缺省值并计算派生的时长字段
func (cfg *Config) applyDefaults() {
	if cfg.JWT.ExpireHours <= 0 {
		cfg.JWT.ExpireHours = 24
	}
	cfg.JWT.ExpireTime = time.Duration(cfg.JWT.ExpireHours) * time.Hour

	s := &cfg.Sync
	if s.MaxRetries <= 0 {
		s.MaxRetries = 3
	}
	if s.RetentionDays <= 0 {
		s.RetentionDays = 7
	}
	if s.CheckIntervalSeconds <= 0 {
		s.CheckIntervalSeconds = 30
	}
	if s.ProbeTimeoutSeconds <= 0 {
		s.ProbeTimeoutSeconds = 3
	}
	if s.RequestTimeoutSeconds <= 0 {
		s.RequestTimeoutSeconds = 10
	}
	if s.RequestRetries <= 0 {
		s.RequestRetries = 3
	}
	if s.BaseDelayMillis <= 0 {
		s.BaseDelayMillis = 500
	}
	s.Retention = time.Duration(s.RetentionDays) * 24 * time.Hour
	s.CheckInterval = time.Duration(s.CheckIntervalSeconds) * time.Second
	s.ProbeTimeout = time.Duration(s.ProbeTimeoutSeconds) * time.Second
	s.RequestTimeout = time.Duration(s.RequestTimeoutSeconds) * time.Second
	s.BaseDelay = time.Duration(s.BaseDelayMillis) * time.Millisecond

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Supabase.ProbeTable == "" {
		cfg.Supabase.ProbeTable = "transactions"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "financify"
	}
}

// MustLoadConfig 加载配置，失败则 panic
func MustLoadConfig(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("加载配置失败: %v", err))
	}
	return cfg
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if GlobalConfig == nil {
		panic("配置未初始化，请先调用 LoadConfig")
	}
	return GlobalConfig
}

// PrintConfig 打印当前配置（隐藏敏感信息）
func PrintConfig() {
	if GlobalConfig == nil {
		return
	}
	log.Printf("当前配置:")
	log.Printf("  服务器: %s (模式: %s)", GlobalConfig.Server.Port, GlobalConfig.Server.Mode)
	if GlobalConfig.Database.Driver == "mysql" {
		log.Printf("  本地数据库: mysql %s@%s:%s/%s",
			GlobalConfig.Database.Username,
			GlobalConfig.Database.Host,
			GlobalConfig.Database.Port,
			GlobalConfig.Database.DBName)
	} else {
		log.Printf("  本地数据库: sqlite %s", GlobalConfig.Database.Path)
	}
	log.Printf("  Supabase: %s", GlobalConfig.Supabase.URL)
	log.Printf("  同步: 最大重试 %d 次, 保留 %d 天, 检查间隔 %ds",
		GlobalConfig.Sync.MaxRetries, GlobalConfig.Sync.RetentionDays, GlobalConfig.Sync.CheckIntervalSeconds)
	log.Printf("  邮件服务: %v", GlobalConfig.Email.Enabled)
}
