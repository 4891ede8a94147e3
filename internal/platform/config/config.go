package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config 结构体定义了应用程序的所有配置项
// 它与 config.yaml 文件的结构完全对应
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Limits   LimitsConfig   `mapstructure:"limits"`
}

// ServerConfig 定义了服务器相关的配置
type ServerConfig struct {
	Mode    string     `mapstructure:"mode"`
	Address string     `mapstructure:"address"`
	Cors    CorsConfig `mapstructure:"cors"`
}

// CorsConfig 定义了CORS相关的配置
type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// DatabaseConfig 定义了主数据库的配置
// Driver 为 "postgres" 时使用 DSN 连接生产库，为 "sqlite" 时使用本地文件
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	DSN        string `mapstructure:"dsn"`
	SqlitePath string `mapstructure:"sqlitePath"`
}

// RedisConfig 定义了Redis的配置
// Redis 只承载限流等有时限的辅助状态，核心数据永远不进缓存
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 定义了两代鉴权所需的密钥
// BotToken 同时用于校验 Telegram WebApp 的 initData 签名
type AuthConfig struct {
	JWTSecret    string `mapstructure:"jwtSecret"`
	BotToken     string `mapstructure:"botToken"`
	TokenTTLDays int    `mapstructure:"tokenTtlDays"`
}

// NotifyConfig 定义了通知发送器的配置
type NotifyConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LimitsConfig 定义了v2写入接口的限流配置
type LimitsConfig struct {
	AddPerMinute int `mapstructure:"addPerMinute"`
}

// LoadConfig 函数负责查找、加载和解析配置文件
// 它会在指定的路径中查找名为 config.yaml 的文件
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. 设置配置文件名和类型
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// 2. 添加配置文件搜索路径
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	// 3. 设置环境变量支持
	// 允许通过环境变量覆盖配置，例如 AUTH_JWTSECRET / DATABASE_DSN
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. 缺省值：本地开发默认落到sqlite，JWT密钥退化为BotToken
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.address", ":3000")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlitePath", "data/pushups.db")
	v.SetDefault("auth.tokenTtlDays", 30)
	v.SetDefault("limits.addPerMinute", 30)

	// 5. 读取配置文件（允许缺失，完全依赖环境变量时也能启动）
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// 6. 将配置反序列化到结构体中
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = cfg.Auth.BotToken
	}

	return &cfg, nil
}
