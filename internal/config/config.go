package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// SMTPConfig 定义 SMTP 邮件接收服务器的配置
type SMTPConfig struct {
	BindAddr     string // SMTP 服务监听地址，格式 "host:port"，默认 ":25"
	Hostname     string // SMTP 服务器域名，用于 HELO/EHLO 响应
	MaxMessageMB int    // 单封邮件最大体积（MB），默认 10
	MaxConns     int    // 最大并发连接数，默认 50
	MaxConnRate  int    // 每秒最大新建连接数，默认 20
}

// BotConfig 定义聊天平台机器人的配置
type BotConfig struct {
	Token       string        // Bot API 令牌，必填
	APIBase     string        // Bot API 基础地址，默认官方地址
	AdminID     int64         // 管理员的平台用户 ID，0 表示禁用管理功能
	PollTimeout time.Duration // 长轮询超时，默认 30s
}

// MailboxConfig 定义邮箱目录的核心业务配置
type MailboxConfig struct {
	DefaultDomain   string // 初始激活域名（仅在配置表为空时写入）
	LocalPartLength int    // 生成地址本地部分的长度，默认 10
	PasswordLength  int    // 生成凭据的长度，默认 10
	AllocRetries    int    // 地址冲突重试上限，默认 10
}

// EngineConfig 定义会话呈现引擎的配置
type EngineConfig struct {
	PageSize       int           // 收件箱每页条数，默认 5
	SessionTTL     time.Duration // 会话空闲回收时间，默认 24h
	MaxSessions    int           // 会话缓存容量上限，默认 10000
	ActionInterval time.Duration // 同一用户两次操作的最小间隔，默认 700ms
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空则只输出到控制台
}

// DatabaseConfig 定义数据库连接配置（支持 sqlite、MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "sqlite"、"mysql" 或 "postgres"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 缓存服务配置（可选）
type RedisConfig struct {
	Address  string // Redis 服务地址，留空禁用缓存
	Password string // Redis 认证密码
	DB       int    // Redis 数据库编号
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig
	SMTP     SMTPConfig
	Bot      BotConfig
	Mailbox  MailboxConfig
	Engine   EngineConfig
	CORS     CORSConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: POSTDROP_
// 例如: POSTDROP_BOT_TOKEN, POSTDROP_MAILBOX_DEFAULT_DOMAIN
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("postdrop")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("smtp.bind_addr", ":25")
	viper.SetDefault("smtp.hostname", "postdrop.local")
	viper.SetDefault("smtp.max_message_mb", 10)
	viper.SetDefault("smtp.max_conns", 50)
	viper.SetDefault("smtp.max_conn_rate", 20)
	viper.SetDefault("bot.token", "")
	viper.SetDefault("bot.api_base", "https://api.telegram.org")
	viper.SetDefault("bot.admin_id", 0)
	viper.SetDefault("bot.poll_timeout", "30s")
	viper.SetDefault("mailbox.default_domain", "postdrop.dev")
	viper.SetDefault("mailbox.local_part_length", 10)
	viper.SetDefault("mailbox.password_length", 10)
	viper.SetDefault("mailbox.alloc_retries", 10)
	viper.SetDefault("engine.page_size", 5)
	viper.SetDefault("engine.session_ttl", "24h")
	viper.SetDefault("engine.max_sessions", 10000)
	viper.SetDefault("engine.action_interval", "700ms")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	pollTimeout, err := time.ParseDuration(viper.GetString("bot.poll_timeout"))
	if err != nil {
		pollTimeout = 30 * time.Second
	}

	sessionTTL, err := time.ParseDuration(viper.GetString("engine.session_ttl"))
	if err != nil {
		sessionTTL = 24 * time.Hour
	}

	actionInterval, err := time.ParseDuration(viper.GetString("engine.action_interval"))
	if err != nil {
		actionInterval = 700 * time.Millisecond
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	defaultDomain := strings.ToLower(strings.TrimSpace(viper.GetString("mailbox.default_domain")))
	if defaultDomain == "" {
		return nil, fmt.Errorf("mailbox.default_domain must not be empty")
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	localPartLength := viper.GetInt("mailbox.local_part_length")
	if localPartLength < 6 || localPartLength > 32 {
		return nil, fmt.Errorf("mailbox.local_part_length out of range [6, 32]: %d", localPartLength)
	}

	passwordLength := viper.GetInt("mailbox.password_length")
	if passwordLength < 8 || passwordLength > 64 {
		return nil, fmt.Errorf("mailbox.password_length out of range [8, 64]: %d", passwordLength)
	}

	pageSize := viper.GetInt("engine.page_size")
	if pageSize <= 0 {
		pageSize = 5
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		SMTP: SMTPConfig{
			BindAddr:     viper.GetString("smtp.bind_addr"),
			Hostname:     viper.GetString("smtp.hostname"),
			MaxMessageMB: viper.GetInt("smtp.max_message_mb"),
			MaxConns:     viper.GetInt("smtp.max_conns"),
			MaxConnRate:  viper.GetInt("smtp.max_conn_rate"),
		},
		Bot: BotConfig{
			Token:       viper.GetString("bot.token"),
			APIBase:     strings.TrimRight(viper.GetString("bot.api_base"), "/"),
			AdminID:     viper.GetInt64("bot.admin_id"),
			PollTimeout: pollTimeout,
		},
		Mailbox: MailboxConfig{
			DefaultDomain:   defaultDomain,
			LocalPartLength: localPartLength,
			PasswordLength:  passwordLength,
			AllocRetries:    viper.GetInt("mailbox.alloc_retries"),
		},
		Engine: EngineConfig{
			PageSize:       pageSize,
			SessionTTL:     sessionTTL,
			MaxSessions:    viper.GetInt("engine.max_sessions"),
			ActionInterval: actionInterval,
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 文件不存在时静默失败（.env 是可选的），已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
