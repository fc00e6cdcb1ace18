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

// PollConfig 定义收件循环的调度配置
type PollConfig struct {
	Interval    time.Duration // 两轮收件之间的间隔，默认 2 分钟
	Concurrency int           // 单轮并行处理来信的最大数量，默认 4
}

// MailConfig 定义 IMAP/SMTP 邮箱账号配置
type MailConfig struct {
	IMAPAddr      string // IMAP 服务地址，格式 "host:port"（TLS）
	SMTPAddr      string // SMTP 提交地址，格式 "host:port"
	Username      string // 邮箱账号
	Password      string // 邮箱密码或应用专用密码
	FromAddress   string // 回信的 From 地址，留空时使用 Username
	InboxMailbox  string // 收件箱名称，默认 "INBOX"
	DraftsMailbox string // 草稿箱名称，默认 "Drafts"
	MaxResults    int    // 单轮最多取回的未读来信数，默认 50
	RateLimit     int    // 对邮箱服务的每秒操作上限，默认 5
}

// LLMConfig 定义回信生成服务配置
type LLMConfig struct {
	BaseURL      string        // OpenAI 兼容接口地址
	APIKey       string        // 接口密钥
	Model        string        // 模型名称，默认 "gpt-4o-mini"
	SystemPrompt string        // 系统提示词，留空使用内置默认
	MaxTokens    int           // 单次生成的最大 token 数，默认 300
	Temperature  float64       // 采样温度，默认 0.5
	Timeout      time.Duration // 单次请求超时，默认 30 秒
}

// StorageConfig 定义草稿存储配置
type StorageConfig struct {
	Backend      string // 存储后端: "memory"、"sqlite" 或 "postgres"
	SQLitePath   string // SQLite 数据库文件路径
	PostgresDSN  string // PostgreSQL 连接字符串
	MaxOpenConns int    // PostgreSQL 最大连接数，默认 10
}

// AuthConfig 定义评审界面的操作员认证配置
type AuthConfig struct {
	Username string // 操作员账号，默认 "operator"
	Password string // 操作员密码，必须显式设置
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server  ServerConfig  // HTTP 服务器配置
	Poll    PollConfig    // 收件循环配置
	Mail    MailConfig    // 邮箱账号配置
	LLM     LLMConfig     // 回信生成配置
	Storage StorageConfig // 草稿存储配置
	Auth    AuthConfig    // 操作员认证配置
	CORS    CORSConfig    // 跨域配置
	Log     LogConfig     // 日志配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: AUTOREPLY_
// 例如: AUTOREPLY_MAIL_USERNAME, AUTOREPLY_LLM_API_KEY
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("autoreply")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("poll.interval", "2m")
	viper.SetDefault("poll.concurrency", 4)
	viper.SetDefault("mail.imap_addr", "")
	viper.SetDefault("mail.smtp_addr", "")
	viper.SetDefault("mail.username", "")
	viper.SetDefault("mail.password", "")
	viper.SetDefault("mail.from_address", "")
	viper.SetDefault("mail.inbox_mailbox", "INBOX")
	viper.SetDefault("mail.drafts_mailbox", "Drafts")
	viper.SetDefault("mail.max_results", 50)
	viper.SetDefault("mail.rate_limit", 5)
	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.system_prompt", "")
	viper.SetDefault("llm.max_tokens", 300)
	viper.SetDefault("llm.temperature", 0.5)
	viper.SetDefault("llm.timeout", "30s")
	viper.SetDefault("storage.backend", "sqlite")
	viper.SetDefault("storage.sqlite_path", "autoreply.db")
	viper.SetDefault("storage.postgres_dsn", "")
	viper.SetDefault("storage.max_open_conns", 10)
	viper.SetDefault("auth.username", "operator")
	viper.SetDefault("auth.password", "change-me-in-production")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)

	pollInterval, err := time.ParseDuration(viper.GetString("poll.interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid poll.interval: %w", err)
	}
	if pollInterval < time.Second {
		return nil, fmt.Errorf("poll.interval must be at least 1s")
	}

	concurrency := viper.GetInt("poll.concurrency")
	if concurrency <= 0 {
		concurrency = 4
	}

	llmTimeout, err := time.ParseDuration(viper.GetString("llm.timeout"))
	if err != nil {
		llmTimeout = 30 * time.Second
	}

	backend := strings.ToLower(viper.GetString("storage.backend"))
	switch backend {
	case "memory", "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("invalid storage.backend %q: must be memory, sqlite or postgres", backend)
	}
	if backend == "postgres" && viper.GetString("storage.postgres_dsn") == "" {
		return nil, fmt.Errorf("storage.postgres_dsn is required when storage.backend is postgres")
	}

	authPassword := viper.GetString("auth.password")

	// 安全检查：禁止使用默认的操作员密码
	if authPassword == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: operator password cannot be the default value. Please set AUTOREPLY_AUTH_PASSWORD environment variable")
	}
	if len(authPassword) < 8 {
		return nil, fmt.Errorf("SECURITY ERROR: operator password must be at least 8 characters long")
	}

	fromAddress := viper.GetString("mail.from_address")
	if fromAddress == "" {
		fromAddress = viper.GetString("mail.username")
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Poll: PollConfig{
			Interval:    pollInterval,
			Concurrency: concurrency,
		},
		Mail: MailConfig{
			IMAPAddr:      viper.GetString("mail.imap_addr"),
			SMTPAddr:      viper.GetString("mail.smtp_addr"),
			Username:      viper.GetString("mail.username"),
			Password:      viper.GetString("mail.password"),
			FromAddress:   fromAddress,
			InboxMailbox:  viper.GetString("mail.inbox_mailbox"),
			DraftsMailbox: viper.GetString("mail.drafts_mailbox"),
			MaxResults:    viper.GetInt("mail.max_results"),
			RateLimit:     viper.GetInt("mail.rate_limit"),
		},
		LLM: LLMConfig{
			BaseURL:      viper.GetString("llm.base_url"),
			APIKey:       viper.GetString("llm.api_key"),
			Model:        viper.GetString("llm.model"),
			SystemPrompt: viper.GetString("llm.system_prompt"),
			MaxTokens:    viper.GetInt("llm.max_tokens"),
			Temperature:  viper.GetFloat64("llm.temperature"),
			Timeout:      llmTimeout,
		},
		Storage: StorageConfig{
			Backend:      backend,
			SQLitePath:   viper.GetString("storage.sqlite_path"),
			PostgresDSN:  viper.GetString("storage.postgres_dsn"),
			MaxOpenConns: viper.GetInt("storage.max_open_conns"),
		},
		Auth: AuthConfig{
			Username: viper.GetString("auth.username"),
			Password: authPassword,
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
//
// 参数:
//   - value: 逗号分隔的字符串，如 "item1,item2,item3"
//
// 返回值:
//   - []string: 解析后的字符串切片，已去除空白字符
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
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env（用于从 backend/ 子目录运行的情况）
//
// 注意：
//   - 如果文件不存在，静默失败（.env 是可选的）
//   - 环境变量不会被覆盖（已存在的环境变量优先级更高）
func loadEnvFile() {
	// 尝试当前目录的 .env
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	// 尝试父目录的 .env
	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
