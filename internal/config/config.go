package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Config 描述守护进程启动阶段需要加载的核心配置。
type Config struct {
	Wallet   WalletConfig   `json:"wallet"`
	Chain    ChainConfig    `json:"chain"`
	Market   MarketConfig   `json:"market"`
	Console  ConsoleConfig  `json:"console"`
	Storage  StorageConfig  `json:"storage"`
	Queue    QueueConfig    `json:"queue"`
	Executor ExecutorConfig `json:"executor"`
	LLM      LLMConfig      `json:"llm"`
	Log      LogConfig      `json:"log"`
}

// WalletConfig 描述执行账户。私钥只允许通过环境变量注入。
type WalletConfig struct {
	PrivateKeyEnv string `json:"private_key_env"`
	RPCURL        string `json:"rpc_url"`
}

// ChainConfig 选择目标链并指向链定义表。
type ChainConfig struct {
	ID    int64  `json:"id"`
	Table string `json:"table"`
}

// MarketConfig 描述行情数据服务的访问方式。
type MarketConfig struct {
	BaseURL        string `json:"base_url"`
	APIKeyEnv      string `json:"api_key_env"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ConsoleConfig 描述交易构建服务（Console）的访问方式。
type ConsoleConfig struct {
	BaseURL        string `json:"base_url"`
	APIKeyEnv      string `json:"api_key_env"`
	RegistryID     string `json:"registry_id"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// StorageConfig 统一描述任务存储后端的连接信息。
type StorageConfig struct {
	TaskStore TaskStoreConfig `json:"task_store"`
}

// TaskStoreConfig 支持 memory 与 mysql 两种驱动。
type TaskStoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// QueueConfig 描述执行队列。memory 适用于单进程，redis/rabbitmq 用于
// 多实例部署。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Workers  int            `json:"workers"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列连接参数。
type RedisConfig struct {
	Address          string `json:"address"`
	Password         string `json:"password"`
	DB               int    `json:"db"`
	Queue            string `json:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列连接参数。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// ExecutorConfig 控制链上执行的边界参数。
type ExecutorConfig struct {
	ReceiptTimeoutSeconds int `json:"receipt_timeout_seconds"`
	ReceiptPollMillis     int `json:"receipt_poll_millis"`
}

// LLMConfig 配置任务改写所用的大模型。
type LLMConfig struct {
	Provider string       `json:"provider"`
	OpenAI   OpenAIConfig `json:"openai"`
}

// OpenAIConfig 描述 OpenAI Chat Completions 的调用参数。
type OpenAIConfig struct {
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level       string         `json:"level"`
	Format      string         `json:"format"`
	OutputPaths []string       `json:"output_paths"`
	Audit       LogAuditConfig `json:"audit"`
}

// LogAuditConfig 控制执行审计日志。
type LogAuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

// Timeout 返回行情服务调用超时。
func (c MarketConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout 返回交易构建服务调用超时。
func (c ConsoleConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout 返回大模型调用超时。
func (c OpenAIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ReceiptTimeout 返回等待交易回执的上限。
func (c ExecutorConfig) ReceiptTimeout() time.Duration {
	return time.Duration(c.ReceiptTimeoutSeconds) * time.Second
}

// ReceiptPollInterval 返回轮询交易回执的间隔。
func (c ExecutorConfig) ReceiptPollInterval() time.Duration {
	return time.Duration(c.ReceiptPollMillis) * time.Millisecond
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Wallet.PrivateKeyEnv == "" {
		c.Wallet.PrivateKeyEnv = "EXECUTOR_EOA_PRIVATE_KEY"
	}
	if c.Chain.ID == 0 {
		c.Chain.ID = 8453
	}
	if c.Chain.Table != "" && !filepath.IsAbs(c.Chain.Table) {
		c.Chain.Table = filepath.Join(baseDir, c.Chain.Table)
	}

	if c.Market.BaseURL == "" {
		c.Market.BaseURL = "https://api.stakek.it"
	}
	if c.Market.APIKeyEnv == "" {
		c.Market.APIKeyEnv = "STAKEKIT_API_KEY"
	}
	if c.Market.TimeoutSeconds <= 0 {
		c.Market.TimeoutSeconds = 15
	}

	if c.Console.BaseURL == "" {
		c.Console.BaseURL = "https://dev.console.fi/v1/vendor"
	}
	if c.Console.APIKeyEnv == "" {
		c.Console.APIKeyEnv = "CONSOLE_API_KEY"
	}
	if c.Console.TimeoutSeconds <= 0 {
		c.Console.TimeoutSeconds = 30
	}

	if c.Storage.TaskStore.Driver == "" {
		c.Storage.TaskStore.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 1
	}

	if c.Executor.ReceiptTimeoutSeconds <= 0 {
		c.Executor.ReceiptTimeoutSeconds = 120
	}
	if c.Executor.ReceiptPollMillis <= 0 {
		c.Executor.ReceiptPollMillis = 2000
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.OpenAI.APIKeyEnv == "" {
		c.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.LLM.OpenAI.Model == "" {
		c.LLM.OpenAI.Model = "gpt-4o-mini"
	}
	if c.LLM.OpenAI.TimeoutSeconds <= 0 {
		c.LLM.OpenAI.TimeoutSeconds = 60
	}
}
