package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/NectaFi/necta-agents/internal/agent"
	"github.com/NectaFi/necta-agents/internal/builder"
	"github.com/NectaFi/necta-agents/internal/chain"
	"github.com/NectaFi/necta-agents/internal/config"
	"github.com/NectaFi/necta-agents/internal/console"
	"github.com/NectaFi/necta-agents/internal/executor"
	"github.com/NectaFi/necta-agents/internal/llm"
	"github.com/NectaFi/necta-agents/internal/llm/openai"
	"github.com/NectaFi/necta-agents/internal/market"
	"github.com/NectaFi/necta-agents/internal/protocol"
	"github.com/NectaFi/necta-agents/internal/task"
	"github.com/NectaFi/necta-agents/internal/wallet"
	"github.com/NectaFi/necta-agents/pkg/logger"
)

// main 是 NectaFi 执行守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("nectad 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		intentsPath = flag.String("intents", "", "意图文件路径,每行一条意图")
	)
	flag.Parse()

	if *configPath == "" {
		*configPath = os.Getenv("NECTA_CONFIG")
	}
	if *configPath == "" {
		*configPath = filepath.Join("configs", "necta.json")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.Audit.Enabled,
			Path:       cfg.Log.Audit.Path,
			MaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
			MaxBackups: cfg.Log.Audit.MaxBackups,
			MaxAgeDays: cfg.Log.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	definitions, err := chain.LoadDefinitions(cfg.Chain.Table)
	if err != nil {
		return err
	}
	def, ok := definitions.ByChainID(cfg.Chain.ID)
	if !ok {
		return fmt.Errorf("链定义表中没有链 %d", cfg.Chain.ID)
	}

	// 初始化执行账户。
	walletClient, err := wallet.NewEVMClient(ctx, wallet.Config{
		RPCURL:       firstNonEmpty(cfg.Wallet.RPCURL, def.RPCURL),
		PrivateKey:   os.Getenv(cfg.Wallet.PrivateKeyEnv),
		ChainID:      def.ChainID,
		PollInterval: cfg.Executor.ReceiptPollInterval(),
	})
	if err != nil {
		return err
	}
	defer walletClient.Close()

	marketClient, err := market.NewClient(market.Config{
		BaseURL: cfg.Market.BaseURL,
		APIKey:  os.Getenv(cfg.Market.APIKeyEnv),
		Timeout: cfg.Market.Timeout(),
	})
	if err != nil {
		return err
	}

	consoleClient, err := console.NewClient(console.Config{
		BaseURL:    cfg.Console.BaseURL,
		APIKey:     os.Getenv(cfg.Console.APIKeyEnv),
		ChainID:    def.ChainID,
		RegistryID: cfg.Console.RegistryID,
		Timeout:    cfg.Console.Timeout(),
	})
	if err != nil {
		return err
	}

	// 未配置 registry_id 时向 Console 注册执行账户。
	if cfg.Console.RegistryID == "" {
		registryID, err := consoleClient.RegisterExecutor(ctx, walletClient.PrivateKey(), console.RegistrationConfig{
			ClientID: "necta-agents",
			Name:     "NectaFi Executor",
		})
		if err != nil {
			return err
		}
		logger.L().Info("执行账户已注册",
			slog.String("registry_id", registryID),
			slog.String("address", walletClient.Address().Hex()),
		)
	}

	taskStore, err := createTaskStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := taskStore.Close(); err != nil {
			logger.L().Warn("关闭任务存储失败", slog.String("error", err.Error()))
		}
	}()

	taskQueue, err := createTaskQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := taskQueue.Close(); err != nil {
			logger.L().Warn("关闭任务队列失败", slog.String("error", err.Error()))
		}
	}()

	resolver := protocol.NewResolver(marketClient, def)
	taskBuilder := builder.New(resolver, consoleClient, taskStore, def, walletClient.Address().Hex())
	simulator := executor.NewSimulator(walletClient)
	taskExecutor := executor.New(taskStore, walletClient,
		executor.WithIndexer(consoleClient),
		executor.WithReceiptTimeout(cfg.Executor.ReceiptTimeout()),
	)

	opts := []agent.Option{}
	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return err
	}
	if llmClient != nil {
		opts = append(opts,
			agent.WithLLMClient(llmClient),
			agent.WithLLMTimeout(cfg.LLM.OpenAI.Timeout()),
		)
	}

	ag := agent.New(taskBuilder, simulator, taskExecutor, taskStore, marketClient, def.Name, opts...)

	processor := task.NewProcessor(ag, taskQueue,
		task.WithWorkerCount(cfg.Queue.Workers),
	)

	// 启动前处理本地意图文件（如有）,构建出的任务直接入队。
	if *intentsPath != "" {
		if err := enqueueIntents(ctx, ag, taskQueue, *intentsPath); err != nil {
			return err
		}
	}

	logger.L().Info("nectad 已启动",
		slog.Int64("chain_id", def.ChainID),
		slog.String("network", def.Name),
		slog.String("executor", walletClient.Address().Hex()),
	)

	if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// enqueueIntents 读取意图文件,逐行构建任务并投递到执行队列。
// 单条意图失败只记日志,不阻断其余意图。
func enqueueIntents(ctx context.Context, ag *agent.Agent, producer task.Producer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("打开意图文件失败: %w", err)
	}
	defer file.Close()

	var reqs []builder.Request
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		reqs = append(reqs, builder.Request{Text: line})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("读取意图文件失败: %w", err)
	}
	if len(reqs) == 0 {
		return nil
	}

	outcomes, succeeded, err := ag.BuildTransactions(ctx, reqs)
	if err != nil {
		return err
	}
	logger.L().Info("意图文件处理完成",
		slog.Int("total", len(reqs)),
		slog.Int("succeeded", succeeded),
	)

	for _, outcome := range outcomes {
		if outcome.Err != nil {
			logger.L().Warn("意图构建失败",
				slog.String("intent", outcome.Input.Text),
				slog.String("error", outcome.Err.Error()),
			)
			continue
		}
		if err := producer.Publish(ctx, outcome.Task.ID); err != nil {
			return err
		}
	}
	return nil
}

func createTaskStore(ctx context.Context, cfg *config.Config) (task.Store, error) {
	switch cfg.Storage.TaskStore.Driver {
	case "", "memory":
		return task.NewMemoryStore(), nil
	case "mysql":
		return task.NewMySQLStore(ctx, task.MySQLStoreConfig{
			DSN:             cfg.Storage.TaskStore.DSN,
			MaxOpenConns:    cfg.Storage.TaskStore.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.TaskStore.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.TaskStore.ConnMaxLifetimeSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.TaskStore.Driver)
	}
}

func createTaskQueue(cfg *config.Config) (task.Queue, error) {
	switch cfg.Queue.Driver {
	case "", "memory":
		return task.NewMemoryQueue(1024), nil
	case "redis":
		return task.NewRedisQueue(task.RedisQueueConfig{
			Address:   cfg.Queue.Redis.Address,
			Password:  cfg.Queue.Redis.Password,
			DB:        cfg.Queue.Redis.DB,
			Queue:     cfg.Queue.Redis.Queue,
			BlockWait: time.Duration(cfg.Queue.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:      cfg.Queue.RabbitMQ.URL,
			Queue:    cfg.Queue.RabbitMQ.Queue,
			Prefetch: cfg.Queue.RabbitMQ.Prefetch,
			Durable:  cfg.Queue.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "none":
		return nil, nil
	case "", "openai":
		apiKey := strings.TrimSpace(os.Getenv(cfg.LLM.OpenAI.APIKeyEnv))
		if apiKey == "" {
			// 没有密钥时跳过任务改写,流水线其余部分不受影响。
			return nil, nil
		}
		return openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Model:   cfg.LLM.OpenAI.Model,
			Timeout: cfg.LLM.OpenAI.Timeout(),
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
