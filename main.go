package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"financify/api"
	"financify/config"
	"financify/connectivity"
	"financify/database"
	"financify/middleware"
	"financify/queue"
	"financify/remote"
	"financify/resilient"
	"financify/router"
	"financify/service"
	"financify/storage"
	"financify/telemetry"
)

// @title Financify API
// @version 1.0
// @description 离线优先的个人记账 API：交易、周期交易、储蓄目标、预算、账户、报表、导出与备份
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

var (
	configFile  string
	port        string
	showVersion bool
)

func init() {
	flag.StringVar(&configFile, "config", "", "外部配置文件路径（可选）")
	flag.StringVar(&configFile, "c", "", "外部配置文件路径（简写）")
	flag.StringVar(&port, "port", "", "监听端口，如: 8080 或 :8080")
	flag.StringVar(&port, "p", "", "监听端口（简写）")
	flag.BoolVar(&showVersion, "version", false, "显示版本信息")
	flag.BoolVar(&showVersion, "v", false, "显示版本信息（简写）")
}

func main() {
	flag.Parse()

	if showVersion {
		log.Println("Financify v1.0.0")
		return
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	if port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Server.Port = port
		log.Printf("命令行指定端口: %s", port)
	}

	config.PrintConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("指标初始化失败: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("关闭指标导出失败: %v", err)
		}
	}()

	if err := database.Init(cfg); err != nil {
		log.Fatalf("数据库初始化失败: %v", err)
	}
	store := storage.NewGormStore(database.DB)

	var backend remote.Backend = remote.Unavailable{}
	if cfg.Supabase.URL != "" {
		sb, err := remote.NewSupabaseBackend(cfg.Supabase.URL, cfg.Supabase.Key, cfg.Supabase.ProbeTable)
		if err != nil {
			log.Printf("Supabase 客户端创建失败，以纯离线模式运行: %v", err)
		} else {
			backend = sb
		}
	} else {
		log.Println("未配置 Supabase，以纯离线模式运行")
	}

	monitor := connectivity.NewMonitor(backend, cfg.Sync.ProbeTimeout, cfg.Sync.CheckInterval)
	q := queue.New(store, monitor, queue.Options{
		MaxRetries: cfg.Sync.MaxRetries,
		Retention:  cfg.Sync.Retention,
	})
	wrapper := resilient.New(backend, store, monitor, resilient.Options{
		Retries:   cfg.Sync.RequestRetries,
		BaseDelay: cfg.Sync.BaseDelay,
		Timeout:   cfg.Sync.RequestTimeout,
	})
	deps := service.Deps{Store: store, Wrapper: wrapper, Queue: q}

	var notifier service.BudgetNotifier
	if cfg.Email.Enabled {
		notifier = &service.EmailBudgetNotifier{
			Email:  service.NewEmailService(&cfg.Email),
			Lookup: api.LookupUserEmail,
		}
	}

	transactions := service.NewTransactionService(deps)
	recurring := service.NewRecurringService(deps, transactions)
	goals := service.NewGoalService(deps)
	budgets := service.NewBudgetService(deps, transactions, notifier)
	accounts := service.NewAccountService(deps, transactions)
	reports := service.NewReportService(deps, transactions, budgets, goals, accounts)

	if n, err := q.Recover(); err != nil {
		log.Printf("恢复离线队列失败: %v", err)
	} else if n > 0 {
		log.Printf("恢复了 %d 条中断的队列操作", n)
	}

	// 恢复在线后先同步离线队列，再回放暂存写入
	monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		go func() {
			if _, err := q.ProcessQueue(ctx); err != nil {
				log.Printf("同步离线队列失败: %v", err)
			}
			if _, err := wrapper.ReplayPending(ctx); err != nil {
				log.Printf("回放暂存写入失败: %v", err)
			}
		}()
	})
	monitor.Start(ctx)
	defer monitor.Stop()
	go q.Run(ctx, cfg.Sync.CheckInterval)

	middleware.InitJWT(cfg)

	r := router.SetupRouter(cfg, &router.Handlers{
		Auth:         api.NewAuthHandler(cfg, reports),
		Transactions: api.NewTransactionHandler(transactions),
		Recurring:    api.NewRecurringHandler(recurring),
		Goals:        api.NewGoalHandler(goals),
		Budgets:      api.NewBudgetHandler(budgets),
		Accounts:     api.NewAccountHandler(accounts),
		Categories:   api.NewCategoryHandler(service.NewCategoryService(deps)),
		Reports:      api.NewReportHandler(reports),
		Export:       api.NewExportHandler(transactions, service.NewExportService()),
		Backup:       api.NewBackupHandler(service.NewBackupService(deps, transactions, recurring, goals, budgets, accounts)),
		Sync:         api.NewSyncHandler(q, wrapper, monitor, reports),
	})

	log.Printf("==========================================")
	log.Printf("  💰 Financify 已启动")
	log.Printf("==========================================")
	log.Printf("  Swagger:  http://localhost%s/swagger/index.html", cfg.Server.Port)
	log.Printf("  API接口:  http://localhost%s/api/v1/", cfg.Server.Port)
	if cfg.Telemetry.Enabled {
		log.Printf("  指标:     http://localhost%s/metrics", cfg.Server.Port)
	}
	log.Printf("==========================================")

	if err := r.Run(cfg.Server.Port); err != nil {
		log.Fatalf("服务器启动失败: %v", err)
	}
}
