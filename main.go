package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lattice/backend/api"
	"lattice/backend/config"
	"lattice/backend/persist"
	"lattice/backend/repository"
	"lattice/backend/repository/events"
	"lattice/backend/repository/memory"
	"lattice/backend/service"
	"lattice/backend/service/applog"
	"lattice/backend/service/health"
	"lattice/backend/service/nodegroups"
	"lattice/backend/service/nodes"
	"lattice/backend/service/publish"
	"lattice/backend/service/ruleset"
	"lattice/backend/service/shared"
	"lattice/backend/tasks"
)

func main() {
	os.Exit(run())
}

func run() int {
	startedAt := time.Now()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 2
	}

	logger, logCloser, err := shared.NewLogger(cfg.Log.LogOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 2
	}
	defer logCloser.Close()
	log := logger.WithField("pid", os.Getpid())

	if cfg.Server.Dev {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. 事件总线与内存存储
	eventBus := events.NewBus()
	memStore := memory.NewStore(eventBus)

	// 2. 加载持久化状态（文件不存在时为空状态）
	state, err := persist.Load(cfg.State.Path)
	if err != nil {
		log.WithError(err).WithField("path", cfg.State.Path).Error("load state failed")
		return 1
	}
	memStore.LoadState(state)

	repos := repository.NewRepositories(
		memStore,
		memory.NewNodeRepo(memStore),
		memory.NewNodeGroupRepo(memStore),
		memory.NewRuleSetRepo(memStore),
		memory.NewSettingsRepo(memStore),
	)

	// 3. 业务服务
	httpClient, err := shared.NewHTTPClient(cfg.Refresh.Timeout, cfg.Refresh.Proxy)
	if err != nil {
		log.WithError(err).Error("create http client failed")
		return 1
	}
	nodeSvc := nodes.NewService(repos.Node(), logger.WithField("component", "nodes"))
	groupSvc := nodegroups.NewService(repos.NodeGroup(), repos.Node(), logger.WithField("component", "node-groups"))
	ruleSetSvc := ruleset.NewService(repos.RuleSet(), ruleset.NewHTTPFetcher(httpClient), logger.WithField("component", "rule-sets"))
	ruleSetSvc.SetRefreshTimeout(cfg.Refresh.Timeout)

	// 4. 发布目标
	publisher, err := newPublisher(ctx, cfg.Publish, log)
	if err != nil {
		log.WithError(err).Error("init publisher failed")
		return 1
	}

	// 5. 编译引擎
	aggregator := health.NewAggregator(repos.Node(), repos.NodeGroup(), logger.WithField("component", "health"))
	engine := service.NewEngine(repos, aggregator, publisher, logger.WithField("component", "engine"))
	engine.SetDebounce(cfg.Compile.Debounce)
	if fp, ok := publisher.(*publish.FilePublisher); ok {
		if prev, err := fp.Load(); err == nil {
			engine.Seed(prev)
		} else if !errors.Is(err, fs.ErrNotExist) {
			log.WithError(err).Warn("load previously published config failed")
		}
	}
	engine.SubscribeEvents(eventBus)

	// 6. 状态快照
	snapshotter := persist.NewSnapshotter(cfg.State.Path, memStore, logger.WithField("component", "persist"))
	snapshotter.SubscribeEvents(eventBus)

	// 7. 预设导入
	if path := strings.TrimSpace(cfg.State.Presets); path != "" {
		if err := importPresets(ctx, ruleSetSvc, path, log); err != nil {
			log.WithError(err).WithField("path", path).Warn("import presets failed")
		}
	}

	// 8. 初次编译（失败时保留 last-known-good，等待下一次写入）
	if _, err := engine.Compile(ctx); err != nil {
		log.WithError(err).Warn("initial compile failed")
	}

	// 9. 后台任务
	scheduler := tasks.NewScheduler(ruleSetSvc, engine, cfg.Refresh.Cron, cfg.Compile.Interval, logger.WithField("component", "tasks"))
	if err := scheduler.Start(ctx); err != nil {
		log.WithError(err).Error("start scheduler failed")
		return 1
	}

	// 10. 门面与路由
	facade := service.NewFacade(nodeSvc, groupSvc, ruleSetSvc, engine, repos)
	if out := strings.TrimSpace(cfg.Log.Output); out != "" && out != "stdout" && out != "stderr" {
		facade.SetAppLog(applog.NewReader(out, startedAt))
	}
	router := api.NewRouter(facade, logger.WithField("component", "api"))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cleanupDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		log.Info("shutting down")

		scheduler.Stop()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
		}

		// 保存最终状态
		if err := snapshotter.SaveNow(); err != nil {
			log.WithError(err).Error("save state failed")
		}
		close(cleanupDone)
	}()

	log.WithField("addr", srv.Addr).Info("server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("listen failed")
		cancel()
		<-cleanupDone
		return 1
	}
	<-cleanupDone
	return 0
}

func newPublisher(ctx context.Context, cfg config.PublishConfig, log logrus.FieldLogger) (publish.Publisher, error) {
	switch cfg.Mode {
	case "file":
		log.WithField("path", cfg.Path).Info("publishing compiled config to file")
		return publish.NewFilePublisher(cfg.Path), nil
	case "redis":
		client := publish.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		log.WithField("addr", cfg.Redis.Addr).WithField("key", cfg.Redis.Key).Info("publishing compiled config to redis")
		return publish.NewRedisPublisher(client, cfg.Redis.Key, cfg.Redis.Channel), nil
	default:
		return publish.Nop{}, nil
	}
}

func importPresets(ctx context.Context, svc *ruleset.Service, path string, log logrus.FieldLogger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	result, err := svc.ImportPresets(ctx, f)
	if err != nil {
		return err
	}
	log.WithField("created", len(result.Created)).WithField("updated", len(result.Updated)).Info("presets applied")
	return nil
}
