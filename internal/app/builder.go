package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kestrel/internal/agent"
	"kestrel/internal/analysis/visual"
	"kestrel/internal/config"
	"kestrel/internal/decision"
	"kestrel/internal/event"
	"kestrel/internal/execution"
	"kestrel/internal/gateway/binance"
	"kestrel/internal/gateway/database"
	"kestrel/internal/gateway/notifier"
	"kestrel/internal/gateway/provider"
	"kestrel/internal/gateway/sentiment"
	"kestrel/internal/logger"
	"kestrel/internal/market"
	"kestrel/internal/metrics"
	"kestrel/internal/pairs"
	"kestrel/internal/recovery"
	"kestrel/internal/risk"
	"kestrel/internal/store"
	opsapi "kestrel/internal/transport/http/api"
	"kestrel/internal/venue"
)

// AppBuilder 按依赖顺序组装应用：存储→事件→交易所→行情→决策→风控→
// 执行→恢复→代理→运维接口。构建失败立即返回，不做半初始化状态。
type AppBuilder struct {
	cfg *config.Config
}

func NewAppBuilder(cfg *config.Config) *AppBuilder {
	return &AppBuilder{cfg: cfg}
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	cfg := b.cfg

	db, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	bus := event.NewBus(256)
	metricsSet := metrics.New()
	bus.Attach(metricsSet)
	if db != nil {
		bus.Attach(database.NewEventRecorder(db))
	}

	eventNotifier := buildNotifier(cfg)
	if eventNotifier != nil {
		bus.Attach(eventNotifier)
		logger.Infof("✓ Telegram 通知已启用")
	}

	vn := binance.NewVenue(binance.Config{
		APIKey:    cfg.Venue.APIKey,
		APISecret: cfg.Venue.APISecret,
		Testnet:   cfg.Venue.Testnet,
	})

	mkt, err := buildMarket(ctx, cfg, vn)
	if err != nil {
		return nil, err
	}

	pairList, err := resolvePairs(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 交易对: %v", pairList)

	decider, err := buildDecider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cooldown := risk.NewCooldownCache(time.Duration(cfg.Risk.RejectionCooldownSeconds) * time.Second)
	gate := risk.NewGatekeeper(risk.Config{
		CorrelationThreshold: cfg.Risk.CorrelationThreshold,
		MaxCorrelatedAssets:  cfg.Risk.MaxCorrelatedAssets,
		VaRConfidence:        cfg.Risk.VaRConfidence,
		MaxVaRPct:            cfg.Risk.MaxVaRPct,
		MarginBufferPct:      cfg.Risk.MarginBufferPct,
		SnapshotMaxAge:       time.Duration(cfg.Agent.SnapshotMaxAgeMinutes) * time.Minute,
		DefaultSizePct:       cfg.Execution.DefaultSizePct,
	}, cooldown, mkt)

	stage := buildStage(ctx, cfg, vn, bus, db)

	recov := recovery.NewManager(recovery.Config{
		MaxConcurrentTrades: cfg.Agent.MaxConcurrentTrades,
		RetryBackoff:        time.Duration(cfg.Recovery.RetryBackoffSeconds) * time.Second,
		CallTimeout:         10 * time.Second,
	}, vn, bus)

	deps := agent.Deps{
		Client:    vn,
		Snapshots: mkt,
		Decider:   decider,
		Gate:      gate,
		Stage:     stage,
		Recovery:  recov,
		Bus:       bus,
		Observer:  metricsSet,
	}
	if db != nil {
		deps.Outcomes = db
		deps.Decisions = db
	}
	ag := agent.New(agent.Config{
		CycleInterval:  time.Duration(cfg.Agent.CycleIntervalSeconds) * time.Second,
		SnapshotMaxAge: time.Duration(cfg.Agent.SnapshotMaxAgeMinutes) * time.Minute,
	}, pairList, deps)

	prices := venue.NewPriceCache()

	httpSrv, err := buildHTTPServer(cfg, ag, db, bus, vn, metricsSet, prices)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		agent:    ag,
		httpSrv:  httpSrv,
		notifier: eventNotifier,
		stage:    stage,
		gate:     gate,
		metrics:  metricsSet,
		db:       db,
		client:   vn,
		prices:   prices,
	}, nil
}

func buildStore(cfg *config.Config) (*database.Store, error) {
	if strings.TrimSpace(cfg.Storage.DBPath) == "" {
		logger.Warnf("未配置 storage.db_path，决策/周期/成交留痕关闭")
		return nil, nil
	}
	db, err := database.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	return db, nil
}

func buildNotifier(cfg *config.Config) *notifier.EventNotifier {
	if !cfg.Notify.Telegram.Enabled {
		return nil
	}
	tg := notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	return notifier.NewEventNotifier(tg)
}

func buildMarket(ctx context.Context, cfg *config.Config, vn *binance.Venue) (*market.Provider, error) {
	cache := store.NewCandleStore(cfg.Market.MaxCached)
	mkt := market.NewProvider(vn.CandlesOf(), cache, cfg.Market.Interval, cfg.Market.Candles)
	mkt.WithSentiment(sentiment.NewFearGreedSource(""))

	if cfg.Visual.Enabled {
		if err := visual.EnsureHeadlessAvailable(ctx); err != nil {
			return nil, fmt.Errorf("初始化可视化渲染失败(请安装 headless Chrome): %w", err)
		}
		mkt.WithChart(visual.NewRenderer(visual.Config{
			Width:   cfg.Visual.Width,
			Height:  cfg.Visual.Height,
			Dir:     cfg.Visual.RenderDir,
			Timeout: time.Duration(cfg.Visual.TimeoutSeconds) * time.Second,
		}))
		logger.Infof("✓ K 线图渲染已启用")
	}
	return mkt, nil
}

func resolvePairs(ctx context.Context, cfg *config.Config) ([]string, error) {
	var p pairs.Provider
	if strings.EqualFold(cfg.Pairs.Provider, "http") {
		p = pairs.NewHTTPProvider(cfg.Pairs.APIURL)
	} else {
		p = pairs.NewStaticProvider(cfg.Pairs.DefaultList)
	}
	lctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	list, err := p.List(lctx)
	if err != nil {
		return nil, fmt.Errorf("拉取交易对列表失败(%s): %w", p.Name(), err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("交易对列表为空(%s)", p.Name())
	}
	return list, nil
}

func buildDecider(ctx context.Context, cfg *config.Config) (decision.Provider, error) {
	models := provider.FromConfig(cfg)
	enabled := make([]string, 0, len(models))
	for _, m := range models {
		if m.Enabled() {
			enabled = append(enabled, m.ID())
		}
	}
	if len(enabled) == 0 {
		return nil, fmt.Errorf("未启用任何 AI 模型（请检查 ai.models 配置）")
	}
	logger.Infof("✓ 已启用 %d 个 AI 模型: %v", len(enabled), enabled)

	agg := decision.NewAggregator(cfg.AI.Aggregation, cfg.AI.Weights)
	timeout := time.Duration(cfg.AI.TimeoutSeconds) * time.Second
	logEach := strings.EqualFold(cfg.App.Env, "dev")
	return decision.NewEnsemble(models, agg, timeout, logEach), nil
}

func buildStage(ctx context.Context, cfg *config.Config, vn venue.Client, bus *event.Bus, db *database.Store) *execution.Stage {
	ledger := execution.NewLedger()
	counter := execution.NewDailyCounter(cfg.Agent.MaxDailyTrades)
	var recorder execution.Recorder
	if db != nil {
		recorder = db
		// 重启后当日限额不清零：用库里已落的成交数播种计数器
		if n, err := db.CountTradesToday(ctx, time.Now()); err != nil {
			logger.Warnf("读取当日成交数失败，计数从 0 开始: %v", err)
		} else if n > 0 {
			counter.Seed(n, time.Now())
			logger.Infof("✓ 当日已成交 %d 笔（限额 %d）", n, counter.Limit())
		}
	}
	return execution.NewStage(execution.Config{
		OrderTimeout:   time.Duration(cfg.Execution.OrderTimeoutSeconds) * time.Second,
		DefaultSizePct: cfg.Execution.DefaultSizePct,
	}, ledger, vn, counter, bus, recorder)
}

func buildHTTPServer(cfg *config.Config, ag *agent.Agent, db *database.Store, bus *event.Bus, vn venue.Client, metricsSet *metrics.Set, prices *venue.PriceCache) (*opsapi.Server, error) {
	if !cfg.HTTP.Enabled {
		return nil, nil
	}
	srv, err := opsapi.NewServer(opsapi.ServerConfig{
		Addr:    cfg.HTTP.Listen,
		Env:     cfg.App.Env,
		Agent:   ag,
		Store:   db,
		Bus:     bus,
		Venue:   vn,
		Prices:  prices,
		Metrics: metricsSet.Handler(),
	})
	if err != nil {
		return nil, fmt.Errorf("初始化运维接口失败: %w", err)
	}
	return srv, nil
}
