package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"kestrel/internal/agent"
	"kestrel/internal/config"
	"kestrel/internal/execution"
	"kestrel/internal/gateway/database"
	"kestrel/internal/gateway/notifier"
	"kestrel/internal/logger"
	"kestrel/internal/metrics"
	"kestrel/internal/risk"
	opsapi "kestrel/internal/transport/http/api"
	"kestrel/internal/venue"
)

// App 负责应用级编排：构建依赖图→并发启动代理循环与各辅助服务。
type App struct {
	cfg *config.Config

	agent    *agent.Agent
	httpSrv  *opsapi.Server
	notifier *notifier.EventNotifier
	stage    *execution.Stage
	gate     *risk.Gatekeeper
	metrics  *metrics.Set
	db       *database.Store
	client   venue.Client
	prices   *venue.PriceCache
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return buildAppWithWire(ctx, cfg)
}

// Run 启动全部服务并阻塞到 ctx 取消或代理循环出错。
// 代理循环是主服务：它退出整组退出。运维接口与通知是辅助服务，
// 它们的故障只记日志，不拖垮交易。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.agent == nil {
		return fmt.Errorf("app not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	if a.httpSrv != nil {
		group.Go(func() error {
			if err := a.httpSrv.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Warnf("运维接口停止: %v", err)
			}
			return nil
		})
	}

	if a.notifier != nil {
		group.Go(func() error {
			return a.notifier.Run(ctx)
		})
	}

	group.Go(func() error {
		return a.housekeeping(ctx)
	})

	if a.prices != nil && a.client != nil {
		group.Go(func() error {
			return a.priceRefresh(ctx)
		})
	}

	group.Go(func() error {
		defer a.closeStore()
		return a.agent.Run(ctx)
	})

	return group.Wait()
}

// housekeeping 周期清理：释放超龄 HELD 预留 + 淘汰过期冷却记录。
func (a *App) housekeeping(ctx context.Context) error {
	sweepEvery := time.Duration(a.cfg.Execution.SweepIntervalSeconds) * time.Second
	maxAge := time.Duration(a.cfg.Execution.ReservationMaxAgeSeconds) * time.Second

	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := a.stage.Sweep(maxAge); n > 0 {
				a.metrics.AddSwept(n)
			}
			if n := a.gate.Cooldown().Purge(time.Now()); n > 0 {
				logger.Debugf("清理过期冷却记录 %d 条", n)
			}
		}
	}
}

// priceRefresh 标记价格刷新轮：定期经交易所端口拉取持仓，把标记价
// 写入缓存供状态接口读取。拉取失败只降噪记日志，下一轮再试。
func (a *App) priceRefresh(ctx context.Context) error {
	every := time.Duration(a.cfg.Market.PriceRefreshSeconds) * time.Second

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			positions, err := a.client.Positions(cctx)
			cancel()
			if err != nil {
				logger.Debugf("刷新标记价失败: %v", err)
				continue
			}
			a.prices.Update(positions, time.Now())
		}
	}
}

func (a *App) closeStore() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		logger.Warnf("关闭数据库: %v", err)
	}
}
