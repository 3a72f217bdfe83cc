package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"kestrel/internal/app"
	"kestrel/internal/config"
	"kestrel/internal/logger"
)

// 入口程序：
// 1) 加载 TOML 配置
// 2) 组装应用（交易所/行情/决策/风控/执行/存储/通知/运维接口）
// 3) 启动代理循环，收到 SIGINT/SIGTERM 后优雅退出
func main() {
	cfgFlag := flag.String("config", "", "配置文件路径（默认 configs/config.toml，可用 KESTREL_CONFIG 覆盖）")
	flag.Parse()

	path := *cfgFlag
	if path == "" {
		path = os.Getenv("KESTREL_CONFIG")
	}
	if path == "" {
		path = "configs/config.toml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，周期=%ds，交易所=%s）", cfg.App.Env, cfg.Agent.CycleIntervalSeconds, cfg.Venue.Name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	if err := application.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("异常退出: %v", err)
	}
	logger.Infof("已退出")
}
