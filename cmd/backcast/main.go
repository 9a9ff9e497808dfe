package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"backcast/internal/app"
	bccfg "backcast/internal/config"
	"backcast/internal/logger"
)

func main() {
	cfgPath := flag.String("config", defaultConfigPath(), "配置文件路径")
	serve := flag.Bool("serve", false, "以 HTTP 服务模式运行（默认按配置跑一次回放后退出）")
	flag.Parse()

	cfg, err := bccfg.Load(*cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，market=%s，symbols=%d）",
		cfg.App.Env, cfg.Replay.Market, len(cfg.Replay.Symbols))

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve {
		if err := application.Serve(ctx); err != nil {
			log.Fatalf("HTTP 服务退出: %v", err)
		}
		return
	}

	run, err := application.RunOnce(ctx)
	if err != nil {
		log.Fatalf("回放失败: %v", err)
	}
	logger.Infof("回放完成 run=%s cycles=%d fills=%d rejections=%d fees=%.6f",
		run.ID, run.Stats.Cycles, run.Stats.Fills, run.Stats.Rejections, run.Stats.Fees)
}

func defaultConfigPath() string {
	if p := os.Getenv("BACKCAST_CONFIG"); p != "" {
		return p
	}
	return "configs/config.yaml"
}
