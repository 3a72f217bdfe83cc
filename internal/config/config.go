package config

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// 配置结构体：代理循环、风控、执行、恢复与各外部协作方的全部开关都集中在这里，
// 字段保持必要最小集，便于后续扩展。
type Config struct {
	App struct {
		Env      string `toml:"env"`
		LogLevel string `toml:"log_level"`
	} `toml:"app"`

	Agent struct {
		CycleIntervalSeconds  int `toml:"cycle_interval_seconds"`  // 决策周期
		SnapshotMaxAgeMinutes int `toml:"snapshot_max_age_minutes"` // 快照新鲜度阈值
		MaxConcurrentTrades   int `toml:"max_concurrent_trades"`
		MaxDailyTrades        int `toml:"max_daily_trades"`
	} `toml:"agent"`

	Risk struct {
		CorrelationThreshold     float64 `toml:"correlation_threshold"` // 判定"相关"的皮尔逊阈值
		MaxCorrelatedAssets      int     `toml:"max_correlated_assets"`
		VaRConfidence            float64 `toml:"var_confidence"`
		MaxVaRPct                float64 `toml:"max_var_pct"`    // 占账户权益百分比
		MarginBufferPct          float64 `toml:"margin_buffer_pct"` // 可用保证金安全垫
		RejectionCooldownSeconds int     `toml:"rejection_cooldown_seconds"`
	} `toml:"risk"`

	Execution struct {
		OrderTimeoutSeconds      int     `toml:"order_timeout_seconds"`
		ReservationMaxAgeSeconds int     `toml:"reservation_max_age_seconds"` // 超龄 HELD 预留由清理轮释放
		SweepIntervalSeconds     int     `toml:"sweep_interval_seconds"`
		DefaultSizePct           float64 `toml:"default_size_pct"` // 决策未给仓位时按权益百分比兜底
	} `toml:"execution"`

	Recovery struct {
		RetryBackoffSeconds int `toml:"retry_backoff_seconds"`
	} `toml:"recovery"`

	Pairs struct {
		Provider    string   `toml:"provider"`
		DefaultList []string `toml:"default_list"`
		APIURL      string   `toml:"api_url"` // 当 provider=http 时，从该地址拉取交易对列表
	} `toml:"pairs"`

	Market struct {
		Interval            string `toml:"interval"`              // 计算指标用的 K 线周期
		Candles             int    `toml:"candles"`               // 每次拉取的根数
		MaxCached           int    `toml:"max_cached"`            // 内存缓存上限
		PriceRefreshSeconds int    `toml:"price_refresh_seconds"` // 标记价刷新间隔
	} `toml:"market"`

	Venue struct {
		Name      string `toml:"name"`
		APIKey    string `toml:"api_key"`
		APISecret string `toml:"api_secret"`
		Testnet   bool   `toml:"testnet"`
	} `toml:"venue"`

	AI struct {
		Aggregation    string             `toml:"aggregation"` // first_wins | majority | weighted
		TimeoutSeconds int                `toml:"timeout_seconds"`
		Weights        map[string]float64 `toml:"weights"`
		// 模型配置：完全通过配置文件提供，不使用环境变量
		Models []struct {
			ID       string            `toml:"id"`
			Provider string            `toml:"provider"` // openai | deepseek | qwen（均按 OpenAI 兼容接口调用）
			Enabled  bool              `toml:"enabled"`
			APIURL   string            `toml:"api_url"`
			APIKey   string            `toml:"api_key"`
			Model    string            `toml:"model"`
			Vision   bool              `toml:"vision"`  // 支持图片输入时可接收 K 线截图
			Headers  map[string]string `toml:"headers"` // 可选：自定义请求头
		} `toml:"models"`
	} `toml:"ai"`

	Notify struct {
		Telegram struct {
			Enabled  bool   `toml:"enabled"`
			BotToken string `toml:"bot_token"`
			ChatID   string `toml:"chat_id"`
		} `toml:"telegram"`
	} `toml:"notify"`

	HTTP struct {
		Enabled bool   `toml:"enabled"`
		Listen  string `toml:"listen"`
	} `toml:"http"`

	Visual struct {
		Enabled        bool   `toml:"enabled"`
		Width          int    `toml:"width"`
		Height         int    `toml:"height"`
		RenderDir      string `toml:"render_dir"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
	} `toml:"visual"`

	Storage struct {
		DBPath string `toml:"db_path"`
	} `toml:"storage"`
}

// Load 读取并解析 TOML 配置文件，并设置缺省值与基本校验
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析 TOML 失败: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// 默认值设置
func applyDefaults(c *Config) {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Agent.CycleIntervalSeconds <= 0 {
		c.Agent.CycleIntervalSeconds = 60
	}
	if c.Agent.SnapshotMaxAgeMinutes <= 0 {
		c.Agent.SnapshotMaxAgeMinutes = 15
	}
	if c.Agent.MaxConcurrentTrades <= 0 {
		c.Agent.MaxConcurrentTrades = 3
	}
	if c.Agent.MaxDailyTrades <= 0 {
		c.Agent.MaxDailyTrades = 20
	}
	if c.Risk.CorrelationThreshold <= 0 {
		c.Risk.CorrelationThreshold = 0.7
	}
	if c.Risk.MaxCorrelatedAssets <= 0 {
		c.Risk.MaxCorrelatedAssets = 3
	}
	if c.Risk.VaRConfidence <= 0 {
		c.Risk.VaRConfidence = 0.95
	}
	if c.Risk.MaxVaRPct <= 0 {
		c.Risk.MaxVaRPct = 5.0
	}
	if c.Risk.MarginBufferPct <= 0 {
		c.Risk.MarginBufferPct = 10.0
	}
	if c.Risk.RejectionCooldownSeconds <= 0 {
		c.Risk.RejectionCooldownSeconds = 180
	} // 3分钟冷却
	if c.Execution.OrderTimeoutSeconds <= 0 {
		c.Execution.OrderTimeoutSeconds = 10
	}
	if c.Execution.ReservationMaxAgeSeconds <= 0 {
		c.Execution.ReservationMaxAgeSeconds = 180
	}
	if c.Execution.SweepIntervalSeconds <= 0 {
		c.Execution.SweepIntervalSeconds = 60
	}
	if c.Execution.DefaultSizePct <= 0 {
		c.Execution.DefaultSizePct = 2.0
	}
	if c.Recovery.RetryBackoffSeconds <= 0 {
		c.Recovery.RetryBackoffSeconds = 2
	}
	if c.Pairs.Provider == "" {
		c.Pairs.Provider = "default"
	}
	if c.Market.Interval == "" {
		c.Market.Interval = "1h"
	}
	if c.Market.Candles <= 0 {
		c.Market.Candles = 120
	}
	if c.Market.MaxCached <= 0 {
		c.Market.MaxCached = 500
	}
	if c.Market.PriceRefreshSeconds <= 0 {
		c.Market.PriceRefreshSeconds = 30
	}
	if c.Venue.Name == "" {
		c.Venue.Name = "binance"
	}
	if c.AI.Aggregation == "" {
		c.AI.Aggregation = "weighted"
	}
	if c.AI.TimeoutSeconds <= 0 {
		c.AI.TimeoutSeconds = 120
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = "127.0.0.1:8880"
	}
	if c.Visual.Width <= 0 {
		c.Visual.Width = 1280
	}
	if c.Visual.Height <= 0 {
		c.Visual.Height = 720
	}
	if c.Visual.RenderDir == "" {
		c.Visual.RenderDir = "data/charts"
	}
	if c.Visual.TimeoutSeconds <= 0 {
		c.Visual.TimeoutSeconds = 20
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "data/kestrel.db"
	}
}

// 基础校验
func validate(c *Config) error {
	if c.Pairs.Provider == "default" && len(c.Pairs.DefaultList) == 0 {
		return fmt.Errorf("pairs.default_list 不能为空（当 provider=default 时）")
	}
	if c.Pairs.Provider == "http" && c.Pairs.APIURL == "" {
		return fmt.Errorf("pairs.api_url 不能为空（当 provider=http 时）")
	}
	if !isValidInterval(c.Market.Interval) {
		return fmt.Errorf("非法 market 周期: %s", c.Market.Interval)
	}
	if c.Market.MaxCached < 50 || c.Market.MaxCached > 5000 {
		return fmt.Errorf("market.max_cached 需在 [50,5000]")
	}
	if c.Risk.CorrelationThreshold <= 0 || c.Risk.CorrelationThreshold > 1 {
		return fmt.Errorf("risk.correlation_threshold 需在 (0,1]")
	}
	if c.Risk.VaRConfidence <= 0.5 || c.Risk.VaRConfidence >= 1 {
		return fmt.Errorf("risk.var_confidence 需在 (0.5,1)")
	}
	if c.Risk.MaxVaRPct > 100 {
		return fmt.Errorf("risk.max_var_pct 不能超过 100")
	}
	if c.Agent.MaxConcurrentTrades > 50 {
		return fmt.Errorf("agent.max_concurrent_trades 不能超过 50")
	}
	for _, m := range c.AI.Models {
		if !m.Enabled {
			continue
		}
		if m.ID == "" || m.APIURL == "" || m.Model == "" {
			return fmt.Errorf("已启用的模型缺少 id/api_url/model（id=%q）", m.ID)
		}
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" || c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("已启用 Telegram 通知，请提供 bot_token 与 chat_id")
		}
	}
	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		return fmt.Errorf("已启用 HTTP 服务，请提供 http.listen")
	}
	return nil
}

// isValidInterval 简易校验：以数字开头，以 m/h/d 结尾
func isValidInterval(s string) bool {
	if len(s) < 2 {
		return false
	}
	suf := s[len(s)-1]
	if suf != 'm' && suf != 'h' && suf != 'd' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
