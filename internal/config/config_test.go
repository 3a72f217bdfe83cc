package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("写临时配置失败: %v", err)
	}
	return path
}

const minimalConfig = `
[pairs]
default_list = ["BTCUSDT"]
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Agent.CycleIntervalSeconds != 60 {
		t.Fatalf("周期缺省期望 60s, 得到 %d", cfg.Agent.CycleIntervalSeconds)
	}
	if cfg.Agent.SnapshotMaxAgeMinutes != 15 {
		t.Fatalf("新鲜度缺省期望 15m, 得到 %d", cfg.Agent.SnapshotMaxAgeMinutes)
	}
	if cfg.Agent.MaxConcurrentTrades != 3 || cfg.Agent.MaxDailyTrades != 20 {
		t.Fatalf("持仓/日限缺省期望 3/20, 得到 %d/%d", cfg.Agent.MaxConcurrentTrades, cfg.Agent.MaxDailyTrades)
	}
	if cfg.Risk.CorrelationThreshold != 0.7 || cfg.Risk.MaxVaRPct != 5.0 || cfg.Risk.RejectionCooldownSeconds != 180 {
		t.Fatalf("风控缺省不符: %+v", cfg.Risk)
	}
	if cfg.Execution.OrderTimeoutSeconds != 10 || cfg.Execution.DefaultSizePct != 2.0 {
		t.Fatalf("执行缺省不符: %+v", cfg.Execution)
	}
	if cfg.Market.Interval != "1h" || cfg.Market.Candles != 120 || cfg.Market.PriceRefreshSeconds != 30 {
		t.Fatalf("行情缺省不符: %+v", cfg.Market)
	}
	if cfg.Venue.Name != "binance" {
		t.Fatalf("交易所缺省期望 binance, 得到 %s", cfg.Venue.Name)
	}
	if cfg.HTTP.Listen != "127.0.0.1:8880" {
		t.Fatalf("HTTP 监听缺省不符: %s", cfg.HTTP.Listen)
	}
	if cfg.Storage.DBPath != "data/kestrel.db" {
		t.Fatalf("存储路径缺省不符: %s", cfg.Storage.DBPath)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	body := `
[app]
env = "prod"
log_level = "warn"

[agent]
cycle_interval_seconds = 300
max_daily_trades = 5

[risk]
max_var_pct = 3.5

[pairs]
provider = "default"
default_list = ["btc", "ETHUSDT", "btc"]

[market]
interval = "4h"
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.App.Env != "prod" || cfg.App.LogLevel != "warn" {
		t.Fatalf("app 配置未生效: %+v", cfg.App)
	}
	if cfg.Agent.CycleIntervalSeconds != 300 || cfg.Agent.MaxDailyTrades != 5 {
		t.Fatalf("agent 配置未生效: %+v", cfg.Agent)
	}
	if cfg.Risk.MaxVaRPct != 3.5 {
		t.Fatalf("风控覆盖未生效: %v", cfg.Risk.MaxVaRPct)
	}
	if cfg.Market.Interval != "4h" {
		t.Fatalf("行情周期未生效: %s", cfg.Market.Interval)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("缺失文件应报错")
	}
}

func TestLoadMalformedTOML(t *testing.T) {
	if _, err := Load(writeConfig(t, "agent = [broken")); err == nil {
		t.Fatalf("坏 TOML 应报错")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "default provider 无列表",
			body: `[pairs]
provider = "default"`,
			want: "default_list",
		},
		{
			name: "http provider 无地址",
			body: `[pairs]
provider = "http"`,
			want: "api_url",
		},
		{
			name: "非法周期",
			body: minimalConfig + `
[market]
interval = "1w"`,
			want: "周期",
		},
		{
			name: "相关性阈值越界",
			body: minimalConfig + `
[risk]
correlation_threshold = 1.5`,
			want: "correlation_threshold",
		},
		{
			name: "VaR 置信度越界",
			body: minimalConfig + `
[risk]
var_confidence = 0.3`,
			want: "var_confidence",
		},
		{
			name: "启用的模型缺字段",
			body: minimalConfig + `
[[ai.models]]
id = "gpt"
enabled = true`,
			want: "模型",
		},
		{
			name: "Telegram 缺凭据",
			body: minimalConfig + `
[notify.telegram]
enabled = true`,
			want: "Telegram",
		},
	}
	for _, c := range cases {
		_, err := Load(writeConfig(t, c.body))
		if err == nil {
			t.Fatalf("%s: 应被校验拦截", c.name)
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Fatalf("%s: 错误信息应含 %q, 得到 %v", c.name, c.want, err)
		}
	}
}

func TestIsValidInterval(t *testing.T) {
	valid := []string{"1m", "15m", "1h", "4h", "1d"}
	for _, s := range valid {
		if !isValidInterval(s) {
			t.Fatalf("%q 应合法", s)
		}
	}
	invalid := []string{"", "h", "1w", "m15", "4H", "1.5h"}
	for _, s := range invalid {
		if isValidInterval(s) {
			t.Fatalf("%q 应非法", s)
		}
	}
}
