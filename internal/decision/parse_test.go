package decision

import (
	"strings"
	"testing"
)

func TestParseModelOutputPlainJSON(t *testing.T) {
	raw := `{"action":"BUY","confidence":0.72,"size_pct":3,"stop_loss_pct":2.5,"reasoning":"突破 4h 压力位"}`
	d, err := ParseModelOutput(raw)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if d.Action != ActionBuy || d.Confidence != 0.72 || d.SizePct != 3 || d.StopLossPct != 2.5 {
		t.Fatalf("字段解析不符: %+v", d)
	}
	if d.Reasoning != "突破 4h 压力位" {
		t.Fatalf("理由不符: %q", d.Reasoning)
	}
}

func TestParseModelOutputEmbeddedInProse(t *testing.T) {
	raw := "根据当前行情分析如下。\n```json\n{\"action\": \"sell\", \"confidence\": 0.6, \"reasoning\": \"RSI 超买\"}\n```\n以上仅供参考。"
	d, err := ParseModelOutput(raw)
	if err != nil {
		t.Fatalf("夹杂说明文字时应先定位对象: %v", err)
	}
	if d.Action != ActionSell {
		t.Fatalf("期望 SELL, 得到 %s", d.Action)
	}
}

func TestParseModelOutputNormalizesSynonyms(t *testing.T) {
	d, err := ParseModelOutput(`{"action":"open_long","confidence":0.5}`)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if d.Action != ActionBuy {
		t.Fatalf("open_long 期望归一为 BUY, 得到 %s", d.Action)
	}
}

func TestParseModelOutputPercentConfidence(t *testing.T) {
	// 模型按百分数给置信度时折回 [0,1]
	d, err := ParseModelOutput(`{"action":"BUY","confidence":85}`)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if d.Confidence != 0.85 {
		t.Fatalf("期望 0.85, 得到 %v", d.Confidence)
	}
	d, _ = ParseModelOutput(`{"action":"BUY","confidence":500}`)
	if d.Confidence != 1 {
		t.Fatalf("离谱数值期望钳到 1, 得到 %v", d.Confidence)
	}
	d, _ = ParseModelOutput(`{"action":"BUY","confidence":-3}`)
	if d.Confidence != 0 {
		t.Fatalf("负数期望钳到 0, 得到 %v", d.Confidence)
	}
}

func TestParseModelOutputClampsPercentFields(t *testing.T) {
	d, err := ParseModelOutput(`{"action":"BUY","confidence":0.5,"size_pct":150,"stop_loss_pct":-2}`)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if d.SizePct != 100 || d.StopLossPct != 0 {
		t.Fatalf("百分比字段应钳到 [0,100], 得到 size=%v stop=%v", d.SizePct, d.StopLossPct)
	}
}

func TestParseModelOutputRejectsGarbage(t *testing.T) {
	if _, err := ParseModelOutput("今天不适合交易。"); err == nil {
		t.Fatalf("无 JSON 对象应报错")
	}
	if _, err := ParseModelOutput(`{"action":"MOON","confidence":0.9}`); err == nil {
		t.Fatalf("不可识别的动作应报错")
	}
	if _, err := ParseModelOutput(`{"action":`); err == nil {
		t.Fatalf("截断的 JSON 应报错")
	}
}

func TestNormalizeAction(t *testing.T) {
	cases := map[string]string{
		"BUY":        ActionBuy,
		"buy":        ActionBuy,
		" Long ":     ActionBuy,
		"OPEN_LONG":  ActionBuy,
		"SELL":       ActionSell,
		"short":      ActionSell,
		"OPEN_SHORT": ActionSell,
		"HOLD":       ActionHold,
		"wait":       ActionHold,
		"NONE":       ActionHold,
		"MOON":       "",
		"":           "",
	}
	for in, want := range cases {
		if got := NormalizeAction(in); got != want {
			t.Fatalf("NormalizeAction(%q) 期望 %q, 得到 %q", in, want, got)
		}
	}
}

func TestDecisionValidate(t *testing.T) {
	ok := Decision{Pair: "BTCUSDT", Action: ActionBuy, Confidence: 0.5, SizePct: 2, StopLossPct: 3}
	if err := ok.Validate(); err != nil {
		t.Fatalf("合法决策不应报错: %v", err)
	}
	bad := []Decision{
		{Pair: "BTCUSDT", Action: "MOON"},
		{Action: ActionBuy, Confidence: 0.5}, // 方向单缺交易对
		{Pair: "BTCUSDT", Action: ActionBuy, Confidence: 1.5},
		{Pair: "BTCUSDT", Action: ActionBuy, SizePct: 120},
		{Pair: "BTCUSDT", Action: ActionBuy, StopLossPct: -1},
	}
	for i, d := range bad {
		if err := d.Validate(); err == nil {
			t.Fatalf("第 %d 个非法决策未被拦截: %+v", i, d)
		}
	}
	// HOLD 不要求交易对
	if err := (Decision{Action: ActionHold}).Validate(); err != nil {
		t.Fatalf("全局 HOLD 应合法: %v", err)
	}
}

func TestDecisionFingerprint(t *testing.T) {
	d := Decision{Pair: "BTCUSDT", Action: ActionBuy}
	if d.Fingerprint() != "BTCUSDT#BUY" {
		t.Fatalf("期望 BTCUSDT#BUY, 得到 %s", d.Fingerprint())
	}
	if !strings.Contains(Decision{Pair: "ETHUSDT", Action: ActionSell}.Fingerprint(), "#SELL") {
		t.Fatalf("指纹应含动作")
	}
}
