package decision

import (
	"context"
	"strings"
	"testing"
)

func out(id, action string, conf float64) ModelOutput {
	return ModelOutput{ProviderID: id, Decision: Decision{Action: action, Confidence: conf, SizePct: 2}}
}

func failed(id string) ModelOutput {
	return ModelOutput{ProviderID: id, Err: context.DeadlineExceeded}
}

func TestFirstWinsSkipsFailures(t *testing.T) {
	agg := FirstWinsAggregator{}
	d, err := agg.Aggregate(context.Background(), []ModelOutput{
		failed("a"),
		out("b", ActionSell, 0.6),
		out("c", ActionBuy, 0.9),
	})
	if err != nil {
		t.Fatalf("聚合失败: %v", err)
	}
	if d.Action != ActionSell {
		t.Fatalf("应取首个成功输出 SELL, 得到 %s", d.Action)
	}
	if len(d.Providers) != 1 || d.Providers[0] != "b" {
		t.Fatalf("Providers 期望 [b], 得到 %v", d.Providers)
	}
}

func TestFirstWinsAllFailed(t *testing.T) {
	agg := FirstWinsAggregator{}
	if _, err := agg.Aggregate(context.Background(), []ModelOutput{failed("a"), failed("b")}); err == nil {
		t.Fatalf("全部失败应报错")
	}
}

func TestVoteUnanimousDirection(t *testing.T) {
	agg := VoteAggregator{}
	d, err := agg.Aggregate(context.Background(), []ModelOutput{
		out("a", ActionBuy, 0.9),
		out("b", ActionBuy, 0.7),
		out("c", ActionBuy, 0.8),
	})
	if err != nil {
		t.Fatalf("聚合失败: %v", err)
	}
	if d.Action != ActionBuy {
		t.Fatalf("期望 BUY, 得到 %s", d.Action)
	}
	// 等权加权平均 (0.9+0.7+0.8)/3
	if !almostEq(d.Confidence, 0.8, 1e-9) {
		t.Fatalf("置信度期望 0.8, 得到 %v", d.Confidence)
	}
	if len(d.Providers) != 3 {
		t.Fatalf("Providers 应含全部投票者, 得到 %v", d.Providers)
	}
}

func TestVoteBelowThresholdHolds(t *testing.T) {
	// 3 票分裂 2:1, 2/3 阈值恰好 2.0, BUY 达标
	agg := VoteAggregator{}
	d, err := agg.Aggregate(context.Background(), []ModelOutput{
		out("a", ActionBuy, 0.8),
		out("b", ActionBuy, 0.6),
		out("c", ActionSell, 0.9),
	})
	if err != nil {
		t.Fatalf("聚合失败: %v", err)
	}
	if d.Action != ActionBuy {
		t.Fatalf("2/3 得票应执行 BUY, 得到 %s", d.Action)
	}

	// 1:1:1 三方分裂, 无动作达到阈值 → 整轮观望
	d, err = agg.Aggregate(context.Background(), []ModelOutput{
		out("a", ActionBuy, 0.8),
		out("b", ActionSell, 0.8),
		out("c", ActionHold, 0.8),
	})
	if err != nil {
		t.Fatalf("聚合失败: %v", err)
	}
	if d.Action != ActionHold {
		t.Fatalf("无赢家应观望, 得到 %s", d.Action)
	}
	if !strings.Contains(d.Reasoning, "观望") {
		t.Fatalf("观望结论应说明原因, 得到 %q", d.Reasoning)
	}
}

func TestVoteWeightsDecideWinner(t *testing.T) {
	agg := VoteAggregator{Weights: map[string]float64{"pro": 3, "amateur": 1}}
	d, err := agg.Aggregate(context.Background(), []ModelOutput{
		out("pro", ActionSell, 0.7),
		out("amateur", ActionBuy, 0.9),
	})
	if err != nil {
		t.Fatalf("聚合失败: %v", err)
	}
	// SELL 得 3/4 权重, 达到 2/3 阈值
	if d.Action != ActionSell {
		t.Fatalf("高权重模型应胜出, 得到 %s", d.Action)
	}
}

func TestVoteIgnoresFailedOutputs(t *testing.T) {
	agg := VoteAggregator{}
	d, err := agg.Aggregate(context.Background(), []ModelOutput{
		failed("a"),
		failed("b"),
		out("c", ActionBuy, 0.9),
	})
	if err != nil {
		t.Fatalf("聚合失败: %v", err)
	}
	// 唯一有效票占全部有效权重, 必然达标
	if d.Action != ActionBuy {
		t.Fatalf("期望 BUY, 得到 %s", d.Action)
	}
}

func TestVoteAllFailed(t *testing.T) {
	agg := VoteAggregator{}
	if _, err := agg.Aggregate(context.Background(), []ModelOutput{failed("a")}); err == nil {
		t.Fatalf("无有效票应报错")
	}
}

func TestMergeWinnerTakesLeadSizing(t *testing.T) {
	agg := VoteAggregator{Weights: map[string]float64{"lead": 2, "tail": 1}}
	leadOut := out("lead", ActionBuy, 0.9)
	leadOut.Decision.SizePct = 5
	leadOut.Decision.StopLossPct = 3
	tailOut := out("tail", ActionBuy, 0.6)
	tailOut.Decision.SizePct = 1

	d, err := agg.Aggregate(context.Background(), []ModelOutput{tailOut, leadOut})
	if err != nil {
		t.Fatalf("聚合失败: %v", err)
	}
	if d.SizePct != 5 || d.StopLossPct != 3 {
		t.Fatalf("仓位/止损应取权重最高者, 得到 size=%v stop=%v", d.SizePct, d.StopLossPct)
	}
	// 加权平均 (0.9*2+0.6*1)/3 = 0.8
	if !almostEq(d.Confidence, 0.8, 1e-9) {
		t.Fatalf("置信度期望 0.8, 得到 %v", d.Confidence)
	}
}

func TestNewAggregatorByName(t *testing.T) {
	if NewAggregator("first_wins", nil).Name() != "first-wins" {
		t.Fatalf("first_wins 应构造 FirstWins")
	}
	if NewAggregator("majority", map[string]float64{"a": 2}).Name() != "weighted-vote" {
		t.Fatalf("majority 应构造等权投票")
	}
	if NewAggregator("", nil).Name() != "weighted-vote" {
		t.Fatalf("缺省应构造加权投票")
	}
}

func almostEq(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}
