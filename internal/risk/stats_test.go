package risk

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestPearsonPerfectCorrelation(t *testing.T) {
	a := []float64{0.01, -0.02, 0.03, 0.015, -0.01}
	if r := pearson(a, a); !almostEqual(r, 1, 1e-9) {
		t.Fatalf("同序列期望 ρ=1, 得到 %v", r)
	}
	b := make([]float64, len(a))
	for i, v := range a {
		b[i] = -v
	}
	if r := pearson(a, b); !almostEqual(r, -1, 1e-9) {
		t.Fatalf("反向序列期望 ρ=-1, 得到 %v", r)
	}
}

func TestPearsonTailAlignment(t *testing.T) {
	// 长短不一时按尾部对齐: 长序列的前缀不参与
	long := []float64{9, 9, 9, 0.01, -0.02, 0.03}
	short := []float64{0.01, -0.02, 0.03}
	if r := pearson(long, short); !almostEqual(r, 1, 1e-9) {
		t.Fatalf("尾部对齐后期望 ρ=1, 得到 %v", r)
	}
}

func TestPearsonDegenerateInputs(t *testing.T) {
	if r := pearson([]float64{1, 2}, []float64{1, 2}); r != 0 {
		t.Fatalf("样本不足期望 0, 得到 %v", r)
	}
	flat := []float64{0.01, 0.01, 0.01, 0.01}
	wavy := []float64{0.01, -0.02, 0.03, 0.02}
	if r := pearson(flat, wavy); r != 0 {
		t.Fatalf("零方差序列期望 0, 得到 %v", r)
	}
}

func TestStddevKnownSample(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	want := math.Sqrt(32.0 / 7.0)
	if got := stddev(xs); !almostEqual(got, want, 1e-9) {
		t.Fatalf("期望 %v, 得到 %v", want, got)
	}
	if got := stddev([]float64{3}); got != 0 {
		t.Fatalf("单样本期望 0, 得到 %v", got)
	}
}

func TestNormalQuantile(t *testing.T) {
	if z := normalQuantile(0.95); !almostEqual(z, 1.6449, 1e-9) {
		t.Fatalf("z(0.95) 期望 1.6449, 得到 %v", z)
	}
	// 表中间线性插值: 0.925 位于 0.90 与 0.95 正中
	if z := normalQuantile(0.925); !almostEqual(z, (1.2816+1.6449)/2, 1e-9) {
		t.Fatalf("z(0.925) 期望插值 %v, 得到 %v", (1.2816+1.6449)/2, z)
	}
	if z := normalQuantile(0.5); z != 0.8416 {
		t.Fatalf("低于表下界期望钳到 0.8416, 得到 %v", z)
	}
	if z := normalQuantile(0.999); z != 2.5758 {
		t.Fatalf("高于表上界期望钳到 2.5758, 得到 %v", z)
	}
}

func TestPortfolioVaRSingleAsset(t *testing.T) {
	rets := []float64{0.1, -0.1, 0.1, -0.1, 0.1, -0.1}
	got := portfolioVaRPct([]weightedPosition{{weight: 1, returns: rets}}, 0.95)
	want := normalQuantile(0.95) * stddev(rets) * 100
	if !almostEqual(got, want, 1e-9) {
		t.Fatalf("单资产 VaR 期望 %v, 得到 %v", want, got)
	}
	if got < 15 {
		t.Fatalf("±10%% 波动满仓的 VaR 应显著超过 15%%, 得到 %v", got)
	}
}

func TestPortfolioVaRSkipsUnusablePositions(t *testing.T) {
	rets := []float64{0.01, -0.01, 0.01, -0.01}
	positions := []weightedPosition{
		{weight: 0, returns: rets},                     // 零权重
		{weight: 0.5, returns: []float64{0.01, 0.02}}, // 样本不足
	}
	if got := portfolioVaRPct(positions, 0.95); got != 0 {
		t.Fatalf("无可用敞口期望 0, 得到 %v", got)
	}
}

func TestPortfolioVaRDiversificationLowersRisk(t *testing.T) {
	a := []float64{0.02, -0.01, 0.015, -0.02, 0.01, -0.015}
	b := make([]float64, len(a))
	for i, v := range a {
		b[i] = -v // 完全负相关
	}
	concentrated := portfolioVaRPct([]weightedPosition{{weight: 0.5, returns: a}, {weight: 0.5, returns: a}}, 0.95)
	hedged := portfolioVaRPct([]weightedPosition{{weight: 0.5, returns: a}, {weight: 0.5, returns: b}}, 0.95)
	if hedged >= concentrated {
		t.Fatalf("对冲组合的 VaR 应低于同向组合: hedged=%v concentrated=%v", hedged, concentrated)
	}
}
