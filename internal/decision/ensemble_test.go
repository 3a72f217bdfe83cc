package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"kestrel/internal/market"
)

type stubModel struct {
	id       string
	enabled  bool
	vision   bool
	raw      string
	err      error
	calls    int
	gotChart []byte
}

func (m *stubModel) ID() string           { return m.id }
func (m *stubModel) Enabled() bool        { return m.enabled }
func (m *stubModel) SupportsVision() bool { return m.vision }

func (m *stubModel) Call(ctx context.Context, system, user string, chartPNG []byte) (string, error) {
	m.calls++
	m.gotChart = chartPNG
	if m.err != nil {
		return "", m.err
	}
	return m.raw, nil
}

func ensembleInput() Input {
	return Input{Snapshot: market.Snapshot{Pair: "BTCUSDT", Interval: "4h", Price: 100, CollectedAt: time.Now()}}
}

const buyJSON = `{"action":"BUY","confidence":0.8,"size_pct":2,"reasoning":"趋势向上"}`

func TestEnsembleAggregatesAllEnabledModels(t *testing.T) {
	a := &stubModel{id: "a", enabled: true, raw: buyJSON}
	b := &stubModel{id: "b", enabled: true, raw: buyJSON}
	e := NewEnsemble([]ModelProvider{a, b}, VoteAggregator{}, time.Second, false)

	d, err := e.Propose(context.Background(), ensembleInput())
	if err != nil {
		t.Fatalf("提案失败: %v", err)
	}
	if d.Action != ActionBuy {
		t.Fatalf("期望 BUY, 得到 %s", d.Action)
	}
	if d.ID == "" || d.Pair != "BTCUSDT" || d.CreatedAt.IsZero() {
		t.Fatalf("决策应补齐 ID/Pair/CreatedAt: %+v", d)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("每个模型应恰好调用一次, 得到 a=%d b=%d", a.calls, b.calls)
	}
	if len(d.Providers) != 2 {
		t.Fatalf("Providers 期望 2 个, 得到 %v", d.Providers)
	}
}

func TestEnsembleAllModelsFailed(t *testing.T) {
	boom := errors.New("上游 429")
	a := &stubModel{id: "a", enabled: true, err: boom}
	b := &stubModel{id: "b", enabled: true, err: boom}
	e := NewEnsemble([]ModelProvider{a, b}, VoteAggregator{}, time.Second, false)

	_, err := e.Propose(context.Background(), ensembleInput())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("全部失败期望 ErrUnavailable, 得到 %v", err)
	}
}

func TestEnsembleSkipsDisabledModels(t *testing.T) {
	off := &stubModel{id: "off", enabled: false, raw: buyJSON}
	on := &stubModel{id: "on", enabled: true, raw: buyJSON}
	e := NewEnsemble([]ModelProvider{off, on}, VoteAggregator{}, time.Second, false)

	d, err := e.Propose(context.Background(), ensembleInput())
	if err != nil {
		t.Fatalf("提案失败: %v", err)
	}
	if off.calls != 0 {
		t.Fatalf("停用的模型不得被调用")
	}
	if len(d.Providers) != 1 || d.Providers[0] != "on" {
		t.Fatalf("Providers 期望 [on], 得到 %v", d.Providers)
	}
}

func TestEnsembleNoEnabledModels(t *testing.T) {
	e := NewEnsemble([]ModelProvider{&stubModel{id: "off"}}, VoteAggregator{}, time.Second, false)
	if _, err := e.Propose(context.Background(), ensembleInput()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("无可用模型期望 ErrUnavailable, 得到 %v", err)
	}
}

func TestEnsembleChartOnlyForVisionModels(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4e, 0x47}
	vision := &stubModel{id: "vision", enabled: true, vision: true, raw: buyJSON}
	text := &stubModel{id: "text", enabled: true, raw: buyJSON}
	e := NewEnsemble([]ModelProvider{vision, text}, VoteAggregator{}, time.Second, false)

	input := ensembleInput()
	input.Snapshot.ChartPNG = png
	if _, err := e.Propose(context.Background(), input); err != nil {
		t.Fatalf("提案失败: %v", err)
	}
	if len(vision.gotChart) != len(png) {
		t.Fatalf("视觉模型应收到图表, 得到 %d 字节", len(vision.gotChart))
	}
	if text.gotChart != nil {
		t.Fatalf("文本模型不应收到图表")
	}
}

func TestEnsembleParseFailureIsModelFailure(t *testing.T) {
	garbled := &stubModel{id: "garbled", enabled: true, raw: "我觉得可以买入"}
	sane := &stubModel{id: "sane", enabled: true, raw: buyJSON}
	e := NewEnsemble([]ModelProvider{garbled, sane}, VoteAggregator{}, time.Second, false)

	d, err := e.Propose(context.Background(), ensembleInput())
	if err != nil {
		t.Fatalf("仍有有效输出时应成功: %v", err)
	}
	if len(d.Providers) != 1 || d.Providers[0] != "sane" {
		t.Fatalf("解析失败的模型不应计票, 得到 %v", d.Providers)
	}

	alone := NewEnsemble([]ModelProvider{&stubModel{id: "g", enabled: true, raw: "???"}}, VoteAggregator{}, time.Second, false)
	if _, err := alone.Propose(context.Background(), ensembleInput()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("全部解析失败期望 ErrUnavailable, 得到 %v", err)
	}
}
