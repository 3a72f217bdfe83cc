package decision

import (
	"encoding/json"
	"fmt"
	"strings"

	"kestrel/internal/pkg/jsonutil"
)

// 模型被要求输出单个 JSON 对象；夹杂说明文字时先定位对象再解析。
type modelDecision struct {
	Action      string  `json:"action"`
	Confidence  float64 `json:"confidence"`
	SizePct     float64 `json:"size_pct"`
	StopLossPct float64 `json:"stop_loss_pct"`
	Reasoning   string  `json:"reasoning"`
}

// ParseModelOutput 从模型原始输出解析决策主体（不含 ID/Pair/Providers，由调用方补齐）。
func ParseModelOutput(raw string) (Decision, error) {
	obj, ok := jsonutil.ExtractObject(raw)
	if !ok {
		return Decision{}, fmt.Errorf("未找到 JSON 决策对象")
	}
	var md modelDecision
	if err := json.Unmarshal([]byte(obj), &md); err != nil {
		return Decision{}, fmt.Errorf("解析决策 JSON 失败: %w", err)
	}
	act := NormalizeAction(md.Action)
	if act == "" {
		return Decision{}, fmt.Errorf("无法识别的动作: %q", md.Action)
	}
	conf := md.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		// 模型偶尔按百分数给置信度
		if conf <= 100 {
			conf = conf / 100
		} else {
			conf = 1
		}
	}
	return Decision{
		Action:      act,
		Confidence:  conf,
		SizePct:     clampPct(md.SizePct),
		StopLossPct: clampPct(md.StopLossPct),
		Reasoning:   strings.TrimSpace(md.Reasoning),
	}, nil
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
