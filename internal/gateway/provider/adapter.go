package provider

import (
	"context"
	"encoding/base64"
	"time"

	"kestrel/internal/config"
	"kestrel/internal/decision"
)

// ModelAdapter 把通用对话客户端适配成 decision.ModelProvider：
// 决策层只传提示词和可选的 K 线 PNG，不感知具体协议。
type ModelAdapter struct {
	id      string
	enabled bool
	vision  bool
	client  *OpenAIChatClient
}

func (a *ModelAdapter) ID() string           { return a.id }
func (a *ModelAdapter) Enabled() bool        { return a.enabled }
func (a *ModelAdapter) SupportsVision() bool { return a.vision }

func (a *ModelAdapter) Call(ctx context.Context, system, user string, chartPNG []byte) (string, error) {
	payload := ChatPayload{
		System:     system,
		User:       user,
		ExpectJSON: true,
	}
	if a.vision && len(chartPNG) > 0 {
		payload.Images = []ImagePayload{{
			DataURI:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(chartPNG),
			Description: "最近 K 线图，用于形态判断",
		}}
	}
	return a.client.Call(ctx, payload)
}

// FromConfig 按配置构造全部模型端口；禁用的模型也会带上，由聚合层过滤。
func FromConfig(cfg *config.Config) []decision.ModelProvider {
	timeout := time.Duration(cfg.AI.TimeoutSeconds) * time.Second
	out := make([]decision.ModelProvider, 0, len(cfg.AI.Models))
	for _, m := range cfg.AI.Models {
		out = append(out, &ModelAdapter{
			id:      m.ID,
			enabled: m.Enabled,
			vision:  m.Vision,
			client: &OpenAIChatClient{
				BaseURL:      m.APIURL,
				APIKey:       m.APIKey,
				Model:        m.Model,
				Timeout:      timeout,
				ExtraHeaders: m.Headers,
			},
		})
	}
	return out
}
