package decision

import (
	"context"

	"kestrel/internal/market"
	"kestrel/internal/venue"
)

// Input 推理阶段的输入：当期市场快照 + 账户视图。
type Input struct {
	Snapshot  market.Snapshot
	Portfolio venue.Portfolio
}

// Provider 推理协作方端口：基于快照与账户给出一个决策。
// 不可用时返回 ErrUnavailable（或其包装），由循环走安全回退。
type Provider interface {
	Propose(ctx context.Context, input Input) (Decision, error)
	Name() string
}

// ModelProvider 单个模型的调用端口（gateway/provider 实现）。
type ModelProvider interface {
	ID() string
	Enabled() bool
	SupportsVision() bool
	Call(ctx context.Context, system, user string, chartPNG []byte) (string, error)
}
