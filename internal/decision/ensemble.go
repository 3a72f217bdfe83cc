package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kestrel/internal/logger"
	"kestrel/internal/pkg/format"
	"kestrel/internal/pkg/text"
)

// Ensemble 推理协作方的缺省实现：并发调用多个模型，聚合为单个决策。
type Ensemble struct {
	models  []ModelProvider
	agg     Aggregator
	timeout time.Duration
	logEach bool
}

func NewEnsemble(models []ModelProvider, agg Aggregator, timeout time.Duration, logEach bool) *Ensemble {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Ensemble{models: models, agg: agg, timeout: timeout, logEach: logEach}
}

func (e *Ensemble) Name() string { return "ensemble/" + e.agg.Name() }

// Propose 并发询问全部启用的模型，投票聚合。全部失败时返回 ErrUnavailable。
func (e *Ensemble) Propose(ctx context.Context, input Input) (Decision, error) {
	enabled := make([]ModelProvider, 0, len(e.models))
	for _, m := range e.models {
		if m != nil && m.Enabled() {
			enabled = append(enabled, m)
		}
	}
	if len(enabled) == 0 {
		return Decision{}, fmt.Errorf("%w: 未配置任何模型", ErrUnavailable)
	}

	system := buildSystemPrompt()
	user := buildUserPrompt(input)

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	outputs := make([]ModelOutput, len(enabled))
	g, gctx := errgroup.WithContext(cctx)
	for i, m := range enabled {
		g.Go(func() error {
			out := ModelOutput{ProviderID: m.ID()}
			var chart []byte
			if m.SupportsVision() {
				chart = input.Snapshot.ChartPNG
			}
			raw, err := m.Call(gctx, system, user, chart)
			out.Raw = raw
			if err != nil {
				out.Err = err
			} else if d, perr := ParseModelOutput(raw); perr != nil {
				out.Err = perr
			} else {
				out.Decision = d
			}
			outputs[i] = out
			// 单个模型失败不取消其余调用
			return nil
		})
	}
	_ = g.Wait()

	okCount := 0
	for _, o := range outputs {
		if o.Err == nil {
			okCount++
		}
		if e.logEach {
			if o.Err != nil {
				logger.Warnf("模型 %s 失败: %v", o.ProviderID, o.Err)
			} else {
				logger.Infof("模型 %s → %s conf=%s %s", o.ProviderID, o.Decision.Action,
					format.Percent(o.Decision.Confidence), text.Truncate(text.FirstLine(o.Decision.Reasoning), 120))
			}
		}
	}
	if okCount == 0 {
		return Decision{}, fmt.Errorf("%w: 全部 %d 个模型调用失败", ErrUnavailable, len(enabled))
	}

	d, err := e.agg.Aggregate(ctx, outputs)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	d.ID = uuid.NewString()
	d.Pair = input.Snapshot.Pair
	d.CreatedAt = time.Now()
	if err := d.Validate(); err != nil {
		return Decision{}, fmt.Errorf("聚合结果非法: %w", err)
	}
	return d, nil
}
