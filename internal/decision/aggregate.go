package decision

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"kestrel/internal/pkg/text"
)

// 中文说明：
// 多模型聚合：每个模型对同一交易对各投一票（BUY/SELL/HOLD），
// 按权重投票决定最终动作。动作权重需达到阈值（总权重的 2/3）才执行，
// 达不到则整轮观望。

// ModelOutput 模型执行后的统一表示。
type ModelOutput struct {
	ProviderID string
	Raw        string
	Decision   Decision
	Err        error
}

// Aggregator 聚合接口。
type Aggregator interface {
	Aggregate(ctx context.Context, outputs []ModelOutput) (Decision, error)
	Name() string
}

// NewAggregator 按配置名构造聚合器；majority 等价于等权重投票。
func NewAggregator(name string, weights map[string]float64) Aggregator {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "first_wins", "first-wins":
		return FirstWinsAggregator{}
	case "majority":
		return VoteAggregator{}
	default:
		return VoteAggregator{Weights: weights}
	}
}

// FirstWinsAggregator 取第一个成功的输出。
type FirstWinsAggregator struct{}

func (a FirstWinsAggregator) Name() string { return "first-wins" }

func (a FirstWinsAggregator) Aggregate(_ context.Context, outputs []ModelOutput) (Decision, error) {
	for _, o := range outputs {
		if o.Err == nil && o.Decision.Action != "" {
			d := o.Decision
			d.Providers = []string{o.ProviderID}
			return d, nil
		}
	}
	return Decision{}, errors.New("无可用的模型输出")
}

// VoteAggregator 加权投票；Weights 为空时各模型等权。
type VoteAggregator struct {
	Weights map[string]float64
}

func (a VoteAggregator) Name() string { return "weighted-vote" }

type voteChoice struct {
	ID       string
	Decision Decision
	Weight   float64
}

func (a VoteAggregator) Aggregate(_ context.Context, outputs []ModelOutput) (Decision, error) {
	votes := map[string]float64{}        // action -> weight
	choices := map[string][]voteChoice{} // action -> choices
	totalWeight := 0.0
	for _, o := range outputs {
		if o.Err != nil || o.Decision.Action == "" {
			continue
		}
		w := 1.0
		if a.Weights != nil {
			if v, ok := a.Weights[o.ProviderID]; ok && v > 0 {
				w = v
			}
		}
		act := o.Decision.Action
		votes[act] += w
		choices[act] = append(choices[act], voteChoice{ID: o.ProviderID, Decision: o.Decision, Weight: w})
		totalWeight += w
	}
	if totalWeight == 0 {
		return Decision{}, errors.New("无可用的模型输出")
	}
	threshold := computeThreshold(totalWeight)

	// 方向票（BUY/SELL）需达到阈值；HOLD 达到阈值或无赢家时整轮观望
	winner := ""
	for _, act := range []string{ActionBuy, ActionSell} {
		if votes[act] >= threshold {
			winner = act
			break
		}
	}
	if winner == "" {
		return Decision{
			Action:    ActionHold,
			Reasoning: buildVoteSummary(votes, threshold, "无动作达到阈值，整轮观望"),
			Providers: allProviderIDs(choices),
		}, nil
	}
	return mergeWinner(choices[winner], winner, buildVoteSummary(votes, threshold, "")), nil
}

// mergeWinner 合成胜出方向的最终决策：置信度取加权平均，
// 仓位/止损取权重最高者（同权时按 ID 字典序，保证确定性）。
func mergeWinner(cs []voteChoice, action, summary string) Decision {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Weight != cs[j].Weight {
			return cs[i].Weight > cs[j].Weight
		}
		return cs[i].ID < cs[j].ID
	})
	lead := cs[0].Decision
	var confSum, wSum float64
	providers := make([]string, 0, len(cs))
	var reasons []string
	for _, c := range cs {
		confSum += c.Decision.Confidence * c.Weight
		wSum += c.Weight
		providers = append(providers, c.ID)
		if r := strings.TrimSpace(c.Decision.Reasoning); r != "" {
			reasons = append(reasons, fmt.Sprintf("%s: %s", c.ID, text.Truncate(r, 240)))
		}
	}
	sort.Strings(providers)
	out := Decision{
		Action:      action,
		Confidence:  confSum / wSum,
		SizePct:     lead.SizePct,
		StopLossPct: lead.StopLossPct,
		Providers:   providers,
	}
	if summary != "" {
		reasons = append(reasons, summary)
	}
	out.Reasoning = strings.Join(reasons, "\n")
	return out
}

func allProviderIDs(choices map[string][]voteChoice) []string {
	seen := map[string]bool{}
	var out []string
	for _, cs := range choices {
		for _, c := range cs {
			if !seen[c.ID] {
				seen[c.ID] = true
				out = append(out, c.ID)
			}
		}
	}
	sort.Strings(out)
	return out
}

func computeThreshold(total float64) float64 {
	if total <= 0 {
		return 0
	}
	val := total * 2.0 / 3.0
	return math.Max(val, total*0.5)
}

func buildVoteSummary(votes map[string]float64, threshold float64, note string) string {
	acts := make([]string, 0, len(votes))
	for act := range votes {
		acts = append(acts, act)
	}
	sort.Strings(acts)
	parts := make([]string, 0, len(acts)+1)
	for _, act := range acts {
		parts = append(parts, fmt.Sprintf("%s=%.2f", act, votes[act]))
	}
	s := fmt.Sprintf("投票(阈值 %.2f): %s", threshold, strings.Join(parts, " "))
	if note != "" {
		s += "；" + note
	}
	return s
}
