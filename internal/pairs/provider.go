package pairs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"kestrel/internal/pkg/jsonutil"
)

// Provider 候选交易对来源接口
type Provider interface {
	List(ctx context.Context) ([]string, error)
	Name() string
}

// Normalize 统一交易对写法：去空白、转大写、补 USDT 后缀、去重。
func Normalize(raw []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !strings.HasSuffix(s, "USDT") {
			s += "USDT"
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// 默认实现：配置里的静态列表
type StaticProvider struct{ pairs []string }

func NewStaticProvider(pairs []string) *StaticProvider {
	return &StaticProvider{pairs: pairs}
}
func (p *StaticProvider) Name() string { return "static" }
func (p *StaticProvider) List(ctx context.Context) ([]string, error) {
	if len(p.pairs) == 0 {
		return nil, errors.New("默认交易对列表为空")
	}
	out := Normalize(p.pairs)
	if len(out) == 0 {
		return nil, errors.New("标准化后列表为空")
	}
	return out, nil
}

// HTTP 实现：从自定义 API 拉取。支持两种返回格式：
// 1) ["BTCUSDT","ETHUSDT",...]
// 2) {"pairs": ["BTCUSDT","ETHUSDT",...]}
// 其余形式尽力在正文中定位首个 JSON 数组。
type HTTPProvider struct {
	URL    string
	Client *http.Client
}

func NewHTTPProvider(url string) *HTTPProvider {
	return &HTTPProvider{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}
func (p *HTTPProvider) Name() string { return "http" }
func (p *HTTPProvider) List(ctx context.Context) ([]string, error) {
	if p.URL == "" {
		return nil, errors.New("pairs.api_url 未配置")
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, errors.New("http 状态异常")
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	// 依次尝试两种形式
	var arr []string
	if err := json.Unmarshal(body, &arr); err == nil {
		return NewStaticProvider(arr).List(ctx)
	}
	var obj struct {
		Pairs []string `json:"pairs"`
	}
	if err := json.Unmarshal(body, &obj); err == nil && len(obj.Pairs) > 0 {
		return NewStaticProvider(obj.Pairs).List(ctx)
	}
	// 宽松兜底：正文夹杂噪声或非标准包装时定位首个 JSON 数组
	if raw, ok := jsonutil.ExtractArray(string(body)); ok {
		if err := json.Unmarshal([]byte(raw), &arr); err == nil {
			return NewStaticProvider(arr).List(ctx)
		}
	}
	return nil, errors.New("无法从响应解析交易对列表")
}
