package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Telegram 通过 Bot API 推送文本消息。token 或 chat_id 缺失时自动禁用，
// 调用方无需判空。
type Telegram struct {
	botToken string
	chatID   string
	httpc    *http.Client
	enabled  bool
	baseURL  string // 测试时可替换
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		enabled:  botToken != "" && chatID != "",
	}
}

func (t *Telegram) Enabled() bool { return t.enabled }

// SendText 发送 Markdown 文本。禁用时直接返回 nil。
func (t *Telegram) SendText(msg string) error {
	if !t.enabled {
		return nil
	}
	endpoint := t.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	}
	vals := url.Values{
		"chat_id":    {t.chatID},
		"text":       {msg},
		"parse_mode": {"Markdown"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("telegram 构造请求: %w", err)
	}
	req.URL.RawQuery = vals.Encode()

	resp, err := t.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("telegram 发送: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("telegram 状态 %d: %s", resp.StatusCode, body.Description)
	}
	return nil
}
