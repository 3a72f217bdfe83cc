package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kestrel/internal/logger"
	"kestrel/internal/pkg/jsonutil"
	"kestrel/internal/pkg/text"
)

// OpenAIChatClient 兼容 OpenAI chat/completions 协议的通用客户端。
// 429/5xx 有界重试，尊重 Retry-After；日志里的密钥一律打码。
type OpenAIChatClient struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	MaxRetries   int
	ExtraHeaders map[string]string
}

func (c *OpenAIChatClient) Call(ctx context.Context, payload ChatPayload) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}

	url := c.chatCompletionsURL()
	body := buildChatBody(c.Model, payload)
	logger.Debugf("[AI] 请求 %s model=%s headers=%v body=%s",
		url, c.Model, c.headersForLog(), text.Truncate(jsonutil.Pretty(string(body)), 2000))

	httpc := &http.Client{Timeout: timeout}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		for k, v := range c.headers() {
			req.Header.Set(k, v)
		}
		resp, err := httpc.Do(req)
		if err != nil {
			lastErr = err
			break
		}

		if resp.StatusCode/100 == 2 {
			return decodeChatContent(resp)
		}

		msg := parseError(resp)
		lastErr = fmt.Errorf("status=%d: %s", resp.StatusCode, msg)
		if shouldRetry(resp.StatusCode) && attempt < maxRetries {
			wait := parseRetryAfter(resp.Header.Get("Retry-After"), attempt)
			logger.Debugf("[AI] %s 第 %d 次失败(%d)，%s 后重试", c.Model, attempt+1, resp.StatusCode, wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			continue
		}
		break
	}
	return "", lastErr
}

func (c *OpenAIChatClient) chatCompletionsURL() string {
	url := strings.TrimRight(c.BaseURL, "/")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

func buildChatBody(model string, payload ChatPayload) []byte {
	messages := make([]map[string]any, 0, 2)
	if payload.System != "" {
		messages = append(messages, map[string]any{
			"role":    "system",
			"content": payload.System,
		})
	}
	messages = append(messages, buildUserMessage(payload))

	maxTokens := payload.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body := map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": 0.4,
		"max_tokens":  maxTokens,
	}
	if payload.ExpectJSON {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	b, _ := json.Marshal(body)
	return b
}

// buildUserMessage 无图片时 content 为纯文本；带图片时按多段 content
// 组织，图片用 image_url + data URI 形式内联。
func buildUserMessage(payload ChatPayload) map[string]any {
	if len(payload.Images) == 0 {
		return map[string]any{"role": "user", "content": payload.User}
	}
	content := make([]map[string]any, 0, len(payload.Images)*2+1)
	content = append(content, map[string]any{"type": "text", "text": payload.User})
	for _, img := range payload.Images {
		uri := strings.TrimSpace(img.DataURI)
		if uri == "" {
			continue
		}
		content = append(content, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": uri},
		})
		if desc := strings.TrimSpace(img.Description); desc != "" {
			content = append(content, map[string]any{"type": "text", "text": desc})
		}
	}
	return map[string]any{"role": "user", "content": content}
}

func decodeChatContent(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", err
	}
	if len(r.Choices) == 0 {
		return "", fmt.Errorf("empty choices")
	}
	return r.Choices[0].Message.Content, nil
}

func (c *OpenAIChatClient) headers() map[string]string {
	out := map[string]string{"Content-Type": "application/json"}
	if c.APIKey != "" {
		out["Authorization"] = "Bearer " + c.APIKey
	}
	for k, v := range c.ExtraHeaders {
		out[k] = v
	}
	return out
}

func (c *OpenAIChatClient) headersForLog() map[string]string {
	out := map[string]string{}
	for k, v := range c.headers() {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "auth") || strings.Contains(lk, "key") || strings.Contains(lk, "token") {
			if len(v) > 4 {
				out[k] = "****" + v[len(v)-4:]
			} else {
				out[k] = "****"
			}
			continue
		}
		out[k] = v
	}
	return out
}

func parseError(resp *http.Response) string {
	defer resp.Body.Close()
	var eresp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&eresp); err == nil && strings.TrimSpace(eresp.Error.Message) != "" {
		return eresp.Error.Message
	}
	return resp.Status
}

func shouldRetry(code int) bool {
	return code == 429 || code == 500 || code == 502 || code == 503 || code == 504
}

func parseRetryAfter(v string, attempt int) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	base := 800 * time.Millisecond
	wait := base << attempt
	if wait > 8*time.Second {
		wait = 8 * time.Second
	}
	return wait
}
