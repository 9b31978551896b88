package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"postdrop/backend/internal/config"
)

// Client 是 Transport 的 Bot API HTTP 实现。
type Client struct {
	apiBase string
	token   string
	http    *http.Client
	log     *zap.Logger
}

// NewClient 创建 Bot API 客户端。
func NewClient(cfg config.BotConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		apiBase: cfg.APIBase,
		token:   cfg.Token,
		// 长轮询请求自带超时，这里的超时要给足余量
		http: &http.Client{Timeout: cfg.PollTimeout + 15*time.Second},
		log:  log,
	}
}

var _ Transport = (*Client)(nil)

// apiResponse Bot API 的统一响应包裹。
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// call 发起一次 Bot API 方法调用，把平台错误翻译为本包的错误类型。
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}

	if !apiResp.OK {
		if apiResp.ErrorCode == http.StatusTooManyRequests {
			retryAfter := time.Second
			if apiResp.Parameters != nil && apiResp.Parameters.RetryAfter > 0 {
				retryAfter = time.Duration(apiResp.Parameters.RetryAfter) * time.Second
			}
			return &RateLimitedError{RetryAfter: retryAfter}
		}
		if strings.Contains(apiResp.Description, "message is not modified") {
			return ErrNotModified
		}
		return fmt.Errorf("%s failed: %s (code %d)", method, apiResp.Description, apiResp.ErrorCode)
	}

	if out != nil {
		if err := json.Unmarshal(apiResp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// keyboardMarkup 转成平台的 reply_markup 结构。
func keyboardMarkup(kb Keyboard) map[string]any {
	if len(kb) == 0 {
		return nil
	}
	return map[string]any{"inline_keyboard": kb}
}

// SendMessage 发送新消息。
func (c *Client) SendMessage(ctx context.Context, msg *Message) (int, error) {
	payload := map[string]any{
		"chat_id":    msg.ChatID,
		"text":       msg.Text,
		"parse_mode": "HTML",
	}
	if markup := keyboardMarkup(msg.Keyboard); markup != nil {
		payload["reply_markup"] = markup
	}
	if msg.DisablePreview {
		payload["disable_web_page_preview"] = true
	}

	var result struct {
		MessageID int `json:"message_id"`
	}
	if err := c.call(ctx, "sendMessage", payload, &result); err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

// EditMessage 原地编辑既有消息。
func (c *Client) EditMessage(ctx context.Context, chatID int64, messageID int, msg *Message) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       msg.Text,
		"parse_mode": "HTML",
	}
	if markup := keyboardMarkup(msg.Keyboard); markup != nil {
		payload["reply_markup"] = markup
	}
	if msg.DisablePreview {
		payload["disable_web_page_preview"] = true
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

// AnswerCallback 应答按钮点击。
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error {
	payload := map[string]any{
		"callback_query_id": callbackID,
	}
	if text != "" {
		payload["text"] = text
	}
	if showAlert {
		payload["show_alert"] = true
	}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

// GetUpdates 长轮询拉取更新。
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message", "callback_query"},
	}

	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}
