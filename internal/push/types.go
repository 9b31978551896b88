// Package push 封装聊天平台的 Bot API：消息收发、回调应答和长轮询。
//
// 上层（引擎）只依赖 Transport 接口，HTTP 客户端可在测试中替换。
package push

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotModified 编辑后的消息与现有内容完全一致。
//
// 幂等渲染的正常结果，调用方应视为成功的空操作。
var ErrNotModified = errors.New("message is not modified")

// RateLimitedError 平台返回 429，应在 RetryAfter 后重试。
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by platform, retry after %s", e.RetryAfter)
}

// Button 内联键盘按钮。CallbackData 与 URL 互斥。
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Keyboard 内联键盘，按行排列。
type Keyboard [][]Button

// Message 待发送或待编辑的消息。
type Message struct {
	ChatID         int64
	Text           string
	Keyboard       Keyboard
	DisablePreview bool
}

// UserMeta 平台侧的用户元信息。
type UserMeta struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// DisplayName 拼出用户的展示名。
func (u UserMeta) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

// IncomingMessage 用户发来的消息。
type IncomingMessage struct {
	MessageID int      `json:"message_id"`
	From      UserMeta `json:"from"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text"`
}

// Callback 按钮点击事件。
type Callback struct {
	ID      string           `json:"id"`
	From    UserMeta         `json:"from"`
	Message *IncomingMessage `json:"message"`
	Data    string           `json:"data"`
}

// Update 长轮询拉到的一条更新。
type Update struct {
	ID       int64            `json:"update_id"`
	Message  *IncomingMessage `json:"message"`
	Callback *Callback        `json:"callback_query"`
}
