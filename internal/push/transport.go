package push

import "context"

// Transport 定义引擎依赖的消息出口。
//
// 实现必须把"内容未变化的编辑"翻译为 ErrNotModified，
// 把平台限流翻译为 *RateLimitedError，其余错误原样返回。
type Transport interface {
	// SendMessage 发送新消息，返回平台分配的消息 ID。
	SendMessage(ctx context.Context, msg *Message) (int, error)

	// EditMessage 原地编辑既有消息的文本与键盘。
	EditMessage(ctx context.Context, chatID int64, messageID int, msg *Message) error

	// AnswerCallback 应答按钮点击（可附带弹窗提示）。
	AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error
}
