package engine

import (
	"context"

	"go.uber.org/zap"

	"postdrop/backend/internal/domain"
	"postdrop/backend/internal/monitoring"
)

// NotifyNewMail 把新邮件以卡片形式推给邮箱持有者（实现 ingest.Notifier）。
//
// 卡片默认收起、验证码隐藏；仪表盘存在时顺带刷新它的计数。
func (e *Engine) NotifyNewMail(ctx context.Context, mailbox *domain.Mailbox, email *domain.Email, _ *domain.ParsedMessage) {
	if mailbox.UserID == nil {
		return
	}

	chatID, err := e.dir.UserExternalID(*mailbox.UserID)
	if err != nil {
		e.log.Warn("cannot route notification",
			zap.String("user_id", *mailbox.UserID), zap.Error(err))
		e.incr(func(m *monitoring.Metrics) { m.NotificationsFailed.Inc() })
		return
	}

	sess := e.sessions.Get(chatID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.UserID == "" {
		sess.UserID = *mailbox.UserID
	}

	card := &CardState{EmailID: email.ID}
	msg := renderCard(chatID, card, email)

	messageID, err := e.transport.SendMessage(ctx, msg)
	if err != nil {
		e.log.Error("failed to deliver notification",
			zap.Int64("chat_id", chatID), zap.Error(err))
		e.incr(func(m *monitoring.Metrics) { m.NotificationsFailed.Inc() })
		return
	}
	sess.rememberCard(messageID, card)
	e.incr(func(m *monitoring.Metrics) { m.NotificationsSent.Inc() })

	if sess.DashboardMessageID != 0 {
		e.refreshDashboard(ctx, sess)
	}
}
