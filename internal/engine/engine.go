package engine

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"postdrop/backend/internal/config"
	"postdrop/backend/internal/directory"
	"postdrop/backend/internal/domain"
	"postdrop/backend/internal/monitoring"
	"postdrop/backend/internal/push"
)

// Engine 会话呈现引擎。实现 push.Handler 和 ingest.Notifier。
type Engine struct {
	transport push.Transport
	dir       *directory.Service
	cfg       config.EngineConfig
	adminID   int64
	sessions  *SessionCache
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewEngine 创建呈现引擎。metrics 传 nil 表示不上报指标。
func NewEngine(transport push.Transport, dir *directory.Service, cfg config.EngineConfig, adminID int64, metrics *monitoring.Metrics, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 5
	}
	return &Engine{
		transport: transport,
		dir:       dir,
		cfg:       cfg,
		adminID:   adminID,
		sessions:  NewSessionCache(cfg.MaxSessions, cfg.SessionTTL, cfg.ActionInterval),
		metrics:   metrics,
		log:       log,
	}
}

// isAdmin 判定聊天是否为管理员。AdminID 为 0 时管理功能整体禁用。
func (e *Engine) isAdmin(chatID int64) bool {
	return e.adminID != 0 && chatID == e.adminID
}

// HandleUpdate 路由一条平台更新。
func (e *Engine) HandleUpdate(ctx context.Context, update *push.Update) {
	switch {
	case update.Callback != nil:
		e.handleCallback(ctx, update.Callback)
	case update.Message != nil:
		e.handleMessage(ctx, update.Message)
	}
}

// handleMessage 处理用户发来的文本消息。
func (e *Engine) handleMessage(ctx context.Context, msg *push.IncomingMessage) {
	sess := e.sessions.Get(msg.Chat.ID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := e.ensureSessionUser(sess, msg.From); err != nil {
		e.log.Error("failed to ensure user", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		return
	}

	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		e.resetDashboard(ctx, sess)
	case strings.HasPrefix(text, "/help"):
		e.sendText(ctx, sess.ChatID, helpText)
	default:
		if sess.Dialog != DialogNone {
			e.handleDialogText(ctx, sess, text)
			return
		}
		e.sendText(ctx, sess.ChatID, "Use the buttons on your dashboard, or /start to bring it up again.")
	}
}

// handleCallback 处理按钮点击。
func (e *Engine) handleCallback(ctx context.Context, cb *push.Callback) {
	if cb.Message == nil {
		_ = e.transport.AnswerCallback(ctx, cb.ID, "", false)
		return
	}
	chatID := cb.Message.Chat.ID
	sess := e.sessions.Get(chatID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := e.ensureSessionUser(sess, cb.From); err != nil {
		e.log.Error("failed to ensure user", zap.Int64("chat_id", chatID), zap.Error(err))
		_ = e.transport.AnswerCallback(ctx, cb.ID, "Something went wrong, try again.", false)
		return
	}

	if !sess.AllowAction() {
		e.incr(func(m *monitoring.Metrics) { m.ActionsRateLimited.Inc() })
		_ = e.transport.AnswerCallback(ctx, cb.ID, "Too fast — give it a second.", false)
		return
	}

	action := ParseCallback(cb.Data)
	e.incr(func(m *monitoring.Metrics) { m.ActionsHandled.WithLabelValues(action.Kind.String()).Inc() })

	// 对话框模态：新的开启动作直接覆盖陈旧对话框，取消/确认放行，
	// 其余交互一律拦下
	if sess.Dialog != DialogNone && !isDialogBegin(action.Kind) &&
		action.Kind != ActionDialogCancel && action.Kind != ActionBroadcastSend {
		_ = e.transport.AnswerCallback(ctx, cb.ID, "Finish or cancel the current dialog first.", false)
		return
	}

	switch action.Kind {
	case ActionInboxToggle:
		sess.InboxOpen = !sess.InboxOpen
		if !sess.InboxOpen {
			sess.Page = 0
		}
		e.refreshDashboard(ctx, sess)
		e.answer(ctx, cb.ID, "")

	case ActionInboxPage:
		sess.Page = action.Page
		e.refreshDashboard(ctx, sess)
		e.answer(ctx, cb.ID, "")

	case ActionToolsToggle:
		sess.ToolsOpen = !sess.ToolsOpen
		if !sess.ToolsOpen {
			sess.PasswordVisible = false
		}
		e.refreshDashboard(ctx, sess)
		e.answer(ctx, cb.ID, "")

	case ActionPasswordToggle:
		sess.PasswordVisible = !sess.PasswordVisible
		e.refreshDashboard(ctx, sess)
		e.answer(ctx, cb.ID, "")

	case ActionRotate:
		if _, err := e.dir.RotateMailbox(sess.UserID); err != nil {
			e.log.Error("rotate failed", zap.String("user_id", sess.UserID), zap.Error(err))
			e.answer(ctx, cb.ID, "Could not issue a new address, try again.")
			return
		}
		e.incr(func(m *monitoring.Metrics) { m.MailboxesRotated.Inc() })
		sess.Page = 0
		sess.PasswordVisible = false
		e.refreshDashboard(ctx, sess)
		e.answer(ctx, cb.ID, "New address issued. The old one no longer receives mail.")

	case ActionLoginStart:
		sess.Dialog = DialogLoginAddress
		sess.DialogDraft = ""
		e.sendText(ctx, sess.ChatID, "Send the mailbox address you want to log into, or /start to cancel.")
		e.answer(ctx, cb.ID, "")

	case ActionRefresh:
		e.refreshDashboard(ctx, sess)
		e.answer(ctx, cb.ID, "")

	case ActionDomainStart, ActionBroadcastStart, ActionBulkImportStart:
		e.handleAdminStart(ctx, sess, cb, action.Kind)

	case ActionDialogCancel:
		sess.Dialog = DialogNone
		sess.DialogDraft = ""
		e.answer(ctx, cb.ID, "Cancelled.")

	case ActionBroadcastSend:
		e.handleBroadcastSend(ctx, sess, cb)

	case ActionCardCodeToggle, ActionCardLinksToggle, ActionCardOpen, ActionCardCollapse:
		e.handleCardAction(ctx, sess, cb, action)

	case ActionMailOpen:
		e.handleMailOpen(ctx, sess, cb, action.Arg)

	case ActionNoop:
		e.answer(ctx, cb.ID, "")

	default:
		// 旧消息残留的按钮，静默应答
		e.answer(ctx, cb.ID, "")
	}
}

// ensureSessionUser 懒加载会话对应的目录用户。
func (e *Engine) ensureSessionUser(sess *Session, from push.UserMeta) error {
	if sess.UserID != "" {
		return nil
	}
	user, err := e.dir.EnsureUser(from.ID, from.DisplayName(), from.Username)
	if err != nil {
		return err
	}
	sess.UserID = user.ID
	return nil
}

// resetDashboard 丢弃旧仪表盘，重置状态并发送新仪表盘。
func (e *Engine) resetDashboard(ctx context.Context, sess *Session) {
	sess.DashboardMessageID = 0
	sess.InboxOpen = false
	sess.ToolsOpen = false
	sess.PasswordVisible = false
	sess.Page = 0
	sess.Dialog = DialogNone
	sess.DialogDraft = ""
	e.refreshDashboard(ctx, sess)
}

// refreshDashboard 拉取目录快照并渲染仪表盘。
//
// 已有仪表盘消息时原地编辑，ErrNotModified 视为成功。
func (e *Engine) refreshDashboard(ctx context.Context, sess *Session) {
	data, err := e.dashboardData(sess)
	if err != nil {
		e.log.Error("failed to load dashboard data",
			zap.String("user_id", sess.UserID), zap.Error(err))
		return
	}

	msg := renderDashboard(sess, data, e.cfg.PageSize, e.isAdmin(sess.ChatID))

	if sess.DashboardMessageID != 0 {
		err := e.transport.EditMessage(ctx, sess.ChatID, sess.DashboardMessageID, msg)
		if err == nil || errors.Is(err, push.ErrNotModified) {
			return
		}
		e.log.Warn("dashboard edit failed, sending a fresh one",
			zap.Int64("chat_id", sess.ChatID), zap.Error(err))
		sess.DashboardMessageID = 0
	}

	messageID, err := e.transport.SendMessage(ctx, msg)
	if err != nil {
		e.log.Error("failed to send dashboard", zap.Int64("chat_id", sess.ChatID), zap.Error(err))
		return
	}
	sess.DashboardMessageID = messageID
}

// dashboardData 组装仪表盘数据快照，并把页码收敛到合法区间。
func (e *Engine) dashboardData(sess *Session) (*dashboardData, error) {
	mailbox, err := e.dir.AllocateMailbox(sess.UserID)
	if err != nil {
		return nil, err
	}

	total, err := e.dir.CountMessages(mailbox.ID)
	if err != nil {
		return nil, err
	}

	sess.Page = clampPage(sess.Page, total, e.cfg.PageSize)

	var emails []domain.Email
	if sess.InboxOpen {
		emails, err = e.dir.ListMessages(mailbox.ID, e.cfg.PageSize, sess.Page*e.cfg.PageSize)
		if err != nil {
			return nil, err
		}
	}

	return &dashboardData{
		Address:  mailbox.Address,
		Password: mailbox.Password,
		Total:    total,
		Emails:   emails,
	}, nil
}

// handleCardAction 处理邮件卡片上的开关。
func (e *Engine) handleCardAction(ctx context.Context, sess *Session, cb *push.Callback, action Action) {
	email, err := e.dir.GetMessage(action.Arg)
	if err != nil {
		e.answer(ctx, cb.ID, "This message is no longer available.")
		return
	}

	card, ok := sess.Cards[cb.Message.MessageID]
	if !ok {
		// 会话被回收后卡片状态丢失，按默认状态重建
		card = &CardState{EmailID: email.ID}
		sess.rememberCard(cb.Message.MessageID, card)
	}

	switch action.Kind {
	case ActionCardCodeToggle:
		card.CodeVisible = !card.CodeVisible
	case ActionCardLinksToggle:
		card.LinksExpanded = !card.LinksExpanded
	case ActionCardOpen:
		card.Expanded = true
		if err := e.dir.MarkMessageRead(email.ID); err != nil {
			e.log.Warn("mark read failed", zap.String("email_id", email.ID), zap.Error(err))
		}
	case ActionCardCollapse:
		card.Expanded = false
	}

	msg := renderCard(sess.ChatID, card, email)
	err = e.transport.EditMessage(ctx, sess.ChatID, cb.Message.MessageID, msg)
	if err != nil && !errors.Is(err, push.ErrNotModified) {
		e.log.Error("card edit failed", zap.Int64("chat_id", sess.ChatID), zap.Error(err))
	}
	e.answer(ctx, cb.ID, "")
}

// handleMailOpen 从收件箱列表打开一封邮件：发送展开的卡片。
func (e *Engine) handleMailOpen(ctx context.Context, sess *Session, cb *push.Callback, emailID string) {
	email, err := e.dir.GetMessage(emailID)
	if err != nil {
		e.answer(ctx, cb.ID, "This message is no longer available.")
		return
	}

	if err := e.dir.MarkMessageRead(email.ID); err != nil {
		e.log.Warn("mark read failed", zap.String("email_id", email.ID), zap.Error(err))
	}

	card := &CardState{EmailID: email.ID, Expanded: true}
	msg := renderCard(sess.ChatID, card, email)
	messageID, err := e.transport.SendMessage(ctx, msg)
	if err != nil {
		e.log.Error("failed to send message card", zap.Int64("chat_id", sess.ChatID), zap.Error(err))
		e.answer(ctx, cb.ID, "Could not open the message, try again.")
		return
	}
	sess.rememberCard(messageID, card)

	e.refreshDashboard(ctx, sess)
	e.answer(ctx, cb.ID, "")
}

// answer 应答回调并记录失败。
func (e *Engine) answer(ctx context.Context, callbackID, text string) {
	if err := e.transport.AnswerCallback(ctx, callbackID, text, false); err != nil {
		e.log.Debug("answer callback failed", zap.Error(err))
	}
}

// sendText 发送一条纯文本消息。
func (e *Engine) sendText(ctx context.Context, chatID int64, text string) {
	_, err := e.transport.SendMessage(ctx, &push.Message{ChatID: chatID, Text: text, DisablePreview: true})
	if err != nil {
		e.log.Error("failed to send text", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (e *Engine) incr(fn func(*monitoring.Metrics)) {
	if e.metrics != nil {
		fn(e.metrics)
	}
}

const helpText = `📮 <b>Disposable mailbox</b>

/start — bring up your dashboard
/help — this message

Every account gets one active address. Use the dashboard buttons to read mail, reveal the password, rotate the address, or log into another mailbox with its address and password.`
