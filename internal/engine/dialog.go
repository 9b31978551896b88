package engine

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"postdrop/backend/internal/directory"
	"postdrop/backend/internal/monitoring"
	"postdrop/backend/internal/push"
)

// handleAdminStart 打开一个管理对话框。非管理员聊天直接拒绝。
func (e *Engine) handleAdminStart(ctx context.Context, sess *Session, cb *push.Callback, kind ActionKind) {
	if !e.isAdmin(sess.ChatID) {
		e.answer(ctx, cb.ID, "Not allowed.")
		return
	}

	// 覆盖可能挂起的旧对话框
	sess.DialogDraft = ""

	switch kind {
	case ActionDomainStart:
		sess.Dialog = DialogDomain
		currentDomain, err := e.dir.GetDomain()
		if err != nil {
			e.log.Error("failed to read domain", zap.Error(err))
			currentDomain = "?"
		}
		e.sendText(ctx, sess.ChatID, fmt.Sprintf(
			"Current domain: <code>%s</code>\nSend the new domain, or /start to cancel. Existing addresses keep working.",
			html.EscapeString(currentDomain)))

	case ActionBroadcastStart:
		sess.Dialog = DialogBroadcastText
		e.sendText(ctx, sess.ChatID, "Send the broadcast text, or /start to cancel.")

	case ActionBulkImportStart:
		sess.Dialog = DialogBulkImport
		e.sendText(ctx, sess.ChatID, "Send user IDs to import, one per line (commas work too), or /start to cancel.")
	}

	e.answer(ctx, cb.ID, "")
}

// handleDialogText 把文本输入喂给当前对话框。
func (e *Engine) handleDialogText(ctx context.Context, sess *Session, text string) {
	switch sess.Dialog {
	case DialogLoginAddress:
		sess.DialogDraft = text
		sess.Dialog = DialogLoginPassword
		e.sendText(ctx, sess.ChatID, "Now send the password for that address.")

	case DialogLoginPassword:
		e.finishLogin(ctx, sess, sess.DialogDraft, text)

	case DialogDomain:
		e.finishDomainChange(ctx, sess, text)

	case DialogBroadcastText:
		// 空文案不进入确认阶段，对话框保持挂起等待重试
		if text == "" {
			e.sendText(ctx, sess.ChatID, "Broadcast text cannot be empty. Send the text, or /start to cancel.")
			return
		}
		sess.DialogDraft = text
		sess.Dialog = DialogBroadcastConfirm
		e.sendBroadcastPreview(ctx, sess)

	case DialogBroadcastConfirm:
		// 确认阶段只认按钮
		e.sendText(ctx, sess.ChatID, "Use the buttons to send or cancel the broadcast.")

	case DialogBulkImport:
		e.finishBulkImport(ctx, sess, text)
	}
}

// finishLogin 执行凭据式邮箱转移。
func (e *Engine) finishLogin(ctx context.Context, sess *Session, address, password string) {
	sess.Dialog = DialogNone
	sess.DialogDraft = ""

	mailbox, err := e.dir.ReassignMailbox(sess.UserID, address, password)
	switch {
	case errors.Is(err, directory.ErrLoginThrottled):
		e.incr(func(m *monitoring.Metrics) { m.LoginsRejected.Inc() })
		e.sendText(ctx, sess.ChatID, "Too many attempts. Wait a bit and try again.")
		return
	case errors.Is(err, directory.ErrInvalidLogin):
		e.incr(func(m *monitoring.Metrics) { m.LoginsRejected.Inc() })
		e.sendText(ctx, sess.ChatID, "Invalid address or password.")
		return
	case err != nil:
		e.log.Error("login failed", zap.String("user_id", sess.UserID), zap.Error(err))
		e.sendText(ctx, sess.ChatID, "Something went wrong, try again.")
		return
	}

	e.incr(func(m *monitoring.Metrics) { m.LoginsAccepted.Inc() })
	sess.Page = 0
	sess.PasswordVisible = false
	e.sendText(ctx, sess.ChatID, fmt.Sprintf(
		"Logged into <code>%s</code>. Its history is now yours.", html.EscapeString(mailbox.Address)))
	e.refreshDashboard(ctx, sess)
}

// finishDomainChange 校验并切换激活域名。
func (e *Engine) finishDomainChange(ctx context.Context, sess *Session, text string) {
	sess.Dialog = DialogNone

	applied, err := e.dir.SetDomain(text)
	if err != nil {
		// 校验失败不退出对话框，允许直接重试
		sess.Dialog = DialogDomain
		e.sendText(ctx, sess.ChatID, fmt.Sprintf(
			"Not a valid domain: %s\nTry again, or /start to cancel.", html.EscapeString(err.Error())))
		return
	}

	e.sendText(ctx, sess.ChatID, fmt.Sprintf(
		"Active domain is now <code>%s</code>. New addresses will use it; existing ones keep working.",
		html.EscapeString(applied)))
	e.refreshDashboard(ctx, sess)
}

// sendBroadcastPreview 发送广播预览和确认按钮。
func (e *Engine) sendBroadcastPreview(ctx context.Context, sess *Session) {
	total, err := e.dir.CountUsers()
	if err != nil {
		e.log.Error("failed to count users", zap.Error(err))
		total = 0
	}

	msg := &push.Message{
		ChatID: sess.ChatID,
		Text: fmt.Sprintf("📢 <b>Broadcast preview</b> — %d recipients\n\n%s",
			total, html.EscapeString(sess.DialogDraft)),
		Keyboard: push.Keyboard{
			{
				{Text: "✅ Send", CallbackData: "dlg:send"},
				{Text: "❌ Cancel", CallbackData: "dlg:cancel"},
			},
		},
		DisablePreview: true,
	}
	if _, err := e.transport.SendMessage(ctx, msg); err != nil {
		e.log.Error("failed to send broadcast preview", zap.Error(err))
	}
}

// handleBroadcastSend 执行确认后的广播。
func (e *Engine) handleBroadcastSend(ctx context.Context, sess *Session, cb *push.Callback) {
	if !e.isAdmin(sess.ChatID) || sess.Dialog != DialogBroadcastConfirm {
		e.answer(ctx, cb.ID, "Nothing to send.")
		return
	}

	text := sess.DialogDraft
	sess.Dialog = DialogNone
	sess.DialogDraft = ""
	e.answer(ctx, cb.ID, "Sending…")

	result := e.Broadcast(ctx, text)
	e.sendText(ctx, sess.ChatID, fmt.Sprintf(
		"📢 Broadcast done: %d/%d delivered, %d failed.",
		result.Sent, result.Total, result.Failed))
}

// finishBulkImport 解析用户标识清单并逐个注册。
//
// 非数字行静默计为跳过；重复导入是幂等的。一个合法标识都没有时
// 对话框保持挂起等待重试。
func (e *Engine) finishBulkImport(ctx context.Context, sess *Session, text string) {
	var imported, skipped int
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == ',' || r == ' ' || r == '\t' || r == '\r'
	}) {
		externalID, err := strconv.ParseInt(field, 10, 64)
		if err != nil || externalID <= 0 {
			skipped++
			continue
		}
		if _, err := e.dir.EnsureUser(externalID, "", ""); err != nil {
			e.log.Warn("bulk import entry failed", zap.Int64("external_id", externalID), zap.Error(err))
			skipped++
			continue
		}
		imported++
	}

	if imported == 0 {
		e.sendText(ctx, sess.ChatID, fmt.Sprintf(
			"No valid user IDs found (%d entries skipped). Send numeric IDs, or /start to cancel.", skipped))
		return
	}

	sess.Dialog = DialogNone
	e.sendText(ctx, sess.ChatID, fmt.Sprintf(
		"📥 Import done: %d users registered, %d entries skipped.", imported, skipped))
}
