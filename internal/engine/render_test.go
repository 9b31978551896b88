package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"postdrop/backend/internal/domain"
	"postdrop/backend/internal/push"
)

// wrapParsed 构造一封只含主题和纯文本正文的规范化邮件。
func wrapParsed(subject, body string) *domain.ParsedMessage {
	return &domain.ParsedMessage{
		SenderName:  "Sender",
		SenderEmail: "sender@example.com",
		Subject:     subject,
		BodyPlain:   body,
	}
}

// loginCodeParsed 构造一封带验证码的邮件。
func loginCodeParsed() *domain.ParsedMessage {
	return wrapParsed("Your login code", "Use code 482913 to sign in.")
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		page, total, pageSize, want int
	}{
		{0, 0, 5, 0},
		{3, 0, 5, 0},
		{-1, 10, 5, 0},
		{0, 12, 5, 0},
		{2, 12, 5, 2},
		{99, 12, 5, 2},
		{1, 5, 5, 0},
		{1, 6, 5, 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, clampPage(tc.page, tc.total, tc.pageSize),
			"clampPage(%d, %d, %d)", tc.page, tc.total, tc.pageSize)
	}
}

func TestRenderDashboardMasksPasswordByDefault(t *testing.T) {
	sess := &Session{ChatID: 1}
	data := &dashboardData{Address: "abc@drop.test", Password: "Secret1234", Total: 0}

	msg := renderDashboard(sess, data, 5, false)
	assert.NotContains(t, msg.Text, "Secret1234")
	assert.Contains(t, msg.Text, "••••••••••")

	sess.PasswordVisible = true
	msg = renderDashboard(sess, data, 5, false)
	assert.Contains(t, msg.Text, "Secret1234")
}

func TestRenderDashboardEscapesHTML(t *testing.T) {
	sess := &Session{ChatID: 1, InboxOpen: true}
	data := &dashboardData{
		Address:  "abc@drop.test",
		Password: "pw12345678",
		Total:    1,
		Emails: []domain.Email{{
			ID:          "e1",
			SenderName:  "<script>alert(1)</script>",
			SenderEmail: "evil@example.com",
			Subject:     "a <b> tag",
			ReceivedAt:  time.Now(),
		}},
	}

	msg := renderDashboard(sess, data, 5, false)
	assert.NotContains(t, msg.Text, "<script>")
	assert.Contains(t, msg.Text, "&lt;script&gt;")
}

func TestRenderDashboardAdminButtonsOnlyForAdmin(t *testing.T) {
	sess := &Session{ChatID: 1, ToolsOpen: true}
	data := &dashboardData{Address: "abc@drop.test", Password: "pw12345678"}

	adminMsg := renderDashboard(sess, data, 5, true)
	plainMsg := renderDashboard(sess, data, 5, false)

	assert.True(t, keyboardHasCallback(adminMsg.Keyboard, "admin:bcast"))
	assert.False(t, keyboardHasCallback(plainMsg.Keyboard, "admin:bcast"))
}

func keyboardHasCallback(kb push.Keyboard, data string) bool {
	for _, row := range kb {
		for _, btn := range row {
			if btn.CallbackData == data {
				return true
			}
		}
	}
	return false
}

func TestRenderCardLinksCollapsedAndExpanded(t *testing.T) {
	email := &domain.Email{
		ID:          "e1",
		SenderName:  "Shop",
		SenderEmail: "shop@example.com",
		Subject:     "Confirm your order",
		BodyPlain:   "Click the link to confirm.",
		BodyHTML: `<html><body>
			<a href="https://example.com/confirm">Confirm</a>
			<a href="https://example.com/cancel">Cancel</a>
		</body></html>`,
	}

	card := &CardState{EmailID: "e1"}
	msg := renderCard(1, card, email)
	assert.NotContains(t, msg.Text, "example.com/confirm")
	assert.True(t, keyboardHasCallback(msg.Keyboard, "card:links:e1"))

	card.LinksExpanded = true
	msg = renderCard(1, card, email)
	assert.Contains(t, msg.Text, "example.com/confirm")

	// 前几条链接渲染为 URL 按钮
	var urlButtons int
	for _, row := range msg.Keyboard {
		for _, btn := range row {
			if btn.URL != "" {
				urlButtons++
			}
		}
	}
	assert.Equal(t, 2, urlButtons)
}
