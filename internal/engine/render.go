package engine

import (
	"fmt"
	"html"
	"strings"

	"postdrop/backend/internal/domain"
	"postdrop/backend/internal/extract"
	"postdrop/backend/internal/push"
)

const (
	// 全文展开时的正文截断长度
	maxCardBody = 3500
	// 卡片收起时的正文预览长度
	previewLength = 200
	// 展开链接时最多渲染为按钮的条数
	maxLinkButtons = 3
)

// dashboardData 渲染仪表盘所需的目录侧数据快照。
type dashboardData struct {
	Address  string
	Password string
	Total    int
	Emails   []domain.Email
}

// maxPageIndex 返回最后一页的下标（至少为 0）。
func maxPageIndex(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total - 1) / pageSize
}

// clampPage 把页码收敛到 [0, maxPageIndex]。
func clampPage(page, total, pageSize int) int {
	if page < 0 {
		return 0
	}
	if max := maxPageIndex(total, pageSize); page > max {
		return max
	}
	return page
}

// maskPassword 返回与凭据等长的占位符。
func maskPassword(password string) string {
	return strings.Repeat("•", len(password))
}

// truncateRunes 按字符数截断，超长时加省略号。
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

// renderDashboard 根据会话状态渲染仪表盘消息。
//
// 同一状态渲染出的文本和键盘逐字节一致，重复点击由
// 传输层的 ErrNotModified 吸收为空操作。
func renderDashboard(sess *Session, data *dashboardData, pageSize int, isAdmin bool) *push.Message {
	var b strings.Builder

	b.WriteString("📮 <b>Your disposable mailbox</b>\n\n")
	b.WriteString(fmt.Sprintf("📧 Address: <code>%s</code>\n", html.EscapeString(data.Address)))

	if sess.PasswordVisible {
		b.WriteString(fmt.Sprintf("🔑 Password: <code>%s</code>\n", html.EscapeString(data.Password)))
	} else {
		b.WriteString(fmt.Sprintf("🔑 Password: %s\n", maskPassword(data.Password)))
	}
	b.WriteString(fmt.Sprintf("✉️ Messages: %d\n", data.Total))

	var kb push.Keyboard

	if sess.InboxOpen {
		page := clampPage(sess.Page, data.Total, pageSize)
		lastPage := maxPageIndex(data.Total, pageSize)

		b.WriteString(fmt.Sprintf("\n📬 <b>Inbox</b> — page %d/%d\n", page+1, lastPage+1))
		if len(data.Emails) == 0 {
			b.WriteString("<i>No messages yet.</i>\n")
		}
		for i, email := range data.Emails {
			marker := "✉️"
			if email.IsRead {
				marker = "📖"
			}
			b.WriteString(fmt.Sprintf("%s <b>%d.</b> %s — %s (%s)\n",
				marker,
				page*pageSize+i+1,
				html.EscapeString(truncateRunes(email.SenderDisplay(), 30)),
				html.EscapeString(truncateRunes(subjectOrPlaceholder(email.Subject), 40)),
				email.ReceivedAt.Format("Jan 02 15:04"),
			))
		}

		kb = append(kb, []push.Button{{Text: "📭 Hide inbox", CallbackData: "dash:inbox"}})

		for i, email := range data.Emails {
			kb = append(kb, []push.Button{{
				Text:         fmt.Sprintf("%d. %s", page*pageSize+i+1, truncateRunes(subjectOrPlaceholder(email.Subject), 32)),
				CallbackData: "mail:open:" + email.ID,
			}})
		}

		if lastPage > 0 {
			kb = append(kb, []push.Button{
				{Text: "«", CallbackData: encodePage(page - 1)},
				{Text: fmt.Sprintf("%d/%d", page+1, lastPage+1), CallbackData: "noop"},
				{Text: "»", CallbackData: encodePage(page + 1)},
			})
		}
	} else {
		kb = append(kb, []push.Button{{Text: fmt.Sprintf("📬 Inbox (%d)", data.Total), CallbackData: "dash:inbox"}})
	}

	if sess.ToolsOpen {
		kb = append(kb, []push.Button{{Text: "🛠 Hide tools", CallbackData: "dash:tools"}})

		passLabel := "👁 Show password"
		if sess.PasswordVisible {
			passLabel = "🙈 Hide password"
		}
		kb = append(kb, []push.Button{
			{Text: passLabel, CallbackData: "dash:pass"},
			{Text: "♻️ New address", CallbackData: "dash:rotate"},
		})
		kb = append(kb, []push.Button{{Text: "🔐 Login with credentials", CallbackData: "dash:login"}})

		if isAdmin {
			kb = append(kb, []push.Button{
				{Text: "🌐 Domain", CallbackData: "admin:domain"},
				{Text: "📢 Broadcast", CallbackData: "admin:bcast"},
				{Text: "📥 Import", CallbackData: "admin:import"},
			})
		}
	} else {
		kb = append(kb, []push.Button{{Text: "🛠 Tools", CallbackData: "dash:tools"}})
	}

	kb = append(kb, []push.Button{{Text: "🔄 Refresh", CallbackData: "dash:refresh"}})

	return &push.Message{
		ChatID:         sess.ChatID,
		Text:           b.String(),
		Keyboard:       kb,
		DisablePreview: true,
	}
}

func subjectOrPlaceholder(subject string) string {
	if strings.TrimSpace(subject) == "" {
		return "(no subject)"
	}
	return subject
}

// renderCard 根据卡片状态渲染一封邮件的通知卡片。
//
// 链接与候选验证码每次都从落库正文重新推导，卡片状态只记录
// 展示开关，保证编辑是纯函数式的。
func renderCard(chatID int64, card *CardState, email *domain.Email) *push.Message {
	links := extract.ExtractLinks(email.BodyHTML)
	codes := extract.ExtractCandidateCodes(email.Subject + "\n" + email.BodyPlain)

	var b strings.Builder
	b.WriteString("📨 <b>New message</b>\n\n")
	b.WriteString(fmt.Sprintf("👤 From: %s\n", html.EscapeString(email.SenderDisplay())))
	b.WriteString(fmt.Sprintf("📝 Subject: %s\n", html.EscapeString(subjectOrPlaceholder(email.Subject))))

	if len(codes) > 0 {
		if card.CodeVisible {
			quoted := make([]string, len(codes))
			for i, code := range codes {
				quoted[i] = "<code>" + html.EscapeString(code) + "</code>"
			}
			b.WriteString("🔢 Code: " + strings.Join(quoted, " ") + "\n")
		} else {
			b.WriteString("🔢 Code: ••••••\n")
		}
	}

	body := email.BodyPlain
	if card.Expanded {
		b.WriteString("\n" + html.EscapeString(truncateRunes(body, maxCardBody)) + "\n")
	} else if body != "" {
		b.WriteString("\n<i>" + html.EscapeString(truncateRunes(body, previewLength)) + "</i>\n")
	}

	if len(links) > 0 && card.LinksExpanded {
		b.WriteString(fmt.Sprintf("\n🔗 <b>Links (%d)</b>\n", len(links)))
		for i, link := range links {
			b.WriteString(fmt.Sprintf("%d. %s\n%s\n",
				i+1,
				html.EscapeString(truncateRunes(link.Text, 60)),
				html.EscapeString(link.Href),
			))
		}
	}

	var kb push.Keyboard

	if len(codes) > 0 {
		label := "👁 Show code"
		if card.CodeVisible {
			label = "🙈 Hide code"
		}
		kb = append(kb, []push.Button{{Text: label, CallbackData: "card:code:" + email.ID}})
	}

	if len(links) > 0 {
		label := fmt.Sprintf("🔗 Links (%d)", len(links))
		if card.LinksExpanded {
			label = "🔗 Hide links"
		}
		kb = append(kb, []push.Button{{Text: label, CallbackData: "card:links:" + email.ID}})

		if card.LinksExpanded {
			var row []push.Button
			for i, link := range links {
				if i >= maxLinkButtons {
					break
				}
				if !strings.HasPrefix(link.Href, "http://") && !strings.HasPrefix(link.Href, "https://") {
					continue
				}
				row = append(row, push.Button{
					Text: fmt.Sprintf("↗️ %d", i+1),
					URL:  link.Href,
				})
			}
			if len(row) > 0 {
				kb = append(kb, row)
			}
		}
	}

	if card.Expanded {
		kb = append(kb, []push.Button{{Text: "▲ Collapse", CallbackData: "card:fold:" + email.ID}})
	} else {
		kb = append(kb, []push.Button{{Text: "▼ Open full message", CallbackData: "card:open:" + email.ID}})
	}

	return &push.Message{
		ChatID:         chatID,
		Text:           b.String(),
		Keyboard:       kb,
		DisablePreview: true,
	}
}
