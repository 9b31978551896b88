package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postdrop/backend/internal/config"
	"postdrop/backend/internal/directory"
	"postdrop/backend/internal/push"
	"postdrop/backend/internal/storage/memory"
)

// fakeTransport 记录所有出站调用，错误可脚本化。
type fakeTransport struct {
	mu      sync.Mutex
	sent    []*push.Message
	edits   []*push.Message
	answers []string

	nextMessageID int
	sendErr       func(chatID int64) error
	editErr       error
}

func (f *fakeTransport) SendMessage(_ context.Context, msg *push.Message) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		if err := f.sendErr(msg.ChatID); err != nil {
			return 0, err
		}
	}
	f.nextMessageID++
	f.sent = append(f.sent, msg)
	return f.nextMessageID, nil
}

func (f *fakeTransport) EditMessage(_ context.Context, _ int64, _ int, msg *push.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, msg)
	return nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, _ string, text string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) lastSent() *push.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeTransport) lastAnswer() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.answers) == 0 {
		return ""
	}
	return f.answers[len(f.answers)-1]
}

const adminChatID = int64(9000)

func newTestEngine(t *testing.T) (*Engine, *fakeTransport, *directory.Service) {
	t.Helper()
	dir := directory.NewService(memory.NewStore(), nil, config.MailboxConfig{
		DefaultDomain:   "drop.test",
		LocalPartLength: 10,
		PasswordLength:  10,
		AllocRetries:    10,
	}, nil)
	transport := &fakeTransport{}
	eng := NewEngine(transport, dir, config.EngineConfig{
		PageSize:    5,
		SessionTTL:  time.Hour,
		MaxSessions: 100,
	}, adminChatID, nil, nil)
	return eng, transport, dir
}

func textUpdate(chatID int64, text string) *push.Update {
	msg := &push.IncomingMessage{MessageID: 1, Text: text}
	msg.From = push.UserMeta{ID: chatID, FirstName: "Test"}
	msg.Chat.ID = chatID
	return &push.Update{Message: msg}
}

func callbackUpdate(chatID int64, messageID int, data string) *push.Update {
	msg := &push.IncomingMessage{MessageID: messageID}
	msg.Chat.ID = chatID
	return &push.Update{Callback: &push.Callback{
		ID:      "cb-1",
		From:    push.UserMeta{ID: chatID, FirstName: "Test"},
		Message: msg,
		Data:    data,
	}}
}

func TestStartSendsDashboard(t *testing.T) {
	eng, transport, _ := newTestEngine(t)
	ctx := context.Background()

	eng.HandleUpdate(ctx, textUpdate(100, "/start"))

	require.Equal(t, 1, transport.sentCount())
	dash := transport.lastSent()
	assert.Contains(t, dash.Text, "@drop.test")
	assert.NotEmpty(t, dash.Keyboard)

	sess := eng.sessions.Peek(100)
	require.NotNil(t, sess)
	assert.NotZero(t, sess.DashboardMessageID)
}

func TestInboxPaginationClampsToLastPage(t *testing.T) {
	eng, transport, dir := newTestEngine(t)
	ctx := context.Background()

	eng.HandleUpdate(ctx, textUpdate(100, "/start"))
	sess := eng.sessions.Peek(100)
	require.NotNil(t, sess)

	mb, err := dir.AllocateMailbox(sess.UserID)
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		_, err := dir.SaveEmail(mb.ID, wrapParsed(fmt.Sprintf("subject %d", i), "body"))
		require.NoError(t, err)
	}

	eng.HandleUpdate(ctx, callbackUpdate(100, sess.DashboardMessageID, "dash:inbox"))
	assert.True(t, sess.InboxOpen)

	// 12 封、每页 5 → 合法页码 0..2
	eng.HandleUpdate(ctx, callbackUpdate(100, sess.DashboardMessageID, "dash:page:99"))
	assert.Equal(t, 2, sess.Page)

	eng.HandleUpdate(ctx, callbackUpdate(100, sess.DashboardMessageID, "dash:page:1"))
	assert.Equal(t, 1, sess.Page)

	// 收起收件箱回到第 0 页
	eng.HandleUpdate(ctx, callbackUpdate(100, sess.DashboardMessageID, "dash:inbox"))
	assert.False(t, sess.InboxOpen)
	assert.Equal(t, 0, sess.Page)

	assert.NotEmpty(t, transport.edits)
}

func TestDialogBlocksOtherActions(t *testing.T) {
	eng, transport, _ := newTestEngine(t)
	ctx := context.Background()

	eng.HandleUpdate(ctx, textUpdate(100, "/start"))
	sess := eng.sessions.Peek(100)
	require.NotNil(t, sess)

	eng.HandleUpdate(ctx, callbackUpdate(100, sess.DashboardMessageID, "dash:tools"))
	eng.HandleUpdate(ctx, callbackUpdate(100, sess.DashboardMessageID, "dash:login"))
	assert.Equal(t, DialogLoginAddress, sess.Dialog)

	eng.HandleUpdate(ctx, callbackUpdate(100, sess.DashboardMessageID, "dash:inbox"))
	assert.False(t, sess.InboxOpen, "dialog must block dashboard toggles")
	assert.Contains(t, transport.lastAnswer(), "cancel")

	// 取消后恢复正常
	eng.HandleUpdate(ctx, callbackUpdate(100, sess.DashboardMessageID, "dlg:cancel"))
	assert.Equal(t, DialogNone, sess.Dialog)
	eng.HandleUpdate(ctx, callbackUpdate(100, sess.DashboardMessageID, "dash:inbox"))
	assert.True(t, sess.InboxOpen)
}

func TestDialogBeginOverwritesStaleDialog(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	eng.HandleUpdate(ctx, textUpdate(adminChatID, "/start"))
	sess := eng.sessions.Peek(adminChatID)
	require.NotNil(t, sess)

	eng.HandleUpdate(ctx, callbackUpdate(adminChatID, sess.DashboardMessageID, "admin:domain"))
	require.Equal(t, DialogDomain, sess.Dialog)

	// 新的开启动作不被模态拦截，直接覆盖挂起的旧对话框
	eng.HandleUpdate(ctx, callbackUpdate(adminChatID, sess.DashboardMessageID, "admin:bcast"))
	assert.Equal(t, DialogBroadcastText, sess.Dialog)

	eng.HandleUpdate(ctx, callbackUpdate(adminChatID, sess.DashboardMessageID, "dash:login"))
	assert.Equal(t, DialogLoginAddress, sess.Dialog)
	assert.Empty(t, sess.DialogDraft)
}

func TestEmptyBroadcastTextStaysPending(t *testing.T) {
	eng, transport, _ := newTestEngine(t)
	ctx := context.Background()

	eng.HandleUpdate(ctx, textUpdate(adminChatID, "/start"))
	sess := eng.sessions.Peek(adminChatID)
	require.NotNil(t, sess)

	eng.HandleUpdate(ctx, callbackUpdate(adminChatID, sess.DashboardMessageID, "admin:bcast"))
	require.Equal(t, DialogBroadcastText, sess.Dialog)

	// 纯空白不得进入确认阶段，对话框保持挂起
	eng.HandleUpdate(ctx, textUpdate(adminChatID, "   "))
	assert.Equal(t, DialogBroadcastText, sess.Dialog)
	assert.Empty(t, sess.DialogDraft)
	assert.Contains(t, transport.lastSent().Text, "cannot be empty")

	// 此时确认按钮没有可发送的内容
	eng.HandleUpdate(ctx, callbackUpdate(adminChatID, sess.DashboardMessageID, "dlg:send"))
	assert.Contains(t, transport.lastAnswer(), "Nothing to send")
}

func TestBulkImportWithNoValidIDsStaysPending(t *testing.T) {
	eng, transport, dir := newTestEngine(t)
	ctx := context.Background()

	eng.HandleUpdate(ctx, textUpdate(adminChatID, "/start"))
	sess := eng.sessions.Peek(adminChatID)
	require.NotNil(t, sess)

	eng.HandleUpdate(ctx, callbackUpdate(adminChatID, sess.DashboardMessageID, "admin:import"))
	require.Equal(t, DialogBulkImport, sess.Dialog)

	// 一个合法标识都没有：不注册任何用户，对话框保持挂起
	eng.HandleUpdate(ctx, textUpdate(adminChatID, "abc, -5"))
	assert.Equal(t, DialogBulkImport, sess.Dialog)
	assert.Contains(t, transport.lastSent().Text, "No valid user IDs")

	// 补发合法清单后正常收尾
	eng.HandleUpdate(ctx, textUpdate(adminChatID, "501"))
	assert.Equal(t, DialogNone, sess.Dialog)

	targets, err := dir.BroadcastTargets()
	require.NoError(t, err)
	assert.Contains(t, targets, int64(501))
}

func TestLoginDialogFlow(t *testing.T) {
	eng, _, dir := newTestEngine(t)
	ctx := context.Background()

	alice, err := dir.EnsureUser(200, "Alice", "")
	require.NoError(t, err)
	aliceBox, err := dir.AllocateMailbox(alice.ID)
	require.NoError(t, err)

	eng.HandleUpdate(ctx, textUpdate(100, "/start"))
	sess := eng.sessions.Peek(100)
	require.NotNil(t, sess)

	eng.HandleUpdate(ctx, callbackUpdate(100, sess.DashboardMessageID, "dash:tools"))
	eng.HandleUpdate(ctx, callbackUpdate(100, sess.DashboardMessageID, "dash:login"))
	eng.HandleUpdate(ctx, textUpdate(100, aliceBox.Address))
	assert.Equal(t, DialogLoginPassword, sess.Dialog)

	eng.HandleUpdate(ctx, textUpdate(100, aliceBox.Password))
	assert.Equal(t, DialogNone, sess.Dialog)

	// 登录后当前邮箱就是 Alice 的那个
	mb, err := dir.AllocateMailbox(sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, aliceBox.ID, mb.ID)
}

func TestIdempotentRenderIsSilentNoop(t *testing.T) {
	eng, transport, _ := newTestEngine(t)
	ctx := context.Background()

	eng.HandleUpdate(ctx, textUpdate(100, "/start"))
	sess := eng.sessions.Peek(100)
	require.NotNil(t, sess)
	sentBefore := transport.sentCount()

	// 内容未变的编辑：不得降级为重发新消息
	transport.editErr = push.ErrNotModified
	eng.HandleUpdate(ctx, callbackUpdate(100, sess.DashboardMessageID, "dash:refresh"))

	assert.Equal(t, sentBefore, transport.sentCount())
	assert.Equal(t, "", transport.lastAnswer())
}

func TestActionRateLimiterRejectsSilently(t *testing.T) {
	eng, transport, dir := newTestEngine(t)
	eng.sessions = NewSessionCache(100, time.Hour, time.Minute)
	_ = dir
	ctx := context.Background()

	eng.HandleUpdate(ctx, textUpdate(100, "/start"))
	sess := eng.sessions.Peek(100)
	require.NotNil(t, sess)

	// 限速器突发额度 1：第一次放行，第二次拒绝
	eng.HandleUpdate(ctx, callbackUpdate(100, sess.DashboardMessageID, "dash:tools"))
	assert.True(t, sess.ToolsOpen)

	eng.HandleUpdate(ctx, callbackUpdate(100, sess.DashboardMessageID, "dash:tools"))
	assert.True(t, sess.ToolsOpen, "rate-limited action must not mutate state")
	assert.Contains(t, transport.lastAnswer(), "Too fast")
}

func TestAdminActionsRejectedForNonAdmin(t *testing.T) {
	eng, transport, _ := newTestEngine(t)
	ctx := context.Background()

	eng.HandleUpdate(ctx, textUpdate(100, "/start"))
	sess := eng.sessions.Peek(100)
	require.NotNil(t, sess)

	eng.HandleUpdate(ctx, callbackUpdate(100, sess.DashboardMessageID, "admin:bcast"))
	assert.Equal(t, DialogNone, sess.Dialog)
	assert.Contains(t, transport.lastAnswer(), "Not allowed")
}

func TestBroadcastConfirmFlow(t *testing.T) {
	eng, transport, dir := newTestEngine(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		_, err := dir.EnsureUser(i, "U", "")
		require.NoError(t, err)
	}

	eng.HandleUpdate(ctx, textUpdate(adminChatID, "/start"))
	sess := eng.sessions.Peek(adminChatID)
	require.NotNil(t, sess)

	eng.HandleUpdate(ctx, callbackUpdate(adminChatID, sess.DashboardMessageID, "admin:bcast"))
	assert.Equal(t, DialogBroadcastText, sess.Dialog)

	eng.HandleUpdate(ctx, textUpdate(adminChatID, "maintenance tonight"))
	assert.Equal(t, DialogBroadcastConfirm, sess.Dialog)
	assert.Contains(t, transport.lastSent().Text, "maintenance tonight")

	eng.HandleUpdate(ctx, callbackUpdate(adminChatID, sess.DashboardMessageID, "dlg:send"))
	assert.Equal(t, DialogNone, sess.Dialog)

	// 结果消息里有 N/M 统计（4 个用户：3 个导入的 + 管理员自己）
	assert.Contains(t, transport.lastSent().Text, "4/4 delivered")
}

func TestBroadcastCountsFailures(t *testing.T) {
	eng, transport, dir := newTestEngine(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		_, err := dir.EnsureUser(i, "U", "")
		require.NoError(t, err)
	}

	transport.sendErr = func(chatID int64) error {
		if chatID == 2 {
			return fmt.Errorf("blocked by user")
		}
		return nil
	}

	result := eng.Broadcast(ctx, "hello")
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)
}

func TestBroadcastRetriesOnceOnRateLimit(t *testing.T) {
	eng, transport, dir := newTestEngine(t)
	ctx := context.Background()

	_, err := dir.EnsureUser(1, "U", "")
	require.NoError(t, err)

	var attempts int
	transport.sendErr = func(chatID int64) error {
		attempts++
		if attempts == 1 {
			return &push.RateLimitedError{RetryAfter: time.Millisecond}
		}
		return nil
	}

	result := eng.Broadcast(ctx, "hello")
	assert.Equal(t, 1, result.Sent)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 2, attempts)
}

func TestBulkImportParsesMixedInput(t *testing.T) {
	eng, transport, dir := newTestEngine(t)
	ctx := context.Background()

	eng.HandleUpdate(ctx, textUpdate(adminChatID, "/start"))
	sess := eng.sessions.Peek(adminChatID)
	require.NotNil(t, sess)

	eng.HandleUpdate(ctx, callbackUpdate(adminChatID, sess.DashboardMessageID, "admin:import"))
	require.Equal(t, DialogBulkImport, sess.Dialog)

	eng.HandleUpdate(ctx, textUpdate(adminChatID, "101\n102, abc\n103"))

	assert.Contains(t, transport.lastSent().Text, "3 users registered")
	assert.Contains(t, transport.lastSent().Text, "1 entries skipped")

	targets, err := dir.BroadcastTargets()
	require.NoError(t, err)
	assert.Contains(t, targets, int64(101))
	assert.Contains(t, targets, int64(103))
}

func TestNotifyNewMailSendsCard(t *testing.T) {
	eng, transport, dir := newTestEngine(t)
	ctx := context.Background()

	eng.HandleUpdate(ctx, textUpdate(100, "/start"))
	sess := eng.sessions.Peek(100)
	require.NotNil(t, sess)

	mb, err := dir.AllocateMailbox(sess.UserID)
	require.NoError(t, err)
	email, err := dir.SaveEmail(mb.ID, loginCodeParsed())
	require.NoError(t, err)

	eng.NotifyNewMail(ctx, mb, email, nil)

	card := transport.lastSent()
	require.NotNil(t, card)
	assert.Contains(t, card.Text, "New message")
	// 验证码默认隐藏
	assert.NotContains(t, card.Text, "482913")
	assert.Contains(t, card.Text, "••••••")

	// 卡片状态已登记，后续开关可用
	var registered bool
	for _, c := range sess.Cards {
		if c.EmailID == email.ID {
			registered = true
		}
	}
	assert.True(t, registered)
}

func TestCardCodeToggleRevealsAndHides(t *testing.T) {
	eng, transport, dir := newTestEngine(t)
	ctx := context.Background()

	eng.HandleUpdate(ctx, textUpdate(100, "/start"))
	sess := eng.sessions.Peek(100)
	require.NotNil(t, sess)

	mb, err := dir.AllocateMailbox(sess.UserID)
	require.NoError(t, err)
	email, err := dir.SaveEmail(mb.ID, loginCodeParsed())
	require.NoError(t, err)

	eng.NotifyNewMail(ctx, mb, email, nil)
	cardMessageID := transport.nextMessageID

	eng.HandleUpdate(ctx, callbackUpdate(100, cardMessageID, "card:code:"+email.ID))
	require.NotEmpty(t, transport.edits)
	assert.Contains(t, transport.edits[len(transport.edits)-1].Text, "482913")

	eng.HandleUpdate(ctx, callbackUpdate(100, cardMessageID, "card:code:"+email.ID))
	assert.NotContains(t, transport.edits[len(transport.edits)-1].Text, "482913")
}

func TestSessionCardStateIsBounded(t *testing.T) {
	sess := &Session{Cards: make(map[int]*CardState)}

	for i := 1; i <= maxSessionCards+10; i++ {
		sess.rememberCard(i, &CardState{EmailID: fmt.Sprintf("e%d", i)})
	}

	assert.Len(t, sess.Cards, maxSessionCards)
	// 最旧的条目被淘汰，最新的保留
	assert.Nil(t, sess.Cards[1])
	assert.NotNil(t, sess.Cards[maxSessionCards+10])
}

func TestMailOpenTruncatesLongBody(t *testing.T) {
	eng, transport, dir := newTestEngine(t)
	ctx := context.Background()

	eng.HandleUpdate(ctx, textUpdate(100, "/start"))
	sess := eng.sessions.Peek(100)
	require.NotNil(t, sess)

	mb, err := dir.AllocateMailbox(sess.UserID)
	require.NoError(t, err)

	email, err := dir.SaveEmail(mb.ID, wrapParsed("Huge", strings.Repeat("a", 5000)))
	require.NoError(t, err)

	eng.HandleUpdate(ctx, callbackUpdate(100, sess.DashboardMessageID, "mail:open:"+email.ID))

	var cardText string
	transport.mu.Lock()
	for _, msg := range transport.sent {
		if strings.Contains(msg.Text, "Huge") {
			cardText = msg.Text
		}
	}
	transport.mu.Unlock()
	require.NotEmpty(t, cardText)
	assert.Less(t, len([]rune(cardText)), 4000)
	assert.Contains(t, cardText, "…")

	// 打开即已读
	got, err := dir.GetMessage(email.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
}
