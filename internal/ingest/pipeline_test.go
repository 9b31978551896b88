package ingest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postdrop/backend/internal/config"
	"postdrop/backend/internal/directory"
	"postdrop/backend/internal/domain"
	"postdrop/backend/internal/storage/memory"
)

type recordingNotifier struct {
	mu     sync.Mutex
	emails []*domain.Email
}

func (r *recordingNotifier) NotifyNewMail(_ context.Context, _ *domain.Mailbox, email *domain.Email, _ *domain.ParsedMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, email)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.emails)
}

func newTestDirectory(t *testing.T) *directory.Service {
	t.Helper()
	return directory.NewService(memory.NewStore(), nil, config.MailboxConfig{
		DefaultDomain:   "drop.test",
		LocalPartLength: 10,
		PasswordLength:  10,
		AllocRetries:    10,
	}, nil)
}

const rawMessage = "From: Sender <sender@example.com>\r\n" +
	"Subject: hello\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"Your code is 123456\r\n"

func TestDeliverFansOutPerResolvableRecipient(t *testing.T) {
	dir := newTestDirectory(t)

	alice, err := dir.EnsureUser(1, "Alice", "")
	require.NoError(t, err)
	bob, err := dir.EnsureUser(2, "Bob", "")
	require.NoError(t, err)

	aliceBox, err := dir.AllocateMailbox(alice.ID)
	require.NoError(t, err)
	bobBox, err := dir.AllocateMailbox(bob.ID)
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	pipe := NewPipeline(dir, nil, nil, nil, notifier)

	err = pipe.Deliver(context.Background(), &Envelope{
		From:       "sender@example.com",
		Recipients: []string{aliceBox.Address, "nobody@drop.test", bobBox.Address},
		Raw:        []byte(rawMessage),
	})
	require.NoError(t, err)

	// 恰好 2 行邮件、2 次通知；无主收件人静默跳过
	for _, mb := range []*domain.Mailbox{aliceBox, bobBox} {
		count, err := dir.CountMessages(mb.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		emails, err := dir.ListMessages(mb.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, emails, 1)
		assert.Equal(t, "hello", emails[0].Subject)
		assert.Equal(t, "sender@example.com", emails[0].SenderEmail)
	}
	assert.Equal(t, 2, notifier.count())
}

func TestDeliverAllUnresolvableIsNotAnError(t *testing.T) {
	dir := newTestDirectory(t)
	notifier := &recordingNotifier{}
	pipe := NewPipeline(dir, nil, nil, nil, notifier)

	err := pipe.Deliver(context.Background(), &Envelope{
		From:       "sender@example.com",
		Recipients: []string{"ghost@drop.test"},
		Raw:        []byte(rawMessage),
	})
	require.NoError(t, err)
	assert.Zero(t, notifier.count())
}

func TestDeliverGarbageBodyStillPersists(t *testing.T) {
	dir := newTestDirectory(t)
	u, err := dir.EnsureUser(1, "U", "")
	require.NoError(t, err)
	mb, err := dir.AllocateMailbox(u.ID)
	require.NoError(t, err)

	pipe := NewPipeline(dir, nil, nil, nil)
	err = pipe.Deliver(context.Background(), &Envelope{
		From:       "x@example.com",
		Recipients: []string{mb.Address},
		Raw:        []byte("\x00\xff not a mime message"),
	})
	require.NoError(t, err)

	count, err := dir.CountMessages(mb.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
