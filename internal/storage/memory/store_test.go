package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postdrop/backend/internal/domain"
)

func newMailbox(userID, address string) *domain.Mailbox {
	return &domain.Mailbox{
		ID:        uuid.NewString(),
		UserID:    &userID,
		Address:   address,
		Password:  "secret9999",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateUserDuplicateExternalID(t *testing.T) {
	store := NewStore()

	err := store.CreateUser(&domain.User{ID: uuid.NewString(), ExternalID: 100})
	require.NoError(t, err)

	err = store.CreateUser(&domain.User{ID: uuid.NewString(), ExternalID: 100})
	assert.ErrorIs(t, err, domain.ErrUserExists)
}

func TestSaveMailboxAddressCollision(t *testing.T) {
	store := NewStore()

	require.NoError(t, store.SaveMailbox(newMailbox("u1", "abc@x.dev")))

	err := store.SaveMailbox(newMailbox("u2", "ABC@x.dev"))
	assert.ErrorIs(t, err, domain.ErrAddressTaken)
}

func TestGetActiveMailboxByAddressCaseInsensitive(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.SaveMailbox(newMailbox("u1", "abc@x.dev")))

	mb, err := store.GetActiveMailboxByAddress("ABC@X.DEV")
	require.NoError(t, err)
	assert.Equal(t, "abc@x.dev", mb.Address)
}

func TestTransferMailboxMovesOwnership(t *testing.T) {
	store := NewStore()

	old := newMailbox("owner-a", "taken@x.dev")
	require.NoError(t, store.SaveMailbox(old))
	require.NoError(t, store.SaveMailbox(newMailbox("owner-b", "mine@x.dev")))

	require.NoError(t, store.TransferMailbox(old.ID, "owner-b"))

	// 新持有者恰好一个激活邮箱，且是被转移的那个
	got, err := store.GetActiveMailboxByUserID("owner-b")
	require.NoError(t, err)
	assert.Equal(t, old.ID, got.ID)

	// 原持有者没有激活邮箱了
	_, err = store.GetActiveMailboxByUserID("owner-a")
	assert.ErrorIs(t, err, domain.ErrMailboxNotFound)

	// 旧地址的邮箱本身被停用
	_, err = store.GetActiveMailboxByAddress("mine@x.dev")
	assert.ErrorIs(t, err, domain.ErrMailboxNotFound)
}

func TestListEmailsNewestFirstWithPaging(t *testing.T) {
	store := NewStore()
	base := time.Now().UTC()

	for i := 0; i < 7; i++ {
		require.NoError(t, store.SaveEmail(&domain.Email{
			ID:         fmt.Sprintf("email-%d", i),
			MailboxID:  "mb1",
			Subject:    fmt.Sprintf("s%d", i),
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, err := store.ListEmails("mb1", 3, 0)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "s6", page[0].Subject)
	assert.Equal(t, "s4", page[2].Subject)

	page, err = store.ListEmails("mb1", 3, 6)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "s0", page[0].Subject)

	page, err = store.ListEmails("mb1", 3, 99)
	require.NoError(t, err)
	assert.Empty(t, page)

	count, err := store.CountEmails("mb1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestMarkEmailRead(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.SaveEmail(&domain.Email{ID: "e1", MailboxID: "mb1"}))

	require.NoError(t, store.MarkEmailRead("e1"))

	e, err := store.GetEmail("e1")
	require.NoError(t, err)
	assert.True(t, e.IsRead)

	assert.ErrorIs(t, store.MarkEmailRead("nope"), domain.ErrEmailNotFound)
}

func TestSettings(t *testing.T) {
	store := NewStore()

	_, err := store.GetSetting(domain.SettingActiveDomain)
	assert.ErrorIs(t, err, domain.ErrSettingNotFound)

	require.NoError(t, store.SetSetting(domain.SettingActiveDomain, "x.dev"))

	value, err := store.GetSetting(domain.SettingActiveDomain)
	require.NoError(t, err)
	assert.Equal(t, "x.dev", value)
}
