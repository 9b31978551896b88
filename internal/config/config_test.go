package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":25", cfg.SMTP.BindAddr)
	assert.Equal(t, "postdrop.dev", cfg.Mailbox.DefaultDomain)
	assert.Equal(t, 10, cfg.Mailbox.LocalPartLength)
	assert.Equal(t, 5, cfg.Engine.PageSize)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Empty(t, cfg.Database.Type)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("POSTDROP_MAILBOX_DEFAULT_DOMAIN", "Drop.Example.COM")
	t.Setenv("POSTDROP_ENGINE_PAGE_SIZE", "8")
	t.Setenv("POSTDROP_BOT_ADMIN_ID", "424242")

	cfg, err := Load()
	require.NoError(t, err)

	// 域名统一转小写
	assert.Equal(t, "drop.example.com", cfg.Mailbox.DefaultDomain)
	assert.Equal(t, 8, cfg.Engine.PageSize)
	assert.Equal(t, int64(424242), cfg.Bot.AdminID)
}

func TestLoadRejectsBadLocalPartLength(t *testing.T) {
	t.Setenv("POSTDROP_MAILBOX_LOCAL_PART_LENGTH", "2")

	_, err := Load()
	assert.Error(t, err)
}
