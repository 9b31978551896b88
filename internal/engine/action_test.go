package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseCallback(t *testing.T) {
	cases := []struct {
		data string
		want Action
	}{
		{"dash:inbox", Action{Kind: ActionInboxToggle}},
		{"dash:tools", Action{Kind: ActionToolsToggle}},
		{"dash:pass", Action{Kind: ActionPasswordToggle}},
		{"dash:rotate", Action{Kind: ActionRotate}},
		{"dash:login", Action{Kind: ActionLoginStart}},
		{"dash:refresh", Action{Kind: ActionRefresh}},
		{"dash:page:2", Action{Kind: ActionInboxPage, Page: 2}},
		{"admin:domain", Action{Kind: ActionDomainStart}},
		{"admin:bcast", Action{Kind: ActionBroadcastStart}},
		{"admin:import", Action{Kind: ActionBulkImportStart}},
		{"dlg:cancel", Action{Kind: ActionDialogCancel}},
		{"dlg:send", Action{Kind: ActionBroadcastSend}},
		{"card:code:abc", Action{Kind: ActionCardCodeToggle, Arg: "abc"}},
		{"card:links:abc", Action{Kind: ActionCardLinksToggle, Arg: "abc"}},
		{"card:open:abc", Action{Kind: ActionCardOpen, Arg: "abc"}},
		{"card:fold:abc", Action{Kind: ActionCardCollapse, Arg: "abc"}},
		{"mail:open:abc", Action{Kind: ActionMailOpen, Arg: "abc"}},
		{"noop", Action{Kind: ActionNoop}},

		// 非法输入解码为 Unknown
		{"", Action{Kind: ActionUnknown}},
		{"dash:page:-1", Action{Kind: ActionUnknown}},
		{"dash:page:abc", Action{Kind: ActionUnknown}},
		{"totally:bogus:data", Action{Kind: ActionUnknown}},
		{"dash:bogus", Action{Kind: ActionUnknown}},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseCallback(tc.data), "data=%q", tc.data)
	}
}

func TestEncodePageRoundTrip(t *testing.T) {
	for _, page := range []int{0, 1, 42} {
		action := ParseCallback(encodePage(page))
		assert.Equal(t, ActionInboxPage, action.Kind)
		assert.Equal(t, page, action.Page)
	}
}

func TestSessionCacheEvictsOldest(t *testing.T) {
	cache := NewSessionCache(2, 0, 0)

	cache.Get(1)
	time.Sleep(time.Millisecond)
	cache.Get(2)
	time.Sleep(time.Millisecond)
	cache.Get(1) // 1 更新活跃时间
	time.Sleep(time.Millisecond)
	cache.Get(3) // 淘汰 2

	assert.Equal(t, 2, cache.Len())
	assert.NotNil(t, cache.Peek(1))
	assert.Nil(t, cache.Peek(2))
	assert.NotNil(t, cache.Peek(3))
}
