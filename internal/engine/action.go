// Package engine 实现聊天式会话呈现引擎：单条仪表盘消息承载
// 收件箱、工具区和管理操作，所有交互通过按钮回调原地编辑完成。
package engine

import (
	"strconv"
	"strings"
)

// ActionKind 回调动作类别。
type ActionKind int

const (
	ActionUnknown ActionKind = iota

	// 仪表盘动作
	ActionInboxToggle
	ActionInboxPage
	ActionToolsToggle
	ActionPasswordToggle
	ActionRotate
	ActionLoginStart
	ActionRefresh

	// 管理动作
	ActionDomainStart
	ActionBroadcastStart
	ActionBulkImportStart

	// 对话框动作
	ActionDialogCancel
	ActionBroadcastSend

	// 邮件卡片动作
	ActionCardCodeToggle
	ActionCardLinksToggle
	ActionCardOpen
	ActionCardCollapse

	// 收件箱条目动作
	ActionMailOpen

	ActionNoop
)

// String 返回动作名（用于指标标签）。
func (k ActionKind) String() string {
	switch k {
	case ActionInboxToggle:
		return "inbox_toggle"
	case ActionInboxPage:
		return "inbox_page"
	case ActionToolsToggle:
		return "tools_toggle"
	case ActionPasswordToggle:
		return "password_toggle"
	case ActionRotate:
		return "rotate"
	case ActionLoginStart:
		return "login_start"
	case ActionRefresh:
		return "refresh"
	case ActionDomainStart:
		return "domain_start"
	case ActionBroadcastStart:
		return "broadcast_start"
	case ActionBulkImportStart:
		return "bulk_import_start"
	case ActionDialogCancel:
		return "dialog_cancel"
	case ActionBroadcastSend:
		return "broadcast_send"
	case ActionCardCodeToggle:
		return "card_code_toggle"
	case ActionCardLinksToggle:
		return "card_links_toggle"
	case ActionCardOpen:
		return "card_open"
	case ActionCardCollapse:
		return "card_collapse"
	case ActionMailOpen:
		return "mail_open"
	case ActionNoop:
		return "noop"
	default:
		return "unknown"
	}
}

// Action 解析后的回调动作。
type Action struct {
	Kind ActionKind
	Page int    // ActionInboxPage 的目标页码
	Arg  string // 卡片/邮件动作携带的邮件 ID
}

// 回调数据的编码表。格式: "区段:动作[:参数]"。
var actionCodes = map[string]ActionKind{
	"dash:inbox":   ActionInboxToggle,
	"dash:tools":   ActionToolsToggle,
	"dash:pass":    ActionPasswordToggle,
	"dash:rotate":  ActionRotate,
	"dash:login":   ActionLoginStart,
	"dash:refresh": ActionRefresh,
	"admin:domain": ActionDomainStart,
	"admin:bcast":  ActionBroadcastStart,
	"admin:import": ActionBulkImportStart,
	"dlg:cancel":   ActionDialogCancel,
	"dlg:send":     ActionBroadcastSend,
	"noop":         ActionNoop,
}

// ParseCallback 把回调数据解码为动作。未知数据解码为 ActionUnknown，
// 调用方静默应答即可（旧版本消息残留的按钮不是错误）。
func ParseCallback(data string) Action {
	if kind, ok := actionCodes[data]; ok {
		return Action{Kind: kind}
	}

	parts := strings.SplitN(data, ":", 3)
	if len(parts) == 3 {
		switch parts[0] + ":" + parts[1] {
		case "dash:page":
			page, err := strconv.Atoi(parts[2])
			if err != nil || page < 0 {
				return Action{Kind: ActionUnknown}
			}
			return Action{Kind: ActionInboxPage, Page: page}
		case "card:code":
			return Action{Kind: ActionCardCodeToggle, Arg: parts[2]}
		case "card:links":
			return Action{Kind: ActionCardLinksToggle, Arg: parts[2]}
		case "card:open":
			return Action{Kind: ActionCardOpen, Arg: parts[2]}
		case "card:fold":
			return Action{Kind: ActionCardCollapse, Arg: parts[2]}
		case "mail:open":
			return Action{Kind: ActionMailOpen, Arg: parts[2]}
		}
	}
	return Action{Kind: ActionUnknown}
}

// isDialogBegin 判断动作是否开启新对话框。
// 开启动作不受模态拦截，直接覆盖挂起的旧对话框。
func isDialogBegin(kind ActionKind) bool {
	switch kind {
	case ActionLoginStart, ActionDomainStart, ActionBroadcastStart, ActionBulkImportStart:
		return true
	}
	return false
}

// encodePage 生成翻页按钮的回调数据。
func encodePage(page int) string {
	return "dash:page:" + strconv.Itoa(page)
}
