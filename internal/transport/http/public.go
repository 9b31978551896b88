package httptransport

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"postdrop/backend/internal/directory"
	"postdrop/backend/internal/domain"
)

// Handler 聚合公开路由的处理逻辑。
type Handler struct {
	dir *directory.Service
	log *zap.Logger
}

// messageView API 返回的邮件视图，不暴露正文之外的内部字段。
type messageView struct {
	ID       string `json:"id"`
	Sender   string `json:"sender"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Received string `json:"received"`
	IsRead   bool   `json:"isRead"`
}

func toMessageView(e *domain.Email) messageView {
	return messageView{
		ID:       e.ID,
		Sender:   e.SenderDisplay(),
		Subject:  e.Subject,
		Body:     e.BodyPlain,
		Received: e.ReceivedAt.Format("2006-01-02 15:04:05"),
		IsRead:   e.IsRead,
	}
}

// ListMessages 按地址（或本地部分）列出邮件。
//
// 地址未命中返回空列表而不是 404：Web 视图不区分
// "邮箱不存在"和"还没有邮件"，避免地址枚举。
func (h *Handler) ListMessages(c *gin.Context) {
	address := strings.TrimSpace(c.Query("address"))
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address query parameter is required"})
		return
	}

	localPart := address
	if at := strings.Index(address, "@"); at >= 0 {
		localPart = address[:at]
	}

	emails, err := h.dir.ListMessagesByLocalPart(localPart, 50)
	if err != nil {
		h.log.Error("failed to list messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	views := make([]messageView, 0, len(emails))
	for i := range emails {
		views = append(views, toMessageView(&emails[i]))
	}

	activeDomain, err := h.dir.GetDomain()
	if err != nil {
		h.log.Error("failed to read domain", zap.Error(err))
		activeDomain = ""
	}

	c.JSON(http.StatusOK, gin.H{
		"address":  strings.ToLower(localPart) + "@" + activeDomain,
		"messages": views,
	})
}

// Index 渲染只读收件箱页面。
func (h *Handler) Index(c *gin.Context) {
	activeDomain, err := h.dir.GetDomain()
	if err != nil {
		h.log.Error("failed to read domain", zap.Error(err))
		c.String(http.StatusInternalServerError, "internal error")
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(c.Writer, gin.H{"Domain": activeDomain}); err != nil {
		h.log.Error("failed to render index", zap.Error(err))
	}
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Inbox viewer</title>
<style>
  body { font-family: system-ui, sans-serif; max-width: 720px; margin: 2rem auto; padding: 0 1rem; color: #222; }
  input { font-size: 1rem; padding: .4rem; }
  .msg { border: 1px solid #ddd; border-radius: 6px; padding: .8rem; margin: .6rem 0; }
  .msg .meta { color: #666; font-size: .85rem; }
  .msg pre { white-space: pre-wrap; word-break: break-word; margin: .4rem 0 0; }
  .empty { color: #888; }
</style>
</head>
<body>
<h1>📮 Inbox viewer</h1>
<p>
  <input id="local" placeholder="local part" autofocus>@{{.Domain}}
  <button onclick="load()">Open</button>
</p>
<div id="list"><p class="empty">Enter an address to view its inbox.</p></div>
<script>
let ws = null;

function esc(s) {
  const d = document.createElement('div');
  d.textContent = s;
  return d.innerHTML;
}

async function load() {
  const local = document.getElementById('local').value.trim();
  if (!local) return;

  const resp = await fetch('/api/messages?address=' + encodeURIComponent(local));
  const data = await resp.json();
  const list = document.getElementById('list');

  if (!data.messages.length) {
    list.innerHTML = '<p class="empty">No messages for ' + esc(data.address) + ' yet.</p>';
  } else {
    list.innerHTML = data.messages.map(m =>
      '<div class="msg"><div class="meta">' + esc(m.sender) + ' · ' + esc(m.received) + '</div>' +
      '<strong>' + esc(m.subject || '(no subject)') + '</strong>' +
      '<pre>' + esc(m.body) + '</pre></div>'
    ).join('');
  }

  if (ws) ws.close();
  const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
  ws = new WebSocket(proto + location.host + '/ws?address=' + encodeURIComponent(data.address));
  ws.onmessage = () => load();
}
</script>
</body>
</html>
`))
