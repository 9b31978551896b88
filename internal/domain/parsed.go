package domain

// Link 表示从 HTML 正文中提取的一个链接。
type Link struct {
	Text string `json:"text"` // 锚点可见文本，为空时回退为 href
	Href string `json:"href"`
}

// ParsedMessage 是内容提取器的输出：一封邮件的规范化形式。
//
// 所有字段在解码失败时退化为空字符串，提取器永不报错。
// Links 按文档顺序保留（含重复），CandidateCodes 去重后至多 5 个。
type ParsedMessage struct {
	SenderName     string   `json:"senderName"`
	SenderEmail    string   `json:"senderEmail"`
	Subject        string   `json:"subject"`
	BodyPlain      string   `json:"bodyPlain"`
	BodyHTML       string   `json:"bodyHtml"`
	RawHeaders     string   `json:"rawHeaders"`
	Links          []Link   `json:"links,omitempty"`
	CandidateCodes []string `json:"candidateCodes,omitempty"`
}

// SenderDisplay 返回用于展示的发件人形式。
func (p *ParsedMessage) SenderDisplay() string {
	if p.SenderName != "" && p.SenderEmail != "" {
		return p.SenderName + " <" + p.SenderEmail + ">"
	}
	if p.SenderEmail != "" {
		return p.SenderEmail
	}
	return p.SenderName
}
