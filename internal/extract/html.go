package extract

import (
	"strings"

	"golang.org/x/net/html"

	"postdrop/backend/internal/domain"
)

// ExtractLinks 按文档顺序收集 HTML 中所有锚点的可见文本和 href。
//
// 可见文本为空时回退为 href 本身；重复链接保留（调用方在 UI 侧
// 自行截取前几条）。输入不是合法 HTML 时返回空切片。
func ExtractLinks(htmlText string) []domain.Link {
	if htmlText == "" {
		return nil
	}

	root, err := html.Parse(strings.NewReader(htmlText))
	if err != nil {
		return nil
	}

	var links []domain.Link
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attrValue(n, "href")
			if href != "" {
				text := strings.TrimSpace(nodeText(n))
				if text == "" {
					text = href
				}
				links = append(links, domain.Link{Text: text, Href: href})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return links
}

// StripTags 去掉 HTML 标签，尽力还原可读纯文本。
//
// 这是一个显式近似：块级元素和 <br> 转为换行，script/style 丢弃，
// 连续空白压缩。不追求与浏览器渲染一致。
func StripTags(htmlText string) string {
	root, err := html.Parse(strings.NewReader(htmlText))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "head":
				return
			case "br":
				sb.WriteString("\n")
			}
		case html.TextNode:
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlockElement(n.Data) {
			sb.WriteString("\n")
		}
	}
	walk(root)

	return collapseWhitespace(sb.String())
}

func attrValue(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if attr.Key == name {
			return strings.TrimSpace(attr.Val)
		}
	}
	return ""
}

// nodeText 拼接节点下所有文本节点的内容。
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "tr", "li", "h1", "h2", "h3", "h4", "h5", "h6",
		"table", "ul", "ol", "blockquote", "pre", "section", "article":
		return true
	}
	return false
}

// collapseWhitespace 压缩行内空白并去掉空行。
func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
