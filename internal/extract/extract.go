// Package extract 将任意入站邮件字节解码为规范化的 ParsedMessage。
//
// 这是一个纯函数层：无 I/O、无状态，并且对畸形输入永不报错——
// 任何解码失败都退化为空字段，由调用方决定如何处理空内容。
package extract

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"sort"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	"postdrop/backend/internal/domain"
)

// Extract 解析一封原始邮件，提取发件人、主题、正文和启发式衍生内容。
//
// 规则：
//   - 多部分正文按深度优先取第一个 text/plain 和第一个 text/html；
//   - 只有 HTML 没有纯文本时，BodyPlain 由 HTML 去标签得到，
//     保证下游的验证码/关键词搜索始终有可读文本；
//   - From 头解析失败时，原始头字符串整体作为展示名。
func Extract(raw []byte) *domain.ParsedMessage {
	parsed := &domain.ParsedMessage{}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return parsed
	}

	parsed.Subject = decodeHeader(msg.Header.Get("Subject"))
	parsed.RawHeaders = formatHeaders(msg.Header)
	parsed.SenderName, parsed.SenderEmail = parseFrom(msg.Header.Get("From"))

	plain, html := extractParts(msg)
	parsed.BodyPlain = plain
	parsed.BodyHTML = html

	if parsed.BodyPlain == "" && parsed.BodyHTML != "" {
		parsed.BodyPlain = StripTags(parsed.BodyHTML)
	}

	parsed.Links = ExtractLinks(parsed.BodyHTML)
	parsed.CandidateCodes = ExtractCandidateCodes(parsed.BodyPlain)

	return parsed
}

// parseFrom 把 From 头拆成展示名和地址。
func parseFrom(value string) (name, email string) {
	decoded := decodeHeader(value)
	if decoded == "" {
		return "", ""
	}
	addr, err := mail.ParseAddress(decoded)
	if err != nil {
		// 解析失败：原始头整体作为展示形式
		return decoded, ""
	}
	return addr.Name, strings.ToLower(addr.Address)
}

// extractParts 按深度优先顺序取第一个纯文本部分和第一个 HTML 部分。
func extractParts(msg *mail.Message) (plain, html string) {
	contentType := msg.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// 没有 Content-Type 或解析失败，整体当作纯文本
		body := decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"), "")
		return body, ""
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return "", ""
		}
		mr := multipart.NewReader(msg.Body, boundary)
		walkMultipart(mr, &plain, &html)
		return plain, html
	}

	body := decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"), params["charset"])
	if strings.HasPrefix(mediaType, "text/html") {
		return "", body
	}
	return body, ""
}

// walkMultipart 递归遍历 multipart，先到先得地填充 plain 和 html。
func walkMultipart(mr *multipart.Reader, plain, html *string) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			// io.EOF 或结构损坏都在此结束，已取得的部分保留
			return
		}

		mediaType, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			mediaType = "text/plain"
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if boundary := params["boundary"]; boundary != "" {
				walkMultipart(multipart.NewReader(part, boundary), plain, html)
			}
			continue
		}

		// 附件不参与正文选取
		if disposition := part.Header.Get("Content-Disposition"); disposition != "" {
			if dispType, _, _ := mime.ParseMediaType(disposition); dispType == "attachment" {
				continue
			}
		}

		body := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"), params["charset"])

		switch {
		case strings.HasPrefix(mediaType, "text/plain"):
			if *plain == "" {
				*plain = body
			}
		case strings.HasPrefix(mediaType, "text/html"):
			if *html == "" {
				*html = body
			}
		}
	}
}

// decodeBody 按传输编码和字符集解码邮件体，失败时尽力返回已读内容。
func decodeBody(reader io.Reader, transferEncoding string, charset string) string {
	transferEncoding = strings.ToLower(strings.TrimSpace(transferEncoding))

	var decoded io.Reader = reader
	switch transferEncoding {
	case "base64":
		decoded = base64.NewDecoder(base64.StdEncoding, reader)
	case "quoted-printable":
		decoded = quotedprintable.NewReader(reader)
	}

	body, err := io.ReadAll(decoded)
	if err != nil && len(body) == 0 {
		// 解码器中途出错时保留已产出的前缀
		return ""
	}

	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset != "" && charset != "utf-8" && charset != "us-ascii" {
		if enc := charsetEncoding(charset); enc != nil {
			converted, _, err := transform.Bytes(enc.NewDecoder(), body)
			if err == nil {
				body = converted
			}
		}
	}

	// 未知字符集走到这里：非法字节替换为 U+FFFD
	return strings.ToValidUTF8(string(body), "�")
}

// charsetEncoding 根据字符集名称返回解码器，未知字符集返回 nil。
func charsetEncoding(charset string) encoding.Encoding {
	switch charset {
	case "gb2312", "gbk", "gb18030":
		return simplifiedchinese.GBK
	case "big5":
		return traditionalchinese.Big5
	case "iso-2022-jp", "shift_jis", "euc-jp":
		return japanese.ShiftJIS
	case "euc-kr", "ks_c_5601-1987":
		return korean.EUCKR
	case "windows-1251":
		return charmap.Windows1251
	case "windows-1252":
		return charmap.Windows1252
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1
	case "koi8-r":
		return charmap.KOI8R
	default:
		return nil
	}
}

// decodeHeader 解码 RFC 2047 编码字（可能多段），失败时返回原值。
func decodeHeader(value string) string {
	if value == "" {
		return value
	}
	decoder := &mime.WordDecoder{
		CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
			if enc := charsetEncoding(strings.ToLower(charset)); enc != nil {
				return transform.NewReader(input, enc.NewDecoder()), nil
			}
			// 未知字符集按原样读出，后续统一替换非法字节
			return input, nil
		},
	}
	decoded, err := decoder.DecodeHeader(value)
	if err != nil {
		return strings.ToValidUTF8(value, "�")
	}
	return strings.ToValidUTF8(decoded, "�")
}

// formatHeaders 把头字段渲染为 "Key: Value" 行（按键名排序保证稳定）。
func formatHeaders(header mail.Header) string {
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		for _, v := range header[k] {
			sb.WriteString(k)
			sb.WriteString(": ")
			sb.WriteString(v)
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
