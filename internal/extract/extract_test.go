package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPlainTextOnly(t *testing.T) {
	raw := []byte("From: Alice <alice@example.com>\r\n" +
		"Subject: hello\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"just a plain body")

	parsed := Extract(raw)

	assert.Equal(t, "just a plain body", parsed.BodyPlain)
	assert.Empty(t, parsed.BodyHTML)
	assert.Empty(t, parsed.Links)
	assert.Equal(t, "Alice", parsed.SenderName)
	assert.Equal(t, "alice@example.com", parsed.SenderEmail)
	assert.Equal(t, "hello", parsed.Subject)
}

func TestExtractMultipartPicksFirstParts(t *testing.T) {
	raw := []byte(strings.Join([]string{
		"From: noreply@shop.example",
		"Subject: order",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="BOUND"`,
		"",
		"--BOUND",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"first plain",
		"--BOUND",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"second plain",
		"--BOUND",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>first html</p>",
		"--BOUND--",
		"",
	}, "\r\n"))

	parsed := Extract(raw)

	assert.Equal(t, "first plain", parsed.BodyPlain)
	assert.Equal(t, "<p>first html</p>", parsed.BodyHTML)
}

func TestExtractNestedMultipartDepthFirst(t *testing.T) {
	raw := []byte(strings.Join([]string{
		"From: a@b.c",
		"Subject: nested",
		`Content-Type: multipart/mixed; boundary="OUTER"`,
		"",
		"--OUTER",
		`Content-Type: multipart/alternative; boundary="INNER"`,
		"",
		"--INNER",
		"Content-Type: text/plain",
		"",
		"nested plain",
		"--INNER--",
		"--OUTER",
		"Content-Type: text/plain",
		"",
		"outer plain",
		"--OUTER--",
		"",
	}, "\r\n"))

	parsed := Extract(raw)

	// 深度优先：嵌套部分先于后续的兄弟部分
	assert.Equal(t, "nested plain", parsed.BodyPlain)
}

func TestExtractHTMLOnlyDerivesPlain(t *testing.T) {
	raw := []byte("From: x@y.z\r\n" +
		"Subject: html only\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><body><p>Confirm your account</p><a href=\"https://e.x/verify\">Verify</a></body></html>")

	parsed := Extract(raw)

	assert.NotEmpty(t, parsed.BodyHTML)
	assert.Contains(t, parsed.BodyPlain, "Confirm your account")
	assert.Contains(t, parsed.BodyPlain, "Verify")
	require.Len(t, parsed.Links, 1)
	assert.Equal(t, "Verify", parsed.Links[0].Text)
	assert.Equal(t, "https://e.x/verify", parsed.Links[0].Href)
}

func TestExtractEncodedHeaders(t *testing.T) {
	// 两段编码字拼接，无损连接
	raw := []byte("From: =?utf-8?B?0JjQstCw0L0=?= <ivan@example.ru>\r\n" +
		"Subject: =?utf-8?q?Hello_?= =?utf-8?q?World?=\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"body")

	parsed := Extract(raw)

	assert.Equal(t, "Иван", parsed.SenderName)
	assert.Equal(t, "ivan@example.ru", parsed.SenderEmail)
	assert.Equal(t, "Hello World", parsed.Subject)
}

func TestExtractBase64Body(t *testing.T) {
	raw := []byte("From: a@b.c\r\n" +
		"Subject: enc\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"aGVsbG8gd29ybGQ=")

	parsed := Extract(raw)

	assert.Equal(t, "hello world", parsed.BodyPlain)
}

func TestExtractMalformedFromFallsBackToRaw(t *testing.T) {
	raw := []byte("From: totally broken <<<\r\n" +
		"Subject: s\r\n" +
		"\r\n" +
		"body")

	parsed := Extract(raw)

	assert.Equal(t, "totally broken <<<", parsed.SenderName)
	assert.Empty(t, parsed.SenderEmail)
}

func TestExtractGarbageNeverPanics(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte(""),
		[]byte("\x00\xff\xfe garbage"),
		[]byte("Content-Type: multipart/mixed; boundary=\"X\"\r\n\r\n--X\r\nbroken"),
	}
	for _, raw := range inputs {
		parsed := Extract(raw)
		require.NotNil(t, parsed)
	}
}

func TestExtractRawHeadersPresent(t *testing.T) {
	raw := []byte("From: a@b.c\r\n" +
		"Subject: s\r\n" +
		"X-Custom: marker\r\n" +
		"\r\n" +
		"body")

	parsed := Extract(raw)

	assert.Contains(t, parsed.RawHeaders, "X-Custom: marker")
	assert.Contains(t, parsed.RawHeaders, "Subject: s")
}
