package imapgw

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReply(t *testing.T) {
	raw, err := buildReply(replyHeader{
		From:      "me@example.com",
		To:        "alice@example.com",
		Subject:   "Project update",
		InReplyTo: "abc123@mail.example.com",
	}, "Thanks, will follow up.")
	require.NoError(t, err)

	msg := string(raw)
	assert.Contains(t, msg, "To: <alice@example.com>")
	assert.Contains(t, msg, "From: <me@example.com>")
	assert.Contains(t, msg, "Subject: Re: Project update")
	assert.Contains(t, msg, "In-Reply-To: <abc123@mail.example.com>")
	assert.Contains(t, msg, "Thanks, will follow up.")
}

func TestBuildReplySubjectNormalization(t *testing.T) {
	// 已有 Re: 前缀不重复添加
	raw, err := buildReply(replyHeader{From: "a@b.c", To: "d@e.f", Subject: "RE: hi"}, "ok")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Subject: RE: hi")
	assert.NotContains(t, string(raw), "Re: RE: hi")

	// 空主题退化为固定文案
	raw, err = buildReply(replyHeader{From: "a@b.c", To: "d@e.f"}, "ok")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Subject: Re: your email")
}

func TestStripQuotedHistory(t *testing.T) {
	body := strings.Join([]string{
		"Sounds good, see you then.",
		"",
		"On Mon, Jan 5, 2026 at 9:00 AM Bob <bob@example.com> wrote:",
		"> earlier message",
		"> more quoted text",
	}, "\n")

	assert.Equal(t, "Sounds good, see you then.", stripQuotedHistory(body))
}

func TestStripQuotedHistoryAllQuoted(t *testing.T) {
	// 整封都是引用时保留原文，避免给生成器一个空输入
	body := "> only quoted\n> lines here"
	assert.Equal(t, strings.TrimSpace(body), stripQuotedHistory(body))
}

func TestExtractTextBodyPlain(t *testing.T) {
	raw := []byte("From: bob@example.com\r\n" +
		"To: me@example.com\r\n" +
		"Subject: hi\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"hello there\r\n")

	assert.Contains(t, extractTextBody(raw), "hello there")
}

func TestExtractTextBodyHTMLFallback(t *testing.T) {
	raw := []byte("From: bob@example.com\r\n" +
		"To: me@example.com\r\n" +
		"Subject: hi\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><body><p>hello <b>there</b></p></body></html>\r\n")

	got := extractTextBody(raw)
	assert.Contains(t, got, "hello")
	assert.Contains(t, got, "there")
	assert.NotContains(t, got, "<p>")
}

func TestParseProviderDraftID(t *testing.T) {
	validity, uid, err := parseProviderDraftID("42/1001")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), validity)
	assert.Equal(t, uint32(1001), uint32(uid))

	_, _, err = parseProviderDraftID("not-an-id")
	assert.Error(t, err)
	_, _, err = parseProviderDraftID("a/b")
	assert.Error(t, err)
}
