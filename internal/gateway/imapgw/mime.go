package imapgw

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// timeNow 便于测试替换
var timeNow = time.Now

// replyHeader 构造回信所需的信头要素。
type replyHeader struct {
	From      string
	To        string
	Subject   string
	InReplyTo string // 原信 Message-Id，可为空
}

// buildReply 构造一封纯文本回信的 RFC 822 报文。
func buildReply(hdr replyHeader, body string) ([]byte, error) {
	subject := strings.TrimSpace(hdr.Subject)
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		if subject == "" {
			subject = "your email"
		}
		subject = "Re: " + subject
	}

	var h mail.Header
	h.GenerateMessageID()
	h.SetDate(timeNow())
	h.SetAddressList("From", []*mail.Address{{Address: hdr.From}})
	h.SetAddressList("To", []*mail.Address{{Address: hdr.To}})
	h.SetSubject(subject)
	if hdr.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{hdr.InReplyTo})
		h.SetMsgIDList("References", []string{hdr.InReplyTo})
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating mime writer: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		w.Close()
		return nil, fmt.Errorf("writing reply body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing mime writer: %w", err)
	}
	return buf.Bytes(), nil
}

// extractTextBody 从原始 RFC 822 报文中提取纯文本正文。
//
// 优先 text/plain，退而求其次 text/html（去标签），
// 彻底解析失败时把原文当作纯文本处理。
func extractTextBody(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	defer mr.Close()

	var textPart, htmlPart string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		payload, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && textPart == "":
			textPart = string(payload)
		case strings.HasPrefix(contentType, "text/html") && htmlPart == "":
			htmlPart = string(payload)
		}
	}

	if textPart != "" {
		return textPart
	}
	return stripHTMLTags(htmlPart)
}

var (
	quotedLineRe = regexp.MustCompile(`^\s*(>+|On .*wrote:)`)
	htmlTagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
)

// stripQuotedHistory 截掉正文里引用的历史邮件，只保留本次新增内容。
func stripQuotedHistory(body string) string {
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		if quotedLineRe.MatchString(line) {
			break
		}
		kept = append(kept, strings.TrimRight(line, " \r\t"))
	}

	cleaned := strings.TrimSpace(strings.Join(kept, "\n"))
	if cleaned == "" {
		return strings.TrimSpace(body)
	}
	return cleaned
}

// stripHTMLTags 粗粒度去除 HTML 标签，用于没有纯文本部分的邮件。
func stripHTMLTags(s string) string {
	return strings.TrimSpace(htmlTagRe.ReplaceAllString(s, " "))
}
