package imapgw

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"autoreply/backend/internal/domain"
	"autoreply/backend/internal/gateway"
)

// IMAPGateway 基于 IMAP（收件/草稿）与 SMTP 提交（发送）的邮箱网关实现。
//
// 来信以 Message-Id 头作为稳定标识，远端草稿以草稿箱的
// UIDVALIDITY/UID 作为标识。
type IMAPGateway struct {
	cfg     Config
	limiter *rate.Limiter
	log     *zap.Logger
}

var _ gateway.Gateway = (*IMAPGateway)(nil)

// New 创建 IMAP 邮箱网关。
func New(cfg Config, log *zap.Logger) *IMAPGateway {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &IMAPGateway{
		cfg:     cfg,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		log:     log,
	}
}

// ListUnread 返回收件箱中未读来信的尽力快照。
func (g *IMAPGateway) ListUnread(ctx context.Context) ([]domain.InboundMessage, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	client, err := g.connect(ctx)
	if err != nil {
		return nil, &gateway.GatewayError{Op: "list_unread", Err: err}
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := selectMailbox(client, g.cfg.InboxMailbox); err != nil {
		return nil, &gateway.GatewayError{Op: "list_unread", Err: err}
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, &gateway.GatewayError{Op: "list_unread", Err: fmt.Errorf("searching unseen: %w", err)}
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if len(uids) > g.cfg.MaxResults {
		uids = uids[len(uids)-g.cfg.MaxResults:]
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	var messages []domain.InboundMessage
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			// 单封邮件取回失败不影响快照中的其余邮件
			g.log.Warn("failed to collect message, skipping", zap.Error(err))
			continue
		}
		if buf.Envelope == nil || buf.Envelope.MessageID == "" {
			// 没有 Message-Id 的邮件无法稳定去重，跳过
			continue
		}

		inbound := domain.InboundMessage{
			MessageID: buf.Envelope.MessageID,
			Subject:   buf.Envelope.Subject,
		}
		if len(buf.Envelope.From) > 0 {
			inbound.Sender = buf.Envelope.From[0].Addr()
		}
		if raw := buf.FindBodySection(bodySection); raw != nil {
			inbound.Body = stripQuotedHistory(extractTextBody(raw))
		}

		messages = append(messages, inbound)
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, &gateway.GatewayError{Op: "list_unread", Err: fmt.Errorf("fetching messages: %w", err)}
	}
	return messages, nil
}

// CreateDraft 为指定来信在草稿箱创建一封回信草稿。
//
// 不幂等：重复调用会产生两份远端草稿，调用方必须先落库再调用。
func (g *IMAPGateway) CreateDraft(ctx context.Context, messageID, body string) (string, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	client, err := g.connect(ctx)
	if err != nil {
		return "", &gateway.GatewayError{Op: "create_draft", Err: err}
	}
	defer func() { _ = client.Logout().Wait() }()

	// 取原信头以构造回信（To / Re: Subject / In-Reply-To）
	original, err := g.fetchOriginal(client, messageID)
	if err != nil {
		return "", &gateway.GatewayError{Op: "create_draft", Err: err}
	}

	raw, err := buildReply(replyHeader{
		From:      g.cfg.FromAddress,
		To:        original.replyTo,
		Subject:   original.subject,
		InReplyTo: messageID,
	}, body)
	if err != nil {
		return "", &gateway.GatewayError{Op: "create_draft", Err: err}
	}

	uidValidity, err := selectMailbox(client, g.cfg.DraftsMailbox)
	if err != nil {
		return "", &gateway.GatewayError{Op: "create_draft", Err: err}
	}

	appendCmd := client.Append(g.cfg.DraftsMailbox, int64(len(raw)), &imap.AppendOptions{
		Flags: []imap.Flag{imap.FlagDraft},
		Time:  time.Now(),
	})
	if _, err := appendCmd.Write(raw); err != nil {
		return "", &gateway.GatewayError{Op: "create_draft", Err: fmt.Errorf("writing draft: %w", err)}
	}
	if err := appendCmd.Close(); err != nil {
		return "", &gateway.GatewayError{Op: "create_draft", Err: fmt.Errorf("closing append: %w", err)}
	}
	appendData, err := appendCmd.Wait()
	if err != nil {
		return "", &gateway.GatewayError{Op: "create_draft", Err: fmt.Errorf("appending draft: %w", err)}
	}

	if appendData.UIDValidity != 0 {
		uidValidity = appendData.UIDValidity
	}
	return providerDraftID(uidValidity, appendData.UID), nil
}

// MarkRead 将来信标记为已读。
func (g *IMAPGateway) MarkRead(ctx context.Context, messageID string) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	client, err := g.connect(ctx)
	if err != nil {
		return &gateway.GatewayError{Op: "mark_read", Err: err}
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := selectMailbox(client, g.cfg.InboxMailbox); err != nil {
		return &gateway.GatewayError{Op: "mark_read", Err: err}
	}

	uid, found, err := searchByMessageID(client, messageID)
	if err != nil {
		return &gateway.GatewayError{Op: "mark_read", Err: err}
	}
	if !found {
		// 来信已被外部移动或删除，对标记已读而言等同成功
		return nil
	}

	storeCmd := client.Store(imap.UIDSetNum(uid), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return &gateway.GatewayError{Op: "mark_read", Err: fmt.Errorf("storing \\Seen: %w", err)}
	}
	return nil
}

// SendDraft 以最终正文发送远端草稿，成功后删除草稿箱中的副本。
func (g *IMAPGateway) SendDraft(ctx context.Context, providerDraftID, finalBody string) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	client, err := g.connect(ctx)
	if err != nil {
		return &gateway.GatewayError{Op: "send_draft", Err: err}
	}
	defer func() { _ = client.Logout().Wait() }()

	uid, err := g.locateDraft(client, "send_draft", providerDraftID)
	if err != nil {
		return err
	}

	// 从草稿头恢复收件人与主题；正文以 finalBody 为准（编辑后发送）
	hdr, err := g.fetchDraftHeader(client, uid)
	if err != nil {
		return &gateway.GatewayError{Op: "send_draft", Err: err}
	}
	if hdr.To == "" {
		return &gateway.GatewayError{Op: "send_draft", Err: fmt.Errorf("draft %s lacks a recipient", providerDraftID)}
	}

	raw, err := buildReply(*hdr, finalBody)
	if err != nil {
		return &gateway.GatewayError{Op: "send_draft", Err: err}
	}

	if err := g.submit(ctx, hdr.To, raw); err != nil {
		return &gateway.GatewayError{Op: "send_draft", Err: err}
	}

	// 发送成功后清理草稿副本；这里失败只会留下一份多余草稿，
	// 不影响状态机，记日志即可
	if err := expungeDraft(client, uid); err != nil {
		g.log.Warn("sent ok but failed to remove provider draft copy",
			zap.String("provider_draft_id", providerDraftID), zap.Error(err))
	}
	return nil
}

// DeleteDraft 删除远端草稿。
func (g *IMAPGateway) DeleteDraft(ctx context.Context, providerDraftID string) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	client, err := g.connect(ctx)
	if err != nil {
		return &gateway.GatewayError{Op: "delete_draft", Err: err}
	}
	defer func() { _ = client.Logout().Wait() }()

	uid, err := g.locateDraft(client, "delete_draft", providerDraftID)
	if err != nil {
		return err
	}

	if err := expungeDraft(client, uid); err != nil {
		return &gateway.GatewayError{Op: "delete_draft", Err: err}
	}
	return nil
}

// locateDraft 选中草稿箱并校验草稿 ID 是否仍然有效。
//
// UIDVALIDITY 不匹配或 UID 已不存在都返回 NotFoundError。
func (g *IMAPGateway) locateDraft(client *imapclient.Client, op, id string) (imap.UID, error) {
	wantValidity, uid, err := parseProviderDraftID(id)
	if err != nil {
		return 0, &gateway.NotFoundError{Op: op, ID: id}
	}

	validity, err := selectMailbox(client, g.cfg.DraftsMailbox)
	if err != nil {
		return 0, &gateway.GatewayError{Op: op, Err: err}
	}
	if validity != wantValidity {
		return 0, &gateway.NotFoundError{Op: op, ID: id}
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{
		UID: []imap.UIDSet{imap.UIDSetNum(uid)},
	}, nil).Wait()
	if err != nil {
		return 0, &gateway.GatewayError{Op: op, Err: fmt.Errorf("locating draft: %w", err)}
	}
	if len(searchData.AllUIDs()) == 0 {
		return 0, &gateway.NotFoundError{Op: op, ID: id}
	}
	return uid, nil
}

// fetchDraftHeader 取远端草稿的信头，用于重建发送报文。
func (g *IMAPGateway) fetchDraftHeader(client *imapclient.Client, uid imap.UID) (*replyHeader, error) {
	fetchCmd := client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		Envelope: true,
		UID:      true,
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("draft UID %d disappeared mid-fetch", uid)
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting draft: %w", err)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("closing fetch: %w", err)
	}

	hdr := &replyHeader{From: g.cfg.FromAddress}
	if buf.Envelope != nil {
		hdr.Subject = buf.Envelope.Subject
		if len(buf.Envelope.To) > 0 {
			hdr.To = buf.Envelope.To[0].Addr()
		}
		if len(buf.Envelope.InReplyTo) > 0 {
			hdr.InReplyTo = buf.Envelope.InReplyTo[0]
		}
	}
	return hdr, nil
}

// fetchOriginal 在收件箱按 Message-Id 取原信的回信要素。
type originalMessage struct {
	replyTo string
	subject string
}

func (g *IMAPGateway) fetchOriginal(client *imapclient.Client, messageID string) (*originalMessage, error) {
	if _, err := selectMailbox(client, g.cfg.InboxMailbox); err != nil {
		return nil, err
	}

	uid, found, err := searchByMessageID(client, messageID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("original message %q not found", messageID)
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		Envelope: true,
		UID:      true,
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("original message UID %d disappeared mid-fetch", uid)
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting original: %w", err)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("closing fetch: %w", err)
	}

	if buf.Envelope == nil {
		return nil, fmt.Errorf("original message %q has no envelope", messageID)
	}

	original := &originalMessage{subject: buf.Envelope.Subject}
	// 优先 Reply-To，其次 From
	if len(buf.Envelope.ReplyTo) > 0 {
		original.replyTo = buf.Envelope.ReplyTo[0].Addr()
	} else if len(buf.Envelope.From) > 0 {
		original.replyTo = buf.Envelope.From[0].Addr()
	}
	if original.replyTo == "" {
		return nil, fmt.Errorf("original message %q lacks a sender to reply to", messageID)
	}
	return original, nil
}

// expungeDraft 在当前选中的草稿箱内删除指定 UID。
func expungeDraft(client *imapclient.Client, uid imap.UID) error {
	uidSet := imap.UIDSetNum(uid)

	storeCmd := client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("storing \\Deleted: %w", err)
	}

	if err := client.UIDExpunge(uidSet).Close(); err != nil {
		return fmt.Errorf("expunging draft: %w", err)
	}
	return nil
}

// Health 检查 IMAP 端口可达性，不做完整登录。
func (g *IMAPGateway) Health() error {
	conn, err := net.DialTimeout("tcp", g.cfg.IMAPAddr, 3*time.Second)
	if err != nil {
		return fmt.Errorf("imap unreachable: %w", err)
	}
	return conn.Close()
}
