package imapgw

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"golang.org/x/time/rate"
)

// Config IMAP/SMTP 网关配置。
type Config struct {
	IMAPAddr      string // IMAP 服务地址，格式 "host:port"
	SMTPAddr      string // SMTP 提交地址，格式 "host:port"
	Username      string
	Password      string
	FromAddress   string // 回信的发件地址，留空时使用 Username
	InboxMailbox  string // 收件箱名，默认 "INBOX"
	DraftsMailbox string // 草稿箱名，默认 "Drafts"
	MaxResults    int    // 单次未读列表上限，默认 50
	// 远端服务有配额限制，所有网关操作共享一个客户端侧限流器
	RateLimit rate.Limit
	RateBurst int
}

// withDefaults 填充缺省配置。
func (c Config) withDefaults() Config {
	if c.InboxMailbox == "" {
		c.InboxMailbox = "INBOX"
	}
	if c.DraftsMailbox == "" {
		c.DraftsMailbox = "Drafts"
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 50
	}
	if c.FromAddress == "" {
		c.FromAddress = c.Username
	}
	if c.RateLimit <= 0 {
		c.RateLimit = rate.Limit(5)
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 5
	}
	return c
}

// connect 建立 IMAP 连接并完成登录。调用方负责 Logout。
//
// 每个网关操作独立建连，连接生命周期与单次操作一致，
// 避免长连接被远端静默断开后的半死状态。
func (g *IMAPGateway) connect(ctx context.Context) (*imapclient.Client, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	client, err := imapclient.DialTLS(g.cfg.IMAPAddr, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", g.cfg.IMAPAddr, err)
	}

	if err := client.Login(g.cfg.Username, g.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("authenticating %s: %w", g.cfg.Username, err)
	}

	return client, nil
}

// selectMailbox 选中邮箱并返回其 UIDVALIDITY。
func selectMailbox(client *imapclient.Client, mailbox string) (uint32, error) {
	data, err := client.Select(mailbox, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("selecting %s: %w", mailbox, err)
	}
	return data.UIDValidity, nil
}

// providerDraftID 由草稿箱的 UIDVALIDITY 与 APPEND 返回的 UID 组成。
//
// UIDVALIDITY 变化意味着旧 UID 可能已指向别的邮件，此时持有的
// 草稿 ID 必须失效为"未找到"，而不是误操作其他邮件。
func providerDraftID(uidValidity uint32, uid imap.UID) string {
	return fmt.Sprintf("%d/%d", uidValidity, uid)
}

// parseProviderDraftID 解析草稿 ID，返回 UIDVALIDITY 与 UID。
func parseProviderDraftID(id string) (uint32, imap.UID, error) {
	parts := strings.SplitN(id, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed provider draft id %q", id)
	}
	validity, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed uidvalidity in %q", id)
	}
	uid, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed uid in %q", id)
	}
	return uint32(validity), imap.UID(uid), nil
}

// searchByMessageID 在当前选中的邮箱内按 Message-Id 头定位邮件 UID。
func searchByMessageID(client *imapclient.Client, messageID string) (imap.UID, bool, error) {
	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "Message-Id", Value: messageID},
		},
	}

	data, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return 0, false, fmt.Errorf("searching by message id: %w", err)
	}

	uids := data.AllUIDs()
	if len(uids) == 0 {
		return 0, false, nil
	}
	return uids[0], true, nil
}

// opTimeout 单次网关操作的兜底超时。
const opTimeout = 30 * time.Second

func opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}
