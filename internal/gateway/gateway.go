package gateway

import (
	"context"
	"errors"
	"fmt"

	"autoreply/backend/internal/domain"
)

// Gateway 定义核心对远端邮箱的全部依赖。
//
// 每个操作都可能独立失败；实现方负责自身的认证与超时，
// 对核心而言超时就是一次普通的 GatewayError。
// CreateDraft 不保证幂等，重复调用可能在远端产生两份草稿，
// 因此调用方必须先落库再调用本接口。
type Gateway interface {
	// ListUnread 返回未读来信的尽力快照，顺序不保证
	ListUnread(ctx context.Context) ([]domain.InboundMessage, error)
	// CreateDraft 在远端为指定来信创建回信草稿，返回远端草稿 ID
	CreateDraft(ctx context.Context, messageID, body string) (string, error)
	// MarkRead 将来信标记为已读（尽力而为）
	MarkRead(ctx context.Context, messageID string) error
	// SendDraft 以最终正文发送远端草稿
	SendDraft(ctx context.Context, providerDraftID, finalBody string) error
	// DeleteDraft 删除远端草稿；对象已不存在时返回 NotFoundError
	DeleteDraft(ctx context.Context, providerDraftID string) error
	// Health 网关连通性检查
	Health() error
}

// GatewayError 远端临时性故障（配额、认证、网络等），可重试。
type GatewayError struct {
	Op  string // 失败的网关操作名
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("mailbox gateway: %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NotFoundError 远端对象已不存在。
//
// 对删除操作视为成功（删除天然幂等），对发送操作视为失败。
type NotFoundError struct {
	Op string
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("mailbox gateway: %s: %q not found", e.Op, e.ID)
}

// IsNotFound 判断错误是否为远端对象缺失。
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
