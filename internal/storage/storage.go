package storage

import (
	"context"
	"errors"

	"autoreply/backend/internal/domain"
)

var (
	// ErrDraftNotFound 草稿不存在错误
	ErrDraftNotFound = errors.New("draft not found")
	// ErrDraftExists 同一来信已存在草稿（message_id 唯一约束冲突）
	ErrDraftExists = errors.New("draft already exists for message")
	// ErrInvalidState 行状态不满足本次更新的前置条件
	ErrInvalidState = errors.New("draft row is not in the required state")
)

// DraftFilter 草稿查询条件
type DraftFilter struct {
	Status domain.DraftStatus // 为空表示全部状态
	Limit  int                // <=0 表示使用后端默认上限
}

// DraftRepository 定义草稿数据存取操作。
//
// 实现方必须保证两类写入的原子性：
//   - CreateDraft 是条件插入，message_id 的唯一性由存储层自身保证，
//     并发插入同一 message_id 时恰好一个成功，其余返回 ErrDraftExists；
//   - SetProviderDraftID 与 MarkDecided 是比较并交换式更新，只有行仍处于
//     pending 状态时才生效，否则返回 ErrInvalidState。
//
// 并发的收件循环与人工决策依赖这两条性质保持状态机不变量，任何其他
// 错误视为存储故障，调用方应放弃本次操作。
type DraftRepository interface {
	// CreateDraft 原子地插入新草稿；message_id 冲突时返回 ErrDraftExists
	CreateDraft(ctx context.Context, draft *domain.Draft) error
	// GetDraft 按草稿 ID 查询
	GetDraft(ctx context.Context, id string) (*domain.Draft, error)
	// GetDraftByMessageID 按来信 ID 查询
	GetDraftByMessageID(ctx context.Context, messageID string) (*domain.Draft, error)
	// ListDrafts 按条件列出草稿，创建时间倒序
	ListDrafts(ctx context.Context, filter DraftFilter) ([]domain.Draft, error)
	// SetProviderDraftID 记录远端草稿 ID；仅当行为 pending 且该列为空时生效
	SetProviderDraftID(ctx context.Context, id, providerDraftID string) error
	// UpdateBody 更新回信正文；仅对 pending 行生效
	UpdateBody(ctx context.Context, id, body string) error
	// MarkDecided 将 pending 行迁移到终态并记录决策时间与最终正文；
	// 行不存在或已处于终态时返回 ErrInvalidState
	MarkDecided(ctx context.Context, id string, status domain.DraftStatus, finalBody string) error

	// Health 存储连通性检查
	Health() error
	// Close 释放底层资源
	Close() error
}
