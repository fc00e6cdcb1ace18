package domain

import "time"

// DraftStatus 草稿生命周期状态
//
// 状态机只允许单向迁移：pending -> sent 或 pending -> rejected，
// sent 与 rejected 为终态，不允许再次变更。
type DraftStatus string

const (
	// StatusPending 等待人工决策
	StatusPending DraftStatus = "pending"
	// StatusSent 已发送（终态）
	StatusSent DraftStatus = "sent"
	// StatusRejected 已拒绝（终态）
	StatusRejected DraftStatus = "rejected"
)

// Valid 判断状态值是否合法
func (s DraftStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusRejected:
		return true
	}
	return false
}

// Terminal 判断是否为终态
func (s DraftStatus) Terminal() bool {
	return s == StatusSent || s == StatusRejected
}

// CanTransition 判断是否允许从当前状态迁移到 to
func (s DraftStatus) CanTransition(to DraftStatus) bool {
	return s == StatusPending && to.Terminal()
}

// Draft 表示一封由系统生成、等待人工决策的回信草稿。
//
// message_id 与来信一一对应且全局唯一：同一封来信永远只会产生一条
// Draft 记录，重复收录以存储层的唯一约束为准，而不是邮箱的未读标记。
type Draft struct {
	ID              string      `json:"id" db:"id"`
	MessageID       string      `json:"messageId" db:"message_id"`
	ProviderDraftID string      `json:"providerDraftId" db:"provider_draft_id"`
	Sender          string      `json:"sender" db:"sender"`
	Subject         string      `json:"subject" db:"subject"`
	Body            string      `json:"body" db:"body"`
	Status          DraftStatus `json:"status" db:"status"`
	CreatedAt       time.Time   `json:"createdAt" db:"created_at"`
	// DecidedAt 在 pending 状态下为空
	DecidedAt *time.Time `json:"decidedAt,omitempty" db:"decided_at"`
}

// Pending 判断草稿是否仍在等待决策
func (d *Draft) Pending() bool {
	return d.Status == StatusPending
}

// HasProviderDraft 判断远端草稿是否已创建成功
func (d *Draft) HasProviderDraft() bool {
	return d.ProviderDraftID != ""
}
