package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"autoreply/backend/internal/domain"
	"autoreply/backend/internal/storage"
)

// Store 使用内存保存草稿数据，主要用于开发验证与测试。
//
// 所有写入在同一把锁内完成，天然满足 DraftRepository 要求的
// 条件插入与比较并交换语义。
type Store struct {
	mu          sync.RWMutex
	drafts      map[string]*domain.Draft // draftID -> draft
	byMessageID map[string]string        // messageID -> draftID
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		drafts:      make(map[string]*domain.Draft),
		byMessageID: make(map[string]string),
	}
}

// CreateDraft 条件插入新草稿；message_id 已存在时返回 ErrDraftExists。
func (s *Store) CreateDraft(_ context.Context, draft *domain.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byMessageID[draft.MessageID]; ok {
		return storage.ErrDraftExists
	}

	cp := *draft
	s.drafts[cp.ID] = &cp
	s.byMessageID[cp.MessageID] = cp.ID
	return nil
}

// GetDraft 按草稿 ID 查询。
func (s *Store) GetDraft(_ context.Context, id string) (*domain.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drafts[id]
	if !ok {
		return nil, storage.ErrDraftNotFound
	}
	cp := *d
	return &cp, nil
}

// GetDraftByMessageID 按来信 ID 查询。
func (s *Store) GetDraftByMessageID(_ context.Context, messageID string) (*domain.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byMessageID[messageID]
	if !ok {
		return nil, storage.ErrDraftNotFound
	}
	cp := *s.drafts[id]
	return &cp, nil
}

// ListDrafts 按条件列出草稿，创建时间倒序。
func (s *Store) ListDrafts(_ context.Context, filter storage.DraftFilter) ([]domain.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Draft, 0, len(s.drafts))
	for _, d := range s.drafts {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		out = append(out, *d)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// SetProviderDraftID 记录远端草稿 ID；仅当行为 pending 且该列为空时生效。
func (s *Store) SetProviderDraftID(_ context.Context, id, providerDraftID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return storage.ErrDraftNotFound
	}
	if d.Status != domain.StatusPending || d.ProviderDraftID != "" {
		return storage.ErrInvalidState
	}
	d.ProviderDraftID = providerDraftID
	return nil
}

// UpdateBody 更新回信正文；仅对 pending 行生效。
func (s *Store) UpdateBody(_ context.Context, id, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return storage.ErrDraftNotFound
	}
	if d.Status != domain.StatusPending {
		return storage.ErrInvalidState
	}
	d.Body = body
	return nil
}

// MarkDecided 将 pending 行迁移到终态。
func (s *Store) MarkDecided(_ context.Context, id string, status domain.DraftStatus, finalBody string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return storage.ErrInvalidState
	}
	if !d.Status.CanTransition(status) {
		return storage.ErrInvalidState
	}

	now := time.Now().UTC()
	d.Status = status
	d.DecidedAt = &now
	if finalBody != "" {
		d.Body = finalBody
	}
	return nil
}

// Health 内存存储始终可用。
func (s *Store) Health() error { return nil }

// Close 内存存储无需释放资源。
func (s *Store) Close() error { return nil }
