package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoreply/backend/internal/domain"
	"autoreply/backend/internal/storage"
)

func newDraft(id, messageID string) *domain.Draft {
	return &domain.Draft{
		ID:        id,
		MessageID: messageID,
		Sender:    "alice@example.com",
		Subject:   "hello",
		Body:      "Thanks, will follow up.",
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateDraftConditionalInsert(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.CreateDraft(ctx, newDraft("d1", "m1")))

	// 同一 message_id 第二次插入必须失败
	err := s.CreateDraft(ctx, newDraft("d2", "m1"))
	assert.ErrorIs(t, err, storage.ErrDraftExists)

	// 其他 message_id 不受影响
	require.NoError(t, s.CreateDraft(ctx, newDraft("d3", "m2")))
}

func TestCreateDraftConcurrent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := newDraft(fmt.Sprintf("d%d", i), "m1")
			errs <- s.CreateDraft(ctx, d)
		}(i)
	}
	wg.Wait()
	close(errs)

	// 恰好一个成功，其余全部冲突
	var ok, conflict int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case err == storage.ErrDraftExists:
			conflict++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflict)
}

func TestSetProviderDraftIDOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.CreateDraft(ctx, newDraft("d1", "m1")))

	require.NoError(t, s.SetProviderDraftID(ctx, "d1", "42/1001"))

	// 已设置过的列不允许再次写入
	err := s.SetProviderDraftID(ctx, "d1", "42/1002")
	assert.ErrorIs(t, err, storage.ErrInvalidState)

	d, err := s.GetDraft(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "42/1001", d.ProviderDraftID)
}

func TestMarkDecidedMonotonic(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.CreateDraft(ctx, newDraft("d1", "m1")))

	require.NoError(t, s.MarkDecided(ctx, "d1", domain.StatusSent, "final body"))

	d, err := s.GetDraft(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, d.Status)
	assert.Equal(t, "final body", d.Body)
	require.NotNil(t, d.DecidedAt)

	// 终态之后任何迁移都被拒绝
	assert.ErrorIs(t, s.MarkDecided(ctx, "d1", domain.StatusRejected, ""), storage.ErrInvalidState)
	assert.ErrorIs(t, s.MarkDecided(ctx, "d1", domain.StatusSent, ""), storage.ErrInvalidState)

	// 保持原有决策结果不变
	d, err = s.GetDraft(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, d.Status)
}

func TestMarkDecidedAfterProviderDraftGone(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.CreateDraft(ctx, newDraft("d1", "m1")))

	// 远端草稿已删除但状态更新之前进程崩溃的场景：
	// 重试 Reject 仍然可以到达 rejected
	require.NoError(t, s.MarkDecided(ctx, "d1", domain.StatusRejected, ""))

	d, err := s.GetDraft(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, d.Status)
}

func TestListDrafts(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	d1 := newDraft("d1", "m1")
	d1.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	d2 := newDraft("d2", "m2")
	d2.CreatedAt = time.Now().UTC().Add(-1 * time.Hour)
	d3 := newDraft("d3", "m3")

	require.NoError(t, s.CreateDraft(ctx, d1))
	require.NoError(t, s.CreateDraft(ctx, d2))
	require.NoError(t, s.CreateDraft(ctx, d3))
	require.NoError(t, s.MarkDecided(ctx, "d3", domain.StatusSent, ""))

	pending, err := s.ListDrafts(ctx, storage.DraftFilter{Status: domain.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	// 创建时间倒序
	assert.Equal(t, "d2", pending[0].ID)
	assert.Equal(t, "d1", pending[1].ID)

	all, err := s.ListDrafts(ctx, storage.DraftFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetDraftReturnsCopy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.CreateDraft(ctx, newDraft("d1", "m1")))

	d, err := s.GetDraft(ctx, "d1")
	require.NoError(t, err)
	d.Status = domain.StatusSent

	// 外部修改不应穿透到存储内部
	again, err := s.GetDraft(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, again.Status)
}
