package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"autoreply/backend/internal/domain"
	"autoreply/backend/internal/gateway"
	"autoreply/backend/internal/storage"
	"autoreply/backend/internal/storage/memory"
)

// seedDraft 在内存存储中造一条 pending 草稿
func seedDraft(t *testing.T, repo storage.DraftRepository, messageID, providerDraftID string) *domain.Draft {
	t.Helper()

	d := &domain.Draft{
		ID:        uuid.NewString(),
		MessageID: messageID,
		Sender:    "alice@example.com",
		Subject:   "Meeting tomorrow",
		Body:      "Happy to meet at 10am.",
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.CreateDraft(context.Background(), d))
	if providerDraftID != "" {
		require.NoError(t, repo.SetProviderDraftID(context.Background(), d.ID, providerDraftID))
		d.ProviderDraftID = providerDraftID
	}
	return d
}

func TestDraftServiceSend(t *testing.T) {
	ctx := context.Background()

	t.Run("sends stored body and flips to sent", func(t *testing.T) {
		repo := memory.NewStore()
		gw := &mockGateway{}
		d := seedDraft(t, repo, "<m1@example.com>", "7/101")
		gw.On("SendDraft", mock.Anything, "7/101", d.Body).Return(nil)

		svc := NewDraftService(repo, gw, nil, nil, nil)
		sent, err := svc.Send(ctx, d.ID, "")
		require.NoError(t, err)

		assert.Equal(t, domain.StatusSent, sent.Status)
		assert.Equal(t, d.Body, sent.Body)
		require.NotNil(t, sent.DecidedAt)
		gw.AssertExpectations(t)
	})

	t.Run("edited body replaces stored body", func(t *testing.T) {
		repo := memory.NewStore()
		gw := &mockGateway{}
		d := seedDraft(t, repo, "<m2@example.com>", "7/102")
		edited := "Thanks, will follow up by Friday."
		gw.On("SendDraft", mock.Anything, "7/102", edited).Return(nil)

		svc := NewDraftService(repo, gw, nil, nil, nil)
		sent, err := svc.Send(ctx, d.ID, edited)
		require.NoError(t, err)
		assert.Equal(t, edited, sent.Body)

		// 终态之后的任何决策都被拒绝
		_, err = svc.Reject(ctx, d.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		_, err = svc.Send(ctx, d.ID, "")
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		gw.AssertExpectations(t)
	})

	t.Run("gateway failure keeps draft pending", func(t *testing.T) {
		repo := memory.NewStore()
		gw := &mockGateway{}
		d := seedDraft(t, repo, "<m3@example.com>", "7/103")
		gwErr := &gateway.GatewayError{Op: "send_draft", Err: errors.New("smtp timeout")}
		gw.On("SendDraft", mock.Anything, "7/103", d.Body).Return(gwErr)

		svc := NewDraftService(repo, gw, nil, nil, nil)
		_, err := svc.Send(ctx, d.ID, "")
		require.Error(t, err)

		cur, err := repo.GetDraft(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, cur.Status)
		assert.Nil(t, cur.DecidedAt)

		// 故障恢复后重试同一草稿应当成功
		gw.ExpectedCalls = nil
		gw.On("SendDraft", mock.Anything, "7/103", d.Body).Return(nil)
		sent, err := svc.Send(ctx, d.ID, "")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSent, sent.Status)
	})

	t.Run("missing provider draft blocks send", func(t *testing.T) {
		repo := memory.NewStore()
		gw := &mockGateway{}
		d := seedDraft(t, repo, "<m4@example.com>", "")

		svc := NewDraftService(repo, gw, nil, nil, nil)
		_, err := svc.Send(ctx, d.ID, "")
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		gw.AssertNotCalled(t, "SendDraft", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown draft", func(t *testing.T) {
		repo := memory.NewStore()
		svc := NewDraftService(repo, &mockGateway{}, nil, nil, nil)
		_, err := svc.Send(ctx, uuid.NewString(), "")
		assert.ErrorIs(t, err, storage.ErrDraftNotFound)
	})
}

func TestDraftServiceReject(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes provider draft then flips to rejected", func(t *testing.T) {
		repo := memory.NewStore()
		gw := &mockGateway{}
		d := seedDraft(t, repo, "<m1@example.com>", "7/201")
		gw.On("DeleteDraft", mock.Anything, "7/201").Return(nil)

		svc := NewDraftService(repo, gw, nil, nil, nil)
		rejected, err := svc.Reject(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRejected, rejected.Status)
		require.NotNil(t, rejected.DecidedAt)
		gw.AssertExpectations(t)
	})

	t.Run("already deleted provider draft counts as success", func(t *testing.T) {
		repo := memory.NewStore()
		gw := &mockGateway{}
		d := seedDraft(t, repo, "<m2@example.com>", "7/202")
		gw.On("DeleteDraft", mock.Anything, "7/202").
			Return(&gateway.NotFoundError{Op: "delete_draft", ID: "7/202"})

		svc := NewDraftService(repo, gw, nil, nil, nil)
		rejected, err := svc.Reject(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRejected, rejected.Status)
	})

	t.Run("delete failure keeps draft pending", func(t *testing.T) {
		repo := memory.NewStore()
		gw := &mockGateway{}
		d := seedDraft(t, repo, "<m3@example.com>", "7/203")
		gwErr := &gateway.GatewayError{Op: "delete_draft", Err: errors.New("connection reset")}
		gw.On("DeleteDraft", mock.Anything, "7/203").Return(gwErr)

		svc := NewDraftService(repo, gw, nil, nil, nil)
		_, err := svc.Reject(ctx, d.ID)
		require.Error(t, err)

		cur, err := repo.GetDraft(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, cur.Status)
	})

	t.Run("no provider draft skips gateway entirely", func(t *testing.T) {
		repo := memory.NewStore()
		gw := &mockGateway{}
		d := seedDraft(t, repo, "<m4@example.com>", "")

		svc := NewDraftService(repo, gw, nil, nil, nil)
		rejected, err := svc.Reject(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRejected, rejected.Status)
		gw.AssertNotCalled(t, "DeleteDraft", mock.Anything, mock.Anything)
	})

	t.Run("terminal draft cannot be rejected again", func(t *testing.T) {
		repo := memory.NewStore()
		gw := &mockGateway{}
		d := seedDraft(t, repo, "<m5@example.com>", "7/205")
		gw.On("DeleteDraft", mock.Anything, "7/205").Return(nil)

		svc := NewDraftService(repo, gw, nil, nil, nil)
		_, err := svc.Reject(ctx, d.ID)
		require.NoError(t, err)

		_, err = svc.Reject(ctx, d.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})
}

func TestDraftServiceUpdateBody(t *testing.T) {
	ctx := context.Background()

	t.Run("saves edited body on pending draft", func(t *testing.T) {
		repo := memory.NewStore()
		d := seedDraft(t, repo, "<m1@example.com>", "7/1")

		svc := NewDraftService(repo, &mockGateway{}, nil, nil, nil)
		updated, err := svc.UpdateBody(ctx, d.ID, "Reworded reply.")
		require.NoError(t, err)
		assert.Equal(t, "Reworded reply.", updated.Body)
		assert.Equal(t, domain.StatusPending, updated.Status)
	})

	t.Run("empty body is rejected", func(t *testing.T) {
		repo := memory.NewStore()
		d := seedDraft(t, repo, "<m1@example.com>", "7/1")

		svc := NewDraftService(repo, &mockGateway{}, nil, nil, nil)
		_, err := svc.UpdateBody(ctx, d.ID, "")
		assert.ErrorIs(t, err, domain.ErrEmptyReply)
	})

	t.Run("terminal draft cannot be edited", func(t *testing.T) {
		repo := memory.NewStore()
		gw := &mockGateway{}
		d := seedDraft(t, repo, "<m1@example.com>", "7/1")
		gw.On("SendDraft", mock.Anything, "7/1", d.Body).Return(nil)

		svc := NewDraftService(repo, gw, nil, nil, nil)
		_, err := svc.Send(ctx, d.ID, "")
		require.NoError(t, err)

		_, err = svc.UpdateBody(ctx, d.ID, "Too late.")
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})
}

func TestDraftServiceList(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore()
	gw := &mockGateway{}
	seedDraft(t, repo, "<m1@example.com>", "7/301")
	d2 := seedDraft(t, repo, "<m2@example.com>", "7/302")
	gw.On("DeleteDraft", mock.Anything, "7/302").Return(nil)

	svc := NewDraftService(repo, gw, nil, nil, nil)
	_, err := svc.Reject(ctx, d2.ID)
	require.NoError(t, err)

	pending, err := svc.List(ctx, domain.StatusPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "<m1@example.com>", pending[0].MessageID)

	all, err := svc.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
