package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"autoreply/backend/internal/domain"
	"autoreply/backend/internal/gateway"
	"autoreply/backend/internal/monitoring"
	"autoreply/backend/internal/storage"
	"autoreply/backend/internal/websocket"
)

// DraftService 封装草稿的查询与人工决策操作。
//
// 状态机唯一合法迁移为 pending -> sent / pending -> rejected；
// 任何迁移都只在对应的远端副作用成功之后落库，失败时行保持
// pending 并把错误原样抛给调用方，不存在半完成的状态变更。
type DraftService struct {
	repo    storage.DraftRepository
	gw      gateway.Gateway
	hub     *websocket.Hub
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewDraftService 创建草稿业务服务。hub 与 metrics 可为 nil。
func NewDraftService(repo storage.DraftRepository, gw gateway.Gateway, hub *websocket.Hub, metrics *monitoring.Metrics, log *zap.Logger) *DraftService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DraftService{repo: repo, gw: gw, hub: hub, metrics: metrics, log: log}
}

// List 按状态列出草稿。
func (s *DraftService) List(ctx context.Context, status domain.DraftStatus, limit int) ([]domain.Draft, error) {
	return s.repo.ListDrafts(ctx, storage.DraftFilter{Status: status, Limit: limit})
}

// Get 获取单条草稿。
func (s *DraftService) Get(ctx context.Context, id string) (*domain.Draft, error) {
	return s.repo.GetDraft(ctx, id)
}

// UpdateBody 保存编辑后的正文但不发送；仅 pending 草稿可编辑。
func (s *DraftService) UpdateBody(ctx context.Context, id, body string) (*domain.Draft, error) {
	if body == "" {
		return nil, fmt.Errorf("reply body must not be empty: %w", domain.ErrEmptyReply)
	}
	if err := s.repo.UpdateBody(ctx, id, body); err != nil {
		if errors.Is(err, storage.ErrInvalidState) {
			return nil, fmt.Errorf("draft %s: %w", id, domain.ErrInvalidState)
		}
		return nil, err
	}
	return s.repo.GetDraft(ctx, id)
}

// Send 发送草稿，editedBody 非空表示编辑后发送。
//
// 前置条件：草稿处于 pending 且远端草稿已创建；否则返回
// domain.ErrInvalidState。网关失败时草稿保持 pending，可安全重试。
func (s *DraftService) Send(ctx context.Context, id, editedBody string) (*domain.Draft, error) {
	d, err := s.repo.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Pending() {
		return nil, fmt.Errorf("draft %s is %s: %w", id, d.Status, domain.ErrInvalidState)
	}
	if !d.HasProviderDraft() {
		// 远端草稿尚未补建，先等收件循环完成补建
		return nil, fmt.Errorf("draft %s has no provider draft yet: %w", id, domain.ErrInvalidState)
	}

	finalBody := d.Body
	if editedBody != "" {
		finalBody = editedBody
	}

	if err := s.gw.SendDraft(ctx, d.ProviderDraftID, finalBody); err != nil {
		// 发送阶段远端草稿丢失与普通网关故障同样按失败处理，
		// 行保持 pending
		s.recordDecisionError("send")
		s.log.Error("send failed, draft stays pending",
			zap.String("draft_id", id), zap.Error(err))
		return nil, err
	}

	if err := s.repo.MarkDecided(ctx, id, domain.StatusSent, finalBody); err != nil {
		if errors.Is(err, storage.ErrInvalidState) {
			// 并发决策抢先完成
			return nil, fmt.Errorf("draft %s: %w", id, domain.ErrInvalidState)
		}
		return nil, err
	}

	sent, err := s.repo.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordDecision("sent")
	}
	if s.hub != nil {
		s.hub.Broadcast(websocket.EventDraftSent, sent)
	}
	s.log.Info("draft sent",
		zap.String("draft_id", id),
		zap.String("message_id", sent.MessageID),
		zap.Bool("edited", editedBody != ""))
	return sent, nil
}

// Reject 拒绝草稿并删除远端副本。
//
// 远端草稿已不存在视为删除成功（删除幂等），因此"删除成功但
// 状态未落库就崩溃"的场景下，重试 Reject 仍能到达 rejected。
func (s *DraftService) Reject(ctx context.Context, id string) (*domain.Draft, error) {
	d, err := s.repo.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Pending() {
		return nil, fmt.Errorf("draft %s is %s: %w", id, d.Status, domain.ErrInvalidState)
	}

	// 先清理远端副作用，再落库状态：删除失败时行保持 pending，
	// 绝不出现已标记 rejected 却残留远端草稿的静默泄漏
	if d.HasProviderDraft() {
		if err := s.gw.DeleteDraft(ctx, d.ProviderDraftID); err != nil && !gateway.IsNotFound(err) {
			s.recordDecisionError("reject")
			s.log.Error("delete failed, draft stays pending",
				zap.String("draft_id", id), zap.Error(err))
			return nil, err
		}
	}

	if err := s.repo.MarkDecided(ctx, id, domain.StatusRejected, ""); err != nil {
		if errors.Is(err, storage.ErrInvalidState) {
			return nil, fmt.Errorf("draft %s: %w", id, domain.ErrInvalidState)
		}
		return nil, err
	}

	rejected, err := s.repo.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordDecision("rejected")
	}
	if s.hub != nil {
		s.hub.Broadcast(websocket.EventDraftRejected, rejected)
	}
	s.log.Info("draft rejected",
		zap.String("draft_id", id),
		zap.String("message_id", rejected.MessageID))
	return rejected, nil
}

func (s *DraftService) recordDecisionError(op string) {
	if s.metrics != nil {
		s.metrics.RecordDecisionError(op)
	}
}
