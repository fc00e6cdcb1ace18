package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"autoreply/backend/internal/domain"
	"autoreply/backend/internal/gateway"
	"autoreply/backend/internal/llm"
	"autoreply/backend/internal/monitoring"
	"autoreply/backend/internal/pool"
	"autoreply/backend/internal/storage"
	"autoreply/backend/internal/websocket"
)

// defaultConcurrency 单轮收件并行处理来信的默认并发数
const defaultConcurrency = 4

// IntakeService 收件循环：发现未读来信并产出待评审草稿。
//
// 单封来信的处理顺序是硬性约束：
//  1. 查本地草稿表去重（未读标记只是提示，不作为依据）；
//  2. 生成回信，失败则跳过本封，下一轮重试；
//  3. 先落库 pending 行，再创建远端草稿——中途崩溃留下的是
//     可补建的本地行，而不是无法发现的远端孤儿草稿；
//  4. 创建远端草稿并回写其 ID，失败留空待补建；
//  5. 标记已读（尽力而为，失败靠步骤 1 自愈）。
//
// 任意一封来信失败都不影响本轮其余来信。
type IntakeService struct {
	repo        storage.DraftRepository
	gw          gateway.Gateway
	gen         llm.Generator
	hub         *websocket.Hub
	metrics     *monitoring.Metrics
	log         *zap.Logger
	concurrency int
}

// NewIntakeService 创建收件服务。hub 与 metrics 可为 nil。
func NewIntakeService(repo storage.DraftRepository, gw gateway.Gateway, gen llm.Generator, hub *websocket.Hub, metrics *monitoring.Metrics, log *zap.Logger) *IntakeService {
	if log == nil {
		log = zap.NewNop()
	}
	return &IntakeService{
		repo:        repo,
		gw:          gw,
		gen:         gen,
		hub:         hub,
		metrics:     metrics,
		log:         log,
		concurrency: defaultConcurrency,
	}
}

// SetConcurrency 调整单轮并发数（仅在启动前调用）。
func (s *IntakeService) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// RunCycle 执行一轮收件。
//
// 返回错误仅代表整轮无法进行（列表失败或存储故障）；
// 单封来信的失败在循环内部消化并记日志。
func (s *IntakeService) RunCycle(ctx context.Context) error {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.IntakeCycles.Inc()
		defer func() {
			s.metrics.IntakeCycleDuration.Observe(time.Since(start).Seconds())
		}()
	}

	// 先补建：崩溃或配额故障留下的无远端草稿的 pending 行
	s.reconcile(ctx)

	messages, err := s.gw.ListUnread(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IntakeCycleFailures.Inc()
			s.metrics.RecordGatewayError("list_unread")
		}
		s.log.Error("listing unread failed, cycle aborted", zap.Error(err))
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	if s.metrics != nil {
		s.metrics.MessagesSeen.Add(float64(len(messages)))
	}
	s.log.Info("processing unread messages", zap.Int("count", len(messages)))

	workers := pool.NewWorkerPool(s.concurrency, len(messages))
	workers.Start(ctx)
	for _, msg := range messages {
		m := msg
		if err := workers.Submit(ctx, func() { s.processMessage(ctx, m) }); err != nil {
			break
		}
	}
	workers.Stop()
	return nil
}

// processMessage 处理单封来信；所有失败路径都不影响其他来信。
func (s *IntakeService) processMessage(ctx context.Context, msg domain.InboundMessage) {
	log := s.log.With(zap.String("message_id", msg.MessageID))

	// 步骤 1：草稿表是去重的最终依据——未读标记可能过期或被外部改动
	_, err := s.repo.GetDraftByMessageID(ctx, msg.MessageID)
	switch {
	case err == nil:
		if s.metrics != nil {
			s.metrics.MessagesSkipped.Inc()
		}
		log.Debug("draft already exists, skipping")
		return
	case !errors.Is(err, storage.ErrDraftNotFound):
		log.Error("dedup lookup failed, skipping message", zap.Error(err))
		return
	}

	// 步骤 2：生成失败则保持未读、不落库，下一轮重试
	reply, err := s.gen.Generate(ctx, msg.Body)
	if err != nil {
		if s.metrics != nil {
			s.metrics.GenerationFailures.Inc()
		}
		log.Warn("reply generation failed, will retry next cycle", zap.Error(err))
		return
	}

	// 步骤 3：先落库。唯一约束兜底并发收件——同一来信只有一次插入成功
	draft := &domain.Draft{
		ID:        uuid.NewString(),
		MessageID: msg.MessageID,
		Sender:    msg.Sender,
		Subject:   msg.Subject,
		Body:      reply,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateDraft(ctx, draft); err != nil {
		if errors.Is(err, storage.ErrDraftExists) {
			if s.metrics != nil {
				s.metrics.MessagesSkipped.Inc()
			}
			log.Debug("concurrent intake won the insert, skipping")
			return
		}
		// 存储故障：放弃本封（保持未读），下一轮重试
		log.Error("persisting draft failed, skipping message", zap.Error(err))
		return
	}

	// 步骤 4：创建远端草稿；失败时 ID 留空，等下一轮补建
	providerID, err := s.gw.CreateDraft(ctx, msg.MessageID, reply)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordGatewayError("create_draft")
		}
		log.Warn("provider draft creation failed, will reconcile later", zap.Error(err))
	} else if err := s.repo.SetProviderDraftID(ctx, draft.ID, providerID); err != nil {
		// 远端草稿已存在但 ID 没记上，只能靠日志追查
		log.Error("recording provider draft id failed",
			zap.String("provider_draft_id", providerID), zap.Error(err))
	} else {
		draft.ProviderDraftID = providerID
	}

	// 步骤 5：已读标记失败不回滚——下一轮会在步骤 1 直接跳过本封
	if err := s.gw.MarkRead(ctx, msg.MessageID); err != nil {
		if s.metrics != nil {
			s.metrics.RecordGatewayError("mark_read")
		}
		log.Warn("mark read failed, dedup will self-heal", zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.DraftsCreated.Inc()
	}
	if s.hub != nil {
		s.hub.Broadcast(websocket.EventDraftCreated, draft)
	}
	log.Info("draft created",
		zap.String("draft_id", draft.ID),
		zap.String("provider_draft_id", draft.ProviderDraftID))
}

// reconcile 为没有远端草稿的 pending 行补建远端草稿。
func (s *IntakeService) reconcile(ctx context.Context) {
	drafts, err := s.repo.ListDrafts(ctx, storage.DraftFilter{Status: domain.StatusPending})
	if err != nil {
		s.log.Error("listing pending drafts for reconciliation failed", zap.Error(err))
		return
	}

	for _, d := range drafts {
		if d.HasProviderDraft() {
			continue
		}

		providerID, err := s.gw.CreateDraft(ctx, d.MessageID, d.Body)
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecordGatewayError("create_draft")
			}
			s.log.Warn("reconciliation attempt failed",
				zap.String("draft_id", d.ID), zap.Error(err))
			continue
		}
		if err := s.repo.SetProviderDraftID(ctx, d.ID, providerID); err != nil {
			s.log.Error("recording reconciled provider draft id failed",
				zap.String("draft_id", d.ID),
				zap.String("provider_draft_id", providerID), zap.Error(err))
			continue
		}
		if s.metrics != nil {
			s.metrics.DraftsReconciled.Inc()
		}
		s.log.Info("provider draft reconciled",
			zap.String("draft_id", d.ID),
			zap.String("provider_draft_id", providerID))
	}
}
