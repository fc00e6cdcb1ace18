package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"autoreply/backend/internal/domain"
	"autoreply/backend/internal/storage"
)

// defaultListLimit 未显式指定 Limit 时的查询上限
const defaultListLimit = 100

const schema = `
CREATE TABLE IF NOT EXISTS drafts (
	id                TEXT PRIMARY KEY,
	message_id        TEXT NOT NULL UNIQUE,
	provider_draft_id TEXT NOT NULL DEFAULT '',
	sender            TEXT NOT NULL DEFAULT '',
	subject           TEXT NOT NULL DEFAULT '',
	body              TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	created_at        TIMESTAMPTZ NOT NULL,
	decided_at        TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_drafts_status ON drafts(status);
`

// Store PostgreSQL 草稿存储实现，用于多实例部署场景。
type Store struct {
	pool *pgxpool.Pool
}

// NewStore 创建 PostgreSQL 存储实例并初始化表结构。
func NewStore(ctx context.Context, dsn string, maxConns, minConns int, connMaxLifetime time.Duration) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}
	if minConns > 0 {
		poolConfig.MinConns = int32(minConns)
	}
	if connMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = connMaxLifetime
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := pool.Exec(dialCtx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// CreateDraft 原子地插入新草稿，message_id 冲突时返回 ErrDraftExists。
func (s *Store) CreateDraft(ctx context.Context, draft *domain.Draft) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO drafts (id, message_id, provider_draft_id, sender, subject, body, status, created_at, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)
		ON CONFLICT (message_id) DO NOTHING`,
		draft.ID, draft.MessageID, draft.ProviderDraftID,
		draft.Sender, draft.Subject, draft.Body,
		string(draft.Status), draft.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDraftExists
	}
	return nil
}

// GetDraft 按草稿 ID 查询。
func (s *Store) GetDraft(ctx context.Context, id string) (*domain.Draft, error) {
	return s.getDraft(ctx, `WHERE id = $1`, id)
}

// GetDraftByMessageID 按来信 ID 查询。
func (s *Store) GetDraftByMessageID(ctx context.Context, messageID string) (*domain.Draft, error) {
	return s.getDraft(ctx, `WHERE message_id = $1`, messageID)
}

func (s *Store) getDraft(ctx context.Context, where string, arg any) (*domain.Draft, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, message_id, provider_draft_id, sender, subject, body, status, created_at, decided_at
		FROM drafts `+where, arg)

	d, err := scanDraft(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying draft: %w", err)
	}
	return d, nil
}

// ListDrafts 按条件列出草稿，创建时间倒序。
func (s *Store) ListDrafts(ctx context.Context, filter storage.DraftFilter) ([]domain.Draft, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		rows pgx.Rows
		err  error
	)
	if filter.Status != "" {
		rows, err = s.pool.Query(ctx, `
			SELECT id, message_id, provider_draft_id, sender, subject, body, status, created_at, decided_at
			FROM drafts WHERE status = $1 ORDER BY created_at DESC LIMIT $2`,
			string(filter.Status), limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, message_id, provider_draft_id, sender, subject, body, status, created_at, decided_at
			FROM drafts ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("listing drafts: %w", err)
	}
	defer rows.Close()

	var drafts []domain.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning draft: %w", err)
		}
		drafts = append(drafts, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating drafts: %w", err)
	}
	return drafts, nil
}

// SetProviderDraftID 记录远端草稿 ID；仅当行为 pending 且该列为空时生效。
func (s *Store) SetProviderDraftID(ctx context.Context, id, providerDraftID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE drafts SET provider_draft_id = $1
		WHERE id = $2 AND status = 'pending' AND provider_draft_id = ''`,
		providerDraftID, id,
	)
	if err != nil {
		return fmt.Errorf("setting provider draft id: %w", err)
	}
	return s.requireRow(ctx, tag.RowsAffected(), id)
}

// UpdateBody 更新回信正文；仅对 pending 行生效。
func (s *Store) UpdateBody(ctx context.Context, id, body string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE drafts SET body = $1 WHERE id = $2 AND status = 'pending'`,
		body, id,
	)
	if err != nil {
		return fmt.Errorf("updating draft body: %w", err)
	}
	return s.requireRow(ctx, tag.RowsAffected(), id)
}

// MarkDecided 将 pending 行迁移到终态（比较并交换）。
func (s *Store) MarkDecided(ctx context.Context, id string, status domain.DraftStatus, finalBody string) error {
	if !domain.StatusPending.CanTransition(status) {
		return storage.ErrInvalidState
	}

	now := time.Now().UTC()
	var (
		tag pgconn.CommandTag
		err error
	)
	if finalBody != "" {
		tag, err = s.pool.Exec(ctx, `
			UPDATE drafts SET status = $1, body = $2, decided_at = $3
			WHERE id = $4 AND status = 'pending'`,
			string(status), finalBody, now, id)
	} else {
		tag, err = s.pool.Exec(ctx, `
			UPDATE drafts SET status = $1, decided_at = $2
			WHERE id = $3 AND status = 'pending'`,
			string(status), now, id)
	}
	if err != nil {
		return fmt.Errorf("marking draft decided: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrInvalidState
	}
	return nil
}

// requireRow 将"更新未命中任何行"区分为不存在与状态不满足两种错误。
func (s *Store) requireRow(ctx context.Context, affected int64, id string) error {
	if affected > 0 {
		return nil
	}

	var exists int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM drafts WHERE id = $1`, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking draft existence: %w", err)
	}
	if exists == 0 {
		return storage.ErrDraftNotFound
	}
	return storage.ErrInvalidState
}

// scanDraft 从查询结果扫描一行草稿。
func scanDraft(row pgx.Row) (*domain.Draft, error) {
	var (
		d      domain.Draft
		status string
	)
	if err := row.Scan(
		&d.ID, &d.MessageID, &d.ProviderDraftID,
		&d.Sender, &d.Subject, &d.Body,
		&status, &d.CreatedAt, &d.DecidedAt,
	); err != nil {
		return nil, err
	}
	d.Status = domain.DraftStatus(status)
	return &d, nil
}

// Health 数据库连通性检查。
func (s *Store) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Close 关闭连接池。
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
