package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"autoreply/backend/internal/domain"
	"autoreply/backend/internal/storage"
)

// defaultListLimit 未显式指定 Limit 时的查询上限
const defaultListLimit = 100

// schema 草稿表结构。
//
// message_id 上的唯一索引是去重的最终依据：未读标记只是提示，
// 是否处理过一封来信以本表是否存在对应行为准。
const schema = `
CREATE TABLE IF NOT EXISTS drafts (
	id                TEXT PRIMARY KEY,
	message_id        TEXT NOT NULL,
	provider_draft_id TEXT NOT NULL DEFAULT '',
	sender            TEXT NOT NULL DEFAULT '',
	subject           TEXT NOT NULL DEFAULT '',
	body              TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	created_at        DATETIME NOT NULL,
	decided_at        DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_drafts_message_id ON drafts(message_id);
CREATE INDEX IF NOT EXISTS idx_drafts_status ON drafts(status);
`

// Store SQLite 草稿存储实现（默认后端，本地持久化）。
type Store struct {
	db *sqlx.DB
}

// NewStore 打开（或创建）SQLite 数据库并初始化表结构。
func NewStore(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = "drafts.db"
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// modernc 驱动为纯 Go 实现，串行化写入可避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// CreateDraft 原子地插入新草稿。
//
// 依赖 message_id 唯一索引做冲突检测，而不是先查后插，
// 保证并发收件时同一来信恰好产生一条记录。
func (s *Store) CreateDraft(ctx context.Context, draft *domain.Draft) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO drafts (id, message_id, provider_draft_id, sender, subject, body, status, created_at, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(message_id) DO NOTHING`,
		draft.ID, draft.MessageID, draft.ProviderDraftID,
		draft.Sender, draft.Subject, draft.Body,
		string(draft.Status), draft.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting draft: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking insert result: %w", err)
	}
	if n == 0 {
		return storage.ErrDraftExists
	}
	return nil
}

// GetDraft 按草稿 ID 查询。
func (s *Store) GetDraft(ctx context.Context, id string) (*domain.Draft, error) {
	var d domain.Draft
	err := s.db.GetContext(ctx, &d, `SELECT * FROM drafts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying draft: %w", err)
	}
	return &d, nil
}

// GetDraftByMessageID 按来信 ID 查询。
func (s *Store) GetDraftByMessageID(ctx context.Context, messageID string) (*domain.Draft, error) {
	var d domain.Draft
	err := s.db.GetContext(ctx, &d, `SELECT * FROM drafts WHERE message_id = ?`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying draft by message id: %w", err)
	}
	return &d, nil
}

// ListDrafts 按条件列出草稿，创建时间倒序。
func (s *Store) ListDrafts(ctx context.Context, filter storage.DraftFilter) ([]domain.Draft, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		drafts []domain.Draft
		err    error
	)
	if filter.Status != "" {
		err = s.db.SelectContext(ctx, &drafts,
			`SELECT * FROM drafts WHERE status = ? ORDER BY created_at DESC LIMIT ?`,
			string(filter.Status), limit)
	} else {
		err = s.db.SelectContext(ctx, &drafts,
			`SELECT * FROM drafts ORDER BY created_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("listing drafts: %w", err)
	}
	return drafts, nil
}

// SetProviderDraftID 记录远端草稿 ID。
//
// WHERE 条件限定 pending 且列为空，保证该列至多写入一次。
func (s *Store) SetProviderDraftID(ctx context.Context, id, providerDraftID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE drafts SET provider_draft_id = ?
		WHERE id = ? AND status = 'pending' AND provider_draft_id = ''`,
		providerDraftID, id,
	)
	if err != nil {
		return fmt.Errorf("setting provider draft id: %w", err)
	}
	return s.requireRow(ctx, res, id)
}

// UpdateBody 更新回信正文；仅对 pending 行生效。
func (s *Store) UpdateBody(ctx context.Context, id, body string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE drafts SET body = ? WHERE id = ? AND status = 'pending'`,
		body, id,
	)
	if err != nil {
		return fmt.Errorf("updating draft body: %w", err)
	}
	return s.requireRow(ctx, res, id)
}

// MarkDecided 将 pending 行迁移到终态。
//
// WHERE status = 'pending' 使状态迁移成为比较并交换：行已处于终态时
// 更新不命中任何行，并发的重复决策只有一个会生效。
func (s *Store) MarkDecided(ctx context.Context, id string, status domain.DraftStatus, finalBody string) error {
	if !domain.StatusPending.CanTransition(status) {
		return storage.ErrInvalidState
	}

	now := time.Now().UTC()
	var (
		res sql.Result
		err error
	)
	if finalBody != "" {
		res, err = s.db.ExecContext(ctx, `
			UPDATE drafts SET status = ?, body = ?, decided_at = ?
			WHERE id = ? AND status = 'pending'`,
			string(status), finalBody, now, id)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE drafts SET status = ?, decided_at = ?
			WHERE id = ? AND status = 'pending'`,
			string(status), now, id)
	}
	if err != nil {
		return fmt.Errorf("marking draft decided: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return storage.ErrInvalidState
	}
	return nil
}

// requireRow 将"更新未命中任何行"区分为不存在与状态不满足两种错误。
func (s *Store) requireRow(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	if err := s.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM drafts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("checking draft existence: %w", err)
	}
	if exists == 0 {
		return storage.ErrDraftNotFound
	}
	return storage.ErrInvalidState
}

// Health 数据库连通性检查。
func (s *Store) Health() error {
	return s.db.Ping()
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	return s.db.Close()
}
