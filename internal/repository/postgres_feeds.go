package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const createFeedDataTable = `
	CREATE TABLE IF NOT EXISTS feed_data (
		id         UUID PRIMARY KEY,
		feed       TEXT NOT NULL,
		value      TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_feed_data_feed_created ON feed_data (feed, created_at DESC);
`

// PostgresFeedRepository feed_data 表实现
type PostgresFeedRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresFeedRepository 创建 feed 存储
func NewPostgresFeedRepository(db *sql.DB, logger *zap.Logger) *PostgresFeedRepository {
	return &PostgresFeedRepository{db: db, logger: logger}
}

// 确保实现了接口
var _ FeedRepository = (*PostgresFeedRepository)(nil)

func (r *PostgresFeedRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createFeedDataTable); err != nil {
		return fmt.Errorf("failed to create feed_data table: %w", err)
	}
	return nil
}

func (r *PostgresFeedRepository) Append(ctx context.Context, feed, value string, at time.Time) (*FeedPoint, error) {
	point := &FeedPoint{
		ID:        uuid.New().String(),
		Feed:      feed,
		Value:     value,
		CreatedAt: at,
	}

	query := `
		INSERT INTO feed_data (id, feed, value, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, point.ID, point.Feed, point.Value, point.CreatedAt); err != nil {
		r.logger.Error("Failed to insert feed data",
			zap.String("feed", feed),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to insert feed data: %w", err)
	}

	return point, nil
}

func (r *PostgresFeedRepository) Latest(ctx context.Context, feed string) (*FeedPoint, error) {
	query := `
		SELECT id::text, feed, value, created_at
		FROM feed_data
		WHERE feed = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var p FeedPoint
	err := r.db.QueryRowContext(ctx, query, feed).Scan(&p.ID, &p.Feed, &p.Value, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query latest feed data: %w", err)
	}
	return &p, nil
}

func (r *PostgresFeedRepository) List(ctx context.Context, feed string, limit int) ([]*FeedPoint, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id::text, feed, value, created_at
		FROM feed_data
		WHERE feed = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, feed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed data: %w", err)
	}
	defer rows.Close()

	points := make([]*FeedPoint, 0, limit)
	for rows.Next() {
		var p FeedPoint
		if err := rows.Scan(&p.ID, &p.Feed, &p.Value, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feed data: %w", err)
		}
		points = append(points, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feed data: %w", err)
	}
	return points, nil
}

// IsUnavailable 判断是否为数据库暂时不可用
// （连接异常、资源不足、管理员干预），调用方可按限流处理
func IsUnavailable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code.Class() {
	case "08", "53", "57":
		return true
	}
	return false
}
