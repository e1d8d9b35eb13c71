package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/stumble/internal/model"
)

// PostgresTrendingRepo はPostgreSQLを使用したトレンドキャッシュリポジトリ。
type PostgresTrendingRepo struct {
	db *sql.DB
}

// NewPostgresTrendingRepo はPostgresTrendingRepoを生成する。
func NewPostgresTrendingRepo(db *sql.DB) *PostgresTrendingRepo {
	return &PostgresTrendingRepo{db: db}
}

// ReplaceWindow は指定窓のスナップショットを単一トランザクションで置き換える。
// DELETEとINSERTを同一トランザクションで行うため、読み取り側は
// 置換前または置換後のいずれか完全な状態のみを観測する。
func (r *PostgresTrendingRepo) ReplaceWindow(ctx context.Context, window model.TrendingWindow, entries []model.TrendingEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM trending_entries WHERE time_window = $1`, string(window),
	); err != nil {
		return fmt.Errorf("トレンドエントリの削除に失敗しました: %w", err)
	}

	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trending_entries (content_id, time_window, score, computed_at)
			 VALUES ($1, $2, $3, $4)`,
			entry.ContentID, string(window), entry.Score, entry.ComputedAt,
		); err != nil {
			return fmt.Errorf("トレンドエントリの挿入に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// ListByWindow は指定窓の上位エントリをスコア降順でコンテンツ付きで返す。
func (r *PostgresTrendingRepo) ListByWindow(ctx context.Context, window model.TrendingWindow, limit int) ([]model.TrendingEntryWithContent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.content_id, t.time_window, t.score, t.computed_at,
		        c.id, c.url, c.domain, c.title, c.description, c.topics, c.quality_score,
		        c.published_at, c.view_count, c.like_count, c.save_count,
		        c.image_url, c.favicon_url, c.is_active, c.created_at, c.updated_at
		 FROM trending_entries t
		 JOIN contents c ON c.id = t.content_id
		 WHERE t.time_window = $1 AND c.is_active = true
		 ORDER BY t.score DESC
		 LIMIT $2`,
		string(window), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("トレンドエントリの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []model.TrendingEntryWithContent
	for rows.Next() {
		var e model.TrendingEntryWithContent
		var publishedAt sql.NullTime
		var description, imageURL, faviconURL sql.NullString
		if err := rows.Scan(
			&e.ContentID, &e.Window, &e.Score, &e.ComputedAt,
			&e.Content.ID, &e.Content.URL, &e.Content.Domain, &e.Content.Title,
			&description, pq.Array(&e.Content.Topics), &e.Content.QualityScore,
			&publishedAt, &e.Content.ViewCount, &e.Content.LikeCount, &e.Content.SaveCount,
			&imageURL, &faviconURL, &e.Content.IsActive,
			&e.Content.CreatedAt, &e.Content.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("トレンドエントリのスキャンに失敗しました: %w", err)
		}
		e.Content.Description = nullStringValue(description)
		e.Content.ImageURL = nullStringValue(imageURL)
		e.Content.FaviconURL = nullStringValue(faviconURL)
		if publishedAt.Valid {
			t := publishedAt.Time
			e.Content.PublishedAt = &t
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("トレンドエントリの読み取りに失敗しました: %w", err)
	}

	return result, nil
}

// BatchGetScores は指定窓・指定コンテンツ群のトレンドスコアをまとめて返す。
// エントリのないIDは結果マップに含まれない。
func (r *PostgresTrendingRepo) BatchGetScores(ctx context.Context, window model.TrendingWindow, contentIDs []string) (map[string]float64, error) {
	result := make(map[string]float64)
	if len(contentIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT content_id, score
		 FROM trending_entries
		 WHERE time_window = $1 AND content_id = ANY($2::uuid[])`,
		string(window), pq.Array(contentIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("トレンドスコアの一括取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var contentID string
		var score float64
		if err := rows.Scan(&contentID, &score); err != nil {
			return nil, fmt.Errorf("トレンドスコアのスキャンに失敗しました: %w", err)
		}
		result[contentID] = score
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("トレンドスコアの読み取りに失敗しました: %w", err)
	}

	return result, nil
}

// DeleteOlderThan は計算時刻がcutoffより古いエントリを削除し、削除件数を返す。
func (r *PostgresTrendingRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM trending_entries WHERE computed_at < $1`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("古いトレンドエントリの削除に失敗しました: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ TrendingRepository = (*PostgresTrendingRepo)(nil)
