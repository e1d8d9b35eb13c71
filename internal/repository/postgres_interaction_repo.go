package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/stumble/internal/model"
)

// PostgresInteractionRepo はPostgreSQLを使用したインタラクションリポジトリ。
// interactionsテーブルは追記専用であり、UPDATE/DELETEは発行しない。
type PostgresInteractionRepo struct {
	db *sql.DB
}

// NewPostgresInteractionRepo はPostgresInteractionRepoを生成する。
func NewPostgresInteractionRepo(db *sql.DB) *PostgresInteractionRepo {
	return &PostgresInteractionRepo{db: db}
}

// Create はインタラクションを記録する。
func (r *PostgresInteractionRepo) Create(ctx context.Context, interaction *model.Interaction) error {
	var duration sql.NullInt64
	if interaction.DurationSeconds != nil {
		duration = sql.NullInt64{Int64: int64(*interaction.DurationSeconds), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO interactions (id, user_id, content_id, action, duration_seconds, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		interaction.ID, interaction.UserID, interaction.ContentID,
		string(interaction.Action), duration, interaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("インタラクションの記録に失敗しました: %w", err)
	}
	return nil
}

// CountExcludedByUser はユーザーが一度でも接触したコンテンツの総数を返す。
func (r *PostgresInteractionRepo) CountExcludedByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT content_id) FROM interactions WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("除外コンテンツ数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// ListRecentWithContent はユーザーの直近インタラクションをコンテンツの
// トピック・ドメイン付きで新しい順に返す。嗜好プロファイルの構築に使用される。
func (r *PostgresInteractionRepo) ListRecentWithContent(ctx context.Context, userID string, limit int) ([]model.InteractionWithContent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT i.id, i.user_id, i.content_id, i.action, i.duration_seconds, i.created_at,
		        c.topics, c.domain
		 FROM interactions i
		 INNER JOIN contents c ON i.content_id = c.id
		 WHERE i.user_id = $1
		 ORDER BY i.created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("直近インタラクションの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var results []model.InteractionWithContent
	for rows.Next() {
		var iwc model.InteractionWithContent
		var action string
		var duration sql.NullInt64

		if err := rows.Scan(
			&iwc.ID, &iwc.UserID, &iwc.ContentID, &action, &duration, &iwc.CreatedAt,
			pq.Array(&iwc.Topics), &iwc.Domain,
		); err != nil {
			return nil, fmt.Errorf("直近インタラクション行の読み取りに失敗しました: %w", err)
		}

		iwc.Action = model.InteractionAction(action)
		if duration.Valid {
			d := int(duration.Int64)
			iwc.DurationSeconds = &d
		}

		results = append(results, iwc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("直近インタラクションの走査に失敗しました: %w", err)
	}

	return results, nil
}

// BatchGetEngagementStats は指定コンテンツ群の全ユーザー横断エンゲージメント
// 統計をまとめて取得する。N+1クエリを避けるため1回のクエリで取得し、
// 結果はcontent IDをキーとするマップで返す。
func (r *PostgresInteractionRepo) BatchGetEngagementStats(ctx context.Context, contentIDs []string) (map[string]model.EngagementStat, error) {
	stats := make(map[string]model.EngagementStat)
	if len(contentIDs) == 0 {
		return stats, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT content_id, AVG(duration_seconds)::float8, COUNT(duration_seconds)
		 FROM interactions
		 WHERE content_id = ANY($1::uuid[])
		   AND duration_seconds IS NOT NULL
		 GROUP BY content_id`,
		pq.Array(contentIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("エンゲージメント統計の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stat model.EngagementStat
		if err := rows.Scan(&stat.ContentID, &stat.AvgDurationSeconds, &stat.SampleCount); err != nil {
			return nil, fmt.Errorf("エンゲージメント統計行の読み取りに失敗しました: %w", err)
		}
		stats[stat.ContentID] = stat
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("エンゲージメント統計の走査に失敗しました: %w", err)
	}

	return stats, nil
}

// ListWindowStats は指定時刻以降のコンテンツごとの集計値を返す。
// viewはview_countに、それ以外のアクションはinteraction_countに計上される。
func (r *PostgresInteractionRepo) ListWindowStats(ctx context.Context, since time.Time) ([]model.WindowInteractionStat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT content_id,
		        COUNT(*) FILTER (WHERE action <> 'view') AS interaction_count,
		        COUNT(*) FILTER (WHERE action = 'view') AS view_count,
		        MAX(created_at) AS latest_at
		 FROM interactions
		 WHERE created_at >= $1
		 GROUP BY content_id`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("時間窓集計の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var stats []model.WindowInteractionStat
	for rows.Next() {
		var stat model.WindowInteractionStat
		if err := rows.Scan(&stat.ContentID, &stat.InteractionCount, &stat.ViewCount, &stat.LatestAt); err != nil {
			return nil, fmt.Errorf("時間窓集計行の読み取りに失敗しました: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("時間窓集計の走査に失敗しました: %w", err)
	}

	return stats, nil
}

// compile-time interface check
var _ InteractionRepository = (*PostgresInteractionRepo)(nil)
