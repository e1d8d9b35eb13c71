package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/stumble/internal/model"
)

// PostgresContentRepo はPostgreSQLを使用したコンテンツリポジトリ。
type PostgresContentRepo struct {
	db *sql.DB
}

// NewPostgresContentRepo はPostgresContentRepoを生成する。
func NewPostgresContentRepo(db *sql.DB) *PostgresContentRepo {
	return &PostgresContentRepo{db: db}
}

// contentColumns はcontentsテーブルのSELECT対象カラム。
const contentColumns = `id, url, domain, title, description, topics, quality_score,
	        published_at, view_count, like_count, save_count,
	        image_url, favicon_url, is_active, created_at, updated_at`

// scanContent は1行分のコンテンツを読み取る。
func scanContent(scan func(dest ...interface{}) error) (*model.Content, error) {
	c := &model.Content{}
	var publishedAt sql.NullTime
	var description, imageURL, faviconURL sql.NullString

	err := scan(
		&c.ID, &c.URL, &c.Domain, &c.Title, &description,
		pq.Array(&c.Topics), &c.QualityScore,
		&publishedAt, &c.ViewCount, &c.LikeCount, &c.SaveCount,
		&imageURL, &faviconURL, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Description = nullStringValue(description)
	c.ImageURL = nullStringValue(imageURL)
	c.FaviconURL = nullStringValue(faviconURL)
	if publishedAt.Valid {
		c.PublishedAt = &publishedAt.Time
	}

	return c, nil
}

// FindByID は指定IDのコンテンツを取得する。見つからない場合はnilを返す。
func (r *PostgresContentRepo) FindByID(ctx context.Context, id string) (*model.Content, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE id = $1`,
		id,
	)

	c, err := scanContent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
	}
	return c, nil
}

// FindByURL はURLでコンテンツを検索する。見つからない場合はnilを返す。
func (r *PostgresContentRepo) FindByURL(ctx context.Context, url string) (*model.Content, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE url = $1`,
		url,
	)

	c, err := scanContent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("URLによるコンテンツの検索に失敗しました: %w", err)
	}
	return c, nil
}

// QueryCandidates は候補プールを取得する。
// ユーザーの全接触履歴・除外ID・ブロックドメインがハードゲートであり、
// 優先トピックによる絞り込みは行わない（プールが空になるのを防ぐ）。
// 接触履歴の除外はinteractionsへの反結合で行うため、履歴が何件あっても
// フィルタが欠けることはない。ソート戦略はenumで検証済みの値のみを
// ORDER BY句に展開する。
func (r *PostgresContentRepo) QueryCandidates(ctx context.Context, q model.CandidateQuery) ([]model.Content, error) {
	orderBy, err := orderByClause(q.Sort)
	if err != nil {
		return nil, err
	}

	// 空スライスでもANY($n)が有効になるよう、nilは空配列に正規化する
	excludeIDs := q.ExcludeIDs
	if excludeIDs == nil {
		excludeIDs = []string{}
	}
	blockedDomains := q.BlockedDomains
	if blockedDomains == nil {
		blockedDomains = []string{}
	}

	query := `SELECT ` + contentColumns + `
	 FROM contents
	 WHERE is_active
	   AND NOT EXISTS (
	         SELECT 1 FROM interactions i
	         WHERE i.user_id = $1 AND i.content_id = contents.id
	       )
	   AND NOT (id = ANY($2::uuid[]))
	   AND NOT (domain = ANY($3::text[]))
	 ORDER BY ` + orderBy + `
	 LIMIT $4`

	rows, err := r.db.QueryContext(ctx, query,
		q.UserID, pq.Array(excludeIDs), pq.Array(blockedDomains), q.PoolSize,
	)
	if err != nil {
		return nil, fmt.Errorf("候補プールの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var contents []model.Content
	for rows.Next() {
		c, err := scanContent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("候補行の読み取りに失敗しました: %w", err)
		}
		contents = append(contents, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("候補プールの走査に失敗しました: %w", err)
	}

	return contents, nil
}

// orderByClause はソート戦略をORDER BY句に変換する。
// enumにない値はエラーにする（SQLインジェクション防止のため文字列連結は検証済み値のみ）。
func orderByClause(sort model.SortStrategy) (string, error) {
	switch sort {
	case model.SortByRecency:
		return "created_at DESC", nil
	case model.SortByQuality:
		return "quality_score DESC, created_at DESC", nil
	case model.SortByPopularity:
		return "(view_count + like_count + save_count) DESC, created_at DESC", nil
	case model.SortByFreshness:
		return "published_at DESC NULLS LAST, created_at DESC", nil
	default:
		return "", fmt.Errorf("未知のソート戦略です: %s", sort)
	}
}

// ListByTopicOverlap は指定トピック集合と重なりのあるアクティブなコンテンツを取得する。
func (r *PostgresContentRepo) ListByTopicOverlap(ctx context.Context, topics []string, excludeID string, limit int) ([]model.Content, error) {
	if topics == nil {
		topics = []string{}
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+contentColumns+`
		 FROM contents
		 WHERE is_active
		   AND topics && $1::text[]
		   AND id <> $2
		 ORDER BY quality_score DESC, created_at DESC
		 LIMIT $3`,
		pq.Array(topics), excludeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("トピック重複によるコンテンツの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var contents []model.Content
	for rows.Next() {
		c, err := scanContent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("トピック重複行の読み取りに失敗しました: %w", err)
		}
		contents = append(contents, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("トピック重複コンテンツの走査に失敗しました: %w", err)
	}

	return contents, nil
}

// Create は新規コンテンツを作成する。
func (r *PostgresContentRepo) Create(ctx context.Context, content *model.Content) error {
	topics := content.Topics
	if topics == nil {
		topics = []string{}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO contents (id, url, domain, title, description, topics, quality_score,
		                       published_at, view_count, like_count, save_count,
		                       image_url, favicon_url, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		content.ID, content.URL, content.Domain, content.Title,
		nullString(content.Description), pq.Array(topics), content.QualityScore,
		content.PublishedAt, content.ViewCount, content.LikeCount, content.SaveCount,
		nullString(content.ImageURL), nullString(content.FaviconURL),
		content.IsActive, content.CreatedAt, content.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("コンテンツの作成に失敗しました: %w", err)
	}
	return nil
}

// ApplyInteraction はアクションに応じて人気カウンタを加算する。
// view/like/save以外のアクションはカウンタに対応しないため何もしない。
func (r *PostgresContentRepo) ApplyInteraction(ctx context.Context, contentID string, action model.InteractionAction) error {
	var column string
	switch action {
	case model.ActionView:
		column = "view_count"
	case model.ActionLike:
		column = "like_count"
	case model.ActionSave:
		column = "save_count"
	default:
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE contents SET `+column+` = `+column+` + 1, updated_at = now() WHERE id = $1`,
		contentID,
	)
	if err != nil {
		return fmt.Errorf("人気カウンタの更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ContentRepository = (*PostgresContentRepo)(nil)
