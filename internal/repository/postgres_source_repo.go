package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/stumble/internal/model"
)

// PostgresSourceRepo はPostgreSQLを使用した取り込みソースリポジトリ。
type PostgresSourceRepo struct {
	db *sql.DB
}

// NewPostgresSourceRepo はPostgresSourceRepoを生成する。
func NewPostgresSourceRepo(db *sql.DB) *PostgresSourceRepo {
	return &PostgresSourceRepo{db: db}
}

const sourceColumns = `id, feed_url, site_url, title, default_topics, etag, last_modified,
	        fetch_status, consecutive_errors, error_message, next_fetch_at,
	        created_at, updated_at`

// scanSource は1行分のソースを読み取る。
func scanSource(scan func(dest ...interface{}) error) (*model.Source, error) {
	source := &model.Source{}
	var siteURL, title, etag, lastModified, errorMessage sql.NullString

	err := scan(
		&source.ID, &source.FeedURL, &siteURL, &title,
		pq.Array(&source.DefaultTopics), &etag, &lastModified,
		&source.FetchStatus, &source.ConsecutiveErrors, &errorMessage,
		&source.NextFetchAt, &source.CreatedAt, &source.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	source.SiteURL = nullStringValue(siteURL)
	source.Title = nullStringValue(title)
	source.ETag = nullStringValue(etag)
	source.LastModified = nullStringValue(lastModified)
	source.ErrorMessage = nullStringValue(errorMessage)

	return source, nil
}

// FindByFeedURL はフィードURLでソースを検索する。見つからない場合はnilを返す。
func (r *PostgresSourceRepo) FindByFeedURL(ctx context.Context, feedURL string) (*model.Source, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE feed_url = $1`,
		feedURL,
	)

	source, err := scanSource(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ソースの検索に失敗しました: %w", err)
	}
	return source, nil
}

// Create はソースを作成する。
func (r *PostgresSourceRepo) Create(ctx context.Context, source *model.Source) error {
	topics := source.DefaultTopics
	if topics == nil {
		topics = []string{}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sources (id, feed_url, site_url, title, default_topics, next_fetch_at)
		 VALUES ($1, $2, $3, $4, $5, now())`,
		source.ID, source.FeedURL, nullString(source.SiteURL),
		nullString(source.Title), pq.Array(topics),
	)
	if err != nil {
		return fmt.Errorf("ソースの作成に失敗しました: %w", err)
	}
	return nil
}

// ListDueForFetch はフェッチ対象のソースを取得する。
// next_fetch_at <= now() かつ fetch_status = 'active' のソースを
// FOR UPDATE SKIP LOCKEDで排他的に取得する。
func (r *PostgresSourceRepo) ListDueForFetch(ctx context.Context) ([]*model.Source, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sourceColumns+`
		 FROM sources
		 WHERE next_fetch_at <= now()
		   AND fetch_status = 'active'
		 ORDER BY next_fetch_at ASC
		 FOR UPDATE SKIP LOCKED`,
	)
	if err != nil {
		return nil, fmt.Errorf("フェッチ対象ソースの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sources []*model.Source
	for rows.Next() {
		source, err := scanSource(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("フェッチ対象ソースの読み取りに失敗しました: %w", err)
		}
		sources = append(sources, source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フェッチ対象ソースの走査に失敗しました: %w", err)
	}

	return sources, nil
}

// UpdateFetchState はソースのフェッチ状態を更新する。
func (r *PostgresSourceRepo) UpdateFetchState(ctx context.Context, source *model.Source) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET
		    fetch_status = $2,
		    consecutive_errors = $3,
		    error_message = $4,
		    next_fetch_at = $5,
		    etag = $6,
		    last_modified = $7,
		    title = $8,
		    updated_at = now()
		 WHERE id = $1`,
		source.ID,
		source.FetchStatus,
		source.ConsecutiveErrors,
		nullString(source.ErrorMessage),
		source.NextFetchAt,
		nullString(source.ETag),
		nullString(source.LastModified),
		nullString(source.Title),
	)
	if err != nil {
		return fmt.Errorf("フェッチ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SourceRepository = (*PostgresSourceRepo)(nil)
