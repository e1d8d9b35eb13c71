package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/stumble/internal/model"
)

// PostgresPreferenceRepo はPostgreSQLを使用したユーザー設定リポジトリ。
type PostgresPreferenceRepo struct {
	db *sql.DB
}

// NewPostgresPreferenceRepo はPostgresPreferenceRepoを生成する。
func NewPostgresPreferenceRepo(db *sql.DB) *PostgresPreferenceRepo {
	return &PostgresPreferenceRepo{db: db}
}

// FindByUserID は指定ユーザーの設定を取得する。未登録の場合はnilを返す。
func (r *PostgresPreferenceRepo) FindByUserID(ctx context.Context, userID string) (*model.Preference, error) {
	pref := &model.Preference{}

	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, topics, wildness, blocked_domains, updated_at
		 FROM preferences WHERE user_id = $1`,
		userID,
	).Scan(
		&pref.UserID, pq.Array(&pref.Topics), &pref.Wildness,
		pq.Array(&pref.BlockedDomains), &pref.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザー設定の取得に失敗しました: %w", err)
	}

	return pref, nil
}

// Upsert は設定を冪等に作成・更新する。
func (r *PostgresPreferenceRepo) Upsert(ctx context.Context, pref *model.Preference) error {
	topics := pref.Topics
	if topics == nil {
		topics = []string{}
	}
	blockedDomains := pref.BlockedDomains
	if blockedDomains == nil {
		blockedDomains = []string{}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO preferences (user_id, topics, wildness, blocked_domains, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id) DO UPDATE SET
		    topics = EXCLUDED.topics,
		    wildness = EXCLUDED.wildness,
		    blocked_domains = EXCLUDED.blocked_domains,
		    updated_at = now()`,
		pref.UserID, pq.Array(topics), pref.Wildness, pq.Array(blockedDomains),
	)
	if err != nil {
		return fmt.Errorf("ユーザー設定の保存に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PreferenceRepository = (*PostgresPreferenceRepo)(nil)
