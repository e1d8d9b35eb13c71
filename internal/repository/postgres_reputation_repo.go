package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/stumble/internal/model"
)

// PostgresReputationRepo はPostgreSQLを使用したドメイン評価リポジトリ。
type PostgresReputationRepo struct {
	db *sql.DB
}

// NewPostgresReputationRepo はPostgresReputationRepoを生成する。
func NewPostgresReputationRepo(db *sql.DB) *PostgresReputationRepo {
	return &PostgresReputationRepo{db: db}
}

// BatchGetByDomains は複数ドメインの信頼情報を一括取得する。
// 未登録ドメインは結果マップに含まれない。
func (r *PostgresReputationRepo) BatchGetByDomains(ctx context.Context, domains []string) (map[string]model.DomainReputation, error) {
	result := make(map[string]model.DomainReputation)
	if len(domains) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT domain, trust_score, approved_count, rejected_count, is_blacklisted, updated_at
		 FROM domain_reputations
		 WHERE domain = ANY($1::text[])`,
		pq.Array(domains),
	)
	if err != nil {
		return nil, fmt.Errorf("ドメイン評価の一括取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rep model.DomainReputation
		if err := rows.Scan(
			&rep.Domain, &rep.TrustScore, &rep.ApprovedCount,
			&rep.RejectedCount, &rep.IsBlacklisted, &rep.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ドメイン評価のスキャンに失敗しました: %w", err)
		}
		result[rep.Domain] = rep
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ドメイン評価の読み取りに失敗しました: %w", err)
	}

	return result, nil
}

// compile-time interface check
var _ ReputationRepository = (*PostgresReputationRepo)(nil)
