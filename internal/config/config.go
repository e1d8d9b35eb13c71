// Package config は環境変数ベースのアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string

	// Logging
	LogLevel string

	// CORS
	CORSAllowedOrigin string

	// Rate Limit
	RateLimitGeneral int // API全般のレート（req/min/user）
	RateLimitSubmit  int // コンテンツ投稿のレート（req/min/user）

	// Candidate Pool
	PoolBaseSize        int     // 基本プールサイズ P0
	PoolMaxSize         int     // プールサイズの上限
	PoolFloor           int     // これを下回ると枯渇警告を出す閾値
	PoolGrowthPerExcess float64 // 超過除外1件あたりのプール拡大係数
	ExclusionFilterMax  int     // ストアに渡すセッション除外IDの上限（永続履歴はストア側結合で無制限に除外）
	RotationWindow      time.Duration

	// Scoring
	FreshnessHalfLifeDays      float64
	BaseScorePriorCount        float64 // Bayesianスムージングの擬似カウント
	EngagementMinSamples       int     // これ未満のサンプル数では完全に中立
	EngagementFullSamples      int     // このサンプル数で信頼度が最大になる
	EngagementReferenceSeconds float64 // 中立とみなす平均エンゲージメント秒数

	// Selection
	EpsilonLow     float64 // wildness 0-20 の探索確率
	EpsilonMid     float64 // wildness 21-60 の探索確率
	EpsilonHighMax float64 // wildness 100 時点の探索確率
	SliceLow       int     // 低wildnessの選択スライス幅
	SliceMid       int     // 中wildnessの選択スライス幅
	SliceHighMin   int     // 高wildnessの選択スライス幅の下限

	// Personalization
	HistoryWindow int // 分析対象とする直近インタラクション数

	// Trending
	TrendingInterval     time.Duration
	TrendingTopN         int
	TrendingHourHalfLife time.Duration
	TrendingDayHalfLife  time.Duration
	TrendingWeekHalfLife time.Duration
	TrendingRetention    time.Duration // 古いスナップショットの保持期間

	// Ingest
	IngestInterval      time.Duration
	IngestTimeout       time.Duration
	IngestMaxSize       int64
	IngestMaxConcurrent int
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSubmit = getEnvInt("RATE_LIMIT_SUBMIT", 10)

	// プールサイズの既定値は運用調整の結果。POOL_GROWTH_PER_EXCESS は
	// 除外数がPOOL_BASE_SIZE/2を超えた分1件あたりの拡大量。
	cfg.PoolBaseSize = getEnvInt("POOL_BASE_SIZE", 500)
	cfg.PoolMaxSize = getEnvInt("POOL_MAX_SIZE", 1500)
	cfg.PoolFloor = getEnvInt("POOL_FLOOR", 100)
	cfg.PoolGrowthPerExcess = getEnvFloat("POOL_GROWTH_PER_EXCESS", 0.5)
	cfg.ExclusionFilterMax = getEnvInt("EXCLUSION_FILTER_MAX", 1000)
	cfg.RotationWindow = getEnvDuration("ROTATION_WINDOW", 15*time.Minute)

	cfg.FreshnessHalfLifeDays = getEnvFloat("FRESHNESS_HALF_LIFE_DAYS", 7.0)
	cfg.BaseScorePriorCount = getEnvFloat("BASE_SCORE_PRIOR_COUNT", 5.0)
	cfg.EngagementMinSamples = getEnvInt("ENGAGEMENT_MIN_SAMPLES", 3)
	cfg.EngagementFullSamples = getEnvInt("ENGAGEMENT_FULL_SAMPLES", 20)
	cfg.EngagementReferenceSeconds = getEnvFloat("ENGAGEMENT_REFERENCE_SECONDS", 60.0)

	cfg.EpsilonLow = getEnvFloat("EPSILON_LOW", 0.02)
	cfg.EpsilonMid = getEnvFloat("EPSILON_MID", 0.08)
	cfg.EpsilonHighMax = getEnvFloat("EPSILON_HIGH_MAX", 0.20)
	cfg.SliceLow = getEnvInt("SLICE_LOW", 3)
	cfg.SliceMid = getEnvInt("SLICE_MID", 10)
	cfg.SliceHighMin = getEnvInt("SLICE_HIGH_MIN", 25)

	cfg.HistoryWindow = getEnvInt("HISTORY_WINDOW", 100)

	cfg.TrendingInterval = getEnvDuration("TRENDING_INTERVAL", 15*time.Minute)
	cfg.TrendingTopN = getEnvInt("TRENDING_TOP_N", 100)
	cfg.TrendingHourHalfLife = getEnvDuration("TRENDING_HOUR_HALF_LIFE", 30*time.Minute)
	cfg.TrendingDayHalfLife = getEnvDuration("TRENDING_DAY_HALF_LIFE", 6*time.Hour)
	cfg.TrendingWeekHalfLife = getEnvDuration("TRENDING_WEEK_HALF_LIFE", 48*time.Hour)
	cfg.TrendingRetention = getEnvDuration("TRENDING_RETENTION", 7*24*time.Hour)

	cfg.IngestInterval = getEnvDuration("INGEST_INTERVAL", 10*time.Minute)
	cfg.IngestTimeout = getEnvDuration("INGEST_TIMEOUT", 10*time.Second)
	cfg.IngestMaxSize = getEnvInt64("INGEST_MAX_SIZE", 5242880)
	cfg.IngestMaxConcurrent = getEnvInt("INGEST_MAX_CONCURRENT", 5)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
