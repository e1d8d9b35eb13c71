// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とワーカーから利用する。
type MetricsCollector interface {
	RecordDiscovery(explored bool)
	RecordDiscoveryLatency(duration time.Duration)
	RecordPoolSize(size int)
	RecordPoolExhaustion()
	RecordEmptyPool()
	RecordInteraction(action string)
	RecordTrendingRun(success bool)
	RecordIngestedContents(count int)
	RecordIngestFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	discoveryTotal   *prometheus.CounterVec
	discoveryLatency prometheus.Histogram
	poolSize         prometheus.Histogram
	poolExhaustion   prometheus.Counter
	emptyPool        prometheus.Counter
	interactions     *prometheus.CounterVec
	trendingRuns     *prometheus.CounterVec
	ingestedContents prometheus.Counter
	ingestFailures   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		discoveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stumble_discovery_total",
			Help: "配信した発見リクエストの合計数（探索/活用別）",
		}, []string{"mode"}),
		discoveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stumble_discovery_latency_seconds",
			Help:    "発見リクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		poolSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stumble_pool_size",
			Help:    "構築された候補プールのサイズ分布",
			Buckets: []float64{0, 50, 100, 250, 500, 750, 1000, 1500},
		}),
		poolExhaustion: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stumble_pool_exhaustion_total",
			Help: "候補プール枯渇警告の合計数",
		}),
		emptyPool: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stumble_empty_pool_total",
			Help: "候補プールが空でエラーになったリクエストの合計数",
		}),
		interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stumble_interactions_total",
			Help: "記録されたインタラクションの合計数（アクション別）",
		}, []string{"action"}),
		trendingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stumble_trending_runs_total",
			Help: "トレンド計算ジョブの実行回数（成否別）",
		}, []string{"result"}),
		ingestedContents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stumble_ingested_contents_total",
			Help: "フィード取り込みで保存されたコンテンツの合計数",
		}),
		ingestFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stumble_ingest_failures_total",
			Help: "フィード取り込み失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.discoveryTotal,
		c.discoveryLatency,
		c.poolSize,
		c.poolExhaustion,
		c.emptyPool,
		c.interactions,
		c.trendingRuns,
		c.ingestedContents,
		c.ingestFailures,
	)

	return c
}

// RecordDiscovery は発見1件の配信を記録する。
func (c *Collector) RecordDiscovery(explored bool) {
	mode := "exploit"
	if explored {
		mode = "explore"
	}
	c.discoveryTotal.WithLabelValues(mode).Inc()
}

// RecordDiscoveryLatency は発見リクエストのレイテンシを記録する。
func (c *Collector) RecordDiscoveryLatency(duration time.Duration) {
	c.discoveryLatency.Observe(duration.Seconds())
}

// RecordPoolSize は構築されたプールサイズを記録する。
func (c *Collector) RecordPoolSize(size int) {
	c.poolSize.Observe(float64(size))
}

// RecordPoolExhaustion はプール枯渇警告を記録する。
func (c *Collector) RecordPoolExhaustion() {
	c.poolExhaustion.Inc()
}

// RecordEmptyPool は空プールエラーを記録する。
func (c *Collector) RecordEmptyPool() {
	c.emptyPool.Inc()
}

// RecordInteraction はインタラクション記録を記録する。
func (c *Collector) RecordInteraction(action string) {
	c.interactions.WithLabelValues(action).Inc()
}

// RecordTrendingRun はトレンド計算ジョブの実行を記録する。
func (c *Collector) RecordTrendingRun(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.trendingRuns.WithLabelValues(result).Inc()
}

// RecordIngestedContents は取り込みで保存されたコンテンツ数を記録する。
func (c *Collector) RecordIngestedContents(count int) {
	c.ingestedContents.Add(float64(count))
}

// RecordIngestFailure は取り込み失敗を記録する。
func (c *Collector) RecordIngestFailure() {
	c.ingestFailures.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
