// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// フェッチワーカーと分類オーケストレーターから利用する。
type MetricsCollector interface {
	RecordFetchPage(taskType string)
	RecordFetchFailure(taskType string)
	RecordHTTPStatus(statusCode int)
	RecordVideosUpserted(count int)
	RecordCommentsUpserted(count int)
	RecordClassification(method string, isCollab bool)
	RecordClassificationFailure()
	RecordCacheLookup(hit bool)
	RecordReasoningLatency(duration time.Duration)
	RecordAggregateRun(partners int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchPages       *prometheus.CounterVec
	fetchFail        *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	videosUpserted   prometheus.Counter
	commentsUpserted prometheus.Counter
	classifications  *prometheus.CounterVec
	classifyFail     prometheus.Counter
	cacheLookups     *prometheus.CounterVec
	reasoningLatency prometheus.Histogram
	aggregateRuns    prometheus.Counter
	aggregatePartner prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collab_fetch_pages_total",
			Help: "フェッチ完了ページのタスク種別ごとの合計数",
		}, []string{"task_type"}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collab_fetch_fail_total",
			Help: "フェッチ失敗のタスク種別ごとの合計数",
		}, []string{"task_type"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collab_http_status_total",
			Help: "外部APIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		videosUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collab_videos_upserted_total",
			Help: "アップサートされた動画の合計数",
		}),
		commentsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collab_comments_upserted_total",
			Help: "アップサートされたコメントの合計数",
		}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collab_classifications_total",
			Help: "確定した分類の手段・結果別の合計数",
		}, []string{"method", "is_collab"}),
		classifyFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collab_classify_fail_total",
			Help: "分類に失敗した動画の合計数",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collab_cache_lookups_total",
			Help: "決定キャッシュ参照のヒット・ミス別合計数",
		}, []string{"result"}),
		reasoningLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "collab_reasoning_latency_seconds",
			Help:    "外部推論サービス呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		aggregateRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collab_aggregate_runs_total",
			Help: "集計処理の実行回数",
		}),
		aggregatePartner: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collab_aggregate_partners",
			Help: "直近の集計実行で生成されたパートナー集計行数",
		}),
	}

	reg.MustRegister(
		c.fetchPages,
		c.fetchFail,
		c.httpStatus,
		c.videosUpserted,
		c.commentsUpserted,
		c.classifications,
		c.classifyFail,
		c.cacheLookups,
		c.reasoningLatency,
		c.aggregateRuns,
		c.aggregatePartner,
	)

	return c
}

// RecordFetchPage はページフェッチの完了を記録する。
func (c *Collector) RecordFetchPage(taskType string) {
	c.fetchPages.WithLabelValues(taskType).Inc()
}

// RecordFetchFailure はフェッチ失敗を記録する。
func (c *Collector) RecordFetchFailure(taskType string) {
	c.fetchFail.WithLabelValues(taskType).Inc()
}

// RecordHTTPStatus は外部APIのHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordVideosUpserted はアップサートされた動画数を記録する。
func (c *Collector) RecordVideosUpserted(count int) {
	c.videosUpserted.Add(float64(count))
}

// RecordCommentsUpserted はアップサートされたコメント数を記録する。
func (c *Collector) RecordCommentsUpserted(count int) {
	c.commentsUpserted.Add(float64(count))
}

// RecordClassification は確定した分類を記録する。
func (c *Collector) RecordClassification(method string, isCollab bool) {
	c.classifications.WithLabelValues(method, strconv.FormatBool(isCollab)).Inc()
}

// RecordClassificationFailure は分類失敗を記録する。
func (c *Collector) RecordClassificationFailure() {
	c.classifyFail.Inc()
}

// RecordCacheLookup は決定キャッシュ参照の結果を記録する。
func (c *Collector) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// RecordReasoningLatency は外部推論サービス呼び出しのレイテンシを記録する。
func (c *Collector) RecordReasoningLatency(duration time.Duration) {
	c.reasoningLatency.Observe(duration.Seconds())
}

// RecordAggregateRun は集計実行の完了と生成行数を記録する。
func (c *Collector) RecordAggregateRun(partners int) {
	c.aggregateRuns.Inc()
	c.aggregatePartner.Set(float64(partners))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないコレクター。メトリクス公開が不要な
// 単発CLI実行で使う。
type Nop struct{}

func (Nop) RecordFetchPage(string)               {}
func (Nop) RecordFetchFailure(string)            {}
func (Nop) RecordHTTPStatus(int)                 {}
func (Nop) RecordVideosUpserted(int)             {}
func (Nop) RecordCommentsUpserted(int)           {}
func (Nop) RecordClassification(string, bool)    {}
func (Nop) RecordClassificationFailure()         {}
func (Nop) RecordCacheLookup(bool)               {}
func (Nop) RecordReasoningLatency(time.Duration) {}
func (Nop) RecordAggregateRun(int)               {}
