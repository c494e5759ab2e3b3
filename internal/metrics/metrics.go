// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 同期サービス層から利用する。
type MetricsCollector interface {
	RecordSyncSuccess()
	RecordSyncFailure()
	RecordSyncDuration(d time.Duration)
	RecordRecordsUpserted(count int)
	RecordRecordsDeleted(count int)
	RecordRecordFailures(count int)
	RecordAssetOutcome(status string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncSuccess    prometheus.Counter
	syncFail       prometheus.Counter
	syncDuration   prometheus.Histogram
	recordsUpsert  prometheus.Counter
	recordsDelete  prometheus.Counter
	recordFailures prometheus.Counter
	assetOutcomes  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "animirror_sync_success_total",
			Help: "同期成功の合計数",
		}),
		syncFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "animirror_sync_fail_total",
			Help: "同期失敗（中断）の合計数",
		}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "animirror_sync_duration_seconds",
			Help:    "1回の同期にかかった時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		recordsUpsert: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "animirror_records_upserted_total",
			Help: "アップサートされたレコードの合計数",
		}),
		recordsDelete: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "animirror_records_deleted_total",
			Help: "削除されたエントリの合計数",
		}),
		recordFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "animirror_record_failures_total",
			Help: "スキップされたレコード単位の失敗の合計数",
		}),
		assetOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "animirror_asset_outcomes_total",
			Help: "画像キャッシュ処理の結果別の合計数",
		}, []string{"status"}),
	}

	reg.MustRegister(
		c.syncSuccess,
		c.syncFail,
		c.syncDuration,
		c.recordsUpsert,
		c.recordsDelete,
		c.recordFailures,
		c.assetOutcomes,
	)

	return c
}

// RecordSyncSuccess は同期成功を記録する。
func (c *Collector) RecordSyncSuccess() {
	c.syncSuccess.Inc()
}

// RecordSyncFailure は同期失敗を記録する。
func (c *Collector) RecordSyncFailure() {
	c.syncFail.Inc()
}

// RecordSyncDuration は同期の所要時間を記録する。
func (c *Collector) RecordSyncDuration(d time.Duration) {
	c.syncDuration.Observe(d.Seconds())
}

// RecordRecordsUpserted はアップサートされたレコード数を記録する。
func (c *Collector) RecordRecordsUpserted(count int) {
	c.recordsUpsert.Add(float64(count))
}

// RecordRecordsDeleted は削除されたエントリ数を記録する。
func (c *Collector) RecordRecordsDeleted(count int) {
	c.recordsDelete.Add(float64(count))
}

// RecordRecordFailures はスキップされたレコード失敗数を記録する。
func (c *Collector) RecordRecordFailures(count int) {
	c.recordFailures.Add(float64(count))
}

// RecordAssetOutcome は画像キャッシュ処理の結果を記録する。
func (c *Collector) RecordAssetOutcome(status string) {
	c.assetOutcomes.WithLabelValues(status).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
