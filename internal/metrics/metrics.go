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
// サービス層・ワーカーから利用する。
type MetricsCollector interface {
	RecordKitClaimSuccess()
	RecordKitClaimConflict()
	RecordEntryMutation(operation string)
	RecordPhotoUpload()
	RecordScoreRecompute()
	RecordChatLatency(duration time.Duration)
	RecordChatFailure()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	kitClaimSuccess  prometheus.Counter
	kitClaimConflict prometheus.Counter
	entryMutations   *prometheus.CounterVec
	photoUploads     prometheus.Counter
	scoreRecomputes  prometheus.Counter
	chatLatency      prometheus.Histogram
	chatFailures     prometheus.Counter
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		kitClaimSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cultivadatos_kit_claim_success_total",
			Help: "キットコード紐付け成功の合計数",
		}),
		kitClaimConflict: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cultivadatos_kit_claim_conflict_total",
			Help: "使用済みキットコードによる紐付け失敗の合計数",
		}),
		entryMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cultivadatos_entry_mutations_total",
			Help: "実験記録の作成・更新・削除の操作別合計数",
		}, []string{"operation"}),
		photoUploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cultivadatos_photo_uploads_total",
			Help: "アップロードされた写真の合計数",
		}),
		scoreRecomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cultivadatos_score_recomputes_total",
			Help: "スコア再計算の合計数",
		}),
		chatLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cultivadatos_chat_latency_seconds",
			Help:    "アシスタントAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		chatFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cultivadatos_chat_failures_total",
			Help: "アシスタントAPI呼び出し失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cultivadatos_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.kitClaimSuccess,
		c.kitClaimConflict,
		c.entryMutations,
		c.photoUploads,
		c.scoreRecomputes,
		c.chatLatency,
		c.chatFailures,
		c.httpStatus,
	)

	return c
}

// RecordKitClaimSuccess はキット紐付け成功を記録する。
func (c *Collector) RecordKitClaimSuccess() {
	c.kitClaimSuccess.Inc()
}

// RecordKitClaimConflict は使用済みコードによる紐付け失敗を記録する。
func (c *Collector) RecordKitClaimConflict() {
	c.kitClaimConflict.Inc()
}

// RecordEntryMutation は実験記録への操作（create/update/delete）を記録する。
func (c *Collector) RecordEntryMutation(operation string) {
	c.entryMutations.WithLabelValues(operation).Inc()
}

// RecordPhotoUpload は写真アップロードを記録する。
func (c *Collector) RecordPhotoUpload() {
	c.photoUploads.Inc()
}

// RecordScoreRecompute はスコア再計算を記録する。
func (c *Collector) RecordScoreRecompute() {
	c.scoreRecomputes.Inc()
}

// RecordChatLatency はアシスタントAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordChatLatency(duration time.Duration) {
	c.chatLatency.Observe(duration.Seconds())
}

// RecordChatFailure はアシスタントAPI呼び出し失敗を記録する。
func (c *Collector) RecordChatFailure() {
	c.chatFailures.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
