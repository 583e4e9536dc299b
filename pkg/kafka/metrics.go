package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type clientMetrics struct {
	published *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	publish   *prometheus.HistogramVec
	queued    *prometheus.GaugeVec
	handled   *prometheus.CounterVec
	handle    *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	km          *clientMetrics
)

// kafkaMetrics registers the client collectors on first use.
func kafkaMetrics() *clientMetrics {
	metricsOnce.Do(func() {
		m := &clientMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "signalfuse_kafka_producer_messages_total",
				Help: "Messages written to kafka by result",
			}, []string{"topic", "result"}),
			bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "signalfuse_kafka_producer_bytes_total",
				Help: "Payload bytes written to kafka",
			}, []string{"topic", "compression"}),
			publish: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "signalfuse_kafka_producer_publish_seconds",
				Help:    "Latency of one WriteMessages call",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
			queued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "signalfuse_kafka_consumer_queue_depth",
				Help: "Fetched messages waiting for a worker",
			}, []string{"topic"}),
			handled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "signalfuse_kafka_consumer_messages_total",
				Help: "Consumed messages by outcome",
			}, []string{"topic", "outcome"}),
			handle: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "signalfuse_kafka_consumer_handle_seconds",
				Help:    "Handling time per message including retries",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
		}
		prometheus.MustRegister(m.published, m.bytes, m.publish, m.queued, m.handled, m.handle)
		km = m
	})
	return km
}

func (m *clientMetrics) observePublish(topic, codec string, n int, bytes int64, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.published.WithLabelValues(topic, result).Add(float64(n))
	if err == nil {
		m.bytes.WithLabelValues(topic, codec).Add(float64(bytes))
	}
	m.publish.WithLabelValues(topic).Observe(d.Seconds())
}

func (m *clientMetrics) observeHandle(topic, outcome string, d time.Duration) {
	m.handled.WithLabelValues(topic, outcome).Inc()
	m.handle.WithLabelValues(topic).Observe(d.Seconds())
}
