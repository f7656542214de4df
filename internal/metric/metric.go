package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "client_ws_connected",
		Help: "1 while the realtime connection is up",
	})
	EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "client_ws_events_received_total",
		Help: "Inbound realtime events by name",
	}, []string{"event"})
	EventsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "client_ws_events_rejected_total",
		Help: "Inbound frames dropped at decode or validation",
	}, []string{"event"})
	EventsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "client_ws_events_emitted_total",
		Help: "Outbound realtime events by name",
	}, []string{"event"})
	APIRequests = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "client_api_request_seconds",
		Help:    "REST call latency by operation and outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "outcome"})
	PendingMessages = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "client_messages_pending",
		Help: "Optimistic messages awaiting server confirmation",
	})
	UnreadNotifications = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "client_notifications_unread",
		Help: "Unread in-app notifications",
	})
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call
// more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(Connected, EventsReceived, EventsRejected, EventsEmitted,
			APIRequests, PendingMessages, UnreadNotifications)
	})
}
