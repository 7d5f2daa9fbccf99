package websocket

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	feedConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "livechat_ws_connections",
			Help: "Current feed connections by room kind.",
		},
		[]string{"room_kind"},
	)
	feedRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "livechat_ws_rooms",
			Help: "Rooms with at least one connection.",
		},
	)
	feedDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_ws_events_delivered_total",
			Help: "Feed events written to client queues by room kind.",
		},
		[]string{"room_kind"},
	)
	feedDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_ws_events_dropped_total",
			Help: "Feed events dropped, by cause.",
		},
		[]string{"cause"},
	)
)

func init() {
	prometheus.MustRegister(feedConnections, feedRooms, feedDelivered, feedDropped)
}

// roomKind keeps label cardinality fixed: one value per room family.
func roomKind(roomID string) string {
	if roomID == DashboardRoom {
		return "dashboard"
	}
	if strings.HasPrefix(roomID, SessionRoom("")) {
		return "session"
	}
	return "other"
}

func clientJoined(roomID string) {
	feedConnections.WithLabelValues(roomKind(roomID)).Inc()
}

func clientLeft(roomID string) {
	feedConnections.WithLabelValues(roomKind(roomID)).Dec()
}

func setRooms(count int) {
	feedRooms.Set(float64(count))
}

func eventsDelivered(roomID string, count int) {
	feedDelivered.WithLabelValues(roomKind(roomID)).Add(float64(count))
}

func eventDropped(cause string) {
	feedDropped.WithLabelValues(cause).Inc()
}
