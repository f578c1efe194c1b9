package monitor

import (
    "net/http"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    heartbeats = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "smartstream_heartbeats_total",
        Help: "Liveness heartbeats written by this node",
    })

    migrations = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "smartstream_migrations_total",
        Help: "Sessions migrated away from dead nodes by this node",
    })

    orphansReclaimed = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "smartstream_orphans_reclaimed_total",
        Help: "Orphaned sessions reclaimed by this node",
    })

    fallbackPlacements = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "smartstream_fallback_placements_total",
        Help: "Sessions placed on this node because no worker was live",
    })

    qosDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
        Name: "smartstream_qos_decisions_total",
        Help: "QoS decisions by action",
    }, []string{ "action" })

    activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
        Name: "smartstream_active_sessions",
        Help: "Sessions currently assigned to this node",
    })
)

func init() {
    prometheus.MustRegister(heartbeats)
    prometheus.MustRegister(migrations)
    prometheus.MustRegister(orphansReclaimed)
    prometheus.MustRegister(fallbackPlacements)
    prometheus.MustRegister(qosDecisions)
    prometheus.MustRegister(activeSessions)
}

func RecordHeartbeat() {
    heartbeats.Inc()
}

func RecordMigration(sessions int) {
    migrations.Add(float64(sessions))
}

func RecordOrphanReclaimed() {
    orphansReclaimed.Inc()
}

func RecordFallbackPlacement() {
    fallbackPlacements.Inc()
}

func RecordQoSDecision(action string) {
    qosDecisions.WithLabelValues(action).Inc()
}

func SetActiveSessions(count int) {
    activeSessions.Set(float64(count))
}

func Handler() http.Handler {
    return promhttp.Handler()
}
