package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the subsystem's Prometheus collectors, registered on the
// default registry and served from /metrics. All methods are safe on a nil
// receiver so tests can run without a registry.
type Metrics struct {
	webhookDeliveries *prometheus.CounterVec
	syncRuns          *prometheus.CounterVec
	syncRecords       *prometheus.CounterVec
	installs          prometheus.Counter
	uninstalls        prometheus.Counter
}

// New registers and returns the subsystem metrics.
func New() *Metrics {
	return &Metrics{
		webhookDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_webhook_deliveries_total",
			Help: "Inbound webhook deliveries by topic and outcome.",
		}, []string{"topic", "status"}),
		syncRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_sync_runs_total",
			Help: "Sync invocations by resource and outcome.",
		}, []string{"resource", "status"}),
		syncRecords: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_sync_records_total",
			Help: "Records fetched and upserted by sync, by resource.",
		}, []string{"resource", "op"}),
		installs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_installs_total",
			Help: "Completed OAuth installs.",
		}),
		uninstalls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bridge_uninstalls_total",
			Help: "Verified uninstall deliveries applied.",
		}),
	}
}

// ObserveDelivery counts one webhook delivery outcome.
func (m *Metrics) ObserveDelivery(topic, status string) {
	if m == nil {
		return
	}
	m.webhookDeliveries.WithLabelValues(topic, status).Inc()
}

// ObserveSyncRun counts one sync invocation outcome.
func (m *Metrics) ObserveSyncRun(resource, status string) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(resource, status).Inc()
}

// ObserveSyncRecords counts fetched and upserted records for one sync page.
func (m *Metrics) ObserveSyncRecords(resource string, fetched, upserted int) {
	if m == nil {
		return
	}
	m.syncRecords.WithLabelValues(resource, "fetched").Add(float64(fetched))
	m.syncRecords.WithLabelValues(resource, "upserted").Add(float64(upserted))
}

// ObserveInstall counts one completed install.
func (m *Metrics) ObserveInstall() {
	if m == nil {
		return
	}
	m.installs.Inc()
}

// ObserveUninstall counts one applied uninstall.
func (m *Metrics) ObserveUninstall() {
	if m == nil {
		return
	}
	m.uninstalls.Inc()
}
