package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry module.
// Tracks mutation counts, locator hook outcomes, and critical path durations.
type Metrics struct {
	ServiceGroupCreated   prometheus.Counter
	ServiceGroupDeleted   prometheus.Counter
	ServiceMetadataWrites prometheus.Counter
	RedirectWrites        prometheus.Counter
	MigrationsFinalized   prometheus.Counter
	LocatorErrors         prometheus.Counter

	ServiceGroupCreateDuration prometheus.Histogram
	ServiceGroupDeleteDuration prometheus.Histogram
	ExportDuration             prometheus.Histogram
	ImportDuration             prometheus.Histogram
}

// New creates a new Metrics instance with all registry module metrics registered.
func New() *Metrics {
	return &Metrics{
		ServiceGroupCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "smp_service_groups_created_total",
			Help: "Total number of service groups created",
		}),
		ServiceGroupDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "smp_service_groups_deleted_total",
			Help: "Total number of service groups deleted",
		}),
		ServiceMetadataWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "smp_service_metadata_writes_total",
			Help: "Total number of service information create-or-update operations",
		}),
		RedirectWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "smp_redirect_writes_total",
			Help: "Total number of redirect create-or-update operations",
		}),
		MigrationsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "smp_migrations_finalized_total",
			Help: "Total number of participant migrations finalized",
		}),
		LocatorErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "smp_locator_errors_total",
			Help: "Total number of failed locator hook calls",
		}),
		ServiceGroupCreateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "smp_service_group_create_duration_seconds",
			Help:    "Duration of service group creation including the locator round-trip",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		ServiceGroupDeleteDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "smp_service_group_delete_duration_seconds",
			Help:    "Duration of service group deletion including cascade and locator round-trip",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		ExportDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "smp_export_duration_seconds",
			Help:    "Duration of full registry exports",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		ImportDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "smp_import_duration_seconds",
			Help:    "Duration of full registry imports",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
	}
}

// ObserveServiceGroupCreate records the duration of a service group creation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveServiceGroupCreate(start time.Time) {
	m.ServiceGroupCreateDuration.Observe(time.Since(start).Seconds())
}

// ObserveServiceGroupDelete records the duration of a service group deletion.
func (m *Metrics) ObserveServiceGroupDelete(start time.Time) {
	m.ServiceGroupDeleteDuration.Observe(time.Since(start).Seconds())
}

// ObserveExport records the duration of a registry export.
func (m *Metrics) ObserveExport(start time.Time) {
	m.ExportDuration.Observe(time.Since(start).Seconds())
}

// ObserveImport records the duration of a registry import.
func (m *Metrics) ObserveImport(start time.Time) {
	m.ImportDuration.Observe(time.Since(start).Seconds())
}
