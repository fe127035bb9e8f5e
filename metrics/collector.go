package metrics

import "time"

// Collector wraps metrics and provides helper methods with the application label pre-filled.
type Collector struct {
	application string
}

// NewCollector creates a new Collector for the given application.
func NewCollector(application string) *Collector {
	return &Collector{application: application}
}

// Application returns the label value this collector reports under.
func (c *Collector) Application() string {
	return c.application
}

// IncApplied increments the applied migrations counter.
func (c *Collector) IncApplied() {
	MigrationsAppliedTotal.WithLabelValues(c.application).Inc()
}

// IncRolledBack increments the rolled back migrations counter.
func (c *Collector) IncRolledBack() {
	MigrationsRolledBackTotal.WithLabelValues(c.application).Inc()
}

// IncFailures increments the failures counter for a direction.
func (c *Collector) IncFailures(direction string) {
	MigrationFailuresTotal.WithLabelValues(c.application, direction).Inc()
}

// IncIgnoredErrors increments the swallowed errors counter for a direction.
func (c *Collector) IncIgnoredErrors(direction string) {
	IgnoredErrorsTotal.WithLabelValues(c.application, direction).Inc()
}

// IncCompensations increments the compensating rollback counter.
func (c *Collector) IncCompensations() {
	CompensationsTotal.WithLabelValues(c.application).Inc()
}

// IncStatusReports increments the status reports counter for a status.
func (c *Collector) IncStatusReports(status string) {
	StatusReportsTotal.WithLabelValues(c.application, status).Inc()
}

// IncDispatches increments the dispatch counter for an action.
func (c *Collector) IncDispatches(action string) {
	DispatchesTotal.WithLabelValues(c.application, action).Inc()
}

// ObserveAction records the duration of one action.
func (c *Collector) ObserveAction(action string, d time.Duration) {
	ActionDuration.WithLabelValues(c.application, action).Observe(d.Seconds())
}
