/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics holds the Hub's Prometheus collectors. Naming and
// MustRegister-at-construction follow the teacher's pkg/metrics, but
// registration here targets a private prometheus.Registry rather than
// controller-runtime's global crmetrics.Registry: spec.md §1 treats
// the Prometheus exposition format as an external collaborator, not
// something this module serves over HTTP, so there is no /metrics
// handler anywhere in this repo — only internal bookkeeping a caller
// can read back out of Registry for tests or for wiring into whatever
// exposition the deployer chooses.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Namespace is the common Prometheus namespace for every Hub metric.
const Namespace = "carbon_hub"

// Registry bundles every collector the Hub reports and the private
// prometheus.Registry they are registered against.
type Registry struct {
	reg *prometheus.Registry

	GridCarbonIntensity *prometheus.GaugeVec
	CarbonLastUpdated   *prometheus.GaugeVec
	BestZoneIndicator   *prometheus.GaugeVec

	AppWrappersTotal     prometheus.Gauge
	AppWrappersPending   prometheus.Gauge
	AppWrappersRunning   prometheus.Gauge
	AppWrappersCompleted prometheus.Gauge

	ClustersTotal prometheus.Gauge
	ClustersReady prometheus.Gauge

	MigrationsTotal            *prometheus.CounterVec
	MigrationDataTransferredGB *prometheus.CounterVec
	MigrationCostGCO2          *prometheus.CounterVec
	MigrationsInProgress       prometheus.Gauge

	SchedulingCO2EstimateKG prometheus.Gauge
	DispatchesTotal         *prometheus.CounterVec
}

// New builds a Registry and registers every collector against a fresh
// prometheus.Registry. Each Hub process owns exactly one.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		GridCarbonIntensity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "grid",
			Name:      "carbon_intensity_gco2_per_kwh",
			Help:      "Most recently observed grid carbon intensity, by zone.",
		}, []string{"zone"}),
		CarbonLastUpdated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "carbon",
			Name:      "last_updated_unix",
			Help:      "Unix timestamp of the last successful carbon fetch, by zone.",
		}, []string{"zone"}),
		BestZoneIndicator: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "carbon",
			Name:      "best_zone_indicator",
			Help:      "1 for the zone currently reporting the lowest carbon intensity, 0 otherwise.",
		}, []string{"zone"}),

		AppWrappersTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "appwrappers", Name: "total",
			Help: "Total AppWrappers currently registered with the Hub.",
		}),
		AppWrappersPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "appwrappers", Name: "pending",
			Help: "AppWrappers awaiting a scheduling decision or dispatch.",
		}),
		AppWrappersRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "appwrappers", Name: "running",
			Help: "AppWrappers dispatched and currently running.",
		}),
		AppWrappersCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "appwrappers", Name: "completed",
			Help: "AppWrappers that have finished running.",
		}),

		ClustersTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "clusters", Name: "total",
			Help: "Total Spoke clusters known to the Hub.",
		}),
		ClustersReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "clusters", Name: "ready",
			Help: "Spoke clusters currently reporting ready.",
		}),

		MigrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "migrations", Name: "total",
			Help: "Count of job migrations applied, by source and destination region.",
		}, []string{"from", "to"}),
		MigrationDataTransferredGB: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "migrations", Name: "data_transferred_gb",
			Help: "Cumulative data migrated between regions, in GB.",
		}, []string{"from", "to"}),
		MigrationCostGCO2: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "migrations", Name: "cost_gco2",
			Help: "Cumulative migration carbon-equivalent penalty charged, by source and destination region.",
		}, []string{"from", "to"}),
		MigrationsInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "migrations", Name: "in_progress",
			Help: "Migrations decided this cycle that have not yet been dispatched.",
		}),

		SchedulingCO2EstimateKG: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "scheduling", Name: "co2_estimate_kg",
			Help: "Objective value (carbon plus migration penalty) of the most recent scheduling cycle, in kg.",
		}),
		DispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "dispatch", Name: "total",
			Help: "Count of Job dispatch attempts, by cluster and outcome.",
		}, []string{"cluster", "outcome"}),
	}

	r.reg.MustRegister(
		r.GridCarbonIntensity,
		r.CarbonLastUpdated,
		r.BestZoneIndicator,
		r.AppWrappersTotal,
		r.AppWrappersPending,
		r.AppWrappersRunning,
		r.AppWrappersCompleted,
		r.ClustersTotal,
		r.ClustersReady,
		r.MigrationsTotal,
		r.MigrationDataTransferredGB,
		r.MigrationCostGCO2,
		r.MigrationsInProgress,
		r.SchedulingCO2EstimateKG,
		r.DispatchesTotal,
	)
	return r
}

// Gatherer exposes the underlying registry for a caller that wants to
// wire its own exposition (an HTTP handler, a push gateway client,
// a test assertion) without this package knowing about any of them.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// SchedulingCycleResult is what HubScheduler reports after RunOnce.
type SchedulingCycleResult struct {
	Jobs          int
	Migrations    int
	CO2EstimateKG float64
	SolverStatus  string
}

// ObserveSchedulingCycle records the outcome of one scheduling cycle.
func (r *Registry) ObserveSchedulingCycle(res SchedulingCycleResult) {
	r.SchedulingCO2EstimateKG.Set(res.CO2EstimateKG)
	r.MigrationsInProgress.Set(float64(res.Migrations))
}

// ObserveMigration records one applied migration from/to a region
// with its carbon-equivalent cost and data volume.
func (r *Registry) ObserveMigration(from, to string, costGCO2, dataGB float64) {
	r.MigrationsTotal.WithLabelValues(from, to).Inc()
	r.MigrationCostGCO2.WithLabelValues(from, to).Add(costGCO2)
	r.MigrationDataTransferredGB.WithLabelValues(from, to).Add(dataGB)
}

// ObserveDispatch records one Job dispatch attempt's outcome
// ("created", "already_exists", "error").
func (r *Registry) ObserveDispatch(cluster, outcome string) {
	r.DispatchesTotal.WithLabelValues(cluster, outcome).Inc()
}

// ObserveStoreStats mirrors store.Stats and store.HubStore's cluster
// counts into the gauges a dashboard would chart.
func (r *Registry) ObserveStoreStats(total, pending, running, completed, totalClusters, readyClusters int) {
	r.AppWrappersTotal.Set(float64(total))
	r.AppWrappersPending.Set(float64(pending))
	r.AppWrappersRunning.Set(float64(running))
	r.AppWrappersCompleted.Set(float64(completed))
	r.ClustersTotal.Set(float64(totalClusters))
	r.ClustersReady.Set(float64(readyClusters))
}
