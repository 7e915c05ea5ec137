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

// Package hub wires CarbonMonitor, HubStore, Optimizer, HubScheduler
// and HubDispatcher into one runnable Hub by explicit construction —
// no package-level singletons. This plays the role the teacher's
// pkg/operator plays for its controller set, minus the
// controller-runtime manager: there is no single reconciled cluster
// here to hang a manager off of, only the Hub's own three periodic
// loops plus N unwatched Spokes.
package hub

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"knative.dev/pkg/logging"

	v1alpha1 "github.com/CodeY0ung/carbon/pkg/apis/v1alpha1"
	"github.com/CodeY0ung/carbon/pkg/carbon"
	"github.com/CodeY0ung/carbon/pkg/dispatcher"
	"github.com/CodeY0ung/carbon/pkg/metrics"
	"github.com/CodeY0ung/carbon/pkg/optimizer"
	"github.com/CodeY0ung/carbon/pkg/scheduler"
	"github.com/CodeY0ung/carbon/pkg/store"
)

// ClusterSeed is one Spoke known at startup: enough to reach it and
// to know which carbon zone its electricity draws from.
type ClusterSeed struct {
	Name              string
	Geolocation       string
	CarbonZone        string
	KubeconfigContext string
	Resources         v1alpha1.ClusterResources
}

// Config parameterizes the whole Hub.
type Config struct {
	Clusters []ClusterSeed

	Carbon     carbon.Config
	Scheduler  scheduler.Config
	Dispatcher dispatcher.Config

	// ClusterSyncInterval is how often cluster ClusterInfo.CarbonIntensity
	// is refreshed from the CarbonMonitor's cache. spec.md §5 sets this
	// at 15s.
	ClusterSyncInterval time.Duration
}

func (c Config) clusterSyncInterval() time.Duration {
	if c.ClusterSyncInterval > 0 {
		return c.ClusterSyncInterval
	}
	return 15 * time.Second
}

// Hub owns every component and the goroutines that drive them.
type Hub struct {
	cfg Config

	Store      *store.HubStore
	Carbon     *carbon.Monitor
	Optimizer  optimizer.Solver
	Scheduler  *scheduler.HubScheduler
	Dispatcher *dispatcher.HubDispatcher
	Registry   *metrics.Registry
}

// New assembles a Hub. It does not start any loop.
func New(cfg Config, carbonMonitor *carbon.Monitor, solver optimizer.Solver) *Hub {
	registry := metrics.New()
	s := store.New()

	for _, seed := range cfg.Clusters {
		s.UpdateClusterInfo(v1alpha1.ClusterInfo{
			Name:              seed.Name,
			Geolocation:       seed.Geolocation,
			Status:            v1alpha1.ClusterUnknown,
			Resources:         seed.Resources,
			KubeconfigContext: seed.KubeconfigContext,
		})
	}

	return &Hub{
		cfg:        cfg,
		Store:      s,
		Carbon:     carbonMonitor,
		Optimizer:  solver,
		Scheduler:  scheduler.New(s, solver, registry, cfg.Scheduler),
		Dispatcher: dispatcher.New(s, registry, cfg.Dispatcher, nil),
		Registry:   registry,
	}
}

// Run starts the carbon monitor, the cluster-info sync loop, the
// scheduler and the dispatcher, and blocks until ctx is cancelled or
// one of them returns a non-cancellation error. The first error any
// loop returns cancels the others; once all have exited, Run returns
// that first error (later errors are not aggregated).
func (h *Hub) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	if err := h.Carbon.Start(ctx); err != nil {
		return fmt.Errorf("starting carbon monitor: %w", err)
	}
	defer h.Carbon.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.runClusterSync(gctx) })
	g.Go(func() error { return h.Scheduler.Start(gctx) })
	g.Go(func() error { return h.Dispatcher.Start(gctx) })

	err := g.Wait()
	if err != nil && ctx.Err() == nil {
		logger.Errorw("hub loop exited with error", "error", err)
	}
	return err
}

// runClusterSync copies each known cluster's carbon zone reading into
// its ClusterInfo on a fixed cadence, and flips its status to Ready
// once a reading and kubeconfig context are both present. A cluster
// whose zone has never been fetched keeps ClusterUnknown rather than
// guessing a carbon intensity of zero, which would make it look
// artificially attractive to the optimizer.
func (h *Hub) runClusterSync(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.clusterSyncInterval())
	defer ticker.Stop()

	h.syncClustersOnce()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.syncClustersOnce()
		}
	}
}

func (h *Hub) syncClustersOnce() {
	for _, seed := range h.cfg.Clusters {
		zone := seed.CarbonZone
		if zone == "" {
			zone = seed.Name
		}
		snap, ok := h.Carbon.Zone(zone)
		if !ok {
			continue
		}
		ci, ok := h.Store.GetClusterInfo(seed.Name)
		if !ok {
			continue
		}
		ci.CarbonIntensity = snap.CarbonIntensity
		if ci.KubeconfigContext != "" {
			ci.Status = v1alpha1.ClusterReady
		}
		h.Store.UpdateClusterInfo(ci)

		h.Registry.GridCarbonIntensity.WithLabelValues(zone).Set(snap.CarbonIntensity)
		h.Registry.CarbonLastUpdated.WithLabelValues(zone).Set(float64(snap.FetchedAt.Unix()))
	}

	if best, ok := h.Carbon.Best(); ok {
		for _, seed := range h.cfg.Clusters {
			zone := seed.CarbonZone
			if zone == "" {
				zone = seed.Name
			}
			indicator := 0.0
			if zone == best.Zone {
				indicator = 1.0
			}
			h.Registry.BestZoneIndicator.WithLabelValues(zone).Set(indicator)
		}
	}

	stats := h.Store.Stats()
	h.Registry.ObserveStoreStats(stats.TotalAppWrappers, stats.Pending, stats.Running, stats.Completed, stats.TotalClusters, stats.ReadyClusters)
}
