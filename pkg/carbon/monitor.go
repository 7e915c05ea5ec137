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

// Package carbon holds Monitor, the Hub's one connection to the
// outside world's grid carbon intensity. It polls a Fetcher per zone
// on its own goroutine, keeps the latest reading per zone in a small
// map, and serves reads to the scheduler's cluster-info sync loop
// without ever blocking it on a live network call.
package carbon

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"knative.dev/pkg/logging"

	"github.com/CodeY0ung/carbon/pkg/utils/pretty"
)

// Config parameterizes one Monitor.
type Config struct {
	Zones        []string
	PollInterval time.Duration
}

func (c Config) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return 30 * time.Second
}

// Monitor polls a Fetcher for every configured zone on its own
// cadence, keeps the latest snapshot per zone, and serves lookups. It
// plays the role the teacher's cluster state cache plays for node
// snapshots: a mutex-guarded map kept fresh by a background loop,
// cheap to read from the hot scheduling path. A failed fetch never
// evicts the last good reading — a zone's feed outage shows up only
// as a stale FetchedAt, never a missing entry.
type Monitor struct {
	fetcher Fetcher
	cfg     Config

	mu        sync.RWMutex
	snapshots map[string]ZoneSnapshot

	failures *pretty.ChangeMonitor

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Monitor. It does not start polling; call Start.
func New(fetcher Fetcher, cfg Config) *Monitor {
	return &Monitor{
		fetcher:   fetcher,
		cfg:       cfg,
		snapshots: map[string]ZoneSnapshot{},
		failures:  pretty.NewChangeMonitor(pretty.WithVisibilityTimeout(1 * time.Hour)),
	}
}

// NewFromConfig builds a Monitor wired to either a live HTTPFetcher or
// a MockFetcher, matching the original client's USE_MOCK_DATA switch:
// live credentials are required to talk to ElectricityMap at all, so
// their absence falls back to mock mode rather than failing startup.
func NewFromConfig(cfg Config, apiKey string, useMock bool, mockSeed int64) *Monitor {
	var fetcher Fetcher
	if useMock || apiKey == "" {
		fetcher = NewMockFetcher(mockSeed)
	} else {
		fetcher = NewHTTPFetcher(apiKey)
	}
	return New(fetcher, cfg)
}

// Start fetches every configured zone once, in parallel, so the Hub
// has an initial reading before anyone asks for one, then launches one
// polling goroutine per zone. It returns once the initial round
// completes; per-zone fetch errors during it are logged and otherwise
// swallowed — a zone's fetch never returns an error to a caller, only
// an unchanged FetchedAt. Start must not be called twice on the same
// Monitor.
func (m *Monitor) Start(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for _, zone := range m.cfg.Zones {
		zone := zone
		g.Go(func() error {
			if err := m.fetchOnce(gctx, zone); err != nil {
				logger.Warnw("initial carbon fetch failed", "zone", zone, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	pollCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		var wg sync.WaitGroup
		for _, zone := range m.cfg.Zones {
			zone := zone
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.pollLoop(pollCtx, zone)
			}()
		}
		wg.Wait()
	}()

	return nil
}

// Stop cancels every polling goroutine and waits for them to exit.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Monitor) pollLoop(ctx context.Context, zone string) {
	logger := logging.FromContext(ctx)
	ticker := time.NewTicker(m.cfg.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.fetchOnce(ctx, zone); err != nil {
				// Dedup noisy repeated-failure logging: a feed that's
				// been down for an hour shouldn't write a line every
				// poll, only when the failure reason changes.
				if m.failures.HasChanged(zone, err.Error()) {
					logger.Warnw("carbon fetch failed", "zone", zone, "error", err)
				}
			}
		}
	}
}

// fetchOnce fetches one zone and, on success, overwrites its cached
// snapshot. On failure the previous snapshot is retained untouched —
// stale-but-available, per the failure semantics every caller relies
// on.
func (m *Monitor) fetchOnce(ctx context.Context, zone string) error {
	snap, err := m.fetcher.Fetch(ctx, zone)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.snapshots[zone] = snap
	m.mu.Unlock()
	return nil
}

// Zone returns the most recently fetched snapshot for a zone.
func (m *Monitor) Zone(zone string) (ZoneSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[zone]
	return snap, ok
}

// Latest returns every zone's most recently fetched snapshot, sorted
// by zone name for deterministic iteration.
func (m *Monitor) Latest() []ZoneSnapshot {
	m.mu.RLock()
	out := make([]ZoneSnapshot, 0, len(m.snapshots))
	for _, snap := range m.snapshots {
		out = append(out, snap)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Zone < out[j].Zone })
	return out
}

// Best returns the zone with the lowest carbon intensity among those
// with a cached snapshot, breaking ties by zone name ascending so two
// readers of the same data agree.
func (m *Monitor) Best() (ZoneSnapshot, bool) {
	snapshots := m.Latest()
	if len(snapshots) == 0 {
		return ZoneSnapshot{}, false
	}
	best := snapshots[0]
	for _, s := range snapshots[1:] {
		if s.CarbonIntensity < best.CarbonIntensity {
			best = s
		}
	}
	return best, true
}
