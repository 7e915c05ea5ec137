package carbon_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/onsi/gomega"

	"github.com/CodeY0ung/carbon/pkg/carbon"
)

// fakeFetcher returns pre-seeded snapshots or errors per zone, with a
// call counter so tests can assert on poll cadence.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string]carbon.ZoneSnapshot
	fail    map[string]bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:   map[string]int{},
		results: map[string]carbon.ZoneSnapshot{},
		fail:    map[string]bool{},
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, zone string) (carbon.ZoneSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[zone]++
	if f.fail[zone] {
		return carbon.ZoneSnapshot{}, fmt.Errorf("zone %s: fetch failed", zone)
	}
	return f.results[zone], nil
}

func TestStartPopulatesInitialSnapshots(t *testing.T) {
	g := gomega.NewWithT(t)
	f := newFakeFetcher()
	f.results["CA"] = carbon.ZoneSnapshot{Zone: "CA", CarbonIntensity: 120, FetchedAt: time.Now()}
	f.results["CN"] = carbon.ZoneSnapshot{Zone: "CN", CarbonIntensity: 650, FetchedAt: time.Now()}

	m := carbon.New(f, carbon.Config{Zones: []string{"CA", "CN"}, PollInterval: time.Hour})
	g.Expect(m.Start(context.Background())).To(gomega.Succeed())
	defer m.Stop()

	ca, ok := m.Zone("CA")
	g.Expect(ok).To(gomega.BeTrue())
	g.Expect(ca.CarbonIntensity).To(gomega.Equal(120.0))

	g.Expect(m.Latest()).To(gomega.HaveLen(2))
}

func TestBestPicksLowestCarbonIntensity(t *testing.T) {
	g := gomega.NewWithT(t)
	f := newFakeFetcher()
	f.results["CA"] = carbon.ZoneSnapshot{Zone: "CA", CarbonIntensity: 120}
	f.results["CN"] = carbon.ZoneSnapshot{Zone: "CN", CarbonIntensity: 650}
	f.results["BR"] = carbon.ZoneSnapshot{Zone: "BR", CarbonIntensity: 180}

	m := carbon.New(f, carbon.Config{Zones: []string{"CA", "CN", "BR"}, PollInterval: time.Hour})
	g.Expect(m.Start(context.Background())).To(gomega.Succeed())
	defer m.Stop()

	best, ok := m.Best()
	g.Expect(ok).To(gomega.BeTrue())
	g.Expect(best.Zone).To(gomega.Equal("CA"))
}

func TestFailedFetchRetainsStaleSnapshot(t *testing.T) {
	g := gomega.NewWithT(t)
	f := newFakeFetcher()
	stale := carbon.ZoneSnapshot{Zone: "CA", CarbonIntensity: 120, FetchedAt: time.Now()}
	f.results["CA"] = stale

	m := carbon.New(f, carbon.Config{Zones: []string{"CA"}, PollInterval: 10 * time.Millisecond})
	g.Expect(m.Start(context.Background())).To(gomega.Succeed())

	// Once the zone has a good snapshot cached, flip the fetcher to
	// start failing and let a couple of poll ticks pass.
	f.mu.Lock()
	f.fail["CA"] = true
	f.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	m.Stop()

	ca, ok := m.Zone("CA")
	g.Expect(ok).To(gomega.BeTrue())
	g.Expect(ca.FetchedAt).To(gomega.Equal(stale.FetchedAt))
}

func TestUnknownZoneReportsNotOK(t *testing.T) {
	g := gomega.NewWithT(t)
	f := newFakeFetcher()
	m := carbon.New(f, carbon.Config{Zones: []string{}, PollInterval: time.Hour})
	g.Expect(m.Start(context.Background())).To(gomega.Succeed())
	defer m.Stop()

	_, ok := m.Zone("does-not-exist")
	g.Expect(ok).To(gomega.BeFalse())

	_, ok = m.Best()
	g.Expect(ok).To(gomega.BeFalse())
}
