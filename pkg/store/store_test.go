package store_test

import (
	"testing"

	"github.com/onsi/gomega"

	v1alpha1 "github.com/CodeY0ung/carbon/pkg/apis/v1alpha1"
	"github.com/CodeY0ung/carbon/pkg/store"
)

func newAW(jobID string) v1alpha1.AppWrapper {
	return v1alpha1.NewAppWrapper(v1alpha1.NewAppWrapperSpec(jobID, 1, 1, 0, 10, 20))
}

func TestAddAppWrapperDuplicate(t *testing.T) {
	g := gomega.NewWithT(t)
	s := store.New()

	g.Expect(s.AddAppWrapper(newAW("job-1"))).To(gomega.Succeed())

	err := s.AddAppWrapper(newAW("job-1"))
	g.Expect(err).To(gomega.HaveOccurred())
	var dup *store.DuplicateJobIDError
	g.Expect(err).To(gomega.BeAssignableToTypeOf(dup))
}

func TestSubmitGetRoundTrip(t *testing.T) {
	g := gomega.NewWithT(t)
	s := store.New()
	aw := newAW("job-1")

	g.Expect(s.AddAppWrapper(aw)).To(gomega.Succeed())

	got, ok := s.GetAppWrapper("job-1")
	g.Expect(ok).To(gomega.BeTrue())
	g.Expect(got.Spec.JobID).To(gomega.Equal("job-1"))
	g.Expect(got.Status.Phase).To(gomega.Equal(v1alpha1.PhasePending))
	g.Expect(got.Status.Dispatched).To(gomega.BeFalse())
}

func TestUpdateAppWrapperNotFound(t *testing.T) {
	g := gomega.NewWithT(t)
	s := store.New()

	err := s.UpdateAppWrapper("missing", newAW("missing"))
	g.Expect(err).To(gomega.HaveOccurred())
	var nf *store.NotFoundError
	g.Expect(err).To(gomega.BeAssignableToTypeOf(nf))
}

func TestRemoveAppWrapper(t *testing.T) {
	g := gomega.NewWithT(t)
	s := store.New()
	g.Expect(s.AddAppWrapper(newAW("job-1"))).To(gomega.Succeed())

	g.Expect(s.RemoveAppWrapper("job-1")).To(gomega.BeTrue())
	g.Expect(s.RemoveAppWrapper("job-1")).To(gomega.BeFalse())

	_, ok := s.GetAppWrapper("job-1")
	g.Expect(ok).To(gomega.BeFalse())
}

func TestPendingAppWrappers(t *testing.T) {
	g := gomega.NewWithT(t)
	s := store.New()

	unplaced := newAW("unplaced")
	g.Expect(s.AddAppWrapper(unplaced)).To(gomega.Succeed())

	placedClosedGate := newAW("closed-gate")
	target := "CA"
	placedClosedGate.Spec.TargetCluster = &target
	g.Expect(s.AddAppWrapper(placedClosedGate)).To(gomega.Succeed())

	dispatched := newAW("dispatched")
	dispatched.Spec.TargetCluster = &target
	for i := range dispatched.Spec.DispatchingGates {
		dispatched.Spec.DispatchingGates[i].Status = v1alpha1.GateOpen
	}
	dispatched.Status.Phase = v1alpha1.PhaseRunning
	dispatched.Status.Dispatched = true
	g.Expect(s.AddAppWrapper(dispatched)).To(gomega.Succeed())

	pending := s.PendingAppWrappers()
	ids := make([]string, 0, len(pending))
	for _, aw := range pending {
		ids = append(ids, aw.Spec.JobID)
	}
	g.Expect(ids).To(gomega.ConsistOf("unplaced", "closed-gate"))
}

func TestReadyClusters(t *testing.T) {
	g := gomega.NewWithT(t)
	s := store.New()

	s.UpdateClusterInfo(v1alpha1.ClusterInfo{Name: "CA", Status: v1alpha1.ClusterReady})
	s.UpdateClusterInfo(v1alpha1.ClusterInfo{Name: "CN", Status: v1alpha1.ClusterNotReady})

	ready := s.ReadyClusters()
	g.Expect(ready).To(gomega.HaveLen(1))
	g.Expect(ready[0].Name).To(gomega.Equal("CA"))
}

func TestUpdateClusterInfoStampsLastUpdated(t *testing.T) {
	g := gomega.NewWithT(t)
	s := store.New()

	s.UpdateClusterInfo(v1alpha1.ClusterInfo{Name: "CA", Status: v1alpha1.ClusterReady})
	ci, ok := s.GetClusterInfo("CA")
	g.Expect(ok).To(gomega.BeTrue())
	g.Expect(ci.LastUpdated.IsZero()).To(gomega.BeFalse())
}

func TestStats(t *testing.T) {
	g := gomega.NewWithT(t)
	s := store.New()

	g.Expect(s.AddAppWrapper(newAW("p1"))).To(gomega.Succeed())
	running := newAW("r1")
	running.Status.Phase = v1alpha1.PhaseRunning
	running.Status.Dispatched = true
	g.Expect(s.AddAppWrapper(running)).To(gomega.Succeed())

	s.UpdateClusterInfo(v1alpha1.ClusterInfo{Name: "CA", Status: v1alpha1.ClusterReady})
	s.UpdateClusterInfo(v1alpha1.ClusterInfo{Name: "CN", Status: v1alpha1.ClusterNotReady})

	stats := s.Stats()
	g.Expect(stats.TotalAppWrappers).To(gomega.Equal(2))
	g.Expect(stats.Pending).To(gomega.Equal(1))
	g.Expect(stats.Running).To(gomega.Equal(1))
	g.Expect(stats.TotalClusters).To(gomega.Equal(2))
	g.Expect(stats.ReadyClusters).To(gomega.Equal(1))
}
