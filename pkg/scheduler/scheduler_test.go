package scheduler_test

import (
	"context"
	"testing"

	"github.com/onsi/gomega"

	v1alpha1 "github.com/CodeY0ung/carbon/pkg/apis/v1alpha1"
	"github.com/CodeY0ung/carbon/pkg/metrics"
	"github.com/CodeY0ung/carbon/pkg/optimizer"
	"github.com/CodeY0ung/carbon/pkg/scheduler"
	"github.com/CodeY0ung/carbon/pkg/store"
)

func newPendingAppWrapper(jobID string) v1alpha1.AppWrapper {
	return v1alpha1.NewAppWrapper(v1alpha1.NewAppWrapperSpec(jobID, 2, 4, 0, 30, 60))
}

func testConfig() scheduler.Config {
	return scheduler.Config{
		HorizonSlots: 12,
		SlotSeconds:  300,
		Costs:        scheduler.Costs{WattCPU: 30, LambdaPlanDev: 100},
	}
}

func TestRunOnceAppliesPlanAndOpensGate(t *testing.T) {
	g := gomega.NewWithT(t)
	s := store.New()
	g.Expect(s.AddAppWrapper(newPendingAppWrapper("job-1"))).To(gomega.Succeed())
	s.UpdateClusterInfo(v1alpha1.ClusterInfo{
		Name:   "CA",
		Status: v1alpha1.ClusterReady,
		Resources: v1alpha1.ClusterResources{
			CPUAvailable: 8, CPUTotal: 8, MemAvailableGB: 32, MemTotalGB: 32,
		},
	})

	stub := optimizer.StubSolver{Output: optimizer.Output{
		Plans:        []v1alpha1.PlanItem{{JobID: "job-1", Region: "CA", StartSlot: 0}},
		SolverStatus: optimizer.StatusFeasible,
	}}
	sched := scheduler.New(s, stub, metrics.New(), testConfig())

	g.Expect(sched.RunOnce(context.Background())).To(gomega.Succeed())

	aw, ok := s.GetAppWrapper("job-1")
	g.Expect(ok).To(gomega.BeTrue())
	g.Expect(aw.Spec.TargetCluster).NotTo(gomega.BeNil())
	g.Expect(*aw.Spec.TargetCluster).To(gomega.Equal("CA"))
	g.Expect(aw.Spec.AllGatesOpen()).To(gomega.BeTrue())
}

func TestRunOnceNoPendingJobsIsNoop(t *testing.T) {
	g := gomega.NewWithT(t)
	s := store.New()
	stub := optimizer.StubSolver{Output: optimizer.Output{SolverStatus: optimizer.StatusFeasible}}
	sched := scheduler.New(s, stub, metrics.New(), testConfig())

	g.Expect(sched.RunOnce(context.Background())).To(gomega.Succeed())
}

func TestRunOnceDefersWithNoReadyClusters(t *testing.T) {
	g := gomega.NewWithT(t)
	s := store.New()
	g.Expect(s.AddAppWrapper(newPendingAppWrapper("job-1"))).To(gomega.Succeed())

	stub := optimizer.StubSolver{Output: optimizer.Output{SolverStatus: optimizer.StatusFeasible}}
	sched := scheduler.New(s, stub, metrics.New(), testConfig())

	g.Expect(sched.RunOnce(context.Background())).To(gomega.Succeed())

	aw, ok := s.GetAppWrapper("job-1")
	g.Expect(ok).To(gomega.BeTrue())
	g.Expect(aw.Spec.TargetCluster).To(gomega.BeNil())
}

// TestIdempotentCycleMakesNoNewMigrations: a second RunOnce over an
// AppWrapper that is already placed and gated open should not touch
// it again (PendingAppWrappers excludes it), so the plan is stable
// across cycles and no new migration is ever recorded for it.
func TestIdempotentCycleMakesNoNewMigrations(t *testing.T) {
	g := gomega.NewWithT(t)
	s := store.New()
	g.Expect(s.AddAppWrapper(newPendingAppWrapper("job-1"))).To(gomega.Succeed())
	s.UpdateClusterInfo(v1alpha1.ClusterInfo{
		Name:   "CA",
		Status: v1alpha1.ClusterReady,
		Resources: v1alpha1.ClusterResources{
			CPUAvailable: 8, CPUTotal: 8, MemAvailableGB: 32, MemTotalGB: 32,
		},
	})

	stub := optimizer.StubSolver{Output: optimizer.Output{
		Plans:        []v1alpha1.PlanItem{{JobID: "job-1", Region: "CA", StartSlot: 0}},
		SolverStatus: optimizer.StatusFeasible,
	}}
	sched := scheduler.New(s, stub, metrics.New(), testConfig())

	g.Expect(sched.RunOnce(context.Background())).To(gomega.Succeed())
	first, _ := s.GetAppWrapper("job-1")

	g.Expect(sched.RunOnce(context.Background())).To(gomega.Succeed())
	second, _ := s.GetAppWrapper("job-1")

	g.Expect(second.Spec.TargetCluster).To(gomega.Equal(first.Spec.TargetCluster))
}
