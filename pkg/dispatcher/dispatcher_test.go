package dispatcher_test

import (
	"context"
	"testing"

	"github.com/onsi/gomega"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"

	v1alpha1 "github.com/CodeY0ung/carbon/pkg/apis/v1alpha1"
	"github.com/CodeY0ung/carbon/pkg/dispatcher"
	"github.com/CodeY0ung/carbon/pkg/metrics"
	"github.com/CodeY0ung/carbon/pkg/store"
)

func dispatchableAppWrapper(jobID, cluster string) v1alpha1.AppWrapper {
	aw := v1alpha1.NewAppWrapper(v1alpha1.NewAppWrapperSpec(jobID, 2, 4, 0, 30, 60))
	aw.Spec.TargetCluster = &cluster
	for i := range aw.Spec.DispatchingGates {
		aw.Spec.DispatchingGates[i].Status = v1alpha1.GateOpen
	}
	return aw
}

// fakeFactory hands out a single shared fake Clientset regardless of
// the requested context, so tests can assert on the Jobs it recorded.
func fakeFactory(client kubernetes.Interface) dispatcher.ClientFactory {
	return func(_, _ string) (kubernetes.Interface, error) {
		return client, nil
	}
}

func TestDispatchCreatesJobAndMarksRunning(t *testing.T) {
	g := gomega.NewWithT(t)
	s := store.New()
	s.UpdateClusterInfo(v1alpha1.ClusterInfo{Name: "CA", Status: v1alpha1.ClusterReady, KubeconfigContext: "ca-ctx"})
	g.Expect(s.AddAppWrapper(dispatchableAppWrapper("job-1", "CA"))).To(gomega.Succeed())

	client := fake.NewSimpleClientset()
	d := dispatcher.New(s, metrics.New(), dispatcher.Config{Namespace: "default"}, fakeFactory(client))

	g.Expect(d.RunOnce(context.Background())).To(gomega.Succeed())

	job, err := client.BatchV1().Jobs("default").Get(context.Background(), "job-1", metav1.GetOptions{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(job.Labels["job-id"]).To(gomega.Equal("job-1"))
	g.Expect(job.Annotations["carbon-hub/target-cluster"]).To(gomega.Equal("CA"))

	aw, ok := s.GetAppWrapper("job-1")
	g.Expect(ok).To(gomega.BeTrue())
	g.Expect(aw.Status.Dispatched).To(gomega.BeTrue())
	g.Expect(aw.Status.Phase).To(gomega.Equal(v1alpha1.PhaseRunning))
	g.Expect(aw.Status.Cluster).NotTo(gomega.BeNil())
	g.Expect(*aw.Status.Cluster).To(gomega.Equal("CA"))
}

// TestDispatchIsIdempotent is scenario S6: running the dispatch cycle
// twice against the same AppWrapper must not error and must not
// create a second Job — the 409-already-exists path is success.
func TestDispatchIsIdempotent(t *testing.T) {
	g := gomega.NewWithT(t)
	s := store.New()
	s.UpdateClusterInfo(v1alpha1.ClusterInfo{Name: "CA", Status: v1alpha1.ClusterReady, KubeconfigContext: "ca-ctx"})
	g.Expect(s.AddAppWrapper(dispatchableAppWrapper("job-1", "CA"))).To(gomega.Succeed())

	client := fake.NewSimpleClientset()
	d := dispatcher.New(s, metrics.New(), dispatcher.Config{Namespace: "default"}, fakeFactory(client))

	g.Expect(d.RunOnce(context.Background())).To(gomega.Succeed())

	// Simulate a redelivery: flip the AppWrapper back to un-dispatched
	// the way a retried cycle might observe it mid-flight, with the Job
	// already created on the Spoke from the first attempt.
	aw, _ := s.GetAppWrapper("job-1")
	aw.Status.Dispatched = false
	aw.Status.Phase = v1alpha1.PhasePending
	g.Expect(s.UpdateAppWrapper("job-1", aw)).To(gomega.Succeed())

	g.Expect(d.RunOnce(context.Background())).To(gomega.Succeed())

	list, err := client.BatchV1().Jobs("default").List(context.Background(), metav1.ListOptions{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(list.Items).To(gomega.HaveLen(1))

	aw, ok := s.GetAppWrapper("job-1")
	g.Expect(ok).To(gomega.BeTrue())
	g.Expect(aw.Status.Dispatched).To(gomega.BeTrue())
}

func TestDispatchSkipsClosedGate(t *testing.T) {
	g := gomega.NewWithT(t)
	s := store.New()
	cluster := "CA"
	aw := v1alpha1.NewAppWrapper(v1alpha1.NewAppWrapperSpec("job-1", 2, 4, 0, 30, 60))
	aw.Spec.TargetCluster = &cluster
	g.Expect(s.AddAppWrapper(aw)).To(gomega.Succeed())

	client := fake.NewSimpleClientset()
	d := dispatcher.New(s, metrics.New(), dispatcher.Config{Namespace: "default"}, fakeFactory(client))

	g.Expect(d.RunOnce(context.Background())).To(gomega.Succeed())

	list, err := client.BatchV1().Jobs("default").List(context.Background(), metav1.ListOptions{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(list.Items).To(gomega.BeEmpty())
}
