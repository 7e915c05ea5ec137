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

// Package dispatcher holds HubDispatcher: the periodic loop that
// turns an AppWrapper with every dispatching gate open into a batchv1
// Job Create call against its target Spoke. It never watches or
// reconciles what it creates — a single unwatched Create per
// AppWrapper, against whichever of N Spokes was chosen — so it talks
// to each Spoke through a plain client-go Clientset rather than the
// teacher's controller-runtime manager, which assumes one reconciled
// cluster. This mirrors the original implementation's direct
// kubernetes.client / config.load_kube_config(context=...) usage.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/utils/clock"
	"knative.dev/pkg/logging"

	v1alpha1 "github.com/CodeY0ung/carbon/pkg/apis/v1alpha1"
	"github.com/CodeY0ung/carbon/pkg/metrics"
	"github.com/CodeY0ung/carbon/pkg/store"
)

// ClientFactory builds a Kubernetes Clientset for a Spoke, addressed
// by the kubeconfig context name recorded on its ClusterInfo.
// Production wires kubeconfigClientFactory; tests substitute a fake
// that returns a fake.Clientset.
type ClientFactory func(kubeconfigPath, kubeconfigContext string) (kubernetes.Interface, error)

func kubeconfigClientFactory(kubeconfigPath, kubeconfigContext string) (kubernetes.Interface, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	loadingRules.ExplicitPath = kubeconfigPath
	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		loadingRules,
		&clientcmd.ConfigOverrides{CurrentContext: kubeconfigContext},
	).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig context %q: %w", kubeconfigContext, err)
	}
	return kubernetes.NewForConfig(cfg)
}

// Config parameterizes one HubDispatcher.
type Config struct {
	Interval       time.Duration
	KubeconfigPath string
	Namespace      string
}

func (c Config) interval() time.Duration {
	if c.Interval > 0 {
		return c.Interval
	}
	return 30 * time.Second
}

func (c Config) namespace() string {
	if c.Namespace != "" {
		return c.Namespace
	}
	return "default"
}

// HubDispatcher finds AppWrappers that have cleared every dispatching
// gate and creates their Job on the chosen Spoke.
type HubDispatcher struct {
	store    *store.HubStore
	registry *metrics.Registry
	cfg      Config
	factory  ClientFactory
	clock    clock.Clock

	mu      sync.Mutex
	clients map[string]kubernetes.Interface
}

// New builds a HubDispatcher. Pass nil for factory to use the default
// kubeconfig-context-based one.
func New(s *store.HubStore, registry *metrics.Registry, cfg Config, factory ClientFactory) *HubDispatcher {
	if factory == nil {
		factory = kubeconfigClientFactory
	}
	return &HubDispatcher{
		store:    s,
		registry: registry,
		cfg:      cfg,
		factory:  factory,
		clock:    clock.RealClock{},
		clients:  map[string]kubernetes.Interface{},
	}
}

// WithClock overrides the dispatcher's clock, for tests that need a
// deterministic StartTime.
func (d *HubDispatcher) WithClock(c clock.Clock) *HubDispatcher {
	d.clock = c
	return d
}

// Start runs RunOnce on cfg.Interval until ctx is cancelled.
func (d *HubDispatcher) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	_, err := c.AddFunc(fmt.Sprintf("@every %s", d.cfg.interval()), func() {
		if err := d.RunOnce(ctx); err != nil {
			logging.FromContext(ctx).Errorw("dispatch cycle failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("dispatch cron schedule: %w", err)
	}
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

// RunOnce dispatches every AppWrapper with an open gate set and an
// assigned target cluster that hasn't been dispatched yet.
func (d *HubDispatcher) RunOnce(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	var errs error
	for _, aw := range d.store.GetAllAppWrappers() {
		if !d.dispatchable(aw) {
			continue
		}
		if err := d.dispatch(ctx, aw); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("appwrapper %s: %w", aw.Spec.JobID, err))
			d.registry.ObserveDispatch(*aw.Spec.TargetCluster, "error")
			logger.Errorw("dispatch failed", "job", aw.Spec.JobID, "cluster", *aw.Spec.TargetCluster, "error", err)
		}
	}
	return errs
}

func (d *HubDispatcher) dispatchable(aw v1alpha1.AppWrapper) bool {
	return !aw.Status.Dispatched &&
		aw.Spec.TargetCluster != nil &&
		aw.Spec.AllGatesOpen()
}

func (d *HubDispatcher) dispatch(ctx context.Context, aw v1alpha1.AppWrapper) error {
	cluster := *aw.Spec.TargetCluster
	ci, ok := d.store.GetClusterInfo(cluster)
	if !ok {
		return fmt.Errorf("target cluster %q is unknown to the store", cluster)
	}

	client, err := d.clientFor(ci)
	if err != nil {
		return fmt.Errorf("building client for cluster %q: %w", cluster, err)
	}

	job := buildJob(aw, d.cfg.namespace())
	_, err = client.BatchV1().Jobs(d.cfg.namespace()).Create(ctx, job, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("creating job: %w", err)
	}

	outcome := "created"
	if apierrors.IsAlreadyExists(err) {
		outcome = "already_exists"
	}
	d.registry.ObserveDispatch(cluster, outcome)

	return d.markDispatched(aw, cluster)
}

// markDispatched flips an AppWrapper's status to Running with its
// start time recorded, then writes it back through the store. It is
// called after a successful Create — including the already-exists
// case, which spec.md §4.5 treats as idempotent success so a dispatch
// retry never double-books a Job.
func (d *HubDispatcher) markDispatched(aw v1alpha1.AppWrapper, cluster string) error {
	now := d.clock.Now()
	aw.Status.Dispatched = true
	aw.Status.Phase = v1alpha1.PhaseRunning
	aw.Status.Cluster = &cluster
	aw.Status.StartTime = &now
	return d.store.UpdateAppWrapper(aw.Spec.JobID, aw)
}

// clientFor returns the cached Clientset for a Spoke, building and
// caching it lazily on first use.
func (d *HubDispatcher) clientFor(ci v1alpha1.ClusterInfo) (kubernetes.Interface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.clients[ci.Name]; ok {
		return c, nil
	}
	c, err := d.factory(d.cfg.KubeconfigPath, ci.KubeconfigContext)
	if err != nil {
		return nil, err
	}
	d.clients[ci.Name] = c
	return c, nil
}

// buildJob constructs the Job manifest exactly per spec.md §4.5: one
// container running the AppWrapper's image and command, requests
// equal to limits, Never restart policy, a bounded backoff, and a
// TTL so finished Jobs clean themselves up.
func buildJob(aw v1alpha1.AppWrapper, namespace string) *batchv1.Job {
	backoffLimit := int32(3)
	ttl := int32(3600)

	resources := corev1.ResourceList{
		corev1.ResourceCPU:    resource.MustParse(fmt.Sprintf("%.3f", aw.Spec.CPU)),
		corev1.ResourceMemory: resource.MustParse(fmt.Sprintf("%.3fGi", aw.Spec.MemGB)),
	}
	if aw.Spec.GPU > 0 {
		resources["nvidia.com/gpu"] = resource.MustParse(fmt.Sprintf("%d", aw.Spec.GPU))
	}

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      aw.Spec.JobID,
			Namespace: namespace,
			Labels: map[string]string{
				"app":          "carbon-hub",
				"job-id":       aw.Spec.JobID,
				"scheduled-by": "carbon-hub",
			},
			Annotations: map[string]string{
				"carbon-hub/target-cluster": *aw.Spec.TargetCluster,
				"carbon-hub/estimated-co2":  fmt.Sprintf("%.6f", aw.Spec.EstimatedCO2KG),
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:    "workload",
							Image:   aw.Spec.Image,
							Command: aw.Spec.Command,
							Resources: corev1.ResourceRequirements{
								Requests: resources,
								Limits:   resources,
							},
						},
					},
				},
			},
		},
	}
}
