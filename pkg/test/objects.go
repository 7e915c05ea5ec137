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

// Package test holds object builders used across this repository's
// test suites, mirroring the teacher's own pkg/test: a single place
// for the fixture-construction boilerplate every package's tests would
// otherwise repeat.
package test

import (
	"fmt"
	"sync/atomic"

	v1alpha1 "github.com/CodeY0ung/carbon/pkg/apis/v1alpha1"
)

var jobIDSequence uint64

// JobID returns a unique, human-readable job id for a test, so
// parallel tests never collide on HubStore's uniqueness constraint.
func JobID() string {
	return fmt.Sprintf("test-job-%d", atomic.AddUint64(&jobIDSequence, 1))
}

// AppWrapperOptions overrides AppWrapper's defaults.
type AppWrapperOptions struct {
	JobID            string
	CPU              float64
	MemGB            float64
	GPU              int64
	DataGB           float64
	RuntimeMinutes   int64
	DeadlineMinutes  int64
	AffinityClusters []string
}

// AppWrapper builds a valid, pending AppWrapper for tests, applying
// sensible defaults for anything the caller leaves zero-valued.
func AppWrapper(opts AppWrapperOptions) v1alpha1.AppWrapper {
	if opts.JobID == "" {
		opts.JobID = JobID()
	}
	if opts.CPU == 0 {
		opts.CPU = 2
	}
	if opts.MemGB == 0 {
		opts.MemGB = 4
	}
	if opts.RuntimeMinutes == 0 {
		opts.RuntimeMinutes = 30
	}
	if opts.DeadlineMinutes == 0 {
		opts.DeadlineMinutes = 60
	}

	spec := v1alpha1.NewAppWrapperSpec(opts.JobID, opts.CPU, opts.MemGB, opts.GPU, opts.RuntimeMinutes, opts.DeadlineMinutes)
	spec.DataGB = opts.DataGB
	spec.AffinityClusters = opts.AffinityClusters
	return v1alpha1.NewAppWrapper(spec)
}

// DispatchableAppWrapper builds an AppWrapper already targeted at a
// cluster with every dispatching gate open — the state the
// dispatcher's RunOnce is looking for.
func DispatchableAppWrapper(opts AppWrapperOptions, cluster string) v1alpha1.AppWrapper {
	aw := AppWrapper(opts)
	aw.Spec.TargetCluster = &cluster
	for i := range aw.Spec.DispatchingGates {
		aw.Spec.DispatchingGates[i].Status = v1alpha1.GateOpen
	}
	return aw
}

// ClusterInfoOptions overrides ClusterInfo's defaults.
type ClusterInfoOptions struct {
	Name              string
	Status            v1alpha1.ClusterStatus
	CarbonIntensity   float64
	KubeconfigContext string
	Resources         v1alpha1.ClusterResources
}

// ClusterInfo builds a ready ClusterInfo for tests with generous
// default capacity.
func ClusterInfo(opts ClusterInfoOptions) v1alpha1.ClusterInfo {
	if opts.Name == "" {
		opts.Name = "test-cluster"
	}
	if opts.Status == "" {
		opts.Status = v1alpha1.ClusterReady
	}
	if opts.Resources == (v1alpha1.ClusterResources{}) {
		opts.Resources = v1alpha1.ClusterResources{
			CPUAvailable: 100, CPUTotal: 100,
			MemAvailableGB: 200, MemTotalGB: 200,
			GPUAvailable: 8, GPUTotal: 8,
		}
	}
	return v1alpha1.ClusterInfo{
		Name:              opts.Name,
		CarbonIntensity:   opts.CarbonIntensity,
		Status:            opts.Status,
		Resources:         opts.Resources,
		KubeconfigContext: opts.KubeconfigContext,
	}
}
