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

// Package store holds HubStore, the Hub's single concurrent registry
// of AppWrappers and ClusterInfo. It is the only place either of
// those types is mutated; every other component reads snapshots from
// it and writes back through it.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"

	v1alpha1 "github.com/CodeY0ung/carbon/pkg/apis/v1alpha1"
)

// DuplicateJobIDError is returned by AddAppWrapper when job_id is
// already registered.
type DuplicateJobIDError struct{ JobID string }

func (e *DuplicateJobIDError) Error() string {
	return fmt.Sprintf("appwrapper %q already exists", e.JobID)
}

// NotFoundError is returned when an operation names an AppWrapper or
// ClusterInfo that isn't registered.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// Stats is the aggregate view returned by Stats().
type Stats struct {
	TotalAppWrappers int
	Pending          int
	Running          int
	Completed        int
	TotalClusters    int
	ReadyClusters    int
}

// HubStore is a coarse-lock concurrent registry for AppWrappers and
// ClusterInfo. A single RWMutex serializes all mutations; reads share
// its read lock;
// spec.md §4.2 explicitly allows this because write rate is low.
type HubStore struct {
	mu sync.RWMutex

	appwrappers map[string]v1alpha1.AppWrapper
	clusters    map[string]v1alpha1.ClusterInfo
}

// New returns an empty HubStore.
func New() *HubStore {
	return &HubStore{
		appwrappers: map[string]v1alpha1.AppWrapper{},
		clusters:    map[string]v1alpha1.ClusterInfo{},
	}
}

// AddAppWrapper registers a newly submitted AppWrapper. It fails with
// *DuplicateJobIDError if job_id is already present.
func (s *HubStore) AddAppWrapper(aw v1alpha1.AppWrapper) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobID := aw.Spec.JobID
	if _, exists := s.appwrappers[jobID]; exists {
		return &DuplicateJobIDError{JobID: jobID}
	}
	s.appwrappers[jobID] = aw
	return nil
}

// GetAppWrapper returns a snapshot of one AppWrapper, if present.
func (s *HubStore) GetAppWrapper(jobID string) (v1alpha1.AppWrapper, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	aw, ok := s.appwrappers[jobID]
	return aw, ok
}

// GetAllAppWrappers returns a snapshot of every registered AppWrapper.
func (s *HubStore) GetAllAppWrappers() []v1alpha1.AppWrapper {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]v1alpha1.AppWrapper, 0, len(s.appwrappers))
	for _, aw := range s.appwrappers {
		out = append(out, aw)
	}
	return out
}

// UpdateAppWrapper atomically replaces a registered AppWrapper. It
// fails with *NotFoundError if job_id is absent.
func (s *HubStore) UpdateAppWrapper(jobID string, aw v1alpha1.AppWrapper) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.appwrappers[jobID]; !exists {
		return &NotFoundError{Kind: "appwrapper", Name: jobID}
	}
	s.appwrappers[jobID] = aw
	return nil
}

// RemoveAppWrapper deletes an AppWrapper by job_id, returning whether
// it existed.
func (s *HubStore) RemoveAppWrapper(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.appwrappers[jobID]; !exists {
		return false
	}
	delete(s.appwrappers, jobID)
	return true
}

// PendingAppWrappers returns AppWrappers with no target_cluster, or
// with a closed gate while still Pending — the set HubScheduler must
// consider on its next cycle.
func (s *HubStore) PendingAppWrappers() []v1alpha1.AppWrapper {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Filter(lo.Values(s.appwrappers), func(aw v1alpha1.AppWrapper, _ int) bool {
		if aw.Spec.TargetCluster == nil {
			return true
		}
		return aw.Spec.AnyGateClosed() && aw.Status.Phase == v1alpha1.PhasePending
	})
}

// RunningAppWrappers returns AppWrappers currently in the Running
// phase — the set that could be migration candidates.
func (s *HubStore) RunningAppWrappers() []v1alpha1.AppWrapper {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Filter(lo.Values(s.appwrappers), func(aw v1alpha1.AppWrapper, _ int) bool {
		return aw.Status.Phase == v1alpha1.PhaseRunning
	})
}

// UpdateClusterInfo upserts a Spoke's reported state. If the caller
// left LastUpdated zero, the store stamps it with the current time.
func (s *HubStore) UpdateClusterInfo(ci v1alpha1.ClusterInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ci.LastUpdated.IsZero() {
		ci.LastUpdated = time.Now()
	}
	s.clusters[ci.Name] = ci
}

// GetClusterInfo returns a snapshot of one Spoke's info, if present.
func (s *HubStore) GetClusterInfo(name string) (v1alpha1.ClusterInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ci, ok := s.clusters[name]
	return ci, ok
}

// GetAllClusterInfo returns a snapshot of every registered Spoke.
func (s *HubStore) GetAllClusterInfo() []v1alpha1.ClusterInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Values(s.clusters)
}

// ReadyClusters returns only the Spokes currently reporting Ready.
func (s *HubStore) ReadyClusters() []v1alpha1.ClusterInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Filter(lo.Values(s.clusters), func(ci v1alpha1.ClusterInfo, _ int) bool {
		return ci.Status == v1alpha1.ClusterReady
	})
}

// Stats returns aggregated counts across AppWrappers and clusters.
func (s *HubStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		TotalAppWrappers: len(s.appwrappers),
		TotalClusters:    len(s.clusters),
	}
	for _, aw := range s.appwrappers {
		switch aw.Status.Phase {
		case v1alpha1.PhasePending:
			stats.Pending++
		case v1alpha1.PhaseRunning:
			stats.Running++
		case v1alpha1.PhaseCompleted:
			stats.Completed++
		}
	}
	for _, ci := range s.clusters {
		if ci.Status == v1alpha1.ClusterReady {
			stats.ReadyClusters++
		}
	}
	return stats
}
