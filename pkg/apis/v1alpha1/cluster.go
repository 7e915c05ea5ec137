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

package v1alpha1

import "time"

// ClusterStatus is the Spoke readiness reported to the Hub.
type ClusterStatus string

const (
	ClusterReady    ClusterStatus = "ready"
	ClusterNotReady ClusterStatus = "not_ready"
	ClusterUnknown  ClusterStatus = "unknown"
)

// ClusterResources is a snapshot of a Spoke's allocatable capacity.
type ClusterResources struct {
	CPUAvailable float64
	CPUTotal     float64

	MemAvailableGB float64
	MemTotalGB     float64

	GPUAvailable int64
	GPUTotal     int64
}

// Validate enforces the "_available <= _total" invariant from spec.md §3.
func (r ClusterResources) Validate() error {
	if r.CPUAvailable > r.CPUTotal {
		return errClusterResource("cpu_available exceeds cpu_total")
	}
	if r.MemAvailableGB > r.MemTotalGB {
		return errClusterResource("mem_available_gb exceeds mem_total_gb")
	}
	if r.GPUAvailable > r.GPUTotal {
		return errClusterResource("gpu_available exceeds gpu_total")
	}
	return nil
}

func errClusterResource(msg string) error { return clusterResourceError(msg) }

type clusterResourceError string

func (e clusterResourceError) Error() string { return string(e) }

// ClusterInfo is everything the Hub knows about one Spoke.
type ClusterInfo struct {
	Name        string
	Geolocation string

	CarbonIntensity float64
	Status          ClusterStatus
	Resources       ClusterResources

	KubeconfigContext string

	// LastUpdated is monotone non-decreasing per Name under the store's lock.
	LastUpdated time.Time
}
