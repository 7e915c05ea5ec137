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

import (
	"fmt"
	"time"
)

// GateStatus is a dispatching gate's open/closed state.
type GateStatus string

const (
	GateOpen   GateStatus = "open"
	GateClosed GateStatus = "closed"
)

// Phase is an AppWrapper's lifecycle phase.
type Phase string

const (
	PhasePending   Phase = "Pending"
	PhaseRunning   Phase = "Running"
	PhaseCompleted Phase = "Completed"
	PhaseFailed    Phase = "Failed"
)

// DispatchingGate gates HubDispatcher from creating the underlying Job
// until a sustainability decision has been made for the AppWrapper.
type DispatchingGate struct {
	Name   string
	Status GateStatus
	Reason string
}

// NewSustainabilityGate returns the single default gate a freshly
// submitted AppWrapper carries, matching the original's
// "sustainability-gate" default.
func NewSustainabilityGate() DispatchingGate {
	return DispatchingGate{Name: "sustainability-gate", Status: GateClosed}
}

// AppWrapperSpec is a JobSpec extended with dispatch-relevant fields:
// the container to run and where (once decided) to run it.
type AppWrapperSpec struct {
	JobID string

	CPU     float64
	MemGB   float64
	GPU     int64
	DataGB  float64
	Image   string
	Command []string

	RuntimeMinutes  int64
	DeadlineMinutes int64

	AffinityClusters []string

	// TargetCluster is set only by HubScheduler.
	TargetCluster *string

	// EstimatedCO2KG is the scheduling decision's carbon-plus-migration
	// cost estimate for this job, set alongside TargetCluster.
	EstimatedCO2KG float64

	DispatchingGates []DispatchingGate
}

// NewAppWrapperSpec applies the original's defaults (busybox image,
// "sleep 3600" command, one closed sustainability gate) to a
// caller-supplied spec.
func NewAppWrapperSpec(jobID string, cpu, memGB float64, gpu int64, runtimeMinutes, deadlineMinutes int64) AppWrapperSpec {
	return AppWrapperSpec{
		JobID:            jobID,
		CPU:              cpu,
		MemGB:            memGB,
		GPU:              gpu,
		RuntimeMinutes:   runtimeMinutes,
		DeadlineMinutes:  deadlineMinutes,
		Image:            "busybox:latest",
		Command:          []string{"sleep", "3600"},
		DispatchingGates: []DispatchingGate{NewSustainabilityGate()},
	}
}

// Validate enforces the submission-time invariants of spec.md §3.
func (s AppWrapperSpec) Validate() error {
	if s.JobID == "" {
		return fmt.Errorf("job_id must not be empty")
	}
	if s.CPU <= 0 {
		return fmt.Errorf("cpu must be positive")
	}
	if s.MemGB <= 0 {
		return fmt.Errorf("mem_gb must be positive")
	}
	if s.GPU < 0 {
		return fmt.Errorf("gpu must be non-negative")
	}
	if s.RuntimeMinutes <= 0 {
		return fmt.Errorf("runtime_minutes must be positive")
	}
	if s.DeadlineMinutes <= 0 {
		return fmt.Errorf("deadline_minutes must be positive")
	}
	if s.DataGB < 0 {
		return fmt.Errorf("data_gb must be non-negative")
	}
	return nil
}

// AllGatesOpen reports whether every dispatching gate is open.
func (s AppWrapperSpec) AllGatesOpen() bool {
	for _, g := range s.DispatchingGates {
		if g.Status != GateOpen {
			return false
		}
	}
	return true
}

// AnyGateClosed reports whether at least one gate is still closed.
func (s AppWrapperSpec) AnyGateClosed() bool {
	return !s.AllGatesOpen()
}

// AppWrapperStatus is the lifecycle state HubDispatcher (and, in
// production, the Spoke) maintain.
type AppWrapperStatus struct {
	Phase      Phase
	Dispatched bool

	Cluster *string

	StartTime      *time.Time
	CompletionTime *time.Time

	Message string
}

// NewAppWrapperStatus returns the status a freshly submitted
// AppWrapper starts in: Pending, not dispatched.
func NewAppWrapperStatus() AppWrapperStatus {
	return AppWrapperStatus{Phase: PhasePending}
}

// AppWrapper is the Hub's unit of work: metadata, spec, and status.
type AppWrapper struct {
	Metadata map[string]string
	Spec     AppWrapperSpec
	Status   AppWrapperStatus
}

// NewAppWrapper constructs a freshly submitted AppWrapper in its
// required initial state: Pending, not dispatched, no target cluster,
// all gates closed.
func NewAppWrapper(spec AppWrapperSpec) AppWrapper {
	spec.TargetCluster = nil
	for i := range spec.DispatchingGates {
		spec.DispatchingGates[i].Status = GateClosed
	}
	return AppWrapper{
		Metadata: map[string]string{},
		Spec:     spec,
		Status:   NewAppWrapperStatus(),
	}
}

// CheckInvariants validates the cross-field invariants spec.md §3
// requires to hold at all times under the store lock. HubStore's write
// paths do not call it; callers invoke it explicitly.
func (aw AppWrapper) CheckInvariants() error {
	if aw.Status.Dispatched {
		if aw.Spec.TargetCluster == nil || *aw.Spec.TargetCluster == "" {
			return fmt.Errorf("appwrapper %s: dispatched=true but target_cluster is empty", aw.Spec.JobID)
		}
		if !aw.Spec.AllGatesOpen() {
			return fmt.Errorf("appwrapper %s: dispatched=true but a gate is closed", aw.Spec.JobID)
		}
	}
	switch aw.Status.Phase {
	case PhaseRunning, PhaseCompleted, PhaseFailed:
		if !aw.Status.Dispatched {
			return fmt.Errorf("appwrapper %s: phase=%s but dispatched=false", aw.Spec.JobID, aw.Status.Phase)
		}
	}
	return nil
}
