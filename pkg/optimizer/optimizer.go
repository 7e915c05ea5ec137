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

// Package optimizer turns a scheduling instance (jobs, capacities,
// carbon intensities, a previous plan) into a time-indexed placement
// that minimizes carbon plus migration cost. The Solver interface is
// the module's one real variation point, mirrored on the teacher's
// small, swappable cloudprovider.CloudProvider interface: a single
// "solve" operation that production wraps around a real algorithm and
// tests replace with a deterministic stub.
package optimizer

import (
	"context"
	"time"

	v1alpha1 "github.com/CodeY0ung/carbon/pkg/apis/v1alpha1"
)

// SolverStatus mirrors the enum spec.md §4.3 requires.
type SolverStatus string

const (
	StatusOptimal     SolverStatus = "Optimal"
	StatusFeasible    SolverStatus = "Feasible"
	StatusInfeasible  SolverStatus = "Infeasible"
	StatusTimeLimit   SolverStatus = "TimeLimit"
	StatusUnknown     SolverStatus = "Unknown"
	migrationConstant              = 1e6 // M: prohibitive penalty when migration_allow is false
)

// PrevPlacement is where a job was previously placed, for migration
// accounting.
type PrevPlacement struct {
	Region string
}

// Input bundles everything the Optimizer needs for one solve.
type Input struct {
	Jobs         []v1alpha1.JobSpec
	Capacities   []v1alpha1.ClusterCapacity
	Carbons      []v1alpha1.CarbonPoint
	Regions      []string
	SlotSeconds  float64
	HorizonSlots int64

	// Costs recognizes "watt_cpu" (default 30) and "lambda_plan_dev"
	// (default 100).
	Costs map[string]float64

	// NetworkCosts[from][to] is cost per GB migrated from region "from"
	// to region "to".
	NetworkCosts map[string]map[string]float64

	MigrationAllow bool

	PrevPlan map[string]PrevPlacement

	// TimeLimit bounds the solver's wall-clock budget; zero means the
	// spec.md §4.3 default of 10s.
	TimeLimit time.Duration
}

func (in Input) wattCPU() float64 {
	if v, ok := in.Costs["watt_cpu"]; ok {
		return v
	}
	return 30.0
}

func (in Input) lambdaPlanDev() float64 {
	if v, ok := in.Costs["lambda_plan_dev"]; ok {
		return v
	}
	return 100.0
}

func (in Input) slotHours() float64 {
	h := in.SlotSeconds / 3600.0
	if h <= 0 {
		return 0.0001
	}
	return h
}

func (in Input) timeLimit() time.Duration {
	if in.TimeLimit > 0 {
		return in.TimeLimit
	}
	return 10 * time.Second
}

func (in Input) networkCost(from, to string) float64 {
	if in.NetworkCosts == nil {
		return 0
	}
	m, ok := in.NetworkCosts[from]
	if !ok {
		return 0
	}
	return m[to]
}

// Output is what a Solver returns for one Input.
type Output struct {
	Plans []v1alpha1.PlanItem

	// CO2EstimateKG is the full objective value (carbon + migration
	// penalties) converted to kilograms. Per spec.md §9 Open Question 1
	// this is an optimization score, not a pure emissions figure.
	CO2EstimateKG float64

	// PureCO2EstimateKG is the carbon-only component of the objective
	// (migration penalties excluded), surfaced alongside CO2EstimateKG
	// so a consumer that wants actual emissions doesn't have to
	// subtract out the migration accounting itself.
	PureCO2EstimateKG float64

	SolverStatus SolverStatus
	Migrations   int
}

// Solver is the Optimizer's one variation point.
type Solver interface {
	Solve(ctx context.Context, in Input) (Output, error)
}
