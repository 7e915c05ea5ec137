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

// Package scheduler holds HubScheduler, the periodic loop that turns
// HubStore's pending AppWrappers into an optimizer.Solver call and
// writes the resulting plan back. It plays the role the teacher's
// Provisioner plays for pods: batch what's waiting, price it, bind
// the result — generalized here from a single cluster's bin-packing
// to a carbon-priced, multi-cluster, time-indexed placement.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"knative.dev/pkg/logging"

	v1alpha1 "github.com/CodeY0ung/carbon/pkg/apis/v1alpha1"
	"github.com/CodeY0ung/carbon/pkg/metrics"
	"github.com/CodeY0ung/carbon/pkg/optimizer"
	"github.com/CodeY0ung/carbon/pkg/store"
)

// Costs carries the cost-model constants spec.md §4.3 names:
// watt_cpu (average draw a CPU core pulls, watts) and
// lambda_plan_dev (flat penalty, gCO2-equivalent, charged for moving
// a job off its previous placement).
type Costs struct {
	WattCPU       float64
	LambdaPlanDev float64
}

// NetworkCost is the per-GB carbon cost the default config charges
// for migrating a job's data between two regions.
type NetworkCost struct {
	From, To  string
	CostPerGB float64
}

// Config parameterizes one HubScheduler.
type Config struct {
	Interval        time.Duration
	HorizonSlots    int64
	SlotSeconds     float64
	Regions         []string
	Costs           Costs
	NetworkCosts    []NetworkCost
	MigrationAllow  bool
	SolverTimeLimit time.Duration
}

func (c Config) interval() time.Duration {
	if c.Interval > 0 {
		return c.Interval
	}
	return 5 * time.Minute
}

// HubScheduler runs the five-step scheduling cycle against a
// HubStore: collect pending work, collect ready clusters, translate
// into an optimizer.Input, solve, apply the result back.
type HubScheduler struct {
	store    *store.HubStore
	solver   optimizer.Solver
	cfg      Config
	registry *metrics.Registry

	// prevPlan remembers each job's last placement across cycles so
	// migration cost can be charged only against an actual move, and so
	// two consecutive cycles over unchanged input produce the same
	// plan: the idempotence law spec.md §8 requires.
	prevPlan map[string]optimizer.PrevPlacement
}

// New builds a HubScheduler. solver is typically optimizer.New(); tests
// substitute optimizer.StubSolver.
func New(s *store.HubStore, solver optimizer.Solver, registry *metrics.Registry, cfg Config) *HubScheduler {
	return &HubScheduler{
		store:    s,
		solver:   solver,
		cfg:      cfg,
		registry: registry,
		prevPlan: map[string]optimizer.PrevPlacement{},
	}
}

// Start runs RunOnce on cfg.Interval until ctx is cancelled. Each tick
// is wrapped in cron.Recover so a single bad cycle logs and moves on
// instead of killing the process, mirroring spec.md §7's
// try/except-per-iteration requirement for periodic loops.
func (h *HubScheduler) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	_, err := c.AddFunc(fmt.Sprintf("@every %s", h.cfg.interval()), func() {
		if err := h.RunOnce(ctx); err != nil {
			logging.FromContext(ctx).Errorw("scheduling cycle failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling cron schedule: %w", err)
	}
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

// RunOnce executes exactly one scheduling cycle.
func (h *HubScheduler) RunOnce(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	pending := h.store.PendingAppWrappers()
	if len(pending) == 0 {
		return nil
	}

	clusters := h.store.ReadyClusters()
	if len(clusters) == 0 {
		logger.Warnw("no ready clusters, deferring scheduling cycle", "pendingJobs", len(pending))
		return nil
	}

	in := h.buildInput(pending, clusters)

	out, err := h.solver.Solve(ctx, in)
	if err != nil {
		return fmt.Errorf("solving placement: %w", err)
	}

	var errs error
	byJob := lo.Associate(out.Plans, func(p v1alpha1.PlanItem) (string, v1alpha1.PlanItem) { return p.JobID, p })
	for _, aw := range pending {
		plan, ok := byJob[aw.Spec.JobID]
		if !ok {
			continue
		}
		if err := h.applyPlan(aw, plan); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("appwrapper %s: %w", aw.Spec.JobID, err))
			continue
		}
		if prev, ok := h.prevPlan[aw.Spec.JobID]; ok && prev.Region != plan.Region {
			h.registry.ObserveMigration(prev.Region, plan.Region, h.cfg.Costs.LambdaPlanDev, aw.Spec.DataGB)
		}
		h.prevPlan[aw.Spec.JobID] = optimizer.PrevPlacement{Region: plan.Region}
	}

	h.registry.ObserveSchedulingCycle(metrics.SchedulingCycleResult{
		Jobs:          len(pending),
		Migrations:    out.Migrations,
		CO2EstimateKG: out.CO2EstimateKG,
		SolverStatus:  string(out.SolverStatus),
	})

	logger.Infow("scheduling cycle complete",
		"jobs", len(pending),
		"migrations", out.Migrations,
		"co2EstimateKg", out.CO2EstimateKG,
		"solverStatus", out.SolverStatus,
	)

	return errs
}

// applyPlan writes one optimizer decision back onto its AppWrapper:
// setting target_cluster opens the sustainability gate, per spec.md
// §4.4's dispatching-gate contract.
func (h *HubScheduler) applyPlan(aw v1alpha1.AppWrapper, plan v1alpha1.PlanItem) error {
	region := plan.Region
	aw.Spec.TargetCluster = &region
	aw.Spec.EstimatedCO2KG = plan.EstimatedCO2KG
	for i := range aw.Spec.DispatchingGates {
		aw.Spec.DispatchingGates[i].Status = v1alpha1.GateOpen
		aw.Spec.DispatchingGates[i].Reason = "sustainability decision made"
	}
	return h.store.UpdateAppWrapper(aw.Spec.JobID, aw)
}

func (h *HubScheduler) buildInput(pending []v1alpha1.AppWrapper, clusters []v1alpha1.ClusterInfo) optimizer.Input {
	jobs := make([]v1alpha1.JobSpec, 0, len(pending))
	for _, aw := range pending {
		jobs = append(jobs, appWrapperToJobSpec(aw, h.cfg.SlotSeconds))
	}

	regions := h.cfg.Regions
	if len(regions) == 0 {
		regions = lo.Map(clusters, func(ci v1alpha1.ClusterInfo, _ int) string { return ci.Name })
	}

	capacities := make([]v1alpha1.ClusterCapacity, 0, len(clusters)*int(h.cfg.HorizonSlots))
	carbons := make([]v1alpha1.CarbonPoint, 0, len(clusters)*int(h.cfg.HorizonSlots))
	for _, ci := range clusters {
		for t := int64(0); t < h.cfg.HorizonSlots; t++ {
			capacities = append(capacities, v1alpha1.ClusterCapacity{
				Region:   ci.Name,
				Slot:     t,
				CPUCap:   ci.Resources.CPUAvailable,
				MemGBCap: ci.Resources.MemAvailableGB,
				GPUCap:   ci.Resources.GPUAvailable,
			})
			carbons = append(carbons, v1alpha1.CarbonPoint{
				Region:       ci.Name,
				Slot:         t,
				CIGCO2PerKWh: ci.CarbonIntensity,
			})
		}
	}

	networkCosts := map[string]map[string]float64{}
	for _, nc := range h.cfg.NetworkCosts {
		if networkCosts[nc.From] == nil {
			networkCosts[nc.From] = map[string]float64{}
		}
		networkCosts[nc.From][nc.To] = nc.CostPerGB
	}

	prevPlan := make(map[string]optimizer.PrevPlacement, len(h.prevPlan))
	for k, v := range h.prevPlan {
		prevPlan[k] = v
	}

	return optimizer.Input{
		Jobs:         jobs,
		Capacities:   capacities,
		Carbons:      carbons,
		Regions:      regions,
		SlotSeconds:  h.cfg.SlotSeconds,
		HorizonSlots: h.cfg.HorizonSlots,
		Costs: map[string]float64{
			"watt_cpu":        h.cfg.Costs.WattCPU,
			"lambda_plan_dev": h.cfg.Costs.LambdaPlanDev,
		},
		NetworkCosts:   networkCosts,
		MigrationAllow: h.cfg.MigrationAllow,
		PrevPlan:       prevPlan,
		TimeLimit:      h.cfg.SolverTimeLimit,
	}
}

// appWrapperToJobSpec translates submission-time fields into the
// optimizer's slot-indexed view, converting wall-clock minutes into
// slot counts at the configured slot granularity.
func appWrapperToJobSpec(aw v1alpha1.AppWrapper, slotSeconds float64) v1alpha1.JobSpec {
	slotMinutes := slotSeconds / 60.0
	if slotMinutes <= 0 {
		slotMinutes = 1
	}
	runtimeSlots := floorDiv(aw.Spec.RuntimeMinutes, slotMinutes)
	deadlineSlots := floorDiv(aw.Spec.DeadlineMinutes, slotMinutes)
	if deadlineSlots < runtimeSlots {
		deadlineSlots = runtimeSlots
	}

	return v1alpha1.JobSpec{
		JobID:           aw.Spec.JobID,
		CPU:             aw.Spec.CPU,
		MemGB:           aw.Spec.MemGB,
		GPU:             aw.Spec.GPU,
		DataGB:          aw.Spec.DataGB,
		RuntimeSlots:    runtimeSlots,
		ReleaseSlot:     0,
		DeadlineSlot:    deadlineSlots,
		AffinityRegions: aw.Spec.AffinityClusters,
	}
}

// floorDiv matches runtime_slots = max(1, floor(runtime_minutes/5)) and,
// for the deadline, max(runtime_slots, floor(deadline_minutes/5)) — the
// caller clamps against runtimeSlots itself.
func floorDiv(minutes int64, slotMinutes float64) int64 {
	if slotMinutes <= 0 {
		return minutes
	}
	slots := int64(float64(minutes) / slotMinutes)
	if slots < 1 {
		slots = 1
	}
	return slots
}
