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

// Command hub runs the carbon-aware Hub: it loads its configuration
// from the environment, wires every component through pkg/hub, and
// runs until an interrupt or termination signal arrives. It never
// opens an HTTP listener — no /metrics endpoint, no REST API — those
// are external collaborators per spec.md §1.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"knative.dev/pkg/logging"

	v1alpha1 "github.com/CodeY0ung/carbon/pkg/apis/v1alpha1"
	"github.com/CodeY0ung/carbon/pkg/carbon"
	"github.com/CodeY0ung/carbon/pkg/dispatcher"
	"github.com/CodeY0ung/carbon/pkg/hub"
	"github.com/CodeY0ung/carbon/pkg/optimizer"
	"github.com/CodeY0ung/carbon/pkg/scheduler"
)

func main() {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer zapLogger.Sync() //nolint:errcheck
	logger := zapLogger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	cfg := loadConfig()

	monitor := carbon.NewFromConfig(cfg.carbon, cfg.electricityMapAPIKey, cfg.useMockData, time.Now().UnixNano())
	h := hub.New(cfg.hub, monitor, optimizer.New())

	logger.Infow("starting carbon hub",
		"zones", cfg.carbon.Zones,
		"mockData", cfg.useMockData,
		"clusters", len(cfg.hub.Clusters),
	)

	if err := h.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatalw("hub exited with error", "error", err)
	}
	logger.Info("carbon hub shut down cleanly")
}

type appConfig struct {
	carbon               carbon.Config
	hub                  hub.Config
	electricityMapAPIKey string
	useMockData          bool
}

// loadConfig reads every environment variable spec.md §6 names into a
// typed Config, applying the documented defaults for anything unset.
func loadConfig() appConfig {
	zones := splitCSV(os.Getenv("CARBON_ZONES"))
	if len(zones) == 0 {
		zones = []string{"CA", "BR", "BO", "CN", "KR", "JP"}
	}

	clusters := make([]hub.ClusterSeed, 0, len(zones))
	for _, z := range zones {
		clusters = append(clusters, hub.ClusterSeed{
			Name:              z,
			Geolocation:       z,
			CarbonZone:        z,
			KubeconfigContext: envOrDefault("SPOKE_KUBECONFIG_CONTEXT_"+z, z),
			Resources: v1alpha1.ClusterResources{
				CPUAvailable: envFloat("SPOKE_CPU_"+z, 64), CPUTotal: envFloat("SPOKE_CPU_"+z, 64),
				MemAvailableGB: envFloat("SPOKE_MEM_GB_"+z, 256), MemTotalGB: envFloat("SPOKE_MEM_GB_"+z, 256),
				GPUAvailable: envInt("SPOKE_GPU_"+z, 0), GPUTotal: envInt("SPOKE_GPU_"+z, 0),
			},
		})
	}

	return appConfig{
		electricityMapAPIKey: os.Getenv("ELECTRICITYMAP_API_KEY"),
		useMockData:          envBool("USE_MOCK_DATA", true),
		carbon: carbon.Config{
			Zones:        zones,
			PollInterval: time.Duration(envInt("carbon_poll_interval_s", 20)) * time.Second,
		},
		hub: hub.Config{
			Clusters:            clusters,
			ClusterSyncInterval: 15 * time.Second,
			Scheduler: scheduler.Config{
				Interval:     time.Duration(envInt("schedule_interval_s", 300)) * time.Second,
				HorizonSlots: envInt64("SCHEDULE_HORIZON_SLOTS", 12),
				SlotSeconds:  envFloat("SCHEDULE_SLOT_SECONDS", 300),
				Regions:      zones,
				Costs: scheduler.Costs{
					WattCPU:       envFloat("COST_WATT_CPU", 30),
					LambdaPlanDev: envFloat("COST_LAMBDA_PLAN_DEV", 100),
				},
				MigrationAllow: envBool("MIGRATION_ALLOW", true),
			},
			Dispatcher: dispatcher.Config{
				Interval:       time.Duration(envInt("dispatch_interval_s", 30)) * time.Second,
				KubeconfigPath: os.Getenv("KUBECONFIG"),
				Namespace:      envOrDefault("DISPATCH_NAMESPACE", "default"),
			},
		},
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	return int64(envInt(key, int(def)))
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
