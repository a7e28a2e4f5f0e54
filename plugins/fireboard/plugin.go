package fireboard

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/joshp123/gohome-fireboard/internal/config"
	"github.com/joshp123/gohome-fireboard/internal/core"
)

//go:embed AGENTS.md
var agentsMD string

//go:embed dashboard.json
var dashboardJSON []byte

// Plugin implements the GoHome plugin contract.
type Plugin struct {
	instances     *core.Instances[*Coordinator]
	logger        logr.Logger
	health        core.HealthStatus
	healthMessage string
}

// NewPlugin constructs a FireBoard plugin with one coordinator per config
// entry, all sharing httpClient's transport.
func NewPlugin(cfg *config.FireboardConfig, httpClient *http.Client, logger logr.Logger) (Plugin, bool) {
	if cfg == nil {
		return Plugin{}, false
	}

	logger = logger.WithName("fireboard")
	instances := core.NewInstances[*Coordinator]()
	for _, entry := range cfg.Entries {
		runtimeCfg, err := ConfigFromEntry(entry)
		if err != nil {
			return Plugin{health: core.HealthError, healthMessage: fmt.Sprintf("%s: %v", entry.ID, err)}, true
		}
		client, err := NewClient(runtimeCfg, httpClient)
		if err != nil {
			return Plugin{health: core.HealthError, healthMessage: fmt.Sprintf("%s: %v", entry.ID, err)}, true
		}
		if err := instances.Insert(entry.ID, NewCoordinator(runtimeCfg, client, logger)); err != nil {
			return Plugin{health: core.HealthError, healthMessage: err.Error()}, true
		}
	}

	return Plugin{instances: instances, logger: logger, health: core.HealthHealthy}, true
}

func (p Plugin) ID() string {
	return "fireboard"
}

func (p Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    "fireboard",
		DisplayName: "FireBoard",
		Version:     "0.1.0",
		Services:    []string{ServiceName},
	}
}

func (p Plugin) AgentsMD() string {
	return agentsMD
}

func (p Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "fireboard-overview", JSON: dashboardJSON}}
}

func (p Plugin) RegisterGRPC(server *grpc.Server) {
	RegisterFireBoardService(server, p.instances)
}

func (p Plugin) Collectors() []prometheus.Collector {
	if p.instances == nil {
		return nil
	}
	return append(MetricsCollectors(), NewMetricsCollector(p.instances.All()))
}

// Instances exposes the running coordinators keyed by entry ID.
func (p Plugin) Instances() *core.Instances[*Coordinator] {
	return p.instances
}

// Run polls every entry until ctx is done, then removes the entries.
func (p Plugin) Run(ctx context.Context) error {
	if p.instances == nil {
		return nil
	}
	group, ctx := errgroup.WithContext(ctx)
	for _, coordinator := range p.instances.All() {
		group.Go(func() error {
			defer p.instances.Remove(coordinator.EntryID())
			return coordinator.Run(ctx)
		})
	}
	return group.Wait()
}

func (p Plugin) Health() core.HealthStatus {
	if p.health != core.HealthHealthy || p.instances == nil {
		return p.health
	}
	for _, coordinator := range p.instances.All() {
		if coordinator.Status().LastError != nil {
			return core.HealthDegraded
		}
	}
	return core.HealthHealthy
}

func (p Plugin) HealthMessage() string {
	if p.healthMessage != "" || p.instances == nil {
		return p.healthMessage
	}
	var failing []string
	for _, coordinator := range p.instances.All() {
		if err := coordinator.Status().LastError; err != nil {
			failing = append(failing, fmt.Sprintf("%s: %v", coordinator.EntryID(), err))
		}
	}
	return strings.Join(failing, "; ")
}
