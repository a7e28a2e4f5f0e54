package fireboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/joshp123/gohome-fireboard/internal/config"
	"github.com/joshp123/gohome-fireboard/internal/core"
)

func pluginConfig(api *fakeAPI) *config.FireboardConfig {
	return &config.FireboardConfig{Entries: []config.FireboardEntry{{
		ID:                    "home",
		Username:              "pit@example.com",
		Password:              "hunter2",
		BaseURL:               api.server.URL,
		PollIntervalSeconds:   3600,
		RefreshTimeoutSeconds: 5,
	}}}
}

func TestNewPluginDisabledWithoutConfig(t *testing.T) {
	if _, ok := NewPlugin(nil, nil, logr.Discard()); ok {
		t.Fatalf("expected plugin to be disabled")
	}
}

func TestNewPluginBadEntry(t *testing.T) {
	cfg := &config.FireboardConfig{Entries: []config.FireboardEntry{{ID: "home", Username: "pit@example.com"}}}
	plugin, ok := NewPlugin(cfg, nil, logr.Discard())
	if !ok {
		t.Fatalf("expected plugin to be enabled")
	}
	if plugin.Health() != core.HealthError || !strings.Contains(plugin.HealthMessage(), "home") {
		t.Fatalf("expected ERROR naming the entry, got %s %q", plugin.Health(), plugin.HealthMessage())
	}
	if plugin.Collectors() != nil {
		t.Fatalf("expected no collectors for a broken plugin")
	}
}

func TestPluginContract(t *testing.T) {
	api := newFakeAPI(t)
	plugin, ok := NewPlugin(pluginConfig(api), api.server.Client(), logr.Discard())
	if !ok {
		t.Fatalf("expected plugin")
	}
	if err := core.ValidatePlugins([]core.Plugin{plugin}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if plugin.Manifest().Services[0] != ServiceName {
		t.Fatalf("unexpected services: %v", plugin.Manifest().Services)
	}
	if !strings.Contains(plugin.AgentsMD(), "FireBoard") {
		t.Fatalf("expected AGENTS.md content")
	}
	for _, dashboard := range plugin.Dashboards() {
		if !json.Valid(dashboard.JSON) {
			t.Fatalf("dashboard %s is not valid JSON", dashboard.Name)
		}
	}
	if plugin.Health() != core.HealthHealthy {
		t.Fatalf("expected healthy before first refresh, got %s", plugin.Health())
	}
}

func TestPluginRunDegradesAndTearsDown(t *testing.T) {
	api := newFakeAPI(t)
	api.set("/devices.json", http.StatusInternalServerError, `down`)
	plugin, _ := NewPlugin(pluginConfig(api), api.server.Client(), logr.Discard())
	coordinator, ok := plugin.Instances().Get("home")
	if !ok {
		t.Fatalf("expected entry home")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- plugin.Run(ctx) }()

	waitFor(t, func() bool { return coordinator.Status().Refreshes >= 1 })
	if plugin.Health() != core.HealthDegraded {
		t.Fatalf("expected DEGRADED after a failed refresh, got %s", plugin.Health())
	}
	if !strings.Contains(plugin.HealthMessage(), "home") {
		t.Fatalf("expected health message naming the entry, got %q", plugin.HealthMessage())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
	if plugin.Instances().Len() != 0 {
		t.Fatalf("expected entries removed on teardown")
	}
}
