package core

import (
	context "context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joshp123/gohome-fireboard/internal/rpcdesc"
)

const RegistryServiceName = "gohome.registry.v1.Registry"

// RegistryServer is the handler contract for the plugin registry.
type RegistryServer interface {
	ListPlugins(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	DescribePlugin(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

var registryServiceDesc = grpc.ServiceDesc{
	ServiceName: RegistryServiceName,
	HandlerType: (*RegistryServer)(nil),
	Methods: []grpc.MethodDesc{
		rpcdesc.Unary(RegistryServiceName, "ListPlugins", func() *emptypb.Empty { return &emptypb.Empty{} }, (*RegistryService).ListPlugins),
		rpcdesc.Unary(RegistryServiceName, "DescribePlugin", func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }, (*RegistryService).DescribePlugin),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "registry/v1/registry.proto",
}

// RegistryService provides plugin discovery to clients.
type RegistryService struct {
	plugins []Plugin
	mu      sync.RWMutex
}

func NewRegistryService(plugins []Plugin) *RegistryService {
	return &RegistryService{plugins: plugins}
}

// RegisterRegistryServer attaches the registry to a gRPC server.
func RegisterRegistryServer(server *grpc.Server, registry *RegistryService) {
	server.RegisterService(&registryServiceDesc, registry)
}

func (r *RegistryService) ListPlugins(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	plugins := make([]any, 0, len(r.plugins))
	for _, p := range r.plugins {
		manifest := p.Manifest()
		plugins = append(plugins, map[string]any{
			"plugin_id":    manifest.PluginID,
			"display_name": manifest.DisplayName,
			"version":      manifest.Version,
			"status":       string(p.Health()),
		})
	}

	return structpb.NewStruct(map[string]any{"plugins": plugins})
}

// DescribePlugin returns an empty struct for unknown plugin IDs.
func (r *RegistryService) DescribePlugin(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		manifest := p.Manifest()
		if manifest.PluginID != req.GetValue() {
			continue
		}

		services := make([]any, 0, len(manifest.Services))
		for _, svc := range manifest.Services {
			services = append(services, svc)
		}
		dashboards := make([]any, 0, len(p.Dashboards()))
		for _, d := range p.Dashboards() {
			dashboards = append(dashboards, map[string]any{
				"name": d.Name,
				"path": DashboardPath(manifest.PluginID, d.Name),
			})
		}

		return structpb.NewStruct(map[string]any{
			"plugin_id":      manifest.PluginID,
			"display_name":   manifest.DisplayName,
			"version":        manifest.Version,
			"services":       services,
			"agents_md":      p.AgentsMD(),
			"status":         string(p.Health()),
			"health_message": p.HealthMessage(),
			"dashboards":     dashboards,
		})
	}

	return &structpb.Struct{}, nil
}
