package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fullstorydev/grpcurl"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joshp123/gohome-fireboard/internal/config"
	"github.com/joshp123/gohome-fireboard/internal/core"
	"github.com/joshp123/gohome-fireboard/internal/rpcdesc"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	addr := resolveAddr()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := grpcurl.BlockingDial(ctx, "tcp", addr, insecure.NewCredentials())
	if err != nil {
		fatal("dial", err)
	}
	defer conn.Close()

	switch os.Args[1] {
	case "plugins":
		pluginsCmd(ctx, conn, os.Args[2:])
	case "services":
		servicesCmd(ctx, conn)
	case "fireboard":
		fireboardCmd(ctx, conn, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func pluginsCmd(ctx context.Context, conn *grpc.ClientConn, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "list":
		resp := &structpb.Struct{}
		if err := rpcdesc.Invoke(ctx, conn, core.RegistryServiceName, "ListPlugins", &emptypb.Empty{}, resp); err != nil {
			fatal("list plugins", err)
		}
		for _, value := range resp.GetFields()["plugins"].GetListValue().GetValues() {
			plugin := value.GetStructValue()
			fmt.Printf("%s\t%s\t%s\t%s\n",
				field(plugin, "plugin_id"), field(plugin, "display_name"), field(plugin, "version"), field(plugin, "status"))
		}
	case "describe":
		if len(args) < 2 {
			fatal("describe", fmt.Errorf("missing plugin id"))
		}
		resp := &structpb.Struct{}
		if err := rpcdesc.Invoke(ctx, conn, core.RegistryServiceName, "DescribePlugin", wrapperspb.String(args[1]), resp); err != nil {
			fatal("describe plugin", err)
		}
		if len(resp.GetFields()) == 0 {
			fmt.Println("not found")
			return
		}
		fmt.Printf("id: %s\n", field(resp, "plugin_id"))
		fmt.Printf("name: %s\n", field(resp, "display_name"))
		fmt.Printf("version: %s\n", field(resp, "version"))
		fmt.Printf("status: %s\n", field(resp, "status"))
		if msg := field(resp, "health_message"); msg != "" {
			fmt.Printf("health: %s\n", msg)
		}
		fmt.Println("services:")
		for _, svc := range resp.GetFields()["services"].GetListValue().GetValues() {
			fmt.Printf("  - %s\n", svc.GetStringValue())
		}
		fmt.Println("dashboards:")
		for _, value := range resp.GetFields()["dashboards"].GetListValue().GetValues() {
			dash := value.GetStructValue()
			fmt.Printf("  - %s (%s)\n", field(dash, "name"), field(dash, "path"))
		}
		fmt.Println("agents_md:")
		fmt.Println(field(resp, "agents_md"))
	default:
		usage()
		os.Exit(2)
	}
}

func servicesCmd(ctx context.Context, conn *grpc.ClientConn) {
	client := grpcreflect.NewClientAuto(ctx, conn)
	defer client.Reset()

	services, err := grpcurl.ListServices(grpcurl.DescriptorSourceFromServer(ctx, client))
	if err != nil {
		fatal("list services", err)
	}
	for _, service := range services {
		fmt.Println(service)
	}
}

func field(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func resolveAddr() string {
	if value := os.Getenv("GOHOME_GRPC_ADDR"); value != "" {
		return value
	}
	for _, path := range configSearchPaths() {
		if addr := addrFromConfig(path); addr != "" {
			return addr
		}
	}
	return config.DefaultGRPCAddr
}

func configSearchPaths() []string {
	var paths []string
	if value := os.Getenv("GOHOME_CONFIG"); value != "" {
		paths = append(paths, value)
	}
	paths = append(paths, config.DefaultPath)
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "gohome", "config.yaml"))
	}
	return paths
}

func addrFromConfig(path string) string {
	cfg, err := config.Load(path)
	if err != nil || cfg == nil || cfg.Core == nil {
		return ""
	}
	return cfg.Core.GRPCAddr
}

func usage() {
	fmt.Println("gohome-cli <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  plugins list")
	fmt.Println("  plugins describe <plugin_id>")
	fmt.Println("  services")
	fmt.Println("  fireboard devices [--entry id] [--json]")
	fmt.Println("  fireboard device <uuid> [--entry id] [--json]")
	fmt.Println("  fireboard refresh [--entry id]")
	fmt.Println("  fireboard drive <uuid> <percent> [--entry id]")
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
