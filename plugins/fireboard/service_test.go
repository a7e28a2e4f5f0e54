package fireboard

import (
	"context"
	"net"
	"net/http"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/gohome-fireboard/internal/core"
	"github.com/joshp123/gohome-fireboard/internal/rpcdesc"
)

func dialService(t *testing.T, instances *core.Instances[*Coordinator]) *grpc.ClientConn {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterFireBoardService(server, instances)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func serviceFixture(t *testing.T) (*fakeAPI, *Coordinator, *grpc.ClientConn) {
	t.Helper()
	api := newFakeAPI(t)
	api.set("/devices.json", http.StatusOK, `[{"UUID":"u1","title":"Kamado","drive_enabled":true}]`)
	api.set("/devices/u1/temps.json", http.StatusOK, `[{"channel":1,"temp":225,"degreetype":2}]`)
	api.set("/devices/u1/drivelog.json", http.StatusOK, `{"output":25}`)
	api.set("/devices/u1/drive.json", http.StatusOK, `{}`)
	coordinator := api.coordinator(t, nil)

	instances := core.NewInstances[*Coordinator]()
	if err := instances.Insert("home", coordinator); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return api, coordinator, dialService(t, instances)
}

func invoke(t *testing.T, conn *grpc.ClientConn, method string, req map[string]any) (*structpb.Struct, error) {
	t.Helper()
	in, err := structpb.NewStruct(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	out := &structpb.Struct{}
	err = rpcdesc.Invoke(context.Background(), conn, ServiceName, method, in, out)
	return out, err
}

func TestServiceRefreshAndList(t *testing.T) {
	_, _, conn := serviceFixture(t)

	resp, err := invoke(t, conn, "Refresh", map[string]any{})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if resp.GetFields()["devices"].GetNumberValue() != 1 || resp.GetFields()["entry"].GetStringValue() != "home" {
		t.Fatalf("unexpected refresh response: %v", resp)
	}

	resp, err = invoke(t, conn, "ListDevices", map[string]any{"entry": "home"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	entries := resp.GetFields()["entries"].GetListValue().GetValues()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %v", resp)
	}
	devices := entries[0].GetStructValue().GetFields()["devices"].GetListValue().GetValues()
	if len(devices) != 1 {
		t.Fatalf("expected one device, got %v", entries[0])
	}
	device := devices[0].GetStructValue().GetFields()
	if device["uuid"].GetStringValue() != "u1" || device["title"].GetStringValue() != "Kamado" {
		t.Fatalf("unexpected device: %v", device)
	}
	if device["drive_data"].GetStructValue().GetFields()["output"].GetNumberValue() != 25 {
		t.Fatalf("expected drive output 25, got %v", device["drive_data"])
	}
}

func TestServiceGetDevice(t *testing.T) {
	_, coordinator, conn := serviceFixture(t)
	if _, err := coordinator.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	resp, err := invoke(t, conn, "GetDevice", map[string]any{"uuid": "u1"})
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	temps := resp.GetFields()["latest_temps"].GetListValue().GetValues()
	if len(temps) != 1 || temps[0].GetStructValue().GetFields()["temp"].GetNumberValue() != 225 {
		t.Fatalf("unexpected temps: %v", resp)
	}

	_, err = invoke(t, conn, "GetDevice", map[string]any{"uuid": "missing"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	_, err = invoke(t, conn, "GetDevice", map[string]any{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestServiceSetDriveOutput(t *testing.T) {
	api, _, conn := serviceFixture(t)

	in, _ := structpb.NewStruct(map[string]any{"uuid": "u1", "output": 60})
	if err := rpcdesc.Invoke(context.Background(), conn, ServiceName, "SetDriveOutput", in, &emptypb.Empty{}); err != nil {
		t.Fatalf("set drive output: %v", err)
	}
	if body := api.body("/devices/u1/drive.json"); body != `{"output":60}` {
		t.Fatalf("unexpected write body: %s", body)
	}

	in, _ = structpb.NewStruct(map[string]any{"uuid": "u1", "output": 150})
	err := rpcdesc.Invoke(context.Background(), conn, ServiceName, "SetDriveOutput", in, &emptypb.Empty{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}

	in, _ = structpb.NewStruct(map[string]any{"uuid": "u1", "output": 12.5})
	err = rpcdesc.Invoke(context.Background(), conn, ServiceName, "SetDriveOutput", in, &emptypb.Empty{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for fractional output, got %v", err)
	}

	api.set("/devices/u1/drive.json", http.StatusInternalServerError, `no`)
	in, _ = structpb.NewStruct(map[string]any{"uuid": "u1", "output": 20})
	err = rpcdesc.Invoke(context.Background(), conn, ServiceName, "SetDriveOutput", in, &emptypb.Empty{})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable for a rejected write, got %v", err)
	}
}

func TestServiceRefreshFailureCodes(t *testing.T) {
	api, _, conn := serviceFixture(t)
	api.setLogin(http.StatusBadRequest)

	_, err := invoke(t, conn, "Refresh", map[string]any{})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}

	_, err = invoke(t, conn, "Refresh", map[string]any{"entry": "cabin"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound for unknown entry, got %v", err)
	}
}

func TestServiceWithoutEntries(t *testing.T) {
	conn := dialService(t, core.NewInstances[*Coordinator]())
	_, err := invoke(t, conn, "ListDevices", map[string]any{})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
}
