package fireboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/gohome-fireboard/internal/core"
	"github.com/joshp123/gohome-fireboard/internal/rpcdesc"
)

const ServiceName = "gohome.plugins.fireboard.v1.FireBoardService"

// FireBoardServer is the handler contract for FireBoardService.
type FireBoardServer interface {
	ListDevices(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDevice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetDriveOutput(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

type service struct {
	instances *core.Instances[*Coordinator]
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FireBoardServer)(nil),
	Methods: []grpc.MethodDesc{
		rpcdesc.Unary(ServiceName, "ListDevices", newStruct, (*service).ListDevices),
		rpcdesc.Unary(ServiceName, "GetDevice", newStruct, (*service).GetDevice),
		rpcdesc.Unary(ServiceName, "Refresh", newStruct, (*service).Refresh),
		rpcdesc.Unary(ServiceName, "SetDriveOutput", newStruct, (*service).SetDriveOutput),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "plugins/fireboard/v1/fireboard.proto",
}

func newStruct() *structpb.Struct {
	return &structpb.Struct{}
}

func RegisterFireBoardService(server *grpc.Server, instances *core.Instances[*Coordinator]) {
	server.RegisterService(&serviceDesc, &service{instances: instances})
}

// ListDevices returns the published snapshot of one entry, or of every
// entry when none is named.
func (s *service) ListDevices(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.instances == nil || s.instances.Len() == 0 {
		return nil, status.Error(codes.FailedPrecondition, "fireboard client not configured")
	}

	coordinators := s.instances.All()
	if entry := stringField(req, "entry"); entry != "" {
		coordinator, ok := s.instances.Get(entry)
		if !ok {
			return nil, status.Errorf(codes.NotFound, "fireboard entry %q not found", entry)
		}
		coordinators = []*Coordinator{coordinator}
	}

	entries := make([]any, 0, len(coordinators))
	for _, coordinator := range coordinators {
		snapshot := coordinator.Snapshot()
		devices := make([]any, 0, snapshot.Len())
		for _, uuid := range snapshot.UUIDs() {
			value, err := toValue(snapshot.Devices[uuid])
			if err != nil {
				return nil, status.Errorf(codes.Internal, "encode device: %v", err)
			}
			devices = append(devices, value)
		}
		entries = append(entries, map[string]any{
			"entry":      coordinator.EntryID(),
			"updated_at": formatTime(snapshot.UpdatedAt),
			"devices":    devices,
		})
	}

	resp, err := structpb.NewStruct(map[string]any{"entries": entries})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return resp, nil
}

func (s *service) GetDevice(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	coordinator, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	uuid := stringField(req, "uuid")
	if uuid == "" {
		return nil, status.Error(codes.InvalidArgument, "uuid is required")
	}

	device, ok := coordinator.Snapshot().Device(uuid)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "device %q not found", uuid)
	}
	return toStruct(device)
}

// Refresh runs a cycle immediately and reports the resulting device count.
func (s *service) Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	coordinator, err := s.resolve(req)
	if err != nil {
		return nil, err
	}

	snapshot, err := coordinator.Refresh(ctx)
	if err != nil {
		return nil, toStatus("refresh", err)
	}

	resp, err := structpb.NewStruct(map[string]any{
		"entry":      coordinator.EntryID(),
		"devices":    float64(snapshot.Len()),
		"updated_at": formatTime(snapshot.UpdatedAt),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return resp, nil
}

func (s *service) SetDriveOutput(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	coordinator, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	uuid := stringField(req, "uuid")
	if uuid == "" {
		return nil, status.Error(codes.InvalidArgument, "uuid is required")
	}
	value, ok := req.GetFields()["output"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "output is required")
	}
	number, ok := value.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "output must be a number")
	}
	output := number.NumberValue
	if output != float64(int(output)) {
		return nil, status.Error(codes.InvalidArgument, "output must be a whole percentage")
	}

	if err := coordinator.SetDriveOutput(ctx, uuid, int(output)); err != nil {
		return nil, toStatus("set drive output", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *service) resolve(req *structpb.Struct) (*Coordinator, error) {
	if s.instances == nil || s.instances.Len() == 0 {
		return nil, status.Error(codes.FailedPrecondition, "fireboard client not configured")
	}
	entry := stringField(req, "entry")
	if entry == "" {
		ids := s.instances.IDs()
		if len(ids) > 1 {
			return nil, status.Errorf(codes.InvalidArgument, "entry is required (configured: %v)", ids)
		}
		entry = ids[0]
	}
	coordinator, ok := s.instances.Get(entry)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "fireboard entry %q not found", entry)
	}
	return coordinator, nil
}

func toStatus(action string, err error) error {
	var (
		validateErr *ValidationError
		authErr     *AuthenticationError
		timeoutErr  *TimeoutError
		writeErr    *WriteError
	)
	switch {
	case errors.As(err, &validateErr):
		return status.Error(codes.InvalidArgument, validateErr.Error())
	case errors.As(err, &timeoutErr):
		return status.Errorf(codes.DeadlineExceeded, "%s: %v", action, err)
	case errors.As(err, &authErr):
		return status.Errorf(codes.Unauthenticated, "%s: %v", action, err)
	case errors.As(err, &writeErr):
		return status.Errorf(codes.Unavailable, "%s: %v", action, err)
	default:
		return status.Errorf(codes.Internal, "%s: %v", action, err)
	}
}

func stringField(req *structpb.Struct, key string) string {
	if req == nil {
		return ""
	}
	return req.GetFields()[key].GetStringValue()
}

func toStruct(device Device) (*structpb.Struct, error) {
	payload, err := json.Marshal(device)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode device: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(payload, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode device: %v", err)
	}
	return out, nil
}

func toValue(device Device) (map[string]any, error) {
	payload, err := json.Marshal(device)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode device: %w", err)
	}
	return out, nil
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}
