package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/gohome-fireboard/internal/rpcdesc"
	"github.com/joshp123/gohome-fireboard/plugins/fireboard"
)

type entryDevices struct {
	Entry     string             `json:"entry"`
	UpdatedAt string             `json:"updated_at"`
	Devices   []fireboard.Device `json:"devices"`
}

func fireboardCmd(ctx context.Context, conn *grpc.ClientConn, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	flags := flag.NewFlagSet("fireboard "+args[0], flag.ExitOnError)
	entry := flags.String("entry", "", "config entry id (optional with a single entry)")
	jsonOut := flags.Bool("json", false, "print JSON")
	_ = flags.Parse(args[1:])
	out := outputMode{json: *jsonOut}
	rest := flags.Args()

	req := map[string]any{}
	if *entry != "" {
		req["entry"] = *entry
	}

	switch args[0] {
	case "devices":
		resp := call(ctx, conn, "ListDevices", req)
		var decoded struct {
			Entries []entryDevices `json:"entries"`
		}
		decode(resp, &decoded)
		if out.json {
			out.printJSON(decoded.Entries)
			return
		}
		rows := [][]string{{"ENTRY", "UUID", "NAME", "BATTERY", "DRIVE", "PROBES"}}
		for _, e := range decoded.Entries {
			for _, device := range e.Devices {
				rows = append(rows, []string{
					e.Entry, device.UUID, device.DisplayName(), formatBattery(device.Battery), formatDrive(device), formatProbes(device.LatestTemps),
				})
			}
		}
		out.table(rows)
	case "device":
		if len(rest) < 1 {
			fatal("device", fmt.Errorf("missing device uuid"))
		}
		req["uuid"] = rest[0]
		resp := call(ctx, conn, "GetDevice", req)
		var device fireboard.Device
		decode(resp, &device)
		if out.json {
			out.printJSON(device)
			return
		}
		fmt.Printf("uuid: %s\n", device.UUID)
		fmt.Printf("name: %s\n", device.DisplayName())
		if device.Model != "" {
			fmt.Printf("model: %s\n", device.Model)
		}
		fmt.Printf("battery: %s\n", formatBattery(device.Battery))
		fmt.Printf("drive: %s\n", formatDrive(device))
		rows := [][]string{{"CHANNEL", "TEMP", "UNIT"}}
		for _, reading := range device.LatestTemps {
			rows = append(rows, []string{strconv.Itoa(reading.Channel), formatTemp(reading.Temp), reading.DegreeType.Unit()})
		}
		out.table(rows)
	case "refresh":
		resp := call(ctx, conn, "Refresh", req)
		fmt.Printf("%s: %.0f devices at %s\n",
			field(resp, "entry"), resp.GetFields()["devices"].GetNumberValue(), field(resp, "updated_at"))
	case "drive":
		if len(rest) < 2 {
			fatal("drive", fmt.Errorf("usage: fireboard drive <uuid> <percent>"))
		}
		percent, err := strconv.Atoi(rest[1])
		if err != nil {
			fatal("drive", fmt.Errorf("percent must be an integer: %w", err))
		}
		req["uuid"] = rest[0]
		req["output"] = float64(percent)
		in := mustStruct(req)
		if err := rpcdesc.Invoke(ctx, conn, fireboard.ServiceName, "SetDriveOutput", in, &emptypb.Empty{}); err != nil {
			fatal("set drive output", err)
		}
		fmt.Printf("drive output set to %d%%\n", percent)
	default:
		usage()
		os.Exit(2)
	}
}

func call(ctx context.Context, conn *grpc.ClientConn, method string, req map[string]any) *structpb.Struct {
	resp := &structpb.Struct{}
	if err := rpcdesc.Invoke(ctx, conn, fireboard.ServiceName, method, mustStruct(req), resp); err != nil {
		fatal(strings.ToLower(method), err)
	}
	return resp
}

func mustStruct(req map[string]any) *structpb.Struct {
	in, err := structpb.NewStruct(req)
	if err != nil {
		fatal("encode request", err)
	}
	return in
}

func decode(resp *structpb.Struct, out any) {
	data, err := protojson.Marshal(resp)
	if err != nil {
		fatal("decode response", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		fatal("decode response", err)
	}
}

func formatBattery(battery *float64) string {
	if battery == nil {
		return "-"
	}
	return strconv.FormatFloat(*battery, 'f', -1, 64)
}

func formatDrive(device fireboard.Device) string {
	if !device.DriveEnabled {
		return "off"
	}
	if device.Drive == nil || device.Drive.Output == nil {
		return "on"
	}
	return fmt.Sprintf("%d%%", *device.Drive.Output)
}

func formatTemp(temp *float64) string {
	if temp == nil {
		return "-"
	}
	return strconv.FormatFloat(*temp, 'f', 1, 64)
}

func formatProbes(readings []fireboard.TemperatureReading) string {
	parts := make([]string, 0, len(readings))
	for _, reading := range readings {
		parts = append(parts, fmt.Sprintf("%d:%s%s", reading.Channel, formatTemp(reading.Temp), reading.DegreeType.Unit()))
	}
	return strings.Join(parts, " ")
}
