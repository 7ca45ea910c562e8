package tools

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/longregen/alicia-sub010/pkg/protocol"
)

// Builtin tool names.
const (
	EchoTool       = "echo"
	DeviceTimeTool = "device_time"
	DeviceInfoTool = "device_info"
)

// Builtins returns fresh instances of every built-in tool, keyed by name.
func Builtins() map[string]Tool {
	return map[string]Tool{
		EchoTool:       NewEcho(),
		DeviceTimeTool: NewDeviceTime(time.Now),
		DeviceInfoTool: NewDeviceInfo(),
	}
}

// NewEcho returns a tool that answers with its arguments.
func NewEcho() Tool {
	return &FuncTool{
		ToolName:        EchoTool,
		ToolDescription: "Return the supplied arguments unchanged.",
		Schema:          objectSchema(nil),
		Fn: func(_ context.Context, args protocol.Map) (protocol.Value, error) {
			if args == nil {
				return protocol.Map{}, nil
			}
			return args, nil
		},
	}
}

// NewDeviceTime returns a tool reporting the device clock. now is injectable
// for tests.
func NewDeviceTime(now func() time.Time) Tool {
	return &FuncTool{
		ToolName:        DeviceTimeTool,
		ToolDescription: "Report the current time on the device.",
		Schema: objectSchema([]property{
			{name: "timezone", kind: "string", description: "IANA zone name, e.g. Europe/Berlin. Defaults to the device zone."},
		}),
		Fn: func(_ context.Context, args protocol.Map) (protocol.Value, error) {
			t := now()
			if zone, ok := args.GetString("timezone"); ok && zone != "" {
				loc, err := time.LoadLocation(zone)
				if err != nil {
					return nil, &InvalidArgsError{Tool: DeviceTimeTool, Message: "unknown timezone " + zone, Cause: err}
				}
				t = t.In(loc)
			}
			name, offset := t.Zone()
			return protocol.NewMap(
				protocol.E("time", protocol.String(t.Format(time.RFC3339))),
				protocol.E("unix", protocol.Int(t.Unix())),
				protocol.E("timezone", protocol.String(name)),
				protocol.E("offsetSeconds", protocol.Int(offset)),
			), nil
		},
	}
}

// NewDeviceInfo returns a tool describing the host.
func NewDeviceInfo() Tool {
	return &FuncTool{
		ToolName:        DeviceInfoTool,
		ToolDescription: "Describe the device: hostname, operating system and CPU.",
		Schema:          objectSchema(nil),
		Fn: func(_ context.Context, _ protocol.Map) (protocol.Value, error) {
			hostname, err := os.Hostname()
			if err != nil {
				hostname = "unknown"
			}
			return protocol.NewMap(
				protocol.E("hostname", protocol.String(hostname)),
				protocol.E("os", protocol.String(runtime.GOOS)),
				protocol.E("arch", protocol.String(runtime.GOARCH)),
				protocol.E("numCpu", protocol.Int(runtime.NumCPU())),
			), nil
		},
	}
}
