package sink

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"vrheadset-sim/internal/logging"
	"vrheadset-sim/internal/telemetry"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
	"go.uber.org/zap"
)

const defaultGreptimePort = 4001

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeSink writes packets and status rows to GreptimeDB via the ingester
// client.
type GreptimeSink struct {
	client      greptimeClient
	deviceID    string
	table       string
	statusTable string
}

// NewGreptimeSink connects to endpoint ("host" or "host:port").
func NewGreptimeSink(endpoint, database, deviceID, tableName, statusTable string) (*GreptimeSink, error) {
	host, port := endpoint, defaultGreptimePort
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("greptime endpoint %q: %w", endpoint, err)
		}
		host, port = h, n
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if tableName == "" {
		tableName = telemetry.PacketTableName
	}
	return &GreptimeSink{client: client, deviceID: deviceID, table: tableName, statusTable: statusTable}, nil
}

func (w *GreptimeSink) packetTable(packets []telemetry.Packet) (*table.Table, error) {
	tbl, err := table.New(w.table)
	if err != nil {
		return nil, err
	}
	tbl.AddTagColumn("device_id", types.STRING)
	tbl.AddFieldColumn("frame_id", types.UINT32)
	tbl.AddFieldColumn("head_x", types.FLOAT64)
	tbl.AddFieldColumn("head_y", types.FLOAT64)
	tbl.AddFieldColumn("head_z", types.FLOAT64)
	tbl.AddFieldColumn("head_qx", types.FLOAT64)
	tbl.AddFieldColumn("head_qy", types.FLOAT64)
	tbl.AddFieldColumn("head_qz", types.FLOAT64)
	tbl.AddFieldColumn("head_qw", types.FLOAT64)
	tbl.AddFieldColumn("gaze_x", types.FLOAT64)
	tbl.AddFieldColumn("gaze_y", types.FLOAT64)
	tbl.AddFieldColumn("pupil_diameter", types.FLOAT64)
	tbl.AddFieldColumn("blinking", types.BOOLEAN)
	tbl.AddFieldColumn("left_grip", types.FLOAT64)
	tbl.AddFieldColumn("right_grip", types.FLOAT64)
	tbl.AddFieldColumn("cpu_usage", types.FLOAT64)
	tbl.AddFieldColumn("gpu_usage", types.FLOAT64)
	tbl.AddFieldColumn("temperature", types.FLOAT64)
	tbl.AddFieldColumn("battery_level", types.UINT32)
	tbl.AddFieldColumn("connected", types.BOOLEAN)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MICROSECOND)

	for _, p := range packets {
		err := tbl.AddRow(
			w.deviceID,
			p.FrameID,
			p.HeadPosition.X, p.HeadPosition.Y, p.HeadPosition.Z,
			p.HeadOrientation.X, p.HeadOrientation.Y, p.HeadOrientation.Z, p.HeadOrientation.W,
			p.LeftEye.X, p.LeftEye.Y, p.LeftEye.PupilDiameter, p.LeftEye.Blinking,
			p.LeftHand.GripStrength, p.RightHand.GripStrength,
			p.CPUUsage, p.GPUUsage, p.Temperature,
			uint32(p.BatteryLevel), p.Connected,
			p.Time(),
		)
		if err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

// Send inserts a single packet.
func (w *GreptimeSink) Send(ctx context.Context, p telemetry.Packet) error {
	return w.SendBatch(ctx, []telemetry.Packet{p})
}

// SendBatch inserts multiple packets in one request.
func (w *GreptimeSink) SendBatch(ctx context.Context, packets []telemetry.Packet) error {
	if len(packets) == 0 {
		return nil
	}
	tbl, err := w.packetTable(packets)
	if err != nil {
		return err
	}
	if _, err := w.client.Write(ctx, tbl); err != nil {
		logging.FromContext(ctx).Warn("greptime write failed", zap.String("table", w.table), zap.Error(err))
		return err
	}
	return nil
}

// WriteStatus inserts a status row into the status table.
func (w *GreptimeSink) WriteStatus(row telemetry.StatusRow) error {
	if w.statusTable == "" {
		return nil
	}
	tbl, err := table.New(w.statusTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("device_id", types.STRING)
	tbl.AddFieldColumn("state", types.STRING)
	tbl.AddFieldColumn("tick", types.UINT64)
	tbl.AddFieldColumn("error_count", types.UINT32)
	tbl.AddFieldColumn("reset_count", types.UINT32)
	tbl.AddFieldColumn("uptime_ms", types.UINT64)
	tbl.AddFieldColumn("telemetry_sent", types.UINT64)
	tbl.AddFieldColumn("telemetry_failed", types.UINT64)
	tbl.AddFieldColumn("telemetry_dropped", types.UINT64)
	tbl.AddFieldColumn("voltage", types.FLOAT64)
	tbl.AddFieldColumn("current", types.FLOAT64)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)
	if err := tbl.AddRow(
		row.DeviceID, row.State, row.Tick, row.ErrorCount, row.ResetCount, row.UptimeMS,
		row.TelemetrySent, row.TelemetryFailed, row.TelemetryDropped,
		row.Voltage, row.Current, row.Timestamp,
	); err != nil {
		return err
	}
	_, err = w.client.Write(context.Background(), tbl)
	return err
}
