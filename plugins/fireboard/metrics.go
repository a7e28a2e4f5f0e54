package fireboard

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	refreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gohome_fireboard_refresh_duration_seconds",
			Help:    "Duration of FireBoard refresh cycles",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"entry"},
	)
	refreshFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gohome_fireboard_refresh_failures_total",
			Help: "Failed FireBoard refresh cycles by kind",
		},
		[]string{"entry", "kind"},
	)
	driveSoftFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gohome_fireboard_drive_unavailable_total",
			Help: "Drive status fetches that failed and were skipped",
		},
		[]string{"entry"},
	)
)

// MetricsCollectors returns the refresh-cycle collectors shared by all
// FireBoard entries.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		refreshDuration,
		refreshFailures,
		driveSoftFailures,
	}
}

// MetricsCollector exposes the published snapshots. It never calls the API;
// scrapes read whatever the last refresh produced.
type MetricsCollector struct {
	coordinators []*Coordinator

	temperature   *prometheus.GaugeVec
	battery       *prometheus.GaugeVec
	driveEnabled  *prometheus.GaugeVec
	driveOutput   *prometheus.GaugeVec
	info          *prometheus.GaugeVec
	success       *prometheus.GaugeVec
	lastSuccess   *prometheus.GaugeVec
	deviceCount   *prometheus.GaugeVec
	refreshesSeen *prometheus.GaugeVec
}

func NewMetricsCollector(coordinators []*Coordinator) *MetricsCollector {
	deviceLabels := []string{"entry", "device_uuid", "device_name"}
	return &MetricsCollector{
		coordinators: coordinators,
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_fireboard_temperature",
			Help: "Probe temperature per channel, in the unit the device reports",
		}, append(append([]string{}, deviceLabels...), "channel", "unit")),
		battery: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_fireboard_battery",
			Help: "Battery level reported by the device",
		}, deviceLabels),
		driveEnabled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_fireboard_drive_enabled_bool",
			Help: "Drive capability flag (1=enabled, 0=disabled)",
		}, deviceLabels),
		driveOutput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_fireboard_drive_output_percent",
			Help: "Drive damper output percentage",
		}, deviceLabels),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_fireboard_device_info",
			Help: "FireBoard device info",
		}, append(append([]string{}, deviceLabels...), "hardware_id", "model")),
		success: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_fireboard_refresh_success",
			Help: "Last refresh success (1=ok, 0=error)",
		}, []string{"entry"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_fireboard_last_success_timestamp_seconds",
			Help: "Last successful refresh timestamp (epoch seconds)",
		}, []string{"entry"}),
		deviceCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_fireboard_devices",
			Help: "Devices in the published snapshot",
		}, []string{"entry"}),
		refreshesSeen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gohome_fireboard_refresh_attempts",
			Help: "Refresh cycles attempted since start",
		}, []string{"entry"}),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.temperature.Describe(ch)
	c.battery.Describe(ch)
	c.driveEnabled.Describe(ch)
	c.driveOutput.Describe(ch)
	c.info.Describe(ch)
	c.success.Describe(ch)
	c.lastSuccess.Describe(ch)
	c.deviceCount.Describe(ch)
	c.refreshesSeen.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.temperature.Reset()
	c.battery.Reset()
	c.driveEnabled.Reset()
	c.driveOutput.Reset()
	c.info.Reset()

	for _, coordinator := range c.coordinators {
		entry := coordinator.EntryID()
		status := coordinator.Status()
		if status.Refreshes > 0 {
			if status.LastError == nil {
				c.success.WithLabelValues(entry).Set(1)
			} else {
				c.success.WithLabelValues(entry).Set(0)
			}
		}
		if !status.LastSuccess.IsZero() {
			c.lastSuccess.WithLabelValues(entry).Set(float64(status.LastSuccess.Unix()))
		}
		c.refreshesSeen.WithLabelValues(entry).Set(float64(status.Refreshes))

		snapshot := coordinator.Snapshot()
		c.deviceCount.WithLabelValues(entry).Set(float64(snapshot.Len()))
		for _, uuid := range snapshot.UUIDs() {
			device := snapshot.Devices[uuid]
			labels := []string{entry, uuid, device.DisplayName()}

			c.info.WithLabelValues(append(labels, device.HardwareID, device.Model)...).Set(1)
			if device.Battery != nil {
				c.battery.WithLabelValues(labels...).Set(*device.Battery)
			}
			c.driveEnabled.WithLabelValues(labels...).Set(boolFloat(device.DriveEnabled))
			if device.Drive != nil && device.Drive.Output != nil {
				c.driveOutput.WithLabelValues(labels...).Set(float64(*device.Drive.Output))
			}
			for _, reading := range device.LatestTemps {
				if reading.Temp == nil {
					continue
				}
				channelLabels := append(append([]string{}, labels...), strconv.Itoa(reading.Channel), reading.DegreeType.Unit())
				c.temperature.WithLabelValues(channelLabels...).Set(*reading.Temp)
			}
		}
	}

	c.collectAll(ch)
}

func (c *MetricsCollector) collectAll(ch chan<- prometheus.Metric) {
	c.temperature.Collect(ch)
	c.battery.Collect(ch)
	c.driveEnabled.Collect(ch)
	c.driveOutput.Collect(ch)
	c.info.Collect(ch)
	c.success.Collect(ch)
	c.lastSuccess.Collect(ch)
	c.deviceCount.Collect(ch)
	c.refreshesSeen.Collect(ch)
}

func boolFloat(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
