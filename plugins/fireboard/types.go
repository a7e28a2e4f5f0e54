package fireboard

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"time"
)

// Credentials identify one FireBoard account.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) String() string {
	return fmt.Sprintf("%s:<redacted>", c.Username)
}

// DegreeType is the unit code FireBoard reports per channel.
type DegreeType int

const (
	DegreeCelsius    DegreeType = 1
	DegreeFahrenheit DegreeType = 2
)

// Unit returns "C" or "F". Unknown codes read as Fahrenheit.
func (d DegreeType) Unit() string {
	if d == DegreeCelsius {
		return "C"
	}
	return "F"
}

// TemperatureReading is one probe channel. Temp is nil when no probe is
// reporting on a channel the API still lists.
type TemperatureReading struct {
	Channel    int        `json:"channel"`
	Temp       *float64   `json:"temp"`
	DegreeType DegreeType `json:"degreetype"`
}

// DriveStatus is the drivelog payload. Output is the damper percentage;
// Fields keeps every key as received.
type DriveStatus struct {
	Output *int
	Fields map[string]json.RawMessage
}

// IsEmpty reports whether the status carries no data, which is what a
// failed drivelog fetch produces.
func (d DriveStatus) IsEmpty() bool {
	return d.Output == nil && len(d.Fields) == 0
}

func (d *DriveStatus) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	status := DriveStatus{Fields: fields}
	if raw, ok := fields["output"]; ok && string(raw) != "null" {
		var output float64
		if err := json.Unmarshal(raw, &output); err != nil {
			return fmt.Errorf("drive output: %w", err)
		}
		value := int(output)
		status.Output = &value
	}
	*d = status
	return nil
}

func (d DriveStatus) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.Fields)+1)
	for key, value := range d.Fields {
		out[key] = value
	}
	if d.Output != nil {
		out["output"] = json.RawMessage(fmt.Sprintf("%d", *d.Output))
	}
	return json.Marshal(out)
}

func (d DriveStatus) clone() DriveStatus {
	out := DriveStatus{Fields: maps.Clone(d.Fields)}
	if d.Output != nil {
		value := *d.Output
		out.Output = &value
	}
	return out
}

// Device is the merged record for one FireBoard.
type Device struct {
	UUID         string               `json:"uuid"`
	ID           *int64               `json:"id,omitempty"`
	Title        string               `json:"title,omitempty"`
	HardwareID   string               `json:"hardware_id,omitempty"`
	Model        string               `json:"model,omitempty"`
	Battery      *float64             `json:"battery,omitempty"`
	DriveEnabled bool                 `json:"drive_enabled"`
	LatestTemps  []TemperatureReading `json:"latest_temps"`
	Drive        *DriveStatus         `json:"drive_data,omitempty"`
}

// Reading returns the reading for a channel, if the API reported one.
func (d Device) Reading(channel int) (TemperatureReading, bool) {
	for _, reading := range d.LatestTemps {
		if reading.Channel == channel {
			return reading, true
		}
	}
	return TemperatureReading{}, false
}

// DisplayName falls back to "FireBoard" when the device has no title.
func (d Device) DisplayName() string {
	if d.Title == "" {
		return "FireBoard"
	}
	return d.Title
}

func (d Device) clone() Device {
	out := d
	out.LatestTemps = slices.Clone(d.LatestTemps)
	if d.Drive != nil {
		drive := d.Drive.clone()
		out.Drive = &drive
	}
	return out
}

// devicePayload is an entry of devices.json. Pointer fields mark presence so
// a partial payload does not erase fields seen in earlier cycles.
type devicePayload struct {
	UUID         string   `json:"UUID"`
	ID           *int64   `json:"id"`
	Title        *string  `json:"title"`
	HardwareID   *string  `json:"hardware_id"`
	Model        *string  `json:"model"`
	Battery      *float64 `json:"battery"`
	DriveEnabled *bool    `json:"drive_enabled"`
}

func (p devicePayload) driveEnabled() bool {
	return p.DriveEnabled != nil && *p.DriveEnabled
}

func (p devicePayload) applyTo(device *Device) {
	device.UUID = p.UUID
	if p.ID != nil {
		id := *p.ID
		device.ID = &id
	}
	if p.Title != nil {
		device.Title = *p.Title
	}
	if p.HardwareID != nil {
		device.HardwareID = *p.HardwareID
	}
	if p.Model != nil {
		device.Model = *p.Model
	}
	if p.Battery != nil {
		battery := *p.Battery
		device.Battery = &battery
	}
	if p.DriveEnabled != nil {
		device.DriveEnabled = *p.DriveEnabled
	}
}

// Snapshot is an immutable view of every known device. Values handed out by
// the coordinator are never modified after publication.
type Snapshot struct {
	Devices   map[string]Device
	UpdatedAt time.Time
}

func (s Snapshot) Device(uuid string) (Device, bool) {
	device, ok := s.Devices[uuid]
	return device, ok
}

// UUIDs returns device keys in sorted order.
func (s Snapshot) UUIDs() []string {
	ids := make([]string, 0, len(s.Devices))
	for id := range s.Devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s Snapshot) Len() int {
	return len(s.Devices)
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{
		Devices:   make(map[string]Device, len(s.Devices)),
		UpdatedAt: s.UpdatedAt,
	}
	for id, device := range s.Devices {
		out.Devices[id] = device.clone()
	}
	return out
}

// dedupeChannels keeps one reading per channel, the last one in the payload,
// at the position the channel first appeared.
func dedupeChannels(readings []TemperatureReading) []TemperatureReading {
	index := make(map[int]int, len(readings))
	out := make([]TemperatureReading, 0, len(readings))
	for _, reading := range readings {
		if pos, ok := index[reading.Channel]; ok {
			out[pos] = reading
			continue
		}
		index[reading.Channel] = len(out)
		out = append(out, reading)
	}
	return out
}
