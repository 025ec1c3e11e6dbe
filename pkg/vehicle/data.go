package vehicle

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// flexString decodes JSON fields that the API serves inconsistently as strings or numbers.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = flexString(num.String())
	return nil
}

// Info holds the account-level record for a vehicle.
type Info struct {
	ID        string
	DeviceKey string
	Name      string
	Make      string
	Model     string
	Year      int
	Color     string
	VIN       string

	// Raw retains the upstream record; the API adds fields without notice.
	Raw json.RawMessage
}

// The vehicle list endpoint prefixes fields with "vehicle_"; other endpoints serve the same data
// under plain names. Both are accepted.
type infoRecord struct {
	ID          flexString `json:"id"`
	VehicleID   flexString `json:"vehicle_id"`
	DeviceKey   string     `json:"device_key"`
	VehicleName string     `json:"vehicle_name"`
	Name        string     `json:"name"`
	VehicleMake string     `json:"vehicle_make"`
	Make        string     `json:"make"`
	VehicleMod  string     `json:"vehicle_model"`
	Model       string     `json:"model"`
	VehicleYear flexString `json:"vehicle_year"`
	Year        flexString `json:"year"`
	Color       string     `json:"color"`
	VIN         string     `json:"vin"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// UnmarshalInfo parses a vehicle record returned by the API.
func UnmarshalInfo(data []byte) (*Info, error) {
	var record infoRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unable to parse vehicle record: %w", err)
	}
	info := &Info{
		ID:        firstNonEmpty(string(record.ID), string(record.VehicleID)),
		DeviceKey: record.DeviceKey,
		Name:      firstNonEmpty(record.VehicleName, record.Name, "Unknown Vehicle"),
		Make:      firstNonEmpty(record.VehicleMake, record.Make),
		Model:     firstNonEmpty(record.VehicleMod, record.Model),
		Color:     record.Color,
		VIN:       record.VIN,
		Raw:       append(json.RawMessage(nil), data...),
	}
	if year := firstNonEmpty(string(record.VehicleYear), string(record.Year)); year != "" {
		if value, err := strconv.Atoi(year); err == nil {
			info.Year = value
		}
	}
	return info, nil
}

// Location is a GPS fix reported by the controller module.
type Location struct {
	Latitude  float64
	Longitude float64
	Timestamp *time.Time
	Accuracy  *float64
}

// Status mirrors the vehicle status endpoint, flattening the interesting parts of
// last_known_state. Fields the module did not report are nil.
type Status struct {
	ID             string
	DeviceKey      string
	Running        bool
	Armed          bool
	BatteryVoltage *float64
	Odometer       *float64
	InteriorTemp   *float64
	Location       *Location
	LastUpdated    *time.Time

	Raw json.RawMessage
}

type controllerState struct {
	EngineOn           *bool    `json:"engine_on"`
	Armed              *bool    `json:"armed"`
	MainBatteryVoltage *float64 `json:"main_battery_voltage"`
	CurrentTemperature *float64 `json:"current_temperature"`
}

type lastKnownState struct {
	Controller controllerState `json:"controller"`
	Mileage    *float64        `json:"mileage"`
	Latitude   *float64        `json:"latitude"`
	Longitude  *float64        `json:"longitude"`
	Timestamp  string          `json:"timestamp"`
}

type statusRecord struct {
	ID             flexString     `json:"id"`
	VehicleID      flexString     `json:"vehicle_id"`
	DeviceKey      string         `json:"device_key"`
	LastKnownState lastKnownState `json:"last_known_state"`
	Location       *struct {
		Latitude  float64  `json:"latitude"`
		Longitude float64  `json:"longitude"`
		Timestamp string   `json:"timestamp"`
		Accuracy  *float64 `json:"accuracy"`
	} `json:"location"`
	LastUpdated string `json:"last_updated"`
}

// parseTimestamp accepts the timestamp formats observed in API responses: RFC 3339 with either a
// zone suffix or a bare "Z", and zone-less forms.
func parseTimestamp(value string) *time.Time {
	if value == "" {
		return nil
	}
	value = strings.Replace(value, "Z", "+00:00", 1)
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02T15:04:05-07:00",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

// UnmarshalStatus parses a vehicle status record returned by the API.
func UnmarshalStatus(data []byte) (*Status, error) {
	var record statusRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}

	lks := record.LastKnownState
	controller := lks.Controller

	status := &Status{
		ID:             firstNonEmpty(string(record.ID), string(record.VehicleID)),
		DeviceKey:      record.DeviceKey,
		BatteryVoltage: controller.MainBatteryVoltage,
		Odometer:       lks.Mileage,
		InteriorTemp:   controller.CurrentTemperature,
		Raw:            append(json.RawMessage(nil), data...),
	}
	if controller.EngineOn != nil {
		status.Running = *controller.EngineOn
	}
	if controller.Armed != nil {
		status.Armed = *controller.Armed
	}

	if lks.Latitude != nil && lks.Longitude != nil {
		status.Location = &Location{
			Latitude:  *lks.Latitude,
			Longitude: *lks.Longitude,
		}
	} else if record.Location != nil {
		status.Location = &Location{
			Latitude:  record.Location.Latitude,
			Longitude: record.Location.Longitude,
			Timestamp: parseTimestamp(record.Location.Timestamp),
			Accuracy:  record.Location.Accuracy,
		}
	}

	status.LastUpdated = parseTimestamp(firstNonEmpty(lks.Timestamp, record.LastUpdated))
	return status, nil
}

// CommandResponse is the device's acknowledgment of a command.
type CommandResponse struct {
	Success   bool
	Message   string
	Command   string
	DeviceKey string
	Timestamp *time.Time

	Raw json.RawMessage
}

// UnmarshalCommandResponse parses the "parsed" object from a command endpoint response.
func UnmarshalCommandResponse(data []byte, command, deviceKey string) (*CommandResponse, error) {
	var record struct {
		Success   bool   `json:"success"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("unable to parse command response: %w", err)
		}
	}
	return &CommandResponse{
		Success:   record.Success,
		Message:   record.Message,
		Command:   command,
		DeviceKey: deviceKey,
		Timestamp: parseTimestamp(record.Timestamp),
		Raw:       append(json.RawMessage(nil), data...),
	}, nil
}
