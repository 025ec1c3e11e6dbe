package vehicle

// Command names recognized by the DroneMobile IoT command endpoint.
const (
	CommandDeviceStatus = "DEVICE_STATUS"
	CommandRemoteStart  = "REMOTE_START"
	CommandRemoteStop   = "REMOTE_STOP"
	CommandArm          = "ARM"
	CommandDisarm       = "DISARM"
	CommandTrunk        = "TRUNK"
	CommandPanicOn      = "PANIC_ON"
	CommandPanicOff     = "PANIC_OFF"
	CommandAux1         = "REMOTE_AUX1"
	CommandAux2         = "REMOTE_AUX2"
	CommandLocation     = "LOCATION"
)

// Device types targeted by commands.
const (
	DeviceTypeVehicle    = "1" // the vehicle itself
	DeviceTypeController = "2" // the DroneMobile controller module
)

var commands = map[string]bool{
	CommandDeviceStatus: true,
	CommandRemoteStart:  true,
	CommandRemoteStop:   true,
	CommandArm:          true,
	CommandDisarm:       true,
	CommandTrunk:        true,
	CommandPanicOn:      true,
	CommandPanicOff:     true,
	CommandAux1:         true,
	CommandAux2:         true,
	CommandLocation:     true,
}

// ValidCommand reports whether name is a command the API recognizes.
func ValidCommand(name string) bool {
	return commands[name]
}

// Commands returns the list of recognized command names.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	return names
}
