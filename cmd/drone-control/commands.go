package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firstech/drone-command/pkg/account"
	"github.com/firstech/drone-command/pkg/vehicle"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrUnknownCommand  = errors.New("unrecognized command")
)

type Argument struct {
	name string
	help string
}

type Handler func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error

type Command struct {
	help            string
	requiresVehicle bool // True if the command targets a vehicle rather than the account
	args            []Argument
	optional        []Argument
	handler         Handler
}

// targetVehicle resolves the vehicle a command applies to. Commands use the vehicle selected with
// -vehicle-id when one was provided and otherwise fall back to the account's first vehicle, as
// most accounts only have one.
func targetVehicle(ctx context.Context, acct *account.Account, car *vehicle.Vehicle) (*vehicle.Vehicle, error) {
	if car != nil {
		return car, nil
	}
	vehicles, err := acct.Vehicles(ctx)
	if err != nil {
		return nil, err
	}
	if len(vehicles) == 0 {
		return nil, errors.New("no vehicles found on account")
	}
	if len(vehicles) > 1 {
		fmt.Printf("Using first vehicle: %s\n", vehicles[0])
	}
	return vehicles[0], nil
}

func printCommandResponse(response *vehicle.CommandResponse) {
	if response.Success {
		fmt.Println("Command sent successfully")
	} else {
		fmt.Println("Command sent")
	}
	if response.Message != "" {
		fmt.Printf("Message: %s\n", response.Message)
	}
}

func printStatus(car *vehicle.Vehicle, status *vehicle.Status) {
	fmt.Printf("%s\n", strings.Repeat("=", 60))
	fmt.Printf("Status for: %s\n", car)
	fmt.Printf("%s\n", strings.Repeat("=", 60))
	fmt.Printf("Running: %v\n", status.Running)
	fmt.Printf("Locked: %v\n", status.Armed)
	if status.BatteryVoltage != nil {
		fmt.Printf("Battery: %.1fV\n", *status.BatteryVoltage)
	}
	if status.Odometer != nil {
		fmt.Printf("Odometer: %.1f\n", *status.Odometer)
	}
	if status.InteriorTemp != nil {
		fmt.Printf("Interior Temperature: %.1f\n", *status.InteriorTemp)
	}
	if status.Location != nil {
		fmt.Printf("Location: %f, %f\n", status.Location.Latitude, status.Location.Longitude)
	}
	if status.LastUpdated != nil {
		fmt.Printf("Last Updated: %s\n", status.LastUpdated)
	}
}

// vehicleCommand builds a handler for the single-shot vehicle actions.
func vehicleCommand(action func(*vehicle.Vehicle, context.Context) (*vehicle.CommandResponse, error)) Handler {
	return func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
		response, err := action(car, ctx)
		if err != nil {
			return err
		}
		printCommandResponse(response)
		return nil
	}
}

var commands = map[string]*Command{
	"list": &Command{
		help: "List all vehicles on the account",
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			vehicles, err := acct.Vehicles(ctx)
			if err != nil {
				return err
			}
			if len(vehicles) == 0 {
				fmt.Println("No vehicles found.")
				return nil
			}
			for i, v := range vehicles {
				fmt.Printf("%d. %s\n", i+1, v)
				fmt.Printf("   Vehicle ID: %s\n", v.ID())
				fmt.Printf("   Device Key: %s\n", v.DeviceKey())
				if v.Info().VIN != "" {
					fmt.Printf("   VIN: %s\n", v.Info().VIN)
				}
			}
			return nil
		},
	},
	"status": &Command{
		help:            "Show the vehicle's last-known status",
		requiresVehicle: true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			status, err := car.Status(ctx)
			if err != nil {
				return err
			}
			printStatus(car, status)
			return nil
		},
	},
	"start": &Command{
		help:            "Start the engine remotely",
		requiresVehicle: true,
		handler:         vehicleCommand((*vehicle.Vehicle).Start),
	},
	"stop": &Command{
		help:            "Stop the engine remotely",
		requiresVehicle: true,
		handler:         vehicleCommand((*vehicle.Vehicle).Stop),
	},
	"lock": &Command{
		help:            "Lock doors and arm the security system",
		requiresVehicle: true,
		handler:         vehicleCommand((*vehicle.Vehicle).Lock),
	},
	"unlock": &Command{
		help:            "Unlock doors and disarm the security system",
		requiresVehicle: true,
		handler:         vehicleCommand((*vehicle.Vehicle).Unlock),
	},
	"trunk": &Command{
		help:            "Open the trunk",
		requiresVehicle: true,
		handler:         vehicleCommand((*vehicle.Vehicle).OpenTrunk),
	},
	"panic-on": &Command{
		help:            "Activate the panic alarm",
		requiresVehicle: true,
		handler:         vehicleCommand((*vehicle.Vehicle).PanicOn),
	},
	"panic-off": &Command{
		help:            "Deactivate the panic alarm",
		requiresVehicle: true,
		handler:         vehicleCommand((*vehicle.Vehicle).PanicOff),
	},
	"aux1": &Command{
		help:            "Trigger the AUX1 output",
		requiresVehicle: true,
		handler:         vehicleCommand((*vehicle.Vehicle).Aux1),
	},
	"aux2": &Command{
		help:            "Trigger the AUX2 output",
		requiresVehicle: true,
		handler:         vehicleCommand((*vehicle.Vehicle).Aux2),
	},
	"location": &Command{
		help:            "Request the vehicle's current GPS location",
		requiresVehicle: true,
		handler:         vehicleCommand((*vehicle.Vehicle).Location),
	},
	"poll": &Command{
		help:            "Ask the controller module to report fresh status",
		requiresVehicle: true,
		handler:         vehicleCommand((*vehicle.Vehicle).PollStatus),
	},
	"cmd": &Command{
		help:            "Send a raw API command name to the vehicle",
		requiresVehicle: true,
		args: []Argument{
			Argument{name: "COMMAND", help: "API command name, e.g. " + vehicle.CommandRemoteStart},
		},
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			name := args["COMMAND"]
			deviceType := vehicle.DeviceTypeVehicle
			if name == vehicle.CommandDeviceStatus {
				deviceType = vehicle.DeviceTypeController
			}
			response, err := acct.SendCommand(ctx, car.DeviceKey(), name, deviceType)
			if err != nil {
				return err
			}
			printCommandResponse(response)
			return nil
		},
	},
}

func execute(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}

	info, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}

	var err error
	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args), len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		if info.requiresVehicle {
			car, err = targetVehicle(ctx, acct, car)
		}
		if err == nil {
			err = info.handler(ctx, acct, car, keywords)
		}
	}

	// Print command-specific help
	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}
