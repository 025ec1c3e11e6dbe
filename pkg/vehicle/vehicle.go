// Package vehicle implements a client for DroneMobile-equipped vehicles.
package vehicle

import (
	"context"
	"fmt"

	"github.com/firstech/drone-command/internal/log"
)

// Connection is the account-level plumbing a Vehicle uses to reach the API. It is implemented by
// the account package's Account type.
type Connection interface {
	SendCommand(ctx context.Context, deviceKey, command, deviceType string) (*CommandResponse, error)
	VehicleStatus(ctx context.Context, id string) (*Status, error)
}

// Vehicle represents a vehicle with a DroneMobile controller module.
type Vehicle struct {
	conn         Connection
	info         *Info
	cachedStatus *Status
}

// New binds a vehicle record to an API connection.
func New(conn Connection, info *Info) *Vehicle {
	return &Vehicle{conn: conn, info: info}
}

// ID returns the vehicle's unique identifier.
func (v *Vehicle) ID() string {
	return v.info.ID
}

// DeviceKey returns the identifier used to target commands at the vehicle's controller module.
func (v *Vehicle) DeviceKey() string {
	return v.info.DeviceKey
}

// Name returns the owner-assigned vehicle name.
func (v *Vehicle) Name() string {
	return v.info.Name
}

// Info returns the account-level vehicle record.
func (v *Vehicle) Info() *Info {
	return v.info
}

func (v *Vehicle) String() string {
	if v.info.Make != "" && v.info.Model != "" && v.info.Year != 0 {
		return fmt.Sprintf("%d %s %s (%s)", v.info.Year, v.info.Make, v.info.Model, v.info.Name)
	}
	return v.info.Name
}

// Status returns the vehicle's last-known state as recorded by the API.
//
// This does not wake the controller module; use [Vehicle.PollStatus] to request fresh data from
// the vehicle before fetching.
func (v *Vehicle) Status(ctx context.Context) (*Status, error) {
	status, err := v.conn.VehicleStatus(ctx, v.ID())
	if err != nil {
		return nil, err
	}
	v.cachedStatus = status
	return status, nil
}

// CachedStatus returns the most recent status fetched by [Vehicle.Status], or nil.
func (v *Vehicle) CachedStatus() *Status {
	return v.cachedStatus
}

// PollStatus asks the controller module to report fresh status from the vehicle.
func (v *Vehicle) PollStatus(ctx context.Context) (*CommandResponse, error) {
	log.Info("Polling status for %s", v.Name())
	return v.conn.SendCommand(ctx, v.DeviceKey(), CommandDeviceStatus, DeviceTypeController)
}

// Start starts the vehicle's engine remotely.
func (v *Vehicle) Start(ctx context.Context) (*CommandResponse, error) {
	log.Info("Starting engine for %s", v.Name())
	return v.command(ctx, CommandRemoteStart)
}

// Stop stops the vehicle's engine remotely.
func (v *Vehicle) Stop(ctx context.Context) (*CommandResponse, error) {
	log.Info("Stopping engine for %s", v.Name())
	return v.command(ctx, CommandRemoteStop)
}

// Lock locks the vehicle's doors and arms the security system.
func (v *Vehicle) Lock(ctx context.Context) (*CommandResponse, error) {
	log.Info("Locking %s", v.Name())
	return v.command(ctx, CommandArm)
}

// Unlock unlocks the vehicle's doors and disarms the security system.
func (v *Vehicle) Unlock(ctx context.Context) (*CommandResponse, error) {
	log.Info("Unlocking %s", v.Name())
	return v.command(ctx, CommandDisarm)
}

// OpenTrunk releases the vehicle's trunk.
func (v *Vehicle) OpenTrunk(ctx context.Context) (*CommandResponse, error) {
	log.Info("Opening trunk for %s", v.Name())
	return v.command(ctx, CommandTrunk)
}

// PanicOn activates the vehicle's panic alarm.
func (v *Vehicle) PanicOn(ctx context.Context) (*CommandResponse, error) {
	log.Info("Activating panic for %s", v.Name())
	return v.command(ctx, CommandPanicOn)
}

// PanicOff deactivates the vehicle's panic alarm.
func (v *Vehicle) PanicOff(ctx context.Context) (*CommandResponse, error) {
	log.Info("Deactivating panic for %s", v.Name())
	return v.command(ctx, CommandPanicOff)
}

// Aux1 triggers the output mapped to the remote's AUX1 button.
func (v *Vehicle) Aux1(ctx context.Context) (*CommandResponse, error) {
	log.Info("Triggering AUX1 for %s", v.Name())
	return v.command(ctx, CommandAux1)
}

// Aux2 triggers the output mapped to the remote's AUX2 button.
func (v *Vehicle) Aux2(ctx context.Context) (*CommandResponse, error) {
	log.Info("Triggering AUX2 for %s", v.Name())
	return v.command(ctx, CommandAux2)
}

// Location requests the vehicle's current GPS position.
func (v *Vehicle) Location(ctx context.Context) (*CommandResponse, error) {
	log.Info("Requesting location for %s", v.Name())
	return v.command(ctx, CommandLocation)
}

func (v *Vehicle) command(ctx context.Context, name string) (*CommandResponse, error) {
	return v.conn.SendCommand(ctx, v.DeviceKey(), name, DeviceTypeVehicle)
}
