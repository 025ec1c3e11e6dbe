// Package proxy exposes the DroneMobile API over a local HTTP server.
//
// The proxy holds the account credentials server-side, so clients (home-automation software,
// dashboards) can issue plain REST requests without handling the Cognito token lifecycle
// themselves. The vehicle list is cached to avoid hammering the vendor API with lookups.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/firstech/drone-command/internal/log"
	"github.com/firstech/drone-command/pkg/protocol"
	"github.com/firstech/drone-command/pkg/vehicle"
)

const (
	DefaultTimeout = 30 * time.Second

	// DefaultCacheTTL bounds how stale the proxy's view of the account's vehicle list may be.
	// Vehicles are added to accounts rarely; commands are sent often.
	DefaultCacheTTL = time.Minute

	maxRequestBodyBytes = 512
)

const vehicleListKey = "vehicles"

// Account is the subset of [account.Account] the proxy depends on.
type Account interface {
	Vehicles(ctx context.Context) ([]*vehicle.Vehicle, error)
	VehicleStatus(ctx context.Context, id string) (*vehicle.Status, error)
	SendCommand(ctx context.Context, deviceKey, command, deviceType string) (*vehicle.CommandResponse, error)
}

// commandForPath maps URL command names to API command names and target device types.
var commandForPath = map[string]struct {
	name       string
	deviceType string
}{
	"start":     {vehicle.CommandRemoteStart, vehicle.DeviceTypeVehicle},
	"stop":      {vehicle.CommandRemoteStop, vehicle.DeviceTypeVehicle},
	"lock":      {vehicle.CommandArm, vehicle.DeviceTypeVehicle},
	"unlock":    {vehicle.CommandDisarm, vehicle.DeviceTypeVehicle},
	"trunk":     {vehicle.CommandTrunk, vehicle.DeviceTypeVehicle},
	"panic_on":  {vehicle.CommandPanicOn, vehicle.DeviceTypeVehicle},
	"panic_off": {vehicle.CommandPanicOff, vehicle.DeviceTypeVehicle},
	"aux1":      {vehicle.CommandAux1, vehicle.DeviceTypeVehicle},
	"aux2":      {vehicle.CommandAux2, vehicle.DeviceTypeVehicle},
	"location":  {vehicle.CommandLocation, vehicle.DeviceTypeVehicle},
	"poll":      {vehicle.CommandDeviceStatus, vehicle.DeviceTypeController},
}

// Proxy exposes an HTTP API for sending vehicle commands.
type Proxy struct {
	Timeout time.Duration

	acct       Account
	cache      *gocache.Cache
	deviceLock sync.Map
}

// New creates an HTTP proxy backed by acct.
func New(acct Account) *Proxy {
	return &Proxy{
		Timeout: DefaultTimeout,
		acct:    acct,
		cache:   gocache.New(DefaultCacheTTL, 2*DefaultCacheTTL),
	}
}

// lockDevice locks a device-specific mutex, blocking until the operation succeeds or ctx expires.
// The API rejects concurrent commands to the same module with opaque errors, so the proxy
// serializes them.
func (p *Proxy) lockDevice(ctx context.Context, deviceKey string) error {
	lock := make(chan bool, 1)
	for {
		if obj, loaded := p.deviceLock.LoadOrStore(deviceKey, lock); loaded {
			select {
			case <-obj.(chan bool):
				// The goroutine that reads from the channel doesn't necessarily own the mutex.
				// This allows the mutex owner to delete the entry from the map, limiting the size
				// of the map to the number of concurrent commands.
			case <-ctx.Done():
				return ctx.Err()
			}
		} else {
			return nil
		}
	}
}

// unlockDevice releases a device-specific mutex.
func (p *Proxy) unlockDevice(deviceKey string) {
	obj, ok := p.deviceLock.Load(deviceKey)
	if !ok {
		panic("called unlock without owning mutex")
	}
	p.deviceLock.Delete(deviceKey) // Allow someone else to claim the mutex
	close(obj.(chan bool))         // Unblock goroutines
}

func writeJSONError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	var message string
	if err == nil {
		message = http.StatusText(code)
	} else {
		message = err.Error()
	}
	response := map[string]string{"error": message}
	body, jsonErr := json.Marshal(&response)
	if jsonErr != nil {
		log.Error("Error serializing error message: %s", jsonErr)
		body = []byte(`{"error": "internal server error"}`)
	}
	w.Write(body)
}

// statusCodeForError translates client-package errors into HTTP status codes.
func statusCodeForError(err error) int {
	var failedCmd *protocol.FailedCommandError
	var authErr *protocol.AuthenticationError
	switch {
	case errors.Is(err, protocol.ErrVehicleNotFound):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, protocol.ErrInvalidCommand):
		return http.StatusNotFound
	case errors.As(err, &failedCmd):
		return http.StatusFailedDependency
	case errors.As(err, &authErr), errors.Is(err, protocol.ErrInvalidCredentials):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case protocol.Temporary(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// ServeHTTP routes requests:
//
//	GET  /api/v1/vehicles
//	GET  /api/v1/vehicles/{id}
//	POST /api/v1/vehicles/{id}/command/{name}
func (p *Proxy) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), p.Timeout)
	defer cancel()

	log.Info("Received %s request for %s", req.Method, req.URL.Path)
	req.Body = http.MaxBytesReader(w, req.Body, maxRequestBodyBytes)

	path := strings.Split(strings.TrimPrefix(req.URL.Path, "/"), "/")
	if len(path) < 3 || path[0] != "api" || path[1] != "v1" || path[2] != "vehicles" {
		writeJSONError(w, http.StatusNotFound, nil)
		return
	}

	switch {
	case len(path) == 3 && req.Method == http.MethodGet:
		p.handleVehicleList(ctx, w)
	case len(path) == 4 && req.Method == http.MethodGet:
		p.handleVehicleStatus(ctx, w, path[3])
	case len(path) == 6 && path[4] == "command" && req.Method == http.MethodPost:
		p.handleCommand(ctx, w, path[3], path[5])
	default:
		writeJSONError(w, http.StatusNotFound, nil)
	}
}

// vehicles returns the account's vehicles, from cache when fresh.
func (p *Proxy) vehicles(ctx context.Context) ([]*vehicle.Vehicle, error) {
	if cached, ok := p.cache.Get(vehicleListKey); ok {
		return cached.([]*vehicle.Vehicle), nil
	}
	vehicles, err := p.acct.Vehicles(ctx)
	if err != nil {
		return nil, err
	}
	p.cache.SetDefault(vehicleListKey, vehicles)
	return vehicles, nil
}

func (p *Proxy) findVehicle(ctx context.Context, id string) (*vehicle.Vehicle, error) {
	vehicles, err := p.vehicles(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range vehicles {
		if v.ID() == id {
			return v, nil
		}
	}
	return nil, protocol.ErrVehicleNotFound
}

func (p *Proxy) handleVehicleList(ctx context.Context, w http.ResponseWriter) {
	vehicles, err := p.vehicles(ctx)
	if err != nil {
		writeJSONError(w, statusCodeForError(err), err)
		return
	}
	results := make([]json.RawMessage, 0, len(vehicles))
	for _, v := range vehicles {
		results = append(results, v.Info().Raw)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
}

func (p *Proxy) handleVehicleStatus(ctx context.Context, w http.ResponseWriter, id string) {
	// Confirm the vehicle belongs to the account before forwarding, so probes for arbitrary IDs
	// terminate here.
	if _, err := p.findVehicle(ctx, id); err != nil {
		writeJSONError(w, statusCodeForError(err), err)
		return
	}
	status, err := p.acct.VehicleStatus(ctx, id)
	if err != nil {
		writeJSONError(w, statusCodeForError(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.Raw)
}

func (p *Proxy) handleCommand(ctx context.Context, w http.ResponseWriter, id, name string) {
	command, ok := commandForPath[name]
	if !ok {
		writeJSONError(w, http.StatusNotFound, fmt.Errorf("unrecognized command: %s", name))
		return
	}
	car, err := p.findVehicle(ctx, id)
	if err != nil {
		writeJSONError(w, statusCodeForError(err), err)
		return
	}

	if err := p.lockDevice(ctx, car.DeviceKey()); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err)
		return
	}
	defer p.unlockDevice(car.DeviceKey())

	response, err := p.acct.SendCommand(ctx, car.DeviceKey(), command.name, command.deviceType)
	if err != nil {
		writeJSONError(w, statusCodeForError(err), err)
		return
	}

	reply := struct {
		Response struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
			Command string `json:"command"`
		} `json:"response"`
	}{}
	reply.Response.Success = response.Success
	reply.Response.Message = response.Message
	reply.Response.Command = response.Command

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&reply)
}
